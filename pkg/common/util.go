package common

import (
	"os"
	"strconv"
	"strings"
	"testing"
)

func IsTestEnv() bool {
	return testing.Testing()
}
func IsDevelopment() bool {
	return os.Getenv(EnvKeyGoEnv) == "development"
}

func IsProduction() bool {
	return os.Getenv(EnvKeyGoEnv) == "production"
}

func GetenvStr(key string, def string) string {
	if v, found := os.LookupEnv(key); found && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func GetenvInt(key string, def int) int {
	if v, err := strconv.Atoi(GetenvStr(key, "")); err == nil {
		return v
	}
	return def
}

func GetenvFloat(key string, def float64) float64 {
	if v, err := strconv.ParseFloat(GetenvStr(key, ""), 64); err == nil {
		return v
	}
	return def
}

func GetenvBool(key string, def bool) bool {
	switch GetenvStr(key, "") {
	case "1", "true":
		return true
	case "0", "false":
		return false
	}
	return def
}

// GetenvCSV splits a comma separated env value, dropping an inline '#' comment.
func GetenvCSV(key string) []string {
	raw := os.Getenv(key)
	raw, _, _ = strings.Cut(raw, "#")
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func Mapper[T any, R any](items []T, mapFn func(T) R) []R {
	mapped := make([]R, len(items))
	for i := 0; i < len(items); i++ {
		mapped[i] = mapFn(items[i])
	}
	return mapped
}

func Reducer[T any, R any](items []T, reduceFn func(R, T) R, initAcc R) R {
	finalAcc := initAcc
	for i := 0; i < len(items); i++ {
		finalAcc = reduceFn(finalAcc, items[i])
	}
	return finalAcc
}
