package alarm

import (
	"os"
	"strings"
)

func removeIfExists(path string) error {
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// dayOfRel extracts the YYYYMMDD part of "snaps/<day>/<file>".
func dayOfRel(rel string) string {
	parts := strings.Split(rel, "/")
	if len(parts) == 3 && parts[0] == "snaps" {
		return parts[1]
	}
	return ""
}

func uniqueStrings(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	var out []string
	for _, item := range items {
		if _, dup := seen[item]; dup {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}
