package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

var maxDevices int = 1000
var eventsPerDevice int = 3
var httpHostPort string = "127.0.0.1:1080"

var rnd *rand.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))

var algoTypes = []int{11, 12, 13, 21, 25, 30}

func main() {
	deviceIDs := make([]string, maxDevices)
	for i := 0; i < maxDevices; i++ {
		deviceIDs[i] = uuid.NewString()
	}
	fmt.Printf("generated %v device IDs\n", maxDevices)

	resp, err := http.Get(fmt.Sprintf("http://%s/healthz", httpHostPort))
	if err != nil {
		log.Fatal("Failed to connect to HTTP server:", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Fatal("HTTP server not available")
	}

	fmt.Printf("http server verified\n")

	startTime := time.Now()
	wg := sync.WaitGroup{}
	for i := 0; i < maxDevices; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := 0; n < eventsPerDevice; n++ {
				postEvent(deviceIDs[i], n)
				time.Sleep(time.Duration(100+rnd.Int31n(1000)) * time.Millisecond)
			}
			fmt.Printf("\rsent events for device %v", i)
		}()
	}
	wg.Wait()
	usedTime := time.Since(startTime)

	total := maxDevices * eventsPerDevice
	fmt.Printf(
		"\n\rsent %v events: used time=%v seconds, throughput=%v event/second\n",
		total, usedTime.Seconds(), float64(total)/usedTime.Seconds(),
	)
}

func postEvent(deviceID string, seq int) {
	// distinct signTime per event keeps the dedup cache out of the way
	signTime := time.Now().Add(time.Duration(seq) * time.Second).Format("2006-01-02 15:04:05")
	payload := map[string]any{
		"deviceId":   deviceID,
		"indexCode":  fmt.Sprintf("cam-%d", rnd.Int31n(4)),
		"deviceName": fmt.Sprintf("camera %d", rnd.Int31n(4)),
		"boxName":    "bench-box",
		"type":       algoTypes[rnd.Intn(len(algoTypes))],
		"trackId":    rnd.Int31n(100000),
		"signTime":   signTime,
		"score":      fmt.Sprintf("%.2f", 0.5+rnd.Float64()*0.5),
	}

	jsonData, _ := json.Marshal(payload)
	resp, err := http.Post(fmt.Sprintf("http://%s/ai/message", httpHostPort), "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		fmt.Printf("\nerror: %v\n", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		fmt.Printf("\nresponse status code != 200: %v\n", resp.StatusCode)
	}
}
