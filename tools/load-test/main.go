package main

import (
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

func main() {
	// Configuration
	baseURL := "http://localhost:8080/api/v1"

	numReaders := 200
	requestsPerReader := 100
	totalRequests := numReaders * requestsPerReader
	concurrency := 50 // Number of concurrent requests to avoid local port exhaustion

	// A handful of distinct queries so most requests hit warm cache entries
	// while some force fetches against the upstream mock.
	day := time.Now().Format("2006-01-02")
	targets := []string{
		baseURL + "/attendance?companyId=comp-1&from=" + day + "&to=" + day,
		baseURL + "/attendance?companyId=comp-2&from=" + day + "&to=" + day,
		baseURL + "/employees?companyId=comp-1",
		baseURL + "/companies",
		baseURL + "/companies/comp-1/summary?day=" + day,
	}

	fmt.Printf("Starting load test: %d readers (%d requests each) against %s with concurrency %d\n", numReaders, requestsPerReader, baseURL, concurrency)

	var wg sync.WaitGroup
	sem := make(chan struct{}, concurrency) // Semaphore to limit concurrency

	var successCount int64
	var failCount int64

	startTime := time.Now()

	for i := 0; i < numReaders; i++ {
		wg.Add(1)
		sem <- struct{}{} // Acquire token

		go func(readerID int) {
			defer wg.Done()
			defer func() { <-sem }() // Release token

			for j := 0; j < requestsPerReader; j++ {
				resp, err := http.Get(targets[(readerID+j)%len(targets)])
				if err != nil {
					atomic.AddInt64(&failCount, 1)
					continue
				}

				if resp.StatusCode >= 200 && resp.StatusCode < 300 {
					atomic.AddInt64(&successCount, 1)
				} else {
					atomic.AddInt64(&failCount, 1)
				}
				resp.Body.Close()
			}
		}(i)
	}

	wg.Wait()
	duration := time.Since(startTime)

	fmt.Println("\n--- Load Test Results ---")
	fmt.Printf("Total Duration: %v\n", duration)
	fmt.Printf("Total Requests: %d\n", totalRequests)
	fmt.Printf("Successful:     %d\n", successCount)
	fmt.Printf("Failed:         %d\n", failCount)
	fmt.Printf("Requests/Sec:   %.2f\n", float64(totalRequests)/duration.Seconds())
}
