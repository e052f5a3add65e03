package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Config holds the benchmark settings
var (
	targetURL   string
	concurrency int
	duration    time.Duration
	workload    string
)

// Metrics
var (
	totalRequests uint64
	settled       uint64
	redirected    uint64
	notFound      uint64
	failOther     uint64
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&workload, "workload", "uniform", "Workload type: uniform | hotspot")
}

func main() {
	flag.Parse()
	log.Printf("Starting Benchmark: %s | Workers: %d | Duration: %s", workload, concurrency, duration)

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)

	for i := 0; i < concurrency; i++ {
		go worker(&wg, start)
	}

	wg.Wait()
	printResults(time.Since(start))
}

type purchaseResult struct {
	Status string `json:"status"`
}

func worker(wg *sync.WaitGroup, start time.Time) {
	defer wg.Done()
	client := &http.Client{Timeout: 5 * time.Second}

	for time.Since(start) < duration {
		buyer, deck := generateTarget()

		payload := map[string]interface{}{
			"buyer_id": buyer,
			"deck_id":  deck,
		}
		body, _ := json.Marshal(payload)

		req, _ := http.NewRequest("POST", targetURL+"/api/v1/purchase", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			atomic.AddUint64(&failOther, 1)
			continue
		}

		atomic.AddUint64(&totalRequests, 1)
		switch resp.StatusCode {
		case 200:
			var result purchaseResult
			if json.NewDecoder(resp.Body).Decode(&result) == nil && result.Status == "settled" {
				atomic.AddUint64(&settled, 1)
			} else {
				atomic.AddUint64(&redirected, 1)
			}
		case 404:
			atomic.AddUint64(&notFound, 1)
		default:
			atomic.AddUint64(&failOther, 1)
		}
		resp.Body.Close()
	}
}

func generateTarget() (string, string) {
	// Assumes the seeder ran: buyer-0001..buyer-1000, deck-001-1..deck-050-4.
	totalBuyers := 1000
	totalCreators := 50
	decksPerOwner := 4

	if workload == "hotspot" {
		// Hotspot: 90% of traffic is one buyer hammering two decks, which
		// serializes on that buyer's account row.
		if rand.Float32() < 0.90 {
			if rand.Float32() < 0.5 {
				return "buyer-0001", "deck-001-1"
			}
			return "buyer-0001", "deck-001-2"
		}
	}

	buyer := fmt.Sprintf("buyer-%04d", rand.Intn(totalBuyers)+1)
	deck := fmt.Sprintf("deck-%03d-%d", rand.Intn(totalCreators)+1, rand.Intn(decksPerOwner)+1)
	return buyer, deck
}

func printResults(d time.Duration) {
	total := atomic.LoadUint64(&totalRequests)
	nSettled := atomic.LoadUint64(&settled)
	nRedirected := atomic.LoadUint64(&redirected)
	n404 := atomic.LoadUint64(&notFound)
	fErr := atomic.LoadUint64(&failOther)

	tps := float64(total) / d.Seconds()

	results := map[string]interface{}{
		"workload":          workload,
		"duration_sec":      d.Seconds(),
		"total_requests":    total,
		"throughput_tps":    tps,
		"settled":           nSettled,
		"redirect_required": nRedirected,
		"not_found":         n404,
		"errors":            fErr,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results)

	filename := fmt.Sprintf("results_%s.json", workload)
	file, _ := os.Create(filename)
	defer file.Close()
	json.NewEncoder(file).Encode(results)
}
