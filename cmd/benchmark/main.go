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

	"github.com/punchamoorthee/railbridge/internal/token"
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
	success201    uint64 // Recorded
	fail422       uint64 // Validation or rail rejections
	fail502       uint64 // Indeterminate rail outcomes
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

func worker(wg *sync.WaitGroup, start time.Time) {
	defer wg.Done()
	client := &http.Client{Timeout: 20 * time.Second}

	for time.Since(start) < duration {
		senderBank, receiverAccount := generatePair()

		payload := map[string]interface{}{
			"sender_bank_id": senderBank,
			"receiver_token": token.Encode(receiverAccount),
			"amount":         "1.00",
			"note":           "benchmark transfer",
			"email":          "bench@railbridge.dev",
		}
		body, _ := json.Marshal(payload)

		req, _ := http.NewRequest("POST", targetURL+"/api/v1/transfers", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			atomic.AddUint64(&failOther, 1)
			continue
		}

		atomic.AddUint64(&totalRequests, 1)
		switch resp.StatusCode {
		case 201:
			atomic.AddUint64(&success201, 1)
		case 422:
			atomic.AddUint64(&fail422, 1)
		case 502:
			atomic.AddUint64(&fail502, 1)
		default:
			atomic.AddUint64(&failOther, 1)
		}
		resp.Body.Close()
	}
}

func generatePair() (int64, string) {
	// Assumes 1000 banks seeded (IDs 1-1000, account ids acct-000000..)
	totalBanks := 1000

	if workload == "hotspot" {
		// Hotspot: 90% of traffic flows between the first two banks
		if rand.Float32() < 0.90 {
			if rand.Float32() < 0.5 {
				return 1, "acct-000001"
			}
			return 2, "acct-000000"
		}
	}

	// Uniform Random
	a := rand.Intn(totalBanks) + 1
	b := rand.Intn(totalBanks)
	for int64(b+1) == int64(a) {
		b = rand.Intn(totalBanks)
	}
	return int64(a), fmt.Sprintf("acct-%06d", b)
}

func printResults(d time.Duration) {
	total := atomic.LoadUint64(&totalRequests)
	s201 := atomic.LoadUint64(&success201)
	f422 := atomic.LoadUint64(&fail422)
	f502 := atomic.LoadUint64(&fail502)
	fErr := atomic.LoadUint64(&failOther)

	tps := float64(total) / d.Seconds()
	rejectRate := float64(f422) / float64(total) * 100

	results := map[string]interface{}{
		"workload":         workload,
		"duration_sec":     d.Seconds(),
		"total_requests":   total,
		"throughput_tps":   tps,
		"success_recorded": s201,
		"rejected":         f422,
		"indeterminate":    f502,
		"reject_rate_pct":  rejectRate,
		"errors":           fErr,
	}

	// Print JSON for the python plotter to consume
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results)

	// Also save to file
	filename := fmt.Sprintf("results_%s.json", workload)
	file, _ := os.Create(filename)
	defer file.Close()
	json.NewEncoder(file).Encode(results)
}
