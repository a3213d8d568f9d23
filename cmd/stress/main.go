// Command stress generates synthetic ticker events at a configurable rate
// across one or more parallel TCP connections and reports throughput and
// latency percentiles, for load-testing a running processor.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"net"
	"os"
	"sort"
	"sync"
	"time"

	"mercurystream/processor/internal/framing"
)

var symbols = []string{"BTC-USD", "ETH-USD", "SOL-USD"}

var basePrices = map[string]float64{
	"BTC-USD": 95000,
	"ETH-USD": 3500,
	"SOL-USD": 200,
}

func main() {
	host := flag.String("host", getEnv("P2_HOST", "localhost"), "processor host")
	port := flag.Int("port", getEnvInt("P2_PORT", 9001), "processor port")
	rate := flag.Float64("rate", 1000, "total events per second, split evenly across connections (0 = unlimited)")
	duration := flag.Float64("duration", 0, "test duration in seconds")
	count := flag.Int("count", 0, "total events to send, split evenly across connections (0 = unbounded)")
	connections := flag.Int("connections", 1, "number of parallel connections")
	symbol := flag.String("symbol", "", "symbol to use (default: random)")
	flag.Parse()

	if *duration == 0 && *count == 0 {
		*duration = 10.0
	}

	fmt.Fprintf(os.Stderr, "stress test: rate=%.0f/s duration=%.0fs count=%d connections=%d\n",
		*rate, *duration, *count, *connections)

	perConnRate := *rate
	perConnCount := *count
	if *connections > 1 {
		perConnRate = *rate / float64(*connections)
		if *count > 0 {
			perConnCount = *count / *connections
		}
	}

	start := time.Now()
	results := make([]*stats, *connections)
	var wg sync.WaitGroup
	for i := 0; i < *connections; i++ {
		wg.Add(1)
		i := i
		go func() {
			defer wg.Done()
			results[i] = runConnection(*host, *port, perConnRate, *duration, perConnCount, *symbol)
		}()
	}
	wg.Wait()

	reportAggregate(results, time.Since(start))
}

// stats tracks a single connection's send count, error count, and latency
// samples, capped to keep memory bounded on long runs.
type stats struct {
	mu         sync.Mutex
	sent       int
	errors     int
	latenciesMS []float64
}

const maxLatencySamples = 100_000

func (s *stats) recordSend(latencyMS float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent++
	if len(s.latenciesMS) < maxLatencySamples {
		s.latenciesMS = append(s.latenciesMS, latencyMS)
	}
}

func (s *stats) snapshot() (sent, errs int, latencies []float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent, s.errors, append([]float64(nil), s.latenciesMS...)
}

// rateLimiter is a token bucket capped at 10 tokens burst, matching the
// reference tool's limiter.
type rateLimiter struct {
	rate     float64
	tokens   float64
	lastTime time.Time
}

func newRateLimiter(rate float64) *rateLimiter {
	return &rateLimiter{rate: rate, lastTime: time.Now()}
}

func (r *rateLimiter) acquire() {
	if r.rate <= 0 {
		return
	}
	now := time.Now()
	elapsed := now.Sub(r.lastTime).Seconds()
	r.tokens += elapsed * r.rate
	if r.tokens > 10.0 {
		r.tokens = 10.0
	}
	r.lastTime = now
	if r.tokens < 1.0 {
		wait := (1.0 - r.tokens) / r.rate
		time.Sleep(time.Duration(wait * float64(time.Second)))
		r.tokens = 0.0
		return
	}
	r.tokens -= 1.0
}

func runConnection(host string, port int, rate, durationS float64, count int, symbol string) *stats {
	s := &stats{}
	start := time.Now()

	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, fmt.Sprintf("%d", port)), 5*time.Second)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connection failed: %v\n", err)
		return s
	}
	defer conn.Close()

	limiter := newRateLimiter(rate)
	seq := int64(0)
	lastReport := time.Now()

	shouldContinue := func() bool {
		if durationS > 0 {
			return time.Since(start).Seconds() < durationS
		}
		if count > 0 {
			sent, _, _ := s.snapshot()
			return sent < count
		}
		return true
	}

	for shouldContinue() {
		event := generateEvent(seq, symbol)
		seq++

		sendStart := time.Now()
		payload, err := json.Marshal(event)
		if err != nil {
			s.errors++
			continue
		}
		framed, err := framing.Encode(payload, 0)
		if err != nil {
			s.errors++
			continue
		}
		if _, err := conn.Write(framed); err != nil {
			s.errors++
			fmt.Fprintf(os.Stderr, "connection lost: %v\n", err)
			break
		}
		s.recordSend(time.Since(sendStart).Seconds() * 1000)

		if rate > 0 {
			limiter.acquire()
		}

		if time.Since(lastReport) >= 2*time.Second {
			sent, errs, latencies := s.snapshot()
			fmt.Fprintln(os.Stderr, formatReport(sent, errs, latencies, time.Since(start)))
			lastReport = time.Now()
		}
	}

	return s
}

// syntheticEvent is a generated ticker payload, serialized in the same key
// order and format the exchange feed produces.
type syntheticEvent struct {
	ProductID string  `json:"product_id"`
	Price     float64 `json:"price"`
	LastSize  float64 `json:"last_size"`
	Time      string  `json:"time"`
	TradeID   int64   `json:"trade_id"`
	Sequence  int64   `json:"sequence"`
	IngestTS  int64   `json:"ingest_ts_ms"`
	Type      string  `json:"type"`
}

func generateEvent(seq int64, symbol string) syntheticEvent {
	sym := symbol
	if sym == "" {
		sym = symbols[rand.Intn(len(symbols))]
	}
	base, ok := basePrices[sym]
	if !ok {
		base = 100
	}
	price := base * (1 + gaussNoise(0, 0.001))
	size := expovariate(1) * 0.1

	return syntheticEvent{
		Type:      "ticker",
		ProductID: sym,
		Price:     roundTo(price, 2),
		LastSize:  roundTo(size, 8),
		Time:      time.Now().UTC().Format("2006-01-02T15:04:05.000000Z"),
		TradeID:   900_000_000 + seq,
		Sequence:  seq,
		IngestTS:  time.Now().UnixMilli(),
	}
}

func gaussNoise(mean, stddev float64) float64 {
	return mean + stddev*rand.NormFloat64()
}

func expovariate(lambda float64) float64 {
	return -math.Log(1-rand.Float64()) / lambda
}

func roundTo(v float64, places int) float64 {
	mult := math.Pow(10, float64(places))
	return math.Round(v*mult) / mult
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)) * p / 100)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func formatReport(sent, errs int, latencies []float64, elapsed time.Duration) string {
	sorted := append([]float64(nil), latencies...)
	sort.Float64s(sorted)
	throughput := 0.0
	if elapsed.Seconds() > 0 {
		throughput = float64(sent) / elapsed.Seconds()
	}
	return fmt.Sprintf("sent=%d | errors=%d | throughput=%.0f/s | p50=%.2fms | p95=%.2fms | p99=%.2fms | elapsed=%.1fs",
		sent, errs, throughput, percentile(sorted, 50), percentile(sorted, 95), percentile(sorted, 99), elapsed.Seconds())
}

func reportAggregate(results []*stats, elapsed time.Duration) {
	totalSent, totalErrors := 0, 0
	var allLatencies []float64
	for _, r := range results {
		if r == nil {
			continue
		}
		sent, errs, latencies := r.snapshot()
		totalSent += sent
		totalErrors += errs
		allLatencies = append(allLatencies, latencies...)
	}

	fmt.Fprintln(os.Stderr, "============================================================")
	fmt.Fprintln(os.Stderr, "STRESS TEST COMPLETE")
	fmt.Fprintln(os.Stderr, "============================================================")
	fmt.Fprintf(os.Stderr, "Connections:  %d\n", len(results))
	fmt.Fprintf(os.Stderr, "Total sent:   %d\n", totalSent)
	fmt.Fprintf(os.Stderr, "Total errors: %d\n", totalErrors)
	fmt.Fprintf(os.Stderr, "Duration:     %.1fs\n", elapsed.Seconds())
	if elapsed.Seconds() > 0 {
		fmt.Fprintf(os.Stderr, "Throughput:   %.0f/s\n", float64(totalSent)/elapsed.Seconds())
	}

	if len(allLatencies) > 0 {
		sort.Float64s(allLatencies)
		fmt.Fprintf(os.Stderr, "Latency p50:  %.2fms\n", percentile(allLatencies, 50))
		fmt.Fprintf(os.Stderr, "Latency p95:  %.2fms\n", percentile(allLatencies, 95))
		fmt.Fprintf(os.Stderr, "Latency p99:  %.2fms\n", percentile(allLatencies, 99))
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var n int
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
		return fallback
	}
	return n
}
