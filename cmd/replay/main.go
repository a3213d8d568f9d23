// Command replay loads a JSONL file of recorded or incident events,
// optionally applies chaos-testing transforms (reordering, duplication,
// schema drift), and streams the result to a running processor over TCP.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"math/rand"
	"net"
	"os"
	"strings"
	"time"

	"mercurystream/processor/internal/event"
	"mercurystream/processor/internal/framing"
)

var driftTypes = []string{
	"missing_price",
	"missing_type",
	"wrong_price_type",
	"wrong_size_type",
	"extra_field",
	"missing_multiple",
}

func main() {
	file := flag.String("file", "", "path to JSONL file to replay (required)")
	flag.StringVar(file, "f", "", "shorthand for -file")
	rate := flag.Float64("rate", 0, "events per second (0 = unlimited)")
	flag.Float64Var(rate, "r", 0, "shorthand for -rate")
	shuffleWindow := flag.Int("shuffle-window", 0, "shuffle events within windows of K events")
	flag.IntVar(shuffleWindow, "s", 0, "shorthand for -shuffle-window")
	duplicateRate := flag.Float64("duplicate-rate", 0, "rate of duplicate injection (0.0-1.0)")
	flag.Float64Var(duplicateRate, "d", 0, "shorthand for -duplicate-rate")
	driftRate := flag.Float64("drift-rate", 0, "rate of schema drift injection (0.0-1.0)")
	noUpdateTimestamps := flag.Bool("no-update-timestamps", false, "don't update ingest_ts_ms to current time")
	host := flag.String("host", getEnv("P2_HOST", "localhost"), "processor host")
	port := flag.Int("port", getEnvInt("P2_PORT", 9001), "processor port")
	flag.Parse()

	if strings.TrimSpace(*file) == "" {
		fmt.Fprintln(os.Stderr, "-file is required")
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "starting replay: file=%s rate=%.0f/s\n", *file, *rate)

	if err := replay(*file, *rate, *shuffleWindow, *duplicateRate, *driftRate, !*noUpdateTimestamps, *host, *port); err != nil {
		fmt.Fprintf(os.Stderr, "replay failed: %v\n", err)
		os.Exit(1)
	}
}

func replay(filePath string, rate float64, shuffleWindow int, duplicateRate, driftRate float64, updateTimestamps bool, host string, port int) error {
	if _, err := os.Stat(filePath); err != nil {
		return fmt.Errorf("file not found: %w", err)
	}

	events, err := loadEvents(filePath)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return fmt.Errorf("no events to replay")
	}
	fmt.Fprintf(os.Stderr, "loaded %d events\n", len(events))

	if shuffleWindow > 0 {
		fmt.Fprintf(os.Stderr, "applying shuffle with window size %d\n", shuffleWindow)
		events = applyShuffle(events, shuffleWindow)
	}

	if duplicateRate > 0 {
		original := len(events)
		events = injectDuplicates(events, duplicateRate)
		fmt.Fprintf(os.Stderr, "injected duplicates: %d -> %d events\n", original, len(events))
	}

	if driftRate > 0 {
		events = injectDrift(events, driftRate)
		fmt.Fprintf(os.Stderr, "injected schema drift: ~%d events\n", int(float64(len(events))*driftRate))
	}

	fmt.Fprintf(os.Stderr, "connecting to processor at %s:%d\n", host, port)
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, fmt.Sprintf("%d", port)), 5*time.Second)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer conn.Close()

	limiter := newRateLimiter(rate)
	sent := 0
	start := time.Now()

	for _, evt := range events {
		if updateTimestamps {
			evt["ingest_ts_ms"] = time.Now().UnixMilli()
		}

		payload, err := evt.Encode()
		if err != nil {
			fmt.Fprintf(os.Stderr, "skipping event, failed to encode: %v\n", err)
			continue
		}
		framed, err := framing.Encode(payload, 0)
		if err != nil {
			fmt.Fprintf(os.Stderr, "skipping event, failed to frame: %v\n", err)
			continue
		}
		if _, err := conn.Write(framed); err != nil {
			return fmt.Errorf("connection lost: %w", err)
		}

		sent++
		if rate > 0 {
			limiter.acquire()
		}

		if sent%1000 == 0 {
			elapsed := time.Since(start).Seconds()
			actualRate := 0.0
			if elapsed > 0 {
				actualRate = float64(sent) / elapsed
			}
			fmt.Fprintf(os.Stderr, "sent %d/%d events (%.1f/s)\n", sent, len(events), actualRate)
		}
	}

	elapsed := time.Since(start).Seconds()
	actualRate := 0.0
	if elapsed > 0 {
		actualRate = float64(sent) / elapsed
	}
	fmt.Fprintf(os.Stderr, "replay complete: %d events in %.1fs (%.1f/s)\n", sent, elapsed, actualRate)
	return nil
}

func loadEvents(path string) ([]event.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var events []event.Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		evt, err := event.Decode([]byte(line))
		if err != nil {
			fmt.Fprintf(os.Stderr, "skipping invalid JSON: %v\n", err)
			continue
		}
		events = append(events, evt)
	}
	return events, scanner.Err()
}

// applyShuffle shuffles events within fixed-size windows to simulate
// out-of-order delivery while keeping the overall stream roughly ordered.
func applyShuffle(events []event.Event, windowSize int) []event.Event {
	if windowSize <= 1 {
		return events
	}
	result := make([]event.Event, 0, len(events))
	for i := 0; i < len(events); i += windowSize {
		end := i + windowSize
		if end > len(events) {
			end = len(events)
		}
		window := append([]event.Event(nil), events[i:end]...)
		rand.Shuffle(len(window), func(a, b int) { window[a], window[b] = window[b], window[a] })
		result = append(result, window...)
	}
	return result
}

// injectDuplicates probabilistically appends a copy of each event
// immediately after itself, to exercise duplicate-detection logic.
func injectDuplicates(events []event.Event, rate float64) []event.Event {
	if rate <= 0 {
		return events
	}
	result := make([]event.Event, 0, len(events))
	for _, evt := range events {
		result = append(result, evt)
		if rand.Float64() < rate {
			result = append(result, copyEvent(evt))
		}
	}
	return result
}

// injectDrift probabilistically corrupts a copy of each event's schema, to
// exercise drift-detection logic.
func injectDrift(events []event.Event, rate float64) []event.Event {
	if rate <= 0 {
		return events
	}
	result := make([]event.Event, 0, len(events))
	for _, evt := range events {
		if rand.Float64() < rate {
			e := copyEvent(evt)
			switch driftTypes[rand.Intn(len(driftTypes))] {
			case "missing_price":
				delete(e, "price")
			case "missing_type":
				delete(e, "type")
			case "wrong_price_type":
				e["price"] = fmt.Sprintf("%v", e["price"])
			case "wrong_size_type":
				e["last_size"] = fmt.Sprintf("%v", e["last_size"])
			case "extra_field":
				e["unexpected_field"] = "drift_test"
				e["another_field"] = 12345
			case "missing_multiple":
				delete(e, "price")
				delete(e, "last_size")
			}
			result = append(result, e)
		} else {
			result = append(result, evt)
		}
	}
	return result
}

func copyEvent(evt event.Event) event.Event {
	cp := make(event.Event, len(evt))
	for k, v := range evt {
		cp[k] = v
	}
	return cp
}

// rateLimiter is a token bucket capped at 10 tokens burst.
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
