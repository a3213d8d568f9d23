// Package consumers implements the analytic bus subscribers that run
// alongside the forensics pipeline: rolling VWAP, system health, realized
// volatility, and traded volume.
package consumers

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"mercurystream/processor/internal/bus"
	"mercurystream/processor/internal/event"
	"mercurystream/processor/internal/logging"
)

// VWAP computes a rolling volume-weighted average price per product, plus
// ingest- and pipeline-latency percentiles, logged periodically.
type VWAP struct {
	WindowN    int
	PrintEvery time.Duration
	Log        *logging.Logger

	windows map[string][]priceSize
	ages    []int64
	pipes   []int64
}

type priceSize struct {
	price float64
	size  float64
}

// Run subscribes to b and logs rolling VWAP until ctx is canceled.
func (v *VWAP) Run(ctx context.Context, b *bus.Bus) {
	log := v.Log
	if log == nil {
		log = logging.L()
	}
	windowN := v.WindowN
	if windowN <= 0 {
		windowN = 200
	}
	printEvery := v.PrintEvery
	if printEvery <= 0 {
		printEvery = 5 * time.Second
	}
	v.windows = make(map[string][]priceSize)

	q := b.Subscribe(1000)
	ticker := time.NewTicker(printEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-q:
			if !ok {
				return
			}
			v.observe(evt, windowN)
		case <-ticker.C:
			v.logSnapshot(log, b)
		}
	}
}

func (v *VWAP) observe(evt event.Event, windowN int) {
	symbol := evt.ProductID()
	price, _ := evt.Number("price")
	size, _ := evt.Number("last_size")
	ingestTS, _ := evt.IngestTSMillis()
	recvTS, haveRecv := evt.RecvTSMillis()

	if price <= 0 || size < 0 || ingestTS <= 0 {
		return
	}

	window := append(v.windows[symbol], priceSize{price, size})
	if len(window) > windowN {
		window = window[len(window)-windowN:]
	}
	v.windows[symbol] = window

	now := time.Now().UnixMilli()
	v.ages = appendCapped(v.ages, max64(0, now-ingestTS), 3000)
	if haveRecv && recvTS > 0 {
		v.pipes = appendCapped(v.pipes, max64(0, now-recvTS), 3000)
	}
}

func (v *VWAP) logSnapshot(log *logging.Logger, b *bus.Bus) {
	symbols := make([]string, 0, len(v.windows))
	for sym := range v.windows {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	parts := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		window := v.windows[sym]
		if len(window) == 0 {
			continue
		}
		var num, den float64
		for _, ps := range window {
			num += ps.price * ps.size
			den += ps.size
		}
		vwap := 0.0
		if den > 0 {
			vwap = num / den
		}
		parts = append(parts, fmt.Sprintf("%s=%.2f", sym, vwap))
	}

	log.Info("vwap snapshot",
		logging.String("symbols", strings.Join(parts, " | ")),
		logging.Int64("age_p99_ms", int64(percentile(v.ages, 99))),
		logging.Int64("pipe_p99_ms", int64(percentile(v.pipes, 99))),
		logging.Int64("drops", b.Drops()),
	)
}

// percentile implements the reference rank-based formula: round((p/100) *
// (n-1)), clamped to the slice bounds. Used only for informational logging.
func percentile(vals []int64, p float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sorted := make([]int64, len(vals))
	copy(sorted, vals)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	k := int(p/100.0*float64(len(sorted)-1) + 0.5)
	if k < 0 {
		k = 0
	}
	if k > len(sorted)-1 {
		k = len(sorted) - 1
	}
	return float64(sorted[k])
}

func appendCapped(s []int64, v int64, cap int) []int64 {
	s = append(s, v)
	if len(s) > cap {
		s = s[len(s)-cap:]
	}
	return s
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
