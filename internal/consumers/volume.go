package consumers

import (
	"context"
	"sort"
	"time"

	"mercurystream/processor/internal/bus"
	"mercurystream/processor/internal/logging"
)

// Volume accumulates notional USD traded volume and trade count per
// product over a rolling print window, resetting after each log line.
type Volume struct {
	PrintEvery time.Duration
	Log        *logging.Logger

	volumes map[string]float64
	trades  map[string]int
}

// Run subscribes to b and logs traded volume snapshots until ctx is canceled.
func (v *Volume) Run(ctx context.Context, b *bus.Bus) {
	log := v.Log
	if log == nil {
		log = logging.L()
	}
	printEvery := v.PrintEvery
	if printEvery <= 0 {
		printEvery = 10 * time.Second
	}
	v.volumes = make(map[string]float64)
	v.trades = make(map[string]int)

	q := b.Subscribe(1000)
	ticker := time.NewTicker(printEvery)
	defer ticker.Stop()
	windowStart := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-q:
			if !ok {
				return
			}
			symbol := evt.ProductID()
			price, okPrice := evt.Number("price")
			size, okSize := evt.Number("last_size")
			if !okPrice || !okSize || price <= 0 || size <= 0 {
				continue
			}
			v.volumes[symbol] += size * price
			v.trades[symbol]++
		case now := <-ticker.C:
			v.logSnapshot(log, now, windowStart)
			v.volumes = make(map[string]float64)
			v.trades = make(map[string]int)
			windowStart = now
		}
	}
}

func (v *Volume) logSnapshot(log *logging.Logger, now, windowStart time.Time) {
	windowSecs := now.Sub(windowStart).Seconds()
	symbols := make([]string, 0, len(v.volumes))
	for sym := range v.volumes {
		symbols = append(symbols, sym)
	}
	if len(symbols) == 0 {
		return
	}
	sort.Strings(symbols)

	for _, sym := range symbols {
		volUSD := v.volumes[sym]
		volPerMin := 0.0
		if windowSecs > 0 {
			volPerMin = (volUSD / windowSecs) * 60
		}
		log.Info("volume snapshot",
			logging.String("symbol", sym),
			logging.Float64("usd_per_min", volPerMin),
			logging.Int("trade_count", v.trades[sym]),
		)
	}
}
