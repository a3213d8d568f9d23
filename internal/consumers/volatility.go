package consumers

import (
	"context"
	"math"
	"sort"
	"time"

	"mercurystream/processor/internal/bus"
	"mercurystream/processor/internal/logging"
)

// Volatility computes rolling annualized volatility per product from log
// returns of successive trade prices, assuming roughly one tick per second.
type Volatility struct {
	WindowN    int
	PrintEvery time.Duration
	Log        *logging.Logger

	lastPrices map[string]float64
	returns    map[string][]float64
}

// Run subscribes to b and logs volatility snapshots until ctx is canceled.
func (v *Volatility) Run(ctx context.Context, b *bus.Bus) {
	log := v.Log
	if log == nil {
		log = logging.L()
	}
	windowN := v.WindowN
	if windowN <= 0 {
		windowN = 100
	}
	printEvery := v.PrintEvery
	if printEvery <= 0 {
		printEvery = 10 * time.Second
	}
	v.lastPrices = make(map[string]float64)
	v.returns = make(map[string][]float64)

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
			symbol := evt.ProductID()
			price, ok := evt.Number("price")
			if !ok || price <= 0 {
				continue
			}
			if last, seen := v.lastPrices[symbol]; seen && last > 0 {
				logReturn := math.Log(price / last)
				returns := append(v.returns[symbol], logReturn)
				if len(returns) > windowN {
					returns = returns[len(returns)-windowN:]
				}
				v.returns[symbol] = returns
			}
			v.lastPrices[symbol] = price
		case <-ticker.C:
			v.logSnapshot(log)
		}
	}
}

func (v *Volatility) logSnapshot(log *logging.Logger) {
	symbols := make([]string, 0, len(v.returns))
	for sym := range v.returns {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	for _, sym := range symbols {
		r := v.returns[sym]
		if len(r) < 10 {
			continue
		}
		var sum float64
		for _, x := range r {
			sum += x
		}
		mean := sum / float64(len(r))
		var variance float64
		for _, x := range r {
			d := x - mean
			variance += d * d
		}
		variance /= float64(len(r))
		std := 0.0
		if variance > 0 {
			std = math.Sqrt(variance)
		}
		// One tick/sec assumption: 86400 ticks/day * 365 days/year.
		annualVol := std * math.Sqrt(86400*365) * 100
		log.Info("volatility snapshot",
			logging.String("symbol", sym),
			logging.Float64("annualized_pct", annualVol),
		)
	}
}
