package consumers

import (
	"context"
	"time"

	"mercurystream/processor/internal/bus"
	"mercurystream/processor/internal/logging"
)

// Health tracks event throughput, last traded price, and queue backpressure
// across the bus, logged periodically.
type Health struct {
	PrintEvery time.Duration
	Log        *logging.Logger
}

// Run subscribes to b and logs a health line until ctx is canceled.
func (h *Health) Run(ctx context.Context, b *bus.Bus) {
	log := h.Log
	if log == nil {
		log = logging.L()
	}
	printEvery := h.PrintEvery
	if printEvery <= 0 {
		printEvery = 5 * time.Second
	}

	q := b.Subscribe(1000)
	ticker := time.NewTicker(printEvery)
	defer ticker.Stop()

	var count int64
	var lastPrice float64
	havePrice := false

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-q:
			if !ok {
				return
			}
			count++
			if price, ok := evt.Number("price"); ok {
				lastPrice = price
				havePrice = true
			}
		case <-ticker.C:
			fields := []logging.Field{
				logging.Int64("events_per_print", count),
				logging.Int64("drops", b.Drops()),
				logging.Int("queue_depths_max", b.MaxQueueDepth()),
			}
			if havePrice {
				fields = append(fields, logging.Float64("last_price", lastPrice))
			}
			log.Info("health snapshot", fields...)
			count = 0
		}
	}
}
