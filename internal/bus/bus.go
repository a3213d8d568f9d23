// Package bus implements an in-process fan-out publish/subscribe bus: one
// producer, N bounded subscriber queues, drop-oldest backpressure.
package bus

import (
	"sync"
	"sync/atomic"

	"mercurystream/processor/internal/event"
)

// Queue is a bounded subscriber channel. Consumers range over it directly.
type Queue chan event.Event

// Bus fans a single stream of events out to any number of subscriber queues.
// publish never blocks: a full subscriber queue has its oldest entry
// discarded before the new event is enqueued.
type Bus struct {
	mu    sync.Mutex
	subs  []Queue
	drops int64
}

// New constructs an empty Bus.
func New() *Bus {
	return &Bus{}
}

// Subscribe creates a new bounded queue of capacity maxSize, registers it,
// and returns it. There is no Unsubscribe: subscribers live for the process.
func (b *Bus) Subscribe(maxSize int) Queue {
	if maxSize <= 0 {
		maxSize = 1
	}
	q := make(Queue, maxSize)
	b.mu.Lock()
	b.subs = append(b.subs, q)
	b.mu.Unlock()
	return q
}

// Publish delivers event to every subscriber queue in subscription order.
// If a queue is full, its oldest element is discarded (counted as one drop)
// before the new event is enqueued. Publish never blocks and never panics on
// subscriber state. Publish calls are serialized against each other and
// against Subscribe so that, per the total publish order guarantee, no two
// publishers can interleave deliveries to the same queue.
func (b *Bus) Publish(evt event.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, q := range b.subs {
		b.deliver(q, evt)
	}
}

// deliver enqueues evt onto q, discarding the oldest entry first if q is
// full. Called with b.mu held.
func (b *Bus) deliver(q Queue, evt event.Event) {
	select {
	case q <- evt:
		return
	default:
	}
	// Queue is full: discard the oldest entry, then enqueue. A concurrent
	// consumer draining the queue between these two selects is the only way
	// the second enqueue can still fail; that case is also counted as a drop.
	select {
	case <-q:
		atomic.AddInt64(&b.drops, 1)
	default:
	}
	select {
	case q <- evt:
	default:
		atomic.AddInt64(&b.drops, 1)
	}
}

// Drops returns the cumulative number of events dropped across all
// subscribers due to queue-full backpressure.
func (b *Bus) Drops() int64 {
	return atomic.LoadInt64(&b.drops)
}

// QueueDepths returns a snapshot of each subscriber's current queue length,
// in subscription order.
func (b *Bus) QueueDepths() []int {
	b.mu.Lock()
	subs := make([]Queue, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	depths := make([]int, len(subs))
	for i, q := range subs {
		depths[i] = len(q)
	}
	return depths
}

// MaxQueueDepth returns the largest current subscriber queue depth, or 0 if
// there are no subscribers.
func (b *Bus) MaxQueueDepth() int {
	max := 0
	for _, d := range b.QueueDepths() {
		if d > max {
			max = d
		}
	}
	return max
}
