package bus

import (
	"testing"

	"mercurystream/processor/internal/event"
)

func evt(tag string) event.Event {
	return event.Event{"tag": tag}
}

// TestBusDropAccounting exercises the scenario from the testable-properties
// section: subscribe one queue of capacity 2, publish A, B, C, consume
// twice, observe B, C, and drops == 1.
func TestBusDropAccounting(t *testing.T) {
	b := New()
	q := b.Subscribe(2)

	b.Publish(evt("A"))
	b.Publish(evt("B"))
	b.Publish(evt("C"))

	first := <-q
	second := <-q

	if tag, _ := first["tag"].(string); tag != "B" {
		t.Fatalf("expected first observed event to be B, got %v", first)
	}
	if tag, _ := second["tag"].(string); tag != "C" {
		t.Fatalf("expected second observed event to be C, got %v", second)
	}
	if b.Drops() != 1 {
		t.Fatalf("expected drops == 1, got %d", b.Drops())
	}
}

func TestBusNeverBlocksWithNoConsumer(t *testing.T) {
	b := New()
	b.Subscribe(1)
	for i := 0; i < 1000; i++ {
		b.Publish(evt("x"))
	}
	if b.Drops() != 999 {
		t.Fatalf("expected 999 drops, got %d", b.Drops())
	}
}

func TestBusFanOutToMultipleSubscribers(t *testing.T) {
	b := New()
	q1 := b.Subscribe(10)
	q2 := b.Subscribe(10)

	b.Publish(evt("x"))

	select {
	case <-q1:
	default:
		t.Fatal("expected q1 to receive the event")
	}
	select {
	case <-q2:
	default:
		t.Fatal("expected q2 to receive the event")
	}
}

func TestBusQueueDepthsAndMax(t *testing.T) {
	b := New()
	q := b.Subscribe(5)
	b.Publish(evt("a"))
	b.Publish(evt("b"))

	depths := b.QueueDepths()
	if len(depths) != 1 || depths[0] != 2 {
		t.Fatalf("expected depths [2], got %v", depths)
	}
	if b.MaxQueueDepth() != 2 {
		t.Fatalf("expected max depth 2, got %d", b.MaxQueueDepth())
	}
	<-q
}

// TestBusEveryEventAccountedFor verifies the general invariant: after
// publishing N events to a bus with K subscribers of capacity C, each
// subscriber has either observed or been counted as a drop for all N events.
func TestBusEveryEventAccountedFor(t *testing.T) {
	const n = 500
	const capacity = 7
	b := New()
	q := b.Subscribe(capacity)

	for i := 0; i < n; i++ {
		b.Publish(evt("x"))
	}

	observed := len(q)
	if int64(observed)+b.Drops() != n {
		t.Fatalf("observed(%d) + drops(%d) != published(%d)", observed, b.Drops(), n)
	}
}
