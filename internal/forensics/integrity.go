package forensics

import (
	"sync"
	"time"

	"mercurystream/processor/internal/event"
	"mercurystream/processor/internal/lru"
)

// symbolState is the per-product_id state the integrity tracker maintains
// for the lifetime of the process.
type symbolState struct {
	lastExchangeTSMillis int64
	lastSequence         int64
	hasSequence          bool
	tradeIDs             *lru.Set[any]
}

// IntegrityTracker partitions events by product_id and flags duplicate,
// out-of-order, and sequence-gap conditions independently per event.
type IntegrityTracker struct {
	mu              sync.Mutex
	duplicateLRUMax int
	symbols         map[string]*symbolState
}

// NewIntegrityTracker constructs a tracker whose per-symbol duplicate set is
// bounded at duplicateLRUMax entries.
func NewIntegrityTracker(duplicateLRUMax int) *IntegrityTracker {
	return &IntegrityTracker{
		duplicateLRUMax: duplicateLRUMax,
		symbols:         make(map[string]*symbolState),
	}
}

// Check evaluates evt against its symbol's accumulated state and returns
// (isDuplicate, isOutOfOrder, isGap). All three are independent; any
// combination may be true for a single event.
func (t *IntegrityTracker) Check(evt event.Event) (isDuplicate, isOutOfOrder, isGap bool) {
	product := evt.ProductID()

	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.symbols[product]
	if !ok {
		state = &symbolState{tradeIDs: lru.NewSet[any](t.duplicateLRUMax)}
		t.symbols[product] = state
	}

	if tradeID, present := evt.TradeID(); present {
		if state.tradeIDs.Contains(tradeID) {
			isDuplicate = true
		} else {
			state.tradeIDs.Add(tradeID)
		}
	}

	if raw, present := evt.Time(); present {
		if ts, err := parseExchangeTime(raw); err == nil {
			tsMillis := ts.UnixMilli()
			if state.lastExchangeTSMillis > 0 && tsMillis < state.lastExchangeTSMillis {
				isOutOfOrder = true
			}
			if tsMillis > state.lastExchangeTSMillis {
				state.lastExchangeTSMillis = tsMillis
			}
		}
		// A malformed time is silently ignored: no flag, no state change.
	}

	if sequence, present := evt.Sequence(); present {
		if state.hasSequence && sequence > state.lastSequence+1 {
			isGap = true
		}
		state.lastSequence = sequence
		state.hasSequence = true
	}

	return isDuplicate, isOutOfOrder, isGap
}

// parseExchangeTime parses the "time" field's ISO-8601 UTC representation,
// accepting a trailing "Z".
func parseExchangeTime(raw string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return ts, nil
	}
	return time.Parse(time.RFC3339, raw)
}
