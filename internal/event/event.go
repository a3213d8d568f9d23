// Package event defines the wire representation of a single market ticker
// sample as it flows through the processor.
package event

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Event is a decoded mapping from the ingest stream. It is kept as a generic
// map, rather than a fixed struct, so the drift checker can still see and
// report keys it does not recognize instead of silently discarding them.
type Event map[string]any

// Decode parses a single JSON object frame into an Event. json.Number is used
// for numeric decoding so callers can distinguish "123" from "123.0" the way
// the wire format's "number (int or float)" fields require.
func Decode(payload []byte) (Event, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("event payload is not a JSON object (got %T)", raw)
	}
	return Event(obj), nil
}

// Encode serializes the event back to JSON, used by recorders and the replay
// tool. json.Number values round-trip as the original numeric literal.
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(map[string]any(e))
}

// String returns the value of key as a string, and whether it was present
// and actually a string.
func (e Event) String(key string) (string, bool) {
	v, ok := e[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Number returns the value of key as a float64, accepting json.Number,
// float64, or int values so callers don't need to know how the event was
// constructed (decoded from the wire vs. built in-process by a test).
func (e Event) Number(key string) (float64, bool) {
	v, ok := e[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// IsNumber reports whether key is present and holds a numeric value,
// without performing the (possibly lossy) conversion to float64.
func (e Event) IsNumber(key string) bool {
	v, ok := e[key]
	if !ok {
		return false
	}
	switch v.(type) {
	case json.Number, float64, int, int64:
		return true
	default:
		return false
	}
}

// Int returns the value of key as an int64, requiring an integral json.Number
// or Go integer type; a float64 value is also accepted and truncated toward
// zero. Used for millisecond timestamps and sequence numbers.
func (e Event) Int(key string) (int64, bool) {
	v, ok := e[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return i, true
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

// ProductID returns the "product_id" key, defaulting to "unknown" when it is
// absent or not a string, matching the integrity tracker's partitioning rule.
func (e Event) ProductID() string {
	if id, ok := e.String("product_id"); ok {
		return id
	}
	return "unknown"
}

// TradeID returns the "trade_id" key as an opaque comparable identity, and
// whether it was present and non-null. An explicit JSON null is treated the
// same as an absent key: any JSON scalar other than null is accepted as an
// identity.
func (e Event) TradeID() (any, bool) {
	v, ok := e["trade_id"]
	return v, ok && v != nil
}

// Sequence returns the "sequence" key as an int64, and whether it was present
// and numeric.
func (e Event) Sequence() (int64, bool) {
	return e.Int("sequence")
}

// Time returns the "time" key, the exchange timestamp string.
func (e Event) Time() (string, bool) {
	return e.String("time")
}

// IngestTSMillis returns "ingest_ts_ms", set by the upstream ingester.
func (e Event) IngestTSMillis() (int64, bool) {
	return e.Int("ingest_ts_ms")
}

// RecvTSMillis returns "recv_ts_ms", set by the ingest server on arrival.
func (e Event) RecvTSMillis() (int64, bool) {
	return e.Int("recv_ts_ms")
}

// SetRecvTSMillis stamps "recv_ts_ms" if not already present.
func (e Event) SetRecvTSMillis(ms int64) {
	if _, ok := e["recv_ts_ms"]; !ok {
		e["recv_ts_ms"] = ms
	}
}
