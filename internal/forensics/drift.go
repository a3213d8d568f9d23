// Package forensics implements the data-quality detectors that run over the
// event stream: schema drift, per-symbol duplicate/out-of-order/gap
// integrity, rolling-window latency spikes, and the flight recorder that
// captures incident bundles when any of them fires.
package forensics

import (
	"fmt"
	"sort"

	"mercurystream/processor/internal/event"
)

var requiredKeys = []string{"type", "product_id", "price", "last_size", "time", "ingest_ts_ms"}

var optionalKeys = map[string]struct{}{
	"recv_ts_ms": {},
	"trade_id":   {},
	"sequence":   {},
}

// DriftResult is the structured diagnosis produced by CheckDrift.
type DriftResult struct {
	MissingKeys     []string          `json:"missing_keys"`
	TypeMismatches  map[string]string `json:"type_mismatches"`
	UnexpectedKeys  []string          `json:"unexpected_keys"`
	IsDrift         bool              `json:"is_drift"`
}

// CheckDrift validates evt against the required-key schema and returns a
// structured diagnosis. It is stateless: callers own any aggregation across
// events.
func CheckDrift(evt event.Event) DriftResult {
	result := DriftResult{
		MissingKeys:    []string{},
		TypeMismatches: map[string]string{},
		UnexpectedKeys: []string{},
	}

	for _, key := range requiredKeys {
		v, present := evt[key]
		if !present {
			result.MissingKeys = append(result.MissingKeys, key)
			continue
		}
		if reason, ok := typeMismatchReason(key, v); ok {
			result.TypeMismatches[key] = reason
		}
	}

	known := make(map[string]struct{}, len(requiredKeys)+len(optionalKeys))
	for _, key := range requiredKeys {
		known[key] = struct{}{}
	}
	for key := range optionalKeys {
		known[key] = struct{}{}
	}
	unexpected := make([]string, 0)
	for key := range evt {
		if _, ok := known[key]; !ok {
			unexpected = append(unexpected, key)
		}
	}
	sort.Strings(unexpected)
	result.UnexpectedKeys = unexpected

	result.IsDrift = len(result.MissingKeys) > 0 || len(result.TypeMismatches) > 0
	return result
}

// typeMismatchReason reports whether value's runtime type does not match the
// expected semantic type for key, and if so, a human-readable reason.
func typeMismatchReason(key string, value any) (string, bool) {
	switch key {
	case "price", "last_size":
		if !isNumeric(value) {
			return fmt.Sprintf("expected (int,float), got %s", pyTypeName(value)), true
		}
	case "type", "product_id", "time":
		if _, ok := value.(string); !ok {
			return fmt.Sprintf("expected str, got %s", pyTypeName(value)), true
		}
	case "ingest_ts_ms":
		if !isIntegral(value) {
			return fmt.Sprintf("expected int, got %s", pyTypeName(value)), true
		}
	}
	return "", false
}

func isNumeric(value any) bool {
	switch value.(type) {
	case float64, int, int64:
		return true
	default:
		return numberLike(value)
	}
}

func isIntegral(value any) bool {
	switch v := value.(type) {
	case int, int64:
		return true
	case float64:
		return v == float64(int64(v))
	default:
		return numberLikeIntegral(value)
	}
}

// numberLike and numberLikeIntegral accept encoding/json's json.Number
// representation without importing encoding/json here, keeping this file's
// type-checking logic independent of the decoder's numeric representation.
func numberLike(value any) bool {
	type numberer interface{ Float64() (float64, error) }
	n, ok := value.(numberer)
	if !ok {
		return false
	}
	_, err := n.Float64()
	return err == nil
}

func numberLikeIntegral(value any) bool {
	type numberer interface{ Int64() (int64, error) }
	n, ok := value.(numberer)
	if !ok {
		return false
	}
	_, err := n.Int64()
	return err == nil
}

// pyTypeName renders a Go value's type using Python's runtime type names
// (str, int, float, NoneType, ...), since drift samples are inspected
// alongside events produced by the upstream Python exchange feed.
func pyTypeName(value any) string {
	switch value.(type) {
	case string:
		return "str"
	case bool:
		return "bool"
	case nil:
		return "NoneType"
	case []any:
		return "list"
	case map[string]any:
		return "dict"
	case int, int64:
		return "int"
	case float64:
		return "float"
	default:
		if numberLikeIntegral(value) {
			return "int"
		}
		if numberLike(value) {
			return "float"
		}
		return "object"
	}
}
