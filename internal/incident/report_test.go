package incident

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeReportBundle(t *testing.T, dir string, meta Meta, lines []string) string {
	t.Helper()
	bundleDir := filepath.Join(dir, meta.IncidentID)
	if err := os.MkdirAll(bundleDir, 0o755); err != nil {
		t.Fatalf("mkdir bundle: %v", err)
	}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		t.Fatalf("marshal meta: %v", err)
	}
	if err := os.WriteFile(filepath.Join(bundleDir, "meta.json"), metaBytes, 0o644); err != nil {
		t.Fatalf("write meta.json: %v", err)
	}
	if err := os.WriteFile(filepath.Join(bundleDir, "events.jsonl"), []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("write events.jsonl: %v", err)
	}
	return bundleDir
}

func TestBuildReportDetectsDuplicatesAndGaps(t *testing.T) {
	dir := t.TempDir()
	meta := Meta{IncidentID: "20260101_000000_aaaaaaaa", Reason: "duplicate_detected", Timestamp: "2026-01-01T00:00:00Z", PreEvents: 3, PostEvents: 1, Total: 4}
	lines := []string{
		`{"product_id":"BTC-USD","sequence":1,"trade_id":1,"time":"2026-01-01T00:00:01Z","ingest_ts_ms":1000,"recv_ts_ms":1010}`,
		`{"product_id":"BTC-USD","sequence":2,"trade_id":2,"time":"2026-01-01T00:00:02Z","ingest_ts_ms":2000,"recv_ts_ms":2020}`,
		`{"product_id":"BTC-USD","sequence":4,"trade_id":3,"time":"2026-01-01T00:00:04Z","ingest_ts_ms":4000,"recv_ts_ms":4015}`,
		`{"product_id":"BTC-USD","sequence":4,"trade_id":3,"time":"2026-01-01T00:00:04Z","ingest_ts_ms":4000,"recv_ts_ms":4030}`,
	}
	bundleDir := writeReportBundle(t, dir, meta, lines)

	report, err := BuildReport(bundleDir)
	if err != nil {
		t.Fatalf("BuildReport: %v", err)
	}

	if len(report.DuplicateTradeIDs) != 1 {
		t.Fatalf("expected 1 duplicate trade id, got %v", report.DuplicateTradeIDs)
	}
	if len(report.SequenceGaps) != 1 || report.SequenceGaps[0].From != 2 || report.SequenceGaps[0].To != 4 {
		t.Fatalf("expected gap 2->4, got %+v", report.SequenceGaps)
	}
	if len(report.AffectedSymbols) != 1 || report.AffectedSymbols[0] != "BTC-USD" {
		t.Fatalf("expected affected symbol BTC-USD, got %v", report.AffectedSymbols)
	}
	if report.LatencyMinMS != 10 {
		t.Fatalf("expected min latency 10ms, got %d", report.LatencyMinMS)
	}

	md := report.RenderMarkdown()
	if !strings.Contains(md, "Incident Report: 20260101_000000_aaaaaaaa") {
		t.Fatalf("expected rendered report to contain incident id, got:\n%s", md)
	}
	if !strings.Contains(md, "Duplicate trade_id detected") {
		t.Fatalf("expected duplicate cause line, got:\n%s", md)
	}
}

func TestBuildReportHandlesEmptyBundle(t *testing.T) {
	dir := t.TempDir()
	meta := Meta{IncidentID: "empty", Reason: "latency_spike_p99=150ms", Timestamp: "2026-01-01T00:00:00Z"}
	bundleDir := writeReportBundle(t, dir, meta, nil)

	report, err := BuildReport(bundleDir)
	if err != nil {
		t.Fatalf("BuildReport: %v", err)
	}
	md := report.RenderMarkdown()
	if !strings.Contains(md, "Latency spike detected") {
		t.Fatalf("expected latency cause line, got:\n%s", md)
	}
}
