package recorder

import (
	"bufio"
	"os"
	"path/filepath"
	"testing"

	"mercurystream/processor/internal/event"
)

func TestRecorderWritesEventsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "events.jsonl")
	r, err := New(path, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for i := 0; i < 5; i++ {
		r.Record(event.Event{"type": "match", "i": i})
	}
	r.Close()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open recorded file: %v", err)
	}
	defer f.Close()

	lines := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines++
	}
	if lines != 5 {
		t.Fatalf("expected 5 recorded lines, got %d", lines)
	}
}

func TestRecorderNilIsNoOp(t *testing.T) {
	var r *Recorder
	r.Record(event.Event{"type": "match"})
	r.Close()
}
