package forensics

import (
	"bufio"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"mercurystream/processor/internal/event"
	"mercurystream/processor/internal/logging"
)

// incidentMeta is the "meta.json" companion written alongside an incident
// bundle's "events.jsonl".
type incidentMeta struct {
	IncidentID string `json:"incident_id"`
	Reason     string `json:"reason"`
	Timestamp  string `json:"timestamp"`
	PreEvents  int    `json:"pre_events"`
	PostEvents int    `json:"post_events"`
	Total      int    `json:"total_events"`
}

// FlightRecorder is a black-box recorder: a ring buffer continuously holds
// the last PreEvents events, and when Trigger fires it snapshots the ring
// and captures PostEvents further events before writing the whole bundle to
// disk. A cooldown prevents incident spam from a sustained anomaly.
type FlightRecorder struct {
	mu sync.Mutex

	incidentsDir string
	preEvents    int
	postEvents   int
	cooldown     time.Duration
	log          *logging.Logger
	now          func() time.Time

	ring            []event.Event
	capturing       bool
	captureBuffer   []event.Event
	captureRemain   int
	lastIncidentAt  time.Time
	incidentReason  string
	incidentsCount  int
}

// NewFlightRecorder constructs a recorder that writes incident bundles under
// incidentsDir.
func NewFlightRecorder(incidentsDir string, preEvents, postEvents int, cooldown time.Duration, log *logging.Logger) *FlightRecorder {
	if log == nil {
		log = logging.L()
	}
	if preEvents < 0 {
		preEvents = 0
	}
	return &FlightRecorder{
		incidentsDir: incidentsDir,
		preEvents:    preEvents,
		postEvents:   postEvents,
		cooldown:     cooldown,
		log:          log,
		now:          time.Now,
		ring:         make([]event.Event, 0, preEvents),
	}
}

// Record feeds the ring buffer during normal operation, or the capture
// buffer while an incident is being captured. Always called, for every
// event, regardless of anomaly state.
func (r *FlightRecorder) Record(evt event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.capturing {
		r.captureBuffer = append(r.captureBuffer, evt)
		r.captureRemain--
		if r.captureRemain <= 0 {
			r.finalizeLocked()
		}
		return
	}

	r.ring = append(r.ring, evt)
	if r.preEvents > 0 && len(r.ring) > r.preEvents {
		r.ring = r.ring[len(r.ring)-r.preEvents:]
	}
}

// Trigger starts an incident capture for reason. Returns false if already
// capturing or still within the cooldown window since the last incident.
func (r *FlightRecorder) Trigger(reason string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if r.capturing {
		return false
	}
	if !r.lastIncidentAt.IsZero() && now.Sub(r.lastIncidentAt) < r.cooldown {
		return false
	}

	r.capturing = true
	r.captureBuffer = append([]event.Event(nil), r.ring...)
	r.captureRemain = r.postEvents
	r.incidentReason = reason
	r.lastIncidentAt = now
	r.log.Warn("incident triggered", logging.String("reason", reason))

	if r.captureRemain <= 0 {
		r.finalizeLocked()
	}
	return true
}

// IncidentsCaptured returns the number of incident bundles written so far.
func (r *FlightRecorder) IncidentsCaptured() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.incidentsCount
}

// finalizeLocked writes the captured bundle to disk and resets to normal
// operation. Must be called with r.mu held.
func (r *FlightRecorder) finalizeLocked() {
	now := r.now()
	incidentID := fmt.Sprintf("%s_%s", now.UTC().Format("20060102_150405"), randomHex(4))
	incidentDir := filepath.Join(r.incidentsDir, incidentID)

	if err := writeIncidentBundle(incidentDir, incidentID, r.incidentReason, now, r.captureBuffer, r.preEvents); err != nil {
		r.log.Error("failed to save incident", logging.String("incident_id", incidentID), logging.Error(err))
	} else {
		r.log.Info("incident saved", logging.String("incident_dir", incidentDir), logging.Int("events", len(r.captureBuffer)))
		r.incidentsCount++
	}

	// Reset to normal operation. The ring is cleared so the events already
	// folded into this bundle are not immediately recaptured by the next
	// incident.
	r.capturing = false
	r.captureBuffer = nil
	r.ring = r.ring[:0]
}

func writeIncidentBundle(dir, incidentID, reason string, ts time.Time, events []event.Event, preEvents int) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	eventsPath := filepath.Join(dir, "events.jsonl")
	f, err := os.Create(eventsPath)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	for _, evt := range events {
		line, err := evt.Encode()
		if err != nil {
			continue
		}
		w.Write(line)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	preCount := len(events)
	if preCount > preEvents {
		preCount = preEvents
	}
	meta := incidentMeta{
		IncidentID: incidentID,
		Reason:     reason,
		Timestamp:  ts.UTC().Format(time.RFC3339Nano),
		PreEvents:  preCount,
		PostEvents: len(events) - preCount,
		Total:      len(events),
	}
	metaBytes, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "meta.json"), metaBytes, 0o644)
}

func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "00000000"[:n*2]
	}
	return hex.EncodeToString(buf)
}
