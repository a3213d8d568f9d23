package forensics

import (
	"bufio"
	"encoding/json"
	"os"
	"time"

	"mercurystream/processor/internal/event"
	"mercurystream/processor/internal/logging"
)

// driftSample is a single line of the drift-sample JSON-lines file.
type driftSample struct {
	Timestamp      string            `json:"ts"`
	Event          event.Event       `json:"event"`
	MissingKeys    []string          `json:"missing_keys"`
	TypeMismatches map[string]string `json:"type_mismatches"`
	UnexpectedKeys []string          `json:"unexpected_keys"`
}

// DriftSampleWriter appends drift diagnoses to a JSON-lines file on a
// dedicated background goroutine so file I/O never blocks the forensics
// consumer's publish-side processing. Submission is non-blocking: once the
// outbound queue is full, further samples are silently dropped.
type DriftSampleWriter struct {
	queue chan driftSample
	done  chan struct{}
	log   *logging.Logger
}

// NewDriftSampleWriter opens path for append and starts the background
// writer goroutine. queueLen bounds the number of samples buffered before
// submissions start being dropped.
func NewDriftSampleWriter(path string, queueLen int, log *logging.Logger) (*DriftSampleWriter, error) {
	if log == nil {
		log = logging.L()
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	if queueLen <= 0 {
		queueLen = 1000
	}
	w := &DriftSampleWriter{
		queue: make(chan driftSample, queueLen),
		done:  make(chan struct{}),
		log:   log,
	}
	go w.run(f)
	return w, nil
}

// Submit enqueues a drift diagnosis for the event. Returns immediately;
// drops the sample silently if the outbound queue is full.
func (w *DriftSampleWriter) Submit(evt event.Event, result DriftResult) {
	if w == nil {
		return
	}
	sample := driftSample{
		Timestamp:      time.Now().UTC().Format(time.RFC3339Nano),
		Event:          evt,
		MissingKeys:    result.MissingKeys,
		TypeMismatches: result.TypeMismatches,
		UnexpectedKeys: result.UnexpectedKeys,
	}
	select {
	case w.queue <- sample:
	default:
		// Outbound queue full: drop silently per the bounded-sink contract.
	}
}

// Close stops accepting new samples and waits for the writer goroutine to
// flush and close the underlying file.
func (w *DriftSampleWriter) Close() {
	if w == nil {
		return
	}
	close(w.queue)
	<-w.done
}

func (w *DriftSampleWriter) run(f *os.File) {
	defer close(w.done)
	defer f.Close()
	writer := bufio.NewWriter(f)
	for sample := range w.queue {
		line, err := json.Marshal(sample)
		if err != nil {
			w.log.Warn("drift sample marshal failed", logging.Error(err))
			continue
		}
		line = append(line, '\n')
		if _, err := writer.Write(line); err != nil {
			w.log.Warn("drift sample write failed", logging.Error(err))
			continue
		}
		if err := writer.Flush(); err != nil {
			w.log.Warn("drift sample flush failed", logging.Error(err))
		}
	}
	_ = writer.Flush()
}
