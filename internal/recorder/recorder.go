// Package recorder writes the raw, unmodified event stream to disk when
// enabled, independent of any forensics detection.
package recorder

import (
	"bufio"
	"os"
	"path/filepath"
	"time"

	"mercurystream/processor/internal/event"
	"mercurystream/processor/internal/logging"
)

const (
	queueLen    = 10_000
	flushEvery  = 200
	flushPeriod = time.Second
)

// Recorder appends every submitted event to a JSON-lines file on a
// background goroutine. Submission is non-blocking: once the queue is
// full, further events are dropped (logged once per drop).
type Recorder struct {
	queue chan event.Event
	done  chan struct{}
	log   *logging.Logger
}

// New opens path for append, creating its parent directory if needed, and
// starts the background writer goroutine.
func New(path string, log *logging.Logger) (*Recorder, error) {
	if log == nil {
		log = logging.L()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	r := &Recorder{
		queue: make(chan event.Event, queueLen),
		done:  make(chan struct{}),
		log:   log,
	}
	go r.run(f)
	log.Debug("recorder started", logging.String("path", path))
	return r, nil
}

// Record enqueues evt for writing. Returns immediately; drops the event if
// the queue is full.
func (r *Recorder) Record(evt event.Event) {
	if r == nil {
		return
	}
	select {
	case r.queue <- evt:
	default:
		r.log.Warn("recorder queue full, dropping event")
	}
}

// Close stops accepting new events and waits for the writer goroutine to
// flush and close the underlying file.
func (r *Recorder) Close() {
	if r == nil {
		return
	}
	close(r.queue)
	<-r.done
}

func (r *Recorder) run(f *os.File) {
	defer close(r.done)
	defer f.Close()
	w := bufio.NewWriterSize(f, 1<<20)

	lastFlush := time.Now()
	pending := 0
	for evt := range r.queue {
		line, err := evt.Encode()
		if err != nil {
			continue
		}
		w.Write(line)
		w.WriteByte('\n')
		pending++

		now := time.Now()
		if pending >= flushEvery || now.Sub(lastFlush) >= flushPeriod {
			w.Flush()
			pending = 0
			lastFlush = now
		}
	}
	w.Flush()
}
