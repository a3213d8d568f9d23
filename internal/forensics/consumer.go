package forensics

import (
	"context"
	"fmt"
	"time"

	"mercurystream/processor/internal/bus"
	"mercurystream/processor/internal/event"
	"mercurystream/processor/internal/logging"
	"mercurystream/processor/internal/metrics"
)

// Counters tallies the forensics consumer's lifetime activity, logged
// periodically and available for inspection in tests.
type Counters struct {
	Processed   int64
	Drift       int64
	Duplicates  int64
	OutOfOrder  int64
	Gaps        int64
	Spikes      int64
	Incidents   int64
}

// ConsumerConfig bundles the tunables the forensics consumer needs to build
// its detectors.
type ConsumerConfig struct {
	DuplicateLRUMax         int
	LatencyBufferSize       int
	LatencySpikeThresholdMS int
	LatencySpikeConsecutive int
	DriftSampleFile         string
	DriftSampleQueueLen     int
	IncidentsDir            string
	FlightPreEvents         int
	FlightPostEvents        int
	FlightCooldown          time.Duration
	QueueLen                int
	PrintEvery              time.Duration
}

// Consumer is the forensics pipeline: it subscribes to the bus, runs every
// event through the drift, integrity, and latency detectors, feeds the
// flight recorder, and periodically logs a summary line.
type Consumer struct {
	cfg     ConsumerConfig
	log     *logging.Logger
	metrics *metrics.Metrics

	integrity *IntegrityTracker
	latency   *LatencySpikeDetector
	drift     *DriftSampleWriter
	recorder  *FlightRecorder

	counters Counters
}

// NewConsumer constructs the forensics pipeline's detectors. The drift
// sample writer opens cfg.DriftSampleFile for append; callers should ensure
// its parent directory exists.
func NewConsumer(cfg ConsumerConfig, log *logging.Logger, m *metrics.Metrics) (*Consumer, error) {
	if log == nil {
		log = logging.L()
	}
	driftWriter, err := NewDriftSampleWriter(cfg.DriftSampleFile, cfg.DriftSampleQueueLen, log)
	if err != nil {
		return nil, fmt.Errorf("open drift sample file: %w", err)
	}
	return &Consumer{
		cfg:       cfg,
		log:       log,
		metrics:   m,
		integrity: NewIntegrityTracker(cfg.DuplicateLRUMax),
		latency:   NewLatencySpikeDetector(cfg.LatencyBufferSize, cfg.LatencySpikeThresholdMS, cfg.LatencySpikeConsecutive),
		drift:     driftWriter,
		recorder:  NewFlightRecorder(cfg.IncidentsDir, cfg.FlightPreEvents, cfg.FlightPostEvents, cfg.FlightCooldown, log),
	}, nil
}

// Counters returns a snapshot of the consumer's lifetime tallies.
func (c *Consumer) Counters() Counters {
	return c.counters
}

// Run subscribes to b and processes events until ctx is canceled.
func (c *Consumer) Run(ctx context.Context, b *bus.Bus) {
	defer c.drift.Close()

	queueLen := c.cfg.QueueLen
	if queueLen <= 0 {
		queueLen = 5000
	}
	q := b.Subscribe(queueLen)

	printEvery := c.cfg.PrintEvery
	if printEvery <= 0 {
		printEvery = 10 * time.Second
	}
	ticker := time.NewTicker(printEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-q:
			if !ok {
				return
			}
			c.process(evt)
		case <-ticker.C:
			c.logSummary()
		}
	}
}

// process runs one event through the full forensics pipeline: the metrics
// event record, then the flight recorder (always, before any detector), then
// drift, integrity, and latency, triggering
// incident captures on the anomalies that warrant one.
func (c *Consumer) process(evt event.Event) {
	c.counters.Processed++

	ingestTS, haveIngest := evt.IngestTSMillis()
	recvTS, haveRecv := evt.RecvTSMillis()
	var latencyMS int64
	haveLatency := haveIngest && haveRecv
	if haveLatency {
		latencyMS = recvTS - ingestTS
	}
	c.metrics.RecordEvent(latencyMS, haveLatency)

	c.recorder.Record(evt)

	driftResult := CheckDrift(evt)
	if driftResult.IsDrift {
		c.counters.Drift++
		c.drift.Submit(evt, driftResult)
		c.metrics.RecordAnomaly(metrics.AnomalyDrift)
	}

	isDup, isOOO, isGap := c.integrity.Check(evt)
	if isDup {
		c.counters.Duplicates++
		c.metrics.RecordAnomaly(metrics.AnomalyDuplicate)
	}
	if isOOO {
		c.counters.OutOfOrder++
		c.metrics.RecordAnomaly(metrics.AnomalyOutOfOrder)
	}
	if isGap {
		c.counters.Gaps++
		c.metrics.RecordAnomaly(metrics.AnomalyGap)
	}

	if haveLatency {
		if c.latency.AddSample(ingestTS, recvTS) {
			c.counters.Spikes++
			c.metrics.RecordAnomaly(metrics.AnomalyLatencySpike)
			c.triggerIncident(fmt.Sprintf("latency_spike_p99=%dms", c.latency.GetP99()))
		}
	}

	if isDup {
		c.triggerIncident("duplicate_detected")
	}
	if isGap {
		c.triggerIncident("sequence_gap")
	}
}

func (c *Consumer) triggerIncident(reason string) {
	if c.recorder.Trigger(reason) {
		c.counters.Incidents++
		c.metrics.RecordIncident()
	}
}

func (c *Consumer) logSummary() {
	c.log.Info("forensics summary",
		logging.Int64("processed", c.counters.Processed),
		logging.Int64("drift", c.counters.Drift),
		logging.Int64("duplicates", c.counters.Duplicates),
		logging.Int64("out_of_order", c.counters.OutOfOrder),
		logging.Int64("gaps", c.counters.Gaps),
		logging.Int64("spikes", c.counters.Spikes),
		logging.Int64("incidents", c.counters.Incidents),
	)
}
