// Command processor is the MercuryStream Processor: it accepts framed
// events from the upstream ingester, fans them out to the analytic and
// forensics consumers, and exposes a Prometheus metrics endpoint.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"mercurystream/processor/internal/bus"
	"mercurystream/processor/internal/config"
	"mercurystream/processor/internal/consumers"
	"mercurystream/processor/internal/forensics"
	"mercurystream/processor/internal/incident"
	"mercurystream/processor/internal/ingest"
	"mercurystream/processor/internal/logging"
	"mercurystream/processor/internal/metrics"
	"mercurystream/processor/internal/recorder"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize structured logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	logging.ReplaceGlobals(logger)

	logger.Info("starting processor", logging.String("addr", cfg.Addr()))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	m := metrics.New()

	eventBus := bus.New()

	var rec *recorder.Recorder
	if cfg.Record {
		rec, err = recorder.New(cfg.RecordFile, logger.With(logging.String("component", "recorder")))
		if err != nil {
			logger.Fatal("failed to start recorder", logging.Error(err))
		}
		logger.Info("recording enabled", logging.String("path", cfg.RecordFile))
		defer rec.Close()
	}

	if dir := filepath.Dir(cfg.DriftSampleFile); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Fatal("failed to create drift sample directory", logging.Error(err))
		}
	}
	if err := os.MkdirAll(cfg.IncidentsDir, 0o755); err != nil {
		logger.Fatal("failed to create incidents directory", logging.Error(err))
	}

	// Analytic consumers run regardless of FORENSICS; they are independent
	// external collaborators over the same bus.
	vwap := &consumers.VWAP{Log: logger.With(logging.String("component", "vwap"))}
	health := &consumers.Health{Log: logger.With(logging.String("component", "health"))}
	volatility := &consumers.Volatility{Log: logger.With(logging.String("component", "volatility"))}
	volume := &consumers.Volume{Log: logger.With(logging.String("component", "volume"))}

	go vwap.Run(ctx, eventBus)
	go health.Run(ctx, eventBus)
	go volatility.Run(ctx, eventBus)
	go volume.Run(ctx, eventBus)

	if cfg.Forensics {
		forensicsCfg := forensics.ConsumerConfig{
			DuplicateLRUMax:         cfg.DuplicateLRUMax,
			LatencyBufferSize:       cfg.LatencyBufferSize,
			LatencySpikeThresholdMS: cfg.LatencySpikeThresholdMS,
			LatencySpikeConsecutive: cfg.LatencySpikeConsecutive,
			DriftSampleFile:         cfg.DriftSampleFile,
			DriftSampleQueueLen:     cfg.DriftSampleQueueLen,
			IncidentsDir:            cfg.IncidentsDir,
			FlightPreEvents:         cfg.FlightPreEvents,
			FlightPostEvents:        cfg.FlightPostEvents,
			FlightCooldown:          cfg.FlightCooldown,
		}
		forensicsConsumer, err := forensics.NewConsumer(forensicsCfg, logger.With(logging.String("component", "forensics")), m)
		if err != nil {
			logger.Fatal("failed to start forensics consumer", logging.Error(err))
		}
		logger.Info("forensics consumer enabled")
		go forensicsConsumer.Run(ctx, eventBus)
	}

	retentionCleaner := incident.NewCleaner(cfg.IncidentsDir, incident.RetentionPolicy{
		MaxBundles: cfg.IncidentRetentionMax,
		MaxAge:     cfg.IncidentRetentionMaxAge,
	}, logger.With(logging.String("component", "incident-retention")))
	go retentionCleaner.Run(ctx, cfg.IncidentRetentionSweepInterval)

	go queueDepthUpdater(ctx, eventBus, m)

	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: m.Handler()}
	go func() {
		logger.Info("metrics server listening", logging.String("addr", cfg.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server terminated", logging.Error(err))
		}
	}()

	server := &ingest.Server{
		Addr:        cfg.Addr(),
		MaxFrameLen: cfg.MaxFrameLen,
		Bus:         eventBus,
		Recorder:    rec,
		Log:         logger.With(logging.String("component", "ingest")),
	}

	serverErr := make(chan error, 1)
	go func() { serverErr <- server.ListenAndServe(ctx) }()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serverErr:
		if err != nil {
			logger.Error("ingest server terminated", logging.Error(err))
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = metricsServer.Shutdown(shutdownCtx)
}

// queueDepthUpdater periodically exports the bus's maximum subscriber queue
// depth and cumulative drop count so backpressure buildup is visible to
// Prometheus.
func queueDepthUpdater(ctx context.Context, b *bus.Bus, m *metrics.Metrics) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	var lastDrops int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.SetQueueDepth(b.MaxQueueDepth())
			drops := b.Drops()
			m.RecordDrops(drops - lastDrops)
			lastDrops = drops
		}
	}
}
