package config

import (
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"HOST",
		"PORT",
		"METRICS_ADDR",
		"MERCURYSTREAM_LOG_LEVEL",
		"MERCURYSTREAM_LOG_PATH",
		"MERCURYSTREAM_LOG_MAX_SIZE_MB",
		"MERCURYSTREAM_LOG_MAX_BACKUPS",
		"MERCURYSTREAM_LOG_MAX_AGE_DAYS",
		"MERCURYSTREAM_LOG_COMPRESS",
		"FORENSICS",
		"RECORD",
		"RECORD_FILE",
		"DRIFT_SAMPLE_FILE",
		"INCIDENTS_DIR",
		"DUPLICATE_LRU_MAX",
		"LATENCY_BUFFER_SIZE",
		"LATENCY_SPIKE_THRESHOLD_MS",
		"LATENCY_SPIKE_CONSECUTIVE",
		"FLIGHT_PRE_EVENTS",
		"FLIGHT_POST_EVENTS",
		"FLIGHT_COOLDOWN_S",
		"INCIDENT_RETENTION_MAX",
		"INCIDENT_RETENTION_MAX_AGE",
		"INCIDENT_RETENTION_SWEEP_INTERVAL",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Host != DefaultHost {
		t.Fatalf("expected default host %q, got %q", DefaultHost, cfg.Host)
	}
	if cfg.Port != DefaultPort {
		t.Fatalf("expected default port %d, got %d", DefaultPort, cfg.Port)
	}
	if cfg.MetricsAddr != DefaultMetricsAddr {
		t.Fatalf("expected default metrics addr %q, got %q", DefaultMetricsAddr, cfg.MetricsAddr)
	}
	if cfg.MaxFrameLen != DefaultMaxFrameLen {
		t.Fatalf("expected default max frame len %d, got %d", DefaultMaxFrameLen, cfg.MaxFrameLen)
	}
	if !cfg.Forensics {
		t.Fatal("expected forensics enabled by default")
	}
	if cfg.Record {
		t.Fatal("expected recording disabled by default")
	}
	if cfg.RecordFile != DefaultRecordFile {
		t.Fatalf("expected default record file %q, got %q", DefaultRecordFile, cfg.RecordFile)
	}
	if cfg.DriftSampleFile != DefaultDriftSampleFile {
		t.Fatalf("expected default drift sample file %q, got %q", DefaultDriftSampleFile, cfg.DriftSampleFile)
	}
	if cfg.IncidentsDir != DefaultIncidentsDir {
		t.Fatalf("expected default incidents dir %q, got %q", DefaultIncidentsDir, cfg.IncidentsDir)
	}
	if cfg.DuplicateLRUMax != DefaultDuplicateLRUMax {
		t.Fatalf("expected default duplicate lru max %d, got %d", DefaultDuplicateLRUMax, cfg.DuplicateLRUMax)
	}
	if cfg.LatencyBufferSize != DefaultLatencyBufferSize {
		t.Fatalf("expected default latency buffer size %d, got %d", DefaultLatencyBufferSize, cfg.LatencyBufferSize)
	}
	if cfg.LatencySpikeThresholdMS != DefaultLatencySpikeThresholdMS {
		t.Fatalf("expected default latency spike threshold %d, got %d", DefaultLatencySpikeThresholdMS, cfg.LatencySpikeThresholdMS)
	}
	if cfg.LatencySpikeConsecutive != DefaultLatencySpikeConsecutive {
		t.Fatalf("expected default latency spike consecutive %d, got %d", DefaultLatencySpikeConsecutive, cfg.LatencySpikeConsecutive)
	}
	if cfg.FlightPreEvents != DefaultFlightPreEvents {
		t.Fatalf("expected default flight pre events %d, got %d", DefaultFlightPreEvents, cfg.FlightPreEvents)
	}
	if cfg.FlightPostEvents != DefaultFlightPostEvents {
		t.Fatalf("expected default flight post events %d, got %d", DefaultFlightPostEvents, cfg.FlightPostEvents)
	}
	if cfg.FlightCooldown != DefaultFlightCooldownS*time.Second {
		t.Fatalf("expected default flight cooldown %ds, got %v", DefaultFlightCooldownS, cfg.FlightCooldown)
	}
	if cfg.IncidentRetentionMax != DefaultIncidentRetentionMax {
		t.Fatalf("expected default incident retention max %d, got %d", DefaultIncidentRetentionMax, cfg.IncidentRetentionMax)
	}
	if cfg.Logging.Level != DefaultLogLevel {
		t.Fatalf("expected default log level %q, got %q", DefaultLogLevel, cfg.Logging.Level)
	}
	if cfg.Logging.Path != DefaultLogPath {
		t.Fatalf("expected default log path %q, got %q", DefaultLogPath, cfg.Logging.Path)
	}
	if cfg.Logging.Compress != DefaultLogCompress {
		t.Fatalf("expected default log compress %t, got %t", DefaultLogCompress, cfg.Logging.Compress)
	}
	if cfg.Addr() != "0.0.0.0:9001" {
		t.Fatalf("unexpected Addr(): %q", cfg.Addr())
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)

	t.Setenv("HOST", "127.0.0.1")
	t.Setenv("PORT", "9100")
	t.Setenv("METRICS_ADDR", "127.0.0.1:9190")
	t.Setenv("FORENSICS", "false")
	t.Setenv("RECORD", "true")
	t.Setenv("RECORD_FILE", "/tmp/raw.jsonl")
	t.Setenv("DRIFT_SAMPLE_FILE", "/tmp/drift.jsonl")
	t.Setenv("INCIDENTS_DIR", "/tmp/incidents")
	t.Setenv("DUPLICATE_LRU_MAX", "500")
	t.Setenv("LATENCY_BUFFER_SIZE", "250")
	t.Setenv("LATENCY_SPIKE_THRESHOLD_MS", "750")
	t.Setenv("LATENCY_SPIKE_CONSECUTIVE", "5")
	t.Setenv("FLIGHT_PRE_EVENTS", "50")
	t.Setenv("FLIGHT_POST_EVENTS", "75")
	t.Setenv("FLIGHT_COOLDOWN_S", "10")
	t.Setenv("INCIDENT_RETENTION_MAX", "20")
	t.Setenv("INCIDENT_RETENTION_MAX_AGE", "48h")
	t.Setenv("INCIDENT_RETENTION_SWEEP_INTERVAL", "5m")
	t.Setenv("MERCURYSTREAM_LOG_LEVEL", "debug")
	t.Setenv("MERCURYSTREAM_LOG_PATH", "/var/log/processor.log")
	t.Setenv("MERCURYSTREAM_LOG_MAX_SIZE_MB", "512")
	t.Setenv("MERCURYSTREAM_LOG_MAX_BACKUPS", "4")
	t.Setenv("MERCURYSTREAM_LOG_MAX_AGE_DAYS", "2")
	t.Setenv("MERCURYSTREAM_LOG_COMPRESS", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Host != "127.0.0.1" {
		t.Fatalf("unexpected host: %q", cfg.Host)
	}
	if cfg.Port != 9100 {
		t.Fatalf("unexpected port: %d", cfg.Port)
	}
	if cfg.MetricsAddr != "127.0.0.1:9190" {
		t.Fatalf("unexpected metrics address: %q", cfg.MetricsAddr)
	}
	if cfg.Forensics {
		t.Fatal("expected forensics disabled")
	}
	if !cfg.Record {
		t.Fatal("expected recording enabled")
	}
	if cfg.RecordFile != "/tmp/raw.jsonl" {
		t.Fatalf("unexpected record file: %q", cfg.RecordFile)
	}
	if cfg.DriftSampleFile != "/tmp/drift.jsonl" {
		t.Fatalf("unexpected drift sample file: %q", cfg.DriftSampleFile)
	}
	if cfg.IncidentsDir != "/tmp/incidents" {
		t.Fatalf("unexpected incidents dir: %q", cfg.IncidentsDir)
	}
	if cfg.DuplicateLRUMax != 500 {
		t.Fatalf("expected overridden duplicate lru max, got %d", cfg.DuplicateLRUMax)
	}
	if cfg.LatencyBufferSize != 250 {
		t.Fatalf("expected overridden latency buffer size, got %d", cfg.LatencyBufferSize)
	}
	if cfg.LatencySpikeThresholdMS != 750 {
		t.Fatalf("expected overridden latency spike threshold, got %d", cfg.LatencySpikeThresholdMS)
	}
	if cfg.LatencySpikeConsecutive != 5 {
		t.Fatalf("expected overridden latency spike consecutive, got %d", cfg.LatencySpikeConsecutive)
	}
	if cfg.FlightPreEvents != 50 {
		t.Fatalf("expected overridden flight pre events, got %d", cfg.FlightPreEvents)
	}
	if cfg.FlightPostEvents != 75 {
		t.Fatalf("expected overridden flight post events, got %d", cfg.FlightPostEvents)
	}
	if cfg.FlightCooldown != 10*time.Second {
		t.Fatalf("expected overridden flight cooldown, got %v", cfg.FlightCooldown)
	}
	if cfg.IncidentRetentionMax != 20 {
		t.Fatalf("expected overridden retention max, got %d", cfg.IncidentRetentionMax)
	}
	if cfg.IncidentRetentionMaxAge != 48*time.Hour {
		t.Fatalf("expected overridden retention max age, got %v", cfg.IncidentRetentionMaxAge)
	}
	if cfg.IncidentRetentionSweepInterval != 5*time.Minute {
		t.Fatalf("expected overridden retention sweep interval, got %v", cfg.IncidentRetentionSweepInterval)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("expected overridden log level debug, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Path != "/var/log/processor.log" {
		t.Fatalf("unexpected log path %q", cfg.Logging.Path)
	}
	if cfg.Logging.MaxSizeMB != 512 {
		t.Fatalf("expected log max size 512, got %d", cfg.Logging.MaxSizeMB)
	}
	if cfg.Logging.MaxBackups != 4 {
		t.Fatalf("expected log max backups 4, got %d", cfg.Logging.MaxBackups)
	}
	if cfg.Logging.MaxAgeDays != 2 {
		t.Fatalf("expected log max age 2, got %d", cfg.Logging.MaxAgeDays)
	}
	if cfg.Logging.Compress {
		t.Fatal("expected log compression disabled")
	}
	if cfg.Addr() != "127.0.0.1:9100" {
		t.Fatalf("unexpected Addr(): %q", cfg.Addr())
	}
}

func TestLoadReturnsValidationErrors(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "not-a-port")
	t.Setenv("FORENSICS", "notabool")
	t.Setenv("DUPLICATE_LRU_MAX", "-5")
	t.Setenv("LATENCY_BUFFER_SIZE", "0")
	t.Setenv("LATENCY_SPIKE_THRESHOLD_MS", "abc")
	t.Setenv("FLIGHT_COOLDOWN_S", "-1")
	t.Setenv("MERCURYSTREAM_LOG_MAX_SIZE_MB", "-1")
	t.Setenv("MERCURYSTREAM_LOG_COMPRESS", "notabool")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error from invalid configuration, got nil")
	}

	for _, want := range []string{
		"PORT",
		"FORENSICS",
		"DUPLICATE_LRU_MAX",
		"LATENCY_BUFFER_SIZE",
		"LATENCY_SPIKE_THRESHOLD_MS",
		"FLIGHT_COOLDOWN_S",
		"MERCURYSTREAM_LOG_MAX_SIZE_MB",
		"MERCURYSTREAM_LOG_COMPRESS",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected error to mention %s, got %q", want, err.Error())
		}
	}
}

func TestLoadAllowsDisablingIncidentRetentionCount(t *testing.T) {
	clearEnv(t)
	t.Setenv("INCIDENT_RETENTION_MAX", "0")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.IncidentRetentionMax != 0 {
		t.Fatalf("expected zero to disable the retention count limit, got %d", cfg.IncidentRetentionMax)
	}
}
