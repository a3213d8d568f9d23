package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultHost is the default bind address for the ingest listener.
	DefaultHost = "0.0.0.0"
	// DefaultPort is the default bind port for the ingest listener.
	DefaultPort = 9001
	// DefaultMetricsAddr is the default address for the Prometheus exposition endpoint.
	DefaultMetricsAddr = ":9090"
	// DefaultMaxFrameLen bounds a single decoded frame payload.
	DefaultMaxFrameLen = 1_000_000

	// DefaultLogLevel controls verbosity for processor logs.
	DefaultLogLevel = "info"
	// DefaultLogPath is where structured logs are written.
	DefaultLogPath = "processor.log"
	// DefaultLogMaxSizeMB caps the size of a single log file before rotation.
	DefaultLogMaxSizeMB = 100
	// DefaultLogMaxBackups limits retained rotated log files.
	DefaultLogMaxBackups = 10
	// DefaultLogMaxAgeDays controls how long rotated log files are kept on disk.
	DefaultLogMaxAgeDays = 7
	// DefaultLogCompress toggles gzip compression for rotated log files.
	DefaultLogCompress = true

	// DefaultRecordFile is the default raw-event capture target when recording is enabled.
	DefaultRecordFile = "data/btcusd.jsonl"
	// DefaultDriftSampleFile is the default drift-diagnosis append target.
	DefaultDriftSampleFile = "data/drift_samples.jsonl"
	// DefaultIncidentsDir is the default incident bundle root.
	DefaultIncidentsDir = "data/incidents"

	// DefaultDuplicateLRUMax bounds the per-symbol duplicate trade-id set.
	DefaultDuplicateLRUMax = 50_000
	// DefaultLatencyBufferSize bounds the rolling latency sample window.
	DefaultLatencyBufferSize = 3_000
	// DefaultLatencySpikeThresholdMS is the p99 breach threshold.
	DefaultLatencySpikeThresholdMS = 100
	// DefaultLatencySpikeConsecutive is how many consecutive breaches confirm a spike.
	DefaultLatencySpikeConsecutive = 2

	// DefaultFlightPreEvents bounds the pre-trigger ring buffer.
	DefaultFlightPreEvents = 5_000
	// DefaultFlightPostEvents bounds the post-trigger capture buffer.
	DefaultFlightPostEvents = 2_000
	// DefaultFlightCooldownS is the minimum number of seconds between two flight-recorder triggers.
	DefaultFlightCooldownS = 60

	// DefaultDriftSampleQueueLen bounds the async drift-sample sink queue.
	DefaultDriftSampleQueueLen = 1_000
	// DefaultRecorderQueueLen bounds the async raw-event recorder queue.
	DefaultRecorderQueueLen = 10_000

	// DefaultIncidentRetentionMax bounds how many incident bundles are retained. Zero disables the limit.
	DefaultIncidentRetentionMax = 200
	// DefaultIncidentRetentionMaxAge bounds how long an incident bundle is retained. Zero disables the limit.
	DefaultIncidentRetentionMaxAge = 7 * 24 * time.Hour
	// DefaultIncidentRetentionSweepInterval controls the retention sweep cadence.
	DefaultIncidentRetentionSweepInterval = time.Hour
)

// Config captures all runtime tunables for the processor service. It is read once at
// startup from the environment and then passed explicitly to every component that
// needs it; nothing in the hot path re-reads os.Getenv.
type Config struct {
	Host        string
	Port        int
	MetricsAddr string
	MaxFrameLen int

	Logging LoggingConfig

	Forensics bool

	Record              bool
	RecordFile          string
	RecorderQueueLen    int
	DriftSampleFile     string
	DriftSampleQueueLen int
	IncidentsDir        string

	DuplicateLRUMax int

	LatencyBufferSize       int
	LatencySpikeThresholdMS int
	LatencySpikeConsecutive int

	FlightPreEvents  int
	FlightPostEvents int
	FlightCooldown   time.Duration

	IncidentRetentionMax           int
	IncidentRetentionMaxAge        time.Duration
	IncidentRetentionSweepInterval time.Duration
}

// Addr returns the Host/Port pair joined for use with net.Listen.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// LoggingConfig captures structured logging configuration options.
type LoggingConfig struct {
	Level      string
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Load reads the processor configuration from environment variables, applying sane
// defaults and returning descriptive errors for invalid overrides.
func Load() (*Config, error) {
	cfg := &Config{
		Host:        getString("HOST", DefaultHost),
		Port:        DefaultPort,
		MetricsAddr: getString("METRICS_ADDR", DefaultMetricsAddr),
		MaxFrameLen: DefaultMaxFrameLen,

		Logging: LoggingConfig{
			Level:      getString("MERCURYSTREAM_LOG_LEVEL", DefaultLogLevel),
			Path:       getString("MERCURYSTREAM_LOG_PATH", DefaultLogPath),
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
			MaxAgeDays: DefaultLogMaxAgeDays,
			Compress:   DefaultLogCompress,
		},

		Forensics: true,

		RecordFile:          getString("RECORD_FILE", DefaultRecordFile),
		RecorderQueueLen:    DefaultRecorderQueueLen,
		DriftSampleFile:     getString("DRIFT_SAMPLE_FILE", DefaultDriftSampleFile),
		DriftSampleQueueLen: DefaultDriftSampleQueueLen,
		IncidentsDir:        getString("INCIDENTS_DIR", DefaultIncidentsDir),

		DuplicateLRUMax: DefaultDuplicateLRUMax,

		LatencyBufferSize:       DefaultLatencyBufferSize,
		LatencySpikeThresholdMS: DefaultLatencySpikeThresholdMS,
		LatencySpikeConsecutive: DefaultLatencySpikeConsecutive,

		FlightPreEvents:  DefaultFlightPreEvents,
		FlightPostEvents: DefaultFlightPostEvents,
		FlightCooldown:   DefaultFlightCooldownS * time.Second,

		IncidentRetentionMax:           DefaultIncidentRetentionMax,
		IncidentRetentionMaxAge:        DefaultIncidentRetentionMaxAge,
		IncidentRetentionSweepInterval: DefaultIncidentRetentionSweepInterval,
	}

	var problems []string

	if raw := strings.TrimSpace(os.Getenv("PORT")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 || value > 65535 {
			problems = append(problems, fmt.Sprintf("PORT must be a valid TCP port, got %q", raw))
		} else {
			cfg.Port = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("FORENSICS")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("FORENSICS must be a boolean value, got %q", raw))
		} else {
			cfg.Forensics = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("RECORD")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("RECORD must be a boolean value, got %q", raw))
		} else {
			cfg.Record = value
		}
	}

	problems = append(problems, parsePositiveIntEnv("DUPLICATE_LRU_MAX", &cfg.DuplicateLRUMax)...)
	problems = append(problems, parsePositiveIntEnv("LATENCY_BUFFER_SIZE", &cfg.LatencyBufferSize)...)
	problems = append(problems, parsePositiveIntEnv("LATENCY_SPIKE_THRESHOLD_MS", &cfg.LatencySpikeThresholdMS)...)
	problems = append(problems, parsePositiveIntEnv("LATENCY_SPIKE_CONSECUTIVE", &cfg.LatencySpikeConsecutive)...)
	problems = append(problems, parsePositiveIntEnv("FLIGHT_PRE_EVENTS", &cfg.FlightPreEvents)...)
	problems = append(problems, parsePositiveIntEnv("FLIGHT_POST_EVENTS", &cfg.FlightPostEvents)...)
	problems = append(problems, parseNonNegativeIntEnv("INCIDENT_RETENTION_MAX", &cfg.IncidentRetentionMax)...)

	if raw := strings.TrimSpace(os.Getenv("FLIGHT_COOLDOWN_S")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("FLIGHT_COOLDOWN_S must be a positive integer, got %q", raw))
		} else {
			cfg.FlightCooldown = time.Duration(value) * time.Second
		}
	}

	if raw := strings.TrimSpace(os.Getenv("INCIDENT_RETENTION_MAX_AGE")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration < 0 {
			problems = append(problems, fmt.Sprintf("INCIDENT_RETENTION_MAX_AGE must be a non-negative duration, got %q", raw))
		} else {
			cfg.IncidentRetentionMaxAge = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("INCIDENT_RETENTION_SWEEP_INTERVAL")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("INCIDENT_RETENTION_SWEEP_INTERVAL must be a positive duration, got %q", raw))
		} else {
			cfg.IncidentRetentionSweepInterval = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("MERCURYSTREAM_LOG_MAX_SIZE_MB")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("MERCURYSTREAM_LOG_MAX_SIZE_MB must be a positive integer, got %q", raw))
		} else {
			cfg.Logging.MaxSizeMB = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("MERCURYSTREAM_LOG_MAX_BACKUPS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("MERCURYSTREAM_LOG_MAX_BACKUPS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxBackups = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("MERCURYSTREAM_LOG_MAX_AGE_DAYS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("MERCURYSTREAM_LOG_MAX_AGE_DAYS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxAgeDays = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("MERCURYSTREAM_LOG_COMPRESS")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("MERCURYSTREAM_LOG_COMPRESS must be a boolean value, got %q", raw))
		} else {
			cfg.Logging.Compress = value
		}
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf(strings.Join(problems, "; "))
	}

	return cfg, nil
}

func parsePositiveIntEnv(key string, dst *int) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return []string{fmt.Sprintf("%s must be a positive integer, got %q", key, raw)}
	}
	*dst = value
	return nil
}

func parseNonNegativeIntEnv(key string, dst *int) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return []string{fmt.Sprintf("%s must be a non-negative integer, got %q", key, raw)}
	}
	*dst = value
	return nil
}

func getString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}
