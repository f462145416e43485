package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/storm-data-nids/internal/nids"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	InputDir     string
	OutputDir    string
	ReportDir    string
	PollInterval time.Duration
	BatchSize    int
	Workers      int

	LeadingHeader  nids.LeadingHeaderMode
	Resample       bool
	GridSpacingKm  float64
	MaxRangeKm     float64
	StopAfterTilt  int
	PendingTimeout time.Duration
	FamiliesFile   string

	KafkaEnabled      bool
	KafkaBrokers      []string
	KafkaFeatureTopic string
	KafkaVolumeTopic  string

	NATSURL     string
	NATSSubject string

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	LogFile         string
	LogMaxSizeMB    int
	LogMaxBackups   int
	LogMaxAgeDays   int
	ShutdownTimeout time.Duration

	// Mapbox geocoding configuration.
	MapboxToken     string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int
	MapboxCacheTTL  time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	pollInterval, err := parsePositiveDuration("POLL_INTERVAL", "5s")
	if err != nil {
		return nil, err
	}
	pendingTimeout, err := parsePositiveDuration("PENDING_TIMEOUT", "10m")
	if err != nil {
		return nil, err
	}
	mapboxTimeout, err := parsePositiveDuration("MAPBOX_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}
	mapboxCacheTTL, err := parsePositiveDuration("MAPBOX_CACHE_TTL", "24h")
	if err != nil {
		return nil, err
	}

	workers, err := parseInt("WORKERS", 4)
	if err != nil {
		return nil, err
	}
	if workers < 1 || workers > 64 {
		return nil, errors.New("invalid WORKERS: must be 1-64")
	}

	stopAfter, err := parseInt("STOP_AFTER_TILT", -1)
	if err != nil {
		return nil, err
	}

	spacing, err := parseNonNegativeFloat("GRID_SPACING_KM")
	if err != nil {
		return nil, err
	}
	maxRange, err := parseNonNegativeFloat("MAX_RANGE_KM")
	if err != nil {
		return nil, err
	}

	mode, err := nids.ParseLeadingHeaderMode(sharedcfg.EnvOrDefault("LEADING_HEADER", "auto"))
	if err != nil {
		return nil, fmt.Errorf("invalid LEADING_HEADER: %w", err)
	}

	mapboxToken := os.Getenv("MAPBOX_TOKEN")
	mapboxEnabled := mapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		mapboxEnabled = v == "true"
	}

	cfg := &Config{
		InputDir:     sharedcfg.EnvOrDefault("INPUT_DIR", "./data/nids"),
		OutputDir:    sharedcfg.EnvOrDefault("OUTPUT_DIR", "./data/volumes"),
		ReportDir:    os.Getenv("REPORT_DIR"),
		PollInterval: pollInterval,
		BatchSize:    batchSize,
		Workers:      workers,

		LeadingHeader:  mode,
		Resample:       sharedcfg.EnvOrDefault("RESAMPLE", "true") == "true",
		GridSpacingKm:  spacing,
		MaxRangeKm:     maxRange,
		StopAfterTilt:  stopAfter,
		PendingTimeout: pendingTimeout,
		FamiliesFile:   os.Getenv("VOLUME_FAMILIES_FILE"),

		KafkaEnabled:      os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers:      sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaFeatureTopic: sharedcfg.EnvOrDefault("KAFKA_FEATURE_TOPIC", "radar-point-features"),
		KafkaVolumeTopic:  sharedcfg.EnvOrDefault("KAFKA_VOLUME_TOPIC", "radar-volumes"),

		NATSURL:     os.Getenv("NATS_URL"),
		NATSSubject: sharedcfg.EnvOrDefault("NATS_SUBJECT", "radar.volumes"),

		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		LogFile:         os.Getenv("LOG_FILE"),
		LogMaxSizeMB:    parsePositiveIntOr("LOG_MAX_SIZE_MB", 100),
		LogMaxBackups:   parsePositiveIntOr("LOG_MAX_BACKUPS", 5),
		LogMaxAgeDays:   parsePositiveIntOr("LOG_MAX_AGE_DAYS", 28),
		ShutdownTimeout: shutdownTimeout,

		MapboxToken:     mapboxToken,
		MapboxEnabled:   mapboxEnabled,
		MapboxTimeout:   mapboxTimeout,
		MapboxCacheSize: parsePositiveIntOr("MAPBOX_CACHE_SIZE", 1000),
		MapboxCacheTTL:  mapboxCacheTTL,
	}

	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
		}
		if cfg.KafkaFeatureTopic == "" || cfg.KafkaVolumeTopic == "" {
			return nil, errors.New("KAFKA_FEATURE_TOPIC and KAFKA_VOLUME_TOPIC are required when KAFKA_ENABLED is true")
		}
	}
	if cfg.NATSURL != "" && cfg.NATSSubject == "" {
		return nil, errors.New("NATS_SUBJECT is required when NATS_URL is set")
	}
	if cfg.MapboxEnabled && cfg.MapboxToken == "" {
		return nil, errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}

	return cfg, nil
}

// RemapOptions returns the resampling options selected by GRID_SPACING_KM
// and MAX_RANGE_KM.
func (c *Config) RemapOptions() nids.RemapOptions {
	return nids.RemapOptions{Spacing: c.GridSpacingKm, MaxRange: c.MaxRangeKm}
}

// DecodeOptions returns the decoder options selected by LEADING_HEADER.
func (c *Config) DecodeOptions() nids.Options {
	return nids.Options{LeadingHeader: c.LeadingHeader}
}

func parsePositiveDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive duration", key)
	}
	return d, nil
}

func parseInt(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: must be an integer", key)
	}
	return n, nil
}

func parseNonNegativeFloat(key string) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return 0, fmt.Errorf("invalid %s: must be a non-negative number", key)
	}
	return f, nil
}

func parsePositiveIntOr(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
