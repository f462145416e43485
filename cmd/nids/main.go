package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/storm-data-nids/internal/adapter/filesystem"
	httpadapter "github.com/couchcryptid/storm-data-nids/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/storm-data-nids/internal/adapter/kafka"
	"github.com/couchcryptid/storm-data-nids/internal/adapter/mapbox"
	natsadapter "github.com/couchcryptid/storm-data-nids/internal/adapter/nats"
	"github.com/couchcryptid/storm-data-nids/internal/config"
	"github.com/couchcryptid/storm-data-nids/internal/domain"
	"github.com/couchcryptid/storm-data-nids/internal/observability"
	"github.com/couchcryptid/storm-data-nids/internal/pipeline"
	"github.com/couchcryptid/storm-data-nids/internal/volume"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	families, err := volume.LoadFamilies(cfg.FamiliesFile)
	if err != nil {
		logger.Error("failed to load volume families", "error", err)
		os.Exit(1)
	}

	clock := clockwork.NewRealClock()
	stages := pipeline.Stages{
		Extractor: filesystem.NewDirectorySource(cfg.InputDir, cfg.PollInterval, clock, logger),
		Volumes:   filesystem.NewVolumeWriter(cfg.OutputDir, logger),
	}
	if cfg.ReportDir != "" {
		stages.Reports = filesystem.NewReportWriter(cfg.ReportDir)
	}

	// Kafka carries point features and volume summaries (feature-flagged via KAFKA_ENABLED).
	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger)
		stages.Features = writer
		stages.Sinks = append(stages.Sinks, writer)
		logger.Info("kafka output enabled", "brokers", cfg.KafkaBrokers,
			"feature_topic", cfg.KafkaFeatureTopic, "volume_topic", cfg.KafkaVolumeTopic)
	}

	var notifier *natsadapter.Notifier
	if cfg.NATSURL != "" {
		notifier, err = natsadapter.Connect(cfg.NATSURL, cfg.NATSSubject, logger)
		if err != nil {
			logger.Error("failed to connect to nats", "error", err)
			os.Exit(1)
		}
		stages.Sinks = append(stages.Sinks, notifier)
	}

	// Initialize geocoder (feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN).
	var geocoder domain.Geocoder
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, metrics, logger)
		geocoder = mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, cfg.MapboxCacheTTL, metrics)
		metrics.GeocodeEnabled.Set(1)
		logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize,
			"cache_ttl", cfg.MapboxCacheTTL, "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("mapbox geocoding disabled")
	}
	stages.Geocoder = geocoder

	p := pipeline.New(stages, pipeline.Options{
		BatchSize:      cfg.BatchSize,
		Workers:        cfg.Workers,
		Decode:         cfg.DecodeOptions(),
		Resample:       cfg.Resample,
		Remap:          cfg.RemapOptions(),
		Families:       families,
		StopAfterTilt:  cfg.StopAfterTilt,
		PendingTimeout: cfg.PendingTimeout,
		Clock:          clock,
	}, logger, metrics)

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, p, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start decode pipeline. An allocation failure stops the service with a
	// non-zero exit status after the usual shutdown.
	var runErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		if runErr = p.Run(ctx); runErr != nil {
			logger.Error("pipeline error", "error", runErr)
			stop()
		}
	}()

	<-ctx.Done()
	<-done
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := p.Flush(shutdownCtx); err != nil {
		logger.Error("volume flush error", "error", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}
	if notifier != nil {
		if err := notifier.Close(); err != nil {
			logger.Error("nats close error", "error", err)
		}
	}

	if runErr != nil {
		cancel()
		logger.Error("shutdown after pipeline failure", "error", runErr)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}
