package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "storm_nids"

// Metrics holds the Prometheus counters, histograms, and gauges for the decode pipeline.
type Metrics struct {
	FilesConsumed   prometheus.Counter
	FilesDecoded    prometheus.Counter
	DecodeErrors    *prometheus.CounterVec // labels: reason
	PartialDecodes  prometheus.Counter
	DecodeDuration  prometheus.Histogram
	PipelineRunning prometheus.Gauge
	BatchSize       prometheus.Histogram

	// Volume assembly metrics.
	TiltsDiscarded   *prometheus.CounterVec // labels: reason={sails,duplicate,late,unknown_suffix}
	PendingTilts     prometheus.Gauge
	VolumesFlushed   *prometheus.CounterVec // labels: complete={true,false}
	FeaturesProduced *prometheus.CounterVec // labels: type

	// Geocoding metrics.
	GeocodeRequests    *prometheus.CounterVec // labels: outcome={success,error,empty}
	GeocodeCache       *prometheus.CounterVec // labels: result={hit,miss}
	GeocodeAPIDuration prometheus.Histogram
	GeocodeEnabled     prometheus.Gauge
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()

	prometheus.MustRegister(
		m.FilesConsumed,
		m.FilesDecoded,
		m.DecodeErrors,
		m.PartialDecodes,
		m.DecodeDuration,
		m.PipelineRunning,
		m.BatchSize,
		m.TiltsDiscarded,
		m.PendingTilts,
		m.VolumesFlushed,
		m.FeaturesProduced,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.GeocodeAPIDuration,
		m.GeocodeEnabled,
	)

	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		FilesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_consumed_total",
			Help:      "Total product files read from the input directory.",
		}),
		FilesDecoded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_decoded_total",
			Help:      "Total product files decoded, partial results included.",
		}),
		DecodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Product files rejected by the decoder, by reason.",
		}, []string{"reason"}),
		PartialDecodes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "partial_decodes_total",
			Help:      "Product files decoded with recoverable warnings.",
		}),
		DecodeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "decode_duration_seconds",
			Help:      "Duration of a single product decode.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the pipeline is active, 0 when shut down.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of files per batch picked up from the input directory.",
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		}),
		TiltsDiscarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tilts_discarded_total",
			Help:      "Tilts dropped by volume assembly, by reason.",
		}, []string{"reason"}),
		PendingTilts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_tilts",
			Help:      "Tilts buffered while waiting for their predecessors.",
		}),
		VolumesFlushed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "volumes_flushed_total",
			Help:      "Volumes handed to the sinks, by completeness.",
		}, []string{"complete"}),
		FeaturesProduced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "features_produced_total",
			Help:      "Point features and contour sets emitted, by type.",
		}, []string{"type"}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      "Reverse geocoding API requests by outcome.",
		}, []string{"outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      "Reverse geocoding cache lookups by result.",
		}, []string{"result"}),
		GeocodeAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geocode_api_duration_seconds",
			Help:      "Mapbox API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		GeocodeEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "geocode_enabled",
			Help:      "1 when geocoding enrichment is enabled, 0 otherwise.",
		}),
	}
}
