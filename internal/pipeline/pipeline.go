package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	sharedretry "github.com/couchcryptid/storm-data-shared/retry"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/storm-data-nids/internal/domain"
	"github.com/couchcryptid/storm-data-nids/internal/nids"
	"github.com/couchcryptid/storm-data-nids/internal/observability"
	"github.com/couchcryptid/storm-data-nids/internal/volume"
)

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// BatchExtractor reads up to batchSize product files from the source.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawFile, error)
}

// FeatureLoader writes located point features to the destination.
type FeatureLoader interface {
	LoadBatch(ctx context.Context, events []domain.FeatureEvent) error
}

// VolumeStore persists the data of a flushed volume and returns where it went.
type VolumeStore interface {
	WriteVolume(ctx context.Context, v *volume.Volume) (string, error)
}

// VolumeSink announces a flushed volume.
type VolumeSink interface {
	PublishVolume(ctx context.Context, s domain.VolumeSummary) error
}

// ReportWriter writes a human-readable description of a decoded file.
type ReportWriter interface {
	WriteReport(path string, p *nids.Product) (string, error)
}

// Stages are the pluggable ends of the pipeline. Only Extractor is required.
type Stages struct {
	Extractor BatchExtractor
	Features  FeatureLoader
	Volumes   VolumeStore
	Sinks     []VolumeSink
	Reports   ReportWriter
	Geocoder  domain.Geocoder
}

// Options tune decoding and assembly.
type Options struct {
	BatchSize int
	Workers   int
	Decode    nids.Options
	Resample  bool
	Remap     nids.RemapOptions
	Families  volume.Families
	// StopAfterTilt is passed to every assembler; negative disables it.
	StopAfterTilt int
	// PendingTimeout flushes a stream that has seen no tilt for this long.
	// Zero disables the idle sweep.
	PendingTimeout time.Duration
	Clock          clockwork.Clock
}

// Pipeline orchestrates the extract-decode-assemble-load loop.
type Pipeline struct {
	stages  Stages
	opts    Options
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics
	ready   atomic.Bool

	mu      sync.Mutex
	streams map[streamKey]*stream
}

// New creates a Pipeline with the given stages and observability.
func New(stages Stages, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = 1
	}
	if opts.Families == nil {
		opts.Families = volume.DefaultFamilies()
	}
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Pipeline{
		stages:  stages,
		opts:    opts,
		clock:   clock,
		logger:  logger,
		metrics: metrics,
		streams: make(map[streamKey]*stream),
	}
}

// CheckReadiness returns nil once the pipeline has decoded at least one file,
// or an error describing why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not decoded any files yet")
	}
	return nil
}

// Run executes the batch loop until the context is cancelled. It returns an
// error only when decoding hits an allocation failure. Volumes still being
// assembled are left for Flush.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started",
		"batch_size", p.opts.BatchSize,
		"workers", p.opts.Workers,
		"resample", p.opts.Resample,
		"families", len(p.opts.Families),
	)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	backoff := initialBackoff
	for {
		if ctx.Err() != nil {
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		}

		ok, err := p.processBatch(ctx, &backoff)
		if err != nil {
			p.logger.Error("pipeline stopped", "error", err)
			return err
		}
		if !ok {
			return nil
		}
		p.sweep(ctx)
	}
}

// Flush closes every stream and loads the volumes still being assembled.
// Call it once Run has returned.
func (p *Pipeline) Flush(ctx context.Context) error {
	p.mu.Lock()
	var flushed []*volume.Volume
	for _, s := range p.sortedStreams() {
		flushed = append(flushed, s.asm.Close()...)
	}
	p.updatePending()
	p.mu.Unlock()

	if len(flushed) > 0 {
		p.logger.Info("flushing volumes on shutdown", "volumes", len(flushed))
	}
	var errs []error
	for _, v := range flushed {
		if err := p.loadVolume(ctx, v); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// processBatch runs one extract-decode-load cycle. It returns false when the
// pipeline should stop, and an error when it must stop with a failure.
func (p *Pipeline) processBatch(ctx context.Context, backoff *time.Duration) (bool, error) {
	batch, err := p.stages.Extractor.ExtractBatch(ctx, p.opts.BatchSize)
	if err != nil {
		if ctx.Err() != nil {
			return false, nil
		}
		p.logger.Error("extract batch failed", "error", err)
		return p.backoffOrStop(ctx, backoff), nil
	}
	if len(batch) == 0 {
		return ctx.Err() == nil, nil
	}
	*backoff = initialBackoff

	p.metrics.FilesConsumed.Add(float64(len(batch)))
	p.metrics.BatchSize.Observe(float64(len(batch)))

	var (
		features []domain.FeatureEvent
		flushed  []*volume.Volume
	)
	for _, d := range p.decodeBatch(batch) {
		if d.err != nil {
			if errors.Is(d.err, nids.ErrAllocation) {
				return false, d.err
			}
			p.logger.Warn("decode failed, skipping file", "path", d.file.Path, "error", d.err)
			p.metrics.DecodeErrors.WithLabelValues(nids.Reason(d.err)).Inc()
			continue
		}
		p.recordDecoded(d)
		features = append(features, p.locate(ctx, d)...)
		flushed = append(flushed, p.assemble(d)...)
	}

	if len(features) > 0 && !p.loadFeatures(ctx, features) {
		return false, nil
	}
	for _, v := range flushed {
		if err := p.loadVolume(ctx, v); err != nil {
			if errors.Is(err, nids.ErrAllocation) {
				return false, err
			}
			if ctx.Err() != nil {
				return false, nil
			}
		}
	}
	return true, nil
}

func (p *Pipeline) recordDecoded(d decoded) {
	p.metrics.FilesDecoded.Inc()
	p.metrics.DecodeDuration.Observe(d.elapsed.Seconds())
	p.ready.Store(true)

	if d.product.Partial {
		p.metrics.PartialDecodes.Inc()
		p.logger.Warn("partial decode",
			"path", d.file.Path,
			"product", d.product.Variant.Mnemonic,
			"error", errors.Join(d.product.Warnings...),
		)
	}
	if p.stages.Reports != nil {
		if _, err := p.stages.Reports.WriteReport(d.file.Path, d.product); err != nil {
			p.logger.Warn("write report failed", "path", d.file.Path, "error", err)
		}
	}
}

// locate turns the point features of a decoded file into geocoded events.
func (p *Pipeline) locate(ctx context.Context, d decoded) []domain.FeatureEvent {
	if p.stages.Features == nil {
		return nil
	}
	events := domain.FeatureEvents(d.radar, d.file.Path, d.product)
	for i := range events {
		events[i] = domain.EnrichWithGeocoding(ctx, events[i], p.stages.Geocoder, p.logger)
	}
	return events
}

// loadFeatures writes events, retrying with backoff until it succeeds or the
// context ends.
func (p *Pipeline) loadFeatures(ctx context.Context, events []domain.FeatureEvent) bool {
	err := p.retry(ctx, "load features", func() error {
		return p.stages.Features.LoadBatch(ctx, events)
	})
	if err != nil {
		return false
	}
	for _, e := range events {
		p.metrics.FeaturesProduced.WithLabelValues(e.FeatureType).Inc()
	}
	return true
}

// loadVolume resamples, stores and announces one flushed volume.
func (p *Pipeline) loadVolume(ctx context.Context, v *volume.Volume) error {
	if p.opts.Resample {
		if err := v.Resample(p.opts.Remap); err != nil {
			if errors.Is(err, nids.ErrAllocation) {
				return fmt.Errorf("resample %s %s volume %d: %w", v.Radar, v.Family, v.Number, err)
			}
			p.logger.Warn("resample failed, writing polar data",
				"radar", v.Radar, "family", v.Family, "volume", v.Number, "error", err)
			for _, l := range v.Layers {
				l.Cartesian = nil
			}
		}
	}

	var output string
	if p.stages.Volumes != nil {
		err := p.retry(ctx, "write volume", func() error {
			var err error
			output, err = p.stages.Volumes.WriteVolume(ctx, v)
			return err
		})
		if err != nil {
			return err
		}
	}

	summary := domain.NewVolumeSummary(v, output)
	for _, sink := range p.stages.Sinks {
		err := p.retry(ctx, "publish volume", func() error {
			return sink.PublishVolume(ctx, summary)
		})
		if err != nil {
			return err
		}
	}

	p.metrics.VolumesFlushed.WithLabelValues(fmt.Sprint(v.Complete)).Inc()
	p.logger.Info("volume flushed",
		"radar", v.Radar,
		"family", v.Family,
		"volume", v.Number,
		"layers", len(v.Layers),
		"complete", v.Complete,
	)
	return nil
}

// retry calls fn until it succeeds, backing off between attempts. It gives
// up only when the context ends.
func (p *Pipeline) retry(ctx context.Context, op string, fn func() error) error {
	backoff := initialBackoff
	for {
		err := fn()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		p.logger.Error(op+" failed", "error", err, "retry_in", backoff)
		if !sharedretry.SleepWithContext(ctx, backoff) {
			return fmt.Errorf("%s: %w", op, err)
		}
		backoff = sharedretry.NextBackoff(backoff, maxBackoff)
	}
}

// backoffOrStop sleeps with the current backoff and advances it. Returns
// false if the pipeline should stop.
func (p *Pipeline) backoffOrStop(ctx context.Context, backoff *time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if !sharedretry.SleepWithContext(ctx, *backoff) {
		return false
	}
	*backoff = sharedretry.NextBackoff(*backoff, maxBackoff)
	return true
}
