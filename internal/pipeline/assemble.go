package pipeline

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"time"

	"github.com/couchcryptid/storm-data-nids/internal/domain"
	"github.com/couchcryptid/storm-data-nids/internal/volume"
)

type streamKey struct {
	radar  string
	family string
}

// stream is the assembly state of one radar and volume family.
type stream struct {
	key      streamKey
	asm      *volume.Assembler
	lastSeen time.Time
}

// Streams reports the assembly state of every stream, ordered by radar and
// family. It is safe to call while Run is active.
func (p *Pipeline) Streams() []domain.StreamStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]domain.StreamStatus, 0, len(p.streams))
	for _, s := range p.sortedStreams() {
		st := domain.StreamStatus{
			Radar:    s.key.radar,
			Family:   s.key.family,
			Pending:  s.asm.Pending(),
			LastSeen: s.lastSeen,
		}
		if n, suffix, ok := s.asm.Current(); ok {
			st.Volume, st.LastSuffix = n, suffix
		}
		out = append(out, st)
	}
	return out
}

// assemble routes a decoded radial product into its stream. Products whose
// suffix belongs to no family become single-layer volumes; products without
// a grid are not assembled.
func (p *Pipeline) assemble(d decoded) []*volume.Volume {
	if d.product.Radial == nil {
		return nil
	}
	tilt := volume.NewTilt(d.radar, d.suffix, d.file.Path, d.product)

	family, ok := p.opts.Families.Lookup(d.suffix)
	if !ok {
		return []*volume.Volume{{
			Radar:    d.radar,
			Family:   strings.ToLower(d.product.Variant.Mnemonic),
			Number:   tilt.VolumeNumber,
			Time:     tilt.Time,
			Layers:   []*volume.Tilt{tilt},
			Complete: true,
		}}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	key := streamKey{radar: d.radar, family: family.Name}
	s, ok := p.streams[key]
	if !ok {
		s = &stream{key: key, asm: volume.NewAssembler(family, volume.Options{
			StopAfterTilt: p.opts.StopAfterTilt,
			OnDiscard:     p.discarded,
		})}
		p.streams[key] = s
		p.logger.Debug("stream opened", "radar", key.radar, "family", key.family)
	}
	s.lastSeen = p.clock.Now()
	flushed := s.asm.Add(tilt)
	p.updatePending()
	return flushed
}

// sweep loads the volumes of streams idle for longer than PendingTimeout.
func (p *Pipeline) sweep(ctx context.Context) {
	if p.opts.PendingTimeout <= 0 {
		return
	}
	now := p.clock.Now()

	p.mu.Lock()
	var flushed []*volume.Volume
	for _, s := range p.sortedStreams() {
		if !s.asm.Active() && s.asm.Pending() == 0 {
			continue
		}
		if now.Sub(s.lastSeen) < p.opts.PendingTimeout {
			continue
		}
		vols := s.asm.Close()
		p.logger.Info("idle stream flushed",
			"radar", s.key.radar,
			"family", s.key.family,
			"idle", now.Sub(s.lastSeen),
			"volumes", len(vols),
		)
		flushed = append(flushed, vols...)
	}
	p.updatePending()
	p.mu.Unlock()

	for _, v := range flushed {
		if err := p.loadVolume(ctx, v); err != nil {
			p.logger.Warn("load idle volume failed", "radar", v.Radar, "family", v.Family, "volume", v.Number, "error", err)
		}
	}
}

func (p *Pipeline) discarded(t *volume.Tilt, reason string) {
	p.metrics.TiltsDiscarded.WithLabelValues(reason).Inc()
	p.logger.Debug("tilt discarded",
		"path", t.Path,
		"radar", t.Radar,
		"suffix", t.Suffix,
		"volume", t.VolumeNumber,
		"reason", reason,
	)
}

// updatePending refreshes the pending gauge. The caller holds p.mu.
func (p *Pipeline) updatePending() {
	n := 0
	for _, s := range p.streams {
		n += s.asm.Pending()
	}
	p.metrics.PendingTilts.Set(float64(n))
}

// sortedStreams returns the streams in a stable order. The caller holds p.mu.
func (p *Pipeline) sortedStreams() []*stream {
	out := make([]*stream, 0, len(p.streams))
	for _, s := range p.streams {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b *stream) int {
		if c := cmp.Compare(a.key.radar, b.key.radar); c != 0 {
			return c
		}
		return cmp.Compare(a.key.family, b.key.family)
	})
	return out
}
