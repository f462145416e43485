package filesystem

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/couchcryptid/storm-data-nids/internal/nids"
	"github.com/couchcryptid/storm-data-nids/internal/volume"
)

// VolumeDocument is the on-disk form of an assembled volume.
type VolumeDocument struct {
	Radar     string    `json:"radar"`
	Family    string    `json:"family"`
	Number    int       `json:"volume_number"`
	ScanTime  time.Time `json:"scan_time"`
	Complete  bool      `json:"complete"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	AltitudeM float64   `json:"altitude_m"`
	Missing   float32   `json:"missing"`
	Layers    []Layer   `json:"layers"`
}

// Layer is one tilt of a VolumeDocument. Exactly one of Grid or Polar is set
// for radial products; both are nil for products without a grid.
type Layer struct {
	Suffix      string      `json:"suffix"`
	ProductCode int         `json:"product_code"`
	Product     string      `json:"product"`
	Units       string      `json:"units,omitempty"`
	TiltIndex   int         `json:"tilt_index"`
	Elevation   float64     `json:"elevation_deg"`
	Partial     bool        `json:"partial,omitempty"`
	Source      string      `json:"source_file"`
	Grid        *GridLayer  `json:"grid,omitempty"`
	Polar       *PolarLayer `json:"polar,omitempty"`
}

// GridLayer is a Cartesian layer, row-major with row 0 at the southern edge
// and column 0 at the western edge.
type GridLayer struct {
	Size      int       `json:"size"`
	SpacingKm float64   `json:"spacing_km"`
	MaxRange  float64   `json:"max_range_km"`
	Data      []float32 `json:"data"`
}

// PolarLayer is a layer written without resampling, row-major by radial.
type PolarLayer struct {
	Radials     int       `json:"radials"`
	Gates       int       `json:"gates"`
	GateKm      float64   `json:"gate_km"`
	FirstGateKm float64   `json:"first_gate_km"`
	DeltaAz     float64   `json:"delta_az_deg"`
	Data        []float32 `json:"data"`
}

// VolumeWriter stores volumes as zstd-compressed JSON documents.
// It implements pipeline.VolumeStore.
type VolumeWriter struct {
	dir    string
	logger *slog.Logger
}

// NewVolumeWriter creates a writer rooted at dir.
func NewVolumeWriter(dir string, logger *slog.Logger) *VolumeWriter {
	return &VolumeWriter{dir: dir, logger: logger}
}

// Path returns where v is stored:
// <dir>/<radar>/<family>/<YYYYMMDD>/<radar>_<family>_<YYYYMMDD_HHMMSS>.json.zst.
func (w *VolumeWriter) Path(v *volume.Volume) string {
	t := v.Time.UTC()
	name := fmt.Sprintf("%s_%s_%s.json.zst", v.Radar, v.Family, t.Format("20060102_150405"))
	return filepath.Join(w.dir, v.Radar, v.Family, t.Format("20060102"), name)
}

// WriteVolume encodes v and returns the path written. The file appears
// atomically; a reader never sees a partial document.
func (w *VolumeWriter) WriteVolume(ctx context.Context, v *volume.Volume) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path := w.Path(v)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create volume dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".volume-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after rename

	if err := encodeVolume(tmp, NewVolumeDocument(v)); err != nil {
		tmp.Close()
		return "", fmt.Errorf("encode volume %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("rename volume file: %w", err)
	}

	w.logger.Info("volume written",
		"path", path,
		"radar", v.Radar,
		"family", v.Family,
		"volume", v.Number,
		"layers", len(v.Layers),
		"complete", v.Complete,
	)
	return path, nil
}

// NewVolumeDocument converts an assembled volume. Layers with a Cartesian
// grid are written as grids, other radial layers as polar data.
func NewVolumeDocument(v *volume.Volume) VolumeDocument {
	doc := VolumeDocument{
		Radar:    v.Radar,
		Family:   v.Family,
		Number:   v.Number,
		ScanTime: v.Time.UTC(),
		Complete: v.Complete,
		Missing:  nids.Missing,
		Layers:   make([]Layer, 0, len(v.Layers)),
	}
	for i, t := range v.Layers {
		l := Layer{Suffix: t.Suffix, TiltIndex: t.TiltIndex, Elevation: t.Elevation, Source: t.Path}
		if p := t.Product; p != nil {
			if i == 0 {
				doc.Latitude, doc.Longitude, doc.AltitudeM = p.Location()
			}
			l.ProductCode = int(p.Variant.Code)
			l.Product = p.Variant.Mnemonic
			l.Units = p.Variant.Units
			l.Partial = p.Partial
			if g := p.Radial; g != nil && t.Cartesian == nil {
				l.Polar = &PolarLayer{
					Radials:     g.NRadials,
					Gates:       g.NGates,
					GateKm:      g.GateSpacing,
					FirstGateKm: g.FirstGate,
					DeltaAz:     g.DeltaAz,
					Data:        g.Data,
				}
			}
		}
		if c := t.Cartesian; c != nil {
			l.Grid = &GridLayer{Size: c.NXY, SpacingKm: c.Spacing, MaxRange: c.MaxRange, Data: c.Data}
		}
		doc.Layers = append(doc.Layers, l)
	}
	return doc
}

// ReadVolume decodes a document written by WriteVolume.
func ReadVolume(path string) (*VolumeDocument, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("open zstd stream: %w", err)
	}
	defer dec.Close()

	var doc VolumeDocument
	if err := json.NewDecoder(dec).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode volume %s: %w", path, err)
	}
	return &doc, nil
}

func encodeVolume(f *os.File, doc VolumeDocument) error {
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	if err := json.NewEncoder(enc).Encode(doc); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}
