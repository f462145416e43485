package filesystem

import (
	"fmt"
	"io"
	"maps"
	"math"
	"os"
	"path/filepath"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/couchcryptid/storm-data-nids/internal/nids"
)

// ReportWriter writes a plain-text decode report per product file.
type ReportWriter struct {
	dir string
}

// NewReportWriter creates a writer rooted at dir.
func NewReportWriter(dir string) *ReportWriter {
	return &ReportWriter{dir: dir}
}

// WriteReport writes <dir>/<base name>.txt for the product decoded from path.
func (w *ReportWriter) WriteReport(path string, p *nids.Product) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	out := filepath.Join(w.dir, filepath.Base(path)+".txt")
	f, err := os.Create(out)
	if err != nil {
		return "", fmt.Errorf("create report: %w", err)
	}
	if err := FormatReport(f, path, p); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close report: %w", err)
	}
	return out, nil
}

// FormatReport describes a decoded product: identity, location, payload
// geometry, value range, features, and any decode warnings.
func FormatReport(w io.Writer, path string, p *nids.Product) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	row := func(k, format string, args ...any) {
		fmt.Fprintf(tw, "%s:\t%s\n", k, fmt.Sprintf(format, args...))
	}

	lat, lon, alt := p.Location()
	row("file", "%s", path)
	row("product", "%d %s %s", p.Variant.Code, p.Variant.Mnemonic, p.Variant.Name)
	if p.Variant.Units != "" {
		row("units", "%s", p.Variant.Units)
	}
	row("source", "%d", p.Header.Source)
	row("radar", "%.3f %.3f %.1f m", lat, lon, alt)
	row("volume", "%d at %s", p.Description.VolumeNumber, formatTime(p.VolumeTime()))
	row("generated", "%s", formatTime(p.Description.GenerationTimestamp()))
	row("vcp", "%d", p.Description.VCP)
	if e := p.Elevation(); e != 0 || p.Description.ElevationNumber != 0 {
		row("elevation", "%.1f deg (tilt %d)", e, p.Description.ElevationNumber)
	}
	if p.Metadata.Compressed() {
		row("compression", "method %d, %d bytes", p.Metadata.CompressionMethod, p.Metadata.UncompressedSize)
	}
	row("payload", "%s", p.Variant.Payload)

	if g := p.Radial; g != nil {
		row("grid", "%d radials x %d gates, %.3f km gates from %.3f km, %.2f deg", g.NRadials, g.NGates, g.GateSpacing, g.FirstGate, g.DeltaAz)
		if lo, hi, n := valueRange(g.Data); n > 0 {
			row("values", "%g to %g (%d valid)", lo, hi, n)
		} else {
			row("values", "none valid")
		}
	}
	if gi := p.Generic; gi != nil {
		row("generic", "%s %s", gi.Name, gi.Description)
		for _, k := range slices.Sorted(maps.Keys(gi.Params)) {
			row("  "+k, "%s", gi.Params[k])
		}
	}
	if c := p.Contours; c != nil {
		if c.Null() {
			row("contours", "null")
		}
		for i, line := range c.Contours {
			row(fmt.Sprintf("contour %d", i), "%d vertices", len(line))
		}
	}
	if len(p.Features) > 0 {
		counts := map[nids.FeatureKind]int{}
		for _, f := range p.Features {
			counts[f.Kind]++
		}
		for _, k := range []nids.FeatureKind{nids.FeatureStormID, nids.FeatureHail, nids.FeatureMesocyclone, nids.FeatureTVS} {
			if counts[k] > 0 {
				row("features", "%s %d", k, counts[k])
			}
		}
	}
	if p.Partial {
		row("partial", "yes")
		for _, w := range p.Warnings {
			row("warning", "%v", w)
		}
	}
	return tw.Flush()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func valueRange(data []float32) (lo, hi float32, n int) {
	lo, hi = math.MaxFloat32, -math.MaxFloat32
	for _, v := range data {
		if v == nids.Missing {
			continue
		}
		lo, hi = min(lo, v), max(hi, v)
		n++
	}
	return lo, hi, n
}
