package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/couchcryptid/storm-data-nids/internal/nids"
	"github.com/couchcryptid/storm-data-nids/internal/volume"
)

// FeatureEvents converts the point features and melting-layer contours of a
// decoded product into events. A null contour set yields no event.
func FeatureEvents(radar, path string, p *nids.Product) []FeatureEvent {
	lat, lon, _ := p.Location()
	scan := p.VolumeTime()
	base := FeatureEvent{
		Radar:       radar,
		ProductCode: int(p.Variant.Code),
		Product:     p.Variant.Mnemonic,
		EventTime:   scan,
		TimeBucket:  deriveTimeBucket(scan),
		SourceFile:  path,
		ProcessedAt: clock.Now(),
	}

	events := make([]FeatureEvent, 0, len(p.Features)+1)
	for _, f := range p.Features {
		e := base
		e.FeatureType = featureType(f.Kind)
		x, y := f.OffsetKm()
		e.RangeKm, e.AzimuthDeg = polar(x, y)
		e.Geo.Lat, e.Geo.Lon = f.LatLon(lat, lon)
		e.StormID = f.StormID
		e.ProbHail = f.ProbHail
		e.ProbSevereHail = f.ProbSevereHail
		e.MaxHailSize = f.MaxHailSize
		e.MesoType = f.MesoType
		e.RadiusKm = f.Radius
		e.Severity = deriveSeverity(e.FeatureType, e.MaxHailSize)
		e.ID = generateID(e.FeatureType, radar, e.Product, scan, int(f.I), int(f.J), f.StormID)
		events = append(events, e)
	}

	if p.Contours != nil && !p.Contours.Null() {
		e := base
		e.FeatureType = FeatureMeltingLayer
		e.Geo = Geo{Lat: lat, Lon: lon}
		e.Contours = make([][]Geo, len(p.Contours.Contours))
		for i, line := range p.Contours.Contours {
			e.Contours[i] = make([]Geo, len(line))
			for k, pt := range line {
				e.Contours[i][k] = offsetGeo(lat, lon, pt.X, pt.Y)
			}
		}
		e.ID = generateID(e.FeatureType, radar, e.Product, scan, 0, 0, fmt.Sprintf("%.1f", p.Elevation()))
		events = append(events, e)
	}
	return events
}

// NewVolumeSummary describes a flushed volume. output is where its data was
// written, empty when it was not.
func NewVolumeSummary(v *volume.Volume, output string) VolumeSummary {
	s := VolumeSummary{
		Radar:       v.Radar,
		Family:      v.Family,
		Number:      v.Number,
		ScanTime:    v.Time,
		Complete:    v.Complete,
		Output:      output,
		Layers:      make([]LayerSummary, 0, len(v.Layers)),
		ProcessedAt: clock.Now(),
	}
	for i, l := range v.Layers {
		ls := LayerSummary{Suffix: l.Suffix, TiltIndex: l.TiltIndex, Elevation: l.Elevation, Source: l.Path}
		if p := l.Product; p != nil {
			if i == 0 {
				lat, lon, alt := p.Location()
				s.Location, s.AltitudeM = Geo{Lat: lat, Lon: lon}, alt
			}
			if g := p.Radial; g != nil {
				ls.Radials, ls.Gates = g.NRadials, g.NGates
			}
			ls.Partial = p.Partial
		}
		if c := l.Cartesian; c != nil && s.GridSize == 0 {
			s.GridSize, s.GridKm = c.NXY, c.Spacing
		}
		s.Layers = append(s.Layers, ls)
	}
	s.ID = generateID("volume", v.Radar, v.Family, v.Time, v.Number, len(v.Layers), "")
	return s
}

// SerializeFeature marshals a feature event for the feature topic.
func SerializeFeature(e FeatureEvent) (OutputEvent, error) {
	value, err := json.Marshal(e)
	if err != nil {
		return OutputEvent{}, fmt.Errorf("marshal feature event: %w", err)
	}
	return OutputEvent{
		Key:   []byte(e.ID),
		Value: value,
		Headers: map[string]string{
			"feature_type": e.FeatureType,
			"radar":        e.Radar,
			"processed_at": e.ProcessedAt.UTC().Format(time.RFC3339),
		},
	}, nil
}

// SerializeVolume marshals a volume summary for the volume topic and
// notification subject.
func SerializeVolume(s VolumeSummary) (OutputEvent, error) {
	value, err := json.Marshal(s)
	if err != nil {
		return OutputEvent{}, fmt.Errorf("marshal volume summary: %w", err)
	}
	return OutputEvent{
		Key:   []byte(s.ID),
		Value: value,
		Headers: map[string]string{
			"family":       s.Family,
			"radar":        s.Radar,
			"complete":     fmt.Sprintf("%t", s.Complete),
			"processed_at": s.ProcessedAt.UTC().Format(time.RFC3339),
		},
	}, nil
}

func featureType(k nids.FeatureKind) string {
	switch k {
	case nids.FeatureHail:
		return FeatureHail
	case nids.FeatureTVS:
		return FeatureTVS
	case nids.FeatureMesocyclone:
		return FeatureMesocyclone
	case nids.FeatureStormID:
		return FeatureStormID
	default:
		return ""
	}
}

// polar returns range (km) and azimuth (degrees clockwise from north) of a
// point x km east and y km north of the radar.
func polar(x, y float64) (float64, float64) {
	az := math.Atan2(x, y) * 180 / math.Pi
	if az < 0 {
		az += 360
	}
	return math.Hypot(x, y), az
}

func offsetGeo(lat, lon, x, y float64) Geo {
	la, lo := nids.OffsetLatLon(lat, lon, x, y)
	return Geo{Lat: la, Lon: lo}
}

// deriveSeverity classifies hail by maximum size (inches) and marks every
// tornado vortex signature extreme. Other features return nil.
func deriveSeverity(featureType string, maxHailSize float64) *string {
	var s string
	switch featureType {
	case FeatureHail:
		switch {
		case maxHailSize <= 0:
			return nil
		case maxHailSize < 0.75:
			s = "minor"
		case maxHailSize < 1.5:
			s = "moderate"
		case maxHailSize < 2.5:
			s = "severe"
		default:
			s = "extreme"
		}
	case FeatureTVS:
		s = "extreme"
	default:
		return nil
	}
	return &s
}

// generateID produces a deterministic ID from a feature's key fields.
func generateID(featureType, radar, product string, t time.Time, i, j int, label string) string {
	input := fmt.Sprintf("%s|%s|%s|%s|%d|%d|%s", featureType, radar, product, t.UTC().Format(time.RFC3339), i, j, label)
	hash := sha256.Sum256([]byte(input))
	short := hex.EncodeToString(hash[:8])
	if featureType == "" {
		return short
	}
	return featureType + "-" + short
}

// deriveTimeBucket truncates t to the hour in UTC. Zero stays zero.
func deriveTimeBucket(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	return t.UTC().Truncate(time.Hour)
}
