package nids

import (
	"fmt"
	"math"
	"strings"
)

const (
	packetColorLevel   = 0x0802
	packetLinkedVector = 0x0E03
	initialPointFlag   = 0x8000
	contourCount       = 4

	packetTVS     = 12
	packetTVSExt  = 26
	packetStormID = 15
	packetHail    = 19
	packetMeso    = 20

	kmPerDegreeLat = 111.195
	quarterKmPerKm = 4.0
)

// FeatureKind identifies a point feature variant.
type FeatureKind int

const (
	FeatureStormID FeatureKind = iota + 1
	FeatureHail
	FeatureMesocyclone
	FeatureTVS
)

func (k FeatureKind) String() string {
	switch k {
	case FeatureStormID:
		return "storm_id"
	case FeatureHail:
		return "hail"
	case FeatureMesocyclone:
		return "mesocyclone"
	case FeatureTVS:
		return "tvs"
	default:
		return "unknown"
	}
}

// PointFeature is one symbol decoded from a point product. I and J are
// plot-space quarter-km offsets from the radar, J increasing southward.
type PointFeature struct {
	Kind           FeatureKind
	I, J           int16
	StormID        string
	ProbHail       int
	ProbSevereHail int
	MaxHailSize    float64 // inches
	MesoType       int
	Radius         float64 // km
}

// OffsetKm returns the feature position east and north of the radar in km.
func (f PointFeature) OffsetKm() (x, y float64) {
	return float64(f.I) / quarterKmPerKm, -float64(f.J) / quarterKmPerKm
}

// LatLon places the feature on a flat earth tangent at the radar.
func (f PointFeature) LatLon(radarLat, radarLon float64) (lat, lon float64) {
	x, y := f.OffsetKm()
	return OffsetLatLon(radarLat, radarLon, x, y)
}

// OffsetLatLon returns the position x km east and y km north of a radar on a
// flat earth.
func OffsetLatLon(radarLat, radarLon, x, y float64) (lat, lon float64) {
	lat = radarLat + y/kmPerDegreeLat
	coslat := math.Cos(radarLat * math.Pi / 180)
	if coslat < 1e-6 {
		return lat, radarLon
	}
	return lat, radarLon + x/(kmPerDegreeLat*coslat)
}

// ContourPoint is a contour vertex in km east and north of the radar.
type ContourPoint struct {
	X float64
	Y float64
}

// ContourSet holds the four melting-layer polylines, outermost first.
type ContourSet struct {
	Contours [contourCount][]ContourPoint
}

// Null reports whether the set carries no data: either no vertices at all or
// every vertex of every contour at the same position.
func (s *ContourSet) Null() bool {
	var first *ContourPoint
	for i := range s.Contours {
		for k := range s.Contours[i] {
			p := &s.Contours[i][k]
			if first == nil {
				first = p
				continue
			}
			if *p != *first {
				return false
			}
		}
	}
	return true
}

// decodeContours reads the four set-color-level + linked-vector packet pairs
// of the melting layer product.
func (s *session) decodeContours() (*ContourSet, error) {
	c := s.c
	set := &ContourSet{}
	for i := 0; i < contourCount; i++ {
		cl, err := readColorLevelPacket(c)
		if err != nil {
			return nil, err
		}
		if cl.Code != packetColorLevel {
			return nil, fmt.Errorf("contour %d: color level packet %#x: %w", i, cl.Code, ErrMalformedPacket)
		}
		lv, err := readLinkedVectorHeader(c)
		if err != nil {
			return nil, err
		}
		if lv.Code != packetLinkedVector {
			return nil, fmt.Errorf("contour %d: linked vector packet %#x: %w", i, lv.Code, ErrMalformedPacket)
		}

		var line []ContourPoint
		if lv.Indicator == initialPointFlag {
			p, err := readPoint(c)
			if err != nil {
				return nil, err
			}
			line = append(line, toContourPoint(p))
		}
		length, err := c.Int16()
		if err != nil {
			return nil, err
		}
		if length < 0 {
			return nil, fmt.Errorf("contour %d: vector length %d: %w", i, length, ErrMalformedPacket)
		}
		n := int(length) / 4
		for k := 0; k < n; k++ {
			p, err := readPoint(c)
			if err != nil {
				return nil, err
			}
			line = append(line, toContourPoint(p))
		}
		set.Contours[i] = line
	}
	return set, nil
}

func toContourPoint(p Point) ContourPoint {
	return ContourPoint{X: float64(p.I) / quarterKmPerKm, Y: -float64(p.J) / quarterKmPerKm}
}

// decodeSymbols walks the symbol packets of every data layer. Unknown packet
// codes are skipped by their declared length.
func (s *session) decodeSymbols(sh SymbologyHeader) ([]PointFeature, error) {
	c := s.c
	var features []PointFeature
	layerLen := int(sh.LayerLength)
	for layer := 0; layer < int(sh.NumLayers); layer++ {
		if layer > 0 {
			div, err := c.Int16()
			if err != nil {
				return features, err
			}
			if div != blockDivider {
				return features, fmt.Errorf("layer %d divider %d: %w", layer, div, ErrMalformedPacket)
			}
			l, err := c.Uint32()
			if err != nil {
				return features, err
			}
			layerLen = int(l)
		}
		end := c.Offset() + layerLen
		if end > len(c.buf) {
			s.warn(fmt.Errorf("layer %d declares %d bytes, %d remain: %w", layer, layerLen, c.Remaining(), ErrBufferUnderrun))
			end = len(c.buf)
		}

		for c.Offset()+symbolPacketHdrSize <= end {
			ph, err := readSymbolPacketHeader(c)
			if err != nil {
				return features, err
			}
			if c.Offset()+int(ph.Length) > end {
				s.warn(fmt.Errorf("packet %d declares %d bytes past layer end: %w", ph.Code, ph.Length, ErrBufferUnderrun))
				return features, nil
			}
			body := &Cursor{buf: c.buf[c.Offset() : c.Offset()+int(ph.Length)], order: c.order}
			features, err = appendFeatures(features, ph, body)
			if err != nil {
				return features, err
			}
			if err := c.Skip(int(ph.Length)); err != nil {
				return features, err
			}
		}
		if err := c.Seek(end); err != nil {
			return features, err
		}
	}
	return features, nil
}

func appendFeatures(features []PointFeature, ph SymbolPacketHeader, body *Cursor) ([]PointFeature, error) {
	switch ph.Code {
	case packetTVS, packetTVSExt:
		for body.Remaining() >= pointSize {
			p, err := readPoint(body)
			if err != nil {
				return features, err
			}
			features = append(features, PointFeature{Kind: FeatureTVS, I: p.I, J: p.J})
		}
	case packetHail:
		for body.Remaining() >= hailRecordSize {
			h, err := readHailRecord(body)
			if err != nil {
				return features, err
			}
			features = append(features, PointFeature{
				Kind:           FeatureHail,
				I:              h.I,
				J:              h.J,
				ProbHail:       int(h.ProbHail),
				ProbSevereHail: int(h.ProbSevereHail),
				MaxHailSize:    float64(h.MaxSize),
			})
		}
	case packetStormID:
		for body.Remaining() >= stormIDRecordSize {
			r, err := readStormIDRecord(body)
			if err != nil {
				return features, err
			}
			features = append(features, PointFeature{
				Kind:    FeatureStormID,
				I:       r.I,
				J:       r.J,
				StormID: strings.TrimSpace(string(r.ID[:])),
			})
		}
	case packetMeso:
		for body.Remaining() >= mesocycloneRecordSize {
			m, err := readMesocycloneRecord(body)
			if err != nil {
				return features, err
			}
			features = append(features, PointFeature{
				Kind:     FeatureMesocyclone,
				I:        m.I,
				J:        m.J,
				MesoType: int(m.Type),
				Radius:   float64(m.Radius) / quarterKmPerKm,
			})
		}
	}
	return features, nil
}
