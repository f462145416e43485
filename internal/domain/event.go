package domain

import (
	"time"
)

// RawFile is one product file read from the input directory.
type RawFile struct {
	Path    string
	Name    string
	Size    int64
	ModTime time.Time
	Data    []byte
}

// Geo represents a WGS-84 latitude/longitude coordinate pair.
type Geo struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Feature types.
const (
	FeatureHail         = "hail"
	FeatureTVS          = "tvs"
	FeatureMesocyclone  = "mesocyclone"
	FeatureStormID      = "storm_id"
	FeatureMeltingLayer = "melting_layer"
)

// FeatureEvent is a point feature or melting-layer contour set, located
// and classified.
type FeatureEvent struct {
	ID          string    `json:"id"`
	FeatureType string    `json:"type"`
	Radar       string    `json:"radar"`
	ProductCode int       `json:"product_code"`
	Product     string    `json:"product"`
	Geo         Geo       `json:"geo"`
	RangeKm     float64   `json:"range_km"`
	AzimuthDeg  float64   `json:"azimuth_deg"`
	EventTime   time.Time `json:"event_time"`
	TimeBucket  time.Time `json:"time_bucket"`
	Severity    *string   `json:"severity,omitempty"`

	StormID        string  `json:"storm_id,omitempty"`
	ProbHail       int     `json:"prob_hail,omitempty"`
	ProbSevereHail int     `json:"prob_severe_hail,omitempty"`
	MaxHailSize    float64 `json:"max_hail_size_in,omitempty"`
	MesoType       int     `json:"meso_type,omitempty"`
	RadiusKm       float64 `json:"radius_km,omitempty"`
	Contours       [][]Geo `json:"contours,omitempty"` // outer to inner

	// Geocoding enrichment fields.
	FormattedAddress string  `json:"formatted_address,omitempty"`
	PlaceName        string  `json:"place_name,omitempty"`
	GeoConfidence    float64 `json:"geo_confidence,omitempty"`
	GeoSource        string  `json:"geo_source,omitempty"` // "reverse", "original", "failed"

	SourceFile  string    `json:"source_file"`
	ProcessedAt time.Time `json:"processed_at"`
}

// LayerSummary describes one tilt of a flushed volume.
type LayerSummary struct {
	Suffix    string  `json:"suffix"`
	TiltIndex int     `json:"tilt_index"`
	Elevation float64 `json:"elevation_deg"`
	Radials   int     `json:"radials"`
	Gates     int     `json:"gates"`
	Partial   bool    `json:"partial,omitempty"`
	Source    string  `json:"source_file"`
}

// VolumeSummary announces a flushed volume without its data.
type VolumeSummary struct {
	ID          string         `json:"id"`
	Radar       string         `json:"radar"`
	Family      string         `json:"family"`
	Number      int            `json:"volume_number"`
	ScanTime    time.Time      `json:"scan_time"`
	Complete    bool           `json:"complete"`
	Location    Geo            `json:"location"`
	AltitudeM   float64        `json:"altitude_m"`
	GridSize    int            `json:"grid_size,omitempty"`
	GridKm      float64        `json:"grid_spacing_km,omitempty"`
	Layers      []LayerSummary `json:"layers"`
	Output      string         `json:"output,omitempty"`
	ProcessedAt time.Time      `json:"processed_at"`
}

// OutputEvent is the serialized form destined for a message broker.
type OutputEvent struct {
	Key     []byte
	Value   []byte
	Headers map[string]string
}

// StreamStatus describes the assembly state of one radar and volume family.
type StreamStatus struct {
	Radar      string    `json:"radar"`
	Family     string    `json:"family"`
	Volume     int       `json:"volume_number"`
	LastSuffix string    `json:"last_suffix,omitempty"`
	Pending    int       `json:"pending"`
	LastSeen   time.Time `json:"last_seen"`
}
