package domain

import (
	"context"
	"log/slog"
)

// EnrichWithGeocoding names the place nearest a located feature. If geocoder
// is nil the event is returned unchanged; on failure GeoSource records why
// (graceful degradation).
func EnrichWithGeocoding(ctx context.Context, event FeatureEvent, geocoder Geocoder, logger *slog.Logger) FeatureEvent {
	if geocoder == nil {
		return event
	}
	if event.Geo.Lat == 0 && event.Geo.Lon == 0 {
		event.GeoSource = "original"
		return event
	}

	result, err := geocoder.ReverseGeocode(ctx, event.Geo.Lat, event.Geo.Lon)
	if err != nil {
		logger.Warn("reverse geocoding failed",
			"feature_id", event.ID,
			"radar", event.Radar,
			"lat", event.Geo.Lat,
			"lon", event.Geo.Lon,
			"error", err,
		)
		event.GeoSource = "failed"
		return event
	}
	if result.FormattedAddress == "" {
		event.GeoSource = "original"
		return event
	}
	event.FormattedAddress = result.FormattedAddress
	event.PlaceName = result.PlaceName
	event.GeoConfidence = result.Confidence
	event.GeoSource = "reverse"
	return event
}
