package mapbox

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/couchcryptid/storm-data-nids/internal/domain"
	"github.com/couchcryptid/storm-data-nids/internal/observability"
)

// CachedGeocoder wraps a Geocoder with an expiring in-memory cache keyed on
// coordinates rounded to about 100 m, so repeated detections of the same
// storm cell share one lookup.
type CachedGeocoder struct {
	inner      domain.Geocoder
	cache      *gocache.Cache
	maxEntries int
	metrics    *observability.Metrics
}

// NewCachedGeocoder creates a cache decorator around a geocoder. At most
// maxEntries results are held; each expires after ttl.
func NewCachedGeocoder(inner domain.Geocoder, maxEntries int, ttl time.Duration, metrics *observability.Metrics) *CachedGeocoder {
	return &CachedGeocoder{
		inner:      inner,
		cache:      gocache.New(ttl, ttl/2),
		maxEntries: maxEntries,
		metrics:    metrics,
	}
}

func (c *CachedGeocoder) ReverseGeocode(ctx context.Context, lat, lon float64) (domain.GeocodingResult, error) {
	key := cacheKey(lat, lon)
	if v, ok := c.cache.Get(key); ok {
		c.metrics.GeocodeCache.WithLabelValues("hit").Inc()
		return v.(domain.GeocodingResult), nil
	}
	c.metrics.GeocodeCache.WithLabelValues("miss").Inc()

	result, err := c.inner.ReverseGeocode(ctx, lat, lon)
	if err != nil {
		return result, err
	}
	// Only cache non-empty results so transient "not found" responses can be retried.
	if result.FormattedAddress != "" {
		c.put(key, result)
	}
	return result, nil
}

// Len reports the number of cached results, expired ones included until the
// next cleanup.
func (c *CachedGeocoder) Len() int {
	return c.cache.ItemCount()
}

func (c *CachedGeocoder) put(key string, result domain.GeocodingResult) {
	if c.cache.ItemCount() >= c.maxEntries {
		c.cache.DeleteExpired()
		if c.cache.ItemCount() >= c.maxEntries {
			return
		}
	}
	c.cache.SetDefault(key, result)
}

func cacheKey(lat, lon float64) string {
	return fmt.Sprintf("rev:%.3f,%.3f", lat, lon)
}
