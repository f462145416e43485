package mapbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/storm-data-nids/internal/domain"
	"github.com/couchcryptid/storm-data-nids/internal/observability"
)

// --- mock for cache tests ---

type countingGeocoder struct {
	calls  int
	result domain.GeocodingResult
	err    error
}

func (m *countingGeocoder) ReverseGeocode(_ context.Context, _, _ float64) (domain.GeocodingResult, error) {
	m.calls++
	return m.result, m.err
}

func newTestCache(inner domain.Geocoder, maxEntries int) *CachedGeocoder {
	return NewCachedGeocoder(inner, maxEntries, time.Hour, observability.NewMetricsForTesting())
}

// --- CachedGeocoder tests ---

func TestCachedGeocoder_CacheHit(t *testing.T) {
	inner := &countingGeocoder{result: domain.GeocodingResult{FormattedAddress: "Moore, OK", PlaceName: "Moore"}}
	cached := newTestCache(inner, 10)

	r1, err := cached.ReverseGeocode(context.Background(), 35.3395, -97.4861)
	require.NoError(t, err)
	r2, err := cached.ReverseGeocode(context.Background(), 35.3395, -97.4861)
	require.NoError(t, err)

	assert.Equal(t, r1, r2)
	assert.Equal(t, 1, inner.calls, "should only call inner once")
	assert.InDelta(t, 1.0, testutil.ToFloat64(cached.metrics.GeocodeCache.WithLabelValues("hit")), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(cached.metrics.GeocodeCache.WithLabelValues("miss")), 1e-9)
}

func TestCachedGeocoder_NearbyPointsShareEntry(t *testing.T) {
	inner := &countingGeocoder{result: domain.GeocodingResult{FormattedAddress: "Moore, OK"}}
	cached := newTestCache(inner, 10)

	_, _ = cached.ReverseGeocode(context.Background(), 35.3412, -97.48612)
	_, _ = cached.ReverseGeocode(context.Background(), 35.3408, -97.48608)
	_, _ = cached.ReverseGeocode(context.Background(), 35.5, -97.5)

	assert.Equal(t, 2, inner.calls)
}

func TestCachedGeocoder_EmptyAndErrorsNotCached(t *testing.T) {
	inner := &countingGeocoder{}
	cached := newTestCache(inner, 10)

	_, _ = cached.ReverseGeocode(context.Background(), 35, -97)
	_, _ = cached.ReverseGeocode(context.Background(), 35, -97)
	assert.Equal(t, 2, inner.calls)

	inner.err = errors.New("boom")
	_, err := cached.ReverseGeocode(context.Background(), 35, -97)
	require.Error(t, err)
	assert.Zero(t, cached.Len())
}

func TestCachedGeocoder_Capacity(t *testing.T) {
	inner := &countingGeocoder{result: domain.GeocodingResult{FormattedAddress: "Somewhere"}}
	cached := newTestCache(inner, 2)

	_, _ = cached.ReverseGeocode(context.Background(), 35, -97)
	_, _ = cached.ReverseGeocode(context.Background(), 36, -97)
	_, _ = cached.ReverseGeocode(context.Background(), 37, -97)

	assert.Equal(t, 2, cached.Len())
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, "rev:35.340,-97.486", cacheKey(35.3396, -97.4861))
}
