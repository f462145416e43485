package pipeline_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/storm-data-nids/internal/domain"
	"github.com/couchcryptid/storm-data-nids/internal/nids/nidstest"
	"github.com/couchcryptid/storm-data-nids/internal/volume"
)

// TestPipeline_MockVolumeSequence replays two consecutive SRM volumes the
// way a radar feed delivers them: a SAILS re-scan of the lowest tilt in the
// middle of the first volume, a re-delivered final tilt after the first
// volume has been flushed, and a hail product between them.
func TestPipeline_MockVolumeSequence(t *testing.T) {
	first := srmTilts(t, 7, "N0S", "N1S", "N2S", "N3S")
	second := srmTilts(t, 8, "N0S", "N1S", "N2S", "N3S")
	sails := srmTilt(t, 7, "N0S", 1)
	hail, err := nidstest.HailIndex(nidstest.KTLX, 7, scan,
		nidstest.Hail(40, -80, 90, 60, 2),
		nidstest.StormID(40, -80, "A1"),
		nidstest.TVS([2]int16{12, -12}),
	)
	require.NoError(t, err)

	h := newHarness(
		rawFiles(first[0], first[1], sails),
		rawFiles(first[2], hail, first[3]),
		rawFiles(first[3], second[0], second[1]),
		rawFiles(second[2], second[3]),
	)
	h.run(t, h.pipeline())

	require.Len(t, h.store.volumes, 2)
	for i, want := range []int{7, 8} {
		v := h.store.volumes[i]
		assert.Equal(t, want, v.Number)
		assert.True(t, v.Complete)
		assert.Equal(t, []string{"N0S", "N1S", "N2S", "N3S"}, suffixes(v))
	}

	types := make([]string, len(h.features.loaded))
	for i, e := range h.features.loaded {
		types[i] = e.FeatureType
	}
	assert.Equal(t, []string{domain.FeatureHail, domain.FeatureStormID, domain.FeatureTVS}, types)
	severity := h.features.loaded[0].Severity
	require.NotNil(t, severity)
	assert.Equal(t, "severe", *severity)

	assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.TiltsDiscarded.WithLabelValues(volume.DiscardSAILS)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.TiltsDiscarded.WithLabelValues(volume.DiscardLate)), 0)
	assert.Zero(t, testutil.ToFloat64(h.metrics.PendingTilts))
}
