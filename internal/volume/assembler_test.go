package volume

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/storm-data-nids/internal/nids"
)

var srm = Family{Name: "srm", Suffixes: []string{"N0S", "N1S", "N2S", "N3S"}}

func tilt(suffix string, vol int) *Tilt {
	return &Tilt{Radar: "KTLX", Suffix: suffix, VolumeNumber: vol, TiltIndex: srm.Position(suffix) + 1}
}

func suffixes(v *Volume) []string {
	out := make([]string, len(v.Layers))
	for i, l := range v.Layers {
		out[i] = l.Suffix
	}
	return out
}

type discards map[string]int

func (d discards) hook(_ *Tilt, reason string) { d[reason]++ }

func feed(a *Assembler, tilts ...*Tilt) []*Volume {
	var out []*Volume
	for _, t := range tilts {
		out = append(out, a.Add(t)...)
	}
	return out
}

func TestAssembler_InOrder(t *testing.T) {
	a := NewAssembler(srm, Options{StopAfterTilt: -1})

	_, _, ok := a.Current()
	assert.False(t, ok)

	out := feed(a, tilt("N0S", 1), tilt("N1S", 1), tilt("N2S", 1))
	assert.Empty(t, out)
	assert.True(t, a.Active())
	num, last, ok := a.Current()
	assert.True(t, ok)
	assert.Equal(t, 1, num)
	assert.Equal(t, "N2S", last)

	out = a.Add(tilt("N3S", 1))
	require.Len(t, out, 1)
	v := out[0]
	assert.Equal(t, []string{"N0S", "N1S", "N2S", "N3S"}, suffixes(v))
	assert.True(t, v.Complete)
	assert.Equal(t, "srm", v.Family)
	assert.Equal(t, "KTLX", v.Radar)
	assert.Equal(t, 1, v.Number)
	assert.False(t, a.Active())
	assert.Empty(t, a.Close())
}

func TestAssembler_OutOfOrderDrains(t *testing.T) {
	a := NewAssembler(srm, Options{StopAfterTilt: -1})

	out := feed(a, tilt("N0S", 1), tilt("N2S", 1))
	assert.Empty(t, out)
	assert.Equal(t, 1, a.Pending())

	out = feed(a, tilt("N1S", 1), tilt("N3S", 1))
	require.Len(t, out, 1)
	assert.Equal(t, []string{"N0S", "N1S", "N2S", "N3S"}, suffixes(out[0]))
	assert.Zero(t, a.Pending())
}

func TestAssembler_DrainsToEnd(t *testing.T) {
	a := NewAssembler(srm, Options{StopAfterTilt: -1})

	out := feed(a, tilt("N3S", 1), tilt("N2S", 1), tilt("N1S", 1))
	assert.Empty(t, out)
	assert.Equal(t, 3, a.Pending())

	out = a.Add(tilt("N0S", 1))
	require.Len(t, out, 1)
	assert.Equal(t, []string{"N0S", "N1S", "N2S", "N3S"}, suffixes(out[0]))
	assert.True(t, out[0].Complete)
}

func TestAssembler_SAILSDuplicateDiscarded(t *testing.T) {
	d := discards{}
	a := NewAssembler(srm, Options{StopAfterTilt: -1, OnDiscard: d.hook})

	out := feed(a, tilt("N0S", 1), tilt("N1S", 1), tilt("N0S", 1), tilt("N2S", 1), tilt("N3S", 1))
	require.Len(t, out, 1)
	assert.Len(t, out[0].Layers, 4)
	assert.Equal(t, 1, d[DiscardSAILS])
}

func TestAssembler_DuplicateAndLateDiscarded(t *testing.T) {
	d := discards{}
	a := NewAssembler(srm, Options{StopAfterTilt: -1, OnDiscard: d.hook})

	out := feed(a, tilt("N0S", 1), tilt("N1S", 1), tilt("N2S", 1), tilt("N1S", 1), tilt("N3S", 1))
	require.Len(t, out, 1)
	assert.Len(t, out[0].Layers, 4)
	assert.Equal(t, 1, d[DiscardDuplicate])

	assert.Empty(t, feed(a, tilt("N0S", 1), tilt("N2S", 1)))
	assert.Equal(t, 2, d[DiscardLate])
	assert.Zero(t, a.Pending())
}

func TestAssembler_UnknownSuffix(t *testing.T) {
	d := discards{}
	a := NewAssembler(srm, Options{StopAfterTilt: -1, OnDiscard: d.hook})
	assert.Empty(t, a.Add(tilt("N0Q", 1)))
	assert.Equal(t, 1, d[DiscardUnknown])
}

func TestAssembler_StopAfterTilt(t *testing.T) {
	a := NewAssembler(srm, Options{StopAfterTilt: 1})

	out := feed(a, tilt("N0S", 1), tilt("N1S", 1))
	require.Len(t, out, 1)
	assert.Equal(t, []string{"N0S", "N1S"}, suffixes(out[0]))
	assert.True(t, out[0].Complete)
}

func TestAssembler_VolumeChangeFlushesWithPending(t *testing.T) {
	a := NewAssembler(srm, Options{StopAfterTilt: -1})

	out := feed(a, tilt("N0S", 1), tilt("N1S", 1), tilt("N3S", 1), tilt("N1S", 2))
	assert.Empty(t, out)

	out = a.Add(tilt("N0S", 2))
	require.Len(t, out, 1)
	assert.Equal(t, 1, out[0].Number)
	assert.False(t, out[0].Complete)
	assert.Equal(t, []string{"N0S", "N1S", "N3S"}, suffixes(out[0]))

	// N1S of volume 2 was waiting and drains behind the new first tilt.
	out = feed(a, tilt("N2S", 2), tilt("N3S", 2))
	require.Len(t, out, 1)
	assert.Equal(t, 2, out[0].Number)
	assert.Equal(t, []string{"N0S", "N1S", "N2S", "N3S"}, suffixes(out[0]))
}

func TestAssembler_CloseFlushesBestEffort(t *testing.T) {
	a := NewAssembler(srm, Options{StopAfterTilt: -1})

	feed(a, tilt("N0S", 1), tilt("N3S", 1), tilt("N2S", 1), tilt("N2S", 2), tilt("N1S", 2))

	out := a.Close()
	require.Len(t, out, 2)
	assert.Equal(t, 1, out[0].Number)
	assert.Equal(t, []string{"N0S", "N2S", "N3S"}, suffixes(out[0]))
	assert.Equal(t, 2, out[1].Number)
	assert.Equal(t, []string{"N1S", "N2S"}, suffixes(out[1]))
	for _, v := range out {
		assert.False(t, v.Complete)
	}
	assert.Zero(t, a.Pending())
	assert.False(t, a.Active())
}

func TestVolumeResample_SharesFirstGeometry(t *testing.T) {
	g1, err := nids.NewRadialGrid(4, 10, 1.0, 0, 90)
	require.NoError(t, err)
	g1.Radial(0)[9] = 1
	g2, err := nids.NewRadialGrid(4, 40, 0.25, 0, 90)
	require.NoError(t, err)
	g2.Radial(0)[3] = 2

	v := &Volume{Layers: []*Tilt{
		{Product: &nids.Product{Radial: g1}},
		{Product: &nids.Product{}},
		{Product: &nids.Product{Radial: g2}},
	}}
	require.NoError(t, v.Resample(nids.RemapOptions{}))

	first := v.Layers[0].Cartesian
	require.NotNil(t, first)
	assert.Equal(t, 20, first.NXY)
	assert.Nil(t, v.Layers[1].Cartesian)
	assert.Equal(t, first.Options(), v.Layers[2].Cartesian.Options())
	assert.Equal(t, first.NXY, v.Layers[2].Cartesian.NXY)
}

func TestAssembler_LateTiltDuringNextVolume(t *testing.T) {
	d := discards{}
	a := NewAssembler(srm, Options{StopAfterTilt: -1, OnDiscard: d.hook})

	out := feed(a, tilt("N0S", 1), tilt("N1S", 1), tilt("N2S", 1), tilt("N3S", 1))
	require.Len(t, out, 1)
	assert.True(t, out[0].Complete)

	assert.Empty(t, feed(a, tilt("N0S", 2), tilt("N1S", 2)))
	// Redelivered tilts of volume 1, first position included, are late and
	// leave volume 2 untouched.
	assert.Empty(t, feed(a, tilt("N2S", 1), tilt("N0S", 1)))
	assert.Equal(t, 2, d[DiscardLate])
	assert.Zero(t, a.Pending())
	num, _, ok := a.Current()
	require.True(t, ok)
	assert.Equal(t, 2, num)

	out = feed(a, tilt("N2S", 2), tilt("N3S", 2))
	require.Len(t, out, 1)
	assert.Equal(t, 2, out[0].Number)
	assert.True(t, out[0].Complete)
	assert.Equal(t, []string{"N0S", "N1S", "N2S", "N3S"}, suffixes(out[0]))
	assert.Empty(t, a.Close())
}

func TestAssembler_LateAfterIncompleteFlush(t *testing.T) {
	d := discards{}
	a := NewAssembler(srm, Options{StopAfterTilt: -1, OnDiscard: d.hook})

	out := feed(a, tilt("N0S", 1), tilt("N1S", 1), tilt("N0S", 2))
	require.Len(t, out, 1)
	assert.False(t, out[0].Complete)

	assert.Empty(t, a.Add(tilt("N2S", 1)))
	assert.Equal(t, 1, d[DiscardLate])
	assert.Zero(t, a.Pending())
}

func TestAssembler_FlushedNumbersAreBounded(t *testing.T) {
	a := NewAssembler(srm, Options{StopAfterTilt: 0})

	for n := 1; n <= recentVolumes+1; n++ {
		require.Len(t, a.Add(tilt("N0S", n)), 1)
	}
	assert.Len(t, a.flushed, recentVolumes)
	assert.NotContains(t, a.flushed, 1)

	// Volume numbers wrap; the oldest number starts a new volume again.
	out := a.Add(tilt("N0S", 1))
	require.Len(t, out, 1)
	assert.Equal(t, 1, out[0].Number)
}
