package nids

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAzimuthIndex(t *testing.T) {
	tests := []struct {
		name     string
		az       float64
		delAz    float64
		nRadials int
		want     int
	}{
		{"zero", 0, 1, 360, 0},
		{"just below north wraps", 359.97, 1, 360, 0},
		{"rounds down", 359.4, 1, 360, 359},
		{"rounds up clamps", 359.6, 1, 360, 359},
		{"negative normalizes", -90, 1, 360, 270},
		{"above 360 normalizes", 720.4, 1, 360, 0},
		{"coarse radials", 300, 90, 4, 3},
		{"half degree radials", 10.25, 0.5, 720, 21},
		{"NaN", math.NaN(), 1, 360, 0},
		{"zero delta", 45, 0, 360, 0},
		{"no radials", 45, 1, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AzimuthIndex(tt.az, tt.delAz, tt.nRadials))
		})
	}
}

func TestAzimuthIndex_AlwaysInRange(t *testing.T) {
	for _, n := range []int{1, 4, 360, 720} {
		delAz := 360 / float64(n)
		for az := -1000.0; az <= 1000; az += 0.37 {
			idx := AzimuthIndex(az, delAz, n)
			require.GreaterOrEqual(t, idx, 0)
			require.Less(t, idx, n)
			assert.Equal(t, idx, AzimuthIndex(float64(idx)*delAz, delAz, n), "az %g", az)
		}
	}
}

func TestNewRadialGrid(t *testing.T) {
	g, err := NewRadialGrid(3, 4, 0.25, 2, 120)
	require.NoError(t, err)
	assert.Len(t, g.Data, 12)
	assert.Equal(t, 0, g.Valid())
	assert.Equal(t, -1, g.LastValidGate())

	g.Radial(1)[2] = 7
	assert.Equal(t, float32(7), g.At(1, 2))
	assert.Equal(t, 2, g.LastValidGate())
	assert.Equal(t, 1, g.Valid())

	_, err = NewRadialGrid(0, 4, 1, 0, 1)
	assert.ErrorIs(t, err, ErrMalformedPacket)

	_, err = NewRadialGrid(5000, 5000, 1, 0, 1)
	assert.ErrorIs(t, err, ErrAllocation)
}

func TestRemap_DefaultExtent(t *testing.T) {
	g, err := NewRadialGrid(360, 460, 1.0, 0, 1)
	require.NoError(t, err)
	g.Radial(0)[100] = 42
	g.Radial(90)[229] = 10

	out, err := Remap(g, RemapOptions{})
	require.NoError(t, err)
	assert.InDelta(t, 230.0, out.MaxRange, 1e-9)
	assert.Equal(t, 460, out.NXY)
	assert.InDelta(t, 1.0, out.Spacing, 1e-9)

	// 100.5 km north of the radar, just east of the center column.
	assert.Equal(t, float32(42), out.At(230, 330))
	// 229.5 km east, row just north of center.
	assert.Equal(t, float32(10), out.At(459, 230))
	assert.Equal(t, Missing, out.At(230, 100))
}

func TestRemap_Deterministic(t *testing.T) {
	g, err := NewRadialGrid(36, 20, 0.5, 0, 10)
	require.NoError(t, err)
	for i := range g.Data {
		g.Data[i] = float32(i % 17)
	}

	a, err := Remap(g, RemapOptions{Spacing: 0.25})
	require.NoError(t, err)
	b, err := Remap(g, RemapOptions{Spacing: 0.25})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestRemap_OutOfRangeStaysMissing(t *testing.T) {
	g, err := NewRadialGrid(36, 10, 1.0, 0, 10)
	require.NoError(t, err)
	for i := range g.Data {
		g.Data[i] = 1
	}

	out, err := Remap(g, RemapOptions{MaxRange: 20})
	require.NoError(t, err)
	assert.Equal(t, 40, out.NXY)
	assert.Equal(t, Missing, out.At(0, 0))
	assert.Equal(t, float32(1), out.At(20, 20))
	assert.Equal(t, RemapOptions{Spacing: 1, MaxRange: 20}, out.Options())
}

func TestRemap_Guards(t *testing.T) {
	_, err := Remap(nil, RemapOptions{})
	assert.ErrorIs(t, err, ErrMalformedPacket)

	g, err := NewRadialGrid(4, 4, 1.0, 0, 90)
	require.NoError(t, err)
	_, err = Remap(g, RemapOptions{Spacing: 0.01, MaxRange: 1000})
	assert.ErrorIs(t, err, ErrAllocation)
}
