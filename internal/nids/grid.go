package nids

import (
	"fmt"
	"math"
)

// MaxGridCells bounds the number of cells a single grid may hold.
const MaxGridCells = 16 << 20

// RadialGrid is a dense polar grid, one row per radial.
type RadialGrid struct {
	NRadials    int
	NGates      int
	GateSpacing float64 // km
	FirstGate   float64 // km to the center of gate 0
	DeltaAz     float64 // degrees between radials
	Data        []float32
}

// NewRadialGrid allocates a grid with every cell set to Missing.
func NewRadialGrid(nRadials, nGates int, gateSpacing, firstGate, deltaAz float64) (*RadialGrid, error) {
	if nRadials <= 0 || nGates <= 0 {
		return nil, fmt.Errorf("grid %dx%d: %w", nRadials, nGates, ErrMalformedPacket)
	}
	if nRadials*nGates > MaxGridCells {
		return nil, fmt.Errorf("grid %dx%d exceeds %d cells: %w", nRadials, nGates, MaxGridCells, ErrAllocation)
	}
	g := &RadialGrid{
		NRadials:    nRadials,
		NGates:      nGates,
		GateSpacing: gateSpacing,
		FirstGate:   firstGate,
		DeltaAz:     deltaAz,
		Data:        make([]float32, nRadials*nGates),
	}
	for i := range g.Data {
		g.Data[i] = Missing
	}
	return g, nil
}

// Radial returns the gates of radial r.
func (g *RadialGrid) Radial(r int) []float32 {
	return g.Data[r*g.NGates : (r+1)*g.NGates]
}

// At returns the value at radial r, gate n.
func (g *RadialGrid) At(r, n int) float32 { return g.Data[r*g.NGates+n] }

// LastValidGate returns the highest gate index holding data in any radial,
// or -1 when the grid is empty.
func (g *RadialGrid) LastValidGate() int {
	last := -1
	for r := 0; r < g.NRadials; r++ {
		row := g.Radial(r)
		for n := g.NGates - 1; n > last; n-- {
			if row[n] != Missing {
				last = n
				break
			}
		}
	}
	return last
}

// Valid counts the cells holding data.
func (g *RadialGrid) Valid() int {
	n := 0
	for _, v := range g.Data {
		if v != Missing {
			n++
		}
	}
	return n
}

// AzimuthIndex maps an azimuth in degrees to a radial index. The azimuth is
// normalized into [0, 359.95) before rounding and the result is clamped to
// [0, nRadials-1].
func AzimuthIndex(az, delAz float64, nRadials int) int {
	if nRadials <= 0 || delAz <= 0 || math.IsNaN(az) || math.IsInf(az, 0) {
		return 0
	}
	az = math.Mod(az, 360)
	if az < 0 {
		az += 360
	}
	if az >= 359.95 {
		az = 0
	}
	idx := int(math.Round(az / delAz))
	if idx < 0 {
		return 0
	}
	if idx > nRadials-1 {
		return nRadials - 1
	}
	return idx
}

// CartesianGrid is a square grid centered on the radar. Row 0 is the
// southern edge and column 0 the western edge.
type CartesianGrid struct {
	NXY      int
	Spacing  float64 // km
	MaxRange float64 // km from the center to the edge
	Data     []float32
}

// At returns the value at column x, row y.
func (g *CartesianGrid) At(x, y int) float32 { return g.Data[y*g.NXY+x] }
