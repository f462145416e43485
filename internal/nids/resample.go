package nids

import (
	"fmt"
	"math"
)

// RemapOptions sets the output geometry of Remap. Zero fields take defaults
// from the polar grid.
type RemapOptions struct {
	Spacing  float64 // km per cell, default the gate spacing
	MaxRange float64 // km from the center to the edge, default the data extent
}

// Options returns the geometry the grid was built with, so further layers
// can be remapped onto the same cells.
func (g *CartesianGrid) Options() RemapOptions {
	return RemapOptions{Spacing: g.Spacing, MaxRange: g.MaxRange}
}

// Remap projects a polar grid onto a square grid centered on the radar by
// nearest-neighbour lookup. Cells beyond the last gate stay Missing.
func Remap(g *RadialGrid, opts RemapOptions) (*CartesianGrid, error) {
	if g == nil || g.NRadials <= 0 || g.NGates <= 0 || g.GateSpacing <= 0 {
		return nil, fmt.Errorf("remap: empty polar grid: %w", ErrMalformedPacket)
	}
	spacing := opts.Spacing
	if spacing <= 0 {
		spacing = g.GateSpacing
	}
	maxRange := opts.MaxRange
	if maxRange <= 0 {
		last := g.LastValidGate()
		if last < 0 {
			last = g.NGates - 1
		}
		maxRange = g.FirstGate + float64(last+1)*g.GateSpacing
	}

	nxy := int(math.Round(2 * maxRange / spacing))
	if nxy <= 0 {
		return nil, fmt.Errorf("remap: %g km at %g km spacing: %w", maxRange, spacing, ErrMalformedPacket)
	}
	if nxy > MaxGridCells/nxy {
		return nil, fmt.Errorf("remap: %dx%d exceeds %d cells: %w", nxy, nxy, MaxGridCells, ErrAllocation)
	}

	out := &CartesianGrid{NXY: nxy, Spacing: spacing, MaxRange: maxRange, Data: make([]float32, nxy*nxy)}
	half := float64(nxy) * spacing / 2
	for row := 0; row < nxy; row++ {
		y := (float64(row)+0.5)*spacing - half
		for col := 0; col < nxy; col++ {
			x := (float64(col)+0.5)*spacing - half
			out.Data[row*nxy+col] = g.sample(x, y)
		}
	}
	return out, nil
}

// sample returns the polar value nearest to the point x km east, y km north.
func (g *RadialGrid) sample(x, y float64) float32 {
	r := math.Hypot(x, y)
	gate := int(math.Floor((r - g.FirstGate) / g.GateSpacing))
	if gate < 0 || gate >= g.NGates {
		return Missing
	}
	bearing := math.Atan2(x, y) * 180 / math.Pi
	if bearing < 0 {
		bearing += 360
	}
	return g.At(AzimuthIndex(bearing, g.DeltaAz, g.NRadials), gate)
}
