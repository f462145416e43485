package volume

import (
	"cmp"
	"slices"
	"time"

	"github.com/couchcryptid/storm-data-nids/internal/nids"
)

// Discard reasons reported to Options.OnDiscard.
const (
	DiscardSAILS     = "sails"
	DiscardDuplicate = "duplicate"
	DiscardLate      = "late"
	DiscardUnknown   = "unknown_suffix"
)

// Tilt is one decoded product file entering assembly.
type Tilt struct {
	Radar        string
	Suffix       string
	Path         string
	VolumeNumber int
	TiltIndex    int // elevation number from the description block
	Elevation    float64
	Time         time.Time
	Product      *nids.Product

	// Cartesian is set by Volume.Resample.
	Cartesian *nids.CartesianGrid
}

// NewTilt wraps a decoded product.
func NewTilt(radar, suffix, path string, p *nids.Product) *Tilt {
	return &Tilt{
		Radar:        radar,
		Suffix:       suffix,
		Path:         path,
		VolumeNumber: int(p.Description.VolumeNumber),
		TiltIndex:    int(p.Description.ElevationNumber),
		Elevation:    p.Elevation(),
		Time:         p.VolumeTime(),
		Product:      p,
	}
}

// Volume is a flushed multi-tilt volume. Complete is false when the volume
// was flushed without its end-of-volume tilt being observed.
type Volume struct {
	Radar    string
	Family   string
	Number   int
	Time     time.Time
	Layers   []*Tilt
	Complete bool
}

// Resample remaps every polar layer onto a Cartesian grid. The first layer
// fixes the geometry every later layer reuses.
func (v *Volume) Resample(opts nids.RemapOptions) error {
	first := true
	for _, l := range v.Layers {
		if l.Product == nil || l.Product.Radial == nil {
			continue
		}
		g, err := nids.Remap(l.Product.Radial, opts)
		if err != nil {
			return err
		}
		if first {
			opts = g.Options()
			first = false
		}
		l.Cartesian = g
	}
	return nil
}

// Options configure an Assembler.
type Options struct {
	// StopAfterTilt ends a volume once the tilt at this family position is
	// merged. Negative disables it.
	StopAfterTilt int
	// OnDiscard is called for every tilt the assembler drops.
	OnDiscard func(t *Tilt, reason string)
}

// Assembler drives the volume state machine for one (radar, family) stream.
// It is not safe for concurrent use; feed each stream from one goroutine.
type Assembler struct {
	family  Family
	opts    Options
	cur     *Volume
	lastPos int
	// flushed holds the numbers of the most recently flushed volumes, oldest
	// first. Tilts of these volumes are late.
	flushed []int
	pending []*Tilt
}

// recentVolumes bounds Assembler.flushed. Volume numbers wrap at 80.
const recentVolumes = 8

// NewAssembler returns an idle assembler for family.
func NewAssembler(family Family, opts Options) *Assembler {
	return &Assembler{family: family, opts: opts}
}

// Family returns the family the assembler was built for.
func (a *Assembler) Family() Family { return a.family }

// Pending returns the number of buffered out-of-order tilts.
func (a *Assembler) Pending() int { return len(a.pending) }

// Active reports whether a volume is accumulating.
func (a *Assembler) Active() bool { return a.cur != nil }

// Current returns the number of the accumulating volume and the suffix of
// its last merged tilt. ok is false when no volume is active.
func (a *Assembler) Current() (number int, suffix string, ok bool) {
	if a.cur == nil {
		return 0, "", false
	}
	return a.cur.Number, a.family.Suffixes[a.lastPos], true
}

// Add feeds one tilt and returns the volumes it caused to be flushed, in
// flush order.
func (a *Assembler) Add(t *Tilt) []*Volume {
	pos := a.family.Position(t.Suffix)
	if pos < 0 {
		a.discard(t, DiscardUnknown)
		return nil
	}

	if a.cur == nil || t.VolumeNumber != a.cur.Number {
		if slices.Contains(a.flushed, t.VolumeNumber) {
			a.discard(t, DiscardLate)
			return nil
		}
		if pos != 0 {
			a.buffer(t)
			return nil
		}
		out := a.flushCurrent()
		out = append(out, a.flushStale(t.VolumeNumber)...)
		a.cur = &Volume{Radar: t.Radar, Family: a.family.Name, Number: t.VolumeNumber, Time: t.Time}
		return append(out, a.merge(t, pos)...)
	}

	switch {
	case pos == a.lastPos+1:
		return a.merge(t, pos)
	case pos == 0:
		a.discard(t, DiscardSAILS)
	case pos <= a.lastPos:
		a.discard(t, DiscardDuplicate)
	default:
		a.buffer(t)
	}
	return nil
}

// Close flushes the in-progress volume and every buffered tilt as
// best-effort volumes, grouped by volume number.
func (a *Assembler) Close() []*Volume {
	out := a.flushCurrent()
	return append(out, a.flushStale(-1)...)
}

// merge appends t to the current volume, drains the pending buffer and
// flushes the volume when its end is observed.
func (a *Assembler) merge(t *Tilt, pos int) []*Volume {
	a.cur.Layers = append(a.cur.Layers, t)
	a.lastPos = pos
	if a.ended(pos) {
		return a.finish()
	}

	for drained := true; drained; {
		drained = false
		for i, p := range a.pending {
			if p.VolumeNumber != a.cur.Number || a.family.Position(p.Suffix) != a.lastPos+1 {
				continue
			}
			a.pending = slices.Delete(a.pending, i, i+1)
			a.cur.Layers = append(a.cur.Layers, p)
			a.lastPos++
			if a.ended(a.lastPos) {
				return a.finish()
			}
			drained = true
			break
		}
	}
	return nil
}

func (a *Assembler) ended(pos int) bool {
	if pos == len(a.family.Suffixes)-1 {
		return true
	}
	return a.opts.StopAfterTilt >= 0 && pos >= a.opts.StopAfterTilt
}

// finish flushes the current volume as complete. Tilts still buffered for
// it are stale duplicates or beyond the stop tilt and are discarded.
func (a *Assembler) finish() []*Volume {
	v := a.cur
	v.Complete = true
	a.record(v.Number)
	a.cur = nil
	a.lastPos = 0
	a.pending = slices.DeleteFunc(a.pending, func(p *Tilt) bool {
		if p.VolumeNumber != v.Number {
			return false
		}
		a.discard(p, DiscardDuplicate)
		return true
	})
	return []*Volume{v}
}

// flushCurrent flushes the in-progress volume without its end tilt. Its
// buffered tilts are appended in tilt order first.
func (a *Assembler) flushCurrent() []*Volume {
	if a.cur == nil {
		return nil
	}
	v := a.cur
	a.record(v.Number)
	a.cur = nil
	a.lastPos = 0
	var rest []*Tilt
	for _, p := range a.sortedPending() {
		if p.VolumeNumber == v.Number {
			v.Layers = append(v.Layers, p)
		} else {
			rest = append(rest, p)
		}
	}
	a.pending = rest
	return []*Volume{v}
}

// flushStale flushes buffered tilts of every volume other than keep as
// incomplete volumes, one per volume number in ascending order.
func (a *Assembler) flushStale(keep int) []*Volume {
	var out []*Volume
	var kept []*Tilt
	byNumber := map[int]*Volume{}
	for _, p := range a.sortedPending() {
		if p.VolumeNumber == keep {
			kept = append(kept, p)
			continue
		}
		v, ok := byNumber[p.VolumeNumber]
		if !ok {
			v = &Volume{Radar: p.Radar, Family: a.family.Name, Number: p.VolumeNumber, Time: p.Time}
			byNumber[p.VolumeNumber] = v
			out = append(out, v)
			a.record(p.VolumeNumber)
		}
		v.Layers = append(v.Layers, p)
	}
	a.pending = kept
	slices.SortStableFunc(out, func(x, y *Volume) int { return cmp.Compare(x.Number, y.Number) })
	return out
}

// record marks a volume number as flushed.
func (a *Assembler) record(number int) {
	a.flushed = slices.DeleteFunc(a.flushed, func(n int) bool { return n == number })
	a.flushed = append(a.flushed, number)
	if len(a.flushed) > recentVolumes {
		a.flushed = slices.Delete(a.flushed, 0, len(a.flushed)-recentVolumes)
	}
}

// buffer inserts t into the pending list, ordered by tilt index.
func (a *Assembler) buffer(t *Tilt) {
	i, _ := slices.BinarySearchFunc(a.pending, t, func(p, t *Tilt) int {
		if c := cmp.Compare(p.TiltIndex, t.TiltIndex); c != 0 {
			return c
		}
		// Equal tilt indexes keep arrival order.
		return -1
	})
	a.pending = slices.Insert(a.pending, i, t)
}

func (a *Assembler) sortedPending() []*Tilt {
	out := slices.Clone(a.pending)
	slices.SortStableFunc(out, func(x, y *Tilt) int { return cmp.Compare(x.TiltIndex, y.TiltIndex) })
	return out
}

func (a *Assembler) discard(t *Tilt, reason string) {
	if a.opts.OnDiscard != nil {
		a.opts.OnDiscard(t, reason)
	}
}
