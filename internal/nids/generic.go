package nids

import (
	"bytes"
	"fmt"

	xdr "github.com/davecgh/go-xdr/xdr2"
)

const (
	packetGeneric     = 28
	packetGenericAlt  = 29
	genericRadialComp = 1
	maxXDRString      = 1 << 16
	maxXDRCount       = 1 << 20
)

// GenericInfo carries the descriptive fields of a generic product container.
type GenericInfo struct {
	Name        string
	Description string
	Params      map[string]string
}

// xdrReader reads the XDR encoding used inside generic packets. Lengths and
// counts are checked against the bytes left before anything is allocated.
type xdrReader struct {
	r   *bytes.Reader
	dec *xdr.Decoder
}

func newXDRReader(body []byte) xdrReader {
	r := bytes.NewReader(body)
	return xdrReader{r: r, dec: xdr.NewDecoder(r)}
}

func (x xdrReader) int32() (int32, error) {
	v, _, err := x.dec.DecodeInt()
	return v, truncated(err)
}

func (x xdrReader) uint32() (uint32, error) {
	v, _, err := x.dec.DecodeUint()
	return v, truncated(err)
}

func (x xdrReader) float32() (float32, error) {
	v, _, err := x.dec.DecodeFloat()
	return v, truncated(err)
}

// count reads an element count. Every element takes at least four bytes.
func (x xdrReader) count() (int, error) {
	n, err := x.int32()
	if err != nil {
		return 0, err
	}
	if n < 0 || n > maxXDRCount || int(n) > x.r.Len()/4 {
		return 0, fmt.Errorf("xdr count %d: %w", n, ErrMalformedPacket)
	}
	return int(n), nil
}

func (x xdrReader) string() (string, error) {
	n, err := x.uint32()
	if err != nil {
		return "", err
	}
	if n > maxXDRString || int(n) > x.r.Len() {
		return "", fmt.Errorf("xdr string length %d: %w", n, ErrMalformedPacket)
	}
	b, _, err := x.dec.DecodeFixedOpaque(int32(n))
	if err != nil {
		return "", truncated(err)
	}
	return string(b), nil
}

func (x xdrReader) skip(n int) error {
	if n > x.r.Len() {
		return fmt.Errorf("xdr skip %d of %d: %w", n, x.r.Len(), ErrTruncatedRecord)
	}
	_, _, err := x.dec.DecodeFixedOpaque(int32(n))
	return truncated(err)
}

func truncated(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("generic packet: %v: %w", err, ErrTruncatedRecord)
}

func (x xdrReader) params(into map[string]string) error {
	n, err := x.count()
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		id, err := x.string()
		if err != nil {
			return err
		}
		attrs, err := x.string()
		if err != nil {
			return err
		}
		into[id] = attrs
	}
	return nil
}

type genericRadial struct {
	azimuth float32
	width   float32
	bins    []uint16
}

// decodeGeneric reads a generic packet and copies every 16-bit sample of its
// radial component through the converter.
func (s *session) decodeGeneric() (*RadialGrid, *GenericInfo, error) {
	gh, err := readGenericPacketHeader(s.c)
	if err != nil {
		return nil, nil, err
	}
	if gh.Code != packetGeneric && gh.Code != packetGenericAlt {
		return nil, nil, fmt.Errorf("generic packet code %d: %w", gh.Code, ErrMalformedPacket)
	}
	body, err := s.c.Bytes(int(gh.ByteCount))
	if err != nil {
		return nil, nil, fmt.Errorf("generic packet body: %w", err)
	}

	// XDR is big-endian regardless of how the surrounding product was written.
	x := newXDRReader(body)
	info := &GenericInfo{Params: map[string]string{}}

	if info.Name, err = x.string(); err != nil {
		return nil, nil, err
	}
	if info.Description, err = x.string(); err != nil {
		return nil, nil, err
	}
	// product id, type, generation time
	if err := x.skip(12); err != nil {
		return nil, nil, err
	}
	if _, err := x.string(); err != nil { // radar name
		return nil, nil, err
	}
	// radar lat/lon/height, volume time, elevation time, elevation angle,
	// volume number, mode, vcp, elevation number, compression, size
	if err := x.skip(12 * 4); err != nil {
		return nil, nil, err
	}
	if err := x.params(info.Params); err != nil {
		return nil, nil, err
	}

	ncomp, err := x.count()
	if err != nil {
		return nil, nil, err
	}
	if ncomp == 0 {
		return nil, nil, fmt.Errorf("generic product has no components: %w", ErrMalformedPacket)
	}
	// Only the first component is gridded.
	ctype, err := x.int32()
	if err != nil {
		return nil, nil, err
	}
	if ctype != genericRadialComp {
		return nil, nil, fmt.Errorf("generic component type %d: %w", ctype, ErrMalformedPacket)
	}
	grid, err := s.genericRadialComponent(x, info)
	if err != nil {
		return nil, nil, err
	}
	return grid, info, nil
}

func (s *session) genericRadialComponent(x xdrReader, info *GenericInfo) (*RadialGrid, error) {
	desc, err := x.string()
	if err != nil {
		return nil, err
	}
	if info.Description == "" {
		info.Description = desc
	}
	binSize, err := x.float32()
	if err != nil {
		return nil, err
	}
	firstRange, err := x.float32()
	if err != nil {
		return nil, err
	}
	if err := x.params(info.Params); err != nil {
		return nil, err
	}

	nrad, err := x.count()
	if err != nil {
		return nil, err
	}
	radials := make([]genericRadial, 0, nrad)
	maxBins := 0
	for i := 0; i < nrad; i++ {
		var r genericRadial
		if r.azimuth, err = x.float32(); err != nil {
			return nil, err
		}
		if _, err = x.float32(); err != nil { // elevation
			return nil, err
		}
		if r.width, err = x.float32(); err != nil {
			return nil, err
		}
		nbins, err := x.count()
		if err != nil {
			return nil, err
		}
		if _, err = x.string(); err != nil { // attributes
			return nil, err
		}
		n, err := x.count()
		if err != nil {
			return nil, err
		}
		if n != nbins {
			return nil, fmt.Errorf("radial %d declares %d bins, carries %d: %w", i, nbins, n, ErrMalformedPacket)
		}
		r.bins = make([]uint16, n)
		for k := range r.bins {
			w, err := x.uint32()
			if err != nil {
				return nil, err
			}
			r.bins[k] = uint16(w)
		}
		maxBins = max(maxBins, n)
		radials = append(radials, r)
	}

	delAz := 0.0
	if len(radials) > 0 {
		delAz = float64(radials[0].width)
	}
	if delAz <= 0 && nrad > 0 {
		delAz = 360 / float64(nrad)
	}
	gateKm := float64(binSize) / 1000
	grid, err := NewRadialGrid(nrad, maxBins, gateKm, float64(firstRange)/1000, delAz)
	if err != nil {
		return nil, err
	}
	for _, r := range radials {
		row := grid.Radial(AzimuthIndex(float64(r.azimuth), delAz, nrad))
		for k, v := range r.bins {
			row[k] = s.conv.ConvertData(v)
		}
	}
	return grid, nil
}
