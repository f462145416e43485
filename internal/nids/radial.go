package nids

import (
	"fmt"
)

const (
	packetRLE     = 0xAF1F
	packetDigital = 16
)

// decodeRLE decodes a run-length encoded radial packet. A radial whose
// declared size runs past the buffer ends decoding; the grid filled so far is
// returned with an ErrBufferUnderrun warning.
func (s *session) decodeRLE() (*RadialGrid, error) {
	c, conv := s.c, s.conv
	rh, grid, err := openRadialPacket(c, conv.Variant(), packetRLE)
	if err != nil {
		return nil, err
	}

	for i := 0; i < grid.NRadials; i++ {
		size := int(rh.Count) * 2
		if size < 0 || size > c.Remaining() {
			s.warn(underrun(i, size, c.Remaining()))
			return grid, nil
		}
		data, _ := c.Bytes(size)

		row := grid.Radial(AzimuthIndex(rh.Azimuth(), grid.DeltaAz, grid.NRadials))
		gate := 0
		for _, b := range data {
			run, val := conv.ConvertRunLength(b)
			for k := 0; k < run && gate < grid.NGates; k++ {
				row[gate] = val
				gate++
			}
		}

		if i < grid.NRadials-1 {
			if rh, err = readRadialHeader(c); err != nil {
				s.warn(underrun(i+1, radialHeaderSize, c.Remaining()))
				return grid, nil
			}
		}
	}
	return grid, nil
}

// decodeDigital decodes a digital radial packet: one byte per gate followed by
// any pad bytes the radial header declares.
func (s *session) decodeDigital() (*RadialGrid, error) {
	c, conv := s.c, s.conv
	rh, grid, err := openRadialPacket(c, conv.Variant(), packetDigital)
	if err != nil {
		return nil, err
	}

	for i := 0; i < grid.NRadials; i++ {
		size := int(rh.Count)
		if size < 0 || size > c.Remaining() {
			s.warn(underrun(i, size, c.Remaining()))
			return grid, nil
		}
		data, _ := c.Bytes(size)
		if len(data) > grid.NGates {
			data = data[:grid.NGates]
		}

		row := grid.Radial(AzimuthIndex(rh.Azimuth(), grid.DeltaAz, grid.NRadials))
		for n, b := range data {
			row[n] = conv.ConvertByte(b)
		}

		if i < grid.NRadials-1 {
			if rh, err = readRadialHeader(c); err != nil {
				s.warn(underrun(i+1, radialHeaderSize, c.Remaining()))
				return grid, nil
			}
		}
	}
	return grid, nil
}

// openRadialPacket reads the packet header and the first radial header and
// allocates the grid they describe.
func openRadialPacket(c *Cursor, v Variant, code uint16) (RadialHeader, *RadialGrid, error) {
	ph, err := readRadialPacketHeader(c)
	if err != nil {
		return RadialHeader{}, nil, err
	}
	if ph.Code != code {
		return RadialHeader{}, nil, fmt.Errorf("radial packet code %#x, want %#x: %w", ph.Code, code, ErrMalformedPacket)
	}
	rh, err := readRadialHeader(c)
	if err != nil {
		return rh, nil, err
	}

	nRadials := int(ph.NumRadials)
	delAz := float64(rh.DeltaAngle) / 10
	if delAz <= 0 && nRadials > 0 {
		delAz = 360 / float64(nRadials)
	}
	gateKm := v.GateKm
	if gateKm == 0 && ph.ScaleFactor > 0 {
		gateKm = float64(ph.ScaleFactor) / 1000
	}
	grid, err := NewRadialGrid(nRadials, int(ph.NumBins), gateKm, float64(ph.FirstBin)*gateKm, delAz)
	if err != nil {
		return rh, nil, err
	}
	return rh, grid, nil
}

func underrun(radial, need, have int) error {
	return fmt.Errorf("radial %d needs %d bytes, %d remain: %w", radial, need, have, ErrBufferUnderrun)
}
