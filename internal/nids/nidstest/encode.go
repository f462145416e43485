// Package nidstest builds synthetic Level-III product files for tests and
// mock data generation.
package nidstest

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	xdr "github.com/davecgh/go-xdr/xdr2"
	"github.com/dsnet/compress/bzip2"
)

const (
	productHeaderSize = 120
	symbologyHdrSize  = 16
	leadingHeaderSize = 30
)

// Product describes one file to encode. Halfwords uses the ICD numbering
// (27, 28, 30, 31-53); compression halfwords 51-53 are filled in by Bytes
// when Compress is set.
type Product struct {
	Code            int16
	Source          uint16
	Latitude        float64
	Longitude       float64
	HeightFt        int16
	VCP             uint16
	VolumeNumber    uint16
	VolumeTime      time.Time
	ElevationNumber int16
	Halfwords       map[int]uint16

	// Layers holds the data layers of the symbology block. Most products
	// carry one.
	Layers [][]byte

	Compress      bool
	LeadingHeader bool
	LittleEndian  bool
	// SymbologyOffset overrides the offset written to the description block,
	// in halfwords.
	SymbologyOffset uint32
}

// Bytes encodes the product.
func (p Product) Bytes() ([]byte, error) {
	e := newEncoder(p.LittleEndian)

	payload := newEncoder(p.LittleEndian)
	total := symbologyHdrSize
	for i, l := range p.Layers {
		total += len(l)
		if i > 0 {
			total += 6
		}
	}
	payload.i16(-1)
	payload.i16(1)
	payload.u32(uint32(total))
	payload.u16(uint16(len(p.Layers)))
	payload.i16(-1)
	first := 0
	if len(p.Layers) > 0 {
		first = len(p.Layers[0])
	}
	payload.u32(uint32(first))
	for i, l := range p.Layers {
		if i > 0 {
			payload.i16(-1)
			payload.u32(uint32(len(l)))
		}
		payload.raw(l)
	}
	body := payload.bytes()

	hw := map[int]uint16{}
	for k, v := range p.Halfwords {
		hw[k] = v
	}
	if p.Compress {
		z, err := Bzip2(body)
		if err != nil {
			return nil, err
		}
		hw[51] = 1
		hw[52] = uint16(len(body) >> 16)
		hw[53] = uint16(len(body))
		body = z
	}

	if p.LeadingHeader {
		header := fmt.Sprintf("SDUS54 KOUN %s\r\r\n", p.VolumeTime.UTC().Format("021504"))
		e.raw([]byte(fmt.Sprintf("%-*s", leadingHeaderSize, header))[:leadingHeaderSize])
	}

	date, secs := julian(p.VolumeTime)
	e.i16(p.Code)
	e.u16(date)
	e.u32(secs)
	e.u32(uint32(productHeaderSize + len(body)))
	e.u16(p.Source)
	e.u16(0)
	e.u16(3)
	e.i16(-1)

	symOff := p.SymbologyOffset
	if symOff == 0 {
		symOff = productHeaderSize / 2
	}
	e.i32(int32(math.Round(p.Latitude * 1000)))
	e.i32(int32(math.Round(p.Longitude * 1000)))
	e.i16(p.HeightFt)
	e.i16(p.Code)
	e.u16(2)
	e.u16(p.VCP)
	e.i16(1)
	e.u16(p.VolumeNumber)
	e.u16(date)
	e.u32(secs)
	e.u16(date)
	e.u32(secs)
	e.u16(hw[27])
	e.u16(hw[28])
	e.i16(p.ElevationNumber)
	e.u16(hw[30])
	for n := 31; n <= 53; n++ {
		e.u16(hw[n])
	}
	e.raw([]byte{1, 0})
	e.u32(symOff)
	e.u32(0)
	e.u32(0)
	e.raw(body)
	return e.bytes(), nil
}

// Bzip2 compresses b.
func Bzip2(b []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := bzip2.NewWriter(&buf, &bzip2.WriterConfig{Level: bzip2.BestCompression})
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(b); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func julian(t time.Time) (uint16, uint32) {
	if t.IsZero() {
		return 0, 0
	}
	t = t.UTC()
	days := t.Unix() / 86400
	return uint16(days + 1), uint32(t.Unix() - days*86400)
}

// Radial is one radial of a radial packet. For run-length packets Data holds
// (run<<4 | code) bytes and is padded to an even length.
type Radial struct {
	StartAngle float64 // degrees
	DeltaAngle float64 // degrees
	Data       []byte
}

// RadialPacket encodes a run-length (0xAF1F) or digital (16) radial packet.
type RadialPacket struct {
	RunLength   bool
	FirstBin    int16
	NumBins     int16
	ScaleFactor int16
	Radials     []Radial
	// Count overrides the declared size of the radial at that index.
	Count map[int]int16
}

// Bytes encodes the packet big-endian.
func (rp RadialPacket) Bytes() []byte { return rp.Encode(false) }

// Encode encodes the packet in the given byte order.
func (rp RadialPacket) Encode(le bool) []byte {
	e := newEncoder(le)
	code := uint16(16)
	if rp.RunLength {
		code = 0xAF1F
	}
	e.u16(code)
	e.i16(rp.FirstBin)
	e.i16(rp.NumBins)
	e.i16(0)
	e.i16(0)
	e.i16(rp.ScaleFactor)
	e.i16(int16(len(rp.Radials)))
	for i, r := range rp.Radials {
		data := r.Data
		if rp.RunLength && len(data)%2 == 1 {
			data = append(append([]byte{}, data...), 0)
		}
		count := int16(len(data))
		if rp.RunLength {
			count = int16(len(data) / 2)
		}
		if c, ok := rp.Count[i]; ok {
			count = c
		}
		e.i16(count)
		e.i16(int16(math.Round(r.StartAngle * 10)))
		e.i16(int16(math.Round(r.DeltaAngle * 10)))
		e.raw(data)
	}
	return e.bytes()
}

// Runs encodes (run, code) pairs as run-length bytes.
func Runs(pairs ...[2]uint8) []byte {
	out := make([]byte, len(pairs))
	for i, p := range pairs {
		out[i] = p[0]<<4 | p[1]&0x0F
	}
	return out
}

// Contours encodes the four set-color-level and linked-vector packet pairs
// of a melting layer product. The first point of each line is written as
// the initial point.
func Contours(lines [4][][2]int16) []byte {
	e := newEncoder(false)
	for i, line := range lines {
		e.u16(0x0802)
		e.u16(0x0002)
		e.u16(uint16(i + 1))
		e.u16(0x0E03)
		if len(line) == 0 {
			e.u16(0)
			e.i16(0)
			continue
		}
		e.u16(0x8000)
		e.i16(line[0][0])
		e.i16(line[0][1])
		rest := line[1:]
		e.i16(int16(4 * len(rest)))
		for _, pt := range rest {
			e.i16(pt[0])
			e.i16(pt[1])
		}
	}
	return e.bytes()
}

// SymbolPacket is one graphic symbol packet.
type SymbolPacket struct {
	Code uint16
	Body []byte
}

// Symbols encodes symbol packets back to back.
func Symbols(packets ...SymbolPacket) []byte {
	e := newEncoder(false)
	for _, p := range packets {
		e.u16(p.Code)
		e.u16(uint16(len(p.Body)))
		e.raw(p.Body)
	}
	return e.bytes()
}

// Hail builds a hail index packet (19) body.
func Hail(i, j, poh, posh, maxSize int16) SymbolPacket {
	e := newEncoder(false)
	for _, v := range []int16{i, j, poh, posh, maxSize} {
		e.i16(v)
	}
	return SymbolPacket{Code: 19, Body: e.bytes()}
}

// StormID builds a storm id packet (15) body.
func StormID(i, j int16, id string) SymbolPacket {
	e := newEncoder(false)
	e.i16(i)
	e.i16(j)
	b := []byte(fmt.Sprintf("%-2s", id))
	e.raw(b[:2])
	return SymbolPacket{Code: 15, Body: e.bytes()}
}

// Mesocyclone builds a mesocyclone packet (20) body.
func Mesocyclone(i, j, typ, radius int16) SymbolPacket {
	e := newEncoder(false)
	for _, v := range []int16{i, j, typ, radius} {
		e.i16(v)
	}
	return SymbolPacket{Code: 20, Body: e.bytes()}
}

// TVS builds a tornado vortex signature packet (12) holding every point.
func TVS(points ...[2]int16) SymbolPacket {
	e := newEncoder(false)
	for _, p := range points {
		e.i16(p[0])
		e.i16(p[1])
	}
	return SymbolPacket{Code: 12, Body: e.bytes()}
}

// GenericRadial is one radial of a generic radial component.
type GenericRadial struct {
	Azimuth float32
	Width   float32
	Bins    []uint16
}

// Generic encodes a code-28 generic packet holding one radial component.
func Generic(name string, binSizeM, firstRangeM float32, params map[string]string, radials []GenericRadial) []byte {
	var body bytes.Buffer
	x := xdrBody{xdr.NewEncoder(&body)}
	x.str(name)
	x.str(name + " product")
	x.opaque(make([]byte, 12))
	x.str("KTLX")
	x.opaque(make([]byte, 48))
	x.params(nil)
	x.i32(1) // components
	x.i32(1) // radial component
	x.str("radial component")
	x.f32(binSizeM)
	x.f32(firstRangeM)
	x.params(params)
	x.i32(int32(len(radials)))
	for _, r := range radials {
		x.f32(r.Azimuth)
		x.f32(0.5)
		x.f32(r.Width)
		x.i32(int32(len(r.Bins)))
		x.str("")
		x.i32(int32(len(r.Bins)))
		for _, b := range r.Bins {
			x.u32(uint32(b))
		}
	}

	e := newEncoder(false)
	e.u16(28)
	e.u16(0)
	e.u32(uint32(body.Len()))
	e.raw(body.Bytes())
	return e.bytes()
}

// xdrBody writes XDR into a bytes.Buffer, which never fails.
type xdrBody struct{ enc *xdr.Encoder }

func (x xdrBody) i32(v int32)     { _, _ = x.enc.EncodeInt(v) }
func (x xdrBody) u32(v uint32)    { _, _ = x.enc.EncodeUint(v) }
func (x xdrBody) f32(v float32)   { _, _ = x.enc.EncodeFloat(v) }
func (x xdrBody) str(v string)    { _, _ = x.enc.EncodeString(v) }
func (x xdrBody) opaque(b []byte) { _, _ = x.enc.EncodeFixedOpaque(b) }

func (x xdrBody) params(p map[string]string) {
	x.i32(int32(len(p)))
	for k, v := range p {
		x.str(k)
		x.str(v)
	}
}

// FloatHalfwords splits an IEEE float into two halfwords, high word first.
func FloatHalfwords(f float32) (uint16, uint16) {
	b := math.Float32bits(f)
	return uint16(b >> 16), uint16(b)
}

type encoder struct {
	buf   bytes.Buffer
	order binary.ByteOrder
}

func newEncoder(le bool) *encoder {
	var order binary.ByteOrder = binary.BigEndian
	if le {
		order = binary.LittleEndian
	}
	return &encoder{order: order}
}

func (e *encoder) bytes() []byte { return e.buf.Bytes() }
func (e *encoder) raw(b []byte)  { e.buf.Write(b) }
func (e *encoder) i16(v int16)   { e.u16(uint16(v)) }
func (e *encoder) i32(v int32)   { e.u32(uint32(v)) }
func (e *encoder) f32(v float32) { e.u32(math.Float32bits(v)) }

func (e *encoder) u16(v uint16) {
	var b [2]byte
	e.order.PutUint16(b[:], v)
	e.buf.Write(b[:])
}

func (e *encoder) u32(v uint32) {
	var b [4]byte
	e.order.PutUint32(b[:], v)
	e.buf.Write(b[:])
}
