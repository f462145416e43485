package nids

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Fixed record sizes in bytes.
const (
	messageHeaderSize     = 20 // 18-byte header plus the block divider
	descriptionSize       = 100
	productHeaderSize     = messageHeaderSize + descriptionSize
	symbologyHeaderSize   = 16
	radialPacketSize      = 14
	radialHeaderSize      = 6
	genericPacketSize     = 8
	colorLevelPacketSize  = 6
	linkedVectorHdrSize   = 4
	symbolPacketHdrSize   = 4
	pointSize             = 4
	hailRecordSize        = 10
	stormIDRecordSize     = 6
	mesocycloneRecordSize = 8
)

const blockDivider = -1

// Cursor is a bounds-checked reader over a byte slice. Every multi-byte field
// is decoded with the cursor's byte order exactly once.
type Cursor struct {
	buf   []byte
	off   int
	order binary.ByteOrder
}

// NewCursor returns a cursor over buf. The wire format is big-endian; swap
// selects little-endian for captures that were rewritten in host order.
func NewCursor(buf []byte, swap bool) *Cursor {
	var order binary.ByteOrder = binary.BigEndian
	if swap {
		order = binary.LittleEndian
	}
	return &Cursor{buf: buf, order: order}
}

// take returns the next n bytes and advances past them.
func (c *Cursor) take(n int) ([]byte, error) {
	if n < 0 || c.Remaining() < n {
		return nil, fmt.Errorf("need %d bytes at offset %d, have %d: %w", n, c.off, c.Remaining(), ErrTruncatedRecord)
	}
	b := c.buf[c.off : c.off+n]
	c.off += n
	return b, nil
}

// Remaining returns the number of unread bytes.
func (c *Cursor) Remaining() int { return len(c.buf) - c.off }

// Offset returns the current read position.
func (c *Cursor) Offset() int { return c.off }

// Seek moves the cursor to an absolute offset.
func (c *Cursor) Seek(off int) error {
	if off < 0 || off > len(c.buf) {
		return fmt.Errorf("seek to %d of %d: %w", off, len(c.buf), ErrTruncatedRecord)
	}
	c.off = off
	return nil
}

// Skip advances n bytes.
func (c *Cursor) Skip(n int) error {
	_, err := c.take(n)
	return err
}

// Bytes returns the next n bytes without copying.
func (c *Cursor) Bytes(n int) ([]byte, error) { return c.take(n) }

func (c *Cursor) Uint16() (uint16, error) {
	b, err := c.take(2)
	if err != nil {
		return 0, err
	}
	return c.order.Uint16(b), nil
}

func (c *Cursor) Int16() (int16, error) {
	v, err := c.Uint16()
	return int16(v), err
}

func (c *Cursor) Uint32() (uint32, error) {
	b, err := c.take(4)
	if err != nil {
		return 0, err
	}
	return c.order.Uint32(b), nil
}

func (c *Cursor) Int32() (int32, error) {
	v, err := c.Uint32()
	return int32(v), err
}

func (c *Cursor) Float32() (float32, error) {
	v, err := c.Uint32()
	return math.Float32frombits(v), err
}

func (c *Cursor) u16(b []byte, at int) uint16 { return c.order.Uint16(b[at : at+2]) }
func (c *Cursor) i16(b []byte, at int) int16  { return int16(c.order.Uint16(b[at : at+2])) }
func (c *Cursor) u32(b []byte, at int) uint32 { return c.order.Uint32(b[at : at+4]) }

// MessageHeader is the fixed block at the start of every product, followed by
// the divider that opens the description block.
type MessageHeader struct {
	Code      int16
	Date      uint16
	Time      uint32
	Length    uint32
	Source    uint16
	Dest      uint16
	NumBlocks uint16
	Divider   int16
}

// Valid reports whether the block divider carries the -1 sentinel.
func (h MessageHeader) Valid() bool { return h.Divider == blockDivider }

// Timestamp returns the message date and time in UTC.
func (h MessageHeader) Timestamp() time.Time { return julianTime(h.Date, h.Time) }

func readMessageHeader(c *Cursor) (MessageHeader, error) {
	b, err := c.take(messageHeaderSize)
	if err != nil {
		return MessageHeader{}, fmt.Errorf("message header: %w", err)
	}
	return MessageHeader{
		Code:      c.i16(b, 0),
		Date:      c.u16(b, 2),
		Time:      c.u32(b, 4),
		Length:    c.u32(b, 8),
		Source:    c.u16(b, 12),
		Dest:      c.u16(b, 14),
		NumBlocks: c.u16(b, 16),
		Divider:   c.i16(b, 18),
	}, nil
}

// ProductDescription is the product description block that follows the
// message header divider.
type ProductDescription struct {
	Latitude        int32 // degrees x 1000
	Longitude       int32 // degrees x 1000
	Height          int16 // feet
	Code            int16
	Mode            uint16
	VCP             uint16
	Sequence        int16
	VolumeNumber    uint16
	VolumeDate      uint16
	VolumeTime      uint32
	GenerationDate  uint16
	GenerationTime  uint32
	ElevationNumber int16
	Dependent       [26]uint16
	Version         uint8
	SpotBlank       uint8
	SymbologyOffset uint32 // halfwords from message start, 0 when absent
	GraphicOffset   uint32
	TabularOffset   uint32
}

// Halfword returns product-dependent halfword n using the ICD numbering
// (27, 28, 30, 31-53). Other numbers return 0.
func (p *ProductDescription) Halfword(n int) uint16 {
	switch {
	case n == 27:
		return p.Dependent[0]
	case n == 28:
		return p.Dependent[1]
	case n == 30:
		return p.Dependent[2]
	case n >= 31 && n <= 53:
		return p.Dependent[n-28]
	default:
		return 0
	}
}

// Float32At joins halfwords n and n+1 into an IEEE-754 float.
func (p *ProductDescription) Float32At(n int) float32 {
	return math.Float32frombits(uint32(p.Halfword(n))<<16 | uint32(p.Halfword(n+1)))
}

// VolumeTimestamp returns the start of the volume scan in UTC.
func (p *ProductDescription) VolumeTimestamp() time.Time {
	return julianTime(p.VolumeDate, p.VolumeTime)
}

// GenerationTimestamp returns the product generation time in UTC.
func (p *ProductDescription) GenerationTimestamp() time.Time {
	return julianTime(p.GenerationDate, p.GenerationTime)
}

// Location returns the radar latitude, longitude (degrees) and altitude (m).
func (p *ProductDescription) Location() (lat, lon, altM float64) {
	return float64(p.Latitude) / 1000, float64(p.Longitude) / 1000, float64(p.Height) * 0.3048
}

func readProductDescription(c *Cursor) (ProductDescription, error) {
	b, err := c.take(descriptionSize)
	if err != nil {
		return ProductDescription{}, fmt.Errorf("product description: %w", err)
	}
	p := ProductDescription{
		Latitude:        int32(c.u32(b, 0)),
		Longitude:       int32(c.u32(b, 4)),
		Height:          c.i16(b, 8),
		Code:            c.i16(b, 10),
		Mode:            c.u16(b, 12),
		VCP:             c.u16(b, 14),
		Sequence:        c.i16(b, 16),
		VolumeNumber:    c.u16(b, 18),
		VolumeDate:      c.u16(b, 20),
		VolumeTime:      c.u32(b, 22),
		GenerationDate:  c.u16(b, 26),
		GenerationTime:  c.u32(b, 28),
		ElevationNumber: c.i16(b, 36),
		Version:         b[86],
		SpotBlank:       b[87],
		SymbologyOffset: c.u32(b, 88),
		GraphicOffset:   c.u32(b, 92),
		TabularOffset:   c.u32(b, 96),
	}
	p.Dependent[0] = c.u16(b, 32)
	p.Dependent[1] = c.u16(b, 34)
	p.Dependent[2] = c.u16(b, 38)
	for i := 0; i < 23; i++ {
		p.Dependent[3+i] = c.u16(b, 40+2*i)
	}
	return p, nil
}

// SymbologyHeader opens the product symbology block.
type SymbologyHeader struct {
	Divider      int16
	BlockID      int16
	Length       uint32
	NumLayers    uint16
	LayerDivider int16
	LayerLength  uint32
}

func readSymbologyHeader(c *Cursor) (SymbologyHeader, error) {
	b, err := c.take(symbologyHeaderSize)
	if err != nil {
		return SymbologyHeader{}, fmt.Errorf("symbology header: %w", err)
	}
	return SymbologyHeader{
		Divider:      c.i16(b, 0),
		BlockID:      c.i16(b, 2),
		Length:       c.u32(b, 4),
		NumLayers:    c.u16(b, 8),
		LayerDivider: c.i16(b, 10),
		LayerLength:  c.u32(b, 12),
	}, nil
}

// RadialPacketHeader is shared by the run-length (0xAF1F) and digital (16)
// radial packets.
type RadialPacketHeader struct {
	Code        uint16
	FirstBin    int16
	NumBins     int16
	ICenter     int16
	JCenter     int16
	ScaleFactor int16 // gate spacing x 1000
	NumRadials  int16
}

func readRadialPacketHeader(c *Cursor) (RadialPacketHeader, error) {
	b, err := c.take(radialPacketSize)
	if err != nil {
		return RadialPacketHeader{}, fmt.Errorf("radial packet header: %w", err)
	}
	return RadialPacketHeader{
		Code:        c.u16(b, 0),
		FirstBin:    c.i16(b, 2),
		NumBins:     c.i16(b, 4),
		ICenter:     c.i16(b, 6),
		JCenter:     c.i16(b, 8),
		ScaleFactor: c.i16(b, 10),
		NumRadials:  c.i16(b, 12),
	}, nil
}

// RadialHeader precedes each radial. Count is in halfwords for run-length
// radials and in bytes for digital radials.
type RadialHeader struct {
	Count      int16
	StartAngle int16 // tenths of a degree
	DeltaAngle int16 // tenths of a degree
}

// Azimuth returns the start angle in degrees.
func (h RadialHeader) Azimuth() float64 { return float64(h.StartAngle) / 10 }

func readRadialHeader(c *Cursor) (RadialHeader, error) {
	b, err := c.take(radialHeaderSize)
	if err != nil {
		return RadialHeader{}, fmt.Errorf("radial header: %w", err)
	}
	return RadialHeader{
		Count:      c.i16(b, 0),
		StartAngle: c.i16(b, 2),
		DeltaAngle: c.i16(b, 4),
	}, nil
}

// GenericPacketHeader precedes the serialized generic product container.
type GenericPacketHeader struct {
	Code      uint16
	Reserved  uint16
	ByteCount uint32
}

func readGenericPacketHeader(c *Cursor) (GenericPacketHeader, error) {
	b, err := c.take(genericPacketSize)
	if err != nil {
		return GenericPacketHeader{}, fmt.Errorf("generic packet header: %w", err)
	}
	return GenericPacketHeader{
		Code:      c.u16(b, 0),
		Reserved:  c.u16(b, 2),
		ByteCount: c.u32(b, 4),
	}, nil
}

// ColorLevelPacket is the set-color-level packet (0x0802).
type ColorLevelPacket struct {
	Code      uint16
	Indicator uint16
	Value     uint16
}

func readColorLevelPacket(c *Cursor) (ColorLevelPacket, error) {
	b, err := c.take(colorLevelPacketSize)
	if err != nil {
		return ColorLevelPacket{}, fmt.Errorf("color level packet: %w", err)
	}
	return ColorLevelPacket{Code: c.u16(b, 0), Indicator: c.u16(b, 2), Value: c.u16(b, 4)}, nil
}

// LinkedVectorHeader opens a linked-vector packet (0x0E03).
type LinkedVectorHeader struct {
	Code      uint16
	Indicator uint16 // initialPointFlag when an initial point follows
}

func readLinkedVectorHeader(c *Cursor) (LinkedVectorHeader, error) {
	b, err := c.take(linkedVectorHdrSize)
	if err != nil {
		return LinkedVectorHeader{}, fmt.Errorf("linked vector header: %w", err)
	}
	return LinkedVectorHeader{Code: c.u16(b, 0), Indicator: c.u16(b, 2)}, nil
}

// Point is a plot-space coordinate in quarter-km units.
type Point struct {
	I int16
	J int16
}

func readPoint(c *Cursor) (Point, error) {
	b, err := c.take(pointSize)
	if err != nil {
		return Point{}, fmt.Errorf("point: %w", err)
	}
	return Point{I: c.i16(b, 0), J: c.i16(b, 2)}, nil
}

// SymbolPacketHeader prefixes every graphic symbol packet.
type SymbolPacketHeader struct {
	Code   uint16
	Length uint16 // bytes following the header
}

func readSymbolPacketHeader(c *Cursor) (SymbolPacketHeader, error) {
	b, err := c.take(symbolPacketHdrSize)
	if err != nil {
		return SymbolPacketHeader{}, fmt.Errorf("symbol packet header: %w", err)
	}
	return SymbolPacketHeader{Code: c.u16(b, 0), Length: c.u16(b, 2)}, nil
}

// HailRecord is the body of a hail index packet (19).
type HailRecord struct {
	Point
	ProbHail       int16
	ProbSevereHail int16
	MaxSize        int16 // inches
}

func readHailRecord(c *Cursor) (HailRecord, error) {
	b, err := c.take(hailRecordSize)
	if err != nil {
		return HailRecord{}, fmt.Errorf("hail record: %w", err)
	}
	return HailRecord{
		Point:          Point{I: c.i16(b, 0), J: c.i16(b, 2)},
		ProbHail:       c.i16(b, 4),
		ProbSevereHail: c.i16(b, 6),
		MaxSize:        c.i16(b, 8),
	}, nil
}

// StormIDRecord is the body of a storm id packet (15).
type StormIDRecord struct {
	Point
	ID [2]byte
}

func readStormIDRecord(c *Cursor) (StormIDRecord, error) {
	b, err := c.take(stormIDRecordSize)
	if err != nil {
		return StormIDRecord{}, fmt.Errorf("storm id record: %w", err)
	}
	return StormIDRecord{Point: Point{I: c.i16(b, 0), J: c.i16(b, 2)}, ID: [2]byte{b[4], b[5]}}, nil
}

// MesocycloneRecord is the body of a mesocyclone packet (20).
type MesocycloneRecord struct {
	Point
	Type   int16
	Radius int16 // quarter-km
}

func readMesocycloneRecord(c *Cursor) (MesocycloneRecord, error) {
	b, err := c.take(mesocycloneRecordSize)
	if err != nil {
		return MesocycloneRecord{}, fmt.Errorf("mesocyclone record: %w", err)
	}
	return MesocycloneRecord{
		Point:  Point{I: c.i16(b, 0), J: c.i16(b, 2)},
		Type:   c.i16(b, 4),
		Radius: c.i16(b, 6),
	}, nil
}

// julianTime converts a NIDS date (day 1 = 1970-01-01) and seconds after
// midnight to UTC.
func julianTime(date uint16, secs uint32) time.Time {
	if date == 0 {
		return time.Time{}
	}
	return time.Unix(int64(date-1)*86400+int64(secs), 0).UTC()
}
