package nids

import (
	"fmt"
	"math"
	"slices"
)

// Missing marks absent, below-threshold or out-of-range data.
const Missing float32 = -999.0

// Kind identifies one product variant.
type Kind int

const (
	BaseReflectivity Kind = iota + 1
	BaseVelocity
	DigitalHybridReflectivity
	DifferentialReflectivity
	CorrelationCoefficient
	SpecificDifferentialPhase
	HydrometeorClassification
	HybridHydrometeorClass
	EchoTops
	VIL
	DigitalStormTotalPrecip
	DigitalAccumulationArray
	DigitalStormTotalAccum
	DigitalPrecipRate
	StormRelativeVelocity
	OneHourPrecip
	StormTotalPrecip
	TDWRReflectivity
	MeltingLayer
	Mesocyclone
	TornadoVortexSignature
	HailIndex
)

// Payload selects the symbology decoder a variant uses.
type Payload int

const (
	PayloadRLE Payload = iota + 1
	PayloadDigital
	PayloadGeneric
	PayloadContour
	PayloadSymbol
)

func (p Payload) String() string {
	switch p {
	case PayloadRLE:
		return "rle"
	case PayloadDigital:
		return "digital"
	case PayloadGeneric:
		return "generic"
	case PayloadContour:
		return "contour"
	case PayloadSymbol:
		return "symbol"
	default:
		return "unknown"
	}
}

// Variant describes how one product code is decoded.
type Variant struct {
	Kind      Kind
	Code      int16
	Name      string
	Mnemonic  string
	Units     string
	Payload   Payload
	GateKm    float64 // nominal gate spacing, 0 when carried by the payload
	elevation bool    // HW30 carries the elevation angle
	compress  bool    // HW51-53 carry compression metadata
	table     *[16]float32
}

var (
	srmTable = [16]float32{Missing, -50, -40, -30, -20, -10, -5, -1, 0, 5, 10, 20, 30, 40, 50, Missing}
	ohpTable = [16]float32{Missing, 0, 0.1, 0.25, 0.5, 0.75, 1.0, 1.25, 1.5, 1.75, 2.0, 2.5, 3.0, 4.0, 5.0, 6.0}
	stpTable = [16]float32{Missing, 0, 0.3, 0.6, 1.0, 1.5, 2.0, 2.5, 3.0, 4.0, 5.0, 6.0, 8.0, 10.0, 12.0, 15.0}
	tdwTable = [16]float32{Missing, 5, 10, 15, 20, 25, 30, 35, 40, 45, 50, 55, 60, 65, 70, 75}
)

var registry = map[int16]Variant{
	94:  {Kind: BaseReflectivity, Code: 94, Name: "Base Reflectivity", Mnemonic: "DR", Units: "dBZ", Payload: PayloadDigital, GateKm: 1.0, elevation: true, compress: true},
	99:  {Kind: BaseVelocity, Code: 99, Name: "Base Velocity", Mnemonic: "DV", Units: "m/s", Payload: PayloadDigital, GateKm: 0.25, elevation: true, compress: true},
	32:  {Kind: DigitalHybridReflectivity, Code: 32, Name: "Digital Hybrid Scan Reflectivity", Mnemonic: "DHR", Units: "dBZ", Payload: PayloadDigital, GateKm: 1.0, compress: true},
	159: {Kind: DifferentialReflectivity, Code: 159, Name: "Differential Reflectivity", Mnemonic: "DZD", Units: "dB", Payload: PayloadDigital, GateKm: 0.25, elevation: true, compress: true},
	161: {Kind: CorrelationCoefficient, Code: 161, Name: "Correlation Coefficient", Mnemonic: "DCC", Units: "", Payload: PayloadDigital, GateKm: 0.25, elevation: true, compress: true},
	163: {Kind: SpecificDifferentialPhase, Code: 163, Name: "Specific Differential Phase", Mnemonic: "DKD", Units: "deg/km", Payload: PayloadDigital, GateKm: 0.25, elevation: true, compress: true},
	165: {Kind: HydrometeorClassification, Code: 165, Name: "Hydrometeor Classification", Mnemonic: "DHC", Units: "class", Payload: PayloadDigital, GateKm: 0.25, elevation: true, compress: true},
	177: {Kind: HybridHydrometeorClass, Code: 177, Name: "Hybrid Hydrometeor Classification", Mnemonic: "HHC", Units: "class", Payload: PayloadDigital, GateKm: 0.25, compress: true},
	135: {Kind: EchoTops, Code: 135, Name: "Enhanced Echo Tops", Mnemonic: "EET", Units: "kft", Payload: PayloadDigital, GateKm: 1.0, compress: true},
	134: {Kind: VIL, Code: 134, Name: "Digital Vertically Integrated Liquid", Mnemonic: "DVL", Units: "kg/m2", Payload: PayloadDigital, GateKm: 1.0, compress: true},
	138: {Kind: DigitalStormTotalPrecip, Code: 138, Name: "Digital Storm Total Precipitation", Mnemonic: "DSP", Units: "in", Payload: PayloadDigital, GateKm: 2.0, compress: true},
	170: {Kind: DigitalAccumulationArray, Code: 170, Name: "Digital Accumulation Array", Mnemonic: "DAA", Units: "in", Payload: PayloadDigital, GateKm: 0.25, compress: true},
	172: {Kind: DigitalStormTotalAccum, Code: 172, Name: "Digital Storm Total Accumulation", Mnemonic: "DTA", Units: "in", Payload: PayloadDigital, GateKm: 0.25, compress: true},
	176: {Kind: DigitalPrecipRate, Code: 176, Name: "Digital Instantaneous Precipitation Rate", Mnemonic: "DPR", Units: "in/h", Payload: PayloadGeneric, compress: true},
	56:  {Kind: StormRelativeVelocity, Code: 56, Name: "Storm Relative Mean Velocity", Mnemonic: "SRM", Units: "kt", Payload: PayloadRLE, GateKm: 1.0, elevation: true, table: &srmTable},
	78:  {Kind: OneHourPrecip, Code: 78, Name: "One Hour Precipitation", Mnemonic: "OHP", Units: "in", Payload: PayloadRLE, GateKm: 2.0, table: &ohpTable},
	80:  {Kind: StormTotalPrecip, Code: 80, Name: "Storm Total Precipitation", Mnemonic: "STP", Units: "in", Payload: PayloadRLE, GateKm: 2.0, table: &stpTable},
	181: {Kind: TDWRReflectivity, Code: 181, Name: "TDWR Base Reflectivity", Mnemonic: "TR0", Units: "dBZ", Payload: PayloadRLE, GateKm: 0.15, elevation: true, table: &tdwTable},
	166: {Kind: MeltingLayer, Code: 166, Name: "Melting Layer", Mnemonic: "ML", Payload: PayloadContour, elevation: true},
	141: {Kind: Mesocyclone, Code: 141, Name: "Mesocyclone Detection", Mnemonic: "MD", Payload: PayloadSymbol},
	61:  {Kind: TornadoVortexSignature, Code: 61, Name: "Tornado Vortex Signature", Mnemonic: "TVS", Payload: PayloadSymbol},
	59:  {Kind: HailIndex, Code: 59, Name: "Hail Index", Mnemonic: "HI", Payload: PayloadSymbol},
}

// Select returns the variant for a message code.
func Select(code int16) (Variant, error) {
	v, ok := registry[code]
	if !ok {
		return Variant{}, fmt.Errorf("product code %d: %w", code, ErrUnsupportedProduct)
	}
	return v, nil
}

// Codes lists every supported product code in ascending order.
func Codes() []int16 {
	codes := make([]int16, 0, len(registry))
	for c := range registry {
		codes = append(codes, c)
	}
	slices.Sort(codes)
	return codes
}

// Compression methods carried in HW51.
const (
	CompressionNone  = 0
	CompressionBzip2 = 1
)

// Params holds the decode parameters a variant extracts from the
// product-dependent halfwords. Only the fields its strategy uses are set.
type Params struct {
	Base       float64
	Increment  float64
	Levels     int
	Scale      float64
	Offset     float64
	DataMask   uint16
	ToppedMask uint16
	LinScale   float64
	LinOffset  float64
	LogStart   int
	LogScale   float64
	LogOffset  float64
}

// Metadata is derived once per file from the description block.
type Metadata struct {
	ElevationAngle    float64
	CompressionMethod uint16
	UncompressedSize  int
	Params            Params
}

// Compressed reports whether the payload after the description block is compressed.
func (m Metadata) Compressed() bool { return m.CompressionMethod != CompressionNone }

// Validate rejects metadata whose compression flag and size disagree.
func (m Metadata) Validate() error {
	if m.Compressed() && m.UncompressedSize == 0 {
		return fmt.Errorf("compression method %d with zero uncompressed size: %w", m.CompressionMethod, ErrInconsistentMetadata)
	}
	if !m.Compressed() && m.UncompressedSize != 0 {
		return fmt.Errorf("uncompressed product declares size %d: %w", m.UncompressedSize, ErrInconsistentMetadata)
	}
	return nil
}

// DeriveMetadata reads the variant's product-dependent halfwords. It never
// fails; unused fields stay zero.
func (v Variant) DeriveMetadata(pdb *ProductDescription) Metadata {
	var m Metadata
	if v.elevation {
		m.ElevationAngle = float64(int16(pdb.Halfword(30))) / 10
	}
	if v.compress {
		m.CompressionMethod = pdb.Halfword(51)
		m.UncompressedSize = int(uint32(pdb.Halfword(52))<<16 | uint32(pdb.Halfword(53)))
	}

	p := &m.Params
	switch v.Kind {
	case BaseReflectivity, BaseVelocity, DigitalHybridReflectivity:
		p.Base = float64(int16(pdb.Halfword(31))) / 10
		p.Increment = float64(int16(pdb.Halfword(32))) / 10
		p.Levels = int(pdb.Halfword(33))
	case DifferentialReflectivity, CorrelationCoefficient, SpecificDifferentialPhase,
		DigitalAccumulationArray, DigitalStormTotalAccum, DigitalPrecipRate:
		p.Scale = float64(pdb.Float32At(31))
		p.Offset = float64(pdb.Float32At(33))
	case EchoTops:
		p.DataMask = pdb.Halfword(31)
		p.Scale = float64(pdb.Halfword(32))
		p.Offset = float64(pdb.Halfword(33))
		p.ToppedMask = pdb.Halfword(34)
	case VIL:
		p.LinScale = HalfwordFloat(pdb.Halfword(31))
		p.LinOffset = HalfwordFloat(pdb.Halfword(32))
		p.LogStart = int(pdb.Halfword(33))
		p.LogScale = HalfwordFloat(pdb.Halfword(34))
		p.LogOffset = HalfwordFloat(pdb.Halfword(35))
	case DigitalStormTotalPrecip:
		p.Scale = float64(pdb.Halfword(31))
	}
	return m
}

// HalfwordFloat decodes the 16-bit float used by the VIL product: one sign
// bit, a 5-bit exponent and a 10-bit fraction.
func HalfwordFloat(hw uint16) float64 {
	sign := 1.0
	if hw&0x8000 != 0 {
		sign = -1.0
	}
	exp := int((hw >> 10) & 0x1F)
	frac := float64(hw&0x3FF) / 1024
	if exp == 0 {
		return sign * 2 * frac
	}
	return sign * math.Ldexp(1+frac, exp-16)
}

// Converter turns encoded samples into physical values for one file.
type Converter struct {
	v Variant
	p Params
}

// NewConverter binds a variant to the parameters derived for a file.
func NewConverter(v Variant, m Metadata) Converter {
	return Converter{v: v, p: m.Params}
}

// Variant returns the bound variant.
func (c Converter) Variant() Variant { return c.v }

// ConvertByte decodes one 8-bit sample. 0, 1 and 255 are reserved for every
// variant.
func (c Converter) ConvertByte(x uint8) float32 {
	if x <= 1 || x == 255 {
		return Missing
	}
	p := c.p
	switch c.v.Kind {
	case BaseReflectivity, BaseVelocity, DigitalHybridReflectivity:
		return float32(float64(x)*p.Increment + p.Base)
	case DifferentialReflectivity, CorrelationCoefficient, SpecificDifferentialPhase:
		return scaled(float64(x), p.Scale, p.Offset, 1)
	case DigitalAccumulationArray, DigitalStormTotalAccum:
		return scaled(float64(x), p.Scale, p.Offset, 100)
	case HydrometeorClassification, HybridHydrometeorClass:
		return float32(x) / 10
	case EchoTops:
		mask := p.DataMask
		if mask == 0 {
			mask = 0x7F
		}
		v := uint16(x) & mask &^ p.ToppedMask
		if v <= 1 || p.Scale == 0 {
			return Missing
		}
		return float32(float64(v)/p.Scale - p.Offset)
	case VIL:
		if int(x) < p.LogStart {
			if p.LinScale == 0 {
				return Missing
			}
			return float32((float64(x) - p.LinOffset) / p.LinScale)
		}
		if p.LogScale == 0 {
			return Missing
		}
		return float32(math.Exp((float64(x) - p.LogOffset) / p.LogScale))
	case DigitalStormTotalPrecip:
		return float32(float64(x) * p.Scale / 100)
	case StormRelativeVelocity, OneHourPrecip, StormTotalPrecip, TDWRReflectivity:
		if x > 15 {
			return Missing
		}
		return c.v.table[x]
	default:
		return Missing
	}
}

// ConvertRunLength splits a run-length byte into its repeat count (high
// nibble) and the physical value of its color code (low nibble).
func (c Converter) ConvertRunLength(x uint8) (int, float32) {
	run := int(x >> 4)
	if c.v.table == nil {
		return run, Missing
	}
	return run, c.v.table[x&0x0F]
}

// ConvertData decodes a 16-bit sample from the generic radial container.
func (c Converter) ConvertData(x uint16) float32 {
	if x <= 1 {
		return Missing
	}
	switch c.v.Kind {
	case DigitalPrecipRate:
		return scaled(float64(x), c.p.Scale, c.p.Offset, 1)
	default:
		if x > 255 {
			return Missing
		}
		return c.ConvertByte(uint8(x))
	}
}

func scaled(x, scale, offset, div float64) float32 {
	if scale == 0 {
		return Missing
	}
	return float32((x - offset) / scale / div)
}
