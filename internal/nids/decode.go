// Package nids decodes NEXRAD Level-III (NIDS) product files: the record
// headers, optional bzip2 block compression, the radial, generic and symbol
// payloads, and polar-to-Cartesian resampling of radial grids.
package nids

import (
	"fmt"
	"time"
)

// LeadingHeaderSize is the length of the distribution header some feeds
// prepend to the message header.
const LeadingHeaderSize = 30

// LeadingHeaderMode controls how Decode treats the optional leading header.
type LeadingHeaderMode int

const (
	// LeadingHeaderAuto tries the message header at offset 0, then after a
	// leading header.
	LeadingHeaderAuto LeadingHeaderMode = iota
	LeadingHeaderAlways
	LeadingHeaderNever
)

// ParseLeadingHeaderMode maps "auto", "always" and "never" to a mode.
func ParseLeadingHeaderMode(s string) (LeadingHeaderMode, error) {
	switch s {
	case "", "auto":
		return LeadingHeaderAuto, nil
	case "always":
		return LeadingHeaderAlways, nil
	case "never":
		return LeadingHeaderNever, nil
	default:
		return LeadingHeaderAuto, fmt.Errorf("leading header mode %q: want auto, always or never", s)
	}
}

func (m LeadingHeaderMode) String() string {
	switch m {
	case LeadingHeaderAlways:
		return "always"
	case LeadingHeaderNever:
		return "never"
	default:
		return "auto"
	}
}

// Options configure a decode.
type Options struct {
	// Swap reads multi-byte fields little-endian.
	Swap          bool
	LeadingHeader LeadingHeaderMode
}

// Product is the result of decoding one file. Exactly one of Radial,
// Contours or Features is populated, according to Variant.Payload.
type Product struct {
	Header      MessageHeader
	Description ProductDescription
	Variant     Variant
	Metadata    Metadata

	Radial   *RadialGrid
	Generic  *GenericInfo
	Contours *ContourSet
	Features []PointFeature

	// Partial is set when decoding stopped early and the grid holds only the
	// radials read so far. Warnings carries the reasons.
	Partial  bool
	Warnings []error
}

// Location returns the radar latitude, longitude (degrees) and altitude (m).
func (p *Product) Location() (lat, lon, altM float64) { return p.Description.Location() }

// VolumeTime returns the start of the volume scan the product belongs to.
func (p *Product) VolumeTime() time.Time { return p.Description.VolumeTimestamp() }

// Elevation returns the tilt angle in degrees, 0 for non-tilt products.
func (p *Product) Elevation() float64 { return p.Metadata.ElevationAngle }

// session holds the per-file decode state shared by the payload decoders.
type session struct {
	c        *Cursor
	conv     Converter
	warnings []error
}

func (s *session) warn(err error) { s.warnings = append(s.warnings, err) }

// Decode parses a complete product file. Errors wrap the package sentinels;
// a partially decoded radial product is returned with Partial set and a nil
// error.
func Decode(data []byte, opts Options) (*Product, error) {
	start, err := messageStart(data, opts)
	if err != nil {
		return nil, err
	}
	msg := data[start:]
	c := NewCursor(msg, opts.Swap)

	hdr, err := readMessageHeader(c)
	if err != nil {
		return nil, err
	}
	if !hdr.Valid() {
		return nil, fmt.Errorf("block divider %d: %w", hdr.Divider, ErrMalformedPacket)
	}
	pdb, err := readProductDescription(c)
	if err != nil {
		return nil, err
	}
	v, err := Select(hdr.Code)
	if err != nil {
		return nil, err
	}
	meta := v.DeriveMetadata(&pdb)
	if err := meta.Validate(); err != nil {
		return nil, err
	}

	p := &Product{Header: hdr, Description: pdb, Variant: v, Metadata: meta}
	s := &session{conv: NewConverter(v, meta)}

	payload, err := Decompress(msg[productHeaderSize:], meta.CompressionMethod, meta.UncompressedSize)
	if err != nil {
		return nil, fmt.Errorf("product %d: %w", v.Code, err)
	}
	if meta.Compressed() && len(payload) < meta.UncompressedSize {
		s.warn(fmt.Errorf("decompressed %d of %d bytes: %w", len(payload), meta.UncompressedSize, ErrBufferUnderrun))
	}

	if pdb.SymbologyOffset == 0 {
		return nil, fmt.Errorf("product %d has no symbology block: %w", v.Code, ErrMalformedPacket)
	}
	// The symbology offset counts halfwords from the start of the message;
	// the payload starts after the description block.
	s.c = &Cursor{buf: payload, order: c.order}
	if err := s.c.Seek(int(pdb.SymbologyOffset)*2 - productHeaderSize); err != nil {
		return nil, fmt.Errorf("symbology offset %d: %w", pdb.SymbologyOffset, err)
	}
	sh, err := readSymbologyHeader(s.c)
	if err != nil {
		return nil, err
	}
	if sh.Divider != blockDivider {
		return nil, fmt.Errorf("symbology divider %d: %w", sh.Divider, ErrMalformedPacket)
	}

	switch v.Payload {
	case PayloadRLE:
		p.Radial, err = s.decodeRLE()
	case PayloadDigital:
		p.Radial, err = s.decodeDigital()
	case PayloadGeneric:
		p.Radial, p.Generic, err = s.decodeGeneric()
	case PayloadContour:
		p.Contours, err = s.decodeContours()
	case PayloadSymbol:
		p.Features, err = s.decodeSymbols(sh)
	default:
		err = fmt.Errorf("payload %v: %w", v.Payload, ErrUnsupportedProduct)
	}
	if err != nil {
		return nil, fmt.Errorf("product %d %s payload: %w", v.Code, v.Payload, err)
	}

	p.Warnings = s.warnings
	p.Partial = len(s.warnings) > 0
	return p, nil
}

// messageStart returns the offset of the message header.
func messageStart(data []byte, opts Options) (int, error) {
	switch opts.LeadingHeader {
	case LeadingHeaderNever:
		return 0, nil
	case LeadingHeaderAlways:
		if len(data) < LeadingHeaderSize {
			return 0, fmt.Errorf("leading header: %d bytes: %w", len(data), ErrTruncatedRecord)
		}
		return LeadingHeaderSize, nil
	}
	for _, off := range []int{0, LeadingHeaderSize} {
		if len(data) < off+messageHeaderSize {
			break
		}
		h, err := readMessageHeader(NewCursor(data[off:], opts.Swap))
		if err == nil && h.Valid() {
			if _, err := Select(h.Code); err == nil {
				return off, nil
			}
		}
	}
	return 0, nil
}
