package nids

import (
	"errors"
	"fmt"
)

var (
	// ErrTruncatedRecord is returned when fewer bytes remain than a fixed-size record needs.
	ErrTruncatedRecord = errors.New("truncated record")

	// ErrUnsupportedProduct is returned for message codes outside the product registry.
	ErrUnsupportedProduct = errors.New("unsupported product")

	// ErrInconsistentMetadata is returned when the compression flag and the
	// uncompressed size disagree.
	ErrInconsistentMetadata = errors.New("inconsistent product metadata")

	// ErrDecompression is the parent of every *DecompressionError.
	ErrDecompression = errors.New("decompression failure")

	// ErrBufferUnderrun marks a radial whose declared size exceeds the
	// remaining bytes. It is recorded as a warning on the product, never
	// returned from Decode.
	ErrBufferUnderrun = errors.New("buffer underrun")

	// ErrMalformedPacket is returned when a packet code does not match the
	// constant the format requires at that position.
	ErrMalformedPacket = errors.New("malformed packet")

	// ErrAllocation is returned when a product would need more memory than
	// the configured guards allow. Callers treat it as fatal for the stream.
	ErrAllocation = errors.New("allocation failure")
)

// DecompressReason distinguishes the failure modes of the decompression stage.
type DecompressReason string

const (
	ReasonConfig DecompressReason = "config"
	ReasonParam  DecompressReason = "param"
	ReasonMemory DecompressReason = "memory"
	ReasonOutput DecompressReason = "output"
	ReasonData   DecompressReason = "data"
)

// DecompressionError reports why the payload could not be decompressed.
type DecompressionError struct {
	Reason DecompressReason
	Err    error
}

func (e *DecompressionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("decompress: %s", e.Reason)
	}
	return fmt.Sprintf("decompress: %s: %v", e.Reason, e.Err)
}

// Is lets errors.Is match ErrDecompression, and ErrAllocation for memory failures.
func (e *DecompressionError) Is(target error) bool {
	if target == ErrDecompression {
		return true
	}
	return target == ErrAllocation && e.Reason == ReasonMemory
}

func (e *DecompressionError) Unwrap() error { return e.Err }

// Reason returns a short label for err suitable for a metrics label.
func Reason(err error) string {
	var de *DecompressionError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &de):
		return "decompress_" + string(de.Reason)
	case errors.Is(err, ErrAllocation):
		return "allocation"
	case errors.Is(err, ErrTruncatedRecord):
		return "truncated"
	case errors.Is(err, ErrUnsupportedProduct):
		return "unsupported"
	case errors.Is(err, ErrInconsistentMetadata):
		return "inconsistent"
	case errors.Is(err, ErrMalformedPacket):
		return "malformed"
	default:
		return "other"
	}
}
