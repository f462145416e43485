package nids

import (
	"bytes"
	"compress/bzip2"
	"errors"
	"fmt"
	"io"
)

// MaxProductBytes bounds the decompressed size of a single product.
const MaxProductBytes = 64 << 20

// Decompress returns the payload that follows the description block. Method
// CompressionNone copies buf; CompressionBzip2 inflates it into a buffer of
// expectedSize bytes. A stream that ends early yields the shorter buffer.
func Decompress(buf []byte, method uint16, expectedSize int) ([]byte, error) {
	switch method {
	case CompressionNone:
		out := make([]byte, len(buf))
		copy(out, buf)
		return out, nil
	case CompressionBzip2:
	default:
		return nil, &DecompressionError{Reason: ReasonConfig, Err: fmt.Errorf("unknown compression method %d", method)}
	}

	if expectedSize <= 0 || len(buf) == 0 {
		return nil, &DecompressionError{Reason: ReasonParam, Err: fmt.Errorf("expected size %d, input %d bytes", expectedSize, len(buf))}
	}
	if expectedSize > MaxProductBytes {
		return nil, &DecompressionError{Reason: ReasonMemory, Err: fmt.Errorf("expected size %d exceeds %d", expectedSize, MaxProductBytes)}
	}

	out := make([]byte, expectedSize)
	r := bzip2.NewReader(bytes.NewReader(buf))
	n, err := io.ReadFull(r, out)
	switch {
	case err == nil:
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		return out[:n], nil
	default:
		return nil, &DecompressionError{Reason: ReasonData, Err: err}
	}

	// Any byte beyond expectedSize means the output buffer was too small.
	var probe [1]byte
	if m, perr := r.Read(probe[:]); m > 0 {
		return nil, &DecompressionError{Reason: ReasonOutput, Err: fmt.Errorf("stream exceeds %d bytes", expectedSize)}
	} else if perr != nil && !errors.Is(perr, io.EOF) {
		return nil, &DecompressionError{Reason: ReasonData, Err: perr}
	}
	return out, nil
}
