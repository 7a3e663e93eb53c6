// SPDX-License-Identifier: MIT
// Copyright (c) 2026 tesvfs
// Source: github.com/tesvfs/bsa

package bsa

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
	"github.com/pierrec/lz4/v4"
)

// codec is the small capability interface every compression backend
// implements (§9 Design Notes: "a small capability trait {compress_bound,
// compress_into, decompress_into}"). Version + CompressionCodec selects
// which implementation backs a given payload operation.
type codec interface {
	compressBound(n int) int
	compressInto(dst, src []byte) (int, error)
	decompressInto(dst, src []byte) (int, error)
}

// selectCodec dispatches by archive version and requested codec kind
// (§4.3): normal picks zlib for 103/104 and the lz4 block format for 105;
// xmem always resolves to a codec that reports ErrNotImplemented.
func selectCodec(v Version, cc CompressionCodec) (codec, error) {
	if cc == CompressionCodecXmem {
		return xmemCodec{}, nil
	}
	switch v {
	case Version103, Version104:
		return zlibCodec{}, nil
	case Version105:
		return lz4Codec{}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCodecError, v)
	}
}

// zlibCodec wraps github.com/klauspost/compress/zlib for V4 versions 103
// and 104 (§4.3).
type zlibCodec struct{}

func (zlibCodec) compressBound(n int) int {
	// zlib has no cheap closed-form bound; deflate's worst case expansion
	// is small and well documented (store-mode overhead per block).
	return n + n/1000 + 128
}

func (zlibCodec) compressInto(dst, src []byte) (int, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(src); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCodecError, err)
	}
	if err := w.Close(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCodecError, err)
	}
	if buf.Len() > len(dst) {
		return 0, ErrBufferTooSmall
	}
	return copy(dst, buf.Bytes()), nil
}

func (zlibCodec) decompressInto(dst, src []byte) (int, error) {
	r, err := zlib.NewReader(bytes.NewReader(src))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCodecError, err)
	}
	defer r.Close()

	n, err := io.ReadFull(r, dst)
	switch {
	case err == nil:
		// ReadFull fills dst exactly when len(dst) == decompressed size,
		// which is the only way callers invoke this.
	case err == io.EOF, err == io.ErrUnexpectedEOF:
		// the compressed stream ran dry before filling dst: truncated or
		// corrupt input, not a short-but-valid decompression.
		return 0, ErrTruncated
	default:
		return 0, fmt.Errorf("%w: %v", ErrCodecError, err)
	}
	return n, nil
}

// lz4Codec wraps github.com/pierrec/lz4/v4's block API for V4 version 105
// (§4.3), matching the CompressBlock/UncompressBlock/CompressBlockBound
// dispatch used by the pack's other archive-format reference for a
// sibling Bethesda format.
type lz4Codec struct{}

func (lz4Codec) compressBound(n int) int {
	return lz4.CompressBlockBound(n)
}

func (lz4Codec) compressInto(dst, src []byte) (int, error) {
	var c lz4.Compressor
	n, err := c.CompressBlock(src, dst)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCodecError, err)
	}
	if n == 0 && len(src) != 0 {
		// incompressible input: lz4 reports this by returning 0
		return 0, ErrCodecError
	}
	return n, nil
}

func (lz4Codec) decompressInto(dst, src []byte) (int, error) {
	n, err := lz4.UncompressBlock(src, dst)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCodecError, err)
	}
	return n, nil
}

// xmemCodec has no portable implementation (§9 Open Question 2: xmem is a
// proprietary Xbox 360 in-memory compressor with no available Go or C
// ecosystem port). Every operation reports ErrNotImplemented rather than
// silently succeeding.
type xmemCodec struct{}

func (xmemCodec) compressBound(int) int { return 0 }

func (xmemCodec) compressInto([]byte, []byte) (int, error) {
	return 0, ErrNotImplemented
}

func (xmemCodec) decompressInto([]byte, []byte) (int, error) {
	return 0, ErrNotImplemented
}
