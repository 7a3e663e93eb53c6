// SPDX-License-Identifier: MIT
// Copyright (c) 2026 tesvfs
// Source: github.com/tesvfs/bsa

package bsa

import "errors"

// Sentinel errors for BSA operations. Use errors.Is in callers.
var (
	// ErrIo means an underlying OS or stream I/O operation failed.
	ErrIo = errors.New("bsa: i/o failure")
	// ErrBadMagic means the archive header magic did not match the expected value.
	ErrBadMagic = errors.New("bsa: bad magic")
	// ErrTruncated means the stream ended before a required read completed.
	ErrTruncated = errors.New("bsa: truncated stream")
	// ErrAlreadyCompressed means compress was called on a payload that is already compressed.
	ErrAlreadyCompressed = errors.New("bsa: payload already compressed")
	// ErrAlreadyDecompressed means decompress was called on a payload that is not compressed.
	ErrAlreadyDecompressed = errors.New("bsa: payload already decompressed")
	// ErrBufferTooSmall means a caller-supplied destination span is smaller than required.
	ErrBufferTooSmall = errors.New("bsa: destination buffer too small")
	// ErrCodecError means the underlying compression codec rejected the data.
	ErrCodecError = errors.New("bsa: codec error")
	// ErrNotImplemented means the requested codec has no implementation available.
	ErrNotImplemented = errors.New("bsa: not implemented")
	// ErrDuplicateKey means insertion was attempted with a hash already present in the container.
	ErrDuplicateKey = errors.New("bsa: duplicate key")
	// ErrInvalidPath means a path cannot be stored in the archive layout: V4 Write returns it when
	// an embedded "directory\filename" name exceeds 255 bytes. Empty paths are not rejected with it.
	ErrInvalidPath = errors.New("bsa: invalid path")
)
