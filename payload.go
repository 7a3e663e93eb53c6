// SPDX-License-Identifier: MIT
// Copyright (c) 2026 tesvfs
// Source: github.com/tesvfs/bsa

package bsa

// payloadState distinguishes the three states a FilePayload can hold
// (§4.3, §9 Design Notes). Borrowed and owned are both represented by the
// same []byte field; Go's garbage collector keeps a borrowed slice's
// backing array alive for as long as the slice is reachable, so no
// separate refcounted handle type is needed to satisfy the "borrowed
// payload remains valid only as long as its backing buffer does, and the
// backing buffer lives at least as long as any borrower" requirement of
// §3.3 — that is exactly what slice-of-array aliasing already guarantees.
type payloadState int

const (
	payloadEmpty payloadState = iota
	payloadOwned
	payloadBorrowed
)

// FilePayload is the byte content attached to a V3File or V4File (§4.3).
// The zero value is Empty. A V4 payload additionally tracks compression
// state: when DecompressedSize is non-zero the held bytes are the
// compressed form.
type FilePayload struct {
	state            payloadState
	bytes            []byte
	decompressedSize uint64
}

// Empty reports whether the payload currently holds no data.
func (p *FilePayload) Empty() bool {
	return p.state == payloadEmpty || len(p.bytes) == 0
}

// Size returns the number of bytes currently held (the on-disk size, which
// for a compressed payload is the compressed size).
func (p *FilePayload) Size() int {
	return len(p.bytes)
}

// AsBytes returns the payload's current bytes without decompressing them.
// The returned slice aliases the payload's backing storage and must not be
// modified by the caller.
func (p *FilePayload) AsBytes() []byte {
	return p.bytes
}

// SetDataOwned replaces the payload with an owned copy's worth of caller
// bytes. The payload takes ownership of b; callers must not mutate b
// afterward.
func (p *FilePayload) SetDataOwned(b []byte) {
	p.state = payloadOwned
	p.bytes = b
	p.decompressedSize = 0
}

// setDataBorrowed installs a span aliasing a backing byteStream's buffer.
// Only called while parsing a read archive.
func (p *FilePayload) setDataBorrowed(b []byte) {
	p.state = payloadBorrowed
	p.bytes = b
	p.decompressedSize = 0
}

// materializeOwned copies a borrowed payload into owned storage, leaving
// compression state (decompressedSize) untouched. A no-op if the payload
// is already owned or empty.
func (p *FilePayload) materializeOwned() {
	if p.state != payloadBorrowed {
		return
	}
	p.bytes = append([]byte(nil), p.bytes...)
	p.state = payloadOwned
}

// Clear resets the payload to Empty, releasing any reference to owned or
// borrowed bytes.
func (p *FilePayload) Clear() {
	p.state = payloadEmpty
	p.bytes = nil
	p.decompressedSize = 0
}

// Compressed reports whether the held bytes are currently in compressed
// form (§3.2: a compressed payload always carries a non-zero
// DecompressedSize equal to the size Decompress would produce).
func (p *FilePayload) Compressed() bool {
	return p.decompressedSize > 0
}

// DecompressedSize returns the size the payload will expand to when
// decompressed, or 0 if the payload is not currently compressed.
func (p *FilePayload) DecompressedSize() uint64 {
	return p.decompressedSize
}

// Bytes returns the payload's bytes, decompressing a compressed payload
// into a fresh owned buffer via codec c. An uncompressed payload's bytes
// are returned as-is (aliasing its current storage).
func (p *FilePayload) Bytes(c codec) ([]byte, error) {
	if !p.Compressed() {
		return p.bytes, nil
	}
	out := make([]byte, p.decompressedSize)
	n, err := c.decompressInto(out, p.bytes)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}

// Compress replaces the payload's bytes with their compressed form using
// codec c. Fails with ErrAlreadyCompressed if the payload is already
// compressed.
func (p *FilePayload) Compress(c codec) error {
	if p.Compressed() {
		return ErrAlreadyCompressed
	}
	bound := c.compressBound(len(p.bytes))
	out := make([]byte, bound)
	n, err := c.compressInto(out, p.bytes)
	if err != nil {
		return err
	}
	original := len(p.bytes)
	p.state = payloadOwned
	p.bytes = out[:n]
	p.decompressedSize = uint64(original)
	return nil
}

// Decompress replaces the payload's bytes with their decompressed form
// using codec c. Fails with ErrAlreadyDecompressed if the payload is not
// currently compressed.
func (p *FilePayload) Decompress(c codec) error {
	if !p.Compressed() {
		return ErrAlreadyDecompressed
	}
	out := make([]byte, p.decompressedSize)
	n, err := c.decompressInto(out, p.bytes)
	if err != nil {
		return err
	}
	p.state = payloadOwned
	p.bytes = out[:n]
	p.decompressedSize = 0
	return nil
}

// CompressInto compresses into a caller-provided destination, failing with
// ErrBufferTooSmall if dst is smaller than the codec's compress bound.
func (p *FilePayload) CompressInto(dst []byte, c codec) (int, error) {
	if p.Compressed() {
		return 0, ErrAlreadyCompressed
	}
	bound := c.compressBound(len(p.bytes))
	if len(dst) < bound {
		return 0, ErrBufferTooSmall
	}
	n, err := c.compressInto(dst, p.bytes)
	if err != nil {
		return 0, err
	}
	original := len(p.bytes)
	p.state = payloadOwned
	p.bytes = dst[:n]
	p.decompressedSize = uint64(original)
	return n, nil
}

// DecompressInto decompresses into a caller-provided destination, failing
// with ErrBufferTooSmall if dst is smaller than DecompressedSize.
func (p *FilePayload) DecompressInto(dst []byte, c codec) (int, error) {
	if !p.Compressed() {
		return 0, ErrAlreadyDecompressed
	}
	if uint64(len(dst)) < p.decompressedSize {
		return 0, ErrBufferTooSmall
	}
	n, err := c.decompressInto(dst, p.bytes)
	if err != nil {
		return 0, err
	}
	p.state = payloadOwned
	p.bytes = dst[:n]
	p.decompressedSize = 0
	return n, nil
}
