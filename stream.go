// SPDX-License-Identifier: MIT
// Copyright (c) 2026 tesvfs
// Source: github.com/tesvfs/bsa

package bsa

import (
	"encoding/binary"
	"fmt"
	"io"
)

// endian selects byte order for a primitive read or write. Archives are
// little-endian throughout except the crc sub-field of a V4 hash under the
// xbox_archive flag (§6.2).
type endian int

const (
	littleEndian endian = iota
	bigEndian
)

// byteStream is a seekable reader over an in-memory archive image. Reads
// never copy: readBytes returns a slice into the backing array, and Go's
// garbage collector keeps that array alive for as long as any returned
// slice (or FilePayload holding one) is reachable — the same lifetime
// guarantee §3.3 asks of a refcounted backing handle, without needing one.
type byteStream struct {
	buf []byte
	pos int64
}

func newByteStream(buf []byte) *byteStream {
	return &byteStream{buf: buf}
}

// readAll loads src fully into memory and returns a stream over it. This is
// the "owned byte vector" read source of §6.4; the returned stream also
// backs any borrowed payloads produced while parsing it.
func readAll(src io.Reader) (*byteStream, error) {
	buf, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIo, err)
	}
	return newByteStream(buf), nil
}

func (s *byteStream) len() int64 { return int64(len(s.buf)) }

func (s *byteStream) remaining() int64 {
	if s.pos >= s.len() {
		return 0
	}
	return s.len() - s.pos
}

// seekAbsolute moves the cursor to an absolute offset. Seeking past the end
// is permitted; a subsequent read then fails with ErrTruncated.
func (s *byteStream) seekAbsolute(pos int64) {
	s.pos = pos
}

// seekRelative moves the cursor by delta bytes, which may be negative.
func (s *byteStream) seekRelative(delta int64) {
	s.pos += delta
}

// guard captures the current cursor and returns a function that restores it.
// Used as `defer s.guard()()` so the cursor is restored on every exit path,
// matching the scoped position-save guard of §4.1.
func (s *byteStream) guard() func() {
	saved := s.pos
	return func() { s.pos = saved }
}

func (s *byteStream) readBytes(n int64) ([]byte, error) {
	if n < 0 || s.remaining() < n {
		return nil, ErrTruncated
	}
	b := s.buf[s.pos : s.pos+n]
	s.pos += n
	return b, nil
}

func (s *byteStream) readU8() (uint8, error) {
	b, err := s.readBytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (s *byteStream) readU16(e endian) (uint16, error) {
	b, err := s.readBytes(2)
	if err != nil {
		return 0, err
	}
	if e == bigEndian {
		return binary.BigEndian.Uint16(b), nil
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (s *byteStream) readU32(e endian) (uint32, error) {
	b, err := s.readBytes(4)
	if err != nil {
		return 0, err
	}
	if e == bigEndian {
		return binary.BigEndian.Uint32(b), nil
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (s *byteStream) readU64(e endian) (uint64, error) {
	b, err := s.readBytes(8)
	if err != nil {
		return 0, err
	}
	if e == bigEndian {
		return binary.BigEndian.Uint64(b), nil
	}
	return binary.LittleEndian.Uint64(b), nil
}

// readCStringAt reads a NUL-terminated byte string starting at offset
// without moving the cursor; callers that need the cursor to move past the
// string call readBytes(len(s)+1) themselves.
func (s *byteStream) readCStringAt(offset int64) (string, error) {
	if offset < 0 || offset >= s.len() {
		return "", ErrTruncated
	}
	end := offset
	for end < s.len() && s.buf[end] != 0 {
		end++
	}
	if end >= s.len() {
		return "", ErrTruncated
	}
	return string(s.buf[offset:end]), nil
}

// byteWriter accumulates a little-endian archive image. Unlike a reader,
// writing never seeks backward: every BSA write algorithm in §4.4/§4.5
// computes offsets in a first pass before any byte is emitted, so a plain
// append-only sink is sufficient and no placeholder-then-patch step is
// needed.
type byteWriter struct {
	w   io.Writer
	buf [8]byte
	n   int64
}

func newByteWriter(w io.Writer) *byteWriter {
	return &byteWriter{w: w}
}

func (w *byteWriter) writeBytes(b []byte) error {
	n, err := w.w.Write(b)
	w.n += int64(n)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIo, err)
	}
	return nil
}

func (w *byteWriter) writeU8(v uint8) error {
	w.buf[0] = v
	return w.writeBytes(w.buf[:1])
}

func (w *byteWriter) writeU16(v uint16, e endian) error {
	if e == bigEndian {
		binary.BigEndian.PutUint16(w.buf[:2], v)
	} else {
		binary.LittleEndian.PutUint16(w.buf[:2], v)
	}
	return w.writeBytes(w.buf[:2])
}

func (w *byteWriter) writeU32(v uint32, e endian) error {
	if e == bigEndian {
		binary.BigEndian.PutUint32(w.buf[:4], v)
	} else {
		binary.LittleEndian.PutUint32(w.buf[:4], v)
	}
	return w.writeBytes(w.buf[:4])
}

func (w *byteWriter) writeU64(v uint64, e endian) error {
	if e == bigEndian {
		binary.BigEndian.PutUint64(w.buf[:8], v)
	} else {
		binary.LittleEndian.PutUint64(w.buf[:8], v)
	}
	return w.writeBytes(w.buf[:8])
}
