// SPDX-License-Identifier: MIT
// Copyright (c) 2026 tesvfs
// Source: github.com/tesvfs/bsa

package bsa

import (
	"io"
	"math"
	"sort"
)

const (
	v3HeaderSize    = 12
	v3FileEntrySize = 8
	v3HashSize      = 8
	v3Magic         = 0x100
)

// V3File is a single entry of a V3Archive, keyed by its V3Hash (§3.1).
type V3File struct {
	hash    V3Hash
	name    string
	Payload FilePayload
}

// Hash returns the file's key.
func (f *V3File) Hash() V3Hash { return f.hash }

// Name returns the file's path: the path given to Insert, or the name
// stored in the archive for a file populated by Read (§4.4).
func (f *V3File) Name() string { return f.name }

// V3Archive is an ordered set of V3File keyed by V3Hash (§3.1), implementing
// the legacy flat-namespace format (magic 0x100).
type V3Archive struct {
	files []*V3File // kept sorted ascending by hash.Numeric()
}

// Clear empties the archive.
func (a *V3Archive) Clear() {
	a.files = nil
}

// Empty reports whether the archive holds no files.
func (a *V3Archive) Empty() bool { return len(a.files) == 0 }

// Size returns the number of files in the archive.
func (a *V3Archive) Size() int { return len(a.files) }

// Files returns the archive's files in ascending hash order (§3.2).
func (a *V3Archive) Files() []*V3File {
	return a.files
}

func (a *V3Archive) find(h V3Hash) (int, bool) {
	n := h.Numeric()
	idx := sort.Search(len(a.files), func(i int) bool {
		return a.files[i].hash.Numeric() >= n
	})
	if idx < len(a.files) && a.files[idx].hash.Numeric() == n {
		return idx, true
	}
	return idx, false
}

// Insert adds a file under path, computing its hash with HashFile3. Fails
// with ErrDuplicateKey if the hash is already present.
func (a *V3Archive) Insert(path string, data []byte) (*V3File, error) {
	h := HashFile3(path)
	idx, ok := a.find(h)
	if ok {
		return nil, ErrDuplicateKey
	}
	f := &V3File{hash: h, name: path}
	f.Payload.SetDataOwned(data)
	a.files = append(a.files, nil)
	copy(a.files[idx+1:], a.files[idx:])
	a.files[idx] = f
	return f, nil
}

// Erase removes the file keyed by h, reporting whether it was present.
func (a *V3Archive) Erase(h V3Hash) bool {
	idx, ok := a.find(h)
	if !ok {
		return false
	}
	a.files = append(a.files[:idx], a.files[idx+1:]...)
	return true
}

// Find looks up a file by path.
func (a *V3Archive) Find(path string) (*V3File, bool) {
	idx, ok := a.find(HashFile3(path))
	if !ok {
		return nil, false
	}
	return a.files[idx], true
}

func (a *V3Archive) insertEmpty(h V3Hash) *V3File {
	idx, ok := a.find(h)
	if ok {
		return a.files[idx]
	}
	f := &V3File{hash: h}
	a.files = append(a.files, nil)
	copy(a.files[idx+1:], a.files[idx:])
	a.files[idx] = f
	return f
}

// Read parses a V3 archive from src, replacing the archive's current
// contents. On failure the archive is left cleared (§7).
//
// Read algorithm (§4.4): the header is parsed, then for each file slot the
// hash and name-offset are read using position guards (independent of each
// other and of the eventual file-entry read), an empty file is inserted
// keyed by that hash, and finally the file-entry (size, data offset) is
// read to populate the name (copied into a string) and a borrowed data span.
func (a *V3Archive) Read(src io.Reader) error {
	a.Clear()
	s, err := readAll(src)
	if err != nil {
		return err
	}

	magic, err := s.readU32(littleEndian)
	if err != nil {
		return ErrTruncated
	}
	if magic != v3Magic {
		return ErrBadMagic
	}
	hashOffsetField, err := s.readU32(littleEndian)
	if err != nil {
		return ErrTruncated
	}
	fileCount, err := s.readU32(littleEndian)
	if err != nil {
		return ErrTruncated
	}

	offEntries := int64(v3HeaderSize)
	offNameOffsets := offEntries + v3FileEntrySize*int64(fileCount)
	offNames := offNameOffsets + 4*int64(fileCount)
	offHashes := int64(hashOffsetField) + v3HeaderSize
	offFileData := offHashes + v3HashSize*int64(fileCount)

	files := make([]*V3File, fileCount)
	for i := uint32(0); i < fileCount; i++ {
		var hash V3Hash
		var nameOffset uint32
		err := func() error {
			defer s.guard()()
			s.seekAbsolute(offHashes + v3HashSize*int64(i))
			lo, err := s.readU32(littleEndian)
			if err != nil {
				return ErrTruncated
			}
			hi, err := s.readU32(littleEndian)
			if err != nil {
				return ErrTruncated
			}
			hash = V3Hash{Lo: lo, Hi: hi}

			s.seekAbsolute(offNameOffsets + 4*int64(i))
			nameOffset, err = s.readU32(littleEndian)
			if err != nil {
				return ErrTruncated
			}
			return nil
		}()
		if err != nil {
			a.Clear()
			return err
		}

		f := a.insertEmpty(hash)

		err = func() error {
			defer s.guard()()
			s.seekAbsolute(offEntries + v3FileEntrySize*int64(i))
			size, err := s.readU32(littleEndian)
			if err != nil {
				return ErrTruncated
			}
			dataOffset, err := s.readU32(littleEndian)
			if err != nil {
				return ErrTruncated
			}

			name, err := s.readCStringAt(offNames + int64(nameOffset))
			if err != nil {
				return ErrTruncated
			}
			f.name = name

			data, err := func() ([]byte, error) {
				defer s.guard()()
				s.seekAbsolute(offFileData + int64(dataOffset))
				return s.readBytes(int64(size))
			}()
			if err != nil {
				return ErrTruncated
			}
			f.Payload.setDataBorrowed(data)
			return nil
		}()
		if err != nil {
			a.Clear()
			return err
		}

		files[i] = f
	}

	return nil
}

// ReadWithOptions behaves like Read, additionally materializing every
// payload into owned storage when opts.MaterializeOwned is set, so the
// archive no longer aliases src's backing buffer (§6.4, §9 "zero-copy
// reads").
func (a *V3Archive) ReadWithOptions(src io.Reader, opts ReadOptions) error {
	opts.applyDefaults()
	if err := a.Read(src); err != nil {
		return err
	}
	if opts.MaterializeOwned {
		for _, f := range a.files {
			f.Payload.materializeOwned()
		}
	}
	return nil
}

// Write emits the archive to dst in the layout of §4.4.
func (a *V3Archive) Write(dst io.Writer) error {
	w := newByteWriter(dst)

	namesTotal := int64(0)
	for _, f := range a.files {
		namesTotal += int64(len(f.name)) + 1
	}
	n := int64(len(a.files))
	hashOffset := (v3FileEntrySize+4)*n + namesTotal

	if err := w.writeU32(v3Magic, littleEndian); err != nil {
		return err
	}
	if err := w.writeU32(uint32(hashOffset), littleEndian); err != nil {
		return err
	}
	if err := w.writeU32(uint32(len(a.files)), littleEndian); err != nil {
		return err
	}

	dataOffset := uint32(0)
	for _, f := range a.files {
		if err := w.writeU32(uint32(f.Payload.Size()), littleEndian); err != nil {
			return err
		}
		if err := w.writeU32(dataOffset, littleEndian); err != nil {
			return err
		}
		dataOffset += uint32(f.Payload.Size())
	}

	nameOffset := uint32(0)
	for _, f := range a.files {
		if err := w.writeU32(nameOffset, littleEndian); err != nil {
			return err
		}
		nameOffset += uint32(len(f.name)) + 1
	}

	for _, f := range a.files {
		if err := w.writeBytes([]byte(f.name)); err != nil {
			return err
		}
		if err := w.writeU8(0); err != nil {
			return err
		}
	}

	for _, f := range a.files {
		if err := w.writeU32(f.hash.Lo, littleEndian); err != nil {
			return err
		}
		if err := w.writeU32(f.hash.Hi, littleEndian); err != nil {
			return err
		}
	}

	for _, f := range a.files {
		if err := w.writeBytes(f.Payload.AsBytes()); err != nil {
			return err
		}
	}

	return nil
}

// VerifyOffsets reports whether every computed absolute offset (the hash
// table start, the file-data region start, and every individual file's
// data offset) fits within a u32 (§4.4).
func (a *V3Archive) VerifyOffsets() bool {
	namesTotal := int64(0)
	for _, f := range a.files {
		namesTotal += int64(len(f.name)) + 1
	}
	n := int64(len(a.files))
	hashOffset := (v3FileEntrySize+4)*n + namesTotal
	offHashes := hashOffset + v3HeaderSize
	offFileData := offHashes + v3HashSize*n
	if offHashes > math.MaxUint32 || offFileData > math.MaxUint32 {
		return false
	}

	dataOffset := int64(0)
	for _, f := range a.files {
		if offFileData+dataOffset > math.MaxUint32 {
			return false
		}
		dataOffset += int64(f.Payload.Size())
	}
	return true
}
