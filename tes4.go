// SPDX-License-Identifier: MIT
// Copyright (c) 2026 tesvfs
// Source: github.com/tesvfs/bsa

package bsa

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
)

// Version is the V4 archive format version stored in the header (§4.5).
type Version uint32

const (
	Version103 Version = 103
	Version104 Version = 104
	Version105 Version = 105
)

// CompressionCodec selects which compression backend Compress/Decompress
// use (§4.3). Normal dispatches by archive Version; Xmem always resolves
// to a codec that reports ErrNotImplemented.
type CompressionCodec int

const (
	CompressionCodecNormal CompressionCodec = iota
	CompressionCodecXmem
)

// ArchiveFlag is the V4 header's archive_flags bit field (§4.5).
type ArchiveFlag uint32

const (
	ArchiveFlagDirectoryStrings           ArchiveFlag = 1 << 0
	ArchiveFlagFileStrings                ArchiveFlag = 1 << 1
	ArchiveFlagCompressed                 ArchiveFlag = 1 << 2
	ArchiveFlagRetainDirectoryNames       ArchiveFlag = 1 << 3
	ArchiveFlagRetainFileNames            ArchiveFlag = 1 << 4
	ArchiveFlagRetainFileNameOffsets      ArchiveFlag = 1 << 5
	ArchiveFlagXboxArchive                ArchiveFlag = 1 << 6
	ArchiveFlagRetainStringsDuringStartup ArchiveFlag = 1 << 7
	ArchiveFlagEmbeddedFileNames          ArchiveFlag = 1 << 8
	ArchiveFlagXboxCompressed             ArchiveFlag = 1 << 9
)

// ArchiveType is the V4 header's archive_types bit field, recovered from
// original_source/include/bsa/tes4.hpp (SPEC_FULL.md §D.3); the distilled
// specification names the wire field but not its bit values.
type ArchiveType uint16

const (
	ArchiveTypeMeshes   ArchiveType = 1 << 0
	ArchiveTypeTextures ArchiveType = 1 << 1
	ArchiveTypeMenus    ArchiveType = 1 << 2
	ArchiveTypeSounds   ArchiveType = 1 << 3
	ArchiveTypeVoices   ArchiveType = 1 << 4
	ArchiveTypeShaders  ArchiveType = 1 << 5
	ArchiveTypeTrees    ArchiveType = 1 << 6
	ArchiveTypeFonts    ArchiveType = 1 << 7
	ArchiveTypeMisc     ArchiveType = 1 << 8
)

const (
	v4Magic      = "BSA\x00"
	v4HeaderSize = 36

	// low 30 bits of size_and_flags is the payload size.
	v4SizeMask = 0x3FFFFFFF
	// bit 30: per-file compression flip, XORed with the archive-level flag.
	v4FlagFlip = 1 << 30
	// bit 31: "secondary archive" marker. Aliases the reference
	// implementation's internal "checked" bit; read but never written
	// (§9 Open Question 3, SPEC_FULL.md §D.4).
	v4FlagSecondaryArchive = 1 << 31
)

// V4File is a single file entry owned by a V4Directory (§3.1).
type V4File struct {
	hash             V4Hash
	filename         string
	Payload          FilePayload
	flip             bool
	secondaryArchive bool
}

// NewV4File creates a file named by the final path component of name; any
// parent directory component is discarded (§8: "parent directories are not
// included in file names").
func NewV4File(name string) *V4File {
	base := baseName(name)
	return &V4File{hash: HashFile4(base), filename: base}
}

func baseName(path string) string {
	path = strings.ReplaceAll(path, "/", `\`)
	if idx := strings.LastIndexByte(path, '\\'); idx >= 0 {
		return path[idx+1:]
	}
	return path
}

// Hash returns the file's key.
func (f *V4File) Hash() V4Hash { return f.hash }

// Filename returns the file's bare name (no directory component).
func (f *V4File) Filename() string { return f.filename }

// Empty reports whether the file currently holds no data.
func (f *V4File) Empty() bool { return f.Payload.Empty() }

// Size returns the current (possibly compressed) payload size.
func (f *V4File) Size() int { return f.Payload.Size() }

// SetData replaces the file's contents with owned bytes and resets any
// compression state.
func (f *V4File) SetData(b []byte) {
	f.Payload.SetDataOwned(b)
	f.flip = false
}

// Clear empties the file's payload.
func (f *V4File) Clear() {
	f.Payload.Clear()
	f.flip = false
}

// Compressed reports this file's effective compression state given the
// archive-level flag it was read from or will be written under (§3.2):
// archiveCompressed XOR the per-file flip bit.
func (f *V4File) Compressed(archiveCompressed bool) bool {
	return archiveCompressed != f.flip
}

// Compress compresses the file's payload for the given version/codec and
// sets the flip bit so Compressed(archiveCompressed) reports true
// afterward, regardless of the archive's own default (§3.2: the flip bit is
// whatever value makes archiveCompressed != flip true).
func (f *V4File) Compress(archiveCompressed bool, v Version, cc CompressionCodec) error {
	c, err := selectCodec(v, cc)
	if err != nil {
		return err
	}
	if err := f.Payload.Compress(c); err != nil {
		return err
	}
	f.flip = !archiveCompressed
	return nil
}

// Decompress decompresses the file's payload and sets the flip bit so
// Compressed(archiveCompressed) reports false afterward.
func (f *V4File) Decompress(archiveCompressed bool, v Version, cc CompressionCodec) error {
	c, err := selectCodec(v, cc)
	if err != nil {
		return err
	}
	if err := f.Payload.Decompress(c); err != nil {
		return err
	}
	f.flip = archiveCompressed
	return nil
}

// Bytes returns the file's decompressed bytes for the given version/codec,
// without modifying the payload's stored compression state (mirrors
// Compress/Decompress's version/codec selection, but non-mutating). An
// uncompressed payload's bytes are returned as-is.
func (f *V4File) Bytes(v Version, cc CompressionCodec) ([]byte, error) {
	c, err := selectCodec(v, cc)
	if err != nil {
		return nil, err
	}
	return f.Payload.Bytes(c)
}

// V4Directory is an ordered map of V4File keyed by file hash, owned by a
// V4Archive (§3.1).
type V4Directory struct {
	hash  V4Hash
	name  string
	files []*V4File // kept sorted ascending by hash.Numeric()
}

// NewV4Directory creates a directory named path.
func NewV4Directory(path string) *V4Directory {
	return &V4Directory{hash: HashDirectory4(path), name: path}
}

// Hash returns the directory's key.
func (d *V4Directory) Hash() V4Hash { return d.hash }

// Name returns the directory's path as given to NewV4Directory.
func (d *V4Directory) Name() string { return d.name }

// Empty reports whether the directory holds no files.
func (d *V4Directory) Empty() bool { return len(d.files) == 0 }

// Size returns the number of files in the directory.
func (d *V4Directory) Size() int { return len(d.files) }

// Files returns the directory's files in ascending hash order.
func (d *V4Directory) Files() []*V4File { return d.files }

func (d *V4Directory) find(h V4Hash) (int, bool) {
	n := h.Numeric()
	idx := sort.Search(len(d.files), func(i int) bool {
		return d.files[i].hash.Numeric() >= n
	})
	if idx < len(d.files) && d.files[idx].hash.Numeric() == n {
		return idx, true
	}
	return idx, false
}

// File looks up a file by bare name.
func (d *V4Directory) File(name string) (*V4File, bool) {
	idx, ok := d.find(HashFile4(baseName(name)))
	if !ok {
		return nil, false
	}
	return d.files[idx], true
}

// Insert adds f to the directory. Fails with ErrDuplicateKey if f's hash is
// already present.
func (d *V4Directory) Insert(f *V4File) error {
	idx, ok := d.find(f.hash)
	if ok {
		return ErrDuplicateKey
	}
	d.files = append(d.files, nil)
	copy(d.files[idx+1:], d.files[idx:])
	d.files[idx] = f
	return nil
}

func (d *V4Directory) insertEmpty(h V4Hash) *V4File {
	idx, ok := d.find(h)
	if ok {
		return d.files[idx]
	}
	f := &V4File{hash: h}
	d.files = append(d.files, nil)
	copy(d.files[idx+1:], d.files[idx:])
	d.files[idx] = f
	return f
}

// V4Archive is an ordered map of V4Directory keyed by directory hash, with
// archive-level flags, a type bitmask, and version-dependent compression
// (§3.1, §4.5).
type V4Archive struct {
	flags ArchiveFlag
	types ArchiveType
	dirs  []*V4Directory // kept sorted ascending by hash.Numeric()
}

func (a *V4Archive) ArchiveFlags() ArchiveFlag { return a.flags }
func (a *V4Archive) SetFlags(f ArchiveFlag)    { a.flags = f }
func (a *V4Archive) ArchiveTypes() ArchiveType { return a.types }
func (a *V4Archive) SetTypes(t ArchiveType)    { a.types = t }

func (a *V4Archive) has(f ArchiveFlag) bool { return a.flags&f != 0 }

func (a *V4Archive) Compressed() bool            { return a.has(ArchiveFlagCompressed) }
func (a *V4Archive) DirectoryStrings() bool      { return a.has(ArchiveFlagDirectoryStrings) }
func (a *V4Archive) FileStrings() bool           { return a.has(ArchiveFlagFileStrings) }
func (a *V4Archive) RetainDirectoryNames() bool  { return a.has(ArchiveFlagRetainDirectoryNames) }
func (a *V4Archive) RetainFileNames() bool       { return a.has(ArchiveFlagRetainFileNames) }
func (a *V4Archive) RetainFileNameOffsets() bool { return a.has(ArchiveFlagRetainFileNameOffsets) }
func (a *V4Archive) RetainStringsDuringStartup() bool {
	return a.has(ArchiveFlagRetainStringsDuringStartup)
}
func (a *V4Archive) XboxArchive() bool       { return a.has(ArchiveFlagXboxArchive) }
func (a *V4Archive) XboxCompressed() bool    { return a.has(ArchiveFlagXboxCompressed) }
func (a *V4Archive) EmbeddedFileNames() bool { return a.has(ArchiveFlagEmbeddedFileNames) }

func (a *V4Archive) hasType(t ArchiveType) bool { return a.types&t != 0 }

func (a *V4Archive) Meshes() bool   { return a.hasType(ArchiveTypeMeshes) }
func (a *V4Archive) Textures() bool { return a.hasType(ArchiveTypeTextures) }
func (a *V4Archive) Menus() bool    { return a.hasType(ArchiveTypeMenus) }
func (a *V4Archive) Sounds() bool   { return a.hasType(ArchiveTypeSounds) }
func (a *V4Archive) Voices() bool   { return a.hasType(ArchiveTypeVoices) }
func (a *V4Archive) Shaders() bool  { return a.hasType(ArchiveTypeShaders) }
func (a *V4Archive) Trees() bool    { return a.hasType(ArchiveTypeTrees) }
func (a *V4Archive) Fonts() bool    { return a.hasType(ArchiveTypeFonts) }
func (a *V4Archive) Misc() bool     { return a.hasType(ArchiveTypeMisc) }

// Clear empties the archive, leaving flags and types untouched.
func (a *V4Archive) Clear() { a.dirs = nil }

// Empty reports whether the archive holds no directories.
func (a *V4Archive) Empty() bool { return len(a.dirs) == 0 }

// Size returns the number of directories in the archive.
func (a *V4Archive) Size() int { return len(a.dirs) }

// FileCount returns the total number of files across all directories.
func (a *V4Archive) FileCount() int {
	n := 0
	for _, d := range a.dirs {
		n += len(d.files)
	}
	return n
}

// Directories returns the archive's directories in ascending hash order.
func (a *V4Archive) Directories() []*V4Directory { return a.dirs }

func (a *V4Archive) findDir(h V4Hash) (int, bool) {
	n := h.Numeric()
	idx := sort.Search(len(a.dirs), func(i int) bool {
		return a.dirs[i].hash.Numeric() >= n
	})
	if idx < len(a.dirs) && a.dirs[idx].hash.Numeric() == n {
		return idx, true
	}
	return idx, false
}

// Directory looks up a directory by path.
func (a *V4Archive) Directory(path string) (*V4Directory, bool) {
	h := HashDirectory4(path)
	idx, ok := a.findDir(h)
	if !ok {
		return nil, false
	}
	return a.dirs[idx], true
}

func (a *V4Archive) insertDirEmpty(h V4Hash, name string) *V4Directory {
	idx, ok := a.findDir(h)
	if ok {
		return a.dirs[idx]
	}
	d := &V4Directory{hash: h, name: name}
	a.dirs = append(a.dirs, nil)
	copy(a.dirs[idx+1:], a.dirs[idx:])
	a.dirs[idx] = d
	return d
}

// Insert adds a file named fileName with contents data under directory
// dirPath, creating the directory if needed. Fails with ErrDuplicateKey if
// that file hash already exists in the directory.
func (a *V4Archive) Insert(dirPath, fileName string, data []byte) (*V4File, error) {
	d := a.insertDirEmpty(HashDirectory4(dirPath), dirPath)
	f := NewV4File(fileName)
	f.Payload.SetDataOwned(data)
	if err := d.Insert(f); err != nil {
		return nil, err
	}
	return f, nil
}

// directoryEntrySize returns the on-disk size of one directory-table entry
// for version v (§4.5: 16 bytes for 103/104, 24 bytes for 105).
func directoryEntrySize(v Version) int64 {
	if v == Version105 {
		return 24
	}
	return 16
}

func encodeHashU64(h V4Hash, xbox bool) uint64 {
	crc := h.Crc
	if xbox {
		crc = bswap32(crc)
	}
	return uint64(h.Last) | uint64(h.Last2)<<8 | uint64(h.Length)<<16 | uint64(h.First)<<24 | uint64(crc)<<32
}

func decodeHashU64(v uint64, xbox bool) V4Hash {
	h := V4Hash{
		Last:   uint8(v),
		Last2:  uint8(v >> 8),
		Length: uint8(v >> 16),
		First:  uint8(v >> 24),
		Crc:    uint32(v >> 32),
	}
	if xbox {
		h.Crc = bswap32(h.Crc)
	}
	return h
}

type v4FileRecordInfo struct {
	dir        *V4Directory
	file       *V4File
	dataOffset uint32
	size       uint32 // size_and_flags & v4SizeMask: on-disk record length
}

// Read parses a V4 archive from src, replacing the archive's current
// contents. On failure the archive is left cleared (§7). See §4.5 for the
// algorithm this implements.
func (a *V4Archive) Read(src io.Reader) (Version, error) {
	a.Clear()
	s, err := readAll(src)
	if err != nil {
		return 0, err
	}

	magic, err := s.readBytes(4)
	if err != nil {
		return 0, ErrTruncated
	}
	if string(magic) != v4Magic {
		return 0, ErrBadMagic
	}
	versionRaw, err := s.readU32(littleEndian)
	if err != nil {
		return 0, ErrTruncated
	}
	version := Version(versionRaw)
	switch version {
	case Version103, Version104, Version105:
	default:
		return 0, ErrBadMagic
	}

	directoriesOffset, err := s.readU32(littleEndian)
	if err != nil {
		return 0, ErrTruncated
	}
	flagsRaw, err := s.readU32(littleEndian)
	if err != nil {
		return 0, ErrTruncated
	}
	a.flags = ArchiveFlag(flagsRaw)
	directoryCount, err := s.readU32(littleEndian)
	if err != nil {
		return 0, ErrTruncated
	}
	_, err = s.readU32(littleEndian) // file_count: informational, recomputed from directories
	if err != nil {
		return 0, ErrTruncated
	}
	_, err = s.readU32(littleEndian) // directory_names_length: recomputed on write
	if err != nil {
		return 0, ErrTruncated
	}
	fileNamesLength, err := s.readU32(littleEndian)
	if err != nil {
		return 0, ErrTruncated
	}
	typesRaw, err := s.readU16(littleEndian)
	if err != nil {
		return 0, ErrTruncated
	}
	a.types = ArchiveType(typesRaw)
	if _, err := s.readU16(littleEndian); err != nil { // padding
		return 0, ErrTruncated
	}

	xbox := a.XboxArchive()
	dirStrings := a.DirectoryStrings()
	fileStrings := a.FileStrings()
	embeddedNames := a.EmbeddedFileNames()
	archiveCompressed := a.Compressed()

	s.seekAbsolute(int64(directoriesOffset))

	type dirTableEntry struct {
		hash        V4Hash
		fileCount   uint32
		filesOffset uint64
	}
	entries := make([]dirTableEntry, directoryCount)
	for i := uint32(0); i < directoryCount; i++ {
		hraw, err := s.readU64(littleEndian)
		if err != nil {
			a.Clear()
			return 0, ErrTruncated
		}
		fc, err := s.readU32(littleEndian)
		if err != nil {
			a.Clear()
			return 0, ErrTruncated
		}
		var filesOffset uint64
		if version == Version105 {
			if _, err := s.readU32(littleEndian); err != nil { // pad
				a.Clear()
				return 0, ErrTruncated
			}
			filesOffset, err = s.readU64(littleEndian)
			if err != nil {
				a.Clear()
				return 0, ErrTruncated
			}
		} else {
			off32, err := s.readU32(littleEndian)
			if err != nil {
				a.Clear()
				return 0, ErrTruncated
			}
			filesOffset = uint64(off32)
		}
		entries[i] = dirTableEntry{hash: decodeHashU64(hraw, xbox), fileCount: fc, filesOffset: filesOffset}
	}

	var records []v4FileRecordInfo
	var maxEnd int64

	for _, e := range entries {
		d := a.insertDirEmpty(e.hash, "")
		realOffset := int64(e.filesOffset) - int64(fileNamesLength)

		err := func() error {
			defer s.guard()()
			s.seekAbsolute(realOffset)
			if dirStrings {
				length, err := s.readU8()
				if err != nil {
					return ErrTruncated
				}
				nameBytes, err := s.readBytes(int64(length))
				if err != nil {
					return ErrTruncated
				}
				if length > 0 {
					d.name = string(nameBytes[:len(nameBytes)-1])
				}
			}
			for i := uint32(0); i < e.fileCount; i++ {
				fhraw, err := s.readU64(littleEndian)
				if err != nil {
					return ErrTruncated
				}
				sizeAndFlags, err := s.readU32(littleEndian)
				if err != nil {
					return ErrTruncated
				}
				dataOffset, err := s.readU32(littleEndian)
				if err != nil {
					return ErrTruncated
				}
				fh := decodeHashU64(fhraw, xbox)
				f := d.insertEmpty(fh)
				f.flip = sizeAndFlags&v4FlagFlip != 0
				f.secondaryArchive = sizeAndFlags&v4FlagSecondaryArchive != 0
				records = append(records, v4FileRecordInfo{
					dir:        d,
					file:       f,
					dataOffset: dataOffset,
					size:       sizeAndFlags & v4SizeMask,
				})
			}
			if s.pos > maxEnd {
				maxEnd = s.pos
			}
			return nil
		}()
		if err != nil {
			a.Clear()
			return 0, err
		}
	}

	if fileStrings {
		s.seekAbsolute(maxEnd)
		for _, rec := range records {
			name, err := s.readCStringAt(s.pos)
			if err != nil {
				a.Clear()
				return 0, ErrTruncated
			}
			if _, err := s.readBytes(int64(len(name)) + 1); err != nil {
				a.Clear()
				return 0, ErrTruncated
			}
			rec.file.filename = name
		}
	}

	for _, rec := range records {
		err := func() error {
			defer s.guard()()
			s.seekAbsolute(int64(rec.dataOffset))
			if embeddedNames {
				length, err := s.readU8()
				if err != nil {
					return ErrTruncated
				}
				if _, err := s.readBytes(int64(length)); err != nil {
					return ErrTruncated
				}
			}

			// recover size/flip from the record captured during the
			// directory pass rather than re-reading: retained on file.
			compressed := archiveCompressed != rec.file.flip

			if compressed {
				decompressedSize, err := s.readU32(littleEndian)
				if err != nil {
					return ErrTruncated
				}
				remaining := rec.size - 4
				data, err := s.readBytes(int64(remaining))
				if err != nil {
					return ErrTruncated
				}
				rec.file.Payload.setDataBorrowed(data)
				rec.file.Payload.decompressedSize = uint64(decompressedSize)
			} else {
				data, err := s.readBytes(int64(rec.size))
				if err != nil {
					return ErrTruncated
				}
				rec.file.Payload.setDataBorrowed(data)
			}
			return nil
		}()
		if err != nil {
			a.Clear()
			return 0, err
		}
	}

	return version, nil
}

// ReadWithOptions behaves like Read, additionally materializing every
// payload into owned storage when opts.MaterializeOwned is set, so the
// archive no longer aliases src's backing buffer (§6.4, §9 "zero-copy
// reads"). Materializing preserves each payload's current compression
// state (DecompressedSize), it does not decompress anything.
func (a *V4Archive) ReadWithOptions(src io.Reader, opts ReadOptions) (Version, error) {
	opts.applyDefaults()
	version, err := a.Read(src)
	if err != nil {
		return version, err
	}
	if opts.MaterializeOwned {
		for _, d := range a.dirs {
			for _, f := range d.files {
				f.Payload.materializeOwned()
			}
		}
	}
	return version, nil
}

// Write emits the archive to dst in the layout of §4.5, at the given
// version.
func (a *V4Archive) Write(dst io.Writer, version Version) error {
	xbox := a.XboxArchive()
	dirStrings := a.DirectoryStrings()
	fileStrings := a.FileStrings()
	embeddedNames := a.EmbeddedFileNames()
	archiveCompressed := a.Compressed()

	dirs := append([]*V4Directory(nil), a.dirs...)
	sortKey := func(h V4Hash) uint64 {
		if xbox {
			return h.xboxNumeric()
		}
		return h.Numeric()
	}
	sort.Slice(dirs, func(i, j int) bool { return sortKey(dirs[i].hash) < sortKey(dirs[j].hash) })
	// Sort shallow copies so the archive's own directories keep their
	// native order; only the write order follows sortKey.
	for k, d := range dirs {
		files := append([]*V4File(nil), d.files...)
		sort.Slice(files, func(i, j int) bool { return sortKey(files[i].hash) < sortKey(files[j].hash) })
		dirs[k] = &V4Directory{hash: d.hash, name: d.name, files: files}
	}

	var directoryNamesLength, fileNamesLength int64
	for _, d := range dirs {
		if dirStrings {
			directoryNamesLength += int64(len(d.name)) + 2
		}
		for _, f := range d.files {
			if fileStrings {
				fileNamesLength += int64(len(f.filename)) + 1
			}
		}
	}

	directoryCount := int64(len(dirs))
	entrySize := directoryEntrySize(version)
	fileCount := 0
	for _, d := range dirs {
		fileCount += len(d.files)
	}

	// Pass 1: compute each directory's on-disk file-records block offset.
	realOffset := v4HeaderSize + entrySize*directoryCount
	filesOffsets := make([]int64, len(dirs))
	for i, d := range dirs {
		filesOffsets[i] = realOffset
		if dirStrings {
			realOffset += int64(len(d.name)) + 2
		}
		realOffset += int64(len(d.files)) * 16
	}
	fileRecordsEnd := realOffset

	// Pass 2: compute each file's data offset.
	dataStart := fileRecordsEnd + fileNamesLength
	dataOffsets := make(map[*V4File]uint32)
	cursor := dataStart
	for _, d := range dirs {
		for _, f := range d.files {
			dataOffsets[f] = uint32(cursor)
			if embeddedNames {
				embedded := d.name + `\` + f.filename
				cursor += 1 + int64(len(embedded))
			}
			compressed := archiveCompressed != f.flip
			if compressed {
				cursor += 4
			}
			cursor += int64(f.Payload.Size())
		}
	}

	w := newByteWriter(dst)
	if err := w.writeBytes([]byte(v4Magic)); err != nil {
		return err
	}
	if err := w.writeU32(uint32(version), littleEndian); err != nil {
		return err
	}
	if err := w.writeU32(v4HeaderSize, littleEndian); err != nil {
		return err
	}
	if err := w.writeU32(uint32(a.flags), littleEndian); err != nil {
		return err
	}
	if err := w.writeU32(uint32(directoryCount), littleEndian); err != nil {
		return err
	}
	if err := w.writeU32(uint32(fileCount), littleEndian); err != nil {
		return err
	}
	if err := w.writeU32(uint32(directoryNamesLength), littleEndian); err != nil {
		return err
	}
	if err := w.writeU32(uint32(fileNamesLength), littleEndian); err != nil {
		return err
	}
	if err := w.writeU16(uint16(a.types), littleEndian); err != nil {
		return err
	}
	if err := w.writeU16(0, littleEndian); err != nil {
		return err
	}

	for i, d := range dirs {
		if err := w.writeU64(encodeHashU64(d.hash, xbox), littleEndian); err != nil {
			return err
		}
		if err := w.writeU32(uint32(len(d.files)), littleEndian); err != nil {
			return err
		}
		storedOffset := filesOffsets[i] + fileNamesLength
		if version == Version105 {
			if err := w.writeU32(0, littleEndian); err != nil {
				return err
			}
			if err := w.writeU64(uint64(storedOffset), littleEndian); err != nil {
				return err
			}
		} else {
			if storedOffset > math.MaxUint32 {
				return fmt.Errorf("%w: directory offset overflow", ErrBufferTooSmall)
			}
			if err := w.writeU32(uint32(storedOffset), littleEndian); err != nil {
				return err
			}
		}
	}

	for _, d := range dirs {
		if dirStrings {
			if err := w.writeU8(uint8(len(d.name) + 1)); err != nil {
				return err
			}
			if err := w.writeBytes([]byte(d.name)); err != nil {
				return err
			}
			if err := w.writeU8(0); err != nil {
				return err
			}
		}
		for _, f := range d.files {
			if err := w.writeU64(encodeHashU64(f.hash, xbox), littleEndian); err != nil {
				return err
			}
			size := uint32(f.Payload.Size()) & v4SizeMask
			compressed := archiveCompressed != f.flip
			var sizeAndFlags uint32
			if compressed {
				sizeAndFlags = (size + 4) & v4SizeMask
			} else {
				sizeAndFlags = size
			}
			if f.flip {
				sizeAndFlags |= v4FlagFlip
			}
			if f.secondaryArchive {
				sizeAndFlags |= v4FlagSecondaryArchive
			}
			if err := w.writeU32(sizeAndFlags, littleEndian); err != nil {
				return err
			}
			if err := w.writeU32(dataOffsets[f], littleEndian); err != nil {
				return err
			}
		}
	}

	if fileStrings {
		for _, d := range dirs {
			for _, f := range d.files {
				if err := w.writeBytes([]byte(f.filename)); err != nil {
					return err
				}
				if err := w.writeU8(0); err != nil {
					return err
				}
			}
		}
	}

	for _, d := range dirs {
		for _, f := range d.files {
			if embeddedNames {
				embedded := d.name + `\` + f.filename
				if len(embedded) > 255 {
					return ErrInvalidPath
				}
				if err := w.writeU8(uint8(len(embedded))); err != nil {
					return err
				}
				if err := w.writeBytes([]byte(embedded)); err != nil {
					return err
				}
			}
			compressed := archiveCompressed != f.flip
			if compressed {
				if err := w.writeU32(uint32(f.Payload.decompressedSize), littleEndian); err != nil {
					return err
				}
			}
			if err := w.writeBytes(f.Payload.AsBytes()); err != nil {
				return err
			}
		}
	}

	return nil
}

// WriteWithOptions writes the archive like Write, first compressing (with
// the codec opts.Codec selects for version) any file whose stored bytes
// are still raw but whose flip bit already says it should come out
// compressed under the archive's default flag (§3.2, §4.3) — the case
// opts.Codec exists for: "an archive holds uncompressed payloads that its
// flags say should be compressed".
func (a *V4Archive) WriteWithOptions(dst io.Writer, version Version, opts WriteOptions) error {
	opts.applyDefaults()
	archiveCompressed := a.Compressed()
	for _, d := range a.dirs {
		for _, f := range d.files {
			if f.Payload.Empty() || f.Payload.Compressed() {
				continue
			}
			if archiveCompressed != f.flip {
				if err := f.Compress(archiveCompressed, version, opts.Codec); err != nil {
					return err
				}
			}
		}
	}
	return a.Write(dst, version)
}

// VerifyOffsets reports whether every computed data offset fits within a
// u32 for the given version (§4.5; same u32 ceiling as V3's VerifyOffsets).
func (a *V4Archive) VerifyOffsets(version Version) bool {
	dirStrings := a.DirectoryStrings()
	fileStrings := a.FileStrings()
	embeddedNames := a.EmbeddedFileNames()
	archiveCompressed := a.Compressed()

	var fileNamesLength int64
	for _, d := range a.dirs {
		for _, f := range d.files {
			if fileStrings {
				fileNamesLength += int64(len(f.filename)) + 1
			}
		}
	}

	entrySize := directoryEntrySize(version)
	realOffset := v4HeaderSize + entrySize*int64(len(a.dirs))
	for _, d := range a.dirs {
		if dirStrings {
			realOffset += int64(len(d.name)) + 2
		}
		realOffset += int64(len(d.files)) * 16
	}
	dataStart := realOffset + fileNamesLength
	if dataStart > math.MaxUint32 {
		return false
	}

	cursor := dataStart
	for _, d := range a.dirs {
		for _, f := range d.files {
			if cursor > math.MaxUint32 {
				return false
			}
			if embeddedNames {
				cursor += 1 + int64(len(d.name)) + 1 + int64(len(f.filename))
			}
			compressed := archiveCompressed != f.flip
			if compressed {
				cursor += 4
			}
			cursor += int64(f.Payload.Size())
		}
	}
	return true
}
