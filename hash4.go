// SPDX-License-Identifier: MIT
// Copyright (c) 2026 tesvfs
// Source: github.com/tesvfs/bsa

package bsa

// V4Hash is the 64-bit key used by directories and files in the two-level
// V4 archive namespace (§3.1, §4.2).
type V4Hash struct {
	Last   uint8
	Last2  uint8
	Length uint8
	First  uint8
	Crc    uint32
}

// Numeric returns the 64-bit sort key: Last in the lowest byte, then Last2,
// then Length, then First, then Crc in the high 32 bits. This is the
// authoritative encoding recovered from the reference implementation; it
// differs from a literal reading of a little-endian bitfield description
// only in which field lands where, and is verified against every test
// vector in §8.
func (h V4Hash) Numeric() uint64 {
	return uint64(h.Last) |
		uint64(h.Last2)<<8 |
		uint64(h.Length)<<16 |
		uint64(h.First)<<24 |
		uint64(h.Crc)<<32
}

// Less reports whether h sorts before other under the archive's native
// (non-xbox) key order.
func (h V4Hash) Less(other V4Hash) bool {
	return h.Numeric() < other.Numeric()
}

// xboxCrc byte-swaps Crc, the only sub-field that changes endianness under
// xbox_archive (§6.2). xboxNumeric is the sort key used while writing an
// xbox-layout archive (§4.5 step 1).
func (h V4Hash) xboxCrc() uint32 {
	return bswap32(h.Crc)
}

func (h V4Hash) xboxNumeric() uint64 {
	return uint64(h.Last) |
		uint64(h.Last2)<<8 |
		uint64(h.Length)<<16 |
		uint64(h.First)<<24 |
		uint64(h.xboxCrc())<<32
}

func bswap32(v uint32) uint32 {
	return v>>24 | (v>>8)&0xFF00 | (v<<8)&0xFF0000 | v<<24
}

// crcBethesda is the custom rolling CRC used throughout V4 hashing (§4.2
// step 4): h = 0; for each byte b: h = (b + h*0x1003f) mod 2^32.
func crcBethesda(s string) uint32 {
	var h uint32
	for i := 0; i < len(s); i++ {
		h = uint32(s[i]) + h*0x1003f
	}
	return h
}

// extensionAdjustment is recovered from the reference tool's behavior
// (§9 Open Question 1; see DESIGN.md). Only these four extensions receive
// any adjustment; every other extension, including ones the archive tool
// happily stores (e.g. ".mp3", confirmed by the §8 test vector), gets none.
// Each value ORs directly into the low 32 bits of the hash: bits 0-7 into
// Last, bits 8-15 into Last2, bits 24-31 into First.
var extensionAdjustment = map[string]uint32{
	".kf":  0x80,
	".nif": 0x8000,
	".dds": 0x8080,
	".wav": 0x80000000,
}

const (
	maxV4NameLength      = 259
	maxV4ExtensionLength = 14
)

// splitStemExtension mimics Windows _splitpath_s: the extension starts at
// the last '.' in name; a leading dot is itself part of the extension, so
// ".gitignore" has an empty stem and extension ".gitignore" (§4.2 step 3).
func splitStemExtension(name string) (stem, ext string) {
	dot := -1
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' {
			dot = i
			break
		}
	}
	if dot < 0 {
		return name, ""
	}
	return name[:dot], name[dot:]
}

// hashCore fills First/Last/Last2/Length from s and folds crc into Crc. It
// is shared by directory hashing (s is the whole canonicalized path) and
// file hashing (s is the canonicalized stem); both treat s identically once
// split from any extension.
func hashCore(s string, crc uint32) V4Hash {
	n := len(s)
	h := V4Hash{
		First:  s[0],
		Last:   s[n-1],
		Length: uint8(n),
		Crc:    crc,
	}
	if n > 2 {
		h.Last2 = s[n-2]
	}
	return h
}

// HashDirectory4 computes the V4 directory hash of path per §4.2. An empty
// path is equivalent to ".". A canonicalized path longer than 259 bytes
// hashes to the all-zero value.
func HashDirectory4(path string) V4Hash {
	p := canonicalizePathV3(path)
	if p == "" {
		p = "."
	}
	if len(p) > maxV4NameLength {
		return V4Hash{}
	}
	return hashCore(p, crcBethesda(p))
}

// HashFile4 computes the V4 file hash of name per §4.2. name is the bare
// file name (no directory component); the stem/extension split follows
// Windows _splitpath_s semantics, including the leading-dot quirk. An
// empty stem, a stem longer than 259 bytes, or an extension longer than 14
// bytes (excluding the dot) all hash to the all-zero value.
func HashFile4(name string) V4Hash {
	p := canonicalizePathV3(name)
	stem, ext := splitStemExtension(p)
	if stem == "" {
		return V4Hash{}
	}
	if len(stem) > maxV4NameLength {
		return V4Hash{}
	}
	if len(ext) > 0 && len(ext)-1 > maxV4ExtensionLength {
		return V4Hash{}
	}

	n := len(stem)
	var middle string
	if n > 2 {
		middle = stem[1 : n-2]
	}
	crc := crcBethesda(middle) + crcBethesda(ext)

	h := hashCore(stem, crc)
	if adj, ok := extensionAdjustment[ext]; ok {
		h.Last |= uint8(adj)
		h.Last2 |= uint8(adj >> 8)
		h.First |= uint8(adj >> 24)
	}
	return h
}
