// SPDX-License-Identifier: MIT
// Copyright (c) 2026 tesvfs
// Source: github.com/tesvfs/bsa

package bsa

import "strings"

// V3Hash is the 64-bit key used by the flat-namespace V3 archive format.
// It is computed from a canonicalized path by HashFile3.
type V3Hash struct {
	Lo uint32
	Hi uint32
}

// Numeric returns the 64-bit sort key. Iteration order over a V3Archive is
// ascending by this value (§4.2): it packs Lo into the high 32 bits and Hi
// into the low 32 bits, so archives sort first by Lo, then by Hi.
func (h V3Hash) Numeric() uint64 {
	return uint64(h.Lo)<<32 | uint64(h.Hi)
}

// Less reports whether h sorts before other under the archive's key order.
func (h V3Hash) Less(other V3Hash) bool {
	return h.Numeric() < other.Numeric()
}

func rotr32(x uint32, n uint32) uint32 {
	n &= 31
	if n == 0 {
		return x
	}
	return (x >> n) | (x << (32 - n))
}

// canonicalizePathV3 normalizes a path for V3 hashing: forward slashes become
// backslashes and ASCII letters are lowercased; non-ASCII bytes pass through
// unchanged (§6.3).
func canonicalizePathV3(path string) string {
	path = strings.ReplaceAll(path, "/", `\`)
	b := []byte(path)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// HashFile3 computes the V3 hash of a path per §4.2. The path is
// canonicalized first (separator normalization, ASCII lowercasing), then
// split at its midpoint: the first half is XOR-folded into Lo, the second
// half is XOR-folded and rotated into Hi.
func HashFile3(path string) V3Hash {
	p := canonicalizePathV3(path)
	n := len(p)
	l := n >> 1

	var lo uint32
	var off uint32
	for i := 0; i < l; i++ {
		lo ^= uint32(p[i]) << (off & 0x1F)
		off += 8
	}

	var hi uint32
	off = 0
	for j := l; j < n; j++ {
		temp := uint32(p[j]) << (off & 0x1F)
		hi ^= temp
		hi = rotr32(hi, temp&0x1F)
		off += 8
	}

	return V3Hash{Lo: lo, Hi: hi}
}
