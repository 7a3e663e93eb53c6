// SPDX-License-Identifier: MIT
// Copyright (c) 2026 tesvfs
// Source: github.com/tesvfs/bsa

package bsa

// ReadOptions controls how ReadWithOptions materializes file payloads
// (§6.4, §9 "zero-copy reads"). The zero value is valid: payloads are left
// borrowed, aliasing the source buffer, exactly as §4.4/§4.5's read
// algorithms describe. Honored by V3Archive.ReadWithOptions and
// V4Archive.ReadWithOptions.
type ReadOptions struct {
	// MaterializeOwned copies every payload into owned storage immediately
	// after Read instead of leaving it borrowed from the source buffer. Set
	// this when the source buffer (e.g. a memory-mapped file) will be
	// released before the archive's lifetime ends.
	MaterializeOwned bool
}

func (opts *ReadOptions) applyDefaults() {
	// No field currently needs a non-zero default; MaterializeOwned's zero
	// value (false, meaning "stay borrowed") is itself the documented
	// zero-copy behavior of §4.4/§4.5.
}

// WriteOptions controls codec selection during WriteWithOptions when an
// archive holds uncompressed payloads that its flags say should be
// compressed (§4.3, §4.5). Honored by V4Archive.WriteWithOptions; V3
// archives carry no compression, so WriteOptions has no V3 counterpart.
type WriteOptions struct {
	// Codec selects which codec backs "normal" compression. The zero value
	// (CompressionCodecNormal) dispatches by archive version per §4.3.
	Codec CompressionCodec
}

func (opts *WriteOptions) applyDefaults() {
	// CompressionCodecNormal is zero, so no assignment is needed; kept as an
	// explicit method for symmetry with ReadOptions and to match the
	// teacher's one-applyDefaults-per-options-struct convention.
}
