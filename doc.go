// SPDX-License-Identifier: MIT
// Copyright (c) 2026 tesvfs
// Source: github.com/tesvfs/bsa

/*
Package bsa reads and writes Bethesda Softworks Archive (BSA) containers:
the legacy flat-namespace format used by Morrowind (V3, magic 0x100) and
the two-level directory/file format used by Oblivion through Skyrim
Special Edition (V4, versions 103/104/105), including optional zlib/lz4
compression and the big-endian "xbox" layout variant.

Reading is a single batch operation: Read parses the whole header and
index up front, and file payloads may remain as zero-copy borrowed spans
into the source buffer until the caller asks for their bytes.

# Reading a V3 archive

	f, err := os.Open("Morrowind.bsa")
	if err != nil {
	    return err
	}
	defer f.Close()

	var archive bsa.V3Archive
	if err := archive.Read(f); err != nil {
	    return err
	}
	for _, file := range archive.Files() {
	    data := file.Payload.AsBytes()
	    _ = data
	}

# Reading a V4 archive

	f, err := os.Open("Skyrim - Textures.bsa")
	if err != nil {
	    return err
	}
	defer f.Close()

	var archive bsa.V4Archive
	version, err := archive.Read(f)
	if err != nil {
	    return err
	}
	dir, ok := archive.Directory("textures\\armor")
	if ok {
	    file, ok := dir.File("cuirass.dds")
	    if ok {
	        data, err := file.Bytes(version, bsa.CompressionCodecNormal)
	        if err != nil {
	            return err
	        }
	        _ = data
	    }
	}

# Writing

	var archive bsa.V4Archive
	archive.SetFlags(bsa.ArchiveFlagDirectoryStrings | bsa.ArchiveFlagFileStrings)
	if _, err := archive.Insert("meshes\\x", "model.nif", data); err != nil {
	    return err
	}
	var buf bytes.Buffer
	if err := archive.Write(&buf, bsa.Version105); err != nil {
	    return err
	}

# Hashing

Hashing is exposed directly since it is the stable on-disk key used for
lookups and for bit-exact round-tripping:

	h := bsa.HashFile3("meshes/c/artifact_bloodring_01.nif")
	_ = h.Numeric()

	dh := bsa.HashDirectory4("textures\\armor")
	fh := bsa.HashFile4("cuirass.dds")
	_, _ = dh, fh

# Compression

A V4 file's payload carries its own compression state independent of the
archive-level flag (§3.2); Compress/Decompress select the codec from the
archive version, dispatching to zlib for 103/104 and lz4 block format for
105, and mutate the payload in place. Bytes selects the same codec but
returns decompressed bytes without changing the payload's stored state.
The xmem codec has no portable implementation and returns
ErrNotImplemented.
*/
package bsa
