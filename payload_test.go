package bsa

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFilePayloadEmptyByDefault(t *testing.T) {
	var p FilePayload
	require.True(t, p.Empty())
	require.Equal(t, 0, p.Size())
	require.False(t, p.Compressed())
}

func TestFilePayloadSetDataOwned(t *testing.T) {
	var p FilePayload
	data := []byte("hello world")
	p.SetDataOwned(data)

	require.False(t, p.Empty())
	require.Equal(t, len(data), p.Size())
	require.Equal(t, data, p.AsBytes())
}

func TestFilePayloadClear(t *testing.T) {
	var p FilePayload
	p.SetDataOwned([]byte("x"))
	p.Clear()
	require.True(t, p.Empty())
	require.Equal(t, 0, p.Size())
}

func TestFilePayloadBorrowedAliasesBacking(t *testing.T) {
	backing := []byte{1, 2, 3, 4}
	var p FilePayload
	p.setDataBorrowed(backing[1:3])
	require.Equal(t, []byte{2, 3}, p.AsBytes())

	backing[1] = 99
	require.Equal(t, byte(99), p.AsBytes()[0])
}

func TestFilePayloadMaterializeOwnedCopiesBorrowedBytes(t *testing.T) {
	backing := []byte{1, 2, 3, 4}
	var p FilePayload
	p.setDataBorrowed(backing[1:3])

	p.materializeOwned()
	require.Equal(t, payloadOwned, p.state)
	require.Equal(t, []byte{2, 3}, p.AsBytes())

	// The copy no longer aliases backing.
	backing[1] = 99
	require.Equal(t, byte(2), p.AsBytes()[0])
}

func TestFilePayloadMaterializeOwnedPreservesCompressionState(t *testing.T) {
	var p FilePayload
	p.SetDataOwned([]byte("payload data for compression"))
	require.NoError(t, p.Compress(zlibCodec{}))

	compressed := append([]byte(nil), p.AsBytes()...)
	decompressedSize := p.DecompressedSize()

	p.setDataBorrowed(append([]byte(nil), compressed...))
	p.decompressedSize = decompressedSize

	p.materializeOwned()
	require.Equal(t, payloadOwned, p.state)
	require.True(t, p.Compressed())
	require.Equal(t, decompressedSize, p.DecompressedSize())
	require.Equal(t, compressed, p.AsBytes())
}

func TestFilePayloadMaterializeOwnedNoopWhenNotBorrowed(t *testing.T) {
	var owned FilePayload
	owned.SetDataOwned([]byte("data"))
	owned.materializeOwned()
	require.Equal(t, payloadOwned, owned.state)

	var empty FilePayload
	empty.materializeOwned()
	require.Equal(t, payloadEmpty, empty.state)
}

func TestFilePayloadCompressDecompressRoundTrip(t *testing.T) {
	for _, c := range []codec{zlibCodec{}, lz4Codec{}} {
		var p FilePayload
		original := []byte("the quick brown fox jumps over the lazy dog, repeated, repeated, repeated")
		p.SetDataOwned(append([]byte(nil), original...))

		require.NoError(t, p.Compress(c))
		require.True(t, p.Compressed())
		require.Equal(t, uint64(len(original)), p.DecompressedSize())

		out, err := p.Bytes(c)
		require.NoError(t, err)
		require.Equal(t, original, out)

		require.NoError(t, p.Decompress(c))
		require.False(t, p.Compressed())
		require.Equal(t, original, p.AsBytes())
	}
}

func TestFilePayloadCompressAlreadyCompressed(t *testing.T) {
	var p FilePayload
	p.SetDataOwned([]byte("data"))
	require.NoError(t, p.Compress(zlibCodec{}))
	err := p.Compress(zlibCodec{})
	require.True(t, errors.Is(err, ErrAlreadyCompressed))
}

func TestFilePayloadDecompressAlreadyDecompressed(t *testing.T) {
	var p FilePayload
	p.SetDataOwned([]byte("data"))
	err := p.Decompress(zlibCodec{})
	require.True(t, errors.Is(err, ErrAlreadyDecompressed))
}

func TestFilePayloadCompressIntoBufferTooSmall(t *testing.T) {
	var p FilePayload
	p.SetDataOwned([]byte("some moderately sized payload data"))
	dst := make([]byte, 1)
	_, err := p.CompressInto(dst, zlibCodec{})
	require.True(t, errors.Is(err, ErrBufferTooSmall))
}

func TestFilePayloadDecompressIntoBufferTooSmall(t *testing.T) {
	var p FilePayload
	p.SetDataOwned([]byte("payload data for compression"))
	require.NoError(t, p.Compress(zlibCodec{}))

	dst := make([]byte, 1)
	_, err := p.DecompressInto(dst, zlibCodec{})
	require.True(t, errors.Is(err, ErrBufferTooSmall))
}

func TestFilePayloadCompressIntoDecompressIntoRoundTrip(t *testing.T) {
	var p FilePayload
	original := []byte("round trip through caller-provided buffers, several times over")
	p.SetDataOwned(append([]byte(nil), original...))

	c := lz4Codec{}
	dst := make([]byte, c.compressBound(len(original)))
	n, err := p.CompressInto(dst, c)
	require.NoError(t, err)
	require.Equal(t, n, p.Size())

	out := make([]byte, len(original))
	n, err = p.DecompressInto(out, c)
	require.NoError(t, err)
	require.Equal(t, original, out[:n])
}
