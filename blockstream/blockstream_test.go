package blockstream

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func encodeAll(t *testing.T, content []byte) ([]byte, ContentHash) {
	t.Helper()
	tree := BuildHashTree(content)
	var buf bytes.Buffer
	enc, err := NewEncoder(&buf, uint64(len(content)), tree)
	require.NoError(t, err)
	_, err = enc.Write(content)
	require.NoError(t, err)
	require.NoError(t, enc.Close())
	return buf.Bytes(), tree.Root()
}

func TestEncodeAndDecodeRoundTrip(t *testing.T) {
	sizes := []int{
		BlockSize - 1, BlockSize, BlockSize + 1,
		2*BlockSize - 1, 2 * BlockSize, 2*BlockSize + 1,
		16*BlockSize - 1, 16 * BlockSize, 16*BlockSize + 1,
		0, 1,
	}
	for _, size := range sizes {
		content := bytes.Repeat([]byte{0x80}, size)
		wire, root := encodeAll(t, content)

		dec := NewVerifiedDecoder(bytes.NewReader(wire), root)
		got, err := io.ReadAll(dec)
		require.NoErrorf(t, err, "size=%d", size)
		require.Equalf(t, content, got, "size=%d", size)
	}
}

func TestEncodeIncrementallyAndDecode(t *testing.T) {
	size := 5*BlockSize + 37
	content := bytes.Repeat([]byte{0x80}, size)
	tree := BuildHashTree(content)

	var buf bytes.Buffer
	enc, err := NewEncoder(&buf, uint64(size), tree)
	require.NoError(t, err)

	chunkSizes := []int{1, 7, 1000, BlockSize / 3, BlockSize, BlockSize*2 + 5}
	off := 0
	ci := 0
	for off < size {
		cs := chunkSizes[ci%len(chunkSizes)]
		ci++
		if off+cs > size {
			cs = size - off
		}
		_, err := enc.Write(content[off : off+cs])
		require.NoError(t, err)
		off += cs
	}
	require.NoError(t, enc.Close())

	dec := NewVerifiedDecoder(bytes.NewReader(buf.Bytes()), tree.Root())
	got, err := io.ReadAll(dec)
	require.NoError(t, err)
	require.Equal(t, content, got)
}

func TestDecodeRejectsTamperedBlock(t *testing.T) {
	content := bytes.Repeat([]byte{0x80}, 3*BlockSize+10)
	wire, root := encodeAll(t, content)
	wire[len(wire)-1] ^= 0xff

	dec := NewVerifiedDecoder(bytes.NewReader(wire), root)
	_, err := io.ReadAll(dec)
	require.Error(t, err)
}

func TestDecodeRejectsWrongRoot(t *testing.T) {
	content := bytes.Repeat([]byte{0x01}, BlockSize+5)
	wire, _ := encodeAll(t, content)
	var wrongRoot ContentHash
	wrongRoot[0] = 0xff

	dec := NewVerifiedDecoder(bytes.NewReader(wire), wrongRoot)
	_, err := io.ReadAll(dec)
	require.Error(t, err)
}

func TestDecodeConnectionResetMidFrame(t *testing.T) {
	content := bytes.Repeat([]byte{0x02}, 2*BlockSize)
	wire, root := encodeAll(t, content)
	truncated := wire[:len(wire)-10]

	dec := NewVerifiedDecoder(bytes.NewReader(truncated), root)
	_, err := io.ReadAll(dec)
	require.Error(t, err)
}
