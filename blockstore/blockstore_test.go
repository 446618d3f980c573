package blockstore

import (
	"path/filepath"
	"testing"

	"github.com/pineappleworkshop/lightning/blockstream"
	"github.com/stretchr/testify/require"
)

func testHash(b byte) blockstream.ContentHash {
	var h blockstream.ContentHash
	h[0] = b
	return h
}

func TestBlockKeyMarshalRoundTrip(t *testing.T) {
	h := testHash(0x11)
	for _, k := range []BlockKey{TreeKey(h), ChunkKey(h, 7)} {
		got, err := UnmarshalBlockKey(k.Marshal())
		require.NoError(t, err)
		require.Equal(t, k, got)
	}
}

func TestMemStorePutGetHas(t *testing.T) {
	s := NewMemStore()
	k := ChunkKey(testHash(0x01), 3)

	require.False(t, s.Has(k))
	require.NoError(t, s.Put(k, []byte("chunk")))
	require.True(t, s.Has(k))

	v, ok, err := s.Get(k)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("chunk"), v)
}

func TestMemStoreRejectsConflictingWrite(t *testing.T) {
	s := NewMemStore()
	k := TreeKey(testHash(0x02))
	require.NoError(t, s.Put(k, []byte("aaaa")))
	require.Error(t, s.Put(k, []byte("bb")))
	require.NoError(t, s.Put(k, []byte("aaaa")), "re-putting the same value is idempotent")
}

func TestPutChunkAcceptsChunkMatchingStoredTree(t *testing.T) {
	s := NewMemStore()
	content := make([]byte, blockstream.BlockSize*2+17)
	for i := range content {
		content[i] = 0x80
	}
	tree := blockstream.BuildHashTree(content)
	h := tree.Root()

	require.NoError(t, PutTree(s, h, tree))
	require.NoError(t, PutChunk(s, h, 0, content[:blockstream.BlockSize]))
	require.NoError(t, PutChunk(s, h, 1, content[blockstream.BlockSize:2*blockstream.BlockSize]))
	require.NoError(t, PutChunk(s, h, 2, content[2*blockstream.BlockSize:]))

	v, ok, err := s.Get(ChunkKey(h, 1))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, content[blockstream.BlockSize:2*blockstream.BlockSize], v)
}

func TestPutChunkRejectsChunkNotMatchingStoredTree(t *testing.T) {
	s := NewMemStore()
	content := make([]byte, blockstream.BlockSize+1)
	tree := blockstream.BuildHashTree(content)
	h := tree.Root()
	require.NoError(t, PutTree(s, h, tree))

	err := PutChunk(s, h, 0, []byte("not the real block contents"))
	require.Error(t, err)
	require.False(t, s.Has(ChunkKey(h, 0)), "a chunk that fails verification must not be stored")
}

func TestPutChunkRejectsWithoutStoredTree(t *testing.T) {
	s := NewMemStore()
	h := testHash(0x44)
	err := PutChunk(s, h, 0, []byte("anything"))
	require.Error(t, err, "a chunk for a content hash with no stored tree must be rejected")
}

func TestDiskStorePutGetPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocks.db")
	k := ChunkKey(testHash(0x03), 1)

	s, err := OpenDiskStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Put(k, []byte("payload")))
	require.NoError(t, s.Close())

	s2, err := OpenDiskStore(path)
	require.NoError(t, err)
	defer s2.Close()

	v, ok, err := s2.Get(k)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("payload"), v)
}
