// Package blockstore implements the content-addressed block store: a
// mapping from BlockKey (a content hash, optionally paired with a
// chunk index) to raw bytes, with a verified-ingest path (PutTree,
// PutChunk) that checks each chunk against the content's
// blockstream.HashTree. The stream codec and the consensus pipeline do
// not read from it. Keys are serialized as a tagged union (a one-byte
// tag followed by fixed-width fields) so the two variants can share
// one keyspace byte-identically.
package blockstore

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/pineappleworkshop/lightning/blockstream"
	"github.com/pineappleworkshop/lightning/lightningerr"
)

// BlockKey is a tagged union: a TreeKey identifies a whole content
// hash's tree payload, a ChunkKey identifies one numbered chunk of it.
type BlockKey struct {
	Hash    blockstream.ContentHash
	IsChunk bool
	Chunk   uint32
}

// TreeKey builds a key identifying h's serialized hash tree.
func TreeKey(h blockstream.ContentHash) BlockKey {
	return BlockKey{Hash: h}
}

// ChunkKey builds a key identifying chunk i of h's content.
func ChunkKey(h blockstream.ContentHash, i uint32) BlockKey {
	return BlockKey{Hash: h, IsChunk: true, Chunk: i}
}

const (
	tagTree  byte = 0x00
	tagChunk byte = 0x01
)

// Marshal serializes k as tag(1) + hash(32) [+ chunk(4) for ChunkKey].
func (k BlockKey) Marshal() []byte {
	if !k.IsChunk {
		out := make([]byte, 1+32)
		out[0] = tagTree
		copy(out[1:], k.Hash[:])
		return out
	}
	out := make([]byte, 1+32+4)
	out[0] = tagChunk
	copy(out[1:33], k.Hash[:])
	binary.BigEndian.PutUint32(out[33:], k.Chunk)
	return out
}

// UnmarshalBlockKey parses the output of Marshal.
func UnmarshalBlockKey(b []byte) (BlockKey, error) {
	if len(b) < 1+32 {
		return BlockKey{}, fmt.Errorf("blockstore: key too short: %d bytes", len(b))
	}
	var k BlockKey
	copy(k.Hash[:], b[1:33])
	switch b[0] {
	case tagTree:
		if len(b) != 33 {
			return BlockKey{}, fmt.Errorf("blockstore: malformed tree key")
		}
		return k, nil
	case tagChunk:
		if len(b) != 37 {
			return BlockKey{}, fmt.Errorf("blockstore: malformed chunk key")
		}
		k.IsChunk = true
		k.Chunk = binary.BigEndian.Uint32(b[33:37])
		return k, nil
	default:
		return BlockKey{}, fmt.Errorf("blockstore: unknown key tag 0x%02x", b[0])
	}
}

// Store is the abstract content-addressed block store capability.
type Store interface {
	Get(k BlockKey) ([]byte, bool, error)
	Put(k BlockKey, value []byte) error
	Has(k BlockKey) bool
}

// PutTree stores h's hash tree under its TreeKey, serialized via
// HashTree.Marshal. PutChunk requires the tree to already be present
// before it will accept any chunk for h.
func PutTree(s Store, h blockstream.ContentHash, tree blockstream.HashTree) error {
	return s.Put(TreeKey(h), tree.Marshal())
}

// PutChunk is the store's verified-ingest path: it enforces spec.md
// §3's invariant that "every stored chunk's hash matches the
// corresponding tree leaf" by recomputing chunk's leaf hash and
// comparing it against leaf i of the tree already stored under
// TreeKey(h), rejecting the write on any mismatch or missing tree
// instead of accepting arbitrary bytes for a ChunkKey.
func PutChunk(s Store, h blockstream.ContentHash, i uint32, chunk []byte) error {
	treeBytes, ok, err := s.Get(TreeKey(h))
	if err != nil {
		return err
	}
	if !ok {
		return lightningerr.New(lightningerr.VerificationFailure, "no hash tree stored for content hash", nil)
	}
	tree, err := blockstream.UnmarshalHashTree(treeBytes)
	if err != nil {
		return lightningerr.New(lightningerr.VerificationFailure, "malformed stored hash tree", err)
	}
	want, ok := tree.Leaf(int(i))
	if !ok {
		return lightningerr.New(lightningerr.VerificationFailure, "chunk index out of range for stored tree", nil)
	}
	if blockstream.LeafHash(uint64(i), chunk) != want {
		return lightningerr.New(lightningerr.VerificationFailure, "chunk hash does not match stored tree leaf", nil)
	}
	return s.Put(ChunkKey(h, i), chunk)
}

// MemStore is an in-memory Store: multiple concurrent readers, a
// coarse lock guarding writes. There is no read-modify-write path, so
// a single RWMutex is sufficient.
type MemStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemStore() *MemStore {
	return &MemStore{data: make(map[string][]byte)}
}

func (s *MemStore) Get(k BlockKey) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[string(k.Marshal())]
	return v, ok, nil
}

func (s *MemStore) Put(k BlockKey, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := string(k.Marshal())
	if existing, ok := s.data[key]; ok {
		if !bytes.Equal(existing, value) {
			return fmt.Errorf("blockstore: key already stored with a different value")
		}
		return nil
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	s.data[key] = cp
	return nil
}

func (s *MemStore) Has(k BlockKey) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data[string(k.Marshal())]
	return ok
}
