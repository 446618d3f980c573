// Package blockstream implements the verified block-streaming codec: a
// BLAKE3-rooted hash tree over fixed-size content blocks, an Encoder
// that frames proof-then-block pairs, and a VerifiedDecoder that
// verifies each block against the tree root before releasing it to the
// reader.
package blockstream

import (
	"encoding/binary"
	"fmt"

	"lukechampine.com/blake3"
)

// BlockSize is the fixed block size used by the stream codec, except
// possibly for the final block of a stream.
const BlockSize = 262144

const (
	leafTag byte = 0x00
	nodeTag byte = 0x01
)

// ContentHash identifies a piece of content; it is the root of the
// content's HashTree.
type ContentHash [32]byte

// HashTree is the ordered sequence of per-level node hashes forming an
// internal BLAKE3 tree over a content's blocks. Root() is the
// ContentHash of the content the tree was built over.
type HashTree struct {
	levels [][][32]byte // levels[0] = leaf hashes, levels[len-1] = {root}
}

// LeafHash computes the leaf hash a block at blockIndex must match
// against a stored HashTree before being accepted into the block
// store: the same domain-separated BLAKE3 hash BuildHashTree uses for
// every leaf.
func LeafHash(blockIndex uint64, block []byte) [32]byte {
	h := blake3.New(32, nil)
	var idx [9]byte
	idx[0] = leafTag
	for i := 0; i < 8; i++ {
		idx[1+i] = byte(blockIndex >> (56 - 8*i))
	}
	h.Write(idx[:])
	h.Write(block)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func nodeHash(left, right [32]byte) [32]byte {
	h := blake3.New(32, nil)
	h.Write([]byte{nodeTag})
	h.Write(left[:])
	h.Write(right[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// BuildHashTree constructs a HashTree over content, splitting it into
// BlockSize blocks (the last block may be shorter).
func BuildHashTree(content []byte) HashTree {
	n := NumBlocks(uint64(len(content)))
	leaves := make([][32]byte, n)
	for i := 0; i < n; i++ {
		start := i * BlockSize
		end := start + BlockSize
		if end > len(content) {
			end = len(content)
		}
		leaves[i] = LeafHash(uint64(i), content[start:end])
	}
	return buildFromLeaves(leaves)
}

func buildFromLeaves(leaves [][32]byte) HashTree {
	if len(leaves) == 0 {
		leaves = [][32]byte{LeafHash(0, nil)}
	}
	levels := [][][32]byte{leaves}
	level := leaves
	for len(level) > 1 {
		next := make([][32]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); {
			if i == len(level)-1 {
				next = append(next, level[i])
				i++
				continue
			}
			next = append(next, nodeHash(level[i], level[i+1]))
			i += 2
		}
		levels = append(levels, next)
		level = next
	}
	return HashTree{levels: levels}
}

// Root returns the tree's root hash.
func (t HashTree) Root() ContentHash {
	top := t.levels[len(t.levels)-1]
	return ContentHash(top[0])
}

// NumLeaves returns the number of blocks the tree was built over.
func (t HashTree) NumLeaves() int {
	return len(t.levels[0])
}

// Leaf returns the stored leaf hash for block i, the value a verified
// ingest path must recompute and compare against before accepting
// that block into the store.
func (t HashTree) Leaf(i int) ([32]byte, bool) {
	if i < 0 || i >= len(t.levels[0]) {
		return [32]byte{}, false
	}
	return t.levels[0][i], true
}

// Marshal serializes the tree as length-prefixed levels: u32 level
// count, then per level a u32 hash count followed
// by that many 32-byte hashes, bottom level (leaves) first. This is
// the "serialized tree payload" spec.md §6 requires TreeKey to map
// to, with byte-identical round-trip via UnmarshalHashTree.
func (t HashTree) Marshal() []byte {
	size := 4
	for _, level := range t.levels {
		size += 4 + len(level)*32
	}
	out := make([]byte, 0, size)
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(t.levels)))
	out = append(out, hdr[:]...)
	for _, level := range t.levels {
		var n [4]byte
		binary.BigEndian.PutUint32(n[:], uint32(len(level)))
		out = append(out, n[:]...)
		for _, h := range level {
			out = append(out, h[:]...)
		}
	}
	return out
}

// UnmarshalHashTree parses the output of HashTree.Marshal.
func UnmarshalHashTree(b []byte) (HashTree, error) {
	if len(b) < 4 {
		return HashTree{}, fmt.Errorf("blockstream: hash tree payload too short")
	}
	numLevels := binary.BigEndian.Uint32(b[:4])
	b = b[4:]
	levels := make([][][32]byte, 0, numLevels)
	for l := uint32(0); l < numLevels; l++ {
		if len(b) < 4 {
			return HashTree{}, fmt.Errorf("blockstream: truncated hash tree level header")
		}
		n := binary.BigEndian.Uint32(b[:4])
		b = b[4:]
		need := int(n) * 32
		if len(b) < need {
			return HashTree{}, fmt.Errorf("blockstream: truncated hash tree level data")
		}
		level := make([][32]byte, n)
		for i := range level {
			copy(level[i][:], b[i*32:(i+1)*32])
		}
		b = b[need:]
		levels = append(levels, level)
	}
	if len(b) != 0 {
		return HashTree{}, fmt.Errorf("blockstream: trailing bytes after hash tree payload")
	}
	if len(levels) == 0 || len(levels[0]) == 0 {
		return HashTree{}, fmt.Errorf("blockstream: hash tree payload has no leaves")
	}
	return HashTree{levels: levels}, nil
}

// NumBlocks returns ceil(contentLen/BlockSize), with a minimum of 1 (an
// empty stream is still one, empty, block).
func NumBlocks(contentLen uint64) int {
	if contentLen == 0 {
		return 1
	}
	n := contentLen / BlockSize
	if contentLen%BlockSize != 0 {
		n++
	}
	return int(n)
}

// BlockLen returns the length of block i in a stream of the given total
// content length.
func BlockLen(contentLen uint64, i int) int {
	n := NumBlocks(contentLen)
	if i != n-1 {
		return BlockSize
	}
	last := int(contentLen % BlockSize)
	if last == 0 {
		if contentLen == 0 {
			return 0
		}
		return BlockSize
	}
	return last
}

// pathStep describes one level of the ascent from a leaf to the root:
// whether a sibling hash must be consumed/produced at this level, and
// the position to carry into the next level up.
type pathStep struct {
	hasSibling    bool
	siblingIdx    int
	siblingOnLeft bool
}

// treePath computes, given the number of leaves n and a leaf index i,
// the bottom-up sequence of steps to the root. It depends only on
// shape (n, i), never on hash values, so both the encoder (which has
// the tree) and the decoder (which only knows n from the stream
// header) can compute it independently.
func treePath(n, i int) []pathStep {
	steps := make([]pathStep, 0)
	levelLen := n
	pos := i
	for levelLen > 1 {
		var step pathStep
		if pos%2 == 1 {
			step = pathStep{hasSibling: true, siblingIdx: pos - 1, siblingOnLeft: true}
		} else if pos+1 < levelLen {
			step = pathStep{hasSibling: true, siblingIdx: pos + 1, siblingOnLeft: false}
		} else {
			step = pathStep{hasSibling: false}
		}
		steps = append(steps, step)
		pos = pos / 2
		levelLen = (levelLen + 1) / 2
	}
	return steps
}

// ProofLen returns the number of proof bytes preceding block i in a
// stream with n total blocks.
func ProofLen(n, i int) int {
	steps := treePath(n, i)
	count := 0
	for _, s := range steps {
		if s.hasSibling {
			count++
		}
	}
	return count * 32
}

// ProofForBlock assembles the sibling hashes needed to verify block i,
// concatenated bottom-up.
func (t HashTree) ProofForBlock(i int) []byte {
	n := len(t.levels[0])
	steps := treePath(n, i)
	proof := make([]byte, 0, len(steps)*32)
	for level, s := range steps {
		if s.hasSibling {
			proof = append(proof, t.levels[level][s.siblingIdx][:]...)
		}
	}
	return proof
}
