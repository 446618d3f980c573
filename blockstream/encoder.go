package blockstream

import (
	"io"

	"github.com/pineappleworkshop/lightning/lightningerr"
)

// Encoder frames content as an 8-byte big-endian length header followed
// by alternating proof segments and block payloads. Write may be called
// with arbitrarily sized chunks; blocks are emitted only once a full
// BlockSize has accumulated (or, for the final block, once the last of
// the contentLen bytes has been written; Close emits it only if it is
// still pending, as for zero-length content).
type Encoder struct {
	w           io.Writer
	contentLen  uint64
	tree        HashTree
	buf         []byte
	blockIndex  int
	numBlocks   int
	headerSent  bool
	totalWritten uint64
}

// NewEncoder writes the 8-byte length header immediately and returns an
// Encoder ready to accept Write calls totalling exactly contentLen
// bytes.
func NewEncoder(w io.Writer, contentLen uint64, tree HashTree) (*Encoder, error) {
	var hdr [8]byte
	for i := 0; i < 8; i++ {
		hdr[i] = byte(contentLen >> (56 - 8*i))
	}
	if _, err := w.Write(hdr[:]); err != nil {
		return nil, lightningerr.New(lightningerr.Io, "write stream header", err)
	}
	return &Encoder{
		w:          w,
		contentLen: contentLen,
		tree:       tree,
		numBlocks:  NumBlocks(contentLen),
		headerSent: true,
	}, nil
}

func (e *Encoder) Write(p []byte) (int, error) {
	n := len(p)
	e.buf = append(e.buf, p...)
	e.totalWritten += uint64(n)

	for len(e.buf) >= BlockSize && e.blockIndex < e.numBlocks-1 {
		if err := e.emitBlock(e.buf[:BlockSize]); err != nil {
			return n, err
		}
		e.buf = e.buf[BlockSize:]
	}

	if e.totalWritten == e.contentLen && e.blockIndex == e.numBlocks-1 {
		if err := e.emitBlock(e.buf); err != nil {
			return n, err
		}
		e.buf = nil
	}
	return n, nil
}

// Close flushes the final block. It must be called after all content
// bytes have been written (including for zero-length content, where no
// Write call is otherwise required).
func (e *Encoder) Close() error {
	if e.blockIndex >= e.numBlocks {
		return nil
	}
	if e.totalWritten != e.contentLen {
		return lightningerr.New(lightningerr.CodecViolation, "close called before contentLen bytes written", nil)
	}
	return e.emitBlock(e.buf)
}

func (e *Encoder) emitBlock(block []byte) error {
	proof := e.tree.ProofForBlock(e.blockIndex)
	if len(proof) > 0 {
		if _, err := e.w.Write(proof); err != nil {
			return lightningerr.New(lightningerr.Io, "write proof segment", err)
		}
	}
	if _, err := e.w.Write(block); err != nil {
		return lightningerr.New(lightningerr.Io, "write block", err)
	}
	e.blockIndex++
	return nil
}
