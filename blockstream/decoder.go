package blockstream

import (
	"io"

	"github.com/pineappleworkshop/lightning/lightningerr"
)

type decoderState int

const (
	stateWaitHeader decoderState = iota
	stateWaitProof
	stateWaitBlock
	stateFinished
)

// VerifiedDecoder implements io.Reader over a verified block stream: it
// reads the length header, then alternates consuming proof segments and
// block payloads, releasing each block to the caller only after it
// verifies against the known root.
type VerifiedDecoder struct {
	r    io.Reader
	iv   *IncrementalVerifier
	root ContentHash

	state      decoderState
	contentLen uint64
	numBlocks  int
	blockIndex int
	nextProof  int // proof length expected before the next block
	nextBlock  int // block length expected for the next block

	pendingProof []byte // proof bytes read, awaiting the block they precede

	released    []byte // verified bytes not yet returned to the caller
	releasedPos int
}

func NewVerifiedDecoder(r io.Reader, root ContentHash) *VerifiedDecoder {
	return &VerifiedDecoder{r: r, root: root, state: stateWaitHeader}
}

func (d *VerifiedDecoder) Read(p []byte) (int, error) {
	for d.releasedPos >= len(d.released) && d.state != stateFinished {
		if err := d.step(); err != nil {
			return 0, err
		}
	}
	if d.releasedPos < len(d.released) {
		n := copy(p, d.released[d.releasedPos:])
		d.releasedPos += n
		return n, nil
	}
	return 0, io.EOF
}

func (d *VerifiedDecoder) readExact(n int) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	read := 0
	for read < n {
		m, err := d.r.Read(buf[read:])
		read += m
		if err != nil {
			if err == io.EOF {
				if read == 0 {
					return nil, io.EOF
				}
				return nil, lightningerr.New(lightningerr.ShortRead, "connection reset mid-frame", nil)
			}
			return nil, lightningerr.New(lightningerr.Io, "read stream", err)
		}
	}
	return buf, nil
}

func (d *VerifiedDecoder) step() error {
	switch d.state {
	case stateWaitHeader:
		hdr, err := d.readExact(8)
		if err != nil {
			return err
		}
		var contentLen uint64
		for i := 0; i < 8; i++ {
			contentLen = contentLen<<8 | uint64(hdr[i])
		}
		d.contentLen = contentLen
		d.numBlocks = NumBlocks(contentLen)
		d.iv = NewIncrementalVerifier(d.root, d.numBlocks)
		d.nextProof = ProofLen(d.numBlocks, 0)
		d.state = stateWaitProof
		return nil

	case stateWaitProof:
		var proof []byte
		if d.nextProof > 0 {
			p, err := d.readExact(d.nextProof)
			if err != nil {
				return err
			}
			proof = p
		}
		d.pendingProof = proof
		d.nextBlock = BlockLen(d.contentLen, d.blockIndex)
		d.state = stateWaitBlock
		return nil

	case stateWaitBlock:
		block, err := d.readExact(d.nextBlock)
		if err != nil {
			return err
		}
		if err := d.iv.Verify(d.blockIndex, block, d.pendingProof); err != nil {
			return err
		}
		d.released = block
		d.releasedPos = 0
		d.blockIndex++
		if d.blockIndex >= d.numBlocks {
			d.state = stateFinished
		} else {
			d.nextProof = ProofLen(d.numBlocks, d.blockIndex)
			d.state = stateWaitProof
		}
		return nil

	default:
		return nil
	}
}
