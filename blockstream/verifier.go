package blockstream

import "github.com/pineappleworkshop/lightning/lightningerr"

// IncrementalVerifier checks each block against a known root hash as it
// arrives, consuming a proof segment before each block. It never
// retains block contents; once verify succeeds for a block, the block
// is considered released.
type IncrementalVerifier struct {
	root      ContentHash
	numBlocks int
	done      bool
}

func NewIncrementalVerifier(root ContentHash, numBlocks int) *IncrementalVerifier {
	return &IncrementalVerifier{root: root, numBlocks: numBlocks}
}

// Verify checks block i (with its preceding proof) and returns an error
// if the reconstructed root does not match. proof must be exactly
// ProofLen(numBlocks, i) bytes.
func (iv *IncrementalVerifier) Verify(i int, block []byte, proof []byte) error {
	if iv.done {
		return lightningerr.New(lightningerr.CodecViolation, "verifier already finished", nil)
	}
	want := ProofLen(iv.numBlocks, i)
	if len(proof) != want {
		return lightningerr.New(lightningerr.CodecViolation, "proof length mismatch", nil)
	}

	steps := treePath(iv.numBlocks, i)
	cur := LeafHash(uint64(i), block)
	consumed := 0
	for _, s := range steps {
		if !s.hasSibling {
			continue
		}
		var sib [32]byte
		copy(sib[:], proof[consumed:consumed+32])
		consumed += 32
		if s.siblingOnLeft {
			cur = nodeHash(sib, cur)
		} else {
			cur = nodeHash(cur, sib)
		}
	}

	if cur != [32]byte(iv.root) {
		return lightningerr.New(lightningerr.VerificationFailure, "block failed to verify against root", nil)
	}
	if i == iv.numBlocks-1 {
		iv.done = true
	}
	return nil
}

func (iv *IncrementalVerifier) IsDone() bool { return iv.done }
