// Package submission implements the signed transaction submission
// engine: a single-writer actor that assigns monotonically increasing
// nonces to update methods, signs and submits them to a mempool, and
// retries under suspected loss once new-block notifications reveal
// the application's view of the node's nonce has stalled.
package submission

import (
	"context"
	"time"
)

// TimeoutProd is the retry timeout used in production: how long a
// pending transaction is given to be ordered before the engine
// assumes it was lost and resubmits every pending transaction the
// Validator does not reject.
const TimeoutProd = 300 * time.Second

// TimeoutTest is the shortened retry timeout used by tests.
const TimeoutTest = 3 * time.Second

// SignedTransaction is the request handed to the mempool: an update
// method bound to the nonce the engine assigned it.
type SignedTransaction struct {
	Method    UpdateMethod
	Nonce     uint64
	Signature []byte
}

// UpdateMethod is an opaque application update submitted through the
// engine; the engine never interprets its contents.
type UpdateMethod interface{}

// Signer signs the wire digest of a pending transaction. A concrete
// implementation lives in package nodeidentity.
type Signer interface {
	Sign(digest [32]byte) []byte
}

// Digest derives the signing digest for a method+nonce pair.
type Digester interface {
	Digest(method UpdateMethod, nonce uint64) [32]byte
}

// Mempool is the abstract submission target.
type Mempool interface {
	Submit(ctx context.Context, tx SignedTransaction) error
}

// NodeState reports the application's current view of the node's
// nonce. Found is false when the node has no record yet, in which
// case the engine treats the nonce as 0.
type NodeState interface {
	Nonce(ctx context.Context) (nonce uint64, found bool, err error)
}

// Validator decides whether a previously-submitted, still-pending
// transaction should be retried against the current application
// state, or dropped because it would revert.
type Validator interface {
	WouldRevert(ctx context.Context, tx SignedTransaction) bool
}
