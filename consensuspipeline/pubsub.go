package consensuspipeline

import "context"

// PubSubMessage is a tagged union of the two message kinds the
// consensus pipeline cares about on its gossip subscription. Other
// message kinds on the topic are decoded and ignored by callers.
type PubSubMessage struct {
	Batch       []byte       // non-nil for a Batch message
	BatchDigest BatchDigest
	Certificate *Certificate // non-nil for a Certificate message
}

// PubSub is the abstract gossip capability the message receiver
// consumes. A concrete implementation lives in package gossip, backed
// by go-libp2p-pubsub; tests use an in-memory fake.
type PubSub interface {
	Recv(ctx context.Context) (PubSubMessage, error)
}

// Execution is the abstract capability that consumes ConsensusOutput
// values, exactly once, in commit order.
type Execution interface {
	HandleConsensusOutput(ctx context.Context, out ConsensusOutput) error
}

// BatchFetcher fetches a batch by digest, blocking until available or
// ctx is done. *batchpool.Pool satisfies this.
type BatchFetcher interface {
	Get(ctx context.Context, digest BatchDigest) ([]byte, error)
	Store(digest BatchDigest, batch []byte)
}
