package consensuspipeline

import (
	"context"

	"github.com/sirupsen/logrus"
)

// MessageReceiver loops over the gossip subscription: Batch messages go
// straight into the batch pool (waking any blocked Get calls),
// Certificate messages are verified against the committee and worker
// cache before being forwarded to the ordering engine. Everything else
// is ignored.
type MessageReceiver struct {
	pubsub    PubSub
	pool      BatchFetcher
	committee Committee
	workers   WorkerCache
	log       *logrus.Entry
}

func NewMessageReceiver(pubsub PubSub, pool BatchFetcher, committee Committee, workers WorkerCache, log *logrus.Entry) *MessageReceiver {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &MessageReceiver{pubsub: pubsub, pool: pool, committee: committee, workers: workers, log: log}
}

// Run consumes messages until ctx is cancelled or shutdown fires,
// sending verified certificates to newCerts.
func (r *MessageReceiver) Run(ctx context.Context, shutdown <-chan struct{}, newCerts chan<- Certificate) error {
	defer close(newCerts)
	for {
		select {
		case <-shutdown:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msg, err := r.pubsub.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.log.WithError(err).Warn("message receiver: recv failed")
			continue
		}

		switch {
		case msg.Batch != nil:
			r.pool.Store(msg.BatchDigest, msg.Batch)
		case msg.Certificate != nil:
			c := *msg.Certificate
			if !VerifyCertificate(c, r.committee, r.workers) {
				r.log.WithField("author", c.Author).Debug("message receiver: certificate failed verification")
				continue
			}
			select {
			case newCerts <- c:
			case <-shutdown:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		default:
			// unrecognized message kind; ignored
		}
	}
}
