package consensuspipeline

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// OutputProducer dequeues committed sub-dags and, for each one,
// concurrently fetches every batch digest referenced by its
// certificates from the batch pool. Fetch jobs may complete out of
// order, but OutputProducer only ever hands finished ConsensusOutput
// values to Execution in the order the sub-dags were committed:
// later sub-dags wait behind earlier ones even if their fetches
// finish first.
type OutputProducer struct {
	pool BatchFetcher
	exec Execution
	log  *logrus.Entry
}

func NewOutputProducer(pool BatchFetcher, exec Execution, log *logrus.Entry) *OutputProducer {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &OutputProducer{pool: pool, exec: exec, log: log}
}

// Run consumes subdags until the channel closes or shutdown/ctx fires.
// Every sub-dag is pushed onto an ordered queue as soon as it arrives
// so its fetch job starts immediately; the queue's head result is
// always one of the select arms, so a resolved head is emitted the
// moment it resolves rather than only when another sub-dag happens to
// arrive.
func (p *OutputProducer) Run(ctx context.Context, shutdown <-chan struct{}, subdags <-chan CommittedSubDag) error {
	q := newOrderedQueue()
	for {
		var headReady <-chan CommittedResult
		if q.Len() > 0 {
			headReady = q.head()
		}
		select {
		case <-shutdown:
			// No ConsensusOutput may be emitted after shutdown is
			// observed, even for sub-dags already queued and
			// resolved: return immediately rather than draining.
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case sd, ok := <-subdags:
			if !ok {
				return p.drainAll(ctx, q)
			}
			q.Push(p.fetchJob(ctx, sd))
		case res := <-headReady:
			q.Pop()
			p.emit(ctx, res)
		}
	}
}

// drainAll blocks until every remaining queued job resolves, in
// order, and hands each to exec. Used once no further sub-dags will
// arrive.
func (p *OutputProducer) drainAll(ctx context.Context, q *orderedQueue) error {
	for q.Len() > 0 {
		res, ok := q.Next()
		if !ok {
			break
		}
		p.emit(ctx, res)
	}
	return nil
}

func (p *OutputProducer) emit(ctx context.Context, res CommittedResult) {
	if res.Err != nil {
		p.log.WithError(res.Err).Warn("output producer: fetch job failed")
		return
	}
	if err := p.exec.HandleConsensusOutput(ctx, res.Output); err != nil {
		p.log.WithError(err).Warn("output producer: execution failed")
	}
}

// fetchJob builds the concurrent per-certificate batch fetch for a
// single sub-dag as a job suitable for orderedQueue.Push. Every digest
// across every certificate in the sub-dag is fetched concurrently, but
// the result keeps each certificate's batches grouped under it rather
// than flattening them into one list, per spec.md §3's "per-certificate
// list of (BatchDigest, batch-bytes)" data model.
func (p *OutputProducer) fetchJob(ctx context.Context, sd CommittedSubDag) func() CommittedResult {
	return func() CommittedResult {
		type fetched struct {
			b   []byte
			err error
		}
		results := make([][]fetched, len(sd.Certificates))
		var wg sync.WaitGroup
		for ci, c := range sd.Certificates {
			results[ci] = make([]fetched, len(c.Digests))
			for di, d := range c.Digests {
				wg.Add(1)
				go func(ci, di int, d BatchDigest) {
					defer wg.Done()
					b, err := p.pool.Get(ctx, d)
					results[ci][di] = fetched{b: b, err: err}
				}(ci, di, d)
			}
		}
		wg.Wait()

		batches := make([]CertificateBatches, len(sd.Certificates))
		for ci, c := range sd.Certificates {
			cb := CertificateBatches{Certificate: c.ID(), Batches: make([]BatchWithDigest, len(c.Digests))}
			for di, d := range c.Digests {
				r := results[ci][di]
				if r.err != nil {
					return CommittedResult{Err: r.err}
				}
				cb.Batches[di] = BatchWithDigest{Digest: d, Batch: r.b}
			}
			batches[ci] = cb
		}
		return CommittedResult{Output: ConsensusOutput{SubDag: sd, Batches: batches}}
	}
}
