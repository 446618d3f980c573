package consensuspipeline

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Pipeline wires the three consensus-to-execution tasks together: the
// message receiver (gossip -> batch pool / raw certificates), the
// ordering engine (raw certificates -> committed sub-dags) and the
// output producer (committed sub-dags -> execution, batches fetched
// and emitted strictly in commit order).
type Pipeline struct {
	receiver *MessageReceiver
	ordering *OrderingEngine
	producer *OutputProducer

	subDagsCommitted prometheus.Counter
	certsReceived    prometheus.Counter
}

func NewPipeline(receiver *MessageReceiver, ordering *OrderingEngine, producer *OutputProducer) *Pipeline {
	return &Pipeline{
		receiver: receiver,
		ordering: ordering,
		producer: producer,
		subDagsCommitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lightning",
			Subsystem: "consensuspipeline",
			Name:      "subdags_committed_total",
			Help:      "Committed sub-dags handed to the output producer.",
		}),
		certsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lightning",
			Subsystem: "consensuspipeline",
			Name:      "certificates_received_total",
			Help:      "Verified certificates forwarded from the message receiver to the ordering engine.",
		}),
	}
}

// Collectors exposes the pipeline's Prometheus collectors for
// registration alongside batchpool.Pool's.
func (p *Pipeline) Collectors() []prometheus.Collector {
	return []prometheus.Collector{p.subDagsCommitted, p.certsReceived}
}

// Run starts all three tasks under a shared ShutdownBroadcaster(3) and
// an errgroup.Group, returning once every task has exited. Cancelling
// ctx stops the pipeline cleanly: no ConsensusOutput is emitted once the shutdown signal is
// observed, even for sub-dags whose fetch jobs had already resolved.
func (p *Pipeline) Run(ctx context.Context, log *logrus.Entry) error {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	broadcaster := NewShutdownBroadcaster(3)
	recvShutdown := broadcaster.Subscribe()
	orderShutdown := broadcaster.Subscribe()
	outShutdown := broadcaster.Subscribe()

	g, gctx := errgroup.WithContext(ctx)

	newCerts := make(chan Certificate)
	countedCerts := make(chan Certificate)

	g.Go(func() error {
		defer close(countedCerts)
		for c := range newCerts {
			p.certsReceived.Inc()
			select {
			case countedCerts <- c:
			case <-orderShutdown:
				return nil
			case <-gctx.Done():
				return nil
			}
		}
		return nil
	})

	g.Go(func() error {
		err := p.receiver.Run(gctx, recvShutdown, newCerts)
		if err != nil {
			log.WithError(err).Warn("consensus pipeline: message receiver exited with error")
		}
		return err
	})

	subdags, committedCerts := p.ordering.Spawn(gctx, orderShutdown, countedCerts)
	g.Go(func() error {
		for range committedCerts {
			// drained deliberately: individual-certificate commit events
			// are not consumed by anything downstream of this pipeline.
		}
		return nil
	})

	countedSubdags := make(chan CommittedSubDag)
	g.Go(func() error {
		defer close(countedSubdags)
		for sd := range subdags {
			p.subDagsCommitted.Inc()
			select {
			case countedSubdags <- sd:
			case <-outShutdown:
				return nil
			case <-gctx.Done():
				return nil
			}
		}
		return nil
	})

	g.Go(func() error {
		err := p.producer.Run(gctx, outShutdown, countedSubdags)
		if err != nil {
			log.WithError(err).Warn("consensus pipeline: output producer exited with error")
		}
		return err
	})

	go func() {
		<-gctx.Done()
		broadcaster.Shutdown()
	}()

	return g.Wait()
}
