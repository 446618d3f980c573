// Package batchpool implements a monotonic, cancel-safe store-once
// batch pool: producers Store a batch once it's received over gossip,
// and consumers Get block until the batch for a given digest is
// present, without ever missing a Store that races a blocked Get.
package batchpool

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/crypto/sha3"
)

type Digest [32]byte

// DigestBatch computes the content digest a batch is addressed by: every
// batch gossiped onto the wire is keyed by this value, and the gossip
// codec recomputes it on receipt to reject a batch that does not match
// its claimed digest before it ever reaches the Pool.
func DigestBatch(batch []byte) Digest {
	return Digest(sha3.Sum256(batch))
}

type Pool struct {
	mu      sync.Mutex
	batches map[Digest][]byte
	waiters map[Digest][]chan []byte

	waitingGauge prometheus.Gauge
	storedCount  prometheus.Counter
}

func New() *Pool {
	return &Pool{
		batches: make(map[Digest][]byte),
		waiters: make(map[Digest][]chan []byte),
		waitingGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lightning",
			Subsystem: "batchpool",
			Name:      "waiters",
			Help:      "number of Get calls currently blocked on a missing batch",
		}),
		storedCount: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lightning",
			Subsystem: "batchpool",
			Name:      "stored_total",
			Help:      "number of batches stored",
		}),
	}
}

// Collectors returns the pool's Prometheus collectors for registration.
func (p *Pool) Collectors() []prometheus.Collector {
	return []prometheus.Collector{p.waitingGauge, p.storedCount}
}

// Store records the batch under digest and wakes any Get calls blocked
// on it. Storing the same digest twice is a no-op: the pool is
// write-once per key.
func (p *Pool) Store(digest Digest, batch []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.batches[digest]; exists {
		return
	}
	p.batches[digest] = batch
	p.storedCount.Inc()
	for _, ch := range p.waiters[digest] {
		ch <- batch
		close(ch)
	}
	delete(p.waiters, digest)
}

// Get returns the batch for digest, blocking until it is stored or ctx
// is done. On cancellation the waiter registration is removed so no
// goroutine or channel leaks.
func (p *Pool) Get(ctx context.Context, digest Digest) ([]byte, error) {
	p.mu.Lock()
	if b, ok := p.batches[digest]; ok {
		p.mu.Unlock()
		return b, nil
	}
	ch := make(chan []byte, 1)
	p.waiters[digest] = append(p.waiters[digest], ch)
	p.waitingGauge.Inc()
	p.mu.Unlock()

	defer p.waitingGauge.Dec()
	select {
	case b := <-ch:
		return b, nil
	case <-ctx.Done():
		p.mu.Lock()
		p.removeWaiterLocked(digest, ch)
		p.mu.Unlock()
		return nil, ctx.Err()
	}
}

func (p *Pool) removeWaiterLocked(digest Digest, target chan []byte) {
	chans := p.waiters[digest]
	for i, ch := range chans {
		if ch == target {
			p.waiters[digest] = append(chans[:i], chans[i+1:]...)
			return
		}
	}
}

// Has reports whether digest is already stored, without blocking.
func (p *Pool) Has(digest Digest) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.batches[digest]
	return ok
}
