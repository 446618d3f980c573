package submission

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeSigner struct{}

func (fakeSigner) Sign(digest [32]byte) []byte { return []byte{digest[0]} }

type fakeDigester struct{}

func (fakeDigester) Digest(method UpdateMethod, nonce uint64) [32]byte {
	var d [32]byte
	d[0] = byte(nonce)
	return d
}

type fakeMempool struct {
	mu  sync.Mutex
	txs []SignedTransaction
}

func (m *fakeMempool) Submit(ctx context.Context, tx SignedTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txs = append(m.txs, tx)
	return nil
}

func (m *fakeMempool) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.txs)
}

// blockingMempool blocks every Submit call on unblock, letting a test
// observe that Engine.Submit's reply is already in the caller's hands
// before the mempool send has been allowed to complete.
type blockingMempool struct {
	mu      sync.Mutex
	txs     []SignedTransaction
	unblock chan struct{}
}

func (m *blockingMempool) Submit(ctx context.Context, tx SignedTransaction) error {
	<-m.unblock
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txs = append(m.txs, tx)
	return nil
}

func (m *blockingMempool) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.txs)
}

type fakeState struct {
	mu    sync.Mutex
	nonce uint64
	found bool
}

func (s *fakeState) Nonce(ctx context.Context) (uint64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nonce, s.found, nil
}

func (s *fakeState) set(n uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nonce, s.found = n, true
}

type acceptAllValidator struct{}

func (acceptAllValidator) WouldRevert(ctx context.Context, tx SignedTransaction) bool { return false }

func TestSubmitAssignsMonotonicNonces(t *testing.T) {
	mempool := &fakeMempool{}
	state := &fakeState{}
	eng := NewEngineForTest(fakeSigner{}, fakeDigester{}, mempool, state, acceptAllValidator{}, nil)

	shutdown := make(chan struct{})
	newBlock := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx, shutdown, newBlock) }()

	for i := 0; i < 3; i++ {
		n, err := eng.Submit(ctx, "method")
		require.NoError(t, err)
		require.Equal(t, uint64(i+1), n)
	}

	close(shutdown)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("engine did not shut down")
	}
	require.Equal(t, 3, mempool.count())
}

func TestSubmitRepliesBeforeMempoolSubmitCompletes(t *testing.T) {
	mempool := &blockingMempool{unblock: make(chan struct{})}
	state := &fakeState{}
	eng := NewEngineForTest(fakeSigner{}, fakeDigester{}, mempool, state, acceptAllValidator{}, nil)

	shutdown := make(chan struct{})
	newBlock := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx, shutdown, newBlock) }()

	n, err := eng.Submit(ctx, "method")
	require.NoError(t, err)
	require.Equal(t, uint64(1), n, "the nonce is assigned and replied before the mempool submit is allowed to complete")
	require.Equal(t, 0, mempool.count(), "mempool.Submit has not been allowed to return yet")

	close(mempool.unblock)
	require.Eventually(t, func() bool { return mempool.count() == 1 }, time.Second, 10*time.Millisecond)

	close(shutdown)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("engine did not shut down")
	}
}

func TestSyncAdvancesAndPrunesPending(t *testing.T) {
	mempool := &fakeMempool{}
	state := &fakeState{}
	eng := NewEngineForTest(fakeSigner{}, fakeDigester{}, mempool, state, acceptAllValidator{}, nil)

	shutdown := make(chan struct{})
	newBlock := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx, shutdown, newBlock) }()

	for i := 0; i < 3; i++ {
		_, err := eng.Submit(ctx, "method")
		require.NoError(t, err)
	}
	// Submit replies with the assigned nonce before the mempool send
	// completes, so the count may still be catching up here.
	require.Eventually(t, func() bool {
		return mempool.count() == 3
	}, time.Second, 10*time.Millisecond)

	state.set(2)
	newBlock <- struct{}{}

	n, err := eng.Submit(ctx, "method")
	require.NoError(t, err)
	require.Equal(t, uint64(4), n, "next nonce keeps advancing past the application's reported nonce")

	close(shutdown)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("engine did not shut down")
	}
}

func TestSyncResubmitsAfterTimeoutWhenApplicationStalls(t *testing.T) {
	mempool := &fakeMempool{}
	state := &fakeState{}
	eng := NewEngineForTest(fakeSigner{}, fakeDigester{}, mempool, state, acceptAllValidator{}, nil)

	shutdown := make(chan struct{})
	newBlock := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx, shutdown, newBlock) }()

	_, err := eng.Submit(ctx, "method")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return mempool.count() == 1
	}, time.Second, 10*time.Millisecond)

	time.Sleep(TimeoutTest + 200*time.Millisecond)
	newBlock <- struct{}{}

	require.Eventually(t, func() bool {
		return mempool.count() == 2
	}, time.Second, 10*time.Millisecond, "stalled application nonce should trigger a resubmit")

	close(shutdown)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("engine did not shut down")
	}
}
