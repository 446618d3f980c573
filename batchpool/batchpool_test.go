package batchpool

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGetReturnsImmediatelyWhenPresent(t *testing.T) {
	p := New()
	var d Digest
	d[0] = 1
	p.Store(d, []byte("hello"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := p.Get(ctx, d)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), got)
}

func TestGetBlocksUntilStore(t *testing.T) {
	p := New()
	var d Digest
	d[0] = 2

	var wg sync.WaitGroup
	wg.Add(1)
	var got []byte
	var getErr error
	go func() {
		defer wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		got, getErr = p.Get(ctx, d)
	}()

	time.Sleep(20 * time.Millisecond)
	p.Store(d, []byte("world"))
	wg.Wait()

	require.NoError(t, getErr)
	require.Equal(t, []byte("world"), got)
}

func TestGetCancelledByContextDoesNotLeakWaiter(t *testing.T) {
	p := New()
	var d Digest
	d[0] = 3

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Get(ctx, d)
	require.Error(t, err)

	p.mu.Lock()
	n := len(p.waiters[d])
	p.mu.Unlock()
	require.Equal(t, 0, n)
}

func TestStoreIsIdempotent(t *testing.T) {
	p := New()
	var d Digest
	p.Store(d, []byte("a"))
	p.Store(d, []byte("b"))

	ctx := context.Background()
	got, err := p.Get(ctx, d)
	require.NoError(t, err)
	require.Equal(t, []byte("a"), got)
}

func TestConcurrentGetAllWoken(t *testing.T) {
	p := New()
	var d Digest
	d[0] = 4
	const n = 50

	var wg sync.WaitGroup
	results := make([][]byte, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			b, err := p.Get(ctx, d)
			require.NoError(t, err)
			results[i] = b
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	p.Store(d, []byte("fanout"))
	wg.Wait()

	for _, r := range results {
		require.Equal(t, []byte("fanout"), r)
	}
}
