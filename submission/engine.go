package submission

import (
	"container/list"
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

type submitRequest struct {
	method UpdateMethod
	reply  chan submitReply
}

type submitReply struct {
	nonce uint64
	err   error
}

type pendingEntry struct {
	tx        SignedTransaction
	timestamp time.Time
}

// Engine is the single-writer nonce-management actor. All mutable
// state (base/next nonce, the pending FIFO, the retry timer) is owned
// exclusively by the goroutine running Run; Submit communicates with
// it over a request/reply channel so nonce assignment never races.
type Engine struct {
	signer   Signer
	digester Digester
	mempool  Mempool
	state    NodeState
	validate Validator
	timeout  time.Duration
	log      *logrus.Entry

	requests chan submitRequest
}

// NewEngine builds a production engine (TimeoutProd).
func NewEngine(signer Signer, digester Digester, mempool Mempool, state NodeState, validate Validator, log *logrus.Entry) *Engine {
	return newEngine(signer, digester, mempool, state, validate, TimeoutProd, log)
}

// NewEngineForTest builds an engine with the shortened TimeoutTest.
func NewEngineForTest(signer Signer, digester Digester, mempool Mempool, state NodeState, validate Validator, log *logrus.Entry) *Engine {
	return newEngine(signer, digester, mempool, state, validate, TimeoutTest, log)
}

func newEngine(signer Signer, digester Digester, mempool Mempool, state NodeState, validate Validator, timeout time.Duration, log *logrus.Entry) *Engine {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Engine{
		signer:   signer,
		digester: digester,
		mempool:  mempool,
		state:    state,
		validate: validate,
		timeout:  timeout,
		log:      log,
		requests: make(chan submitRequest),
	}
}

// Submit assigns the next nonce to method and returns it as soon as
// Run has assigned it, without waiting for the mempool submit that
// follows: a failed submit stops Run (surfaced through whatever is
// watching the Run goroutine), it does not flow back through this
// call. Safe to call concurrently from many callers; requests are
// served by the single owning goroutine in Run, in the order they
// arrive.
func (e *Engine) Submit(ctx context.Context, method UpdateMethod) (uint64, error) {
	reply := make(chan submitReply, 1)
	select {
	case e.requests <- submitRequest{method: method, reply: reply}:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	select {
	case r := <-reply:
		return r.nonce, r.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Run owns the engine state machine until shutdown fires or ctx is
// cancelled. newBlock is notified once per new block; each
// notification triggers a sync against the application's current
// nonce, which may resubmit pending transactions.
func (e *Engine) Run(ctx context.Context, shutdown <-chan struct{}, newBlock <-chan struct{}) error {
	applicationNonce, found, err := e.state.Nonce(ctx)
	if err != nil {
		return err
	}
	if !found {
		applicationNonce = 0
	}
	baseNonce := applicationNonce
	nextNonce := applicationNonce + 1
	pending := list.New()
	var baseTimestamp *time.Time

	for {
		select {
		case <-shutdown:
			return nil
		case <-ctx.Done():
			return ctx.Err()

		case req := <-e.requests:
			digest := e.digester.Digest(req.method, nextNonce)
			sig := e.signer.Sign(digest)
			tx := SignedTransaction{Method: req.method, Nonce: nextNonce, Signature: sig}

			// Reply with the assigned nonce before submitting, matching
			// the original signer's task.respond(next_nonce) ordering:
			// the caller only needs the nonce assigned to it, not
			// confirmation the mempool accepted the transaction.
			req.reply <- submitReply{nonce: nextNonce}

			if err := e.mempool.Submit(ctx, tx); err != nil {
				return err
			}

			now := time.Now()
			nextNonce++
			pending.PushBack(pendingEntry{tx: tx, timestamp: now})
			if baseTimestamp == nil {
				t := now
				baseTimestamp = &t
			}

		case <-newBlock:
			if err := e.syncWithApplication(ctx, &baseNonce, &nextNonce, &baseTimestamp, pending); err != nil {
				return err
			}
		}
	}
}

// syncWithApplication mirrors the original signer's two-branch
// reconciliation: either the application hasn't advanced and the
// oldest pending transaction has been outstanding past the retry
// timeout (assume loss, resubmit everything still valid), or the
// application has advanced and everything it has already ordered is
// dropped from pending.
func (e *Engine) syncWithApplication(ctx context.Context, baseNonce, nextNonce *uint64, baseTimestamp **time.Time, pending *list.List) error {
	appNonce, found, err := e.state.Nonce(ctx)
	if err != nil {
		return err
	}
	if !found {
		appNonce = 0
	}

	switch {
	case appNonce == *baseNonce && *nextNonce > *baseNonce+1:
		if *baseTimestamp == nil {
			return nil
		}
		if time.Since(**baseTimestamp) < e.timeout {
			return nil
		}
		*baseTimestamp = nil
		*nextNonce = *baseNonce + 1

		for el := pending.Front(); el != nil; el = el.Next() {
			entry := el.Value.(pendingEntry)
			if e.validate != nil && e.validate.WouldRevert(ctx, entry.tx) {
				continue
			}
			*nextNonce++
			if err := e.mempool.Submit(ctx, entry.tx); err != nil {
				return err
			}
			entry.timestamp = time.Now()
			el.Value = entry
			if *baseTimestamp == nil {
				t := entry.timestamp
				*baseTimestamp = &t
			}
		}

	case appNonce > *baseNonce:
		*baseNonce = appNonce
		for pending.Len() > 0 {
			front := pending.Front().Value.(pendingEntry)
			if front.tx.Nonce > appNonce {
				break
			}
			pending.Remove(pending.Front())
		}
		if pending.Len() == 0 {
			*baseTimestamp = nil
		} else {
			t := pending.Front().Value.(pendingEntry).timestamp
			*baseTimestamp = &t
		}
	}
	return nil
}
