package handshake

import (
	"sync"

	"github.com/pineappleworkshop/lightning/lightningerr"
)

// LastLaneData is the last-known accounting state for a resumed lane.
type LastLaneData struct {
	Bytes     uint64
	ServiceID uint32
	Signature [96]byte
}

type laneEntry struct {
	clientPubKey [20]byte
	last         LastLaneData
}

// LaneTable tracks up to MaxLanes per-client accounting slots. All
// operations are synchronized by a single mutex; none blocks on I/O
// while holding it.
type LaneTable struct {
	mu     sync.Mutex
	lanes  [MaxLanes]*laneEntry
}

func NewLaneTable() *LaneTable {
	return &LaneTable{}
}

// Resume looks up lane i for pubkey. ok is false if the lane is free,
// held by a different client, or i is out of range.
func (t *LaneTable) Resume(i byte, pubkey [20]byte) (LastLaneData, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if int(i) >= MaxLanes {
		return LastLaneData{}, false
	}
	e := t.lanes[i]
	if e == nil || e.clientPubKey != pubkey {
		return LastLaneData{}, false
	}
	return e.last, true
}

// Allocate claims the first free lane for pubkey. Returns OutOfLanes if
// all MaxLanes slots are occupied.
func (t *LaneTable) Allocate(pubkey [20]byte) (byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := 0; i < MaxLanes; i++ {
		if t.lanes[i] == nil {
			t.lanes[i] = &laneEntry{clientPubKey: pubkey}
			return byte(i), nil
		}
	}
	return 0, lightningerr.New(lightningerr.OutOfLanes, "no free lane", nil)
}

// Update refreshes the last-known accounting state for an occupied
// lane.
func (t *LaneTable) Update(i byte, data LastLaneData) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if int(i) >= MaxLanes || t.lanes[i] == nil {
		return lightningerr.New(lightningerr.CodecViolation, "lane not allocated", nil)
	}
	t.lanes[i].last = data
	return nil
}

// Release frees lane i.
func (t *LaneTable) Release(i byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if int(i) < MaxLanes {
		t.lanes[i] = nil
	}
}
