package blockstore

import (
	"bytes"
	"fmt"
	"sync"

	"go.etcd.io/bbolt"
)

var bucketName = []byte("blocks")

// DiskStore is a bbolt-backed Store. Writes are serialized per
// content hash via a lock striped on the hash's first byte, so chunks
// of the same content hash never race each other, and ingest of
// unrelated content contends only when those first bytes collide.
type DiskStore struct {
	db     *bbolt.DB
	stripe [256]sync.Mutex
}

// OpenDiskStore opens (creating if absent) a bbolt database at path
// and ensures the block bucket exists.
func OpenDiskStore(path string) (*DiskStore, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("blockstore: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &DiskStore{db: db}, nil
}

func (s *DiskStore) Close() error { return s.db.Close() }

func (s *DiskStore) lockFor(k BlockKey) *sync.Mutex {
	return &s.stripe[k.Hash[0]]
}

func (s *DiskStore) Get(k BlockKey) ([]byte, bool, error) {
	var value []byte
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		v := b.Get(k.Marshal())
		if v == nil {
			return nil
		}
		found = true
		value = make([]byte, len(v))
		copy(value, v)
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return value, found, nil
}

func (s *DiskStore) Put(k BlockKey, value []byte) error {
	mu := s.lockFor(k)
	mu.Lock()
	defer mu.Unlock()

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		key := k.Marshal()
		if existing := b.Get(key); existing != nil {
			if !bytes.Equal(existing, value) {
				return fmt.Errorf("blockstore: key already stored with a different value")
			}
			return nil
		}
		return b.Put(key, value)
	})
}

func (s *DiskStore) Has(k BlockKey) bool {
	_, found, err := s.Get(k)
	return err == nil && found
}
