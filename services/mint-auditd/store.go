package main

import (
	"encoding/binary"
	"errors"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketCheckpoint = []byte("checkpoint")
	bucketHashes     = []byte("hashes")

	keyLastSequence = []byte("lastSequence")
)

// CheckpointStore persists the stream cursor and the content-hash ledger so
// restarts resume where the previous run stopped without re-indexing.
type CheckpointStore struct {
	db *bolt.DB
}

// NewCheckpointStore opens (and migrates) the bbolt-backed store.
func NewCheckpointStore(path string) (*CheckpointStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketCheckpoint, bucketHashes} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &CheckpointStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *CheckpointStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// LastSequence returns the highest indexed stream sequence, zero when the
// store is fresh.
func (s *CheckpointStore) LastSequence() (uint64, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("checkpoint store not open")
	}
	var seq uint64
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketCheckpoint).Get(keyLastSequence)
		if len(raw) == 8 {
			seq = binary.BigEndian.Uint64(raw)
		}
		return nil
	})
	return seq, err
}

// SeenHash reports whether a content hash was indexed before.
func (s *CheckpointStore) SeenHash(hash string) (bool, error) {
	if s == nil || s.db == nil {
		return false, errors.New("checkpoint store not open")
	}
	var seen bool
	err := s.db.View(func(tx *bolt.Tx) error {
		seen = tx.Bucket(bucketHashes).Get([]byte(hash)) != nil
		return nil
	})
	return seen, err
}

// Commit marks a hash indexed and advances the cursor in one transaction,
// so a crash between the two cannot split them.
func (s *CheckpointStore) Commit(hash string, sequence uint64) error {
	if s == nil || s.db == nil {
		return errors.New("checkpoint store not open")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		var seqBytes [8]byte
		binary.BigEndian.PutUint64(seqBytes[:], sequence)
		if err := tx.Bucket(bucketHashes).Put([]byte(hash), seqBytes[:]); err != nil {
			return err
		}
		current := tx.Bucket(bucketCheckpoint).Get(keyLastSequence)
		if len(current) == 8 && binary.BigEndian.Uint64(current) >= sequence {
			return nil
		}
		return tx.Bucket(bucketCheckpoint).Put(keyLastSequence, seqBytes[:])
	})
}
