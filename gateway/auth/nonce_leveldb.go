package auth

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Two key families: "u/" maps a nonce composite to its observation time so
// lookups are direct, and "t/" orders composites by observation time so
// hydration and pruning can range-scan.
var (
	usagePrefix = []byte("u/")
	timePrefix  = []byte("t/")
)

// LevelDBNoncePersistence stores nonce observations in a LevelDB database.
type LevelDBNoncePersistence struct {
	db *leveldb.DB
}

// NewLevelDBNoncePersistence opens (or creates) the database at path.
func NewLevelDBNoncePersistence(path string) (*LevelDBNoncePersistence, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, errors.New("nonce store path required")
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return nil, fmt.Errorf("resolve nonce store path: %w", err)
	}
	db, err := leveldb.OpenFile(abs, nil)
	if err != nil {
		return nil, fmt.Errorf("open nonce store: %w", err)
	}
	return &LevelDBNoncePersistence{db: db}, nil
}

// Close releases the underlying database.
func (p *LevelDBNoncePersistence) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

// EnsureNonce records the observation unless the composite already exists.
// The boolean reports whether the nonce had been seen before.
func (p *LevelDBNoncePersistence) EnsureNonce(ctx context.Context, record NonceRecord) (bool, error) {
	if p == nil || p.db == nil {
		return false, errors.New("nonce store not configured")
	}
	composite, err := compositeOf(record)
	if err != nil {
		return false, err
	}
	observed := record.ObservedAt.UTC()
	if observed.IsZero() {
		observed = time.Now().UTC()
	}
	usageKey := append(append([]byte(nil), usagePrefix...), composite...)
	existing, err := p.db.Get(usageKey, nil)
	switch {
	case errors.Is(err, leveldb.ErrNotFound):
	case err != nil:
		return false, fmt.Errorf("load nonce: %w", err)
	default:
		prior := int64(binary.BigEndian.Uint64(existing))
		if nanos := observed.UnixNano(); nanos > prior {
			batch := new(leveldb.Batch)
			batch.Put(usageKey, encodeNanos(nanos))
			batch.Delete(timeKey(prior, composite))
			batch.Put(timeKey(nanos, composite), nil)
			if err := p.db.Write(batch, nil); err != nil {
				return false, fmt.Errorf("refresh nonce: %w", err)
			}
		}
		return true, nil
	}

	nanos := observed.UnixNano()
	batch := new(leveldb.Batch)
	batch.Put(usageKey, encodeNanos(nanos))
	batch.Put(timeKey(nanos, composite), nil)
	if err := p.db.Write(batch, nil); err != nil {
		return false, fmt.Errorf("record nonce: %w", err)
	}
	return false, nil
}

// RecentNonces returns observations at or after cutoff, oldest first.
func (p *LevelDBNoncePersistence) RecentNonces(ctx context.Context, cutoff time.Time) ([]NonceRecord, error) {
	if p == nil || p.db == nil {
		return nil, errors.New("nonce store not configured")
	}
	start := timeKey(cutoff.UTC().UnixNano(), nil)
	iter := p.db.NewIterator(util.BytesPrefix(timePrefix), nil)
	defer iter.Release()

	records := make([]NonceRecord, 0)
	for ok := iter.Seek(start); ok; ok = iter.Next() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		record, ok := decodeTimeKey(iter.Key())
		if !ok {
			continue
		}
		records = append(records, record)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("scan nonce store: %w", err)
	}
	return records, nil
}

// PruneNonces removes observations older than cutoff.
func (p *LevelDBNoncePersistence) PruneNonces(ctx context.Context, cutoff time.Time) error {
	if p == nil || p.db == nil {
		return errors.New("nonce store not configured")
	}
	limit := timeKey(cutoff.UTC().UnixNano(), nil)
	iter := p.db.NewIterator(util.BytesPrefix(timePrefix), nil)
	defer iter.Release()

	batch := new(leveldb.Batch)
	for iter.Next() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if bytes.Compare(iter.Key(), limit) >= 0 {
			break
		}
		key := append([]byte(nil), iter.Key()...)
		batch.Delete(key)
		if len(key) > len(timePrefix)+8 {
			composite := key[len(timePrefix)+8:]
			batch.Delete(append(append([]byte(nil), usagePrefix...), composite...))
		}
	}
	if err := iter.Error(); err != nil {
		return fmt.Errorf("scan nonce store: %w", err)
	}
	if batch.Len() > 0 {
		if err := p.db.Write(batch, nil); err != nil {
			return fmt.Errorf("prune nonce store: %w", err)
		}
	}
	return nil
}

func compositeOf(record NonceRecord) ([]byte, error) {
	apiKey := strings.TrimSpace(record.APIKey)
	ts := strings.TrimSpace(record.Timestamp)
	nonce := strings.TrimSpace(record.Nonce)
	if apiKey == "" || ts == "" || nonce == "" {
		return nil, errors.New("nonce record incomplete")
	}
	return []byte(apiKey + "|" + ts + "|" + nonce), nil
}

func timeKey(nanos int64, composite []byte) []byte {
	key := make([]byte, 0, len(timePrefix)+8+len(composite))
	key = append(key, timePrefix...)
	key = append(key, encodeNanos(nanos)...)
	return append(key, composite...)
}

func decodeTimeKey(key []byte) (NonceRecord, bool) {
	if len(key) <= len(timePrefix)+8 {
		return NonceRecord{}, false
	}
	nanos := int64(binary.BigEndian.Uint64(key[len(timePrefix) : len(timePrefix)+8]))
	parts := strings.SplitN(string(key[len(timePrefix)+8:]), "|", 3)
	if len(parts) != 3 {
		return NonceRecord{}, false
	}
	return NonceRecord{
		APIKey:     parts[0],
		Timestamp:  parts[1],
		Nonce:      parts[2],
		ObservedAt: time.Unix(0, nanos).UTC(),
	}, true
}

func encodeNanos(nanos int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(nanos))
	return buf
}
