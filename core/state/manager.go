package state

import (
	"fmt"
	"math/big"
	"reflect"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"mintgate/core/types"
	"mintgate/storage"
)

var accountPrefix = []byte("account/")

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

func accountKey(addr []byte) []byte {
	buf := make([]byte, len(accountPrefix)+len(addr))
	copy(buf, accountPrefix)
	copy(buf[len(accountPrefix):], addr)
	return kvKey(buf)
}

// dirtyValue is an overlay cell: either a pending write or a tombstone.
type dirtyValue struct {
	value   []byte
	deleted bool
}

// journalEntry records the overlay cell a write replaced so a revert can
// restore it. prev == nil means the key had no overlay cell before.
type journalEntry struct {
	hashed string
	prev   *dirtyValue
}

// Manager layers a journaled write overlay over a storage.Database. Keys are
// keccak256-hashed, values RLP-encoded. Reads consult the overlay first and
// fall through to the backend. Snapshot and RevertToSnapshot give module
// operations all-or-nothing semantics; Commit flushes the overlay to the
// backend and resets the journal.
type Manager struct {
	db      storage.Database
	dirty   map[string]dirtyValue
	journal []journalEntry
	snaps   []int
}

// NewManager creates a state manager over the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{
		db:    db,
		dirty: make(map[string]dirtyValue),
	}
}

// Snapshot marks the current journal position and returns an identifier for
// RevertToSnapshot.
func (m *Manager) Snapshot() int {
	m.snaps = append(m.snaps, len(m.journal))
	return len(m.snaps) - 1
}

// RevertToSnapshot undoes every write made after the identified snapshot.
func (m *Manager) RevertToSnapshot(id int) {
	if id < 0 || id >= len(m.snaps) {
		return
	}
	mark := m.snaps[id]
	for i := len(m.journal) - 1; i >= mark; i-- {
		entry := m.journal[i]
		if entry.prev == nil {
			delete(m.dirty, entry.hashed)
		} else {
			m.dirty[entry.hashed] = *entry.prev
		}
	}
	m.journal = m.journal[:mark]
	m.snaps = m.snaps[:id]
}

// Commit flushes the dirty overlay to the backend and clears the journal.
func (m *Manager) Commit() error {
	for hashed, cell := range m.dirty {
		key := []byte(hashed)
		if cell.deleted {
			if err := m.db.Delete(key); err != nil {
				return fmt.Errorf("state: commit delete: %w", err)
			}
			continue
		}
		if err := m.db.Put(key, cell.value); err != nil {
			return fmt.Errorf("state: commit put: %w", err)
		}
	}
	m.dirty = make(map[string]dirtyValue)
	m.journal = m.journal[:0]
	m.snaps = m.snaps[:0]
	return nil
}

// Discard drops all uncommitted writes.
func (m *Manager) Discard() {
	m.dirty = make(map[string]dirtyValue)
	m.journal = m.journal[:0]
	m.snaps = m.snaps[:0]
}

func (m *Manager) set(hashed []byte, cell dirtyValue) {
	key := string(hashed)
	var prev *dirtyValue
	if existing, ok := m.dirty[key]; ok {
		c := existing
		prev = &c
	}
	m.journal = append(m.journal, journalEntry{hashed: key, prev: prev})
	m.dirty[key] = cell
}

// getRaw resolves a hashed key through the overlay, then the backend. The
// boolean reports existence.
func (m *Manager) getRaw(hashed []byte) ([]byte, bool, error) {
	if cell, ok := m.dirty[string(hashed)]; ok {
		if cell.deleted {
			return nil, false, nil
		}
		return cell.value, true, nil
	}
	ok, err := m.db.Has(hashed)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	data, err := m.db.Get(hashed)
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// KVPut stores the value under the key using RLP encoding. The key is hashed
// with keccak256 before it reaches the backend.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("state: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.set(kvKey(key), dirtyValue{value: encoded})
	return nil
}

// KVGet retrieves the value stored under the key and decodes it into out.
// The boolean reports whether the key existed. A nil out only probes
// existence.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("state: key must not be empty")
	}
	data, ok, err := m.getRaw(kvKey(key))
	if err != nil || !ok {
		return false, err
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete removes the key. Deleting an absent key is a no-op.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("state: key must not be empty")
	}
	m.set(kvKey(key), dirtyValue{deleted: true})
	return nil
}

// KVAppend appends value to the RLP byte-slice list stored under key.
// Duplicates are ignored to keep indexes deterministic.
func (m *Manager) KVAppend(key []byte, value []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("state: key must not be empty")
	}
	var list [][]byte
	if err := m.KVGetList(key, &list); err != nil {
		return err
	}
	for _, existing := range list {
		if string(existing) == string(value) {
			return nil
		}
	}
	list = append(list, append([]byte(nil), value...))
	return m.KVPut(key, list)
}

// KVGetList retrieves an RLP-encoded slice stored under key into the supplied
// slice pointer. A missing key initialises the destination to an empty slice
// so callers never see nil.
func (m *Manager) KVGetList(key []byte, out interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("state: key must not be empty")
	}
	data, ok, err := m.getRaw(kvKey(key))
	if err != nil {
		return err
	}
	if !ok {
		val := reflect.ValueOf(out)
		if val.Kind() != reflect.Ptr || val.IsNil() {
			return fmt.Errorf("state: destination must be a non-nil pointer")
		}
		elem := val.Elem()
		if elem.Kind() != reflect.Slice {
			return fmt.Errorf("state: destination must point to a slice")
		}
		elem.Set(reflect.MakeSlice(elem.Type(), 0, 0))
		return nil
	}
	return rlp.DecodeBytes(data, out)
}

// GetAccount loads the account for addr, returning a zero-balance account
// when none is stored yet.
func (m *Manager) GetAccount(addr []byte) (*types.Account, error) {
	data, ok, err := m.getRaw(accountKey(addr))
	if err != nil {
		return nil, err
	}
	if !ok {
		return &types.Account{Balance: big.NewInt(0)}, nil
	}
	account := new(types.Account)
	if err := rlp.DecodeBytes(data, account); err != nil {
		return nil, err
	}
	if account.Balance == nil {
		account.Balance = big.NewInt(0)
	}
	return account, nil
}

// PutAccount stores the account for addr.
func (m *Manager) PutAccount(addr []byte, account *types.Account) error {
	if account == nil {
		return fmt.Errorf("state: account must not be nil")
	}
	stored := account.Clone()
	if stored.Balance == nil {
		stored.Balance = big.NewInt(0)
	}
	encoded, err := rlp.EncodeToBytes(stored)
	if err != nil {
		return err
	}
	m.set(accountKey(addr), dirtyValue{value: encoded})
	return nil
}
