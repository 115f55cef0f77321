package droptoken

import (
	"encoding/binary"
	"fmt"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"mintgate/core/events"
	"mintgate/native/drop"
)

// Storage is the slice of state-manager functionality the ledger needs.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var (
	collectionPrefix = []byte("token/collection/")
	mintedPrefix     = []byte("token/minted/")
	nonceKey         = []byte("token/nonce")
)

func collectionKey(addr [20]byte) []byte {
	buf := make([]byte, 0, len(collectionPrefix)+20)
	buf = append(buf, collectionPrefix...)
	buf = append(buf, addr[:]...)
	return buf
}

func mintedKey(collection, wallet [20]byte) []byte {
	buf := make([]byte, 0, len(mintedPrefix)+41)
	buf = append(buf, mintedPrefix...)
	buf = append(buf, collection[:]...)
	buf = append(buf, '/')
	buf = append(buf, wallet[:]...)
	return buf
}

// RoleVariant selects which role model governs a collection's delegated
// administration.
type RoleVariant uint8

const (
	// RoleOwnerOnly routes every delegated update through the owner.
	RoleOwnerOnly RoleVariant = iota
	// RoleOwnerAdministrator splits duties: fee recipients and signers
	// belong to the administrator, everything else to either role.
	RoleOwnerAdministrator
)

// Config describes a collection at creation time.
type Config struct {
	Name          string
	Administrator [20]byte
	Variant       RoleVariant
	MaxSupply     uint64
	// AllowedRegistries defaults to the ledger's authority when empty.
	AllowedRegistries [][20]byte
}

type storedCollection struct {
	Name              string
	Owner             [20]byte
	Administrator     [20]byte
	Variant           uint8
	MaxSupply         uint64
	TotalSupply       uint64
	AllowedRegistries [][20]byte
}

// Info is the read-model view of one collection.
type Info struct {
	Address           [20]byte
	Name              string
	Owner             [20]byte
	Administrator     [20]byte
	Variant           RoleVariant
	MaxSupply         uint64
	TotalSupply       uint64
	AllowedRegistries [][20]byte
}

// MintObserver runs after mint bookkeeping has persisted, standing in for
// the token-transfer side effects a receiver could hook. An error from the
// observer aborts the mint.
type MintObserver interface {
	OnTokensMinted(collection, minter [20]byte, quantity uint64) error
}

// Ledger stores collection records and hands out live Token handles. The
// authority is the registry module address mints arrive under; only
// collections that allow-list it will mint.
type Ledger struct {
	store     Storage
	emitter   events.Emitter
	authority [20]byte
	observer  MintObserver
	minting   map[[20]byte]bool
}

// NewLedger constructs a collection ledger bound to a mint authority.
func NewLedger(store Storage, authority [20]byte) *Ledger {
	return &Ledger{
		store:     store,
		emitter:   events.NoopEmitter{},
		authority: authority,
		minting:   make(map[[20]byte]bool),
	}
}

// SetEmitter configures the event emitter used for lifecycle updates.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

// SetMintObserver configures the post-mint side-effect hook.
func (l *Ledger) SetMintObserver(observer MintObserver) { l.observer = observer }

func (l *Ledger) ready() error {
	if l == nil || l.store == nil {
		return ErrNilState
	}
	return nil
}

func (l *Ledger) emit(evt events.Event) {
	if l == nil || l.emitter == nil {
		return
	}
	l.emitter.Emit(evt)
}

func isZeroAddress(addr [20]byte) bool {
	return addr == [20]byte{}
}

func containsAddress(list [][20]byte, addr [20]byte) bool {
	for _, candidate := range list {
		if candidate == addr {
			return true
		}
	}
	return false
}

func deriveAddress(owner [20]byte, name string, nonce uint64) [20]byte {
	var nonceBuf [8]byte
	binary.BigEndian.PutUint64(nonceBuf[:], nonce)
	hash := ethcrypto.Keccak256(owner[:], []byte(name), nonceBuf[:])
	var addr [20]byte
	copy(addr[:], hash[12:])
	return addr
}

// Create derives a fresh collection address, persists the record, and
// returns the new address.
func (l *Ledger) Create(owner [20]byte, cfg Config) ([20]byte, error) {
	if err := l.ready(); err != nil {
		return [20]byte{}, err
	}
	if isZeroAddress(owner) {
		return [20]byte{}, fmt.Errorf("%w: owner required", ErrInvalidConfig)
	}
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		return [20]byte{}, fmt.Errorf("%w: name required", ErrInvalidConfig)
	}
	if cfg.Variant > RoleOwnerAdministrator {
		return [20]byte{}, fmt.Errorf("%w: unknown role variant %d", ErrInvalidConfig, cfg.Variant)
	}
	if cfg.Variant == RoleOwnerAdministrator && isZeroAddress(cfg.Administrator) {
		return [20]byte{}, fmt.Errorf("%w: administrator required", ErrInvalidConfig)
	}
	registries := cfg.AllowedRegistries
	if len(registries) == 0 {
		registries = [][20]byte{l.authority}
	}
	normalized := make([][20]byte, 0, len(registries))
	for _, registry := range registries {
		if isZeroAddress(registry) {
			return [20]byte{}, ErrRegistryCannotBeZeroAddress
		}
		if containsAddress(normalized, registry) {
			return [20]byte{}, fmt.Errorf("%w: %x", ErrDuplicateAllowedRegistry, registry)
		}
		normalized = append(normalized, registry)
	}

	var nonce uint64
	if _, err := l.store.KVGet(nonceKey, &nonce); err != nil {
		return [20]byte{}, err
	}
	addr := deriveAddress(owner, name, nonce)
	var existing storedCollection
	exists, err := l.store.KVGet(collectionKey(addr), &existing)
	if err != nil {
		return [20]byte{}, err
	}
	if exists {
		return [20]byte{}, fmt.Errorf("%w: %x", ErrCollectionExists, addr)
	}

	record := &storedCollection{
		Name:              name,
		Owner:             owner,
		Administrator:     cfg.Administrator,
		Variant:           uint8(cfg.Variant),
		MaxSupply:         cfg.MaxSupply,
		AllowedRegistries: normalized,
	}
	if err := l.putRecord(addr, record); err != nil {
		return [20]byte{}, err
	}
	if err := l.store.KVPut(nonceKey, nonce+1); err != nil {
		return [20]byte{}, err
	}
	l.emit(events.CollectionCreated{
		Collection: addr,
		Owner:      owner,
		Name:       name,
		MaxSupply:  cfg.MaxSupply,
	})
	return addr, nil
}

// Collection resolves a live handle for the mint engine. It reports false
// for addresses without a stored record.
func (l *Ledger) Collection(addr [20]byte) (drop.DropCollection, bool) {
	if l == nil || l.store == nil {
		return nil, false
	}
	var record storedCollection
	exists, err := l.store.KVGet(collectionKey(addr), &record)
	if err != nil || !exists {
		return nil, false
	}
	return &Token{ledger: l, addr: addr}, true
}

// Token returns a typed handle on a stored collection.
func (l *Ledger) Token(addr [20]byte) (*Token, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	if _, err := l.record(addr); err != nil {
		return nil, err
	}
	return &Token{ledger: l, addr: addr}, nil
}

// Info returns the read-model view of a collection.
func (l *Ledger) Info(addr [20]byte) (*Info, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	record, err := l.record(addr)
	if err != nil {
		return nil, err
	}
	registries := make([][20]byte, len(record.AllowedRegistries))
	copy(registries, record.AllowedRegistries)
	return &Info{
		Address:           addr,
		Name:              record.Name,
		Owner:             record.Owner,
		Administrator:     record.Administrator,
		Variant:           RoleVariant(record.Variant),
		MaxSupply:         record.MaxSupply,
		TotalSupply:       record.TotalSupply,
		AllowedRegistries: registries,
	}, nil
}

// WalletMinted returns how many tokens a wallet has minted so far.
func (l *Ledger) WalletMinted(collection, wallet [20]byte) (uint64, error) {
	if err := l.ready(); err != nil {
		return 0, err
	}
	return l.walletMinted(collection, wallet)
}

func (l *Ledger) record(addr [20]byte) (*storedCollection, error) {
	var record storedCollection
	exists, err := l.store.KVGet(collectionKey(addr), &record)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %x", ErrUnknownCollection, addr)
	}
	return &record, nil
}

func (l *Ledger) putRecord(addr [20]byte, record *storedCollection) error {
	return l.store.KVPut(collectionKey(addr), record)
}

func (l *Ledger) walletMinted(collection, wallet [20]byte) (uint64, error) {
	var minted uint64
	if _, err := l.store.KVGet(mintedKey(collection, wallet), &minted); err != nil {
		return 0, err
	}
	return minted, nil
}
