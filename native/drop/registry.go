package drop

import (
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"mintgate/core/events"
)

// Storage is the subset of state-manager functionality the registry needs.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
	KVGetList(key []byte, out interface{}) error
}

var (
	creatorPayoutPrefix = []byte("drop/creator/")
	feeRecipientsPrefix = []byte("drop/feerecipients/")
	payersPrefix        = []byte("drop/payers/")
	signerListPrefix    = []byte("drop/signers/")
	signerParamsPrefix  = []byte("drop/signer/")
	usedDigestPrefix    = []byte("drop/digest/")
	dropURIPrefix       = []byte("drop/uri/")
	publicDropPrefix    = []byte("drop/public/")
	allowListPrefix     = []byte("drop/allowlist/")
	gatedListPrefix     = []byte("drop/gatedtokens/")
	gatedStagePrefix    = []byte("drop/gated/")
	redemptionPrefix    = []byte("drop/redeemed/")
)

func collectionKey(prefix []byte, collection [20]byte) []byte {
	buf := make([]byte, 0, len(prefix)+20)
	buf = append(buf, prefix...)
	buf = append(buf, collection[:]...)
	return buf
}

func pairKey(prefix []byte, collection, addr [20]byte) []byte {
	buf := make([]byte, 0, len(prefix)+41)
	buf = append(buf, prefix...)
	buf = append(buf, collection[:]...)
	buf = append(buf, '/')
	buf = append(buf, addr[:]...)
	return buf
}

func digestKey(digest [32]byte) []byte {
	buf := make([]byte, 0, len(usedDigestPrefix)+32)
	buf = append(buf, usedDigestPrefix...)
	buf = append(buf, digest[:]...)
	return buf
}

// redemptionKey identifies one (collection, gating token, token id) cell.
// The token id is hashed so arbitrarily large ids form fixed-size keys.
func redemptionKey(collection, allowedToken [20]byte, tokenID *big.Int) []byte {
	id := new(big.Int)
	if tokenID != nil {
		id.Set(tokenID)
	}
	idHash := ethcrypto.Keccak256(id.Bytes())
	buf := make([]byte, 0, len(redemptionPrefix)+20+1+20+1+len(idHash))
	buf = append(buf, redemptionPrefix...)
	buf = append(buf, collection[:]...)
	buf = append(buf, '/')
	buf = append(buf, allowedToken[:]...)
	buf = append(buf, '/')
	buf = append(buf, idHash...)
	return buf
}

// Capability is an EIP-165-flavored four-byte interface identifier.
type Capability [4]byte

// CapabilityID derives a capability identifier from its name: the first four
// bytes of keccak256(name).
func CapabilityID(name string) Capability {
	hash := ethcrypto.Keccak256([]byte(name))
	var id Capability
	copy(id[:], hash[:4])
	return id
}

// CollectionCapabilityID is the capability every collection must declare
// before the registry accepts administrative writes on its behalf.
var CollectionCapabilityID = CapabilityID("mintgate.collection.v1")

// Collection is the self-declaration surface the capability gate probes.
type Collection interface {
	Address() [20]byte
	SupportsCapability(id Capability) bool
}

// Tenant is the verified namespace handle for one collection. Only
// Registry.Authorize constructs live tenants, so every registry write is
// bound to a collection that passed the capability gate.
type Tenant struct {
	collection [20]byte
	verified   bool
}

// Collection returns the tenant's collection address.
func (t Tenant) Collection() [20]byte { return t.collection }

// Registry owns all per-collection drop state plus the global used-digest
// ledger. Writes require a Tenant; reads are open to anyone by design.
type Registry struct {
	store   Storage
	emitter events.Emitter
	addr    [20]byte
}

// NewRegistry constructs a registry over the given storage backend.
func NewRegistry(store Storage) *Registry {
	return &Registry{store: store, emitter: events.NoopEmitter{}, addr: RegistryAddress()}
}

// ModuleAddress returns the address collections allow-list to accept
// delegated administration from this registry.
func (r *Registry) ModuleAddress() [20]byte { return r.addr }

// SetEmitter configures the event emitter used for administrative updates.
func (r *Registry) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		r.emitter = events.NoopEmitter{}
		return
	}
	r.emitter = emitter
}

func (r *Registry) emit(evt events.Event) {
	if r == nil || r.emitter == nil {
		return
	}
	r.emitter.Emit(evt)
}

func (r *Registry) ready() error {
	if r == nil {
		return ErrNilRegistry
	}
	if r.store == nil {
		return ErrNilState
	}
	return nil
}

// Authorize runs the capability gate and mints the tenant handle all
// administrative writes require. Callers that do not declare the collection
// capability are rejected regardless of the address they present.
func (r *Registry) Authorize(col Collection) (Tenant, error) {
	if err := r.ready(); err != nil {
		return Tenant{}, err
	}
	if col == nil {
		return Tenant{}, fmt.Errorf("%w: nil collection", ErrOnlyCapableCollection)
	}
	addr := col.Address()
	if isZeroAddress(addr) {
		return Tenant{}, fmt.Errorf("%w: zero collection address", ErrOnlyCapableCollection)
	}
	if !col.SupportsCapability(CollectionCapabilityID) {
		return Tenant{}, fmt.Errorf("%w: capability %x not declared", ErrOnlyCapableCollection, CollectionCapabilityID)
	}
	return Tenant{collection: addr, verified: true}, nil
}

func (r *Registry) requireTenant(t Tenant) error {
	if err := r.ready(); err != nil {
		return err
	}
	if !t.verified {
		return fmt.Errorf("%w: unauthorized tenant", ErrOnlyCapableCollection)
	}
	return nil
}

// --- Creator payout ---

// UpdateCreatorPayoutAddress stores the settlement destination for the
// tenant. Zero is a legal write meaning "unset"; settlement fails late when
// it is still unset.
func (r *Registry) UpdateCreatorPayoutAddress(t Tenant, payout [20]byte) error {
	if err := r.requireTenant(t); err != nil {
		return err
	}
	if err := r.store.KVPut(collectionKey(creatorPayoutPrefix, t.collection), payout[:]); err != nil {
		return err
	}
	r.emit(events.CreatorPayoutUpdated{Collection: t.collection, Payout: payout})
	return nil
}

// CreatorPayoutAddress returns the stored payout address, zero when unset.
func (r *Registry) CreatorPayoutAddress(collection [20]byte) ([20]byte, error) {
	if err := r.ready(); err != nil {
		return [20]byte{}, err
	}
	var raw []byte
	ok, err := r.store.KVGet(collectionKey(creatorPayoutPrefix, collection), &raw)
	if err != nil || !ok {
		return [20]byte{}, err
	}
	if len(raw) != 20 {
		return [20]byte{}, fmt.Errorf("drop: malformed creator payout record")
	}
	var out [20]byte
	copy(out[:], raw)
	return out, nil
}

// --- Enumerated sets ---

func (r *Registry) loadSet(key []byte) (*addressSet, error) {
	var raw [][]byte
	if err := r.store.KVGetList(key, &raw); err != nil {
		return nil, err
	}
	return newAddressSet(bytesToAddrs(raw)), nil
}

func (r *Registry) storeSet(key []byte, set *addressSet) error {
	return r.store.KVPut(key, addrsToBytes(set.order))
}

func (r *Registry) updateMembership(key []byte, addr [20]byte, allowed bool, errs setErrors) error {
	set, err := r.loadSet(key)
	if err != nil {
		return err
	}
	if err := set.apply(addr, allowed, errs); err != nil {
		return err
	}
	return r.storeSet(key, set)
}

func (r *Registry) enumerate(key []byte) ([][20]byte, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	set, err := r.loadSet(key)
	if err != nil {
		return nil, err
	}
	return set.Enumerate(), nil
}

func (r *Registry) member(key []byte, addr [20]byte) (bool, error) {
	if err := r.ready(); err != nil {
		return false, err
	}
	set, err := r.loadSet(key)
	if err != nil {
		return false, err
	}
	return set.Contains(addr), nil
}

// UpdateAllowedFeeRecipient adds or removes a fee recipient for the tenant.
func (r *Registry) UpdateAllowedFeeRecipient(t Tenant, feeRecipient [20]byte, allowed bool) error {
	if err := r.requireTenant(t); err != nil {
		return err
	}
	errs := setErrors{
		duplicate:  ErrDuplicateFeeRecipient,
		notPresent: ErrFeeRecipientNotPresent,
		zero:       ErrFeeRecipientCannotBeZeroAddress,
	}
	if err := r.updateMembership(collectionKey(feeRecipientsPrefix, t.collection), feeRecipient, allowed, errs); err != nil {
		return err
	}
	r.emit(events.FeeRecipientUpdated{Collection: t.collection, FeeRecipient: feeRecipient, Allowed: allowed})
	return nil
}

// AllowedFeeRecipients enumerates the tenant's fee recipients.
func (r *Registry) AllowedFeeRecipients(collection [20]byte) ([][20]byte, error) {
	return r.enumerate(collectionKey(feeRecipientsPrefix, collection))
}

// FeeRecipientAllowed reports membership in the fee-recipient set.
func (r *Registry) FeeRecipientAllowed(collection, feeRecipient [20]byte) (bool, error) {
	return r.member(collectionKey(feeRecipientsPrefix, collection), feeRecipient)
}

// UpdatePayer adds or removes an address allowed to mint on behalf of
// others.
func (r *Registry) UpdatePayer(t Tenant, payer [20]byte, allowed bool) error {
	if err := r.requireTenant(t); err != nil {
		return err
	}
	errs := setErrors{
		duplicate:  ErrDuplicatePayer,
		notPresent: ErrPayerNotPresent,
		zero:       ErrPayerCannotBeZeroAddress,
	}
	if err := r.updateMembership(collectionKey(payersPrefix, t.collection), payer, allowed, errs); err != nil {
		return err
	}
	r.emit(events.PayerUpdated{Collection: t.collection, Payer: payer, Allowed: allowed})
	return nil
}

// Payers enumerates the tenant's allowed payers.
func (r *Registry) Payers(collection [20]byte) ([][20]byte, error) {
	return r.enumerate(collectionKey(payersPrefix, collection))
}

// PayerAllowed reports membership in the payer set.
func (r *Registry) PayerAllowed(collection, payer [20]byte) (bool, error) {
	return r.member(collectionKey(payersPrefix, collection), payer)
}

// --- Signers ---

// UpdateSignedMintValidationParams registers, or with a nil/sentinel-zero
// params value removes, an authorization signer. Registration follows the
// shared set protocol, so updating a live signer's bounds means removing and
// re-adding it.
func (r *Registry) UpdateSignedMintValidationParams(t Tenant, signer [20]byte, params *SignedMintValidationParams) error {
	if err := r.requireTenant(t); err != nil {
		return err
	}
	if isZeroAddress(signer) {
		return ErrSignerCannotBeZeroAddress
	}
	listKey := collectionKey(signerListPrefix, t.collection)
	set, err := r.loadSet(listKey)
	if err != nil {
		return err
	}

	if !params.Registered() {
		if !set.Remove(signer) {
			return ErrSignerNotPresent
		}
		if err := r.storeSet(listKey, set); err != nil {
			return err
		}
		if err := r.store.KVDelete(pairKey(signerParamsPrefix, t.collection, signer)); err != nil {
			return err
		}
		r.emit(events.SignerUpdated{Collection: t.collection, Signer: signer, Registered: false})
		return nil
	}

	if params.MinFeeBps > maxFeeBasisPoints {
		return fmt.Errorf("%w: min fee bps %d", ErrInvalidFeeBps, params.MinFeeBps)
	}
	if params.MaxFeeBps > maxFeeBasisPoints {
		return fmt.Errorf("%w: max fee bps %d", ErrInvalidFeeBps, params.MaxFeeBps)
	}
	if !set.Add(signer) {
		return ErrDuplicateSigner
	}
	if err := r.storeSet(listKey, set); err != nil {
		return err
	}
	stored := params.Clone()
	if stored.MinMintPrice == nil {
		stored.MinMintPrice = big.NewInt(0)
	}
	if err := r.store.KVPut(pairKey(signerParamsPrefix, t.collection, signer), stored); err != nil {
		return err
	}
	r.emit(events.SignerUpdated{Collection: t.collection, Signer: signer, Registered: true})
	return nil
}

// Signers enumerates the tenant's registered signers.
func (r *Registry) Signers(collection [20]byte) ([][20]byte, error) {
	return r.enumerate(collectionKey(signerListPrefix, collection))
}

// SignerValidationParams returns the stored bounds for (collection, signer).
// The boolean reports registration; absent signers return (nil, false, nil).
func (r *Registry) SignerValidationParams(collection, signer [20]byte) (*SignedMintValidationParams, bool, error) {
	if err := r.ready(); err != nil {
		return nil, false, err
	}
	params := new(SignedMintValidationParams)
	ok, err := r.store.KVGet(pairKey(signerParamsPrefix, collection, signer), params)
	if err != nil || !ok {
		return nil, false, err
	}
	return params, params.Registered(), nil
}

// --- Drop metadata ---

// UpdateDropURI stores the tenant's drop metadata URI.
func (r *Registry) UpdateDropURI(t Tenant, uri string) error {
	if err := r.requireTenant(t); err != nil {
		return err
	}
	if err := r.store.KVPut(collectionKey(dropURIPrefix, t.collection), uri); err != nil {
		return err
	}
	r.emit(events.DropURIUpdated{Collection: t.collection, URI: uri})
	return nil
}

// DropURI returns the stored drop URI, empty when unset.
func (r *Registry) DropURI(collection [20]byte) (string, error) {
	if err := r.ready(); err != nil {
		return "", err
	}
	var uri string
	if _, err := r.store.KVGet(collectionKey(dropURIPrefix, collection), &uri); err != nil {
		return "", err
	}
	return uri, nil
}

// UpdatePublicDrop stores the tenant's public-stage configuration.
func (r *Registry) UpdatePublicDrop(t Tenant, publicDrop *PublicDrop) error {
	if err := r.requireTenant(t); err != nil {
		return err
	}
	if publicDrop == nil {
		return fmt.Errorf("%w: public drop required", ErrInvalidRequest)
	}
	if publicDrop.FeeBps > maxFeeBasisPoints {
		return fmt.Errorf("%w: fee bps %d", ErrInvalidFeeBps, publicDrop.FeeBps)
	}
	stored := publicDrop.Clone()
	if stored.Price == nil {
		stored.Price = big.NewInt(0)
	}
	if err := r.store.KVPut(collectionKey(publicDropPrefix, t.collection), stored); err != nil {
		return err
	}
	r.emit(events.PublicDropUpdated{Collection: t.collection, Price: stored.Price, StartTime: stored.StartTime, EndTime: stored.EndTime})
	return nil
}

// PublicDrop returns the stored public-stage configuration.
func (r *Registry) PublicDrop(collection [20]byte) (*PublicDrop, bool, error) {
	if err := r.ready(); err != nil {
		return nil, false, err
	}
	publicDrop := new(PublicDrop)
	ok, err := r.store.KVGet(collectionKey(publicDropPrefix, collection), publicDrop)
	if err != nil || !ok {
		return nil, false, err
	}
	return publicDrop, true, nil
}

// UpdateAllowList stores the tenant's allow-list data.
func (r *Registry) UpdateAllowList(t Tenant, data *AllowListData) error {
	if err := r.requireTenant(t); err != nil {
		return err
	}
	if data == nil {
		return fmt.Errorf("%w: allow list data required", ErrInvalidRequest)
	}
	if err := r.store.KVPut(collectionKey(allowListPrefix, t.collection), data.Clone()); err != nil {
		return err
	}
	r.emit(events.AllowListUpdated{Collection: t.collection, MerkleRoot: data.MerkleRoot})
	return nil
}

// AllowList returns the stored allow-list data.
func (r *Registry) AllowList(collection [20]byte) (*AllowListData, bool, error) {
	if err := r.ready(); err != nil {
		return nil, false, err
	}
	data := new(AllowListData)
	ok, err := r.store.KVGet(collectionKey(allowListPrefix, collection), data)
	if err != nil || !ok {
		return nil, false, err
	}
	return data, true, nil
}

// --- Token-gated stages ---

// UpdateTokenGatedDrop stores, updates, or with a nil stage removes the
// gated-stage configuration for one external NFT contract.
func (r *Registry) UpdateTokenGatedDrop(t Tenant, allowedToken [20]byte, stage *TokenGatedDropStage) error {
	if err := r.requireTenant(t); err != nil {
		return err
	}
	if isZeroAddress(allowedToken) {
		return ErrGatedTokenCannotBeZeroAddress
	}
	if allowedToken == t.collection {
		return ErrGatedTokenCannotBeDropToken
	}
	listKey := collectionKey(gatedListPrefix, t.collection)
	set, err := r.loadSet(listKey)
	if err != nil {
		return err
	}

	if stage == nil {
		if !set.Remove(allowedToken) {
			return ErrGatedTokenNotPresent
		}
		if err := r.storeSet(listKey, set); err != nil {
			return err
		}
		if err := r.store.KVDelete(pairKey(gatedStagePrefix, t.collection, allowedToken)); err != nil {
			return err
		}
		r.emit(events.TokenGatedDropUpdated{Collection: t.collection, AllowedToken: allowedToken, Removed: true})
		return nil
	}

	if stage.FeeBps > maxFeeBasisPoints {
		return fmt.Errorf("%w: fee bps %d", ErrInvalidFeeBps, stage.FeeBps)
	}
	set.Add(allowedToken)
	if err := r.storeSet(listKey, set); err != nil {
		return err
	}
	stored := stage.Clone()
	if stored.Price == nil {
		stored.Price = big.NewInt(0)
	}
	if err := r.store.KVPut(pairKey(gatedStagePrefix, t.collection, allowedToken), stored); err != nil {
		return err
	}
	r.emit(events.TokenGatedDropUpdated{Collection: t.collection, AllowedToken: allowedToken})
	return nil
}

// TokenGatedTokens enumerates the external NFT contracts with gated stages.
func (r *Registry) TokenGatedTokens(collection [20]byte) ([][20]byte, error) {
	return r.enumerate(collectionKey(gatedListPrefix, collection))
}

// TokenGatedDrop returns the stored gated-stage configuration for one
// external NFT contract.
func (r *Registry) TokenGatedDrop(collection, allowedToken [20]byte) (*TokenGatedDropStage, bool, error) {
	if err := r.ready(); err != nil {
		return nil, false, err
	}
	stage := new(TokenGatedDropStage)
	ok, err := r.store.KVGet(pairKey(gatedStagePrefix, collection, allowedToken), stage)
	if err != nil || !ok {
		return nil, false, err
	}
	return stage, true, nil
}

// MarkTokenGatedRedemption records that a specific held NFT unlocked a gated
// mint, preventing the same token id from being spent twice.
func (r *Registry) MarkTokenGatedRedemption(t Tenant, allowedToken [20]byte, tokenID *big.Int) error {
	if err := r.requireTenant(t); err != nil {
		return err
	}
	if isZeroAddress(allowedToken) {
		return ErrGatedTokenCannotBeZeroAddress
	}
	key := redemptionKey(t.collection, allowedToken, tokenID)
	ok, err := r.store.KVGet(key, nil)
	if err != nil {
		return err
	}
	if ok {
		return ErrGatedTokenIDAlreadyRedeemed
	}
	return r.store.KVPut(key, true)
}

// TokenGatedRedeemed reports whether a specific held NFT already unlocked a
// gated mint.
func (r *Registry) TokenGatedRedeemed(collection, allowedToken [20]byte, tokenID *big.Int) (bool, error) {
	if err := r.ready(); err != nil {
		return false, err
	}
	return r.store.KVGet(redemptionKey(collection, allowedToken, tokenID), nil)
}

// --- Used-digest ledger ---

// ConsumeDigest burns a typed-data digest. It fails when the digest was
// already consumed; the caller's snapshot discipline decides whether a burn
// outlives a failed mint.
func (r *Registry) ConsumeDigest(digest [32]byte) error {
	if err := r.ready(); err != nil {
		return err
	}
	key := digestKey(digest)
	ok, err := r.store.KVGet(key, nil)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("%w: digest %x", ErrSignatureAlreadyUsed, digest)
	}
	return r.store.KVPut(key, true)
}

// DigestUsed reports whether a digest has been consumed.
func (r *Registry) DigestUsed(digest [32]byte) (bool, error) {
	if err := r.ready(); err != nil {
		return false, err
	}
	return r.store.KVGet(digestKey(digest), nil)
}
