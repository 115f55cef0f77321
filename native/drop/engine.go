package drop

import (
	"fmt"
	"math/big"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"mintgate/core/events"
	"mintgate/core/types"
	"mintgate/native/common"
)

const moduleName = "drop"

const maxFeeBasisPoints uint16 = 10_000

// engineState is the slice of state-manager functionality the engine needs
// beyond registry storage: the account book and the snapshot discipline that
// makes every mint all-or-nothing.
type engineState interface {
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
	Snapshot() int
	RevertToSnapshot(id int)
}

// MintCapable mints tokens under registry authority.
type MintCapable interface {
	MintTo(minter [20]byte, quantity uint64) error
}

// StatsProvider reports the live supply view. The engine re-reads it on
// every call and never caches across calls.
type StatsProvider interface {
	MintStats(minter [20]byte) (MintStats, error)
}

// DropCollection is the full capability set the engine requires from a
// collection: identity plus mint plus stats.
type DropCollection interface {
	Collection
	MintCapable
	StatsProvider
}

// CollectionResolver looks up live collection handles by address.
type CollectionResolver interface {
	Collection(addr [20]byte) (DropCollection, bool)
}

// PaymentSink is the receive-hook capability an address may register. A sink
// error rejects the transfer and aborts the whole mint.
type PaymentSink interface {
	ReceivePayment(from [20]byte, amount *big.Int) error
}

// SinkResolver looks up payment sinks by address.
type SinkResolver interface {
	PaymentSink(addr [20]byte) (PaymentSink, bool)
}

// reentrancyGuard is the scoped lock spanning mint and settlement. It is the
// sole mechanism keeping a hostile capability callback from re-entering the
// engine mid-settlement.
type reentrancyGuard struct {
	held bool
}

// enter acquires the guard and returns its release. Release must run on
// every exit path.
func (g *reentrancyGuard) enter() (func(), error) {
	if g.held {
		return nil, ErrReentrantCall
	}
	g.held = true
	return func() { g.held = false }, nil
}

// SignedMintRequest carries one signed-mint attempt. Payment is the value
// supplied with the call; Quantity is deliberately outside the signed digest
// so one authorization covers repeat mints up to the signed wallet limit.
type SignedMintRequest struct {
	Collection     [20]byte
	FeeRecipient   [20]byte
	MinterOverride [20]byte
	Quantity       uint64
	MintParams     *MintParams
	Salt           *big.Int
	Signature      []byte
	Payment        *big.Int
}

// PublicMintRequest carries one public-stage mint attempt.
type PublicMintRequest struct {
	Collection     [20]byte
	FeeRecipient   [20]byte
	MinterOverride [20]byte
	Quantity       uint64
	Payment        *big.Int
}

// Engine validates mint requests against registry policy and settles
// payouts. All state mutations of one call succeed or revert together.
type Engine struct {
	state       engineState
	registry    *Registry
	collections CollectionResolver
	sinks       SinkResolver
	emitter     events.Emitter
	hasher      *Hasher
	pauses      common.PauseView
	nowFn       func() int64
	guard       reentrancyGuard
}

// NewEngine constructs a mint engine with default dependencies.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn: func() int64 {
			return time.Now().Unix()
		},
	}
}

// SetState configures the account/snapshot backend.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetRegistry configures the drop registry the engine reads policy from.
func (e *Engine) SetRegistry(registry *Registry) { e.registry = registry }

// SetCollections configures the collection resolver.
func (e *Engine) SetCollections(resolver CollectionResolver) { e.collections = resolver }

// SetSinks configures the optional payment-sink resolver.
func (e *Engine) SetSinks(resolver SinkResolver) { e.sinks = resolver }

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetHasher configures the typed-data hasher binding this engine to a
// network identity.
func (e *Engine) SetHasher(hasher *Hasher) { e.hasher = hasher }

// SetPauses configures the module pause switchboard.
func (e *Engine) SetPauses(pauses common.PauseView) { e.pauses = pauses }

// SetNowFunc overrides the time source used for deterministic testing.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// Hasher returns the configured typed-data hasher.
func (e *Engine) Hasher() *Hasher { return e.hasher }

func (e *Engine) emit(evt events.Event) {
	if e == nil || evt == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) ready() error {
	if e == nil {
		return fmt.Errorf("drop: engine not configured")
	}
	if e.state == nil {
		return ErrNilState
	}
	if e.registry == nil {
		return ErrNilRegistry
	}
	if e.collections == nil {
		return ErrNilCollections
	}
	return nil
}

// MintSigned validates and executes one signed mint. The guard spans the
// whole call, the digest burn happens before any capability invocation, and
// every intermediate write reverts on failure.
func (e *Engine) MintSigned(caller [20]byte, req *SignedMintRequest) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	release, err := e.guard.enter()
	if err != nil {
		return err
	}
	defer release()

	if req == nil || req.MintParams == nil {
		return fmt.Errorf("%w: mint params required", ErrInvalidRequest)
	}
	col, ok := e.collections.Collection(req.Collection)
	if !ok {
		return fmt.Errorf("%w: %x", ErrUnknownCollection, req.Collection)
	}

	snap := e.state.Snapshot()
	minted, err := e.mintSigned(caller, col, req)
	if err != nil {
		e.state.RevertToSnapshot(snap)
		return err
	}
	e.emit(minted)
	return nil
}

func (e *Engine) mintSigned(caller [20]byte, col DropCollection, req *SignedMintRequest) (events.Event, error) {
	params := req.MintParams
	payment, err := normalizePayment(req.Payment)
	if err != nil {
		return nil, err
	}

	if err := e.checkActive(params.StartTime, params.EndTime); err != nil {
		return nil, err
	}
	if err := checkExactPayment(payment, params.Price, req.Quantity); err != nil {
		return nil, err
	}
	minter, err := e.resolveMinter(caller, col.Address(), req.MinterOverride)
	if err != nil {
		return nil, err
	}
	if err := checkMintQuantity(col, minter, req.Quantity, params.MaxTotalMintableByWallet, params.MaxTokenSupplyForStage, true); err != nil {
		return nil, err
	}

	digest, err := e.hasher.MintDigest(col.Address(), minter, req.FeeRecipient, params, req.Salt)
	if err != nil {
		return nil, err
	}
	// Burn before recovery and before any capability call: a reentrant
	// callee must already observe the digest as used.
	if err := e.registry.ConsumeDigest(digest); err != nil {
		return nil, err
	}
	signer, err := recoverSigner(digest, req.Signature)
	if err != nil {
		return nil, err
	}
	bounds, registered, err := e.registry.SignerValidationParams(col.Address(), signer)
	if err != nil {
		return nil, err
	}
	if !registered {
		return nil, fmt.Errorf("%w: signer %x not registered", ErrInvalidSignature, signer)
	}
	if err := checkSignerEnvelope(params, bounds); err != nil {
		return nil, err
	}
	if !params.RestrictFeeRecipients {
		return nil, ErrSignedMintsMustRestrictFeeRecipients
	}
	if err := e.checkFeeRecipient(col.Address(), req.FeeRecipient, true); err != nil {
		return nil, err
	}

	if err := col.MintTo(minter, req.Quantity); err != nil {
		return nil, err
	}
	if err := e.settle(col.Address(), caller, req.FeeRecipient, params.FeeBps, payment); err != nil {
		return nil, err
	}

	return events.DropMinted{
		Collection:     col.Address(),
		Minter:         minter,
		FeeRecipient:   req.FeeRecipient,
		Payer:          caller,
		Quantity:       req.Quantity,
		UnitPrice:      cloneBigInt(params.Price),
		FeeBps:         params.FeeBps,
		DropStageIndex: params.DropStageIndex,
	}, nil
}

// MintPublic validates and executes one public-stage mint against the
// stored configuration.
func (e *Engine) MintPublic(caller [20]byte, req *PublicMintRequest) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	release, err := e.guard.enter()
	if err != nil {
		return err
	}
	defer release()

	if req == nil {
		return fmt.Errorf("%w: request required", ErrInvalidRequest)
	}
	col, ok := e.collections.Collection(req.Collection)
	if !ok {
		return fmt.Errorf("%w: %x", ErrUnknownCollection, req.Collection)
	}

	snap := e.state.Snapshot()
	minted, err := e.mintPublic(caller, col, req)
	if err != nil {
		e.state.RevertToSnapshot(snap)
		return err
	}
	e.emit(minted)
	return nil
}

func (e *Engine) mintPublic(caller [20]byte, col DropCollection, req *PublicMintRequest) (events.Event, error) {
	payment, err := normalizePayment(req.Payment)
	if err != nil {
		return nil, err
	}
	publicDrop, ok, err := e.registry.PublicDrop(col.Address())
	if err != nil {
		return nil, err
	}
	if !ok {
		// An unconfigured public drop has an empty window and is simply
		// never active.
		publicDrop = &PublicDrop{}
	}

	if err := e.checkActive(publicDrop.StartTime, publicDrop.EndTime); err != nil {
		return nil, err
	}
	if err := e.checkFeeRecipient(col.Address(), req.FeeRecipient, publicDrop.RestrictFeeRecipients); err != nil {
		return nil, err
	}
	minter, err := e.resolveMinter(caller, col.Address(), req.MinterOverride)
	if err != nil {
		return nil, err
	}
	if err := checkExactPayment(payment, publicDrop.Price, req.Quantity); err != nil {
		return nil, err
	}
	if err := checkMintQuantity(col, minter, req.Quantity, publicDrop.MaxTotalMintableByWallet, 0, false); err != nil {
		return nil, err
	}

	if err := col.MintTo(minter, req.Quantity); err != nil {
		return nil, err
	}
	if err := e.settle(col.Address(), caller, req.FeeRecipient, publicDrop.FeeBps, payment); err != nil {
		return nil, err
	}

	return events.DropMinted{
		Collection:     col.Address(),
		Minter:         minter,
		FeeRecipient:   req.FeeRecipient,
		Payer:          caller,
		Quantity:       req.Quantity,
		UnitPrice:      cloneBigInt(publicDrop.Price),
		FeeBps:         publicDrop.FeeBps,
		DropStageIndex: PublicStageIndex,
	}, nil
}

// --- Validation steps ---

func (e *Engine) checkActive(startTime, endTime uint64) error {
	now := e.now()
	if now < 0 {
		now = 0
	}
	current := uint64(now)
	if current < startTime || current > endTime {
		return fmt.Errorf("%w: window [%d, %d], now %d", ErrStageNotActive, startTime, endTime, current)
	}
	return nil
}

func normalizePayment(payment *big.Int) (*big.Int, error) {
	if payment == nil {
		return big.NewInt(0), nil
	}
	if payment.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative payment", ErrInvalidRequest)
	}
	return payment, nil
}

func checkExactPayment(payment, price *big.Int, quantity uint64) error {
	expected := new(big.Int)
	if price != nil {
		expected.Mul(price, new(big.Int).SetUint64(quantity))
	}
	if payment.Cmp(expected) != 0 {
		return fmt.Errorf("%w: got %s, want %s", ErrIncorrectPayment, payment, expected)
	}
	return nil
}

// resolveMinter applies the minter override and enforces the payer
// allow-list when the caller mints for someone else.
func (e *Engine) resolveMinter(caller, collection, override [20]byte) ([20]byte, error) {
	minter := override
	if isZeroAddress(minter) {
		minter = caller
	}
	if minter != caller {
		allowed, err := e.registry.PayerAllowed(collection, caller)
		if err != nil {
			return [20]byte{}, err
		}
		if !allowed {
			return [20]byte{}, fmt.Errorf("%w: %x", ErrPayerNotAllowed, caller)
		}
	}
	return minter, nil
}

func addOverflows(a, b uint64) bool {
	return a+b < a
}

// checkMintQuantity re-derives the live supply view and enforces the wallet,
// collection, and (when the stage defines one) stage ceilings.
func checkMintQuantity(col DropCollection, minter [20]byte, quantity, maxPerWallet, stageSupply uint64, enforceStageSupply bool) error {
	if quantity == 0 {
		return ErrQuantityCannotBeZero
	}
	stats, err := col.MintStats(minter)
	if err != nil {
		return err
	}
	if addOverflows(stats.MinterMinted, quantity) || stats.MinterMinted+quantity > maxPerWallet {
		return fmt.Errorf("%w: minting %d would hold %d, limit %d", ErrExceedsMaxMintedPerWallet, quantity, stats.MinterMinted+quantity, maxPerWallet)
	}
	if addOverflows(stats.TotalSupply, quantity) || stats.TotalSupply+quantity > stats.MaxSupply {
		return fmt.Errorf("%w: minting %d would supply %d, limit %d", ErrExceedsMaxSupply, quantity, stats.TotalSupply+quantity, stats.MaxSupply)
	}
	if enforceStageSupply {
		if addOverflows(stats.TotalSupply, quantity) || stats.TotalSupply+quantity > stageSupply {
			return fmt.Errorf("%w: minting %d would supply %d, stage limit %d", ErrExceedsMaxTokenSupplyForStage, quantity, stats.TotalSupply+quantity, stageSupply)
		}
	}
	return nil
}

// recoverSigner recovers the authorizing address from a 65-byte
// [R || S || V] signature over the digest. Both 0/1 and 27/28 recovery ids
// are accepted.
func recoverSigner(digest [32]byte, signature []byte) ([20]byte, error) {
	if len(signature) != 65 {
		return [20]byte{}, fmt.Errorf("%w: signature must be 65 bytes, got %d", ErrInvalidSignature, len(signature))
	}
	sig := make([]byte, 65)
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	pubKey, err := ethcrypto.SigToPub(digest[:], sig)
	if err != nil {
		return [20]byte{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	recovered := ethcrypto.PubkeyToAddress(*pubKey)
	var out [20]byte
	copy(out[:], recovered.Bytes())
	return out, nil
}

// checkSignerEnvelope enforces every signer-bound parameter, each with its
// own error naming got-vs-limit values.
func checkSignerEnvelope(params *MintParams, bounds *SignedMintValidationParams) error {
	price := params.Price
	if price == nil {
		price = big.NewInt(0)
	}
	minPrice := bounds.MinMintPrice
	if minPrice == nil {
		minPrice = big.NewInt(0)
	}
	if price.Cmp(minPrice) < 0 {
		return fmt.Errorf("%w: got %s, minimum %s", ErrInvalidSignedMintPrice, price, minPrice)
	}
	if params.MaxTotalMintableByWallet > bounds.MaxMaxTotalMintableByWallet {
		return fmt.Errorf("%w: got %d, maximum %d", ErrInvalidSignedMaxTotalMintableByWallet, params.MaxTotalMintableByWallet, bounds.MaxMaxTotalMintableByWallet)
	}
	if params.StartTime < bounds.MinStartTime {
		return fmt.Errorf("%w: got %d, minimum %d", ErrInvalidSignedStartTime, params.StartTime, bounds.MinStartTime)
	}
	if params.EndTime > bounds.MaxEndTime {
		return fmt.Errorf("%w: got %d, maximum %d", ErrInvalidSignedEndTime, params.EndTime, bounds.MaxEndTime)
	}
	if params.MaxTokenSupplyForStage > bounds.MaxMaxTokenSupplyForStage {
		return fmt.Errorf("%w: got %d, maximum %d", ErrInvalidSignedMaxTokenSupplyForStage, params.MaxTokenSupplyForStage, bounds.MaxMaxTokenSupplyForStage)
	}
	if params.FeeBps < bounds.MinFeeBps {
		return fmt.Errorf("%w: got %d, minimum %d", ErrInvalidSignedFeeBps, params.FeeBps, bounds.MinFeeBps)
	}
	if params.FeeBps > bounds.MaxFeeBps {
		return fmt.Errorf("%w: got %d, maximum %d", ErrInvalidSignedFeeBps, params.FeeBps, bounds.MaxFeeBps)
	}
	return nil
}

func (e *Engine) checkFeeRecipient(collection, feeRecipient [20]byte, restricted bool) error {
	if isZeroAddress(feeRecipient) {
		return ErrFeeRecipientCannotBeZeroAddress
	}
	if !restricted {
		return nil
	}
	allowed, err := e.registry.FeeRecipientAllowed(collection, feeRecipient)
	if err != nil {
		return err
	}
	if !allowed {
		return fmt.Errorf("%w: %x", ErrFeeRecipientNotAllowed, feeRecipient)
	}
	return nil
}

// --- Settlement ---

// settle splits the payment between the fee recipient and the creator by
// basis points, rounding the fee down in the creator's favor. It runs inside
// the same guard and snapshot as the mint itself.
func (e *Engine) settle(collection, payer, feeRecipient [20]byte, feeBps uint16, payment *big.Int) error {
	if feeBps > maxFeeBasisPoints {
		return fmt.Errorf("%w: got %d", ErrInvalidFeeBps, feeBps)
	}
	creator, err := e.registry.CreatorPayoutAddress(collection)
	if err != nil {
		return err
	}
	if isZeroAddress(creator) {
		return ErrCreatorPayoutAddressCannotBeZeroAddress
	}
	if payment.Sign() == 0 {
		return nil
	}
	if err := e.debit(payer, payment); err != nil {
		return err
	}
	fee := new(big.Int).Mul(payment, new(big.Int).SetUint64(uint64(feeBps)))
	fee.Div(fee, big.NewInt(10_000))
	creatorShare := new(big.Int).Sub(payment, fee)
	if fee.Sign() > 0 {
		if err := e.pay(payer, feeRecipient, fee); err != nil {
			return err
		}
	}
	if creatorShare.Sign() > 0 {
		if err := e.pay(payer, creator, creatorShare); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) debit(payer [20]byte, amount *big.Int) error {
	account, err := e.state.GetAccount(payer[:])
	if err != nil {
		return err
	}
	if account.Balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: balance %s, need %s", ErrInsufficientPayerBalance, account.Balance, amount)
	}
	account.Balance = new(big.Int).Sub(account.Balance, amount)
	return e.state.PutAccount(payer[:], account)
}

// pay credits the receiver and then runs its payment sink, if one is
// registered. A sink failure rejects the whole transfer.
func (e *Engine) pay(from, to [20]byte, amount *big.Int) error {
	account, err := e.state.GetAccount(to[:])
	if err != nil {
		return err
	}
	account.Balance = new(big.Int).Add(account.Balance, amount)
	if err := e.state.PutAccount(to[:], account); err != nil {
		return err
	}
	if e.sinks != nil {
		if sink, ok := e.sinks.PaymentSink(to); ok {
			if err := sink.ReceivePayment(from, amount); err != nil {
				return fmt.Errorf("%w: %x: %v", ErrPaymentRejected, to, err)
			}
		}
	}
	return nil
}
