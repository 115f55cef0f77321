package core

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"mintgate/core/events"
	"mintgate/core/state"
	"mintgate/core/types"
	"mintgate/crypto"
	"mintgate/native/common"
	"mintgate/native/drop"
	"mintgate/native/droptoken"
	"mintgate/observability"
	"mintgate/storage"
)

var genesisAppliedKey = []byte("genesis/applied")

// EventEnvelope is a flattened module event with its position in the node's
// event stream. Sequence numbers start at 1 and never repeat.
type EventEnvelope struct {
	Sequence  uint64       `json:"sequence"`
	Timestamp int64        `json:"timestamp"`
	Event     *types.Event `json:"event"`
}

// Options configures a node.
type Options struct {
	ChainID     uint64
	NetworkName string
	// Pauses switches modules off by name ("drop", "token").
	Pauses map[string]bool
	// Backlog bounds the retained event window replayed to new subscribers.
	Backlog int
	Logger  *slog.Logger
	// NowFunc overrides the clock, mainly for tests.
	NowFunc func() int64
}

// Node is the central controller: it serializes every state-changing
// operation, wires the mint engine to the registry and the collection
// ledger over one state manager per operation, and fans committed events
// out to stream subscribers.
type Node struct {
	mu      sync.Mutex
	db      storage.Database
	hasher  *drop.Hasher
	chainID uint64
	network string
	pauses  common.StaticPauses
	logger  *slog.Logger
	nowFn   func() int64

	// pending collects events emitted during the operation currently
	// holding mu; they publish only after the commit succeeds.
	pending []events.Event

	subMu       sync.Mutex
	seq         uint64
	backlog     []EventEnvelope
	backlogCap  int
	subscribers map[uint64]chan EventEnvelope
	nextSubID   uint64
}

// NewNode creates a node over the provided database.
func NewNode(db storage.Database, opts Options) (*Node, error) {
	if db == nil {
		return nil, fmt.Errorf("node: database must not be nil")
	}
	if opts.ChainID == 0 {
		return nil, fmt.Errorf("node: chain id must not be zero")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	nowFn := opts.NowFunc
	if nowFn == nil {
		nowFn = func() int64 { return time.Now().Unix() }
	}
	backlogCap := opts.Backlog
	if backlogCap <= 0 {
		backlogCap = 256
	}
	pauses := common.StaticPauses{}
	for name, paused := range opts.Pauses {
		pauses[name] = paused
	}
	return &Node{
		db:          db,
		hasher:      drop.NewHasher(opts.ChainID, drop.RegistryAddress()),
		chainID:     opts.ChainID,
		network:     opts.NetworkName,
		pauses:      pauses,
		logger:      logger,
		nowFn:       nowFn,
		backlogCap:  backlogCap,
		subscribers: make(map[uint64]chan EventEnvelope),
	}, nil
}

// ChainID exposes the chain identifier the typed-data domain binds to.
func (n *Node) ChainID() uint64 { return n.chainID }

// NetworkName returns the configured network label.
func (n *Node) NetworkName() string { return n.network }

// RegistryModuleAddress returns the verifying-contract address of the shared
// drop registry.
func (n *Node) RegistryModuleAddress() [20]byte { return drop.RegistryAddress() }

// Hasher exposes the typed-data hasher for digest previews.
func (n *Node) Hasher() *drop.Hasher { return n.hasher }

// nodeEmitter buffers module events on the node until the surrounding
// operation commits.
type nodeEmitter struct {
	node *Node
}

func (e nodeEmitter) Emit(evt events.Event) {
	if e.node == nil || evt == nil {
		return
	}
	e.node.pending = append(e.node.pending, evt)
}

func (n *Node) newTokenStack(manager *state.Manager) (*drop.Registry, *droptoken.Ledger) {
	registry := drop.NewRegistry(manager)
	registry.SetEmitter(nodeEmitter{node: n})
	ledger := droptoken.NewLedger(manager, registry.ModuleAddress())
	ledger.SetEmitter(nodeEmitter{node: n})
	return registry, ledger
}

func (n *Node) newDropEngine(manager *state.Manager) (*drop.Engine, *drop.Registry, *droptoken.Ledger) {
	registry, ledger := n.newTokenStack(manager)
	engine := drop.NewEngine()
	engine.SetState(manager)
	engine.SetRegistry(registry)
	engine.SetCollections(ledger)
	engine.SetEmitter(nodeEmitter{node: n})
	engine.SetHasher(n.hasher)
	engine.SetPauses(n.pauses)
	engine.SetNowFunc(n.nowFn)
	return engine, registry, ledger
}

// apply runs one state-changing operation to completion: fresh manager,
// operation, commit, event publication. A failed operation publishes
// nothing; its manager is discarded with all uncommitted writes.
func (n *Node) apply(op func(manager *state.Manager) error) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	manager := state.NewManager(n.db)
	n.pending = n.pending[:0]
	if err := op(manager); err != nil {
		n.pending = n.pending[:0]
		return err
	}
	if err := manager.Commit(); err != nil {
		n.pending = n.pending[:0]
		return fmt.Errorf("node: commit: %w", err)
	}
	n.publish(n.pending)
	n.pending = n.pending[:0]
	return nil
}

// view runs a read-only accessor against committed state.
func (n *Node) view(fn func(manager *state.Manager, registry *drop.Registry, ledger *droptoken.Ledger) error) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	manager := state.NewManager(n.db)
	registry, ledger := n.newTokenStack(manager)
	return fn(manager, registry, ledger)
}

// InitGenesis seeds account balances exactly once per data directory.
func (n *Node) InitGenesis(alloc map[[20]byte]*big.Int) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	manager := state.NewManager(n.db)
	var applied bool
	ok, err := manager.KVGet(genesisAppliedKey, &applied)
	if err != nil {
		return err
	}
	if ok && applied {
		return nil
	}
	for addr, amount := range alloc {
		account, err := manager.GetAccount(addr[:])
		if err != nil {
			return err
		}
		account.Balance = new(big.Int).Set(amount)
		if err := manager.PutAccount(addr[:], account); err != nil {
			return err
		}
	}
	if err := manager.KVPut(genesisAppliedKey, true); err != nil {
		return err
	}
	if err := manager.Commit(); err != nil {
		return fmt.Errorf("node: genesis commit: %w", err)
	}
	n.logger.Info("applied genesis allocation", "accounts", len(alloc))
	return nil
}

// --- Mint operations ---

// MintSigned applies a signed mint authorization submitted by caller.
func (n *Node) MintSigned(caller [20]byte, req *drop.SignedMintRequest) error {
	start := time.Now()
	var collection [20]byte
	var quantity, supply uint64
	if req != nil {
		collection = req.Collection
		quantity = req.Quantity
	}

	err := n.apply(func(manager *state.Manager) error {
		engine, _, ledger := n.newDropEngine(manager)
		if err := engine.MintSigned(caller, req); err != nil {
			return err
		}
		if info, infoErr := ledger.Info(collection); infoErr == nil {
			supply = info.TotalSupply
		}
		return nil
	})

	n.observeMint("signed", collection, quantity, supply, time.Since(start), err)
	return err
}

// MintPublic applies a public-stage mint submitted by caller.
func (n *Node) MintPublic(caller [20]byte, req *drop.PublicMintRequest) error {
	start := time.Now()
	var collection [20]byte
	var quantity, supply uint64
	if req != nil {
		collection = req.Collection
		quantity = req.Quantity
	}

	err := n.apply(func(manager *state.Manager) error {
		engine, _, ledger := n.newDropEngine(manager)
		if err := engine.MintPublic(caller, req); err != nil {
			return err
		}
		if info, infoErr := ledger.Info(collection); infoErr == nil {
			supply = info.TotalSupply
		}
		return nil
	})

	n.observeMint("public", collection, quantity, supply, time.Since(start), err)
	return err
}

func (n *Node) observeMint(stage string, collection [20]byte, quantity, supply uint64, elapsed time.Duration, err error) {
	label := bechAddress(collection)
	observability.Mint().ObserveMint(stage, quantity, elapsed, mintReason(err))
	if err != nil {
		if errors.Is(err, drop.ErrSignatureAlreadyUsed) {
			observability.Mint().RecordReplay()
		}
		n.logger.Warn("mint rejected",
			"stage", stage,
			"collection", label,
			"quantity", quantity,
			"reason", mintReason(err),
			"error", err,
		)
		return
	}
	observability.Mint().RecordSupply(label, supply)
	n.logger.Info("mint settled",
		"stage", stage,
		"collection", label,
		"quantity", quantity,
		"totalSupply", supply,
	)
}

// --- Collection lifecycle and delegated administration ---

// CreateCollection registers a new collection and returns its derived
// address.
func (n *Node) CreateCollection(owner [20]byte, cfg droptoken.Config) ([20]byte, error) {
	var addr [20]byte
	err := n.apply(func(manager *state.Manager) error {
		_, ledger := n.newTokenStack(manager)
		created, err := ledger.Create(owner, cfg)
		if err != nil {
			return err
		}
		addr = created
		return nil
	})
	if err != nil {
		return [20]byte{}, err
	}
	observability.Mint().RecordSupply(bechAddress(addr), 0)
	n.logger.Info("collection created",
		"collection", bechAddress(addr),
		"owner", bechAddress(owner),
		"name", cfg.Name,
		"maxSupply", cfg.MaxSupply,
	)
	return addr, nil
}

// tokenUpdate resolves the collection facade and runs one delegated
// administrative call against the registry.
func (n *Node) tokenUpdate(collection [20]byte, fn func(token *droptoken.Token, registry *drop.Registry) error) error {
	return n.apply(func(manager *state.Manager) error {
		registry, ledger := n.newTokenStack(manager)
		token, err := ledger.Token(collection)
		if err != nil {
			return err
		}
		return fn(token, registry)
	})
}

func (n *Node) TokenUpdateDropURI(caller, collection [20]byte, uri string) error {
	return n.tokenUpdate(collection, func(token *droptoken.Token, registry *drop.Registry) error {
		return token.UpdateDropURI(caller, registry, uri)
	})
}

func (n *Node) TokenUpdateCreatorPayoutAddress(caller, collection, payout [20]byte) error {
	return n.tokenUpdate(collection, func(token *droptoken.Token, registry *drop.Registry) error {
		return token.UpdateCreatorPayoutAddress(caller, registry, payout)
	})
}

func (n *Node) TokenUpdateAllowedFeeRecipient(caller, collection, feeRecipient [20]byte, allowed bool) error {
	return n.tokenUpdate(collection, func(token *droptoken.Token, registry *drop.Registry) error {
		return token.UpdateAllowedFeeRecipient(caller, registry, feeRecipient, allowed)
	})
}

func (n *Node) TokenUpdatePayer(caller, collection, payer [20]byte, allowed bool) error {
	return n.tokenUpdate(collection, func(token *droptoken.Token, registry *drop.Registry) error {
		return token.UpdatePayer(caller, registry, payer, allowed)
	})
}

func (n *Node) TokenUpdateSignedMintValidationParams(caller, collection, signer [20]byte, params *drop.SignedMintValidationParams) error {
	return n.tokenUpdate(collection, func(token *droptoken.Token, registry *drop.Registry) error {
		return token.UpdateSignedMintValidationParams(caller, registry, signer, params)
	})
}

func (n *Node) TokenUpdatePublicDrop(caller, collection [20]byte, publicDrop *drop.PublicDrop) error {
	return n.tokenUpdate(collection, func(token *droptoken.Token, registry *drop.Registry) error {
		return token.UpdatePublicDrop(caller, registry, publicDrop)
	})
}

func (n *Node) TokenUpdateAllowList(caller, collection [20]byte, data *drop.AllowListData) error {
	return n.tokenUpdate(collection, func(token *droptoken.Token, registry *drop.Registry) error {
		return token.UpdateAllowList(caller, registry, data)
	})
}

func (n *Node) TokenUpdateTokenGatedDrop(caller, collection, allowedToken [20]byte, stage *drop.TokenGatedDropStage) error {
	return n.tokenUpdate(collection, func(token *droptoken.Token, registry *drop.Registry) error {
		return token.UpdateTokenGatedDrop(caller, registry, allowedToken, stage)
	})
}

func (n *Node) TokenUpdateAllowedRegistry(caller, collection, registry [20]byte, allowed bool) error {
	return n.tokenUpdate(collection, func(token *droptoken.Token, _ *drop.Registry) error {
		return token.UpdateAllowedRegistry(caller, registry, allowed)
	})
}

// --- Read accessors ---

// BalanceOf returns the account balance for addr.
func (n *Node) BalanceOf(addr [20]byte) (*big.Int, error) {
	var balance *big.Int
	err := n.view(func(manager *state.Manager, _ *drop.Registry, _ *droptoken.Ledger) error {
		account, err := manager.GetAccount(addr[:])
		if err != nil {
			return err
		}
		balance = account.Balance
		return nil
	})
	return balance, err
}

// CollectionInfo returns the stored collection record.
func (n *Node) CollectionInfo(collection [20]byte) (*droptoken.Info, error) {
	var info *droptoken.Info
	err := n.view(func(_ *state.Manager, _ *drop.Registry, ledger *droptoken.Ledger) error {
		loaded, err := ledger.Info(collection)
		if err != nil {
			return err
		}
		info = loaded
		return nil
	})
	return info, err
}

// WalletMinted returns the lifetime mint count for a wallet in a collection.
func (n *Node) WalletMinted(collection, wallet [20]byte) (uint64, error) {
	var minted uint64
	err := n.view(func(_ *state.Manager, _ *drop.Registry, ledger *droptoken.Ledger) error {
		count, err := ledger.WalletMinted(collection, wallet)
		if err != nil {
			return err
		}
		minted = count
		return nil
	})
	return minted, err
}

// CreatorPayoutAddress returns the configured payout address, zero when
// unset.
func (n *Node) CreatorPayoutAddress(collection [20]byte) ([20]byte, error) {
	var payout [20]byte
	err := n.view(func(_ *state.Manager, registry *drop.Registry, _ *droptoken.Ledger) error {
		addr, err := registry.CreatorPayoutAddress(collection)
		if err != nil {
			return err
		}
		payout = addr
		return nil
	})
	return payout, err
}

// AllowedFeeRecipients enumerates the collection's fee-recipient set.
func (n *Node) AllowedFeeRecipients(collection [20]byte) ([][20]byte, error) {
	var list [][20]byte
	err := n.view(func(_ *state.Manager, registry *drop.Registry, _ *droptoken.Ledger) error {
		entries, err := registry.AllowedFeeRecipients(collection)
		if err != nil {
			return err
		}
		list = entries
		return nil
	})
	return list, err
}

// FeeRecipientAllowed reports fee-recipient set membership.
func (n *Node) FeeRecipientAllowed(collection, feeRecipient [20]byte) (bool, error) {
	var allowed bool
	err := n.view(func(_ *state.Manager, registry *drop.Registry, _ *droptoken.Ledger) error {
		member, err := registry.FeeRecipientAllowed(collection, feeRecipient)
		if err != nil {
			return err
		}
		allowed = member
		return nil
	})
	return allowed, err
}

// Payers enumerates the collection's allowed-payer set.
func (n *Node) Payers(collection [20]byte) ([][20]byte, error) {
	var list [][20]byte
	err := n.view(func(_ *state.Manager, registry *drop.Registry, _ *droptoken.Ledger) error {
		entries, err := registry.Payers(collection)
		if err != nil {
			return err
		}
		list = entries
		return nil
	})
	return list, err
}

// PayerAllowed reports allowed-payer set membership.
func (n *Node) PayerAllowed(collection, payer [20]byte) (bool, error) {
	var allowed bool
	err := n.view(func(_ *state.Manager, registry *drop.Registry, _ *droptoken.Ledger) error {
		member, err := registry.PayerAllowed(collection, payer)
		if err != nil {
			return err
		}
		allowed = member
		return nil
	})
	return allowed, err
}

// Signers enumerates the collection's registered signers.
func (n *Node) Signers(collection [20]byte) ([][20]byte, error) {
	var list [][20]byte
	err := n.view(func(_ *state.Manager, registry *drop.Registry, _ *droptoken.Ledger) error {
		entries, err := registry.Signers(collection)
		if err != nil {
			return err
		}
		list = entries
		return nil
	})
	return list, err
}

// SignerValidationParams returns the envelope bound to one signer.
func (n *Node) SignerValidationParams(collection, signer [20]byte) (*drop.SignedMintValidationParams, bool, error) {
	var params *drop.SignedMintValidationParams
	var ok bool
	err := n.view(func(_ *state.Manager, registry *drop.Registry, _ *droptoken.Ledger) error {
		loaded, found, err := registry.SignerValidationParams(collection, signer)
		if err != nil {
			return err
		}
		params, ok = loaded, found
		return nil
	})
	return params, ok, err
}

// DropURI returns the collection's drop metadata URI.
func (n *Node) DropURI(collection [20]byte) (string, error) {
	var uri string
	err := n.view(func(_ *state.Manager, registry *drop.Registry, _ *droptoken.Ledger) error {
		stored, err := registry.DropURI(collection)
		if err != nil {
			return err
		}
		uri = stored
		return nil
	})
	return uri, err
}

// PublicDrop returns the stored public stage, if configured.
func (n *Node) PublicDrop(collection [20]byte) (*drop.PublicDrop, bool, error) {
	var publicDrop *drop.PublicDrop
	var ok bool
	err := n.view(func(_ *state.Manager, registry *drop.Registry, _ *droptoken.Ledger) error {
		stored, found, err := registry.PublicDrop(collection)
		if err != nil {
			return err
		}
		publicDrop, ok = stored, found
		return nil
	})
	return publicDrop, ok, err
}

// AllowList returns the stored allow-list data, if configured.
func (n *Node) AllowList(collection [20]byte) (*drop.AllowListData, bool, error) {
	var data *drop.AllowListData
	var ok bool
	err := n.view(func(_ *state.Manager, registry *drop.Registry, _ *droptoken.Ledger) error {
		stored, found, err := registry.AllowList(collection)
		if err != nil {
			return err
		}
		data, ok = stored, found
		return nil
	})
	return data, ok, err
}

// TokenGatedTokens enumerates the gating tokens with configured stages.
func (n *Node) TokenGatedTokens(collection [20]byte) ([][20]byte, error) {
	var list [][20]byte
	err := n.view(func(_ *state.Manager, registry *drop.Registry, _ *droptoken.Ledger) error {
		entries, err := registry.TokenGatedTokens(collection)
		if err != nil {
			return err
		}
		list = entries
		return nil
	})
	return list, err
}

// TokenGatedDrop returns the stage configured for one gating token.
func (n *Node) TokenGatedDrop(collection, allowedToken [20]byte) (*drop.TokenGatedDropStage, bool, error) {
	var stage *drop.TokenGatedDropStage
	var ok bool
	err := n.view(func(_ *state.Manager, registry *drop.Registry, _ *droptoken.Ledger) error {
		stored, found, err := registry.TokenGatedDrop(collection, allowedToken)
		if err != nil {
			return err
		}
		stage, ok = stored, found
		return nil
	})
	return stage, ok, err
}

// TokenGatedRedeemed reports whether a gating token id has been redeemed.
func (n *Node) TokenGatedRedeemed(collection, allowedToken [20]byte, tokenID *big.Int) (bool, error) {
	var redeemed bool
	err := n.view(func(_ *state.Manager, registry *drop.Registry, _ *droptoken.Ledger) error {
		used, err := registry.TokenGatedRedeemed(collection, allowedToken, tokenID)
		if err != nil {
			return err
		}
		redeemed = used
		return nil
	})
	return redeemed, err
}

// DigestUsed reports whether a typed-data digest has been consumed.
func (n *Node) DigestUsed(digest [32]byte) (bool, error) {
	var used bool
	err := n.view(func(_ *state.Manager, registry *drop.Registry, _ *droptoken.Ledger) error {
		consumed, err := registry.DigestUsed(digest)
		if err != nil {
			return err
		}
		used = consumed
		return nil
	})
	return used, err
}

// MintDigest previews the typed-data digest for a signed mint.
func (n *Node) MintDigest(collection, minter, feeRecipient [20]byte, params *drop.MintParams, salt *big.Int) ([32]byte, error) {
	return n.hasher.MintDigest(collection, minter, feeRecipient, params, salt)
}

// --- Event stream ---

// Sequence returns the sequence number of the last published event.
func (n *Node) Sequence() uint64 {
	n.subMu.Lock()
	defer n.subMu.Unlock()
	return n.seq
}

// Subscribe registers an event stream consumer. Events already retained in
// the backlog with sequence > since replay into the channel first. The
// returned cancel function closes the channel.
func (n *Node) Subscribe(since uint64, buffer int) (<-chan EventEnvelope, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	n.subMu.Lock()
	defer n.subMu.Unlock()

	ch := make(chan EventEnvelope, buffer)
	for _, envelope := range n.backlog {
		if envelope.Sequence <= since {
			continue
		}
		select {
		case ch <- envelope:
		default:
			observability.Events().RecordDropped()
		}
	}

	id := n.nextSubID
	n.nextSubID++
	n.subscribers[id] = ch
	observability.Events().SetSubscribers(len(n.subscribers))

	cancel := func() {
		n.subMu.Lock()
		defer n.subMu.Unlock()
		existing, ok := n.subscribers[id]
		if !ok {
			return
		}
		delete(n.subscribers, id)
		close(existing)
		observability.Events().SetSubscribers(len(n.subscribers))
	}
	return ch, cancel
}

type eventWithPayload interface {
	Event() *types.Event
}

func (n *Node) publish(evts []events.Event) {
	if len(evts) == 0 {
		return
	}
	n.subMu.Lock()
	defer n.subMu.Unlock()

	now := n.nowFn()
	for _, evt := range evts {
		payload, ok := evt.(eventWithPayload)
		if !ok {
			continue
		}
		flattened := payload.Event()
		if flattened == nil {
			continue
		}
		if minted, ok := evt.(events.DropMinted); ok {
			recordSettlementSplit(minted)
		}
		n.seq++
		envelope := EventEnvelope{Sequence: n.seq, Timestamp: now, Event: flattened}
		n.backlog = append(n.backlog, envelope)
		if len(n.backlog) > n.backlogCap {
			n.backlog = n.backlog[len(n.backlog)-n.backlogCap:]
		}
		observability.Events().RecordPublished(flattened.Type)
		for _, ch := range n.subscribers {
			select {
			case ch <- envelope:
			default:
				observability.Events().RecordDropped()
			}
		}
	}
}

// recordSettlementSplit mirrors the engine's fee math for the settlement
// counters: fee rounds down, the remainder goes to the creator.
func recordSettlementSplit(minted events.DropMinted) {
	if minted.UnitPrice == nil || minted.UnitPrice.Sign() == 0 || minted.Quantity == 0 {
		return
	}
	payment := new(big.Int).Mul(minted.UnitPrice, new(big.Int).SetUint64(minted.Quantity))
	fee := new(big.Int).Mul(payment, new(big.Int).SetUint64(uint64(minted.FeeBps)))
	fee.Div(fee, big.NewInt(10_000))
	creator := new(big.Int).Sub(payment, fee)
	observability.Mint().RecordSettlement(fee, creator)
}

func bechAddress(addr [20]byte) string {
	return crypto.MustNewAddress(crypto.MintPrefix, addr[:]).String()
}

// mintReason maps a mint failure onto a stable metrics label. Success maps
// to the empty string.
func mintReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, drop.ErrStageNotActive):
		return "stage_not_active"
	case errors.Is(err, drop.ErrIncorrectPayment):
		return "incorrect_payment"
	case errors.Is(err, drop.ErrPayerNotAllowed):
		return "payer_not_allowed"
	case errors.Is(err, drop.ErrQuantityCannotBeZero):
		return "quantity_zero"
	case errors.Is(err, drop.ErrExceedsMaxMintedPerWallet):
		return "wallet_limit"
	case errors.Is(err, drop.ErrExceedsMaxSupply):
		return "max_supply"
	case errors.Is(err, drop.ErrExceedsMaxTokenSupplyForStage):
		return "stage_supply"
	case errors.Is(err, drop.ErrSignatureAlreadyUsed):
		return "signature_replay"
	case errors.Is(err, drop.ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, drop.ErrSignedMintsMustRestrictFeeRecipients):
		return "unrestricted_fee_recipients"
	case errors.Is(err, drop.ErrFeeRecipientCannotBeZeroAddress),
		errors.Is(err, drop.ErrFeeRecipientNotAllowed):
		return "fee_recipient"
	case errors.Is(err, drop.ErrInvalidSignedMintPrice),
		errors.Is(err, drop.ErrInvalidSignedMaxTotalMintableByWallet),
		errors.Is(err, drop.ErrInvalidSignedStartTime),
		errors.Is(err, drop.ErrInvalidSignedEndTime),
		errors.Is(err, drop.ErrInvalidSignedMaxTokenSupplyForStage),
		errors.Is(err, drop.ErrInvalidSignedFeeBps):
		return "signer_envelope"
	case errors.Is(err, drop.ErrInvalidFeeBps),
		errors.Is(err, drop.ErrCreatorPayoutAddressCannotBeZeroAddress),
		errors.Is(err, drop.ErrInsufficientPayerBalance),
		errors.Is(err, drop.ErrPaymentRejected):
		return "settlement"
	case errors.Is(err, drop.ErrReentrantCall):
		return "reentrant"
	case errors.Is(err, drop.ErrUnknownCollection):
		return "unknown_collection"
	case errors.Is(err, common.ErrModulePaused):
		return "module_paused"
	default:
		return "rejected"
	}
}
