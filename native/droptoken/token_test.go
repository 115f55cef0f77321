package droptoken

import (
	"errors"
	"testing"

	"mintgate/core/state"
	"mintgate/native/drop"
	"mintgate/storage"
)

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

func newTokenFixture(t *testing.T) (*drop.Registry, *Ledger) {
	t.Helper()
	manager := state.NewManager(storage.NewMemDB())
	registry := drop.NewRegistry(manager)
	ledger := NewLedger(manager, drop.RegistryAddress())
	return registry, ledger
}

func mustCreate(t *testing.T, ledger *Ledger, owner [20]byte, cfg Config) *Token {
	t.Helper()
	addr, err := ledger.Create(owner, cfg)
	if err != nil {
		t.Fatalf("create collection: %v", err)
	}
	token, err := ledger.Token(addr)
	if err != nil {
		t.Fatalf("token handle: %v", err)
	}
	return token
}

func TestCreateValidations(t *testing.T) {
	_, ledger := newTokenFixture(t)
	owner := newTestAddress(0x01)

	if _, err := ledger.Create([20]byte{}, Config{Name: "x", MaxSupply: 1}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("zero owner: got %v", err)
	}
	if _, err := ledger.Create(owner, Config{Name: "   ", MaxSupply: 1}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("blank name: got %v", err)
	}
	if _, err := ledger.Create(owner, Config{Name: "x", Variant: RoleVariant(9)}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("unknown variant: got %v", err)
	}
	if _, err := ledger.Create(owner, Config{Name: "x", Variant: RoleOwnerAdministrator}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("missing administrator: got %v", err)
	}
	if _, err := ledger.Create(owner, Config{Name: "x", AllowedRegistries: [][20]byte{{}}}); !errors.Is(err, ErrRegistryCannotBeZeroAddress) {
		t.Fatalf("zero registry: got %v", err)
	}
	dup := newTestAddress(0xAA)
	if _, err := ledger.Create(owner, Config{Name: "x", AllowedRegistries: [][20]byte{dup, dup}}); !errors.Is(err, ErrDuplicateAllowedRegistry) {
		t.Fatalf("duplicate registry: got %v", err)
	}
}

func TestCreateDerivesDistinctAddresses(t *testing.T) {
	_, ledger := newTokenFixture(t)
	owner := newTestAddress(0x01)

	first, err := ledger.Create(owner, Config{Name: "Genesis Pass", MaxSupply: 100})
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	second, err := ledger.Create(owner, Config{Name: "Genesis Pass", MaxSupply: 100})
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if first == second {
		t.Fatal("repeated create produced the same address")
	}

	info, err := ledger.Info(first)
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if info.Name != "Genesis Pass" || info.Owner != owner || info.MaxSupply != 100 {
		t.Fatalf("info: got %+v", info)
	}
	if len(info.AllowedRegistries) != 1 || info.AllowedRegistries[0] != drop.RegistryAddress() {
		t.Fatalf("default allowed registries: got %v", info.AllowedRegistries)
	}
	if info.Variant != RoleOwnerOnly {
		t.Fatalf("default variant: got %d", info.Variant)
	}
}

func TestResolverReportsUnknownCollections(t *testing.T) {
	_, ledger := newTokenFixture(t)
	if _, ok := ledger.Collection(newTestAddress(0x99)); ok {
		t.Fatal("resolver returned a handle for an unknown address")
	}
	if _, err := ledger.Token(newTestAddress(0x99)); !errors.Is(err, ErrUnknownCollection) {
		t.Fatalf("token handle for unknown address: got %v", err)
	}
}

func TestMintToBookkeeping(t *testing.T) {
	_, ledger := newTokenFixture(t)
	owner := newTestAddress(0x01)
	minter := newTestAddress(0x02)
	token := mustCreate(t, ledger, owner, Config{Name: "Genesis Pass", MaxSupply: 10})

	if err := token.MintTo(minter, 3); err != nil {
		t.Fatalf("mint: %v", err)
	}
	stats, err := token.MintStats(minter)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.MinterMinted != 3 || stats.TotalSupply != 3 || stats.MaxSupply != 10 {
		t.Fatalf("stats: got %+v", stats)
	}

	other := newTestAddress(0x03)
	if err := token.MintTo(other, 2); err != nil {
		t.Fatalf("second mint: %v", err)
	}
	stats, err = token.MintStats(other)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.MinterMinted != 2 || stats.TotalSupply != 5 {
		t.Fatalf("stats after second mint: got %+v", stats)
	}

	minted, err := ledger.WalletMinted(token.Address(), minter)
	if err != nil {
		t.Fatalf("wallet minted: %v", err)
	}
	if minted != 3 {
		t.Fatalf("wallet minted: got %d, want 3", minted)
	}
}

func TestMintToMaxSupply(t *testing.T) {
	_, ledger := newTokenFixture(t)
	owner := newTestAddress(0x01)
	minter := newTestAddress(0x02)
	token := mustCreate(t, ledger, owner, Config{Name: "Genesis Pass", MaxSupply: 5})

	if err := token.MintTo(minter, 5); err != nil {
		t.Fatalf("mint to ceiling: %v", err)
	}
	if err := token.MintTo(minter, 1); !errors.Is(err, ErrExceedsMaxSupply) {
		t.Fatalf("mint past ceiling: got %v", err)
	}
}

func TestMintToRequiresAllowedAuthority(t *testing.T) {
	_, ledger := newTokenFixture(t)
	owner := newTestAddress(0x01)
	foreign := newTestAddress(0xAB)
	token := mustCreate(t, ledger, owner, Config{
		Name:              "Genesis Pass",
		MaxSupply:         5,
		AllowedRegistries: [][20]byte{foreign},
	})

	err := token.MintTo(newTestAddress(0x02), 1)
	if !errors.Is(err, ErrOnlyAllowedRegistry) {
		t.Fatalf("mint under unlisted authority: got %v", err)
	}
}

// countsObserver records the stats visible from inside the mint hook.
type countsObserver struct {
	token *Token
	stats drop.MintStats
	err   error
}

func (o *countsObserver) OnTokensMinted(collection, minter [20]byte, quantity uint64) error {
	o.stats, o.err = o.token.MintStats(minter)
	return o.err
}

func TestMintObserverSeesPersistedCounters(t *testing.T) {
	_, ledger := newTokenFixture(t)
	owner := newTestAddress(0x01)
	minter := newTestAddress(0x02)
	token := mustCreate(t, ledger, owner, Config{Name: "Genesis Pass", MaxSupply: 10})

	observer := &countsObserver{token: token}
	ledger.SetMintObserver(observer)
	if err := token.MintTo(minter, 4); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if observer.err != nil {
		t.Fatalf("observer stats: %v", observer.err)
	}
	if observer.stats.MinterMinted != 4 || observer.stats.TotalSupply != 4 {
		t.Fatalf("observer saw stale counters: %+v", observer.stats)
	}
}

// reentrantObserver re-invokes MintTo from inside the mint hook.
type reentrantObserver struct {
	token *Token
	inner error
}

func (o *reentrantObserver) OnTokensMinted(collection, minter [20]byte, quantity uint64) error {
	o.inner = o.token.MintTo(minter, 1)
	return o.inner
}

func TestMintToReentrancyGuard(t *testing.T) {
	_, ledger := newTokenFixture(t)
	owner := newTestAddress(0x01)
	minter := newTestAddress(0x02)
	token := mustCreate(t, ledger, owner, Config{Name: "Genesis Pass", MaxSupply: 10})

	observer := &reentrantObserver{token: token}
	ledger.SetMintObserver(observer)
	err := token.MintTo(minter, 1)
	if !errors.Is(err, ErrReentrantMint) {
		t.Fatalf("outer mint: got %v", err)
	}
	if !errors.Is(observer.inner, ErrReentrantMint) {
		t.Fatalf("inner mint: got %v", observer.inner)
	}
}

func TestOwnerOnlyRoleChecks(t *testing.T) {
	registry, ledger := newTokenFixture(t)
	owner := newTestAddress(0x01)
	stranger := newTestAddress(0x03)
	token := mustCreate(t, ledger, owner, Config{Name: "Genesis Pass", MaxSupply: 10})

	if err := token.UpdateDropURI(stranger, registry, "ipfs://x"); !errors.Is(err, ErrOnlyOwner) {
		t.Fatalf("stranger drop uri: got %v", err)
	}
	if err := token.UpdateAllowedFeeRecipient(stranger, registry, newTestAddress(0x04), true); !errors.Is(err, ErrOnlyOwner) {
		t.Fatalf("stranger fee recipient: got %v", err)
	}
	if err := token.UpdateAllowedRegistry(stranger, newTestAddress(0x05), true); !errors.Is(err, ErrOnlyOwner) {
		t.Fatalf("stranger allowed registry: got %v", err)
	}
	if err := token.UpdateDropURI(owner, registry, "ipfs://x"); err != nil {
		t.Fatalf("owner drop uri: %v", err)
	}
}

func TestOwnerAdministratorRoleChecks(t *testing.T) {
	registry, ledger := newTokenFixture(t)
	owner := newTestAddress(0x01)
	admin := newTestAddress(0x02)
	stranger := newTestAddress(0x03)
	token := mustCreate(t, ledger, owner, Config{
		Name:          "Partner Pass",
		Administrator: admin,
		Variant:       RoleOwnerAdministrator,
		MaxSupply:     10,
	})

	// Fee recipients and signers are administrator business.
	if err := token.UpdateAllowedFeeRecipient(owner, registry, newTestAddress(0x04), true); !errors.Is(err, ErrOnlyAdministrator) {
		t.Fatalf("owner fee recipient: got %v", err)
	}
	if err := token.UpdateSignedMintValidationParams(owner, registry, newTestAddress(0x05), &drop.SignedMintValidationParams{MaxMaxTotalMintableByWallet: 1}); !errors.Is(err, ErrOnlyAdministrator) {
		t.Fatalf("owner signer update: got %v", err)
	}
	if err := token.UpdateAllowedFeeRecipient(admin, registry, newTestAddress(0x04), true); err != nil {
		t.Fatalf("admin fee recipient: %v", err)
	}

	// Everything else takes either role.
	if err := token.UpdateDropURI(stranger, registry, "ipfs://x"); !errors.Is(err, ErrOnlyOwnerOrAdministrator) {
		t.Fatalf("stranger drop uri: got %v", err)
	}
	if err := token.UpdateDropURI(admin, registry, "ipfs://by-admin"); err != nil {
		t.Fatalf("admin drop uri: %v", err)
	}
	if err := token.UpdateCreatorPayoutAddress(owner, registry, newTestAddress(0x06)); err != nil {
		t.Fatalf("owner creator payout: %v", err)
	}
	if err := token.UpdatePayer(admin, registry, newTestAddress(0x07), true); err != nil {
		t.Fatalf("admin payer: %v", err)
	}

	// The registry allow-list itself stays with the owner.
	if err := token.UpdateAllowedRegistry(admin, newTestAddress(0x08), true); !errors.Is(err, ErrOnlyOwner) {
		t.Fatalf("admin allowed registry: got %v", err)
	}
}

func TestFacadeDelegatesThroughRegistry(t *testing.T) {
	registry, ledger := newTokenFixture(t)
	owner := newTestAddress(0x01)
	token := mustCreate(t, ledger, owner, Config{Name: "Genesis Pass", MaxSupply: 10})

	if err := token.UpdateDropURI(owner, registry, "ipfs://bafy/drop.json"); err != nil {
		t.Fatalf("delegate drop uri: %v", err)
	}
	uri, err := registry.DropURI(token.Address())
	if err != nil {
		t.Fatalf("read uri: %v", err)
	}
	if uri != "ipfs://bafy/drop.json" {
		t.Fatalf("uri: got %q", uri)
	}

	creator := newTestAddress(0x44)
	if err := token.UpdateCreatorPayoutAddress(owner, registry, creator); err != nil {
		t.Fatalf("delegate creator payout: %v", err)
	}
	payout, err := registry.CreatorPayoutAddress(token.Address())
	if err != nil {
		t.Fatalf("read payout: %v", err)
	}
	if payout != creator {
		t.Fatalf("payout: got %x, want %x", payout, creator)
	}

	if err := token.UpdateDropURI(owner, nil, "ipfs://x"); err == nil {
		t.Fatal("nil registry accepted")
	}
}

func TestFacadeRejectsUnlistedRegistry(t *testing.T) {
	registry, ledger := newTokenFixture(t)
	owner := newTestAddress(0x01)
	token := mustCreate(t, ledger, owner, Config{
		Name:              "Genesis Pass",
		MaxSupply:         10,
		AllowedRegistries: [][20]byte{newTestAddress(0xAB)},
	})

	err := token.UpdateDropURI(owner, registry, "ipfs://x")
	if !errors.Is(err, ErrOnlyAllowedRegistry) {
		t.Fatalf("unlisted registry: got %v", err)
	}

	// Allow-listing the registry unblocks delegation and minting.
	if err := token.UpdateAllowedRegistry(owner, registry.ModuleAddress(), true); err != nil {
		t.Fatalf("allow registry: %v", err)
	}
	if err := token.UpdateDropURI(owner, registry, "ipfs://x"); err != nil {
		t.Fatalf("delegation after allow-listing: %v", err)
	}
	if err := token.MintTo(newTestAddress(0x02), 1); err != nil {
		t.Fatalf("mint after allow-listing: %v", err)
	}
}

func TestUpdateAllowedRegistryProtocol(t *testing.T) {
	_, ledger := newTokenFixture(t)
	owner := newTestAddress(0x01)
	token := mustCreate(t, ledger, owner, Config{Name: "Genesis Pass", MaxSupply: 10})

	extra := newTestAddress(0xAC)
	if err := token.UpdateAllowedRegistry(owner, [20]byte{}, true); !errors.Is(err, ErrRegistryCannotBeZeroAddress) {
		t.Fatalf("zero registry: got %v", err)
	}
	if err := token.UpdateAllowedRegistry(owner, extra, true); err != nil {
		t.Fatalf("add registry: %v", err)
	}
	if err := token.UpdateAllowedRegistry(owner, extra, true); !errors.Is(err, ErrDuplicateAllowedRegistry) {
		t.Fatalf("duplicate add: got %v", err)
	}
	if err := token.UpdateAllowedRegistry(owner, extra, false); err != nil {
		t.Fatalf("remove registry: %v", err)
	}
	if err := token.UpdateAllowedRegistry(owner, extra, false); !errors.Is(err, ErrAllowedRegistryNotPresent) {
		t.Fatalf("remove absent: got %v", err)
	}

	info, err := ledger.Info(token.Address())
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if len(info.AllowedRegistries) != 1 || info.AllowedRegistries[0] != drop.RegistryAddress() {
		t.Fatalf("allowed registries: got %v", info.AllowedRegistries)
	}

	// Removing the last registry cuts off minting entirely.
	if err := token.UpdateAllowedRegistry(owner, drop.RegistryAddress(), false); err != nil {
		t.Fatalf("remove authority: %v", err)
	}
	if err := token.MintTo(newTestAddress(0x02), 1); !errors.Is(err, ErrOnlyAllowedRegistry) {
		t.Fatalf("mint without registries: got %v", err)
	}
}
