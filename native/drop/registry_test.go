package drop

import (
	"errors"
	"math/big"
	"testing"

	"mintgate/core/state"
	"mintgate/storage"
)

func newRegistryFixture(t *testing.T) (*Registry, Tenant, [20]byte) {
	t.Helper()
	manager := state.NewManager(storage.NewMemDB())
	registry := NewRegistry(manager)
	col := &testCollection{store: manager, addr: newTestAddress(0xC1), max: 10}
	tenant, err := registry.Authorize(col)
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	return registry, tenant, col.addr
}

// inertCollection has an address but declares no capabilities.
type inertCollection struct {
	addr [20]byte
}

func (c inertCollection) Address() [20]byte { return c.addr }

func (c inertCollection) SupportsCapability(Capability) bool { return false }

func TestAuthorizeRequiresCapability(t *testing.T) {
	registry, _, _ := newRegistryFixture(t)

	if _, err := registry.Authorize(nil); !errors.Is(err, ErrOnlyCapableCollection) {
		t.Fatalf("nil collection: got %v", err)
	}
	if _, err := registry.Authorize(inertCollection{addr: newTestAddress(0xD1)}); !errors.Is(err, ErrOnlyCapableCollection) {
		t.Fatalf("capability-less collection: got %v", err)
	}
	if _, err := registry.Authorize(inertCollection{}); !errors.Is(err, ErrOnlyCapableCollection) {
		t.Fatalf("zero address: got %v", err)
	}
}

func TestWritesRequireVerifiedTenant(t *testing.T) {
	registry, _, _ := newRegistryFixture(t)

	var forged Tenant
	if err := registry.UpdateCreatorPayoutAddress(forged, newTestAddress(0x01)); !errors.Is(err, ErrOnlyCapableCollection) {
		t.Fatalf("creator payout with forged tenant: got %v", err)
	}
	if err := registry.UpdateAllowedFeeRecipient(forged, newTestAddress(0x01), true); !errors.Is(err, ErrOnlyCapableCollection) {
		t.Fatalf("fee recipient with forged tenant: got %v", err)
	}
	if err := registry.UpdateDropURI(forged, "ipfs://x"); !errors.Is(err, ErrOnlyCapableCollection) {
		t.Fatalf("drop uri with forged tenant: got %v", err)
	}
}

func TestCreatorPayoutRoundTrip(t *testing.T) {
	registry, tenant, collection := newRegistryFixture(t)

	payout, err := registry.CreatorPayoutAddress(collection)
	if err != nil {
		t.Fatalf("unset payout: %v", err)
	}
	if !isZeroAddress(payout) {
		t.Fatalf("unset payout: got %x, want zero", payout)
	}

	want := newTestAddress(0x42)
	if err := registry.UpdateCreatorPayoutAddress(tenant, want); err != nil {
		t.Fatalf("update payout: %v", err)
	}
	payout, err = registry.CreatorPayoutAddress(collection)
	if err != nil {
		t.Fatalf("read payout: %v", err)
	}
	if payout != want {
		t.Fatalf("payout: got %x, want %x", payout, want)
	}

	// Writing zero unsets the destination again.
	if err := registry.UpdateCreatorPayoutAddress(tenant, [20]byte{}); err != nil {
		t.Fatalf("unset payout: %v", err)
	}
	payout, err = registry.CreatorPayoutAddress(collection)
	if err != nil {
		t.Fatalf("read unset payout: %v", err)
	}
	if !isZeroAddress(payout) {
		t.Fatalf("payout after unset: got %x, want zero", payout)
	}
}

func TestFeeRecipientEnumerationConsistency(t *testing.T) {
	registry, tenant, collection := newRegistryFixture(t)

	a := newTestAddress(0x0A)
	b := newTestAddress(0x0B)
	c := newTestAddress(0x0C)
	for _, addr := range [][20]byte{a, b, c} {
		if err := registry.UpdateAllowedFeeRecipient(tenant, addr, true); err != nil {
			t.Fatalf("add %x: %v", addr, err)
		}
	}
	if err := registry.UpdateAllowedFeeRecipient(tenant, b, false); err != nil {
		t.Fatalf("remove b: %v", err)
	}

	listed, err := registry.AllowedFeeRecipients(collection)
	if err != nil {
		t.Fatalf("enumerate: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("enumeration size: got %d, want 2", len(listed))
	}
	seen := map[[20]byte]bool{}
	for _, addr := range listed {
		seen[addr] = true
	}
	if !seen[a] || !seen[c] || seen[b] {
		t.Fatalf("enumeration contents: got %v", listed)
	}
	allowed, err := registry.FeeRecipientAllowed(collection, b)
	if err != nil {
		t.Fatalf("membership: %v", err)
	}
	if allowed {
		t.Fatal("removed recipient still a member")
	}

	// Re-adding the removed member succeeds without stale duplicates.
	if err := registry.UpdateAllowedFeeRecipient(tenant, b, true); err != nil {
		t.Fatalf("re-add b: %v", err)
	}
	listed, err = registry.AllowedFeeRecipients(collection)
	if err != nil {
		t.Fatalf("enumerate after re-add: %v", err)
	}
	if len(listed) != 3 {
		t.Fatalf("enumeration size after re-add: got %d, want 3", len(listed))
	}

	if err := registry.UpdateAllowedFeeRecipient(tenant, a, true); !errors.Is(err, ErrDuplicateFeeRecipient) {
		t.Fatalf("duplicate add: got %v", err)
	}
	if err := registry.UpdateAllowedFeeRecipient(tenant, newTestAddress(0x0D), false); !errors.Is(err, ErrFeeRecipientNotPresent) {
		t.Fatalf("remove absent: got %v", err)
	}
	if err := registry.UpdateAllowedFeeRecipient(tenant, [20]byte{}, true); !errors.Is(err, ErrFeeRecipientCannotBeZeroAddress) {
		t.Fatalf("zero address: got %v", err)
	}
}

func TestPayerSetProtocol(t *testing.T) {
	registry, tenant, collection := newRegistryFixture(t)

	payer := newTestAddress(0x0E)
	if err := registry.UpdatePayer(tenant, payer, true); err != nil {
		t.Fatalf("add payer: %v", err)
	}
	if err := registry.UpdatePayer(tenant, payer, true); !errors.Is(err, ErrDuplicatePayer) {
		t.Fatalf("duplicate payer: got %v", err)
	}
	if err := registry.UpdatePayer(tenant, [20]byte{}, true); !errors.Is(err, ErrPayerCannotBeZeroAddress) {
		t.Fatalf("zero payer: got %v", err)
	}
	if err := registry.UpdatePayer(tenant, payer, false); err != nil {
		t.Fatalf("remove payer: %v", err)
	}
	if err := registry.UpdatePayer(tenant, payer, false); !errors.Is(err, ErrPayerNotPresent) {
		t.Fatalf("remove absent payer: got %v", err)
	}
	allowed, err := registry.PayerAllowed(collection, payer)
	if err != nil {
		t.Fatalf("payer membership: %v", err)
	}
	if allowed {
		t.Fatal("removed payer still allowed")
	}
}

func TestSignerLifecycle(t *testing.T) {
	registry, tenant, collection := newRegistryFixture(t)

	signer := newTestAddress(0x5A)
	bounds := defaultBounds()
	bounds.MinMintPrice = nil
	if err := registry.UpdateSignedMintValidationParams(tenant, signer, bounds); err != nil {
		t.Fatalf("register signer: %v", err)
	}

	stored, registered, err := registry.SignerValidationParams(collection, signer)
	if err != nil {
		t.Fatalf("read params: %v", err)
	}
	if !registered {
		t.Fatal("signer not registered")
	}
	if stored.MinMintPrice == nil || stored.MinMintPrice.Sign() != 0 {
		t.Fatalf("min mint price not normalized: got %v", stored.MinMintPrice)
	}
	if stored.MaxMaxTotalMintableByWallet != bounds.MaxMaxTotalMintableByWallet {
		t.Fatalf("stored bounds: got %+v", stored)
	}

	signers, err := registry.Signers(collection)
	if err != nil {
		t.Fatalf("enumerate signers: %v", err)
	}
	if len(signers) != 1 || signers[0] != signer {
		t.Fatalf("signer enumeration: got %v", signers)
	}

	// In-place updates are not part of the set protocol: remove, then re-add.
	if err := registry.UpdateSignedMintValidationParams(tenant, signer, defaultBounds()); !errors.Is(err, ErrDuplicateSigner) {
		t.Fatalf("re-register live signer: got %v", err)
	}
	if err := registry.UpdateSignedMintValidationParams(tenant, signer, nil); err != nil {
		t.Fatalf("remove signer: %v", err)
	}
	if _, registered, err := registry.SignerValidationParams(collection, signer); err != nil || registered {
		t.Fatalf("params after removal: registered=%v err=%v", registered, err)
	}
	if err := registry.UpdateSignedMintValidationParams(tenant, signer, nil); !errors.Is(err, ErrSignerNotPresent) {
		t.Fatalf("remove absent signer: got %v", err)
	}
	if err := registry.UpdateSignedMintValidationParams(tenant, [20]byte{}, defaultBounds()); !errors.Is(err, ErrSignerCannotBeZeroAddress) {
		t.Fatalf("zero signer: got %v", err)
	}

	bad := defaultBounds()
	bad.MaxFeeBps = 10_001
	if err := registry.UpdateSignedMintValidationParams(tenant, signer, bad); !errors.Is(err, ErrInvalidFeeBps) {
		t.Fatalf("out-of-range fee bps: got %v", err)
	}
}

func TestDropURIRoundTrip(t *testing.T) {
	registry, tenant, collection := newRegistryFixture(t)

	uri, err := registry.DropURI(collection)
	if err != nil {
		t.Fatalf("unset uri: %v", err)
	}
	if uri != "" {
		t.Fatalf("unset uri: got %q", uri)
	}
	if err := registry.UpdateDropURI(tenant, "ipfs://bafy/drop.json"); err != nil {
		t.Fatalf("update uri: %v", err)
	}
	uri, err = registry.DropURI(collection)
	if err != nil {
		t.Fatalf("read uri: %v", err)
	}
	if uri != "ipfs://bafy/drop.json" {
		t.Fatalf("uri: got %q", uri)
	}
}

func TestPublicDropStorage(t *testing.T) {
	registry, tenant, collection := newRegistryFixture(t)

	if _, ok, err := registry.PublicDrop(collection); err != nil || ok {
		t.Fatalf("unset public drop: ok=%v err=%v", ok, err)
	}
	if err := registry.UpdatePublicDrop(tenant, nil); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("nil public drop: got %v", err)
	}
	if err := registry.UpdatePublicDrop(tenant, &PublicDrop{FeeBps: 10_001}); !errors.Is(err, ErrInvalidFeeBps) {
		t.Fatalf("fee bps: got %v", err)
	}

	want := &PublicDrop{
		StartTime:                100,
		EndTime:                  200,
		MaxTotalMintableByWallet: 3,
		FeeBps:                   250,
		RestrictFeeRecipients:    true,
	}
	if err := registry.UpdatePublicDrop(tenant, want); err != nil {
		t.Fatalf("update public drop: %v", err)
	}
	got, ok, err := registry.PublicDrop(collection)
	if err != nil || !ok {
		t.Fatalf("read public drop: ok=%v err=%v", ok, err)
	}
	if got.Price == nil || got.Price.Sign() != 0 {
		t.Fatalf("nil price not normalized: got %v", got.Price)
	}
	if got.StartTime != 100 || got.EndTime != 200 || got.MaxTotalMintableByWallet != 3 || got.FeeBps != 250 || !got.RestrictFeeRecipients {
		t.Fatalf("public drop: got %+v", got)
	}
}

func TestAllowListRoundTrip(t *testing.T) {
	registry, tenant, collection := newRegistryFixture(t)

	var root [32]byte
	root[0] = 0xAB
	want := &AllowListData{
		MerkleRoot:    root,
		PublicKeyURIs: []string{"https://keys.example/1"},
		AllowListURI:  "https://list.example/allow.json",
	}
	if err := registry.UpdateAllowList(tenant, want); err != nil {
		t.Fatalf("update allow list: %v", err)
	}
	got, ok, err := registry.AllowList(collection)
	if err != nil || !ok {
		t.Fatalf("read allow list: ok=%v err=%v", ok, err)
	}
	if got.MerkleRoot != root || got.AllowListURI != want.AllowListURI {
		t.Fatalf("allow list: got %+v", got)
	}
	if len(got.PublicKeyURIs) != 1 || got.PublicKeyURIs[0] != want.PublicKeyURIs[0] {
		t.Fatalf("public key uris: got %v", got.PublicKeyURIs)
	}
}

func TestTokenGatedDropLifecycle(t *testing.T) {
	registry, tenant, collection := newRegistryFixture(t)

	gate := newTestAddress(0x77)
	stage := &TokenGatedDropStage{
		Price:                    big.NewInt(5),
		MaxTotalMintableByWallet: 2,
		StartTime:                1,
		EndTime:                  2,
		DropStageIndex:           3,
		MaxTokenSupplyForStage:   4,
		FeeBps:                   100,
	}

	if err := registry.UpdateTokenGatedDrop(tenant, [20]byte{}, stage); !errors.Is(err, ErrGatedTokenCannotBeZeroAddress) {
		t.Fatalf("zero gate token: got %v", err)
	}
	if err := registry.UpdateTokenGatedDrop(tenant, tenant.Collection(), stage); !errors.Is(err, ErrGatedTokenCannotBeDropToken) {
		t.Fatalf("self gating: got %v", err)
	}

	if err := registry.UpdateTokenGatedDrop(tenant, gate, stage); err != nil {
		t.Fatalf("set gated stage: %v", err)
	}
	got, ok, err := registry.TokenGatedDrop(collection, gate)
	if err != nil || !ok {
		t.Fatalf("read gated stage: ok=%v err=%v", ok, err)
	}
	if got.Price.Cmp(big.NewInt(5)) != 0 || got.DropStageIndex != 3 {
		t.Fatalf("gated stage: got %+v", got)
	}

	// Upsert is legal for gated stages, unlike the shared set protocol.
	stage.MaxTotalMintableByWallet = 9
	if err := registry.UpdateTokenGatedDrop(tenant, gate, stage); err != nil {
		t.Fatalf("upsert gated stage: %v", err)
	}
	got, _, err = registry.TokenGatedDrop(collection, gate)
	if err != nil {
		t.Fatalf("read upserted stage: %v", err)
	}
	if got.MaxTotalMintableByWallet != 9 {
		t.Fatalf("upserted wallet limit: got %d", got.MaxTotalMintableByWallet)
	}
	tokens, err := registry.TokenGatedTokens(collection)
	if err != nil {
		t.Fatalf("enumerate gated tokens: %v", err)
	}
	if len(tokens) != 1 || tokens[0] != gate {
		t.Fatalf("gated tokens: got %v", tokens)
	}

	if err := registry.UpdateTokenGatedDrop(tenant, gate, nil); err != nil {
		t.Fatalf("remove gated stage: %v", err)
	}
	if _, ok, err := registry.TokenGatedDrop(collection, gate); err != nil || ok {
		t.Fatalf("gated stage after removal: ok=%v err=%v", ok, err)
	}
	if err := registry.UpdateTokenGatedDrop(tenant, gate, nil); !errors.Is(err, ErrGatedTokenNotPresent) {
		t.Fatalf("remove absent gated stage: got %v", err)
	}
}

func TestTokenGatedRedemptionLedger(t *testing.T) {
	registry, tenant, collection := newRegistryFixture(t)

	gate := newTestAddress(0x77)
	tokenID := big.NewInt(12345)

	redeemed, err := registry.TokenGatedRedeemed(collection, gate, tokenID)
	if err != nil {
		t.Fatalf("unredeemed query: %v", err)
	}
	if redeemed {
		t.Fatal("token id redeemed before marking")
	}
	if err := registry.MarkTokenGatedRedemption(tenant, gate, tokenID); err != nil {
		t.Fatalf("mark redemption: %v", err)
	}
	if err := registry.MarkTokenGatedRedemption(tenant, gate, tokenID); !errors.Is(err, ErrGatedTokenIDAlreadyRedeemed) {
		t.Fatalf("double redemption: got %v", err)
	}
	redeemed, err = registry.TokenGatedRedeemed(collection, gate, tokenID)
	if err != nil {
		t.Fatalf("redeemed query: %v", err)
	}
	if !redeemed {
		t.Fatal("redemption not recorded")
	}

	// Another token id of the same contract is independent.
	other, err := registry.TokenGatedRedeemed(collection, gate, big.NewInt(12346))
	if err != nil {
		t.Fatalf("other token query: %v", err)
	}
	if other {
		t.Fatal("unrelated token id marked redeemed")
	}
}

func TestConsumeDigest(t *testing.T) {
	registry, _, _ := newRegistryFixture(t)

	var digest [32]byte
	digest[0] = 0x99
	used, err := registry.DigestUsed(digest)
	if err != nil {
		t.Fatalf("fresh digest query: %v", err)
	}
	if used {
		t.Fatal("fresh digest reported used")
	}
	if err := registry.ConsumeDigest(digest); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if err := registry.ConsumeDigest(digest); !errors.Is(err, ErrSignatureAlreadyUsed) {
		t.Fatalf("double consume: got %v", err)
	}
	used, err = registry.DigestUsed(digest)
	if err != nil {
		t.Fatalf("used digest query: %v", err)
	}
	if !used {
		t.Fatal("consumed digest not reported used")
	}
}
