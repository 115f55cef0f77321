package droptoken

import (
	"fmt"

	"mintgate/core/events"
	"mintgate/native/drop"
)

// Token is a live handle on one collection. It implements the capability
// surface the mint engine consumes and the delegated-administration facade
// owners and administrators drive. Handles hold no cached state; every call
// reads the stored record fresh.
type Token struct {
	ledger *Ledger
	addr   [20]byte
}

// Address returns the collection address.
func (t *Token) Address() [20]byte { return t.addr }

// SupportsCapability declares the collection capability.
func (t *Token) SupportsCapability(id drop.Capability) bool {
	return id == drop.CollectionCapabilityID
}

// MintStats reports the live supply view for a minter.
func (t *Token) MintStats(minter [20]byte) (drop.MintStats, error) {
	if err := t.ledger.ready(); err != nil {
		return drop.MintStats{}, err
	}
	record, err := t.ledger.record(t.addr)
	if err != nil {
		return drop.MintStats{}, err
	}
	minted, err := t.ledger.walletMinted(t.addr, minter)
	if err != nil {
		return drop.MintStats{}, err
	}
	return drop.MintStats{
		MinterMinted: minted,
		TotalSupply:  record.TotalSupply,
		MaxSupply:    record.MaxSupply,
	}, nil
}

// MintTo mints quantity tokens to the minter under registry authority. The
// supply and wallet counters persist before the mint observer runs, so any
// side effect already sees the updated bookkeeping.
func (t *Token) MintTo(minter [20]byte, quantity uint64) error {
	ledger := t.ledger
	if err := ledger.ready(); err != nil {
		return err
	}
	if ledger.minting[t.addr] {
		return ErrReentrantMint
	}
	ledger.minting[t.addr] = true
	defer delete(ledger.minting, t.addr)

	if quantity == 0 {
		return fmt.Errorf("droptoken: quantity must be positive")
	}
	record, err := ledger.record(t.addr)
	if err != nil {
		return err
	}
	if !containsAddress(record.AllowedRegistries, ledger.authority) {
		return fmt.Errorf("%w: %x", ErrOnlyAllowedRegistry, ledger.authority)
	}
	remaining := record.MaxSupply - record.TotalSupply
	if quantity > remaining {
		return fmt.Errorf("%w: minting %d with %d remaining of %d", ErrExceedsMaxSupply, quantity, remaining, record.MaxSupply)
	}
	minted, err := ledger.walletMinted(t.addr, minter)
	if err != nil {
		return err
	}

	record.TotalSupply += quantity
	if err := ledger.putRecord(t.addr, record); err != nil {
		return err
	}
	if err := ledger.store.KVPut(mintedKey(t.addr, minter), minted+quantity); err != nil {
		return err
	}
	if ledger.observer != nil {
		if err := ledger.observer.OnTokensMinted(t.addr, minter, quantity); err != nil {
			return err
		}
	}
	return nil
}

// --- Role checks ---

// requireManager gates the updates both roles may perform.
func requireManager(record *storedCollection, caller [20]byte) error {
	if RoleVariant(record.Variant) == RoleOwnerOnly {
		if caller != record.Owner {
			return ErrOnlyOwner
		}
		return nil
	}
	if caller != record.Owner && caller != record.Administrator {
		return ErrOnlyOwnerOrAdministrator
	}
	return nil
}

// requireController gates the administrator-reserved updates: the fee
// recipient allow-list and the signer set.
func requireController(record *storedCollection, caller [20]byte) error {
	if RoleVariant(record.Variant) == RoleOwnerOnly {
		if caller != record.Owner {
			return ErrOnlyOwner
		}
		return nil
	}
	if caller != record.Administrator {
		return ErrOnlyAdministrator
	}
	return nil
}

func requireOwner(record *storedCollection, caller [20]byte) error {
	if caller != record.Owner {
		return ErrOnlyOwner
	}
	return nil
}

// delegate verifies the registry is allow-listed and runs the capability
// gate, returning the tenant handle the registry write requires.
func (t *Token) delegate(registry *drop.Registry, record *storedCollection) (drop.Tenant, error) {
	if registry == nil {
		return drop.Tenant{}, fmt.Errorf("droptoken: registry required")
	}
	if !containsAddress(record.AllowedRegistries, registry.ModuleAddress()) {
		return drop.Tenant{}, fmt.Errorf("%w: %x", ErrOnlyAllowedRegistry, registry.ModuleAddress())
	}
	return registry.Authorize(t)
}

// --- Delegated administration ---

// UpdateDropURI forwards a drop URI update to an allow-listed registry.
func (t *Token) UpdateDropURI(caller [20]byte, registry *drop.Registry, uri string) error {
	record, err := t.ledger.record(t.addr)
	if err != nil {
		return err
	}
	if err := requireManager(record, caller); err != nil {
		return err
	}
	tenant, err := t.delegate(registry, record)
	if err != nil {
		return err
	}
	return registry.UpdateDropURI(tenant, uri)
}

// UpdateCreatorPayoutAddress forwards a creator payout update.
func (t *Token) UpdateCreatorPayoutAddress(caller [20]byte, registry *drop.Registry, payout [20]byte) error {
	record, err := t.ledger.record(t.addr)
	if err != nil {
		return err
	}
	if err := requireManager(record, caller); err != nil {
		return err
	}
	tenant, err := t.delegate(registry, record)
	if err != nil {
		return err
	}
	return registry.UpdateCreatorPayoutAddress(tenant, payout)
}

// UpdateAllowedFeeRecipient forwards a fee-recipient membership update.
// Under the owner+administrator variant this is administrator business.
func (t *Token) UpdateAllowedFeeRecipient(caller [20]byte, registry *drop.Registry, feeRecipient [20]byte, allowed bool) error {
	record, err := t.ledger.record(t.addr)
	if err != nil {
		return err
	}
	if err := requireController(record, caller); err != nil {
		return err
	}
	tenant, err := t.delegate(registry, record)
	if err != nil {
		return err
	}
	return registry.UpdateAllowedFeeRecipient(tenant, feeRecipient, allowed)
}

// UpdateSignedMintValidationParams forwards a signer registration or
// removal. Under the owner+administrator variant this is administrator
// business.
func (t *Token) UpdateSignedMintValidationParams(caller [20]byte, registry *drop.Registry, signer [20]byte, params *drop.SignedMintValidationParams) error {
	record, err := t.ledger.record(t.addr)
	if err != nil {
		return err
	}
	if err := requireController(record, caller); err != nil {
		return err
	}
	tenant, err := t.delegate(registry, record)
	if err != nil {
		return err
	}
	return registry.UpdateSignedMintValidationParams(tenant, signer, params)
}

// UpdatePayer forwards a payer membership update.
func (t *Token) UpdatePayer(caller [20]byte, registry *drop.Registry, payer [20]byte, allowed bool) error {
	record, err := t.ledger.record(t.addr)
	if err != nil {
		return err
	}
	if err := requireManager(record, caller); err != nil {
		return err
	}
	tenant, err := t.delegate(registry, record)
	if err != nil {
		return err
	}
	return registry.UpdatePayer(tenant, payer, allowed)
}

// UpdatePublicDrop forwards a public-stage configuration update.
func (t *Token) UpdatePublicDrop(caller [20]byte, registry *drop.Registry, publicDrop *drop.PublicDrop) error {
	record, err := t.ledger.record(t.addr)
	if err != nil {
		return err
	}
	if err := requireManager(record, caller); err != nil {
		return err
	}
	tenant, err := t.delegate(registry, record)
	if err != nil {
		return err
	}
	return registry.UpdatePublicDrop(tenant, publicDrop)
}

// UpdateAllowList forwards an allow-list data update.
func (t *Token) UpdateAllowList(caller [20]byte, registry *drop.Registry, data *drop.AllowListData) error {
	record, err := t.ledger.record(t.addr)
	if err != nil {
		return err
	}
	if err := requireManager(record, caller); err != nil {
		return err
	}
	tenant, err := t.delegate(registry, record)
	if err != nil {
		return err
	}
	return registry.UpdateAllowList(tenant, data)
}

// UpdateTokenGatedDrop forwards a token-gated stage update.
func (t *Token) UpdateTokenGatedDrop(caller [20]byte, registry *drop.Registry, allowedToken [20]byte, stage *drop.TokenGatedDropStage) error {
	record, err := t.ledger.record(t.addr)
	if err != nil {
		return err
	}
	if err := requireManager(record, caller); err != nil {
		return err
	}
	tenant, err := t.delegate(registry, record)
	if err != nil {
		return err
	}
	return registry.UpdateTokenGatedDrop(tenant, allowedToken, stage)
}

// UpdateAllowedRegistry adds or removes a registry from the collection's
// delegation allow-list. Owner business under every variant.
func (t *Token) UpdateAllowedRegistry(caller [20]byte, registry [20]byte, allowed bool) error {
	ledger := t.ledger
	if err := ledger.ready(); err != nil {
		return err
	}
	record, err := ledger.record(t.addr)
	if err != nil {
		return err
	}
	if err := requireOwner(record, caller); err != nil {
		return err
	}
	if isZeroAddress(registry) {
		return ErrRegistryCannotBeZeroAddress
	}
	if allowed {
		if containsAddress(record.AllowedRegistries, registry) {
			return fmt.Errorf("%w: %x", ErrDuplicateAllowedRegistry, registry)
		}
		record.AllowedRegistries = append(record.AllowedRegistries, registry)
	} else {
		idx := -1
		for i, candidate := range record.AllowedRegistries {
			if candidate == registry {
				idx = i
				break
			}
		}
		if idx < 0 {
			return fmt.Errorf("%w: %x", ErrAllowedRegistryNotPresent, registry)
		}
		last := len(record.AllowedRegistries) - 1
		record.AllowedRegistries[idx] = record.AllowedRegistries[last]
		record.AllowedRegistries = record.AllowedRegistries[:last]
	}
	if err := ledger.putRecord(t.addr, record); err != nil {
		return err
	}
	ledger.emit(events.AllowedRegistryUpdated{
		Collection: t.addr,
		Registry:   registry,
		Allowed:    allowed,
	})
	return nil
}
