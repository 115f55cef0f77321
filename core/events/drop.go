package events

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"mintgate/core/types"
	"mintgate/crypto"
)

const (
	// TypeDropMinted is the audit record emitted on every successful mint.
	// It is the sole persisted mint history beyond aggregate counters.
	TypeDropMinted = "drop.minted"

	TypeCreatorPayoutUpdated  = "drop.creator_payout_updated"
	TypeFeeRecipientUpdated   = "drop.fee_recipient_updated"
	TypePayerUpdated          = "drop.payer_updated"
	TypeSignerUpdated         = "drop.signer_updated"
	TypeDropURIUpdated        = "drop.uri_updated"
	TypePublicDropUpdated     = "drop.public_drop_updated"
	TypeAllowListUpdated      = "drop.allow_list_updated"
	TypeTokenGatedDropUpdated = "drop.token_gated_drop_updated"
)

func bech(addr [20]byte) string {
	return crypto.MustNewAddress(crypto.MintPrefix, addr[:]).String()
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// DropMinted captures one settled mint: who minted, who paid, who collected
// the fee, and the stage economics that applied.
type DropMinted struct {
	Collection     [20]byte
	Minter         [20]byte
	FeeRecipient   [20]byte
	Payer          [20]byte
	Quantity       uint64
	UnitPrice      *big.Int
	FeeBps         uint16
	DropStageIndex uint32
}

func (DropMinted) EventType() string { return TypeDropMinted }

func (e DropMinted) Event() *types.Event {
	return &types.Event{
		Type: TypeDropMinted,
		Attributes: map[string]string{
			"collection":     bech(e.Collection),
			"minter":         bech(e.Minter),
			"feeRecipient":   bech(e.FeeRecipient),
			"payer":          bech(e.Payer),
			"quantity":       strconv.FormatUint(e.Quantity, 10),
			"unitPrice":      bigString(e.UnitPrice),
			"feeBps":         strconv.FormatUint(uint64(e.FeeBps), 10),
			"dropStageIndex": strconv.FormatUint(uint64(e.DropStageIndex), 10),
		},
	}
}

type CreatorPayoutUpdated struct {
	Collection [20]byte
	Payout     [20]byte
}

func (CreatorPayoutUpdated) EventType() string { return TypeCreatorPayoutUpdated }

func (e CreatorPayoutUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeCreatorPayoutUpdated,
		Attributes: map[string]string{
			"collection": bech(e.Collection),
			"payout":     bech(e.Payout),
		},
	}
}

type FeeRecipientUpdated struct {
	Collection   [20]byte
	FeeRecipient [20]byte
	Allowed      bool
}

func (FeeRecipientUpdated) EventType() string { return TypeFeeRecipientUpdated }

func (e FeeRecipientUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeFeeRecipientUpdated,
		Attributes: map[string]string{
			"collection":   bech(e.Collection),
			"feeRecipient": bech(e.FeeRecipient),
			"allowed":      strconv.FormatBool(e.Allowed),
		},
	}
}

type PayerUpdated struct {
	Collection [20]byte
	Payer      [20]byte
	Allowed    bool
}

func (PayerUpdated) EventType() string { return TypePayerUpdated }

func (e PayerUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypePayerUpdated,
		Attributes: map[string]string{
			"collection": bech(e.Collection),
			"payer":      bech(e.Payer),
			"allowed":    strconv.FormatBool(e.Allowed),
		},
	}
}

type SignerUpdated struct {
	Collection [20]byte
	Signer     [20]byte
	Registered bool
}

func (SignerUpdated) EventType() string { return TypeSignerUpdated }

func (e SignerUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeSignerUpdated,
		Attributes: map[string]string{
			"collection": bech(e.Collection),
			"signer":     bech(e.Signer),
			"registered": strconv.FormatBool(e.Registered),
		},
	}
}

type DropURIUpdated struct {
	Collection [20]byte
	URI        string
}

func (DropURIUpdated) EventType() string { return TypeDropURIUpdated }

func (e DropURIUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeDropURIUpdated,
		Attributes: map[string]string{
			"collection": bech(e.Collection),
			"uri":        e.URI,
		},
	}
}

type PublicDropUpdated struct {
	Collection [20]byte
	Price      *big.Int
	StartTime  uint64
	EndTime    uint64
}

func (PublicDropUpdated) EventType() string { return TypePublicDropUpdated }

func (e PublicDropUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypePublicDropUpdated,
		Attributes: map[string]string{
			"collection": bech(e.Collection),
			"price":      bigString(e.Price),
			"startTime":  strconv.FormatUint(e.StartTime, 10),
			"endTime":    strconv.FormatUint(e.EndTime, 10),
		},
	}
}

type AllowListUpdated struct {
	Collection [20]byte
	MerkleRoot [32]byte
}

func (AllowListUpdated) EventType() string { return TypeAllowListUpdated }

func (e AllowListUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeAllowListUpdated,
		Attributes: map[string]string{
			"collection": bech(e.Collection),
			"merkleRoot": "0x" + hex.EncodeToString(e.MerkleRoot[:]),
		},
	}
}

type TokenGatedDropUpdated struct {
	Collection   [20]byte
	AllowedToken [20]byte
	Removed      bool
}

func (TokenGatedDropUpdated) EventType() string { return TypeTokenGatedDropUpdated }

func (e TokenGatedDropUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeTokenGatedDropUpdated,
		Attributes: map[string]string{
			"collection":   bech(e.Collection),
			"allowedToken": bech(e.AllowedToken),
			"removed":      strconv.FormatBool(e.Removed),
		},
	}
}
