package drop

import "math/big"

// PublicStageIndex is the reserved stage index for the public drop.
const PublicStageIndex uint32 = 0

var zeroAddress [20]byte

func isZeroAddress(addr [20]byte) bool {
	return addr == zeroAddress
}

// MintParams is the transient stage descriptor supplied with every signed
// mint. It carries the economic terms a signer authorized; the typed-data
// digest binds all eight fields in order.
type MintParams struct {
	Price                    *big.Int
	MaxTotalMintableByWallet uint64
	StartTime                uint64
	EndTime                  uint64
	DropStageIndex           uint32
	MaxTokenSupplyForStage   uint64
	FeeBps                   uint16
	RestrictFeeRecipients    bool
}

// Clone returns a deep copy of the params.
func (p *MintParams) Clone() *MintParams {
	if p == nil {
		return nil
	}
	out := *p
	out.Price = cloneBigInt(p.Price)
	return &out
}

// SignedMintValidationParams bounds what a registered signer may authorize.
// MaxMaxTotalMintableByWallet doubles as the existence sentinel: zero means
// the signer is not registered, so a live signer must never be configured
// with a zero value there.
type SignedMintValidationParams struct {
	MinMintPrice                *big.Int
	MaxMaxTotalMintableByWallet uint64
	MinStartTime                uint64
	MaxEndTime                  uint64
	MaxMaxTokenSupplyForStage   uint64
	MinFeeBps                   uint16
	MaxFeeBps                   uint16
}

// Registered reports whether the record denotes a live signer.
func (p *SignedMintValidationParams) Registered() bool {
	return p != nil && p.MaxMaxTotalMintableByWallet > 0
}

// Clone returns a deep copy of the params.
func (p *SignedMintValidationParams) Clone() *SignedMintValidationParams {
	if p == nil {
		return nil
	}
	out := *p
	out.MinMintPrice = cloneBigInt(p.MinMintPrice)
	return &out
}

// PublicDrop is the stored configuration for the public stage (index 0).
type PublicDrop struct {
	Price                    *big.Int
	StartTime                uint64
	EndTime                  uint64
	MaxTotalMintableByWallet uint64
	FeeBps                   uint16
	RestrictFeeRecipients    bool
}

// Clone returns a deep copy of the public drop.
func (p *PublicDrop) Clone() *PublicDrop {
	if p == nil {
		return nil
	}
	out := *p
	out.Price = cloneBigInt(p.Price)
	return &out
}

// TokenGatedDropStage configures a stage unlocked by holding an external
// NFT. Only the data shape, administration, and redemption ledger are
// modeled; there is no token-gated mint path.
type TokenGatedDropStage struct {
	Price                    *big.Int
	MaxTotalMintableByWallet uint64
	StartTime                uint64
	EndTime                  uint64
	DropStageIndex           uint32
	MaxTokenSupplyForStage   uint64
	FeeBps                   uint16
	RestrictFeeRecipients    bool
}

// Clone returns a deep copy of the stage.
func (s *TokenGatedDropStage) Clone() *TokenGatedDropStage {
	if s == nil {
		return nil
	}
	out := *s
	out.Price = cloneBigInt(s.Price)
	return &out
}

// AllowListData records the merkle root and provenance URIs for an
// allow-list stage. Only the data shape is modeled; there is no proof-based
// mint path.
type AllowListData struct {
	MerkleRoot    [32]byte
	PublicKeyURIs []string
	AllowListURI  string
}

// Clone returns a deep copy of the allow-list data.
func (a *AllowListData) Clone() *AllowListData {
	if a == nil {
		return nil
	}
	out := *a
	out.PublicKeyURIs = append([]string(nil), a.PublicKeyURIs...)
	return &out
}

// MintStats is the live supply view a collection reports: the minter's
// lifetime count, the collection's total supply, and its hard cap.
type MintStats struct {
	MinterMinted uint64
	TotalSupply  uint64
	MaxSupply    uint64
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
