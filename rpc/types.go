package rpc

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"mintgate/crypto"
	"mintgate/native/drop"
	"mintgate/native/droptoken"
)

// Wire conventions: addresses travel as bech32 strings, amounts as base-10
// decimal strings, digests and merkle roots as 0x-prefixed hex.

func parseAddress(field, raw string) ([20]byte, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return [20]byte{}, fmt.Errorf("%s required", field)
	}
	decoded, err := crypto.DecodeAddress(trimmed)
	if err != nil {
		return [20]byte{}, fmt.Errorf("invalid %s: %v", field, err)
	}
	if decoded.Prefix() != crypto.MintPrefix {
		return [20]byte{}, fmt.Errorf("invalid %s: expected %q prefix", field, crypto.MintPrefix)
	}
	var out [20]byte
	copy(out[:], decoded.Bytes())
	return out, nil
}

// parseOptionalAddress returns the zero address for blank input.
func parseOptionalAddress(field, raw string) ([20]byte, error) {
	if strings.TrimSpace(raw) == "" {
		return [20]byte{}, nil
	}
	return parseAddress(field, raw)
}

func parseAmount(field, raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("%s required", field)
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid %s: want a base-10 integer", field)
	}
	if value.Sign() < 0 {
		return nil, fmt.Errorf("invalid %s: must not be negative", field)
	}
	return value, nil
}

// parseOptionalAmount returns nil for blank input.
func parseOptionalAmount(field, raw string) (*big.Int, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	return parseAmount(field, raw)
}

func parseHash32(field, raw string) ([32]byte, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	if trimmed == "" {
		return [32]byte{}, fmt.Errorf("%s required", field)
	}
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return [32]byte{}, fmt.Errorf("invalid %s: %v", field, err)
	}
	if len(decoded) != 32 {
		return [32]byte{}, fmt.Errorf("invalid %s: want 32 bytes, got %d", field, len(decoded))
	}
	var out [32]byte
	copy(out[:], decoded)
	return out, nil
}

func parseSignature(raw string) ([]byte, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	if trimmed == "" {
		return nil, fmt.Errorf("signature required")
	}
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid signature: %v", err)
	}
	return decoded, nil
}

func formatAddress(addr [20]byte) string {
	return crypto.MustNewAddress(crypto.MintPrefix, addr[:]).String()
}

func formatAddresses(addrs [][20]byte) []string {
	out := make([]string, len(addrs))
	for i := range addrs {
		out[i] = formatAddress(addrs[i])
	}
	return out
}

func formatHash(h [32]byte) string {
	return "0x" + hex.EncodeToString(h[:])
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func parseRoleVariant(raw string) (droptoken.RoleVariant, error) {
	switch strings.TrimSpace(raw) {
	case "", "owner":
		return droptoken.RoleOwnerOnly, nil
	case "ownerAdministrator":
		return droptoken.RoleOwnerAdministrator, nil
	default:
		return 0, fmt.Errorf("invalid variant %q: want owner or ownerAdministrator", raw)
	}
}

func formatRoleVariant(v droptoken.RoleVariant) string {
	if v == droptoken.RoleOwnerAdministrator {
		return "ownerAdministrator"
	}
	return "owner"
}

// mintParamsPayload mirrors the signed-stage descriptor bound by the
// typed-data digest.
type mintParamsPayload struct {
	Price                    string `json:"price"`
	MaxTotalMintableByWallet uint64 `json:"maxTotalMintableByWallet"`
	StartTime                uint64 `json:"startTime"`
	EndTime                  uint64 `json:"endTime"`
	DropStageIndex           uint32 `json:"dropStageIndex"`
	MaxTokenSupplyForStage   uint64 `json:"maxTokenSupplyForStage"`
	FeeBps                   uint16 `json:"feeBps"`
	RestrictFeeRecipients    bool   `json:"restrictFeeRecipients"`
}

func (p *mintParamsPayload) toMintParams() (*drop.MintParams, error) {
	if p == nil {
		return nil, fmt.Errorf("mintParams required")
	}
	price, err := parseAmount("mintParams.price", p.Price)
	if err != nil {
		return nil, err
	}
	return &drop.MintParams{
		Price:                    price,
		MaxTotalMintableByWallet: p.MaxTotalMintableByWallet,
		StartTime:                p.StartTime,
		EndTime:                  p.EndTime,
		DropStageIndex:           p.DropStageIndex,
		MaxTokenSupplyForStage:   p.MaxTokenSupplyForStage,
		FeeBps:                   p.FeeBps,
		RestrictFeeRecipients:    p.RestrictFeeRecipients,
	}, nil
}

type publicDropPayload struct {
	Price                    string `json:"price"`
	StartTime                uint64 `json:"startTime"`
	EndTime                  uint64 `json:"endTime"`
	MaxTotalMintableByWallet uint64 `json:"maxTotalMintableByWallet"`
	FeeBps                   uint16 `json:"feeBps"`
	RestrictFeeRecipients    bool   `json:"restrictFeeRecipients"`
}

func (p *publicDropPayload) toPublicDrop() (*drop.PublicDrop, error) {
	if p == nil {
		return nil, fmt.Errorf("publicDrop required")
	}
	price, err := parseAmount("publicDrop.price", p.Price)
	if err != nil {
		return nil, err
	}
	return &drop.PublicDrop{
		Price:                    price,
		StartTime:                p.StartTime,
		EndTime:                  p.EndTime,
		MaxTotalMintableByWallet: p.MaxTotalMintableByWallet,
		FeeBps:                   p.FeeBps,
		RestrictFeeRecipients:    p.RestrictFeeRecipients,
	}, nil
}

func publicDropPayloadFrom(d *drop.PublicDrop) *publicDropPayload {
	if d == nil {
		return nil
	}
	return &publicDropPayload{
		Price:                    bigString(d.Price),
		StartTime:                d.StartTime,
		EndTime:                  d.EndTime,
		MaxTotalMintableByWallet: d.MaxTotalMintableByWallet,
		FeeBps:                   d.FeeBps,
		RestrictFeeRecipients:    d.RestrictFeeRecipients,
	}
}

type signerParamsPayload struct {
	MinMintPrice                string `json:"minMintPrice"`
	MaxMaxTotalMintableByWallet uint64 `json:"maxMaxTotalMintableByWallet"`
	MinStartTime                uint64 `json:"minStartTime"`
	MaxEndTime                  uint64 `json:"maxEndTime"`
	MaxMaxTokenSupplyForStage   uint64 `json:"maxMaxTokenSupplyForStage"`
	MinFeeBps                   uint16 `json:"minFeeBps"`
	MaxFeeBps                   uint16 `json:"maxFeeBps"`
}

func (p *signerParamsPayload) toSignerParams() (*drop.SignedMintValidationParams, error) {
	if p == nil {
		return nil, nil
	}
	minPrice, err := parseOptionalAmount("params.minMintPrice", p.MinMintPrice)
	if err != nil {
		return nil, err
	}
	return &drop.SignedMintValidationParams{
		MinMintPrice:                minPrice,
		MaxMaxTotalMintableByWallet: p.MaxMaxTotalMintableByWallet,
		MinStartTime:                p.MinStartTime,
		MaxEndTime:                  p.MaxEndTime,
		MaxMaxTokenSupplyForStage:   p.MaxMaxTokenSupplyForStage,
		MinFeeBps:                   p.MinFeeBps,
		MaxFeeBps:                   p.MaxFeeBps,
	}, nil
}

func signerParamsPayloadFrom(p *drop.SignedMintValidationParams) *signerParamsPayload {
	if p == nil {
		return nil
	}
	return &signerParamsPayload{
		MinMintPrice:                bigString(p.MinMintPrice),
		MaxMaxTotalMintableByWallet: p.MaxMaxTotalMintableByWallet,
		MinStartTime:                p.MinStartTime,
		MaxEndTime:                  p.MaxEndTime,
		MaxMaxTokenSupplyForStage:   p.MaxMaxTokenSupplyForStage,
		MinFeeBps:                   p.MinFeeBps,
		MaxFeeBps:                   p.MaxFeeBps,
	}
}

type tokenGatedStagePayload struct {
	Price                    string `json:"price"`
	MaxTotalMintableByWallet uint64 `json:"maxTotalMintableByWallet"`
	StartTime                uint64 `json:"startTime"`
	EndTime                  uint64 `json:"endTime"`
	DropStageIndex           uint32 `json:"dropStageIndex"`
	MaxTokenSupplyForStage   uint64 `json:"maxTokenSupplyForStage"`
	FeeBps                   uint16 `json:"feeBps"`
	RestrictFeeRecipients    bool   `json:"restrictFeeRecipients"`
}

func (p *tokenGatedStagePayload) toStage() (*drop.TokenGatedDropStage, error) {
	if p == nil {
		return nil, nil
	}
	price, err := parseAmount("stage.price", p.Price)
	if err != nil {
		return nil, err
	}
	return &drop.TokenGatedDropStage{
		Price:                    price,
		MaxTotalMintableByWallet: p.MaxTotalMintableByWallet,
		StartTime:                p.StartTime,
		EndTime:                  p.EndTime,
		DropStageIndex:           p.DropStageIndex,
		MaxTokenSupplyForStage:   p.MaxTokenSupplyForStage,
		FeeBps:                   p.FeeBps,
		RestrictFeeRecipients:    p.RestrictFeeRecipients,
	}, nil
}

func tokenGatedStagePayloadFrom(s *drop.TokenGatedDropStage) *tokenGatedStagePayload {
	if s == nil {
		return nil
	}
	return &tokenGatedStagePayload{
		Price:                    bigString(s.Price),
		MaxTotalMintableByWallet: s.MaxTotalMintableByWallet,
		StartTime:                s.StartTime,
		EndTime:                  s.EndTime,
		DropStageIndex:           s.DropStageIndex,
		MaxTokenSupplyForStage:   s.MaxTokenSupplyForStage,
		FeeBps:                   s.FeeBps,
		RestrictFeeRecipients:    s.RestrictFeeRecipients,
	}
}

type allowListPayload struct {
	MerkleRoot    string   `json:"merkleRoot"`
	PublicKeyURIs []string `json:"publicKeyURIs,omitempty"`
	AllowListURI  string   `json:"allowListURI,omitempty"`
}

func (p *allowListPayload) toAllowListData() (*drop.AllowListData, error) {
	if p == nil {
		return nil, fmt.Errorf("allowList required")
	}
	root, err := parseHash32("allowList.merkleRoot", p.MerkleRoot)
	if err != nil {
		return nil, err
	}
	return &drop.AllowListData{
		MerkleRoot:    root,
		PublicKeyURIs: append([]string(nil), p.PublicKeyURIs...),
		AllowListURI:  p.AllowListURI,
	}, nil
}

func allowListPayloadFrom(a *drop.AllowListData) *allowListPayload {
	if a == nil {
		return nil
	}
	return &allowListPayload{
		MerkleRoot:    formatHash(a.MerkleRoot),
		PublicKeyURIs: append([]string(nil), a.PublicKeyURIs...),
		AllowListURI:  a.AllowListURI,
	}
}
