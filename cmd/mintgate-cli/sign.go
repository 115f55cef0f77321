package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"math/big"
	"os"
	"strings"

	"mintgate/crypto"
	"mintgate/native/drop"
)

// mintStageFlags collects the typed-data fields shared by sign-mint and
// digest.
type mintStageFlags struct {
	collection   string
	minter       string
	feeRecipient string
	price        string
	maxPerWallet uint64
	startTime    uint64
	endTime      uint64
	stageIndex   uint
	stageSupply  uint64
	feeBps       uint
	restrict     bool
	salt         string
}

func (f *mintStageFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.collection, "collection", "", "collection address (bech32)")
	fs.StringVar(&f.minter, "minter", "", "minter address (bech32)")
	fs.StringVar(&f.feeRecipient, "fee-recipient", "", "fee recipient address (bech32)")
	fs.StringVar(&f.price, "price", "0", "unit price in base units")
	fs.Uint64Var(&f.maxPerWallet, "max-per-wallet", 0, "max mintable per wallet")
	fs.Uint64Var(&f.startTime, "start", 0, "stage start (unix seconds)")
	fs.Uint64Var(&f.endTime, "end", 0, "stage end (unix seconds)")
	fs.UintVar(&f.stageIndex, "stage", 1, "drop stage index (0 is the public stage)")
	fs.Uint64Var(&f.stageSupply, "stage-supply", 0, "max token supply for this stage")
	fs.UintVar(&f.feeBps, "fee-bps", 0, "fee basis points (0-10000)")
	fs.BoolVar(&f.restrict, "restrict", true, "restrict fee recipients (required for signed mints)")
	fs.StringVar(&f.salt, "salt", "0", "salt distinguishing otherwise identical authorizations")
}

func (f *mintStageFlags) resolve() (collection, minter, feeRecipient [20]byte, params *drop.MintParams, salt *big.Int, err error) {
	if collection, err = parseBech32("collection", f.collection); err != nil {
		return
	}
	if minter, err = parseBech32("minter", f.minter); err != nil {
		return
	}
	if feeRecipient, err = parseBech32("fee-recipient", f.feeRecipient); err != nil {
		return
	}
	price, ok := new(big.Int).SetString(strings.TrimSpace(f.price), 10)
	if !ok || price.Sign() < 0 {
		err = fmt.Errorf("invalid --price %q: want a non-negative base-10 integer", f.price)
		return
	}
	salt, ok = new(big.Int).SetString(strings.TrimSpace(f.salt), 10)
	if !ok || salt.Sign() < 0 {
		err = fmt.Errorf("invalid --salt %q: want a non-negative base-10 integer", f.salt)
		return
	}
	if f.feeBps > 10_000 {
		err = fmt.Errorf("invalid --fee-bps %d: above 10000", f.feeBps)
		return
	}
	params = &drop.MintParams{
		Price:                    price,
		MaxTotalMintableByWallet: f.maxPerWallet,
		StartTime:                f.startTime,
		EndTime:                  f.endTime,
		DropStageIndex:           uint32(f.stageIndex),
		MaxTokenSupplyForStage:   f.stageSupply,
		FeeBps:                   uint16(f.feeBps),
		RestrictFeeRecipients:    f.restrict,
	}
	return
}

func parseBech32(name, raw string) ([20]byte, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return [20]byte{}, fmt.Errorf("--%s is required", name)
	}
	decoded, err := crypto.DecodeAddress(trimmed)
	if err != nil {
		return [20]byte{}, fmt.Errorf("invalid --%s: %v", name, err)
	}
	if decoded.Prefix() != crypto.MintPrefix {
		return [20]byte{}, fmt.Errorf("invalid --%s: expected %q prefix", name, crypto.MintPrefix)
	}
	var out [20]byte
	copy(out[:], decoded.Bytes())
	return out, nil
}

// chainIDForSigning uses the explicit flag when given, otherwise asks the
// node so local digests match what the registry verifies.
func chainIDForSigning(flagValue uint64) (uint64, error) {
	if flagValue != 0 {
		return flagValue, nil
	}
	var info struct {
		ChainID uint64 `json:"chainId"`
	}
	if err := call("mint_getChainInfo", nil, &info); err != nil {
		return 0, fmt.Errorf("resolve chain id (pass --chain-id to sign offline): %w", err)
	}
	return info.ChainID, nil
}

func runSignMint(args []string) int {
	fs := flag.NewFlagSet("sign-mint", flag.ContinueOnError)
	var stage mintStageFlags
	stage.register(fs)
	keyFile := fs.String("key", "", "keystore file holding the signer key")
	chainID := fs.Uint64("chain-id", 0, "chain id for the typed-data domain (0 asks the node)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if strings.TrimSpace(*keyFile) == "" {
		fmt.Fprintln(os.Stderr, "--key is required")
		return 1
	}

	collection, minter, feeRecipient, params, salt, err := stage.resolve()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	id, err := chainIDForSigning(*chainID)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	key, err := loadKey(*keyFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	hasher := drop.NewHasher(id, drop.RegistryAddress())
	digest, err := hasher.MintDigest(collection, minter, feeRecipient, params, salt)
	if err != nil {
		fmt.Fprintf(os.Stderr, "derive digest: %v\n", err)
		return 1
	}
	signature, err := key.SignHash(digest)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sign digest: %v\n", err)
		return 1
	}

	printJSON(map[string]interface{}{
		"chainId":   id,
		"signer":    key.PubKey().Address().String(),
		"digest":    "0x" + hex.EncodeToString(digest[:]),
		"signature": "0x" + hex.EncodeToString(signature),
		"salt":      salt.String(),
		"mintParams": map[string]interface{}{
			"price":                    params.Price.String(),
			"maxTotalMintableByWallet": params.MaxTotalMintableByWallet,
			"startTime":                params.StartTime,
			"endTime":                  params.EndTime,
			"dropStageIndex":           params.DropStageIndex,
			"maxTokenSupplyForStage":   params.MaxTokenSupplyForStage,
			"feeBps":                   params.FeeBps,
			"restrictFeeRecipients":    params.RestrictFeeRecipients,
		},
	})
	return 0
}

func runDigest(args []string) int {
	fs := flag.NewFlagSet("digest", flag.ContinueOnError)
	var stage mintStageFlags
	stage.register(fs)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	collection, minter, feeRecipient, params, salt, err := stage.resolve()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	request := map[string]interface{}{
		"collection":   formatBech32(collection),
		"minter":       formatBech32(minter),
		"feeRecipient": formatBech32(feeRecipient),
		"salt":         salt.String(),
		"mintParams": map[string]interface{}{
			"price":                    params.Price.String(),
			"maxTotalMintableByWallet": params.MaxTotalMintableByWallet,
			"startTime":                params.StartTime,
			"endTime":                  params.EndTime,
			"dropStageIndex":           params.DropStageIndex,
			"maxTokenSupplyForStage":   params.MaxTokenSupplyForStage,
			"feeBps":                   params.FeeBps,
			"restrictFeeRecipients":    params.RestrictFeeRecipients,
		},
	}
	var result struct {
		Digest string `json:"digest"`
	}
	if err := call("drop_getMintDigest", []interface{}{request}, &result); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Println(result.Digest)
	return 0
}

func formatBech32(addr [20]byte) string {
	return crypto.MustNewAddress(crypto.MintPrefix, addr[:]).String()
}
