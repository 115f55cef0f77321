package config

import (
	"fmt"
	"math/big"
	"strings"

	"mintgate/crypto"
)

// GenesisAlloc parses the configured genesis balances into runtime values.
// Amounts are base-10 strings so balances are not capped at uint64.
func (c *Config) GenesisAlloc() (map[[20]byte]*big.Int, error) {
	alloc := make(map[[20]byte]*big.Int, len(c.Alloc))
	for rawAddr, rawAmount := range c.Alloc {
		addr, err := crypto.DecodeAddress(strings.TrimSpace(rawAddr))
		if err != nil {
			return nil, fmt.Errorf("invalid Alloc address %q: %w", rawAddr, err)
		}
		if addr.Prefix() != crypto.MintPrefix {
			return nil, fmt.Errorf("invalid Alloc address %q: expected prefix %q", rawAddr, crypto.MintPrefix)
		}
		amount, err := parseUintAmount(rawAmount)
		if err != nil {
			return nil, fmt.Errorf("invalid Alloc amount for %s: %w", rawAddr, err)
		}
		var key [20]byte
		copy(key[:], addr.Bytes())
		alloc[key] = amount
	}
	return alloc, nil
}

func parseUintAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("not a base-10 integer: %q", raw)
	}
	if value.Sign() < 0 {
		return nil, fmt.Errorf("negative amount: %q", raw)
	}
	return value, nil
}
