package drop

import (
	"errors"
	"math/big"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

func digestFixtureParams() *MintParams {
	return &MintParams{
		Price:                    big.NewInt(1_000),
		MaxTotalMintableByWallet: 5,
		StartTime:                100,
		EndTime:                  200,
		DropStageIndex:           3,
		MaxTokenSupplyForStage:   500,
		FeeBps:                   250,
		RestrictFeeRecipients:    true,
	}
}

func TestRegistryAddressStable(t *testing.T) {
	addr := RegistryAddress()
	if isZeroAddress(addr) {
		t.Fatal("registry module address is zero")
	}
	if addr != RegistryAddress() {
		t.Fatal("registry module address not deterministic")
	}
}

func TestMintDigestDeterministic(t *testing.T) {
	hasher := NewHasher(1881, RegistryAddress())
	collection := newTestAddress(0x11)
	minter := newTestAddress(0x22)
	feeRecipient := newTestAddress(0x33)

	first, err := hasher.MintDigest(collection, minter, feeRecipient, digestFixtureParams(), big.NewInt(7))
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	second, err := hasher.MintDigest(collection, minter, feeRecipient, digestFixtureParams(), big.NewInt(7))
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	if first != second {
		t.Fatal("identical inputs produced different digests")
	}
	if first == ([32]byte{}) {
		t.Fatal("digest is zero")
	}
}

func TestMintDigestBindsEveryField(t *testing.T) {
	hasher := NewHasher(1881, RegistryAddress())
	collection := newTestAddress(0x11)
	minter := newTestAddress(0x22)
	feeRecipient := newTestAddress(0x33)
	salt := big.NewInt(7)

	base, err := hasher.MintDigest(collection, minter, feeRecipient, digestFixtureParams(), salt)
	if err != nil {
		t.Fatalf("base digest: %v", err)
	}

	variants := []struct {
		name   string
		digest func() ([32]byte, error)
	}{
		{"collection", func() ([32]byte, error) {
			return hasher.MintDigest(newTestAddress(0x12), minter, feeRecipient, digestFixtureParams(), salt)
		}},
		{"minter", func() ([32]byte, error) {
			return hasher.MintDigest(collection, newTestAddress(0x23), feeRecipient, digestFixtureParams(), salt)
		}},
		{"fee recipient", func() ([32]byte, error) {
			return hasher.MintDigest(collection, minter, newTestAddress(0x34), digestFixtureParams(), salt)
		}},
		{"salt", func() ([32]byte, error) {
			return hasher.MintDigest(collection, minter, feeRecipient, digestFixtureParams(), big.NewInt(8))
		}},
		{"price", func() ([32]byte, error) {
			p := digestFixtureParams()
			p.Price = big.NewInt(1_001)
			return hasher.MintDigest(collection, minter, feeRecipient, p, salt)
		}},
		{"wallet limit", func() ([32]byte, error) {
			p := digestFixtureParams()
			p.MaxTotalMintableByWallet = 6
			return hasher.MintDigest(collection, minter, feeRecipient, p, salt)
		}},
		{"start time", func() ([32]byte, error) {
			p := digestFixtureParams()
			p.StartTime = 101
			return hasher.MintDigest(collection, minter, feeRecipient, p, salt)
		}},
		{"end time", func() ([32]byte, error) {
			p := digestFixtureParams()
			p.EndTime = 201
			return hasher.MintDigest(collection, minter, feeRecipient, p, salt)
		}},
		{"stage index", func() ([32]byte, error) {
			p := digestFixtureParams()
			p.DropStageIndex = 4
			return hasher.MintDigest(collection, minter, feeRecipient, p, salt)
		}},
		{"stage supply", func() ([32]byte, error) {
			p := digestFixtureParams()
			p.MaxTokenSupplyForStage = 501
			return hasher.MintDigest(collection, minter, feeRecipient, p, salt)
		}},
		{"fee bps", func() ([32]byte, error) {
			p := digestFixtureParams()
			p.FeeBps = 251
			return hasher.MintDigest(collection, minter, feeRecipient, p, salt)
		}},
		{"restrict flag", func() ([32]byte, error) {
			p := digestFixtureParams()
			p.RestrictFeeRecipients = false
			return hasher.MintDigest(collection, minter, feeRecipient, p, salt)
		}},
	}
	for _, variant := range variants {
		digest, err := variant.digest()
		if err != nil {
			t.Fatalf("%s variant: %v", variant.name, err)
		}
		if digest == base {
			t.Fatalf("%s variant did not change the digest", variant.name)
		}
	}
}

func TestDomainSeparatorBindsNetwork(t *testing.T) {
	collection := newTestAddress(0x11)
	minter := newTestAddress(0x22)
	feeRecipient := newTestAddress(0x33)
	salt := big.NewInt(7)

	mainHasher := NewHasher(1881, RegistryAddress())
	base, err := mainHasher.MintDigest(collection, minter, feeRecipient, digestFixtureParams(), salt)
	if err != nil {
		t.Fatalf("base digest: %v", err)
	}

	otherChain := NewHasher(1882, RegistryAddress())
	crossChain, err := otherChain.MintDigest(collection, minter, feeRecipient, digestFixtureParams(), salt)
	if err != nil {
		t.Fatalf("cross-chain digest: %v", err)
	}
	if crossChain == base {
		t.Fatal("digest does not bind the chain id")
	}

	otherRegistry := NewHasher(1881, newTestAddress(0xEE))
	crossRegistry, err := otherRegistry.MintDigest(collection, minter, feeRecipient, digestFixtureParams(), salt)
	if err != nil {
		t.Fatalf("cross-registry digest: %v", err)
	}
	if crossRegistry == base {
		t.Fatal("digest does not bind the registry address")
	}
}

func TestMintDigestNilSaltIsZero(t *testing.T) {
	hasher := NewHasher(1881, RegistryAddress())
	collection := newTestAddress(0x11)
	minter := newTestAddress(0x22)
	feeRecipient := newTestAddress(0x33)

	nilSalt, err := hasher.MintDigest(collection, minter, feeRecipient, digestFixtureParams(), nil)
	if err != nil {
		t.Fatalf("nil salt: %v", err)
	}
	zeroSalt, err := hasher.MintDigest(collection, minter, feeRecipient, digestFixtureParams(), big.NewInt(0))
	if err != nil {
		t.Fatalf("zero salt: %v", err)
	}
	if nilSalt != zeroSalt {
		t.Fatal("nil salt and zero salt disagree")
	}
}

func TestMintDigestRejectsOutOfRangeValues(t *testing.T) {
	hasher := NewHasher(1881, RegistryAddress())
	collection := newTestAddress(0x11)
	minter := newTestAddress(0x22)
	feeRecipient := newTestAddress(0x33)

	if _, err := hasher.MintDigest(collection, minter, feeRecipient, digestFixtureParams(), big.NewInt(-1)); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("negative salt: got %v", err)
	}
	huge := new(big.Int).Lsh(big.NewInt(1), 256)
	if _, err := hasher.MintDigest(collection, minter, feeRecipient, digestFixtureParams(), huge); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("oversize salt: got %v", err)
	}

	params := digestFixtureParams()
	params.Price = big.NewInt(-5)
	if _, err := hasher.MintDigest(collection, minter, feeRecipient, params, big.NewInt(1)); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("negative price: got %v", err)
	}
	if _, err := hasher.MintDigest(collection, minter, feeRecipient, nil, big.NewInt(1)); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("nil params: got %v", err)
	}
}

func TestSignRecoverRoundTrip(t *testing.T) {
	hasher := NewHasher(1881, RegistryAddress())
	key := newSignerKey(t)
	var signer [20]byte
	copy(signer[:], ethcrypto.PubkeyToAddress(key.PublicKey).Bytes())

	digest, err := hasher.MintDigest(newTestAddress(0x11), newTestAddress(0x22), newTestAddress(0x33), digestFixtureParams(), big.NewInt(1))
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	sig, err := ethcrypto.Sign(digest[:], key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	recovered, err := recoverSigner(digest, sig)
	if err != nil {
		t.Fatalf("recover raw v: %v", err)
	}
	if recovered != signer {
		t.Fatalf("recovered %x, want %x", recovered, signer)
	}

	// The 27/28 convention must recover the same address.
	shifted := make([]byte, len(sig))
	copy(shifted, sig)
	shifted[64] += 27
	recovered, err = recoverSigner(digest, shifted)
	if err != nil {
		t.Fatalf("recover shifted v: %v", err)
	}
	if recovered != signer {
		t.Fatalf("shifted v recovered %x, want %x", recovered, signer)
	}

	// A different digest recovers a different address.
	other, err := hasher.MintDigest(newTestAddress(0x11), newTestAddress(0x22), newTestAddress(0x33), digestFixtureParams(), big.NewInt(2))
	if err != nil {
		t.Fatalf("other digest: %v", err)
	}
	recovered, err = recoverSigner(other, sig)
	if err == nil && recovered == signer {
		t.Fatal("signature verified against a digest it never signed")
	}

	if _, err := recoverSigner(digest, sig[:64]); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("truncated signature: got %v", err)
	}
}
