package drop

import (
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// Typed-data identity for signed mint authorizations. Changing either value
// invalidates every outstanding signature.
const (
	TypedDataName    = "MintGate"
	TypedDataVersion = "1.0"
)

// Type strings follow EIP-712 encoding: the SignedMint type hash includes
// the referenced MintParams definition, and field order is normative for
// cross-client compatibility.
const (
	eip712DomainType = "EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"
	mintParamsType   = "MintParams(uint256 price,uint256 maxTotalMintableByWallet,uint256 startTime,uint256 endTime,uint256 dropStageIndex,uint256 maxTokenSupplyForStage,uint256 feeBps,bool restrictFeeRecipients)"
	signedMintType   = "SignedMint(address collection,address minter,address feeRecipient,MintParams mintParams,uint256 salt)"
)

var (
	eip712DomainTypeHash = keccakWord([]byte(eip712DomainType))
	mintParamsTypeHash   = keccakWord([]byte(mintParamsType))
	signedMintTypeHash   = keccakWord([]byte(signedMintType + mintParamsType))
)

// RegistryAddress is the well-known module address identifying this registry
// as the verifying contract in typed-data domains: the last twenty bytes of
// keccak256("mintgate/registry/v1").
func RegistryAddress() [20]byte {
	hash := ethcrypto.Keccak256([]byte("mintgate/registry/v1"))
	var out [20]byte
	copy(out[:], hash[12:])
	return out
}

// Hasher derives replay-protection digests for signed mints. One instance is
// bound to a network (chain ID) and a registry address; both feed the domain
// separator.
type Hasher struct {
	chainID         uint64
	registry        [20]byte
	domainSeparator [32]byte
}

// NewHasher builds a hasher for the given network identity.
func NewHasher(chainID uint64, registry [20]byte) *Hasher {
	h := &Hasher{chainID: chainID, registry: registry}
	h.domainSeparator = keccakWords(
		eip712DomainTypeHash,
		keccakWord([]byte(TypedDataName)),
		keccakWord([]byte(TypedDataVersion)),
		uintWord(chainID),
		addressWord(registry),
	)
	return h
}

// ChainID returns the network identity baked into the domain separator.
func (h *Hasher) ChainID() uint64 { return h.chainID }

// Registry returns the verifying registry address.
func (h *Hasher) Registry() [20]byte { return h.registry }

// DomainSeparator returns the EIP-712 domain separator.
func (h *Hasher) DomainSeparator() [32]byte { return h.domainSeparator }

// MintDigest computes the typed-data digest binding the collection, the
// resolved minter, the fee recipient, the full mint-parameter tuple, and the
// salt. The salt exists solely to let identical economic terms be authorized
// more than once without colliding digests.
func (h *Hasher) MintDigest(collection, minter, feeRecipient [20]byte, params *MintParams, salt *big.Int) ([32]byte, error) {
	if h == nil {
		return [32]byte{}, fmt.Errorf("drop: hasher not configured")
	}
	if params == nil {
		return [32]byte{}, fmt.Errorf("%w: mint params required", ErrInvalidRequest)
	}
	paramsHash, err := hashMintParams(params)
	if err != nil {
		return [32]byte{}, err
	}
	saltWord, err := bigWord(salt)
	if err != nil {
		return [32]byte{}, fmt.Errorf("%w: salt %v", ErrInvalidRequest, salt)
	}
	structHash := keccakWords(
		signedMintTypeHash,
		addressWord(collection),
		addressWord(minter),
		addressWord(feeRecipient),
		paramsHash,
		saltWord,
	)

	buf := make([]byte, 0, 2+32+32)
	buf = append(buf, 0x19, 0x01)
	buf = append(buf, h.domainSeparator[:]...)
	buf = append(buf, structHash[:]...)
	var digest [32]byte
	copy(digest[:], ethcrypto.Keccak256(buf))
	return digest, nil
}

func hashMintParams(params *MintParams) ([32]byte, error) {
	priceWord, err := bigWord(params.Price)
	if err != nil {
		return [32]byte{}, fmt.Errorf("%w: price %v", ErrInvalidRequest, params.Price)
	}
	return keccakWords(
		mintParamsTypeHash,
		priceWord,
		uintWord(params.MaxTotalMintableByWallet),
		uintWord(params.StartTime),
		uintWord(params.EndTime),
		uintWord(uint64(params.DropStageIndex)),
		uintWord(params.MaxTokenSupplyForStage),
		uintWord(uint64(params.FeeBps)),
		boolWord(params.RestrictFeeRecipients),
	), nil
}

func keccakWord(data []byte) [32]byte {
	var out [32]byte
	copy(out[:], ethcrypto.Keccak256(data))
	return out
}

func keccakWords(words ...[32]byte) [32]byte {
	buf := make([]byte, 0, len(words)*32)
	for _, w := range words {
		buf = append(buf, w[:]...)
	}
	var out [32]byte
	copy(out[:], ethcrypto.Keccak256(buf))
	return out
}

func uintWord(v uint64) [32]byte {
	return uint256.NewInt(v).Bytes32()
}

// bigWord encodes a non-negative integer as a 256-bit word. A nil value
// encodes as zero.
func bigWord(v *big.Int) ([32]byte, error) {
	if v == nil {
		return uint256.NewInt(0).Bytes32(), nil
	}
	if v.Sign() < 0 {
		return [32]byte{}, fmt.Errorf("negative value")
	}
	word, overflow := uint256.FromBig(v)
	if overflow {
		return [32]byte{}, fmt.Errorf("value exceeds 256 bits")
	}
	return word.Bytes32(), nil
}

func boolWord(v bool) [32]byte {
	if v {
		return uint256.NewInt(1).Bytes32()
	}
	return uint256.NewInt(0).Bytes32()
}

func addressWord(addr [20]byte) [32]byte {
	var out [32]byte
	copy(out[12:], addr[:])
	return out
}
