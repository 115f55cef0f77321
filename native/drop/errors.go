package drop

import "errors"

var (
	// Engine plumbing.
	ErrNilState          = errors.New("drop: state not configured")
	ErrNilRegistry       = errors.New("drop: registry not configured")
	ErrNilCollections    = errors.New("drop: collection resolver not configured")
	ErrInvalidRequest    = errors.New("drop: invalid mint request")
	ErrUnknownCollection = errors.New("drop: collection not found")
	ErrReentrantCall     = errors.New("drop: reentrant call")

	// Policy violations.
	ErrStageNotActive                = errors.New("drop: stage not active")
	ErrIncorrectPayment              = errors.New("drop: incorrect payment")
	ErrPayerNotAllowed               = errors.New("drop: payer not allowed")
	ErrQuantityCannotBeZero          = errors.New("drop: quantity cannot be zero")
	ErrExceedsMaxMintedPerWallet     = errors.New("drop: exceeds max minted per wallet")
	ErrExceedsMaxSupply              = errors.New("drop: exceeds max supply")
	ErrExceedsMaxTokenSupplyForStage = errors.New("drop: exceeds max token supply for stage")
	ErrFeeRecipientNotAllowed        = errors.New("drop: fee recipient not allowed")
	ErrInsufficientPayerBalance      = errors.New("drop: insufficient payer balance")
	ErrPaymentRejected               = errors.New("drop: payment rejected by receiver")

	// Signature violations. Every envelope bound carries its own error so
	// callers can tell which signed constraint failed.
	ErrSignatureAlreadyUsed                 = errors.New("drop: signature already used")
	ErrInvalidSignature                     = errors.New("drop: invalid signature")
	ErrInvalidSignedMintPrice               = errors.New("drop: mint price below signer minimum")
	ErrInvalidSignedMaxTotalMintableByWallet = errors.New("drop: max total mintable by wallet above signer maximum")
	ErrInvalidSignedStartTime               = errors.New("drop: start time before signer minimum")
	ErrInvalidSignedEndTime                 = errors.New("drop: end time after signer maximum")
	ErrInvalidSignedMaxTokenSupplyForStage  = errors.New("drop: max token supply for stage above signer maximum")
	ErrInvalidSignedFeeBps                  = errors.New("drop: fee bps outside signer bounds")
	ErrSignedMintsMustRestrictFeeRecipients = errors.New("drop: signed mints must restrict fee recipients")

	// Configuration errors surfaced at settlement.
	ErrInvalidFeeBps                          = errors.New("drop: fee bps exceeds 10000")
	ErrCreatorPayoutAddressCannotBeZeroAddress = errors.New("drop: creator payout address cannot be zero address")

	// Capability and tenancy.
	ErrOnlyCapableCollection = errors.New("drop: caller is not a capable collection")

	// Enumerated-set protocol.
	ErrDuplicateFeeRecipient            = errors.New("drop: duplicate fee recipient")
	ErrFeeRecipientNotPresent           = errors.New("drop: fee recipient not present")
	ErrFeeRecipientCannotBeZeroAddress  = errors.New("drop: fee recipient cannot be zero address")
	ErrDuplicatePayer                   = errors.New("drop: duplicate payer")
	ErrPayerNotPresent                  = errors.New("drop: payer not present")
	ErrPayerCannotBeZeroAddress         = errors.New("drop: payer cannot be zero address")
	ErrDuplicateSigner                  = errors.New("drop: duplicate signer")
	ErrSignerNotPresent                 = errors.New("drop: signer not present")
	ErrSignerCannotBeZeroAddress        = errors.New("drop: signer cannot be zero address")

	// Token-gated configuration and redemption ledger.
	ErrGatedTokenCannotBeZeroAddress = errors.New("drop: gated token cannot be zero address")
	ErrGatedTokenCannotBeDropToken   = errors.New("drop: gated token cannot be the drop token itself")
	ErrGatedTokenNotPresent          = errors.New("drop: gated token not present")
	ErrGatedTokenIDAlreadyRedeemed   = errors.New("drop: gated token id already redeemed")
)
