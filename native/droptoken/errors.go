package droptoken

import "errors"

var (
	ErrNilState          = errors.New("droptoken: state not configured")
	ErrInvalidConfig     = errors.New("droptoken: invalid collection config")
	ErrUnknownCollection = errors.New("droptoken: unknown collection")
	ErrCollectionExists  = errors.New("droptoken: collection already exists")
	ErrReentrantMint     = errors.New("droptoken: reentrant mint")
	ErrExceedsMaxSupply  = errors.New("droptoken: exceeds max supply")
)

// Role and delegation violations.
var (
	ErrOnlyOwner                = errors.New("droptoken: caller is not the owner")
	ErrOnlyAdministrator        = errors.New("droptoken: caller is not the administrator")
	ErrOnlyOwnerOrAdministrator = errors.New("droptoken: caller is neither owner nor administrator")
	ErrOnlyAllowedRegistry      = errors.New("droptoken: registry not allow-listed")
)

// Allowed-registry list protocol.
var (
	ErrDuplicateAllowedRegistry    = errors.New("droptoken: registry already allow-listed")
	ErrAllowedRegistryNotPresent   = errors.New("droptoken: registry not present")
	ErrRegistryCannotBeZeroAddress = errors.New("droptoken: registry cannot be the zero address")
)
