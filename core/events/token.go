package events

import (
	"strconv"

	"mintgate/core/types"
)

const (
	TypeCollectionCreated      = "token.collection_created"
	TypeAllowedRegistryUpdated = "token.allowed_registry_updated"
)

// CollectionCreated announces a new collection in the ledger.
type CollectionCreated struct {
	Collection [20]byte
	Owner      [20]byte
	Name       string
	MaxSupply  uint64
}

func (CollectionCreated) EventType() string { return TypeCollectionCreated }

func (e CollectionCreated) Event() *types.Event {
	return &types.Event{
		Type: TypeCollectionCreated,
		Attributes: map[string]string{
			"collection": bech(e.Collection),
			"owner":      bech(e.Owner),
			"name":       e.Name,
			"maxSupply":  strconv.FormatUint(e.MaxSupply, 10),
		},
	}
}

// AllowedRegistryUpdated records a change to the set of registries a
// collection delegates to.
type AllowedRegistryUpdated struct {
	Collection [20]byte
	Registry   [20]byte
	Allowed    bool
}

func (AllowedRegistryUpdated) EventType() string { return TypeAllowedRegistryUpdated }

func (e AllowedRegistryUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeAllowedRegistryUpdated,
		Attributes: map[string]string{
			"collection": bech(e.Collection),
			"registry":   bech(e.Registry),
			"allowed":    strconv.FormatBool(e.Allowed),
		},
	}
}
