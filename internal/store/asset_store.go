package store

import (
	"context"

	"github.com/RezaEskandarii/genjob/types"
)

// AssetRepository reads and writes the AssetRegistry embedded in an owning
// entity's row.
type AssetRepository interface {
	LoadRegistry(ctx context.Context, ref types.EntityRef) (types.AssetRegistry, error)

	// UpdateHistory runs fn on the history stored under key and persists the
	// result. Each call is isolated per entity row; fn may run against an
	// empty history.
	UpdateHistory(ctx context.Context, ref types.EntityRef, key types.AssetKey, fn func(*types.AssetHistory) error) error

	// SaveRegistry overwrites the entity's whole registry.
	SaveRegistry(ctx context.Context, ref types.EntityRef, registry types.AssetRegistry) error
}
