package mocks

import (
	"context"

	"github.com/RezaEskandarii/genjob/types"
)

// MockAssetRepository is a mock implementation of store.AssetRepository for testing.
type MockAssetRepository struct {
	LoadRegistryFunc  func(ctx context.Context, ref types.EntityRef) (types.AssetRegistry, error)
	UpdateHistoryFunc func(ctx context.Context, ref types.EntityRef, key types.AssetKey, fn func(*types.AssetHistory) error) error
	SaveRegistryFunc  func(ctx context.Context, ref types.EntityRef, registry types.AssetRegistry) error
}

func (m *MockAssetRepository) LoadRegistry(ctx context.Context, ref types.EntityRef) (types.AssetRegistry, error) {
	if m.LoadRegistryFunc != nil {
		return m.LoadRegistryFunc(ctx, ref)
	}
	return types.AssetRegistry{}, nil
}

func (m *MockAssetRepository) UpdateHistory(ctx context.Context, ref types.EntityRef, key types.AssetKey, fn func(*types.AssetHistory) error) error {
	if m.UpdateHistoryFunc != nil {
		return m.UpdateHistoryFunc(ctx, ref, key, fn)
	}
	return fn(&types.AssetHistory{})
}

func (m *MockAssetRepository) SaveRegistry(ctx context.Context, ref types.EntityRef, registry types.AssetRegistry) error {
	if m.SaveRegistryFunc != nil {
		return m.SaveRegistryFunc(ctx, ref, registry)
	}
	return nil
}
