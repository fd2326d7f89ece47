package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/RezaEskandarii/genjob/internal/store"
	"github.com/RezaEskandarii/genjob/types"
)

// AssetStore keeps registries as encoded JSON so callers never share
// pointers with the stored state. Unknown entities start empty.
type AssetStore struct {
	mu         sync.Mutex
	registries map[types.EntityRef][]byte
}

var _ store.AssetRepository = (*AssetStore)(nil)

func NewAssetStore() *AssetStore {
	return &AssetStore{registries: make(map[types.EntityRef][]byte)}
}

func (s *AssetStore) LoadRegistry(_ context.Context, ref types.EntityRef) (types.AssetRegistry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(ref)
}

func (s *AssetStore) UpdateHistory(_ context.Context, ref types.EntityRef, key types.AssetKey, fn func(*types.AssetHistory) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	registry, err := s.loadLocked(ref)
	if err != nil {
		return err
	}
	if err := fn(registry.History(key)); err != nil {
		return err
	}
	return s.saveLocked(ref, registry)
}

func (s *AssetStore) SaveRegistry(_ context.Context, ref types.EntityRef, registry types.AssetRegistry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(ref, registry)
}

func (s *AssetStore) loadLocked(ref types.EntityRef) (types.AssetRegistry, error) {
	registry := types.AssetRegistry{}
	raw, ok := s.registries[ref.Identity()]
	if !ok {
		return registry, nil
	}
	if err := json.Unmarshal(raw, &registry); err != nil {
		return nil, fmt.Errorf("failed to decode asset registry of %s: %w", ref, err)
	}
	return registry, nil
}

func (s *AssetStore) saveLocked(ref types.EntityRef, registry types.AssetRegistry) error {
	raw, err := json.Marshal(registry)
	if err != nil {
		return fmt.Errorf("failed to encode asset registry of %s: %w", ref, err)
	}
	s.registries[ref.Identity()] = raw
	return nil
}
