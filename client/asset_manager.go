package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RezaEskandarii/genjob/custom_errors"
	"github.com/RezaEskandarii/genjob/internal/logging"
	"github.com/RezaEskandarii/genjob/internal/store"
	"github.com/RezaEskandarii/genjob/types"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

var (
	errBestVersionSkipped = errors.New("best version skipped")
	errNothingToUnset     = errors.New("nothing to unset")
)

// AssetManager keeps the versioned asset histories embedded in projects,
// scenes, characters and locations. Every entity of a scope is updated on
// its own; a failure part way through a plural scope leaves the earlier
// entities written.
type AssetManager struct {
	repo   store.AssetRepository
	logger logrus.FieldLogger
	now    func() time.Time
}

type AssetManagerOption func(*AssetManager)

func WithAssetLogger(l logrus.FieldLogger) AssetManagerOption {
	return func(m *AssetManager) {
		m.logger = l
	}
}

func NewAssetManager(repo store.AssetRepository, opts ...AssetManagerOption) *AssetManager {
	m := &AssetManager{
		repo:   repo,
		logger: logging.Discard(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logging.Component(m.logger, "assets")
	return m
}

// CreateVersionedAssets appends one version per entity of scope. dataList
// must hold exactly one entry per entity; types and metadata are resolved
// per entity through PerEntity.
func (m *AssetManager) CreateVersionedAssets(
	ctx context.Context,
	scope types.Scope,
	key types.AssetKey,
	assetTypes types.PerEntity[string],
	dataList []string,
	metadata types.PerEntity[types.Metadata],
	setBest bool,
) ([]types.AssetVersion, error) {
	entities, err := scope.Entities()
	if err != nil {
		return nil, err
	}
	if len(dataList) != len(entities) {
		return nil, fmt.Errorf("%w: %d entities, %d data entries", custom_errors.ErrScopeMismatch, len(entities), len(dataList))
	}

	newVersions := make([]types.NewAssetVersion, len(dataList))
	for i, data := range dataList {
		newVersions[i] = types.NewAssetVersion{
			Type:     assetTypes.At(i),
			Data:     data,
			Metadata: metadata.At(i),
		}
	}
	return m.SaveAssetHistories(ctx, scope, key, newVersions, setBest)
}

// SaveAssetHistories appends newVersions[i] to the history of the i-th
// entity of scope and returns the numbered versions in the same order.
func (m *AssetManager) SaveAssetHistories(
	ctx context.Context,
	scope types.Scope,
	key types.AssetKey,
	newVersions []types.NewAssetVersion,
	setBest bool,
) (created []types.AssetVersion, err error) {
	ctx, span := startSpan(ctx, "AssetManager.SaveAssetHistories", attribute.String("asset.key", string(key)))
	defer func() { endSpan(span, err) }()

	entities, err := scope.Entities()
	if err != nil {
		return nil, err
	}
	if len(newVersions) != len(entities) {
		return nil, fmt.Errorf("%w: %d entities, %d versions", custom_errors.ErrScopeMismatch, len(entities), len(newVersions))
	}

	created = make([]types.AssetVersion, 0, len(entities))
	for i, ref := range entities {
		var version types.AssetVersion
		err := m.repo.UpdateHistory(ctx, ref, key, func(h *types.AssetHistory) error {
			version = h.Append(newVersions[i], setBest, m.now().UTC())
			return nil
		})
		if err != nil {
			return created, fmt.Errorf("save %s history for %s: %w", key, ref, err)
		}
		m.logger.WithFields(logrus.Fields{
			"entity":  ref.String(),
			"key":     key,
			"version": version.Version,
		}).Debug("asset version saved")
		created = append(created, version)
	}
	return created, nil
}

// GetNextVersionNumber returns head+1 for every entity of scope.
func (m *AssetManager) GetNextVersionNumber(ctx context.Context, scope types.Scope, key types.AssetKey) ([]int, error) {
	histories, err := m.histories(ctx, scope, key)
	if err != nil {
		return nil, err
	}
	next := make([]int, len(histories))
	for i, h := range histories {
		next[i] = h.NextVersion()
	}
	return next, nil
}

// GetBestVersion returns the selected version of every entity of scope;
// entries are nil where nothing is selected.
func (m *AssetManager) GetBestVersion(ctx context.Context, scope types.Scope, key types.AssetKey) ([]*types.AssetVersion, error) {
	histories, err := m.histories(ctx, scope, key)
	if err != nil {
		return nil, err
	}
	best := make([]*types.AssetVersion, len(histories))
	for i, h := range histories {
		best[i] = h.BestVersion()
	}
	return best, nil
}

// SetBestVersion selects versions[i] for the i-th entity of scope; 0 clears
// the selection. A version the entity does not have is skipped with a
// warning and reported as false in the returned slice.
func (m *AssetManager) SetBestVersion(ctx context.Context, scope types.Scope, key types.AssetKey, versions []int) (applied []bool, err error) {
	ctx, span := startSpan(ctx, "AssetManager.SetBestVersion", attribute.String("asset.key", string(key)))
	defer func() { endSpan(span, err) }()

	entities, err := scope.Entities()
	if err != nil {
		return nil, err
	}
	if len(versions) != len(entities) {
		return nil, fmt.Errorf("%w: %d entities, %d versions", custom_errors.ErrScopeMismatch, len(entities), len(versions))
	}

	applied = make([]bool, len(entities))
	for i, ref := range entities {
		version := versions[i]
		err := m.repo.UpdateHistory(ctx, ref, key, func(h *types.AssetHistory) error {
			if version == 0 && h.Head == 0 {
				return errNothingToUnset
			}
			if !h.SetBest(version) {
				return errBestVersionSkipped
			}
			return nil
		})
		switch {
		case err == nil, errors.Is(err, errNothingToUnset):
			applied[i] = true
		case errors.Is(err, errBestVersionSkipped):
			m.logger.WithFields(logrus.Fields{
				"entity":  ref.String(),
				"key":     key,
				"version": version,
			}).Warn("best version does not exist, skipping")
		default:
			return applied, fmt.Errorf("set best %s for %s: %w", key, ref, err)
		}
	}
	return applied, nil
}

// SetBestVersionFast selects version on an already loaded registry without
// touching storage. Persist it with SaveRegistry. Unsetting (version 0) a key
// that has no history is a no-op.
func SetBestVersionFast(registry types.AssetRegistry, key types.AssetKey, version int) error {
	h, ok := registry[key]
	if !ok || h == nil {
		if version == 0 {
			return nil
		}
		return fmt.Errorf("%w: %s", custom_errors.ErrAssetNotFound, key)
	}
	if !h.SetBest(version) {
		return fmt.Errorf("%w: %s v%d", custom_errors.ErrVersionMissing, key, version)
	}
	return nil
}

func (m *AssetManager) LoadRegistry(ctx context.Context, ref types.EntityRef) (types.AssetRegistry, error) {
	return m.repo.LoadRegistry(ctx, ref)
}

func (m *AssetManager) SaveRegistry(ctx context.Context, ref types.EntityRef, registry types.AssetRegistry) error {
	return m.repo.SaveRegistry(ctx, ref, registry)
}

func (m *AssetManager) histories(ctx context.Context, scope types.Scope, key types.AssetKey) ([]*types.AssetHistory, error) {
	entities, err := scope.Entities()
	if err != nil {
		return nil, err
	}
	out := make([]*types.AssetHistory, len(entities))
	for i, ref := range entities {
		registry, err := m.repo.LoadRegistry(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("load registry for %s: %w", ref, err)
		}
		out[i] = registry[key]
	}
	return out, nil
}
