package test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/RezaEskandarii/genjob/client"
	"github.com/RezaEskandarii/genjob/client/test/mocks"
	"github.com/RezaEskandarii/genjob/custom_errors"
	"github.com/RezaEskandarii/genjob/internal/store/memory"
	"github.com/RezaEskandarii/genjob/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const startFrame types.AssetKey = "scene_start_frame"

var fixedTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestAssetManager() *client.AssetManager {
	return client.NewAssetManager(memory.NewAssetStore())
}

func TestAssetManager_SingleSceneFirstSave(t *testing.T) {
	am := newTestAssetManager()
	ctx := context.Background()
	scope := types.SceneScope("p1", "s1")

	created, err := am.CreateVersionedAssets(ctx, scope, startFrame,
		types.Uniform("image"), []string{"s3://frames/1.png"}, types.Uniform(types.Metadata{"seed": 7}), false)
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, 1, created[0].Version)
	assert.Equal(t, "image", created[0].Type)

	registry, err := am.LoadRegistry(ctx, types.EntityRef{Kind: types.EntityScene, ID: "s1"})
	require.NoError(t, err)
	h := registry[startFrame]
	require.NotNil(t, h)
	assert.Equal(t, 1, h.Head)
	assert.Equal(t, 1, h.Best, "first version becomes best")
	require.Len(t, h.Versions, 1)
}

func TestAssetManager_VersionsAreGapless(t *testing.T) {
	am := newTestAssetManager()
	ctx := context.Background()
	scope := types.SceneScope("p1", "s1")

	for i := 1; i <= 4; i++ {
		next, err := am.GetNextVersionNumber(ctx, scope, startFrame)
		require.NoError(t, err)
		assert.Equal(t, []int{i}, next)

		created, err := am.CreateVersionedAssets(ctx, scope, startFrame,
			types.Uniform("image"), []string{"data"}, types.PerEntity[types.Metadata]{}, false)
		require.NoError(t, err)
		assert.Equal(t, i, created[0].Version)
	}

	best, err := am.GetBestVersion(ctx, scope, startFrame)
	require.NoError(t, err)
	require.NotNil(t, best[0])
	assert.Equal(t, 1, best[0].Version, "later versions do not replace best unless asked")
}

func TestAssetManager_SetBestOnCreate(t *testing.T) {
	am := newTestAssetManager()
	ctx := context.Background()
	scope := types.SceneScope("p1", "s1")

	_, err := am.CreateVersionedAssets(ctx, scope, startFrame, types.Uniform("image"), []string{"a"}, types.PerEntity[types.Metadata]{}, false)
	require.NoError(t, err)
	_, err = am.CreateVersionedAssets(ctx, scope, startFrame, types.Uniform("image"), []string{"b"}, types.PerEntity[types.Metadata]{}, true)
	require.NoError(t, err)

	best, err := am.GetBestVersion(ctx, scope, startFrame)
	require.NoError(t, err)
	assert.Equal(t, 2, best[0].Version)
	assert.Equal(t, "b", best[0].Data)
}

func TestAssetManager_PluralScopePerEntityValues(t *testing.T) {
	am := newTestAssetManager()
	ctx := context.Background()
	scope := types.CharactersScope("p1", "c1", "c2", "c3")
	key := types.AssetKey("character_portrait")

	created, err := am.CreateVersionedAssets(ctx, scope, key,
		types.Each("image", "video"),
		[]string{"d1", "d2", "d3"},
		types.Each(types.Metadata{"i": 1}, types.Metadata{"i": 2}, types.Metadata{"i": 3}),
		false)
	require.NoError(t, err)
	require.Len(t, created, 3)
	assert.Equal(t, "image", created[0].Type)
	assert.Equal(t, "video", created[1].Type)
	assert.Equal(t, "image", created[2].Type, "missing entries fall back to the first")
	assert.Equal(t, 3, created[2].Metadata["i"])

	_, err = am.CreateVersionedAssets(ctx, types.CharactersScope("p1", "c2"), key,
		types.Uniform("image"), []string{"again"}, types.PerEntity[types.Metadata]{}, false)
	require.NoError(t, err)

	next, err := am.GetNextVersionNumber(ctx, scope, key)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 2}, next)
}

func TestAssetManager_ScopeMismatch(t *testing.T) {
	am := newTestAssetManager()
	ctx := context.Background()

	_, err := am.CreateVersionedAssets(ctx, types.LocationsScope("p1", "l1", "l2"), "bg",
		types.Uniform("image"), []string{"only-one"}, types.PerEntity[types.Metadata]{}, false)
	assert.ErrorIs(t, err, custom_errors.ErrScopeMismatch)

	_, err = am.SetBestVersion(ctx, types.LocationsScope("p1", "l1"), "bg", []int{1, 2})
	assert.ErrorIs(t, err, custom_errors.ErrScopeMismatch)
}

func TestAssetManager_SetBestVersionSkipsInvalid(t *testing.T) {
	am := newTestAssetManager()
	ctx := context.Background()
	scope := types.CharactersScope("p1", "c1", "c2")
	key := types.AssetKey("portrait")

	for i := 0; i < 3; i++ {
		_, err := am.CreateVersionedAssets(ctx, scope, key, types.Uniform("image"), []string{"a", "b"}, types.PerEntity[types.Metadata]{}, false)
		require.NoError(t, err)
	}

	applied, err := am.SetBestVersion(ctx, scope, key, []int{3, 9})
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false}, applied)

	best, err := am.GetBestVersion(ctx, scope, key)
	require.NoError(t, err)
	assert.Equal(t, 3, best[0].Version)
	assert.Equal(t, 1, best[1].Version)

	applied, err = am.SetBestVersion(ctx, scope, key, []int{0, 0})
	require.NoError(t, err)
	assert.Equal(t, []bool{true, true}, applied)

	best, err = am.GetBestVersion(ctx, scope, key)
	require.NoError(t, err)
	assert.Nil(t, best[0])
	assert.Nil(t, best[1])
}

func TestAssetManager_SetBestVersionOnEmptyHistory(t *testing.T) {
	am := newTestAssetManager()
	ctx := context.Background()
	scope := types.ProjectScope("p1")

	applied, err := am.SetBestVersion(ctx, scope, "cover", []int{1})
	require.NoError(t, err)
	assert.Equal(t, []bool{false}, applied)

	registry, err := am.LoadRegistry(ctx, types.EntityRef{Kind: types.EntityProject, ID: "p1"})
	require.NoError(t, err)
	assert.NotContains(t, registry, types.AssetKey("cover"))
}

func TestAssetManager_StorageErrorStopsPluralScope(t *testing.T) {
	calls := 0
	repo := &mocks.MockAssetRepository{
		UpdateHistoryFunc: func(ctx context.Context, ref types.EntityRef, key types.AssetKey, fn func(*types.AssetHistory) error) error {
			calls++
			if ref.ID == "l2" {
				return errors.New("deadlock detected")
			}
			return fn(&types.AssetHistory{})
		},
	}
	am := client.NewAssetManager(repo)

	created, err := am.CreateVersionedAssets(context.Background(), types.LocationsScope("p1", "l1", "l2", "l3"), "bg",
		types.Uniform("image"), []string{"a", "b", "c"}, types.PerEntity[types.Metadata]{}, false)
	assert.Error(t, err)
	assert.Len(t, created, 1)
	assert.Equal(t, 2, calls)
}

func TestAssetManager_LoadErrorIsWrapped(t *testing.T) {
	repo := &mocks.MockAssetRepository{
		LoadRegistryFunc: func(ctx context.Context, ref types.EntityRef) (types.AssetRegistry, error) {
			return nil, custom_errors.ErrEntityNotFound
		},
	}
	am := client.NewAssetManager(repo)

	_, err := am.GetBestVersion(context.Background(), types.SceneScope("p1", "s9"), startFrame)
	assert.ErrorIs(t, err, custom_errors.ErrEntityNotFound)
}

func TestSetBestVersionFast(t *testing.T) {
	h := &types.AssetHistory{}
	h.Append(types.NewAssetVersion{Type: "image", Data: "a"}, false, fixedTime)
	h.Append(types.NewAssetVersion{Type: "image", Data: "b"}, false, fixedTime)
	registry := types.AssetRegistry{startFrame: h}

	require.NoError(t, client.SetBestVersionFast(registry, startFrame, 2))
	assert.Equal(t, 2, registry[startFrame].Best)

	assert.ErrorIs(t, client.SetBestVersionFast(registry, startFrame, 5), custom_errors.ErrVersionMissing)
	assert.Equal(t, 2, registry[startFrame].Best)

	assert.ErrorIs(t, client.SetBestVersionFast(registry, "missing", 1), custom_errors.ErrAssetNotFound)
	assert.NoError(t, client.SetBestVersionFast(registry, "missing", 0))
	assert.NotContains(t, registry, types.AssetKey("missing"))

	require.NoError(t, client.SetBestVersionFast(registry, startFrame, 0))
	assert.Equal(t, 0, registry[startFrame].Best)
}

func TestAssetManager_SaveRegistryRoundTrip(t *testing.T) {
	am := newTestAssetManager()
	ctx := context.Background()
	ref := types.EntityRef{Kind: types.EntityScene, ID: "s1"}

	_, err := am.CreateVersionedAssets(ctx, types.SceneScope("p1", "s1"), startFrame,
		types.Uniform("image"), []string{"a"}, types.PerEntity[types.Metadata]{}, false)
	require.NoError(t, err)
	_, err = am.CreateVersionedAssets(ctx, types.SceneScope("p1", "s1"), startFrame,
		types.Uniform("image"), []string{"b"}, types.PerEntity[types.Metadata]{}, false)
	require.NoError(t, err)

	registry, err := am.LoadRegistry(ctx, ref)
	require.NoError(t, err)
	require.NoError(t, client.SetBestVersionFast(registry, startFrame, 2))
	require.NoError(t, am.SaveRegistry(ctx, ref, registry))

	best, err := am.GetBestVersion(ctx, types.SceneScope("p1", "s1"), startFrame)
	require.NoError(t, err)
	assert.Equal(t, "b", best[0].Data)
}
