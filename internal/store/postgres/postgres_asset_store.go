package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/RezaEskandarii/genjob/custom_errors"
	"github.com/RezaEskandarii/genjob/internal/pool"
	"github.com/RezaEskandarii/genjob/internal/store"
	"github.com/RezaEskandarii/genjob/types"
)

var entityTables = map[types.EntityKind]string{
	types.EntityProject:   "genjob_schema.projects",
	types.EntityScene:     "genjob_schema.scenes",
	types.EntityCharacter: "genjob_schema.characters",
	types.EntityLocation:  "genjob_schema.locations",
}

// PostgresAssetStore keeps each entity's AssetRegistry in the assets JSONB
// column of the owning row.
type PostgresAssetStore struct {
	db pool.Querier
}

var _ store.AssetRepository = (*PostgresAssetStore)(nil)

func NewPostgresAssetStore(db pool.Querier) *PostgresAssetStore {
	return &PostgresAssetStore{db: db}
}

func (s *PostgresAssetStore) LoadRegistry(ctx context.Context, ref types.EntityRef) (types.AssetRegistry, error) {
	table, err := tableFor(ref)
	if err != nil {
		return nil, err
	}

	var raw []byte
	err = s.db.QueryRow(ctx, `SELECT assets FROM `+table+` WHERE id = $1`, func(row *sql.Row) error {
		return row.Scan(&raw)
	}, ref.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return types.AssetRegistry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load assets of %s: %w", ref, err)
	}
	return decodeRegistry(raw)
}

// UpdateHistory creates the owning row on first write, then locks it for
// the duration of the read-modify-write so concurrent writers to one entity
// serialize.
func (s *PostgresAssetStore) UpdateHistory(ctx context.Context, ref types.EntityRef, key types.AssetKey, fn func(*types.AssetHistory) error) error {
	table, err := tableFor(ref)
	if err != nil {
		return err
	}

	return s.db.Transaction(ctx, func(tx *sql.Tx) error {
		if err := ensureOwner(ctx, tx, table, ref); err != nil {
			return err
		}

		var raw []byte
		err := tx.QueryRowContext(ctx, `SELECT assets FROM `+table+` WHERE id = $1 FOR UPDATE`, ref.ID).Scan(&raw)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%s: %w", ref, custom_errors.ErrEntityNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to lock assets of %s: %w", ref, err)
		}

		registry, err := decodeRegistry(raw)
		if err != nil {
			return err
		}
		history := registry.History(key)
		if err := fn(history); err != nil {
			return err
		}

		encoded, err := json.Marshal(history)
		if err != nil {
			return fmt.Errorf("failed to encode asset history: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE `+table+`
			SET assets = jsonb_set(COALESCE(assets, '{}'::jsonb), ARRAY[$2::text], $3::jsonb, true),
			    updated_at = NOW()
			WHERE id = $1`,
			ref.ID, string(key), string(encoded),
		)
		if err != nil {
			return fmt.Errorf("failed to save assets of %s: %w", ref, err)
		}
		return nil
	})
}

func (s *PostgresAssetStore) SaveRegistry(ctx context.Context, ref types.EntityRef, registry types.AssetRegistry) error {
	table, err := tableFor(ref)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(registry)
	if err != nil {
		return fmt.Errorf("failed to encode asset registry: %w", err)
	}

	return s.db.Transaction(ctx, func(tx *sql.Tx) error {
		if err := ensureOwner(ctx, tx, table, ref); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `UPDATE `+table+` SET assets = $2::jsonb, updated_at = NOW() WHERE id = $1`, ref.ID, string(encoded))
		if err != nil {
			return fmt.Errorf("failed to save assets of %s: %w", ref, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return fmt.Errorf("%s: %w", ref, custom_errors.ErrEntityNotFound)
		}
		return nil
	})
}

// ensureOwner inserts the entity row, and the project it belongs to, when
// missing. A child ref without a ProjectID cannot be created and is left to
// the caller's lookup.
func ensureOwner(ctx context.Context, tx *sql.Tx, table string, ref types.EntityRef) error {
	projectID := ref.ProjectID
	if ref.Kind == types.EntityProject {
		projectID = ref.ID
	}
	if projectID == "" {
		return nil
	}

	_, err := tx.ExecContext(ctx, `INSERT INTO genjob_schema.projects (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, projectID)
	if err != nil {
		return fmt.Errorf("failed to create project %s: %w", projectID, err)
	}
	if ref.Kind == types.EntityProject {
		return nil
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO `+table+` (id, project_id) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`, ref.ID, projectID)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", ref, err)
	}
	return nil
}

func tableFor(ref types.EntityRef) (string, error) {
	table, ok := entityTables[ref.Kind]
	if !ok {
		return "", fmt.Errorf("unknown entity kind %q", ref.Kind)
	}
	return table, nil
}

func decodeRegistry(raw []byte) (types.AssetRegistry, error) {
	registry := types.AssetRegistry{}
	if len(raw) == 0 {
		return registry, nil
	}
	if err := json.Unmarshal(raw, &registry); err != nil {
		return nil, fmt.Errorf("failed to decode asset registry: %w", err)
	}
	if registry == nil {
		registry = types.AssetRegistry{}
	}
	return registry, nil
}
