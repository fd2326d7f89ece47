package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/RezaEskandarii/genjob/internal/pool"
)

// PostgresDistributedLockManager keeps leases in genjob_schema.leases.
type PostgresDistributedLockManager struct {
	db pool.Querier
}

var _ DistributedLockManager = (*PostgresDistributedLockManager)(nil)

func NewPostgresDistributedLockManager(db pool.Querier) *PostgresDistributedLockManager {
	return &PostgresDistributedLockManager{
		db: db,
	}
}

// Acquire is a single upsert: the conflicting row is only overwritten when
// it belongs to the same holder or has expired.
func (l *PostgresDistributedLockManager) Acquire(ctx context.Context, resourceID, holderID string, ttl time.Duration) (bool, error) {
	query := `
		INSERT INTO genjob_schema.leases AS l (resource_id, holder_id, ttl_ms, lease_expiry, acquired_at)
		VALUES ($1, $2, $3, NOW() + ($3::bigint * INTERVAL '1 millisecond'), NOW())
		ON CONFLICT (resource_id) DO UPDATE
		SET holder_id = EXCLUDED.holder_id,
		    ttl_ms = EXCLUDED.ttl_ms,
		    lease_expiry = EXCLUDED.lease_expiry,
		    acquired_at = CASE WHEN l.holder_id = EXCLUDED.holder_id THEN l.acquired_at ELSE NOW() END
		WHERE l.holder_id = EXCLUDED.holder_id OR l.lease_expiry < NOW()
	`

	res, err := l.db.Exec(ctx, query, resourceID, holderID, ttl.Milliseconds())
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", resourceID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (l *PostgresDistributedLockManager) Refresh(ctx context.Context, resourceID, holderID string) (bool, error) {
	query := `
		UPDATE genjob_schema.leases
		SET lease_expiry = NOW() + (ttl_ms * INTERVAL '1 millisecond')
		WHERE resource_id = $1 AND holder_id = $2 AND lease_expiry >= NOW()
	`

	res, err := l.db.Exec(ctx, query, resourceID, holderID)
	if err != nil {
		return false, fmt.Errorf("failed to refresh lock %s: %w", resourceID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (l *PostgresDistributedLockManager) Release(ctx context.Context, resourceID, holderID string) error {
	_, err := l.db.Exec(ctx, `DELETE FROM genjob_schema.leases WHERE resource_id = $1 AND holder_id = $2`, resourceID, holderID)
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", resourceID, err)
	}
	return nil
}
