package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/RezaEskandarii/genjob/internal/constants"
	"github.com/RezaEskandarii/genjob/internal/logging"
	"github.com/sirupsen/logrus"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Locker serializes migrations across instances; see lock.AdvisoryLocker.
type Locker interface {
	Acquire(ctx context.Context, lockID int64) error
	Release(ctx context.Context, lockID int64) error
}

// Migrate creates the schema and runs every embedded script in name order.
// Scripts are idempotent, so running Migrate on an up to date database is a
// no-op. Only one instance migrates at a time.
func Migrate(ctx context.Context, db *sql.DB, locker Locker, logger logrus.FieldLogger) (err error) {
	log := logging.Component(logger, "migrate")

	if err := locker.Acquire(ctx, constants.MigrationLock); err != nil {
		return err
	}
	defer func() {
		if releaseErr := locker.Release(context.WithoutCancel(ctx), constants.MigrationLock); releaseErr != nil && err == nil {
			err = releaseErr
		}
	}()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", constants.Schema)); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	scripts, err := readSQLScripts()
	if err != nil {
		return err
	}
	for _, script := range scripts {
		log.WithField("script", script.name).Info("applying migration")
		if _, err := db.ExecContext(ctx, script.body); err != nil {
			return fmt.Errorf("migration %s: %w", script.name, err)
		}
	}
	return nil
}

type sqlScript struct {
	name string
	body string
}

func readSQLScripts() ([]sqlScript, error) {
	entries, err := fs.ReadDir(migrations, "migrations")
	if err != nil {
		return nil, err
	}

	scripts := make([]sqlScript, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		body, err := fs.ReadFile(migrations, "migrations/"+entry.Name())
		if err != nil {
			return nil, err
		}
		scripts = append(scripts, sqlScript{name: entry.Name(), body: string(body)})
	}
	sort.Slice(scripts, func(i, j int) bool { return scripts[i].name < scripts[j].name })
	return scripts, nil
}
