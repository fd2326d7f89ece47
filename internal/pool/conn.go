package pool

import (
	"context"
	"database/sql"
	"sync"
)

// Conn is a tracked connection checked out of the pool.
type Conn struct {
	raw  *sql.Conn
	id   uint64
	site string
	m    *Manager
	once sync.Once
}

func (c *Conn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.raw.ExecContext(ctx, query, args...)
}

func (c *Conn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.raw.QueryContext(ctx, query, args...)
}

func (c *Conn) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return c.raw.QueryRowContext(ctx, query, args...)
}

func (c *Conn) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	return c.raw.BeginTx(ctx, opts)
}

// Site is where the connection was acquired.
func (c *Conn) Site() string {
	return c.site
}

// Release returns the connection to the pool. It is safe to call more than once.
func (c *Conn) Release() {
	c.once.Do(func() {
		c.m.untrack(c.id)
		_ = c.raw.Close()
	})
}
