package pool

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RezaEskandarii/genjob/custom_errors"
	"github.com/RezaEskandarii/genjob/internal/logging"
	"github.com/RezaEskandarii/genjob/types/config"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Querier is the subset of Manager the stores depend on.
type Querier interface {
	Exec(ctx context.Context, query string, args ...any) (sql.Result, error)
	Query(ctx context.Context, query string, scan func(*sql.Rows) error, args ...any) error
	QueryRow(ctx context.Context, query string, scan func(*sql.Row) error, args ...any) error
	Transaction(ctx context.Context, fn func(tx *sql.Tx) error) error
}

type Options struct {
	Pool         config.PoolConfig    // expected to be resolved (see Config.ResolvedPool)
	Breaker      config.BreakerConfig // expected to be resolved (see Config.ResolvedBreaker)
	Logger       logrus.FieldLogger
	OnDiagnostic func(Diagnostic)
}

// Manager owns the database connection pool. Every connection handed out is
// tracked until released, all operations pass through the circuit breaker,
// and periodic tasks sweep for leaks, log metrics and probe health.
type Manager struct {
	db           *sql.DB
	cfg          config.PoolConfig
	breaker      *breaker
	logger       *logrus.Entry
	onDiagnostic func(Diagnostic)

	mu        sync.Mutex
	checkouts map[uint64]*checkout
	nextID    uint64

	waiting     atomic.Int64
	lastAcquire atomic.Int64 // nanoseconds
	closed      atomic.Bool

	scheduler *cron.Cron
}

var _ Querier = (*Manager)(nil)

// Open opens a database with the given driver and wraps it.
func Open(driverName, dsn string, opts Options) (*Manager, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return New(db, opts), nil
}

// New wraps an existing *sql.DB and applies the pool limits to it.
func New(db *sql.DB, opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	m := &Manager{
		db:           db,
		cfg:          opts.Pool,
		logger:       logging.Component(opts.Logger, "pool"),
		onDiagnostic: opts.OnDiagnostic,
		checkouts:    make(map[uint64]*checkout),
	}
	m.breaker = newBreaker(opts.Breaker, m.logger, m.emit)

	if m.cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(m.cfg.MaxOpenConns)
	}
	if m.cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(m.cfg.MaxIdleConns)
	}
	if m.cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(m.cfg.ConnMaxLifetime)
	}
	return m
}

// DB exposes the underlying handle for callers that need driver specific
// behaviour, such as session level advisory locks.
func (m *Manager) DB() *sql.DB {
	return m.db
}

// Start schedules the leak sweep, metrics log and health check.
func (m *Manager) Start() {
	cronLogger := cron.PrintfLogger(m.logger)
	m.scheduler = cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)))

	if m.cfg.LeakSweepInterval > 0 {
		m.scheduler.Schedule(cron.Every(m.cfg.LeakSweepInterval), cron.FuncJob(func() {
			m.SweepLeaks(time.Now())
		}))
	}
	if m.cfg.MetricsInterval > 0 {
		m.scheduler.Schedule(cron.Every(m.cfg.MetricsInterval), cron.FuncJob(m.LogMetrics))
	}
	if m.cfg.HealthCheckInterval > 0 {
		m.scheduler.Schedule(cron.Every(m.cfg.HealthCheckInterval), cron.FuncJob(func() {
			_ = m.HealthCheck(context.Background())
		}))
	}
	m.scheduler.Start()
}

// Acquire checks out a connection. The caller must call Release on it.
// When the breaker is open it fails immediately with ErrCircuitOpen.
func (m *Manager) Acquire(ctx context.Context) (*Conn, error) {
	done, err := m.breaker.allow()
	if err != nil {
		return nil, err
	}
	conn, err := m.acquire(ctx)
	done(err)
	return conn, err
}

func (m *Manager) acquire(ctx context.Context) (*Conn, error) {
	if m.closed.Load() {
		return nil, custom_errors.ErrPoolClosed
	}

	actx := ctx
	if m.cfg.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, m.cfg.AcquireTimeout)
		defer cancel()
	}

	m.waiting.Add(1)
	start := time.Now()
	raw, err := m.db.Conn(actx)
	elapsed := time.Since(start)
	m.waiting.Add(-1)
	m.lastAcquire.Store(int64(elapsed))

	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	site := callSite()
	if m.cfg.SlowAcquireThreshold > 0 && elapsed > m.cfg.SlowAcquireThreshold {
		m.logger.WithFields(logrus.Fields{"elapsed": elapsed.String(), "site": site}).Warn("slow connection acquisition")
		m.emit(Diagnostic{Kind: DiagnosticSlowAcquire, Message: "slow connection acquisition", Site: site, Duration: elapsed, At: time.Now()})
	}

	return m.track(raw, site), nil
}

// Exec runs a statement on a pooled connection.
func (m *Manager) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	err := m.withConn(ctx, query, func(ctx context.Context, c *Conn) error {
		var err error
		res, err = c.raw.ExecContext(ctx, query, args...)
		return err
	})
	return res, err
}

// Query runs query and calls scan once per row.
func (m *Manager) Query(ctx context.Context, query string, scan func(*sql.Rows) error, args ...any) error {
	return m.withConn(ctx, query, func(ctx context.Context, c *Conn) error {
		rows, err := c.raw.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			if err := scan(rows); err != nil {
				return err
			}
		}
		return rows.Err()
	})
}

// QueryRow runs query and hands the single row to scan.
func (m *Manager) QueryRow(ctx context.Context, query string, scan func(*sql.Row) error, args ...any) error {
	return m.withConn(ctx, query, func(ctx context.Context, c *Conn) error {
		return scan(c.raw.QueryRowContext(ctx, query, args...))
	})
}

// Transaction runs fn inside a transaction on one connection. The
// transaction is rolled back when fn returns an error or panics, and the
// connection is always released.
func (m *Manager) Transaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return m.withConn(ctx, "transaction", func(ctx context.Context, c *Conn) error {
		tx, err := c.raw.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		defer func() {
			if p := recover(); p != nil {
				_ = tx.Rollback()
				panic(p)
			}
		}()

		if err := fn(tx); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				m.logger.WithError(rbErr).Warn("rollback failed")
			}
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit transaction: %w", err)
		}
		return nil
	})
}

func (m *Manager) withConn(ctx context.Context, label string, fn func(context.Context, *Conn) error) (err error) {
	done, err := m.breaker.allow()
	if err != nil {
		return err
	}
	// A panic in fn is a caller fault, recorded like an application error
	// before it propagates.
	defer func() {
		if p := recover(); p != nil {
			done(custom_errors.NewApplicationError(label, fmt.Errorf("panic: %v", p)))
			panic(p)
		}
		done(err)
	}()

	c, err := m.acquire(ctx)
	if err != nil {
		return err
	}
	defer c.Release()

	qctx := ctx
	if m.cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		qctx, cancel = context.WithTimeout(ctx, m.cfg.QueryTimeout)
		defer cancel()
	}

	start := time.Now()
	err = fn(qctx, c)
	m.observeQuery(label, c.site, time.Since(start))
	return err
}

// Close stops the periodic tasks, waits up to the drain timeout for
// outstanding connections to be released, force-closes the rest and closes
// the database.
func (m *Manager) Close(ctx context.Context) error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	if m.scheduler != nil {
		<-m.scheduler.Stop().Done()
	}

	if remaining := m.drain(ctx); remaining > 0 {
		m.logger.WithField("remaining", remaining).Warn("drain timeout reached, force-closing connections")
		m.forceCloseAll()
	}
	return m.db.Close()
}

func (m *Manager) drain(ctx context.Context) int {
	timeout := m.cfg.DrainTimeout
	if timeout <= 0 {
		timeout = config.DefaultDrainTimeout
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()

	for {
		n := m.Outstanding()
		if n == 0 {
			return 0
		}
		select {
		case <-ctx.Done():
			return n
		case <-deadline.C:
			return n
		case <-tick.C:
		}
	}
}

func (m *Manager) emit(d Diagnostic) {
	if m.onDiagnostic != nil {
		m.onDiagnostic(d)
	}
}
