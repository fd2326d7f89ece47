package pool

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Snapshot is a point-in-time view of the pool.
type Snapshot struct {
	Open         int           `json:"open"`
	InUse        int           `json:"inUse"`
	Idle         int           `json:"idle"`
	MaxOpen      int           `json:"maxOpen"`
	Waiting      int64         `json:"waiting"`
	Outstanding  int           `json:"outstanding"`
	WaitCount    int64         `json:"waitCount"`
	WaitDuration time.Duration `json:"waitDuration"`
	LastAcquire  time.Duration `json:"lastAcquire"`
	Circuit      CircuitState  `json:"circuit"`
	Failures     uint32        `json:"failures"`
}

func (m *Manager) Snapshot() Snapshot {
	stats := m.db.Stats()
	return Snapshot{
		Open:         stats.OpenConnections,
		InUse:        stats.InUse,
		Idle:         stats.Idle,
		MaxOpen:      stats.MaxOpenConnections,
		Waiting:      m.waiting.Load(),
		Outstanding:  m.Outstanding(),
		WaitCount:    stats.WaitCount,
		WaitDuration: stats.WaitDuration,
		LastAcquire:  time.Duration(m.lastAcquire.Load()),
		Circuit:      m.breaker.state(),
		Failures:     m.breaker.failures(),
	}
}

// CircuitState reports the breaker state; closed when the breaker is disabled.
func (m *Manager) CircuitState() CircuitState {
	return m.breaker.state()
}

// IsHealthy is true while the breaker is not open, fewer than half the
// maximum connections are waiting, and not every connection is checked out.
func (m *Manager) IsHealthy() bool {
	if m.closed.Load() || m.breaker.state() == CircuitOpen {
		return false
	}
	maxOpen := m.cfg.MaxOpenConns
	if maxOpen <= 0 {
		return true
	}
	if m.waiting.Load()*2 >= int64(maxOpen) {
		return false
	}
	return m.Outstanding() < maxOpen
}

func (m *Manager) LogMetrics() {
	s := m.Snapshot()
	m.logger.WithFields(logrus.Fields{
		"open":         s.Open,
		"in_use":       s.InUse,
		"idle":         s.Idle,
		"waiting":      s.Waiting,
		"outstanding":  s.Outstanding,
		"last_acquire": s.LastAcquire.String(),
		"circuit":      s.Circuit,
	}).Info("pool metrics")
}

// HealthCheck runs a trivial query through the breaker.
func (m *Manager) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := m.Exec(ctx, "SELECT 1"); err != nil {
		m.logger.WithError(err).Warn("database health check failed")
		m.emit(Diagnostic{Kind: DiagnosticHealthCheck, Message: err.Error(), At: time.Now()})
		return err
	}
	return nil
}

func (m *Manager) observeQuery(label, site string, elapsed time.Duration) {
	if m.cfg.SlowQueryThreshold <= 0 || elapsed <= m.cfg.SlowQueryThreshold {
		return
	}
	m.logger.WithFields(logrus.Fields{
		"query":   truncate(label, 120),
		"elapsed": elapsed.String(),
		"site":    site,
	}).Warn("slow query")
	m.emit(Diagnostic{Kind: DiagnosticSlowQuery, Message: truncate(label, 120), Site: site, Duration: elapsed, At: time.Now()})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
