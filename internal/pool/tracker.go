package pool

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

type checkout struct {
	raw        *sql.Conn
	site       string
	acquiredAt time.Time
	reported   bool
}

func (m *Manager) track(raw *sql.Conn, site string) *Conn {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := m.nextID
	m.checkouts[id] = &checkout{raw: raw, site: site, acquiredAt: time.Now()}
	return &Conn{raw: raw, id: id, site: site, m: m}
}

func (m *Manager) untrack(id uint64) {
	m.mu.Lock()
	delete(m.checkouts, id)
	m.mu.Unlock()
}

// Outstanding is the number of connections currently checked out.
func (m *Manager) Outstanding() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.checkouts)
}

// SweepLeaks warns once about every connection held longer than the leak
// threshold and returns the diagnostics it raised.
func (m *Manager) SweepLeaks(now time.Time) []Diagnostic {
	if m.cfg.LeakThreshold <= 0 {
		return nil
	}

	var found []Diagnostic
	m.mu.Lock()
	for _, co := range m.checkouts {
		held := now.Sub(co.acquiredAt)
		if held <= m.cfg.LeakThreshold || co.reported {
			continue
		}
		co.reported = true
		found = append(found, Diagnostic{
			Kind:     DiagnosticLeak,
			Message:  fmt.Sprintf("connection held for %s", held.Round(time.Millisecond)),
			Site:     co.site,
			Duration: held,
			At:       now,
		})
	}
	m.mu.Unlock()

	for _, d := range found {
		m.logger.WithFields(logrus.Fields{"site": d.Site, "held": d.Duration.String()}).Warn("possible connection leak")
		m.emit(d)
	}
	return found
}

func (m *Manager) forceCloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, co := range m.checkouts {
		m.logger.WithField("site", co.site).Warn("force-closing unreleased connection")
		_ = co.raw.Close()
		delete(m.checkouts, id)
	}
}

// callSite returns the first frame outside the pool's own methods.
func callSite() string {
	pcs := make([]uintptr, 16)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		f, more := frames.Next()
		if !strings.Contains(f.Function, "internal/pool.(*Manager)") &&
			!strings.Contains(f.Function, "internal/pool.(*Conn)") {
			return fmt.Sprintf("%s:%d %s", filepath.Base(f.File), f.Line, shortFunc(f.Function))
		}
		if !more {
			return "unknown"
		}
	}
}

func shortFunc(fn string) string {
	if i := strings.LastIndex(fn, "/"); i >= 0 {
		return fn[i+1:]
	}
	return fn
}
