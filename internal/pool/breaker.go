package pool

import (
	"fmt"
	"time"

	"github.com/RezaEskandarii/genjob/custom_errors"
	"github.com/RezaEskandarii/genjob/types/config"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half-open"
)

// breaker guards the pool. A nil *gobreaker.TwoStepCircuitBreaker means the
// breaker is disabled and every operation is allowed.
type breaker struct {
	cb *gobreaker.TwoStepCircuitBreaker
}

func newBreaker(cfg config.BreakerConfig, logger *logrus.Entry, emit func(Diagnostic)) *breaker {
	if cfg.Disabled {
		logger.Warn("database circuit breaker disabled")
		return &breaker{}
	}
	threshold := uint32(cfg.Threshold)
	return &breaker{cb: gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
		Name: "database",
		// one trial operation while half-open
		MaxRequests: 1,
		Interval:    cfg.Window,
		Timeout:     cfg.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.TotalFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			msg := fmt.Sprintf("circuit %s: %s -> %s", name, mapState(from), mapState(to))
			logger.WithFields(logrus.Fields{"from": mapState(from), "to": mapState(to)}).Warn("database circuit breaker changed state")
			emit(Diagnostic{Kind: DiagnosticCircuitChange, Message: msg, At: time.Now()})
		},
	})}
}

// allow admits one operation. The returned func must be called with the
// operation's error exactly once.
func (b *breaker) allow() (func(error), error) {
	if b.cb == nil {
		return func(error) {}, nil
	}
	done, err := b.cb.Allow()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", custom_errors.ErrCircuitOpen, err)
	}
	return func(opErr error) {
		done(!IsSystemError(opErr))
	}, nil
}

func (b *breaker) state() CircuitState {
	if b.cb == nil {
		return CircuitClosed
	}
	return mapState(b.cb.State())
}

func (b *breaker) failures() uint32 {
	if b.cb == nil {
		return 0
	}
	return b.cb.Counts().TotalFailures
}

func mapState(s gobreaker.State) CircuitState {
	switch s {
	case gobreaker.StateOpen:
		return CircuitOpen
	case gobreaker.StateHalfOpen:
		return CircuitHalfOpen
	default:
		return CircuitClosed
	}
}
