package app

import (
	"database/sql"

	"github.com/RezaEskandarii/genjob/internal/message_broaker"
	"github.com/RezaEskandarii/genjob/internal/pool"
	"github.com/RezaEskandarii/genjob/types/config"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// ContainerOption configures Container creation. Used for testing and customization.
type ContainerOption func(*containerConfig)

type containerConfig struct {
	// Optional: inject custom connections instead of creating them from config
	db         *sql.DB
	redis      redis.UniversalClient
	broker     message_broaker.MessageBroker
	logger     logrus.FieldLogger
	jobHandler *config.JobHandler
	onDiag     func(pool.Diagnostic)
}

// WithDB injects a custom database connection. Useful for testing.
func WithDB(db *sql.DB) ContainerOption {
	return func(c *containerConfig) {
		c.db = db
	}
}

// WithRedis injects a custom Redis client. Useful for testing.
func WithRedis(redis redis.UniversalClient) ContainerOption {
	return func(c *containerConfig) {
		c.redis = redis
	}
}

func WithMessageBroker(b message_broaker.MessageBroker) ContainerOption {
	return func(c *containerConfig) {
		c.broker = b
	}
}

func WithLogger(l logrus.FieldLogger) ContainerOption {
	return func(c *containerConfig) {
		c.logger = l
	}
}

// WithJobHandler shares a handler registry the caller already populated.
func WithJobHandler(jh *config.JobHandler) ContainerOption {
	return func(c *containerConfig) {
		c.jobHandler = jh
	}
}

// WithDiagnostics receives the pool's leak, slow query and circuit events in
// addition to the log.
func WithDiagnostics(fn func(pool.Diagnostic)) ContainerOption {
	return func(c *containerConfig) {
		c.onDiag = fn
	}
}
