package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/RezaEskandarii/genjob/client"
	"github.com/RezaEskandarii/genjob/internal/db"
	"github.com/RezaEskandarii/genjob/internal/httpapi"
	"github.com/RezaEskandarii/genjob/internal/lifecycle"
	"github.com/RezaEskandarii/genjob/internal/lock"
	"github.com/RezaEskandarii/genjob/internal/logging"
	"github.com/RezaEskandarii/genjob/internal/message_broaker"
	"github.com/RezaEskandarii/genjob/internal/pool"
	"github.com/RezaEskandarii/genjob/internal/store"
	"github.com/RezaEskandarii/genjob/internal/store/memory"
	"github.com/RezaEskandarii/genjob/internal/store/postgres"
	"github.com/RezaEskandarii/genjob/internal/worker"
	"github.com/RezaEskandarii/genjob/types/config"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Container holds all application dependencies. It is the single source of truth
// for dependency injection and ensures connections and services are created once.
type Container struct {
	Config *config.Config
	Logger logrus.FieldLogger

	// Storage connections (created once, shared by all stores). Pool is nil
	// with memory storage.
	Pool  *pool.Manager
	Redis redis.UniversalClient

	JobStore   store.JobStore
	AssetStore store.AssetRepository

	// Infrastructure
	LockManager   lock.DistributedLockManager
	MessageBroker message_broaker.MessageBroker
	Events        *lifecycle.Publisher

	JobHandler   *config.JobHandler
	JobManager   *client.JobManager
	AssetManager *client.AssetManager
}

// NewContainer creates and wires all dependencies. Single entry point for DI.
// Call this once per application lifecycle.
// Pass optional WithDB, WithRedis or WithMessageBroker to inject connections for testing.
func NewContainer(ctx context.Context, cfg *config.Config, opts ...ContainerOption) (*Container, error) {
	opt := &containerConfig{}
	for _, o := range opts {
		o(opt)
	}

	logger := opt.logger
	if logger == nil {
		logger = logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	}
	c := &Container{Config: cfg, Logger: logger, JobHandler: opt.jobHandler}
	if c.JobHandler == nil {
		c.JobHandler = config.NewJobHandler()
	}

	if err := c.initStorage(opt); err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	if err := c.initLockManager(ctx, opt); err != nil {
		_ = c.Close(ctx)
		return nil, fmt.Errorf("init lock manager: %w", err)
	}
	if err := c.initMessageBroker(opt); err != nil {
		_ = c.Close(ctx)
		return nil, fmt.Errorf("init message broker: %w", err)
	}

	c.Events = lifecycle.NewPublisher(c.MessageBroker, cfg.Queues)
	c.JobManager = client.NewJobManager(c.JobStore, c.Events,
		client.WithConcurrencyCeiling(cfg.Jobs.ConcurrencyCeiling),
		client.WithJobLogger(logger),
	)
	c.AssetManager = client.NewAssetManager(c.AssetStore, client.WithAssetLogger(logger))
	return c, nil
}

func (c *Container) initStorage(opt *containerConfig) error {
	switch c.Config.StorageDriver {
	case config.Postgres:
		poolOpts := pool.Options{
			Pool:         c.Config.ResolvedPool(),
			Breaker:      c.Config.ResolvedBreaker(),
			Logger:       c.Logger,
			OnDiagnostic: opt.onDiag,
		}
		if opt.db != nil {
			c.Pool = pool.New(opt.db, poolOpts)
		} else {
			m, err := pool.Open(c.Config.PostgresConfig.DriverName, c.Config.PostgresConfig.ConnectionUrl, poolOpts)
			if err != nil {
				return err
			}
			c.Pool = m
		}
		c.JobStore = postgres.NewPostgresJobStore(c.Pool)
		c.AssetStore = postgres.NewPostgresAssetStore(c.Pool)
	case config.MemoryStorage:
		c.JobStore = memory.NewJobStore()
		c.AssetStore = memory.NewAssetStore()
	default:
		return fmt.Errorf("unsupported storage driver: %v", c.Config.StorageDriver)
	}
	return nil
}

func (c *Container) initLockManager(ctx context.Context, opt *containerConfig) error {
	switch {
	case c.Config.LockDriver == config.RedisLock:
		c.Redis = opt.redis
		if c.Redis == nil {
			c.Redis = redis.NewClient(&redis.Options{
				Addr:     c.Config.RedisConfig.Address,
				Password: c.Config.RedisConfig.Password,
				DB:       c.Config.RedisConfig.DB,
			})
		}
		if err := c.Redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		c.LockManager = lock.NewRedisDistributedLockManager(c.Redis)
	case c.Config.StorageDriver == config.MemoryStorage:
		c.LockManager = lock.NewMemoryDistributedLockManager()
	case c.Config.LockDriver == config.PostgresLock:
		c.LockManager = lock.NewPostgresDistributedLockManager(c.Pool)
	default:
		return fmt.Errorf("unsupported lock driver: %v", c.Config.LockDriver)
	}
	return nil
}

func (c *Container) initMessageBroker(opt *containerConfig) error {
	if opt.broker != nil {
		c.MessageBroker = opt.broker
		return nil
	}
	switch c.Config.MQDriver {
	case config.RabbitMQ:
		b, err := message_broaker.NewRabbitMQ(*c.Config.RabbitMQConfig)
		if err != nil {
			return err
		}
		c.MessageBroker = b
	case config.Kafka:
		b, err := message_broaker.NewKafka(*c.Config.KafkaConfig)
		if err != nil {
			return err
		}
		c.MessageBroker = b
	case config.InMemory:
		c.MessageBroker = message_broaker.NewInMemory()
	default:
		return fmt.Errorf("unsupported message queue driver: %v", c.Config.MQDriver)
	}
	return nil
}

// Migrate applies the embedded schema. It is a no-op for memory storage.
func (c *Container) Migrate(ctx context.Context) error {
	if c.Pool == nil {
		return nil
	}
	return db.Migrate(ctx, c.Pool.DB(), lock.NewAdvisoryLocker(c.Pool.DB()), c.Logger)
}

// NewRunner builds a worker for the handlers registered on JobHandler.
func (c *Container) NewRunner() *worker.Runner {
	return worker.NewRunner(c.JobManager, c.MessageBroker, c.JobHandler, worker.Options{
		WorkerID:          c.Config.Instance,
		Concurrency:       c.Config.WorkerCount,
		Queues:            c.Config.Queues,
		HeartbeatInterval: c.Config.Jobs.HeartbeatInterval,
		Logger:            c.Logger,
	})
}

func (c *Container) NewReaper() *worker.Reaper {
	return worker.NewReaper(c.JobManager, worker.ReaperOptions{
		StaleAfter: c.Config.Jobs.StaleAfter,
		Interval:   c.Config.Jobs.ReapInterval,
		Lock:       c.LockManager,
		HolderID:   c.Config.Instance,
		LockTTL:    c.Config.LockTTL,
		Logger:     c.Logger,
	})
}

func (c *Container) NewHTTPServer() *httpapi.Server {
	var health httpapi.HealthReporter
	if c.Pool != nil {
		health = c.Pool
	}
	return httpapi.NewServer(c.JobManager, health, c.Logger)
}

// StartBackground starts the pool's periodic sweeps, metrics and health checks.
func (c *Container) StartBackground() {
	if c.Pool != nil {
		c.Pool.Start()
	}
}

// Close releases every connection the container opened.
func (c *Container) Close(ctx context.Context) error {
	var errs []error
	if c.MessageBroker != nil {
		errs = append(errs, c.MessageBroker.Close())
	}
	if c.Redis != nil {
		errs = append(errs, c.Redis.Close())
	}
	if c.Pool != nil {
		errs = append(errs, c.Pool.Close(ctx))
	}
	return errors.Join(errs...)
}

// DB returns the underlying database handle, or nil with memory storage.
func (c *Container) DB() *sql.DB {
	if c.Pool == nil {
		return nil
	}
	return c.Pool.DB()
}
