package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. GENJOB_DATABASE_URL.
const EnvPrefix = "GENJOB"

// Load reads configuration from an optional file (YAML, JSON or TOML) and the
// environment, then validates it through the same options NewConfig uses.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	opts := []ContainerOption{
		WithEnvironment(Environment(v.GetString("environment"))),
		WithPoolConfig(PoolConfig{
			MaxOpenConns:         v.GetInt("pool.max_open_conns"),
			MaxIdleConns:         v.GetInt("pool.max_idle_conns"),
			ConnMaxLifetime:      v.GetDuration("pool.conn_max_lifetime"),
			AcquireTimeout:       v.GetDuration("pool.acquire_timeout"),
			QueryTimeout:         v.GetDuration("pool.query_timeout"),
			SlowAcquireThreshold: v.GetDuration("pool.slow_acquire_threshold"),
			SlowQueryThreshold:   v.GetDuration("pool.slow_query_threshold"),
			LeakThreshold:        v.GetDuration("pool.leak_threshold"),
			LeakSweepInterval:    v.GetDuration("pool.leak_sweep_interval"),
			MetricsInterval:      v.GetDuration("pool.metrics_interval"),
			HealthCheckInterval:  v.GetDuration("pool.health_check_interval"),
			DrainTimeout:         v.GetDuration("pool.drain_timeout"),
		}),
		WithBreakerConfig(BreakerConfig{
			Threshold:    v.GetInt("breaker.threshold"),
			ResetTimeout: v.GetDuration("breaker.reset_timeout"),
			Window:       v.GetDuration("breaker.window"),
			Disabled:     v.GetBool("breaker.disabled"),
		}),
		WithJobsConfig(JobsConfig{
			ConcurrencyCeiling: v.GetInt("jobs.concurrency_ceiling"),
			HeartbeatInterval:  v.GetDuration("jobs.heartbeat_interval"),
			StaleAfter:         v.GetDuration("jobs.stale_after"),
			ReapInterval:       v.GetDuration("jobs.reap_interval"),
		}),
		WithWorkerCount(v.GetInt("worker_count")),
		WithLockTTL(v.GetDuration("lock.ttl")),
		WithQueues(QueueConfig{
			Dispatch:  v.GetString("queues.dispatch"),
			Lifecycle: v.GetString("queues.lifecycle"),
			Control:   v.GetString("queues.control"),
		}),
		WithHTTPAddr(v.GetString("http.addr")),
		WithLogConfig(LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		}),
	}

	switch ParseStorageDriver(v.GetString("storage.driver")) {
	case Postgres:
		opts = append(opts, WithPostgresConfig(PostgresConfig{
			ConnectionUrl: v.GetString("database.url"),
			DriverName:    v.GetString("database.driver"),
		}))
	case MemoryStorage:
		opts = append(opts, WithMemoryStorage())
	default:
		return nil, fmt.Errorf("unknown storage driver %q", v.GetString("storage.driver"))
	}
	if v.GetBool("debug") {
		opts = append(opts, WithDebug(v.GetBool("breaker.disabled")))
	}

	switch ParseLockDriver(v.GetString("lock.driver")) {
	case RedisLock:
		opts = append(opts, WithRedisLock(RedisConfig{
			Address:  v.GetString("redis.address"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		}, v.GetDuration("lock.ttl")))
	case PostgresLock:
	default:
		return nil, fmt.Errorf("unknown lock driver %q", v.GetString("lock.driver"))
	}

	switch ParseMessageQueueDriver(v.GetString("mq.driver")) {
	case RabbitMQ:
		opts = append(opts, WithRabbitMQConfig(RabbitMQConfig{
			URL:      v.GetString("rabbitmq.url"),
			Exchange: v.GetString("rabbitmq.exchange"),
		}))
	case Kafka:
		opts = append(opts, WithKafkaConfig(KafkaConfig{
			Brokers: v.GetStringSlice("kafka.brokers"),
			GroupID: v.GetString("kafka.group_id"),
		}))
	case InMemory:
	default:
		return nil, fmt.Errorf("unknown message queue driver %q", v.GetString("mq.driver"))
	}

	return NewConfig(v.GetString("instance"), opts...)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("instance", "")
	v.SetDefault("environment", string(DefaultEnvironment))
	v.SetDefault("debug", false)

	v.SetDefault("storage.driver", Postgres.String())
	v.SetDefault("database.url", "")
	v.SetDefault("database.driver", DefaultDatabaseDriverName)

	v.SetDefault("pool.max_open_conns", DefaultMaxOpenConns)
	v.SetDefault("pool.max_idle_conns", DefaultMaxIdleConns)
	v.SetDefault("pool.conn_max_lifetime", 0)
	v.SetDefault("pool.acquire_timeout", 0)
	v.SetDefault("pool.query_timeout", 0)
	v.SetDefault("pool.slow_acquire_threshold", 0)
	v.SetDefault("pool.slow_query_threshold", 0)
	v.SetDefault("pool.leak_threshold", 0)
	v.SetDefault("pool.leak_sweep_interval", 0)
	v.SetDefault("pool.metrics_interval", 0)
	v.SetDefault("pool.health_check_interval", 0)
	v.SetDefault("pool.drain_timeout", 0)

	v.SetDefault("breaker.threshold", 0)
	v.SetDefault("breaker.reset_timeout", 0)
	v.SetDefault("breaker.window", 0)
	v.SetDefault("breaker.disabled", false)

	v.SetDefault("jobs.concurrency_ceiling", DefaultConcurrencyCeiling)
	v.SetDefault("jobs.heartbeat_interval", DefaultJobHeartbeatInterval)
	v.SetDefault("jobs.stale_after", DefaultJobStaleAfter)
	v.SetDefault("jobs.reap_interval", DefaultReapInterval)
	v.SetDefault("worker_count", DefaultWorkerCount)

	v.SetDefault("lock.driver", PostgresLock.String())
	v.SetDefault("lock.ttl", DefaultLockTTL)
	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("mq.driver", InMemory.String())
	v.SetDefault("queues.dispatch", DefaultDispatchQueue)
	v.SetDefault("queues.lifecycle", DefaultLifecycleQueue)
	v.SetDefault("queues.control", DefaultControlTopic)
	v.SetDefault("rabbitmq.url", "")
	v.SetDefault("rabbitmq.exchange", DefaultRabbitMQExchange)
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.group_id", "")

	v.SetDefault("http.addr", DefaultHTTPAddr)
	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.format", DefaultLogFormat)
}
