package config

import "time"

const (
	DefaultWorkerCount        = 5
	DefaultConcurrencyCeiling = 5
	DefaultStorageDriver      = Postgres
	DefaultDatabaseDriverName = "postgres"
	DefaultEnvironment        = Production

	DefaultMaxOpenConns = 20
	DefaultMaxIdleConns = 5

	DefaultAcquireTimeout = 2 * time.Second
	DefaultQueryTimeout   = 30 * time.Second

	DefaultSlowAcquireThreshold  = time.Second
	DefaultSlowQueryProduction   = 5 * time.Second
	DefaultSlowQueryDevelopment  = 10 * time.Second
	DefaultLeakThreshold         = 30 * time.Second
	DefaultLeakSweepInterval     = 10 * time.Second
	DefaultMetricsInterval       = 30 * time.Second
	DefaultHealthCheckInterval   = 30 * time.Second
	DefaultDrainTimeout          = 30 * time.Second
	DefaultBreakerThreshold      = 20
	DefaultDebugBreakerThreshold = 1000
	DefaultBreakerResetTimeout   = 60 * time.Second
	DefaultBreakerWindow         = 60 * time.Second
	DefaultLockTTL               = 60 * time.Second
	DefaultJobHeartbeatInterval  = 15 * time.Second
	DefaultJobStaleAfter         = 5 * time.Minute
	DefaultReapInterval          = time.Minute
	DefaultRedispatchDelay       = 5 * time.Second
	DefaultDispatchQueue         = "genjob.dispatch"
	DefaultLifecycleQueue        = "genjob.lifecycle"
	DefaultControlTopic          = "genjob.control"
	DefaultRabbitMQExchange      = "genjob"
	DefaultHTTPAddr              = ":8080"
	DefaultLogLevel              = "info"
	DefaultLogFormat             = "json"
)
