package config

type StorageDriver int

const (
	Postgres StorageDriver = iota + 1
	MemoryStorage
)

// String converts the StorageDriver enum to a human-readable string.
func (d StorageDriver) String() string {
	switch d {
	case Postgres:
		return "postgres"
	case MemoryStorage:
		return "memory"
	}
	return "unknown"
}

func ParseStorageDriver(s string) StorageDriver {
	switch s {
	case "postgres":
		return Postgres
	case "memory":
		return MemoryStorage
	}
	return 0
}

type MessageQueueDriver int

const (
	InMemory MessageQueueDriver = iota + 1
	RabbitMQ
	Kafka
)

func (d MessageQueueDriver) String() string {
	switch d {
	case InMemory:
		return "memory"
	case RabbitMQ:
		return "rabbitmq"
	case Kafka:
		return "kafka"
	default:
		return "unknown"
	}
}

func ParseMessageQueueDriver(s string) MessageQueueDriver {
	switch s {
	case "memory":
		return InMemory
	case "rabbitmq":
		return RabbitMQ
	case "kafka":
		return Kafka
	}
	return 0
}

type LockDriver int

const (
	PostgresLock LockDriver = iota + 1
	RedisLock
)

func (d LockDriver) String() string {
	switch d {
	case PostgresLock:
		return "postgres"
	case RedisLock:
		return "redis"
	default:
		return "unknown"
	}
}

func ParseLockDriver(s string) LockDriver {
	switch s {
	case "postgres":
		return PostgresLock
	case "redis":
		return RedisLock
	}
	return 0
}

type Environment string

const (
	Development Environment = "development"
	Production  Environment = "production"
)
