package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisLeasePrefix = "genjob:lease:"

// A lease is a hash {holder, ttl} whose key expiry is the lease expiry.
var (
	acquireScript = redis.NewScript(`
local holder = redis.call('HGET', KEYS[1], 'holder')
if holder == false or holder == ARGV[1] then
	redis.call('HSET', KEYS[1], 'holder', ARGV[1], 'ttl', ARGV[2])
	redis.call('PEXPIRE', KEYS[1], ARGV[2])
	return 1
end
return 0
`)

	refreshScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'holder') == ARGV[1] then
	local ttl = redis.call('HGET', KEYS[1], 'ttl')
	redis.call('PEXPIRE', KEYS[1], ttl)
	return 1
end
return 0
`)

	releaseScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'holder') == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)
)

type RedisDistributedLockManager struct {
	client redis.UniversalClient
}

var _ DistributedLockManager = (*RedisDistributedLockManager)(nil)

func NewRedisDistributedLockManager(client redis.UniversalClient) *RedisDistributedLockManager {
	return &RedisDistributedLockManager{client: client}
}

func (l *RedisDistributedLockManager) Acquire(ctx context.Context, resourceID, holderID string, ttl time.Duration) (bool, error) {
	n, err := acquireScript.Run(ctx, l.client, []string{redisLeasePrefix + resourceID}, holderID, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", resourceID, err)
	}
	return n == 1, nil
}

func (l *RedisDistributedLockManager) Refresh(ctx context.Context, resourceID, holderID string) (bool, error) {
	n, err := refreshScript.Run(ctx, l.client, []string{redisLeasePrefix + resourceID}, holderID).Int()
	if err != nil {
		return false, fmt.Errorf("failed to refresh lock %s: %w", resourceID, err)
	}
	return n == 1, nil
}

func (l *RedisDistributedLockManager) Release(ctx context.Context, resourceID, holderID string) error {
	if err := releaseScript.Run(ctx, l.client, []string{redisLeasePrefix + resourceID}, holderID).Err(); err != nil {
		return fmt.Errorf("failed to release lock %s: %w", resourceID, err)
	}
	return nil
}
