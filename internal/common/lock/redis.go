// internal/common/lock/redis.go
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const DefaultPrefix = "automation:lock:"

// releaseScript deletes the key only while it still holds our token, so an
// expired lease that someone else re-acquired is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker hands out best-effort leases with SET NX PX. It serializes the
// tick across scheduler processes and guard+dispatch per subject.
type RedisLocker struct {
	client   redis.UniversalClient
	prefix   string
	newToken func() string
}

func NewRedisLocker(client redis.UniversalClient) *RedisLocker {
	return &RedisLocker{
		client:   client,
		prefix:   DefaultPrefix,
		newToken: uuid.NewString,
	}
}

// TryLock returns ok=false without error when another holder owns the key.
func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	if ttl <= 0 {
		return nil, false, fmt.Errorf("lock ttl must be positive, got %s", ttl)
	}
	fullKey := l.prefix + key
	token := l.newToken()

	ok, err := l.client.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		// the caller's ctx may already be cancelled by Stop()
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(rctx, l.client, []string{fullKey}, token).Err()
	}
	return release, true, nil
}
