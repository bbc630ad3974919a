package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultLeaseKey is the Redis key for the sweep lease.
const DefaultLeaseKey = "lease:reservation-sweep"

// acquireScript extends the lease when this instance already owns it and
// otherwise takes it only if nobody does.
var acquireScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
if redis.call("SET", KEYS[1], ARGV[1], "NX", "PX", ARGV[2]) then
	return 1
end
return 0
`)

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLease is a single-key lease identified by a random token.
type RedisLease struct {
	rdb   redis.Scripter
	key   string
	token string
}

// NewRedisLease returns a lease on key.  An empty key uses DefaultLeaseKey.
func NewRedisLease(rdb redis.Scripter, key string) *RedisLease {
	if key == "" {
		key = DefaultLeaseKey
	}
	return &RedisLease{rdb: rdb, key: key, token: uuid.NewString()}
}

func (l *RedisLease) Acquire(ctx context.Context, ttl time.Duration) (bool, error) {
	n, err := acquireScript.Run(ctx, l.rdb, []string{l.key}, l.token, ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (l *RedisLease) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, l.rdb, []string{l.key}, l.token).Err()
}

var _ Lease = (*RedisLease)(nil)
