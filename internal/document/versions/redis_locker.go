package versions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/draftledger/draftledger/backend/go-services/pkg/logger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockTimeout is returned when a RedisLocker cannot obtain its lease in time.
var ErrLockTimeout = errors.New("document lock wait timed out")

// releaseScript deletes the lease only if it still carries our token, so an
// expired holder never frees a lock that has since passed to someone else.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLocker is a lease-based lock shared by every replica that talks to the
// same Redis. The lease expires after ttl so a crashed holder cannot wedge a
// document forever.
type RedisLocker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	wait   time.Duration
	poll   time.Duration
}

// NewRedisLocker returns a locker using keys "<prefix><document id>".
// wait bounds how long Lock polls for the lease before giving up.
func NewRedisLocker(client *redis.Client, prefix string, ttl, wait time.Duration) *RedisLocker {
	if prefix == "" {
		prefix = "doclock:"
	}
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	if wait <= 0 {
		wait = 5 * time.Second
	}
	return &RedisLocker{client: client, prefix: prefix, ttl: ttl, wait: wait, poll: 10 * time.Millisecond}
}

func (r *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := r.prefix + key
	token := uuid.NewString()
	deadline := time.Now().Add(r.wait)
	backoff := r.poll
	for {
		ok, err := r.client.SetNX(ctx, redisKey, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", redisKey, err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, ErrLockTimeout
		}
		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
		if backoff < 200*time.Millisecond {
			backoff *= 2
		}
	}
	return func() {
		// release with a fresh context: the caller's may already be cancelled
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, r.client, []string{redisKey}, token).Err(); err != nil {
			logger.Warnw("release document lock failed", "key", redisKey, "ttl", r.ttl, "err", err)
		}
	}, nil
}
