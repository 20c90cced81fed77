package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Redis is a Locker backed by SET NX PX with a per-holder token. While a lock
// is held its TTL is extended in the background so long sections keep it.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	retry  time.Duration
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Redis{
		client: client,
		prefix: "content-scheduler:",
		ttl:    ttl,
		retry:  50 * time.Millisecond,
	}
}

func (r *Redis) key(name string) string {
	return r.prefix + name
}

// TryLock acquires name if free.
func (r *Redis) TryLock(ctx context.Context, name string) (func(), bool, error) {
	key := r.key(name)
	token := uuid.New().String()
	ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	return r.hold(key, token), true, nil
}

// Lock polls until name is acquired or ctx is done.
func (r *Redis) Lock(ctx context.Context, name string) (func(), error) {
	for {
		unlock, ok, err := r.TryLock(ctx, name)
		if err != nil {
			return nil, err
		}
		if ok {
			return unlock, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.retry):
		}
	}
}

// hold starts the TTL refresher and returns the release function.
func (r *Redis) hold(key, token string) func() {
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(r.ttl / 3)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				res, err := extendScript.Run(context.Background(), r.client, []string{key}, token, r.ttl.Milliseconds()).Int()
				if err != nil || res == 0 {
					logrus.WithField("lock", key).WithError(err).Warn("[LOCK] lost lease")
					return
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			if err := releaseScript.Run(context.Background(), r.client, []string{key}, token).Err(); err != nil {
				logrus.WithField("lock", key).WithError(err).Warn("[LOCK] release failed")
			}
		})
	}
}

var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

var extendScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`)
