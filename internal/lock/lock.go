// Package lock provides a single-writer lock so that reconcilers in
// different processes do not mutate the same federation concurrently.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	rdb "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ErrLocked is returned when another holder owns the lock.
var ErrLocked = errors.New("federation is locked by another reconciler")

// ReleaseFunc gives the lock back.
type ReleaseFunc func(ctx context.Context) error

// Locker hands out the single-writer lock.
type Locker interface {
	Acquire(ctx context.Context) (ReleaseFunc, error)
}

// Nop always grants the lock.
type Nop struct{}

// Acquire implements Locker.
func (Nop) Acquire(context.Context) (ReleaseFunc, error) {
	return func(context.Context) error { return nil }, nil
}

// client is the subset of the Redis API the lock needs.
type client interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *rdb.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *rdb.Cmd
}

// releaseScript deletes the key only while it still holds our token.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// Redis is a lock held as a Redis key with a TTL. The TTL bounds how long
// a crashed holder blocks others.
type Redis struct {
	client client
	key    string
	ttl    time.Duration
}

// RedisOptions configures NewRedis.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Key      string
	TTL      time.Duration
}

// NewRedis connects a Redis-backed lock.
func NewRedis(opts RedisOptions) *Redis {
	c := rdb.NewClient(&rdb.Options{Addr: opts.Addr, Password: opts.Password, DB: opts.DB})
	return newRedis(c, opts.Key, opts.TTL)
}

func newRedis(c client, key string, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Redis{client: c, key: key, ttl: ttl}
}

// Acquire implements Locker. It does not wait: a held lock yields ErrLocked.
func (r *Redis) Acquire(ctx context.Context) (ReleaseFunc, error) {
	token := uuid.NewString()

	ok, err := r.client.SetNX(ctx, r.key, token, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", r.key, err)
	}
	if !ok {
		return nil, ErrLocked
	}

	log.Debug().Str("key", r.key).Dur("ttl", r.ttl).Msg("Lock acquired")

	return func(ctx context.Context) error {
		n, err := r.client.Eval(ctx, releaseScript, []string{r.key}, token).Int64()
		if err != nil {
			return fmt.Errorf("release lock %s: %w", r.key, err)
		}
		if n == 0 {
			log.Warn().Str("key", r.key).Msg("Lock expired before release")
		}
		return nil
	}, nil
}

// Close closes the underlying connection if it has one.
func (r *Redis) Close() error {
	if c, ok := r.client.(*rdb.Client); ok {
		return c.Close()
	}
	return nil
}

// Do runs fn while holding the lock.
func Do(ctx context.Context, l Locker, fn func(ctx context.Context) error) error {
	release, err := l.Acquire(ctx)
	if err != nil {
		return err
	}
	defer func() {
		// Release even if ctx was cancelled while fn ran
		if err := release(context.WithoutCancel(ctx)); err != nil {
			log.Warn().Err(err).Msg("Failed to release lock")
		}
	}()
	return fn(ctx)
}
