// Package runlock keeps two invocations of the same pipeline stage from
// running at once.
package runlock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Release frees a held lock.
type Release func(ctx context.Context) error

// Locker hands out named locks. ok is false when someone else holds the lock.
type Locker interface {
	Acquire(ctx context.Context, name string) (release Release, ok bool, err error)
}

type Config struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
	Prefix   string        `mapstructure:"prefix"`
}

func DefaultConfig() Config {
	return Config{TTL: 30 * time.Minute, Prefix: "jobnorm:stage:"}
}

// New returns a redis locker when an address is configured and a no-op
// locker otherwise. The closer releases the redis client.
func New(cfg Config) (Locker, func() error, error) {
	if cfg.Addr == "" {
		return Noop{}, func() error { return nil }, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewRedis(client, cfg.Prefix, cfg.TTL), client.Close, nil
}

// Noop always grants the lock.
type Noop struct{}

func (Noop) Acquire(context.Context, string) (Release, bool, error) {
	return func(context.Context) error { return nil }, true, nil
}

type redisClient interface {
	SetArgs(ctx context.Context, key string, value interface{}, a redis.SetArgs) *redis.StatusCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// releaseScript deletes the key only while it still holds our token, so an
// expired lock taken over by another run is left alone.
const releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("DEL", KEYS[1]) else return 0 end`

// Redis is a SET NX PX lock.
type Redis struct {
	client redisClient
	prefix string
	ttl    time.Duration
}

func NewRedis(client redisClient, prefix string, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultConfig().TTL
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl}
}

func (r *Redis) Acquire(ctx context.Context, name string) (Release, bool, error) {
	token, err := newToken()
	if err != nil {
		return nil, false, err
	}
	key := r.prefix + name

	status, err := r.client.SetArgs(ctx, key, token, redis.SetArgs{Mode: "NX", TTL: r.ttl}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis SET NX %s: %w", key, err)
	}
	if status != "OK" {
		return nil, false, nil
	}

	release := func(ctx context.Context) error {
		if err := r.client.Eval(ctx, releaseScript, []string{key}, token).Err(); err != nil {
			return fmt.Errorf("release %s: %w", key, err)
		}
		return nil
	}
	return release, true, nil
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("lock token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
