package ops

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// Locker serializes work on a key. The returned func releases the lock.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// KeyedMutex is an in-process Locker.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyLock)}
}

func (k *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{ch: make(chan struct{}, 1)}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
	case <-ctx.Done():
		k.release(key, l)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.ch
			k.release(key, l)
		})
	}, nil
}

func (k *KeyedMutex) release(key string, l *keyLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
}

const (
	redisLockPrefix     = "kitchenops:lock:"
	defaultLockTTL      = 30 * time.Second
	defaultLockInterval = 100 * time.Millisecond
	minLockTTL          = 30 * time.Millisecond
)

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript pushes the expiry out only while the key still holds our token.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker is a Locker shared by every instance pointed at the same
// Redis. Locks expire after ttl so a crashed holder cannot block a key, and
// a live holder renews its lock every ttl/3 until it releases.
type RedisLocker struct {
	client   *redis.Client
	ttl      time.Duration
	interval time.Duration
	logger   apt.Logger
}

func NewRedisLocker(client *redis.Client, ttl time.Duration, logger apt.Logger) *RedisLocker {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	if ttl < minLockTTL {
		ttl = minLockTTL
	}
	return &RedisLocker{
		client:   client,
		ttl:      ttl,
		interval: defaultLockInterval,
		logger:   logger,
	}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	name := redisLockPrefix + key
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, name, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", name, err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.interval):
		}
	}

	stop := make(chan struct{})
	renewed := make(chan struct{})
	go l.renew(name, token, stop, renewed)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-renewed

			// The caller's context may already be done.
			rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(rctx, l.client, []string{name}, token).Err(); err != nil && err != redis.Nil {
				l.logger.Errorf("Failed to release lock %s: %v", name, err)
			}
		})
	}, nil
}

// renew keeps the lock alive until stop is closed or the token is gone.
func (l *RedisLocker) renew(name, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	every := l.ttl / 3
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), every)
		n, err := renewScript.Run(ctx, l.client, []string{name}, token, l.ttl.Milliseconds()).Int64()
		cancel()
		if err != nil {
			l.logger.Errorf("Failed to renew lock %s: %v", name, err)
			continue
		}
		if n == 0 {
			l.logger.Info("Lock lost before release", "lock", name)
			return
		}
	}
}

// NewRedisClient connects to addr and verifies the connection.
func NewRedisClient(ctx context.Context, addr, password string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}

// LockerFromConfig returns a RedisLocker when redis.addr is set and a
// KeyedMutex otherwise. The close func releases the Redis connection.
func LockerFromConfig(ctx context.Context, cfg *apt.Config, logger apt.Logger) (Locker, func() error, error) {
	noop := func() error { return nil }
	if cfg == nil {
		return NewKeyedMutex(), noop, nil
	}
	addr := cfg.GetStringOrDef("redis.addr", "")
	if addr == "" {
		return NewKeyedMutex(), noop, nil
	}

	ttl := defaultLockTTL
	if raw := cfg.GetStringOrDef("redis.lock.ttl", ""); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid redis.lock.ttl %q: %w", raw, err)
		}
		ttl = d
	}

	client, err := NewRedisClient(ctx, addr, cfg.GetStringOrDef("redis.password", ""))
	if err != nil {
		return nil, nil, err
	}
	return NewRedisLocker(client, ttl, logger), client.Close, nil
}
