// Package lock provides the per-transaction locks taken by the confirmation monitor.
package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Dours-d/D2C/internal/core/ports/gateways"
	"github.com/Dours-d/D2C/internal/platform/config"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultNamespace = "settlement"

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker takes locks with SET NX PX so that several monitor replicas can share one store.
type RedisLocker struct {
	client    redis.UniversalClient
	namespace string

	mu     sync.Mutex
	tokens map[string]string
}

var _ gateways.TxLocker = (*RedisLocker)(nil)

// NewRedisClient opens a client for cfg and checks it answers.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:            cfg.Addr,
		Password:        cfg.Password,
		DB:              cfg.DB,
		PoolTimeout:     4 * time.Second,
		ConnMaxIdleTime: 5 * time.Minute,
		MaxRetries:      3,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 512 * time.Millisecond,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	slog.Info("Redis connected", slog.String("addr", cfg.Addr), slog.Int("db", cfg.DB))
	return client, nil
}

// NewRedisLocker prefixes every key with namespace.
func NewRedisLocker(client redis.UniversalClient, namespace string) *RedisLocker {
	if namespace == "" {
		namespace = defaultNamespace
	}
	return &RedisLocker{
		client:    client,
		namespace: namespace,
		tokens:    make(map[string]string),
	}
}

func (l *RedisLocker) key(key string) string {
	return l.namespace + ":lock:" + key
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key(key), token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return false, nil
	}
	l.mu.Lock()
	l.tokens[key] = token
	l.mu.Unlock()
	return true, nil
}

// Unlock releases key if this locker still owns it. A lock that already expired is not an error.
func (l *RedisLocker) Unlock(ctx context.Context, key string) error {
	l.mu.Lock()
	token, ok := l.tokens[key]
	delete(l.tokens, key)
	l.mu.Unlock()
	if !ok {
		return nil
	}

	if err := releaseScript.Run(ctx, l.client, []string{l.key(key)}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to release lock %s: %w", key, err)
	}
	return nil
}
