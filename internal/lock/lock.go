// Package lock — блокировки шагов выполнения.
//
// Шаг (execution_id, workflow_node_id) может прийти дважды: повторная
// доставка из очереди и переотправка зависших шагов. Блокировка не даёт
// двум runner выполнять одну вершину одновременно.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotAcquired — блокировка уже занята.
	ErrNotAcquired = errors.New("lock not acquired")

	// ErrNotHeld — блокировка истекла или занята другим владельцем.
	ErrNotHeld = errors.New("lock not held")
)

// Locker выдаёт блокировки по ключу с TTL.
type Locker interface {
	// Acquire занимает ключ. Занятый ключ — ErrNotAcquired.
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}

// Lock — занятая блокировка.
type Lock interface {
	Release(ctx context.Context) error
}

// StepKey — ключ блокировки шага.
func StepKey(executionID, nodeID string) string {
	return fmt.Sprintf("craftflow:step:%s:%s", executionID, nodeID)
}

// releaseScript снимает ключ, только если значение совпадает с токеном владельца.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker — блокировки на Redis (SET NX PX).
type RedisLocker struct {
	client redis.UniversalClient
}

// NewRedisLocker создаёт RedisLocker.
func NewRedisLocker(client redis.UniversalClient) *RedisLocker {
	return &RedisLocker{client: client}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Lock, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotAcquired, key)
	}
	return &redisLock{client: l.client, key: key, token: token}, nil
}

type redisLock struct {
	client redis.UniversalClient
	key    string
	token  string
}

func (l *redisLock) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Int()
	if err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotHeld, l.key)
	}
	return nil
}

// LocalLocker — блокировки в памяти процесса (локальный запуск и тесты).
type LocalLocker struct {
	mu    sync.Mutex
	held  map[string]localEntry
	clock func() time.Time
}

type localEntry struct {
	token   string
	expires time.Time
}

// NewLocalLocker создаёт LocalLocker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]localEntry), clock: time.Now}
}

func (l *LocalLocker) Acquire(_ context.Context, key string, ttl time.Duration) (Lock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if e, ok := l.held[key]; ok && now.Before(e.expires) {
		return nil, fmt.Errorf("%w: %s", ErrNotAcquired, key)
	}
	token := uuid.NewString()
	l.held[key] = localEntry{token: token, expires: now.Add(ttl)}
	return &localLock{locker: l, key: key, token: token}, nil
}

type localLock struct {
	locker *LocalLocker
	key    string
	token  string
}

func (l *localLock) Release(context.Context) error {
	l.locker.mu.Lock()
	defer l.locker.mu.Unlock()

	e, ok := l.locker.held[l.key]
	if !ok || e.token != l.token || !l.locker.clock().Before(e.expires) {
		return fmt.Errorf("%w: %s", ErrNotHeld, l.key)
	}
	delete(l.locker.held, l.key)
	return nil
}
