package issuance

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// OrderLock serializes issuance per order across replicas. The single
// in-process consumer already serializes locally; the lock covers
// multi-instance deployments where the webhook and redirect paths can
// land on different pods.
type OrderLock interface {
	Acquire(orderID string) (bool, error)
	Release(orderID string) error
}

const lockTTL = 2 * time.Minute

type RedisLock struct {
	Client *redis.Client
	owner  string
}

func NewRedisLock(client *redis.Client) *RedisLock {
	return &RedisLock{Client: client, owner: uuid.New().String()}
}

// Acquire takes the per-order lock with SETNX and a TTL so a crashed
// worker cannot hold it forever.
func (r *RedisLock) Acquire(orderID string) (bool, error) {
	key := "issuance_lock:" + orderID
	return r.Client.SetNX(context.Background(), key, r.owner, lockTTL).Result()
}

// Release deletes the lock only if this instance still owns it; a lock
// that expired and was re-taken by another pod must not be stolen.
func (r *RedisLock) Release(orderID string) error {
	key := "issuance_lock:" + orderID
	val, err := r.Client.Get(context.Background(), key).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}
	if val != r.owner {
		return nil
	}
	return r.Client.Del(context.Background(), key).Err()
}

// LocalLock is used when Redis is disabled. The queue consumer and the
// redirect-verification path run in the same process and can race on
// one order, so "no Redis" still needs real per-order serialization.
type LocalLock struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocalLock() *LocalLock {
	return &LocalLock{held: make(map[string]struct{})}
}

func (l *LocalLock) Acquire(orderID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, taken := l.held[orderID]; taken {
		return false, nil
	}
	l.held[orderID] = struct{}{}
	return true, nil
}

func (l *LocalLock) Release(orderID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, orderID)
	return nil
}
