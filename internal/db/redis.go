package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrNilRedisStore is returned by operations on an unconfigured store.
var ErrNilRedisStore = errors.New("redis store not configured")

// ReloadChannel is the pub/sub channel catalogue reloads are announced on.
const ReloadChannel = "bidder:catalog:reload"

// RedisStore wraps a redis client.
type RedisStore struct {
	Client *redis.Client
}

// InitRedis connects to Redis with tracing instrumentation.
func InitRedis(ctx context.Context, addr string) (*RedisStore, error) {
	rs := NewRedisStore(redis.NewClient(&redis.Options{Addr: addr}))

	if err := redisotel.InstrumentTracing(rs.Client); err != nil {
		return nil, fmt.Errorf("failed to instrument redis tracing: %w", err)
	}

	if err := rs.Client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	zap.L().Info("Connected to Redis", zap.String("addr", addr))
	return rs, nil
}

// NewRedisStore wraps an existing client. Used by tests against miniredis.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{Client: client}
}

func freqKey(userID string, lineItemID int) string {
	return fmt.Sprintf("freqcap:%s:%d", userID, lineItemID)
}

// IncrementWin counts a won impression for (userID, lineItemID) and returns
// the current count. The window starts with the first win: the TTL is only
// set on a counter that has none, in the same transaction as the increment.
func (r *RedisStore) IncrementWin(ctx context.Context, userID string, lineItemID int, window time.Duration) (int64, error) {
	if r == nil || r.Client == nil {
		return 0, ErrNilRedisStore
	}
	key := freqKey(userID, lineItemID)
	pipe := r.Client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("increment win counter: %w", err)
	}
	return incr.Val(), nil
}

// WinCounts returns the current counters for userID across line items in one
// round trip. Missing counters are reported as zero.
func (r *RedisStore) WinCounts(ctx context.Context, userID string, lineItemIDs []int) (map[int]int64, error) {
	if r == nil || r.Client == nil {
		return nil, ErrNilRedisStore
	}
	out := make(map[int]int64, len(lineItemIDs))
	if len(lineItemIDs) == 0 {
		return out, nil
	}

	pipe := r.Client.Pipeline()
	cmds := make(map[int]*redis.StringCmd, len(lineItemIDs))
	for _, id := range lineItemIDs {
		if _, dup := cmds[id]; !dup {
			cmds[id] = pipe.Get(ctx, freqKey(userID, id))
		}
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("pipeline exec failed: %w", err)
	}
	for id, cmd := range cmds {
		n, err := cmd.Int64()
		if err != nil {
			n = 0
		}
		out[id] = n
	}
	return out, nil
}

// ClaimWin marks a bid as won. It reports false when the bid was already
// claimed within ttl, so repeated win notices are counted once.
func (r *RedisStore) ClaimWin(ctx context.Context, bidID string, ttl time.Duration) (bool, error) {
	if r == nil || r.Client == nil {
		return false, ErrNilRedisStore
	}
	return r.Client.SetNX(ctx, "win:"+bidID, 1, ttl).Result()
}

// PublishReload asks every bidder instance to reload its catalogue.
func (r *RedisStore) PublishReload(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return ErrNilRedisStore
	}
	return r.Client.Publish(ctx, ReloadChannel, time.Now().UTC().Format(time.RFC3339)).Err()
}

// SubscribeReload calls fn for every reload announcement until ctx is done.
func (r *RedisStore) SubscribeReload(ctx context.Context, fn func(context.Context)) error {
	if r == nil || r.Client == nil {
		return ErrNilRedisStore
	}
	sub := r.Client.Subscribe(ctx, ReloadChannel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe %s: %w", ReloadChannel, err)
	}
	go func() {
		defer func() { _ = sub.Close() }()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				fn(ctx)
			}
		}
	}()
	return nil
}

// Close shuts down the Redis client.
func (r *RedisStore) Close() {
	if r != nil && r.Client != nil {
		if err := r.Client.Close(); err != nil {
			zap.L().Error("redis close", zap.Error(err))
		}
	}
}
