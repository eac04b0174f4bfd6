package limiter

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
)

const defaultRedisKeyPrefix = "simpleauth:failures:"

// RedisTracker keeps failures in a Redis sorted set per key, scored by the
// failure time, so that every replica behind the proxy sees the same counts.
type RedisTracker struct {
	client redis.UniversalClient
	window time.Duration
	prefix string
	seq    uint64
	now    func() time.Time
}

var _ FailureTracker = &RedisTracker{}

func NewRedisTracker(client redis.UniversalClient, window time.Duration, keyPrefix string) *RedisTracker {
	if keyPrefix == "" {
		keyPrefix = defaultRedisKeyPrefix
	}
	return &RedisTracker{
		client: client,
		window: window,
		prefix: keyPrefix,
		now:    time.Now,
	}
}

// NewRedisTrackerFromAddr connects to a single Redis server.
func NewRedisTrackerFromAddr(ctx context.Context, addr, password string, db int, window time.Duration) (*RedisTracker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		PoolSize: 100,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrapf(err, "connecting to redis at %s", addr)
	}
	return NewRedisTracker(client, window, ""), nil
}

func (t *RedisTracker) RecordFailure(ctx context.Context, key string) (int, error) {
	k := t.prefix + key
	now := t.now()
	cutoff := now.Add(-t.window).UnixMilli()
	member := fmt.Sprintf("%d-%d", now.UnixNano(), atomic.AddUint64(&t.seq, 1))

	var card *redis.IntCmd
	_, err := t.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, k, "-inf", strconv.FormatInt(cutoff, 10))
		pipe.ZAdd(ctx, k, &redis.Z{Score: float64(now.UnixMilli()), Member: member})
		card = pipe.ZCard(ctx, k)
		pipe.Expire(ctx, k, t.window)
		return nil
	})
	if err != nil {
		return 0, errors.Wrap(err, "recording failed attempt in redis")
	}
	return int(card.Val()), nil
}

func (t *RedisTracker) Reset(ctx context.Context, key string) error {
	return errors.Wrap(t.client.Del(ctx, t.prefix+key).Err(), "resetting failed attempts in redis")
}

func (t *RedisTracker) Close() error {
	return t.client.Close()
}
