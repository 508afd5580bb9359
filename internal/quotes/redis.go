package quotes

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const quoteKeyPrefix = "stockwatch:quote:"

var _ Store = (*RedisStore)(nil)

// RedisStore shares quotes between API replicas and the warmer. Keys expire
// after keep, which should be at least the freshness window.
type RedisStore struct {
	client *redis.Client
	keep   time.Duration
}

func NewRedisStore(client *redis.Client, keep time.Duration) *RedisStore {
	if keep <= 0 {
		keep = time.Minute
	}
	return &RedisStore{client: client, keep: keep}
}

// DialRedis parses a redis:// URL and checks the connection.
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (r *RedisStore) Get(ctx context.Context, symbols []string) (map[string]Quote, error) {
	out := make(map[string]Quote, len(symbols))
	if len(symbols) == 0 {
		return out, nil
	}
	keys := make([]string, len(symbols))
	for i, s := range symbols {
		keys[i] = quoteKeyPrefix + s
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}
	for _, v := range values {
		payload, ok := v.(string)
		if !ok || payload == "" {
			continue
		}
		var q Quote
		if err := json.Unmarshal([]byte(payload), &q); err != nil {
			continue
		}
		out[q.Symbol] = q
	}
	return out, nil
}

func (r *RedisStore) Put(ctx context.Context, quotes []Quote) error {
	if len(quotes) == 0 {
		return nil
	}
	pipe := r.client.Pipeline()
	for _, q := range quotes {
		data, err := json.Marshal(q)
		if err != nil {
			return err
		}
		pipe.Set(ctx, quoteKeyPrefix+q.Symbol, data, r.keep)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis set quotes: %w", err)
	}
	return nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
