package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Chinzzii/wpvulscan/models"
)

// RedisOptions configures the Redis state backend.
type RedisOptions struct {
	// URL is the Redis connection string (e.g. "redis://localhost:6379/0")
	URL string

	// Prefix is prepended to every key
	Prefix string

	ConnectTimeout time.Duration
}

// RedisState keeps keyed state and the capped score history in Redis.
type RedisState struct {
	client *redis.Client
	prefix string
}

// NewRedisState connects to Redis and verifies the connection.
func NewRedisState(opts RedisOptions) (*RedisState, error) {
	if opts.URL == "" {
		opts.URL = "redis://localhost:6379"
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if opts.Prefix == "" {
		opts.Prefix = "wpvulscan:"
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	redisOpts.DialTimeout = opts.ConnectTimeout

	client := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisState{client: client, prefix: opts.Prefix}, nil
}

func (r *RedisState) Close() error { return r.client.Close() }

func (r *RedisState) stateKey(key string) string { return r.prefix + "state:" + key }

func (r *RedisState) historyKey() string { return r.prefix + "history" }

// PutState stores v as JSON under key.
func (r *RedisState) PutState(ctx context.Context, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal state %s: %w", key, err)
	}
	if err := r.client.Set(ctx, r.stateKey(key), data, 0).Err(); err != nil {
		return fmt.Errorf("put state %s: %w", key, err)
	}
	return nil
}

// GetState decodes the value stored under key into dest.
func (r *RedisState) GetState(ctx context.Context, key string, dest interface{}) error {
	data, err := r.client.Get(ctx, r.stateKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("state %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("get state %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("decode state %s: %w", key, err)
	}
	return nil
}

// AppendHistory pushes an entry and trims the list to HistoryLimit.
func (r *RedisState) AppendHistory(ctx context.Context, e models.HistoryEntry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal history entry: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, r.historyKey(), data)
	pipe.LTrim(ctx, r.historyKey(), -HistoryLimit, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

// ListHistory returns the kept history, oldest first.
func (r *RedisState) ListHistory(ctx context.Context) ([]models.HistoryEntry, error) {
	raw, err := r.client.LRange(ctx, r.historyKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}

	entries := make([]models.HistoryEntry, 0, len(raw))
	for _, item := range raw {
		var e models.HistoryEntry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, fmt.Errorf("decode history entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
