package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/vyrodovalexey/avauthz/internal/authz"
	"github.com/vyrodovalexey/avauthz/internal/observability"
)

// defaultRedisKey is the list key policy rows are stored under.
const defaultRedisKey = "avauthz:policy"

// RedisStore loads policy rows from a Redis list. Each element is one
// CSV-style line in the same format the file store reads, so policy
// sets can be moved between the two without translation.
type RedisStore struct {
	client redis.UniversalClient
	key    string
	logger observability.Logger
}

// RedisStoreOption is a functional option for the Redis store.
type RedisStoreOption func(*RedisStore)

// WithRedisKey sets the list key.
func WithRedisKey(key string) RedisStoreOption {
	return func(s *RedisStore) {
		s.key = key
	}
}

// WithRedisStoreLogger sets the logger.
func WithRedisStoreLogger(logger observability.Logger) RedisStoreOption {
	return func(s *RedisStore) {
		s.logger = logger
	}
}

// NewRedisStore creates a Redis-backed policy store.
func NewRedisStore(client redis.UniversalClient, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{
		client: client,
		key:    defaultRedisKey,
		logger: observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// LoadAll reads every row from the Redis list in order.
func (s *RedisStore) LoadAll(ctx context.Context) ([]authz.Row, error) {
	lines, err := s.client.LRange(ctx, s.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load policy from redis: %w", err)
	}

	rows := make([]authz.Row, 0, len(lines))
	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := splitRow(line)
		if len(fields) < 2 {
			s.logger.Warn("malformed policy element",
				observability.Int("index", i),
				observability.String("text", line),
			)
			continue
		}

		rows = append(rows, authz.Row{Tag: fields[0], Fields: fields[1:]})
	}

	return rows, nil
}

// ReplaceAll atomically replaces the stored policy with the given
// lines. Callers reload the engine afterwards.
func (s *RedisStore) ReplaceAll(ctx context.Context, lines []string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key)
	if len(lines) > 0 {
		values := make([]interface{}, len(lines))
		for i, line := range lines {
			values[i] = line
		}
		pipe.RPush(ctx, s.key, values...)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("replace policy in redis: %w", err)
	}
	return nil
}

// Append appends one row line to the stored policy.
func (s *RedisStore) Append(ctx context.Context, line string) error {
	if err := s.client.RPush(ctx, s.key, line).Err(); err != nil {
		return fmt.Errorf("append policy to redis: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ensure RedisStore implements the store contract.
var _ authz.Store = (*RedisStore)(nil)
