package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/illmade-knight/go-remoteconfig/pkg/revalidate"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisConfig holds the configuration for a RedisSource.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
	// ContentType selects the decoder for the stored value. Defaults to JSON.
	ContentType string `yaml:"content_type"`
	// MaxAge is used when the key has no TTL.
	MaxAge         time.Duration `yaml:"max_age"`
	MustRevalidate bool          `yaml:"must_revalidate"`
}

// NewRedisClient connects to Redis and pings it before returning.
func NewRedisClient(ctx context.Context, cfg *RedisConfig, logger zerolog.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info().Str("redis_address", cfg.Addr).Msg("Successfully connected to Redis.")
	return rdb, nil
}

// RedisSource reads a single key. The key's remaining TTL is its max-age, so
// whoever writes the key controls how long readers treat it as fresh.
type RedisSource[T any] struct {
	client redis.Cmdable
	cfg    RedisConfig
	logger zerolog.Logger
}

// NewRedisSource creates a RedisSource. The client's lifecycle is managed by
// the caller.
func NewRedisSource[T any](cfg *RedisConfig, client redis.Cmdable, logger zerolog.Logger) (*RedisSource[T], error) {
	if cfg == nil {
		return nil, errors.New("redis config cannot be nil")
	}
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if cfg.Key == "" {
		return nil, errors.New("redis key is required")
	}
	c := *cfg
	if c.ContentType == "" {
		c.ContentType = "application/json"
	}
	if _, err := decoderFor(c.ContentType); err != nil {
		return nil, err
	}

	return &RedisSource[T]{
		client: client,
		cfg:    c,
		logger: logger.With().Str("component", "RedisSource").Str("key", c.Key).Logger(),
	}, nil
}

// Fetch implements revalidate.Source.
func (s *RedisSource[T]) Fetch(ctx context.Context) (*revalidate.FetchResult[T], error) {
	raw, err := s.client.Get(ctx, s.cfg.Key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("redis key %q: %w", s.cfg.Key, ErrNotFound)
		}
		return nil, fmt.Errorf("redis get %q: %w", s.cfg.Key, err)
	}

	maxAge := s.cfg.MaxAge
	ttl, err := s.client.PTTL(ctx, s.cfg.Key).Result()
	switch {
	case err != nil:
		s.logger.Warn().Err(err).Msg("Failed to read key TTL, using configured max-age.")
	case ttl > 0:
		maxAge = ttl
	}

	data, err := Decode[T](s.cfg.ContentType, raw)
	if err != nil {
		return nil, err
	}

	s.logger.Debug().Dur("max_age", maxAge).Msg("Fetched value from Redis.")
	return &revalidate.FetchResult[T]{
		Data:           data,
		MustRevalidate: s.cfg.MustRevalidate,
		Freshness:      revalidate.MaxAge(maxAge),
	}, nil
}
