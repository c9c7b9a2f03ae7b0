package source_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/illmade-knight/go-remoteconfig/pkg/source"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const flagsKey = "config:flags"

func newRedisSource(t *testing.T, cfg *source.RedisConfig) (*source.RedisSource[flags], redismock.ClientMock) {
	t.Helper()
	rdb, mock := redismock.NewClientMock()
	t.Cleanup(func() { _ = rdb.Close() })
	src, err := source.NewRedisSource[flags](cfg, rdb, zerolog.Nop())
	require.NoError(t, err)
	return src, mock
}

func TestRedisSource_Fetch(t *testing.T) {
	t.Run("TTL becomes max-age", func(t *testing.T) {
		// Arrange
		src, mock := newRedisSource(t, &source.RedisConfig{Key: flagsKey, MaxAge: time.Second, MustRevalidate: true})
		mock.ExpectGet(flagsKey).SetVal(`{"enabled":true,"region":"eu"}`)
		mock.ExpectPTTL(flagsKey).SetVal(90 * time.Second)
		received := time.Now()

		// Act
		res, err := src.Fetch(context.Background())

		// Assert
		require.NoError(t, err)
		assert.Equal(t, flags{Enabled: true, Region: "eu"}, res.Data)
		assert.True(t, res.MustRevalidate)
		assert.Equal(t, received.Add(90*time.Second), res.Freshness.ExpiresAt(received))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("key without TTL uses configured max-age", func(t *testing.T) {
		src, mock := newRedisSource(t, &source.RedisConfig{Key: flagsKey, MaxAge: 30 * time.Second})
		mock.ExpectGet(flagsKey).SetVal(`{"region":"us"}`)
		mock.ExpectPTTL(flagsKey).SetVal(-1)
		received := time.Now()

		res, err := src.Fetch(context.Background())

		require.NoError(t, err)
		assert.Equal(t, received.Add(30*time.Second), res.Freshness.ExpiresAt(received))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("YAML content type", func(t *testing.T) {
		src, mock := newRedisSource(t, &source.RedisConfig{Key: flagsKey, ContentType: "application/yaml"})
		mock.ExpectGet(flagsKey).SetVal("region: ap\n")
		mock.ExpectPTTL(flagsKey).SetVal(time.Minute)

		res, err := src.Fetch(context.Background())

		require.NoError(t, err)
		assert.Equal(t, "ap", res.Data.Region)
	})

	t.Run("missing key", func(t *testing.T) {
		src, mock := newRedisSource(t, &source.RedisConfig{Key: flagsKey})
		mock.ExpectGet(flagsKey).RedisNil()

		_, err := src.Fetch(context.Background())

		require.Error(t, err)
		assert.ErrorIs(t, err, source.ErrNotFound)
	})

	t.Run("connection error", func(t *testing.T) {
		src, mock := newRedisSource(t, &source.RedisConfig{Key: flagsKey})
		mock.ExpectGet(flagsKey).SetErr(errors.New("connection refused"))

		_, err := src.Fetch(context.Background())

		require.Error(t, err)
		assert.NotErrorIs(t, err, source.ErrNotFound)
		assert.NotErrorIs(t, err, redis.Nil)
	})
}

func TestNewRedisSource_InvalidConfig(t *testing.T) {
	rdb, _ := redismock.NewClientMock()

	_, err := source.NewRedisSource[flags](nil, rdb, zerolog.Nop())
	assert.Error(t, err)
	_, err = source.NewRedisSource[flags](&source.RedisConfig{}, rdb, zerolog.Nop())
	assert.Error(t, err, "A key is required")
	_, err = source.NewRedisSource[flags](&source.RedisConfig{Key: "k", ContentType: "image/png"}, rdb, zerolog.Nop())
	assert.Error(t, err)
}
