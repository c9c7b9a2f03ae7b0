package source_test

import (
	"testing"
	"time"

	"github.com/illmade-knight/go-remoteconfig/pkg/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCacheControl(t *testing.T) {
	testCases := []struct {
		value      string
		expected   source.CacheControl
		revalidate bool
	}{
		{
			value:    "max-age=300",
			expected: source.CacheControl{MaxAge: 300 * time.Second, HasMaxAge: true},
		},
		{
			value:      "public, max-age=0, must-revalidate",
			expected:   source.CacheControl{HasMaxAge: true, MustRevalidate: true},
			revalidate: true,
		},
		{
			value:      "max-age=10, proxy-revalidate",
			expected:   source.CacheControl{MaxAge: 10 * time.Second, HasMaxAge: true, MustRevalidate: true},
			revalidate: true,
		},
		{
			value:      "no-store",
			expected:   source.CacheControl{NoStore: true},
			revalidate: true,
		},
		{
			value:    "public",
			expected: source.CacheControl{},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.value, func(t *testing.T) {
			cc, err := source.ParseCacheControl(tc.value)

			require.NoError(t, err)
			assert.Equal(t, tc.expected, cc)
			assert.Equal(t, tc.revalidate, cc.Revalidate())
		})
	}
}

func TestCacheControl_Freshness(t *testing.T) {
	received := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	cc := source.CacheControl{MaxAge: time.Minute, HasMaxAge: true}
	assert.Equal(t, received.Add(time.Minute), cc.Freshness().ExpiresAt(received))

	cc.NoCache = true
	assert.Equal(t, received, cc.Freshness().ExpiresAt(received), "no-cache is stale on arrival")

	assert.Equal(t, received, source.CacheControl{}.Freshness().ExpiresAt(received), "No max-age is stale on arrival")
}

func TestDecode(t *testing.T) {
	t.Run("structured syntax suffix", func(t *testing.T) {
		v, err := source.Decode[flags]("application/vnd.flags+json", []byte(`{"region":"eu"}`))

		require.NoError(t, err)
		assert.Equal(t, "eu", v.Region)
	})

	t.Run("media type is case insensitive", func(t *testing.T) {
		v, err := source.Decode[flags]("Application/JSON; charset=UTF-8", []byte(`{"region":"eu"}`))

		require.NoError(t, err)
		assert.Equal(t, "eu", v.Region)
	})

	t.Run("malformed content type", func(t *testing.T) {
		_, err := source.Decode[flags]("application/", []byte(`{}`))

		var parseErr *source.HeaderParseError
		assert.ErrorAs(t, err, &parseErr)
	})

	t.Run("registered decoder", func(t *testing.T) {
		source.RegisterDecoder("text/x-region", func(data []byte, v any) error {
			v.(*flags).Region = string(data)
			return nil
		})

		v, err := source.Decode[flags]("text/x-region", []byte("sa"))

		require.NoError(t, err)
		assert.Equal(t, "sa", v.Region)
	})
}
