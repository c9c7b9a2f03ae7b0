package source_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/illmade-knight/go-remoteconfig/pkg/source"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/iterator"
)

type route struct {
	Prefix  string
	Backend string
}

type mockRowIterator struct {
	rows []route
	err  error
	pos  int
}

func (it *mockRowIterator) Next(dst interface{}) error {
	if it.pos >= len(it.rows) {
		if it.err != nil {
			return it.err
		}
		return iterator.Done
	}
	*(dst.(*route)) = it.rows[it.pos]
	it.pos++
	return nil
}

type mockQueryRunner struct {
	rows    []route
	iterErr error
	runErr  error
	query   string
}

func (r *mockQueryRunner) Run(_ context.Context, query string) (source.RowIterator, error) {
	r.query = query
	if r.runErr != nil {
		return nil, r.runErr
	}
	return &mockRowIterator{rows: r.rows, err: r.iterErr}, nil
}

func TestBigQuerySource_Fetch(t *testing.T) {
	const query = "SELECT prefix AS Prefix, backend AS Backend FROM routing.routes"

	t.Run("loads all rows", func(t *testing.T) {
		// Arrange
		runner := &mockQueryRunner{rows: []route{{"/api", "api-svc"}, {"/web", "web-svc"}}}
		cfg := &source.BigQueryConfig{Query: query, MaxAge: time.Minute, MustRevalidate: true}
		src, err := source.NewBigQuerySource[route](cfg, runner, zerolog.Nop())
		require.NoError(t, err)
		received := time.Now()

		// Act
		res, err := src.Fetch(context.Background())

		// Assert
		require.NoError(t, err)
		assert.Equal(t, query, runner.query)
		assert.Equal(t, runner.rows, res.Data)
		assert.True(t, res.MustRevalidate)
		assert.Equal(t, received.Add(time.Minute), res.Freshness.ExpiresAt(received))
	})

	t.Run("empty result is not an error", func(t *testing.T) {
		src, err := source.NewBigQuerySource[route](&source.BigQueryConfig{Query: query}, &mockQueryRunner{}, zerolog.Nop())
		require.NoError(t, err)

		res, err := src.Fetch(context.Background())

		require.NoError(t, err)
		assert.NotNil(t, res.Data)
		assert.Empty(t, res.Data)
	})

	t.Run("query failure", func(t *testing.T) {
		runner := &mockQueryRunner{runErr: errors.New("quota exceeded")}
		src, err := source.NewBigQuerySource[route](&source.BigQueryConfig{Query: query}, runner, zerolog.Nop())
		require.NoError(t, err)

		_, err = src.Fetch(context.Background())

		assert.ErrorIs(t, err, runner.runErr)
	})

	t.Run("iteration failure", func(t *testing.T) {
		runner := &mockQueryRunner{rows: []route{{"/api", "api-svc"}}, iterErr: errors.New("stream reset")}
		src, err := source.NewBigQuerySource[route](&source.BigQueryConfig{Query: query}, runner, zerolog.Nop())
		require.NoError(t, err)

		_, err = src.Fetch(context.Background())

		assert.ErrorIs(t, err, runner.iterErr)
	})
}

func TestNewBigQuerySource_InvalidConfig(t *testing.T) {
	_, err := source.NewBigQuerySource[route](nil, &mockQueryRunner{}, zerolog.Nop())
	assert.Error(t, err)
	_, err = source.NewBigQuerySource[route](&source.BigQueryConfig{Query: "SELECT 1"}, nil, zerolog.Nop())
	assert.Error(t, err)
	_, err = source.NewBigQuerySource[route](&source.BigQueryConfig{}, &mockQueryRunner{}, zerolog.Nop())
	assert.Error(t, err)
}
