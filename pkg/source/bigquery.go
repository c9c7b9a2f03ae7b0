package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/illmade-knight/go-remoteconfig/pkg/revalidate"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// BigQueryConfig holds configuration for a BigQuerySource.
type BigQueryConfig struct {
	ProjectID       string `yaml:"project_id"`
	CredentialsFile string `yaml:"credentials_file"`
	// Query is standard SQL; its result rows are loaded into the row type.
	Query          string        `yaml:"query"`
	MaxAge         time.Duration `yaml:"max_age"`
	MustRevalidate bool          `yaml:"must_revalidate"`
}

// NewBigQueryClient creates a BigQuery client suitable for production environments.
func NewBigQueryClient(ctx context.Context, cfg *BigQueryConfig, logger zerolog.Logger) (*bigquery.Client, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
		logger.Info().Str("credentials_file", cfg.CredentialsFile).Msg("Using specified credentials file for BigQuery client.")
	} else {
		logger.Info().Msg("Using Application Default Credentials (ADC) for BigQuery client.")
	}

	client, err := bigquery.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("bigquery.NewClient: %w", err)
	}
	return client, nil
}

// RowIterator abstracts *bigquery.RowIterator.
type RowIterator interface {
	// Next follows bigquery.RowIterator.Next and returns iterator.Done when
	// there are no more rows.
	Next(dst interface{}) error
}

// QueryRunner runs a query and returns its rows.
type QueryRunner interface {
	Run(ctx context.Context, query string) (RowIterator, error)
}

// NewBigQueryRunner adapts a *bigquery.Client to QueryRunner.
func NewBigQueryRunner(client *bigquery.Client) QueryRunner {
	if client == nil {
		return nil
	}
	return &bigQueryRunner{client: client}
}

type bigQueryRunner struct {
	client *bigquery.Client
}

func (r *bigQueryRunner) Run(ctx context.Context, query string) (RowIterator, error) {
	it, err := r.client.Query(query).Read(ctx)
	if err != nil {
		return nil, err
	}
	return it, nil
}

// BigQuerySource loads every row of a query result, typically a small
// reference table such as a feature flag or routing table.
type BigQuerySource[R any] struct {
	runner QueryRunner
	cfg    BigQueryConfig
	logger zerolog.Logger
}

// NewBigQuerySource creates a BigQuerySource.
func NewBigQuerySource[R any](cfg *BigQueryConfig, runner QueryRunner, logger zerolog.Logger) (*BigQuerySource[R], error) {
	if cfg == nil {
		return nil, errors.New("BigQueryConfig cannot be nil")
	}
	if runner == nil {
		return nil, errors.New("bigquery query runner cannot be nil")
	}
	if cfg.Query == "" {
		return nil, errors.New("bigquery query is required")
	}
	return &BigQuerySource[R]{
		runner: runner,
		cfg:    *cfg,
		logger: logger.With().Str("component", "BigQuerySource").Logger(),
	}, nil
}

// Fetch implements revalidate.Source.
func (s *BigQuerySource[R]) Fetch(ctx context.Context) (*revalidate.FetchResult[[]R], error) {
	it, err := s.runner.Run(ctx, s.cfg.Query)
	if err != nil {
		return nil, fmt.Errorf("bigquery query failed: %w", err)
	}

	rows := make([]R, 0)
	for {
		var row R
		err := it.Next(&row)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("bigquery row %d: %w", len(rows), err)
		}
		rows = append(rows, row)
	}

	s.logger.Debug().Int("rows", len(rows)).Msg("Loaded query result from BigQuery.")
	return &revalidate.FetchResult[[]R]{
		Data:           rows,
		MustRevalidate: s.cfg.MustRevalidate,
		Freshness:      revalidate.MaxAge(s.cfg.MaxAge),
	}, nil
}
