package cmd

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/bigquery"
	"github.com/illmade-knight/go-remoteconfig/pkg/invalidation"
	"github.com/illmade-knight/go-remoteconfig/pkg/microservice"
	"github.com/illmade-knight/go-remoteconfig/pkg/revalidate"
	"github.com/illmade-knight/go-remoteconfig/pkg/source"
	"github.com/rs/zerolog"
)

// Document is the value type served for every source except BigQuery.
type Document = map[string]any

// Run builds the configured source and serves it until ctx is done.
func Run(ctx context.Context, cfg *Config, logger zerolog.Logger) error {
	var closers []io.Closer
	defer func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				logger.Warn().Err(err).Msg("Failed to close client.")
			}
		}
	}()

	switch cfg.Source {
	case SourceHTTP:
		src, err := source.NewHTTPSource[Document](&cfg.HTTP, nil, nil, logger)
		if err != nil {
			return err
		}
		return serve[Document](ctx, cfg, src, logger)

	case SourceFile:
		src, err := source.NewFileSource[Document](&cfg.File, logger)
		if err != nil {
			return err
		}
		return serve[Document](ctx, cfg, src, logger)

	case SourceGCS:
		client, err := source.NewGCSClient(ctx, &cfg.GCS, logger)
		if err != nil {
			return err
		}
		closers = append(closers, client)
		src, err := source.NewGCSSource[Document](&cfg.GCS, source.NewGCSClientAdapter(client), logger)
		if err != nil {
			return err
		}
		return serve[Document](ctx, cfg, src, logger)

	case SourceRedis:
		client, err := source.NewRedisClient(ctx, &cfg.Redis, logger)
		if err != nil {
			return err
		}
		closers = append(closers, client)
		src, err := source.NewRedisSource[Document](&cfg.Redis, client, logger)
		if err != nil {
			return err
		}
		return serve[Document](ctx, cfg, src, logger)

	case SourceFirestore:
		client, err := source.NewFirestoreClient(ctx, &cfg.Firestore, logger)
		if err != nil {
			return err
		}
		closers = append(closers, client)
		src, err := source.NewFirestoreSource[Document](&cfg.Firestore, client, logger)
		if err != nil {
			return err
		}
		return serve[Document](ctx, cfg, src, logger)

	case SourceBigQuery:
		client, err := source.NewBigQueryClient(ctx, &cfg.BigQuery, logger)
		if err != nil {
			return err
		}
		closers = append(closers, client)
		src, err := source.NewBigQuerySource[map[string]bigquery.Value](&cfg.BigQuery, source.NewBigQueryRunner(client), logger)
		if err != nil {
			return err
		}
		return serve[[]map[string]bigquery.Value](ctx, cfg, src, logger)
	}
	return fmt.Errorf("unknown source %q", cfg.Source)
}

func serve[T any](ctx context.Context, cfg *Config, src revalidate.Source[T], logger zerolog.Logger) error {
	server := microservice.NewBaseServer(logger, cfg.HTTPPort)
	if err := server.Start(); err != nil {
		return err
	}
	defer shutdown(cfg, server, logger)

	coord, err := revalidate.New[T](ctx, &cfg.Revalidate, src, logger)
	if err != nil {
		return fmt.Errorf("initial load failed: %w", err)
	}
	server.Mux().Handle(cfg.ServePath, microservice.NewSnapshotHandler[T](coord, logger))
	server.SetReady(true)

	if cfg.Invalidation != nil {
		client, err := invalidation.NewPubsubClient(ctx, cfg.Invalidation, logger)
		if err != nil {
			return err
		}
		defer client.Close()

		listener, err := invalidation.NewPubsubListener(ctx, cfg.Invalidation, client, invalidation.CoordinatorRefresher(coord), logger)
		if err != nil {
			return err
		}
		if err := listener.Start(ctx); err != nil {
			return err
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
			defer cancel()
			if err := listener.Stop(stopCtx); err != nil {
				logger.Warn().Err(err).Msg("Pub/Sub listener did not stop cleanly.")
			}
		}()
	}

	logger.Info().Str("source", cfg.Source).Str("path", cfg.ServePath).Msg("Serving remote config.")
	<-ctx.Done()
	logger.Info().Msg("Shutdown signal received.")
	return nil
}

func shutdown(cfg *Config, server *microservice.BaseServer, logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown failed.")
	}
}
