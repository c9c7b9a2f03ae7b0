package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/illmade-knight/go-remoteconfig/pkg/revalidate"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreConfig holds configuration for a FirestoreSource.
type FirestoreConfig struct {
	ProjectID       string        `yaml:"project_id"`
	CollectionName  string        `yaml:"collection"`
	DocumentID      string        `yaml:"document"`
	CredentialsFile string        `yaml:"credentials_file"`
	MaxAge          time.Duration `yaml:"max_age"`
	MustRevalidate  bool          `yaml:"must_revalidate"`
}

// NewFirestoreClient creates a Firestore client, using the credentials file
// when one is configured and Application Default Credentials otherwise.
func NewFirestoreClient(ctx context.Context, cfg *FirestoreConfig, logger zerolog.Logger) (*firestore.Client, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
		logger.Info().Str("credentials_file", cfg.CredentialsFile).Msg("Using specified credentials file for Firestore client.")
	}
	client, err := firestore.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestore.NewClient: %w", err)
	}
	return client, nil
}

// FirestoreSource reads one document and maps it onto T with DataTo.
type FirestoreSource[T any] struct {
	doc    *firestore.DocumentRef
	cfg    FirestoreConfig
	logger zerolog.Logger
}

// NewFirestoreSource creates a FirestoreSource. The client's lifecycle is
// managed externally.
func NewFirestoreSource[T any](
	cfg *FirestoreConfig,
	client *firestore.Client,
	logger zerolog.Logger,
) (*FirestoreSource[T], error) {
	if cfg == nil {
		return nil, errors.New("firestore config cannot be nil")
	}
	if client == nil {
		return nil, errors.New("firestore client cannot be nil")
	}
	if cfg.CollectionName == "" || cfg.DocumentID == "" {
		return nil, errors.New("firestore collection and document are required")
	}

	logger = logger.With().
		Str("component", "FirestoreSource").
		Str("collection", cfg.CollectionName).
		Str("document", cfg.DocumentID).
		Logger()
	logger.Info().Str("project_id", cfg.ProjectID).Msg("FirestoreSource initialized.")

	return &FirestoreSource[T]{
		doc:    client.Collection(cfg.CollectionName).Doc(cfg.DocumentID),
		cfg:    *cfg,
		logger: logger,
	}, nil
}

// Fetch implements revalidate.Source.
func (s *FirestoreSource[T]) Fetch(ctx context.Context) (*revalidate.FetchResult[T], error) {
	snap, err := s.doc.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("firestore document %s: %w", s.doc.Path, ErrNotFound)
		}
		return nil, fmt.Errorf("firestore get for %s: %w", s.doc.Path, err)
	}

	var value T
	if err := snap.DataTo(&value); err != nil {
		return nil, fmt.Errorf("firestore DataTo for %s: %w", s.doc.Path, err)
	}

	s.logger.Debug().Time("update_time", snap.UpdateTime).Msg("Fetched document from Firestore.")
	return &revalidate.FetchResult[T]{
		Data:           value,
		MustRevalidate: s.cfg.MustRevalidate,
		Freshness:      revalidate.MaxAge(s.cfg.MaxAge),
	}, nil
}
