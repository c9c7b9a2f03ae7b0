package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
	"github.com/illmade-knight/go-remoteconfig/pkg/revalidate"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// GCSConfig holds configuration for a GCSSource.
type GCSConfig struct {
	BucketName      string `yaml:"bucket"`
	ObjectName      string `yaml:"object"`
	CredentialsFile string `yaml:"credentials_file"`
	// ContentType is used when the object has none; otherwise the type is
	// guessed from the object name.
	ContentType string `yaml:"content_type"`
	// MaxAge and MustRevalidate apply when the object has no Cache-Control
	// metadata.
	MaxAge         time.Duration `yaml:"max_age"`
	MustRevalidate bool          `yaml:"must_revalidate"`
}

// NewGCSClient creates a storage client, using the credentials file when one
// is configured.
func NewGCSClient(ctx context.Context, cfg *GCSConfig, logger zerolog.Logger) (*storage.Client, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
		logger.Info().Str("credentials_file", cfg.CredentialsFile).Msg("Using specified credentials file for GCS client.")
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage.NewClient: %w", err)
	}
	return client, nil
}

// GCSSource reads a single object. The object's Cache-Control and
// Content-Type metadata play the role of HTTP response headers.
type GCSSource[T any] struct {
	object GCSObjectHandle
	cfg    GCSConfig
	logger zerolog.Logger
}

// NewGCSSource creates a GCSSource.
func NewGCSSource[T any](cfg *GCSConfig, client GCSClient, logger zerolog.Logger) (*GCSSource[T], error) {
	if cfg == nil {
		return nil, errors.New("GCS config cannot be nil")
	}
	if client == nil {
		return nil, errors.New("GCS client cannot be nil")
	}
	if cfg.BucketName == "" || cfg.ObjectName == "" {
		return nil, errors.New("GCS bucket and object names are required")
	}

	return &GCSSource[T]{
		object: client.Bucket(cfg.BucketName).Object(cfg.ObjectName),
		cfg:    *cfg,
		logger: logger.With().
			Str("component", "GCSSource").
			Str("bucket", cfg.BucketName).
			Str("object", cfg.ObjectName).
			Logger(),
	}, nil
}

// Fetch implements revalidate.Source.
func (s *GCSSource[T]) Fetch(ctx context.Context) (*revalidate.FetchResult[T], error) {
	r, err := s.object.NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("gs://%s/%s: %w", s.cfg.BucketName, s.cfg.ObjectName, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to open gs://%s/%s: %w", s.cfg.BucketName, s.cfg.ObjectName, err)
	}
	defer r.Close()

	contentType := r.ContentType()
	if contentType == "" {
		contentType = s.cfg.ContentType
	}
	if contentType == "" {
		contentType = contentTypeForPath(s.cfg.ObjectName)
	}
	if contentType == "" {
		return nil, &HeaderNotFoundError{Header: headerContentType}
	}

	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read gs://%s/%s: %w", s.cfg.BucketName, s.cfg.ObjectName, err)
	}
	data, err := Decode[T](contentType, body)
	if err != nil {
		return nil, err
	}

	res := &revalidate.FetchResult[T]{
		Data:           data,
		MustRevalidate: s.cfg.MustRevalidate,
		Freshness:      revalidate.MaxAge(s.cfg.MaxAge),
	}
	if value := r.CacheControl(); value != "" {
		cc, err := ParseCacheControl(value)
		if err != nil {
			return nil, err
		}
		res.MustRevalidate = cc.Revalidate()
		res.Freshness = cc.Freshness()
	}

	s.logger.Debug().Str("content_type", contentType).Int("bytes", len(body)).Msg("Fetched object from GCS.")
	return res, nil
}
