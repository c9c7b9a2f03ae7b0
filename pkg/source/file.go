package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/illmade-knight/go-remoteconfig/pkg/revalidate"
	"github.com/rs/zerolog"
)

// FileConfig holds configuration for a FileSource.
type FileConfig struct {
	Path string `yaml:"path"`
	// ContentType overrides the type guessed from the file extension.
	ContentType    string        `yaml:"content_type"`
	MaxAge         time.Duration `yaml:"max_age"`
	MustRevalidate bool          `yaml:"must_revalidate"`
}

// FileSource reads and decodes a local file, which makes a mounted config map
// or secret usable as a source.
type FileSource[T any] struct {
	cfg         FileConfig
	contentType string
	logger      zerolog.Logger
}

// NewFileSource creates a FileSource.
func NewFileSource[T any](cfg *FileConfig, logger zerolog.Logger) (*FileSource[T], error) {
	if cfg == nil {
		return nil, errors.New("file config cannot be nil")
	}
	if cfg.Path == "" {
		return nil, errors.New("file path is required")
	}
	contentType := cfg.ContentType
	if contentType == "" {
		contentType = contentTypeForPath(cfg.Path)
	}
	if contentType == "" {
		return nil, fmt.Errorf("cannot determine content type of %s", cfg.Path)
	}
	if _, err := decoderFor(contentType); err != nil {
		return nil, err
	}

	return &FileSource[T]{
		cfg:         *cfg,
		contentType: contentType,
		logger:      logger.With().Str("component", "FileSource").Str("path", cfg.Path).Logger(),
	}, nil
}

// Fetch implements revalidate.Source.
func (s *FileSource[T]) Fetch(_ context.Context) (*revalidate.FetchResult[T], error) {
	raw, err := os.ReadFile(s.cfg.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", s.cfg.Path, ErrNotFound)
		}
		return nil, err
	}
	data, err := Decode[T](s.contentType, raw)
	if err != nil {
		return nil, err
	}

	s.logger.Debug().Int("bytes", len(raw)).Msg("Read file.")
	return &revalidate.FetchResult[T]{
		Data:           data,
		MustRevalidate: s.cfg.MustRevalidate,
		Freshness:      revalidate.MaxAge(s.cfg.MaxAge),
	}, nil
}
