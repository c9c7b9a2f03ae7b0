package microservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/illmade-knight/go-remoteconfig/pkg/revalidate"
	"github.com/rs/zerolog"
)

// SnapshotReader is the read side of a revalidate.Coordinator.
type SnapshotReader[T any] interface {
	Read(ctx context.Context) (revalidate.ReadHandle[T], error)
}

// NewSnapshotHandler serves the value held by reader as JSON. The response's
// Cache-Control header carries the remaining freshness of the snapshot so
// downstream caches age it consistently.
func NewSnapshotHandler[T any](reader SnapshotReader[T], logger zerolog.Logger) http.Handler {
	return &snapshotHandler[T]{
		reader: reader,
		now:    time.Now,
		logger: logger.With().Str("component", "SnapshotHandler").Logger(),
	}
}

type snapshotHandler[T any] struct {
	reader SnapshotReader[T]
	now    func() time.Time
	logger zerolog.Logger
}

func (h *snapshotHandler[T]) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	handle, err := h.reader.Read(r.Context())
	if err != nil {
		var sourceErr *revalidate.SourceError
		if errors.As(err, &sourceErr) {
			h.logger.Warn().Err(err).Str("attempt_id", sourceErr.AttemptID.String()).Msg("Serving error, data could not be revalidated.")
		} else {
			h.logger.Warn().Err(err).Msg("Serving error, read did not complete.")
		}
		w.Header().Set("Cache-Control", "no-store")
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	body, err := json.Marshal(handle.Value())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode value.")
		http.Error(w, "failed to encode value", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", cacheControlFor(handle, h.now()))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodGet {
		_, _ = w.Write(body)
	}
}

// cacheControlFor renders the remaining lifetime of a snapshot, rounded down
// to whole seconds.
func cacheControlFor[T any](handle revalidate.ReadHandle[T], now time.Time) string {
	remaining := handle.ExpiresAt().Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	value := fmt.Sprintf("max-age=%d", int64(remaining/time.Second))
	if handle.MustRevalidate() {
		value += ", must-revalidate"
	}
	return value
}
