package revalidate

import (
	"context"
	"time"
)

// Source is the contract the Coordinator uses to load a new value. Any fetch
// mechanism (HTTP, object storage, a database query) can sit behind it.
//
// Implementations are responsible for their own timeouts. Fetch is never
// called concurrently on the same Coordinator.
type Source[T any] interface {
	Fetch(ctx context.Context) (*FetchResult[T], error)
}

// SourceFunc adapts a plain function to the Source interface.
type SourceFunc[T any] func(ctx context.Context) (*FetchResult[T], error)

// Fetch calls f(ctx).
func (f SourceFunc[T]) Fetch(ctx context.Context) (*FetchResult[T], error) {
	return f(ctx)
}

// FetchResult is what a Source returns on success.
type FetchResult[T any] struct {
	// Data is the loaded value.
	Data T
	// MustRevalidate means that once Data is stale it must not be used until
	// a refresh succeeds.
	MustRevalidate bool
	// Freshness says how long Data stays fresh. The zero value means it is
	// stale as soon as it arrives.
	Freshness Freshness
}

// Freshness is either an absolute expiry time or a max-age relative to the
// moment the result is received.
type Freshness struct {
	until    time.Time
	maxAge   time.Duration
	absolute bool
}

// Until returns a Freshness that expires at t.
func Until(t time.Time) Freshness {
	return Freshness{until: t, absolute: true}
}

// MaxAge returns a Freshness that expires d after the result is received.
func MaxAge(d time.Duration) Freshness {
	return Freshness{maxAge: d}
}

// ExpiresAt converts f into an absolute expiry for a result received at
// received.
func (f Freshness) ExpiresAt(received time.Time) time.Time {
	if f.absolute {
		return f.until
	}
	return received.Add(f.maxAge)
}

// Snapshot is one loaded value together with its expiry metadata. It is never
// modified after creation and may be shared freely between goroutines.
type Snapshot[T any] struct {
	data           T
	expiresAt      time.Time
	mustRevalidate bool
}

func newSnapshot[T any](res *FetchResult[T], received time.Time) *Snapshot[T] {
	return &Snapshot[T]{
		data:           res.Data,
		expiresAt:      res.Freshness.ExpiresAt(received),
		mustRevalidate: res.MustRevalidate,
	}
}

// Value returns the cached value.
func (s *Snapshot[T]) Value() T { return s.data }

// ExpiresAt returns the time at which the snapshot becomes stale.
func (s *Snapshot[T]) ExpiresAt() time.Time { return s.expiresAt }

// MustRevalidate reports whether the snapshot is unusable once stale.
func (s *Snapshot[T]) MustRevalidate() bool { return s.mustRevalidate }

// Fresh reports whether the snapshot is still fresh at now.
func (s *Snapshot[T]) Fresh(now time.Time) bool {
	return now.Before(s.expiresAt)
}

// ReadHandle is returned by Coordinator reads. It pins the snapshot it was
// created from, so it keeps returning the same value after the Coordinator
// has published a newer one.
//
// The zero ReadHandle, returned alongside errors, holds no snapshot.
type ReadHandle[T any] struct {
	snap *Snapshot[T]
}

// Value returns the pinned value, or the zero value for an empty handle.
func (h ReadHandle[T]) Value() T {
	if h.snap == nil {
		var zero T
		return zero
	}
	return h.snap.data
}

// Snapshot returns the pinned snapshot. It is nil for an empty handle.
func (h ReadHandle[T]) Snapshot() *Snapshot[T] { return h.snap }

// Valid reports whether the handle holds a snapshot.
func (h ReadHandle[T]) Valid() bool { return h.snap != nil }

// ExpiresAt returns the expiry of the pinned snapshot.
func (h ReadHandle[T]) ExpiresAt() time.Time {
	if h.snap == nil {
		return time.Time{}
	}
	return h.snap.expiresAt
}

// MustRevalidate returns the must-revalidate flag of the pinned snapshot.
func (h ReadHandle[T]) MustRevalidate() bool {
	return h.snap != nil && h.snap.mustRevalidate
}
