package revalidate

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Coordinator caches the value produced by a Source and decides, on every
// read, whether it can be served as is, served stale, or must be refreshed.
type Coordinator[T any] struct {
	name          string
	retryInterval time.Duration
	clock         Clock
	logger        zerolog.Logger

	// current is read without locking and always holds a snapshot.
	current atomic.Pointer[Snapshot[T]]

	// gate is a one-slot lock held for the full duration of a refresh
	// attempt. source, lastFailure and lastFault are only accessed by the
	// gate holder.
	gate        chan struct{}
	source      Source[T]
	lastFailure *SourceError
	// lastFault is set when the most recent attempt panicked.
	lastFault *RefreshPanic
}

// outcome is the result of a single refresh attempt.
type outcome[T any] struct {
	snap  *Snapshot[T]
	err   *SourceError
	fault *RefreshPanic
}

// New creates a Coordinator and performs the initial load synchronously. If
// the initial load fails, the *SourceError is returned and no Coordinator is
// created.
func New[T any](
	ctx context.Context,
	cfg *Config,
	source Source[T],
	logger zerolog.Logger,
) (*Coordinator[T], error) {
	if source == nil {
		return nil, errors.New("source cannot be nil")
	}
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if cfg.RetryInterval < 0 {
		return nil, fmt.Errorf("retry interval cannot be negative: %s", cfg.RetryInterval)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = systemClock{}
	}

	c := &Coordinator[T]{
		name:          cfg.Name,
		retryInterval: cfg.RetryInterval,
		clock:         clock,
		logger:        logger.With().Str("component", "Coordinator").Str("config", cfg.Name).Logger(),
		gate:          make(chan struct{}, 1),
		source:        source,
	}

	snap, serr := c.fetch(ctx, uuid.New())
	if serr != nil {
		c.logger.Error().Err(serr.Err).Msg("Initial data load failed.")
		return nil, serr
	}
	c.current.Store(snap)

	c.logger.Info().
		Time("expires_at", snap.expiresAt).
		Bool("must_revalidate", snap.mustRevalidate).
		Msg("Initial data loaded.")
	return c, nil
}

// Name returns the configured name.
func (c *Coordinator[T]) Name() string {
	return c.name
}

// Current returns the current snapshot without checking freshness and without
// triggering a refresh.
func (c *Coordinator[T]) Current() ReadHandle[T] {
	return ReadHandle[T]{snap: c.current.Load()}
}

// Read is ReadAt with the current time of the configured clock.
func (c *Coordinator[T]) Read(ctx context.Context) (ReadHandle[T], error) {
	return c.ReadAt(ctx, c.clock.Now())
}

// ReadAt returns the cached value as seen at time now.
//
// A fresh snapshot is returned without locking. For a stale snapshot the
// caller either starts a refresh or finds one in flight. Stale snapshots that
// do not require revalidation are returned immediately in both cases; the
// others wait for the refresh and return its outcome.
//
// Errors are always *SourceError, ErrRefreshAborted or the context's error.
// The context only bounds how long this call waits: a refresh that has
// started runs to completion regardless.
//
// ReadAt panics with a *RefreshPanic if it waited on a refresh whose source
// panicked.
func (c *Coordinator[T]) ReadAt(ctx context.Context, now time.Time) (ReadHandle[T], error) {
	snap := c.current.Load()
	if snap.Fresh(now) {
		return ReadHandle[T]{snap: snap}, nil
	}

	if !c.tryAcquire() {
		if !snap.mustRevalidate {
			c.logger.Warn().Time("expired_at", snap.expiresAt).Msg("Stale data is being used while revalidation is in progress.")
			return ReadHandle[T]{snap: snap}, nil
		}
		return c.awaitInFlight(ctx)
	}

	// Another refresh may have published between the load and the acquire.
	if latest := c.current.Load(); latest != snap {
		c.release()
		return ReadHandle[T]{snap: latest}, nil
	}

	if failure := c.inBackoff(now); failure != nil {
		c.release()
		c.logger.Debug().Str("attempt_id", failure.AttemptID.String()).Msg("Revalidation skipped, last attempt failed too recently.")
		if snap.mustRevalidate {
			return ReadHandle[T]{}, failure
		}
		return ReadHandle[T]{snap: snap}, nil
	}

	done := c.startAttempt(ctx)
	if !snap.mustRevalidate {
		return ReadHandle[T]{snap: snap}, nil
	}
	return c.wait(ctx, done)
}

// Refresh performs a refresh attempt regardless of the freshness of the
// current snapshot. It waits for any refresh already in flight first, and it
// returns the remembered failure without calling the source while inside the
// backoff window.
func (c *Coordinator[T]) Refresh(ctx context.Context) (ReadHandle[T], error) {
	if err := c.acquire(ctx); err != nil {
		return ReadHandle[T]{}, err
	}
	if failure := c.inBackoff(c.clock.Now()); failure != nil {
		c.release()
		return ReadHandle[T]{}, failure
	}
	return c.wait(ctx, c.startAttempt(ctx))
}

// awaitInFlight blocks until the current gate holder has finished and
// returns what the last refresh left behind. The holder is not necessarily a
// refresh: other readers hold the gate briefly to inspect state.
func (c *Coordinator[T]) awaitInFlight(ctx context.Context) (ReadHandle[T], error) {
	if err := c.acquire(ctx); err != nil {
		return ReadHandle[T]{}, err
	}
	failure := c.lastFailure
	fault := c.lastFault
	latest := c.current.Load()
	c.release()

	switch {
	case fault != nil:
		return ReadHandle[T]{}, ErrRefreshAborted
	case failure != nil:
		return ReadHandle[T]{}, failure
	default:
		return ReadHandle[T]{snap: latest}, nil
	}
}

// inBackoff returns the last failure if now is still inside its retry
// window. Must be called by the gate holder.
func (c *Coordinator[T]) inBackoff(now time.Time) *SourceError {
	failure := c.lastFailure
	if failure != nil && now.Before(failure.OccurredAt.Add(c.retryInterval)) {
		return failure
	}
	return nil
}

// startAttempt runs one refresh attempt on its own goroutine. The caller must
// hold the gate; ownership passes to the goroutine, which releases it once the
// outcome has been published.
func (c *Coordinator[T]) startAttempt(ctx context.Context) <-chan outcome[T] {
	done := make(chan outcome[T], 1)
	attemptCtx := context.WithoutCancel(ctx)
	go func() {
		defer c.release()
		done <- c.attempt(attemptCtx, uuid.New())
	}()
	return done
}

func (c *Coordinator[T]) attempt(ctx context.Context, id uuid.UUID) (out outcome[T]) {
	logger := c.logger.With().Str("attempt_id", id.String()).Logger()
	c.lastFault = nil
	defer func() {
		if r := recover(); r != nil {
			fault := &RefreshPanic{Name: c.name, Value: r, Stack: debug.Stack()}
			logger.Error().Interface("panic", r).Msg("Data provider panicked during revalidation.")
			logger.Debug().Bytes("stack", fault.Stack).Msg("Data provider panic stack.")
			c.lastFault = fault
			out = outcome[T]{fault: fault}
		}
	}()

	logger.Debug().Msg("Revalidation started.")
	snap, serr := c.fetch(ctx, id)
	if serr != nil {
		c.lastFailure = serr
		logger.Error().Err(serr.Err).Msg("Failed to load data.")
		return outcome[T]{err: serr}
	}

	c.current.Store(snap)
	c.lastFailure = nil
	logger.Debug().Time("expires_at", snap.expiresAt).Bool("must_revalidate", snap.mustRevalidate).Msg("Revalidation succeeded.")
	return outcome[T]{snap: snap}
}

// fetch calls the source once and converts its answer into a snapshot or a
// timestamped failure.
func (c *Coordinator[T]) fetch(ctx context.Context, id uuid.UUID) (*Snapshot[T], *SourceError) {
	res, err := c.source.Fetch(ctx)
	received := c.clock.Now()
	if err == nil && res == nil {
		err = ErrNilResult
	}
	if err != nil {
		return nil, &SourceError{
			Name:       c.name,
			AttemptID:  id,
			OccurredAt: received,
			Err:        err,
		}
	}
	return newSnapshot(res, received), nil
}

func (c *Coordinator[T]) wait(ctx context.Context, done <-chan outcome[T]) (ReadHandle[T], error) {
	select {
	case out := <-done:
		if out.fault != nil {
			panic(out.fault)
		}
		if out.err != nil {
			return ReadHandle[T]{}, out.err
		}
		return ReadHandle[T]{snap: out.snap}, nil
	case <-ctx.Done():
		return ReadHandle[T]{}, ctx.Err()
	}
}

func (c *Coordinator[T]) tryAcquire() bool {
	select {
	case c.gate <- struct{}{}:
		return true
	default:
		return false
	}
}

func (c *Coordinator[T]) acquire(ctx context.Context) error {
	select {
	case c.gate <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator[T]) release() {
	<-c.gate
}
