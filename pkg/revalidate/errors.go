package revalidate

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNilResult is recorded when a Source returns neither a result nor an error.
	ErrNilResult = errors.New("data provider returned no result")

	// ErrRefreshAborted is returned to readers queued behind a refresh whose
	// source panicked.
	ErrRefreshAborted = errors.New("revalidation aborted before completion")
)

// SourceError wraps an error reported by a Source together with the time the
// refresh attempt failed. A single *SourceError is created per failed attempt
// and every reader observing that failure receives the same pointer.
type SourceError struct {
	// Name is the name of the coordinator that recorded the failure.
	Name string
	// AttemptID identifies the refresh attempt in logs.
	AttemptID uuid.UUID
	// OccurredAt is when the attempt failed. Backoff is measured from here.
	OccurredAt time.Time
	// Err is the error returned by the source.
	Err error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("remote config %q: data provider error: %v", e.Name, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// RefreshPanic is the value re-panicked in a reader that waited on a refresh
// whose source panicked. It is never cached and never retried.
type RefreshPanic struct {
	Name  string
	Value any
	// Stack is the source goroutine's stack. It is not part of Error.
	Stack []byte
}

func (p *RefreshPanic) Error() string {
	return fmt.Sprintf("remote config %q: data provider panicked: %v", p.Name, p.Value)
}

// Unwrap returns the panic value when it was itself an error.
func (p *RefreshPanic) Unwrap() error {
	if err, ok := p.Value.(error); ok {
		return err
	}
	return nil
}
