package source

import (
	"errors"
	"fmt"
)

// ErrNotFound is wrapped by sources when the configured key, document or
// object does not exist.
var ErrNotFound = errors.New("remote data not found")

// HeaderNotFoundError means a header required to build a FetchResult is
// missing from the response.
type HeaderNotFoundError struct {
	Header string
}

func (e *HeaderNotFoundError) Error() string {
	return fmt.Sprintf("header '%s' is not present in response, but is required to correctly extract data", e.Header)
}

// HeaderParseError means a required header is present but malformed.
type HeaderParseError struct {
	Header string
	Value  string
	Err    error
}

func (e *HeaderParseError) Error() string {
	return fmt.Sprintf("header %s: %q could not be parsed: %v", e.Header, e.Value, e.Err)
}

func (e *HeaderParseError) Unwrap() error { return e.Err }

// UnsupportedContentTypeError means no decoder is registered for the
// response's media type.
type UnsupportedContentTypeError struct {
	ContentType string
}

func (e *UnsupportedContentTypeError) Error() string {
	return fmt.Sprintf("unsupported content type: %s", e.ContentType)
}

// ContentParseError means the body could not be read or decoded.
type ContentParseError struct {
	ContentType string
	Err         error
}

func (e *ContentParseError) Error() string {
	return fmt.Sprintf("failed to parse response body with Content-Type: %s: %v", e.ContentType, e.Err)
}

func (e *ContentParseError) Unwrap() error { return e.Err }

// StatusError is returned for non-2xx HTTP responses.
type StatusError struct {
	StatusCode int
	Status     string
	// Body holds at most the first few kilobytes of the response body.
	Body []byte
}

func (e *StatusError) Error() string {
	if len(e.Body) == 0 {
		return fmt.Sprintf("unexpected response status: %s", e.Status)
	}
	return fmt.Sprintf("unexpected response status: %s: %s", e.Status, e.Body)
}
