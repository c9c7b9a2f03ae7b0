package source

import (
	"net/http"
	"time"

	"github.com/illmade-knight/go-remoteconfig/pkg/revalidate"
	"github.com/pquerna/cachecontrol/cacheobject"
)

const (
	headerCacheControl = "Cache-Control"
	headerContentType  = "Content-Type"
	headerExpires      = "Expires"
)

// CacheControl holds the response directives that determine freshness.
type CacheControl struct {
	// MaxAge is only meaningful when HasMaxAge is set.
	MaxAge    time.Duration
	HasMaxAge bool
	// MustRevalidate is set by must-revalidate or proxy-revalidate.
	MustRevalidate bool
	NoCache        bool
	NoStore        bool
}

// ParseCacheControl parses a Cache-Control header value. It is exported so
// custom extractors can share it.
func ParseCacheControl(value string) (CacheControl, error) {
	directives, err := cacheobject.ParseResponseCacheControl(value)
	if err != nil {
		return CacheControl{}, &HeaderParseError{Header: headerCacheControl, Value: value, Err: err}
	}

	cc := CacheControl{
		MustRevalidate: directives.MustRevalidate || directives.ProxyRevalidate,
		NoCache:        directives.NoCachePresent,
		NoStore:        directives.NoStore,
	}
	if directives.MaxAge >= 0 {
		cc.MaxAge = time.Duration(directives.MaxAge) * time.Second
		cc.HasMaxAge = true
	}
	return cc, nil
}

// Revalidate reports whether stale data must not be used. no-cache and
// no-store forbid serving without a successful revalidation as well.
func (cc CacheControl) Revalidate() bool {
	return cc.MustRevalidate || cc.NoCache || cc.NoStore
}

// Freshness converts the directives to a Freshness. A missing max-age, and
// any no-cache or no-store directive, yields data that is stale on arrival.
func (cc CacheControl) Freshness() revalidate.Freshness {
	if cc.NoCache || cc.NoStore || !cc.HasMaxAge {
		return revalidate.MaxAge(0)
	}
	return revalidate.MaxAge(cc.MaxAge)
}

// freshnessFromHeaders applies Cache-Control and falls back to Expires when
// no max-age was given.
func freshnessFromHeaders(cc CacheControl, header http.Header) revalidate.Freshness {
	if cc.HasMaxAge || cc.NoCache || cc.NoStore {
		return cc.Freshness()
	}
	if expires := header.Get(headerExpires); expires != "" {
		if t, err := http.ParseTime(expires); err == nil {
			return revalidate.Until(t)
		}
	}
	return cc.Freshness()
}
