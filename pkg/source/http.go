package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/illmade-knight/go-remoteconfig/pkg/revalidate"
	"github.com/rs/zerolog"
)

const maxErrorBody = 4 << 10

// HTTPConfig holds configuration for an HTTPSource.
type HTTPConfig struct {
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
	// Timeout bounds a single request, including retries. Zero means no timeout.
	Timeout time.Duration `yaml:"timeout"`
	// MaxRetries enables transport-level retries of a single fetch on
	// connection errors and 5xx responses.
	MaxRetries int           `yaml:"max_retries"`
	RetryWait  time.Duration `yaml:"retry_wait"`
}

// Extractor builds a FetchResult from a successful HTTP response.
type Extractor[T any] interface {
	Extract(resp *http.Response) (*revalidate.FetchResult[T], error)
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc[T any] func(resp *http.Response) (*revalidate.FetchResult[T], error)

// Extract calls f(resp).
func (f ExtractorFunc[T]) Extract(resp *http.Response) (*revalidate.FetchResult[T], error) {
	return f(resp)
}

// HeaderExtractor reads freshness from the Cache-Control header (falling back
// to Expires when there is no max-age) and decodes the body according to
// Content-Type. Both headers are required.
type HeaderExtractor[T any] struct{}

// Extract implements Extractor.
func (HeaderExtractor[T]) Extract(resp *http.Response) (*revalidate.FetchResult[T], error) {
	ccValue := resp.Header.Get(headerCacheControl)
	if ccValue == "" {
		return nil, &HeaderNotFoundError{Header: headerCacheControl}
	}
	cc, err := ParseCacheControl(ccValue)
	if err != nil {
		return nil, err
	}

	contentType := resp.Header.Get(headerContentType)
	if contentType == "" {
		return nil, &HeaderNotFoundError{Header: headerContentType}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ContentParseError{ContentType: contentType, Err: err}
	}
	data, err := Decode[T](contentType, body)
	if err != nil {
		return nil, err
	}

	return &revalidate.FetchResult[T]{
		Data:           data,
		MustRevalidate: cc.Revalidate(),
		Freshness:      freshnessFromHeaders(cc, resp.Header),
	}, nil
}

// HTTPSource loads data with a GET request and hands the response to an
// Extractor.
type HTTPSource[T any] struct {
	url       *url.URL
	client    *http.Client
	header    http.Header
	extractor Extractor[T]
	logger    zerolog.Logger
}

// NewHTTPSource creates an HTTPSource. A nil client is replaced by one built
// from cfg; a nil extractor by HeaderExtractor.
func NewHTTPSource[T any](
	cfg *HTTPConfig,
	client *http.Client,
	extractor Extractor[T],
	logger zerolog.Logger,
) (*HTTPSource[T], error) {
	if cfg == nil {
		return nil, errors.New("http config cannot be nil")
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", cfg.URL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("url must have http or https scheme: %s", cfg.URL)
	}

	logger = logger.With().Str("component", "HTTPSource").Str("url", u.Redacted()).Logger()
	if client == nil {
		client = newHTTPClient(cfg, logger)
	}
	if extractor == nil {
		extractor = HeaderExtractor[T]{}
	}

	header := make(http.Header, len(cfg.Headers))
	for k, v := range cfg.Headers {
		header.Set(k, v)
	}

	return &HTTPSource[T]{
		url:       u,
		client:    client,
		header:    header,
		extractor: extractor,
		logger:    logger,
	}, nil
}

// newHTTPClient returns a plain client, or a retrying one when retries are
// configured.
func newHTTPClient(cfg *HTTPConfig, logger zerolog.Logger) *http.Client {
	if cfg.MaxRetries <= 0 {
		return &http.Client{Timeout: cfg.Timeout}
	}
	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.MaxRetries
	if cfg.RetryWait > 0 {
		rc.RetryWaitMin = cfg.RetryWait
		rc.RetryWaitMax = cfg.RetryWait
	}
	rc.Logger = leveledLogger{logger: logger}
	// Hand the last response back so exhausted retries still surface as a StatusError.
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	client := rc.StandardClient()
	client.Timeout = cfg.Timeout
	return client
}

// Fetch implements revalidate.Source.
func (s *HTTPSource[T]) Fetch(ctx context.Context) (*revalidate.FetchResult[T], error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url.String(), nil)
	if err != nil {
		return nil, err
	}
	for key, vals := range s.header {
		for _, val := range vals {
			req.Header.Add(key, val)
		}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status, Body: body}
	}

	res, err := s.extractor.Extract(resp)
	if err != nil {
		return nil, err
	}
	s.logger.Debug().Int("status", resp.StatusCode).Msg("Fetched remote data.")
	return res, nil
}

func (s *HTTPSource[T]) String() string {
	return s.url.Redacted()
}

// leveledLogger routes retryablehttp's logging to zerolog.
type leveledLogger struct {
	logger zerolog.Logger
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error().Fields(keysAndValues).Msg(msg)
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Info().Fields(keysAndValues).Msg(msg)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn().Fields(keysAndValues).Msg(msg)
}
