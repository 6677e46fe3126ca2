// Package fetch downloads the published CIDR list.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	cberrors "github.com/ripeart/CountryBlock/errors"
)

const (
	// DefaultMaxBodyBytes bounds the downloaded list.
	DefaultMaxBodyBytes int64 = 32 << 20

	// DefaultTimeout applies when the context carries no deadline.
	DefaultTimeout = 30 * time.Second

	// DefaultUserAgent identifies the fetcher to the list publisher.
	DefaultUserAgent = "countryblock"
)

// ErrBodyTooLarge is returned when the list exceeds the size bound.
var ErrBodyTooLarge = errors.New("response body exceeds size limit")

// HTTPClient allows injecting mock HTTP clients for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// FetchError reports a failed download. StatusCode is 0 when no response
// was received.
//
//nolint:revive
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ErrorCode implements errors.Coder.
func (e *FetchError) ErrorCode() cberrors.ErrorCode {
	switch {
	case errors.Is(e.Err, context.DeadlineExceeded):
		return cberrors.CodeTimeout
	case e.StatusCode == http.StatusTooManyRequests:
		return cberrors.CodeRateLimit
	case e.StatusCode >= 500:
		return cberrors.CodeUnavailable
	case e.StatusCode == 0 && !errors.Is(e.Err, ErrBodyTooLarge):
		return cberrors.CodeNetwork
	default:
		return cberrors.CodeFetchFailed
	}
}

// Fetcher downloads a URL into memory.
type Fetcher struct {
	client       HTTPClient
	maxBodyBytes int64
	userAgent    string
	logger       *slog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c HTTPClient) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithMaxBodyBytes overrides DefaultMaxBodyBytes.
func WithMaxBodyBytes(n int64) Option {
	return func(f *Fetcher) { f.maxBodyBytes = n }
}

// WithUserAgent overrides DefaultUserAgent.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) { f.userAgent = ua }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Fetcher) { f.logger = l }
}

// New returns a Fetcher.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:       &http.Client{Timeout: DefaultTimeout},
		maxBodyBytes: DefaultMaxBodyBytes,
		userAgent:    DefaultUserAgent,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch GETs url and returns the body. Any non-2xx status, transport
// failure or oversized body is a *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/plain")

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &FetchError{URL: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodyBytes+1))
	if err != nil {
		return nil, &FetchError{URL: url, StatusCode: resp.StatusCode, Err: err}
	}
	if int64(len(body)) > f.maxBodyBytes {
		return nil, &FetchError{URL: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("%w (%d bytes)", ErrBodyTooLarge, f.maxBodyBytes)}
	}

	f.logger.Debug("fetched list",
		slog.String("url", url),
		slog.Int("bytes", len(body)),
		slog.Duration("elapsed", time.Since(start)))
	return body, nil
}
