package tiles

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	pmerrors "github.com/matzehuels/pathmap/pkg/errors"
	"github.com/matzehuels/pathmap/pkg/httputil"
	"github.com/matzehuels/pathmap/pkg/observability"
)

// maxTileBytes caps a single tile response.
const maxTileBytes = 8 << 20

// HTTPOptions configures an [HTTPFetcher].
type HTTPOptions struct {
	// Client defaults to httputil.NewClient(0, "").
	Client *http.Client
	// Token fills the {token} placeholder. Nil leaves it empty.
	Token TokenSource
	// Headers are sent with every request.
	Headers map[string]string
	// Attempts and Delay tune retries of transient failures; zero values
	// mean 3 attempts starting at one second.
	Attempts int
	Delay    time.Duration
}

// HTTPFetcher downloads tiles from a URL template with {z}, {x}, {y} and
// optionally {token} placeholders.
type HTTPFetcher struct {
	http     *http.Client
	template string
	token    TokenSource
	headers  map[string]string
	attempts int
	delay    time.Duration
}

// NewHTTPFetcher validates the template and builds a fetcher.
func NewHTTPFetcher(template string, opts HTTPOptions) (*HTTPFetcher, error) {
	if err := pmerrors.ValidateTileURLTemplate(template); err != nil {
		return nil, err
	}
	if opts.Client == nil {
		opts.Client = httputil.NewClient(0, "")
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 3
	}
	if opts.Delay <= 0 {
		opts.Delay = time.Second
	}
	return &HTTPFetcher{
		http:     opts.Client,
		template: template,
		token:    opts.Token,
		headers:  opts.Headers,
		attempts: opts.Attempts,
		delay:    opts.Delay,
	}, nil
}

// FetchTile implements [Fetcher]. Transport failures, 5xx and 429 responses
// are retried; a 401 or 403 drops a renewable token before the retry.
func (f *HTTPFetcher) FetchTile(ctx context.Context, t Tile) ([]byte, error) {
	var data []byte
	err := httputil.Retry(ctx, f.attempts, f.delay, func() error {
		var err error
		data, err = f.fetchOnce(ctx, t)
		return err
	})
	return data, err
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, t Tile) ([]byte, error) {
	u, err := f.url(ctx, t)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range f.headers {
		req.Header.Set(k, v)
	}

	hooks := observability.HTTP()
	host, path := req.URL.Host, req.URL.Path
	hooks.OnRequest(ctx, req.Method, host, path)
	start := time.Now()

	resp, err := f.http.Do(req)
	if err != nil {
		hooks.OnError(ctx, req.Method, host, path, err)
		return nil, httputil.Retryable(fmt.Errorf("%w: %v", ErrNetwork, err))
	}
	defer resp.Body.Close()
	hooks.OnResponse(ctx, req.Method, host, path, resp.StatusCode, time.Since(start))

	if err := f.checkStatus(resp); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxTileBytes))
	if err != nil {
		return nil, httputil.Retryable(fmt.Errorf("%w: %v", ErrNetwork, err))
	}
	return data, nil
}

func (f *HTTPFetcher) url(ctx context.Context, t Tile) (string, error) {
	var token string
	if f.token != nil && strings.Contains(f.template, "{token}") {
		var err error
		if token, err = f.token.Token(ctx); err != nil {
			return "", fmt.Errorf("token: %w", err)
		}
	}
	r := strings.NewReplacer(
		"{z}", strconv.Itoa(t.Z),
		"{x}", strconv.Itoa(t.X),
		"{y}", strconv.Itoa(t.Y),
		"{token}", url.QueryEscape(token),
	)
	return r.Replace(f.template), nil
}

func (f *HTTPFetcher) checkStatus(resp *http.Response) error {
	code := resp.StatusCode
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		if inv, ok := f.token.(interface{ Invalidate() }); ok {
			inv.Invalidate()
			return httputil.Retryable(fmt.Errorf("%w: status %d", ErrNetwork, code))
		}
		return fmt.Errorf("%w: status %d", ErrNetwork, code)
	case code == http.StatusTooManyRequests:
		retryAfter, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
		return httputil.Retryable(&pmerrors.RateLimitedError{RetryAfter: retryAfter})
	case code >= 500:
		return httputil.Retryable(fmt.Errorf("%w: status %d", ErrNetwork, code))
	default:
		return fmt.Errorf("%w: status %d", ErrNetwork, code)
	}
}

var _ Fetcher = (*HTTPFetcher)(nil)
