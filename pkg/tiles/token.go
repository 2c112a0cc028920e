package tiles

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/pathmap/pkg/httputil"
)

// TokenSource supplies the access token some tile servers require.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a token that never changes.
type StaticToken string

// Token returns the token itself.
func (s StaticToken) Token(context.Context) (string, error) { return string(s), nil }

// DefaultTokenTTL is how long a fetched token is reused.
const DefaultTokenTTL = 60 * time.Second

// TokenOptions configures a [RenewingToken].
type TokenOptions struct {
	// TTL defaults to DefaultTokenTTL.
	TTL time.Duration
	// Pattern extracts the token from the response body; its first capture
	// group wins. Without a pattern the body is used as-is, or its "token"
	// field when it is a JSON object.
	Pattern string
	Client  *http.Client
	Logger  *log.Logger
}

// RenewingToken fetches a token from an endpoint and refetches it once it is
// older than its TTL. Concurrent callers share a single fetch.
type RenewingToken struct {
	endpoint string
	ttl      time.Duration
	pattern  *regexp.Regexp
	http     *http.Client
	logger   *log.Logger
	now      func() time.Time

	mu      sync.Mutex
	value   string
	fetched time.Time
}

// NewRenewingToken creates a token source backed by endpoint.
func NewRenewingToken(endpoint string, opts TokenOptions) (*RenewingToken, error) {
	var re *regexp.Regexp
	if opts.Pattern != "" {
		var err error
		if re, err = regexp.Compile(opts.Pattern); err != nil {
			return nil, fmt.Errorf("token pattern: %w", err)
		}
		if re.NumSubexp() < 1 {
			return nil, fmt.Errorf("token pattern %q has no capture group", opts.Pattern)
		}
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTokenTTL
	}
	if opts.Client == nil {
		opts.Client = httputil.NewClient(0, "")
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	return &RenewingToken{
		endpoint: endpoint,
		ttl:      opts.TTL,
		pattern:  re,
		http:     opts.Client,
		logger:   opts.Logger,
		now:      time.Now,
	}, nil
}

// Token returns the current token, renewing it when it has expired.
func (t *RenewingToken) Token(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.value != "" && t.now().Sub(t.fetched) < t.ttl {
		return t.value, nil
	}
	var value string
	err := httputil.RetryWithBackoff(ctx, func() error {
		var err error
		value, err = t.fetch(ctx)
		return err
	})
	if err != nil {
		return "", err
	}
	t.value, t.fetched = value, t.now()
	t.logger.Debug("tile token renewed", "ttl", t.ttl)
	return value, nil
}

// Invalidate forces the next call to Token to fetch a new token.
func (t *RenewingToken) Invalidate() {
	t.mu.Lock()
	t.value = ""
	t.mu.Unlock()
}

func (t *RenewingToken) fetch(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.endpoint, nil)
	if err != nil {
		return "", err
	}
	resp, err := t.http.Do(req)
	if err != nil {
		return "", httputil.Retryable(fmt.Errorf("%w: %v", ErrNetwork, err))
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode >= 500:
		return "", httputil.Retryable(fmt.Errorf("%w: status %d", ErrNetwork, resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("%w: status %d", ErrNetwork, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", httputil.Retryable(fmt.Errorf("%w: %v", ErrNetwork, err))
	}
	return t.extract(body)
}

func (t *RenewingToken) extract(body []byte) (string, error) {
	if t.pattern != nil {
		m := t.pattern.FindSubmatch(body)
		if m == nil {
			return "", fmt.Errorf("token pattern %q did not match", t.pattern)
		}
		return string(m[1]), nil
	}
	var obj struct {
		Token string `json:"token"`
	}
	if json.Unmarshal(body, &obj) == nil && obj.Token != "" {
		return obj.Token, nil
	}
	tok := strings.TrimSpace(string(body))
	if tok == "" {
		return "", fmt.Errorf("empty token response")
	}
	return tok, nil
}

var _ TokenSource = (*RenewingToken)(nil)
