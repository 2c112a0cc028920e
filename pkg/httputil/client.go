package httputil

import (
	"net/http"
	"time"
)

// DefaultTimeout bounds a single tile or token request.
const DefaultTimeout = 30 * time.Second

// NewClient returns an HTTP client that sends userAgent with every request.
// An empty userAgent leaves the Go default in place; a zero timeout means
// [DefaultTimeout].
func NewClient(timeout time.Duration, userAgent string) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	var rt http.RoundTripper = http.DefaultTransport
	if userAgent != "" {
		rt = &userAgentTransport{base: rt, ua: userAgent}
	}
	return &http.Client{Timeout: timeout, Transport: rt}
}

type userAgentTransport struct {
	base http.RoundTripper
	ua   string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.ua)
	return t.base.RoundTrip(req)
}
