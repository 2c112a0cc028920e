package tiles

import (
	"bytes"
	"context"
	"image"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/pathmap/pkg/cache"
)

// CachedFetcher serves tiles from a cache and falls back to an inner
// fetcher on a miss. Cache failures are logged and otherwise ignored.
type CachedFetcher struct {
	inner  Fetcher
	cache  cache.Cache
	keyer  cache.Keyer
	source string
	ttl    time.Duration
	logger *log.Logger
}

// NewCachedFetcher wraps inner. source identifies the tile set in cache
// keys, typically its URL template.
func NewCachedFetcher(inner Fetcher, c cache.Cache, keyer cache.Keyer, source string, ttl time.Duration) *CachedFetcher {
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	return &CachedFetcher{
		inner:  inner,
		cache:  c,
		keyer:  keyer,
		source: source,
		ttl:    ttl,
		logger: log.New(io.Discard),
	}
}

// WithLogger sets the logger used for cache warnings.
func (f *CachedFetcher) WithLogger(l *log.Logger) *CachedFetcher {
	if l != nil {
		f.logger = l
	}
	return f
}

// FetchTile implements [Fetcher]. Only bytes that parse as an image are
// written back.
func (f *CachedFetcher) FetchTile(ctx context.Context, t Tile) ([]byte, error) {
	key := f.keyer.TileKey(f.source, t.Z, t.X, t.Y)
	data, ok, err := f.cache.Get(ctx, key)
	if err != nil {
		f.logger.Warn("tile cache read failed", "tile", t, "err", err)
	}
	if ok {
		return data, nil
	}

	data, err = f.inner.FetchTile(ctx, t)
	if err != nil {
		return nil, err
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return data, nil
	}
	if err := f.cache.Set(ctx, key, data, f.ttl); err != nil {
		f.logger.Warn("tile cache write failed", "tile", t, "err", err)
	}
	return data, nil
}

var _ Fetcher = (*CachedFetcher)(nil)

// CachedToken shares a token through a cache so that processes behind the
// same cache, such as several servers on one redis, renew it only once per
// TTL.
type CachedToken struct {
	inner  TokenSource
	cache  cache.Cache
	key    string
	ttl    time.Duration
	logger *log.Logger
}

// NewCachedToken wraps inner. A zero ttl means [cache.TTLToken].
func NewCachedToken(inner TokenSource, c cache.Cache, keyer cache.Keyer, source string, ttl time.Duration) *CachedToken {
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if ttl <= 0 {
		ttl = cache.TTLToken
	}
	return &CachedToken{
		inner:  inner,
		cache:  c,
		key:    keyer.TokenKey(source),
		ttl:    ttl,
		logger: log.New(io.Discard),
	}
}

// WithLogger sets the logger used for cache warnings.
func (t *CachedToken) WithLogger(l *log.Logger) *CachedToken {
	if l != nil {
		t.logger = l
	}
	return t
}

// Token implements [TokenSource].
func (t *CachedToken) Token(ctx context.Context) (string, error) {
	data, ok, err := t.cache.Get(ctx, t.key)
	if err != nil {
		t.logger.Warn("token cache read failed", "err", err)
	}
	if ok && len(data) > 0 {
		return string(data), nil
	}
	tok, err := t.inner.Token(ctx)
	if err != nil {
		return "", err
	}
	if err := t.cache.Set(ctx, t.key, []byte(tok), t.ttl); err != nil {
		t.logger.Warn("token cache write failed", "err", err)
	}
	return tok, nil
}

// Invalidate drops the shared token and, when the inner source supports it,
// the inner one too.
func (t *CachedToken) Invalidate() {
	if err := t.cache.Delete(context.Background(), t.key); err != nil {
		t.logger.Warn("token cache delete failed", "err", err)
	}
	if inv, ok := t.inner.(interface{ Invalidate() }); ok {
		inv.Invalidate()
	}
}

var _ TokenSource = (*CachedToken)(nil)
