package pipeline

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/pathmap/pkg/buildinfo"
	"github.com/matzehuels/pathmap/pkg/cache"
	"github.com/matzehuels/pathmap/pkg/httputil"
	"github.com/matzehuels/pathmap/pkg/tiles"
)

// SourceOptions describes how to reach a tile provider.
type SourceOptions struct {
	Provider tiles.Provider

	// Token is a fixed value for the {token} placeholder. TokenEndpoint,
	// when set, takes precedence and is polled every TokenTTL.
	Token         string
	TokenEndpoint string
	TokenTTL      time.Duration
	TokenPattern  string

	UserAgent string
	Timeout   time.Duration
	Workers   int

	// Cache stores raw tiles and shared tokens; nil disables caching.
	Cache    cache.Cache
	Keyer    cache.Keyer
	CacheTTL time.Duration

	Logger *log.Logger
}

// NewSource assembles the tile source for a provider: an HTTP fetcher,
// optionally behind a cache, stitched by a [tiles.Mosaic].
func NewSource(opts SourceOptions) (*tiles.Mosaic, error) {
	p := opts.Provider
	if p.URL == "" {
		return nil, fmt.Errorf("provider %q has no tile URL", p.Name)
	}
	if opts.UserAgent == "" {
		opts.UserAgent = buildinfo.UserAgent()
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = cache.TTLTile
	}
	client := httputil.NewClient(opts.Timeout, opts.UserAgent)

	var token tiles.TokenSource
	switch {
	case opts.TokenEndpoint != "":
		rt, err := tiles.NewRenewingToken(opts.TokenEndpoint, tiles.TokenOptions{
			TTL:     opts.TokenTTL,
			Pattern: opts.TokenPattern,
			Client:  client,
			Logger:  opts.Logger,
		})
		if err != nil {
			return nil, err
		}
		token = rt
		if opts.Cache != nil {
			token = tiles.NewCachedToken(rt, cache.Instrumented(opts.Cache, "token"), opts.Keyer, opts.TokenEndpoint, opts.TokenTTL).
				WithLogger(opts.Logger)
		}
	case opts.Token != "":
		token = tiles.StaticToken(opts.Token)
	}

	var fetcher tiles.Fetcher
	fetcher, err := tiles.NewHTTPFetcher(p.URL, tiles.HTTPOptions{Client: client, Token: token})
	if err != nil {
		return nil, err
	}
	if opts.Cache != nil {
		fetcher = tiles.NewCachedFetcher(fetcher, cache.Instrumented(opts.Cache, "tile"), opts.Keyer, p.URL, opts.CacheTTL).
			WithLogger(opts.Logger)
	}

	return tiles.NewMosaic(fetcher, tiles.MosaicOptions{
		Zoom:     p.Zoom,
		TileSize: p.TileSize,
		Workers:  opts.Workers,
		Logger:   opts.Logger,
	}), nil
}
