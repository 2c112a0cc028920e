package config

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"

	"github.com/matzehuels/pathmap/pkg/cache"
	pmerrors "github.com/matzehuels/pathmap/pkg/errors"
	"github.com/matzehuels/pathmap/pkg/geo"
	"github.com/matzehuels/pathmap/pkg/pipeline"
	"github.com/matzehuels/pathmap/pkg/sink"
	"github.com/matzehuels/pathmap/pkg/tiles"
)

// PipelineOptions converts the render section.
func (c *Config) PipelineOptions() pipeline.Options {
	r := c.Render
	return pipeline.Options{
		RadiusPix:    r.RadiusPix,
		MaxWidthPix:  r.MaxWidthPix,
		MaxHeightPix: r.MaxHeightPix,
		MaxDistPix:   r.MaxDistPix,
		PathColor:    r.PathColor,
		SkipRotation: !r.Rotate,
	}
}

// PDFOptions returns the document settings for the chosen provider.
func (c *Config) PDFOptions(p tiles.Provider, title string) sink.PDFOptions {
	return sink.PDFOptions{DPI: c.Render.DPI, Attribution: p.Attribution, Title: title}
}

// Provider resolves the tile provider: the named built-in with any
// overrides from the tiles section applied. A URL without a provider name
// describes a custom XYZ provider.
func (c *Config) Provider() (tiles.Provider, error) {
	t := c.Tiles
	var p tiles.Provider
	if t.Provider != "" {
		var err error
		if p, err = tiles.LookupProvider(t.Provider); err != nil {
			return tiles.Provider{}, pmerrors.Wrap(pmerrors.ErrCodeInvalidConfig, err, "tiles.provider")
		}
	} else {
		p = tiles.Provider{Name: "custom", TileSize: 256}
	}
	if t.URL != "" {
		p.URL = t.URL
	}
	if t.Zoom > 0 {
		p.Zoom = t.Zoom
	}
	if t.TileSize > 0 {
		p.TileSize = t.TileSize
	}
	if len(t.Calibration) == 4 {
		p.Calibration = &geo.Affine{
			BX: [2]float64{t.Calibration[0], t.Calibration[1]},
			BY: [2]float64{t.Calibration[2], t.Calibration[3]},
		}
	}
	return p, nil
}

// SourceOptions describes how to reach the provider's tiles. The cache may
// be nil.
func (c *Config) SourceOptions(p tiles.Provider, store cache.Cache, logger *log.Logger) pipeline.SourceOptions {
	t := c.Tiles
	return pipeline.SourceOptions{
		Provider:      p,
		Token:         t.Token,
		TokenEndpoint: t.TokenEndpoint,
		TokenTTL:      duration(t.TokenTTL),
		TokenPattern:  t.TokenPattern,
		UserAgent:     t.UserAgent,
		Timeout:       duration(t.Timeout),
		Workers:       t.Workers,
		Cache:         store,
		Keyer:         c.Keyer(),
		CacheTTL:      duration(c.Cache.TTL),
		Logger:        logger,
	}
}

// RedisKeyPrefix scopes every key pathmap writes to a shared redis.
const RedisKeyPrefix = "pathmap:"

// Keyer returns the cache keyer for the configured backend. Redis keys are
// prefixed so they can be told apart from other tenants of the database.
func (c *Config) Keyer() cache.Keyer {
	if c.Cache.Backend == BackendRedis {
		return cache.NewScopedKeyer(cache.NewDefaultKeyer(), RedisKeyPrefix)
	}
	return cache.NewDefaultKeyer()
}

// OpenCache opens the configured cache backend. The caller closes it.
func (c *Config) OpenCache(ctx context.Context) (cache.Cache, error) {
	switch c.Cache.Backend {
	case BackendNone:
		return cache.NewNullCache(), nil
	case BackendRedis:
		rc, err := cache.NewRedisCache(ctx, c.Cache.RedisURL)
		if err != nil {
			return nil, pmerrors.Wrap(pmerrors.ErrCodeNetwork, err, "connect to redis")
		}
		return rc, nil
	default:
		dir, err := c.CacheDir()
		if err != nil {
			return nil, fmt.Errorf("cache dir: %w", err)
		}
		fc, err := cache.NewFileCache(dir)
		if err != nil {
			return nil, err
		}
		return fc, nil
	}
}

// ServerTimeout bounds one request to "pathmap serve".
func (c *Config) ServerTimeout() time.Duration { return duration(c.Server.Timeout) }

// =============================================================================
// Writing
// =============================================================================

const header = `# pathmap configuration.
#
# Every value can also be set with an environment variable, for example
# PATHMAP_RENDER_RADIUS_PIX=150 or PATHMAP_CACHE_BACKEND=redis.

`

// Encode writes c as TOML.
func (c *Config) Encode(w io.Writer) error {
	enc := toml.NewEncoder(w)
	enc.Indent = ""
	return enc.Encode(c)
}

// Write stores c at path with a short header, creating parent directories.
// An existing file is only replaced when overwrite is set.
func Write(path string, c *Config, overwrite bool) error {
	if err := pmerrors.ValidateOutputPath(path); err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return pmerrors.New(pmerrors.ErrCodeInvalidPath, "%s already exists", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(f, header); err != nil {
		f.Close()
		return err
	}
	if err := c.Encode(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
