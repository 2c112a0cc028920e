// Package config loads pathmap settings.
//
// Values are layered, later sources winning: built-in defaults, the TOML
// config file, PATHMAP_* environment variables and finally command-line
// flags bound through [LoadOptions.Flags]. Environment keys replace dots
// with underscores: PATHMAP_TILES_PROVIDER sets tiles.provider.
//
// The file is searched as config.toml in $XDG_CONFIG_HOME/pathmap or
// ~/.config/pathmap unless a path is given.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	pmerrors "github.com/matzehuels/pathmap/pkg/errors"
)

const (
	appName   = "pathmap"
	envPrefix = "PATHMAP"
	fileName  = "config.toml"
)

// Cache backends.
const (
	BackendFile  = "file"
	BackendRedis = "redis"
	BackendNone  = "none"
)

// Config holds all application configuration.
type Config struct {
	Render RenderConfig `mapstructure:"render" toml:"render"`
	Tiles  TilesConfig  `mapstructure:"tiles" toml:"tiles"`
	Cache  CacheConfig  `mapstructure:"cache" toml:"cache"`
	Server ServerConfig `mapstructure:"server" toml:"server"`

	// File is the config file that was read, empty when none was found.
	File string `mapstructure:"-" toml:"-"`
}

// RenderConfig shapes the plates and the document.
type RenderConfig struct {
	RadiusPix    int     `mapstructure:"radius_pix" toml:"radius_pix"`
	MaxWidthPix  int     `mapstructure:"max_width_pix" toml:"max_width_pix"`
	MaxHeightPix int     `mapstructure:"max_height_pix" toml:"max_height_pix"`
	MaxDistPix   int     `mapstructure:"max_dist_pix" toml:"max_dist_pix"`
	PathColor    string  `mapstructure:"path_color" toml:"path_color"`
	Rotate       bool    `mapstructure:"rotate" toml:"rotate"`
	DPI          float64 `mapstructure:"dpi" toml:"dpi"`
}

// TilesConfig selects the tile provider. URL, Zoom, TileSize and
// Calibration override the built-in provider's values when set.
type TilesConfig struct {
	Provider string `mapstructure:"provider" toml:"provider"`
	URL      string `mapstructure:"url" toml:"url,omitempty"`
	Zoom     int    `mapstructure:"zoom" toml:"zoom,omitempty"`
	TileSize int    `mapstructure:"tile_size" toml:"tile_size,omitempty"`
	// Calibration holds the affine coefficients bx0, bx1, by0, by1.
	Calibration []float64 `mapstructure:"calibration" toml:"calibration,omitempty"`
	Workers     int       `mapstructure:"workers" toml:"workers"`
	UserAgent   string    `mapstructure:"user_agent" toml:"user_agent,omitempty"`
	Timeout     string    `mapstructure:"timeout" toml:"timeout"`

	Token         string `mapstructure:"token" toml:"token,omitempty"`
	TokenEndpoint string `mapstructure:"token_endpoint" toml:"token_endpoint,omitempty"`
	TokenTTL      string `mapstructure:"token_ttl" toml:"token_ttl"`
	TokenPattern  string `mapstructure:"token_pattern" toml:"token_pattern,omitempty"`
}

// CacheConfig selects where fetched tiles are kept.
type CacheConfig struct {
	Backend  string `mapstructure:"backend" toml:"backend"`
	Dir      string `mapstructure:"dir" toml:"dir,omitempty"`
	RedisURL string `mapstructure:"redis_url" toml:"redis_url"`
	TTL      string `mapstructure:"ttl" toml:"ttl"`
}

// ServerConfig configures "pathmap serve".
type ServerConfig struct {
	Addr        string `mapstructure:"addr" toml:"addr"`
	MaxUploadMB int    `mapstructure:"max_upload_mb" toml:"max_upload_mb"`
	Timeout     string `mapstructure:"timeout" toml:"timeout"`
}

// defaults is the single table both [Default] and [Load] read from. Every
// key is listed, even when empty, so environment variables reach it.
var defaults = map[string]any{
	"render.radius_pix":     130,
	"render.max_width_pix":  1000,
	"render.max_height_pix": 800,
	"render.max_dist_pix":   500,
	"render.path_color":     "#ff6400",
	"render.rotate":         true,
	"render.dpi":            144.0,

	"tiles.provider":       "mapy-turist",
	"tiles.url":            "",
	"tiles.zoom":           0,
	"tiles.tile_size":      0,
	"tiles.calibration":    []float64{},
	"tiles.workers":        10,
	"tiles.user_agent":     "",
	"tiles.timeout":        "30s",
	"tiles.token":          "",
	"tiles.token_endpoint": "",
	"tiles.token_ttl":      "60s",
	"tiles.token_pattern":  "",

	"cache.backend":   BackendFile,
	"cache.dir":       "",
	"cache.redis_url": "redis://localhost:6379/0",
	"cache.ttl":       "30d",

	"server.addr":          ":8080",
	"server.max_upload_mb": 16,
	"server.timeout":       "5m",
}

// LoadOptions controls where [Load] looks.
type LoadOptions struct {
	// Path names the config file. Empty searches the user config
	// directory, where a missing file is fine.
	Path string
	// Flags maps config keys such as "render.radius_pix" to the flags
	// that override them. Only flags the user set take effect.
	Flags map[string]*pflag.Flag
}

// Default returns the built-in configuration, ignoring files and
// environment.
func Default() *Config {
	var cfg Config
	if err := newViper().Unmarshal(&cfg); err != nil {
		// The defaults table is static; failing to decode it is a bug.
		panic(err)
	}
	return &cfg
}

// Load reads configuration from all sources and validates it.
func Load(opts LoadOptions) (*Config, error) {
	v := newViper()

	v.SetConfigType("toml")
	switch opts.Path {
	case "":
		v.SetConfigName(strings.TrimSuffix(fileName, ".toml"))
		if dir, err := Dir(); err == nil {
			v.AddConfigPath(dir)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, pmerrors.Wrap(pmerrors.ErrCodeInvalidConfig, err, "read config")
			}
		}
	default:
		v.SetConfigFile(opts.Path)
		if err := v.ReadInConfig(); err != nil {
			return nil, pmerrors.Wrap(pmerrors.ErrCodeInvalidConfig, err, "read config %s", opts.Path)
		}
	}

	// Environment variables: PATHMAP_RENDER_RADIUS_PIX → render.radius_pix
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, f := range opts.Flags {
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return nil, pmerrors.Wrap(pmerrors.ErrCodeInternal, err, "bind flag %s", f.Name)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, pmerrors.Wrap(pmerrors.ErrCodeInvalidConfig, err, "decode config")
	}
	cfg.File = v.ConfigFileUsed()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// newViper returns a viper instance holding only the defaults.
func newViper() *viper.Viper {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	return v
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []string

	r := c.Render
	if r.RadiusPix <= 0 {
		errs = append(errs, fmt.Sprintf("render.radius_pix must be positive, got %d", r.RadiusPix))
	}
	if r.MaxWidthPix <= 0 || r.MaxHeightPix <= 0 {
		errs = append(errs, fmt.Sprintf("render plate size must be positive, got %dx%d", r.MaxWidthPix, r.MaxHeightPix))
	}
	if r.MaxDistPix <= 0 {
		errs = append(errs, fmt.Sprintf("render.max_dist_pix must be positive, got %d", r.MaxDistPix))
	}
	if r.DPI <= 0 {
		errs = append(errs, fmt.Sprintf("render.dpi must be positive, got %v", r.DPI))
	}

	t := c.Tiles
	if t.Provider == "" && t.URL == "" {
		errs = append(errs, "tiles.provider or tiles.url is required")
	}
	if t.URL != "" {
		if err := pmerrors.ValidateTileURLTemplate(t.URL); err != nil {
			errs = append(errs, "tiles.url: "+pmerrors.UserMessage(err))
		}
	}
	if n := len(t.Calibration); n != 0 && n != 4 {
		errs = append(errs, fmt.Sprintf("tiles.calibration needs 4 coefficients, got %d", n))
	}
	if t.Workers <= 0 {
		errs = append(errs, fmt.Sprintf("tiles.workers must be positive, got %d", t.Workers))
	}
	if t.TokenEndpoint != "" {
		if err := pmerrors.ValidateURL(t.TokenEndpoint); err != nil {
			errs = append(errs, "tiles.token_endpoint: "+pmerrors.UserMessage(err))
		}
	}

	switch c.Cache.Backend {
	case BackendFile, BackendNone:
	case BackendRedis:
		if c.Cache.RedisURL == "" {
			errs = append(errs, "cache.redis_url is required for the redis backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("cache.backend must be file, redis or none, got %q", c.Cache.Backend))
	}

	if c.Server.MaxUploadMB <= 0 {
		errs = append(errs, fmt.Sprintf("server.max_upload_mb must be positive, got %d", c.Server.MaxUploadMB))
	}

	for key, val := range map[string]string{
		"tiles.timeout":   t.Timeout,
		"tiles.token_ttl": t.TokenTTL,
		"cache.ttl":       c.Cache.TTL,
		"server.timeout":  c.Server.Timeout,
	} {
		if _, err := parseDuration(val); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}

	if len(errs) > 0 {
		return pmerrors.New(pmerrors.ErrCodeInvalidConfig, "config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// parseDuration accepts Go durations and a plain number of days ("30d").
func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	if days, ok := strings.CutSuffix(s, "d"); ok {
		if n, err := strconv.Atoi(days); err == nil && n >= 0 {
			return time.Duration(n) * 24 * time.Hour, nil
		}
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", s)
	}
	return d, nil
}

// duration returns an already validated duration.
func duration(s string) time.Duration {
	d, _ := parseDuration(s)
	return d
}

// =============================================================================
// Paths
// =============================================================================

// Dir returns the config directory using XDG standard (~/.config/pathmap/).
func Dir() (string, error) {
	if home := os.Getenv("XDG_CONFIG_HOME"); home != "" {
		return filepath.Join(home, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", appName), nil
}

// DefaultPath returns where "pathmap config init" writes.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, fileName), nil
}

// CacheDir returns the tile cache directory: cache.dir when set, otherwise
// the XDG cache location (~/.cache/pathmap/).
func (c *Config) CacheDir() (string, error) {
	if c.Cache.Dir != "" {
		return c.Cache.Dir, nil
	}
	if home := os.Getenv("XDG_CACHE_HOME"); home != "" {
		return filepath.Join(home, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}
