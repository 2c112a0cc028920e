package config

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"github.com/matzehuels/pathmap/pkg/cache"
	pmerrors "github.com/matzehuels/pathmap/pkg/errors"
	"github.com/matzehuels/pathmap/pkg/pipeline"
)

// isolate points the XDG directories at a temp dir and clears PATHMAP_*
// variables for the duration of the test.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(dir, "cache"))
	for _, kv := range os.Environ() {
		if k, _, _ := strings.Cut(kv, "="); strings.HasPrefix(k, envPrefix+"_") {
			t.Setenv(k, "")
			os.Unsetenv(k)
		}
	}
	return dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDefaultMatchesPipeline(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() error: %v", err)
	}
	var want pipeline.Options
	want.SetDefaults()
	got := cfg.PipelineOptions()
	if got.RadiusPix != want.RadiusPix || got.MaxWidthPix != want.MaxWidthPix ||
		got.MaxHeightPix != want.MaxHeightPix || got.MaxDistPix != want.MaxDistPix ||
		got.PathColor != want.PathColor || got.SkipRotation {
		t.Errorf("PipelineOptions() = %+v, want pipeline defaults", got)
	}
}

func TestLoadLayers(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, "config", appName, fileName), `
[render]
radius_pix = 100
path_color = "blue"

[tiles]
provider = "osm"
workers = 4
`)
	t.Setenv("PATHMAP_RENDER_RADIUS_PIX", "90")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Int("workers", 10, "")
	fs.String("color", "", "")
	if err := fs.Parse([]string{"--workers=2"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(LoadOptions{Flags: map[string]*pflag.Flag{
		"tiles.workers":     fs.Lookup("workers"),
		"render.path_color": fs.Lookup("color"),
	}})
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.File == "" {
		t.Error("File not recorded")
	}
	if cfg.Render.RadiusPix != 90 {
		t.Errorf("radius = %d, want env value 90", cfg.Render.RadiusPix)
	}
	if cfg.Render.PathColor != "blue" {
		t.Errorf("path colour = %q, want file value (flag unset)", cfg.Render.PathColor)
	}
	if cfg.Tiles.Workers != 2 {
		t.Errorf("workers = %d, want flag value 2", cfg.Tiles.Workers)
	}
	if cfg.Tiles.Provider != "osm" || cfg.Render.MaxWidthPix != 1000 {
		t.Errorf("file and defaults not merged: %+v", cfg)
	}
}

func TestLoadMissingFile(t *testing.T) {
	isolate(t)
	cfg, err := Load(LoadOptions{})
	if err != nil {
		t.Fatalf("Load() without a file error: %v", err)
	}
	if cfg.File != "" {
		t.Errorf("File = %q, want empty", cfg.File)
	}

	_, err = Load(LoadOptions{Path: filepath.Join(t.TempDir(), "nope.toml")})
	if !pmerrors.Is(err, pmerrors.ErrCodeInvalidConfig) {
		t.Errorf("explicit missing file error = %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"radius", func(c *Config) { c.Render.RadiusPix = 0 }, "render.radius_pix"},
		{"backend", func(c *Config) { c.Cache.Backend = "s3" }, "cache.backend"},
		{"calibration", func(c *Config) { c.Tiles.Calibration = []float64{1, 2} }, "tiles.calibration"},
		{"url", func(c *Config) { c.Tiles.URL = "https://example.com/{q}" }, "tiles.url"},
		{"ttl", func(c *Config) { c.Cache.TTL = "forever" }, "cache.ttl"},
		{"no provider", func(c *Config) { c.Tiles.Provider = "" }, "tiles.provider"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			err := c.Validate()
			if !pmerrors.Is(err, pmerrors.ErrCodeInvalidConfig) || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want mention of %s", err, tt.want)
			}
		})
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"60s", time.Minute, false},
		{"30d", 30 * 24 * time.Hour, false},
		{"", 0, false},
		{"1.5d", 0, true},
		{"-1s", 0, true},
	}
	for _, tt := range tests {
		got, err := parseDuration(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("parseDuration(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestProvider(t *testing.T) {
	c := Default()
	p, err := c.Provider()
	if err != nil {
		t.Fatal(err)
	}
	if p.Name != "mapy-turist" || p.Calibration == nil {
		t.Errorf("default provider = %+v", p)
	}

	c.Tiles.Provider = ""
	c.Tiles.URL = "https://tiles.example.com/{z}/{x}/{y}.png"
	c.Tiles.Zoom = 12
	c.Tiles.Calibration = []float64{1, 2, 3, 4}
	p, err = c.Provider()
	if err != nil {
		t.Fatal(err)
	}
	if p.URL != c.Tiles.URL || p.Zoom != 12 || p.TileSize != 256 || p.Calibration.BY[1] != 4 {
		t.Errorf("custom provider = %+v", p)
	}

	c.Tiles.Provider = "atlantis"
	if _, err := c.Provider(); !pmerrors.Is(err, pmerrors.ErrCodeInvalidConfig) {
		t.Errorf("unknown provider error = %v", err)
	}
}

func TestOpenCache(t *testing.T) {
	isolate(t)
	c := Default()
	c.Cache.Backend = BackendNone
	store, err := c.OpenCache(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := store.(*cache.NullCache); !ok {
		t.Errorf("none backend = %T", store)
	}

	c.Cache.Backend = BackendFile
	c.Cache.Dir = filepath.Join(t.TempDir(), "tiles")
	store, err = c.OpenCache(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	fc, ok := store.(*cache.FileCache)
	if !ok || fc.Dir() != c.Cache.Dir {
		t.Errorf("file backend = %T", store)
	}
}

func TestCacheDirXDG(t *testing.T) {
	dir := isolate(t)
	got, err := Default().CacheDir()
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "cache", appName); got != want {
		t.Errorf("CacheDir() = %q, want %q", got, want)
	}
}

func TestWriteRoundTrip(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "sub", fileName)
	c := Default()
	c.Render.RadiusPix = 111
	if err := Write(path, c, false); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	if err := Write(path, c, false); !pmerrors.Is(err, pmerrors.ErrCodeInvalidPath) {
		t.Errorf("second Write() error = %v, want refusal", err)
	}

	loaded, err := Load(LoadOptions{Path: path})
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if loaded.Render.RadiusPix != 111 || loaded.Tiles.Provider != c.Tiles.Provider {
		t.Errorf("loaded = %+v", loaded.Render)
	}

	var buf bytes.Buffer
	if err := c.Encode(&buf); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "radius_pix = 111") {
		t.Errorf("Encode() output:\n%s", buf.String())
	}
}

func TestKeyer(t *testing.T) {
	cfg := Default()
	fileKey := cfg.Keyer().TileKey("osm", 13, 1, 2)
	if strings.HasPrefix(fileKey, RedisKeyPrefix) {
		t.Errorf("file backend key %q carries the redis prefix", fileKey)
	}

	cfg.Cache.Backend = BackendRedis
	redisKey := cfg.Keyer().TileKey("osm", 13, 1, 2)
	if redisKey != RedisKeyPrefix+fileKey {
		t.Errorf("redis key = %q, want %q", redisKey, RedisKeyPrefix+fileKey)
	}
}
