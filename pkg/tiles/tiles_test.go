package tiles

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matzehuels/pathmap/pkg/cache"
	pmerrors "github.com/matzehuels/pathmap/pkg/errors"
	"github.com/matzehuels/pathmap/pkg/geo"
)

// tileColor identifies a tile by colour so stitched output can be checked.
func tileColor(t Tile) color.RGBA {
	return color.RGBA{R: uint8(10*t.X + 1), G: uint8(10*t.Y + 1), B: uint8(t.Z), A: 255}
}

func encodeTile(t *testing.T, size int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := range size {
		for x := range size {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func colorFetcher(t *testing.T, size int) FetcherFunc {
	return func(_ context.Context, tile Tile) ([]byte, error) {
		return encodeTile(t, size, tileColor(tile)), nil
	}
}

func rgba(c color.Color) color.RGBA {
	return color.RGBAModel.Convert(c).(color.RGBA)
}

func TestMosaicStitches(t *testing.T) {
	m := NewMosaic(colorFetcher(t, 4), MosaicOptions{Zoom: 7, TileSize: 4})
	box := geo.Box{Min: [2]float64{0.5, 0.25}, Max: [2]float64{2.5, 1.25}}

	img, err := m.FetchRect(context.Background(), box)
	if err != nil {
		t.Fatalf("FetchRect() error: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 8 || b.Dy() != 4 {
		t.Fatalf("size = %v, want 8x4", b.Size())
	}

	tests := []struct {
		x, y int
		tile Tile
	}{
		{0, 0, Tile{7, 0, 0}},
		{1, 2, Tile{7, 0, 0}},
		{2, 0, Tile{7, 1, 0}},
		{5, 2, Tile{7, 1, 0}},
		{6, 3, Tile{7, 2, 1}},
		{7, 3, Tile{7, 2, 1}},
		{0, 3, Tile{7, 0, 1}},
	}
	for _, tt := range tests {
		if got, want := rgba(img.At(tt.x, tt.y)), tileColor(tt.tile); got != want {
			t.Errorf("pixel (%d,%d) = %v, want tile %v colour %v", tt.x, tt.y, got, tt.tile, want)
		}
	}
}

func TestMosaicPropagatesFailure(t *testing.T) {
	var calls atomic.Int32
	f := FetcherFunc(func(ctx context.Context, tile Tile) ([]byte, error) {
		calls.Add(1)
		if tile.X == 1 && tile.Y == 1 {
			return nil, ErrNotFound
		}
		return encodeTile(t, 4, color.White), nil
	})
	m := NewMosaic(f, MosaicOptions{TileSize: 4, Workers: 1})
	_, err := m.FetchRect(context.Background(), geo.Box{Max: [2]float64{3, 3}})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("FetchRect() error = %v, want ErrNotFound", err)
	}
	if n := calls.Load(); n >= 16 {
		t.Errorf("fetched %d tiles after a failure with one worker", n)
	}
}

func TestMosaicDecodeError(t *testing.T) {
	f := FetcherFunc(func(context.Context, Tile) ([]byte, error) { return []byte("<html>"), nil })
	_, err := NewMosaic(f, MosaicOptions{TileSize: 4}).FetchRect(context.Background(), geo.Box{Max: [2]float64{1, 1}})
	if !errors.Is(err, ErrDecode) {
		t.Errorf("FetchRect() error = %v, want ErrDecode", err)
	}
}

func TestMosaicBoundsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	f := FetcherFunc(func(ctx context.Context, tile Tile) ([]byte, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		return encodeTile(t, 2, color.Black), nil
	})
	m := NewMosaic(f, MosaicOptions{TileSize: 2, Workers: 3})
	if _, err := m.FetchRect(context.Background(), geo.Box{Max: [2]float64{4.5, 4.5}}); err != nil {
		t.Fatal(err)
	}
	if p := peak.Load(); p > 3 {
		t.Errorf("peak concurrency = %d, want <= 3", p)
	}
}

func TestMosaicDefaults(t *testing.T) {
	m := NewMosaic(colorFetcher(t, 256), MosaicOptions{})
	if m.TileSize() != 256 || m.workers != DefaultWorkers {
		t.Errorf("defaults = %d/%d", m.TileSize(), m.workers)
	}
}

func newTileServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request, tile Tile)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var tile Tile
		if _, err := fmt.Sscanf(r.URL.Path, "/%d/%d/%d.png", &tile.Z, &tile.X, &tile.Y); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		handler(w, r, tile)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPFetcher(t *testing.T) {
	srv := newTileServer(t, func(w http.ResponseWriter, r *http.Request, tile Tile) {
		if r.URL.Query().Get("k") != "secret" {
			t.Errorf("token = %q", r.URL.Query().Get("k"))
		}
		if r.Header.Get("Referer") != "https://example.com/" {
			t.Errorf("Referer = %q", r.Header.Get("Referer"))
		}
		w.Write(encodeTile(t, 4, tileColor(tile)))
	})
	f, err := NewHTTPFetcher(srv.URL+"/{z}/{x}/{y}.png?k={token}", HTTPOptions{
		Client:  srv.Client(),
		Token:   StaticToken("secret"),
		Headers: map[string]string{"Referer": "https://example.com/"},
	})
	if err != nil {
		t.Fatal(err)
	}

	m := NewMosaic(f, MosaicOptions{Zoom: 13, TileSize: 4})
	img, err := m.FetchRect(context.Background(), geo.Box{Min: [2]float64{4424, 2775}, Max: [2]float64{4425, 2776}})
	if err != nil {
		t.Fatalf("FetchRect() error: %v", err)
	}
	if got, want := rgba(img.At(0, 0)), tileColor(Tile{13, 4424, 2775}); got != want {
		t.Errorf("pixel = %v, want %v", got, want)
	}
}

func TestHTTPFetcherStatus(t *testing.T) {
	tests := []struct {
		name      string
		statuses  []int
		wantCalls int
		wantErr   error
	}{
		{"ok", []int{200}, 1, nil},
		{"not found is final", []int{404}, 1, ErrNotFound},
		{"5xx retried", []int{503, 502, 200}, 3, nil},
		{"5xx exhausted", []int{500, 500, 500, 500}, 3, ErrNetwork},
		{"4xx is final", []int{400}, 1, ErrNetwork},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := newTileServer(t, func(w http.ResponseWriter, r *http.Request, tile Tile) {
				i := int(calls.Add(1)) - 1
				if code := tt.statuses[min(i, len(tt.statuses)-1)]; code != 200 {
					w.WriteHeader(code)
					return
				}
				w.Write(encodeTile(t, 2, color.White))
			})
			f, _ := NewHTTPFetcher(srv.URL+"/{z}/{x}/{y}.png", HTTPOptions{Client: srv.Client(), Delay: time.Millisecond})

			_, err := f.FetchTile(context.Background(), Tile{1, 0, 0})
			if tt.wantErr == nil && err != nil {
				t.Fatalf("FetchTile() error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("FetchTile() error = %v, want %v", err, tt.wantErr)
			}
			if got := int(calls.Load()); got != tt.wantCalls {
				t.Errorf("calls = %d, want %d", got, tt.wantCalls)
			}
		})
	}
}

func TestHTTPFetcherRateLimited(t *testing.T) {
	srv := newTileServer(t, func(w http.ResponseWriter, r *http.Request, tile Tile) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	})
	f, _ := NewHTTPFetcher(srv.URL+"/{z}/{x}/{y}.png", HTTPOptions{Client: srv.Client(), Attempts: 2, Delay: time.Millisecond})
	_, err := f.FetchTile(context.Background(), Tile{})
	var rl *pmerrors.RateLimitedError
	if !errors.As(err, &rl) || rl.RetryAfter != 30 {
		t.Errorf("FetchTile() error = %v, want RateLimitedError(30)", err)
	}
}

func TestNewHTTPFetcherRejectsTemplate(t *testing.T) {
	if _, err := NewHTTPFetcher("https://tiles.example.com/{z}/{x}", HTTPOptions{}); err == nil {
		t.Error("template without {y} accepted")
	}
}

func TestRenewingToken(t *testing.T) {
	var issued atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"token":"t%d"}`, issued.Add(1))
	}))
	defer srv.Close()

	tok, err := NewRenewingToken(srv.URL, TokenOptions{Client: srv.Client(), TTL: time.Minute})
	if err != nil {
		t.Fatal(err)
	}
	now := time.Unix(1000, 0)
	tok.now = func() time.Time { return now }
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if v, err := tok.Token(ctx); err != nil || v != "t1" {
				t.Errorf("Token() = %q, %v", v, err)
			}
		}()
	}
	wg.Wait()
	if n := issued.Load(); n != 1 {
		t.Fatalf("endpoint hit %d times, want 1", n)
	}

	now = now.Add(61 * time.Second)
	if v, _ := tok.Token(ctx); v != "t2" {
		t.Errorf("after TTL Token() = %q, want t2", v)
	}
	tok.Invalidate()
	if v, _ := tok.Token(ctx); v != "t3" {
		t.Errorf("after Invalidate Token() = %q, want t3", v)
	}
}

func TestRenewingTokenExtract(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		body    string
		want    string
		wantErr bool
	}{
		{"plain", "", "  abc123\n", "abc123", false},
		{"json", "", `{"token":"xyz"}`, "xyz", false},
		{"pattern", `token\s*=\s*"([^"]+)"`, `var cfg = {token = "p-42"};`, "p-42", false},
		{"pattern miss", `token="([^"]+)"`, `nothing here`, "", true},
		{"empty", "", "   ", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok, err := NewRenewingToken("http://unused", TokenOptions{Pattern: tt.pattern})
			if err != nil {
				t.Fatal(err)
			}
			got, err := tok.extract([]byte(tt.body))
			if (err != nil) != tt.wantErr || got != tt.want {
				t.Errorf("extract() = %q, %v; want %q, err %v", got, err, tt.want, tt.wantErr)
			}
		})
	}

	if _, err := NewRenewingToken("http://unused", TokenOptions{Pattern: "no-group"}); err == nil {
		t.Error("pattern without capture group accepted")
	}
}

func TestHTTPFetcherRenewsTokenOnUnauthorized(t *testing.T) {
	var issued atomic.Int32
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "t%d", issued.Add(1))
	}))
	defer tokenSrv.Close()

	srv := newTileServer(t, func(w http.ResponseWriter, r *http.Request, tile Tile) {
		if r.URL.Query().Get("k") != "t2" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write(encodeTile(t, 2, color.White))
	})
	tok, _ := NewRenewingToken(tokenSrv.URL, TokenOptions{Client: tokenSrv.Client()})
	f, _ := NewHTTPFetcher(srv.URL+"/{z}/{x}/{y}.png?k={token}", HTTPOptions{Client: srv.Client(), Token: tok, Delay: time.Millisecond})

	if _, err := f.FetchTile(context.Background(), Tile{}); err != nil {
		t.Fatalf("FetchTile() error: %v", err)
	}
	if n := issued.Load(); n != 2 {
		t.Errorf("tokens issued = %d, want 2", n)
	}
}

func TestCachedFetcher(t *testing.T) {
	ctx := context.Background()
	store, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	var calls atomic.Int32
	inner := FetcherFunc(func(_ context.Context, tile Tile) ([]byte, error) {
		calls.Add(1)
		if tile.X < 0 {
			return []byte("not an image"), nil
		}
		return encodeTile(t, 2, tileColor(tile)), nil
	})
	f := NewCachedFetcher(inner, store, nil, "https://tiles.example.com/{z}/{x}/{y}.png", time.Hour)

	first, err := f.FetchTile(ctx, Tile{3, 1, 2})
	if err != nil {
		t.Fatal(err)
	}
	second, err := f.FetchTile(ctx, Tile{3, 1, 2})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first, second) || calls.Load() != 1 {
		t.Errorf("second fetch was not served from cache (calls = %d)", calls.Load())
	}

	f.FetchTile(ctx, Tile{3, -1, 0})
	f.FetchTile(ctx, Tile{3, -1, 0})
	if calls.Load() != 3 {
		t.Errorf("undecodable tile was cached (calls = %d)", calls.Load())
	}
}

func TestCachedToken(t *testing.T) {
	ctx := context.Background()
	store, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	var issued atomic.Int32
	inner := tokenFunc(func(context.Context) (string, error) {
		return fmt.Sprintf("t%d", issued.Add(1)), nil
	})

	// Two sources on one cache behave like two processes sharing redis.
	a := NewCachedToken(inner, store, nil, "https://tiles.example.com", 0)
	b := NewCachedToken(inner, store, nil, "https://tiles.example.com", 0)
	if v, err := a.Token(ctx); err != nil || v != "t1" {
		t.Fatalf("a.Token() = %q, %v", v, err)
	}
	if v, _ := b.Token(ctx); v != "t1" {
		t.Errorf("b.Token() = %q, want shared t1", v)
	}
	b.Invalidate()
	if v, _ := a.Token(ctx); v != "t2" {
		t.Errorf("after Invalidate a.Token() = %q, want t2", v)
	}
}

type tokenFunc func(context.Context) (string, error)

func (f tokenFunc) Token(ctx context.Context) (string, error) { return f(ctx) }

func TestProviders(t *testing.T) {
	for _, name := range ProviderNames() {
		p, err := LookupProvider(name)
		if err != nil {
			t.Fatal(err)
		}
		if err := pmerrors.ValidateTileURLTemplate(p.URL); err != nil {
			t.Errorf("%s: %v", name, err)
		}
		if p.Projection() == nil {
			t.Errorf("%s: nil projection", name)
		}
	}
	if _, ok := Providers[DefaultProvider]; !ok {
		t.Errorf("default provider %q missing", DefaultProvider)
	}
	if _, ok := Providers[DefaultProvider].Projection().(geo.Affine); !ok {
		t.Error("default provider should use the affine calibration")
	}
	if _, err := LookupProvider("nope"); err == nil {
		t.Error("LookupProvider(nope) succeeded")
	}
}

func TestMosaicCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMosaic(colorFetcher(t, 2), MosaicOptions{TileSize: 2}).FetchRect(ctx, geo.Box{Max: [2]float64{2, 2}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("FetchRect() error = %v, want context.Canceled", err)
	}
}
