package cli

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
)

// isolate points the XDG directories at a temp dir and clears PATHMAP_*
// variables for the duration of the test.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, "config"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(home, "cache"))
	for _, kv := range os.Environ() {
		if k, _, _ := strings.Cut(kv, "="); strings.HasPrefix(k, "PATHMAP_") {
			t.Setenv(k, "")
			os.Unsetenv(k)
		}
	}
	return home
}

// tileServer serves the same 256 px green tile for every path.
func tileServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 256, 256))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.NRGBA{G: 160, A: 255}}, image.Point{}, draw.Src)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	tile := buf.Bytes()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "image/png")
		w.Write(tile)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func tileURL(srv *httptest.Server) string {
	return srv.URL + "/{z}/{x}/{y}.png"
}

const testGPX = `<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" creator="pathmap-test" xmlns="http://www.topografix.com/GPX/1/1">
  <trk><name>ride</name><trkseg>
    <trkpt lat="10.000" lon="10.000"></trkpt>
    <trkpt lat="10.010" lon="10.020"></trkpt>
    <trkpt lat="10.020" lon="10.030"></trkpt>
  </trkseg></trk>
</gpx>
`

func writeTrack(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "ride.gpx")
	if err := os.WriteFile(path, []byte(testGPX), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// execute runs the root command with args and returns the log output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var logs bytes.Buffer
	c := New(&logs, LogInfo)
	root := c.RootCommand()
	root.SetArgs(args)
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	err := root.ExecuteContext(context.Background())
	return logs.String(), err
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := New(&bytes.Buffer{}, LogInfo).RootCommand()
	want := []string{"render", "serve", "config", "cache", "completion"}
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("subcommand %q not registered", name)
		}
	}
	if root.PersistentFlags().Lookup("config") == nil {
		t.Error("--config flag missing")
	}
}
