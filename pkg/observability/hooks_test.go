package observability

import (
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNoopHooksDoNotPanic(t *testing.T) {
	ctx := context.Background()

	p := NoopPipelineHooks{}
	p.OnRunStart(ctx, "run", 10)
	p.OnPlate(ctx, "run", 0, -35, time.Second, nil)
	p.OnRunComplete(ctx, "run", 3, time.Second, nil)

	c := NoopCacheHooks{}
	c.OnCacheHit(ctx, "tile")
	c.OnCacheMiss(ctx, "tile")
	c.OnCacheSet(ctx, "tile", 1024)

	h := NoopHTTPHooks{}
	h.OnRequest(ctx, "GET", "tiles.example.com", "/13/4424/2775")
	h.OnResponse(ctx, "GET", "tiles.example.com", "/13/4424/2775", 200, time.Second)
	h.OnError(ctx, "GET", "tiles.example.com", "/13/4424/2775", nil)
}

func TestGlobalHooksRegistry(t *testing.T) {
	Reset()

	if _, ok := Pipeline().(NoopPipelineHooks); !ok {
		t.Error("Pipeline() should return NoopPipelineHooks by default")
	}
	if _, ok := Cache().(NoopCacheHooks); !ok {
		t.Error("Cache() should return NoopCacheHooks by default")
	}
	if _, ok := HTTP().(NoopHTTPHooks); !ok {
		t.Error("HTTP() should return NoopHTTPHooks by default")
	}

	m := NewMetrics(prometheus.NewRegistry())
	m.Install()
	if Pipeline() != m || Cache() != m || HTTP() != m {
		t.Error("Install() should register the metrics for every category")
	}

	Reset()
	if _, ok := Pipeline().(NoopPipelineHooks); !ok {
		t.Error("Reset() should restore NoopPipelineHooks")
	}
}

func TestSetNilHooksIsIgnored(t *testing.T) {
	Reset()
	defer Reset()

	custom := &testPipelineHooks{}
	SetPipelineHooks(custom)
	SetPipelineHooks(nil)
	if Pipeline() != custom {
		t.Error("SetPipelineHooks(nil) should be ignored")
	}
}

func TestMetricsCount(t *testing.T) {
	ctx := context.Background()
	m := NewMetrics(prometheus.NewRegistry())

	m.OnPlate(ctx, "r", 0, 45, time.Millisecond, nil)
	m.OnPlate(ctx, "r", 1, 0, time.Millisecond, nil)
	m.OnPlate(ctx, "r", 2, 0, time.Millisecond, errors.New("fetch failed"))
	m.OnRunComplete(ctx, "r", 2, time.Second, errors.New("fetch failed"))
	m.OnCacheHit(ctx, "tile")
	m.OnCacheMiss(ctx, "tile")
	m.OnCacheSet(ctx, "tile", 300)
	m.OnResponse(ctx, "GET", "tiles.example.com", "/", 200, time.Millisecond)
	m.OnResponse(ctx, "GET", "tiles.example.com", "/", 503, time.Millisecond)
	m.OnError(ctx, "GET", "tiles.example.com", "/", errors.New("reset"))

	tests := []struct {
		name string
		c    prometheus.Collector
		want float64
	}{
		{"plates ok", m.plates.WithLabelValues("ok"), 2},
		{"plates error", m.plates.WithLabelValues("error"), 1},
		{"runs error", m.runs.WithLabelValues("error"), 1},
		{"cache hit", m.cacheOps.WithLabelValues("tile", "hit"), 1},
		{"cache bytes", m.cacheBytes.WithLabelValues("tile"), 300},
		{"responses 503", m.requests.WithLabelValues("tiles.example.com", "503"), 1},
		{"request errors", m.requestErrors.WithLabelValues("tiles.example.com"), 1},
	}
	for _, tt := range tests {
		if got := testutil.ToFloat64(tt.c); got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestMetricsExport(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.OnCacheHit(context.Background(), "tile")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "pathmap_cache_operations_total") {
		t.Errorf("handler output lacks cache counter:\n%s", rec.Body.String())
	}

	path := filepath.Join(t.TempDir(), "pathmap.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile() error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `result="hit"`) {
		t.Errorf("textfile lacks hit sample:\n%s", data)
	}
}

type testPipelineHooks struct{ NoopPipelineHooks }
