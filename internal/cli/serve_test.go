package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/matzehuels/pathmap/internal/config"
	"github.com/matzehuels/pathmap/pkg/observability"
)

// newTestServer wires the HTTP API to a fake tile server without a cache.
func newTestServer(t *testing.T) (*server, http.Handler) {
	t.Helper()
	isolate(t)
	tiles, _ := tileServer(t)

	cfg := config.Default()
	cfg.Tiles.Provider = ""
	cfg.Tiles.URL = tileURL(tiles)
	cfg.Tiles.Zoom = 4
	cfg.Cache.Backend = config.BackendNone

	c := New(io.Discard, LogInfo)
	env, err := c.newEnvironment(context.Background(), cfg, true, c.Logger)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { env.Close() })

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	metrics.Install()
	t.Cleanup(observability.Reset)

	s := newServer(cfg, env, metrics, c.Logger)
	return s, s.routes()
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var e errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&e); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return e
}

func TestServeHealth(t *testing.T) {
	_, h := newTestServer(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get(headerRequestID) == "" {
		t.Error("response has no request ID")
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("body = %s", rec.Body)
	}
}

func TestServeKeepsCallerRequestID(t *testing.T) {
	_, h := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/providers", nil)
	req.Header.Set(headerRequestID, "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get(headerRequestID); got != "abc-123" {
		t.Errorf("request ID = %q, want caller's", got)
	}
	if !strings.Contains(rec.Body.String(), "opentopomap") {
		t.Errorf("providers body = %s", rec.Body)
	}
}

func TestServePlatesRawBody(t *testing.T) {
	_, h := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/plates?name=ride.gpx&rotate=false", strings.NewReader(testGPX))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "ride.pdf") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if rec.Header().Get(headerPlateCount) != "1" {
		t.Errorf("plate count = %q, want 1", rec.Header().Get(headerPlateCount))
	}
	if rec.Header().Get(headerRunID) == "" {
		t.Error("response has no run ID")
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF-")) {
		t.Error("body is not a PDF")
	}

	// The run shows up in the metrics.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "pathmap_pipeline_plates_total") {
		t.Errorf("metrics lack plate counter:\n%s", rec.Body)
	}
}

func TestServePlatesMultipart(t *testing.T) {
	_, h := newTestServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("track", "hike.gpx")
	if err != nil {
		t.Fatal(err)
	}
	io.WriteString(fw, testGPX)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/plates", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "hike.pdf") {
		t.Errorf("Content-Disposition = %q", cd)
	}
}

func TestServePlatesErrors(t *testing.T) {
	tests := []struct {
		name     string
		target   string
		body     string
		maxBytes int64
		status   int
		code     string
	}{
		{"bad radius", "/plates?radius=wide", testGPX, 0, http.StatusBadRequest, "INVALID_INPUT"},
		{"bad rotate", "/plates?rotate=sometimes", testGPX, 0, http.StatusBadRequest, "INVALID_INPUT"},
		{"bad color", "/plates?color=sparkly", testGPX, 0, http.StatusBadRequest, "INVALID_COLOR"},
		{"radius too wide", "/plates?radius=900", testGPX, 0, http.StatusBadRequest, "INVALID_INPUT"},
		{"unknown format", "/plates", "just some text", 0, http.StatusUnsupportedMediaType, "UNSUPPORTED"},
		{"empty track", "/plates?name=x.gpx", `<gpx version="1.1"></gpx>`, 0, http.StatusBadRequest, "INVALID_TRACK"},
		{"too large", "/plates?name=x.gpx", testGPX, 64, http.StatusRequestEntityTooLarge, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, h := newTestServer(t)
			if tt.maxBytes > 0 {
				s.maxBytes = tt.maxBytes
			}

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, tt.target, strings.NewReader(tt.body)))

			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.status, rec.Body)
			}
			e := decodeError(t, rec)
			if e.Code != tt.code {
				t.Errorf("code = %q, want %q", e.Code, tt.code)
			}
			if e.Error == "" || e.RequestID == "" {
				t.Errorf("incomplete error body: %+v", e)
			}
		})
	}
}

func TestServeMethodNotAllowed(t *testing.T) {
	_, h := newTestServer(t)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/plates", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /plates = %d, want 405", rec.Code)
	}
}

func TestPDFName(t *testing.T) {
	tests := map[string]string{
		"ride.gpx":          "ride.pdf",
		"/tmp/walk.geojson": "walk.pdf",
		"":                  "plates.pdf",
		"noext":             "noext.pdf",
	}
	for in, want := range tests {
		if got := pdfName(in); got != want {
			t.Errorf("pdfName(%q) = %q, want %q", in, got, want)
		}
	}
}
