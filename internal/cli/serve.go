package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/matzehuels/pathmap/internal/config"
	pmerrors "github.com/matzehuels/pathmap/pkg/errors"
	"github.com/matzehuels/pathmap/pkg/observability"
	"github.com/matzehuels/pathmap/pkg/pipeline"
	"github.com/matzehuels/pathmap/pkg/sink"
	"github.com/matzehuels/pathmap/pkg/tiles"
	"github.com/matzehuels/pathmap/pkg/track"
)

const (
	headerRequestID  = "X-Request-ID"
	headerRunID      = "X-Run-ID"
	headerPlateCount = "X-Plate-Count"

	shutdownTimeout = 10 * time.Second
)

var serveBindings = map[string]string{
	"server.addr":          "addr",
	"server.max_upload_mb": "max-upload-mb",
	"tiles.provider":       "provider",
	"tiles.url":            "url",
	"tiles.zoom":           "zoom",
	"tiles.workers":        "workers",
	"cache.backend":        "cache",
}

// serveCommand creates the serve command.
func (c *CLI) serveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the plate pipeline over HTTP",
		Long: `Serve accepts tracks on POST /plates and answers with the rendered PDF.

The body is either the raw GPX or GeoJSON document or a multipart form with
the file in the "track" field. Query parameters radius, color, rotate and
title adjust a single request. Metrics are exposed on /metrics.`,
		Example: `  pathmap serve --addr :9000 --cache redis
  curl --data-binary @ride.gpx -o ride.pdf 'localhost:9000/plates?name=ride.gpx'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig(cmd, serveBindings)
			if err != nil {
				return err
			}
			return c.runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().String("addr", "", "listen address (default :8080)")
	cmd.Flags().Int("max-upload-mb", 0, "largest accepted track in MiB")
	cmd.Flags().String("provider", "", "tile provider: mapy-turist, osm, opentopomap")
	cmd.Flags().String("url", "", "custom tile URL template with {z}, {x}, {y}")
	cmd.Flags().Int("zoom", 0, "zoom level of a custom provider")
	cmd.Flags().Int("workers", 0, "parallel tile downloads per plate")
	cmd.Flags().String("cache", "", "cache backend: file, redis, none")

	return cmd
}

func (c *CLI) runServe(ctx context.Context, cfg *config.Config) error {
	env, err := c.newEnvironment(ctx, cfg, false, c.Logger)
	if err != nil {
		return err
	}
	defer env.Close()

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	metrics.Install()
	defer observability.Reset()

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           newServer(cfg, env, metrics, c.Logger).routes(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.ServerTimeout() + 30*time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	printInfo("Listening on %s", StyleLink.Render(cfg.Server.Addr))
	printKeyValue("Provider", env.provider.Name)
	printKeyValue("Cache", cfg.Cache.Backend)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	c.Logger.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// =============================================================================
// HTTP API
// =============================================================================

// server answers plate requests with one shared runner.
type server struct {
	cfg      *config.Config
	runner   *pipeline.Runner
	provider tiles.Provider
	metrics  *observability.Metrics
	logger   *log.Logger
	maxBytes int64
	timeout  time.Duration
}

func newServer(cfg *config.Config, env *environment, metrics *observability.Metrics, logger *log.Logger) *server {
	return &server{
		cfg:      cfg,
		runner:   env.runner,
		provider: env.provider,
		metrics:  metrics,
		logger:   logger,
		maxBytes: int64(cfg.Server.MaxUploadMB) << 20,
		timeout:  cfg.ServerTimeout(),
	}
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/providers", s.handleProviders)
	r.Post("/plates", s.handlePlates)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}
	return r
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "provider": s.provider.Name})
}

func (s *server) handleProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"active":   s.provider.Name,
		"builtins": tiles.ProviderNames(),
	})
}

func (s *server) handlePlates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	logger := s.logger.With("request", w.Header().Get(headerRequestID))

	opts, err := s.requestOptions(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	opts.Logger = logger

	if s.maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxBytes)
	}
	body, name, err := trackBody(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer body.Close()

	points, err := track.Read(body, name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	stream, err := s.runner.Plates(ctx, points, opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	title := r.URL.Query().Get("title")
	if title == "" {
		title = name
	}
	var buf bytes.Buffer
	pdf := sink.NewPDF(&buf, s.cfg.PDFOptions(s.provider, title))
	if err := stream.Each(ctx, pdf.WritePlate); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := pdf.Close(); err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": pdfName(name)}))
	w.Header().Set(headerRunID, stream.RunID())
	w.Header().Set(headerPlateCount, strconv.Itoa(stream.Count()))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		logger.Warn("write response", "err", err)
	}
}

// requestOptions applies the query parameters to the configured options.
func (s *server) requestOptions(r *http.Request) (pipeline.Options, error) {
	opts := s.cfg.PipelineOptions()
	q := r.URL.Query()
	if v := q.Get("radius"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return opts, pmerrors.New(pmerrors.ErrCodeInvalidInput, "radius: %q is not a number", v)
		}
		opts.RadiusPix = n
	}
	if v := q.Get("color"); v != "" {
		opts.PathColor = v
	}
	if v := q.Get("rotate"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return opts, pmerrors.New(pmerrors.ErrCodeInvalidInput, "rotate: %q is not a boolean", v)
		}
		opts.SkipRotation = !b
	}
	return opts, nil
}

// trackBody returns the uploaded track and its file name. Multipart forms
// carry the track in the "track" field; any other body is the track itself,
// named by the "name" query parameter.
func trackBody(r *http.Request) (io.ReadCloser, string, error) {
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt != "multipart/form-data" {
		return r.Body, r.URL.Query().Get("name"), nil
	}
	f, hdr, err := r.FormFile("track")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, "", err
		}
		return nil, "", pmerrors.Wrap(pmerrors.ErrCodeInvalidInput, err, `multipart form has no "track" file`)
	}
	return f, hdr.Filename, nil
}

// pdfName names the response after the uploaded track.
func pdfName(name string) string {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	if base == "" || base == "." || base == "/" {
		base = "plates"
	}
	return base + ".pdf"
}

// =============================================================================
// Responses and Middleware
// =============================================================================

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func (s *server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := pmerrors.HTTPStatus(err)
	var tooBig *http.MaxBytesError
	switch {
	case errors.As(err, &tooBig):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		status = 499 // client closed request
	}

	id := w.Header().Get(headerRequestID)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "request", id, "path", r.URL.Path, "status", status, "err", err)
	} else {
		s.logger.Debug("request rejected", "request", id, "path", r.URL.Path, "status", status, "err", err)
	}
	writeJSON(w, status, errorResponse{
		Error:     pmerrors.UserMessage(err),
		Code:      string(pmerrors.GetCode(err)),
		RequestID: id,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// requestID tags every request with an ID, reusing the caller's if given.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r)
	})
}

// statusWriter records the status code and size of a response.
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

func (s *server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sw, r)
		s.logger.Info("http",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"bytes", sw.bytes,
			"duration", time.Since(start).Round(time.Millisecond),
			"ip", r.RemoteAddr,
			"request", w.Header().Get(headerRequestID))
	})
}
