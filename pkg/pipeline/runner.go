package pipeline

import (
	"context"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/matzehuels/pathmap/pkg/corridor"
	pmerrors "github.com/matzehuels/pathmap/pkg/errors"
	"github.com/matzehuels/pathmap/pkg/geo"
	"github.com/matzehuels/pathmap/pkg/observability"
	"github.com/matzehuels/pathmap/pkg/plate"
	"github.com/matzehuels/pathmap/pkg/tiles"
)

// Runner produces plates from one tile source.
// Both CLI and server use this to avoid duplicating the stage wiring.
//
// The Runner is stateless apart from its collaborators: every call to
// Plates returns an independent [Stream]. Multiple goroutines can safely use
// the same Runner with different options, provided the source is safe for
// concurrent use.
type Runner struct {
	Source     tiles.Source
	Projection geo.Projection
	Logger     *log.Logger
}

// NewRunner creates a runner over src.
// If proj is nil, the default calibrated grid is used.
// If logger is nil, log output is discarded.
func NewRunner(src tiles.Source, proj geo.Projection, logger *log.Logger) *Runner {
	if proj == nil {
		proj = geo.DefaultCalibration
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Runner{
		Source:     src,
		Projection: proj,
		Logger:     logger,
	}
}

// Plates normalizes points and returns a stream over their plates. A point
// outside the projection domain fails the call before any plate is drawn.
// An empty path yields an empty stream.
func (r *Runner) Plates(ctx context.Context, points []geo.GeoPoint, opts Options) (*Stream, error) {
	r.applyLogger(&opts)
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	if r.Source == nil {
		return nil, pmerrors.New(pmerrors.ErrCodeInternal, "runner has no tile source")
	}

	runID := uuid.NewString()
	logger := opts.Logger.With("run", runID)
	start := time.Now()
	observability.Pipeline().OnRunStart(ctx, runID, len(points))

	path, err := geo.Normalize(points, r.Projection)
	if err != nil {
		err = pmerrors.Wrap(pmerrors.ErrCodeProjection, err, "normalize path")
		observability.Pipeline().OnRunComplete(ctx, runID, 0, time.Since(start), err)
		return nil, err
	}

	ts := r.Source.TileSize()
	chunker, err := corridor.NewChunker(path, opts.Params(ts))
	if err != nil {
		err = pmerrors.Wrap(pmerrors.ErrCodeInvalidInput, err, "plate parameters")
		observability.Pipeline().OnRunComplete(ctx, runID, 0, time.Since(start), err)
		return nil, err
	}
	logger.Debug("path normalized", "points", len(path), "tile_size", ts)

	return &Stream{
		runID:   runID,
		chunker: chunker,
		raster: &plate.Rasterizer{
			Source:    r.Source,
			RadiusPix: opts.RadiusPix,
			PathColor: opts.Color(),
			Logger:    logger,
		},
		radius:   opts.Params(ts).Radius(),
		maxWidth: float64(opts.MaxWidthPix) / float64(ts),
		rotate:   opts.ShouldRotate(),
		tileSize: ts,
		logger:   logger,
		start:    start,
	}, nil
}

// Collect drains a fresh stream into a slice. It suits short paths and
// tests; long tracks should consume the stream directly.
func (r *Runner) Collect(ctx context.Context, points []geo.GeoPoint, opts Options) ([]plate.Plate, error) {
	s, err := r.Plates(ctx, points, opts)
	if err != nil {
		return nil, err
	}
	var out []plate.Plate
	err = s.Each(ctx, func(p plate.Plate) error {
		out = append(out, p)
		return nil
	})
	return out, err
}

// applyLogger sets the runner's logger on opts if opts doesn't have one.
func (r *Runner) applyLogger(opts *Options) {
	if opts.Logger == nil {
		opts.Logger = r.Logger
	}
}
