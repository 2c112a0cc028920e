package pipeline

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/pathmap/pkg/corridor"
	"github.com/matzehuels/pathmap/pkg/observability"
	"github.com/matzehuels/pathmap/pkg/plate"
)

// Stream yields the plates of one run in path order. It is forward-only and
// single-use: once Next returns false it keeps returning false, and Err
// reports why the run ended. A Stream is not safe for concurrent use.
type Stream struct {
	runID    string
	chunker  *corridor.Chunker
	raster   *plate.Rasterizer
	radius   float64
	maxWidth float64
	rotate   bool
	tileSize int
	logger   *log.Logger
	start    time.Time

	cur  plate.Plate
	n    int
	err  error
	done bool
}

// RunID identifies the run in logs and metrics.
func (s *Stream) RunID() string { return s.runID }

// Next draws the next plate. It returns false when the path is exhausted,
// when ctx is cancelled or when a plate fails; plates returned before a
// failure remain valid.
func (s *Stream) Next(ctx context.Context) bool {
	if s.done {
		return false
	}
	if err := ctx.Err(); err != nil {
		s.finish(ctx, err)
		return false
	}
	bite, ok := s.chunker.Next()
	if !ok {
		s.finish(ctx, nil)
		return false
	}

	start := time.Now()
	p, err := s.raster.Rasterize(ctx, bite)
	if err != nil {
		observability.Pipeline().OnPlate(ctx, s.runID, s.n, 0, time.Since(start), err)
		s.finish(ctx, err)
		return false
	}

	if s.rotate {
		c := bite.Corridor(s.radius)
		angle := corridor.BestAngle(c, s.maxWidth)
		p = plate.RotateCrop(p, c, angle, s.tileSize)
	}
	p.Index = s.n
	s.cur = p
	s.n++

	size := p.Size()
	s.logger.Debug("plate ready",
		"plate", p.Index,
		"points", len(bite.Points),
		"angle", p.Angle,
		"width", size.X,
		"height", size.Y,
		"duration", time.Since(start))
	observability.Pipeline().OnPlate(ctx, s.runID, p.Index, p.Angle, time.Since(start), nil)
	return true
}

// Plate returns the plate produced by the last successful Next.
func (s *Stream) Plate() plate.Plate { return s.cur }

// Count returns how many plates have been produced so far.
func (s *Stream) Count() int { return s.n }

// Err returns the error that ended the stream, or nil if it ran to the end
// of the path or has not ended yet.
func (s *Stream) Err() error { return s.err }

// Each calls fn for every remaining plate. An error from fn stops the run
// and is returned as is.
func (s *Stream) Each(ctx context.Context, fn func(plate.Plate) error) error {
	for s.Next(ctx) {
		if err := fn(s.Plate()); err != nil {
			s.finish(ctx, err)
			return err
		}
	}
	return s.Err()
}

// Stop ends the run before the path is exhausted, recording err as the
// reason. It does nothing once the stream has ended.
func (s *Stream) Stop(ctx context.Context, err error) {
	if !s.done {
		s.finish(ctx, err)
	}
}

func (s *Stream) finish(ctx context.Context, err error) {
	s.done = true
	s.err = err
	s.cur = plate.Plate{}
	dur := time.Since(s.start)
	if err != nil {
		s.logger.Warn("run stopped", "plates", s.n, "duration", dur, "err", err)
	} else {
		s.logger.Info("run complete", "plates", s.n, "duration", dur)
	}
	observability.Pipeline().OnRunComplete(ctx, s.runID, s.n, dur, err)
}
