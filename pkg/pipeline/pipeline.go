// Package pipeline turns a geographic path into a sequence of printable map
// plates.
//
// This package ties the stages together so the CLI and the HTTP server run
// exactly the same code with the same defaults.
//
// # Architecture
//
// A run consists of these stages:
//
//  1. Normalize: project every point of the path into tile space
//  2. Chunk: split the path into bites that fit a plate
//  3. Rasterize: draw the map corridor of each bite
//  4. Orient: rotate the plate so the corridor is as short as possible
//
// Stages 2 to 4 run lazily, one bite per call to [Stream.Next], so a long
// track never holds more than one plate in memory.
//
// # Usage
//
//	src, err := pipeline.NewSource(pipeline.SourceOptions{Provider: provider, Cache: c})
//	runner := pipeline.NewRunner(src, provider.Projection(), logger)
//	stream, err := runner.Plates(ctx, points, pipeline.Options{})
//	if err != nil {
//	    return err
//	}
//	for stream.Next(ctx) {
//	    p := stream.Plate()
//	    // write p
//	}
//	return stream.Err()
package pipeline

import (
	"image/color"
	"io"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/pathmap/pkg/corridor"
	pmerrors "github.com/matzehuels/pathmap/pkg/errors"
	"github.com/matzehuels/pathmap/pkg/plate"
)

// =============================================================================
// Default Values - Single Source of Truth for CLI and Server
// =============================================================================

const (
	// DefaultRadiusPix is the corridor half-width in tile pixels.
	DefaultRadiusPix = 130

	// DefaultMaxWidthPix and DefaultMaxHeightPix bound a plate before
	// rotation. They match a portrait A4 page at the default print density.
	DefaultMaxWidthPix  = 1000
	DefaultMaxHeightPix = 800

	// DefaultMaxDistPix is the longest segment kept without subdivision.
	DefaultMaxDistPix = 500

	// DefaultPathColor strokes the path over the map.
	DefaultPathColor = "#ff6400"
)

// =============================================================================
// Options - Pipeline Configuration
// =============================================================================

// Options contains all configuration for a plate run.
// This struct supports JSON serialization for API requests.
type Options struct {
	RadiusPix    int `json:"radius_pix,omitempty"`
	MaxWidthPix  int `json:"max_width_pix,omitempty"`
	MaxHeightPix int `json:"max_height_pix,omitempty"`
	MaxDistPix   int `json:"max_dist_pix,omitempty"`

	// PathColor is a hex colour or a colour name; "none" leaves the path
	// undrawn.
	PathColor string `json:"path_color,omitempty"`

	// SkipRotation keeps every plate north-up (default: false = rotate).
	SkipRotation bool `json:"skip_rotation,omitempty"`

	// Runtime options (not serialized)
	Logger *log.Logger `json:"-"`

	// validated tracks whether ValidateAndSetDefaults has been called.
	validated bool
	pathColor color.Color
}

// ValidateAndSetDefaults applies defaults and checks the result.
// This method is idempotent - calling it multiple times has the same effect as calling it once.
func (o *Options) ValidateAndSetDefaults() error {
	if o.validated {
		return nil
	}
	o.SetDefaults()

	if o.RadiusPix < 0 {
		return pmerrors.New(pmerrors.ErrCodeInvalidInput, "radius must be positive, got %d", o.RadiusPix)
	}
	if o.MaxWidthPix < 0 || o.MaxHeightPix < 0 {
		return pmerrors.New(pmerrors.ErrCodeInvalidInput, "plate size must be positive, got %dx%d", o.MaxWidthPix, o.MaxHeightPix)
	}
	if o.MaxDistPix < 0 {
		return pmerrors.New(pmerrors.ErrCodeInvalidInput, "max segment length must be positive, got %d", o.MaxDistPix)
	}
	if d := 2 * o.RadiusPix; d > o.MaxWidthPix || d > o.MaxHeightPix {
		return pmerrors.New(pmerrors.ErrCodeInvalidInput,
			"corridor width %dpx does not fit a %dx%d plate", d, o.MaxWidthPix, o.MaxHeightPix)
	}

	c, err := plate.ParseColor(o.PathColor)
	if err != nil {
		return err
	}
	o.pathColor = c
	o.validated = true
	return nil
}

// SetDefaults fills zero fields with their defaults.
func (o *Options) SetDefaults() {
	if o.RadiusPix == 0 {
		o.RadiusPix = DefaultRadiusPix
	}
	if o.MaxWidthPix == 0 {
		o.MaxWidthPix = DefaultMaxWidthPix
	}
	if o.MaxHeightPix == 0 {
		o.MaxHeightPix = DefaultMaxHeightPix
	}
	if o.MaxDistPix == 0 {
		o.MaxDistPix = DefaultMaxDistPix
	}
	if o.PathColor == "" {
		o.PathColor = DefaultPathColor
	}
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
}

// ShouldRotate returns whether plates are turned to shorten them.
func (o *Options) ShouldRotate() bool {
	return !o.SkipRotation
}

// Params returns the chunking parameters for a source with the given tile
// size.
func (o *Options) Params(tileSize int) corridor.Params {
	return corridor.Params{
		RadiusPix:    o.RadiusPix,
		MaxWidthPix:  o.MaxWidthPix,
		MaxHeightPix: o.MaxHeightPix,
		MaxDistPix:   o.MaxDistPix,
		TileSize:     tileSize,
	}
}

// Color returns the parsed path colour, nil when the path is not drawn.
// It is only meaningful after ValidateAndSetDefaults.
func (o *Options) Color() color.Color {
	return o.pathColor
}
