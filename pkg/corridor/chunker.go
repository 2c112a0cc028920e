package corridor

import (
	"errors"
	"fmt"

	"github.com/matzehuels/pathmap/pkg/geo"
)

// Params sizes the bites produced by a [Chunker]. All lengths are pixels of
// the tile source; TileSize converts them to tile units.
type Params struct {
	RadiusPix    int
	MaxWidthPix  int
	MaxHeightPix int
	MaxDistPix   int
	TileSize     int
}

// Radius returns the corridor half-width in tile units.
func (p Params) Radius() float64 {
	return float64(p.RadiusPix) / float64(p.TileSize)
}

// Validate checks that every size is positive.
// A radius larger than the maximum plate size is allowed; such a path is
// emitted as single-point bites.
func (p Params) Validate() error {
	var errs []error
	if p.TileSize <= 0 {
		errs = append(errs, fmt.Errorf("tile size must be positive, got %d", p.TileSize))
	}
	if p.RadiusPix < 0 {
		errs = append(errs, fmt.Errorf("radius must not be negative, got %d", p.RadiusPix))
	}
	if p.MaxWidthPix <= 0 || p.MaxHeightPix <= 0 {
		errs = append(errs, fmt.Errorf("max plate size must be positive, got %dx%d", p.MaxWidthPix, p.MaxHeightPix))
	}
	if p.MaxDistPix <= 0 {
		errs = append(errs, fmt.Errorf("max segment length must be positive, got %d", p.MaxDistPix))
	}
	return errors.Join(errs...)
}

// Bite is a run of consecutive path points together with the tile-space box
// that covers them expanded by the corridor radius.
type Bite struct {
	Points []geo.TileCoord
	Box    geo.Box
}

// Degenerate reports whether the bite has no segment to draw.
func (b Bite) Degenerate() bool { return len(b.Points) < 2 }

// Corridor returns the capsule union around the bite's points.
func (b Bite) Corridor(radius float64) Corridor {
	return Corridor{Points: b.Points, Radius: radius}
}

// Chunker produces bites lazily. It is single-use: once Next has returned
// false it keeps doing so.
type Chunker struct {
	params Params
	radius float64

	// stack holds the unconsumed points in reverse order; the top is the next
	// candidate.
	stack []geo.TileCoord
}

// NewChunker prepares a chunker over path. The path itself is not modified.
func NewChunker(path []geo.TileCoord, p Params) (*Chunker, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	stack := make([]geo.TileCoord, len(path))
	for i, c := range path {
		stack[len(path)-1-i] = c
	}
	return &Chunker{params: p, radius: p.Radius(), stack: stack}, nil
}

// Next returns the next bite, or false when the path is exhausted.
func (c *Chunker) Next() (Bite, bool) {
	if len(c.stack) == 0 {
		return Bite{}, false
	}

	first := c.pop()
	bite := Bite{
		Points: []geo.TileCoord{first},
		Box:    geo.BoxAround(first, c.radius),
	}
	if c.overflows(bite.Box) {
		// The radius alone exceeds the plate; emit the point on its own and
		// move on without re-queueing it.
		return bite, true
	}

	for len(c.stack) > 0 {
		last := bite.Points[len(bite.Points)-1]
		for last.DistPix(c.peek(), c.params.TileSize) > float64(c.params.MaxDistPix) {
			c.push(geo.Midpoint(last, c.peek()))
		}

		next := c.peek()
		trial := bite.Box.Union(geo.BoxAround(next, c.radius))
		if !c.overflows(trial) {
			bite.Points = append(bite.Points, c.pop())
			bite.Box = trial
			continue
		}

		if len(bite.Points) > 1 {
			// Hand the boundary point to the next bite.
			c.push(last)
			break
		}

		// A lone start point whose neighbour does not fit: move the
		// neighbour closer until it does.
		mid := geo.Midpoint(last, next)
		if mid == next || mid == last {
			// Float resolution exhausted.
			break
		}
		c.push(mid)
	}
	return bite, true
}

// All drains the chunker into a slice.
func (c *Chunker) All() []Bite {
	var bites []Bite
	for b, ok := c.Next(); ok; b, ok = c.Next() {
		bites = append(bites, b)
	}
	return bites
}

func (c *Chunker) overflows(b geo.Box) bool {
	return b.WidthPix(c.params.TileSize) > c.params.MaxWidthPix ||
		b.HeightPix(c.params.TileSize) > c.params.MaxHeightPix
}

func (c *Chunker) peek() geo.TileCoord { return c.stack[len(c.stack)-1] }

func (c *Chunker) pop() geo.TileCoord {
	p := c.stack[len(c.stack)-1]
	c.stack = c.stack[:len(c.stack)-1]
	return p
}

func (c *Chunker) push(p geo.TileCoord) { c.stack = append(c.stack, p) }
