package corridor

import (
	"math"

	"github.com/matzehuels/pathmap/pkg/geo"
)

// Corridor is the region within Radius of the polyline through Points.
// A single point yields a disk.
type Corridor struct {
	Points []geo.TileCoord
	Radius float64
}

// Bounds returns the axis-aligned bounding box of the corridor.
func (c Corridor) Bounds() geo.Box {
	return geo.BoxOf(c.Points).Pad(c.Radius)
}

// RotatedBounds returns the bounding box of the corridor after rotating it by
// deg degrees about the centre of its unrotated bounds.
func (c Corridor) RotatedBounds(deg float64) geo.Box {
	if len(c.Points) == 0 {
		return geo.Box{}
	}
	origin := c.Bounds().Center()
	rotated := make([]geo.TileCoord, len(c.Points))
	for i, p := range c.Points {
		rotated[i] = p.RotateAbout(origin, deg)
	}
	return geo.BoxOf(rotated).Pad(c.Radius)
}

// CandidateAngles is the set of rotations [BestAngle] considers, in degrees:
// every multiple of 5 from -90 up to and excluding 90.
var CandidateAngles = func() []float64 {
	var angles []float64
	for a := -90; a < 90; a += 5 {
		angles = append(angles, float64(a))
	}
	return angles
}()

// rotationPenalty is charged per degree of rotation, in tile units, so that
// among equally short orientations the least rotated one wins.
const rotationPenalty = 0.01

// BestAngle returns the raster rotation, in degrees counter-clockwise, that
// minimises the corridor's height while keeping its width below maxWidth
// (tile units). It returns 0 when no candidate is narrow enough.
//
// The search runs on the geometry, whose rotation sense is opposite to the
// raster's because tile space grows downwards, so the winning geometric
// angle is negated before it is returned.
func BestAngle(c Corridor, maxWidth float64) float64 {
	best := 0.0
	lowest := math.Inf(1)
	for _, angle := range CandidateAngles {
		b := c.RotatedBounds(angle)
		if b.Width() >= maxWidth {
			continue
		}
		penalty := b.Height() + math.Abs(angle)*rotationPenalty
		if penalty < lowest {
			lowest = penalty
			best = angle
		}
	}
	if best == 0 {
		return 0
	}
	return -best
}
