// Package geo holds the coordinate types shared by the plate pipeline:
// geographic input points, real-valued tile-space coordinates, and the
// axis-aligned tile-space boxes that bites and mosaics are measured in.
//
// Tile space is a planar grid where one unit equals one map tile. The integer
// part of a coordinate selects a tile, the fractional part an offset inside
// it. Pixel quantities are always derived by multiplying with the tile size
// of the active tile source and truncating toward zero.
package geo

import (
	"math"

	"github.com/paulmach/orb"
	"golang.org/x/image/math/f64"
)

// GeoPoint is a longitude/latitude pair in degrees.
type GeoPoint orb.Point

// LonLat builds a GeoPoint.
func LonLat(lon, lat float64) GeoPoint { return GeoPoint{lon, lat} }

// Lon returns the longitude.
func (p GeoPoint) Lon() float64 { return p[0] }

// Lat returns the latitude.
func (p GeoPoint) Lat() float64 { return p[1] }

// TileCoord is a real-valued position in tile space. Y grows downwards.
type TileCoord orb.Point

// XY builds a TileCoord.
func XY(x, y float64) TileCoord { return TileCoord{x, y} }

// X returns the horizontal tile coordinate.
func (c TileCoord) X() float64 { return c[0] }

// Y returns the vertical tile coordinate.
func (c TileCoord) Y() float64 { return c[1] }

// Midpoint returns the point halfway between a and b.
func Midpoint(a, b TileCoord) TileCoord {
	return TileCoord{(a[0] + b[0]) / 2, (a[1] + b[1]) / 2}
}

// DistPix is the euclidean distance between c and o in pixels.
// Both axes are scaled by the same tile size since tiles are square.
func (c TileCoord) DistPix(o TileCoord, tileSize int) float64 {
	ts := float64(tileSize)
	return math.Hypot((c[0]-o[0])*ts, (c[1]-o[1])*ts)
}

// Pix converts c to pixel coordinates relative to origin.
func (c TileCoord) Pix(origin TileCoord, tileSize int) (float64, float64) {
	ts := float64(tileSize)
	return (c[0] - origin[0]) * ts, (c[1] - origin[1]) * ts
}

// RotateAbout rotates c by deg degrees around origin. Positive angles turn
// counter-clockwise in a y-up frame, which is clockwise on screen.
func (c TileCoord) RotateAbout(origin TileCoord, deg float64) TileCoord {
	return apply(rotation(origin, deg), c)
}

func rotation(origin TileCoord, deg float64) f64.Aff3 {
	sin, cos := math.Sincos(deg * math.Pi / 180)
	ox, oy := origin[0], origin[1]
	return f64.Aff3{
		cos, -sin, ox - ox*cos + oy*sin,
		sin, cos, oy - ox*sin - oy*cos,
	}
}

func apply(m f64.Aff3, c TileCoord) TileCoord {
	return TileCoord{
		m[0]*c[0] + m[1]*c[1] + m[2],
		m[3]*c[0] + m[4]*c[1] + m[5],
	}
}

// Box is an axis-aligned rectangle in tile space.
type Box orb.Bound

// BoxAround returns the square of half-size r centred on c.
func BoxAround(c TileCoord, r float64) Box {
	return Box(orb.Bound{
		Min: orb.Point{c[0] - r, c[1] - r},
		Max: orb.Point{c[0] + r, c[1] + r},
	})
}

// BoxOf returns the tightest box containing every point.
// It returns the zero Box for an empty slice.
func BoxOf(points []TileCoord) Box {
	if len(points) == 0 {
		return Box{}
	}
	b := orb.Bound{Min: orb.Point(points[0]), Max: orb.Point(points[0])}
	for _, p := range points[1:] {
		b = b.Extend(orb.Point(p))
	}
	return Box(b)
}

// Union returns the smallest box containing both b and o.
func (b Box) Union(o Box) Box { return Box(orb.Bound(b).Union(orb.Bound(o))) }

// Pad grows the box by d on every side.
func (b Box) Pad(d float64) Box { return Box(orb.Bound(b).Pad(d)) }

// TopLeft is the minimum corner.
func (b Box) TopLeft() TileCoord { return TileCoord(b.Min) }

// TopRight is the corner with maximum x and minimum y.
func (b Box) TopRight() TileCoord { return TileCoord{b.Max[0], b.Min[1]} }

// BottomLeft is the corner with minimum x and maximum y.
func (b Box) BottomLeft() TileCoord { return TileCoord{b.Min[0], b.Max[1]} }

// Center is the midpoint of the box.
func (b Box) Center() TileCoord { return TileCoord(orb.Bound(b).Center()) }

// Width is the horizontal extent in tile units.
func (b Box) Width() float64 { return b.Max[0] - b.Min[0] }

// Height is the vertical extent in tile units.
func (b Box) Height() float64 { return b.Max[1] - b.Min[1] }

// WidthPix is the width in whole pixels, truncated.
func (b Box) WidthPix(tileSize int) int { return int(b.Width() * float64(tileSize)) }

// HeightPix is the height in whole pixels, truncated.
func (b Box) HeightPix(tileSize int) int { return int(b.Height() * float64(tileSize)) }
