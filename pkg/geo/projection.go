package geo

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/project"
)

// ErrOutOfDomain is returned when a point cannot be projected, either because
// it is not a finite number or because it lies outside the web-mercator
// latitude band.
var ErrOutOfDomain = errors.New("coordinate outside projection domain")

// MaxLatitude is the northern (and, negated, southern) limit of web mercator.
const MaxLatitude = 85.05112877980659

// Projection maps geographic points to tile space.
type Projection interface {
	Project(p GeoPoint) (TileCoord, error)
}

// ProjectionFunc adapts a function to [Projection].
type ProjectionFunc func(GeoPoint) (TileCoord, error)

// Project calls f(p).
func (f ProjectionFunc) Project(p GeoPoint) (TileCoord, error) { return f(p) }

func checkDomain(p GeoPoint) error {
	lon, lat := p.Lon(), p.Lat()
	if math.IsNaN(lon) || math.IsNaN(lat) || math.IsInf(lon, 0) || math.IsInf(lat, 0) {
		return fmt.Errorf("%w: (%v, %v) is not finite", ErrOutOfDomain, lon, lat)
	}
	if lon < -180 || lon > 180 {
		return fmt.Errorf("%w: longitude %v", ErrOutOfDomain, lon)
	}
	if lat < -MaxLatitude || lat > MaxLatitude {
		return fmt.Errorf("%w: latitude %v", ErrOutOfDomain, lat)
	}
	return nil
}

// Affine projects to spherical mercator (EPSG:3857) and then applies a
// per-axis linear fit to reach tile space:
//
//	x = BX[0] + BX[1]*mx
//	y = BY[0] + BY[1]*my
//
// The coefficients are calibration data for one particular tile grid; see
// [FitAffine] to derive them from reference points.
type Affine struct {
	BX [2]float64 `json:"bx" mapstructure:"bx" toml:"bx"`
	BY [2]float64 `json:"by" mapstructure:"by" toml:"by"`
}

// DefaultCalibration maps onto the zoom 13 grid of mapy.cz-style servers.
var DefaultCalibration = Affine{
	BX: [2]float64{4.09597540e+03, 2.04431397e-04},
	BY: [2]float64{4.09571512e+03, -2.04373254e-04},
}

// Project implements [Projection].
func (a Affine) Project(p GeoPoint) (TileCoord, error) {
	if err := checkDomain(p); err != nil {
		return TileCoord{}, err
	}
	m := project.WGS84.ToMercator(orb.Point(p))
	return TileCoord{a.BX[0] + a.BX[1]*m[0], a.BY[0] + a.BY[1]*m[1]}, nil
}

// XYZ is the standard slippy-map grid at a fixed zoom level.
type XYZ struct {
	Zoom uint32
}

// Project implements [Projection].
func (x XYZ) Project(p GeoPoint) (TileCoord, error) {
	if err := checkDomain(p); err != nil {
		return TileCoord{}, err
	}
	return TileCoord(maptile.Fraction(orb.Point(p), maptile.Zoom(x.Zoom))), nil
}
