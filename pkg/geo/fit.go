package geo

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// Sample pairs a geographic reference point with the tile-space position it
// is known to occupy on the target grid.
type Sample struct {
	Geo  GeoPoint
	Tile TileCoord
}

// ErrDegenerateFit is returned when the samples cannot determine a line,
// for instance when all of them share the same longitude.
var ErrDegenerateFit = errors.New("samples do not determine an affine fit")

// FitAffine derives Affine coefficients from reference samples with an
// ordinary least-squares fit per axis. At least two samples with distinct
// longitudes and latitudes are needed.
func FitAffine(samples []Sample) (Affine, error) {
	if len(samples) < 2 {
		return Affine{}, fmt.Errorf("%w: need at least 2 samples, got %d", ErrDegenerateFit, len(samples))
	}
	mx := make([]float64, len(samples))
	my := make([]float64, len(samples))
	tx := make([]float64, len(samples))
	ty := make([]float64, len(samples))
	for i, s := range samples {
		if err := checkDomain(s.Geo); err != nil {
			return Affine{}, fmt.Errorf("sample %d: %w", i, err)
		}
		m := project.WGS84.ToMercator(orb.Point(s.Geo))
		mx[i], my[i] = m[0], m[1]
		tx[i], ty[i] = s.Tile[0], s.Tile[1]
	}
	bx, err := leastSquares(mx, tx)
	if err != nil {
		return Affine{}, fmt.Errorf("x axis: %w", err)
	}
	by, err := leastSquares(my, ty)
	if err != nil {
		return Affine{}, fmt.Errorf("y axis: %w", err)
	}
	return Affine{BX: bx, BY: by}, nil
}

// leastSquares fits y = b0 + b1*x.
func leastSquares(x, y []float64) ([2]float64, error) {
	n := float64(len(x))
	var sx, sy float64
	for i := range x {
		sx += x[i]
		sy += y[i]
	}
	mx, my := sx/n, sy/n
	var sxx, sxy float64
	for i := range x {
		dx := x[i] - mx
		sxx += dx * dx
		sxy += dx * (y[i] - my)
	}
	if sxx == 0 {
		return [2]float64{}, ErrDegenerateFit
	}
	b1 := sxy / sxx
	return [2]float64{my - b1*mx, b1}, nil
}
