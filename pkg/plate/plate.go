// Package plate draws the map corridor of a bite and orients the result for
// printing.
//
// A [Rasterizer] turns a [corridor.Bite] into a [Plate]: a white canvas the
// size of the bite's box on which only the pixels within the corridor radius
// of the path show the map. [RotateCrop] then turns the plate so the
// corridor is as short as possible and trims it to the rotated corridor.
// Both return new plates and never modify their input.
package plate

import (
	"image"

	"github.com/matzehuels/pathmap/pkg/geo"
)

// Plate is one page worth of corridor imagery.
type Plate struct {
	Image image.Image
	// Box is the tile-space region the image covers. After rotation it is the
	// box in the rotated frame.
	Box geo.Box
	// Angle is the applied rotation in degrees, counter-clockwise.
	Angle float64
	// Index is the position of the plate in its run, from zero.
	Index int
}

// Size returns the image dimensions in pixels.
func (p Plate) Size() image.Point { return p.Image.Bounds().Size() }
