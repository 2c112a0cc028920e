package plate

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"

	"github.com/matzehuels/pathmap/pkg/corridor"
	"github.com/matzehuels/pathmap/pkg/geo"
)

// RotateCrop turns p by angle degrees counter-clockwise and trims it to the
// bounds of the rotated corridor c. The corridor must be the one p was
// rasterized from. Pixels exposed by the rotation become white.
//
// An angle of zero returns p unchanged.
func RotateCrop(p Plate, c corridor.Corridor, angle float64, tileSize int) Plate {
	if angle == 0 {
		return p
	}
	ts := float64(tileSize)

	rotated := imaging.Rotate(p.Image, angle, color.Transparent)

	// Tile space has y pointing down, so a counter-clockwise turn of the
	// raster is a negative turn of the geometry.
	geomAngle := -angle
	target := c.RotatedBounds(geomAngle)

	// The rotated canvas is the bounding box of the rotated plate box; find
	// its top-left corner from the two extreme corners.
	center := p.Box.Center()
	var left, top geo.TileCoord
	if angle > 0 {
		left = p.Box.TopLeft().RotateAbout(center, geomAngle)
		top = p.Box.TopRight().RotateAbout(center, geomAngle)
	} else {
		left = p.Box.BottomLeft().RotateAbout(center, geomAngle)
		top = p.Box.TopLeft().RotateAbout(center, geomAngle)
	}

	bx, by := target.Min[0]-left.X(), target.Min[1]-top.Y()
	rect := image.Rect(
		int(bx*ts), int(by*ts),
		int((bx+target.Width())*ts), int((by+target.Height())*ts),
	)
	cropped := imaging.Crop(rotated, rect)
	out := imaging.Overlay(imaging.New(rect.Dx(), rect.Dy(), color.White), cropped, image.Pt(0, 0), 1.0)

	return Plate{Image: out, Box: target, Angle: angle, Index: p.Index}
}
