package plate

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"io"

	"github.com/charmbracelet/log"
	"github.com/disintegration/imaging"
	"github.com/gogpu/gg"
	"golang.org/x/image/draw"

	"github.com/matzehuels/pathmap/pkg/corridor"
	pmerrors "github.com/matzehuels/pathmap/pkg/errors"
	"github.com/matzehuels/pathmap/pkg/geo"
	"github.com/matzehuels/pathmap/pkg/tiles"
)

// CenterlineWidth is the stroke width of the path drawn over the corridor.
const CenterlineWidth = 3

// Rasterizer composes corridor plates from a tile source.
type Rasterizer struct {
	Source    tiles.Source
	RadiusPix int
	// PathColor strokes the path on top of the map; nil leaves it out.
	PathColor color.Color
	Logger    *log.Logger
}

// Rasterize draws the corridor of b. The canvas matches b.Box in pixels and
// starts white; every segment fetches the map for its own capsule and copies
// it through a binary capsule mask, so overlapping capsules agree. A bite
// with a single point has no segment and yields a blank plate.
func (r *Rasterizer) Rasterize(ctx context.Context, b corridor.Bite) (Plate, error) {
	logger := r.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	ts := r.Source.TileSize()
	tsf := float64(ts)
	radius := float64(r.RadiusPix) / tsf
	origin := b.Box.TopLeft()

	canvas := imaging.New(b.Box.WidthPix(ts), b.Box.HeightPix(ts), color.White)

	for i := 1; i < len(b.Points); i++ {
		a, c := b.Points[i-1], b.Points[i]
		sub := geo.BoxAround(a, radius).Union(geo.BoxAround(c, radius))

		mosaic, err := r.Source.FetchRect(ctx, sub)
		if err != nil {
			return Plate{}, pmerrors.Wrap(pmerrors.ErrCodeFetch, err, "segment %d", i)
		}
		size := mosaic.Bounds().Size()

		ax, ay := a.Pix(sub.TopLeft(), ts)
		cx, cy := c.Pix(sub.TopLeft(), ts)
		mask, err := capsuleMask(size, ax, ay, cx, cy, float64(r.RadiusPix))
		if err != nil {
			return Plate{}, fmt.Errorf("segment %d mask: %w", i, err)
		}

		at := image.Pt(int((sub.Min[0]-origin[0])*tsf), int((sub.Min[1]-origin[1])*tsf))
		pasteMasked(canvas, at, mosaic, mask)
	}

	var img image.Image = canvas
	if r.PathColor != nil && len(b.Points) >= 2 {
		var err error
		if img, err = centerline(canvas, b.Points, origin, ts, r.PathColor); err != nil {
			return Plate{}, err
		}
	}
	logger.Debug("plate rasterized", "points", len(b.Points), "width", canvas.Rect.Dx(), "height", canvas.Rect.Dy())
	return Plate{Image: img, Box: b.Box}, nil
}

// capsuleMask draws the segment (ax,ay)-(cx,cy) buffered by r and returns a
// binary alpha mask of the given size: 255 inside, 0 outside.
func capsuleMask(size image.Point, ax, ay, cx, cy, r float64) (*image.Alpha, error) {
	out := image.NewAlpha(image.Rectangle{Max: size})
	if r <= 0 || size.X == 0 || size.Y == 0 {
		return out, nil
	}

	dc := gg.NewContext(size.X, size.Y)
	defer dc.Close()
	dc.SetColor(color.Black)
	dc.SetLineWidth(2 * r)
	dc.SetLineCap(gg.LineCapRound)
	dc.MoveTo(ax, ay)
	dc.LineTo(cx, cy)
	if err := dc.Stroke(); err != nil {
		return nil, err
	}
	for _, p := range [][2]float64{{ax, ay}, {cx, cy}} {
		dc.DrawCircle(p[0], p[1], r)
		if err := dc.Fill(); err != nil {
			return nil, err
		}
	}

	m := gg.NewMaskFromAlpha(dc.Image())
	for y := range size.Y {
		row := out.Pix[y*out.Stride:]
		for x := range size.X {
			if m.At(x, y) >= 128 {
				row[x] = 0xff
			}
		}
	}
	return out, nil
}

// pasteMasked copies src into dst at the pixels where mask is set, alpha
// included. Pixels outside the mask keep their value.
func pasteMasked(dst *image.NRGBA, at image.Point, src image.Image, mask *image.Alpha) {
	size := mask.Rect.Size()
	tile, ok := src.(*image.NRGBA)
	if !ok {
		tile = image.NewNRGBA(image.Rectangle{Max: size})
		draw.Draw(tile, tile.Rect, src, src.Bounds().Min, draw.Src)
	}
	sx, sy := tile.Rect.Min.X, tile.Rect.Min.Y

	for y := range size.Y {
		dy := at.Y + y
		if dy < dst.Rect.Min.Y || dy >= dst.Rect.Max.Y {
			continue
		}
		for x := range size.X {
			dx := at.X + x
			if mask.Pix[y*mask.Stride+x] == 0 || dx < dst.Rect.Min.X || dx >= dst.Rect.Max.X {
				continue
			}
			copy(dst.Pix[dst.PixOffset(dx, dy):][:4], tile.Pix[tile.PixOffset(sx+x, sy+y):][:4])
		}
	}
}

func centerline(canvas image.Image, points []geo.TileCoord, origin geo.TileCoord, ts int, c color.Color) (image.Image, error) {
	dc := gg.NewContextForImage(canvas)
	defer dc.Close()
	dc.SetColor(c)
	dc.SetLineWidth(CenterlineWidth)
	dc.SetLineCap(gg.LineCapRound)
	dc.SetLineJoin(gg.LineJoinRound)
	for i, p := range points {
		x, y := p.Pix(origin, ts)
		if i == 0 {
			dc.MoveTo(x, y)
		} else {
			dc.LineTo(x, y)
		}
	}
	if err := dc.Stroke(); err != nil {
		return nil, fmt.Errorf("centerline: %w", err)
	}
	return imaging.Clone(dc.Image()), nil
}
