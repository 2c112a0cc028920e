package tiles

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"

	"github.com/charmbracelet/log"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/pathmap/pkg/geo"
)

// DefaultWorkers is the number of tiles a [Mosaic] fetches at once.
const DefaultWorkers = 10

// MosaicOptions configures a [Mosaic].
type MosaicOptions struct {
	Zoom     int
	TileSize int
	// Workers bounds concurrent fetches; 1 fetches sequentially.
	Workers int
	Logger  *log.Logger
}

// Mosaic is a [Source] that stitches whole tiles and trims them to the
// requested rectangle.
type Mosaic struct {
	fetcher  Fetcher
	zoom     int
	tileSize int
	workers  int
	logger   *log.Logger
}

// NewMosaic creates a mosaic over f. A zero TileSize means 256 and a
// non-positive Workers means [DefaultWorkers].
func NewMosaic(f Fetcher, opts MosaicOptions) *Mosaic {
	if opts.TileSize <= 0 {
		opts.TileSize = 256
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	return &Mosaic{
		fetcher:  f,
		zoom:     opts.Zoom,
		tileSize: opts.TileSize,
		workers:  opts.Workers,
		logger:   opts.Logger,
	}
}

// TileSize implements [Source].
func (m *Mosaic) TileSize() int { return m.tileSize }

// FetchRect implements [Source]. Every tile overlapping box is fetched, at
// most Workers at a time; the first failure cancels the remaining fetches.
// Tiles are pasted only after all of them have arrived.
func (m *Mosaic) FetchRect(ctx context.Context, box geo.Box) (image.Image, error) {
	ts := m.tileSize
	tx1, ty1 := int(math.Floor(box.Min[0])), int(math.Floor(box.Min[1]))
	tx2, ty2 := int(math.Floor(box.Max[0])), int(math.Floor(box.Max[1]))

	// Offset of box.Min inside its tile.
	xdiff := int(float64(ts) * (box.Min[0] - float64(tx1)))
	ydiff := int(float64(ts) * (box.Min[1] - float64(ty1)))

	cols, rows := tx2-tx1+1, ty2-ty1+1
	imgs := make([]image.Image, cols*rows)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)
schedule:
	for row := range rows {
		for col := range cols {
			if gctx.Err() != nil {
				break schedule
			}
			t := Tile{Z: m.zoom, X: tx1 + col, Y: ty1 + row}
			i := row*cols + col
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				data, err := m.fetcher.FetchTile(gctx, t)
				if err != nil {
					return fmt.Errorf("tile %s: %w", t, err)
				}
				img, err := decode(data)
				if err != nil {
					return fmt.Errorf("tile %s: %w", t, err)
				}
				imgs[i] = img
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.logger.Debug("mosaic fetched", "tiles", len(imgs), "cols", cols, "rows", rows)

	dst := image.NewRGBA(image.Rect(0, 0, box.WidthPix(ts), box.HeightPix(ts)))
	for i, img := range imgs {
		at := image.Pt((i%cols)*ts-xdiff, (i/cols)*ts-ydiff)
		b := img.Bounds()
		draw.Draw(dst, image.Rectangle{Min: at, Max: at.Add(b.Size())}, img, b.Min, draw.Src)
	}
	return dst, nil
}

func decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return img, nil
}

var _ Source = (*Mosaic)(nil)
