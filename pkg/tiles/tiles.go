// Package tiles supplies map imagery for rectangles of tile space.
//
// The plate pipeline only depends on [Source]. The rest of the package builds
// the usual Source: a [Mosaic] that stitches square tiles obtained from a
// [Fetcher]. Fetchers compose:
//
//	http, _ := tiles.NewHTTPFetcher(provider.URL, tiles.HTTPOptions{Token: token})
//	cached := tiles.NewCachedFetcher(http, store, cache.NewDefaultKeyer(), provider.URL, cache.TTLTile)
//	src := tiles.NewMosaic(cached, tiles.MosaicOptions{Zoom: provider.Zoom, TileSize: provider.TileSize})
//
// Fetchers return the encoded tile bytes (PNG, JPEG or WebP) so that caches
// store exactly what the server sent; the mosaic decodes them.
package tiles

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/matzehuels/pathmap/pkg/geo"
)

var (
	// ErrNotFound is returned when the server has no tile at the address.
	ErrNotFound = errors.New("tile not found")

	// ErrNetwork is returned for HTTP failures (timeouts, connection errors, 5xx responses).
	ErrNetwork = errors.New("network error")

	// ErrDecode is returned when tile bytes are not a supported image.
	ErrDecode = errors.New("undecodable tile")
)

// Source renders the map for a tile-space rectangle.
//
// FetchRect returns an image of box.WidthPix(TileSize()) by
// box.HeightPix(TileSize()) pixels whose origin is box.Min.
type Source interface {
	FetchRect(ctx context.Context, box geo.Box) (image.Image, error)
	TileSize() int
}

// Tile addresses one tile of a grid.
type Tile struct {
	Z, X, Y int
}

func (t Tile) String() string { return fmt.Sprintf("%d/%d/%d", t.Z, t.X, t.Y) }

// Fetcher retrieves the encoded bytes of a single tile.
type Fetcher interface {
	FetchTile(ctx context.Context, t Tile) ([]byte, error)
}

// FetcherFunc adapts a function to [Fetcher].
type FetcherFunc func(ctx context.Context, t Tile) ([]byte, error)

// FetchTile calls f(ctx, t).
func (f FetcherFunc) FetchTile(ctx context.Context, t Tile) ([]byte, error) { return f(ctx, t) }
