// Package cache stores fetched map tiles and other byte payloads.
//
// Three backends implement [Cache]: [FileCache] for the CLI (one file per
// entry under the user cache directory), [RedisCache] for the HTTP server
// where several processes share tiles, and [NullCache] when caching is
// disabled. Keys are produced by a [Keyer] so that the layout of the key
// space lives in one place.
package cache

import (
	"context"
	"fmt"
	"time"
)

// Cache is a byte store with per-entry expiry.
//
// Get reports a miss as (nil, false, nil); an error means the backend itself
// failed. A ttl of zero stores the entry without expiry.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Default lifetimes.
const (
	// TTLTile keeps map tiles for a month; the underlying maps change slowly.
	TTLTile = 30 * 24 * time.Hour

	// TTLToken matches the lifetime tile servers typically grant access tokens.
	TTLToken = time.Minute
)

// Keyer builds cache keys.
type Keyer interface {
	// TileKey addresses one tile of one source at a zoom level.
	TileKey(source string, z, x, y int) string

	// TokenKey addresses the access token of one source.
	TokenKey(source string) string
}

// DefaultKeyer hashes the source identity (usually its URL template) so that
// keys stay short and free of path separators.
type DefaultKeyer struct{}

// NewDefaultKeyer returns the standard keyer.
func NewDefaultKeyer() Keyer { return DefaultKeyer{} }

// TileKey implements [Keyer].
func (DefaultKeyer) TileKey(source string, z, x, y int) string {
	return fmt.Sprintf("%s:%d/%d/%d", hashKey("tile", source), z, x, y)
}

// TokenKey implements [Keyer].
func (DefaultKeyer) TokenKey(source string) string {
	return hashKey("token", source)
}
