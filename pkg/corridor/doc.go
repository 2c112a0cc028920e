// Package corridor splits a tile-space path into size-bounded bites and
// answers geometric questions about the corridor around each bite.
//
// # Bites
//
// A [Chunker] walks the path once, front to back, and emits [Bite] values on
// demand. Each bite is a run of consecutive points whose radius-expanded
// bounding box fits within the configured maximum plate size in pixels.
// Consecutive bites share their boundary point so the corridors they cover
// join without gaps. Segments longer than the configured maximum distance are
// split at their midpoint, repeatedly, before a point is considered, so that
// a long straight stretch can still be divided across plates.
//
//	ch, err := corridor.NewChunker(path, corridor.Params{
//	    RadiusPix:    130,
//	    MaxWidthPix:  1000,
//	    MaxHeightPix: 800,
//	    MaxDistPix:   500,
//	    TileSize:     256,
//	})
//	for bite, ok := ch.Next(); ok; bite, ok = ch.Next() {
//	    // rasterize bite
//	}
//
// # Corridors
//
// A [Corridor] is the union of capsules (segments buffered by the radius,
// with round caps) along a bite. Because every capsule is the Minkowski sum
// of a segment and a disk, the axis-aligned bounds of the rotated corridor
// are exactly the bounds of the rotated points padded by the radius; no
// polygon approximation is needed.
//
// [BestAngle] searches a fixed set of rotations for the one that makes the
// corridor as short as possible while keeping it narrower than the plate.
package corridor
