package geo

import "fmt"

// Normalize projects every point of a geographic path into tile space,
// keeping order and length. The first projection failure aborts the whole
// path; the returned error wraps it unchanged so callers can still match
// [ErrOutOfDomain] with errors.Is.
func Normalize(points []GeoPoint, proj Projection) ([]TileCoord, error) {
	out := make([]TileCoord, len(points))
	for i, p := range points {
		c, err := proj.Project(p)
		if err != nil {
			return nil, fmt.Errorf("point %d: %w", i, err)
		}
		out[i] = c
	}
	return out, nil
}
