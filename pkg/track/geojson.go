package track

import (
	"encoding/json"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	pmerrors "github.com/matzehuels/pathmap/pkg/errors"
	"github.com/matzehuels/pathmap/pkg/geo"
)

// ParseGeoJSON returns the path described by a GeoJSON document: a
// FeatureCollection, a single Feature or a bare geometry. Line strings are
// concatenated in document order. Point features count only when the
// document has no lines, so a track exported with waypoint markers keeps
// its line.
func ParseGeoJSON(data []byte) ([]geo.GeoPoint, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, pmerrors.Wrap(pmerrors.ErrCodeInvalidTrack, err, "parse geojson")
	}

	var geoms []orb.Geometry
	switch head.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, pmerrors.Wrap(pmerrors.ErrCodeInvalidTrack, err, "parse geojson")
		}
		for _, f := range fc.Features {
			geoms = append(geoms, f.Geometry)
		}
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, pmerrors.Wrap(pmerrors.ErrCodeInvalidTrack, err, "parse geojson")
		}
		geoms = append(geoms, f.Geometry)
	default:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, pmerrors.Wrap(pmerrors.ErrCodeInvalidTrack, err, "parse geojson")
		}
		geoms = append(geoms, g.Geometry())
	}

	var lines, points []geo.GeoPoint
	for _, g := range geoms {
		lines, points = collect(g, lines, points)
	}
	if len(lines) > 0 {
		return lines, nil
	}
	return points, nil
}

func collect(g orb.Geometry, lines, points []geo.GeoPoint) ([]geo.GeoPoint, []geo.GeoPoint) {
	switch g := g.(type) {
	case orb.LineString:
		lines = appendOrb(lines, g)
	case orb.MultiLineString:
		for _, ls := range g {
			lines = appendOrb(lines, ls)
		}
	case orb.Point:
		points = append(points, geo.GeoPoint(g))
	case orb.MultiPoint:
		points = appendOrb(points, g)
	case orb.Collection:
		for _, sub := range g {
			lines, points = collect(sub, lines, points)
		}
	}
	return lines, points
}

func appendOrb[S ~[]orb.Point](dst []geo.GeoPoint, src S) []geo.GeoPoint {
	for _, p := range src {
		dst = append(dst, geo.GeoPoint(p))
	}
	return dst
}
