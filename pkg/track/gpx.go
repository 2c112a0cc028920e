package track

import (
	"github.com/tkrajina/gpxgo/gpx"

	pmerrors "github.com/matzehuels/pathmap/pkg/errors"
	"github.com/matzehuels/pathmap/pkg/geo"
)

// ParseGPX returns the track points of a GPX document. When it holds no
// track points, route points are used, and failing those its waypoints.
func ParseGPX(data []byte) ([]geo.GeoPoint, error) {
	doc, err := gpx.ParseBytes(data)
	if err != nil {
		return nil, pmerrors.Wrap(pmerrors.ErrCodeInvalidTrack, err, "parse gpx")
	}

	var pts []geo.GeoPoint
	for _, t := range doc.Tracks {
		for _, s := range t.Segments {
			pts = appendGPX(pts, s.Points)
		}
	}
	if len(pts) == 0 {
		for _, r := range doc.Routes {
			pts = appendGPX(pts, r.Points)
		}
	}
	if len(pts) == 0 {
		pts = appendGPX(pts, doc.Waypoints)
	}
	return pts, nil
}

func appendGPX(dst []geo.GeoPoint, src []gpx.GPXPoint) []geo.GeoPoint {
	for _, p := range src {
		dst = append(dst, geo.LonLat(p.Longitude, p.Latitude))
	}
	return dst
}
