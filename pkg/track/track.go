// Package track reads geographic paths from GPX and GeoJSON files.
//
// Every reader returns the points of the file in order, as longitude and
// latitude pairs, ready for [github.com/matzehuels/pathmap/pkg/pipeline].
// Multiple tracks, segments or line features are concatenated.
package track

import (
	"bytes"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	pmerrors "github.com/matzehuels/pathmap/pkg/errors"
	"github.com/matzehuels/pathmap/pkg/geo"
)

// Format names a track file format.
type Format string

const (
	FormatGPX     Format = "gpx"
	FormatGeoJSON Format = "geojson"
)

// extensions maps file extensions, without the dot, to formats.
var extensions = map[string]Format{
	"gpx":     FormatGPX,
	"xml":     FormatGPX,
	"geojson": FormatGeoJSON,
	"json":    FormatGeoJSON,
}

// Extensions lists the file extensions DetectFormat recognises, without
// the leading dot.
func Extensions() []string {
	return slices.Sorted(maps.Keys(extensions))
}

// maxTrackBytes caps the size of a track read into memory.
const maxTrackBytes = 64 << 20

// DetectFormat guesses the format from the file name, falling back to the
// first non-blank byte of data: '<' for GPX and '{' for GeoJSON.
func DetectFormat(name string, data []byte) (Format, error) {
	if f, ok := extensions[strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")]; ok {
		return f, nil
	}
	switch b := bytes.TrimSpace(data); {
	case len(b) > 0 && b[0] == '<':
		return FormatGPX, nil
	case len(b) > 0 && b[0] == '{':
		return FormatGeoJSON, nil
	}
	return "", pmerrors.New(pmerrors.ErrCodeUnsupported, "cannot tell the format of %q", name)
}

// Parse reads a track in the given format.
func Parse(data []byte, f Format) ([]geo.GeoPoint, error) {
	var (
		pts []geo.GeoPoint
		err error
	)
	switch f {
	case FormatGPX:
		pts, err = ParseGPX(data)
	case FormatGeoJSON:
		pts, err = ParseGeoJSON(data)
	default:
		return nil, pmerrors.New(pmerrors.ErrCodeUnsupported, "unsupported track format %q", f)
	}
	if err != nil {
		return nil, err
	}
	if len(pts) == 0 {
		return nil, pmerrors.New(pmerrors.ErrCodeInvalidTrack, "track has no points")
	}
	return pts, nil
}

// Read parses a track from r; name is used to detect the format.
func Read(r io.Reader, name string) ([]geo.GeoPoint, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxTrackBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read track: %w", err)
	}
	if len(data) > maxTrackBytes {
		return nil, pmerrors.New(pmerrors.ErrCodeInvalidTrack, "track larger than %d MiB", maxTrackBytes>>20)
	}
	f, err := DetectFormat(name, data)
	if err != nil {
		return nil, err
	}
	return Parse(data, f)
}

// ReadFile parses the track stored at path.
func ReadFile(path string) ([]geo.GeoPoint, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, pmerrors.Wrap(pmerrors.ErrCodeInvalidPath, err, "open track")
	}
	defer fh.Close()
	return Read(fh, path)
}
