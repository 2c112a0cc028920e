package plate

import (
	"image/color"
	"maps"
	"regexp"
	"slices"
	"strings"

	"github.com/gogpu/gg"

	pmerrors "github.com/matzehuels/pathmap/pkg/errors"
)

// NoColor disables the centerline.
const NoColor = "none"

var hexColor = regexp.MustCompile(`^#?([0-9a-fA-F]{3,4}|[0-9a-fA-F]{6}|[0-9a-fA-F]{8})$`)

var namedColors = map[string]string{
	"black":   "#000000",
	"white":   "#ffffff",
	"red":     "#ff0000",
	"green":   "#008000",
	"blue":    "#0000ff",
	"orange":  "#ff6400",
	"yellow":  "#ffff00",
	"magenta": "#ff00ff",
	"purple":  "#800080",
	"cyan":    "#00ffff",
}

// ColorNames lists the colour names ParseColor accepts, sorted.
func ColorNames() []string {
	return slices.Sorted(maps.Keys(namedColors))
}

// ParseColor reads a path colour: a hex value (#rgb, #rgba, #rrggbb,
// #rrggbbaa) or a basic colour name. "none" and the empty string yield nil.
func ParseColor(s string) (color.Color, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == NoColor {
		return nil, nil
	}
	if hex, ok := namedColors[s]; ok {
		s = hex
	}
	if !hexColor.MatchString(s) {
		return nil, pmerrors.New(pmerrors.ErrCodeInvalidColor, "invalid path colour %q", s)
	}
	return gg.Hex(s).Color(), nil
}
