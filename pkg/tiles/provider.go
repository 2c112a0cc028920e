package tiles

import (
	"fmt"
	"maps"
	"slices"

	"github.com/matzehuels/pathmap/pkg/geo"
)

// Provider describes a tile set: where its tiles live and how geographic
// points map onto its grid.
type Provider struct {
	Name     string
	URL      string
	Zoom     int
	TileSize int
	// Calibration, when set, replaces the standard slippy-map projection.
	Calibration *geo.Affine
	Attribution string
}

// Projection returns the projection that lands points on the provider's
// tile grid.
func (p Provider) Projection() geo.Projection {
	if p.Calibration != nil {
		return *p.Calibration
	}
	return geo.XYZ{Zoom: uint32(p.Zoom)}
}

// Providers are the built-in tile sets.
var Providers = map[string]Provider{
	"mapy-turist": {
		Name:        "mapy-turist",
		URL:         "https://m3.mapserver.mapy.cz/wturist-m/{z}-{x}-{y}",
		Zoom:        13,
		TileSize:    256,
		Calibration: &geo.DefaultCalibration,
		Attribution: "© Seznam.cz, © OpenStreetMap contributors",
	},
	"osm": {
		Name:        "osm",
		URL:         "https://tile.openstreetmap.org/{z}/{x}/{y}.png",
		Zoom:        15,
		TileSize:    256,
		Attribution: "© OpenStreetMap contributors",
	},
	"opentopomap": {
		Name:        "opentopomap",
		URL:         "https://tile.opentopomap.org/{z}/{x}/{y}.png",
		Zoom:        14,
		TileSize:    256,
		Attribution: "© OpenTopoMap (CC-BY-SA), © OpenStreetMap contributors",
	},
}

// DefaultProvider names the provider used when none is configured.
const DefaultProvider = "mapy-turist"

// LookupProvider returns the named built-in provider.
func LookupProvider(name string) (Provider, error) {
	p, ok := Providers[name]
	if !ok {
		return Provider{}, fmt.Errorf("unknown tile provider %q (known: %v)", name, ProviderNames())
	}
	return p, nil
}

// ProviderNames lists the built-in providers in sorted order.
func ProviderNames() []string {
	return slices.Sorted(maps.Keys(Providers))
}
