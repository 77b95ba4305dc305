package citynet

import (
	"strings"

	geojson "github.com/paulmach/go.geojson"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/pkg/errors"
)

// BoundaryKind is the administrative level of a boundary polygon.
type BoundaryKind uint8

const (
	BOUNDARY_CITY = BoundaryKind(iota + 1)
	BOUNDARY_WARD
	BOUNDARY_NEIGHBOURHOOD
)

func (iotaIdx BoundaryKind) String() string {
	return [...]string{"city", "ward", "neighbourhood"}[iotaIdx-1]
}

// Boundary is one administrative polygon. Immutable after load; one active
// boundary selects the build extent.
type Boundary struct {
	ID       string
	Name     string
	Kind     BoundaryKind
	Geometry orb.MultiPolygon

	// cityWide short-circuits every containment test to true. That is an
	// optimization for city-scale builds, not a correctness special case.
	cityWide bool
}

// CityWideBoundary covers everything without geometric tests.
func CityWideBoundary() *Boundary {
	return &Boundary{ID: "city", Name: "city", Kind: BOUNDARY_CITY, cityWide: true}
}

// OverlapFraction returns the fraction of the line's length lying inside the
// boundary. Sub-segments are attributed by their middle point.
func (boundary *Boundary) OverlapFraction(line orb.LineString) float64 {
	if boundary.cityWide {
		return 1.0
	}
	if len(line) < 2 {
		return 0.0
	}
	total := 0.0
	inside := 0.0
	for i := 1; i < len(line); i++ {
		length := greatCircleDistance(line[i-1], line[i])
		total += length
		if planar.MultiPolygonContains(boundary.Geometry, middlePointSegment(line[i-1], line[i])) {
			inside += length
		}
	}
	if total == 0.0 {
		return 0.0
	}
	return inside / total
}

// Contains reports whether the line satisfies the overlap predicate.
func (boundary *Boundary) Contains(line orb.LineString, minOverlapFraction float64) bool {
	if boundary.cityWide {
		return true
	}
	return boundary.OverlapFraction(line) >= minOverlapFraction
}

// ContainsPoint reports whether a point lies inside the boundary.
func (boundary *Boundary) ContainsPoint(pt orb.Point) bool {
	if boundary.cityWide {
		return true
	}
	return planar.MultiPolygonContains(boundary.Geometry, pt)
}

// BoundarySet holds the loaded administrative polygons of one kind.
type BoundarySet struct {
	kind       BoundaryKind
	boundaries []*Boundary
}

// LoadBoundaries reads an administrative boundary GeoJSON feed. Features are
// expected to carry an AREA_NAME property and polygonal geometry.
func LoadBoundaries(data []byte, kind BoundaryKind) (*BoundarySet, error) {
	collection, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, errors.Wrap(err, "Can't decode boundaries GeoJSON")
	}
	set := &BoundarySet{kind: kind}
	for i, feature := range collection.Features {
		name, err := feature.PropertyString("AREA_NAME")
		if err != nil {
			return nil, errors.Wrapf(err, "Boundary feature #%d has no AREA_NAME", i)
		}
		id := name
		if rawID, err := feature.PropertyString("AREA_ID"); err == nil {
			id = rawID
		}
		geometry, err := polygonalGeometry(feature.Geometry)
		if err != nil {
			return nil, errors.Wrapf(err, "Boundary '%s'", name)
		}
		set.boundaries = append(set.boundaries, &Boundary{
			ID:       id,
			Name:     name,
			Kind:     kind,
			Geometry: geometry,
		})
	}
	return set, nil
}

// Resolve picks the active boundary for the extent selector. Matching is
// case-insensitive and treats underscores as spaces, so configuration values
// like 'york_south_weston' match the feed's 'York South Weston'.
func (set *BoundarySet) Resolve(spec ExtentSpec) (*Boundary, error) {
	if spec.Kind == "city_wide" {
		return CityWideBoundary(), nil
	}
	wanted := normalizeAreaName(spec.Name)
	for _, boundary := range set.boundaries {
		if normalizeAreaName(boundary.Name) == wanted {
			return boundary, nil
		}
	}
	return nil, &UnknownExtentError{Kind: set.kind.String(), Name: spec.Name}
}

// Names lists loaded boundary names in feed order, for diagnostics.
func (set *BoundarySet) Names() []string {
	names := make([]string, 0, len(set.boundaries))
	for _, boundary := range set.boundaries {
		names = append(names, boundary.Name)
	}
	return names
}

func normalizeAreaName(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, "_", " "))
}

func polygonalGeometry(geometry *geojson.Geometry) (orb.MultiPolygon, error) {
	if geometry == nil {
		return nil, errors.New("feature has no geometry")
	}
	switch geometry.Type {
	case geojson.GeometryPolygon:
		return orb.MultiPolygon{polygonFromCoordinates(geometry.Polygon)}, nil
	case geojson.GeometryMultiPolygon:
		multi := make(orb.MultiPolygon, 0, len(geometry.MultiPolygon))
		for _, rings := range geometry.MultiPolygon {
			multi = append(multi, polygonFromCoordinates(rings))
		}
		return multi, nil
	default:
		return nil, errors.Errorf("unexpected boundary geometry type '%s'", geometry.Type)
	}
}

func polygonFromCoordinates(rings [][][]float64) orb.Polygon {
	polygon := make(orb.Polygon, 0, len(rings))
	for _, ring := range rings {
		orbRing := make(orb.Ring, 0, len(ring))
		for _, position := range ring {
			orbRing = append(orbRing, orb.Point{position[0], position[1]})
		}
		polygon = append(polygon, orbRing)
	}
	return polygon
}
