package citynet

import (
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/quadtree"
)

// One shared matcher serves graph building (signal attachment), the station
// crosswalk and transit stop snapping, so tolerance and tie-break semantics
// stay identical everywhere: nearest by great-circle distance, ties broken by
// lexical item id.

const (
	// Rough meters per degree of latitude; only used to widen planar
	// quadtree queries before the precise spherical re-check.
	metersPerDegree = 111000.0
	knearestBuffer  = 8
)

type spatialItem struct {
	id string
	pt orb.Point
}

func (item spatialItem) Point() orb.Point {
	return item.pt
}

type spatialIndex struct {
	tree  *quadtree.Quadtree
	empty bool
}

// newSpatialIndex builds a planar quadtree over the given id->point set.
func newSpatialIndex(points map[string]orb.Point) *spatialIndex {
	if len(points) == 0 {
		return &spatialIndex{empty: true}
	}
	bound := orb.Bound{Min: orb.Point{180.0, 90.0}, Max: orb.Point{-180.0, -90.0}}
	for _, pt := range points {
		bound = bound.Extend(pt)
	}
	// Zero-area bounds break quadtree insertion for single-point sets.
	bound = bound.Pad(0.001)
	tree := quadtree.New(bound)
	for id, pt := range points {
		// Error is impossible: every point is inside the padded bound.
		tree.Add(spatialItem{id: id, pt: pt})
	}
	return &spatialIndex{tree: tree}
}

// spatialMatch is one candidate returned by a threshold query.
type spatialMatch struct {
	id       string
	distance float64
}

// within returns up to k item ids inside maxDistance (meters), ordered by
// distance then lexical id.
func (index *spatialIndex) within(pt orb.Point, maxDistance float64, k int) []spatialMatch {
	if index.empty {
		return nil
	}
	// Planar pre-filter is widened: longitude degrees shrink with latitude,
	// so a too-narrow planar radius could miss true spherical neighbors.
	planarRadius := maxDistance / metersPerDegree * 4.0
	candidates := index.tree.KNearest(nil, pt, k, planarRadius)
	found := make([]spatialMatch, 0, len(candidates))
	for _, candidate := range candidates {
		item := candidate.(spatialItem)
		d := greatCircleDistance(pt, item.pt)
		if d <= maxDistance {
			found = append(found, spatialMatch{id: item.id, distance: d})
		}
	}
	sort.Slice(found, func(i, j int) bool {
		if found[i].distance != found[j].distance {
			return found[i].distance < found[j].distance
		}
		return found[i].id < found[j].id
	})
	return found
}

// nearest returns the closest item id within maxDistance (meters) plus its
// distance. The boolean is false when nothing lies within the threshold.
func (index *spatialIndex) nearest(pt orb.Point, maxDistance float64) (string, float64, bool) {
	found := index.within(pt, maxDistance, knearestBuffer)
	if len(found) == 0 {
		return "", 0.0, false
	}
	return found[0].id, found[0].distance, true
}
