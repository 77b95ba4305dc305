package citynet

import (
	"sort"

	geojson "github.com/paulmach/go.geojson"
	"github.com/paulmach/orb"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// SegmentID is the source identifier of a centreline segment.
type SegmentID int64

// Travel direction codes as published in the centreline feed.
const (
	TRAVEL_BOTH    = int8(0)
	TRAVEL_FORWARD = int8(1)
	TRAVEL_REVERSE = int8(-1)
)

// CentrelineSegment is one raw linework record before graph resolution.
type CentrelineSegment struct {
	ID                 SegmentID
	Name               string
	LaneType           LaneType
	Oneway             int8
	FromIntersectionID int64
	ToIntersectionID   int64
	Lanes              int
	Speed              float64
	Geometry           orb.LineString
}

// LoadCentreline reads the municipal centreline GeoJSON feed. Features with a
// FEATURE_CODE outside the known functional classes are dropped and counted;
// they are typically rivers, trails and other non-road linework.
func LoadCentreline(data []byte, logger *zap.Logger) ([]*CentrelineSegment, error) {
	collection, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, errors.Wrap(err, "Can't decode centreline GeoJSON")
	}
	segments := make([]*CentrelineSegment, 0, len(collection.Features))
	unknownClass := 0
	for i, feature := range collection.Features {
		id, err := feature.PropertyInt("CENTRELINE_ID")
		if err != nil {
			return nil, errors.Wrapf(err, "Centreline feature #%d has no CENTRELINE_ID", i)
		}
		featureCode, err := feature.PropertyInt("FEATURE_CODE")
		if err != nil {
			return nil, errors.Wrapf(err, "Centreline segment %d has no FEATURE_CODE", id)
		}
		laneType, ok := laneTypeByFeatureCode[featureCode]
		if !ok {
			unknownClass++
			continue
		}
		geometry, err := lineGeometry(feature.Geometry)
		if err != nil {
			return nil, errors.Wrapf(err, "Centreline segment %d", id)
		}
		segment := &CentrelineSegment{
			ID:       SegmentID(id),
			LaneType: laneType,
			Lanes:    defaultLanesByLaneType[laneType],
			Speed:    defaultSpeedByLaneType[laneType],
			Geometry: geometry,
		}
		if name, err := feature.PropertyString("LINEAR_NAME_FULL_LEGAL"); err == nil {
			segment.Name = name
		}
		if oneway, err := feature.PropertyInt("ONEWAY_DIR_CODE"); err == nil {
			switch {
			case oneway > 0:
				segment.Oneway = TRAVEL_FORWARD
			case oneway < 0:
				segment.Oneway = TRAVEL_REVERSE
			default:
				segment.Oneway = TRAVEL_BOTH
			}
		}
		if from, err := feature.PropertyInt("FROM_INTERSECTION_ID"); err == nil {
			segment.FromIntersectionID = int64(from)
		}
		if to, err := feature.PropertyInt("TO_INTERSECTION_ID"); err == nil {
			segment.ToIntersectionID = int64(to)
		}
		segments = append(segments, segment)
	}
	logger.Info("Loaded centreline feed",
		zap.Int("segments", len(segments)),
		zap.Int("skipped_non_road", unknownClass),
	)
	return segments, nil
}

// FilterStats counts segments dropped per rejection reason.
type FilterStats struct {
	Input             int
	Retained          int
	DroppedLaneType   int
	DroppedBoundary   int
	DroppedExtentSet  int
	DroppedNoGeometry int
}

// FilterCentreline retains segments whose lane type is allowed and whose
// geometry satisfies the boundary overlap predicate. For the by_junctions
// extent a segment must additionally touch one of the configured
// intersection ids. Output is sorted by source id so repeated runs over
// identical inputs are byte-identical.
func FilterCentreline(segments []*CentrelineSegment, boundary *Boundary, cfg *NetworkConfig, logger *zap.Logger) ([]*CentrelineSegment, FilterStats) {
	allowed := cfg.AllowedLaneTypes()
	junctionSet := make(map[int64]struct{}, len(cfg.JunctionIDs))
	for _, id := range cfg.JunctionIDs {
		junctionSet[int64(id)] = struct{}{}
	}
	byJunctions := cfg.ExtentSpec().Kind == "by_junctions"

	stats := FilterStats{Input: len(segments)}
	retained := make([]*CentrelineSegment, 0, len(segments))
	for _, segment := range segments {
		if len(segment.Geometry) < 2 {
			stats.DroppedNoGeometry++
			continue
		}
		if _, ok := allowed[segment.LaneType]; !ok {
			stats.DroppedLaneType++
			continue
		}
		if byJunctions {
			_, fromOK := junctionSet[segment.FromIntersectionID]
			_, toOK := junctionSet[segment.ToIntersectionID]
			if !fromOK && !toOK {
				stats.DroppedExtentSet++
				continue
			}
		}
		if !boundary.Contains(segment.Geometry, cfg.MinOverlapFraction) {
			stats.DroppedBoundary++
			continue
		}
		retained = append(retained, segment)
	}
	sort.Slice(retained, func(i, j int) bool { return retained[i].ID < retained[j].ID })
	stats.Retained = len(retained)
	logger.Info("Filtered centreline segments",
		zap.Int("input", stats.Input),
		zap.Int("retained", stats.Retained),
		zap.Int("dropped_lane_type", stats.DroppedLaneType),
		zap.Int("dropped_boundary", stats.DroppedBoundary),
		zap.Int("dropped_junction_set", stats.DroppedExtentSet),
		zap.Int("dropped_no_geometry", stats.DroppedNoGeometry),
	)
	return retained, stats
}

func lineGeometry(geometry *geojson.Geometry) (orb.LineString, error) {
	if geometry == nil {
		return nil, errors.New("feature has no geometry")
	}
	switch geometry.Type {
	case geojson.GeometryLineString:
		return lineFromCoordinates(geometry.LineString), nil
	case geojson.GeometryMultiLineString:
		// Rare in the feed; parts come pre-ordered, concatenate them.
		var line orb.LineString
		for _, part := range geometry.MultiLineString {
			line = append(line, lineFromCoordinates(part)...)
		}
		return line, nil
	default:
		return nil, errors.Errorf("unexpected centreline geometry type '%s'", geometry.Type)
	}
}

func lineFromCoordinates(coordinates [][]float64) orb.LineString {
	line := make(orb.LineString, 0, len(coordinates))
	for _, position := range coordinates {
		line = append(line, orb.Point{position[0], position[1]})
	}
	return line
}
