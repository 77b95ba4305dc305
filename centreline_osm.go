package citynet

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// OSMSourceConfig maps OSM highway tag values onto functional classes for
// extents that have no municipal centreline feed.
type OSMSourceConfig struct {
	LaneTypeByHighway map[string]LaneType
}

// DefaultOSMSource covers the drivable highway tags.
func DefaultOSMSource() *OSMSourceConfig {
	return &OSMSourceConfig{
		LaneTypeByHighway: map[string]LaneType{
			"motorway":       LANE_EXPRESSWAY,
			"motorway_link":  LANE_RAMP,
			"trunk":          LANE_ARTERIAL,
			"trunk_link":     LANE_RAMP,
			"primary":        LANE_ARTERIAL,
			"primary_link":   LANE_RAMP,
			"secondary":      LANE_ARTERIAL,
			"secondary_link": LANE_RAMP,
			"tertiary":       LANE_COLLECTOR,
			"tertiary_link":  LANE_RAMP,
			"residential":    LANE_LOCAL,
			"unclassified":   LANE_LOCAL,
			"busway":         LANE_BUSWAY,
			"service":        LANE_ACCESS,
		},
	}
}

// LoadCentrelineOSM imports centreline segments from a PBF extract. The file
// is scanned twice: ways first to learn which nodes matter, then nodes for
// their coordinates.
func LoadCentrelineOSM(fileName string, cfg *OSMSourceConfig, logger *zap.Logger) ([]*CentrelineSegment, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return nil, errors.Wrap(err, "File open")
	}
	defer f.Close()

	type pendingWay struct {
		id       int64
		name     string
		laneType LaneType
		oneway   int8
		lanes    int
		nodes    []osm.NodeID
	}

	scannerWays := osmpbf.New(context.Background(), f, 4)
	defer scannerWays.Close()

	ways := []pendingWay{}
	nodesSeen := make(map[osm.NodeID]struct{})

	st := time.Now()
	for scannerWays.Scan() {
		obj := scannerWays.Object()
		if obj.ObjectID().Type() != "way" {
			continue
		}
		way := obj.(*osm.Way)
		tagMap := way.TagMap()
		highway, ok := tagMap["highway"]
		if !ok {
			continue
		}
		laneType, ok := cfg.LaneTypeByHighway[highway]
		if !ok {
			continue
		}
		oneway := TRAVEL_BOTH
		if v, ok := tagMap["oneway"]; ok {
			switch v {
			case "yes", "1":
				oneway = TRAVEL_FORWARD
			case "-1":
				oneway = TRAVEL_REVERSE
			}
		}
		pending := pendingWay{
			id:       int64(way.ID),
			name:     tagMap["name"],
			laneType: laneType,
			oneway:   oneway,
			lanes:    defaultLanesByLaneType[laneType],
			nodes:    make([]osm.NodeID, len(way.Nodes)),
		}
		for i, wayNode := range way.Nodes {
			pending.nodes[i] = wayNode.ID
			nodesSeen[wayNode.ID] = struct{}{}
		}
		ways = append(ways, pending)
	}
	if scannerWays.Err() != nil {
		return nil, errors.Wrap(scannerWays.Err(), "Scanner error on Ways")
	}
	logger.Info("Scanned OSM ways", zap.Int("ways", len(ways)), zap.Duration("elapsed", time.Since(st)))

	if _, err = f.Seek(0, io.SeekStart); err != nil {
		return nil, errors.Wrap(err, "Can't repeat seeking")
	}
	scannerNodes := osmpbf.New(context.Background(), f, 4)
	defer scannerNodes.Close()

	coords := make(map[osm.NodeID]orb.Point)
	st = time.Now()
	for scannerNodes.Scan() {
		obj := scannerNodes.Object()
		if obj.ObjectID().Type() != "node" {
			continue
		}
		node := obj.(*osm.Node)
		if _, ok := nodesSeen[node.ID]; ok {
			coords[node.ID] = orb.Point{node.Lon, node.Lat}
		}
	}
	if scannerNodes.Err() != nil {
		return nil, errors.Wrap(scannerNodes.Err(), "Scanner error on Nodes")
	}
	logger.Info("Scanned OSM nodes", zap.Int("nodes", len(coords)), zap.Duration("elapsed", time.Since(st)))

	segments := make([]*CentrelineSegment, 0, len(ways))
	incomplete := 0
	for _, way := range ways {
		geometry := make(orb.LineString, 0, len(way.nodes))
		complete := true
		for _, nodeID := range way.nodes {
			pt, ok := coords[nodeID]
			if !ok {
				complete = false
				break
			}
			geometry = append(geometry, pt)
		}
		if !complete || len(geometry) < 2 {
			incomplete++
			continue
		}
		segments = append(segments, &CentrelineSegment{
			ID:                 SegmentID(way.id),
			Name:               way.name,
			LaneType:           way.laneType,
			Oneway:             way.oneway,
			Lanes:              way.lanes,
			Speed:              defaultSpeedByLaneType[way.laneType],
			FromIntersectionID: int64(way.nodes[0]),
			ToIntersectionID:   int64(way.nodes[len(way.nodes)-1]),
			Geometry:           geometry,
		})
	}
	if incomplete > 0 {
		logger.Warn("Dropped ways with missing node coordinates", zap.Int("ways", incomplete))
	}
	return segments, nil
}
