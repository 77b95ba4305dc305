package citynet

import (
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"
)

// DetectorFamily is a category of simulated traffic sensor.
type DetectorFamily uint8

const (
	DETECTOR_POINT = DetectorFamily(iota + 1)
	DETECTOR_AREA
	DETECTOR_MULTI
)

func (iotaIdx DetectorFamily) String() string {
	return [...]string{"point", "area", "multi"}[iotaIdx-1]
}

// Detector is one planned sensor placement. Offset is measured from the
// downstream end of the edge toward its start; Length -1 in configuration is
// resolved to the remaining edge length before the placement is accepted.
type Detector struct {
	ID        string
	Family    DetectorFamily
	Edge      EdgeID
	Lane      int
	Offset    float64
	Length    float64
	Frequency int
	Junction  string

	// Multi-entry-exit spans; empty for per-lane families.
	EntryEdges []EdgeID
	ExitEdges  []EdgeID
}

// DetectorPlanner computes detector placements per enabled family around
// signal-bearing junctions.
type DetectorPlanner struct {
	cfg    *DetectorsConfig
	logger *zap.Logger
}

func NewDetectorPlanner(cfg *DetectorsConfig, logger *zap.Logger) *DetectorPlanner {
	return &DetectorPlanner{cfg: cfg, logger: logger}
}

// Plan walks every signal node and its inbound edges. Infeasible placements
// are skipped with a warning, never fabricated.
func (planner *DetectorPlanner) Plan(graph *NetworkGraph) []*Detector {
	detectors := []*Detector{}
	for _, node := range graph.SignalNodes() {
		inbound := graph.IncomingEdges(node.ID)
		if planner.cfg.Point.Enabled {
			detectors = append(detectors, planner.planPoint(node, inbound)...)
		}
		if planner.cfg.Area.Enabled {
			detectors = append(detectors, planner.planArea(node, inbound)...)
		}
		if planner.cfg.Multi.Enabled {
			detectors = append(detectors, planner.planMulti(graph, node, inbound)...)
		}
	}
	sort.Slice(detectors, func(i, j int) bool { return detectors[i].ID < detectors[j].ID })
	planner.logger.Info("Planned detectors", zap.Int("detectors", len(detectors)))
	return detectors
}

func (planner *DetectorPlanner) planPoint(node *NetworkNode, inbound []*NetworkEdge) []*Detector {
	cfg := planner.cfg.Point
	detectors := []*Detector{}
	for _, edge := range inbound {
		if edge.Length < MinimumDetectorLength {
			planner.logger.Warn("Skipped point detector: edge too short",
				zap.String("edge", string(edge.ID)),
				zap.Float64("edge_length_m", edge.Length),
			)
			continue
		}
		offset := cfg.Distance
		if offset > edge.Length {
			planner.logger.Warn("Clamped point detector to edge start",
				zap.String("edge", string(edge.ID)),
				zap.Float64("distance_m", cfg.Distance),
				zap.Float64("edge_length_m", edge.Length),
			)
			offset = edge.Length
		}
		for lane := 0; lane < edge.Lanes; lane++ {
			detectors = append(detectors, &Detector{
				ID:        fmt.Sprintf("e1_%s_%d", edge.ID, lane),
				Family:    DETECTOR_POINT,
				Edge:      edge.ID,
				Lane:      lane,
				Offset:    offset,
				Length:    0.0,
				Frequency: cfg.Frequency,
				Junction:  node.ID,
			})
		}
	}
	return detectors
}

func (planner *DetectorPlanner) planArea(node *NetworkNode, inbound []*NetworkEdge) []*Detector {
	cfg := planner.cfg.Area
	detectors := []*Detector{}
	for _, edge := range inbound {
		offset := cfg.Distance
		if offset >= edge.Length {
			planner.logger.Warn("Skipped area detector: distance beyond edge",
				zap.String("edge", string(edge.ID)),
				zap.Float64("distance_m", cfg.Distance),
				zap.Float64("edge_length_m", edge.Length),
			)
			continue
		}
		length := cfg.Length
		if length == -1 {
			length = edge.Length - offset
		}
		if offset+length > edge.Length {
			planner.logger.Warn("Clamped area detector to edge start",
				zap.String("edge", string(edge.ID)),
				zap.Float64("configured_length_m", cfg.Length),
				zap.Float64("clamped_length_m", edge.Length-offset),
			)
			length = edge.Length - offset
		}
		if cfg.MaxLength > 0 {
			length = math.Min(length, cfg.MaxLength)
		}
		if length < MinimumDetectorLength {
			planner.logger.Warn("Skipped area detector: edge too short",
				zap.String("edge", string(edge.ID)),
				zap.Float64("remaining_length_m", length),
			)
			continue
		}
		for lane := 0; lane < edge.Lanes; lane++ {
			detectors = append(detectors, &Detector{
				ID:        fmt.Sprintf("e2_%s_%d", edge.ID, lane),
				Family:    DETECTOR_AREA,
				Edge:      edge.ID,
				Lane:      lane,
				Offset:    offset,
				Length:    length,
				Frequency: cfg.Frequency,
				Junction:  node.ID,
			})
		}
	}
	return detectors
}

func (planner *DetectorPlanner) planMulti(graph *NetworkGraph, node *NetworkNode, inbound []*NetworkEdge) []*Detector {
	cfg := planner.cfg.Multi
	outbound := graph.OutgoingEdges(node.ID)

	exitIDs := func(entry *NetworkEdge) []EdgeID {
		ids := []EdgeID{}
		for _, exit := range outbound {
			if !cfg.FollowTurnaround && entry != nil && exit.To == entry.From {
				// Turnaround back onto the approach is excluded by default.
				continue
			}
			ids = append(ids, exit.ID)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		return ids
	}

	entryOffset := func(edge *NetworkEdge) (float64, bool) {
		if edge.Length < MinimumDetectorLength {
			planner.logger.Warn("Skipped multi detector entry: edge too short",
				zap.String("edge", string(edge.ID)),
				zap.Float64("edge_length_m", edge.Length),
			)
			return 0.0, false
		}
		offset := cfg.Distance
		if offset > edge.Length-cfg.MinPosition {
			planner.logger.Warn("Clamped multi detector entry to edge start",
				zap.String("edge", string(edge.ID)),
				zap.Float64("distance_m", cfg.Distance),
				zap.Float64("edge_length_m", edge.Length),
			)
			offset = edge.Length - cfg.MinPosition
		}
		return offset, true
	}

	if cfg.Joined {
		entries := []EdgeID{}
		offset := 0.0
		for _, edge := range inbound {
			edgeOffset, ok := entryOffset(edge)
			if !ok {
				continue
			}
			entries = append(entries, edge.ID)
			offset = math.Max(offset, edgeOffset)
		}
		if len(entries) == 0 {
			return nil
		}
		exits := exitIDs(nil)
		if !cfg.Interior {
			exits = filterInterior(graph, exits, entries)
		}
		return []*Detector{{
			ID:         fmt.Sprintf("e3_%s", node.ID),
			Family:     DETECTOR_MULTI,
			Lane:       -1,
			Offset:     offset,
			Frequency:  cfg.Frequency,
			Junction:   node.ID,
			EntryEdges: entries,
			ExitEdges:  exits,
		}}
	}

	detectors := []*Detector{}
	for _, edge := range inbound {
		offset, ok := entryOffset(edge)
		if !ok {
			continue
		}
		detectors = append(detectors, &Detector{
			ID:         fmt.Sprintf("e3_%s_%s", node.ID, edge.ID),
			Family:     DETECTOR_MULTI,
			Edge:       edge.ID,
			Lane:       -1,
			Offset:     offset,
			Frequency:  cfg.Frequency,
			Junction:   node.ID,
			EntryEdges: []EdgeID{edge.ID},
			ExitEdges:  exitIDs(edge),
		})
	}
	return detectors
}

// filterInterior drops exits that immediately re-enter the covered approach
// set, keeping the merged detector on the junction perimeter.
func filterInterior(graph *NetworkGraph, exits []EdgeID, entries []EdgeID) []EdgeID {
	entrySources := make(map[string]struct{}, len(entries))
	for _, id := range entries {
		entrySources[graph.Edges[id].From] = struct{}{}
	}
	filtered := exits[:0]
	for _, id := range exits {
		if _, ok := entrySources[graph.Edges[id].To]; ok {
			continue
		}
		filtered = append(filtered, id)
	}
	return filtered
}
