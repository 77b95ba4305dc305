package citynet

import (
	"math"
	"sort"

	"go.uber.org/zap"
)

// TurningMovement is one observed (from-edge -> to-edge) flow at a junction
// for one time bin. TimeBin is the bin start in seconds of day.
type TurningMovement struct {
	Junction string
	FromEdge EdgeID
	ToEdge   EdgeID
	TimeBin  int
	Count    int
}

// TurningMovementComputer aggregates raw per-approach volumes into
// per-movement counts on the graph.
type TurningMovementComputer struct {
	cfg    *TrafficConfig
	logger *zap.Logger
}

func NewTurningMovementComputer(cfg *TrafficConfig, logger *zap.Logger) *TurningMovementComputer {
	return &TurningMovementComputer{cfg: cfg, logger: logger}
}

type movementKey struct {
	junction string
	fromEdge EdgeID
	toEdge   EdgeID
	timeBin  int
}

// Compute maps every matched station's approach volumes onto movements using
// the bearing correspondence between approach directions and junction edges.
// Conservation violations are data-quality warnings, never fatal: partial
// real-world coverage is expected and the matrix is emitted regardless. Bins
// without station coverage are omitted, not zero-filled.
func (computer *TurningMovementComputer) Compute(stations []*CountStation, crosswalk Crosswalk, graph *NetworkGraph) []*TurningMovement {
	counts := make(map[movementKey]int)
	rawTotals := make(map[string]map[int]int) // junction -> bin -> reported volume
	unmappedApproach := 0
	unmappedTurn := 0

	for _, station := range stations {
		junction, ok := crosswalk[station.ExternalID]
		if !ok {
			continue
		}
		approaches := computer.approachEdges(graph, junction)
		if len(approaches) == 0 {
			computer.logger.Warn("Junction has no inbound edges",
				zap.String("station", station.ExternalID),
				zap.String("junction", junction),
			)
			continue
		}
		if rawTotals[junction] == nil {
			rawTotals[junction] = make(map[int]int)
		}
		for _, interval := range station.Intervals {
			timeBin := (interval.Start / computer.cfg.TimeBinSize) * computer.cfg.TimeBinSize
			for _, volume := range interval.Volumes {
				rawTotals[junction][timeBin] += volume.Count
				fromEdge, ok := approaches[volume.Direction]
				if !ok {
					unmappedApproach++
					continue
				}
				toEdge, ok := computer.exitFor(graph, junction, fromEdge, volume.Turn)
				if !ok {
					unmappedTurn++
					continue
				}
				key := movementKey{junction: junction, fromEdge: fromEdge.ID, toEdge: toEdge.ID, timeBin: timeBin}
				counts[key] += volume.Count
			}
		}
	}
	if unmappedApproach > 0 {
		computer.logger.Warn("Volumes with no matching approach edge", zap.Int("volumes", unmappedApproach))
	}
	if unmappedTurn > 0 {
		computer.logger.Warn("Volumes with no matching exit edge", zap.Int("volumes", unmappedTurn))
	}

	movements := make([]*TurningMovement, 0, len(counts))
	for key, count := range counts {
		movements = append(movements, &TurningMovement{
			Junction: key.junction,
			FromEdge: key.fromEdge,
			ToEdge:   key.toEdge,
			TimeBin:  key.timeBin,
			Count:    count,
		})
	}
	sort.Slice(movements, func(i, j int) bool {
		a, b := movements[i], movements[j]
		if a.Junction != b.Junction {
			return a.Junction < b.Junction
		}
		if a.TimeBin != b.TimeBin {
			return a.TimeBin < b.TimeBin
		}
		if a.FromEdge != b.FromEdge {
			return a.FromEdge < b.FromEdge
		}
		return a.ToEdge < b.ToEdge
	})

	computer.checkConservation(movements, rawTotals)
	computer.logger.Info("Computed turning movements", zap.Int("movements", len(movements)))
	return movements
}

// approachEdges assigns each inbound edge of the junction to the compass
// bucket of its travel bearing. When two inbound edges land in the same
// bucket the lexically smaller edge id wins, deterministically.
func (computer *TurningMovementComputer) approachEdges(graph *NetworkGraph, junction string) map[CardinalDirection]*NetworkEdge {
	approaches := make(map[CardinalDirection]*NetworkEdge)
	for _, edge := range graph.IncomingEdges(junction) {
		direction := cardinalDirection(edge.Bearing(), computer.cfg.DirectionEpsilon)
		current, ok := approaches[direction]
		if !ok || edge.ID < current.ID {
			approaches[direction] = edge
		}
	}
	return approaches
}

// turn bucket centers in signed degrees relative to the approach bearing.
var turnCenters = map[TurnType]float64{
	TURN_THRU:  0.0,
	TURN_LEFT:  90.0,
	TURN_RIGHT: -90.0,
}

// exitFor picks the outgoing edge whose bearing delta matches the turn code.
// U-turns back onto the approach's reverse are never candidates.
func (computer *TurningMovementComputer) exitFor(graph *NetworkGraph, junction string, fromEdge *NetworkEdge, turn TurnType) (*NetworkEdge, bool) {
	inBearing := fromEdge.Bearing()
	var best *NetworkEdge
	bestDiff := math.Inf(1)
	for _, edge := range graph.OutgoingEdges(junction) {
		if edge.To == fromEdge.From {
			continue
		}
		delta := bearingDelta(inBearing, edge.Bearing())
		if classifyTurn(delta) != turn {
			continue
		}
		diff := math.Abs(delta - turnCenters[turn])
		if diff < bestDiff || (diff == bestDiff && best != nil && edge.ID < best.ID) {
			best = edge
			bestDiff = diff
		}
	}
	return best, best != nil
}

// classifyTurn buckets a signed bearing delta: |delta| <= 45 is through,
// left turns are positive (counter-clockwise), right turns negative. Deltas
// beyond 135 degrees are turnarounds and match no turn code.
func classifyTurn(delta float64) TurnType {
	switch {
	case delta >= -45.0 && delta <= 45.0:
		return TURN_THRU
	case delta > 45.0 && delta <= 135.0:
		return TURN_LEFT
	case delta < -45.0 && delta >= -135.0:
		return TURN_RIGHT
	}
	return 0
}

// checkConservation compares summed movement counts (outflow proxy grouped
// by from-edge) against the raw reported volume per junction per bin.
func (computer *TurningMovementComputer) checkConservation(movements []*TurningMovement, rawTotals map[string]map[int]int) {
	mapped := make(map[string]map[int]int)
	for _, movement := range movements {
		if mapped[movement.Junction] == nil {
			mapped[movement.Junction] = make(map[int]int)
		}
		mapped[movement.Junction][movement.TimeBin] += movement.Count
	}
	junctions := make([]string, 0, len(rawTotals))
	for junction := range rawTotals {
		junctions = append(junctions, junction)
	}
	sort.Strings(junctions)
	for _, junction := range junctions {
		bins := make([]int, 0, len(rawTotals[junction]))
		for bin := range rawTotals[junction] {
			bins = append(bins, bin)
		}
		sort.Ints(bins)
		for _, bin := range bins {
			raw := rawTotals[junction][bin]
			if raw == 0 {
				continue
			}
			got := mapped[junction][bin]
			deviation := math.Abs(float64(got-raw)) / float64(raw)
			if deviation > computer.cfg.ConservationTolerance {
				computer.logger.Warn("Conservation tolerance exceeded",
					zap.String("junction", junction),
					zap.Int("time_bin", bin),
					zap.Int("reported", raw),
					zap.Int("mapped", got),
					zap.Float64("deviation", deviation),
				)
			}
		}
	}
}
