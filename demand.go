package citynet

import (
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"
)

// Trip is one generated private-vehicle departure bound to a movement.
type Trip struct {
	ID       string
	Depart   float64
	Junction string
	FromEdge EdgeID
	ToEdge   EdgeID
}

// EdgeWeight carries background-traffic sampling weights per edge, split the
// way the source pipeline splits them: most of an edge's observed volume
// counts as through traffic, smaller shares as trip origins and destinations.
type EdgeWeight struct {
	Edge        EdgeID
	Via         float64
	Source      float64
	Destination float64
}

// DemandReport records degraded-but-non-fatal conditions met during
// synthesis.
type DemandReport struct {
	JunctionBins     int
	GeneratedTrips   int
	TransitRoutes    int
	UnroutableRoutes int
	DroppedStops     int
}

// DemandPlan is the synthesized travel demand: exact private-vehicle trips,
// background edge weights and scheduled transit vehicles.
type DemandPlan struct {
	Trips   []*Trip
	Weights []*EdgeWeight
	Transit []*TransitVehicle
	Report  DemandReport
}

// DemandSynthesizer converts turning-movement matrices and a transit feed
// into simulator demand.
type DemandSynthesizer struct {
	traffic *TrafficConfig
	transit *TransitConfig
	logger  *zap.Logger
}

func NewDemandSynthesizer(traffic *TrafficConfig, transit *TransitConfig, logger *zap.Logger) *DemandSynthesizer {
	return &DemandSynthesizer{traffic: traffic, transit: transit, logger: logger}
}

// Synthesize produces the demand plan. A graph with no turning movement
// anywhere cannot seed demand and fails with InsufficientDataError; partial
// coverage (unmatched stations, partially snapped transit) degrades and is
// recorded in the report instead.
func (synth *DemandSynthesizer) Synthesize(movements []*TurningMovement, graph *NetworkGraph, feed *TransitFeed) (*DemandPlan, error) {
	if len(movements) == 0 {
		return nil, &InsufficientDataError{Reason: "no turning movements anywhere in the graph"}
	}
	plan := &DemandPlan{}
	synth.synthesizePrivate(movements, plan)
	plan.Weights = synthesizeWeights(movements)
	if feed != nil && synth.transit.Enabled {
		mapper := newTransitMapper(graph, synth.transit, synth.logger)
		plan.Transit = mapper.mapFeed(feed, &plan.Report)
	}
	synth.logger.Info("Synthesized demand",
		zap.Int("trips", len(plan.Trips)),
		zap.Int("weighted_edges", len(plan.Weights)),
		zap.Int("transit_vehicles", len(plan.Transit)),
	)
	return plan, nil
}

// synthesizePrivate draws trips per junction per bin, honoring the observed
// outbound share per from-edge. Largest-remainder reconciliation keeps the
// generated total equal to round(scale * observed total) with no rounding
// drift; an unscaled run reproduces the observed counts exactly.
func (synth *DemandSynthesizer) synthesizePrivate(movements []*TurningMovement, plan *DemandPlan) {
	type groupKey struct {
		junction string
		timeBin  int
	}
	groups := make(map[groupKey][]*TurningMovement)
	keys := []groupKey{}
	for _, movement := range movements {
		key := groupKey{junction: movement.Junction, timeBin: movement.TimeBin}
		if _, ok := groups[key]; !ok {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], movement)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].junction != keys[j].junction {
			return keys[i].junction < keys[j].junction
		}
		return keys[i].timeBin < keys[j].timeBin
	})

	for _, key := range keys {
		group := groups[key]
		// Movements arrive sorted from the computer; keep that order so
		// remainder ties resolve identically across runs.
		weights := make([]float64, len(group))
		observed := 0
		for i, movement := range group {
			weights[i] = float64(movement.Count)
			observed += movement.Count
		}
		if observed == 0 {
			continue
		}
		target := int(math.Round(synth.traffic.CountScale * float64(observed)))
		allocations := largestRemainder(weights, target)
		for i, movement := range group {
			n := allocations[i]
			for k := 0; k < n; k++ {
				// Departures are spread evenly through the bin.
				depart := float64(key.timeBin) + (float64(k)+0.5)*float64(synth.traffic.TimeBinSize)/float64(n)
				plan.Trips = append(plan.Trips, &Trip{
					ID:       fmt.Sprintf("veh_%s_%d_%s_%s_%d", key.junction, key.timeBin, movement.FromEdge, movement.ToEdge, k),
					Depart:   depart,
					Junction: key.junction,
					FromEdge: movement.FromEdge,
					ToEdge:   movement.ToEdge,
				})
			}
		}
		plan.Report.JunctionBins++
	}
	sort.Slice(plan.Trips, func(i, j int) bool {
		if plan.Trips[i].Depart != plan.Trips[j].Depart {
			return plan.Trips[i].Depart < plan.Trips[j].Depart
		}
		return plan.Trips[i].ID < plan.Trips[j].ID
	})
	plan.Report.GeneratedTrips = len(plan.Trips)
}

// largestRemainder apportions target units across weights: floors first,
// then hands leftover units to the largest fractional parts (earlier index
// wins ties). Zero weights never receive units.
func largestRemainder(weights []float64, target int) []int {
	allocations := make([]int, len(weights))
	if target <= 0 || len(weights) == 0 {
		return allocations
	}
	totalWeight := 0.0
	for _, weight := range weights {
		totalWeight += weight
	}
	if totalWeight == 0 {
		return allocations
	}
	type remainder struct {
		index    int
		fraction float64
	}
	assigned := 0
	remainders := make([]remainder, 0, len(weights))
	for i, weight := range weights {
		if weight == 0 {
			continue
		}
		ideal := weight / totalWeight * float64(target)
		base := int(math.Floor(ideal))
		allocations[i] = base
		assigned += base
		remainders = append(remainders, remainder{index: i, fraction: ideal - float64(base)})
	}
	sort.Slice(remainders, func(i, j int) bool {
		if remainders[i].fraction != remainders[j].fraction {
			return remainders[i].fraction > remainders[j].fraction
		}
		return remainders[i].index < remainders[j].index
	})
	for i := 0; assigned < target && i < len(remainders); i++ {
		allocations[remainders[i].index]++
		assigned++
	}
	return allocations
}

// synthesizeWeights sums each edge's participation in observed movements and
// splits it 0.7 via / 0.2 source / 0.1 destination, matching the background
// traffic weighting of the source pipeline.
func synthesizeWeights(movements []*TurningMovement) []*EdgeWeight {
	totals := make(map[EdgeID]int)
	for _, movement := range movements {
		totals[movement.FromEdge] += movement.Count
		totals[movement.ToEdge] += movement.Count
	}
	weights := make([]*EdgeWeight, 0, len(totals))
	for edge, total := range totals {
		weights = append(weights, &EdgeWeight{
			Edge:        edge,
			Via:         float64(total) * 0.7,
			Source:      float64(total) * 0.2,
			Destination: float64(total) * 0.1,
		})
	}
	sort.Slice(weights, func(i, j int) bool { return weights[i].Edge < weights[j].Edge })
	return weights
}
