package citynet

import (
	"fmt"
	"math"
	"sort"

	"github.com/katalvlaran/lvlath/bfs"
	"github.com/katalvlaran/lvlath/core"
	"github.com/paulmach/orb"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// NetworkGraphBuilder resolves filtered centreline segments into the
// canonical directed graph and attaches signal metadata.
type NetworkGraphBuilder struct {
	cfg    *NetworkConfig
	logger *zap.Logger
}

func NewNetworkGraphBuilder(cfg *NetworkConfig, logger *zap.Logger) *NetworkGraphBuilder {
	return &NetworkGraphBuilder{cfg: cfg, logger: logger}
}

// Build merges segment endpoints into nodes, expands segments into directed
// edges, collapses overlapping duplicates and attaches signal points.
// Returns EmptyNetworkError when a non-empty input yields no edges and
// FragmentedNetworkError when the largest connected component covers less
// than the configured fraction of total edge length.
func (builder *NetworkGraphBuilder) Build(segments []*CentrelineSegment, signals []*SignalPoint) (*NetworkGraph, error) {
	graph := newNetworkGraph()
	merger := newEndpointMerger(builder.cfg.NodeSnapRadius)

	// Input order is already canonical (sorted by segment id), which keeps
	// generated node ids stable across runs.
	sorted := make([]*CentrelineSegment, len(segments))
	copy(sorted, segments)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	for _, segment := range sorted {
		fromNode := merger.resolve(graph, segment.Geometry[0], segment.FromIntersectionID)
		toNode := merger.resolve(graph, segment.Geometry[len(segment.Geometry)-1], segment.ToIntersectionID)
		builder.expandSegment(graph, segment, fromNode, toNode)
	}

	builder.collapseDuplicates(graph)

	if len(graph.Edges) == 0 {
		if len(segments) == 0 {
			return nil, &EmptyNetworkError{Segments: 0}
		}
		return nil, &EmptyNetworkError{Segments: len(segments)}
	}

	builder.attachSignals(graph, signals)
	graph.finalize()

	if err := builder.checkConnectivity(graph); err != nil {
		return nil, err
	}

	builder.logger.Info("Built network graph",
		zap.Int("nodes", len(graph.Nodes)),
		zap.Int("edges", len(graph.Edges)),
		zap.Int("signals", len(graph.SignalNodes())),
	)
	return graph, nil
}

// expandSegment emits one or two directed edges depending on the travel
// direction code. Segment geometry is never altered beyond reversal.
func (builder *NetworkGraphBuilder) expandSegment(graph *NetworkGraph, segment *CentrelineSegment, fromNode, toNode string) {
	length := lineLength(segment.Geometry)
	forward := &NetworkEdge{
		ID:            EdgeID(fmt.Sprintf("%d", segment.ID)),
		From:          fromNode,
		To:            toNode,
		Lanes:         segment.Lanes,
		Speed:         segment.Speed,
		LaneType:      segment.LaneType,
		Name:          segment.Name,
		SourceSegment: segment.ID,
		Length:        length,
		Geometry:      segment.Geometry,
	}
	switch segment.Oneway {
	case TRAVEL_FORWARD:
		graph.addEdge(forward)
	case TRAVEL_REVERSE:
		forward.From, forward.To = toNode, fromNode
		forward.Geometry = reverseLine(segment.Geometry)
		graph.addEdge(forward)
	default:
		graph.addEdge(forward)
		reverse := *forward
		reverse.ID = EdgeID(fmt.Sprintf("-%d", segment.ID))
		reverse.From, reverse.To = toNode, fromNode
		reverse.Geometry = reverseLine(segment.Geometry)
		graph.addEdge(&reverse)
	}
}

// collapseDuplicates removes overlapping edges sharing the same node pair.
// The survivor is the one with the richer attribute set: more lanes, then a
// named edge over an unnamed one, then the smaller source segment id.
func (builder *NetworkGraphBuilder) collapseDuplicates(graph *NetworkGraph) {
	grouped := make(map[string][]*NetworkEdge)
	for _, edge := range graph.Edges {
		key := edge.From + "->" + edge.To
		grouped[key] = append(grouped[key], edge)
	}
	keys := make([]string, 0, len(grouped))
	for key := range grouped {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	removed := []EdgeID{}
	for _, key := range keys {
		group := grouped[key]
		if len(group) < 2 {
			continue
		}
		sort.Slice(group, func(i, j int) bool { return richerEdge(group[i], group[j]) })
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				if geometryDeviation(group[i].Geometry, group[j].Geometry) > builder.cfg.DuplicateSimilarity {
					continue
				}
				builder.logger.Warn("Collapsed duplicate edge",
					zap.String("kept", string(group[i].ID)),
					zap.String("discarded", string(group[j].ID)),
					zap.Int64("kept_segment", int64(group[i].SourceSegment)),
					zap.Int64("discarded_segment", int64(group[j].SourceSegment)),
				)
				removed = append(removed, group[j].ID)
				group = append(group[:j], group[j+1:]...)
				j--
			}
		}
	}
	for _, id := range removed {
		edge := graph.Edges[id]
		delete(graph.Edges, id)
		graph.incoming[edge.To] = withoutEdge(graph.incoming[edge.To], id)
		graph.outgoing[edge.From] = withoutEdge(graph.outgoing[edge.From], id)
	}
}

// attachSignals assigns each signal record to the nearest node within the
// snap threshold. A contested node keeps the nearer record.
func (builder *NetworkGraphBuilder) attachSignals(graph *NetworkGraph, signals []*SignalPoint) {
	index := newSpatialIndex(graph.nodePoints())
	sorted := make([]*SignalPoint, len(signals))
	copy(sorted, signals)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	for _, signal := range sorted {
		nodeID, distance, ok := index.nearest(signal.Point, builder.cfg.SignalSnapDistance)
		if !ok {
			builder.logger.Warn("Signal point outside snap threshold",
				zap.String("signal", signal.ID),
				zap.Float64("threshold_m", builder.cfg.SignalSnapDistance),
			)
			continue
		}
		node := graph.Nodes[nodeID]
		if node.IsSignal {
			if distance >= node.signalDistance {
				builder.logger.Warn("Signal conflict: node keeps nearer record",
					zap.String("node", nodeID),
					zap.String("kept", node.SignalID),
					zap.String("dropped", signal.ID),
				)
				continue
			}
			builder.logger.Warn("Signal conflict: nearer record wins",
				zap.String("node", nodeID),
				zap.String("kept", signal.ID),
				zap.String("dropped", node.SignalID),
			)
		}
		node.IsSignal = true
		node.SignalID = signal.ID
		node.signalDistance = distance
	}
}

// checkConnectivity verifies that the largest connected component covers at
// least the configured fraction of total edge length. An unmet fraction means
// the filtered network is unusable downstream.
func (builder *NetworkGraphBuilder) checkConnectivity(graph *NetworkGraph) error {
	undirected, err := core.NewGraph()
	if err != nil {
		return errors.Wrap(err, "Can't build connectivity graph")
	}
	seenPairs := make(map[string]struct{})
	for _, edge := range graph.SortedEdges() {
		a, b := edge.From, edge.To
		if a == b {
			continue
		}
		if b < a {
			a, b = b, a
		}
		key := a + "|" + b
		if _, ok := seenPairs[key]; ok {
			continue
		}
		seenPairs[key] = struct{}{}
		if _, err := undirected.AddEdge(a, b, 0); err != nil {
			return errors.Wrap(err, "Can't build connectivity graph")
		}
	}

	component := make(map[string]int)
	componentID := 0
	for _, nodeID := range sortedKeys(graph.Nodes) {
		if _, visited := component[nodeID]; visited {
			continue
		}
		if !undirected.HasVertex(nodeID) {
			// Isolated node: no edges touch it after duplicate collapse.
			component[nodeID] = componentID
			componentID++
			continue
		}
		result, err := bfs.BFS(undirected, nodeID)
		if err != nil {
			return errors.Wrap(err, "Can't scan connected component")
		}
		for _, visitedID := range result.Order {
			if _, ok := component[visitedID]; !ok {
				component[visitedID] = componentID
			}
		}
		componentID++
	}

	lengthByComponent := make(map[int]float64)
	total := 0.0
	for _, edge := range graph.Edges {
		lengthByComponent[component[edge.From]] += edge.Length
		total += edge.Length
	}
	if total == 0.0 {
		return nil
	}
	largest := 0.0
	for _, length := range lengthByComponent {
		largest = math.Max(largest, length)
	}
	fraction := largest / total
	if fraction < builder.cfg.MinComponentFraction {
		return &FragmentedNetworkError{LargestFraction: fraction, MinFraction: builder.cfg.MinComponentFraction}
	}
	return nil
}

// endpointMerger snaps segment endpoints into shared nodes. Endpoints that
// carry the same external intersection id merge unconditionally; the rest
// merge by proximity on a deterministic grid.
type endpointMerger struct {
	radius   float64
	byExtID  map[int64]string
	grid     map[gridCell][]gridNode
	cellSize float64
	nextID   int
}

type gridCell struct {
	x int
	y int
}

type gridNode struct {
	id string
	pt orb.Point
}

func newEndpointMerger(radius float64) *endpointMerger {
	return &endpointMerger{
		radius:  radius,
		byExtID: make(map[int64]string),
		grid:    make(map[gridCell][]gridNode),
		// Cell edge of one snap radius guarantees any point within the
		// radius lives in the 3x3 cell neighborhood.
		cellSize: radius / metersPerDegree,
	}
}

func (merger *endpointMerger) resolve(graph *NetworkGraph, pt orb.Point, externalID int64) string {
	if externalID > 0 {
		if nodeID, ok := merger.byExtID[externalID]; ok {
			return nodeID
		}
	}
	if nodeID, ok := merger.findNearby(pt); ok {
		if externalID > 0 {
			merger.byExtID[externalID] = nodeID
		}
		return nodeID
	}
	nodeID := fmt.Sprintf("n%06d", merger.nextID)
	merger.nextID++
	graph.Nodes[nodeID] = &NetworkNode{ID: nodeID, Point: pt}
	if externalID > 0 {
		merger.byExtID[externalID] = nodeID
	}
	cell := merger.cellOf(pt)
	merger.grid[cell] = append(merger.grid[cell], gridNode{id: nodeID, pt: pt})
	return nodeID
}

func (merger *endpointMerger) findNearby(pt orb.Point) (string, bool) {
	center := merger.cellOf(pt)
	bestID := ""
	bestDistance := math.Inf(1)
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			cell := gridCell{x: center.x + dx, y: center.y + dy}
			for _, candidate := range merger.grid[cell] {
				d := greatCircleDistance(pt, candidate.pt)
				if d > merger.radius {
					continue
				}
				if d < bestDistance || (d == bestDistance && candidate.id < bestID) {
					bestID = candidate.id
					bestDistance = d
				}
			}
		}
	}
	return bestID, bestID != ""
}

func (merger *endpointMerger) cellOf(pt orb.Point) gridCell {
	// A longitude degree shrinks by cos(lat), so project x before bucketing
	// or in-radius neighbors can land outside the 3x3 scan.
	return gridCell{
		x: int(math.Floor(pt.X() * math.Cos(pt.Y()*math.Pi/180.0) / merger.cellSize)),
		y: int(math.Floor(pt.Y() / merger.cellSize)),
	}
}

// richerEdge orders duplicates so the survivor sorts first.
func richerEdge(a, b *NetworkEdge) bool {
	if a.Lanes != b.Lanes {
		return a.Lanes > b.Lanes
	}
	if (a.Name != "") != (b.Name != "") {
		return a.Name != ""
	}
	return a.SourceSegment < b.SourceSegment
}

// geometryDeviation estimates how far two lines diverge (meters) by
// comparing endpoints and middle points.
func geometryDeviation(a, b orb.LineString) float64 {
	if len(a) < 2 || len(b) < 2 {
		return math.Inf(1)
	}
	startD := greatCircleDistance(a[0], b[0])
	endD := greatCircleDistance(a[len(a)-1], b[len(b)-1])
	midD := greatCircleDistance(middlePointSegment(a[0], a[len(a)-1]), middlePointSegment(b[0], b[len(b)-1]))
	return (startD + endD + midD) / 3.0
}

func reverseLine(line orb.LineString) orb.LineString {
	reversed := make(orb.LineString, len(line))
	for i, pt := range line {
		reversed[len(line)-1-i] = pt
	}
	return reversed
}

func withoutEdge(ids []EdgeID, target EdgeID) []EdgeID {
	filtered := ids[:0]
	for _, id := range ids {
		if id != target {
			filtered = append(filtered, id)
		}
	}
	return filtered
}

func sortedKeys(nodes map[string]*NetworkNode) []string {
	keys := make([]string, 0, len(nodes))
	for key := range nodes {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
