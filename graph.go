package citynet

import (
	"sort"

	"github.com/paulmach/orb"
)

// EdgeID is the derived identifier of a directed edge. A bidirectional
// segment yields ids "<segment>" and "-<segment>".
type EdgeID string

// NetworkNode is a junction produced by endpoint merging. Unique by
// spatially-snapped coordinate within the configured snap radius.
type NetworkNode struct {
	ID       string
	Point    orb.Point
	IsSignal bool
	SignalID string

	// signalDistance is kept during construction so a nearer signal record
	// can win a contested node.
	signalDistance float64
}

// NetworkEdge is one directed edge of the canonical graph.
type NetworkEdge struct {
	ID            EdgeID
	From          string
	To            string
	Lanes         int
	Speed         float64
	LaneType      LaneType
	Name          string
	SourceSegment SegmentID
	Length        float64
	Geometry      orb.LineString
}

// Bearing returns the edge's overall compass angle (degrees).
func (edge *NetworkEdge) Bearing() float64 {
	return lineBearing(edge.Geometry)
}

// NetworkGraph is the canonical road network: derived, immutable after the
// build stage.
type NetworkGraph struct {
	Nodes map[string]*NetworkNode
	Edges map[EdgeID]*NetworkEdge

	incoming map[string][]EdgeID
	outgoing map[string][]EdgeID
}

func newNetworkGraph() *NetworkGraph {
	return &NetworkGraph{
		Nodes:    make(map[string]*NetworkNode),
		Edges:    make(map[EdgeID]*NetworkEdge),
		incoming: make(map[string][]EdgeID),
		outgoing: make(map[string][]EdgeID),
	}
}

func (graph *NetworkGraph) addEdge(edge *NetworkEdge) {
	graph.Edges[edge.ID] = edge
	graph.incoming[edge.To] = append(graph.incoming[edge.To], edge.ID)
	graph.outgoing[edge.From] = append(graph.outgoing[edge.From], edge.ID)
}

// finalize sorts every adjacency list so traversal order never depends on map
// iteration.
func (graph *NetworkGraph) finalize() {
	for _, ids := range graph.incoming {
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	}
	for _, ids := range graph.outgoing {
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	}
}

// IncomingEdges lists edges terminating at the node, sorted by id.
func (graph *NetworkGraph) IncomingEdges(nodeID string) []*NetworkEdge {
	return graph.edgeList(graph.incoming[nodeID])
}

// OutgoingEdges lists edges departing the node, sorted by id.
func (graph *NetworkGraph) OutgoingEdges(nodeID string) []*NetworkEdge {
	return graph.edgeList(graph.outgoing[nodeID])
}

func (graph *NetworkGraph) edgeList(ids []EdgeID) []*NetworkEdge {
	edges := make([]*NetworkEdge, 0, len(ids))
	for _, id := range ids {
		edges = append(edges, graph.Edges[id])
	}
	return edges
}

// SignalNodes lists signal-bearing nodes sorted by id.
func (graph *NetworkGraph) SignalNodes() []*NetworkNode {
	nodes := make([]*NetworkNode, 0)
	for _, node := range graph.Nodes {
		if node.IsSignal {
			nodes = append(nodes, node)
		}
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes
}

// SortedNodes lists every node sorted by id.
func (graph *NetworkGraph) SortedNodes() []*NetworkNode {
	nodes := make([]*NetworkNode, 0, len(graph.Nodes))
	for _, node := range graph.Nodes {
		nodes = append(nodes, node)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes
}

// SortedEdges lists every edge sorted by id.
func (graph *NetworkGraph) SortedEdges() []*NetworkEdge {
	edges := make([]*NetworkEdge, 0, len(graph.Edges))
	for _, edge := range graph.Edges {
		edges = append(edges, edge)
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].ID < edges[j].ID })
	return edges
}

// TotalEdgeLength sums directed edge lengths (meters).
func (graph *NetworkGraph) TotalEdgeLength() float64 {
	total := 0.0
	for _, edge := range graph.Edges {
		total += edge.Length
	}
	return total
}

// nodePoints returns the id->coordinate set for spatial indexing.
func (graph *NetworkGraph) nodePoints() map[string]orb.Point {
	points := make(map[string]orb.Point, len(graph.Nodes))
	for id, node := range graph.Nodes {
		points[id] = node.Point
	}
	return points
}
