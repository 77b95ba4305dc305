package citynet

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/LdDl/ch"
	"github.com/paulmach/orb"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// TransitStop is one GTFS stop.
type TransitStop struct {
	ID    string
	Name  string
	Point orb.Point
}

// TransitRoute is one GTFS route with its representative stop sequence and
// the scheduled first-stop departures of all its trips (seconds of day).
type TransitRoute struct {
	ID         string
	ShortName  string
	Type       int
	Kind       RouteKind
	StopIDs    []string
	Departures []int
}

// TransitFeed is the loaded GTFS dataset.
type TransitFeed struct {
	Routes []*TransitRoute
	Stops  map[string]*TransitStop
}

// SnappedStop is a stop bound to its nearest graph edge.
type SnappedStop struct {
	StopID   string
	Edge     EdgeID
	Distance float64
}

// TransitVehicle is one route mapped onto the graph: the snapped stop
// sequence, the edge path connecting it and the scheduled departures.
type TransitVehicle struct {
	RouteID    string
	ShortName  string
	Stops      []SnappedStop
	EdgePath   []EdgeID
	Departures []int
}

// LoadGTFS reads routes.txt, trips.txt, stops.txt and stop_times.txt from a
// GTFS directory. Each route keeps one representative trip's stop sequence
// (the lexically smallest trip id) plus every trip's first departure time.
func LoadGTFS(dir string, routeTypes []int, logger *zap.Logger) (*TransitFeed, error) {
	wantedTypes := make(map[int]struct{}, len(routeTypes))
	for _, routeType := range routeTypes {
		wantedTypes[routeType] = struct{}{}
	}

	routeRows, err := readGTFSFile(filepath.Join(dir, "routes.txt"))
	if err != nil {
		return nil, err
	}
	stopRows, err := readGTFSFile(filepath.Join(dir, "stops.txt"))
	if err != nil {
		return nil, err
	}
	tripRows, err := readGTFSFile(filepath.Join(dir, "trips.txt"))
	if err != nil {
		return nil, err
	}
	stopTimeRows, err := readGTFSFile(filepath.Join(dir, "stop_times.txt"))
	if err != nil {
		return nil, err
	}

	stops := make(map[string]*TransitStop, len(stopRows))
	for _, row := range stopRows {
		lat, latErr := strconv.ParseFloat(row["stop_lat"], 64)
		lon, lonErr := strconv.ParseFloat(row["stop_lon"], 64)
		if row["stop_id"] == "" || latErr != nil || lonErr != nil {
			continue
		}
		stops[row["stop_id"]] = &TransitStop{
			ID:    row["stop_id"],
			Name:  row["stop_name"],
			Point: orb.Point{lon, lat},
		}
	}

	routeByID := make(map[string]*TransitRoute)
	routeOrder := []string{}
	for _, row := range routeRows {
		if row["route_id"] == "" {
			continue
		}
		routeType, _ := strconv.Atoi(row["route_type"])
		if len(wantedTypes) > 0 {
			if _, ok := wantedTypes[routeType]; !ok {
				continue
			}
		}
		routeByID[row["route_id"]] = &TransitRoute{
			ID:        row["route_id"],
			ShortName: row["route_short_name"],
			Type:      routeType,
			Kind:      routeKindForGTFSType(routeType),
		}
		routeOrder = append(routeOrder, row["route_id"])
	}

	tripToRoute := make(map[string]string, len(tripRows))
	for _, row := range tripRows {
		if _, ok := routeByID[row["route_id"]]; ok && row["trip_id"] != "" {
			tripToRoute[row["trip_id"]] = row["route_id"]
		}
	}

	type stopTimeEntry struct {
		stopID    string
		sequence  int
		departure int
	}
	byTrip := make(map[string][]stopTimeEntry)
	for _, row := range stopTimeRows {
		tripID := row["trip_id"]
		if _, ok := tripToRoute[tripID]; !ok {
			continue
		}
		sequence, err := strconv.Atoi(row["stop_sequence"])
		if err != nil {
			continue
		}
		departure, err := parseTimeOfDay(row["departure_time"])
		if err != nil {
			continue
		}
		byTrip[tripID] = append(byTrip[tripID], stopTimeEntry{
			stopID:    row["stop_id"],
			sequence:  sequence,
			departure: departure,
		})
	}

	representative := make(map[string]string) // route -> trip
	for tripID, routeID := range tripToRoute {
		if _, ok := byTrip[tripID]; !ok {
			continue
		}
		if current, ok := representative[routeID]; !ok || tripID < current {
			representative[routeID] = tripID
		}
	}

	feed := &TransitFeed{Stops: stops}
	for _, routeID := range routeOrder {
		route := routeByID[routeID]
		tripID, ok := representative[routeID]
		if !ok {
			continue
		}
		entries := byTrip[tripID]
		sort.Slice(entries, func(i, j int) bool { return entries[i].sequence < entries[j].sequence })
		for _, entry := range entries {
			route.StopIDs = append(route.StopIDs, entry.stopID)
		}
		for tripID, routeOfTrip := range tripToRoute {
			if routeOfTrip != routeID {
				continue
			}
			entries := byTrip[tripID]
			if len(entries) == 0 {
				continue
			}
			first := entries[0]
			for _, entry := range entries {
				if entry.sequence < first.sequence {
					first = entry
				}
			}
			route.Departures = append(route.Departures, first.departure)
		}
		sort.Ints(route.Departures)
		feed.Routes = append(feed.Routes, route)
	}
	sort.Slice(feed.Routes, func(i, j int) bool { return feed.Routes[i].ID < feed.Routes[j].ID })
	logger.Info("Loaded GTFS feed", zap.Int("routes", len(feed.Routes)), zap.Int("stops", len(stops)))
	return feed, nil
}

func readGTFSFile(path string) ([]map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "Can't open GTFS file '%s'", path)
	}
	defer f.Close()
	return readGTFS(f, filepath.Base(path))
}

func readGTFS(r io.Reader, name string) ([]map[string]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		return nil, errors.Wrapf(err, "Can't read GTFS header of '%s'", name)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\uFEFF"))
	}
	rows := []map[string]string{}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "Can't read GTFS record of '%s'", name)
		}
		row := make(map[string]string, len(header))
		for i, value := range record {
			if i < len(header) {
				row[header[i]] = strings.TrimSpace(value)
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// transitMapper snaps routes onto the graph and routes between stops with a
// contraction-hierarchies router over edge lengths.
type transitMapper struct {
	graph       *NetworkGraph
	cfg         *TransitConfig
	logger      *zap.Logger
	vertexIndex *spatialIndex
	vertexEdges map[string][]EdgeID

	router      *ch.Graph
	nodeNumbers map[string]int64
	nodeNames   map[int64]string
	pairEdges   map[string]EdgeID
}

func newTransitMapper(graph *NetworkGraph, cfg *TransitConfig, logger *zap.Logger) *transitMapper {
	mapper := &transitMapper{
		graph:       graph,
		cfg:         cfg,
		logger:      logger,
		vertexEdges: make(map[string][]EdgeID),
		nodeNumbers: make(map[string]int64),
		nodeNames:   make(map[int64]string),
		pairEdges:   make(map[string]EdgeID),
	}
	mapper.buildEdgeIndex()
	mapper.buildRouter()
	return mapper
}

// buildEdgeIndex registers every edge geometry vertex so stop snapping can
// shortlist candidate edges before measuring exact point-to-line distance.
func (mapper *transitMapper) buildEdgeIndex() {
	points := make(map[string]orb.Point)
	for _, edge := range mapper.graph.SortedEdges() {
		for i, pt := range edge.Geometry {
			key := fmt.Sprintf("%s#%d", edge.ID, i)
			points[key] = pt
			mapper.vertexEdges[key] = append(mapper.vertexEdges[key], edge.ID)
		}
	}
	mapper.vertexIndex = newSpatialIndex(points)
}

func (mapper *transitMapper) buildRouter() {
	router := &ch.Graph{}
	number := int64(0)
	numberOf := func(nodeID string) int64 {
		if n, ok := mapper.nodeNumbers[nodeID]; ok {
			return n
		}
		number++
		mapper.nodeNumbers[nodeID] = number
		mapper.nodeNames[number] = nodeID
		return number
	}
	for _, edge := range mapper.graph.SortedEdges() {
		source := numberOf(edge.From)
		target := numberOf(edge.To)
		if err := router.CreateVertex(source); err != nil {
			continue
		}
		if err := router.CreateVertex(target); err != nil {
			continue
		}
		if err := router.AddEdge(source, target, edge.Length); err != nil {
			continue
		}
		pair := edge.From + "->" + edge.To
		if current, ok := mapper.pairEdges[pair]; !ok || edge.ID < current {
			mapper.pairEdges[pair] = edge.ID
		}
	}
	router.PrepareContractionHierarchies()
	mapper.router = router
}

// mapFeed snaps every route. Stops beyond the snap threshold are dropped and
// the sequence shortened, never fabricated; a route left without at least
// two snapped stops is unroutable and excluded.
func (mapper *transitMapper) mapFeed(feed *TransitFeed, report *DemandReport) []*TransitVehicle {
	vehicles := []*TransitVehicle{}
	for _, route := range feed.Routes {
		snapped := []SnappedStop{}
		for _, stopID := range route.StopIDs {
			stop, ok := feed.Stops[stopID]
			if !ok {
				continue
			}
			edgeID, distance, ok := mapper.snapStop(stop.Point)
			if !ok {
				mapper.logger.Warn("Dropped transit stop beyond snap threshold",
					zap.String("route", route.ID),
					zap.String("stop", stopID),
					zap.Float64("threshold_m", mapper.cfg.StopSnapDistance),
				)
				report.DroppedStops++
				continue
			}
			snapped = append(snapped, SnappedStop{StopID: stopID, Edge: edgeID, Distance: distance})
		}
		if len(snapped) < 2 {
			mapper.logger.Warn("Unroutable transit route excluded",
				zap.String("route", route.ID),
				zap.String("kind", route.Kind.String()),
				zap.Int("snapped_stops", len(snapped)),
			)
			report.UnroutableRoutes++
			continue
		}
		vehicles = append(vehicles, &TransitVehicle{
			RouteID:    route.ID,
			ShortName:  route.ShortName,
			Stops:      snapped,
			EdgePath:   mapper.routePath(route.ID, snapped),
			Departures: route.Departures,
		})
	}
	sort.Slice(vehicles, func(i, j int) bool { return vehicles[i].RouteID < vehicles[j].RouteID })
	report.TransitRoutes = len(vehicles)
	return vehicles
}

// snapStop finds the nearest edge within the snap threshold by exact
// point-to-line distance over shortlisted candidates.
func (mapper *transitMapper) snapStop(pt orb.Point) (EdgeID, float64, bool) {
	candidates := mapper.vertexIndex.within(pt, mapper.cfg.StopSnapDistance*2.0, 24)
	seen := make(map[EdgeID]struct{})
	bestEdge := EdgeID("")
	bestDistance := math.Inf(1)
	found := false
	for _, candidate := range candidates {
		for _, edgeID := range mapper.vertexEdges[candidate.id] {
			if _, ok := seen[edgeID]; ok {
				continue
			}
			seen[edgeID] = struct{}{}
			edge := mapper.graph.Edges[edgeID]
			d := distancePointToLine(pt, edge.Geometry)
			// A stop exactly at the threshold still snaps.
			if d > mapper.cfg.StopSnapDistance {
				continue
			}
			if d < bestDistance || (d == bestDistance && edgeID < bestEdge) {
				bestEdge = edgeID
				bestDistance = d
				found = true
			}
		}
	}
	return bestEdge, bestDistance, found
}

// routePath concatenates shortest paths between consecutive stop edges. A
// missing path leaves a gap, logged; the vehicle still serves both stops.
func (mapper *transitMapper) routePath(routeID string, stops []SnappedStop) []EdgeID {
	path := []EdgeID{stops[0].Edge}
	for i := 1; i < len(stops); i++ {
		fromEdge := mapper.graph.Edges[stops[i-1].Edge]
		toEdge := mapper.graph.Edges[stops[i].Edge]
		if fromEdge.ID == toEdge.ID {
			continue
		}
		source, okSource := mapper.nodeNumbers[fromEdge.To]
		target, okTarget := mapper.nodeNumbers[toEdge.From]
		if okSource && okTarget {
			if source == target {
				path = append(path, toEdge.ID)
				continue
			}
			cost, vertexPath := mapper.router.ShortestPath(source, target)
			if cost >= 0 && len(vertexPath) > 1 {
				for j := 1; j < len(vertexPath); j++ {
					pair := mapper.nodeNames[vertexPath[j-1]] + "->" + mapper.nodeNames[vertexPath[j]]
					if edgeID, ok := mapper.pairEdges[pair]; ok {
						path = append(path, edgeID)
					}
				}
				path = append(path, toEdge.ID)
				continue
			}
		}
		mapper.logger.Warn("No path between consecutive transit stops",
			zap.String("route", routeID),
			zap.String("from_edge", string(fromEdge.ID)),
			zap.String("to_edge", string(toEdge.ID)),
		)
		path = append(path, toEdge.ID)
	}
	return path
}
