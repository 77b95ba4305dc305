package citynet

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ArtifactBundle names every file the composer wrote, keyed by artifact kind.
type ArtifactBundle struct {
	Nodes     string `json:"nodes"`
	Edges     string `json:"edges"`
	Detectors string `json:"detectors"`
	Movements string `json:"movements"`
	Demand    string `json:"demand"`
	Manifest  string `json:"manifest"`
}

// ArtifactComposer validates cross-references and writes the fused dataset
// as simulator-ready files. Two runs over identical inputs produce
// byte-identical artifacts.
type ArtifactComposer struct {
	cfg    *Config
	logger *zap.Logger
}

func NewArtifactComposer(cfg *Config, logger *zap.Logger) *ArtifactComposer {
	return &ArtifactComposer{cfg: cfg, logger: logger}
}

// Compose checks referential integrity of every derived record against the
// graph and writes the artifact set under dir with the given base name.
func (composer *ArtifactComposer) Compose(dir, base string, graph *NetworkGraph, detectors []*Detector, movements []*TurningMovement, plan *DemandPlan) (*ArtifactBundle, error) {
	if err := composer.checkReferences(graph, detectors, movements, plan); err != nil {
		return nil, err
	}

	bundle := &ArtifactBundle{
		Nodes:     filepath.Join(dir, base+"_nodes.csv"),
		Edges:     filepath.Join(dir, base+"_edges.csv"),
		Detectors: filepath.Join(dir, base+"_detectors.csv"),
		Movements: filepath.Join(dir, base+"_movements.csv"),
		Demand:    filepath.Join(dir, base+"_demand.json"),
		Manifest:  filepath.Join(dir, base+"_manifest.json"),
	}

	if err := composer.exportNodesToCSV(bundle.Nodes, graph); err != nil {
		return nil, errors.Wrap(err, "Can't export nodes")
	}
	if err := composer.exportEdgesToCSV(bundle.Edges, graph); err != nil {
		return nil, errors.Wrap(err, "Can't export edges")
	}
	if err := composer.exportDetectorsToCSV(bundle.Detectors, detectors); err != nil {
		return nil, errors.Wrap(err, "Can't export detectors")
	}
	if err := composer.exportMovementsToCSV(bundle.Movements, movements); err != nil {
		return nil, errors.Wrap(err, "Can't export movements")
	}
	if err := composer.exportDemandToJSON(bundle.Demand, plan); err != nil {
		return nil, errors.Wrap(err, "Can't export demand")
	}
	if err := composer.exportManifest(bundle, graph, detectors, movements, plan); err != nil {
		return nil, errors.Wrap(err, "Can't export manifest")
	}

	composer.logger.Info("Composed artifact bundle",
		zap.String("dir", dir),
		zap.Int("nodes", len(graph.Nodes)),
		zap.Int("edges", len(graph.Edges)),
		zap.Int("detectors", len(detectors)),
		zap.Int("movements", len(movements)),
		zap.Int("trips", len(plan.Trips)),
	)
	return bundle, nil
}

func (composer *ArtifactComposer) checkReferences(graph *NetworkGraph, detectors []*Detector, movements []*TurningMovement, plan *DemandPlan) error {
	hasEdge := func(id EdgeID) bool {
		_, ok := graph.Edges[id]
		return ok
	}
	hasNode := func(id string) bool {
		_, ok := graph.Nodes[id]
		return ok
	}

	for _, detector := range detectors {
		if detector.Edge != "" && !hasEdge(detector.Edge) {
			return &ReferentialIntegrityError{Record: "detector " + detector.ID, Ref: string(detector.Edge)}
		}
		if detector.Junction != "" && !hasNode(detector.Junction) {
			return &ReferentialIntegrityError{Record: "detector " + detector.ID, Ref: detector.Junction}
		}
		for _, entry := range detector.EntryEdges {
			if !hasEdge(entry) {
				return &ReferentialIntegrityError{Record: "detector " + detector.ID, Ref: string(entry)}
			}
		}
		for _, exit := range detector.ExitEdges {
			if !hasEdge(exit) {
				return &ReferentialIntegrityError{Record: "detector " + detector.ID, Ref: string(exit)}
			}
		}
	}
	for _, movement := range movements {
		if !hasNode(movement.Junction) {
			return &ReferentialIntegrityError{Record: "movement at " + movement.Junction, Ref: movement.Junction}
		}
		if !hasEdge(movement.FromEdge) {
			return &ReferentialIntegrityError{Record: "movement at " + movement.Junction, Ref: string(movement.FromEdge)}
		}
		if !hasEdge(movement.ToEdge) {
			return &ReferentialIntegrityError{Record: "movement at " + movement.Junction, Ref: string(movement.ToEdge)}
		}
	}
	for _, trip := range plan.Trips {
		if !hasEdge(trip.FromEdge) {
			return &ReferentialIntegrityError{Record: "trip " + trip.ID, Ref: string(trip.FromEdge)}
		}
		if !hasEdge(trip.ToEdge) {
			return &ReferentialIntegrityError{Record: "trip " + trip.ID, Ref: string(trip.ToEdge)}
		}
	}
	for _, weight := range plan.Weights {
		if !hasEdge(weight.Edge) {
			return &ReferentialIntegrityError{Record: "edge weight", Ref: string(weight.Edge)}
		}
	}
	for _, vehicle := range plan.Transit {
		for _, edgeID := range vehicle.EdgePath {
			if !hasEdge(edgeID) {
				return &ReferentialIntegrityError{Record: "transit route " + vehicle.RouteID, Ref: string(edgeID)}
			}
		}
	}
	return nil
}

func (composer *ArtifactComposer) exportNodesToCSV(fname string, graph *NetworkGraph) error {
	file, err := os.Create(fname)
	if err != nil {
		return errors.Wrap(err, "Can't create file")
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()
	writer.Comma = ';'

	err = writer.Write([]string{"id", "is_signal", "signal_id", "geom"})
	if err != nil {
		return errors.Wrap(err, "Can't write header")
	}

	for _, node := range graph.SortedNodes() {
		err = writer.Write([]string{
			node.ID,
			fmt.Sprintf("%t", node.IsSignal),
			node.SignalID,
			wkt.MarshalString(node.Point),
		})
		if err != nil {
			return errors.Wrap(err, "Can't write node")
		}
	}
	return nil
}

func (composer *ArtifactComposer) exportEdgesToCSV(fname string, graph *NetworkGraph) error {
	file, err := os.Create(fname)
	if err != nil {
		return errors.Wrap(err, "Can't create file")
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()
	writer.Comma = ';'

	err = writer.Write([]string{"id", "source_node", "target_node", "segment_id", "lane_type", "lanes", "max_speed", "length_meters", "name", "geom"})
	if err != nil {
		return errors.Wrap(err, "Can't write header")
	}

	for _, edge := range graph.SortedEdges() {
		err = writer.Write([]string{
			string(edge.ID),
			edge.From,
			edge.To,
			fmt.Sprintf("%d", edge.SourceSegment),
			fmt.Sprintf("%s", edge.LaneType),
			fmt.Sprintf("%d", edge.Lanes),
			fmt.Sprintf("%f", edge.Speed),
			fmt.Sprintf("%f", edge.Length),
			edge.Name,
			wkt.MarshalString(edge.Geometry),
		})
		if err != nil {
			return errors.Wrap(err, "Can't write edge")
		}
	}
	return nil
}

func (composer *ArtifactComposer) exportDetectorsToCSV(fname string, detectors []*Detector) error {
	file, err := os.Create(fname)
	if err != nil {
		return errors.Wrap(err, "Can't create file")
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()
	writer.Comma = ';'

	err = writer.Write([]string{"id", "family", "edge", "lane", "position", "length", "frequency", "junction", "entry_edges", "exit_edges"})
	if err != nil {
		return errors.Wrap(err, "Can't write header")
	}

	for _, detector := range detectors {
		entries := make([]string, len(detector.EntryEdges))
		for i, entry := range detector.EntryEdges {
			entries[i] = string(entry)
		}
		exits := make([]string, len(detector.ExitEdges))
		for i, exit := range detector.ExitEdges {
			exits[i] = string(exit)
		}
		err = writer.Write([]string{
			detector.ID,
			fmt.Sprintf("%s", detector.Family),
			string(detector.Edge),
			fmt.Sprintf("%d", detector.Lane),
			fmt.Sprintf("%f", detector.Offset),
			fmt.Sprintf("%f", detector.Length),
			fmt.Sprintf("%d", detector.Frequency),
			detector.Junction,
			strings.Join(entries, ","),
			strings.Join(exits, ","),
		})
		if err != nil {
			return errors.Wrap(err, "Can't write detector")
		}
	}
	return nil
}

func (composer *ArtifactComposer) exportMovementsToCSV(fname string, movements []*TurningMovement) error {
	file, err := os.Create(fname)
	if err != nil {
		return errors.Wrap(err, "Can't create file")
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()
	writer.Comma = ';'

	err = writer.Write([]string{"junction", "from_edge", "to_edge", "time_bin", "count"})
	if err != nil {
		return errors.Wrap(err, "Can't write header")
	}

	for _, movement := range movements {
		err = writer.Write([]string{
			movement.Junction,
			string(movement.FromEdge),
			string(movement.ToEdge),
			fmt.Sprintf("%d", movement.TimeBin),
			fmt.Sprintf("%d", movement.Count),
		})
		if err != nil {
			return errors.Wrap(err, "Can't write movement")
		}
	}
	return nil
}

type demandDocument struct {
	Trips   []tripRecord          `json:"trips"`
	Weights []weightRecord        `json:"edge_weights"`
	Transit []transitRouteRecord  `json:"transit_routes"`
	Report  demandSummaryDocument `json:"report"`
}

type tripRecord struct {
	ID       string  `json:"id"`
	Depart   float64 `json:"depart"`
	Junction string  `json:"junction"`
	FromEdge string  `json:"from_edge"`
	ToEdge   string  `json:"to_edge"`
}

type weightRecord struct {
	Edge        string  `json:"edge"`
	Via         float64 `json:"via"`
	Source      float64 `json:"source"`
	Destination float64 `json:"destination"`
}

type transitRouteRecord struct {
	RouteID    string   `json:"route_id"`
	ShortName  string   `json:"short_name"`
	Stops      []string `json:"stop_edges"`
	EdgePath   []string `json:"edge_path"`
	Departures []int    `json:"departures"`
}

type demandSummaryDocument struct {
	JunctionBins     int `json:"junction_bins"`
	GeneratedTrips   int `json:"generated_trips"`
	TransitRoutes    int `json:"transit_routes"`
	UnroutableRoutes int `json:"unroutable_routes"`
	DroppedStops     int `json:"dropped_stops"`
}

func (composer *ArtifactComposer) exportDemandToJSON(fname string, plan *DemandPlan) error {
	document := demandDocument{
		Trips:   make([]tripRecord, 0, len(plan.Trips)),
		Weights: make([]weightRecord, 0, len(plan.Weights)),
		Transit: make([]transitRouteRecord, 0, len(plan.Transit)),
		Report: demandSummaryDocument{
			JunctionBins:     plan.Report.JunctionBins,
			GeneratedTrips:   plan.Report.GeneratedTrips,
			TransitRoutes:    plan.Report.TransitRoutes,
			UnroutableRoutes: plan.Report.UnroutableRoutes,
			DroppedStops:     plan.Report.DroppedStops,
		},
	}
	for _, trip := range plan.Trips {
		document.Trips = append(document.Trips, tripRecord{
			ID:       trip.ID,
			Depart:   trip.Depart,
			Junction: trip.Junction,
			FromEdge: string(trip.FromEdge),
			ToEdge:   string(trip.ToEdge),
		})
	}
	for _, weight := range plan.Weights {
		document.Weights = append(document.Weights, weightRecord{
			Edge:        string(weight.Edge),
			Via:         weight.Via,
			Source:      weight.Source,
			Destination: weight.Destination,
		})
	}
	for _, vehicle := range plan.Transit {
		record := transitRouteRecord{
			RouteID:    vehicle.RouteID,
			ShortName:  vehicle.ShortName,
			Departures: vehicle.Departures,
		}
		for _, stop := range vehicle.Stops {
			record.Stops = append(record.Stops, string(stop.Edge))
		}
		for _, edgeID := range vehicle.EdgePath {
			record.EdgePath = append(record.EdgePath, string(edgeID))
		}
		document.Transit = append(document.Transit, record)
	}
	return writeJSONFile(fname, &document)
}

type artifactManifest struct {
	Extent    string          `json:"extent"`
	Area      string          `json:"area,omitempty"`
	Files     *ArtifactBundle `json:"files"`
	Nodes     int             `json:"nodes"`
	Edges     int             `json:"edges"`
	Signals   int             `json:"signals"`
	Detectors int             `json:"detectors"`
	Movements int             `json:"movements"`
	Trips     int             `json:"trips"`
	Transit   int             `json:"transit_routes"`
}

func (composer *ArtifactComposer) exportManifest(bundle *ArtifactBundle, graph *NetworkGraph, detectors []*Detector, movements []*TurningMovement, plan *DemandPlan) error {
	manifest := artifactManifest{
		Extent:    composer.cfg.Network.Extent,
		Area:      composer.cfg.Network.Area,
		Files:     bundle,
		Nodes:     len(graph.Nodes),
		Edges:     len(graph.Edges),
		Signals:   len(graph.SignalNodes()),
		Detectors: len(detectors),
		Movements: len(movements),
		Trips:     len(plan.Trips),
		Transit:   len(plan.Transit),
	}
	return writeJSONFile(bundle.Manifest, &manifest)
}

func writeJSONFile(fname string, document interface{}) error {
	file, err := os.Create(fname)
	if err != nil {
		return errors.Wrap(err, "Can't create file")
	}
	defer file.Close()
	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(document); err != nil {
		return errors.Wrap(err, "Can't encode JSON")
	}
	return nil
}
