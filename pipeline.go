package citynet

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// PipelineInputs names the source files of one build. CentrelinePath and
// OSMPath are alternative road sources; exactly one must be set. Signal,
// count and GTFS inputs are optional: a missing source degrades the build
// (no detectors, no demand) without failing it.
type PipelineInputs struct {
	CentrelinePath     string
	OSMPath            string
	WardsPath          string
	NeighbourhoodsPath string
	SignalsPath        string
	CountsPath         string
	CrosswalkOverride  Crosswalk
	GTFSDir            string
	OutputDir          string
	BaseName           string
	ExportGeoJSON      bool
	Workers            int
}

// Pipeline runs the fusion stages in order: load, filter, graph, detectors,
// crosswalk, turning movements, demand, artifacts. Stage errors from typed
// fatal conditions abort the build; degraded conditions are logged and
// carried in the demand report.
type Pipeline struct {
	cfg    *Config
	logger *zap.Logger
}

func NewPipeline(cfg *Config, logger *zap.Logger) *Pipeline {
	return &Pipeline{cfg: cfg, logger: logger}
}

func (p *Pipeline) Run(inputs *PipelineInputs) (*ArtifactBundle, error) {
	segments, err := p.loadSegments(inputs)
	if err != nil {
		return nil, err
	}

	boundary, err := p.resolveBoundary(inputs)
	if err != nil {
		return nil, err
	}

	filtered, stats := FilterCentreline(segments, boundary, &p.cfg.Network, p.logger)
	p.logger.Info("Filtered centreline",
		zap.Int("input", stats.Input),
		zap.Int("retained", stats.Retained),
		zap.Int("dropped_lane_type", stats.DroppedLaneType),
		zap.Int("dropped_boundary", stats.DroppedBoundary),
	)

	signals, err := p.loadSignals(inputs)
	if err != nil {
		return nil, err
	}

	builder := NewNetworkGraphBuilder(&p.cfg.Network, p.logger)
	graph, err := builder.Build(filtered, signals)
	if err != nil {
		return nil, err
	}

	planner := NewDetectorPlanner(&p.cfg.Detectors, p.logger)
	detectors := planner.Plan(graph)

	movements, err := p.computeMovements(inputs, graph)
	if err != nil {
		return nil, err
	}

	plan, err := p.synthesizeDemand(inputs, movements, graph)
	if err != nil {
		return nil, err
	}

	// Nothing is written until every stage has passed, so a fatal error
	// leaves no partial artifact behind.
	if inputs.ExportGeoJSON {
		fname := filepath.Join(inputs.OutputDir, inputs.BaseName+"_graph.geojson")
		if err := ExportGraphToGeoJSON(fname, graph); err != nil {
			return nil, err
		}
	}

	composer := NewArtifactComposer(p.cfg, p.logger)
	return composer.Compose(inputs.OutputDir, inputs.BaseName, graph, detectors, movements, plan)
}

func (p *Pipeline) loadSegments(inputs *PipelineInputs) ([]*CentrelineSegment, error) {
	if inputs.OSMPath != "" {
		return LoadCentrelineOSM(inputs.OSMPath, DefaultOSMSource(), p.logger)
	}
	if inputs.CentrelinePath == "" {
		return nil, errors.New("no road source given: set a centreline or OSM file")
	}
	data, err := os.ReadFile(inputs.CentrelinePath)
	if err != nil {
		return nil, errors.Wrapf(err, "Can't read centreline file '%s'", inputs.CentrelinePath)
	}
	return LoadCentreline(data, p.logger)
}

func (p *Pipeline) resolveBoundary(inputs *PipelineInputs) (*Boundary, error) {
	spec := p.cfg.Network.ExtentSpec()
	switch spec.Kind {
	case "city_wide", "by_junctions":
		return CityWideBoundary(), nil
	case "by_ward":
		return p.loadBoundary(inputs.WardsPath, BOUNDARY_WARD, spec)
	case "by_neighbourhood":
		return p.loadBoundary(inputs.NeighbourhoodsPath, BOUNDARY_NEIGHBOURHOOD, spec)
	}
	return nil, &UnknownExtentError{Kind: spec.Kind, Name: spec.Name}
}

func (p *Pipeline) loadBoundary(path string, kind BoundaryKind, spec ExtentSpec) (*Boundary, error) {
	if path == "" {
		return nil, errors.Errorf("extent '%s' needs a boundary file", spec.Kind)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "Can't read boundary file '%s'", path)
	}
	set, err := LoadBoundaries(data, kind)
	if err != nil {
		return nil, err
	}
	return set.Resolve(spec)
}

func (p *Pipeline) loadSignals(inputs *PipelineInputs) ([]*SignalPoint, error) {
	if inputs.SignalsPath == "" {
		p.logger.Warn("No signal source given, graph will carry no signalised junctions")
		return nil, nil
	}
	f, err := os.Open(inputs.SignalsPath)
	if err != nil {
		return nil, errors.Wrapf(err, "Can't open signals file '%s'", inputs.SignalsPath)
	}
	defer f.Close()
	return LoadSignalPoints(f, p.logger)
}

func (p *Pipeline) computeMovements(inputs *PipelineInputs, graph *NetworkGraph) ([]*TurningMovement, error) {
	if inputs.CountsPath == "" {
		return nil, &InsufficientDataError{Reason: "no turning-movement count source given"}
	}
	f, err := os.Open(inputs.CountsPath)
	if err != nil {
		return nil, errors.Wrapf(err, "Can't open counts file '%s'", inputs.CountsPath)
	}
	defer f.Close()
	stations, err := LoadCountStations(f, p.cfg.Traffic.Modes, p.logger)
	if err != nil {
		return nil, err
	}

	crosswalk := inputs.CrosswalkOverride
	if crosswalk == nil {
		workers := inputs.Workers
		if workers <= 0 {
			workers = runtime.NumCPU()
		}
		crosswalk = MatchStations(stations, graph, p.cfg.Traffic.StationSnapDistance, workers, p.logger)
	}

	computer := NewTurningMovementComputer(&p.cfg.Traffic, p.logger)
	return computer.Compute(stations, crosswalk, graph), nil
}

func (p *Pipeline) synthesizeDemand(inputs *PipelineInputs, movements []*TurningMovement, graph *NetworkGraph) (*DemandPlan, error) {
	if len(movements) == 0 {
		return nil, &InsufficientDataError{Reason: "no turning movements anywhere in the graph"}
	}

	var feed *TransitFeed
	if inputs.GTFSDir != "" {
		loaded, err := LoadGTFS(inputs.GTFSDir, p.cfg.Transit.RouteTypes, p.logger)
		if err != nil {
			return nil, err
		}
		feed = loaded
	}

	synth := NewDemandSynthesizer(&p.cfg.Traffic, &p.cfg.Transit, p.logger)
	return synth.Synthesize(movements, graph, feed)
}
