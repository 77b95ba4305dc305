package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/citygraph/citynet"
	"go.uber.org/zap"
)

var (
	configPath     = flag.String("config", "citynet.yaml", "Filename of YAML configuration")
	centrelineFile = flag.String("centreline", "", "Filename of centreline GeoJSON file")
	osmFile        = flag.String("osm", "", "Filename of *.osm.pbf file (alternative road source)")
	wardsFile      = flag.String("wards", "", "Filename of ward boundaries GeoJSON file")
	hoodsFile      = flag.String("neighbourhoods", "", "Filename of neighbourhood boundaries GeoJSON file")
	signalsFile    = flag.String("signals", "", "Filename of traffic signals CSV file")
	countsFile     = flag.String("counts", "", "Filename of turning-movement counts CSV file")
	gtfsDir        = flag.String("gtfs", "", "Directory of GTFS feed (routes.txt, trips.txt, stops.txt, stop_times.txt)")
	outDir         = flag.String("out", ".", "Output directory for artifact files")
	baseName       = flag.String("name", "citynet", "Base name of output files. E.g.: if name is 'net' then files will be 'net_nodes.csv', 'net_edges.csv' and so on")
	geojsonOut     = flag.Bool("geojson", false, "Export graph as GeoJSON feature collection?")
	workers        = flag.Int("workers", 0, "Count-station matching workers (0 picks CPU count)")
	verbose        = flag.Bool("verbose", false, "Enable debug logging?")
)

func main() {
	flag.Parse()

	logger, err := citynet.NewLogger(*verbose)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := citynet.LoadConfig(*configPath)
	if err != nil {
		logger.Error("Can't load configuration", zap.Error(err))
		os.Exit(1)
	}

	pipeline := citynet.NewPipeline(cfg, logger)
	bundle, err := pipeline.Run(&citynet.PipelineInputs{
		CentrelinePath:     *centrelineFile,
		OSMPath:            *osmFile,
		WardsPath:          *wardsFile,
		NeighbourhoodsPath: *hoodsFile,
		SignalsPath:        *signalsFile,
		CountsPath:         *countsFile,
		GTFSDir:            *gtfsDir,
		OutputDir:          *outDir,
		BaseName:           *baseName,
		ExportGeoJSON:      *geojsonOut,
		Workers:            *workers,
	})
	if err != nil {
		logger.Error("Build failed", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("Build finished", zap.String("manifest", bundle.Manifest))
}
