package citynet

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const fixtureCentreline = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "properties": {"CENTRELINE_ID": 101, "FEATURE_CODE": 201500, "LINEAR_NAME_FULL_LEGAL": "Main St", "ONEWAY_DIR_CODE": 0, "FROM_INTERSECTION_ID": 1, "TO_INTERSECTION_ID": 5},
      "geometry": {"type": "LineString", "coordinates": [[-79.4037, 43.7000], [-79.4000, 43.7000]]}
    },
    {
      "type": "Feature",
      "properties": {"CENTRELINE_ID": 102, "FEATURE_CODE": 201500, "LINEAR_NAME_FULL_LEGAL": "Main St", "ONEWAY_DIR_CODE": 0, "FROM_INTERSECTION_ID": 5, "TO_INTERSECTION_ID": 2},
      "geometry": {"type": "LineString", "coordinates": [[-79.4000, 43.7000], [-79.3963, 43.7000]]}
    },
    {
      "type": "Feature",
      "properties": {"CENTRELINE_ID": 103, "FEATURE_CODE": 201500, "LINEAR_NAME_FULL_LEGAL": "King Ave", "ONEWAY_DIR_CODE": 0, "FROM_INTERSECTION_ID": 3, "TO_INTERSECTION_ID": 5},
      "geometry": {"type": "LineString", "coordinates": [[-79.4000, 43.6973], [-79.4000, 43.7000]]}
    },
    {
      "type": "Feature",
      "properties": {"CENTRELINE_ID": 104, "FEATURE_CODE": 201500, "LINEAR_NAME_FULL_LEGAL": "King Ave", "ONEWAY_DIR_CODE": 0, "FROM_INTERSECTION_ID": 5, "TO_INTERSECTION_ID": 4},
      "geometry": {"type": "LineString", "coordinates": [[-79.4000, 43.7000], [-79.4000, 43.7027]]}
    }
  ]
}`

const fixtureSignals = "PX,LATITUDE,LONGITUDE\n100,43.70001,-79.40001\n"

const fixtureCounts = "location_id,location,lng,lat,time_start,time_end,eb_cars_t,eb_cars_l,eb_cars_r,sb_cars_t\n" +
	"ST1,Main St & King Ave,-79.4000,43.7000,2020-01-01T08:00:00,2020-01-01T08:15:00,10,5,3,7\n"

const fixturePipelineConfig = `network:
  extent: city_wide
  lane_types: [local]
`

func writePipelineFixture(t *testing.T) (string, *PipelineInputs) {
	t.Helper()
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
		return path
	}
	outDir := filepath.Join(dir, "out")
	require.NoError(t, os.MkdirAll(outDir, 0755))

	return write("citynet.yaml", fixturePipelineConfig), &PipelineInputs{
		CentrelinePath: write("centreline.geojson", fixtureCentreline),
		SignalsPath:    write("signals.csv", fixtureSignals),
		CountsPath:     write("counts.csv", fixtureCounts),
		GTFSDir:        writeGTFSFixture(t),
		OutputDir:      outDir,
		BaseName:       "net",
		ExportGeoJSON:  true,
		Workers:        2,
	}
}

func TestPipelineEndToEnd(t *testing.T) {
	configPath, inputs := writePipelineFixture(t)
	cfg, err := LoadConfig(configPath)
	require.NoError(t, err)
	cfg.Transit.Enabled = true

	pipeline := NewPipeline(cfg, zap.NewNop())
	bundle, err := pipeline.Run(inputs)
	require.NoError(t, err)

	nodes, err := os.ReadFile(bundle.Nodes)
	require.NoError(t, err)
	// Header plus five nodes.
	require.Len(t, strings.Split(strings.TrimSpace(string(nodes)), "\n"), 6)
	require.Contains(t, string(nodes), "PX100")

	edges, err := os.ReadFile(bundle.Edges)
	require.NoError(t, err)
	require.Contains(t, string(edges), "LINESTRING")
	require.Contains(t, string(edges), "Main St")

	demand, err := os.ReadFile(bundle.Demand)
	require.NoError(t, err)
	// 10 + 5 + 3 + 7 observed vehicles reproduced exactly.
	require.Contains(t, string(demand), "veh_")
	require.Contains(t, string(demand), `"generated_trips": 25`)

	_, err = os.Stat(filepath.Join(inputs.OutputDir, "net_graph.geojson"))
	require.NoError(t, err)
}

func TestPipelineWithoutCountsFails(t *testing.T) {
	configPath, inputs := writePipelineFixture(t)
	inputs.CountsPath = ""
	cfg, err := LoadConfig(configPath)
	require.NoError(t, err)

	pipeline := NewPipeline(cfg, zap.NewNop())
	bundle, err := pipeline.Run(inputs)
	var insufficientErr *InsufficientDataError
	require.ErrorAs(t, err, &insufficientErr)
	require.Nil(t, bundle)

	// No partial artifacts on abort.
	entries, err := os.ReadDir(inputs.OutputDir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestPipelineWithUnmatchedCountsFails(t *testing.T) {
	configPath, inputs := writePipelineFixture(t)
	// A station far outside the network matches no junction, so the count
	// source yields zero movements.
	farCounts := "location_id,location,lng,lat,time_start,time_end,eb_cars_t\n" +
		"ST9,Nowhere,-80.5000,44.5000,2020-01-01T08:00:00,2020-01-01T08:15:00,10\n"
	require.NoError(t, os.WriteFile(inputs.CountsPath, []byte(farCounts), 0644))
	cfg, err := LoadConfig(configPath)
	require.NoError(t, err)

	pipeline := NewPipeline(cfg, zap.NewNop())
	_, err = pipeline.Run(inputs)
	var insufficientErr *InsufficientDataError
	require.ErrorAs(t, err, &insufficientErr)
}

func TestPipelineWithoutRoadSourceFails(t *testing.T) {
	configPath, inputs := writePipelineFixture(t)
	inputs.CentrelinePath = ""
	cfg, err := LoadConfig(configPath)
	require.NoError(t, err)

	pipeline := NewPipeline(cfg, zap.NewNop())
	_, err = pipeline.Run(inputs)
	require.Error(t, err)
}

func TestPipelineUnknownWardFails(t *testing.T) {
	configPath, inputs := writePipelineFixture(t)
	cfg, err := LoadConfig(configPath)
	require.NoError(t, err)
	cfg.Network.Extent = "by_ward"
	cfg.Network.Area = "atlantis"

	wardsPath := filepath.Join(t.TempDir(), "wards.geojson")
	require.NoError(t, os.WriteFile(wardsPath, []byte(wardsGeoJSON), 0644))
	inputs.WardsPath = wardsPath

	pipeline := NewPipeline(cfg, zap.NewNop())
	_, err = pipeline.Run(inputs)
	var unknownErr *UnknownExtentError
	require.ErrorAs(t, err, &unknownErr)
}
