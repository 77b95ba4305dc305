package citynet

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const configYAML = `network:
  extent: by_ward
  area: toronto_centre
  lane_types: [arterial, collector, local]
  min_overlap_fraction: 0.6
  node_snap_radius: 12
traffic:
  time_bin_size: 900
  count_scale: 1.5
detectors:
  area:
    length: 30
    max_length: 150
transit:
  enabled: true
  route_types: [0, 3]
`

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "citynet.yaml")
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "by_ward", cfg.Network.Extent)
	require.Equal(t, "toronto_centre", cfg.Network.Area)
	require.Equal(t, 0.6, cfg.Network.MinOverlapFraction)
	require.Equal(t, 12.0, cfg.Network.NodeSnapRadius)
	require.Equal(t, 1.5, cfg.Traffic.CountScale)
	require.Equal(t, 30.0, cfg.Detectors.Area.Length)
	require.Equal(t, []int{0, 3}, cfg.Transit.RouteTypes)

	// Values the file omits fall back to defaults.
	require.Equal(t, 15.0, cfg.Network.SignalSnapDistance)
	require.Equal(t, []string{"cars"}, cfg.Traffic.Modes)
	require.Equal(t, 100.0, cfg.Transit.StopSnapDistance)
}

func TestLoadConfigWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.Equal(t, "city_wide", cfg.Network.Extent)
	require.Equal(t, 900, cfg.Traffic.TimeBinSize)
	require.Equal(t, 1.0, cfg.Traffic.CountScale)
	require.True(t, cfg.Detectors.Point.Enabled)
	require.False(t, cfg.Detectors.Multi.Enabled)
}

func TestValidateRejectsBadOptions(t *testing.T) {
	base := func() *Config {
		cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
		require.NoError(t, err)
		return cfg
	}

	cases := []struct {
		name   string
		mangle func(*Config)
	}{
		{"unknown extent", func(cfg *Config) { cfg.Network.Extent = "by_planet" }},
		{"ward without area", func(cfg *Config) { cfg.Network.Extent = "by_ward" }},
		{"junctions without ids", func(cfg *Config) { cfg.Network.Extent = "by_junctions" }},
		{"empty lane types", func(cfg *Config) { cfg.Network.LaneTypes = nil }},
		{"unknown lane type", func(cfg *Config) { cfg.Network.LaneTypes = []string{"hyperloop"} }},
		{"overlap above one", func(cfg *Config) { cfg.Network.MinOverlapFraction = 1.5 }},
		{"zero snap radius", func(cfg *Config) { cfg.Network.NodeSnapRadius = 0 }},
		{"zero bin size", func(cfg *Config) { cfg.Traffic.TimeBinSize = 0 }},
		{"negative tolerance", func(cfg *Config) { cfg.Traffic.ConservationTolerance = -0.1 }},
		{"no modes", func(cfg *Config) { cfg.Traffic.Modes = nil }},
		{"zero count scale", func(cfg *Config) { cfg.Traffic.CountScale = 0 }},
		{"zero area length", func(cfg *Config) { cfg.Detectors.Area.Length = 0 }},
		{"negative area length", func(cfg *Config) { cfg.Detectors.Area.Length = -7 }},
		{"zero stop snap", func(cfg *Config) { cfg.Transit.StopSnapDistance = 0 }},
	}
	for _, c := range cases {
		cfg := base()
		c.mangle(cfg)
		require.Error(t, cfg.Validate(), c.name)
	}
}

func TestExtentSpecNormalizesKind(t *testing.T) {
	cfg := &NetworkConfig{Extent: "By_Ward", Area: "Toronto Centre"}
	spec := cfg.ExtentSpec()
	require.Equal(t, "by_ward", spec.Kind)
	require.Equal(t, "Toronto Centre", spec.Name)
}

func TestAllowedLaneTypes(t *testing.T) {
	cfg := &NetworkConfig{LaneTypes: []string{"arterial", "local"}}
	allowed := cfg.AllowedLaneTypes()
	require.Len(t, allowed, 2)
	require.Contains(t, allowed, LANE_ARTERIAL)
	require.Contains(t, allowed, LANE_LOCAL)
	require.NotContains(t, allowed, LANE_EXPRESSWAY)
}
