package citynet

import (
	"fmt"
	"os"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds the whole build configuration. Values come from a YAML file
// with environment-variable overrides; everything is validated eagerly before
// the first stage runs, so a bad option fails the build at start rather than
// at point of use.
type Config struct {
	Network   NetworkConfig   `yaml:"network"`
	Traffic   TrafficConfig   `yaml:"traffic"`
	Detectors DetectorsConfig `yaml:"detectors"`
	Transit   TransitConfig   `yaml:"transit"`
}

// NetworkConfig selects the build extent and the retained road classes.
type NetworkConfig struct {
	// Extent kind: city_wide, by_ward, by_neighbourhood or by_junctions.
	Extent string `yaml:"extent" env:"CITYNET_EXTENT" env-default:"city_wide"`
	// Area name for ward/neighbourhood extents; underscores match spaces.
	Area string `yaml:"area" env:"CITYNET_AREA" env-default:""`
	// JunctionIDs restricts the by_junctions extent.
	JunctionIDs []int `yaml:"junction_ids"`
	// LaneTypes is the allowlist of retained functional classes.
	LaneTypes []string `yaml:"lane_types" env:"CITYNET_LANE_TYPES" env-default:"expressway,arterial,collector"`
	// MinOverlapFraction of a segment's length that must fall inside the
	// boundary for the segment to be retained.
	MinOverlapFraction float64 `yaml:"min_overlap_fraction" env:"CITYNET_MIN_OVERLAP" env-default:"0.5"`
	// NodeSnapRadius merges segment endpoints into one node (meters).
	NodeSnapRadius float64 `yaml:"node_snap_radius" env:"CITYNET_NODE_SNAP_RADIUS" env-default:"10"`
	// SignalSnapDistance attaches signal points to nodes (meters).
	SignalSnapDistance float64 `yaml:"signal_snap_distance" env:"CITYNET_SIGNAL_SNAP" env-default:"15"`
	// DuplicateSimilarity is the max mean geometry deviation (meters) under
	// which two same-endpoint segments count as duplicates.
	DuplicateSimilarity float64 `yaml:"duplicate_similarity" env:"CITYNET_DUP_SIMILARITY" env-default:"5"`
	// MinComponentFraction of total edge length the largest connected
	// component must cover; below it the build is fatal.
	MinComponentFraction float64 `yaml:"min_component_fraction" env:"CITYNET_MIN_COMPONENT" env-default:"0.8"`
}

// TrafficConfig drives the station crosswalk, turning movement computation
// and private-vehicle demand synthesis.
type TrafficConfig struct {
	// StationSnapDistance matches count stations to junctions (meters).
	StationSnapDistance float64 `yaml:"station_snap_distance" env:"CITYNET_STATION_SNAP" env-default:"50"`
	// TimeBinSize of the output matrix (seconds).
	TimeBinSize int `yaml:"time_bin_size" env:"CITYNET_TIME_BIN" env-default:"900"`
	// ConservationTolerance is the relative inbound/outbound deviation
	// tolerated per junction per bin before a data-quality warning.
	ConservationTolerance float64 `yaml:"conservation_tolerance" env:"CITYNET_CONSERVATION_TOL" env-default:"0.1"`
	// DirectionEpsilon widens the cardinal bearing buckets (degrees).
	DirectionEpsilon float64 `yaml:"direction_epsilon" env:"CITYNET_DIRECTION_EPS" env-default:"10"`
	// Modes are the volume column families to aggregate (e.g. cars, truck).
	Modes []string `yaml:"modes" env:"CITYNET_MODES" env-default:"cars"`
	// CountScale scales generated private-vehicle trips relative to the
	// observed totals (1 reproduces the counts exactly).
	CountScale float64 `yaml:"count_scale" env:"CITYNET_COUNT_SCALE" env-default:"1"`
}

// DetectorsConfig toggles detector families and their geometry.
type DetectorsConfig struct {
	Point PointDetectorConfig `yaml:"point"`
	Area  AreaDetectorConfig  `yaml:"area"`
	Multi MultiDetectorConfig `yaml:"multi"`
}

// PointDetectorConfig places fixed-length presence detectors.
type PointDetectorConfig struct {
	Enabled bool `yaml:"enabled" env:"CITYNET_E1_ENABLED" env-default:"true"`
	// Distance upstream from the junction (meters).
	Distance  float64 `yaml:"distance" env:"CITYNET_E1_DISTANCE" env-default:"20"`
	Frequency int     `yaml:"frequency" env:"CITYNET_E1_FREQUENCY" env-default:"60"`
}

// AreaDetectorConfig places occupancy detectors with an own length;
// length -1 extends to the downstream edge end.
type AreaDetectorConfig struct {
	Enabled   bool    `yaml:"enabled" env:"CITYNET_E2_ENABLED" env-default:"true"`
	Distance  float64 `yaml:"distance" env:"CITYNET_E2_DISTANCE" env-default:"20"`
	Length    float64 `yaml:"length" env:"CITYNET_E2_LENGTH" env-default:"-1"`
	Frequency int     `yaml:"frequency" env:"CITYNET_E2_FREQUENCY" env-default:"60"`
	// MaxLength caps resolved detector length (meters).
	MaxLength float64 `yaml:"max_length" env:"CITYNET_E2_MAX_LENGTH" env-default:"200"`
}

// MultiDetectorConfig places multi-entry-exit detectors around junctions.
type MultiDetectorConfig struct {
	Enabled   bool    `yaml:"enabled" env:"CITYNET_E3_ENABLED" env-default:"false"`
	Distance  float64 `yaml:"distance" env:"CITYNET_E3_DISTANCE" env-default:"30"`
	Frequency int     `yaml:"frequency" env:"CITYNET_E3_FREQUENCY" env-default:"60"`
	// MinPosition keeps entries off the junction itself (meters).
	MinPosition float64 `yaml:"min_position" env:"CITYNET_E3_MIN_POSITION" env-default:"0.1"`
	// Joined merges per-edge detectors into one detector per junction.
	Joined bool `yaml:"joined" env:"CITYNET_E3_JOINED" env-default:"false"`
	// Interior includes junction-internal connections in the merged span.
	Interior bool `yaml:"interior" env:"CITYNET_E3_INTERIOR" env-default:"false"`
	// FollowTurnaround keeps U-turn edges inside the detector span.
	FollowTurnaround bool `yaml:"follow_turnaround" env:"CITYNET_E3_TURNAROUND" env-default:"false"`
}

// TransitConfig drives GTFS route mapping.
type TransitConfig struct {
	Enabled bool `yaml:"enabled" env:"CITYNET_TRANSIT_ENABLED" env-default:"true"`
	// StopSnapDistance snaps stops to edges (meters).
	StopSnapDistance float64 `yaml:"stop_snap_distance" env:"CITYNET_STOP_SNAP" env-default:"100"`
	// Modes filters GTFS route_type values; empty keeps every route.
	RouteTypes []int `yaml:"route_types"`
}

// MinimumDetectorLength is the smallest placeable detector (meters); shorter
// clamped placements are skipped rather than fabricated.
const MinimumDetectorLength = 1.0

// LoadConfig reads YAML configuration with environment overrides. A missing
// file is not an error: defaults and environment values apply instead.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("can't read configuration environment: %w", err)
		}
	} else if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, fmt.Errorf("can't read configuration '%s': %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validExtents = map[string]struct{}{
	"city_wide":        {},
	"by_ward":          {},
	"by_neighbourhood": {},
	"by_junctions":     {},
}

// Validate rejects every unusable option before the first stage runs.
func (cfg *Config) Validate() error {
	extent := strings.ToLower(cfg.Network.Extent)
	if _, ok := validExtents[extent]; !ok {
		return fmt.Errorf("invalid extent '%s': expected one of city_wide, by_ward, by_neighbourhood, by_junctions", cfg.Network.Extent)
	}
	if (extent == "by_ward" || extent == "by_neighbourhood") && cfg.Network.Area == "" {
		return fmt.Errorf("extent '%s' requires an area name", extent)
	}
	if extent == "by_junctions" && len(cfg.Network.JunctionIDs) == 0 {
		return fmt.Errorf("extent by_junctions requires junction_ids")
	}
	if len(cfg.Network.LaneTypes) == 0 {
		return fmt.Errorf("lane_types allowlist must not be empty")
	}
	for _, name := range cfg.Network.LaneTypes {
		if _, err := ParseLaneType(name); err != nil {
			return err
		}
	}
	if cfg.Network.MinOverlapFraction < 0 || cfg.Network.MinOverlapFraction > 1 {
		return fmt.Errorf("min_overlap_fraction must be within [0, 1], got %f", cfg.Network.MinOverlapFraction)
	}
	if cfg.Network.NodeSnapRadius <= 0 {
		return fmt.Errorf("node_snap_radius must be positive, got %f", cfg.Network.NodeSnapRadius)
	}
	if cfg.Network.SignalSnapDistance <= 0 {
		return fmt.Errorf("signal_snap_distance must be positive, got %f", cfg.Network.SignalSnapDistance)
	}
	if cfg.Network.MinComponentFraction <= 0 || cfg.Network.MinComponentFraction > 1 {
		return fmt.Errorf("min_component_fraction must be within (0, 1], got %f", cfg.Network.MinComponentFraction)
	}
	if cfg.Traffic.TimeBinSize <= 0 {
		return fmt.Errorf("time_bin_size must be positive, got %d", cfg.Traffic.TimeBinSize)
	}
	if cfg.Traffic.ConservationTolerance < 0 {
		return fmt.Errorf("conservation_tolerance must not be negative, got %f", cfg.Traffic.ConservationTolerance)
	}
	if cfg.Traffic.StationSnapDistance <= 0 {
		return fmt.Errorf("station_snap_distance must be positive, got %f", cfg.Traffic.StationSnapDistance)
	}
	if len(cfg.Traffic.Modes) == 0 {
		return fmt.Errorf("traffic modes must not be empty")
	}
	if cfg.Traffic.CountScale <= 0 {
		return fmt.Errorf("count_scale must be positive, got %f", cfg.Traffic.CountScale)
	}
	if cfg.Detectors.Point.Enabled && cfg.Detectors.Point.Distance < 0 {
		return fmt.Errorf("point detector distance must not be negative, got %f", cfg.Detectors.Point.Distance)
	}
	if cfg.Detectors.Area.Enabled {
		if cfg.Detectors.Area.Length == 0 || (cfg.Detectors.Area.Length < 0 && cfg.Detectors.Area.Length != -1) {
			return fmt.Errorf("area detector length must be positive or -1, got %f", cfg.Detectors.Area.Length)
		}
	}
	if cfg.Detectors.Multi.Enabled && cfg.Detectors.Multi.MinPosition < 0 {
		return fmt.Errorf("multi detector min_position must not be negative, got %f", cfg.Detectors.Multi.MinPosition)
	}
	if cfg.Transit.Enabled && cfg.Transit.StopSnapDistance <= 0 {
		return fmt.Errorf("stop_snap_distance must be positive, got %f", cfg.Transit.StopSnapDistance)
	}
	return nil
}

// AllowedLaneTypes resolves the configured allowlist.
func (cfg *NetworkConfig) AllowedLaneTypes() map[LaneType]struct{} {
	allowed := make(map[LaneType]struct{}, len(cfg.LaneTypes))
	for _, name := range cfg.LaneTypes {
		if lt, err := ParseLaneType(name); err == nil {
			allowed[lt] = struct{}{}
		}
	}
	return allowed
}

// ExtentSpec selects the active boundary for a build.
type ExtentSpec struct {
	Kind string
	Name string
}

// ExtentSpec derives the boundary selector from the network configuration.
func (cfg *NetworkConfig) ExtentSpec() ExtentSpec {
	return ExtentSpec{Kind: strings.ToLower(cfg.Extent), Name: cfg.Area}
}
