package citynet

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const centrelineGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "properties": {
        "CENTRELINE_ID": 445, "FEATURE_CODE": 201500,
        "LINEAR_NAME_FULL_LEGAL": "Sackville St", "ONEWAY_DIR_CODE": 0,
        "FROM_INTERSECTION_ID": 11, "TO_INTERSECTION_ID": 12
      },
      "geometry": {"type": "LineString", "coordinates": [[-79.402, 43.700], [-79.400, 43.700]]}
    },
    {
      "type": "Feature",
      "properties": {
        "CENTRELINE_ID": 112, "FEATURE_CODE": 201200, "ONEWAY_DIR_CODE": 1,
        "FROM_INTERSECTION_ID": 12, "TO_INTERSECTION_ID": 13
      },
      "geometry": {"type": "MultiLineString", "coordinates": [[[-79.400, 43.700], [-79.398, 43.700]]]}
    },
    {
      "type": "Feature",
      "properties": {"CENTRELINE_ID": 900, "FEATURE_CODE": 205001},
      "geometry": {"type": "LineString", "coordinates": [[-79.5, 43.7], [-79.49, 43.7]]}
    }
  ]
}`

func TestLoadCentreline(t *testing.T) {
	segments, err := LoadCentreline([]byte(centrelineGeoJSON), zap.NewNop())
	require.NoError(t, err)

	// The river feature code 205001 is not road linework.
	require.Len(t, segments, 2)

	local := segments[0]
	require.Equal(t, SegmentID(445), local.ID)
	require.Equal(t, LANE_LOCAL, local.LaneType)
	require.Equal(t, "Sackville St", local.Name)
	require.Equal(t, TRAVEL_BOTH, local.Oneway)
	require.Equal(t, int64(11), local.FromIntersectionID)
	require.Equal(t, int64(12), local.ToIntersectionID)
	require.NotZero(t, local.Lanes)
	require.NotZero(t, local.Speed)

	arterial := segments[1]
	require.Equal(t, LANE_ARTERIAL, arterial.LaneType)
	require.Equal(t, TRAVEL_FORWARD, arterial.Oneway)
	require.Len(t, arterial.Geometry, 2)
}

func TestFilterCentrelineByLaneType(t *testing.T) {
	segments, err := LoadCentreline([]byte(centrelineGeoJSON), zap.NewNop())
	require.NoError(t, err)

	cfg := testNetworkConfig()
	cfg.LaneTypes = []string{"arterial"}
	retained, stats := FilterCentreline(segments, CityWideBoundary(), cfg, zap.NewNop())
	require.Len(t, retained, 1)
	require.Equal(t, LANE_ARTERIAL, retained[0].LaneType)
	require.Equal(t, 1, stats.DroppedLaneType)
}

func TestFilterCentrelineByBoundary(t *testing.T) {
	set, err := LoadBoundaries([]byte(wardsGeoJSON), BOUNDARY_WARD)
	require.NoError(t, err)
	boundary, err := set.Resolve(ExtentSpec{Kind: "by_ward", Name: "Toronto Centre"})
	require.NoError(t, err)

	inside := &CentrelineSegment{
		ID: 2, LaneType: LANE_LOCAL,
		Geometry: orb.LineString{{-79.405, 43.700}, {-79.400, 43.700}},
	}
	outside := &CentrelineSegment{
		ID: 1, LaneType: LANE_LOCAL,
		Geometry: orb.LineString{{-79.30, 43.700}, {-79.29, 43.700}},
	}
	retained, stats := FilterCentreline([]*CentrelineSegment{inside, outside}, boundary, testNetworkConfig(), zap.NewNop())
	require.Len(t, retained, 1)
	require.Equal(t, SegmentID(2), retained[0].ID)
	require.Equal(t, 1, stats.DroppedBoundary)
}

func TestFilterCentrelineSortsByID(t *testing.T) {
	segments := []*CentrelineSegment{
		{ID: 300, LaneType: LANE_LOCAL, Geometry: orb.LineString{{0, 0}, {0.001, 0}}},
		{ID: 100, LaneType: LANE_LOCAL, Geometry: orb.LineString{{0, 0}, {0.001, 0}}},
		{ID: 200, LaneType: LANE_LOCAL, Geometry: orb.LineString{{0, 0}, {0.001, 0}}},
	}
	retained, _ := FilterCentreline(segments, CityWideBoundary(), testNetworkConfig(), zap.NewNop())
	require.Len(t, retained, 3)
	require.Equal(t, SegmentID(100), retained[0].ID)
	require.Equal(t, SegmentID(200), retained[1].ID)
	require.Equal(t, SegmentID(300), retained[2].ID)
}

func TestFilterCentrelineByJunctions(t *testing.T) {
	cfg := testNetworkConfig()
	cfg.Extent = "by_junctions"
	cfg.JunctionIDs = []int{12}

	segments := []*CentrelineSegment{
		{ID: 1, LaneType: LANE_LOCAL, FromIntersectionID: 11, ToIntersectionID: 12, Geometry: orb.LineString{{0, 0}, {0.001, 0}}},
		{ID: 2, LaneType: LANE_LOCAL, FromIntersectionID: 40, ToIntersectionID: 41, Geometry: orb.LineString{{0, 0}, {0.001, 0}}},
	}
	retained, stats := FilterCentreline(segments, CityWideBoundary(), cfg, zap.NewNop())
	require.Len(t, retained, 1)
	require.Equal(t, SegmentID(1), retained[0].ID)
	require.Equal(t, 1, stats.DroppedExtentSet)
}

func TestFilterCentrelineDropsDegenerateGeometry(t *testing.T) {
	segments := []*CentrelineSegment{
		{ID: 1, LaneType: LANE_LOCAL, Geometry: orb.LineString{{0, 0}}},
	}
	retained, stats := FilterCentreline(segments, CityWideBoundary(), testNetworkConfig(), zap.NewNop())
	require.Empty(t, retained)
	require.Equal(t, 1, stats.DroppedNoGeometry)
}
