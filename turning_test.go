package citynet

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testTrafficConfig() *TrafficConfig {
	return &TrafficConfig{
		StationSnapDistance:   50.0,
		TimeBinSize:           900,
		ConservationTolerance: 0.1,
		DirectionEpsilon:      10.0,
		Modes:                 []string{"cars"},
		CountScale:            1.0,
	}
}

func TestClassifyTurn(t *testing.T) {
	cases := []struct {
		delta float64
		want  TurnType
	}{
		{0.0, TURN_THRU},
		{45.0, TURN_THRU},
		{-45.0, TURN_THRU},
		{90.0, TURN_LEFT},
		{46.0, TURN_LEFT},
		{135.0, TURN_LEFT},
		{-90.0, TURN_RIGHT},
		{-46.0, TURN_RIGHT},
		{-135.0, TURN_RIGHT},
		{180.0, TurnType(0)},
		{-170.0, TurnType(0)},
	}
	for _, c := range cases {
		if got := classifyTurn(c.delta); got != c.want {
			t.Errorf("Turn for delta %f must be %d, but got %d", c.delta, c.want, got)
		}
	}
}

func TestComputeTurningMovements(t *testing.T) {
	graph := crossJunctionGraph(t)
	junction := graph.Edges["101"].To

	station := &CountStation{
		ExternalID: "ST1",
		Point:      orb.Point{-79.4000, 43.7000},
		Intervals: []CountInterval{{
			Start: 8 * 3600,
			End:   8*3600 + 900,
			Volumes: []ApproachVolume{
				{Direction: DIRECTION_EB, Mode: "cars", Turn: TURN_THRU, Count: 10},
				{Direction: DIRECTION_EB, Mode: "cars", Turn: TURN_LEFT, Count: 5},
				{Direction: DIRECTION_EB, Mode: "cars", Turn: TURN_RIGHT, Count: 3},
				{Direction: DIRECTION_SB, Mode: "cars", Turn: TURN_THRU, Count: 7},
			},
		}},
	}
	crosswalk := Crosswalk{"ST1": junction}

	computer := NewTurningMovementComputer(testTrafficConfig(), zap.NewNop())
	movements := computer.Compute([]*CountStation{station}, crosswalk, graph)
	require.Len(t, movements, 4)

	byPair := make(map[string]*TurningMovement)
	for _, movement := range movements {
		require.Equal(t, junction, movement.Junction)
		require.Equal(t, 8*3600, movement.TimeBin)
		byPair[string(movement.FromEdge)+">"+string(movement.ToEdge)] = movement
	}

	// Eastbound approach is edge 101; through exits to 102, left to 104
	// (northbound), right to -103 (southbound).
	require.Equal(t, 10, byPair["101>102"].Count)
	require.Equal(t, 5, byPair["101>104"].Count)
	require.Equal(t, 3, byPair["101>-103"].Count)
	// Southbound approach arrives on -104 and continues south on -103.
	require.Equal(t, 7, byPair["-104>-103"].Count)
}

func TestComputeBinsIntervalsByStartTime(t *testing.T) {
	graph := crossJunctionGraph(t)
	junction := graph.Edges["101"].To

	station := &CountStation{
		ExternalID: "ST1",
		Intervals: []CountInterval{
			{
				Start:   100,
				End:     1000,
				Volumes: []ApproachVolume{{Direction: DIRECTION_EB, Mode: "cars", Turn: TURN_THRU, Count: 4}},
			},
			{
				Start:   1000,
				End:     1900,
				Volumes: []ApproachVolume{{Direction: DIRECTION_EB, Mode: "cars", Turn: TURN_THRU, Count: 6}},
			},
		},
	}
	computer := NewTurningMovementComputer(testTrafficConfig(), zap.NewNop())
	movements := computer.Compute([]*CountStation{station}, Crosswalk{"ST1": junction}, graph)
	require.Len(t, movements, 2)
	require.Equal(t, 0, movements[0].TimeBin)
	require.Equal(t, 4, movements[0].Count)
	require.Equal(t, 900, movements[1].TimeBin)
	require.Equal(t, 6, movements[1].Count)
}

func TestComputeSkipsUnmatchedStations(t *testing.T) {
	graph := crossJunctionGraph(t)
	station := &CountStation{
		ExternalID: "ST9",
		Intervals: []CountInterval{{
			Start:   0,
			End:     900,
			Volumes: []ApproachVolume{{Direction: DIRECTION_EB, Mode: "cars", Turn: TURN_THRU, Count: 4}},
		}},
	}
	computer := NewTurningMovementComputer(testTrafficConfig(), zap.NewNop())
	movements := computer.Compute([]*CountStation{station}, Crosswalk{}, graph)
	require.Empty(t, movements)
}

func TestComputeDirectionWithoutApproachIsDropped(t *testing.T) {
	// A T-junction with no north arm: northbound through volumes have no
	// exit edge and are dropped rather than misassigned.
	segments := crossJunctionSegments()[:3] // west, east and south arms

	builder := NewNetworkGraphBuilder(testNetworkConfig(), zap.NewNop())
	graph, err := builder.Build(segments, nil)
	require.NoError(t, err)
	junction := graph.Edges["101"].To

	station := &CountStation{
		ExternalID: "ST1",
		Intervals: []CountInterval{{
			Start: 0,
			End:   900,
			Volumes: []ApproachVolume{
				{Direction: DIRECTION_NB, Mode: "cars", Turn: TURN_THRU, Count: 5},
				{Direction: DIRECTION_EB, Mode: "cars", Turn: TURN_THRU, Count: 9},
			},
		}},
	}
	computer := NewTurningMovementComputer(testTrafficConfig(), zap.NewNop())
	movements := computer.Compute([]*CountStation{station}, Crosswalk{"ST1": junction}, graph)

	// Northbound thru has no northern exit at the T; eastbound thru maps.
	require.Len(t, movements, 1)
	require.Equal(t, EdgeID("101"), movements[0].FromEdge)
	require.Equal(t, EdgeID("102"), movements[0].ToEdge)
	require.Equal(t, 9, movements[0].Count)
}
