package citynet

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLargestRemainder(t *testing.T) {
	cases := []struct {
		weights []float64
		target  int
		want    []int
	}{
		{[]float64{1, 1, 1}, 10, []int{4, 3, 3}},
		{[]float64{5, 3, 2}, 10, []int{5, 3, 2}},
		{[]float64{0, 1}, 5, []int{0, 5}},
		{[]float64{7, 3}, 0, []int{0, 0}},
		{[]float64{0, 0}, 4, []int{0, 0}},
		{[]float64{1, 2, 3, 4}, 7, []int{1, 1, 2, 3}},
	}
	for _, c := range cases {
		got := largestRemainder(c.weights, c.target)
		require.Equal(t, c.want, got, "weights %v target %d", c.weights, c.target)
	}
}

func TestSynthesizeReproducesCountsExactly(t *testing.T) {
	graph := crossJunctionGraph(t)
	junction := graph.Edges["101"].To
	movements := []*TurningMovement{
		{Junction: junction, FromEdge: "101", ToEdge: "102", TimeBin: 0, Count: 7},
		{Junction: junction, FromEdge: "101", ToEdge: "104", TimeBin: 0, Count: 3},
	}

	synth := NewDemandSynthesizer(testTrafficConfig(), &TransitConfig{}, zap.NewNop())
	plan, err := synth.Synthesize(movements, graph, nil)
	require.NoError(t, err)
	require.Len(t, plan.Trips, 10)

	perMovement := make(map[EdgeID]int)
	for _, trip := range plan.Trips {
		require.Equal(t, junction, trip.Junction)
		require.GreaterOrEqual(t, trip.Depart, 0.0)
		require.Less(t, trip.Depart, 900.0)
		perMovement[trip.ToEdge]++
	}
	require.Equal(t, 7, perMovement["102"])
	require.Equal(t, 3, perMovement["104"])
	require.Equal(t, 10, plan.Report.GeneratedTrips)
	require.Equal(t, 1, plan.Report.JunctionBins)
}

func TestSynthesizeAppliesCountScale(t *testing.T) {
	graph := crossJunctionGraph(t)
	junction := graph.Edges["101"].To
	movements := []*TurningMovement{
		{Junction: junction, FromEdge: "101", ToEdge: "102", TimeBin: 0, Count: 4},
		{Junction: junction, FromEdge: "101", ToEdge: "104", TimeBin: 0, Count: 6},
	}

	traffic := testTrafficConfig()
	traffic.CountScale = 0.5
	synth := NewDemandSynthesizer(traffic, &TransitConfig{}, zap.NewNop())
	plan, err := synth.Synthesize(movements, graph, nil)
	require.NoError(t, err)
	require.Len(t, plan.Trips, 5)
}

func TestSynthesizeWithoutMovementsFails(t *testing.T) {
	graph := crossJunctionGraph(t)
	synth := NewDemandSynthesizer(testTrafficConfig(), &TransitConfig{}, zap.NewNop())
	_, err := synth.Synthesize(nil, graph, nil)
	var insufficientErr *InsufficientDataError
	require.ErrorAs(t, err, &insufficientErr)
}

func TestSynthesizeWeights(t *testing.T) {
	movements := []*TurningMovement{
		{Junction: "j", FromEdge: "101", ToEdge: "102", TimeBin: 0, Count: 10},
		{Junction: "j", FromEdge: "101", ToEdge: "104", TimeBin: 0, Count: 10},
	}
	weights := synthesizeWeights(movements)
	require.Len(t, weights, 3)

	byEdge := make(map[EdgeID]*EdgeWeight)
	for _, weight := range weights {
		byEdge[weight.Edge] = weight
	}
	// Edge 101 participates in both movements.
	require.InDelta(t, 14.0, byEdge["101"].Via, 1e-9)
	require.InDelta(t, 4.0, byEdge["101"].Source, 1e-9)
	require.InDelta(t, 2.0, byEdge["101"].Destination, 1e-9)
	require.InDelta(t, 7.0, byEdge["102"].Via, 1e-9)

	// Sorted by edge id.
	require.Equal(t, EdgeID("101"), weights[0].Edge)
	require.Equal(t, EdgeID("102"), weights[1].Edge)
	require.Equal(t, EdgeID("104"), weights[2].Edge)
}

func TestTripsSortedByDeparture(t *testing.T) {
	graph := crossJunctionGraph(t)
	junction := graph.Edges["101"].To
	movements := []*TurningMovement{
		{Junction: junction, FromEdge: "101", ToEdge: "102", TimeBin: 900, Count: 5},
		{Junction: junction, FromEdge: "101", ToEdge: "102", TimeBin: 0, Count: 5},
	}
	synth := NewDemandSynthesizer(testTrafficConfig(), &TransitConfig{}, zap.NewNop())
	plan, err := synth.Synthesize(movements, graph, nil)
	require.NoError(t, err)
	require.Len(t, plan.Trips, 10)
	for i := 1; i < len(plan.Trips); i++ {
		require.LessOrEqual(t, plan.Trips[i-1].Depart, plan.Trips[i].Depart)
	}
	require.Less(t, plan.Trips[0].Depart, 900.0)
	require.GreaterOrEqual(t, plan.Trips[9].Depart, 900.0)
}
