package citynet

import (
	"os"

	geojson "github.com/paulmach/go.geojson"
	"github.com/pkg/errors"
)

// ExportGraphToGeoJSON writes the road graph as a GeoJSON feature collection
// for quick inspection in GIS tools. Edges become LineString features, nodes
// become Point features; order follows the canonical node and edge ordering.
func ExportGraphToGeoJSON(fname string, graph *NetworkGraph) error {
	collection := geojson.NewFeatureCollection()

	for _, edge := range graph.SortedEdges() {
		pts2d := make([][]float64, len(edge.Geometry))
		for i, pt := range edge.Geometry {
			pts2d[i] = []float64{pt.Lon(), pt.Lat()}
		}
		feature := geojson.NewLineStringFeature(pts2d)
		feature.SetProperty("id", string(edge.ID))
		feature.SetProperty("source_node", edge.From)
		feature.SetProperty("target_node", edge.To)
		feature.SetProperty("segment_id", edge.SourceSegment)
		feature.SetProperty("lane_type", edge.LaneType.String())
		feature.SetProperty("lanes", edge.Lanes)
		feature.SetProperty("max_speed", edge.Speed)
		feature.SetProperty("length_meters", edge.Length)
		feature.SetProperty("name", edge.Name)
		collection.AddFeature(feature)
	}

	for _, node := range graph.SortedNodes() {
		feature := geojson.NewPointFeature([]float64{node.Point.Lon(), node.Point.Lat()})
		feature.SetProperty("id", node.ID)
		feature.SetProperty("is_signal", node.IsSignal)
		if node.IsSignal {
			feature.SetProperty("signal_id", node.SignalID)
		}
		collection.AddFeature(feature)
	}

	data, err := collection.MarshalJSON()
	if err != nil {
		return errors.Wrap(err, "Can't marshal feature collection")
	}
	if err := os.WriteFile(fname, data, 0644); err != nil {
		return errors.Wrap(err, "Can't write GeoJSON file")
	}
	return nil
}
