package citynet

import "testing"

func TestRouteKindForGTFSType(t *testing.T) {
	cases := map[int]RouteKind{
		0:  ROUTE_KIND_TRAM,
		1:  ROUTE_KIND_SUBWAY,
		2:  ROUTE_KIND_RAIL,
		3:  ROUTE_KIND_BUS,
		4:  ROUTE_KIND_FERRY,
		7:  ROUTE_KIND_UNDEFINED,
		12: ROUTE_KIND_UNDEFINED,
	}
	for gtfsType, want := range cases {
		if got := routeKindForGTFSType(gtfsType); got != want {
			t.Errorf("route_type %d: got %s, want %s", gtfsType, got, want)
		}
	}
	if ROUTE_KIND_BUS.String() != "bus" {
		t.Errorf("unexpected string representation: %s", ROUTE_KIND_BUS)
	}
}
