package citynet

// RouteKind classifies a transit route by its GTFS route_type code.
type RouteKind uint16

const (
	ROUTE_KIND_TRAM = RouteKind(iota + 1)
	ROUTE_KIND_SUBWAY
	ROUTE_KIND_RAIL
	ROUTE_KIND_BUS
	ROUTE_KIND_FERRY
	ROUTE_KIND_UNDEFINED = RouteKind(0)
)

func (iotaIdx RouteKind) String() string {
	return [...]string{"undefined", "tram", "subway", "rail", "bus", "ferry"}[iotaIdx]
}

var routeKindByGTFSType = map[int]RouteKind{
	0: ROUTE_KIND_TRAM,
	1: ROUTE_KIND_SUBWAY,
	2: ROUTE_KIND_RAIL,
	3: ROUTE_KIND_BUS,
	4: ROUTE_KIND_FERRY,
}

func routeKindForGTFSType(routeType int) RouteKind {
	if kind, ok := routeKindByGTFSType[routeType]; ok {
		return kind
	}
	return ROUTE_KIND_UNDEFINED
}
