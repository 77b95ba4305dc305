// Package citynet fuses heterogeneous municipal open-data feeds (road
// centreline linework, administrative boundaries, traffic-signal locations,
// intersection turning-volume counts and a GTFS transit feed) into one
// topologically consistent road-network graph plus a time-varying demand
// description for an external microscopic traffic simulator.
//
// The pipeline is a sequence of staged batch transformations:
//
//	boundary -> centreline filter -> graph -> (detectors | station crosswalk -> turning movements -> demand) -> artifacts
//
// Every derived artifact is rebuilt from scratch on each run and emitted in
// canonical (sorted) order, so two builds over identical inputs produce
// byte-identical output files.
package citynet
