package citynet

import "fmt"

// Fatal configuration errors. Every one of them aborts the build with no
// partial artifact; degraded-data conditions are logged instead (see the
// per-stage warnings).

// UnknownExtentError is returned when the extent selector does not match any
// loaded boundary.
type UnknownExtentError struct {
	Kind string
	Name string
}

func (e *UnknownExtentError) Error() string {
	return fmt.Sprintf("unknown extent: no %s boundary named '%s'", e.Kind, e.Name)
}

// EmptyNetworkError is returned when graph construction produces zero edges
// for a non-empty filtered input.
type EmptyNetworkError struct {
	Segments int
}

func (e *EmptyNetworkError) Error() string {
	return fmt.Sprintf("empty network: %d filtered segments produced no edges", e.Segments)
}

// FragmentedNetworkError is returned when the largest connected component
// covers less than the configured fraction of total edge length.
type FragmentedNetworkError struct {
	LargestFraction float64
	MinFraction     float64
}

func (e *FragmentedNetworkError) Error() string {
	return fmt.Sprintf("fragmented network: largest component covers %.3f of total edge length, need >= %.3f", e.LargestFraction, e.MinFraction)
}

// InsufficientDataError is returned when demand synthesis is requested but no
// turning movement exists anywhere in the graph.
type InsufficientDataError struct {
	Reason string
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: %s", e.Reason)
}

// ReferentialIntegrityError is returned by the artifact composer when a
// derived record references a node or edge absent from the graph.
type ReferentialIntegrityError struct {
	Record string
	Ref    string
}

func (e *ReferentialIntegrityError) Error() string {
	return fmt.Sprintf("referential integrity: %s references unknown '%s'", e.Record, e.Ref)
}
