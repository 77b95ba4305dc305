package citynet

import "fmt"

// LaneType is the functional class of a centreline segment.
type LaneType uint16

const (
	LANE_EXPRESSWAY = LaneType(iota + 1)
	LANE_ARTERIAL
	LANE_COLLECTOR
	LANE_LOCAL
	LANE_RAMP
	LANE_BUSWAY
	LANE_ACCESS
)

func (iotaIdx LaneType) String() string {
	return [...]string{"expressway", "arterial", "collector", "local", "ramp", "busway", "access"}[iotaIdx-1]
}

// ParseLaneType returns the LaneType for its string form.
func ParseLaneType(s string) (LaneType, error) {
	if lt, ok := laneTypeByName[s]; ok {
		return lt, nil
	}
	return 0, fmt.Errorf("unknown lane type: '%s'", s)
}

var laneTypeByName = map[string]LaneType{
	"expressway": LANE_EXPRESSWAY,
	"arterial":   LANE_ARTERIAL,
	"collector":  LANE_COLLECTOR,
	"local":      LANE_LOCAL,
	"ramp":       LANE_RAMP,
	"busway":     LANE_BUSWAY,
	"access":     LANE_ACCESS,
}

// Municipal centreline FEATURE_CODE values mapped onto lane types.
var laneTypeByFeatureCode = map[int]LaneType{
	201100: LANE_EXPRESSWAY,
	201101: LANE_RAMP,
	201200: LANE_ARTERIAL, // major arterial
	201300: LANE_ARTERIAL, // minor arterial
	201400: LANE_COLLECTOR,
	201500: LANE_LOCAL,
	201600: LANE_ACCESS,
	201700: LANE_BUSWAY,
	201803: LANE_ACCESS, // laneway
}

var defaultLanesByLaneType = map[LaneType]int{
	LANE_EXPRESSWAY: 4,
	LANE_ARTERIAL:   3,
	LANE_COLLECTOR:  2,
	LANE_LOCAL:      1,
	LANE_RAMP:       1,
	LANE_BUSWAY:     1,
	LANE_ACCESS:     1,
}

// Default free-flow speed per lane type (km/h).
var defaultSpeedByLaneType = map[LaneType]float64{
	LANE_EXPRESSWAY: 100.0,
	LANE_ARTERIAL:   60.0,
	LANE_COLLECTOR:  50.0,
	LANE_LOCAL:      40.0,
	LANE_RAMP:       60.0,
	LANE_BUSWAY:     50.0,
	LANE_ACCESS:     20.0,
}
