package citynet

import (
	"encoding/csv"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/paulmach/orb"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// TurnType is the movement class of a volume column.
type TurnType uint8

const (
	TURN_LEFT = TurnType(iota + 1)
	TURN_THRU
	TURN_RIGHT
)

func (iotaIdx TurnType) String() string {
	return [...]string{"left", "thru", "right"}[iotaIdx-1]
}

var turnByCode = map[string]TurnType{
	"l": TURN_LEFT,
	"t": TURN_THRU,
	"r": TURN_RIGHT,
}

var directionByCode = map[string]CardinalDirection{
	"eb": DIRECTION_EB,
	"nb": DIRECTION_NB,
	"wb": DIRECTION_WB,
	"sb": DIRECTION_SB,
}

// ApproachVolume is one per-approach per-mode per-turn count.
type ApproachVolume struct {
	Direction CardinalDirection
	Mode      string
	Turn      TurnType
	Count     int
}

// CountInterval groups the volumes reported for one source interval
// (seconds of day).
type CountInterval struct {
	Start   int
	End     int
	Volumes []ApproachVolume
}

// CountStation is one raw turning-count location, pre-crosswalk.
type CountStation struct {
	ExternalID   string
	CentrelineID int64
	Name         string
	Point        orb.Point
	Intervals    []CountInterval
}

type volumeColumn struct {
	index     int
	direction CardinalDirection
	mode      string
	turn      TurnType
}

// LoadCountStations reads the intersection turning-count CSV feed. One row
// per station per reporting interval; volume columns are named
// <direction>_<mode>_<turn>, e.g. sb_cars_r.
func LoadCountStations(r io.Reader, modes []string, logger *zap.Logger) ([]*CountStation, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		return nil, errors.Wrap(err, "Can't read count stations header")
	}
	columns := headerIndex(header)
	required := []string{"location_id", "lng", "lat", "time_start", "time_end"}
	for _, name := range required {
		if _, ok := columns[name]; !ok {
			return nil, errors.Errorf("count stations feed has no %s column", name)
		}
	}
	wantedModes := make(map[string]struct{}, len(modes))
	for _, mode := range modes {
		wantedModes[mode] = struct{}{}
	}
	volumeColumns := parseVolumeColumns(header, wantedModes)
	if len(volumeColumns) == 0 {
		return nil, errors.New("count stations feed has no recognizable volume columns")
	}

	byID := make(map[string]*CountStation)
	order := []string{}
	skipped := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "Can't read count stations record")
		}
		id := strings.TrimSpace(record[columns["location_id"]])
		lng, lngErr := strconv.ParseFloat(record[columns["lng"]], 64)
		lat, latErr := strconv.ParseFloat(record[columns["lat"]], 64)
		start, startErr := parseTimeOfDay(record[columns["time_start"]])
		end, endErr := parseTimeOfDay(record[columns["time_end"]])
		if id == "" || lngErr != nil || latErr != nil || startErr != nil || endErr != nil {
			skipped++
			continue
		}
		station, ok := byID[id]
		if !ok {
			station = &CountStation{ExternalID: id, Point: orb.Point{lng, lat}}
			if idx, ok := columns["centreline_id"]; ok {
				if centrelineID, err := strconv.ParseInt(record[idx], 10, 64); err == nil {
					station.CentrelineID = centrelineID
				}
			}
			if idx, ok := columns["location"]; ok {
				station.Name = record[idx]
			}
			byID[id] = station
			order = append(order, id)
		}
		interval := CountInterval{Start: start, End: end}
		for _, column := range volumeColumns {
			count, err := strconv.Atoi(strings.TrimSpace(record[column.index]))
			if err != nil || count == 0 {
				continue
			}
			interval.Volumes = append(interval.Volumes, ApproachVolume{
				Direction: column.direction,
				Mode:      column.mode,
				Turn:      column.turn,
				Count:     count,
			})
		}
		station.Intervals = append(station.Intervals, interval)
	}
	if skipped > 0 {
		logger.Warn("Skipped malformed count records", zap.Int("records", skipped))
	}

	stations := make([]*CountStation, 0, len(order))
	for _, id := range order {
		station := byID[id]
		sort.Slice(station.Intervals, func(i, j int) bool { return station.Intervals[i].Start < station.Intervals[j].Start })
		stations = append(stations, station)
	}
	sort.Slice(stations, func(i, j int) bool { return stations[i].ExternalID < stations[j].ExternalID })
	logger.Info("Loaded count stations", zap.Int("stations", len(stations)))
	return stations, nil
}

func parseVolumeColumns(header []string, wantedModes map[string]struct{}) []volumeColumn {
	columns := []volumeColumn{}
	for i, name := range header {
		parts := strings.Split(strings.ToLower(strings.TrimSpace(name)), "_")
		if len(parts) != 3 {
			continue
		}
		direction, ok := directionByCode[parts[0]]
		if !ok {
			continue
		}
		turn, ok := turnByCode[parts[2]]
		if !ok {
			continue
		}
		if _, ok := wantedModes[parts[1]]; !ok {
			continue
		}
		columns = append(columns, volumeColumn{index: i, direction: direction, mode: parts[1], turn: turn})
	}
	return columns
}

// parseTimeOfDay accepts HH:MM:SS, an ISO timestamp with a time component,
// or a bare seconds-of-day integer.
func parseTimeOfDay(value string) (int, error) {
	value = strings.TrimSpace(value)
	if seconds, err := strconv.Atoi(value); err == nil {
		return seconds, nil
	}
	if idx := strings.IndexByte(value, 'T'); idx >= 0 {
		value = value[idx+1:]
	} else if idx := strings.IndexByte(value, ' '); idx >= 0 {
		value = value[idx+1:]
	}
	parts := strings.Split(value, ":")
	if len(parts) < 2 {
		return 0, errors.Errorf("unparsable time of day: '%s'", value)
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, errors.Errorf("unparsable time of day: '%s'", value)
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, errors.Errorf("unparsable time of day: '%s'", value)
	}
	seconds := 0
	if len(parts) > 2 {
		if seconds, err = strconv.Atoi(parts[2]); err != nil {
			return 0, errors.Errorf("unparsable time of day: '%s'", value)
		}
	}
	return hours*3600 + minutes*60 + seconds, nil
}

// Crosswalk maps station external ids to junction node ids.
type Crosswalk map[string]string

// MatchStations runs the station-to-junction nearest-neighbor search. The
// per-station lookups are independent and fan out over a worker pool; the
// result map is assembled afterwards so scheduling never affects output.
// Stations with no junction within maxDistance are excluded and reported.
func MatchStations(stations []*CountStation, graph *NetworkGraph, maxDistance float64, workers int, logger *zap.Logger) Crosswalk {
	index := newSpatialIndex(graph.nodePoints())
	if workers < 1 {
		workers = 1
	}

	type matchResult struct {
		nodeID   string
		distance float64
		matched  bool
	}
	results := make([]matchResult, len(stations))

	var wg sync.WaitGroup
	jobs := make(chan int)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				nodeID, distance, ok := index.nearest(stations[i].Point, maxDistance)
				results[i] = matchResult{nodeID: nodeID, distance: distance, matched: ok}
			}
		}()
	}
	for i := range stations {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	crosswalk := make(Crosswalk)
	matched := 0
	for i, station := range stations {
		if !results[i].matched {
			logger.Warn("Count station outside snap threshold",
				zap.String("station", station.ExternalID),
				zap.String("location", station.Name),
				zap.Float64("threshold_m", maxDistance),
			)
			continue
		}
		crosswalk[station.ExternalID] = results[i].nodeID
		matched++
	}
	logger.Info("Matched count stations to junctions",
		zap.Int("matched", matched),
		zap.Int("unmatched", len(stations)-matched),
	)
	return crosswalk
}
