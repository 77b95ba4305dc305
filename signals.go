package citynet

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// SignalPoint is one traffic-signal record from the municipal point dataset.
type SignalPoint struct {
	ID    string
	Point orb.Point
}

// LoadSignalPoints reads the traffic-signal CSV feed. Header names are
// matched case-insensitively; the id column is PX (the municipal signal
// number) with SIGNAL_ID accepted as a fallback. Bare PX numbers are
// normalized to the published "PX<number>" form.
func LoadSignalPoints(r io.Reader, logger *zap.Logger) ([]*SignalPoint, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		return nil, errors.Wrap(err, "Can't read signals header")
	}
	columns := headerIndex(header)
	idIdx, pxColumn := columns["px"]
	if !pxColumn {
		var ok bool
		if idIdx, ok = columns["signal_id"]; !ok {
			return nil, errors.New("signals feed has neither PX nor SIGNAL_ID column")
		}
	}
	latIdx, ok := columns["latitude"]
	if !ok {
		return nil, errors.New("signals feed has no LATITUDE column")
	}
	lonIdx, ok := columns["longitude"]
	if !ok {
		return nil, errors.New("signals feed has no LONGITUDE column")
	}

	signals := []*SignalPoint{}
	skipped := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "Can't read signals record")
		}
		lat, latErr := strconv.ParseFloat(record[latIdx], 64)
		lon, lonErr := strconv.ParseFloat(record[lonIdx], 64)
		id := strings.TrimSpace(record[idIdx])
		if id == "" || latErr != nil || lonErr != nil {
			skipped++
			continue
		}
		if pxColumn && !strings.HasPrefix(strings.ToUpper(id), "PX") {
			id = "PX" + id
		}
		signals = append(signals, &SignalPoint{ID: id, Point: orb.Point{lon, lat}})
	}
	if skipped > 0 {
		logger.Warn("Skipped malformed signal records", zap.Int("records", skipped))
	}
	logger.Info("Loaded traffic signals", zap.Int("signals", len(signals)))
	return signals, nil
}

func headerIndex(header []string) map[string]int {
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	return columns
}
