package citynet

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadSignalPoints(t *testing.T) {
	csv := "PX,LATITUDE,LONGITUDE,MAIN_STREET\n" +
		"100,43.7000,-79.4000,Main St\n" +
		"PX101,43.7100,-79.4100,King Ave\n" +
		",43.7200,-79.4200,Broken Row\n" +
		"102,not-a-number,-79.4300,Broken Row\n"
	signals, err := LoadSignalPoints(strings.NewReader(csv), zap.NewNop())
	require.NoError(t, err)
	require.Len(t, signals, 2)
	// Bare PX numbers carry the published prefix; prefixed ones pass through.
	require.Equal(t, "PX100", signals[0].ID)
	require.Equal(t, "PX101", signals[1].ID)
	require.Equal(t, -79.4, signals[0].Point.Lon())
	require.Equal(t, 43.7, signals[0].Point.Lat())
}

func TestLoadSignalPointsFallbackColumn(t *testing.T) {
	csv := "signal_id,latitude,longitude\nA7,43.7,-79.4\n"
	signals, err := LoadSignalPoints(strings.NewReader(csv), zap.NewNop())
	require.NoError(t, err)
	require.Len(t, signals, 1)
	require.Equal(t, "A7", signals[0].ID)
}

func TestLoadSignalPointsMissingColumns(t *testing.T) {
	_, err := LoadSignalPoints(strings.NewReader("id,lat,lon\n"), zap.NewNop())
	require.Error(t, err)

	_, err = LoadSignalPoints(strings.NewReader("PX,LONGITUDE\n"), zap.NewNop())
	require.Error(t, err)
}
