package cache

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var reportTime = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func TestRecordReportWritesStateAndRing(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewVehicleStateStore(db, 3)

	mock.ExpectHSet("bus:V1",
		"lastLat", "28.63",
		"lastLng", "77.2923",
		"lastUpdated", "2025-01-01T00:00:00.000Z",
		"routeId", "R1",
	).SetVal(4)
	mock.ExpectLPush("bus:V1:speeds", "40").SetVal(1)
	mock.ExpectLTrim("bus:V1:speeds", 0, 2).SetVal("OK")
	mock.ExpectLRange("bus:V1:speeds", 0, 2).SetVal([]string{"40"})

	state, err := store.RecordReport(context.Background(), "V1", "R1", 28.63, 77.2923, 40, reportTime)
	require.NoError(t, err)

	assert.Equal(t, "V1", state.VehicleID)
	assert.Equal(t, "R1", state.RouteID)
	assert.Equal(t, []float64{40}, state.SpeedRing)
	assert.Equal(t, 40.0, state.AvgSpeed())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordReportRingWindow(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewVehicleStateStore(db, 3)

	// Fourth report with speed 0 after 30, 60, 90: the ring keeps the
	// three newest samples.
	mock.ExpectHSet("bus:V1",
		"lastLat", "28.63",
		"lastLng", "77.2923",
		"lastUpdated", "2025-01-01T00:00:00.000Z",
		"routeId", "R1",
	).SetVal(0)
	mock.ExpectLPush("bus:V1:speeds", "0").SetVal(4)
	mock.ExpectLTrim("bus:V1:speeds", 0, 2).SetVal("OK")
	mock.ExpectLRange("bus:V1:speeds", 0, 2).SetVal([]string{"0", "90", "60"})

	state, err := store.RecordReport(context.Background(), "V1", "R1", 28.63, 77.2923, 0, reportTime)
	require.NoError(t, err)

	assert.Equal(t, []float64{0, 90, 60}, state.SpeedRing)
	assert.Equal(t, 50.0, state.AvgSpeed())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordReportSkipsNonFiniteSpeed(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewVehicleStateStore(db, 3)

	// Position and timestamp still update; the ring is untouched.
	mock.ExpectHSet("bus:V1",
		"lastLat", "28.64",
		"lastLng", "77.3",
		"lastUpdated", "2025-01-01T00:00:00.000Z",
		"routeId", "R1",
	).SetVal(0)
	mock.ExpectLRange("bus:V1:speeds", 0, 2).SetVal([]string{"90", "60"})

	state, err := store.RecordReport(context.Background(), "V1", "R1", 28.64, 77.3, math.NaN(), reportTime)
	require.NoError(t, err)

	assert.Equal(t, []float64{90, 60}, state.SpeedRing)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordReportSkipsNegativeSpeed(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewVehicleStateStore(db, 3)

	mock.ExpectHSet("bus:V1",
		"lastLat", "28.64",
		"lastLng", "77.3",
		"lastUpdated", "2025-01-01T00:00:00.000Z",
		"routeId", "R1",
	).SetVal(0)
	mock.ExpectLRange("bus:V1:speeds", 0, 2).SetVal([]string{})

	state, err := store.RecordReport(context.Background(), "V1", "R1", 28.64, 77.3, -5, reportTime)
	require.NoError(t, err)

	assert.Empty(t, state.SpeedRing)
	assert.Equal(t, 0.0, state.AvgSpeed())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReadStateNeverReported(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewVehicleStateStore(db, 3)

	mock.ExpectHGetAll("bus:V9").SetVal(map[string]string{})

	state, err := store.ReadState(context.Background(), "V9")
	require.NoError(t, err)
	assert.Nil(t, state)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReadStateRoundTrip(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewVehicleStateStore(db, 3)

	mock.ExpectHGetAll("bus:V1").SetVal(map[string]string{
		"lastLat":     "28.63",
		"lastLng":     "77.2923",
		"lastUpdated": "2025-01-01T00:00:00.000Z",
		"routeId":     "R1",
	})
	mock.ExpectLRange("bus:V1:speeds", 0, 2).SetVal([]string{"40", "35.5"})

	state, err := store.ReadState(context.Background(), "V1")
	require.NoError(t, err)
	require.NotNil(t, state)

	assert.Equal(t, 28.63, state.LastLat)
	assert.Equal(t, 77.2923, state.LastLng)
	assert.True(t, state.LastUpdated.Equal(reportTime))
	assert.Equal(t, "R1", state.RouteID)
	assert.Equal(t, []float64{40, 35.5}, state.SpeedRing)
	assert.NoError(t, mock.ExpectationsWereMet())
}
