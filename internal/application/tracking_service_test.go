package application

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/citytransit/tracking-service/internal/domain/entity"
	"github.com/citytransit/tracking-service/internal/domain/repository"
	"github.com/citytransit/tracking-service/internal/geo"
)

// Mock implementations for testing

type MockVehicleRepository struct {
	mock.Mock
}

func (m *MockVehicleRepository) Create(ctx context.Context, vehicle *entity.Vehicle) error {
	args := m.Called(ctx, vehicle)
	return args.Error(0)
}

func (m *MockVehicleRepository) GetByVehicleID(ctx context.Context, vehicleID string) (*entity.Vehicle, error) {
	args := m.Called(ctx, vehicleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Vehicle), args.Error(1)
}

func (m *MockVehicleRepository) List(ctx context.Context) ([]*entity.Vehicle, error) {
	args := m.Called(ctx)
	return args.Get(0).([]*entity.Vehicle), args.Error(1)
}

type MockStateStore struct {
	mock.Mock
}

func (m *MockStateStore) RecordReport(ctx context.Context, vehicleID, routeID string, lat, lng, speed float64, now time.Time) (*entity.VehicleLiveState, error) {
	args := m.Called(ctx, vehicleID, routeID, lat, lng, speed, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.VehicleLiveState), args.Error(1)
}

func (m *MockStateStore) ReadState(ctx context.Context, vehicleID string) (*entity.VehicleLiveState, error) {
	args := m.Called(ctx, vehicleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.VehicleLiveState), args.Error(1)
}

type MockGeometryProvider struct {
	mock.Mock
}

func (m *MockGeometryProvider) GetGeometry(ctx context.Context, routeID string) (*entity.RouteGeometry, error) {
	args := m.Called(ctx, routeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.RouteGeometry), args.Error(1)
}

func (m *MockGeometryProvider) Invalidate(ctx context.Context, routeID string) error {
	args := m.Called(ctx, routeID)
	return args.Error(0)
}

type MockBroadcaster struct {
	mock.Mock
}

func (m *MockBroadcaster) EmitVehicleUpdate(routeID string, payload []byte) {
	m.Called(routeID, payload)
}

type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(ctx context.Context, eventType string, payload interface{}) error {
	args := m.Called(ctx, eventType, payload)
	return args.Error(0)
}

// Fixtures

var (
	testVehicle = &entity.Vehicle{VehicleID: "V1", RouteID: "R1", IsActive: true}

	testCoords = [][2]float64{
		{77.2197, 28.6328},
		{77.3649, 28.628},
	}

	testRouteStops = []entity.Stop{
		{StopID: "A", Name: "Connaught Place", Latitude: 28.6328, Longitude: 77.2197},
		{StopID: "B", Name: "Anand Vihar", Latitude: 28.628, Longitude: 77.3649},
	}
)

func testGeometry() *entity.RouteGeometry {
	return &entity.RouteGeometry{
		RouteID:       "R1",
		Coords:        testCoords,
		Stops:         testRouteStops,
		StopOffsetsKm: []float64{0, geo.PolylineLengthKm(testCoords)},
	}
}

func newTestService(
	vehicles *MockVehicleRepository,
	states *MockStateStore,
	geometry *MockGeometryProvider,
	broadcaster *MockBroadcaster,
	publisher *MockEventPublisher,
) *TrackingService {
	return NewTrackingService(vehicles, states, geometry, broadcaster, publisher, 90*time.Second, 1.0)
}

func TestIngestReportFirstReportOnline(t *testing.T) {
	vehicles := new(MockVehicleRepository)
	states := new(MockStateStore)
	geometry := new(MockGeometryProvider)
	broadcaster := new(MockBroadcaster)
	publisher := new(MockEventPublisher)

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	svc := newTestService(vehicles, states, geometry, broadcaster, publisher)
	svc.now = func() time.Time { return now }

	vehicles.On("GetByVehicleID", mock.Anything, "V1").Return(testVehicle, nil)
	states.On("RecordReport", mock.Anything, "V1", "R1", 28.63, 77.2923, 40.0, now).
		Return(&entity.VehicleLiveState{
			VehicleID: "V1", RouteID: "R1",
			LastLat: 28.63, LastLng: 77.2923, LastUpdated: now,
			SpeedRing: []float64{40},
		}, nil)
	geometry.On("GetGeometry", mock.Anything, "R1").Return(testGeometry(), nil)

	var emitted []byte
	broadcaster.On("EmitVehicleUpdate", "R1", mock.Anything).Run(func(args mock.Arguments) {
		emitted = args.Get(1).([]byte)
	}).Once()
	publisher.On("Publish", mock.Anything, "bus.location_updated", mock.Anything).Return(nil)

	update, err := svc.IngestReport(context.Background(), LocationReportRequest{
		BusID: "V1", Lat: 28.63, Lng: 77.2923, Speed: 40,
	})
	require.NoError(t, err)

	assert.True(t, update.Success)
	assert.Equal(t, "V1", update.BusID)
	assert.Equal(t, "R1", update.RouteID)
	assert.Equal(t, entity.StatusOnline, update.Status)
	assert.Equal(t, 40.0, update.AvgSpeed)

	// Snapped onto the A-to-B segment near its midpoint.
	total := geo.PolylineLengthKm(testCoords)
	require.NotNil(t, update.SnappedLocation)
	assert.InDelta(t, 77.2923, update.SnappedLocation.Lng, 0.001)
	assert.InDelta(t, 28.6304, update.SnappedLocation.Lat, 0.001)

	// First stop is behind the vehicle; the terminus ETA follows the
	// smoothed speed.
	require.Len(t, update.ETAStops, 2)
	assert.Equal(t, "Connaught Place", update.ETAStops[0].Name)
	assert.Equal(t, 0, update.ETAStops[0].ETAMinutes)
	expectedMinutes := total / 2 / 40 * 60 // ~half the route remaining at 40 km/h
	assert.InDelta(t, expectedMinutes, float64(update.ETAStops[1].ETAMinutes), 1)

	// The broadcast payload is exactly the serialized response.
	expected, err := json.Marshal(update)
	require.NoError(t, err)
	assert.Equal(t, expected, emitted)

	broadcaster.AssertExpectations(t)
	vehicles.AssertExpectations(t)
	states.AssertExpectations(t)
}

func TestIngestReportUnknownVehicle(t *testing.T) {
	vehicles := new(MockVehicleRepository)
	states := new(MockStateStore)
	geometry := new(MockGeometryProvider)
	broadcaster := new(MockBroadcaster)
	publisher := new(MockEventPublisher)

	svc := newTestService(vehicles, states, geometry, broadcaster, publisher)

	vehicles.On("GetByVehicleID", mock.Anything, "UNKNOWN").Return(nil, repository.ErrVehicleNotFound)

	_, err := svc.IngestReport(context.Background(), LocationReportRequest{
		BusID: "UNKNOWN", Lat: 0, Lng: 0, Speed: 0,
	})
	assert.ErrorIs(t, err, repository.ErrVehicleNotFound)

	// No state write, no broadcast.
	states.AssertNotCalled(t, "RecordReport", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	broadcaster.AssertNotCalled(t, "EmitVehicleUpdate", mock.Anything, mock.Anything)
}

func TestIngestReportInvalidCoordinates(t *testing.T) {
	vehicles := new(MockVehicleRepository)
	svc := newTestService(vehicles, new(MockStateStore), new(MockGeometryProvider), new(MockBroadcaster), new(MockEventPublisher))

	_, err := svc.IngestReport(context.Background(), LocationReportRequest{
		BusID: "V1", Lat: 120, Lng: 77, Speed: 0,
	})
	assert.ErrorIs(t, err, ErrInvalidCoordinates)

	vehicles.AssertNotCalled(t, "GetByVehicleID", mock.Anything, mock.Anything)
}

func TestIngestReportStateWriteFailure(t *testing.T) {
	vehicles := new(MockVehicleRepository)
	states := new(MockStateStore)
	broadcaster := new(MockBroadcaster)

	svc := newTestService(vehicles, states, new(MockGeometryProvider), broadcaster, new(MockEventPublisher))

	vehicles.On("GetByVehicleID", mock.Anything, "V1").Return(testVehicle, nil)
	states.On("RecordReport", mock.Anything, "V1", "R1", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("connection refused"))

	_, err := svc.IngestReport(context.Background(), LocationReportRequest{
		BusID: "V1", Lat: 28.63, Lng: 77.29, Speed: 40,
	})
	assert.Error(t, err)
	broadcaster.AssertNotCalled(t, "EmitVehicleUpdate", mock.Anything, mock.Anything)
}

func TestIngestReportDegradesWithoutGeometry(t *testing.T) {
	vehicles := new(MockVehicleRepository)
	states := new(MockStateStore)
	geometry := new(MockGeometryProvider)
	broadcaster := new(MockBroadcaster)
	publisher := new(MockEventPublisher)

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	svc := newTestService(vehicles, states, geometry, broadcaster, publisher)
	svc.now = func() time.Time { return now }

	vehicles.On("GetByVehicleID", mock.Anything, "V1").Return(testVehicle, nil)
	states.On("RecordReport", mock.Anything, "V1", "R1", 28.63, 77.2923, 40.0, now).
		Return(&entity.VehicleLiveState{
			VehicleID: "V1", RouteID: "R1",
			LastLat: 28.63, LastLng: 77.2923, LastUpdated: now,
			SpeedRing: []float64{40},
		}, nil)
	geometry.On("GetGeometry", mock.Anything, "R1").Return(nil, repository.ErrPolylineNotFound)
	broadcaster.On("EmitVehicleUpdate", "R1", mock.Anything).Once()
	publisher.On("Publish", mock.Anything, "bus.location_updated", mock.Anything).Return(nil)

	update, err := svc.IngestReport(context.Background(), LocationReportRequest{
		BusID: "V1", Lat: 28.63, Lng: 77.2923, Speed: 40,
	})
	require.NoError(t, err)

	// Raw coordinates and an empty stop list; the fresh position still
	// reaches clients.
	assert.Equal(t, &entity.LatLng{Lat: 28.63, Lng: 77.2923}, update.SnappedLocation)
	assert.Empty(t, update.ETAStops)
	assert.Equal(t, entity.StatusOnline, update.Status)
	broadcaster.AssertExpectations(t)
}

func TestLiveSnapshotNeverReported(t *testing.T) {
	vehicles := new(MockVehicleRepository)
	states := new(MockStateStore)
	geometry := new(MockGeometryProvider)

	svc := newTestService(vehicles, states, geometry, new(MockBroadcaster), new(MockEventPublisher))

	vehicles.On("GetByVehicleID", mock.Anything, "V1").Return(testVehicle, nil)
	states.On("ReadState", mock.Anything, "V1").Return(nil, nil)

	update, err := svc.LiveSnapshot(context.Background(), "V1")
	require.NoError(t, err)

	assert.True(t, update.Success)
	assert.Nil(t, update.SnappedLocation)
	assert.Nil(t, update.LastUpdated)
	assert.Equal(t, 0.0, update.AvgSpeed)
	assert.Empty(t, update.ETAStops)
	assert.Equal(t, entity.StatusOffline, update.Status)

	geometry.AssertNotCalled(t, "GetGeometry", mock.Anything, mock.Anything)
}

func TestLiveSnapshotOfflineAfterSilence(t *testing.T) {
	vehicles := new(MockVehicleRepository)
	states := new(MockStateStore)
	geometry := new(MockGeometryProvider)

	reported := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	svc := newTestService(vehicles, states, geometry, new(MockBroadcaster), new(MockEventPublisher))
	svc.now = func() time.Time { return reported.Add(91 * time.Second) }

	vehicles.On("GetByVehicleID", mock.Anything, "V1").Return(testVehicle, nil)
	states.On("ReadState", mock.Anything, "V1").Return(&entity.VehicleLiveState{
		VehicleID: "V1", RouteID: "R1",
		LastLat: 28.63, LastLng: 77.2923, LastUpdated: reported,
		SpeedRing: []float64{40},
	}, nil)
	geometry.On("GetGeometry", mock.Anything, "R1").Return(testGeometry(), nil)

	update, err := svc.LiveSnapshot(context.Background(), "V1")
	require.NoError(t, err)

	assert.Equal(t, entity.StatusOffline, update.Status)
	require.NotNil(t, update.LastUpdated)
	assert.True(t, update.LastUpdated.Time().Equal(reported))
	// The last snapped position is still served.
	require.NotNil(t, update.SnappedLocation)
	assert.InDelta(t, 77.2923, update.SnappedLocation.Lng, 0.001)
}

func TestLiveSnapshotOnlineWithinThreshold(t *testing.T) {
	vehicles := new(MockVehicleRepository)
	states := new(MockStateStore)
	geometry := new(MockGeometryProvider)

	reported := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	svc := newTestService(vehicles, states, geometry, new(MockBroadcaster), new(MockEventPublisher))
	svc.now = func() time.Time { return reported.Add(90 * time.Second) }

	vehicles.On("GetByVehicleID", mock.Anything, "V1").Return(testVehicle, nil)
	states.On("ReadState", mock.Anything, "V1").Return(&entity.VehicleLiveState{
		VehicleID: "V1", RouteID: "R1",
		LastLat: 28.63, LastLng: 77.2923, LastUpdated: reported,
		SpeedRing: []float64{40},
	}, nil)
	geometry.On("GetGeometry", mock.Anything, "R1").Return(testGeometry(), nil)

	update, err := svc.LiveSnapshot(context.Background(), "V1")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusOnline, update.Status)
}

func TestLiveSnapshotUnknownVehicle(t *testing.T) {
	vehicles := new(MockVehicleRepository)
	svc := newTestService(vehicles, new(MockStateStore), new(MockGeometryProvider), new(MockBroadcaster), new(MockEventPublisher))

	vehicles.On("GetByVehicleID", mock.Anything, "NOPE").Return(nil, repository.ErrVehicleNotFound)

	_, err := svc.LiveSnapshot(context.Background(), "NOPE")
	assert.ErrorIs(t, err, repository.ErrVehicleNotFound)
}
