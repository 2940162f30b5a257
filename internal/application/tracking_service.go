package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/citytransit/tracking-service/internal/domain/entity"
	"github.com/citytransit/tracking-service/internal/domain/repository"
	"github.com/citytransit/tracking-service/internal/geo"
	"github.com/citytransit/tracking-service/internal/metrics"
)

// Application errors
var (
	ErrInvalidCoordinates = errors.New("lat/lng must be finite WGS84 degrees")
)

// LocationReportRequest is the ingest payload from a vehicle device.
// The server stamps arrival time; no client timestamp is accepted.
type LocationReportRequest struct {
	BusID string  `json:"busId" binding:"required"`
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
	Speed float64 `json:"speed"`
}

// TrackingService handles the live tracking write and read paths: report
// ingestion, map-matching, ETA computation, liveness and push fan-out.
type TrackingService struct {
	vehicles    repository.VehicleRepository
	states      StateStore
	geometry    GeometryProvider
	broadcaster Broadcaster
	publisher   EventPublisher

	staleness     time.Duration
	minSpeedFloor float64

	now func() time.Time
}

// NewTrackingService creates a new tracking service.
func NewTrackingService(
	vehicles repository.VehicleRepository,
	states StateStore,
	geometry GeometryProvider,
	broadcaster Broadcaster,
	publisher EventPublisher,
	staleness time.Duration,
	minSpeedFloor float64,
) *TrackingService {
	return &TrackingService{
		vehicles:      vehicles,
		states:        states,
		geometry:      geometry,
		broadcaster:   broadcaster,
		publisher:     publisher,
		staleness:     staleness,
		minSpeedFloor: minSpeedFloor,
		now:           time.Now,
	}
}

// IngestReport processes one location report: resolves the vehicle, writes
// the hot state, matches the position to the route geometry, computes ETAs
// and fans the composite update out to the route's room. A geometry failure
// after a successful state write degrades the response to the raw
// coordinates instead of failing the ingest.
func (s *TrackingService) IngestReport(ctx context.Context, req LocationReportRequest) (*entity.VehicleUpdate, error) {
	if !entity.ValidCoordinate(req.Lat, req.Lng) {
		return nil, ErrInvalidCoordinates
	}

	vehicle, err := s.vehicles.GetByVehicleID(ctx, req.BusID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	state, err := s.states.RecordReport(ctx, vehicle.VehicleID, vehicle.RouteID, req.Lat, req.Lng, req.Speed, now)
	if err != nil {
		return nil, fmt.Errorf("failed to record vehicle state: %w", err)
	}

	// The report just arrived, so the vehicle is trivially online.
	update := &entity.VehicleUpdate{
		Success:         true,
		BusID:           vehicle.VehicleID,
		RouteID:         vehicle.RouteID,
		SnappedLocation: &entity.LatLng{Lat: req.Lat, Lng: req.Lng},
		AvgSpeed:        state.AvgSpeed(),
		LastUpdated:     entity.NewTimestamp(now),
		ETAStops:        []entity.ETAStop{},
		Status:          entity.StatusOnline,
	}
	s.resolveGeometry(ctx, update, req.Lat, req.Lng)

	payload, err := json.Marshal(update)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal vehicle update: %w", err)
	}
	s.broadcaster.EmitVehicleUpdate(vehicle.RouteID, payload)

	if err := s.publisher.Publish(ctx, "bus.location_updated", update); err != nil {
		logrus.Warnf("Failed to publish location event for %s: %v", vehicle.VehicleID, err)
	}

	metrics.ReportsIngested.Inc()
	return update, nil
}

// LiveSnapshot serves the on-demand composite for a vehicle. A known
// vehicle with no reports yet yields an offline composite with null
// location rather than an error.
func (s *TrackingService) LiveSnapshot(ctx context.Context, busID string) (*entity.VehicleUpdate, error) {
	vehicle, err := s.vehicles.GetByVehicleID(ctx, busID)
	if err != nil {
		return nil, err
	}

	state, err := s.states.ReadState(ctx, vehicle.VehicleID)
	if err != nil {
		return nil, fmt.Errorf("failed to read vehicle state: %w", err)
	}

	metrics.LiveQueries.Inc()

	if state == nil {
		return &entity.VehicleUpdate{
			Success:  true,
			BusID:    vehicle.VehicleID,
			RouteID:  vehicle.RouteID,
			AvgSpeed: 0,
			ETAStops: []entity.ETAStop{},
			Status:   entity.StatusOffline,
		}, nil
	}

	update := &entity.VehicleUpdate{
		Success:         true,
		BusID:           vehicle.VehicleID,
		RouteID:         vehicle.RouteID,
		SnappedLocation: &entity.LatLng{Lat: state.LastLat, Lng: state.LastLng},
		AvgSpeed:        state.AvgSpeed(),
		LastUpdated:     entity.NewTimestamp(state.LastUpdated),
		ETAStops:        []entity.ETAStop{},
		Status:          LivenessStatus(state.LastUpdated, s.now(), s.staleness),
	}
	s.resolveGeometry(ctx, update, state.LastLat, state.LastLng)
	return update, nil
}

// resolveGeometry snaps the raw position onto the route polyline and fills
// in per-stop ETAs. Any geometry failure leaves the raw coordinates and an
// empty stop list in place.
func (s *TrackingService) resolveGeometry(ctx context.Context, update *entity.VehicleUpdate, lat, lng float64) {
	geom, err := s.geometry.GetGeometry(ctx, update.RouteID)
	if err != nil {
		logrus.Warnf("Geometry unavailable for route %s, serving raw position: %v", update.RouteID, err)
		return
	}

	match, err := geo.SnapToPolyline(geom.Coords, lng, lat)
	if err != nil {
		logrus.Warnf("Map-matching failed for route %s: %v", update.RouteID, err)
		return
	}

	update.SnappedLocation = &entity.LatLng{Lat: match.SnappedLat, Lng: match.SnappedLng}
	update.ETAStops = ComputeETAs(match.OffsetKm, geom.Stops, geom.StopOffsetsKm, update.AvgSpeed, s.minSpeedFloor)
}
