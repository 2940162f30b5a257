package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/twpayne/go-polyline"

	"github.com/citytransit/tracking-service/internal/domain/entity"
	"github.com/citytransit/tracking-service/internal/domain/repository"
)

// ErrInvalidGeometry reports an encoded polyline that cannot be decoded.
var ErrInvalidGeometry = errors.New("encoded polyline cannot be decoded")

// StopInput is one stop of a route creation request.
type StopInput struct {
	StopID    string  `json:"stopId" binding:"required"`
	Name      string  `json:"name" binding:"required"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// CreateRouteRequest creates a route together with its stored polyline.
// Geometry comes from the external router's one-shot synthesis and is
// stored verbatim.
type CreateRouteRequest struct {
	RouteName   string      `json:"routeName" binding:"required"`
	Stops       []StopInput `json:"stops" binding:"required"`
	Geometry    string      `json:"geometry" binding:"required"`
	DistanceKm  float64     `json:"distance"`
	DurationMin float64     `json:"duration"`
}

// RegisterVehicleRequest binds a vehicle to a route.
type RegisterVehicleRequest struct {
	VehicleID    string `json:"vehicleId" binding:"required"`
	RouteName    string `json:"routeName" binding:"required"`
	LicensePlate string `json:"licensePlate"`
}

// AdminService manages the durable Route/Polyline/Vehicle records the live
// subsystem reads.
type AdminService struct {
	routes    repository.RouteRepository
	polylines repository.PolylineRepository
	vehicles  repository.VehicleRepository
	geometry  GeometryProvider
}

// NewAdminService creates a new admin service.
func NewAdminService(
	routes repository.RouteRepository,
	polylines repository.PolylineRepository,
	vehicles repository.VehicleRepository,
	geometry GeometryProvider,
) *AdminService {
	return &AdminService{routes: routes, polylines: polylines, vehicles: vehicles, geometry: geometry}
}

// CreateRoute validates and persists a route with its polyline, then drops
// any stale geometry cache entry for it.
func (s *AdminService) CreateRoute(ctx context.Context, req CreateRouteRequest) (*entity.Route, error) {
	stops := make([]entity.Stop, 0, len(req.Stops))
	for _, in := range req.Stops {
		stops = append(stops, entity.Stop{
			StopID:    in.StopID,
			Name:      in.Name,
			Latitude:  in.Latitude,
			Longitude: in.Longitude,
		})
	}

	route, err := entity.NewRoute(uuid.NewString(), req.RouteName, stops)
	if err != nil {
		return nil, err
	}

	if _, _, err := polyline.DecodeCoords([]byte(req.Geometry)); err != nil {
		return nil, ErrInvalidGeometry
	}

	if err := s.routes.Create(ctx, route); err != nil {
		return nil, fmt.Errorf("failed to create route: %w", err)
	}

	p := &entity.Polyline{
		RouteID:     route.ID,
		RouteName:   route.RouteName,
		Geometry:    req.Geometry,
		DistanceKm:  req.DistanceKm,
		DurationMin: req.DurationMin,
		CreatedAt:   time.Now(),
	}
	if err := s.polylines.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to store polyline: %w", err)
	}

	if err := s.geometry.Invalidate(ctx, route.ID); err != nil {
		logrus.Warnf("Failed to invalidate geometry cache for route %s: %v", route.ID, err)
	}

	return route, nil
}

// ListRoutes returns all routes.
func (s *AdminService) ListRoutes(ctx context.Context) ([]*entity.Route, error) {
	return s.routes.List(ctx)
}

// RegisterVehicle binds a new vehicle to an existing route.
func (s *AdminService) RegisterVehicle(ctx context.Context, req RegisterVehicleRequest) (*entity.Vehicle, error) {
	route, err := s.routes.GetByName(ctx, req.RouteName)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	vehicle := &entity.Vehicle{
		VehicleID:    req.VehicleID,
		RouteID:      route.ID,
		LicensePlate: req.LicensePlate,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.vehicles.Create(ctx, vehicle); err != nil {
		return nil, fmt.Errorf("failed to register vehicle: %w", err)
	}
	return vehicle, nil
}

// GetRouteWithPolyline serves the stored polyline by route display name.
// The geometry cache reads the same stored record by route id instead.
func (s *AdminService) GetRouteWithPolyline(ctx context.Context, routeName string) (*entity.Polyline, error) {
	return s.polylines.GetByRouteName(ctx, routeName)
}
