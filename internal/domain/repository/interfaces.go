package repository

import (
	"context"

	"github.com/citytransit/tracking-service/internal/domain/entity"
)

// RouteRepository defines the contract for route persistence.
// The live subsystem only reads; writes come from admin actions.
type RouteRepository interface {
	Create(ctx context.Context, route *entity.Route) error
	GetByID(ctx context.Context, id string) (*entity.Route, error)
	GetByName(ctx context.Context, routeName string) (*entity.Route, error)
	List(ctx context.Context) ([]*entity.Route, error)
}

// PolylineRepository defines the contract for stored route geometry.
type PolylineRepository interface {
	Create(ctx context.Context, polyline *entity.Polyline) error
	GetByRouteID(ctx context.Context, routeID string) (*entity.Polyline, error)
	GetByRouteName(ctx context.Context, routeName string) (*entity.Polyline, error)
}

// VehicleRepository defines the contract for vehicle persistence.
type VehicleRepository interface {
	Create(ctx context.Context, vehicle *entity.Vehicle) error
	GetByVehicleID(ctx context.Context, vehicleID string) (*entity.Vehicle, error)
	List(ctx context.Context) ([]*entity.Vehicle, error)
}

// DriverRepository defines the contract for driver persistence.
type DriverRepository interface {
	Create(ctx context.Context, driver *entity.Driver) error
	GetByPhone(ctx context.Context, phone string) (*entity.Driver, error)
}
