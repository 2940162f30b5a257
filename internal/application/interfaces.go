package application

import (
	"context"
	"time"

	"github.com/citytransit/tracking-service/internal/domain/entity"
)

// GeometryProvider supplies the decoded polyline, stop list and per-stop
// offsets for a route, loading from durable storage on cache misses.
type GeometryProvider interface {
	GetGeometry(ctx context.Context, routeID string) (*entity.RouteGeometry, error)
	Invalidate(ctx context.Context, routeID string) error
}

// StateStore persists per-vehicle hot state across reports and queries.
type StateStore interface {
	RecordReport(ctx context.Context, vehicleID, routeID string, lat, lng, speed float64, now time.Time) (*entity.VehicleLiveState, error)
	ReadState(ctx context.Context, vehicleID string) (*entity.VehicleLiveState, error)
}

// Broadcaster fans a serialized vehicle update out to the subscribers of a
// per-route room.
type Broadcaster interface {
	EmitVehicleUpdate(routeID string, payload []byte)
}

// EventPublisher publishes domain events for external consumers.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload interface{}) error
}
