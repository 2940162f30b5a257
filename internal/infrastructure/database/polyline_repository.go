package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/citytransit/tracking-service/internal/domain/entity"
	"github.com/citytransit/tracking-service/internal/domain/repository"
)

type polylineRepository struct {
	db *sqlx.DB
}

// NewPolylineRepository creates a new polyline repository implementation.
func NewPolylineRepository(db *sqlx.DB) repository.PolylineRepository {
	return &polylineRepository{db: db}
}

func (r *polylineRepository) Create(ctx context.Context, p *entity.Polyline) error {
	query := `
		INSERT INTO polylines (route_id, route_name, geometry, distance_km, duration_min, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.db.ExecContext(ctx, query, p.RouteID, p.RouteName, p.Geometry, p.DistanceKm, p.DurationMin, p.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicateKey
		}
		return fmt.Errorf("failed to insert polyline: %w", err)
	}
	return nil
}

func (r *polylineRepository) GetByRouteID(ctx context.Context, routeID string) (*entity.Polyline, error) {
	query := `
		SELECT route_id, route_name, geometry, distance_km, duration_min, created_at
		FROM polylines
		WHERE route_id = $1`

	var p entity.Polyline
	err := r.db.GetContext(ctx, &p, query, routeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrPolylineNotFound
		}
		return nil, fmt.Errorf("failed to get polyline: %w", err)
	}
	return &p, nil
}

func (r *polylineRepository) GetByRouteName(ctx context.Context, routeName string) (*entity.Polyline, error) {
	query := `
		SELECT route_id, route_name, geometry, distance_km, duration_min, created_at
		FROM polylines
		WHERE route_name = $1`

	var p entity.Polyline
	err := r.db.GetContext(ctx, &p, query, routeName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrPolylineNotFound
		}
		return nil, fmt.Errorf("failed to get polyline: %w", err)
	}
	return &p, nil
}
