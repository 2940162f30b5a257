package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/citytransit/tracking-service/internal/domain/entity"
	"github.com/citytransit/tracking-service/internal/domain/repository"
)

type routeRepository struct {
	db *sqlx.DB
}

// NewRouteRepository creates a new route repository implementation.
func NewRouteRepository(db *sqlx.DB) repository.RouteRepository {
	return &routeRepository{db: db}
}

func (r *routeRepository) Create(ctx context.Context, route *entity.Route) error {
	query := `
		INSERT INTO routes (id, route_name, stops, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`

	stopsJSON, err := json.Marshal(route.Stops)
	if err != nil {
		return fmt.Errorf("failed to marshal stops: %w", err)
	}

	_, err = r.db.ExecContext(ctx, query, route.ID, route.RouteName, stopsJSON, route.CreatedAt, route.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicateKey
		}
		return fmt.Errorf("failed to insert route: %w", err)
	}
	return nil
}

func (r *routeRepository) GetByID(ctx context.Context, id string) (*entity.Route, error) {
	query := `
		SELECT id, route_name, stops, created_at, updated_at
		FROM routes
		WHERE id = $1`

	return r.scanRoute(r.db.QueryRowxContext(ctx, query, id))
}

func (r *routeRepository) GetByName(ctx context.Context, routeName string) (*entity.Route, error) {
	query := `
		SELECT id, route_name, stops, created_at, updated_at
		FROM routes
		WHERE route_name = $1`

	return r.scanRoute(r.db.QueryRowxContext(ctx, query, routeName))
}

func (r *routeRepository) List(ctx context.Context) ([]*entity.Route, error) {
	query := `
		SELECT id, route_name, stops, created_at, updated_at
		FROM routes
		ORDER BY route_name`

	rows, err := r.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list routes: %w", err)
	}
	defer rows.Close()

	var routes []*entity.Route
	for rows.Next() {
		route, err := r.scanRoute(rows)
		if err != nil {
			return nil, err
		}
		routes = append(routes, route)
	}
	return routes, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *routeRepository) scanRoute(row rowScanner) (*entity.Route, error) {
	var route entity.Route
	var stopsJSON []byte

	err := row.Scan(&route.ID, &route.RouteName, &stopsJSON, &route.CreatedAt, &route.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrRouteNotFound
		}
		return nil, fmt.Errorf("failed to scan route: %w", err)
	}

	if err := json.Unmarshal(stopsJSON, &route.Stops); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stops: %w", err)
	}
	return &route, nil
}

// isUniqueViolation reports a Postgres unique constraint violation.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
