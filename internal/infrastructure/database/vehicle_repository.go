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

type vehicleRepository struct {
	db *sqlx.DB
}

// NewVehicleRepository creates a new vehicle repository implementation.
func NewVehicleRepository(db *sqlx.DB) repository.VehicleRepository {
	return &vehicleRepository{db: db}
}

func (r *vehicleRepository) Create(ctx context.Context, vehicle *entity.Vehicle) error {
	query := `
		INSERT INTO vehicles (vehicle_id, route_id, license_plate, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.db.ExecContext(ctx, query,
		vehicle.VehicleID, vehicle.RouteID, vehicle.LicensePlate, vehicle.IsActive,
		vehicle.CreatedAt, vehicle.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicateKey
		}
		return fmt.Errorf("failed to insert vehicle: %w", err)
	}
	return nil
}

func (r *vehicleRepository) GetByVehicleID(ctx context.Context, vehicleID string) (*entity.Vehicle, error) {
	query := `
		SELECT vehicle_id, route_id, license_plate, is_active, created_at, updated_at
		FROM vehicles
		WHERE vehicle_id = $1`

	var v entity.Vehicle
	err := r.db.GetContext(ctx, &v, query, vehicleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrVehicleNotFound
		}
		return nil, fmt.Errorf("failed to get vehicle: %w", err)
	}
	return &v, nil
}

func (r *vehicleRepository) List(ctx context.Context) ([]*entity.Vehicle, error) {
	query := `
		SELECT vehicle_id, route_id, license_plate, is_active, created_at, updated_at
		FROM vehicles
		ORDER BY vehicle_id`

	var vehicles []*entity.Vehicle
	if err := r.db.SelectContext(ctx, &vehicles, query); err != nil {
		return nil, fmt.Errorf("failed to list vehicles: %w", err)
	}
	return vehicles, nil
}
