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

type driverRepository struct {
	db *sqlx.DB
}

// NewDriverRepository creates a new driver repository implementation.
func NewDriverRepository(db *sqlx.DB) repository.DriverRepository {
	return &driverRepository{db: db}
}

func (r *driverRepository) Create(ctx context.Context, driver *entity.Driver) error {
	query := `
		INSERT INTO drivers (id, name, phone, password_hash, vehicle_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.db.ExecContext(ctx, query,
		driver.ID, driver.Name, driver.Phone, driver.PasswordHash, driver.VehicleID, driver.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicateKey
		}
		return fmt.Errorf("failed to insert driver: %w", err)
	}
	return nil
}

func (r *driverRepository) GetByPhone(ctx context.Context, phone string) (*entity.Driver, error) {
	query := `
		SELECT id, name, phone, password_hash, vehicle_id, created_at
		FROM drivers
		WHERE phone = $1`

	var d entity.Driver
	err := r.db.GetContext(ctx, &d, query, phone)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrDriverNotFound
		}
		return nil, fmt.Errorf("failed to get driver: %w", err)
	}
	return &d, nil
}
