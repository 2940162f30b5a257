package database

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// NewConnection creates a new database connection.
func NewConnection(databaseURL string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// Migrate creates the durable tables if they do not exist.
func Migrate(db *sqlx.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS routes (
		id         TEXT PRIMARY KEY,
		route_name TEXT NOT NULL UNIQUE,
		stops      JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS polylines (
		route_id     TEXT PRIMARY KEY REFERENCES routes(id),
		route_name   TEXT NOT NULL,
		geometry     TEXT NOT NULL,
		distance_km  DOUBLE PRECISION NOT NULL DEFAULT 0,
		duration_min DOUBLE PRECISION NOT NULL DEFAULT 0,
		created_at   TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS vehicles (
		vehicle_id    TEXT PRIMARY KEY,
		route_id      TEXT NOT NULL REFERENCES routes(id),
		license_plate TEXT NOT NULL DEFAULT '',
		is_active     BOOLEAN NOT NULL DEFAULT TRUE,
		created_at    TIMESTAMPTZ NOT NULL,
		updated_at    TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS drivers (
		id            TEXT PRIMARY KEY,
		name          TEXT NOT NULL,
		phone         TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		vehicle_id    TEXT NOT NULL REFERENCES vehicles(vehicle_id),
		created_at    TIMESTAMPTZ NOT NULL
	);`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}
