package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/citytransit/tracking-service/internal/domain/entity"
	"github.com/citytransit/tracking-service/internal/domain/repository"
	"github.com/citytransit/tracking-service/internal/token"
)

// ErrInvalidCredentials is returned on a failed driver login.
var ErrInvalidCredentials = errors.New("invalid phone or password")

// RegisterDriverRequest registers a driver bound to a vehicle.
type RegisterDriverRequest struct {
	Name      string `json:"name" binding:"required"`
	Phone     string `json:"phone" binding:"required"`
	Password  string `json:"password" binding:"required,min=8"`
	VehicleID string `json:"vehicleId" binding:"required"`
}

// LoginRequest authenticates a driver.
type LoginRequest struct {
	Phone    string `json:"phone" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse carries the issued credential.
type LoginResponse struct {
	Token  string         `json:"token"`
	Driver *entity.Driver `json:"driver"`
}

// AuthService issues credentials for drivers.
type AuthService struct {
	drivers  repository.DriverRepository
	vehicles repository.VehicleRepository
	tokens   *token.Manager
}

// NewAuthService creates a new auth service.
func NewAuthService(drivers repository.DriverRepository, vehicles repository.VehicleRepository, tokens *token.Manager) *AuthService {
	return &AuthService{drivers: drivers, vehicles: vehicles, tokens: tokens}
}

// RegisterDriver stores a new driver with a bcrypt password hash after
// checking the bound vehicle exists.
func (s *AuthService) RegisterDriver(ctx context.Context, req RegisterDriverRequest) (*entity.Driver, error) {
	if _, err := s.vehicles.GetByVehicleID(ctx, req.VehicleID); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	driver := &entity.Driver{
		ID:           uuid.NewString(),
		Name:         req.Name,
		Phone:        req.Phone,
		PasswordHash: string(hash),
		VehicleID:    req.VehicleID,
		CreatedAt:    time.Now(),
	}
	if err := s.drivers.Create(ctx, driver); err != nil {
		return nil, fmt.Errorf("failed to create driver: %w", err)
	}
	return driver, nil
}

// Login verifies a driver's password and issues a JWT bound to the
// driver's vehicle.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	driver, err := s.drivers.GetByPhone(ctx, req.Phone)
	if err != nil {
		if errors.Is(err, repository.ErrDriverNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(driver.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	signed, err := s.tokens.Generate(driver.ID, driver.VehicleID)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}
	return &LoginResponse{Token: signed, Driver: driver}, nil
}
