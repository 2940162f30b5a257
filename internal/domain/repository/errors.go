package repository

import "errors"

// Repository errors
var (
	ErrRouteNotFound    = errors.New("route not found")
	ErrPolylineNotFound = errors.New("polyline not found")
	ErrVehicleNotFound  = errors.New("vehicle not found")
	ErrDriverNotFound   = errors.New("driver not found")
	ErrDuplicateKey     = errors.New("duplicate key constraint")
)
