package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/citytransit/tracking-service/internal/domain/entity"
)

// VehicleStateStore keeps per-vehicle hot state in Redis: a hash with the
// last reported position and a capped list holding the speed ring, newest
// at the head.
type VehicleStateStore struct {
	client   *redis.Client
	ringSize int
}

// NewVehicleStateStore creates a vehicle state store with the given speed
// ring size.
func NewVehicleStateStore(client *redis.Client, ringSize int) *VehicleStateStore {
	return &VehicleStateStore{client: client, ringSize: ringSize}
}

func busKey(vehicleID string) string {
	return "bus:" + vehicleID
}

func speedsKey(vehicleID string) string {
	return "bus:" + vehicleID + ":speeds"
}

// RecordReport writes the new position, stamps the update time and pushes
// the speed onto the ring. Position, time and route land in a single hash
// write so readers never observe a partial update. A non-finite or
// negative speed is dropped from the ring; the position still updates.
func (s *VehicleStateStore) RecordReport(ctx context.Context, vehicleID, routeID string, lat, lng, speed float64, now time.Time) (*entity.VehicleLiveState, error) {
	key := busKey(vehicleID)
	stamped := now.UTC().Format(entity.TimeLayout)

	err := s.client.HSet(ctx, key,
		"lastLat", formatFloat(lat),
		"lastLng", formatFloat(lng),
		"lastUpdated", stamped,
		"routeId", routeID,
	).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to write vehicle state: %w", err)
	}

	if entity.FiniteSpeed(speed) {
		ring := speedsKey(vehicleID)
		if err := s.client.LPush(ctx, ring, formatFloat(speed)).Err(); err != nil {
			return nil, fmt.Errorf("failed to push speed sample: %w", err)
		}
		if err := s.client.LTrim(ctx, ring, 0, int64(s.ringSize-1)).Err(); err != nil {
			return nil, fmt.Errorf("failed to trim speed ring: %w", err)
		}
	}

	ring, err := s.readRing(ctx, vehicleID)
	if err != nil {
		return nil, err
	}

	return &entity.VehicleLiveState{
		VehicleID:   vehicleID,
		RouteID:     routeID,
		LastLat:     lat,
		LastLng:     lng,
		LastUpdated: now.UTC(),
		SpeedRing:   ring,
	}, nil
}

// ReadState returns the current record, or nil when the vehicle has never
// reported.
func (s *VehicleStateStore) ReadState(ctx context.Context, vehicleID string) (*entity.VehicleLiveState, error) {
	fields, err := s.client.HGetAll(ctx, busKey(vehicleID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read vehicle state: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	lat, err := strconv.ParseFloat(fields["lastLat"], 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt lastLat for vehicle %s: %w", vehicleID, err)
	}
	lng, err := strconv.ParseFloat(fields["lastLng"], 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt lastLng for vehicle %s: %w", vehicleID, err)
	}
	updated, err := entity.ParseTime(fields["lastUpdated"])
	if err != nil {
		return nil, fmt.Errorf("corrupt lastUpdated for vehicle %s: %w", vehicleID, err)
	}

	ring, err := s.readRing(ctx, vehicleID)
	if err != nil {
		return nil, err
	}

	return &entity.VehicleLiveState{
		VehicleID:   vehicleID,
		RouteID:     fields["routeId"],
		LastLat:     lat,
		LastLng:     lng,
		LastUpdated: updated,
		SpeedRing:   ring,
	}, nil
}

func (s *VehicleStateStore) readRing(ctx context.Context, vehicleID string) ([]float64, error) {
	raw, err := s.client.LRange(ctx, speedsKey(vehicleID), 0, int64(s.ringSize-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read speed ring: %w", err)
	}

	ring := make([]float64, 0, len(raw))
	for _, v := range raw {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			continue
		}
		ring = append(ring, parsed)
	}
	return ring, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
