package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/twpayne/go-polyline"
	"golang.org/x/sync/singleflight"

	"github.com/citytransit/tracking-service/internal/domain/entity"
	"github.com/citytransit/tracking-service/internal/domain/repository"
	"github.com/citytransit/tracking-service/internal/geo"
	"github.com/citytransit/tracking-service/internal/metrics"
)

// Hash fields of a route:<routeId> cache entry.
const (
	fieldPolyline    = "polyline"
	fieldStops       = "stops"
	fieldStopOffsets = "stopOffsetsKm"
)

// GeometryCache serves decoded route geometry from Redis, loading and
// decoding the stored polyline on a miss. Entries are immutable after
// write; admin polyline replacement goes through Invalidate.
type GeometryCache struct {
	client    *redis.Client
	routes    repository.RouteRepository
	polylines repository.PolylineRepository
	ttl       time.Duration
	group     singleflight.Group
}

// NewGeometryCache creates a geometry cache. A zero ttl means entries
// live until invalidated.
func NewGeometryCache(client *redis.Client, routes repository.RouteRepository, polylines repository.PolylineRepository, ttl time.Duration) *GeometryCache {
	return &GeometryCache{client: client, routes: routes, polylines: polylines, ttl: ttl}
}

func routeKey(routeID string) string {
	return "route:" + routeID
}

// GetGeometry returns the decoded polyline, stop list and per-stop offsets
// for a route. Concurrent loads of the same missing route are coalesced.
func (c *GeometryCache) GetGeometry(ctx context.Context, routeID string) (*entity.RouteGeometry, error) {
	fields, err := c.client.HGetAll(ctx, routeKey(routeID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read geometry cache: %w", err)
	}

	if len(fields) > 0 {
		geom, err := decodeEntry(routeID, fields)
		if err == nil {
			metrics.GeometryCacheHits.Inc()
			return geom, nil
		}
		logrus.Warnf("Corrupt geometry cache entry for route %s, reloading: %v", routeID, err)
	}

	metrics.GeometryCacheMisses.Inc()

	v, err, _ := c.group.Do(routeID, func() (interface{}, error) {
		return c.load(ctx, routeID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*entity.RouteGeometry), nil
}

// Invalidate removes the cache entry for a route.
func (c *GeometryCache) Invalidate(ctx context.Context, routeID string) error {
	if err := c.client.Del(ctx, routeKey(routeID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate geometry cache: %w", err)
	}
	return nil
}

// load reads the durable Polyline and Route, decodes the geometry,
// projects every stop onto it and writes the entry back best-effort.
func (c *GeometryCache) load(ctx context.Context, routeID string) (*entity.RouteGeometry, error) {
	stored, err := c.polylines.GetByRouteID(ctx, routeID)
	if err != nil {
		return nil, err
	}

	route, err := c.routes.GetByID(ctx, routeID)
	if err != nil {
		return nil, err
	}

	// DecodeCoords yields (lat,lng) pairs; the matcher convention is
	// longitude first.
	decoded, _, err := polyline.DecodeCoords([]byte(stored.Geometry))
	if err != nil {
		return nil, fmt.Errorf("failed to decode polyline for route %s: %w", routeID, err)
	}
	coords := make([][2]float64, len(decoded))
	for i, pair := range decoded {
		coords[i] = [2]float64{pair[1], pair[0]}
	}

	geom := &entity.RouteGeometry{
		RouteID: routeID,
		Coords:  coords,
		Stops:   route.Stops,
	}
	geom.StopOffsetsKm = stopOffsets(coords, route.Stops)

	c.store(ctx, geom)
	return geom, nil
}

// stopOffsets projects each stop through the matcher against the decoded
// polyline. Offsets are stable for the life of the route.
func stopOffsets(coords [][2]float64, stops []entity.Stop) []float64 {
	offsets := make([]float64, len(stops))
	for i, stop := range stops {
		match, err := geo.SnapToPolyline(coords, stop.Longitude, stop.Latitude)
		if err != nil {
			return offsets
		}
		offsets[i] = match.OffsetKm
	}
	return offsets
}

// store writes the cache entry. Write failures are logged, not surfaced:
// the computed geometry is still returned to the caller.
func (c *GeometryCache) store(ctx context.Context, geom *entity.RouteGeometry) {
	polylineJSON, err := json.Marshal(geom.Coords)
	if err != nil {
		logrus.Warnf("Failed to marshal polyline for route %s: %v", geom.RouteID, err)
		return
	}
	stopsJSON, err := json.Marshal(geom.Stops)
	if err != nil {
		logrus.Warnf("Failed to marshal stops for route %s: %v", geom.RouteID, err)
		return
	}
	offsetsJSON, err := json.Marshal(geom.StopOffsetsKm)
	if err != nil {
		logrus.Warnf("Failed to marshal stop offsets for route %s: %v", geom.RouteID, err)
		return
	}

	key := routeKey(geom.RouteID)
	err = c.client.HSet(ctx, key,
		fieldPolyline, string(polylineJSON),
		fieldStops, string(stopsJSON),
		fieldStopOffsets, string(offsetsJSON),
	).Err()
	if err != nil {
		logrus.Warnf("Failed to write geometry cache for route %s: %v", geom.RouteID, err)
		return
	}

	if c.ttl > 0 {
		if err := c.client.Expire(ctx, key, c.ttl).Err(); err != nil {
			logrus.Warnf("Failed to set geometry cache TTL for route %s: %v", geom.RouteID, err)
		}
	}
}

// decodeEntry rebuilds a RouteGeometry from cached hash fields.
func decodeEntry(routeID string, fields map[string]string) (*entity.RouteGeometry, error) {
	polylineJSON, ok := fields[fieldPolyline]
	if !ok {
		return nil, fmt.Errorf("missing %s field", fieldPolyline)
	}
	stopsJSON, ok := fields[fieldStops]
	if !ok {
		return nil, fmt.Errorf("missing %s field", fieldStops)
	}

	geom := &entity.RouteGeometry{RouteID: routeID}
	if err := json.Unmarshal([]byte(polylineJSON), &geom.Coords); err != nil {
		return nil, fmt.Errorf("failed to unmarshal polyline: %w", err)
	}
	if err := json.Unmarshal([]byte(stopsJSON), &geom.Stops); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stops: %w", err)
	}

	if offsetsJSON, ok := fields[fieldStopOffsets]; ok {
		if err := json.Unmarshal([]byte(offsetsJSON), &geom.StopOffsetsKm); err != nil {
			return nil, fmt.Errorf("failed to unmarshal stop offsets: %w", err)
		}
	} else {
		geom.StopOffsetsKm = stopOffsets(geom.Coords, geom.Stops)
	}
	return geom, nil
}
