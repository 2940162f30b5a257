package entity

import (
	"errors"
	"math"
	"strconv"
	"time"
)

// TimeLayout is the wire format for timestamps: ISO-8601 UTC with
// millisecond precision.
const TimeLayout = "2006-01-02T15:04:05.000Z"

// Vehicle status values as observed by clients.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Domain errors
var (
	ErrRouteInvalidName  = errors.New("route name cannot be empty")
	ErrRouteTooFewStops  = errors.New("route must contain at least two stops")
	ErrInvalidCoordinate = errors.New("coordinate out of range")
)

// Stop is a named point on a route, in traversal order.
type Stop struct {
	StopID    string  `json:"stopId"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Route is an ordered list of stops under a unique display name.
// Routes are immutable once created.
type Route struct {
	ID        string    `json:"id" db:"id"`
	RouteName string    `json:"routeName" db:"route_name"`
	Stops     []Stop    `json:"stops"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// NewRoute creates a route with validation.
func NewRoute(id, routeName string, stops []Stop) (*Route, error) {
	if routeName == "" {
		return nil, ErrRouteInvalidName
	}
	if len(stops) < 2 {
		return nil, ErrRouteTooFewStops
	}
	for _, s := range stops {
		if !ValidCoordinate(s.Latitude, s.Longitude) {
			return nil, ErrInvalidCoordinate
		}
	}
	now := time.Now()
	return &Route{
		ID:        id,
		RouteName: routeName,
		Stops:     stops,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Polyline is the stored drivable path for a route, exactly one per route.
// Geometry is the encoded precision-5 polyline produced by the external
// router, stored verbatim.
type Polyline struct {
	RouteID     string    `json:"routeId" db:"route_id"`
	RouteName   string    `json:"routeName" db:"route_name"`
	Geometry    string    `json:"geometry" db:"geometry"`
	DistanceKm  float64   `json:"distance" db:"distance_km"`
	DurationMin float64   `json:"duration" db:"duration_min"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
}

// Vehicle is bound to exactly one route at any moment.
type Vehicle struct {
	VehicleID    string    `json:"vehicleId" db:"vehicle_id"`
	RouteID      string    `json:"routeId" db:"route_id"`
	LicensePlate string    `json:"licensePlate" db:"license_plate"`
	IsActive     bool      `json:"isActive" db:"is_active"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}

// Driver operates a vehicle and authenticates with phone + password.
type Driver struct {
	ID           string    `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Phone        string    `json:"phone" db:"phone"`
	PasswordHash string    `json:"-" db:"password_hash"`
	VehicleID    string    `json:"vehicleId" db:"vehicle_id"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}

// VehicleLiveState is the hot per-vehicle record: last reported position,
// server-stamped update time and the bounded ring of recent raw speeds,
// newest first.
type VehicleLiveState struct {
	VehicleID   string
	RouteID     string
	LastLat     float64
	LastLng     float64
	LastUpdated time.Time
	SpeedRing   []float64
}

// AvgSpeed returns the arithmetic mean of the speed ring rounded to one
// decimal, or 0 when the ring is empty.
func (s *VehicleLiveState) AvgSpeed() float64 {
	if len(s.SpeedRing) == 0 {
		return 0
	}
	var sum float64
	for _, v := range s.SpeedRing {
		sum += v
	}
	return math.Round(sum/float64(len(s.SpeedRing))*10) / 10
}

// RouteGeometry is the derived per-route view served by the geometry
// cache: the decoded polyline in (lng,lat) order, the ordered stop list
// and each stop's arc-length offset from the polyline origin.
type RouteGeometry struct {
	RouteID       string
	Coords        [][2]float64
	Stops         []Stop
	StopOffsetsKm []float64
}

// LatLng is a WGS84 coordinate pair on the wire.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// ETAStop is the per-stop arrival estimate, in route traversal order.
type ETAStop struct {
	StopID     string `json:"stopId"`
	Name       string `json:"name"`
	ETAMinutes int    `json:"etaMinutes"`
}

// VehicleUpdate is the composite payload returned from the HTTP paths and
// emitted to push subscribers. The two paths serialize it identically.
type VehicleUpdate struct {
	Success         bool       `json:"success"`
	BusID           string     `json:"busId"`
	RouteID         string     `json:"routeId"`
	SnappedLocation *LatLng    `json:"snappedLocation"`
	AvgSpeed        float64    `json:"avgSpeed"`
	LastUpdated     *Timestamp `json:"lastUpdated"`
	ETAStops        []ETAStop  `json:"etaStops"`
	Status          string     `json:"status"`
}

// Timestamp marshals as ISO-8601 UTC with millisecond precision.
type Timestamp time.Time

// NewTimestamp wraps a time.Time for wire serialization.
func NewTimestamp(t time.Time) *Timestamp {
	ts := Timestamp(t)
	return &ts
}

// Time returns the underlying time.
func (t Timestamp) Time() time.Time { return time.Time(t) }

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(time.Time(t).UTC().Format(TimeLayout))), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	s, err := strconv.Unquote(string(b))
	if err != nil {
		return err
	}
	parsed, err := ParseTime(s)
	if err != nil {
		return err
	}
	*t = Timestamp(parsed)
	return nil
}

// ParseTime parses a wire timestamp, accepting RFC3339 variants.
func ParseTime(s string) (time.Time, error) {
	if t, err := time.Parse(TimeLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// ValidCoordinate reports whether lat/lng are finite WGS84 degrees.
func ValidCoordinate(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsInf(lat, 0) || math.IsNaN(lng) || math.IsInf(lng, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// FiniteSpeed reports whether a raw speed sample is admissible to the
// speed ring.
func FiniteSpeed(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}
