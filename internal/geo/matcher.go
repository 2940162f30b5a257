package geo

import (
	"errors"
	"math"
)

// minSegmentKm is the length below which a polyline segment degenerates
// to a single point for the projection step.
const minSegmentKm = 0.001

// ErrPolylineTooShort is returned when a polyline has fewer than two points.
var ErrPolylineTooShort = errors.New("polyline must contain at least two points")

// Match is the result of snapping a point to a polyline: the nearest
// on-path coordinate and its arc-length offset from the polyline origin.
type Match struct {
	SnappedLng float64
	SnappedLat float64
	OffsetKm   float64
}

// SnapToPolyline projects a query point onto each polyline segment using a
// planar approximation scaled by the local latitude, keeps the foot with the
// minimum great-circle distance to the query point (earliest segment wins
// ties), and returns it with its cumulative arc-length offset. Coordinates
// are (lng,lat) pairs, matching the cache convention. Pure function.
func SnapToPolyline(coords [][2]float64, lng, lat float64) (Match, error) {
	if len(coords) < 2 {
		return Match{}, ErrPolylineTooShort
	}

	best := Match{}
	bestDist := math.Inf(1)
	cumKm := 0.0

	for i := 0; i < len(coords)-1; i++ {
		aLng, aLat := coords[i][0], coords[i][1]
		bLng, bLat := coords[i+1][0], coords[i+1][1]

		segKm := Haversine(aLat, aLng, bLat, bLng)

		var footLng, footLat, alongKm float64
		if segKm < minSegmentKm {
			// Degenerate segment: collapse to its first vertex.
			footLng, footLat, alongKm = aLng, aLat, 0
		} else {
			// Equirectangular projection in degree space, longitudes
			// scaled by the cosine of the segment's mean latitude.
			scale := math.Cos((aLat + bLat) / 2 * math.Pi / 180)
			vx := (bLng - aLng) * scale
			vy := bLat - aLat
			wx := (lng - aLng) * scale
			wy := lat - aLat

			t := (vx*wx + vy*wy) / (vx*vx + vy*vy)
			if t < 0 {
				t = 0
			} else if t > 1 {
				t = 1
			}
			footLng = aLng + (bLng-aLng)*t
			footLat = aLat + (bLat-aLat)*t
			alongKm = Haversine(aLat, aLng, footLat, footLng)
		}

		dist := Haversine(lat, lng, footLat, footLng)
		if dist < bestDist {
			bestDist = dist
			best = Match{SnappedLng: footLng, SnappedLat: footLat, OffsetKm: cumKm + alongKm}
		}

		cumKm += segKm
	}

	if best.OffsetKm > cumKm {
		best.OffsetKm = cumKm
	}
	return best, nil
}

// PolylineLengthKm returns the total arc length of a (lng,lat) polyline.
func PolylineLengthKm(coords [][2]float64) float64 {
	total := 0.0
	for i := 0; i < len(coords)-1; i++ {
		total += Haversine(coords[i][1], coords[i][0], coords[i+1][1], coords[i+1][0])
	}
	return total
}
