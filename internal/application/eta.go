package application

import (
	"math"

	"github.com/citytransit/tracking-service/internal/domain/entity"
)

// ComputeETAs converts a matched vehicle offset, the per-stop offsets of a
// route and a smoothed speed into per-stop arrival estimates, one entry per
// stop in traversal order. A stop at or behind the vehicle reports zero.
// The speed floor keeps ETAs finite while the vehicle is stationary.
// Stops past the end of stopOffsetsKm get no entry.
func ComputeETAs(vehicleOffsetKm float64, stops []entity.Stop, stopOffsetsKm []float64, avgSpeedKmh, floorKmh float64) []entity.ETAStop {
	effectiveSpeed := math.Max(avgSpeedKmh, floorKmh)

	etas := make([]entity.ETAStop, 0, len(stops))
	for i, stop := range stops {
		if i >= len(stopOffsetsKm) {
			break
		}
		remainingKm := stopOffsetsKm[i] - vehicleOffsetKm
		if remainingKm < 0 {
			remainingKm = 0
		}
		etas = append(etas, entity.ETAStop{
			StopID:     stop.StopID,
			Name:       stop.Name,
			ETAMinutes: int(math.Round(remainingKm / effectiveSpeed * 60)),
		})
	}
	return etas
}
