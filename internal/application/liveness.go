package application

import (
	"time"

	"github.com/citytransit/tracking-service/internal/domain/entity"
)

// LivenessStatus classifies a vehicle as online or offline from the age of
// its last report. Applied at the moment of observation; there is no
// background sweeper.
func LivenessStatus(lastUpdated, now time.Time, threshold time.Duration) string {
	if lastUpdated.IsZero() {
		return entity.StatusOffline
	}
	if now.Sub(lastUpdated) <= threshold {
		return entity.StatusOnline
	}
	return entity.StatusOffline
}
