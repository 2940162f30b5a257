package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHaversineZeroDistance(t *testing.T) {
	assert.Equal(t, 0.0, Haversine(28.6328, 77.2197, 28.6328, 77.2197))
}

func TestHaversineOneDegreeAtEquator(t *testing.T) {
	// One degree of longitude at the equator is ~111.195 km for the
	// mean Earth radius.
	d := Haversine(0, 0, 0, 1)
	assert.InDelta(t, 111.195, d, 0.01)
}

func TestHaversineSymmetry(t *testing.T) {
	a := Haversine(28.6328, 77.2197, 28.628, 77.3649)
	b := Haversine(28.628, 77.3649, 28.6328, 77.2197)
	assert.Equal(t, a, b)
}
