package geo

import (
	"math"
	"math/rand"
	"testing"

	"github.com/1F47E/geo-letters/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistance(t *testing.T) {
	testCases := []struct {
		name     string
		lat1     float64
		lon1     float64
		lat2     float64
		lon2     float64
		expected float64
		delta    float64
	}{
		{
			name: "Same point",
			lat1: 37.7749, lon1: -122.4194,
			lat2: 37.7749, lon2: -122.4194,
			expected: 0,
			delta:    0.001,
		},
		{
			name: "SF to Oakland",
			lat1: 37.7749, lon1: -122.4194,
			lat2: 37.8044, lon2: -122.2712,
			expected: 13000, // Approximately 13km
			delta:    1000,
		},
		{
			name: "SF to LA",
			lat1: 37.7749, lon1: -122.4194,
			lat2: 34.0522, lon2: -118.2437,
			expected: 559000, // Approximately 559km
			delta:    5000,
		},
		{
			name: "Bangalore letter to query center",
			lat1: 12.9716, lon1: 77.5946,
			lat2: 12.97, lon2: 77.6,
			expected: 612,
			delta:    15,
		},
		{
			name: "Across the antimeridian",
			lat1: 0, lon1: 179.999,
			lat2: 0, lon2: -179.999,
			expected: 222.6, // 0.002 degrees of equator
			delta:    0.5,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dist := Distance(tc.lat1, tc.lon1, tc.lat2, tc.lon2)
			assert.InDelta(t, tc.expected, dist, tc.delta)
		})
	}
}

func TestDistanceIsSymmetric(t *testing.T) {
	a := models.Location{Lat: 51.5074, Lon: -0.1278}
	b := models.Location{Lat: 48.8566, Lon: 2.3522}
	assert.InDelta(t, DistanceBetween(a, b), DistanceBetween(b, a), 1e-6)
}

func TestDistanceAntipodal(t *testing.T) {
	dist := Distance(0, 0, 0, 180)
	assert.InDelta(t, math.Pi*EarthRadiusMeters, dist, 1e-3)
}

func TestRadiusBoundsSingleBox(t *testing.T) {
	center := models.Location{Lat: 40, Lon: -74}
	boxes := RadiusBounds(center, 10000)
	require.Len(t, boxes, 1)

	box := boxes[0]
	assert.True(t, Contains(box, center))
	// Longitude span grows with latitude.
	assert.Greater(t, box.TopRight.Lon-box.BottomLeft.Lon, box.TopRight.Lat-box.BottomLeft.Lat)
}

func TestRadiusBoundsAntimeridian(t *testing.T) {
	boxes := RadiusBounds(models.Location{Lat: 10, Lon: 179.99}, 5000)
	require.Len(t, boxes, 2)
	assert.Equal(t, 180.0, boxes[0].TopRight.Lon)
	assert.Equal(t, -180.0, boxes[1].BottomLeft.Lon)

	boxes = RadiusBounds(models.Location{Lat: 10, Lon: -179.99}, 5000)
	require.Len(t, boxes, 2)
	assert.Equal(t, 180.0, boxes[0].TopRight.Lon)
	assert.Equal(t, -180.0, boxes[1].BottomLeft.Lon)
}

func TestRadiusBoundsPole(t *testing.T) {
	boxes := RadiusBounds(models.Location{Lat: 89.99, Lon: 45}, 5000)
	require.Len(t, boxes, 1)
	assert.Equal(t, -180.0, boxes[0].BottomLeft.Lon)
	assert.Equal(t, 180.0, boxes[0].TopRight.Lon)
	assert.Equal(t, 90.0, boxes[0].TopRight.Lat)
}

// Every point within the radius must fall inside one of the returned boxes.
func TestRadiusBoundsCoverCircle(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		center := models.Location{
			Lat: r.Float64()*170 - 85,
			Lon: r.Float64()*360 - 180,
		}
		radius := r.Float64()*200000 + 10
		boxes := RadiusBounds(center, radius)

		for j := 0; j < 50; j++ {
			p := models.Location{
				Lat: center.Lat + (r.Float64()*2-1)*3,
				Lon: wrapLon(center.Lon + (r.Float64()*2-1)*6),
			}
			if p.Lat < -90 || p.Lat > 90 || DistanceBetween(center, p) > radius {
				continue
			}
			covered := false
			for _, box := range boxes {
				if Contains(box, p) {
					covered = true
					break
				}
			}
			assert.True(t, covered, "center %+v radius %.0f point %+v not covered by %+v", center, radius, p, boxes)
		}
	}
}

func wrapLon(lon float64) float64 {
	for lon > 180 {
		lon -= 360
	}
	for lon < -180 {
		lon += 360
	}
	return lon
}
