// Package geo holds the spherical distance model shared by every store backend.
//
// Distances use the haversine formula on a sphere of radius EarthRadiusMeters.
// That radius is the one MongoDB applies to $geoNear over GeoJSON points, so the
// in-memory, MongoDB and PostGIS stores agree on where a radius boundary falls.
package geo

import (
	"math"

	"github.com/1F47E/geo-letters/pkg/models"
)

const (
	// EarthRadiusMeters is the sphere radius used for all distance math.
	EarthRadiusMeters = 6378100.0

	// boundsPadding widens bounding boxes by a hair so float rounding at the
	// box edge never drops a point the exact distance check would accept.
	boundsPadding = 1e-9
)

func toRadians(deg float64) float64 { return deg * math.Pi / 180.0 }

func toDegrees(rad float64) float64 { return rad * 180.0 / math.Pi }

// Distance calculates the haversine distance between two points in meters.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := toRadians(lat1)
	lat2Rad := toRadians(lat2)

	dLat := lat2Rad - lat1Rad
	dLon := toRadians(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	if a > 1 {
		a = 1
	}

	return 2 * EarthRadiusMeters * math.Asin(math.Sqrt(a))
}

// DistanceBetween is Distance for two index locations.
func DistanceBetween(a, b models.Location) float64 {
	return Distance(a.Lat, a.Lon, b.Lat, b.Lon)
}

// RadiusBounds returns the bounding boxes that together cover every point
// within radiusMeters of center. A single box is returned unless the circle
// crosses the antimeridian, in which case it is split in two. Circles that
// reach a pole cover the full longitude range.
func RadiusBounds(center models.Location, radiusMeters float64) []models.BoundingBox {
	angular := radiusMeters / EarthRadiusMeters
	dLat := toDegrees(angular) + boundsPadding

	minLat := center.Lat - dLat
	maxLat := center.Lat + dLat

	if minLat <= -90 || maxLat >= 90 || angular >= math.Pi/2 {
		return []models.BoundingBox{{
			BottomLeft: models.Location{Lat: math.Max(minLat, -90), Lon: -180},
			TopRight:   models.Location{Lat: math.Min(maxLat, 90), Lon: 180},
		}}
	}

	ratio := math.Sin(angular) / math.Cos(toRadians(center.Lat))
	if ratio >= 1 {
		return []models.BoundingBox{{
			BottomLeft: models.Location{Lat: minLat, Lon: -180},
			TopRight:   models.Location{Lat: maxLat, Lon: 180},
		}}
	}
	dLon := toDegrees(math.Asin(ratio)) + boundsPadding

	minLon := center.Lon - dLon
	maxLon := center.Lon + dLon

	switch {
	case minLon < -180:
		return []models.BoundingBox{
			{BottomLeft: models.Location{Lat: minLat, Lon: minLon + 360}, TopRight: models.Location{Lat: maxLat, Lon: 180}},
			{BottomLeft: models.Location{Lat: minLat, Lon: -180}, TopRight: models.Location{Lat: maxLat, Lon: maxLon}},
		}
	case maxLon > 180:
		return []models.BoundingBox{
			{BottomLeft: models.Location{Lat: minLat, Lon: minLon}, TopRight: models.Location{Lat: maxLat, Lon: 180}},
			{BottomLeft: models.Location{Lat: minLat, Lon: -180}, TopRight: models.Location{Lat: maxLat, Lon: maxLon - 360}},
		}
	}

	return []models.BoundingBox{{
		BottomLeft: models.Location{Lat: minLat, Lon: minLon},
		TopRight:   models.Location{Lat: maxLat, Lon: maxLon},
	}}
}

// Contains reports whether loc lies inside box, edges included.
func Contains(box models.BoundingBox, loc models.Location) bool {
	return loc.Lat >= box.BottomLeft.Lat && loc.Lat <= box.TopRight.Lat &&
		loc.Lon >= box.BottomLeft.Lon && loc.Lon <= box.TopRight.Lon
}
