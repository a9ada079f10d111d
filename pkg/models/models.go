package models

import (
	"fmt"
	"math"
)

// Location represents a geographic location with latitude and longitude
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// BoundingBox represents a rectangular area defined by two corners
type BoundingBox struct {
	BottomLeft Location
	TopRight   Location
}

// GeoPointType is the only geometry kind a letter location may have.
const GeoPointType = "Point"

// GeoPoint is a GeoJSON point. Coordinates are [longitude, latitude].
type GeoPoint struct {
	Type        string     `json:"type" bson:"type"`
	Coordinates [2]float64 `json:"coordinates" bson:"coordinates"`
}

// NewGeoPoint builds a point after checking that both values are finite and in range.
func NewGeoPoint(lng, lat float64) (GeoPoint, error) {
	p := GeoPoint{Type: GeoPointType, Coordinates: [2]float64{lng, lat}}
	if err := p.Validate(); err != nil {
		return GeoPoint{}, err
	}
	return p, nil
}

// Lng returns the longitude.
func (p GeoPoint) Lng() float64 { return p.Coordinates[0] }

// Lat returns the latitude.
func (p GeoPoint) Lat() float64 { return p.Coordinates[1] }

// Location converts the point to the lat/lon form used by the spatial index.
func (p GeoPoint) Location() Location {
	return Location{Lat: p.Lat(), Lon: p.Lng()}
}

// Validate reports a ValidationError for anything that is not a well-formed Point.
func (p GeoPoint) Validate() error {
	if p.Type != GeoPointType {
		return NewValidationError("location", fmt.Sprintf("unsupported geometry type %q", p.Type))
	}
	lng, lat := p.Lng(), p.Lat()
	if math.IsNaN(lng) || math.IsInf(lng, 0) || math.IsNaN(lat) || math.IsInf(lat, 0) {
		return NewValidationError("location", "coordinates must be finite numbers")
	}
	if lng < -180 || lng > 180 {
		return NewValidationError("longitude", "must be between -180 and 180")
	}
	if lat < -90 || lat > 90 {
		return NewValidationError("latitude", "must be between -90 and 90")
	}
	return nil
}
