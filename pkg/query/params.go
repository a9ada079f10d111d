// Package query turns client-shaped proximity parameters into store queries
// and owns the ordering and limit policy of nearby results.
package query

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/1F47E/geo-letters/pkg/models"
)

const (
	DefaultRadiusMeters = 100
	DefaultLimit        = 50
	MaxLimit            = 100

	// MaxRadiusMeters is half the earth's circumference; anything larger
	// already covers the whole sphere.
	MaxRadiusMeters = 20037508
)

// RawParams are the proximity parameters as received from a client.
type RawParams struct {
	Lat    string
	Lng    string
	Radius string
	Limit  string
}

// Params is a normalized proximity request.
type Params struct {
	Center       models.GeoPoint
	RadiusMeters int
	Limit        int
}

// ParseParams validates the center and normalizes radius and limit.
// A bad center is an InvalidArgument error; a bad radius or limit falls back
// to its default.
func ParseParams(raw RawParams) (Params, error) {
	lat, err := parseCoordinate("lat", raw.Lat)
	if err != nil {
		return Params{}, err
	}
	lng, err := parseCoordinate("lng", raw.Lng)
	if err != nil {
		return Params{}, err
	}

	center, err := models.NewGeoPoint(lng, lat)
	if err != nil {
		return Params{}, asInvalidArgument(err)
	}

	return Params{
		Center:       center,
		RadiusMeters: NormalizeRadius(raw.Radius),
		Limit:        NormalizeLimit(raw.Limit),
	}, nil
}

// NormalizeRadius parses a radius in meters. Decimals are truncated.
// Missing, non-numeric or non-positive input yields DefaultRadiusMeters.
func NormalizeRadius(raw string) int {
	n, ok := parsePositiveInt(raw)
	if !ok {
		return DefaultRadiusMeters
	}
	return min(n, MaxRadiusMeters)
}

// NormalizeLimit parses a result limit and clamps it to MaxLimit.
// Missing, non-numeric or non-positive input yields DefaultLimit.
func NormalizeLimit(raw string) int {
	n, ok := parsePositiveInt(raw)
	if !ok {
		return DefaultLimit
	}
	return min(n, MaxLimit)
}

func parsePositiveInt(raw string) (int, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	v = math.Trunc(v)
	if v < 1 {
		return 0, false
	}
	if v > math.MaxInt32 {
		return math.MaxInt32, true
	}
	return int(v), true
}

func parseCoordinate(field, raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, models.NewInvalidArgument(field, "is required")
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, models.NewInvalidArgument(field, "must be a finite number")
	}
	return v, nil
}

func asInvalidArgument(err error) error {
	var ve *models.ValidationError
	if errors.As(err, &ve) {
		return models.NewInvalidArgument(ve.Field, ve.Message)
	}
	return err
}
