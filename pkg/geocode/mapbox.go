// Package geocode resolves human-readable place names for coordinates.
//
// Reverse geocoding is optional: Mapbox is only called when a key is
// configured, and callers normally go through PlaceNamer, which never
// returns an error.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "https://api.mapbox.com"
	DefaultTimeout = 5 * time.Second
)

// ErrUpstream is returned when Mapbox answers with a non-2xx status.
var ErrUpstream = errors.New("geocode upstream error")

// Geocoder resolves the place name at a point. An empty name with a nil
// error means the point has no known place.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lng, lat float64) (string, error)
}

// MapboxConfig configures the Mapbox client.
type MapboxConfig struct {
	Key     string
	BaseURL string
	Timeout time.Duration

	// Breaker trips after this many consecutive failures; 0 means 5.
	MaxFailures uint32
	// OpenTimeout is how long the breaker stays open; 0 means 30s.
	OpenTimeout time.Duration
}

// Mapbox calls the Mapbox reverse geocoding API.
type Mapbox struct {
	key     string
	baseURL string
	client  *http.Client
	cb      *gobreaker.CircuitBreaker
	log     *zap.Logger
}

type mapboxResponse struct {
	Features []struct {
		PlaceName string `json:"place_name"`
	} `json:"features"`
}

// NewMapbox creates a Mapbox geocoder.
func NewMapbox(cfg MapboxConfig, logger *zap.Logger) *Mapbox {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}

	log := logger.With(zap.String("component", "mapbox"))
	st := gobreaker.Settings{
		Name:        "mapbox",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Info("circuit breaker state", zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	}

	return &Mapbox{
		key:     cfg.Key,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: cfg.Timeout},
		cb:      gobreaker.NewCircuitBreaker(st),
		log:     log,
	}
}

// ReverseGeocode returns the first feature's place_name. Without a key it
// returns "" and makes no request.
func (m *Mapbox) ReverseGeocode(ctx context.Context, lng, lat float64) (string, error) {
	if m.key == "" {
		return "", nil
	}

	res, err := m.cb.Execute(func() (interface{}, error) {
		return m.lookup(ctx, lng, lat)
	})
	if err != nil {
		return "", err
	}
	return res.(string), nil
}

func (m *Mapbox) lookup(ctx context.Context, lng, lat float64) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.placeURL(lng, lat), nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("mapbox request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}

	var body mapboxResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode mapbox response: %w", err)
	}
	if len(body.Features) == 0 {
		return "", nil
	}
	return body.Features[0].PlaceName, nil
}

func (m *Mapbox) placeURL(lng, lat float64) string {
	q := url.Values{}
	q.Set("access_token", m.key)
	q.Set("limit", "1")
	return fmt.Sprintf("%s/geocoding/v5/mapbox.places/%s,%s.json?%s",
		m.baseURL,
		strconv.FormatFloat(lng, 'f', -1, 64),
		strconv.FormatFloat(lat, 'f', -1, 64),
		q.Encode())
}
