package geocode

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMapboxReverseGeocode(t *testing.T) {
	var gotPath, gotToken, gotLimit string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotToken = r.URL.Query().Get("access_token")
		gotLimit = r.URL.Query().Get("limit")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"features":[{"place_name":"Bengaluru, Karnataka, India"},{"place_name":"other"}]}`))
	}))
	defer srv.Close()

	m := NewMapbox(MapboxConfig{Key: "secret", BaseURL: srv.URL}, zap.NewNop())
	name, err := m.ReverseGeocode(context.Background(), 77.5946, 12.9716)
	require.NoError(t, err)

	assert.Equal(t, "Bengaluru, Karnataka, India", name)
	assert.Equal(t, "/geocoding/v5/mapbox.places/77.5946,12.9716.json", gotPath)
	assert.Equal(t, "secret", gotToken)
	assert.Equal(t, "1", gotLimit)
}

func TestMapboxNoFeatures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"features":[]}`))
	}))
	defer srv.Close()

	m := NewMapbox(MapboxConfig{Key: "secret", BaseURL: srv.URL}, zap.NewNop())
	name, err := m.ReverseGeocode(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "", name)
}

func TestMapboxWithoutKeyMakesNoRequest(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	m := NewMapbox(MapboxConfig{BaseURL: srv.URL}, zap.NewNop())
	name, err := m.ReverseGeocode(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, "", name)
	assert.Equal(t, int32(0), calls.Load())
}

func TestMapboxUpstreamErrorTripsBreaker(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	m := NewMapbox(MapboxConfig{Key: "bad", BaseURL: srv.URL, MaxFailures: 2, OpenTimeout: time.Minute}, zap.NewNop())

	for i := 0; i < 2; i++ {
		_, err := m.ReverseGeocode(context.Background(), 1, 2)
		assert.ErrorIs(t, err, ErrUpstream)
	}

	_, err := m.ReverseGeocode(context.Background(), 1, 2)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(2), calls.Load())
}

type stubGeocoder struct {
	mu    sync.Mutex
	name  string
	err   error
	delay time.Duration
	calls int
}

func (s *stubGeocoder) ReverseGeocode(ctx context.Context, _, _ float64) (string, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return s.name, s.err
}

func (s *stubGeocoder) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type mapCache struct {
	mu     sync.Mutex
	values map[string]string
	err    error
}

func (c *mapCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return "", false, c.err
	}
	v, ok := c.values[key]
	return v, ok, nil
}

func (c *mapCache) Set(_ context.Context, key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.values[key] = value
	return nil
}

func TestCachedGeocoder(t *testing.T) {
	ctx := context.Background()
	stub := &stubGeocoder{name: "Paris"}
	cache := &mapCache{values: map[string]string{}}
	g := NewCached(stub, cache, zap.NewNop())

	name, err := g.ReverseGeocode(ctx, 2.3522, 48.8566)
	require.NoError(t, err)
	assert.Equal(t, "Paris", name)

	name, err = g.ReverseGeocode(ctx, 2.352201, 48.856601)
	require.NoError(t, err)
	assert.Equal(t, "Paris", name)
	assert.Equal(t, 1, stub.callCount())
	assert.Equal(t, "Paris", cache.values[cacheKey(2.3522, 48.8566)])
}

func TestCachedGeocoderSkipsEmptyAndBrokenCache(t *testing.T) {
	ctx := context.Background()

	empty := &stubGeocoder{}
	cache := &mapCache{values: map[string]string{}}
	_, err := NewCached(empty, cache, zap.NewNop()).ReverseGeocode(ctx, 1, 1)
	require.NoError(t, err)
	assert.Empty(t, cache.values)

	stub := &stubGeocoder{name: "Oslo"}
	broken := &mapCache{values: map[string]string{}, err: errors.New("redis down")}
	name, err := NewCached(stub, broken, zap.NewNop()).ReverseGeocode(ctx, 10.75, 59.91)
	require.NoError(t, err)
	assert.Equal(t, "Oslo", name)
}
