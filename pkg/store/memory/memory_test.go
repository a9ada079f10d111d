package memory

import (
	"context"
	"fmt"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/1F47E/geo-letters/pkg/geo"
	"github.com/1F47E/geo-letters/pkg/models"
	"github.com/1F47E/geo-letters/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := New(zap.NewNop(), opts...)
	require.NoError(t, err)
	return s
}

func point(t *testing.T, lng, lat float64) models.GeoPoint {
	t.Helper()
	p, err := models.NewGeoPoint(lng, lat)
	require.NoError(t, err)
	return p
}

func letterAt(t *testing.T, lng, lat float64, vis models.Visibility, createdAt time.Time) *models.Letter {
	t.Helper()
	return &models.Letter{
		Content:    "hello",
		Media:      []models.MediaAttachment{},
		Location:   point(t, lng, lat),
		Visibility: vis,
		CreatedAt:  createdAt,
	}
}

func TestInsertGetDelete(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	letter := letterAt(t, 77.5946, 12.9716, models.VisibilityPublic, time.Now().UTC())
	id, err := s.Insert(ctx, letter)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, id, letter.ID)

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, letter.Content, got.Content)
	assert.Equal(t, letter.Location, got.Location)

	// Callers cannot mutate stored state through returned letters
	got.Content = "changed"
	again, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "hello", again.Content)

	removed, err := s.Delete(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, removed.ID)

	_, err = s.Get(ctx, id)
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = s.Delete(ctx, id)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestInsertRejectsMalformedLocation(t *testing.T) {
	s := newStore(t)

	bad := &models.Letter{Content: "x", Location: models.GeoPoint{}, Visibility: models.VisibilityPublic}
	_, err := s.Insert(context.Background(), bad)
	assert.ErrorIs(t, err, models.ErrValidation)
	assert.Equal(t, int64(0), s.Count())
}

func TestQueryNearScenario(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	_, err := s.Insert(ctx, letterAt(t, 77.5946, 12.9716, models.VisibilityPublic, time.Now()))
	require.NoError(t, err)

	q := store.NearQuery{
		Center:            point(t, 77.6, 12.97),
		MaxDistanceMeters: 2000,
		Visibility:        models.VisibilityPublic,
		Limit:             50,
	}
	results, err := s.QueryNear(ctx, q)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Less(t, results[0].DistanceMeters, 2000.0)

	q.MaxDistanceMeters = 10
	results, err = s.QueryNear(ctx, q)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestQueryNearFilterBeforeLimit(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	now := time.Now()

	// The closest letters are private; the limit must apply to public ones only.
	for i := 0; i < 5; i++ {
		_, err := s.Insert(ctx, letterAt(t, 10+float64(i)*0.0001, 10, models.VisibilityPrivate, now))
		require.NoError(t, err)
	}
	for i := 0; i < 3; i++ {
		_, err := s.Insert(ctx, letterAt(t, 10.01+float64(i)*0.0001, 10, models.VisibilityPublic, now))
		require.NoError(t, err)
	}

	results, err := s.QueryNear(ctx, store.NearQuery{
		Center:            point(t, 10, 10),
		MaxDistanceMeters: 5000,
		Visibility:        models.VisibilityPublic,
		Limit:             2,
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, models.VisibilityPublic, r.Visibility)
	}
}

func TestQueryNearOrdering(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	r := rand.New(rand.NewSource(1))
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 300; i++ {
		// Repeat a handful of spots so distance ties happen
		lng := 2.35 + float64(r.Intn(20))*0.001
		lat := 48.85 + float64(r.Intn(20))*0.001
		_, err := s.Insert(ctx, letterAt(t, lng, lat, models.VisibilityPublic, base.Add(time.Duration(r.Intn(1000))*time.Second)))
		require.NoError(t, err)
	}

	center := point(t, 2.36, 48.86)
	results, err := s.QueryNear(ctx, store.NearQuery{
		Center:            center,
		MaxDistanceMeters: 1500,
		Visibility:        models.VisibilityPublic,
		Limit:             100,
	})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.LessOrEqual(t, len(results), 100)

	for i, res := range results {
		d := geo.DistanceBetween(center.Location(), res.Location.Location())
		assert.LessOrEqual(t, d, 1500.0)
		if i == 0 {
			continue
		}
		prev := results[i-1]
		assert.LessOrEqual(t, prev.DistanceMeters, res.DistanceMeters)
		if prev.DistanceMeters == res.DistanceMeters {
			assert.False(t, prev.CreatedAt.Before(res.CreatedAt), "ties must be newest first")
		}
	}
}

func TestQueryNearRejectsBadQuery(t *testing.T) {
	s := newStore(t)
	_, err := s.QueryNear(context.Background(), store.NearQuery{
		Center:            point(t, 0, 0),
		MaxDistanceMeters: 10,
		Visibility:        models.VisibilityPublic,
		Limit:             0,
	})
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}

func TestSnapshotSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "letters.gob")

	s1 := newStore(t, WithSnapshot(path))
	id, err := s1.Insert(ctx, letterAt(t, -0.1278, 51.5074, models.VisibilityCircle, time.Now().UTC()))
	require.NoError(t, err)
	keep, err := s1.Insert(ctx, letterAt(t, 2.3522, 48.8566, models.VisibilityPublic, time.Now().UTC()))
	require.NoError(t, err)
	_, err = s1.Delete(ctx, id)
	require.NoError(t, err)

	s2 := newStore(t, WithSnapshot(path))
	assert.Equal(t, int64(1), s2.Count())

	got, err := s2.Get(ctx, keep)
	require.NoError(t, err)
	assert.Equal(t, models.VisibilityPublic, got.Visibility)

	_, err = s2.Get(ctx, id)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestNearestNeighbors(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, WithPartitions(2))

	for i := 0; i < 10; i++ {
		_, err := s.Insert(ctx, letterAt(t, float64(i), 0, models.VisibilityPublic, time.Now()))
		require.NoError(t, err)
	}

	nearest := s.NearestNeighbors(point(t, 0.1, 0), 3)
	require.Len(t, nearest, 3)
	assert.Equal(t, 0.0, nearest[0].Location.Lng())
	assert.Equal(t, 1.0, nearest[1].Location.Lng())
}

func TestConcurrentWrites(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	letters := make([]*models.Letter, 50)
	for i := range letters {
		letters[i] = letterAt(t, float64(i%10), float64(i%5), models.VisibilityPublic, time.Now())
		letters[i].Content = fmt.Sprintf("letter %d", i)
	}

	done := make(chan error, len(letters))
	for _, l := range letters {
		go func(l *models.Letter) {
			_, err := s.Insert(ctx, l)
			done <- err
		}(l)
	}
	for i := 0; i < 50; i++ {
		assert.NoError(t, <-done)
	}
	assert.Equal(t, int64(50), s.Count())
}
