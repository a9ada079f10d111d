package query

import (
	"context"
	"fmt"
	"sort"

	"github.com/1F47E/geo-letters/pkg/models"
	"github.com/1F47E/geo-letters/pkg/store"
	"go.uber.org/zap"
)

// Result is the outcome of a nearby query.
type Result struct {
	Letters      []models.NearbyLetter
	RadiusMeters int
	Limit        int
}

// Message describes the result for clients.
func (r Result) Message() string {
	return fmt.Sprintf("Found %d letters within %d meters", len(r.Letters), r.RadiusMeters)
}

// Engine answers proximity queries for public letters.
type Engine struct {
	store store.Store
	log   *zap.Logger
}

// NewEngine creates an Engine over s.
func NewEngine(s store.Store, logger *zap.Logger) *Engine {
	return &Engine{
		store: s,
		log:   logger.With(zap.String("component", "query-engine")),
	}
}

// Nearby returns public letters within p.RadiusMeters of p.Center, nearest
// first and newest first among equal distances. An empty result is not an error.
func (e *Engine) Nearby(ctx context.Context, p Params) (Result, error) {
	if p.RadiusMeters <= 0 {
		p.RadiusMeters = DefaultRadiusMeters
	}
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	p.Limit = min(p.Limit, MaxLimit)

	letters, err := e.store.QueryNear(ctx, store.NearQuery{
		Center:            p.Center,
		MaxDistanceMeters: float64(p.RadiusMeters),
		Visibility:        models.VisibilityPublic,
		Limit:             p.Limit,
	})
	if err != nil {
		return Result{}, fmt.Errorf("query near: %w", err)
	}

	letters = Rank(letters, float64(p.RadiusMeters), p.Limit)

	e.log.Debug("nearby query",
		zap.Float64("lat", p.Center.Lat()),
		zap.Float64("lng", p.Center.Lng()),
		zap.Int("radius", p.RadiusMeters),
		zap.Int("limit", p.Limit),
		zap.Int("found", len(letters)))

	return Result{Letters: letters, RadiusMeters: p.RadiusMeters, Limit: p.Limit}, nil
}

// Rank drops letters that lie beyond radius, orders the rest by
// distance ascending then CreatedAt descending, and truncates to limit.
func Rank(letters []models.NearbyLetter, radius float64, limit int) []models.NearbyLetter {
	out := make([]models.NearbyLetter, 0, len(letters))
	for _, l := range letters {
		if l.Letter == nil || l.DistanceMeters > radius {
			continue
		}
		out = append(out, l)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DistanceMeters != out[j].DistanceMeters {
			return out[i].DistanceMeters < out[j].DistanceMeters
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
