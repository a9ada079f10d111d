// Package store defines the spatial record store that persists letters and
// answers proximity queries.
//
// Every backend must:
//   - keep a spatial index over the letter location (R-tree, 2dsphere or GIST),
//   - measure distance with the haversine model in package geo,
//   - apply the visibility filter before the limit,
//   - treat MaxDistanceMeters as an inclusive bound,
//   - order results nearest first, newest first among equal distances,
//   - persist every write before returning.
package store

import (
	"context"
	"fmt"

	"github.com/1F47E/geo-letters/pkg/models"
)

// NearQuery is a proximity query against the store.
type NearQuery struct {
	Center            models.GeoPoint
	MaxDistanceMeters float64
	Visibility        models.Visibility
	Limit             int
}

// Validate rejects queries no backend can answer.
func (q NearQuery) Validate() error {
	if err := q.Center.Validate(); err != nil {
		return err
	}
	if q.MaxDistanceMeters < 0 {
		return models.NewInvalidArgument("radius", "must not be negative")
	}
	if q.Limit <= 0 {
		return models.NewInvalidArgument("limit", "must be positive")
	}
	if !q.Visibility.Valid() {
		return models.NewInvalidArgument("visibility", fmt.Sprintf("unknown visibility %q", q.Visibility))
	}
	return nil
}

// Store persists letters. Implementations must be safe for concurrent use.
type Store interface {
	// Insert assigns an ID to letter, persists it and returns the ID.
	Insert(ctx context.Context, letter *models.Letter) (string, error)
	// Get returns the letter with the given ID or an error wrapping models.ErrNotFound.
	Get(ctx context.Context, id string) (*models.Letter, error)
	// Delete removes the letter and returns what was removed.
	Delete(ctx context.Context, id string) (*models.Letter, error)
	// QueryNear runs a proximity query.
	QueryNear(ctx context.Context, q NearQuery) ([]models.NearbyLetter, error)
	// Close releases the backend.
	Close(ctx context.Context) error
}

// NotFound wraps models.ErrNotFound with the missing ID.
func NotFound(id string) error {
	return fmt.Errorf("letter %q: %w", id, models.ErrNotFound)
}

// ValidateForInsert checks the fields every backend relies on before writing.
func ValidateForInsert(letter *models.Letter) error {
	if letter == nil {
		return models.NewValidationError("letter", "is required")
	}
	if err := letter.Location.Validate(); err != nil {
		return err
	}
	if !letter.Visibility.Valid() {
		return models.NewValidationError("visibility", fmt.Sprintf("unknown visibility %q", letter.Visibility))
	}
	return nil
}
