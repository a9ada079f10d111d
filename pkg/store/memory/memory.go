// Package memory is a Store backed by the partitioned R-tree in package rtree.
//
// With a snapshot path configured, every insert and delete rewrites the gob
// snapshot before returning, so an acknowledged write survives a restart.
package memory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/1F47E/geo-letters/pkg/models"
	"github.com/1F47E/geo-letters/pkg/rtree"
	"github.com/1F47E/geo-letters/pkg/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store keeps letters in an R-tree.
type Store struct {
	index        *rtree.GeoIndex
	snapshotPath string
	log          *zap.Logger

	// writeMu serializes mutations with their snapshot write
	writeMu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithSnapshot persists the index to path after every write.
func WithSnapshot(path string) Option {
	return func(s *Store) { s.snapshotPath = path }
}

// WithPartitions sets the number of R-tree longitude bands.
func WithPartitions(n int) Option {
	return func(s *Store) { s.index = rtree.NewGeoIndexWithPartitions(n) }
}

// New creates a Store and loads the snapshot if one exists.
func New(logger *zap.Logger, opts ...Option) (*Store, error) {
	s := &Store{
		index: rtree.NewGeoIndex(),
		log:   logger.With(zap.String("component", "memory-store")),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.snapshotPath != "" {
		if _, err := os.Stat(s.snapshotPath); err == nil {
			if err := s.index.LoadFromFile(s.snapshotPath); err != nil {
				return nil, fmt.Errorf("load snapshot: %w", err)
			}
			s.log.Info("snapshot loaded",
				zap.String("path", s.snapshotPath),
				zap.Int64("letters", s.index.Count()))
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("stat snapshot: %w", err)
		}
	}

	return s, nil
}

var _ store.Store = (*Store)(nil)

// Insert implements store.Store.
func (s *Store) Insert(ctx context.Context, letter *models.Letter) (string, error) {
	if err := store.ValidateForInsert(letter); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	stored := letter.Clone()
	stored.ID = uuid.NewString()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.index.Insert(stored); err != nil {
		return "", fmt.Errorf("index letter: %w", err)
	}
	if err := s.persist(); err != nil {
		s.index.Remove(stored.ID)
		return "", err
	}

	letter.ID = stored.ID
	return stored.ID, nil
}

// Get implements store.Store.
func (s *Store) Get(_ context.Context, id string) (*models.Letter, error) {
	letter, ok := s.index.Get(id)
	if !ok {
		return nil, store.NotFound(id)
	}
	return letter.Clone(), nil
}

// Delete implements store.Store.
func (s *Store) Delete(ctx context.Context, id string) (*models.Letter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	removed, ok := s.index.Remove(id)
	if !ok {
		return nil, store.NotFound(id)
	}
	if err := s.persist(); err != nil {
		_ = s.index.Insert(removed)
		return nil, err
	}
	return removed.Clone(), nil
}

// QueryNear implements store.Store.
func (s *Store) QueryNear(ctx context.Context, q store.NearQuery) ([]models.NearbyLetter, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	visibility := q.Visibility
	hits, err := s.index.QueryRadius(q.Center.Location(), q.MaxDistanceMeters, func(l *models.Letter) bool {
		return l.Visibility == visibility
	})
	if err != nil {
		return nil, fmt.Errorf("query radius: %w", err)
	}

	if len(hits) > q.Limit {
		hits = hits[:q.Limit]
	}

	out := make([]models.NearbyLetter, len(hits))
	for i, h := range hits {
		out[i] = models.NearbyLetter{Letter: h.Letter.Clone(), DistanceMeters: h.DistanceMeters}
	}
	return out, nil
}

// NearestNeighbors returns the n letters closest to center regardless of radius.
func (s *Store) NearestNeighbors(center models.GeoPoint, n int) []models.NearbyLetter {
	hits := s.index.NearestNeighbors(center.Location(), n)
	out := make([]models.NearbyLetter, len(hits))
	for i, h := range hits {
		out[i] = models.NearbyLetter{Letter: h.Letter.Clone(), DistanceMeters: h.DistanceMeters}
	}
	return out
}

// IndexLetters bulk-loads letters that already carry IDs.
func (s *Store) IndexLetters(letters []*models.Letter) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.index.IndexLetters(letters); err != nil {
		return err
	}
	return s.persist()
}

// Count returns the number of stored letters.
func (s *Store) Count() int64 {
	return s.index.Count()
}

// Close implements store.Store. Every write is already on disk.
func (s *Store) Close(context.Context) error {
	return nil
}

func (s *Store) persist() error {
	if s.snapshotPath == "" {
		return nil
	}
	if err := s.index.SaveToFile(s.snapshotPath); err != nil {
		s.log.Error("snapshot write failed", zap.String("path", s.snapshotPath), zap.Error(err))
		return fmt.Errorf("persist snapshot: %w", err)
	}
	return nil
}
