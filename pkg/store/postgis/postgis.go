// Package postgis is a Store backed by PostgreSQL with PostGIS. Locations live
// in a geography(POINT, 4326) column under a GIST index. Radius queries use
// ST_DWithin for the index scan and then rank candidates with the same
// haversine model as package geo, so boundaries match the other backends.
package postgis

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/1F47E/geo-letters/pkg/geo"
	"github.com/1F47E/geo-letters/pkg/models"
	"github.com/1F47E/geo-letters/pkg/store"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

var schema = []string{
	`CREATE EXTENSION IF NOT EXISTS postgis;`,

	`CREATE TABLE IF NOT EXISTS letters (
		id UUID PRIMARY KEY,
		user_id TEXT NULL,
		content TEXT NOT NULL,
		media JSONB NOT NULL DEFAULT '[]'::jsonb,
		location GEOGRAPHY(POINT, 4326) NOT NULL,
		place_name TEXT NOT NULL DEFAULT '',
		visibility TEXT NOT NULL CHECK (visibility IN ('public', 'circle', 'private')),
		created_at TIMESTAMPTZ NOT NULL
	);`,

	`CREATE INDEX IF NOT EXISTS idx_letters_location ON letters USING GIST(location);`,

	`CREATE INDEX IF NOT EXISTS idx_letters_visibility_created ON letters (visibility, created_at DESC);`,
}

const letterColumns = `id, user_id, content, media,
	ST_X(location::geometry) AS lng, ST_Y(location::geometry) AS lat,
	place_name, visibility, created_at`

// nearQuery ranks by haversine over $4 meters. ST_DWithin works on the
// PostGIS sphere, which is slightly smaller, so its radius ($5) is padded to
// keep the prefilter a superset.
const nearQuery = `
SELECT ` + letterColumns + `, distance_meters FROM (
	SELECT *,
		2 * $4::float8 * asin(least(1, sqrt(
			power(sin(radians(ST_Y(location::geometry) - $2::float8) / 2), 2) +
			cos(radians($2::float8)) * cos(radians(ST_Y(location::geometry))) *
			power(sin(radians(ST_X(location::geometry) - $1::float8) / 2), 2)
		))) AS distance_meters
	FROM letters
	WHERE visibility = $3
	  AND ST_DWithin(location, ST_SetSRID(ST_MakePoint($1::float8, $2::float8), 4326)::geography, $5::float8, false)
) nearby
WHERE distance_meters <= $6::float8
ORDER BY distance_meters ASC, created_at DESC
LIMIT $7`

// Store keeps letters in PostgreSQL.
type Store struct {
	db  *sql.DB
	log *zap.Logger
}

// Open connects to PostgreSQL and migrates the schema.
func Open(ctx context.Context, dsn string, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{db: db, log: logger.With(zap.String("component", "postgis-store"))}
	if err := s.InitSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// InitSchema creates the letters table and its spatial index if missing.
func (s *Store) InitSchema(ctx context.Context) error {
	start := time.Now()
	for _, query := range schema {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query '%s': %w", query, err)
		}
	}
	s.log.Debug("schema ready", zap.Duration("elapsed", time.Since(start)))
	return nil
}

var _ store.Store = (*Store)(nil)

// Insert implements store.Store.
func (s *Store) Insert(ctx context.Context, letter *models.Letter) (string, error) {
	if err := store.ValidateForInsert(letter); err != nil {
		return "", err
	}

	media := letter.Media
	if media == nil {
		media = []models.MediaAttachment{}
	}
	mediaJSON, err := json.Marshal(media)
	if err != nil {
		return "", fmt.Errorf("encode media: %w", err)
	}

	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO letters (id, user_id, content, media, location, place_name, visibility, created_at)
		VALUES ($1, $2, $3, $4, ST_SetSRID(ST_MakePoint($5, $6), 4326)::geography, $7, $8, $9)`,
		id, letter.OwnerID, letter.Content, mediaJSON,
		letter.Location.Lng(), letter.Location.Lat(),
		letter.PlaceName, string(letter.Visibility), letter.CreatedAt.UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert letter: %w", err)
	}

	letter.ID = id
	return id, nil
}

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, id string) (*models.Letter, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, store.NotFound(id)
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+letterColumns+` FROM letters WHERE id = $1`, id)
	letter, err := scanLetter(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.NotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get letter: %w", err)
	}
	return letter, nil
}

// Delete implements store.Store.
func (s *Store) Delete(ctx context.Context, id string) (*models.Letter, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, store.NotFound(id)
	}

	row := s.db.QueryRowContext(ctx, `DELETE FROM letters WHERE id = $1 RETURNING `+letterColumns, id)
	letter, err := scanLetter(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.NotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to delete letter: %w", err)
	}
	return letter, nil
}

// QueryNear implements store.Store.
func (s *Store) QueryNear(ctx context.Context, q store.NearQuery) ([]models.NearbyLetter, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, nearQuery, nearArgs(q)...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	results := []models.NearbyLetter{}
	for rows.Next() {
		var distance float64
		letter, err := scanLetter(rows, &distance)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		results = append(results, models.NearbyLetter{Letter: letter, DistanceMeters: distance})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return results, nil
}

func nearArgs(q store.NearQuery) []any {
	return []any{
		q.Center.Lng(),
		q.Center.Lat(),
		string(q.Visibility),
		geo.EarthRadiusMeters,
		q.MaxDistanceMeters*1.01 + 1,
		q.MaxDistanceMeters,
		q.Limit,
	}
}

// Count returns the number of stored letters
func (s *Store) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM letters").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count letters: %w", err)
	}
	return count, nil
}

// Close implements store.Store.
func (s *Store) Close(context.Context) error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLetter(row rowScanner, extra ...any) (*models.Letter, error) {
	var (
		l          models.Letter
		ownerID    sql.NullString
		mediaJSON  []byte
		lng, lat   float64
		visibility string
	)

	dest := []any{&l.ID, &ownerID, &l.Content, &mediaJSON, &lng, &lat, &l.PlaceName, &visibility, &l.CreatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	l.Media = []models.MediaAttachment{}
	if len(mediaJSON) > 0 {
		if err := json.Unmarshal(mediaJSON, &l.Media); err != nil {
			return nil, fmt.Errorf("decode media: %w", err)
		}
	}
	if ownerID.Valid {
		owner := ownerID.String
		l.OwnerID = &owner
	}
	l.Location = models.GeoPoint{Type: models.GeoPointType, Coordinates: [2]float64{lng, lat}}
	l.Visibility = models.Visibility(visibility)
	l.CreatedAt = l.CreatedAt.UTC()
	return &l, nil
}
