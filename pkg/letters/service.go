// Package letters creates, reads and deletes letters. It validates input
// before anything is persisted and enriches new letters with a place name.
package letters

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/1F47E/geo-letters/pkg/media"
	"github.com/1F47E/geo-letters/pkg/models"
	"github.com/1F47E/geo-letters/pkg/store"
	"go.uber.org/zap"
)

// PlaceNamer resolves a place name. It must not fail; "" means unknown.
type PlaceNamer interface {
	PlaceName(ctx context.Context, lng, lat float64) string
}

// CreateRequest is a create call as received from a client.
type CreateRequest struct {
	Content    string
	Latitude   string
	Longitude  string
	Visibility string
	Media      []media.Upload
	OwnerID    *string
}

// Service coordinates letter storage, media and place names.
type Service struct {
	store  store.Store
	media  media.Storage
	namer  PlaceNamer
	limits media.Limits
	log    *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithMedia sets the storage used for attachments.
func WithMedia(m media.Storage, limits media.Limits) Option {
	return func(s *Service) {
		s.media = m
		s.limits = limits
	}
}

// WithPlaceNamer sets the place name resolver.
func WithPlaceNamer(n PlaceNamer) Option {
	return func(s *Service) { s.namer = n }
}

// NewService creates a Service over st.
func NewService(st store.Store, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		store:  st,
		limits: media.DefaultLimits(),
		log:    logger.With(zap.String("component", "letters")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates req, stores its media, resolves a place name and inserts
// the letter. Nothing is written when validation fails.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.Letter, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, models.NewValidationError("content", "is required")
	}
	lat, err := parseCoordinate("latitude", req.Latitude)
	if err != nil {
		return nil, err
	}
	lng, err := parseCoordinate("longitude", req.Longitude)
	if err != nil {
		return nil, err
	}
	location, err := models.NewGeoPoint(lng, lat)
	if err != nil {
		return nil, err
	}
	if len(req.Media) > 0 && s.media == nil {
		return nil, models.NewValidationError("media", "uploads are not enabled")
	}
	if err := s.limits.Check(req.Media); err != nil {
		return nil, err
	}

	attachments, err := s.saveMedia(ctx, req.Media)
	if err != nil {
		return nil, err
	}

	var placeName string
	if s.namer != nil {
		placeName = s.namer.PlaceName(ctx, lng, lat)
	}

	letter, err := models.NewLetter(models.LetterParams{
		Content:    content,
		Location:   location,
		Visibility: models.NormalizeVisibility(req.Visibility),
		Media:      attachments,
		PlaceName:  placeName,
		OwnerID:    req.OwnerID,
	})
	if err != nil {
		s.removeMedia(attachments)
		return nil, err
	}

	if _, err := s.store.Insert(ctx, letter); err != nil {
		s.removeMedia(attachments)
		return nil, fmt.Errorf("insert letter: %w", err)
	}

	s.log.Info("letter created",
		zap.String("id", letter.ID),
		zap.String("visibility", string(letter.Visibility)),
		zap.Int("media", len(letter.Media)))

	return letter, nil
}

// GetByID returns a letter or an error wrapping models.ErrNotFound.
func (s *Service) GetByID(ctx context.Context, id string) (*models.Letter, error) {
	return s.store.Get(ctx, id)
}

// Delete removes a letter and returns it. Attached media is left in place.
func (s *Service) Delete(ctx context.Context, id string) (*models.Letter, error) {
	letter, err := s.store.Delete(ctx, id)
	if err != nil {
		return nil, err
	}
	s.log.Info("letter deleted", zap.String("id", id))
	return letter, nil
}

func (s *Service) saveMedia(ctx context.Context, uploads []media.Upload) ([]models.MediaAttachment, error) {
	attachments := make([]models.MediaAttachment, 0, len(uploads))
	for _, u := range uploads {
		att, err := s.media.Save(ctx, u)
		if err != nil {
			s.removeMedia(attachments)
			return nil, fmt.Errorf("save media %q: %w", u.OriginalName, err)
		}
		attachments = append(attachments, att)
	}
	return attachments, nil
}

// removeMedia is best-effort; the request has already failed.
func (s *Service) removeMedia(attachments []models.MediaAttachment) {
	for _, att := range attachments {
		if err := s.media.Remove(context.Background(), att.StorageKey); err != nil {
			s.log.Warn("media cleanup failed", zap.String("key", att.StorageKey), zap.Error(err))
		}
	}
}

func parseCoordinate(field, raw string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, models.NewValidationError(field, "must be a finite number")
	}
	return v, nil
}
