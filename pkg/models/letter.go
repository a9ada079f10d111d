package models

import (
	"strings"
	"time"
)

// Visibility is the access scope of a letter.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityCircle  Visibility = "circle"
	VisibilityPrivate Visibility = "private"
)

// visibilityOrder is the prefix-match priority used by NormalizeVisibility.
var visibilityOrder = []Visibility{VisibilityPublic, VisibilityCircle, VisibilityPrivate}

// NormalizeVisibility maps free-form input onto a Visibility. Input is trimmed
// and lower-cased, then matched by prefix ("circles" is circle). Anything that
// does not match, including empty input, becomes public.
func NormalizeVisibility(raw string) Visibility {
	v := strings.ToLower(strings.TrimSpace(raw))
	for _, candidate := range visibilityOrder {
		if strings.HasPrefix(v, string(candidate)) {
			return candidate
		}
	}
	return VisibilityPublic
}

// Valid reports whether v is one of the enumerated values.
func (v Visibility) Valid() bool {
	switch v {
	case VisibilityPublic, VisibilityCircle, VisibilityPrivate:
		return true
	}
	return false
}

// MediaAttachment is a file stored alongside a letter. It has no lifecycle of its own.
type MediaAttachment struct {
	StorageKey  string `json:"filename" bson:"filename"`
	DisplayName string `json:"originalname" bson:"originalname"`
	ContentType string `json:"mimetype" bson:"mimetype"`
	SizeBytes   int64  `json:"size" bson:"size"`
	AccessURL   string `json:"url" bson:"url"`
}

// Letter is a short text pinned to a point on the map.
type Letter struct {
	ID         string            `json:"id"`
	Content    string            `json:"content"`
	Media      []MediaAttachment `json:"media"`
	Location   GeoPoint          `json:"location"`
	PlaceName  string            `json:"placeName"`
	Visibility Visibility        `json:"visibility"`
	CreatedAt  time.Time         `json:"createdAt"`
	OwnerID    *string           `json:"userId"`
}

// NearbyLetter is a letter annotated with its distance from a query center.
type NearbyLetter struct {
	*Letter
	DistanceMeters float64 `json:"distanceMeters"`
}

// LetterParams carries the already-parsed fields of a new letter.
type LetterParams struct {
	Content    string
	Location   GeoPoint
	Visibility Visibility
	Media      []MediaAttachment
	PlaceName  string
	OwnerID    *string
	CreatedAt  time.Time
}

// NewLetter builds a letter that satisfies every field invariant. The ID is
// left empty for the store to assign.
func NewLetter(p LetterParams) (*Letter, error) {
	content := strings.TrimSpace(p.Content)
	if content == "" {
		return nil, NewValidationError("content", "is required")
	}
	if err := p.Location.Validate(); err != nil {
		return nil, err
	}
	visibility := p.Visibility
	if !visibility.Valid() {
		visibility = NormalizeVisibility(string(visibility))
	}
	media := p.Media
	if media == nil {
		media = []MediaAttachment{}
	}
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	// stores keep milliseconds at best
	createdAt = createdAt.Truncate(time.Millisecond)
	return &Letter{
		Content:    content,
		Media:      media,
		Location:   p.Location,
		PlaceName:  p.PlaceName,
		Visibility: visibility,
		CreatedAt:  createdAt.UTC(),
		OwnerID:    p.OwnerID,
	}, nil
}

// Clone returns a deep copy so stores can hand out letters without sharing state.
func (l *Letter) Clone() *Letter {
	if l == nil {
		return nil
	}
	c := *l
	c.Media = append([]MediaAttachment{}, l.Media...)
	if l.OwnerID != nil {
		owner := *l.OwnerID
		c.OwnerID = &owner
	}
	return &c
}
