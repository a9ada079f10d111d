// Package media stores files attached to letters. The storage backend is an
// explicit dependency: the local disk for single-node setups, or S3.
package media

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/1F47E/geo-letters/pkg/models"
	"github.com/google/uuid"
)

const (
	DefaultMaxFileSize int64 = 52428800
	DefaultMaxFiles          = 5

	// PublicPath is the URL prefix media is served under.
	PublicPath = "/uploads"
)

// Upload is a file received with a create request.
type Upload struct {
	OriginalName string
	ContentType  string
	Size         int64
	Open         func() (io.ReadCloser, error)
}

// Storage saves and removes media files.
type Storage interface {
	// Save stores the upload and describes where it can be fetched.
	Save(ctx context.Context, u Upload) (models.MediaAttachment, error)
	// Remove deletes a stored file by its storage key.
	Remove(ctx context.Context, key string) error
}

// Limits bounds what a single letter may carry.
type Limits struct {
	MaxFiles    int
	MaxFileSize int64
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{MaxFiles: DefaultMaxFiles, MaxFileSize: DefaultMaxFileSize}
}

// Check returns a ValidationError when uploads exceed the limits.
func (l Limits) Check(uploads []Upload) error {
	if l.MaxFiles > 0 && len(uploads) > l.MaxFiles {
		return models.NewValidationError("media", fmt.Sprintf("at most %d files are allowed", l.MaxFiles))
	}
	for _, u := range uploads {
		if l.MaxFileSize > 0 && u.Size > l.MaxFileSize {
			return models.NewValidationError("media", fmt.Sprintf("%s exceeds %d bytes", u.OriginalName, l.MaxFileSize))
		}
		if u.Open == nil {
			return models.NewValidationError("media", fmt.Sprintf("%s has no content", u.OriginalName))
		}
	}
	return nil
}

var whitespace = regexp.MustCompile(`\s+`)

// BuildKey names a stored file <unix-millis>-<base><ext>, with runs of
// whitespace in the base replaced by a dash.
func BuildKey(now time.Time, originalName string) string {
	name := filepath.Base(strings.ReplaceAll(originalName, "\\", "/"))
	if name == "." || name == "/" {
		name = ""
	}
	ext := filepath.Ext(name)
	base := whitespace.ReplaceAllString(strings.TrimSuffix(name, ext), "-")
	return fmt.Sprintf("%d-%s%s", now.UnixMilli(), base, ext)
}

// uniqueKey appends a short random suffix before the extension of key.
func uniqueKey(key string) string {
	ext := filepath.Ext(key)
	return strings.TrimSuffix(key, ext) + "-" + uuid.NewString()[:8] + ext
}

// PublicURL is the address a stored key is served at. Without a base URL it
// is a path relative to the server root.
func PublicURL(baseURL, key string) string {
	return strings.TrimRight(baseURL, "/") + PublicPath + "/" + key
}

func contentType(u Upload) string {
	if u.ContentType != "" {
		return u.ContentType
	}
	if t := mime.TypeByExtension(filepath.Ext(u.OriginalName)); t != "" {
		return t
	}
	return "application/octet-stream"
}
