package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/1F47E/geo-letters/pkg/models"
	"go.uber.org/zap"
)

// Disk stores media in a local directory.
type Disk struct {
	dir     string
	baseURL string
	now     func() time.Time
	log     *zap.Logger
}

// NewDisk creates dir if needed. baseURL prefixes access URLs and may be empty.
func NewDisk(dir, baseURL string, logger *zap.Logger) (*Disk, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Disk{
		dir:     dir,
		baseURL: baseURL,
		now:     time.Now,
		log:     logger.With(zap.String("component", "media-disk")),
	}, nil
}

// Dir is the directory files are written to.
func (d *Disk) Dir() string {
	return d.dir
}

// Save implements Storage.
func (d *Disk) Save(ctx context.Context, u Upload) (models.MediaAttachment, error) {
	if err := ctx.Err(); err != nil {
		return models.MediaAttachment{}, err
	}

	src, err := u.Open()
	if err != nil {
		return models.MediaAttachment{}, fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	key := BuildKey(d.now(), u.OriginalName)
	f, err := os.OpenFile(filepath.Join(d.dir, key), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if errors.Is(err, os.ErrExist) {
		key = uniqueKey(key)
		f, err = os.OpenFile(filepath.Join(d.dir, key), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	}
	if err != nil {
		return models.MediaAttachment{}, fmt.Errorf("create media file: %w", err)
	}

	written, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(filepath.Join(d.dir, key))
		return models.MediaAttachment{}, fmt.Errorf("write media file: %w", err)
	}

	d.log.Debug("media saved", zap.String("key", key), zap.Int64("size", written))

	return models.MediaAttachment{
		StorageKey:  key,
		DisplayName: u.OriginalName,
		ContentType: contentType(u),
		SizeBytes:   written,
		AccessURL:   PublicURL(d.baseURL, key),
	}, nil
}

// Remove implements Storage. Removing a missing file is not an error.
func (d *Disk) Remove(_ context.Context, key string) error {
	if key == "" || key != filepath.Base(key) {
		return fmt.Errorf("invalid media key %q", key)
	}
	if err := os.Remove(filepath.Join(d.dir, key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove media file: %w", err)
	}
	return nil
}
