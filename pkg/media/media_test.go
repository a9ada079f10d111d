package media

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/1F47E/geo-letters/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func upload(name, body string) Upload {
	return Upload{
		OriginalName: name,
		Size:         int64(len(body)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(body)), nil
		},
	}
}

func TestBuildKey(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "photo.jpg", want: "1700000000123-photo.jpg"},
		{name: "whitespace", in: "my  summer\tpic.png", want: "1700000000123-my-summer-pic.png"},
		{name: "no extension", in: "README", want: "1700000000123-README"},
		{name: "path stripped", in: "../../etc/passwd", want: "1700000000123-passwd"},
		{name: "windows path", in: `C:\Users\me\a b.txt`, want: "1700000000123-a-b.txt"},
		{name: "double extension", in: "archive.tar.gz", want: "1700000000123-archive.tar.gz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildKey(now, tt.in))
		})
	}
}

func TestPublicURL(t *testing.T) {
	assert.Equal(t, "/uploads/a.png", PublicURL("", "a.png"))
	assert.Equal(t, "https://cdn.example.com/uploads/a.png", PublicURL("https://cdn.example.com/", "a.png"))
}

func TestLimitsCheck(t *testing.T) {
	limits := Limits{MaxFiles: 2, MaxFileSize: 4}

	assert.NoError(t, limits.Check(nil))
	assert.NoError(t, limits.Check([]Upload{upload("a", "1234")}))

	err := limits.Check([]Upload{upload("a", "1"), upload("b", "1"), upload("c", "1")})
	assert.ErrorIs(t, err, models.ErrValidation)

	err = limits.Check([]Upload{upload("big", "12345")})
	assert.ErrorIs(t, err, models.ErrValidation)

	err = limits.Check([]Upload{{OriginalName: "empty"}})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestDiskSaveAndRemove(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "uploads")
	d, err := NewDisk(dir, "http://localhost:5000", zap.NewNop())
	require.NoError(t, err)
	d.now = func() time.Time { return time.UnixMilli(42) }

	att, err := d.Save(context.Background(), upload("my note.txt", "hello"))
	require.NoError(t, err)

	assert.Equal(t, "42-my-note.txt", att.StorageKey)
	assert.Equal(t, "my note.txt", att.DisplayName)
	assert.Equal(t, int64(5), att.SizeBytes)
	assert.True(t, strings.HasPrefix(att.ContentType, "text/plain"))
	assert.Equal(t, "http://localhost:5000/uploads/42-my-note.txt", att.AccessURL)

	data, err := os.ReadFile(filepath.Join(dir, att.StorageKey))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	// same millisecond and name must not overwrite
	second, err := d.Save(context.Background(), upload("my note.txt", "again"))
	require.NoError(t, err)
	assert.NotEqual(t, att.StorageKey, second.StorageKey)

	require.NoError(t, d.Remove(context.Background(), att.StorageKey))
	_, err = os.Stat(filepath.Join(dir, att.StorageKey))
	assert.True(t, errors.Is(err, os.ErrNotExist))

	assert.NoError(t, d.Remove(context.Background(), att.StorageKey))
	assert.Error(t, d.Remove(context.Background(), "../escape"))
}

func TestDiskSaveOpenError(t *testing.T) {
	d, err := NewDisk(t.TempDir(), "", zap.NewNop())
	require.NoError(t, err)

	_, err = d.Save(context.Background(), Upload{
		OriginalName: "x.bin",
		Open:         func() (io.ReadCloser, error) { return nil, errors.New("gone") },
	})
	assert.Error(t, err)

	entries, err := os.ReadDir(d.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestS3AccessURL(t *testing.T) {
	s := &S3{cfg: S3Config{Bucket: "letters", Region: "eu-west-1", Prefix: "uploads/", PublicRead: true}}
	assert.Equal(t, "https://letters.s3.eu-west-1.amazonaws.com/uploads/1-a%20b.png", s.accessURL("1-a b.png"))

	s.cfg.Endpoint = "http://minio:9000"
	assert.Equal(t, "http://minio:9000/letters/uploads/1-a.png", s.accessURL("1-a.png"))

	s.cfg.PublicRead = false
	s.cfg.BaseURL = "https://api.example.com"
	assert.Equal(t, "https://api.example.com/uploads/1-a.png", s.accessURL("1-a.png"))
}

func TestS3KeysNeverCollide(t *testing.T) {
	at := time.UnixMilli(1700000000000)
	s := &S3{now: func() time.Time { return at }}

	first := s.newKey("image.jpg")
	second := s.newKey("image.jpg")

	assert.NotEqual(t, first, second)
	for _, key := range []string{first, second} {
		assert.True(t, strings.HasPrefix(key, "1700000000000-image-"), key)
		assert.Equal(t, ".jpg", filepath.Ext(key))
	}
}
