package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.App.Env)
	assert.Equal(t, 5000, cfg.App.Port)
	assert.Equal(t, StoreMemory, cfg.Store.Driver)
	assert.Equal(t, "data/letters.gob", cfg.Store.SnapshotPath)
	assert.Equal(t, MediaDisk, cfg.Media.Driver)
	assert.Equal(t, int64(52428800), cfg.Media.MaxFileSize)
	assert.Equal(t, 5, cfg.Media.MaxFiles)
	assert.Equal(t, 15*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 5*time.Second, cfg.GeocodeTimeout)
	assert.Equal(t, 10*time.Minute, cfg.PresignTTL)
	assert.False(t, cfg.IsProduction())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
app:
  env: production
  port: 8080
  rate_limit_per_min: 120
store:
  driver: mongo
mongodb:
  uri: mongodb://db:27017
  database: letters
media:
  public_base_url: https://letters.example.com
mapbox:
  timeout_seconds: 2
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 8080, cfg.App.Port)
	assert.Equal(t, 120, cfg.App.RateLimitPerMin)
	assert.Equal(t, StoreMongo, cfg.Store.Driver)
	assert.Equal(t, "mongodb://db:27017", cfg.Mongo.URI)
	assert.Equal(t, "letters", cfg.Mongo.Database)
	assert.Equal(t, "virtualletters", cfg.Mongo.Collection)
	assert.Equal(t, "https://letters.example.com", cfg.Media.PublicBaseURL)
	assert.Equal(t, 2*time.Second, cfg.GeocodeTimeout)
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("LETTERS_STORE_DRIVER", "postgis")
	t.Setenv("LETTERS_POSTGIS_DSN", "postgres://u:p@pg/letters")
	t.Setenv("MAPBOX_KEY", "legacy-key")
	t.Setenv("MAX_UPLOAD_FILE_SIZE", "1024")
	t.Setenv("PORT", "7000")
	t.Setenv("LETTERS_APP_PORT", "7001")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, StorePostGIS, cfg.Store.Driver)
	assert.Equal(t, "postgres://u:p@pg/letters", cfg.PostGIS.DSN)
	assert.Equal(t, "legacy-key", cfg.Mapbox.Key)
	assert.Equal(t, int64(1024), cfg.Media.MaxFileSize)
	assert.Equal(t, 7001, cfg.App.Port, "prefixed variable wins")
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "unknown store", env: map[string]string{"LETTERS_STORE_DRIVER": "sqlite"}},
		{name: "unknown media", env: map[string]string{"LETTERS_MEDIA_DRIVER": "ftp"}},
		{name: "s3 without bucket", env: map[string]string{"LETTERS_MEDIA_DRIVER": "s3"}},
		{name: "bad port", env: map[string]string{"PORT": "70000"}},
		{name: "zero upload size", env: map[string]string{"MAX_UPLOAD_FILE_SIZE": "0"}},
		{name: "too many files", env: map[string]string{"LETTERS_MEDIA_MAX_FILES": "6"}},
		{name: "no files", env: map[string]string{"LETTERS_MEDIA_MAX_FILES": "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadMemoryStoreNeedsSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store:
  driver: memory
  snapshot_path: ""
`), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.snapshot_path")

	t.Setenv("LETTERS_STORE_SNAPSHOT_PATH", "/var/lib/letters/letters.gob")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/letters/letters.gob", cfg.Store.SnapshotPath)
}
