package rtree

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/1F47E/geo-letters/pkg/models"
)

// IndexData represents the serializable form of the geo index
type IndexData struct {
	Letters []*models.Letter
	Count   int64
}

// SaveToFile writes a gob snapshot of every indexed letter. The snapshot is
// written to a temporary file and renamed into place, so a crash mid-write
// leaves the previous snapshot intact.
func (g *GeoIndex) SaveToFile(filename string) error {
	letters := g.All()

	data := IndexData{
		Letters: letters,
		Count:   int64(len(letters)),
	}

	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot dir: %w", err)
	}

	file, err := os.CreateTemp(dir, filepath.Base(filename)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	tmpName := file.Name()
	defer os.Remove(tmpName)

	encoder := gob.NewEncoder(file)
	if err := encoder.Encode(data); err != nil {
		file.Close()
		return fmt.Errorf("failed to encode data: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("failed to sync snapshot: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close snapshot: %w", err)
	}

	if err := os.Rename(tmpName, filename); err != nil {
		return fmt.Errorf("failed to move snapshot into place: %w", err)
	}
	return nil
}

// LoadFromFile loads the index from a binary file
func (g *GeoIndex) LoadFromFile(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var data IndexData
	decoder := gob.NewDecoder(file)
	if err := decoder.Decode(&data); err != nil {
		return fmt.Errorf("failed to decode data: %w", err)
	}

	// Clear existing index and rebuild
	g.Clear()
	if err := g.IndexLetters(data.Letters); err != nil {
		return fmt.Errorf("failed to index letters: %w", err)
	}

	return nil
}
