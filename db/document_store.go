package db

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/asdine/storm"
	"github.com/asdine/storm/codec/json"
)

// OpenDocumentStore opens the bolt file holding brackets and match sessions.
func OpenDocumentStore(path string) (*storm.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create document store directory %s: %w", dir, err)
		}
	}

	store, err := storm.Open(path, storm.Codec(json.Codec))
	if err != nil {
		return nil, fmt.Errorf("failed to open document store %s: %w", path, err)
	}
	return store, nil
}
