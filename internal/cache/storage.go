package cache

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// writeFileCache writes data to a temp sibling of the final
// <cacheDir>/<photoId>.jpg path, then renames it into place, so a reader
// never observes a partially-written file.
func writeFileCache(cacheDir, photoID string, data []byte) (string, error) {
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return "", fmt.Errorf("cache: creating cache dir: %w", err)
	}

	finalPath := filepath.Join(cacheDir, photoID+".jpg")
	tempPath := finalPath + "." + uuid.NewString() + ".tmp"

	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return "", fmt.Errorf("cache: writing temp file: %w", err)
	}

	if err := os.Rename(tempPath, finalPath); err != nil {
		_ = os.Remove(tempPath)

		return "", fmt.Errorf("cache: renaming temp file into place: %w", err)
	}

	return finalPath, nil
}

// removeFileCache unlinks a file-mode cache entry. A missing file is not
// an error — eviction may race with an external cleanup, or the file may
// never have made it to disk.
func removeFileCache(path string) error {
	if path == "" {
		return nil
	}

	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("cache: removing cached file %s: %w", path, err)
	}

	return nil
}
