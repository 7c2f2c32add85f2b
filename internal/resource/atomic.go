package resource

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// artifactMode is world readable; artifacts are served by a web server
const artifactMode os.FileMode = 0644

// tempSuffix marks files that have not been renamed into place yet
const tempSuffix = ".tmp"

// writeFileAtomic replaces path with data.
// The data is written to a temporary file in the same directory, synced and
// renamed over path, so readers see either the old or the new content.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*"+tempSuffix)
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tempPath := tmp.Name()

	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tempPath)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("failed to write temporary file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("failed to sync temporary file: %w", err)
	}
	if err := tmp.Chmod(artifactMode); err != nil {
		cleanup()
		return fmt.Errorf("failed to set file mode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to close temporary file: %w", err)
	}

	// Atomic rename
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename %s: %w", filepath.Base(path), err)
	}

	return nil
}

// isTempFile reports whether name is an in-flight temporary file
func isTempFile(name string) bool {
	return strings.HasPrefix(name, ".") && strings.HasSuffix(name, tempSuffix)
}
