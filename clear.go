package bitcask

import (
	"fmt"
	"os"
	"path/filepath"
)

// Clear deletes every data file, lock file and merge-debris file in dir,
// leaving the directory itself in place. It must not be called while any
// Store has dir open; Clear does not acquire the store-directory lock
// itself; a store holding it is why Clear may only partially succeed.
func Clear(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("bitcask: clear %s: %w", dir, err)
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("bitcask: clear %s: remove %s: %w", dir, e.Name(), err)
		}
	}
	return nil
}
