package util

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// ListFiles returns the names of regular files directly under dir, sorted.
// Subdirectories, symlinks to directories and other special entries are skipped.
func ListFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}
	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			files = append(files, entry.Name())
			continue
		}
		if entry.Type()&os.ModeSymlink != 0 {
			// Follow symlinks the same way a stat-based isfile check would.
			info, err := os.Stat(filepath.Join(dir, entry.Name()))
			if err == nil && info.Mode().IsRegular() {
				files = append(files, entry.Name())
			}
		}
	}
	sort.Strings(files)
	return files, nil
}
