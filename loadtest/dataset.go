package loadtest

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultMaxDatasetSize caps how many files one run uploads.
const DefaultMaxDatasetSize = 10000

// ListDataset returns the regular files directly inside dir as absolute
// paths sorted by name, keeping at most limit of them. A limit of zero or less
// means DefaultMaxDatasetSize. Subdirectories and other non-regular entries
// are skipped.
func ListDataset(dir string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = DefaultMaxDatasetSize
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve data dir %s: %w", dir, err)
	}
	// ReadDir returns entries sorted by filename.
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read data dir %s: %w", dir, err)
	}

	files := make([]string, 0, min(len(entries), limit))
	for _, entry := range entries {
		if len(files) == limit {
			break
		}
		if !entry.Type().IsRegular() {
			continue
		}
		files = append(files, filepath.Join(abs, entry.Name()))
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoFiles, dir)
	}
	return files, nil
}
