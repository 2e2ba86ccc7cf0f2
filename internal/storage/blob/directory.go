package blob

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const modelExt = ".model"

// Directory is the local working directory of model artifacts. Files are
// named {key}.model and are refreshed into the blob store, then purged.
type Directory struct {
	dir string
}

// NewDirectory manages artifacts inside dir
func NewDirectory(dir string) *Directory {
	return &Directory{dir: dir}
}

// Dir returns the managed directory
func (d *Directory) Dir() string {
	return d.dir
}

// Path returns the file path for key
func (d *Directory) Path(key string) string {
	return filepath.Join(d.dir, key+modelExt)
}

// List returns the artifact keys present, sorted
func (d *Directory) List() ([]string, error) {
	entries, err := os.ReadDir(d.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", d.dir, err)
	}

	var keys []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), modelExt) {
			continue
		}
		keys = append(keys, strings.TrimSuffix(e.Name(), modelExt))
	}
	sort.Strings(keys)
	return keys, nil
}

// Read loads the artifact stored under key
func (d *Directory) Read(key string) ([]byte, error) {
	return os.ReadFile(d.Path(key))
}

// Write atomically replaces the artifact stored under key
func (d *Directory) Write(key string, data []byte) error {
	if strings.ContainsAny(key, `/\`) || key == "" {
		return fmt.Errorf("invalid artifact key %q", key)
	}
	if err := os.MkdirAll(d.dir, 0755); err != nil {
		return fmt.Errorf("failed to create models directory: %w", err)
	}
	tmp := d.Path(key) + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := os.Rename(tmp, d.Path(key)); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace %s: %w", key, err)
	}
	return nil
}

// Remove deletes the artifact. A missing file is not an error.
func (d *Directory) Remove(key string) error {
	err := os.Remove(d.Path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
