// Package metadata persists selected-station metadata to a human-editable
// YAML side file.
package metadata

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/hydro-ingest/internal/domain"
)

// Save writes the stations to path. The file is written to a temporary
// sibling and renamed into place so readers never see a partial document.
func Save(stations map[string]domain.Station, path string) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(stations); err != nil {
		return fmt.Errorf("%w: encode metadata: %w", domain.ErrSerialization, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("%w: encode metadata: %w", domain.ErrSerialization, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create metadata temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // no-op once renamed

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("write metadata: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync metadata: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close metadata: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace metadata: %w", err)
	}
	return nil
}

// Load reads stations previously written by Save. A structurally invalid file
// is an error; nothing is recovered silently.
func Load(path string) (map[string]domain.Station, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}

	var stations map[string]domain.Station
	if err := yaml.Unmarshal(data, &stations); err != nil {
		return nil, fmt.Errorf("%w: decode metadata %s: %w", domain.ErrSerialization, path, err)
	}
	if stations == nil {
		stations = map[string]domain.Station{}
	}
	for id, s := range stations {
		if s.Identifier != id {
			return nil, fmt.Errorf("%w: metadata entry %q has identifier %q", domain.ErrSerialization, id, s.Identifier)
		}
	}
	return stations, nil
}

// File binds Save and Load to one side-file path.
type File struct {
	Path string
}

func (f File) Save(stations map[string]domain.Station) error { return Save(stations, f.Path) }

func (f File) Load() (map[string]domain.Station, error) { return Load(f.Path) }
