// Package archive keeps a compressed, timestamped copy of every successfully
// fetched feed document so past cycles can be inspected or replayed.
package archive

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/couchcryptid/hydro-ingest/internal/domain"
)

const (
	// DefaultPrefix matches the historical archive naming.
	DefaultPrefix = "hq_open_data"
	// TimestampLayout is the local-time suffix, minute resolution (yy-mm-dd--HH-MM).
	TimestampLayout = "06-01-02--15-04"
	// Extension marks zstd-compressed JSON.
	Extension = ".json.zst"
)

// Manager writes snapshots into a directory.
type Manager struct {
	dir    string
	prefix string
}

// NewManager returns a Manager for dir. An empty prefix uses DefaultPrefix.
func NewManager(dir, prefix string) *Manager {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Manager{dir: dir, prefix: prefix}
}

// Dir returns the archive directory.
func (m *Manager) Dir() string { return m.dir }

// FileName returns the archive file name for the current local minute.
func (m *Manager) FileName() string {
	return m.prefix + "_" + domain.Now().Local().Format(TimestampLayout) + Extension
}

// Snapshot writes the document's payload, byte for byte, to a new archive
// file and returns its path. Archives are never overwritten; a second snapshot
// within the same minute fails with os.ErrExist.
func (m *Manager) Snapshot(doc *domain.FeedDocument) (string, error) {
	if doc == nil {
		return "", errors.New("snapshot: nil document")
	}
	raw, err := doc.Raw()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(m.dir, 0o750); err != nil {
		return "", fmt.Errorf("create archive dir: %w", err)
	}

	path := filepath.Join(m.dir, m.FileName())
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return "", fmt.Errorf("create archive: %w", err)
	}

	if err := writeCompressed(f, raw); err != nil {
		f.Close()
		os.Remove(path) //nolint:errcheck // best effort, the write error is what matters
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close archive: %w", err)
	}
	return path, nil
}

func writeCompressed(w io.Writer, raw []byte) error {
	enc, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}
	if _, err := enc.Write(raw); err != nil {
		enc.Close()
		return fmt.Errorf("%w: write archive: %w", domain.ErrSerialization, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("flush archive: %w", err)
	}
	return nil
}

// Restore reads a snapshot written by Snapshot. The returned document carries
// the archived payload unchanged. Plain, uncompressed JSON files are accepted
// too.
func Restore(path string) (*domain.FeedDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read archive: %w", err)
	}
	if strings.HasSuffix(path, ".zst") {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("create zstd reader: %w", err)
		}
		defer dec.Close()
		data, err = dec.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: decompress archive %s: %w", domain.ErrMalformedPayload, path, err)
		}
	}
	return domain.ParseFeedDocument(data)
}

// List returns the archive paths in dir that carry this manager's prefix,
// oldest first.
func (m *Manager) List() ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("list archives: %w", err)
	}
	var paths []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, m.prefix+"_") {
			continue
		}
		if !strings.HasSuffix(name, Extension) && !strings.HasSuffix(name, ".json") {
			continue
		}
		paths = append(paths, filepath.Join(m.dir, name))
	}
	sort.Strings(paths)
	return paths, nil
}
