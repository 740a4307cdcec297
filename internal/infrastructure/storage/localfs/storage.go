package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dialerops/report-pipeline/internal/core/domain"
)

// Storage keeps the raw bytes of every ingested report file on disk, keyed by
// the id-prefixed name the ingest flow assigns. These copies back the audit
// and raw-download paths; retention is managed outside the service.
type Storage struct {
	basePath string
}

func New(basePath string) (*Storage, error) {
	if basePath == "" {
		basePath = "./data/reports"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Storage{basePath: basePath}, nil
}

// Save stages the copy in a temp file and renames it into place, so a request
// that dies mid-upload never leaves a truncated audit copy behind.
func (s *Storage) Save(_ context.Context, key string, data io.Reader) error {
	path, err := s.resolve(key)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.basePath, ".incoming-*")
	if err != nil {
		return fmt.Errorf("stage report copy: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, data); err != nil {
		tmp.Close()
		return fmt.Errorf("write report copy: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write report copy: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("publish report copy: %w", err)
	}
	return nil
}

func (s *Storage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	path, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, domain.WrapError(domain.ErrReportNotFound, "open report copy", err)
	}
	if err != nil {
		return nil, fmt.Errorf("open report copy: %w", err)
	}
	return f, nil
}

// resolve rejects keys that would escape the storage directory.
func (s *Storage) resolve(key string) (string, error) {
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) || key != filepath.Base(key) {
		return "", domain.WrapError(domain.ErrInvalidInput, "storage key", fmt.Errorf("unsafe key %q", key))
	}
	return filepath.Join(s.basePath, key), nil
}
