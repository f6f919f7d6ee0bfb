package store

import (
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pingcap/errors"
)

// IOManager owns a scratch directory for files that are built locally before they
// are uploaded to the table location.
type IOManager struct {
	dir string
}

// NewIOManager creates a private scratch directory under root. An empty root means os.TempDir().
func NewIOManager(root string) (*IOManager, error) {
	if root == "" {
		root = os.TempDir()
	}
	dir := filepath.Join(root, "paimon-io-"+uuid.New().String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Annotatef(err, "create scratch directory %s", dir)
	}
	return &IOManager{dir: dir}, nil
}

// Dir returns the scratch directory.
func (m *IOManager) Dir() string {
	return m.dir
}

// CreateTemp opens a new scratch file.
func (m *IOManager) CreateTemp(pattern string) (*os.File, error) {
	f, err := os.CreateTemp(m.dir, pattern)
	return f, errors.Trace(err)
}

// Close removes the scratch directory and everything left in it.
func (m *IOManager) Close() error {
	return errors.Trace(os.RemoveAll(m.dir))
}
