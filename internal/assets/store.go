package assets

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
)

// ErrNotFound is returned when no object exists under the requested key.
var ErrNotFound = errors.New("asset not found")

// Store retrieves audio assets by key. Uploading and cataloguing assets is
// an administrative concern outside the purchase core; the core only reads.
type Store interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// LocalStore serves assets from a directory on disk.
type LocalStore struct {
	dir string
}

func NewLocalStore(dir string) *LocalStore {
	return &LocalStore{dir: dir}
}

func (s *LocalStore) path(key string) string {
	return filepath.Join(s.dir, filepath.Clean("/"+key))
}

func (s *LocalStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(s.path(key))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (s *LocalStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := os.Stat(s.path(key))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
