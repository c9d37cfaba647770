package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DirStore writes each object as a file under a directory. Development only.
type DirStore struct {
	dir string
}

// NewDirStore creates dir when missing.
func NewDirStore(dir string) (*DirStore, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("archive: empty archive dir")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("archive: create dir: %w", err)
	}
	return &DirStore{dir: dir}, nil
}

func (s *DirStore) Store(ctx context.Context, obj Object, _ string) error {
	if err := obj.validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return storeErr(BackendDir, obj.Name, err)
	}

	final := filepath.Join(s.dir, obj.Name)
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return storeErr(BackendDir, obj.Name, err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(obj.Data); err != nil {
		_ = tmp.Close()
		return storeErr(BackendDir, obj.Name, err)
	}
	if err := tmp.Close(); err != nil {
		return storeErr(BackendDir, obj.Name, err)
	}
	if _, err := os.Stat(final); err == nil {
		return storeErr(BackendDir, obj.Name, fmt.Errorf("%w: file exists", ErrRejected))
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		return storeErr(BackendDir, obj.Name, err)
	}
	return nil
}
