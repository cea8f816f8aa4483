package backup

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ObjectStore is the off-site destination for backup artifacts. The
// filesystem implementation covers mounted remote volumes; an S3-style
// implementation would satisfy the same interface.
type ObjectStore interface {
	Put(ctx context.Context, name string, r io.Reader) error
	Get(ctx context.Context, name string) (io.ReadCloser, error)
}

// FilesystemStore writes artifacts under a root directory
type FilesystemStore struct {
	root string
}

// NewFilesystemStore creates an object store rooted at dir
func NewFilesystemStore(dir string) (*FilesystemStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create object store directory: %w", err)
	}
	return &FilesystemStore{root: dir}, nil
}

func (s *FilesystemStore) Put(ctx context.Context, name string, r io.Reader) error {
	dest := filepath.Join(s.root, filepath.Base(name))
	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		os.Remove(dest)
		return err
	}
	return f.Sync()
}

func (s *FilesystemStore) Get(ctx context.Context, name string) (io.ReadCloser, error) {
	return os.Open(filepath.Join(s.root, filepath.Base(name)))
}
