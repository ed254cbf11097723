package reports

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/lodestar-cd/lodestar/internal/config"
)

// Storage is the object-storage surface report publishing needs.
type Storage interface {
	Upload(ctx context.Context, r io.Reader, key string) error
}

// New creates the storage backend named by the configuration.
func New(ctx context.Context, cfg config.ObjectStorage) (Storage, error) {
	switch {
	case cfg.AmazonS3 != nil:
		return newS3(ctx, cfg.AmazonS3)
	case cfg.FileSystem != nil:
		return &dirStorage{root: cfg.FileSystem.Path}, nil
	}
	return nil, errors.New("reports: no object storage backend configured")
}

// dirStorage writes reports into a local directory tree.
type dirStorage struct {
	root string
}

func (d *dirStorage) Upload(_ context.Context, r io.Reader, key string) error {
	if strings.Contains(key, "..") {
		return fmt.Errorf("invalid report key %q", key)
	}

	path := filepath.Join(d.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}
