package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"forecastbot/internal/storage"
	"forecastbot/internal/utils"
)

func init() {
	storage.RegisterFactory("file", New)
}

type FileStore struct {
	path string
}

func New(ctx context.Context, cfg storage.Config) (storage.BlobStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("file storage requires a path")
	}
	slog.Debug("Initializing file storage", "path", cfg.Path)
	return &FileStore{path: cfg.Path}, nil
}

func (s *FileStore) Name() string {
	return "file:" + s.path
}

func (s *FileStore) Read(ctx context.Context) ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	return data, nil
}

func (s *FileStore) Write(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return utils.WriteBytesAtomic(s.path, data, 0o644)
}

func (s *FileStore) Close() error {
	return nil
}
