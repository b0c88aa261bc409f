package storage

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("blob not found")

// BlobStore persists one named, opaque blob. Write must be atomic: a reader
// sees either the previous blob or the new one, never a mix.
type BlobStore interface {
	Name() string
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close() error
}

type Config struct {
	Type     string
	Path     string
	Key      string
	Address  string
	Password string
	DB       int
}
