package components

import (
	"context"
	"fmt"
	"slices"

	"forecastbot/internal/storage"
)

// StorageComponent owns the BlobStore behind the identity set.
type StorageComponent struct {
	cfg   storage.Config
	store storage.BlobStore
}

func NewStorageComponent(cfg storage.Config) *StorageComponent {
	return &StorageComponent{cfg: cfg}
}

func (c *StorageComponent) Name() string {
	return StorageComponentName
}

func (c *StorageComponent) Validate() error {
	if c.cfg.Type == "" || slices.Contains(storage.Types(), c.cfg.Type) {
		return nil
	}
	return fmt.Errorf("storage: unknown backend %q", c.cfg.Type)
}

func (c *StorageComponent) Initialize(ctx context.Context) error {
	store, err := storage.New(ctx, c.cfg)
	if err != nil {
		return fmt.Errorf("storage: failed to open %s backend: %w", c.cfg.Type, err)
	}
	c.store = store
	return nil
}

func (c *StorageComponent) Close(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	return c.store.Close()
}

func (c *StorageComponent) Store() storage.BlobStore {
	return c.store
}
