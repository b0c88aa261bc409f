package storage

import (
	"context"
	"fmt"
	"sort"
)

type FactoryFunc func(ctx context.Context, cfg Config) (BlobStore, error)

var factoryFuncs = map[string]FactoryFunc{}

func RegisterFactory(storageType string, fn FactoryFunc) {
	factoryFuncs[storageType] = fn
}

func Types() []string {
	names := make([]string, 0, len(factoryFuncs))
	for name := range factoryFuncs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func New(ctx context.Context, cfg Config) (BlobStore, error) {
	storageType := cfg.Type
	if storageType == "" {
		storageType = "file"
	}

	fn, exists := factoryFuncs[storageType]
	if !exists {
		return nil, fmt.Errorf("unsupported storage type: %s (available: %v)", storageType, Types())
	}

	return fn(ctx, cfg)
}
