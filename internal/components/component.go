package components

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

const (
	StorageComponentName  = "storage"
	PlatformComponentName = "platforms"
	ServerComponentName   = "server"
)

type IComponent interface {
	Name() string
	Validate() error
	Initialize(ctx context.Context) error
	Close(ctx context.Context) error
}

// Registry initializes components in registration order and closes the
// initialized ones in reverse.
type Registry struct {
	components map[string]IComponent
	order      []string
	started    int
	logger     *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		components: make(map[string]IComponent),
		logger:     logger,
	}
}

func (r *Registry) Register(component IComponent) error {
	name := component.Name()
	if _, exists := r.components[name]; exists {
		return fmt.Errorf("component %s already registered", name)
	}
	r.components[name] = component
	r.order = append(r.order, name)
	return nil
}

func (r *Registry) Get(name string) (IComponent, bool) {
	comp, exists := r.components[name]
	return comp, exists
}

// InitializeAll validates every component before initializing any.
func (r *Registry) InitializeAll(ctx context.Context) error {
	for _, name := range r.order {
		if err := r.components[name].Validate(); err != nil {
			return fmt.Errorf("component %s validation failed: %w", name, err)
		}
	}

	for _, name := range r.order[r.started:] {
		if err := r.components[name].Initialize(ctx); err != nil {
			return fmt.Errorf("component %s initialization failed: %w", name, err)
		}
		r.started++
		r.logger.Debug("Component initialized", "component", name)
	}
	return nil
}

func (r *Registry) CloseAll(ctx context.Context) error {
	var errs []error
	for i := r.started - 1; i >= 0; i-- {
		name := r.order[i]
		if err := r.components[name].Close(ctx); err != nil {
			r.logger.Warn("Error closing component", "component", name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	r.started = 0
	return errors.Join(errs...)
}
