package components

import (
	"context"

	"forecastbot/internal/server"
)

// ServerComponent runs the status server; it is only registered when a
// listen address is configured.
type ServerComponent struct {
	server *server.Server
}

func NewServerComponent(srv *server.Server) *ServerComponent {
	return &ServerComponent{server: srv}
}

func (c *ServerComponent) Name() string {
	return ServerComponentName
}

func (c *ServerComponent) Validate() error {
	return nil
}

func (c *ServerComponent) Initialize(ctx context.Context) error {
	return c.server.Start(ctx)
}

func (c *ServerComponent) Close(ctx context.Context) error {
	return c.server.Shutdown(ctx)
}

func (c *ServerComponent) Server() *server.Server {
	return c.server
}
