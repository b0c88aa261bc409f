// Package lua hosts sandboxed gopher-lua states for scraper scripts.
package lua

import (
	"context"
	"fmt"
	"net/http"

	"github.com/cjoudrey/gluahttp"
	lua "github.com/yuin/gopher-lua"
	json "layeh.com/gopher-json"
)

// Module is a Go-implemented library exposed to scripts via require(name).
type Module interface {
	Name() string
	Loader(L *lua.LState) int
}

type Runtime struct {
	state      *lua.LState
	secureMode bool
	loader     Loader
	httpClient *http.Client
	modules    []Module
}

type RuntimeOption func(*Runtime)

func WithLoader(loader Loader) RuntimeOption {
	return func(r *Runtime) {
		r.loader = loader
	}
}

func WithSecureMode(secure bool) RuntimeOption {
	return func(r *Runtime) {
		r.secureMode = secure
	}
}

// WithHTTPClient exposes client to scripts as require("http").
func WithHTTPClient(client *http.Client) RuntimeOption {
	return func(r *Runtime) {
		r.httpClient = client
	}
}

func WithModules(modules ...Module) RuntimeOption {
	return func(r *Runtime) {
		r.modules = append(r.modules, modules...)
	}
}

func NewRuntime(options ...RuntimeOption) *Runtime {
	r := &Runtime{
		state:      lua.NewState(),
		secureMode: true,
	}

	for _, opt := range options {
		opt(r)
	}

	json.Preload(r.state)
	if r.httpClient != nil {
		r.state.PreloadModule("http", gluahttp.NewHttpModule(r.httpClient).Loader)
	}
	for _, m := range r.modules {
		r.state.PreloadModule(m.Name(), m.Loader)
	}
	if r.loader != nil {
		SetupRequire(r.state, r.loader)
	}
	if r.secureMode {
		r.setupSecureState()
	}

	return r
}

func (r *Runtime) State() *lua.LState {
	return r.state
}

func (r *Runtime) setupSecureState() {
	for _, name := range []string{"os", "io", "debug", "dofile", "loadfile"} {
		r.state.SetGlobal(name, lua.LNil)
	}
}

func (r *Runtime) LoadScript(scriptContent string) error {
	if err := r.state.DoString(scriptContent); err != nil {
		return fmt.Errorf("failed to load script: %w", err)
	}
	return nil
}

// Call invokes a global function. Cancelling ctx aborts the script.
func (r *Runtime) Call(ctx context.Context, functionName string, args ...any) ([]any, error) {
	fn, ok := r.state.GetGlobal(functionName).(*lua.LFunction)
	if !ok {
		return nil, fmt.Errorf("function %s not found", functionName)
	}

	r.state.SetContext(ctx)
	defer r.state.RemoveContext()

	base := r.state.GetTop()
	r.state.Push(fn)
	for _, arg := range args {
		r.state.Push(ToLuaValue(r.state, arg))
	}

	if err := r.state.PCall(len(args), lua.MultRet, nil); err != nil {
		r.state.SetTop(base)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("lua execution error: %w", err)
	}

	top := r.state.GetTop()
	results := make([]any, 0, top-base)
	for i := base + 1; i <= top; i++ {
		results = append(results, ToGoValue(r.state.Get(i)))
	}
	r.state.SetTop(base)

	return results, nil
}

func (r *Runtime) Close() error {
	if r.state != nil {
		r.state.Close()
		r.state = nil
	}
	return nil
}
