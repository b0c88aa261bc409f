package lua

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

type Loader interface {
	Load(identifier string) (string, error)
}

// FSLoader reads scripts from an fs.FS, usually the embedded scraper set.
type FSLoader struct {
	fsys     fs.FS
	basePath string
}

func NewFSLoader(fsys fs.FS, basePath string) *FSLoader {
	return &FSLoader{fsys: fsys, basePath: basePath}
}

func (e *FSLoader) Load(identifier string) (string, error) {
	p := path.Join(e.basePath, identifier)
	if !strings.HasSuffix(p, ".lua") {
		p += ".lua"
	}

	data, err := fs.ReadFile(e.fsys, p)
	if err != nil {
		return "", fmt.Errorf("failed to load embedded script %s: %w", identifier, err)
	}
	return string(data), nil
}

type FilesystemLoader struct {
	basePath string
}

func NewFilesystemLoader(basePath string) *FilesystemLoader {
	return &FilesystemLoader{basePath: basePath}
}

func (f *FilesystemLoader) Load(identifier string) (string, error) {
	p := identifier
	if !filepath.IsAbs(p) {
		p = filepath.Join(f.basePath, identifier)
	}
	if filepath.Ext(p) == "" {
		p += ".lua"
	}

	data, err := os.ReadFile(p)
	if err != nil {
		return "", fmt.Errorf("failed to load script %s: %w", identifier, err)
	}
	return string(data), nil
}

// SetupRequire makes require() consult preloaded modules first and fall back
// to loader for script modules.
func SetupRequire(L *lua.LState, loader Loader) {
	originalRequire := L.GetGlobal("require")

	L.SetGlobal("require", L.NewFunction(func(L *lua.LState) int {
		module := L.CheckString(1)

		preload := L.GetField(L.GetField(L.Get(lua.EnvironIndex), "package"), "preload")
		if tbl, ok := preload.(*lua.LTable); ok && L.GetField(tbl, module) != lua.LNil {
			if fn, ok := originalRequire.(*lua.LFunction); ok {
				L.Push(fn)
				L.Push(lua.LString(module))
				L.Call(1, 1)
				return 1
			}
		}

		src, err := loader.Load(module)
		if err != nil {
			L.RaiseError("failed to require module %s: %s", module, err.Error())
			return 0
		}

		fn, err := L.LoadString(src)
		if err != nil {
			L.RaiseError("failed to load module %s: %s", module, err.Error())
			return 0
		}

		top := L.GetTop()
		L.Push(fn)
		L.Call(0, lua.MultRet)
		return L.GetTop() - top
	}))
}
