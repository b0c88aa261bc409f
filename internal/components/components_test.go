package components

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"forecastbot/internal/storage"
	_ "forecastbot/internal/storage/file"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	name        string
	log         *[]string
	validateErr error
	initErr     error
}

func (r *recorder) Name() string    { return r.name }
func (r *recorder) Validate() error { return r.validateErr }
func (r *recorder) Initialize(ctx context.Context) error {
	if r.initErr != nil {
		return r.initErr
	}
	*r.log = append(*r.log, "init:"+r.name)
	return nil
}
func (r *recorder) Close(ctx context.Context) error {
	*r.log = append(*r.log, "close:"+r.name)
	return nil
}

func TestRegistryOrder(t *testing.T) {
	var log []string
	reg := NewRegistry(nil)
	require.NoError(t, reg.Register(&recorder{name: "a", log: &log}))
	require.NoError(t, reg.Register(&recorder{name: "b", log: &log}))
	require.Error(t, reg.Register(&recorder{name: "a", log: &log}))

	require.NoError(t, reg.InitializeAll(context.Background()))
	require.NoError(t, reg.Register(&recorder{name: "c", log: &log}))
	require.NoError(t, reg.InitializeAll(context.Background()))
	require.NoError(t, reg.CloseAll(context.Background()))

	assert.Equal(t, []string{"init:a", "init:b", "init:c", "close:c", "close:b", "close:a"}, log)
}

func TestRegistryValidatesBeforeInitializing(t *testing.T) {
	var log []string
	reg := NewRegistry(nil)
	require.NoError(t, reg.Register(&recorder{name: "a", log: &log}))
	require.NoError(t, reg.Register(&recorder{name: "b", log: &log, validateErr: errors.New("missing token")}))

	err := reg.InitializeAll(context.Background())
	require.Error(t, err)
	assert.Empty(t, log)
}

func TestRegistryClosesOnlyInitialized(t *testing.T) {
	var log []string
	reg := NewRegistry(nil)
	require.NoError(t, reg.Register(&recorder{name: "a", log: &log}))
	require.NoError(t, reg.Register(&recorder{name: "b", log: &log, initErr: errors.New("boom")}))

	require.Error(t, reg.InitializeAll(context.Background()))
	require.NoError(t, reg.CloseAll(context.Background()))
	assert.Equal(t, []string{"init:a", "close:a"}, log)
}

func TestStorageComponent(t *testing.T) {
	comp := NewStorageComponent(storage.Config{Type: "file", Path: filepath.Join(t.TempDir(), "seen.json")})
	require.NoError(t, comp.Validate())
	require.NoError(t, comp.Initialize(context.Background()))
	assert.Contains(t, comp.Store().Name(), "seen.json")
	require.NoError(t, comp.Close(context.Background()))

	assert.Error(t, NewStorageComponent(storage.Config{Type: "floppy"}).Validate())
}

func TestPlatformComponentValidate(t *testing.T) {
	assert.NoError(t, NewPlatformComponent(PlatformConfig{}).Validate())
	assert.Error(t, NewPlatformComponent(PlatformConfig{Discord: &DiscordSettings{}}).Validate())
	assert.Error(t, NewPlatformComponent(PlatformConfig{Bluesky: &BlueskySettings{Identifier: "me"}}).Validate())
	assert.Error(t, NewPlatformComponent(PlatformConfig{Ollama: &OllamaSettings{}}).Validate())
}

func TestPlatformComponentOllama(t *testing.T) {
	comp := NewPlatformComponent(PlatformConfig{Ollama: &OllamaSettings{Model: "qwen2.5:0.5b", Host: "http://127.0.0.1:11434"}})
	require.NoError(t, comp.Initialize(context.Background()))
	require.NotNil(t, comp.Ollama())
	assert.Equal(t, "qwen2.5:0.5b", comp.Ollama().Model())
	assert.Nil(t, comp.Discord())
}
