package identity

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"forecastbot/internal/storage"
	"forecastbot/internal/storage/file"
	"forecastbot/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	data    []byte
	readErr error
	failing bool
	writes  int
}

func (m *memStore) Name() string { return "mem" }

func (m *memStore) Read(ctx context.Context) ([]byte, error) {
	if m.readErr != nil {
		return nil, m.readErr
	}
	if m.data == nil {
		return nil, storage.ErrNotFound
	}
	return m.data, nil
}

func (m *memStore) Write(ctx context.Context, data []byte) error {
	if m.failing {
		return errors.New("disk full")
	}
	m.writes++
	m.data = append([]byte(nil), data...)
	return nil
}

func (m *memStore) Close() error { return nil }

func persisted(t *testing.T, m *memStore) []string {
	t.Helper()
	var ids []string
	require.NoError(t, json.Unmarshal(m.data, &ids))
	return ids
}

func TestLoadMissingIsEmpty(t *testing.T) {
	s := New(&memStore{}, nil)
	require.NoError(t, s.Load(context.Background()))
	assert.Equal(t, 0, s.Len())
	assert.False(t, s.Contains("1"))
}

func TestLoadCorruptIsEmptyWithWarning(t *testing.T) {
	s := New(&memStore{data: []byte("{not json")}, nil)
	err := s.Load(context.Background())
	require.Error(t, err)
	assert.True(t, types.IsCorruptState(err))
	assert.False(t, types.IsFatal(err))
	assert.Equal(t, 0, s.Len())
}

func TestLoadBackendErrorIsFatal(t *testing.T) {
	s := New(&memStore{readErr: errors.New("connection refused")}, nil)
	err := s.Load(context.Background())
	require.Error(t, err)
	assert.True(t, types.IsFatal(err))
}

func TestLoadLegacyObjectFormat(t *testing.T) {
	s := New(&memStore{data: []byte(`{"A-1":"2025-01-02","B-2":"2025-01-03"}`)}, nil)
	require.NoError(t, s.Load(context.Background()))
	assert.True(t, s.Contains("A-1"))
	assert.True(t, s.Contains("B-2"))
	assert.Equal(t, 2, s.Len())
}

func TestLoadLegacyNumericArray(t *testing.T) {
	ctx := context.Background()
	m := &memStore{data: []byte(`[12345, 67890, "A-1"]`)}
	s := New(m, nil)
	require.NoError(t, s.Load(ctx))
	assert.Equal(t, 3, s.Len())
	assert.True(t, s.Contains("12345"))
	assert.True(t, s.Contains("67890"))
	assert.True(t, s.Contains("A-1"))

	s.Stage("99999")
	require.NoError(t, s.Commit(ctx))
	assert.Equal(t, []string{"12345", "67890", "99999", "A-1"}, persisted(t, m))
}

func TestLoadArrayWithNestedElementIsCorrupt(t *testing.T) {
	s := New(&memStore{data: []byte(`[1, {"id": 2}]`)}, nil)
	err := s.Load(context.Background())
	require.Error(t, err)
	assert.True(t, types.IsCorruptState(err))
	assert.Equal(t, 0, s.Len())
}

func TestStageVisibleButNotPersistedUntilCommit(t *testing.T) {
	ctx := context.Background()
	m := &memStore{data: []byte(`["1"]`)}
	s := New(m, nil)
	require.NoError(t, s.Load(ctx))

	s.Stage("3")
	s.Stage("2")
	s.Stage("3")
	s.Stage("1")

	assert.True(t, s.Contains("3"))
	assert.Equal(t, []string{"3", "2"}, s.Staged())
	assert.Equal(t, []string{"1"}, persisted(t, m))

	require.NoError(t, s.Commit(ctx))
	assert.Equal(t, []string{"1", "2", "3"}, persisted(t, m))
	assert.Empty(t, s.Staged())
	assert.Equal(t, 3, s.Len())
}

func TestEmptyCommitIsNoop(t *testing.T) {
	ctx := context.Background()
	m := &memStore{}
	s := New(m, nil)
	require.NoError(t, s.Load(ctx))
	require.NoError(t, s.Commit(ctx))
	assert.Equal(t, 0, m.writes)
	assert.Nil(t, m.data)
}

func TestFailedCommitKeepsPreviousState(t *testing.T) {
	ctx := context.Background()
	m := &memStore{data: []byte(`["1"]`)}
	s := New(m, nil)
	require.NoError(t, s.Load(ctx))
	s.Stage("2")

	m.failing = true
	err := s.Commit(ctx)
	require.Error(t, err)
	assert.True(t, types.IsCommitError(err))
	assert.True(t, types.IsFatal(err))
	assert.Equal(t, []string{"1"}, persisted(t, m))
	assert.Equal(t, []string{"2"}, s.Staged())

	// A fresh load sees exactly the pre-commit set.
	reloaded := New(m, nil)
	require.NoError(t, reloaded.Load(ctx))
	assert.True(t, reloaded.Contains("1"))
	assert.False(t, reloaded.Contains("2"))

	m.failing = false
	require.NoError(t, s.Commit(ctx))
	assert.Equal(t, []string{"1", "2"}, persisted(t, m))
}

func TestCommitOverFileStoreSurvivesReload(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "seen_ids.json")
	store, err := file.New(ctx, storage.Config{Path: path})
	require.NoError(t, err)

	s := New(store, nil)
	require.NoError(t, s.Load(ctx))
	s.Stage("b")
	s.Stage("a")
	require.NoError(t, s.Commit(ctx))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var ids []string
	require.NoError(t, json.Unmarshal(raw, &ids))
	assert.Equal(t, []string{"a", "b"}, ids)

	again := New(store, nil)
	require.NoError(t, again.Load(ctx))
	assert.True(t, again.Contains("a"))
	assert.True(t, again.Contains("b"))
}

func TestCommitOverwritesCorruptBlob(t *testing.T) {
	ctx := context.Background()
	m := &memStore{data: []byte("garbage")}
	s := New(m, nil)
	require.Error(t, s.Load(ctx))

	s.Stage("x")
	require.NoError(t, s.Commit(ctx))
	assert.Equal(t, []string{"x"}, persisted(t, m))
}
