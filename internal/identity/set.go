// Package identity holds the persisted set of opportunity identifiers that
// have already been announced.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"forecastbot/internal/storage"
	"forecastbot/internal/types"
)

// Set is loaded once per run, grows only through Stage, and is persisted by a
// single Commit. Contains answers for loaded and staged identifiers alike.
type Set struct {
	store  storage.BlobStore
	logger *slog.Logger

	mu     sync.RWMutex
	loaded map[string]struct{}
	staged map[string]struct{}
	order  []string
}

func New(store storage.BlobStore, logger *slog.Logger) *Set {
	if logger == nil {
		logger = slog.Default()
	}
	return &Set{
		store:  store,
		logger: logger,
		loaded: map[string]struct{}{},
		staged: map[string]struct{}{},
	}
}

// Load replaces the in-memory state with the persisted blob. A missing blob is
// an empty set. An undecodable blob is also an empty set and the returned
// *types.CorruptStateError is informational; any other error is fatal.
func (s *Set) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.loaded = map[string]struct{}{}
	s.staged = map[string]struct{}{}
	s.order = nil

	data, err := s.store.Read(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		s.logger.Info("No persisted identifiers, starting empty", "store", s.store.Name())
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read identifiers from %s: %w", s.store.Name(), err)
	}

	ids, err := decode(data)
	if err != nil {
		corrupt := &types.CorruptStateError{Store: s.store.Name(), Err: err}
		s.logger.Warn("Persisted identifiers are unreadable, starting empty", "store", s.store.Name(), "error", err)
		return corrupt
	}

	for _, id := range ids {
		s.loaded[id] = struct{}{}
	}
	s.logger.Info("Loaded identifiers", "store", s.store.Name(), "count", len(s.loaded))
	return nil
}

func (s *Set) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.loaded[id]; ok {
		return true
	}
	_, ok := s.staged[id]
	return ok
}

// Stage marks id as announced for this run. It is not persisted until Commit.
func (s *Set) Stage(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.loaded[id]; ok {
		return
	}
	if _, ok := s.staged[id]; ok {
		return
	}
	s.staged[id] = struct{}{}
	s.order = append(s.order, id)
}

// Staged returns identifiers staged since Load, in staging order.
func (s *Set) Staged() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.loaded) + len(s.staged)
}

// Commit writes the union of loaded and staged identifiers in one atomic
// store write. With nothing staged it does not touch the store. On failure the
// staged identifiers stay staged and the persisted blob is unchanged.
func (s *Set) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.staged) == 0 {
		s.logger.Debug("Nothing staged, skipping commit", "store", s.store.Name())
		return nil
	}

	all := make([]string, 0, len(s.loaded)+len(s.staged))
	for id := range s.loaded {
		all = append(all, id)
	}
	for id := range s.staged {
		all = append(all, id)
	}
	sort.Strings(all)

	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return &types.CommitError{Store: s.store.Name(), Staged: len(s.staged), Err: err}
	}
	if err := s.store.Write(ctx, data); err != nil {
		return &types.CommitError{Store: s.store.Name(), Staged: len(s.staged), Err: err}
	}

	for id := range s.staged {
		s.loaded[id] = struct{}{}
	}
	committed := len(s.staged)
	s.staged = map[string]struct{}{}
	s.order = nil

	s.logger.Info("Committed identifiers", "store", s.store.Name(), "added", committed, "total", len(s.loaded))
	return nil
}

// decode accepts a JSON array of identifiers, numeric or string, or the older
// object form keyed by identifier with the last-seen date as value.
func decode(data []byte) ([]string, error) {
	var ids []string
	if err := json.Unmarshal(data, &ids); err == nil {
		return ids, nil
	}

	var list []any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&list); err == nil {
		ids = make([]string, 0, len(list))
		for i, v := range list {
			switch x := v.(type) {
			case string:
				ids = append(ids, x)
			case json.Number:
				ids = append(ids, x.String())
			default:
				return nil, fmt.Errorf("identifier %d: expected a string or number, got %T", i, v)
			}
		}
		return ids, nil
	}

	var legacy map[string]any
	if err := json.Unmarshal(data, &legacy); err != nil {
		return nil, fmt.Errorf("expected a JSON array or object of identifiers: %w", err)
	}
	ids = make([]string, 0, len(legacy))
	for id := range legacy {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
