package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lexcodex/jbuild/framework"
)

// RunArgsEntry persists the arguments registered for one run target.
type RunArgsEntry struct {
	Target    string    `json:"target"`
	Program   string    `json:"program,omitempty"`
	VM        string    `json:"vm,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RunArgsStore persists per-target program/VM arguments between sessions.
type RunArgsStore interface {
	Set(ctx context.Context, target string, args framework.RunArguments) error
	Get(ctx context.Context, target string) (framework.RunArguments, bool, error)
	List(ctx context.Context) ([]RunArgsEntry, error)
	Delete(ctx context.Context, target string) error
}

// FileRunArgsStore stores run arguments as JSON on disk.
type FileRunArgsStore struct {
	path  string
	mu    sync.RWMutex
	cache map[string]RunArgsEntry
}

// NewFileRunArgsStore creates a store under the provided directory.
func NewFileRunArgsStore(root string) (*FileRunArgsStore, error) {
	if root == "" {
		return nil, errors.New("run args store root required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	store := &FileRunArgsStore{
		path:  filepath.Join(root, "run_args.json"),
		cache: make(map[string]RunArgsEntry),
	}
	if err := store.load(); err != nil {
		return nil, err
	}
	return store, nil
}

// load hydrates the in-memory cache from disk.
func (s *FileRunArgsStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	var entries []RunArgsEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	for _, entry := range entries {
		s.cache[entry.Target] = entry
	}
	return nil
}

// persist writes the cached entries back to disk, sorted by target.
func (s *FileRunArgsStore) persist() error {
	entries := s.sortedLocked()
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o644)
}

func (s *FileRunArgsStore) sortedLocked() []RunArgsEntry {
	entries := make([]RunArgsEntry, 0, len(s.cache))
	for _, entry := range s.cache {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Target < entries[j].Target })
	return entries
}

// Set registers arguments for target, replacing earlier ones.
func (s *FileRunArgsStore) Set(ctx context.Context, target string, args framework.RunArguments) error {
	target = strings.TrimSpace(target)
	if target == "" {
		return errors.New("run target required")
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[target] = RunArgsEntry{
		Target:    target,
		Program:   args.Program,
		VM:        args.VM,
		UpdatedAt: time.Now().UTC(),
	}
	return s.persist()
}

// Get returns the arguments for target.
func (s *FileRunArgsStore) Get(ctx context.Context, target string) (framework.RunArguments, bool, error) {
	select {
	case <-ctx.Done():
		return framework.RunArguments{}, false, ctx.Err()
	default:
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.cache[target]
	if !ok {
		return framework.RunArguments{}, false, nil
	}
	return framework.RunArguments{Program: entry.Program, VM: entry.VM}, true, nil
}

// List returns all entries sorted by target.
func (s *FileRunArgsStore) List(ctx context.Context) ([]RunArgsEntry, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedLocked(), nil
}

// Delete removes the entry for target.
func (s *FileRunArgsStore) Delete(ctx context.Context, target string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cache[target]; !ok {
		return nil
	}
	delete(s.cache, target)
	return s.persist()
}

// Snapshot returns the registry as the lookup table a ProjectContext expects.
func (s *FileRunArgsStore) Snapshot() map[string]framework.RunArguments {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]framework.RunArguments, len(s.cache))
	for target, entry := range s.cache {
		out[target] = framework.RunArguments{Program: entry.Program, VM: entry.VM}
	}
	return out
}
