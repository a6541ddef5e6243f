// Package store provides the JSON-file-backed stores for per-entity history
// series and notify-channel configuration. Both follow the same pattern:
// Load treats a missing file as the empty default, Save rewrites the whole
// document through a temp file + rename, and getters return copies.
package store

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"pvebot/internal/models"
)

// DefaultHistoryLimit bounds each entity's series. At the default 60s poll
// interval this retains roughly one day of samples.
const DefaultHistoryLimit = 1440

// HistoryStore keeps an in-memory map of entity name to ordered history
// entries, mirrored to a JSON file after every poll cycle.
type HistoryStore struct {
	path  string
	limit int

	mu     sync.RWMutex
	series map[string][]models.HistoryEntry
}

// NewHistoryStore creates a store backed by the given file. A limit <= 0
// falls back to DefaultHistoryLimit.
func NewHistoryStore(path string, limit int) *HistoryStore {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &HistoryStore{
		path:   path,
		limit:  limit,
		series: make(map[string][]models.HistoryEntry),
	}
}

// Load reads the history file; a missing file leaves the store empty.
func (s *HistoryStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.series = make(map[string][]models.HistoryEntry)
	if s.path == "" {
		return errors.New("history store path not set")
	}
	if _, err := os.Stat(s.path); errors.Is(err, os.ErrNotExist) {
		_ = os.MkdirAll(filepath.Dir(s.path), 0o755)
		return nil
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, &s.series)
}

// Append adds one entry to the named entity's series, evicting the oldest
// entry once the bound is reached.
func (s *HistoryStore) Append(name string, entry models.HistoryEntry) {
	if name == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	seq := append(s.series[name], entry)
	if len(seq) > s.limit {
		seq = seq[len(seq)-s.limit:]
	}
	s.series[name] = seq
}

// Series returns a copy of the named entity's entries, oldest first.
func (s *HistoryStore) Series(name string) []models.HistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seq, ok := s.series[name]
	if !ok {
		return nil
	}
	out := make([]models.HistoryEntry, len(seq))
	copy(out, seq)
	return out
}

// Len reports the number of entries recorded for the named entity.
func (s *HistoryStore) Len(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.series[name])
}

// EntityNames returns the sorted names of every entity with history.
func (s *HistoryStore) EntityNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.series))
	for name := range s.series {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Save rewrites the full history document on disk.
func (s *HistoryStore) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, err := json.MarshalIndent(s.series, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
