package store

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
)

// notifyConfig is the persisted document: entity name to destination channel
// id, one mapping for nodes and one for guests.
type notifyConfig struct {
	Nodes map[string]string `json:"nodes"`
	VMs   map[string]string `json:"vms"`
}

// NotifyStore holds the notify-channel registrations. Every mutation is
// persisted immediately.
type NotifyStore struct {
	path string

	mu  sync.RWMutex
	cfg notifyConfig
}

// NewNotifyStore creates a store backed by the given file.
func NewNotifyStore(path string) *NotifyStore {
	return &NotifyStore{
		path: path,
		cfg:  notifyConfig{Nodes: make(map[string]string), VMs: make(map[string]string)},
	}
}

// Load reads the notify file; a missing file leaves both mappings empty.
func (s *NotifyStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cfg = notifyConfig{Nodes: make(map[string]string), VMs: make(map[string]string)}
	if s.path == "" {
		return errors.New("notify store path not set")
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
	var cfg notifyConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return err
	}
	if cfg.Nodes == nil {
		cfg.Nodes = make(map[string]string)
	}
	if cfg.VMs == nil {
		cfg.VMs = make(map[string]string)
	}
	s.cfg = cfg
	return nil
}

// RegisterNode maps a node name to a destination channel and persists.
func (s *NotifyStore) RegisterNode(name, channelID string) error {
	return s.register(name, channelID, true)
}

// RegisterVM maps a guest name to a destination channel and persists.
func (s *NotifyStore) RegisterVM(name, channelID string) error {
	return s.register(name, channelID, false)
}

func (s *NotifyStore) register(name, channelID string, node bool) error {
	if name == "" || channelID == "" {
		return errors.New("entity name and channel id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if node {
		s.cfg.Nodes[name] = channelID
	} else {
		s.cfg.VMs[name] = channelID
	}
	return s.saveLocked()
}

// UnregisterNode removes a node registration and persists. It reports
// whether the name was registered.
func (s *NotifyStore) UnregisterNode(name string) (bool, error) {
	return s.unregister(name, true)
}

// UnregisterVM removes a guest registration and persists.
func (s *NotifyStore) UnregisterVM(name string) (bool, error) {
	return s.unregister(name, false)
}

func (s *NotifyStore) unregister(name string, node bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.cfg.VMs
	if node {
		m = s.cfg.Nodes
	}
	if _, ok := m[name]; !ok {
		return false, nil
	}
	delete(m, name)
	return true, s.saveLocked()
}

// NodeChannel returns the destination channel for a node, if registered.
func (s *NotifyStore) NodeChannel(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.cfg.Nodes[name]
	return ch, ok
}

// VMChannel returns the destination channel for a guest, if registered.
func (s *NotifyStore) VMChannel(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.cfg.VMs[name]
	return ch, ok
}

// Entries returns copies of both mappings for display.
func (s *NotifyStore) Entries() (nodes, vms map[string]string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	nodes = make(map[string]string, len(s.cfg.Nodes))
	for k, v := range s.cfg.Nodes {
		nodes[k] = v
	}
	vms = make(map[string]string, len(s.cfg.VMs))
	for k, v := range s.cfg.VMs {
		vms[k] = v
	}
	return nodes, vms
}

// saveLocked rewrites the notify document. Caller must hold s.mu.
func (s *NotifyStore) saveLocked() error {
	data, err := json.MarshalIndent(s.cfg, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
