// Package store persists per-plugin configuration overrides as a single
// JSON document so they survive daemon restarts. The in-memory registry
// remains the source of truth; the store is a best-effort collaborator.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const fileVersion = "1.0"

type overridesFile struct {
	Version string                    `json:"version"`
	Plugins map[string]map[string]any `json:"plugins"`
}

// OverrideStore reads and writes the overrides document at a fixed path.
type OverrideStore struct {
	path string
	mu   sync.Mutex
	data overridesFile
}

// Open loads the overrides document, creating the parent directory if
// needed. A missing file yields an empty store.
func Open(path string) (*OverrideStore, error) {
	s := &OverrideStore{
		path: path,
		data: overridesFile{Version: fileVersion, Plugins: make(map[string]map[string]any)},
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create override store directory: %w", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}

	var file overridesFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse override store: %w", err)
	}
	if file.Plugins != nil {
		s.data = file
	}
	return s, nil
}

// Put records the full override set for one plugin and saves the document.
func (s *OverrideStore) Put(plugin string, overrides map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(overrides) == 0 {
		delete(s.data.Plugins, plugin)
	} else {
		copied := make(map[string]any, len(overrides))
		for key, value := range overrides {
			copied[key] = value
		}
		s.data.Plugins[plugin] = copied
	}
	return s.saveLocked()
}

// Get returns the stored overrides for one plugin, or nil.
func (s *OverrideStore) Get(plugin string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.data.Plugins[plugin]
	if !ok {
		return nil
	}
	out := make(map[string]any, len(stored))
	for key, value := range stored {
		out[key] = value
	}
	return out
}

// All returns every stored override set keyed by plugin name.
func (s *OverrideStore) All() map[string]map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]map[string]any, len(s.data.Plugins))
	for plugin, overrides := range s.data.Plugins {
		copied := make(map[string]any, len(overrides))
		for key, value := range overrides {
			copied[key] = value
		}
		out[plugin] = copied
	}
	return out
}

// saveLocked writes the document atomically: temp file then rename.
func (s *OverrideStore) saveLocked() error {
	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal override store: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temporary file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}
	return nil
}
