package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Duration is a time.Duration stored as a string such as "30s".
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Settings are the user-editable options read from settings.json.
type Settings struct {
	// Catalog is the catalog file (.json or .star).
	Catalog string `json:"catalog"`
	// Query is a jq expression selecting resource entries from a JSON catalog.
	Query       string   `json:"query,omitempty"`
	HTTPTimeout Duration `json:"http_timeout"`
	// JoinPolicy is "drop" or "wait".
	JoinPolicy string `json:"join_policy"`
	// RetryPolicy is "request" or "explicit".
	RetryPolicy string `json:"retry_policy"`
	StripHTML   bool   `json:"strip_html"`
}

func DefaultSettings() *Settings {
	return &Settings{
		Catalog:     "catalog.json",
		HTTPTimeout: Duration(30 * time.Second),
		JoinPolicy:  "drop",
		RetryPolicy: "request",
	}
}

// SettingsStore lazily loads settings.json and writes it back atomically.
// Fields missing from the file keep their defaults.
// Mutable
type SettingsStore struct {
	path            string
	data            *Settings
	loaded          bool
	dirty           bool
	createIfMissing bool
	mu              sync.RWMutex
}

// StoreOption configures a SettingsStore.
type StoreOption func(*SettingsStore)

// WithCreateIfMissing controls whether a missing file yields defaults.
// Default is true.
func WithCreateIfMissing(create bool) StoreOption {
	return func(s *SettingsStore) {
		s.createIfMissing = create
	}
}

func NewSettingsStore(path string, opts ...StoreOption) *SettingsStore {
	s := &SettingsStore{path: path, createIfMissing: true}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SettingsStore) Path() string { return s.path }

// Get returns a copy of the settings, loading them lazily if needed.
func (s *SettingsStore) Get() (Settings, error) {
	s.mu.RLock()
	if s.loaded {
		defer s.mu.RUnlock()
		return *s.data, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check after acquiring write lock
	if s.loaded {
		return *s.data, nil
	}
	if err := s.loadLocked(); err != nil {
		return Settings{}, err
	}
	return *s.data, nil
}

// Modify applies fn to the settings and marks them dirty.
func (s *SettingsStore) Modify(fn func(*Settings) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		if err := s.loadLocked(); err != nil {
			return err
		}
	}
	if err := fn(s.data); err != nil {
		return err
	}
	s.dirty = true
	return nil
}

// Save writes the settings to disk if they changed.
func (s *SettingsStore) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty {
		return nil
	}
	if !s.loaded {
		return errors.New("cannot save: settings not loaded")
	}
	return s.saveLocked()
}

// Reload discards unsaved changes and reads the file again.
func (s *SettingsStore) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.loaded = false
	s.dirty = false
	s.data = nil
	return s.loadLocked()
}

func (s *SettingsStore) IsDirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

func (s *SettingsStore) IsLoaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// Must be called with write lock held.
func (s *SettingsStore) loadLocked() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) && s.createIfMissing {
			s.data = DefaultSettings()
			s.loaded = true
			s.dirty = true
			return nil
		}
		if os.IsNotExist(err) {
			return fmt.Errorf("settings not found: %w", err)
		}
		return fmt.Errorf("failed to read settings: %w", err)
	}

	result := DefaultSettings()
	if err := json.Unmarshal(data, result); err != nil {
		return fmt.Errorf("failed to parse %s: %w", s.path, err)
	}
	s.data = result
	s.loaded = true
	s.dirty = false
	return nil
}

// Must be called with write lock held.
func (s *SettingsStore) saveLocked() error {
	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Atomic write: write to temp file, then rename
	tempFile := s.path + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tempFile, s.path); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	s.dirty = false
	return nil
}
