package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileStore persists the configuration as a JSON file.
type FileStore struct {
	path string
}

// NewFileStore returns a store backed by the file at path.
func NewFileStore(path string) *FileStore {
	if path == "" {
		path = DefaultPath
	}
	return &FileStore{path: path}
}

// Path returns the file path.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the configuration. A missing file yields the default
// configuration. An unreadable or corrupt file yields the default
// configuration together with the error.
func (s *FileStore) Load() (Config, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Default(), fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Default(), fmt.Errorf("parse config %s: %w", s.path, err)
	}
	cfg.Normalize()
	return cfg, nil
}

// Save writes the configuration atomically (temp file + rename).
func (s *FileStore) Save(cfg Config) error {
	cfg.Normalize()
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".config-*.json")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("write config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp config: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod config: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}

// ModTime returns the file's modification time, or the zero time when the
// file does not exist.
func (s *FileStore) ModTime() (time.Time, error) {
	fi, err := os.Stat(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("stat config: %w", err)
	}
	return fi.ModTime(), nil
}

// MemoryStore is an in-memory store for tests. Every Save advances the
// modification time by one second.
type MemoryStore struct {
	mu      sync.Mutex
	cfg     Config
	mtime   time.Time
	LoadErr error
	SaveErr error
	Saves   int
}

// NewMemoryStore returns a store holding cfg.
func NewMemoryStore(cfg Config) *MemoryStore {
	cfg.Normalize()
	return &MemoryStore{cfg: cfg.Clone(), mtime: time.Unix(1, 0)}
}

// Load returns a copy of the stored configuration.
func (m *MemoryStore) Load() (Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LoadErr != nil {
		return Default(), m.LoadErr
	}
	return m.cfg.Clone(), nil
}

// Save replaces the stored configuration.
func (m *MemoryStore) Save(cfg Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	cfg.Normalize()
	m.cfg = cfg.Clone()
	m.mtime = m.mtime.Add(time.Second)
	m.Saves++
	return nil
}

// ModTime returns the time of the last Save.
func (m *MemoryStore) ModTime() (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mtime, nil
}

// Touch advances the modification time without changing the content,
// simulating an external edit.
func (m *MemoryStore) Touch(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg.Normalize()
	m.cfg = cfg.Clone()
	m.mtime = m.mtime.Add(time.Second)
}
