package config

import (
	"fmt"
	"os"
	"sync"
)

// Store memoizes the configuration for the life of the process. Get loads
// and validates on first use; Clear forgets the cached value so the next Get
// reloads from disk.
type Store struct {
	mu     sync.Mutex
	path   string
	getenv func(string) string
	cfg    *Config
}

// NewStore returns a Store reading from path with overrides from os.Getenv.
func NewStore(path string) *Store {
	return &Store{path: path, getenv: os.Getenv}
}

// NewStaticStore wraps an already-built configuration. Clear is a no-op for
// such stores since there is no file to reload from.
func NewStaticStore(cfg *Config) *Store {
	return &Store{cfg: cfg}
}

// Path returns the file the store loads from.
func (s *Store) Path() string {
	return s.path
}

// Get returns the validated configuration, loading it on first call.
func (s *Store) Get() (*Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg != nil {
		return s.cfg, nil
	}

	cfg, err := Load(s.path)
	if err != nil {
		return nil, err
	}
	if s.getenv != nil {
		cfg.ApplyEnv(s.getenv)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", s.path, err)
	}

	s.cfg = cfg
	return cfg, nil
}

// Clear drops the memoized configuration.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.path == "" {
		return
	}
	s.cfg = nil
}
