package token

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// FilePerms restricts the session file to owner-only read/write — it
// carries live bearer tokens.
const FilePerms = 0o600

// DirPerms is used when creating the parent directory.
const DirPerms = 0o700

// Pair is an access/refresh token pair. Refresh is empty when the server
// has exhausted the refresh chain and issued an access-only response.
type Pair struct {
	Access  string `yaml:"access"`
	Refresh string `yaml:"refresh,omitempty"`
}

// sessionData is the on-disk YAML shape:
// environment -> tenant (pnum) -> kind -> Pair.
type sessionData map[string]map[string]map[string]Pair

// Store persists token pairs keyed by (environment, tenant, kind) to a
// single YAML file, written atomically (temp file + rename) with
// owner-only permissions.
type Store struct {
	path string

	mu   sync.Mutex
	data sessionData
}

// NewStore creates a Store backed by the file at path. The file is read
// lazily on first access; a missing file is treated as an empty session.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the session file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) load() (sessionData, error) {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return sessionData{}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("token: reading session file: %w", err)
	}

	var data sessionData
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("token: parsing session file: %w", err)
	}

	if data == nil {
		data = sessionData{}
	}

	return data, nil
}

// save writes data atomically: a temp file in the same directory (so
// rename(2) is guaranteed same-filesystem), fsynced before the rename so a
// crash between close and rename cannot leave an empty file at path.
func (s *Store) save(data sessionData) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, DirPerms); err != nil {
		return fmt.Errorf("token: creating session directory: %w", err)
	}

	out, err := yaml.Marshal(data)
	if err != nil {
		return fmt.Errorf("token: encoding session: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("token: creating temp session file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("token: setting session file permissions: %w", err)
	}

	if _, err := tmp.Write(out); err != nil {
		tmp.Close()
		return fmt.Errorf("token: writing session file: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("token: syncing session file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("token: closing session file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("token: renaming session file: %w", err)
	}

	success = true

	return nil
}

// Get returns the token pair for (env, tenant, kind). ok is false if no
// pair is stored.
func (s *Store) Get(env, tenant, kind string) (pair Pair, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return Pair{}, false, err
	}

	byTenant, ok := data[env]
	if !ok {
		return Pair{}, false, nil
	}

	byKind, ok := byTenant[tenant]
	if !ok {
		return Pair{}, false, nil
	}

	pair, ok = byKind[kind]

	return pair, ok, nil
}

// Update replaces the pair for (env, tenant, kind), creating intermediate
// maps as needed, and flushes to disk before returning — so a concurrent
// reader never observes a refreshed token that wasn't yet persisted.
func (s *Store) Update(env, tenant, kind string, pair Pair) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return err
	}

	if data[env] == nil {
		data[env] = map[string]map[string]Pair{}
	}

	if data[env][tenant] == nil {
		data[env][tenant] = map[string]Pair{}
	}

	data[env][tenant][kind] = pair

	return s.save(data)
}

// All returns a snapshot of every persisted pair, keyed by env, tenant,
// then kind, for diagnostic listing (`tacl session`).
func (s *Store) All() (map[string]map[string]map[string]Pair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.load()
}

// Clear resets the store to an empty session, for all environments.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.save(sessionData{})
}
