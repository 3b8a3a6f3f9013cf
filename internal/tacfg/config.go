package tacfg

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FilePerms restricts the config file to owner read/write, the same
// invariant applied to the session file: writable only by the owning
// user.
const FilePerms = 0o600

// DirPerms is applied to any directory Config creates on first save.
const DirPerms = 0o700

// Config is `{env: {pnum: api_key}}`, the one piece of persisted state
// the core accepts from outside rather than managing itself.
type Config struct {
	path string
	data map[string]map[string]string
}

// Load reads path, treating a missing file as an empty config.
func Load(path string) (*Config, error) {
	cfg := &Config{path: path, data: map[string]map[string]string{}}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}

		return nil, fmt.Errorf("tacfg: reading config: %w", err)
	}

	if err := yaml.Unmarshal(raw, &cfg.data); err != nil {
		return nil, fmt.Errorf("tacfg: parsing config: %w", err)
	}

	if cfg.data == nil {
		cfg.data = map[string]map[string]string{}
	}

	return cfg, nil
}

// APIKey returns the configured key for (env, pnum).
func (c *Config) APIKey(env, pnum string) (string, bool) {
	tenants, ok := c.data[env]
	if !ok {
		return "", false
	}

	key, ok := tenants[pnum]
	return key, ok
}

// SetAPIKey records an API key for (env, pnum) and persists the config
// atomically: write to a temp file in the same directory, fsync, rename
// over the target. Matches the durability pattern internal/token.Store
// uses for the session file.
func (c *Config) SetAPIKey(env, pnum, apiKey string) error {
	if c.data[env] == nil {
		c.data[env] = map[string]string{}
	}

	c.data[env][pnum] = apiKey

	return c.save()
}

// Path returns the config file path.
func (c *Config) Path() string {
	return c.path
}

func (c *Config) save() (err error) {
	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, DirPerms); err != nil {
		return fmt.Errorf("tacfg: creating config dir: %w", err)
	}

	raw, err := yaml.Marshal(c.data)
	if err != nil {
		return fmt.Errorf("tacfg: encoding config: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("tacfg: creating temp config: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if chmodErr := tmp.Chmod(FilePerms); chmodErr != nil {
		tmp.Close()
		return fmt.Errorf("tacfg: setting config permissions: %w", chmodErr)
	}

	if _, writeErr := tmp.Write(raw); writeErr != nil {
		tmp.Close()
		return fmt.Errorf("tacfg: writing config: %w", writeErr)
	}

	if syncErr := tmp.Sync(); syncErr != nil {
		tmp.Close()
		return fmt.Errorf("tacfg: syncing config: %w", syncErr)
	}

	if closeErr := tmp.Close(); closeErr != nil {
		return fmt.Errorf("tacfg: closing temp config: %w", closeErr)
	}

	if renameErr := os.Rename(tmpPath, c.path); renameErr != nil {
		return fmt.Errorf("tacfg: installing config: %w", renameErr)
	}

	success = true

	return nil
}
