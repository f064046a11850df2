// Package config provides the configuration system for the voiceshield CLI.
//
// Configuration is stored under os.UserConfigDir()/voiceshield/, or under
// $VOICESHIELD_CONFIG_DIR when set:
//
//	~/Library/Application Support/voiceshield/   (macOS)
//	~/.config/voiceshield/                       (Linux)
//	%AppData%/voiceshield/                       (Windows)
//
// Layout:
//
//	voiceshield/
//	├── current-context          # plain text: name of current context
//	├── contexts/
//	│   ├── dev/
//	│   │   ├── run.yaml         # default optimization parameters
//	│   │   ├── oracle.yaml      # embedding oracle
//	│   │   ├── storage.yaml     # artifact store
//	│   │   └── ledger.yaml      # run ledger
//	│   └── prod/
//	│       └── ...
//	└── data/                    # default artifact and ledger location
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const (
	// appDir is the directory name under os.UserConfigDir().
	appDir = "voiceshield"

	// EnvDir overrides the configuration directory.
	EnvDir = "VOICESHIELD_CONFIG_DIR"

	// currentContextFile stores the name of the current context.
	currentContextFile = "current-context"

	// contextsDir is the subdirectory holding all context directories.
	contextsDir = "contexts"

	// dataDir holds artifacts and ledgers of contexts that configure none.
	dataDir = "data"

	// defaultDataName names the data directory used without a context.
	defaultDataName = "default"
)

// Context lookup errors.
var (
	ErrContextNotFound = errors.New("config: context not found")
	ErrContextExists   = errors.New("config: context already exists")
)

// Config is the root of the configuration tree and the name of the
// current context.
type Config struct {
	Dir            string
	CurrentContext string
}

// Load reads the configuration rooted at $VOICESHIELD_CONFIG_DIR, or at
// os.UserConfigDir()/voiceshield.
func Load() (*Config, error) {
	dir := os.Getenv(EnvDir)
	if dir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("config: locate user config dir: %w", err)
		}
		dir = filepath.Join(base, appDir)
	}
	return LoadFrom(dir)
}

// LoadFrom reads the configuration rooted at dir. A missing tree is an
// empty configuration.
func LoadFrom(dir string) (*Config, error) {
	cfg := &Config{Dir: dir}
	if data, err := os.ReadFile(filepath.Join(dir, currentContextFile)); err == nil {
		cfg.CurrentContext = strings.TrimSpace(string(data))
	}
	return cfg, nil
}

// ValidateContextName rejects names that are not a single plain path
// element.
func ValidateContextName(name string) error {
	switch {
	case name == "":
		return errors.New("config: empty context name")
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("config: context name %q contains a path separator", name)
	case strings.HasPrefix(name, "."):
		return fmt.Errorf("config: context name %q starts with '.'", name)
	}
	return nil
}

// ContextsDir returns the path to the contexts directory.
func (c *Config) ContextsDir() string {
	return filepath.Join(c.Dir, contextsDir)
}

// ContextDir returns the directory path for a named context.
func (c *Config) ContextDir(name string) string {
	return filepath.Join(c.Dir, contextsDir, name)
}

// DataDir returns the default data directory for a context; an empty
// name selects the directory used when no context is active.
func (c *Config) DataDir(name string) string {
	if name == "" {
		name = defaultDataName
	}
	return filepath.Join(c.Dir, dataDir, name)
}

// ExistingContext validates name and returns its directory, or an error
// wrapping ErrContextNotFound.
func (c *Config) ExistingContext(name string) (string, error) {
	if err := ValidateContextName(name); err != nil {
		return "", err
	}
	dir := c.ContextDir(name)
	fi, err := os.Stat(dir)
	if err != nil || !fi.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrContextNotFound, name)
	}
	return dir, nil
}

// ResolveContext returns the name and directory of the named context, or
// of the current one when name is empty. With neither, both are empty.
func (c *Config) ResolveContext(name string) (string, string, error) {
	if name == "" {
		name = c.CurrentContext
	}
	if name == "" {
		return "", "", nil
	}
	dir, err := c.ExistingContext(name)
	if err != nil {
		return "", "", err
	}
	return name, dir, nil
}

// ListContexts returns the context names in directory order.
func (c *Config) ListContexts() ([]string, error) {
	entries, err := os.ReadDir(c.ContextsDir())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: list contexts: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// AddContext creates an empty context.
func (c *Config) AddContext(name string) error {
	if err := ValidateContextName(name); err != nil {
		return err
	}
	dir := c.ContextDir(name)
	if _, err := os.Stat(dir); err == nil {
		return fmt.Errorf("%w: %s", ErrContextExists, name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("config: create context %s: %w", name, err)
	}
	return nil
}

// DeleteContext removes a context and its service files, and clears it
// as the current context. Its data directory is kept.
func (c *Config) DeleteContext(name string) error {
	dir, err := c.ExistingContext(name)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("config: delete context %s: %w", name, err)
	}
	if c.CurrentContext != name {
		return nil
	}
	c.CurrentContext = ""
	return c.saveCurrentContext()
}

// UseContext makes name the current context.
func (c *Config) UseContext(name string) error {
	if _, err := c.ExistingContext(name); err != nil {
		return err
	}
	c.CurrentContext = name
	return c.saveCurrentContext()
}

func (c *Config) saveCurrentContext() error {
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return fmt.Errorf("config: create %s: %w", c.Dir, err)
	}
	return os.WriteFile(filepath.Join(c.Dir, currentContextFile), []byte(c.CurrentContext+"\n"), 0o644)
}
