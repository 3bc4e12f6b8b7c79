package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"

	"gmab/internal/errdefs"
)

const (
	// EnvConfigDir overrides the configuration directory
	EnvConfigDir = "GMAB_CONFIG_DIR"

	GeneralFile   = "config.json"
	ProvidersFile = "providers.json"

	// DefaultLifetimeMinutes applies when config.json does not set one
	DefaultLifetimeMinutes = 60
)

// Provider names known to gmab
const (
	ProviderAWS          = "aws"
	ProviderDigitalOcean = "digitalocean"
	ProviderGCP          = "gcp"
	ProviderHetzner      = "hetzner"
	ProviderLinode       = "linode"
	ProviderYandexCloud  = "yandex"
)

// ProviderNames lists every supported provider in display order.
var ProviderNames = []string{
	ProviderAWS,
	ProviderDigitalOcean,
	ProviderGCP,
	ProviderHetzner,
	ProviderLinode,
	ProviderYandexCloud,
}

// IsKnownProvider reports whether name is a supported provider.
func IsKnownProvider(name string) bool {
	for _, n := range ProviderNames {
		if n == name {
			return true
		}
	}
	return false
}

// General contains settings shared by every provider (config.json)
type General struct {
	SSHKeyPath             string `json:"ssh_key_path"`
	DefaultLifetimeMinutes int    `json:"default_lifetime_minutes"`
	DefaultProvider        string `json:"default_provider"`
}

// Config is the configuration of one gmab invocation
type Config struct {
	// Dir is the directory both files were read from
	Dir string

	General   General
	Providers map[string]ProviderConfig

	generalFound bool
}

// Dir returns the configuration directory: override, then $GMAB_CONFIG_DIR,
// then $XDG_CONFIG_HOME/gmab, then ~/.config/gmab. Windows uses the roaming
// AppData directory and falls back to ~/.gmab.
func Dir(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	if dir := os.Getenv(EnvConfigDir); dir != "" {
		return dir, nil
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); filepath.IsAbs(xdg) {
		return filepath.Join(xdg, "gmab"), nil
	}
	if runtime.GOOS == "windows" {
		if base, err := os.UserConfigDir(); err == nil {
			return filepath.Join(base, "gmab"), nil
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate config directory: %w", err)
	}
	if runtime.GOOS == "windows" {
		return filepath.Join(home, ".gmab"), nil
	}
	return filepath.Join(home, ".config", "gmab"), nil
}

// Load reads config.json and providers.json from dir.
// A missing config.json means gmab has not been configured yet.
func Load(dir string) (*Config, error) {
	cfg, err := LoadOrEmpty(dir)
	if err != nil {
		return nil, err
	}
	if !cfg.generalFound {
		return nil, errdefs.ConfigMissing(errdefs.ConfigureHint(""), "gmab is not configured (no %s in %s)", GeneralFile, dir)
	}
	return cfg, nil
}

// LoadOrEmpty is Load without the configured check; absent files yield empty values.
func LoadOrEmpty(dir string) (*Config, error) {
	cfg := &Config{
		Dir:       dir,
		Providers: map[string]ProviderConfig{},
	}

	found, err := readJSON(filepath.Join(dir, GeneralFile), &cfg.General)
	if err != nil {
		return nil, err
	}
	cfg.generalFound = found

	if _, err := readJSON(filepath.Join(dir, ProvidersFile), &cfg.Providers); err != nil {
		return nil, err
	}
	if cfg.Providers == nil {
		cfg.Providers = map[string]ProviderConfig{}
	}

	return cfg, nil
}

// Configured reports whether config.json exists.
func (c *Config) Configured() bool {
	return c.generalFound
}

// LifetimeMinutes returns the configured default lifetime, or DefaultLifetimeMinutes.
func (c *Config) LifetimeMinutes() int {
	if c.General.DefaultLifetimeMinutes > 0 {
		return c.General.DefaultLifetimeMinutes
	}
	return DefaultLifetimeMinutes
}

// Provider returns the stored entry for name.
func (c *Config) Provider(name string) (ProviderConfig, bool) {
	pc, ok := c.Providers[name]
	return pc, ok
}

// ProviderNames returns the names of configured providers, sorted.
func (c *Config) ProviderNames() []string {
	names := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GeneralPath returns the path of config.json.
func (c *Config) GeneralPath() string {
	return filepath.Join(c.Dir, GeneralFile)
}

// ProvidersPath returns the path of providers.json.
func (c *Config) ProvidersPath() string {
	return filepath.Join(c.Dir, ProvidersFile)
}

// Save writes both files. They hold credentials, so permissions are owner-only.
func (c *Config) Save() error {
	if err := os.MkdirAll(c.Dir, 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := writeJSON(c.GeneralPath(), c.General); err != nil {
		return err
	}
	if err := writeJSON(c.ProvidersPath(), c.Providers); err != nil {
		return err
	}
	c.generalFound = true
	return nil
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func readJSON(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read config file: %w", err)
	}

	data = bytes.TrimPrefix(data, utf8BOM)
	if len(bytes.TrimSpace(data)) == 0 {
		return true, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, errdefs.Validation("failed to parse config file %s: %v", path, err)
	}
	return true, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
