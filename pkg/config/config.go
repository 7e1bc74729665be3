// Package config manages application-wide settings and directory structures.
// It follows XDG specifications for storing cache, configuration, and state.
package config

import (
	"path/filepath"

	"github.com/adrg/xdg"
)

const appName = "assetload"

// ReadOnly defines the read-only interface for Config.
// Immutable
type ReadOnly interface {
	GetCacheDir() string
	GetConfigDir() string
	GetStateDir() string
	GetBundleDir() string
	GetSettingsPath() string
	// Settings returns the user settings, loading settings.json on first use.
	Settings() (Settings, error)
	// CatalogPath resolves the configured catalog path. Relative paths are
	// relative to the config dir.
	CatalogPath() (string, error)
	Store() *SettingsStore
	Freeze()
	Checkout() Writable
}

// Writable defines the writable interface for Config.
// Mutable
type Writable interface {
	ReadOnly
	SetCacheDir(string)
	SetConfigDir(string)
	SetStateDir(string)
}

// Config holds the base directories and settings store.
// Mutable
type Config struct {
	cacheDir  string
	configDir string
	stateDir  string

	bundleDir    string
	settingsPath string

	store *SettingsStore

	frozen bool
	edited bool
}

var _ ReadOnly = (*Config)(nil)
var _ Writable = (*Config)(nil)

func (c *Config) GetCacheDir() string     { return c.cacheDir }
func (c *Config) GetConfigDir() string    { return c.configDir }
func (c *Config) GetStateDir() string     { return c.stateDir }
func (c *Config) GetBundleDir() string    { return c.bundleDir }
func (c *Config) GetSettingsPath() string { return c.settingsPath }
func (c *Config) Store() *SettingsStore   { return c.store }

func (c *Config) Settings() (Settings, error) {
	return c.store.Get()
}

func (c *Config) CatalogPath() (string, error) {
	s, err := c.store.Get()
	if err != nil {
		return "", err
	}
	if s.Catalog == "" || filepath.IsAbs(s.Catalog) {
		return s.Catalog, nil
	}
	return filepath.Join(c.configDir, s.Catalog), nil
}

func (c *Config) SetCacheDir(s string) {
	if c.frozen {
		panic("cannot modify frozen config")
	}
	c.cacheDir = s
	c.updateDerived()
}

func (c *Config) SetConfigDir(s string) {
	if c.frozen {
		panic("cannot modify frozen config")
	}
	c.configDir = s
	c.updateDerived()
}

func (c *Config) SetStateDir(s string) {
	if c.frozen {
		panic("cannot modify frozen config")
	}
	c.stateDir = s
	c.updateDerived()
}

func (c *Config) Freeze() {
	c.frozen = true
}

func (c *Config) Checkout() Writable {
	if c.frozen {
		panic("cannot checkout from frozen config")
	}
	if c.edited {
		panic("config already checked out")
	}
	c.edited = true
	return c
}

func (c *Config) updateDerived() {
	c.bundleDir = filepath.Join(c.cacheDir, "bundles")
	c.settingsPath = filepath.Join(c.configDir, "settings.json")
	c.store = NewSettingsStore(c.settingsPath)
}

// Init initializes the configuration using XDG base directories.
func Init() (ReadOnly, error) {
	return NewAt(
		filepath.Join(xdg.CacheHome, appName),
		filepath.Join(xdg.ConfigHome, appName),
		filepath.Join(xdg.StateHome, appName),
	), nil
}

// NewAt builds a configuration rooted at explicit directories.
func NewAt(cacheDir, configDir, stateDir string) *Config {
	c := &Config{
		cacheDir:  cacheDir,
		configDir: configDir,
		stateDir:  stateDir,
	}
	c.updateDerived()
	return c
}
