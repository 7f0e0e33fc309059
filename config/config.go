// Package config handles starmatch.toml configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// FileName is the configuration file looked up by FindAndLoad.
const FileName = "starmatch.toml"

// Config is the full starmatch configuration.
type Config struct {
	Database DatabaseConfig `toml:"database"`
	Sandbox  SandboxConfig  `toml:"sandbox"`
	Audit    AuditConfig    `toml:"audit"`
	Server   ServerConfig   `toml:"server"`

	// Dir is the directory the file was loaded from (set at load time).
	Dir string `toml:"-"`
}

// DatabaseConfig locates the pattern store.
type DatabaseConfig struct {
	Path string `toml:"path"`
}

// SandboxConfig bounds script execution.
type SandboxConfig struct {
	TimeoutMS int `toml:"timeout-ms"`
}

// Timeout returns the configured script budget as a duration.
func (c SandboxConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// AuditConfig controls the evaluation history recorder.
type AuditConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// ServerConfig controls the RPC surface.
type ServerConfig struct {
	// Listen is a TCP address; empty means serve on stdio.
	Listen string `toml:"listen"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	dataDir := ""
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".starmatch")
	}
	return &Config{
		Database: DatabaseConfig{Path: filepath.Join(dataDir, "patterns.db")},
		Sandbox:  SandboxConfig{TimeoutMS: 100},
		Audit:    AuditConfig{Path: filepath.Join(dataDir, "audit.db")},
	}
}

// Load parses starmatch.toml from the given directory.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	c := Default()
	if err := toml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	c.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	if c.Sandbox.TimeoutMS <= 0 {
		c.Sandbox.TimeoutMS = 100
	}
	return c, nil
}

// FindAndLoad walks up from startDir looking for starmatch.toml, loading the
// first one found. Returns defaults when no file exists anywhere up the tree.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, FileName)); err == nil {
			return Load(dir)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return Default(), nil
		}
		dir = parent
	}
}
