// Package config handles scriptrunner configuration using Viper.
//
// Configuration sources (in priority order):
//  1. Environment variables (SCRIPTRUNNER_*)
//  2. Config file (<config dir>/scriptrunner/config.yaml)
//  3. Built-in defaults
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/cruft-ninja/script-runner/internal/paths"
)

const (
	// DefaultCatalogPath is the catalog file looked up relative to the working directory.
	DefaultCatalogPath = "scripts.json"
	// DefaultMaxConcurrent is the default concurrency ceiling.
	DefaultMaxConcurrent = 5
	// DefaultInterpreter runs scripts that are not native executables.
	DefaultInterpreter = "bash"
	// DefaultElevationCommand is the privilege elevation wrapper.
	DefaultElevationCommand = "sudo"
	// DefaultSinkMaxLines bounds each in-memory log sink.
	DefaultSinkMaxLines = 10000
	// DefaultHistoryRetention is how long run transcripts are kept by prune.
	DefaultHistoryRetention = 30 * 24 * time.Hour
)

// Config holds the scriptrunner configuration.
type Config struct {
	v    *viper.Viper
	file string
}

// Load reads configuration from all sources.
func Load() *Config {
	v := viper.New()

	v.SetDefault("catalog.path", DefaultCatalogPath)
	v.SetDefault("runner.max_concurrent", DefaultMaxConcurrent)
	v.SetDefault("runner.interpreter", DefaultInterpreter)
	v.SetDefault("runner.elevation_command", DefaultElevationCommand)
	v.SetDefault("sink.max_lines", DefaultSinkMaxLines)
	v.SetDefault("history.enabled", true)
	v.SetDefault("history.dir", "")
	v.SetDefault("history.retention", DefaultHistoryRetention.String())
	v.SetDefault("ui.strip_ansi", true)

	file, err := paths.ConfigFile()
	if err == nil {
		v.SetConfigFile(file)
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("SCRIPTRUNNER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		if err := v.ReadInConfig(); err != nil && !isNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: error reading config file: %v\n", err)
		}
	}

	return &Config{v: v, file: file}
}

func isNotExist(err error) bool {
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		return true
	}

	return os.IsNotExist(err)
}

// Get returns a configuration value.
func (c *Config) Get(key string) interface{} {
	return c.v.Get(key)
}

// GetString returns a configuration value as string.
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt returns a configuration value as int.
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// GetBool returns a configuration value as bool.
func (c *Config) GetBool(key string) bool {
	return c.v.GetBool(key)
}

// Set sets a configuration value and persists it.
func (c *Config) Set(key string, value interface{}) error {
	c.v.Set(key, value)

	if c.file == "" {
		return fmt.Errorf("no config file location available")
	}

	if err := os.MkdirAll(filepath.Dir(c.file), 0o700); err != nil {
		return err
	}

	return c.v.WriteConfigAs(c.file)
}

// All returns all configuration as a map.
func (c *Config) All() map[string]interface{} {
	return c.v.AllSettings()
}

// Keys returns every known key, sorted, in dotted form.
func (c *Config) Keys() []string {
	keys := c.v.AllKeys()
	sort.Strings(keys)

	return keys
}

// File returns the config file path, which may not exist yet.
func (c *Config) File() string {
	return c.file
}

// CatalogPath returns the configured script catalog location.
func (c *Config) CatalogPath() string {
	return c.GetString("catalog.path")
}

// MaxConcurrent returns the configured concurrency ceiling.
func (c *Config) MaxConcurrent() int {
	return c.GetInt("runner.max_concurrent")
}

// Interpreter returns the shell used for non-native scripts.
func (c *Config) Interpreter() string {
	return c.GetString("runner.interpreter")
}

// ElevationCommand returns the privilege elevation wrapper command.
func (c *Config) ElevationCommand() string {
	return c.GetString("runner.elevation_command")
}

// SinkMaxLines returns the per-sink retained line limit.
func (c *Config) SinkMaxLines() int {
	return c.GetInt("sink.max_lines")
}

// HistoryEnabled reports whether run transcripts are persisted.
func (c *Config) HistoryEnabled() bool {
	return c.GetBool("history.enabled")
}

// HistoryDir returns the configured transcript directory, or the XDG default.
func (c *Config) HistoryDir() (string, error) {
	if dir := strings.TrimSpace(c.GetString("history.dir")); dir != "" {
		return dir, nil
	}

	return paths.HistoryDir()
}

// HistoryRetention returns how long transcripts are kept; invalid values fall back to the default.
func (c *Config) HistoryRetention() time.Duration {
	d, err := time.ParseDuration(c.GetString("history.retention"))
	if err != nil || d <= 0 {
		return DefaultHistoryRetention
	}

	return d
}

// StripANSI reports whether escape sequences are removed from displayed output.
func (c *Config) StripANSI() bool {
	return c.GetBool("ui.strip_ansi")
}
