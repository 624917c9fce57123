// Package config loads shellscribe configuration from a YAML file with
// defaults and SHELLSCRIBE_* environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "500ms" parse.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds all shellscribe configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Store    StoreConfig    `yaml:"store"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Terminal TerminalConfig `yaml:"terminal"`
}

// ServerConfig configures the HTTP read API and websocket endpoint.
type ServerConfig struct {
	Addr         string   `yaml:"addr"`
	ReadTimeout  Duration `yaml:"read_timeout"`
	WriteTimeout Duration `yaml:"write_timeout"`
}

// StoreConfig configures the authoritative SQLite store and the optional
// Postgres mirror. An empty MirrorDSN disables mirroring.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`
	MirrorDSN    string `yaml:"mirror_dsn"`
}

// IngestConfig configures the session-file watcher.
type IngestConfig struct {
	WatchDir    string   `yaml:"watch_dir"`
	DebounceDur Duration `yaml:"debounce"`
}

// TerminalConfig configures live terminals. Backend selects the responder:
// "echo" answers with a canned acknowledgment and never spawns a process.
type TerminalConfig struct {
	Backend     string `yaml:"backend"`
	DefaultCols int    `yaml:"default_cols"`
	DefaultRows int    `yaml:"default_rows"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         ":8700",
			ReadTimeout:  Duration(15 * time.Second),
			WriteTimeout: Duration(15 * time.Second),
		},
		Store: StoreConfig{
			DatabasePath: "shellscribe.db",
		},
		Ingest: IngestConfig{
			WatchDir:    "sessions",
			DebounceDur: Duration(500 * time.Millisecond),
		},
		Terminal: TerminalConfig{
			Backend:     "echo",
			DefaultCols: 80,
			DefaultRows: 24,
		},
	}
}

// Load reads the YAML file at path on top of defaults, then applies
// environment overrides. A missing file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("SHELLSCRIBE_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("SHELLSCRIBE_DB"); v != "" {
		c.Store.DatabasePath = v
	}
	if v := os.Getenv("SHELLSCRIBE_MIRROR_DSN"); v != "" {
		c.Store.MirrorDSN = v
	}
	if v := os.Getenv("SHELLSCRIBE_WATCH_DIR"); v != "" {
		c.Ingest.WatchDir = v
	}
	if v := os.Getenv("SHELLSCRIBE_TERMINAL_BACKEND"); v != "" {
		c.Terminal.Backend = v
	}
	if v := os.Getenv("SHELLSCRIBE_TERMINAL_COLS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Terminal.DefaultCols = n
		}
	}
	if v := os.Getenv("SHELLSCRIBE_TERMINAL_ROWS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Terminal.DefaultRows = n
		}
	}
}

func (c *Config) validate() error {
	switch c.Terminal.Backend {
	case "echo", "silent":
	default:
		return fmt.Errorf("unknown terminal backend %q (expected echo or silent)", c.Terminal.Backend)
	}
	if c.Store.DatabasePath == "" {
		return fmt.Errorf("store.database_path must not be empty")
	}
	return nil
}
