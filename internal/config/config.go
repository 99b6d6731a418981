// Package config loads controller configuration from a TOML file, with
// defaults that work against a local editor out of the box.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Multicast MulticastConfig `toml:"multicast"`
	Editor    EditorConfig    `toml:"editor"`
	Watcher   WatcherConfig   `toml:"watcher"`
	Level     LevelConfig     `toml:"level"`
	Debug     DebugConfig     `toml:"debug"`
}

type MulticastConfig struct {
	Group          string `toml:"group"`
	Port           int    `toml:"port"`
	BindAddress    string `toml:"bind_address"`
	PortRangeStart int    `toml:"port_range_start"`
	PortRangeEnd   int    `toml:"port_range_end"`
}

type EditorConfig struct {
	Binary         string   `toml:"binary"`
	LogDir         string   `toml:"log_dir"`
	ExtraArgs      []string `toml:"extra_args"`
	SkipBuildCheck bool     `toml:"skip_build_check"`
}

type WatcherConfig struct {
	PollIntervalMS int `toml:"poll_interval_ms"`
}

type LevelConfig struct {
	TrailingSegment bool `toml:"trailing_segment"`
	NamePrefix      bool `toml:"name_prefix"`
	UntitledFamily  bool `toml:"untitled_family"`
}

type DebugConfig struct {
	HTTPPort int `toml:"http_port"` // 0 disables the debug server
}

// Default returns the built-in configuration.
func Default() *Config {
	logDir := os.TempDir()
	if dir, err := ConfigDir(); err == nil {
		logDir = filepath.Join(dir, "logs")
	}
	return &Config{
		Multicast: MulticastConfig{
			Group:          "239.0.0.1",
			Port:           6766,
			BindAddress:    "0.0.0.0",
			PortRangeStart: 6767,
			PortRangeEnd:   6866,
		},
		Editor: EditorConfig{
			LogDir: logDir,
		},
		Watcher: WatcherConfig{
			PollIntervalMS: 500,
		},
		Level: LevelConfig{
			TrailingSegment: true,
			NamePrefix:      true,
			UntitledFamily:  true,
		},
	}
}

// Load reads a TOML config file, overlaying the defaults. path == "" means
// the default location; a missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		dir, err := ConfigDir()
		if err != nil {
			return cfg, nil
		}
		path = filepath.Join(dir, "config.toml")
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// ConfigDir returns ~/.uemcp, creating it if needed.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".uemcp")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// InstancesDir returns the shared instance registry directory.
func InstancesDir() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	instances := filepath.Join(dir, "instances")
	if err := os.MkdirAll(instances, 0o755); err != nil {
		return "", err
	}
	return instances, nil
}
