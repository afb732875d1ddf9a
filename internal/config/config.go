package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all synlabel configuration.
type Config struct {
	// Dataset files
	Data DataConfig `yaml:"data"`

	// Display asset provider
	Assets AssetsConfig `yaml:"assets"`

	// REST server
	Server ServerConfig `yaml:"server"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// DataConfig locates the persisted artifacts.
type DataConfig struct {
	MasterPath string `yaml:"master_path"` // master dataset
	LogPath    string `yaml:"log_path"`    // transient recovery log
	CardsPath  string `yaml:"cards_path"`  // bulk card catalog
}

// AssetsConfig configures image fetching and caching.
type AssetsConfig struct {
	CacheDB   string `yaml:"cache_db"`
	Timeout   string `yaml:"timeout"`
	UserAgent string `yaml:"user_agent"`
	Offline   bool   `yaml:"offline"` // never hit the network, cache or placeholder only
}

// ServerConfig configures `synlabel serve`.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	File  string `yaml:"file"`  // used while the TUI owns the terminal
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Data: DataConfig{
			MasterPath: "generated_synergies.json",
			LogPath:    "synergies_tmp.json",
			CardsPath:  "cards.json",
		},
		Assets: AssetsConfig{
			CacheDB:   "image-cache.db",
			Timeout:   "30s",
			UserAgent: "synlabel/1.0 (synergy labeler)",
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "synlabel.log",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}

		// Relative data paths are resolved against the config file location.
		cfg.resolveRelative(filepath.Dir(path))
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate checks the required settings.
func (c *Config) Validate() error {
	if c.Data.MasterPath == "" {
		return fmt.Errorf("data.master_path is required")
	}
	if c.Data.LogPath == "" {
		return fmt.Errorf("data.log_path is required")
	}
	if filepath.Clean(c.Data.MasterPath) == filepath.Clean(c.Data.LogPath) {
		return fmt.Errorf("data.log_path must differ from data.master_path")
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown logging.level %q", c.Logging.Level)
	}
	return nil
}

// GetAssetTimeout returns the fetch timeout as a duration.
func (c *Config) GetAssetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Assets.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

func (c *Config) resolveRelative(base string) {
	for _, p := range []*string{&c.Data.MasterPath, &c.Data.LogPath, &c.Data.CardsPath, &c.Assets.CacheDB, &c.Logging.File} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(base, *p)
		}
	}
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if path := os.Getenv("SYNLABEL_MASTER"); path != "" {
		c.Data.MasterPath = path
	}
	if path := os.Getenv("SYNLABEL_LOG"); path != "" {
		c.Data.LogPath = path
	}
	if path := os.Getenv("SYNLABEL_CARDS"); path != "" {
		c.Data.CardsPath = path
	}
	if path := os.Getenv("SYNLABEL_CACHE_DB"); path != "" {
		c.Assets.CacheDB = path
	}
}
