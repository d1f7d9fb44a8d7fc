package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	BackendFile   = "file"
	BackendBadger = "badger"
	BackendMemory = "memory"
)

type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Cache   CacheConfig   `yaml:"cache"`
	Log     LogConfig     `yaml:"log"`
}

type StorageConfig struct {
	Path           string `yaml:"path"`
	Backend        string `yaml:"backend"`         // file, badger or memory
	ReadChunkSize  int    `yaml:"read_chunk_size"` // bytes per store read when loading a block
	BlockRows      int    `yaml:"block_rows"`      // max rows per data block written by a flush
	FlushThreshold int    `yaml:"flush_threshold"` // staged rows that trigger a flush, 0 = manual
}

type CacheConfig struct {
	Enabled bool `yaml:"enabled"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Path:           "spatial_data",
			Backend:        BackendFile,
			ReadChunkSize:  1024,
			BlockRows:      4096,
			FlushThreshold: 0,
		},
		Cache: CacheConfig{
			Enabled: true,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath == "" {
		for _, p := range []string{"configs/spatialdb.yaml", "spatialdb.yaml"} {
			data, err := os.ReadFile(p)
			if err == nil {
				if err := yaml.Unmarshal(data, cfg); err != nil {
					return cfg, err
				}
				applyDefaults(cfg)
				return cfg, cfg.Validate()
			}
		}
		applyDefaults(cfg)
		return cfg, nil // no file found: use defaults
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return cfg, err
	}

	applyDefaults(cfg)
	return cfg, cfg.Validate()
}

func applyDefaults(cfg *Config) {
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = BackendFile
	}
	if cfg.Storage.ReadChunkSize <= 0 {
		cfg.Storage.ReadChunkSize = 1024
	}
	if cfg.Storage.BlockRows <= 0 {
		cfg.Storage.BlockRows = 4096
	}
	if cfg.Storage.FlushThreshold < 0 {
		cfg.Storage.FlushThreshold = 0
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendFile, BackendBadger, BackendMemory:
	default:
		return fmt.Errorf("config: unknown storage backend %q", c.Storage.Backend)
	}
	if c.Storage.Backend != BackendMemory && c.Storage.Path == "" {
		return fmt.Errorf("config: storage.path is required for the %s backend", c.Storage.Backend)
	}
	return nil
}
