package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/tidekv/tidekv/lsm"
)

// EngineConfig holds the storage engine's tuning constants.
type EngineConfig struct {
	PerMemSizeLimit    int `yaml:"per_mem_size_limit"`
	TotalMemSizeLimit  int `yaml:"total_mem_size_limit"`
	LevelRatio         int `yaml:"level_ratio"`
	BlockSize          int `yaml:"block_size"`
	BlockCacheCapacity int `yaml:"block_cache_capacity"`
	BlockCacheK        int `yaml:"block_cache_k"`
}

// Options converts the configuration into engine options.
func (c EngineConfig) Options() lsm.Options {
	return lsm.Options{
		PerMemSizeLimit:    c.PerMemSizeLimit,
		TotalMemSizeLimit:  c.TotalMemSizeLimit,
		LevelRatio:         c.LevelRatio,
		BlockSize:          c.BlockSize,
		BlockCacheCapacity: c.BlockCacheCapacity,
		BlockCacheK:        c.BlockCacheK,
	}
}

// LogConfig configures structured logging. An empty Dir logs to stderr;
// otherwise log files rotate in Dir.
type LogConfig struct {
	Dir        string `yaml:"dir"`
	Level      string `yaml:"level"`
	MaxSizeMB  int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age"`
}

// Config is the process configuration for the server.
type Config struct {
	DataDir    string       `yaml:"data_dir"`
	ListenAddr string       `yaml:"listen_addr"`
	AdminAddr  string       `yaml:"admin_addr"`
	Engine     EngineConfig `yaml:"engine"`
	Log        LogConfig    `yaml:"log"`
}

// Default returns the stock configuration.
func Default() Config {
	opts := lsm.DefaultOptions()
	return Config{
		DataDir:    "data",
		ListenAddr: ":6380",
		AdminAddr:  ":8390",
		Engine: EngineConfig{
			PerMemSizeLimit:    opts.PerMemSizeLimit,
			TotalMemSizeLimit:  opts.TotalMemSizeLimit,
			LevelRatio:         opts.LevelRatio,
			BlockSize:          opts.BlockSize,
			BlockCacheCapacity: opts.BlockCacheCapacity,
			BlockCacheK:        opts.BlockCacheK,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 10,
			MaxAgeDays: 30,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file, and
// environment overrides. A .env file in the working directory is folded
// into the environment first.
func Load(path string) (Config, error) {
	// missing .env is fine
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config: %w", err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("TIDEKV_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("TIDEKV_LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("TIDEKV_ADMIN_ADDR"); v != "" {
		c.AdminAddr = v
	}
	if v := os.Getenv("TIDEKV_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("TIDEKV_LOG_DIR"); v != "" {
		c.Log.Dir = v
	}
}
