// Package config layers guardian settings from defaults, the global
// config file, PG_ environment variables, and the per-project
// .project-ai/config.toml.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/project-guardian/guardian/internal/kb"
	"github.com/project-guardian/guardian/internal/lockfile"
)

// Config holds the effective settings for one invocation.
type Config struct {
	// LockTimeout bounds how long file lock acquisition may block.
	LockTimeout time.Duration

	// SearchTopK is the default number of similarity search results.
	SearchTopK int

	// SemanticModel overrides the model used for semantic reranking.
	// Empty means the reranker's default.
	SemanticModel string

	// DashboardPort is the 'pg serve' listen port.
	DashboardPort int

	// UpdateInterval is how often the watch daemon runs incremental
	// update passes.
	UpdateInterval time.Duration

	// CacheMaxSize caps the in-memory context cache entry count.
	CacheMaxSize int
}

// fileConfig mirrors the per-project config.toml layout.
type fileConfig struct {
	LockTimeoutSeconds    int    `toml:"lock_timeout_seconds"`
	SearchTopK            int    `toml:"search_top_k"`
	SemanticModel         string `toml:"semantic_model"`
	DashboardPort         int    `toml:"dashboard_port"`
	UpdateIntervalSeconds int    `toml:"update_interval_seconds"`
	CacheMaxSize          int    `toml:"cache_max_size"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		LockTimeout:    10 * time.Second,
		SearchTopK:     3,
		DashboardPort:  8820,
		UpdateInterval: 30 * time.Second,
		CacheMaxSize:   100,
	}
}

// Load resolves settings for the given knowledge base. k may be nil for
// commands that run before a knowledge base exists; the per-project
// layer is skipped then.
func Load(k *kb.KB) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PG")
	v.AutomaticEnv()

	def := Default()
	v.SetDefault("lock_timeout_seconds", int(def.LockTimeout/time.Second))
	v.SetDefault("search_top_k", def.SearchTopK)
	v.SetDefault("semantic_model", "")
	v.SetDefault("dashboard_port", def.DashboardPort)
	v.SetDefault("update_interval_seconds", int(def.UpdateInterval/time.Second))
	v.SetDefault("cache_max_size", def.CacheMaxSize)

	v.SetConfigName("config")
	v.SetConfigType("toml")
	if home, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, "guardian"))
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading global config: %w", err)
		}
	}

	cfg := &Config{
		LockTimeout:    time.Duration(v.GetInt("lock_timeout_seconds")) * time.Second,
		SearchTopK:     v.GetInt("search_top_k"),
		SemanticModel:  v.GetString("semantic_model"),
		DashboardPort:  v.GetInt("dashboard_port"),
		UpdateInterval: time.Duration(v.GetInt("update_interval_seconds")) * time.Second,
		CacheMaxSize:   v.GetInt("cache_max_size"),
	}

	if k != nil {
		if err := cfg.applyProjectFile(k.ConfigPath()); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// applyProjectFile overlays the per-project config.toml. A missing file
// is fine; a malformed one is an error the user should see.
func (c *Config) applyProjectFile(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	if fc.LockTimeoutSeconds > 0 {
		c.LockTimeout = time.Duration(fc.LockTimeoutSeconds) * time.Second
	}
	if fc.SearchTopK > 0 {
		c.SearchTopK = fc.SearchTopK
	}
	if fc.SemanticModel != "" {
		c.SemanticModel = fc.SemanticModel
	}
	if fc.DashboardPort > 0 {
		c.DashboardPort = fc.DashboardPort
	}
	if fc.UpdateIntervalSeconds > 0 {
		c.UpdateInterval = time.Duration(fc.UpdateIntervalSeconds) * time.Second
	}
	if fc.CacheMaxSize > 0 {
		c.CacheMaxSize = fc.CacheMaxSize
	}

	return nil
}

// LockOptions returns the file lock options implied by the config.
func (c *Config) LockOptions() lockfile.Options {
	return lockfile.Options{Timeout: c.LockTimeout}
}

// NewLogger returns a logger writing to the rotating guardian.log under
// the knowledge base directory. Used by the watch daemon and dashboard.
func NewLogger(k *kb.KB, prefix string) *log.Logger {
	return log.New(&lumberjack.Logger{
		Filename:   k.LogPath(),
		MaxSize:    5, // megabytes
		MaxBackups: 3,
		MaxAge:     30, // days
	}, prefix, log.LstdFlags)
}
