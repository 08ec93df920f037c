// Package config provides configuration management for the key-value store.
// It loads settings from YAML files and environment variables, with
// thread-safe singleton access.
package config

import (
	"log/slog"
	"os"
	"sync"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// Config holds the settings needed to open a store via bitcask.Open.
type Config struct {
	DATA_DIR               string `yaml:"DATA_DIR"`               // Directory holding the store's data files
	MAX_FILE_SIZE          uint64 `yaml:"MAX_FILE_SIZE"`          // Active file rollover threshold, in bytes
	SYNC_ON_PUT            bool   `yaml:"SYNC_ON_PUT"`            // Whether to fsync after every Put/Del
	LOCK_FILE_NAME         string `yaml:"LOCK_FILE_NAME"`         // Store-directory lock filename
	FILE_HANDLE_CACHE_SIZE int    `yaml:"FILE_HANDLE_CACHE_SIZE"` // Bounded LRU size for sealed file handles
}

var (
	appConfig *Config
	once      sync.Once
	initErr   error
)

// LoadConfig reads configuration values from config.yml and optionally from .env file.
// It uses a sync.Once to ensure configuration is loaded only once, even with
// concurrent calls. Environment variables in the YAML file are expanded using
// os.ExpandEnv. Returns the loaded configuration and any error encountered.
func LoadConfig() (*Config, error) {
	once.Do(func() {
		// Load .env file if it exists (optional - no error if missing)
		if err := godotenv.Load(); err != nil {
			slog.Debug("No .env file found or error loading it", "error", err)
		} else {
			slog.Debug(".env file loaded successfully")
		}

		file, err := os.ReadFile("internal/config/config.yml")
		if err != nil {
			initErr = err
			return
		}

		var cfg Config
		err = yaml.Unmarshal([]byte(os.ExpandEnv(string(file))), &cfg)
		if err != nil {
			initErr = err
			return
		}
		appConfig = &cfg
	})
	if initErr != nil {
		return nil, initErr
	}
	return appConfig, initErr
}

// GetConfig returns the singleton configuration instance.
// Panics if configuration has not been loaded yet. This function should
// only be called after LoadConfig has been successfully called.
func GetConfig() *Config {
	if appConfig == nil {
		panic("config not loaded - call LoadConfig() first")
	}
	return appConfig
}
