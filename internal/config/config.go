package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Config is the dispatcher's environment-driven configuration.
type Config struct {
	DBPath       string        // HIVE_DB_PATH
	TickInterval time.Duration // HIVE_TICK_INTERVAL
	LogLevel     slog.Level    // HIVE_LOG_LEVEL: debug|info|warn|error
	RandSeed     uint64        // HIVE_RAND_SEED, 0 means seed from time
}

// Load reads configuration from the environment, applying defaults.
func Load() (Config, error) {
	cfg := Config{
		DBPath:       "hive.db",
		TickInterval: 30 * time.Second,
		LogLevel:     slog.LevelInfo,
	}

	if v := os.Getenv("HIVE_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("HIVE_TICK_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("parse HIVE_TICK_INTERVAL: %w", err)
		}
		if d <= 0 {
			return cfg, fmt.Errorf("HIVE_TICK_INTERVAL must be positive, got %s", d)
		}
		cfg.TickInterval = d
	}
	if v := os.Getenv("HIVE_LOG_LEVEL"); v != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(v)); err != nil {
			return cfg, fmt.Errorf("parse HIVE_LOG_LEVEL: %w", err)
		}
		cfg.LogLevel = level
	}
	if v := os.Getenv("HIVE_RAND_SEED"); v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return cfg, fmt.Errorf("parse HIVE_RAND_SEED: %w", err)
		}
		cfg.RandSeed = seed
	}

	return cfg, nil
}
