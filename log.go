package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
)

// envConfig holds process-level settings read straight from the environment.
type envConfig struct {
	LogFile       string `env:"VOXCACHE_LOG_FILE"`
	ConfigHome    string `env:"VOXCACHE_CONFIG_HOME"`
	XDGConfigHome string `env:"XDG_CONFIG_HOME"`
}

// setupLog sends logs to stderr, or to VOXCACHE_LOG_FILE when set. The
// returned func closes the log file.
func setupLog() (func() error, error) {
	cfg, err := env.ParseAs[envConfig]()
	if err != nil {
		return nil, fmt.Errorf("error parsing environment: %w", err)
	}

	log.SetReportTimestamp(true)
	if cfg.LogFile == "" {
		log.SetOutput(os.Stderr)
		return func() error { return nil }, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
		return nil, fmt.Errorf("unable to create log directory: %w", err)
	}
	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("unable to open log file: %w", err)
	}
	log.SetOutput(f)
	return f.Close, nil
}

// applyLogConfig sets the level and formatter on the default logger.
func applyLogConfig(cfg LogConfig, debug bool) {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		level = log.InfoLevel
	}
	if debug {
		level = log.DebugLevel
	}
	log.SetLevel(level)

	if cfg.Format == "json" {
		log.SetFormatter(log.JSONFormatter)
	} else {
		log.SetFormatter(log.TextFormatter)
	}
}
