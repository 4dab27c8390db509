package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mitchellh/go-homedir"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/viper"
)

// Config is the effective voxcache configuration.
type Config struct {
	DataDir  string         `yaml:"data_dir"`
	Listen   string         `yaml:"listen"`
	Log      LogConfig      `yaml:"log"`
	Polly    PollyConfig    `yaml:"polly"`
	Offline  OfflineConfig  `yaml:"offline"`
	Timeouts TimeoutsConfig `yaml:"timeouts"`
	Store    StoreConfig    `yaml:"store"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type PollyConfig struct {
	Region       string `yaml:"region"`
	Voice        string `yaml:"voice"`
	Engine       string `yaml:"engine"`
	OutputFormat string `yaml:"output_format"`
	SampleRate   int    `yaml:"sample_rate"`
}

type OfflineConfig struct {
	Binary   string `yaml:"binary"`
	Language string `yaml:"language"`
}

type TimeoutsConfig struct {
	Synthesis time.Duration `yaml:"synthesis"`
	Convert   time.Duration `yaml:"convert"`
	Offline   time.Duration `yaml:"offline"`
}

type StoreConfig struct {
	Backend  string      `yaml:"backend"`
	Compress int         `yaml:"compress"`
	Redis    RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr string `yaml:"addr"`
	Key  string `yaml:"key"`
}

// envKeyReplacer maps nested keys to env names, e.g. polly.voice to
// VOXCACHE_POLLY_VOICE.
var envKeyReplacer = strings.NewReplacer(".", "_")

func setConfigDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", defaultDataDir())
	v.SetDefault("listen", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("polly.region", "us-east-1")
	v.SetDefault("polly.voice", "Joanna")
	v.SetDefault("polly.engine", "standard")
	v.SetDefault("polly.output_format", "mp3")
	v.SetDefault("polly.sample_rate", 0)
	v.SetDefault("offline.binary", "pico2wave")
	v.SetDefault("offline.language", "en-US")
	v.SetDefault("timeouts.synthesis", "15s")
	v.SetDefault("timeouts.convert", "10s")
	v.SetDefault("timeouts.offline", "10s")
	v.SetDefault("store.backend", "file")
	v.SetDefault("store.compress", 0)
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.key", "voxcache:voices")
}

// configFromViper reads the effective settings and expands paths.
func configFromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		DataDir: v.GetString("data_dir"),
		Listen:  v.GetString("listen"),
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Polly: PollyConfig{
			Region:       v.GetString("polly.region"),
			Voice:        v.GetString("polly.voice"),
			Engine:       v.GetString("polly.engine"),
			OutputFormat: v.GetString("polly.output_format"),
			SampleRate:   v.GetInt("polly.sample_rate"),
		},
		Offline: OfflineConfig{
			Binary:   v.GetString("offline.binary"),
			Language: v.GetString("offline.language"),
		},
		Timeouts: TimeoutsConfig{
			Synthesis: v.GetDuration("timeouts.synthesis"),
			Convert:   v.GetDuration("timeouts.convert"),
			Offline:   v.GetDuration("timeouts.offline"),
		},
		Store: StoreConfig{
			Backend:  v.GetString("store.backend"),
			Compress: v.GetInt("store.compress"),
			Redis: RedisConfig{
				Addr: v.GetString("store.redis.addr"),
				Key:  v.GetString("store.redis.key"),
			},
		},
	}

	dir, err := homedir.Expand(cfg.DataDir)
	if err != nil {
		return cfg, fmt.Errorf("unable to expand data_dir: %w", err)
	}
	cfg.DataDir = dir
	return cfg, cfg.Validate()
}

// Validate checks ranges and enums.
func (c Config) Validate() error {
	var errs []error
	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir is required"))
	}
	if c.Listen == "" {
		errs = append(errs, errors.New("listen is required"))
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if !oneOf(c.Log.Format, "text", "json") {
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	if c.Polly.Voice == "" {
		errs = append(errs, errors.New("polly.voice is required"))
	}
	if !oneOf(c.Polly.Engine, "standard", "neural") {
		errs = append(errs, fmt.Errorf("polly.engine must be standard or neural, got %q", c.Polly.Engine))
	}
	if !oneOf(c.Polly.OutputFormat, "mp3", "pcm") {
		errs = append(errs, fmt.Errorf("polly.output_format must be mp3 or pcm, got %q", c.Polly.OutputFormat))
	}
	if err := validateSampleRate(c.Polly.OutputFormat, c.Polly.SampleRate); err != nil {
		errs = append(errs, err)
	}
	if c.Offline.Binary == "" {
		errs = append(errs, errors.New("offline.binary is required"))
	}
	for _, t := range []struct {
		name string
		d    time.Duration
	}{
		{"timeouts.synthesis", c.Timeouts.Synthesis},
		{"timeouts.convert", c.Timeouts.Convert},
		{"timeouts.offline", c.Timeouts.Offline},
	} {
		if t.d <= 0 || t.d > 5*time.Minute {
			errs = append(errs, fmt.Errorf("%s must be between 0 and 5m, got %v", t.name, t.d))
		}
	}
	switch c.Store.Backend {
	case "file":
	case "redis":
		if c.Store.Redis.Addr == "" {
			errs = append(errs, errors.New("store.redis.addr is required for the redis backend"))
		}
		if c.Store.Redis.Key == "" {
			errs = append(errs, errors.New("store.redis.key is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.backend must be file or redis, got %q", c.Store.Backend))
	}
	if c.Store.Compress < 0 || c.Store.Compress > 22 {
		errs = append(errs, fmt.Errorf("store.compress must be a zstd level between 0 and 22, got %d", c.Store.Compress))
	}
	return errors.Join(errs...)
}

// Polly accepts 8000 and 16000 for pcm, and additionally 22050 and 24000
// for mp3. Zero leaves the choice to Polly.
func validateSampleRate(format string, rate int) error {
	if rate == 0 {
		return nil
	}
	valid := []int{8000, 16000}
	if format == "mp3" {
		valid = append(valid, 22050, 24000)
	}
	for _, r := range valid {
		if r == rate {
			return nil
		}
	}
	return fmt.Errorf("polly.sample_rate %d is not supported for %s (valid: %v)", rate, format, valid)
}

func oneOf(s string, options ...string) bool {
	for _, o := range options {
		if s == o {
			return true
		}
	}
	return false
}

func defaultDataDir() string {
	dir, err := gap.NewScope(gap.User, "voxcache").DataPath("")
	if err != nil || dir == "" {
		return filepath.Join("~", ".voxcache")
	}
	return dir
}
