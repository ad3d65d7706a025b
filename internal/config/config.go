package config

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Bind        string `yaml:"bind"`
		Port        string `yaml:"port"`
		PublicURL   string `yaml:"public_url"`
		JoinPort    string `yaml:"join_port"`
		JoinPath    string `yaml:"join_path"`
		CORSOrigins string `yaml:"cors_origins"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		CacheTTL           string `yaml:"cache_ttl"`
		TickInterval       string `yaml:"tick_interval"`
		FinishOnLastExpiry bool   `yaml:"finish_on_last_expiry"`
		OutboxLimit        int    `yaml:"outbox_limit"`
		DefaultSet         string `yaml:"default_set"`
	} `yaml:"quiz"`
	Log struct {
		Level       string `yaml:"level"`
		Development bool   `yaml:"development"`
	} `yaml:"log"`
}

// Default is the configuration used when no file exists.
func Default() Config {
	cfg := Config{}
	cfg.Server.Bind = "0.0.0.0"
	cfg.Server.Port = "8000"
	cfg.Server.JoinPort = "3000"
	cfg.Server.JoinPath = "/join"
	cfg.Server.CORSOrigins = "*"
	cfg.Redis.TTL = "24h"
	cfg.Quiz.CacheTTL = "10m"
	cfg.Quiz.TickInterval = "1s"
	cfg.Quiz.OutboxLimit = 256
	cfg.Quiz.DefaultSet = "sample"
	cfg.Log.Level = "info"
	return cfg
}

// Load reads YAML config from path over the defaults. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
