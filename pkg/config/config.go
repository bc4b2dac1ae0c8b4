package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/loadgen/pkg/log"
)

// Config is the immutable record produced by Load. Nothing mutates it after
// Load returns; callers pass it by value or by pointer-to-const-after-load.
type Config struct {
	UserServiceURL    string        `yaml:"user_service_url"`
	ChatServiceURL    string        `yaml:"chat_service_url"`
	PostsServiceURL   string        `yaml:"posts_service_url"`
	ProfileServiceURL string        `yaml:"profile_service_url"`
	ServiceTimeout    time.Duration `yaml:"service_timeout"`

	ChaosErrorRate float64 `yaml:"chaos_error_rate"`
	ChaosDelayRate float64 `yaml:"chaos_delay_rate"`
	ChaosMaxDelay  int     `yaml:"chaos_max_delay_ms"`

	WebPort     int `yaml:"web_port"`
	MetricsPort int `yaml:"metrics_port"`
}

// fileConfig mirrors Config's YAML shape but with pointer fields, so a field
// absent from the file leaves the corresponding default untouched.
type fileConfig struct {
	UserServiceURL    *string  `yaml:"user_service_url"`
	ChatServiceURL    *string  `yaml:"chat_service_url"`
	PostsServiceURL   *string  `yaml:"posts_service_url"`
	ProfileServiceURL *string  `yaml:"profile_service_url"`
	ServiceTimeout    *int     `yaml:"service_timeout_seconds"`
	ChaosErrorRate    *float64 `yaml:"chaos_error_rate"`
	ChaosDelayRate    *float64 `yaml:"chaos_delay_rate"`
	ChaosMaxDelay     *int     `yaml:"chaos_max_delay_ms"`
	WebPort           *int     `yaml:"web_port"`
	MetricsPort       *int     `yaml:"metrics_port"`
}

// Defaults returns the built-in configuration used when no file or
// environment override is present.
func Defaults() Config {
	return Config{
		UserServiceURL:    "http://localhost:3001",
		ChatServiceURL:    "http://localhost:3002",
		PostsServiceURL:   "http://localhost:3003",
		ProfileServiceURL: "http://localhost:3004",
		ServiceTimeout:    10 * time.Second,
		ChaosErrorRate:    0,
		ChaosDelayRate:    0,
		ChaosMaxDelay:     0,
		WebPort:           8080,
		MetricsPort:       9090,
	}
}

// Load builds a Config from defaults, an optional YAML file at path, and
// environment overrides, in that order. A missing or malformed file is
// silently skipped (logged at warn level) — the loader never fails in
// practice, since every field has a default.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		applyFile(&cfg, path)
	}
	applyEnv(&cfg)

	return &cfg, nil
}

func applyFile(cfg *Config, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Logger.Warn().Err(err).Str("path", path).Msg("config: could not read file, using defaults")
		}
		return
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		log.Logger.Warn().Err(err).Str("path", path).Msg("config: could not parse file, using defaults")
		return
	}

	if fc.UserServiceURL != nil {
		cfg.UserServiceURL = *fc.UserServiceURL
	}
	if fc.ChatServiceURL != nil {
		cfg.ChatServiceURL = *fc.ChatServiceURL
	}
	if fc.PostsServiceURL != nil {
		cfg.PostsServiceURL = *fc.PostsServiceURL
	}
	if fc.ProfileServiceURL != nil {
		cfg.ProfileServiceURL = *fc.ProfileServiceURL
	}
	if fc.ServiceTimeout != nil {
		cfg.ServiceTimeout = time.Duration(*fc.ServiceTimeout) * time.Second
	}
	if fc.ChaosErrorRate != nil {
		cfg.ChaosErrorRate = *fc.ChaosErrorRate
	}
	if fc.ChaosDelayRate != nil {
		cfg.ChaosDelayRate = *fc.ChaosDelayRate
	}
	if fc.ChaosMaxDelay != nil {
		cfg.ChaosMaxDelay = *fc.ChaosMaxDelay
	}
	if fc.WebPort != nil {
		cfg.WebPort = *fc.WebPort
	}
	if fc.MetricsPort != nil {
		cfg.MetricsPort = *fc.MetricsPort
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("USER_SERVICE_URL"); v != "" {
		cfg.UserServiceURL = v
	}
	if v := os.Getenv("CHAT_SERVICE_URL"); v != "" {
		cfg.ChatServiceURL = v
	}
	if v := os.Getenv("POSTS_SERVICE_URL"); v != "" {
		cfg.PostsServiceURL = v
	}
	if v := os.Getenv("PROFILE_SERVICE_URL"); v != "" {
		cfg.ProfileServiceURL = v
	}
	if v := os.Getenv("CHAOS_ERROR_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.ChaosErrorRate = f
		}
	}
	if v := os.Getenv("CHAOS_DELAY_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.ChaosDelayRate = f
		}
	}
	if v := os.Getenv("CHAOS_MAX_DELAY_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ChaosMaxDelay = n
		}
	}
	if v := os.Getenv("WEB_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.WebPort = n
		}
	}
	if v := os.Getenv("METRICS_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MetricsPort = n
		}
	}
}
