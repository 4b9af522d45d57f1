// Package config loads server configuration from an optional YAML file with
// environment variable overrides. Env always wins so deployments can keep
// secrets out of the file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"coldroute/internal/model"
)

type OracleConfig struct {
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	TimeoutSec  int     `yaml:"timeout_sec"`
	CallsPerSec float64 `yaml:"calls_per_sec"`
	Mock        bool    `yaml:"mock"`
}

type LimitConfig struct {
	Ceiling   int `yaml:"ceiling"`
	WindowSec int `yaml:"window_sec"`
}

type PlanDefaults struct {
	Strategy     string      `yaml:"strategy"`
	ToleranceMin int         `yaml:"tolerance_min"`
	MaxTripHours float64     `yaml:"max_trip_hours"`
	Depot        model.Depot `yaml:"depot"`
}

type Config struct {
	Addr        string       `yaml:"addr"`
	DatabaseURL string       `yaml:"database_url"`
	RedisURL    string       `yaml:"redis_url"`
	Oracle      OracleConfig `yaml:"oracle"`
	Limit       LimitConfig  `yaml:"limit"`
	Plan        PlanDefaults `yaml:"plan"`
}

func defaults() Config {
	return Config{
		Addr: ":8080",
		Oracle: OracleConfig{
			Model:       "gpt-4o-mini",
			TimeoutSec:  60,
			CallsPerSec: 1,
		},
		Limit: LimitConfig{Ceiling: 30, WindowSec: 60},
		Plan: PlanDefaults{
			Strategy:     model.StrategyJIT,
			ToleranceMin: 15,
			MaxTripHours: 10,
			Depot:        model.Depot{Name: "Depot"},
		},
	}
}

// Load reads path (if non-empty and present) and applies env overrides on
// top of the defaults.
func Load(path string) (Config, error) {
	cfg := defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Addr = ":" + v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.RedisURL = v
	}
	if v := os.Getenv("ORACLE_BASE_URL"); v != "" {
		cfg.Oracle.BaseURL = v
	}
	if v := os.Getenv("ORACLE_API_KEY"); v != "" {
		cfg.Oracle.APIKey = v
	} else if v := os.Getenv("OPENAI_API_KEY"); v != "" && cfg.Oracle.APIKey == "" {
		cfg.Oracle.APIKey = v
	}
	if v := os.Getenv("ORACLE_MODEL"); v != "" {
		cfg.Oracle.Model = v
	}
	if v := os.Getenv("ORACLE_MOCK"); v == "true" || v == "1" {
		cfg.Oracle.Mock = true
	}
	if n, ok := envInt("RATE_CEILING"); ok {
		cfg.Limit.Ceiling = n
	}
	if n, ok := envInt("RATE_WINDOW_SEC"); ok {
		cfg.Limit.WindowSec = n
	}
	if v := os.Getenv("PLAN_STRATEGY"); v != "" {
		cfg.Plan.Strategy = v
	}
	if n, ok := envInt("PLAN_TOLERANCE_MIN"); ok {
		cfg.Plan.ToleranceMin = n
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// OracleTimeout converts the configured timeout to a duration.
func (c Config) OracleTimeout() time.Duration {
	if c.Oracle.TimeoutSec <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.Oracle.TimeoutSec) * time.Second
}

// LimitWindow converts the configured window to a duration.
func (c Config) LimitWindow() time.Duration {
	if c.Limit.WindowSec <= 0 {
		return time.Minute
	}
	return time.Duration(c.Limit.WindowSec) * time.Second
}
