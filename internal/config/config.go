package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default location of the YAML config file.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML with environment
// overrides. The config file is optional: the container deployment
// injects environment variables only.
type FileConfig struct {
	Port                    string   `yaml:"port"`
	LogLevel                string   `yaml:"logLevel"`
	DatabasePath            string   `yaml:"databasePath"`
	RedisAddr               string   `yaml:"redisAddr"`
	RedisPassword           string   `yaml:"redisPassword"`
	WriteRateLimitPerMinute int      `yaml:"writeRateLimitPerMinute"`
	DefaultPageSize         int      `yaml:"defaultPageSize"`
	MaxPageSize             int      `yaml:"maxPageSize"`
	TrustedProxyCIDRs       []string `yaml:"trustedProxyCidrs"`
}

func defaults() FileConfig {
	return FileConfig{
		Port:            "8000",
		LogLevel:        "info",
		DatabasePath:    "/app/data/car_market.db",
		DefaultPageSize: 20,
		MaxPageSize:     100,
	}
}

// Load reads config from path (defaults to config.yaml), then applies
// environment overrides. A missing file is not an error.
func Load(path string) (FileConfig, error) {
	cfg := defaults()
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	if v := os.Getenv("CAR_MARKET_PORT"); v != "" {
		cfg.Port = strings.TrimSpace(v)
	}
	if v := os.Getenv("CAR_MARKET_LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.TrimSpace(v)
	}
	if v := os.Getenv("CAR_MARKET_DB_PATH"); v != "" {
		cfg.DatabasePath = strings.TrimSpace(v)
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = strings.TrimSpace(v)
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("CAR_MARKET_WRITE_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.WriteRateLimitPerMinute = n
		}
	}
	if v := os.Getenv("CAR_MARKET_DEFAULT_PAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.DefaultPageSize = n
		}
	}
	if v := os.Getenv("CAR_MARKET_MAX_PAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.MaxPageSize = n
		}
	}
	if v := os.Getenv("CAR_MARKET_TRUSTED_PROXY_CIDRS"); v != "" {
		cfg.TrustedProxyCIDRs = splitCSV(v)
	}

	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if strings.TrimSpace(cfg.Port) == "" {
		return errors.New("config: port is required (set in config.yaml or CAR_MARKET_PORT)")
	}
	if strings.TrimSpace(cfg.DatabasePath) == "" {
		return errors.New("config: databasePath is required (set in config.yaml or CAR_MARKET_DB_PATH)")
	}
	if cfg.WriteRateLimitPerMinute < 0 {
		return errors.New("config: writeRateLimitPerMinute must be >= 0")
	}
	if cfg.DefaultPageSize <= 0 || cfg.MaxPageSize <= 0 {
		return errors.New("config: page sizes must be > 0")
	}
	if cfg.DefaultPageSize > cfg.MaxPageSize {
		return errors.New("config: defaultPageSize must be <= maxPageSize")
	}
	return nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
