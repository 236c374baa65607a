// Package config loads configuration from the environment (optionally
// seeded from a .env file) and from an optional alerts.yaml.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/dmorales/panaldealz/pkg/alert"
	"github.com/dmorales/panaldealz/pkg/store"
)

const defaultMinDropPercent = 10

// Config is the full runtime configuration for both binaries.
type Config struct {
	Environment string
	LogLevel    string

	StoreDriver string
	DatabaseURL string

	HTTPAddr    string
	SnapshotDir string

	UserAgent      string
	RequestTimeout time.Duration
	RequestDelay   time.Duration
	MaxPages       int

	AlertsFile string
	Alerts     AlertsConfig
}

// AlertsConfig is the alerts.yaml layout.
type AlertsConfig struct {
	MinDropPercent float64            `yaml:"minDropPercent"`
	Sinks          []alert.SinkConfig `yaml:"sinks"`
}

// Load reads configuration from the environment. A .env file is used
// when present; a missing one is normal.
func Load(logger *zap.Logger) (*Config, error) {
	if err := godotenv.Load(); err == nil {
		logger.Info("loaded .env file")
	}

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		StoreDriver: getEnv("STORE_DRIVER", ""),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		HTTPAddr:    getEnv("HTTP_ADDR", ":8080"),
		SnapshotDir: getEnv("SNAPSHOT_DIR", "data"),
		UserAgent:   getEnv("SCRAPER_USER_AGENT", ""),
		AlertsFile:  getEnv("ALERTS_FILE", "alerts.yaml"),
	}

	// Without an explicit driver, the presence of a DSN decides.
	if cfg.StoreDriver == "" {
		if cfg.DatabaseURL != "" {
			cfg.StoreDriver = store.DriverPostgres
		} else {
			cfg.StoreDriver = store.DriverMemory
		}
	}

	var err error
	if cfg.RequestTimeout, err = getDuration("REQUEST_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.RequestDelay, err = getDuration("REQUEST_DELAY", 2*time.Second); err != nil {
		return nil, err
	}
	if cfg.MaxPages, err = getInt("MAX_PAGES", 20); err != nil {
		return nil, err
	}

	cfg.Alerts, err = loadAlerts(cfg.AlertsFile, logger)
	if err != nil {
		return nil, err
	}

	logger.Info("configuration loaded",
		zap.String("environment", cfg.Environment),
		zap.String("store_driver", cfg.StoreDriver),
		zap.Int("alert_sinks", len(cfg.Alerts.Sinks)))
	return cfg, nil
}

// loadAlerts parses alerts.yaml. A missing file means alerting is
// limited to the console.
func loadAlerts(path string, logger *zap.Logger) (AlertsConfig, error) {
	cfg := AlertsConfig{
		MinDropPercent: defaultMinDropPercent,
		Sinks:          []alert.SinkConfig{{Type: "console"}},
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("reading %s: %w", path, err)
	}

	var parsed AlertsConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return cfg, fmt.Errorf("parsing %s: %w", path, err)
	}
	if parsed.MinDropPercent <= 0 {
		parsed.MinDropPercent = defaultMinDropPercent
	}
	// a file that only tunes the threshold keeps the console default
	if len(parsed.Sinks) == 0 {
		parsed.Sinks = []alert.SinkConfig{{Type: "console"}}
	}
	for _, s := range parsed.Sinks {
		if s.Type == "" {
			return cfg, fmt.Errorf("%s: sink without a type", path)
		}
	}

	logger.Info("alert configuration loaded", zap.String("path", path))
	return parsed, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return d, nil
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return n, nil
}
