package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the planner service configuration
type Config struct {
	App     AppConfig     `mapstructure:"app"`
	Log     LogConfig     `mapstructure:"log"`
	NATS    NATSConfig    `mapstructure:"nats"`
	History HistoryConfig `mapstructure:"history"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// AppConfig names the service
type AppConfig struct {
	Name string `mapstructure:"name"`
}

// LogConfig selects the zap logger preset
type LogConfig struct {
	Development bool `mapstructure:"development"`
}

// NATSConfig holds the NATS connection settings
type NATSConfig struct {
	URLs            []string      `mapstructure:"urls"`
	MaxReconnects   int           `mapstructure:"max_reconnects"`
	ReconnectWait   time.Duration `mapstructure:"reconnect_wait"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	ConnectAttempts int           `mapstructure:"connect_attempts"`
}

// HistoryConfig locates the layout history database and its retention
type HistoryConfig struct {
	DBPath          string        `mapstructure:"db_path"`
	Retention       time.Duration `mapstructure:"retention"`
	CleanupSchedule string        `mapstructure:"cleanup_schedule"`
}

// MetricsConfig sets how often metrics are published
type MetricsConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "goal-planner")
	v.SetDefault("log.development", false)
	v.SetDefault("nats.urls", []string{"nats://127.0.0.1:4222"})
	v.SetDefault("nats.max_reconnects", 10)
	v.SetDefault("nats.reconnect_wait", 2*time.Second)
	v.SetDefault("nats.connect_timeout", 5*time.Second)
	v.SetDefault("nats.connect_attempts", 5)
	v.SetDefault("history.db_path", "layout_history.db")
	v.SetDefault("history.retention", 30*24*time.Hour)
	v.SetDefault("history.cleanup_schedule", "0 0 3 * * *")
	v.SetDefault("metrics.interval", 30*time.Second)
}

// Load reads config.yaml from path (or ./config and . when path is empty),
// applies GOALPLAN_* environment overrides and fills defaults. A missing
// config file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if path != "" {
		v.AddConfigPath(path)
	} else {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("GOALPLAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the service cannot run with
func (c *Config) Validate() error {
	if len(c.NATS.URLs) == 0 {
		return errors.New("config: nats.urls must not be empty")
	}
	if c.NATS.ConnectAttempts < 1 {
		return errors.New("config: nats.connect_attempts must be at least 1")
	}
	if c.History.DBPath == "" {
		return errors.New("config: history.db_path must be set")
	}
	if c.History.Retention <= 0 {
		return errors.New("config: history.retention must be positive")
	}
	if c.Metrics.Interval <= 0 {
		return errors.New("config: metrics.interval must be positive")
	}
	return nil
}
