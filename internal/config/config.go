package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // console | json
	} `yaml:"log"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Host struct {
		BaseURL      string `yaml:"base_url"`
		SiteCourseID int64  `yaml:"site_course_id"`
	} `yaml:"host"`

	CoursesFile          string `yaml:"courses_file"`
	CoursesReloadSeconds int    `yaml:"courses_reload_seconds"`

	Scheduler struct {
		IntervalMinutes   int  `yaml:"interval_minutes"`
		RunOnStart        bool `yaml:"run_on_start"`
		RunTimeoutMinutes int  `yaml:"run_timeout_minutes"`
		LockEnabled       bool `yaml:"lock_enabled"`
		LockTTLSeconds    int  `yaml:"lock_ttl_seconds"`
	} `yaml:"scheduler"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Notifier struct {
		Backend string `yaml:"backend"` // telegram | kafka | log

		Telegram struct {
			BotToken     string  `yaml:"bot_token"`
			RatePerSec   float64 `yaml:"rate_per_sec"`
			Burst        int     `yaml:"burst"`
			MaxRetries   int     `yaml:"max_retries"`
			AdminChatIDs []int64 `yaml:"admin_chat_ids"`
		} `yaml:"telegram"`

		Kafka struct {
			Brokers []string `yaml:"brokers"`
			Topic   string   `yaml:"topic"`
		} `yaml:"kafka"`
	} `yaml:"notifier"`

	Audit struct {
		Enabled       bool   `yaml:"enabled"`
		ExportDir     string `yaml:"export_dir"`
		RetentionDays int    `yaml:"retention_days"`
		ExportOnStart bool   `yaml:"export_on_start"`
	} `yaml:"audit"`

	Backup BackupConfig `yaml:"backup"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	API struct {
		Enabled bool   `yaml:"enabled"`
		Address string `yaml:"address"`
		APIKey  string `yaml:"api_key"`
	} `yaml:"api"`
}

// BackupConfig controls periodic copies of the database file.
type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	IntervalHours int    `yaml:"interval_hours"`
	StoragePath   string `yaml:"storage_path"`
	RetentionDays int    `yaml:"retention_days"`
}

// Load reads the YAML config at path. A .env file next to the working directory is
// loaded first so ${VAR} placeholders in the YAML can reference it.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	// Missing .env is fine, variables may come from the environment.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create database dir: %w", err)
	}

	return cfg, nil
}

// Parse decodes raw YAML, expands ${ENV_VAR} placeholders, applies defaults and
// validates the result.
func Parse(data []byte) (*Config, error) {
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		if c.IsProduction() {
			c.Log.Format = "json"
		} else {
			c.Log.Format = "console"
		}
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/sessionbooking.db"
	}
	if c.Host.SiteCourseID == 0 {
		c.Host.SiteCourseID = 1
	}
	if c.CoursesFile == "" {
		c.CoursesFile = "configs/courses.yaml"
	}
	if c.CoursesReloadSeconds <= 0 {
		c.CoursesReloadSeconds = 30
	}
	if c.Scheduler.IntervalMinutes <= 0 {
		c.Scheduler.IntervalMinutes = 15
	}
	if c.Scheduler.RunTimeoutMinutes <= 0 {
		c.Scheduler.RunTimeoutMinutes = 10
	}
	if c.Scheduler.LockTTLSeconds <= 0 {
		c.Scheduler.LockTTLSeconds = 15 * 60
	}
	if c.Notifier.Backend == "" {
		c.Notifier.Backend = "log"
	}
	if c.Notifier.Telegram.RatePerSec <= 0 {
		c.Notifier.Telegram.RatePerSec = 20
	}
	if c.Notifier.Telegram.Burst <= 0 {
		c.Notifier.Telegram.Burst = 30
	}
	if c.Notifier.Telegram.MaxRetries <= 0 {
		c.Notifier.Telegram.MaxRetries = 3
	}
	if c.Notifier.Kafka.Topic == "" {
		c.Notifier.Kafka.Topic = "booking.notifications"
	}
	if c.Audit.ExportDir == "" {
		c.Audit.ExportDir = "data/audit"
	}
	if c.Audit.RetentionDays <= 0 {
		c.Audit.RetentionDays = 365
	}
	if c.Backup.IntervalHours <= 0 {
		c.Backup.IntervalHours = 24
	}
	if c.Backup.StoragePath == "" {
		c.Backup.StoragePath = "data/backups"
	}
	if c.Monitoring.HealthCheckPort == 0 {
		c.Monitoring.HealthCheckPort = 8090
	}
	if c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.API.Address == "" {
		c.API.Address = ":8080"
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Host.BaseURL == "" {
		return fmt.Errorf("host.base_url is required")
	}
	if !strings.HasPrefix(c.Host.BaseURL, "http://") && !strings.HasPrefix(c.Host.BaseURL, "https://") {
		return fmt.Errorf("host.base_url must start with http:// or https://, got %q", c.Host.BaseURL)
	}

	switch c.Notifier.Backend {
	case "log":
	case "telegram":
		if c.Notifier.Telegram.BotToken == "" {
			return fmt.Errorf("notifier.telegram.bot_token is required for the telegram backend")
		}
	case "kafka":
		if len(c.Notifier.Kafka.Brokers) == 0 {
			return fmt.Errorf("notifier.kafka.brokers is required for the kafka backend")
		}
	default:
		return fmt.Errorf("notifier.backend: unknown backend %q", c.Notifier.Backend)
	}

	if c.Scheduler.LockEnabled && c.Redis.Address == "" {
		return fmt.Errorf("scheduler.lock_enabled requires redis.address")
	}
	if c.API.Enabled && c.API.APIKey == "" {
		return fmt.Errorf("api.api_key is required when the api is enabled")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) SchedulerInterval() time.Duration {
	return time.Duration(c.Scheduler.IntervalMinutes) * time.Minute
}

func (c *Config) RunTimeout() time.Duration {
	return time.Duration(c.Scheduler.RunTimeoutMinutes) * time.Minute
}

func (c *Config) LockTTL() time.Duration {
	return time.Duration(c.Scheduler.LockTTLSeconds) * time.Second
}

func (c *Config) CoursesReloadInterval() time.Duration {
	return time.Duration(c.CoursesReloadSeconds) * time.Second
}
