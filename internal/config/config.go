package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the dispatch service.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Mail      MailConfig      `yaml:"mail"`
	Render    RenderConfig    `yaml:"render"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds HTTP trigger server configuration.
type ServerConfig struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	CronSecret  string   `yaml:"cron_secret"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// Addr returns host:port for http.Server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL                    string `yaml:"url"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// RedisConfig enables the Redis tick lock when URL is set.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// SchedulerConfig holds poller settings.
type SchedulerConfig struct {
	IntervalSeconds         int  `yaml:"interval_seconds"`
	MaxProcessingAgeMinutes int  `yaml:"max_processing_age_minutes"`
	BatchLimit              int  `yaml:"batch_limit"`
	LockTTLSeconds          int  `yaml:"lock_ttl_seconds"`
	DisableLock             bool `yaml:"disable_lock"`
}

// Interval returns the poll interval as a duration.
func (s SchedulerConfig) Interval() time.Duration {
	return time.Duration(s.IntervalSeconds) * time.Second
}

// MaxProcessingAge returns the age after which a processing claim is stale.
func (s SchedulerConfig) MaxProcessingAge() time.Duration {
	return time.Duration(s.MaxProcessingAgeMinutes) * time.Minute
}

// LockTTL returns the tick lock expiry.
func (s SchedulerConfig) LockTTL() time.Duration {
	return time.Duration(s.LockTTLSeconds) * time.Second
}

// DispatchConfig holds executor settings.
type DispatchConfig struct {
	BatchSize     int `yaml:"batch_size"`
	MaxRetries    int `yaml:"max_retries"`
	BackoffBaseMS int `yaml:"backoff_base_ms"`
	BackoffMaxMS  int `yaml:"backoff_max_ms"`
	MaxAttempts   int `yaml:"max_attempts"`
}

// MailConfig selects and configures the mail provider.
type MailConfig struct {
	Provider string         `yaml:"provider"` // sendgrid, ses, resend or log
	SendGrid SendGridConfig `yaml:"sendgrid"`
	SES      SESConfig      `yaml:"ses"`
	Resend   ResendConfig   `yaml:"resend"`
}

// SendGridConfig holds SendGrid API configuration.
type SendGridConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// SESConfig holds AWS SES v2 configuration.
type SESConfig struct {
	AccessKey        string `yaml:"access_key"`
	SecretKey        string `yaml:"secret_key"`
	Region           string `yaml:"region"`
	ConfigurationSet string `yaml:"configuration_set"`
}

// ResendConfig holds Resend API configuration.
type ResendConfig struct {
	APIKey string `yaml:"api_key"`
}

// RenderConfig holds template rendering defaults.
type RenderConfig struct {
	Locale string `yaml:"locale"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// Redact reports whether recipient addresses are masked in logs. Defaults to true.
func (l LogConfig) Redact() bool {
	return l.RedactPII == nil || *l.RedactPII
}

var providers = map[string]bool{"sendgrid": true, "ses": true, "resend": true, "log": true}

// Load reads configuration from a YAML file and applies defaults.
// An empty path yields the defaults alone.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetimeMinutes == 0 {
		cfg.Database.ConnMaxLifetimeMinutes = 30
	}
	if cfg.Scheduler.IntervalSeconds == 0 {
		cfg.Scheduler.IntervalSeconds = 120
	}
	if cfg.Scheduler.MaxProcessingAgeMinutes == 0 {
		cfg.Scheduler.MaxProcessingAgeMinutes = 15
	}
	if cfg.Scheduler.BatchLimit == 0 {
		cfg.Scheduler.BatchLimit = 50
	}
	if cfg.Scheduler.LockTTLSeconds == 0 {
		cfg.Scheduler.LockTTLSeconds = 300
	}
	if cfg.Dispatch.MaxRetries == 0 {
		cfg.Dispatch.MaxRetries = 3
	}
	if cfg.Dispatch.BackoffBaseMS == 0 {
		cfg.Dispatch.BackoffBaseMS = 1000
	}
	if cfg.Dispatch.BackoffMaxMS == 0 {
		cfg.Dispatch.BackoffMaxMS = 30000
	}
	if cfg.Dispatch.MaxAttempts == 0 {
		cfg.Dispatch.MaxAttempts = 5
	}
	if cfg.Mail.Provider == "" {
		cfg.Mail.Provider = "log"
	}
	if cfg.Mail.SendGrid.BaseURL == "" {
		cfg.Mail.SendGrid.BaseURL = "https://api.sendgrid.com"
	}
	if cfg.Mail.SendGrid.TimeoutSeconds == 0 {
		cfg.Mail.SendGrid.TimeoutSeconds = 30
	}
	if cfg.Mail.SES.Region == "" {
		cfg.Mail.SES.Region = "us-west-2"
	}
	if cfg.Render.Locale == "" {
		cfg.Render.Locale = "pt-BR"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// A .env file in the working directory is loaded first if present.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("CRON_SECRET"); v != "" {
		cfg.Server.CronSecret = v
	}
	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("SERVER_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("MAIL_PROVIDER"); v != "" {
		cfg.Mail.Provider = strings.ToLower(v)
	}
	if v := os.Getenv("SENDGRID_API_KEY"); v != "" {
		cfg.Mail.SendGrid.APIKey = v
	}
	if v := os.Getenv("AWS_SES_ACCESS_KEY"); v != "" {
		cfg.Mail.SES.AccessKey = v
	}
	if v := os.Getenv("AWS_SES_SECRET_KEY"); v != "" {
		cfg.Mail.SES.SecretKey = v
	}
	if v := os.Getenv("AWS_SES_REGION"); v != "" {
		cfg.Mail.SES.Region = v
	}
	if v := os.Getenv("RESEND_API_KEY"); v != "" {
		cfg.Mail.Resend.APIKey = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}

	return cfg, nil
}

// Validate checks the settings a binary cannot start without.
// requireSecret is set by the HTTP trigger server.
func (cfg *Config) Validate(requireSecret bool) error {
	var errs []error
	if cfg.Database.URL == "" {
		errs = append(errs, errors.New("database url is required"))
	}
	if requireSecret && cfg.Server.CronSecret == "" {
		errs = append(errs, errors.New("cron secret is required"))
	}
	if !providers[cfg.Mail.Provider] {
		errs = append(errs, fmt.Errorf("unknown mail provider %q", cfg.Mail.Provider))
	}
	switch cfg.Mail.Provider {
	case "sendgrid":
		if cfg.Mail.SendGrid.APIKey == "" {
			errs = append(errs, errors.New("sendgrid api key is required"))
		}
	case "resend":
		if cfg.Mail.Resend.APIKey == "" {
			errs = append(errs, errors.New("resend api key is required"))
		}
	}
	return errors.Join(errs...)
}
