package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	SMTP     SMTPConfig     `mapstructure:"smtp"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Tracking TrackingConfig `mapstructure:"tracking"`
	Notify   NotifyConfig   `mapstructure:"notify"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // sqlite, postgres
	Path   string `mapstructure:"path"`   // sqlite file

	URL      string `mapstructure:"url"` // full postgres URL, wins over the fields below
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`

	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	LogQueries      bool          `mapstructure:"log_queries"`
}

// DSN returns the connection string for the configured driver.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		if c.URL != "" {
			return c.URL
		}
		u := url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(c.User, c.Password),
			Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
			Path:   c.DBName,
		}
		q := u.Query()
		q.Set("sslmode", c.SSLMode)
		u.RawQuery = q.Encode()
		return u.String()
	}
	return c.Path
}

type DispatchConfig struct {
	BatchSize         int     `mapstructure:"batch_size"`
	BatchDelayMinutes float64 `mapstructure:"batch_delay_minutes"`
	Concurrency       int     `mapstructure:"concurrency"`
	RatePerSec        float64 `mapstructure:"rate_per_sec"`
	HistoryLimit      int     `mapstructure:"history_limit"`
	Timezone          string  `mapstructure:"timezone"`
	DefaultSubject    string  `mapstructure:"default_subject"`
	DefaultBodyFile   string  `mapstructure:"default_body_file"`
}

// BatchDelay converts the configured minutes into a duration; negatives become zero.
func (c *DispatchConfig) BatchDelay() time.Duration {
	if c.BatchDelayMinutes <= 0 {
		return 0
	}
	return time.Duration(c.BatchDelayMinutes * float64(time.Minute))
}

// Location loads the zone used for sheet timestamps, falling back to UTC.
func (c *DispatchConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type StorageConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Type      string `mapstructure:"type"` // r2, s3, s3compatible
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	PublicURL string `mapstructure:"public_url"`
	Prefix    string `mapstructure:"prefix"`
}

type TrackingConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

type NotifyConfig struct {
	WebhookURL string        `mapstructure:"webhook_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Deployment env names used by the mail server and batch pacing
	v.BindEnv("smtp.host", "SMTP_HOST")
	v.BindEnv("smtp.port", "SMTP_PORT")
	v.BindEnv("smtp.user", "SMTP_USER")
	v.BindEnv("smtp.pass", "SMTP_PASS")
	v.BindEnv("smtp.from", "SMTP_FROM")
	v.BindEnv("dispatch.batch_size", "BATCH_SIZE")
	v.BindEnv("dispatch.batch_delay_minutes", "BATCH_DELAY_MINUTES")
	v.BindEnv("database.driver", "DATABASE_DRIVER")
	v.BindEnv("database.url", "DATABASE_URL")
	v.BindEnv("storage.endpoint", "S3_ENDPOINT")
	v.BindEnv("storage.access_key", "S3_ACCESS_KEY")
	v.BindEnv("storage.secret_key", "S3_SECRET_KEY")
	v.BindEnv("storage.bucket", "S3_BUCKET")
	v.BindEnv("tracking.base_url", "TRACKING_BASE_URL")
	v.BindEnv("notify.webhook_url", "NOTIFY_WEBHOOK_URL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.normalize()

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/outreach.db")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.default_cc", []string{})

	v.SetDefault("dispatch.batch_size", 1)
	v.SetDefault("dispatch.batch_delay_minutes", 5)
	v.SetDefault("dispatch.concurrency", 5)
	v.SetDefault("dispatch.rate_per_sec", 0)
	v.SetDefault("dispatch.history_limit", 20)
	v.SetDefault("dispatch.timezone", "Asia/Kolkata")
	v.SetDefault("dispatch.default_subject", "Following up on our conversation")

	v.SetDefault("storage.enabled", false)
	v.SetDefault("storage.prefix", "results")

	v.SetDefault("tracking.base_url", "http://localhost:8080")
	v.SetDefault("notify.timeout", 10*time.Second)
}

func (c *Config) normalize() {
	if c.Dispatch.BatchSize < 1 {
		c.Dispatch.BatchSize = 1
	}
	if c.Dispatch.BatchDelayMinutes < 0 {
		c.Dispatch.BatchDelayMinutes = 0
	}
	if c.Dispatch.Concurrency < 1 {
		c.Dispatch.Concurrency = 5
	}
	if c.Dispatch.HistoryLimit < 1 {
		c.Dispatch.HistoryLimit = 20
	}
	c.Tracking.BaseURL = strings.TrimSuffix(c.Tracking.BaseURL, "/")
}
