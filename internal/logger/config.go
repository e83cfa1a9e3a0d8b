package logger

import (
	"io"

	"github.com/spf13/viper"
)

// EnvConfig is the logger setup read from LOG_* environment variables.
type EnvConfig struct {
	Level       string    // debug, info, warn, error
	Format      string    // json, text
	Output      io.Writer // overrides the stdout/file selection when set
	ServiceName string

	// Environment is local, dev or prod. Files are only written outside local.
	Environment string

	LogFile     string
	LogFileOnly bool

	// Rotation, see lumberjack.Logger.
	MaxSize    int // MB
	MaxBackups int
	MaxAge     int // days
	Compress   bool
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() *EnvConfig {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("SERVICE_NAME", "outreach")
	v.SetDefault("APP_ENV", "local")
	v.SetDefault("LOG_FILE", "/var/log/outreach/app.log")
	v.SetDefault("LOG_FILE_ONLY", false)
	v.SetDefault("LOG_MAX_SIZE", 100)
	v.SetDefault("LOG_MAX_BACKUPS", 7)
	v.SetDefault("LOG_MAX_AGE", 30)
	v.SetDefault("LOG_COMPRESS", true)

	return &EnvConfig{
		Level:       v.GetString("LOG_LEVEL"),
		Format:      v.GetString("LOG_FORMAT"),
		ServiceName: v.GetString("SERVICE_NAME"),
		Environment: v.GetString("APP_ENV"),
		LogFile:     v.GetString("LOG_FILE"),
		LogFileOnly: v.GetBool("LOG_FILE_ONLY"),
		MaxSize:     v.GetInt("LOG_MAX_SIZE"),
		MaxBackups:  v.GetInt("LOG_MAX_BACKUPS"),
		MaxAge:      v.GetInt("LOG_MAX_AGE"),
		Compress:    v.GetBool("LOG_COMPRESS"),
	}
}
