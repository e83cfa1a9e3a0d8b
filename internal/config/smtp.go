package config

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSMTPNotConfigured is returned when host or credentials are missing.
var ErrSMTPNotConfigured = errors.New("SMTP environment variables not configured")

// SMTPConfig holds the outbound mail server settings.
type SMTPConfig struct {
	Host      string   `mapstructure:"host"`
	Port      int      `mapstructure:"port"`
	User      string   `mapstructure:"user"`
	Pass      string   `mapstructure:"pass"`
	From      string   `mapstructure:"from"`       // fallback sender for uploads
	DefaultCc []string `mapstructure:"default_cc"` // copied on every upload send
}

// Configured reports whether the mail server can be dialed.
func (c *SMTPConfig) Configured() bool {
	return c.Host != "" && c.User != "" && c.Pass != ""
}

// Validate checks that the SMTP configuration has all required fields.
// Returns an error wrapping ErrSMTPNotConfigured when host or credentials are missing.
func (c *SMTPConfig) Validate() error {
	if !c.Configured() {
		var missing []string
		if c.Host == "" {
			missing = append(missing, "host")
		}
		if c.User == "" {
			missing = append(missing, "user")
		}
		if c.Pass == "" {
			missing = append(missing, "pass")
		}
		return fmt.Errorf("%w: missing %s", ErrSMTPNotConfigured, strings.Join(missing, ", "))
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("smtp: invalid port %d", c.Port)
	}
	return nil
}
