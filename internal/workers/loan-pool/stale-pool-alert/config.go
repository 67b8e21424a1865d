package stalepoolalert

import (
	"fmt"
	"time"
)

type Config struct {
	Enabled       bool          `mapstructure:"enabled"`
	MaxJobsActive int           `mapstructure:"max_jobs_active"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxRetries    int           `mapstructure:"max_retries"`

	StaleAfter time.Duration `mapstructure:"stale_after"`
	Subject    string        `mapstructure:"subject"`
	FromEmail  string        `mapstructure:"from_email"`
	Recipients []string      `mapstructure:"recipients"`
	TopicARN   string        `mapstructure:"topic_arn"`
}

func DefaultConfig() *Config {
	return &Config{
		Enabled:       true,
		MaxJobsActive: 1,
		Timeout:       time.Minute,
		MaxRetries:    3,
		StaleAfter:    24 * time.Hour,
		Subject:       "ERROR",
	}
}

func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxJobsActive <= 0 {
		return fmt.Errorf("max_jobs_active must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative")
	}
	if c.StaleAfter <= 0 {
		return fmt.Errorf("stale_after must be positive")
	}
	if len(c.Recipients) > 0 && c.FromEmail == "" {
		return fmt.Errorf("from_email is required when recipients are set")
	}
	return nil
}
