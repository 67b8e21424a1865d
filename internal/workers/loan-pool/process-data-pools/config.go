package processdatapools

import (
	"fmt"
	"time"

	"loan-pool-sync/internal/common/config"
)

const (
	LookupPolicyCreate = config.LookupPolicyCreate
	LookupPolicyDefer  = config.LookupPolicyDefer
)

type Config struct {
	Enabled       bool          `mapstructure:"enabled"`
	MaxJobsActive int           `mapstructure:"max_jobs_active"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxRetries    int           `mapstructure:"max_retries"`

	// CallTimeout bounds every single CRM request.
	CallTimeout time.Duration `mapstructure:"call_timeout"`
	// LookupFailurePolicy decides what a failed email lookup means:
	// "create" treats it as no contacts, "defer" leaves the record for the next run.
	LookupFailurePolicy string `mapstructure:"lookup_failure_policy"`
	Concurrency         int    `mapstructure:"concurrency"`
	LedgerIndex         string `mapstructure:"ledger_index"`
}

func DefaultConfig() *Config {
	return &Config{
		Enabled:             true,
		MaxJobsActive:       1,
		Timeout:             5 * time.Minute,
		MaxRetries:          3,
		CallTimeout:         30 * time.Second,
		LookupFailurePolicy: LookupPolicyCreate,
		Concurrency:         1,
		LedgerIndex:         "ghl-contact-history",
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
	if c.CallTimeout <= 0 {
		return fmt.Errorf("call_timeout must be positive")
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive")
	}
	switch c.LookupFailurePolicy {
	case LookupPolicyCreate, LookupPolicyDefer:
	default:
		return fmt.Errorf("unknown lookup_failure_policy %q", c.LookupFailurePolicy)
	}
	return nil
}
