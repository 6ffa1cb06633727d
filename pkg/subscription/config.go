package subscription

import (
	"time"

	"github.com/dd0wney/cluso-petasos/pkg/validation"
)

// Config controls the reconciliation daemon
type Config struct {
	InitialDelay   time.Duration `yaml:"initial_delay"`   // Delay before the first pass after a trigger (default: 1s)
	RetryDelay     time.Duration `yaml:"retry_delay"`     // Delay between passes while a service is pending (default: 10s)
	RequestTimeout time.Duration `yaml:"request_timeout"` // Timeout for one subscription or identity RPC (default: 5s)
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		InitialDelay:   time.Second,
		RetryDelay:     10 * time.Second,
		RequestTimeout: 5 * time.Second,
	}
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	return validation.NewConfigValidator("SubscriptionConfig").
		MinDuration("InitialDelay", c.InitialDelay, 0).
		MinDuration("RetryDelay", c.RetryDelay, 10*time.Millisecond).
		RangeDuration("RequestTimeout", c.RequestTimeout, 10*time.Millisecond, time.Minute).
		Validate()
}
