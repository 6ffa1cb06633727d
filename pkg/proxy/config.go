package proxy

import (
	"time"

	"github.com/dd0wney/cluso-petasos/pkg/validation"
)

// Config controls the task grid proxy
type Config struct {
	Plant         string        `yaml:"plant"`          // Processing plant named on issued job cards
	RetryAttempts int           `yaml:"retry_attempts"` // Attempts for queue and register calls (default: 3)
	RetryDelay    time.Duration `yaml:"retry_delay"`    // Fixed delay between attempts (default: 500ms)
	CallTimeout   time.Duration `yaml:"call_timeout"`   // Timeout applied to each repository call (default: 5s)
}

// DefaultConfig returns the default configuration for plant
func DefaultConfig(plant string) Config {
	return Config{
		Plant:         plant,
		RetryAttempts: 3,
		RetryDelay:    500 * time.Millisecond,
		CallTimeout:   5 * time.Second,
	}
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	return validation.NewConfigValidator("ProxyConfig").
		Required("Plant", c.Plant).
		RangeInt("RetryAttempts", c.RetryAttempts, 1, 20).
		MinDuration("RetryDelay", c.RetryDelay, 0).
		RangeDuration("CallTimeout", c.CallTimeout, time.Millisecond, 5*time.Minute).
		Validate()
}
