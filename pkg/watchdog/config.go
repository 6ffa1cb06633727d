package watchdog

import (
	"time"

	"github.com/dd0wney/cluso-petasos/pkg/validation"
)

// Config controls the cleanup passes
type Config struct {
	InitialDelay     time.Duration `yaml:"initial_delay"`      // Delay before the first pass (default: 60s)
	Period           time.Duration `yaml:"period"`             // Interval between passes (default: 15s)
	MinRetirementAge time.Duration `yaml:"min_retirement_age"` // Age an entry must exceed before it is reclaimed (default: 30s)
	ArchiveTimeout   time.Duration `yaml:"archive_timeout"`    // Timeout for archiving one retired task (default: 10s)
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		InitialDelay:     60 * time.Second,
		Period:           15 * time.Second,
		MinRetirementAge: 30 * time.Second,
		ArchiveTimeout:   10 * time.Second,
	}
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	return validation.NewConfigValidator("WatchdogConfig").
		MinDuration("InitialDelay", c.InitialDelay, 0).
		MinDuration("Period", c.Period, time.Millisecond).
		MinDuration("MinRetirementAge", c.MinRetirementAge, 0).
		RangeDuration("ArchiveTimeout", c.ArchiveTimeout, time.Millisecond, 5*time.Minute).
		Validate()
}
