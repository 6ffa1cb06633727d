package cluster

import (
	"time"

	"github.com/dd0wney/cluso-petasos/pkg/validation"
)

// RegistryConfig defines how endpoints are re-checked and discovered
type RegistryConfig struct {
	CheckDelay        time.Duration `yaml:"check_delay"`        // Delay before a scheduled check is due (default: 10s)
	MaxCheckRetries   int           `yaml:"max_check_retries"`  // Failed probes before an endpoint is abandoned (default: 3)
	WatchInterval     time.Duration `yaml:"watch_interval"`     // How often the watcher drains due checks (default: 5s)
	ProbeTimeout      time.Duration `yaml:"probe_timeout"`      // Timeout for a single liveness probe (default: 2s)
	DiscoveryInterval time.Duration `yaml:"discovery_interval"` // How often registrations are pulled (default: 30s)
}

// DefaultRegistryConfig returns the default configuration
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		CheckDelay:        10 * time.Second,
		MaxCheckRetries:   3,
		WatchInterval:     5 * time.Second,
		ProbeTimeout:      2 * time.Second,
		DiscoveryInterval: 30 * time.Second,
	}
}

// Validate checks if configuration is valid
func (c *RegistryConfig) Validate() error {
	return validation.NewConfigValidator("RegistryConfig").
		MinDuration("CheckDelay", c.CheckDelay, 0).
		NonNegative("MaxCheckRetries", c.MaxCheckRetries).
		MinDuration("WatchInterval", c.WatchInterval, 10*time.Millisecond).
		RangeDuration("ProbeTimeout", c.ProbeTimeout, 10*time.Millisecond, time.Minute).
		MinDuration("DiscoveryInterval", c.DiscoveryInterval, 10*time.Millisecond).
		Validate()
}
