// Package scheduler fires scheduled workflow runs on interval or cron
// cadence.
package scheduler

import "time"

// Config defines the scheduler configuration.
type Config struct {
	// TickInterval is how often due schedules are checked.
	TickInterval time.Duration `yaml:"tick_interval"`
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() *Config {
	return &Config{
		TickInterval: time.Second,
	}
}

// GetTickInterval returns the tick interval, falling back to one second.
func (c *Config) GetTickInterval() time.Duration {
	if c.TickInterval <= 0 {
		return time.Second
	}
	return c.TickInterval
}
