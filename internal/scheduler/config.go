package scheduler

import (
	"time"

	"github.com/smallbiznis/pledgesync/internal/config"
)

// Config controls the sweep loop.
type Config struct {
	RunInterval       time.Duration
	SweepTimeoutHours float64
	SweepJobTimeout   time.Duration
	// Disabled keeps RunForever from starting, for processes that only
	// serve webhooks while another replica owns the jobs.
	Disabled bool
}

func DefaultConfig() Config {
	return Config{
		RunInterval:       time.Hour,
		SweepTimeoutHours: 24,
		SweepJobTimeout:   5 * time.Minute,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval:       cfg.SweepInterval,
		SweepTimeoutHours: cfg.SweepTimeoutHours,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.SweepTimeoutHours <= 0 {
		c.SweepTimeoutHours = defaults.SweepTimeoutHours
	}
	if c.SweepJobTimeout <= 0 {
		c.SweepJobTimeout = defaults.SweepJobTimeout
	}
	return c
}
