package scheduler

import (
	"time"

	"github.com/smallbiznis/payrecon/internal/config"
)

const (
	JobOrderSync    = "order_sync"
	JobStaleIntents = "stale_intents"
)

// Config controls scheduler intervals and batch sizes.
type Config struct {
	RunInterval    time.Duration
	BatchSize      int
	StaleIntentAge time.Duration
	JobTimeout     time.Duration
	// LockTTL bounds how long a crashed instance can hold a job lock.
	LockTTL     time.Duration
	EnabledJobs []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval:    time.Minute,
		BatchSize:      50,
		StaleIntentAge: 15 * time.Minute,
		JobTimeout:     30 * time.Second,
		LockTTL:        2 * time.Minute,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval:    cfg.Scheduler.RunInterval,
		BatchSize:      cfg.Scheduler.BatchSize,
		StaleIntentAge: cfg.Scheduler.StaleIntentAge,
		EnabledJobs:    cfg.Scheduler.EnabledJobs,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.StaleIntentAge <= 0 {
		c.StaleIntentAge = defaults.StaleIntentAge
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.LockTTL < c.JobTimeout {
		c.LockTTL = maxDuration(defaults.LockTTL, 2*c.JobTimeout)
	}
	return c
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
