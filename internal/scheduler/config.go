package scheduler

import "time"

// Config controls scheduler cadence and which jobs this process runs.
type Config struct {
	RunInterval time.Duration
	EnabledJobs []string

	// DisburseInterval is how often due disbursement tasks are claimed.
	DisburseInterval time.Duration
	// ReconcileInterval is the full snapshot re-scan cadence.
	ReconcileInterval time.Duration
	// IngestInterval is the watermark ingestion cadence.
	IngestInterval time.Duration

	// LockTTL bounds how long one replica may hold a job's run lock.
	LockTTL time.Duration
}

func DefaultConfig() Config {
	return Config{
		RunInterval:       time.Minute,
		DisburseInterval:  time.Minute,
		ReconcileInterval: 24 * time.Hour,
		IngestInterval:    24 * time.Hour,
		LockTTL:           5 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.DisburseInterval <= 0 {
		c.DisburseInterval = defaults.DisburseInterval
	}
	if c.ReconcileInterval <= 0 {
		c.ReconcileInterval = defaults.ReconcileInterval
	}
	if c.IngestInterval <= 0 {
		c.IngestInterval = defaults.IngestInterval
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	return c
}
