package worker

import (
	"fmt"
	"time"
)

// Config tunes the background job worker.
type Config struct {
	// Concurrency is how many goroutines poll and process jobs in
	// parallel. Classification jobs spend most of their time waiting on
	// the inference service, so this mostly bounds concurrent inference
	// calls. Default 2.
	Concurrency int

	// PollInterval is how often an idle worker checks the queue.
	// Default 5s.
	PollInterval time.Duration

	// JobTimeout caps one job's run. The job context is canceled at the
	// deadline and the job counts as failed. It must cover a full
	// classification pass, including an artifact download on a cold
	// cache. Default 5m.
	JobTimeout time.Duration

	// ShutdownTimeout is how long Stop waits for in-flight jobs before
	// giving up on them. Default 30s.
	ShutdownTimeout time.Duration

	// StaleJobThreshold is the age at which a 'running' job is presumed
	// orphaned by a crashed worker and re-queued on startup. Default 10m.
	StaleJobThreshold time.Duration
}

// DefaultConfig returns the defaults documented on Config.
func DefaultConfig() Config {
	return Config{
		Concurrency:       2,
		PollInterval:      5 * time.Second,
		JobTimeout:        5 * time.Minute,
		ShutdownTimeout:   30 * time.Second,
		StaleJobThreshold: 10 * time.Minute,
	}
}

// Validate rejects configurations the worker cannot run safely with.
func (c Config) Validate() error {
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.Concurrency > 100 {
		return fmt.Errorf("concurrency too high (max 100), got %d", c.Concurrency)
	}
	if c.PollInterval < 1*time.Second {
		return fmt.Errorf("poll interval must be at least 1 second, got %v", c.PollInterval)
	}
	if c.JobTimeout < 1*time.Second {
		return fmt.Errorf("job timeout must be at least 1 second, got %v", c.JobTimeout)
	}
	if c.ShutdownTimeout < 1*time.Second {
		return fmt.Errorf("shutdown timeout must be at least 1 second, got %v", c.ShutdownTimeout)
	}
	if c.StaleJobThreshold < 1*time.Minute {
		return fmt.Errorf("stale job threshold must be at least 1 minute, got %v", c.StaleJobThreshold)
	}
	return nil
}
