// Package health reports whether the opened graph databases still accept
// transactions.
package health

import (
	"context"
	"time"
)

// DefaultCheckTimeout bounds a single check run
const DefaultCheckTimeout = 5 * time.Second

// NewChecker creates a checker with no checks registered
func NewChecker() *Checker {
	return &Checker{
		checks:      make(map[string]CheckFunc),
		readyChecks: make(map[string]CheckFunc),
		started:     time.Now(),
		timeout:     DefaultCheckTimeout,
	}
}

// SetTimeout changes the per-run timeout
func (c *Checker) SetTimeout(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeout = d
}

// RegisterCheck registers a health check
func (c *Checker) RegisterCheck(name string, check CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// RegisterReadinessCheck registers a readiness check
func (c *Checker) RegisterReadinessCheck(name string, check CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readyChecks[name] = check
}

// Check performs all health checks
func (c *Checker) Check(ctx context.Context) Response {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.run(ctx, c.checks)
}

// CheckReadiness performs readiness checks
func (c *Checker) CheckReadiness(ctx context.Context) Response {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.run(ctx, c.readyChecks)
}

func (c *Checker) run(ctx context.Context, checks map[string]CheckFunc) Response {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	response := Response{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
		Checks:    make(map[string]Check, len(checks)),
		Uptime:    time.Since(c.started).Seconds(),
	}

	for name, fn := range checks {
		start := time.Now()
		check := fn(ctx)
		check.Duration = time.Since(start)
		check.LastChecked = start
		if check.Name == "" {
			check.Name = name
		}
		response.Checks[name] = check

		// Worst status wins
		switch check.Status {
		case StatusUnhealthy:
			response.Status = StatusUnhealthy
		case StatusDegraded:
			if response.Status != StatusUnhealthy {
				response.Status = StatusDegraded
			}
		}
	}

	return response
}
