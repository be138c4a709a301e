// Package health aggregates component health probes behind a TTL
// cache, so frequent /healthz polling does not hammer the backends.
package health

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Check probes one component. A nil error means healthy.
type Check func(ctx context.Context) error

// Status values for the aggregate and per-component reports.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
)

// ComponentStatus is one component's probe outcome.
type ComponentStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Report is the aggregate health snapshot.
type Report struct {
	Status     string                     `json:"status"`
	Components map[string]ComponentStatus `json:"components"`
	CheckedAt  time.Time                  `json:"checked_at"`
}

// Checker runs registered probes in parallel and caches the result.
type Checker struct {
	ttl     time.Duration
	timeout time.Duration

	mu     sync.Mutex
	checks map[string]Check
	order  []string
	cached *Report
}

// NewChecker creates a Checker. ttl defaults to 15s, the per-probe
// timeout to 5s.
func NewChecker(ttl, timeout time.Duration) *Checker {
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Checker{
		ttl:     ttl,
		timeout: timeout,
		checks:  make(map[string]Check),
	}
}

// Register adds a named probe. Later registrations with the same name
// replace earlier ones.
func (c *Checker) Register(name string, check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.checks[name]; !exists {
		c.order = append(c.order, name)
	}
	c.checks[name] = check
}

// Snapshot returns the current health report, reprobing only when the
// cached report is older than the TTL.
func (c *Checker) Snapshot(ctx context.Context) Report {
	c.mu.Lock()
	if c.cached != nil && time.Since(c.cached.CheckedAt) < c.ttl {
		report := *c.cached
		c.mu.Unlock()
		return report
	}
	names := make([]string, len(c.order))
	copy(names, c.order)
	checks := make(map[string]Check, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.Unlock()

	report := c.probe(ctx, names, checks)

	c.mu.Lock()
	c.cached = &report
	c.mu.Unlock()
	return report
}

// probe runs every check concurrently with a shared deadline.
func (c *Checker) probe(ctx context.Context, names []string, checks map[string]Check) Report {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var mu sync.Mutex
	components := make(map[string]ComponentStatus, len(names))

	g, ctx := errgroup.WithContext(ctx)
	for _, name := range names {
		check := checks[name]
		g.Go(func() error {
			status := ComponentStatus{Status: StatusOK}
			if err := check(ctx); err != nil {
				status = ComponentStatus{Status: StatusDegraded, Error: err.Error()}
			}
			mu.Lock()
			components[name] = status
			mu.Unlock()
			// Never abort sibling probes; failures are data here.
			return nil
		})
	}
	g.Wait()

	overall := StatusOK
	for _, cs := range components {
		if cs.Status != StatusOK {
			overall = StatusDegraded
			break
		}
	}

	return Report{
		Status:     overall,
		Components: components,
		CheckedAt:  time.Now().UTC(),
	}
}

// Invalidate drops the cached report so the next Snapshot reprobes.
func (c *Checker) Invalidate() {
	c.mu.Lock()
	c.cached = nil
	c.mu.Unlock()
}
