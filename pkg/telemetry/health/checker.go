package health

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Status is the state reported for the service or one component.
type Status string

const (
	StatusOK        Status = "ok"
	StatusReady     Status = "ready"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Severity decides how a failing check affects readiness.
type Severity int

const (
	// Critical checks make the service unready when they fail.
	Critical Severity = iota
	// Degradable checks only mark the service degraded.
	Degradable
)

func (s Severity) String() string {
	if s == Degradable {
		return "degradable"
	}
	return "critical"
}

// CheckFunc reports nil when the component is usable.
type CheckFunc func(ctx context.Context) error

// ComponentStatus is the outcome of one check.
type ComponentStatus struct {
	Status    Status `json:"status"`
	Message   string `json:"message,omitempty"`
	Severity  string `json:"severity"`
	LatencyMS int64  `json:"latency_ms"`
}

// Report is the aggregated view served by /health and /ready.
type Report struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentStatus `json:"components,omitempty"`
	Degraded   []string                   `json:"degraded,omitempty"`
	Timestamp  time.Time                  `json:"timestamp"`
}

type check struct {
	fn       CheckFunc
	severity Severity
}

// Checker runs the registered component checks.
type Checker struct {
	mu      sync.RWMutex
	checks  map[string]check
	timeout time.Duration
	now     func() time.Time
}

// DefaultCheckTimeout bounds a single check when New is given zero.
const DefaultCheckTimeout = 5 * time.Second

// New returns a Checker that gives each check at most timeout.
func New(timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = DefaultCheckTimeout
	}
	return &Checker{
		checks:  make(map[string]check),
		timeout: timeout,
		now:     time.Now,
	}
}

// Register adds or replaces the check called name.
func (c *Checker) Register(name string, severity Severity, fn CheckFunc) {
	c.mu.Lock()
	c.checks[name] = check{fn: fn, severity: severity}
	c.mu.Unlock()
}

// Unregister removes the check called name.
func (c *Checker) Unregister(name string) {
	c.mu.Lock()
	delete(c.checks, name)
	c.mu.Unlock()
}

// Names returns the registered check names in sorted order.
func (c *Checker) Names() []string {
	c.mu.RLock()
	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	c.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Live reports the process as alive without running any check.
func (c *Checker) Live() Report {
	return Report{Status: StatusOK, Timestamp: c.now()}
}

// Ready runs every check concurrently and aggregates the results. Any
// failing critical check makes the report unhealthy; failing degradable
// checks are listed in Degraded.
func (c *Checker) Ready(ctx context.Context) Report {
	c.mu.RLock()
	snapshot := make(map[string]check, len(c.checks))
	for name, chk := range c.checks {
		snapshot[name] = chk
	}
	c.mu.RUnlock()

	report := Report{
		Status:     StatusReady,
		Components: make(map[string]ComponentStatus, len(snapshot)),
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for name, chk := range snapshot {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := c.run(ctx, chk)
			mu.Lock()
			report.Components[name] = res
			mu.Unlock()
		}()
	}
	wg.Wait()

	for name, res := range report.Components {
		if res.Status == StatusOK {
			continue
		}
		if snapshot[name].severity == Critical {
			report.Status = StatusUnhealthy
			continue
		}
		report.Degraded = append(report.Degraded, name)
	}
	sort.Strings(report.Degraded)
	if report.Status == StatusReady && len(report.Degraded) > 0 {
		report.Status = StatusDegraded
	}
	report.Timestamp = c.now()
	return report
}

func (c *Checker) run(ctx context.Context, chk check) ComponentStatus {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	done := make(chan error, 1)
	go func() { done <- chk.fn(ctx) }()

	res := ComponentStatus{Status: StatusOK, Severity: chk.severity.String()}
	select {
	case err := <-done:
		if err != nil {
			res.Status = StatusUnhealthy
			res.Message = err.Error()
		}
	case <-ctx.Done():
		res.Status = StatusUnhealthy
		res.Message = "check timed out"
	}
	res.LatencyMS = time.Since(start).Milliseconds()
	return res
}
