// Package health tracks readiness of the components a recording depends on:
// ffmpeg, the screen and audio backends and the output directory.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/omnicapture/agent/internal/logging"
)

var log = logging.L("health")

type Status string

const (
	Healthy   Status = "healthy"
	Degraded  Status = "degraded"
	Unhealthy Status = "unhealthy"
	Unknown   Status = "unknown"
)

func (s Status) IsValid() bool {
	switch s {
	case Healthy, Degraded, Unhealthy, Unknown:
		return true
	}
	return false
}

// Check is the latest result for one component.
type Check struct {
	Name      string    `json:"name"`
	Status    Status    `json:"status"`
	Message   string    `json:"message,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Probe inspects one component.
type Probe func(ctx context.Context) (Status, string)

// Monitor holds registered probes and their latest results.
type Monitor struct {
	mu     sync.RWMutex
	checks map[string]Check
	probes map[string]Probe
}

func NewMonitor() *Monitor {
	return &Monitor{
		checks: make(map[string]Check),
		probes: make(map[string]Probe),
	}
}

// Register adds a probe that Run evaluates.
func (m *Monitor) Register(name string, p Probe) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.probes[name] = p
}

// Update records a result. Invalid statuses are stored as Unhealthy.
func (m *Monitor) Update(name string, status Status, message string) {
	if !status.IsValid() {
		status = Unhealthy
	}
	m.mu.Lock()
	prev, seen := m.checks[name]
	m.checks[name] = Check{Name: name, Status: status, Message: message, UpdatedAt: time.Now()}
	m.mu.Unlock()

	if status != Healthy && (!seen || prev.Status != status) {
		log.Warn("component not healthy", "check", name, "status", string(status), "message", message)
	}
}

func (m *Monitor) Get(name string) (Check, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.checks[name]
	return c, ok
}

// Run evaluates every registered probe concurrently, each bounded by timeout.
func (m *Monitor) Run(ctx context.Context, timeout time.Duration) {
	m.mu.RLock()
	probes := make(map[string]Probe, len(m.probes))
	for name, p := range m.probes {
		probes[name] = p
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for name, p := range probes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			status, msg := p(pctx)
			m.Update(name, status, msg)
		}()
	}
	wg.Wait()
}

// Overall is the worst status across checks, Unknown when there are none.
func (m *Monitor) Overall() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.overallLocked()
}

func (m *Monitor) overallLocked() Status {
	if len(m.checks) == 0 {
		return Unknown
	}
	worst := Healthy
	for _, c := range m.checks {
		if statusRank(c.Status) > statusRank(worst) {
			worst = c.Status
		}
	}
	return worst
}

// Report is the JSON body served by Handler.
type Report struct {
	Status     Status  `json:"status"`
	Components []Check `json:"components"`
}

// Report snapshots overall status and checks, sorted by name.
func (m *Monitor) Report() Report {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r := Report{Status: m.overallLocked(), Components: make([]Check, 0, len(m.checks))}
	for _, c := range m.checks {
		r.Components = append(r.Components, c)
	}
	sort.Slice(r.Components, func(i, j int) bool { return r.Components[i].Name < r.Components[j].Name })
	return r
}

// Handler re-runs the probes and serves the report. Unhealthy answers 503.
func (m *Monitor) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.Run(r.Context(), 5*time.Second)
		report := m.Report()

		w.Header().Set("Content-Type", "application/json")
		if report.Status == Unhealthy || report.Status == Unknown {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(report)
	})
}

func statusRank(s Status) int {
	switch s {
	case Healthy:
		return 0
	case Degraded:
		return 1
	case Unhealthy:
		return 2
	default:
		return 3
	}
}
