// Package ledger records every report run: its sections, their outcome
// and the artifacts they published.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Status is the lifecycle stage of a run or section.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// ErrNotFound is returned by Get for an unknown run id.
var ErrNotFound = errors.New("ledger: run not found")

// Artifact is one stored object.
type Artifact struct {
	Key         string `json:"key"`
	Kind        string `json:"kind"`
	Section     string `json:"section,omitempty"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
	URL         string `json:"url,omitempty"`
}

// Section records one section of a run.
type Section struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Mode       string     `json:"mode"`
	Status     Status     `json:"status"`
	Rows       int        `json:"rows"`
	Error      string     `json:"error,omitempty"`
	Artifacts  []Artifact `json:"artifacts,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	DurationMS int64      `json:"duration_ms"`
}

// Run is the ledger entry of one report run.
type Run struct {
	ID          string             `json:"id"`
	Status      Status             `json:"status"`
	Error       string             `json:"error,omitempty"`
	Lineage     string             `json:"lineage,omitempty"`
	Sections    []Section          `json:"sections"`
	Artifacts   []Artifact         `json:"artifacts,omitempty"`
	Labels      map[string]string  `json:"labels,omitempty"`
	Metrics     map[string]float64 `json:"metrics,omitempty"`
	StartedAt   time.Time          `json:"started_at"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
}

// Store persists runs. Save upserts by run id.
type Store interface {
	Save(ctx context.Context, run Run) error
	Get(ctx context.Context, id string) (Run, error)
	// List returns the most recent runs first; limit <= 0 means all.
	List(ctx context.Context, limit int) ([]Run, error)
	Close() error
}

// Driver selects a Store implementation.
type Driver string

const (
	DriverMemory   Driver = "memory"
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Config selects and configures the ledger store.
type Config struct {
	Driver      Driver `yaml:"driver"`
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

// ApplyEnv overlays OMICSREPORT_LEDGER_DRIVER, OMICSREPORT_SQLITE_PATH and
// OMICSREPORT_POSTGRES_DSN.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("OMICSREPORT_LEDGER_DRIVER"); v != "" {
		c.Driver = Driver(strings.ToLower(v))
	}
	if v := getenv("OMICSREPORT_SQLITE_PATH"); v != "" {
		c.SQLitePath = v
	}
	if v := getenv("OMICSREPORT_POSTGRES_DSN"); v != "" {
		c.PostgresDSN = v
	}
}

// Validate rejects unknown drivers.
func (c Config) Validate() error {
	switch c.Driver {
	case DriverMemory, DriverSQLite, DriverPostgres, "":
		return nil
	}
	return fmt.Errorf("unknown ledger driver %q", c.Driver)
}

// Open constructs the configured store; an empty driver means sqlite.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case DriverSQLite, "":
		return NewSQLite(ctx, cfg.SQLitePath)
	case DriverPostgres:
		return NewPostgres(ctx, cfg.PostgresDSN)
	case DriverMemory:
		return NewMemory(), nil
	}
	return nil, fmt.Errorf("unknown ledger driver %q", cfg.Driver)
}

// Memory keeps runs in process memory.
type Memory struct {
	mu   sync.RWMutex
	runs map[string]Run
}

// NewMemory returns an empty memory ledger.
func NewMemory() *Memory { return &Memory{runs: make(map[string]Run)} }

// Save upserts a run.
func (m *Memory) Save(_ context.Context, run Run) error {
	if run.ID == "" {
		return fmt.Errorf("ledger: run id required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = cloneRun(run)
	return nil
}

// Get returns a run by id.
func (m *Memory) Get(_ context.Context, id string) (Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.runs[id]
	if !ok {
		return Run{}, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return cloneRun(r), nil
}

// List returns runs newest first.
func (m *Memory) List(_ context.Context, limit int) ([]Run, error) {
	m.mu.RLock()
	out := make([]Run, 0, len(m.runs))
	for _, r := range m.runs {
		out = append(out, cloneRun(r))
	}
	m.mu.RUnlock()
	sortRuns(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }

func sortRuns(runs []Run) {
	sort.SliceStable(runs, func(i, j int) bool {
		if !runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].StartedAt.After(runs[j].StartedAt)
		}
		return runs[i].ID < runs[j].ID
	})
}

func cloneRun(r Run) Run {
	out := r
	out.Sections = make([]Section, len(r.Sections))
	for i, s := range r.Sections {
		s.Artifacts = append([]Artifact(nil), s.Artifacts...)
		out.Sections[i] = s
	}
	out.Artifacts = append([]Artifact(nil), r.Artifacts...)
	if r.Labels != nil {
		out.Labels = make(map[string]string, len(r.Labels))
		for k, v := range r.Labels {
			out.Labels[k] = v
		}
	}
	if r.Metrics != nil {
		out.Metrics = make(map[string]float64, len(r.Metrics))
		for k, v := range r.Metrics {
			out.Metrics[k] = v
		}
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		out.CompletedAt = &t
	}
	return out
}
