// Package registry tracks the discovered set of plugins and their runtime
// state. It is the single source of truth for what plugins exist; records
// are mutated only through the supervisor.
package registry

import "time"

// State is a plugin lifecycle state.
type State string

const (
	StateStopped       State = "stopped"
	StateStarting      State = "starting"
	StateRunning       State = "running"
	StateStopping      State = "stopping"
	StateCrashed       State = "crashed"
	StateFailedToStart State = "failed_to_start"
	StateOrphaned      State = "orphaned"
)

// Active reports whether a live OS process may exist in this state.
func (s State) Active() bool {
	switch s {
	case StateStarting, StateRunning, StateStopping:
		return true
	}
	return false
}

// Startable reports whether a start operation is valid from this state.
// Orphaned is startable as long as the plugin directory still exists; the
// supervisor checks that separately.
func (s State) Startable() bool {
	switch s {
	case StateStopped, StateCrashed, StateFailedToStart, StateOrphaned:
		return true
	}
	return false
}

// Sample is a point-in-time resource usage snapshot for a running plugin.
type Sample struct {
	CPUPercent float64   `json:"cpu_percent"`
	MemoryRSS  uint64    `json:"memory_rss"`
	SampledAt  time.Time `json:"sampled_at"`
}

// Status is an immutable view of a record, safe to serialize without
// holding any lock.
type Status struct {
	Name        string         `json:"name"`
	Version     string         `json:"version"`
	Description string         `json:"description"`
	Author      string         `json:"author"`
	Category    string         `json:"category"`
	Icon        string         `json:"icon,omitempty"`
	Dir         string         `json:"dir"`
	State       State          `json:"state"`
	PID         int            `json:"pid,omitempty"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	Uptime      float64        `json:"uptime_seconds"`
	LastExit    *int           `json:"last_exit_code,omitempty"`
	LastError   string         `json:"last_error,omitempty"`
	Config      map[string]any `json:"config"`
	Sample      *Sample        `json:"sample,omitempty"`
}
