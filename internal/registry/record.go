package registry

import (
	"sync"
	"time"

	"github.com/harborlight/plugind/internal/logring"
	"github.com/harborlight/plugind/internal/manifest"
	plugerrors "github.com/harborlight/plugind/pkg/errors"
)

// Record is the registry's entry for one plugin. It carries the loaded
// manifest, the current lifecycle state and diagnostics from the last run.
//
// Two locks with distinct roles: opMu serializes supervisor operations
// (start/stop/restart/config updates and the crash reaper), while mu guards
// field access so API readers observe consistent state without queueing
// behind an in-flight operation. The live process handle is not stored
// here; the supervisor owns it exclusively.
type Record struct {
	opMu sync.Mutex

	mu         sync.RWMutex
	man        manifest.Manifest
	dir        string
	binaryPath string
	state      State
	pid        int
	startedAt  time.Time
	lastExit   *int
	lastError  string
	overrides  map[string]any
	sample     *Sample
	generation uint64

	logs *logring.Buffer
}

func newRecord(loaded manifest.Loaded, logCapacity int) *Record {
	return &Record{
		man:        loaded.Manifest,
		dir:        loaded.Dir,
		binaryPath: loaded.BinaryPath,
		state:      StateStopped,
		logs:       logring.New(logCapacity),
	}
}

// WithExclusive runs fn while holding the record's operation lock. All
// state transitions for a plugin flow through here, which makes them
// totally ordered.
func (r *Record) WithExclusive(fn func()) {
	r.opMu.Lock()
	defer r.opMu.Unlock()
	fn()
}

// Name returns the plugin name.
func (r *Record) Name() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.man.Name
}

// Manifest returns the loaded manifest.
func (r *Record) Manifest() manifest.Manifest {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.man
}

// Dir returns the plugin's directory.
func (r *Record) Dir() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dir
}

// BinaryPath returns the resolved binary path.
func (r *Record) BinaryPath() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.binaryPath
}

// State returns the current lifecycle state.
func (r *Record) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// PID returns the current process id, or 0 when no process is live.
func (r *Record) PID() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pid
}

// StartedAt returns the spawn time of the current process, zero otherwise.
func (r *Record) StartedAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.startedAt
}

// Generation identifies the current process epoch. The reaper uses it to
// detect that a newer start superseded the process it was watching.
func (r *Record) Generation() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.generation
}

// Logs returns the record's ring buffer.
func (r *Record) Logs() *logring.Buffer { return r.logs }

// EffectiveConfig returns the manifest defaults overlaid with runtime
// overrides, last write wins per key. The result is a fresh map.
func (r *Record) EffectiveConfig() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.effectiveConfigLocked()
}

func (r *Record) effectiveConfigLocked() map[string]any {
	merged := make(map[string]any, len(r.man.DefaultConfig)+len(r.overrides))
	for key, value := range r.man.DefaultConfig {
		merged[key] = value
	}
	for key, value := range r.overrides {
		merged[key] = value
	}
	return merged
}

// Overrides returns a copy of the applied runtime overrides.
func (r *Record) Overrides() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]any, len(r.overrides))
	for key, value := range r.overrides {
		out[key] = value
	}
	return out
}

// MergeOverrides applies override keys on top of any existing ones.
func (r *Record) MergeOverrides(overrides map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.overrides == nil {
		r.overrides = make(map[string]any, len(overrides))
	}
	for key, value := range overrides {
		r.overrides[key] = value
	}
}

// MarkStarting records a successful spawn and begins a new generation.
// The previous run's diagnostics are cleared.
func (r *Record) MarkStarting(pid int) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = StateStarting
	r.pid = pid
	r.startedAt = time.Now()
	r.lastExit = nil
	r.lastError = ""
	r.sample = nil
	r.generation++
	return r.generation
}

// MarkRunning transitions Starting to Running once the liveness window
// elapsed.
func (r *Record) MarkRunning() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = StateRunning
}

// MarkStopping flags a stop in progress.
func (r *Record) MarkStopping() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = StateStopping
}

// MarkExited finalizes a terminated process: the target state, its exit
// code and an optional diagnostic message are retained until the next
// start.
func (r *Record) MarkExited(state State, exitCode int, lastError string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = state
	r.pid = 0
	r.startedAt = time.Time{}
	r.sample = nil
	code := exitCode
	r.lastExit = &code
	if lastError != "" {
		r.lastError = lastError
	}
}

// MarkOrphaned flags a record whose backing directory disappeared. A
// running orphan keeps its state until stopped.
func (r *Record) MarkOrphaned() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.state.Active() {
		r.state = StateOrphaned
	}
}

// ReplaceManifest swaps the record's manifest, directory and binary path
// after a rescan. It claims the record's operation lock so a replacement
// can never interleave with an in-flight start or stop; a record with a
// live process or a running operation reports a conflict instead.
func (r *Record) ReplaceManifest(loaded manifest.Loaded) error {
	if !r.opMu.TryLock() {
		return plugerrors.NewConflictError(r.Name(), string(r.State()), "an operation is in progress")
	}
	defer r.opMu.Unlock()

	if state := r.State(); state.Active() {
		return plugerrors.NewConflictError(r.Name(), string(state), "cannot replace a plugin with a live process")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.man = loaded.Manifest
	r.dir = loaded.Dir
	r.binaryPath = loaded.BinaryPath
	if r.state == StateOrphaned {
		r.state = StateStopped
	}
	return nil
}

// SetSample stores the latest resource snapshot.
func (r *Record) SetSample(s *Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sample = s
}

// Status builds an immutable view for serialization.
func (r *Record) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	status := Status{
		Name:        r.man.Name,
		Version:     r.man.Version,
		Description: r.man.Description,
		Author:      r.man.Author,
		Category:    r.man.Category,
		Icon:        r.man.Icon,
		Dir:         r.dir,
		State:       r.state,
		PID:         r.pid,
		LastError:   r.lastError,
		Config:      r.effectiveConfigLocked(),
	}
	if r.lastExit != nil {
		code := *r.lastExit
		status.LastExit = &code
	}
	if !r.startedAt.IsZero() {
		started := r.startedAt
		status.StartedAt = &started
		status.Uptime = time.Since(started).Seconds()
	}
	if r.sample != nil {
		sample := *r.sample
		status.Sample = &sample
	}
	return status
}
