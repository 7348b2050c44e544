// Package supervisor owns the plugin lifecycle state machine: it spawns,
// observes and terminates plugin processes, serializing all operations per
// plugin so at most one live OS process ever exists for a name.
package supervisor

import (
	"fmt"
	"os"
	"time"

	"github.com/harborlight/plugind/internal/logger"
	"github.com/harborlight/plugind/internal/registry"
	plugerrors "github.com/harborlight/plugind/pkg/errors"
)

// Settings carries the lifecycle timing knobs. Deployments tune them and
// tests pin them.
type Settings struct {
	// LivenessWindow is how long a spawned process must stay alive before
	// it counts as Running.
	LivenessWindow time.Duration
	// StopGrace is how long to wait after the termination signal before
	// force-killing.
	StopGrace time.Duration
	// KillWait bounds the wait for exit confirmation after a force kill.
	KillWait time.Duration
	// ErrorLogLines is how many trailing log lines are attached to spawn
	// failure diagnostics.
	ErrorLogLines int
}

// DefaultSettings returns the shipped timing defaults.
func DefaultSettings() Settings {
	return Settings{
		LivenessWindow: 150 * time.Millisecond,
		StopGrace:      5 * time.Second,
		KillWait:       2 * time.Second,
		ErrorLogLines:  5,
	}
}

// OverrideStore persists per-plugin config overrides so they survive a
// daemon restart. Persistence failures are logged, never fatal.
type OverrideStore interface {
	Put(plugin string, overrides map[string]any) error
}

// Supervisor drives plugin lifecycle transitions against the registry.
type Supervisor struct {
	reg      *registry.Registry
	settings Settings
	store    OverrideStore
	log      *logger.Logger

	procs procTable
}

// New creates a Supervisor. store may be nil to disable override
// persistence.
func New(reg *registry.Registry, settings Settings, store OverrideStore, log *logger.Logger) *Supervisor {
	return &Supervisor{
		reg:      reg,
		settings: settings,
		store:    store,
		log:      log.WithComponent("supervisor"),
	}
}

// Start launches the plugin's process and waits for it to survive the
// liveness window. Starting an already Starting/Running plugin is a no-op
// that reports the current state.
func (s *Supervisor) Start(name string) (registry.State, error) {
	record, err := s.reg.Get(name)
	if err != nil {
		return "", err
	}

	var (
		state registry.State
		opErr error
	)
	record.WithExclusive(func() {
		state, opErr = s.startLocked(record)
	})
	return state, opErr
}

// Stop terminates the plugin's process: termination signal, bounded grace
// wait, force kill. Stopping an already stopped plugin is a no-op success.
func (s *Supervisor) Stop(name string) (registry.State, error) {
	record, err := s.reg.Get(name)
	if err != nil {
		return "", err
	}

	var (
		state registry.State
		opErr error
	)
	record.WithExclusive(func() {
		state, opErr = s.stopLocked(record)
	})
	return state, opErr
}

// Restart composes stop then start under one per-plugin critical section,
// so no other caller can interleave between the two halves. A failed stop
// aborts the restart.
func (s *Supervisor) Restart(name string) (registry.State, error) {
	record, err := s.reg.Get(name)
	if err != nil {
		return "", err
	}

	var (
		state registry.State
		opErr error
	)
	record.WithExclusive(func() {
		state, opErr = s.stopLocked(record)
		if opErr != nil {
			return
		}
		state, opErr = s.startLocked(record)
	})
	return state, opErr
}

// UpdateConfig validates and merges overrides into the plugin's effective
// config. Valid in any state; a live process keeps its current arguments
// and only the next start reflects the change.
func (s *Supervisor) UpdateConfig(name string, overrides map[string]any) (map[string]any, error) {
	record, err := s.reg.Get(name)
	if err != nil {
		return nil, err
	}

	if err := validateOverrides(name, record.Manifest().DefaultConfig, overrides); err != nil {
		return nil, err
	}

	var merged map[string]any
	record.WithExclusive(func() {
		record.MergeOverrides(overrides)
		merged = record.EffectiveConfig()

		if s.store != nil {
			if err := s.store.Put(name, record.Overrides()); err != nil {
				s.log.WithPlugin(name).Error(err, "failed to persist config overrides")
			}
		}
	})
	return merged, nil
}

// StopAll stops every active plugin. Used during daemon shutdown.
func (s *Supervisor) StopAll() {
	for _, record := range s.reg.List() {
		if !record.State().Active() {
			continue
		}
		if _, err := s.Stop(record.Name()); err != nil {
			s.log.WithPlugin(record.Name()).Error(err, "shutdown stop failed")
		}
	}
}

func (s *Supervisor) startLocked(record *registry.Record) (registry.State, error) {
	name := record.Name()
	state := record.State()

	switch {
	case state == registry.StateStarting || state == registry.StateRunning:
		return state, nil
	case !state.Startable():
		return state, plugerrors.NewConflictError(name, string(state), "start is not valid in this state")
	}

	if state == registry.StateOrphaned {
		if _, err := os.Stat(record.Dir()); err != nil {
			return state, plugerrors.NewConflictError(name, string(state), "plugin directory no longer exists")
		}
	}

	p, err := s.spawn(record)
	if err != nil {
		record.MarkExited(registry.StateFailedToStart, -1, err.Error())
		return registry.StateFailedToStart, plugerrors.NewSpawnError(name, -1, nil, err)
	}

	log := s.log.WithPlugin(name)
	log.WithFields(map[string]any{"pid": p.cmd.Process.Pid}).Info("process spawned")

	select {
	case <-p.done:
		// Exited before the liveness window elapsed.
		tail := record.Logs().Tail(s.settings.ErrorLogLines)
		spawnErr := plugerrors.NewSpawnError(name, p.exitCode, tail, nil)
		record.MarkExited(registry.StateFailedToStart, p.exitCode, spawnErr.Error())
		s.procs.clear(name, p.generation)
		log.Error(spawnErr, "plugin failed to start")
		return registry.StateFailedToStart, spawnErr
	case <-time.After(s.settings.LivenessWindow):
		record.MarkRunning()
		log.Info("plugin running")
		return registry.StateRunning, nil
	}
}

func (s *Supervisor) stopLocked(record *registry.Record) (registry.State, error) {
	name := record.Name()
	state := record.State()

	if !state.Active() {
		return state, nil
	}

	p := s.procs.get(name)
	if p == nil {
		// No live handle despite an active state; reconcile the record.
		record.MarkExited(registry.StateStopped, -1, "")
		return registry.StateStopped, nil
	}

	log := s.log.WithPlugin(name)
	record.MarkStopping()

	if err := terminate(p.cmd); err != nil {
		log.Error(err, "termination signal failed")
	}

	select {
	case <-p.done:
	case <-time.After(s.settings.StopGrace):
		log.Warn(fmt.Sprintf("no exit after %s, force killing", s.settings.StopGrace))
		if err := p.cmd.Process.Kill(); err != nil {
			log.Error(err, "force kill failed")
		}
		select {
		case <-p.done:
		case <-time.After(s.settings.KillWait):
			// The process survived SIGKILL confirmation; leave the record
			// in Stopping for operator attention rather than lying about
			// the state.
			err := plugerrors.NewStopTimeoutError(name, p.cmd.Process.Pid)
			log.Error(err, "plugin did not exit after forced termination")
			return registry.StateStopping, err
		}
	}

	record.MarkExited(registry.StateStopped, p.exitCode, "")
	s.procs.clear(name, p.generation)
	log.Info("plugin stopped")
	return registry.StateStopped, nil
}
