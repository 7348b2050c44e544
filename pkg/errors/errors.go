// Package errors defines the stable error taxonomy surfaced by the
// orchestrator API. Every error carries a Kind that wire layers can map to
// a status code without string matching.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Kind is the stable identifier for an error family.
type Kind string

const (
	KindInvalidManifest  Kind = "invalid_manifest"
	KindMissingBinary    Kind = "missing_binary"
	KindNotFound         Kind = "not_found"
	KindConflict         Kind = "conflict"
	KindSpawnFailure     Kind = "spawn_failure"
	KindStopTimeout      Kind = "stop_timeout"
	KindSamplingFailure  Kind = "sampling_unavailable"
	KindConfigValidation Kind = "config_validation"
	KindInternal         Kind = "internal"
)

type kinder interface {
	ErrorKind() Kind
}

// KindOf extracts the Kind from any error in the chain, defaulting to
// KindInternal for untyped errors.
func KindOf(err error) Kind {
	var k kinder
	if stderrors.As(err, &k) {
		return k.ErrorKind()
	}
	return KindInternal
}

// ManifestError reports a plugin directory whose manifest could not be
// loaded, either because the document is invalid or the declared binary is
// absent.
type ManifestError struct {
	Dir     string
	Kind    Kind
	Message string
	Err     error
}

// NewInvalidManifestError constructs a ManifestError for a malformed or
// incomplete manifest document.
func NewInvalidManifestError(dir, message string, err error) error {
	return &ManifestError{Dir: dir, Kind: KindInvalidManifest, Message: message, Err: err}
}

// NewMissingBinaryError constructs a ManifestError for a manifest whose
// binary does not exist or is not executable.
func NewMissingBinaryError(dir, binary string) error {
	return &ManifestError{Dir: dir, Kind: KindMissingBinary, Message: fmt.Sprintf("binary %q not found or not executable", binary)}
}

func (e *ManifestError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("manifest error: %s: %s", e.Dir, e.Message)
}

// Unwrap exposes the underlying error.
func (e *ManifestError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ErrorKind returns the taxonomy kind.
func (e *ManifestError) ErrorKind() Kind { return e.Kind }

// NotFoundError indicates an operation referenced an unknown plugin name.
type NotFoundError struct {
	Plugin string
}

// NewNotFoundError constructs a NotFoundError.
func NewNotFoundError(plugin string) error {
	return &NotFoundError{Plugin: plugin}
}

func (e *NotFoundError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("plugin not found: %s", e.Plugin)
}

// ErrorKind returns the taxonomy kind.
func (e *NotFoundError) ErrorKind() Kind { return KindNotFound }

// ConflictError indicates an operation that is invalid for the plugin's
// current lifecycle state.
type ConflictError struct {
	Plugin  string
	State   string
	Message string
}

// NewConflictError constructs a ConflictError.
func NewConflictError(plugin, state, message string) error {
	return &ConflictError{Plugin: plugin, State: state, Message: message}
}

func (e *ConflictError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("conflict on plugin %s (state %s): %s", e.Plugin, e.State, e.Message)
}

// ErrorKind returns the taxonomy kind.
func (e *ConflictError) ErrorKind() Kind { return KindConflict }

// SpawnError reports an OS-level failure to launch a plugin binary, or a
// process that exited before surviving the liveness window. ExitCode is -1
// when the process never ran; LogTail holds the last captured output lines.
type SpawnError struct {
	Plugin   string
	ExitCode int
	LogTail  []string
	Err      error
}

// NewSpawnError constructs a SpawnError.
func NewSpawnError(plugin string, exitCode int, logTail []string, err error) error {
	return &SpawnError{Plugin: plugin, ExitCode: exitCode, LogTail: logTail, Err: err}
}

func (e *SpawnError) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("failed to start plugin %s", e.Plugin)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	} else if e.ExitCode >= 0 {
		msg += fmt.Sprintf(": exited with code %d before liveness window elapsed", e.ExitCode)
	}
	if len(e.LogTail) > 0 {
		msg += "; last output: " + strings.Join(e.LogTail, " | ")
	}
	return msg
}

// Unwrap exposes the underlying error.
func (e *SpawnError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ErrorKind returns the taxonomy kind.
func (e *SpawnError) ErrorKind() Kind { return KindSpawnFailure }

// StopTimeoutError indicates forced termination did not confirm process
// exit within the configured bound. The plugin is left in Stopping and
// requires operator attention.
type StopTimeoutError struct {
	Plugin string
	PID    int
}

// NewStopTimeoutError constructs a StopTimeoutError.
func NewStopTimeoutError(plugin string, pid int) error {
	return &StopTimeoutError{Plugin: plugin, PID: pid}
}

func (e *StopTimeoutError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("plugin %s (pid %d) did not exit after forced termination", e.Plugin, e.PID)
}

// ErrorKind returns the taxonomy kind.
func (e *StopTimeoutError) ErrorKind() Kind { return KindStopTimeout }

// ConfigValidationError indicates a rejected configuration override.
type ConfigValidationError struct {
	Plugin  string
	Key     string
	Message string
}

// NewConfigValidationError constructs a ConfigValidationError.
func NewConfigValidationError(plugin, key, message string) error {
	return &ConfigValidationError{Plugin: plugin, Key: key, Message: message}
}

func (e *ConfigValidationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Key != "" {
		return fmt.Sprintf("invalid config for plugin %s: key %q: %s", e.Plugin, e.Key, e.Message)
	}
	return fmt.Sprintf("invalid config for plugin %s: %s", e.Plugin, e.Message)
}

// ErrorKind returns the taxonomy kind.
func (e *ConfigValidationError) ErrorKind() Kind { return KindConfigValidation }

// SamplingError reports a failed resource sample. It never crosses the API
// boundary; the sampler degrades the snapshot instead.
type SamplingError struct {
	Plugin string
	Err    error
}

// NewSamplingError constructs a SamplingError.
func NewSamplingError(plugin string, err error) error {
	return &SamplingError{Plugin: plugin, Err: err}
}

func (e *SamplingError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("sampling unavailable for plugin %s: %v", e.Plugin, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SamplingError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ErrorKind returns the taxonomy kind.
func (e *SamplingError) ErrorKind() Kind { return KindSamplingFailure }
