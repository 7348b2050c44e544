// Package config loads the daemon's own settings file. Fields the file
// leaves unset fall back to the shipped defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "150ms" or "5s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Settings is the daemon configuration.
type Settings struct {
	Listen         string   `yaml:"listen" validate:"required,hostname_port"`
	PluginDirs     []string `yaml:"plugin_dirs" validate:"required,min=1,dive,required"`
	OverridesPath  string   `yaml:"overrides_path" validate:"required"`
	LogLevel       string   `yaml:"log_level" validate:"omitempty,oneof=trace debug info warn error"`
	LogBufferLines int      `yaml:"log_buffer_lines" validate:"gt=0"`
	LivenessWindow Duration `yaml:"liveness_window" validate:"gt=0"`
	StopGrace      Duration `yaml:"stop_grace" validate:"gt=0"`
	KillWait       Duration `yaml:"kill_wait" validate:"gt=0"`
	SampleInterval Duration `yaml:"sample_interval" validate:"gt=0"`
}

// Defaults returns the shipped settings.
func Defaults() Settings {
	return Settings{
		Listen:         "127.0.0.1:7070",
		PluginDirs:     []string{"plugins"},
		OverridesPath:  "state/overrides.json",
		LogLevel:       "info",
		LogBufferLines: 1000,
		LivenessWindow: Duration(150 * time.Millisecond),
		StopGrace:      Duration(5 * time.Second),
		KillWait:       Duration(2 * time.Second),
		SampleInterval: Duration(5 * time.Second),
	}
}

// Load reads the settings file at path, fills unset fields from Defaults
// and validates the result. An empty path returns Defaults unchanged.
func Load(path string) (Settings, error) {
	settings := Defaults()
	if path == "" {
		return settings, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, err
	}

	// Decode over a zero value so we can tell which fields the file set.
	var fromFile Settings
	if err := yaml.Unmarshal(data, &fromFile); err != nil {
		return Settings{}, fmt.Errorf("failed to parse settings %s: %w", path, err)
	}
	settings.merge(fromFile)

	if err := validator.New().Struct(settings); err != nil {
		return Settings{}, fmt.Errorf("invalid settings %s: %w", path, err)
	}
	return settings, nil
}

func (s *Settings) merge(other Settings) {
	if other.Listen != "" {
		s.Listen = other.Listen
	}
	if len(other.PluginDirs) > 0 {
		s.PluginDirs = other.PluginDirs
	}
	if other.OverridesPath != "" {
		s.OverridesPath = other.OverridesPath
	}
	if other.LogLevel != "" {
		s.LogLevel = other.LogLevel
	}
	if other.LogBufferLines > 0 {
		s.LogBufferLines = other.LogBufferLines
	}
	if other.LivenessWindow > 0 {
		s.LivenessWindow = other.LivenessWindow
	}
	if other.StopGrace > 0 {
		s.StopGrace = other.StopGrace
	}
	if other.KillWait > 0 {
		s.KillWait = other.KillWait
	}
	if other.SampleInterval > 0 {
		s.SampleInterval = other.SampleInterval
	}
}
