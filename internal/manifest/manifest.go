// Package manifest loads and validates plugin manifest descriptors. A
// plugin directory holds a manifest file (manifest.yaml, manifest.yml or
// manifest.json) next to the binary it declares.
package manifest

import "path/filepath"

// Manifest describes a plugin's identity, binary location and default
// configuration. Immutable once loaded. Unknown document fields are
// tolerated and dropped.
type Manifest struct {
	Name          string         `yaml:"name" json:"name" validate:"required,plugin_name"`
	Version       string         `yaml:"version" json:"version"`
	Description   string         `yaml:"description" json:"description"`
	Author        string         `yaml:"author" json:"author"`
	Binary        string         `yaml:"binary" json:"binary" validate:"required"`
	Category      string         `yaml:"category" json:"category"`
	Icon          string         `yaml:"icon" json:"icon"`
	DefaultConfig map[string]any `yaml:"default_config" json:"default_config"`
}

// Loaded pairs a validated manifest with the directory it was found in and
// the resolved absolute binary path.
type Loaded struct {
	Manifest   Manifest
	Dir        string
	BinaryPath string
}

// Failure records a plugin directory whose manifest could not be loaded.
// One bad directory never aborts discovery of the others.
type Failure struct {
	Dir string
	Err error
}

// Args returns the ordered command-line arguments declared by a config
// mapping, or nil when absent or malformed.
func Args(config map[string]any) []string {
	raw, ok := config["args"]
	if !ok {
		return nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	args := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil
		}
		args = append(args, s)
	}
	return args
}

// Env returns the environment variables declared by a config mapping under
// the "env" key, or nil when absent or malformed.
func Env(config map[string]any) map[string]string {
	raw, ok := config["env"]
	if !ok {
		return nil
	}
	mapping, ok := raw.(map[string]any)
	if !ok {
		return nil
	}
	env := make(map[string]string, len(mapping))
	for key, value := range mapping {
		s, ok := value.(string)
		if !ok {
			return nil
		}
		env[key] = s
	}
	return env
}

// resolveBinary joins the manifest's relative binary path with the plugin
// directory. Absolute paths in manifests are kept as-is.
func resolveBinary(dir, binary string) string {
	if filepath.IsAbs(binary) {
		return binary
	}
	return filepath.Join(dir, binary)
}
