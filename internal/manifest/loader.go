package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	plugerrors "github.com/harborlight/plugind/pkg/errors"
)

// manifestFiles lists the accepted descriptor file names, probed in order.
var manifestFiles = []string{"manifest.yaml", "manifest.yml", "manifest.json"}

// Load reads and validates the manifest in a single plugin directory.
func Load(dir string) (*Loaded, error) {
	path, err := findManifestFile(dir)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, plugerrors.NewInvalidManifestError(dir, fmt.Sprintf("reading %s", filepath.Base(path)), err)
	}

	var m Manifest
	if filepath.Ext(path) == ".json" {
		err = json.Unmarshal(data, &m)
	} else {
		err = yaml.Unmarshal(data, &m)
	}
	if err != nil {
		return nil, plugerrors.NewInvalidManifestError(dir, "parse failure", err)
	}

	if m.Category == "" {
		m.Category = "general"
	}

	if err := validate(&m); err != nil {
		return nil, plugerrors.NewInvalidManifestError(dir, err.Error(), err)
	}

	binaryPath := resolveBinary(dir, m.Binary)
	if !isExecutable(binaryPath) {
		return nil, plugerrors.NewMissingBinaryError(dir, m.Binary)
	}

	return &Loaded{Manifest: m, Dir: dir, BinaryPath: binaryPath}, nil
}

// Discover scans each root's immediate subdirectories for plugin manifests.
// Directories without any manifest file are skipped; directories with a bad
// manifest are reported as failures. Results are sorted by plugin name so
// discovery output is deterministic.
func Discover(roots ...string) ([]Loaded, []Failure) {
	var dirs []string
	for _, root := range roots {
		entries, err := os.ReadDir(root)
		if err != nil {
			// A missing root is not an error; the directory may simply
			// not have been populated yet.
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() {
				dirs = append(dirs, filepath.Join(root, entry.Name()))
			}
		}
	}

	var (
		mu       sync.Mutex
		loaded   []Loaded
		failures []Failure
	)

	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for _, dir := range dirs {
		g.Go(func() error {
			result, err := Load(dir)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				loaded = append(loaded, *result)
			case isNoManifest(err):
				// Not a plugin directory.
			default:
				failures = append(failures, Failure{Dir: dir, Err: err})
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(loaded, func(i, j int) bool { return loaded[i].Manifest.Name < loaded[j].Manifest.Name })
	sort.Slice(failures, func(i, j int) bool { return failures[i].Dir < failures[j].Dir })
	return loaded, failures
}

// errNoManifest marks directories that contain no descriptor at all.
type errNoManifest struct{ dir string }

func (e *errNoManifest) Error() string {
	return fmt.Sprintf("no manifest file in %s", e.dir)
}

func isNoManifest(err error) bool {
	_, ok := err.(*errNoManifest)
	return ok
}

func findManifestFile(dir string) (string, error) {
	for _, name := range manifestFiles {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", &errNoManifest{dir: dir}
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}
