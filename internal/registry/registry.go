package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/harborlight/plugind/internal/logger"
	"github.com/harborlight/plugind/internal/manifest"
	plugerrors "github.com/harborlight/plugind/pkg/errors"
)

// Registry holds every discovered plugin record, indexed by name.
type Registry struct {
	mu          sync.RWMutex
	records     map[string]*Record
	logCapacity int
	log         *logger.Logger
}

// New creates an empty Registry. logCapacity bounds each record's log ring.
func New(logCapacity int, log *logger.Logger) *Registry {
	return &Registry{
		records:     make(map[string]*Record),
		logCapacity: logCapacity,
		log:         log.WithComponent("registry"),
	}
}

// Register inserts or replaces a record by manifest name. Replacing an
// existing entry requires it to be in a non-active state with no lifecycle
// operation in flight.
func (r *Registry) Register(loaded manifest.Loaded) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.records[loaded.Manifest.Name]; ok {
		return existing.ReplaceManifest(loaded)
	}

	r.records[loaded.Manifest.Name] = newRecord(loaded, r.logCapacity)
	r.log.WithPlugin(loaded.Manifest.Name).Info("plugin registered")
	return nil
}

// Get returns the record for name.
func (r *Registry) Get(name string) (*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.records[name]
	if !ok {
		return nil, plugerrors.NewNotFoundError(name)
	}
	return record, nil
}

// List returns all records sorted by name.
func (r *Registry) List() []*Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	records := make([]*Record, 0, len(r.records))
	for _, record := range r.records {
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Name() < records[j].Name() })
	return records
}

// Statuses returns a point-in-time view of every record. Each record's
// state is read atomically; the registry is not locked while serializing.
func (r *Registry) Statuses() []Status {
	records := r.List()
	statuses := make([]Status, 0, len(records))
	for _, record := range records {
		statuses = append(statuses, record.Status())
	}
	return statuses
}

// Rescan reconciles the registry against a fresh discovery result: new
// plugins are added, known inactive plugins pick up manifest changes, and
// records whose directory disappeared are marked orphaned.
func (r *Registry) Rescan(loaded []manifest.Loaded) {
	seen := make(map[string]struct{}, len(loaded))
	for _, l := range loaded {
		seen[l.Manifest.Name] = struct{}{}
		if err := r.Register(l); err != nil {
			// A live process keeps its old manifest until stopped.
			r.log.WithPlugin(l.Manifest.Name).Warn(fmt.Sprintf("rescan skipped manifest refresh: %v", err))
		}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for name, record := range r.records {
		if _, ok := seen[name]; !ok {
			record.MarkOrphaned()
			r.log.WithPlugin(name).Warn("plugin directory disappeared, record orphaned")
		}
	}
}

// Remove deletes a record. Valid only when no live process exists.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[name]
	if !ok {
		return plugerrors.NewNotFoundError(name)
	}
	if state := record.State(); state.Active() {
		return plugerrors.NewConflictError(name, string(state), "stop the plugin before removing it")
	}
	delete(r.records, name)
	return nil
}

// Counts reports the total and running plugin counts.
func (r *Registry) Counts() (total, running int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total = len(r.records)
	for _, record := range r.records {
		if record.State() == StateRunning {
			running++
		}
	}
	return total, running
}
