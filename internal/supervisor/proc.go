package supervisor

import (
	"bufio"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/harborlight/plugind/internal/logring"
	"github.com/harborlight/plugind/internal/manifest"
	"github.com/harborlight/plugind/internal/registry"
)

// maxLogLineBytes bounds a single captured output line.
const maxLogLineBytes = 256 * 1024

// proc is the supervisor's exclusive handle on one live plugin process.
// done is closed by the reaper once the process exit has been collected;
// exitCode is valid only after that.
type proc struct {
	cmd        *exec.Cmd
	generation uint64
	done       chan struct{}
	exitCode   int
	pumps      sync.WaitGroup
}

// procTable maps plugin names to their live process handles.
type procTable struct {
	mu sync.Mutex
	m  map[string]*proc
}

func (t *procTable) put(name string, p *proc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.m == nil {
		t.m = make(map[string]*proc)
	}
	t.m[name] = p
}

func (t *procTable) get(name string) *proc {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.m[name]
}

// clear removes the handle only if it still belongs to the given
// generation, so a reaper finishing late cannot drop a newer process.
func (t *procTable) clear(name string, generation uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.m[name]; ok && p.generation == generation {
		delete(t.m, name)
	}
}

// spawn builds and starts the plugin's command from its effective config,
// wires stdout/stderr into the log ring and launches the reaper. Called
// with the record's operation lock held.
func (s *Supervisor) spawn(record *registry.Record) (*proc, error) {
	config := record.EffectiveConfig()

	cmd := exec.Command(record.BinaryPath(), manifest.Args(config)...)
	// The plugin's own directory is its working directory so relative
	// config and asset paths resolve.
	cmd.Dir = record.Dir()
	cmd.Env = os.Environ()
	for key, value := range manifest.Env(config) {
		cmd.Env = append(cmd.Env, key+"="+value)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}

	record.Logs().Reset()
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	p := &proc{
		cmd:        cmd,
		generation: record.MarkStarting(cmd.Process.Pid),
		done:       make(chan struct{}),
	}
	s.procs.put(record.Name(), p)

	p.pumps.Add(2)
	go pump(stdout, record.Logs(), &p.pumps)
	go pump(stderr, record.Logs(), &p.pumps)
	go s.reap(record, p)

	return p, nil
}

// pump copies one output stream into the ring buffer line by line. It
// never blocks on the buffer, so a slow API reader cannot stall the child.
func pump(stream io.Reader, ring *logring.Buffer, wg *sync.WaitGroup) {
	defer wg.Done()

	scanner := bufio.NewScanner(stream)
	scanner.Buffer(make([]byte, 64*1024), maxLogLineBytes)
	for scanner.Scan() {
		ring.Append(scanner.Text())
	}
}

// reap collects the process exit independent of any API call. An exit
// observed while the record is Running is a crash; one observed while the
// record is still Stopping finalizes a stop whose confirmation timed out.
// Anything else was already handled by the start or stop path holding the
// operation lock.
func (s *Supervisor) reap(record *registry.Record, p *proc) {
	p.pumps.Wait()
	err := p.cmd.Wait()
	p.exitCode = exitCodeOf(p.cmd, err)
	close(p.done)

	record.WithExclusive(func() {
		if record.Generation() != p.generation {
			return
		}

		switch record.State() {
		case registry.StateRunning:
			tail := record.Logs().Tail(s.settings.ErrorLogLines)
			lastErr := "process exited unexpectedly"
			if len(tail) > 0 {
				lastErr += ": " + tail[len(tail)-1]
			}
			record.MarkExited(registry.StateCrashed, p.exitCode, lastErr)
			s.procs.clear(record.Name(), p.generation)
			s.log.WithPlugin(record.Name()).WithFields(map[string]any{"exit_code": p.exitCode}).Warn("plugin crashed")
		case registry.StateStopping:
			record.MarkExited(registry.StateStopped, p.exitCode, "")
			s.procs.clear(record.Name(), p.generation)
			s.log.WithPlugin(record.Name()).Info("plugin exited after stop confirmation timed out")
		}
	})
}

// terminate requests graceful shutdown of the child.
func terminate(cmd *exec.Cmd) error {
	return cmd.Process.Signal(syscall.SIGTERM)
}

func exitCodeOf(cmd *exec.Cmd, waitErr error) int {
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	if waitErr != nil {
		return -1
	}
	return 0
}
