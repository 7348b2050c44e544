package sampler

import (
	"bytes"
	"os"
	"os/exec"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborlight/plugind/internal/logger"
	"github.com/harborlight/plugind/internal/manifest"
	"github.com/harborlight/plugind/internal/registry"
)

func registryWithRecord(t *testing.T, name string) (*registry.Registry, *registry.Record) {
	t.Helper()

	reg := registry.New(100, logger.NewNop())
	require.NoError(t, reg.Register(manifest.Loaded{
		Manifest:   manifest.Manifest{Name: name, Binary: "run.sh"},
		Dir:        t.TempDir(),
		BinaryPath: "run.sh",
	}))
	record, err := reg.Get(name)
	require.NoError(t, err)
	return reg, record
}

func TestSampleRunningProcess(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("test relies on a POSIX sleep binary")
	}

	cmd := exec.Command("sleep", "30")
	require.NoError(t, cmd.Start())
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_, _ = cmd.Process.Wait()
	})

	reg, record := registryWithRecord(t, "sleeper")
	record.MarkStarting(cmd.Process.Pid)
	record.MarkRunning()

	s := New(reg, time.Second, logger.NewNop())
	s.SampleAll()

	status := record.Status()
	require.NotNil(t, status.Sample)
	assert.NotZero(t, status.Sample.MemoryRSS)
	assert.False(t, status.Sample.SampledAt.IsZero())
	assert.Greater(t, status.Uptime, 0.0)
}

func TestSampleGoneProcessDegradesToAbsent(t *testing.T) {
	reg, record := registryWithRecord(t, "ghost")
	// A pid that cannot exist keeps the snapshot absent without erroring.
	record.MarkStarting(1 << 22)
	record.MarkRunning()
	record.SetSample(&registry.Sample{CPUPercent: 1, MemoryRSS: 1, SampledAt: time.Now()})

	var buf bytes.Buffer
	log, err := logger.New(logger.Options{Level: "debug", Writer: &buf})
	require.NoError(t, err)

	s := New(reg, time.Second, log)
	s.SampleAll()

	assert.Nil(t, record.Status().Sample)
	// The failure is reported in taxonomy terms, never surfaced as an
	// API error.
	assert.Contains(t, buf.String(), "sampling unavailable for plugin ghost")
}

func TestOnlyRunningPluginsAreSampled(t *testing.T) {
	reg, record := registryWithRecord(t, "idle")
	require.Equal(t, registry.StateStopped, record.State())

	s := New(reg, time.Second, logger.NewNop())
	s.SampleAll()

	assert.Nil(t, record.Status().Sample)
}

func TestSystemInfoCounts(t *testing.T) {
	reg, record := registryWithRecord(t, "svc")
	record.MarkStarting(os.Getpid())
	record.MarkRunning()

	s := New(reg, time.Second, logger.NewNop())
	info := s.SystemInfo()

	assert.Equal(t, 1, info.PluginsTotal)
	assert.Equal(t, 1, info.PluginsRunning)
	assert.GreaterOrEqual(t, info.DaemonUptime, 0.0)
	assert.NotZero(t, info.MemoryTotal)
	assert.NotEmpty(t, info.Hostname)
}
