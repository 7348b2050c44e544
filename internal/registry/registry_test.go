package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborlight/plugind/internal/logger"
	"github.com/harborlight/plugind/internal/manifest"
	plugerrors "github.com/harborlight/plugind/pkg/errors"
)

func loadedFixture(name, dir string) manifest.Loaded {
	return manifest.Loaded{
		Manifest: manifest.Manifest{
			Name:    name,
			Version: "1.0.0",
			Binary:  "run.sh",
			DefaultConfig: map[string]any{
				"port": 9000,
				"args": []any{"--listen", ":9000"},
			},
		},
		Dir:        dir,
		BinaryPath: dir + "/run.sh",
	}
}

func newTestRegistry() *Registry {
	return New(100, logger.NewNop())
}

func TestRegisterAndGet(t *testing.T) {
	reg := newTestRegistry()
	require.NoError(t, reg.Register(loadedFixture("echo", "/plugins/echo")))

	record, err := reg.Get("echo")
	require.NoError(t, err)
	assert.Equal(t, "echo", record.Name())
	assert.Equal(t, StateStopped, record.State())
}

func TestGetUnknownReturnsNotFound(t *testing.T) {
	reg := newTestRegistry()
	_, err := reg.Get("nonexistent")
	require.Error(t, err)
	assert.Equal(t, plugerrors.KindNotFound, plugerrors.KindOf(err))
}

func TestRegisterReplaceRequiresInactiveState(t *testing.T) {
	reg := newTestRegistry()
	require.NoError(t, reg.Register(loadedFixture("echo", "/plugins/echo")))

	record, err := reg.Get("echo")
	require.NoError(t, err)
	record.MarkStarting(1234)
	record.MarkRunning()

	err = reg.Register(loadedFixture("echo", "/plugins/echo-v2"))
	require.Error(t, err)
	assert.Equal(t, plugerrors.KindConflict, plugerrors.KindOf(err))
	assert.Equal(t, "/plugins/echo", record.Dir())

	record.MarkExited(StateStopped, 0, "")
	require.NoError(t, reg.Register(loadedFixture("echo", "/plugins/echo-v2")))
	assert.Equal(t, "/plugins/echo-v2", record.Dir())
}

func TestRegisterReplaceConflictsDuringOperation(t *testing.T) {
	reg := newTestRegistry()
	require.NoError(t, reg.Register(loadedFixture("echo", "/plugins/echo")))

	record, err := reg.Get("echo")
	require.NoError(t, err)

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		record.WithExclusive(func() {
			close(held)
			<-release
		})
	}()
	<-held

	// A lifecycle operation owns the record; the replacement must not
	// slip in underneath it.
	err = reg.Register(loadedFixture("echo", "/plugins/echo-v2"))
	require.Error(t, err)
	assert.Equal(t, plugerrors.KindConflict, plugerrors.KindOf(err))
	assert.Equal(t, "/plugins/echo", record.Dir())

	close(release)
	<-done

	require.NoError(t, reg.Register(loadedFixture("echo", "/plugins/echo-v2")))
	assert.Equal(t, "/plugins/echo-v2", record.Dir())
}

func TestListIsSortedByName(t *testing.T) {
	reg := newTestRegistry()
	require.NoError(t, reg.Register(loadedFixture("zeta", "/plugins/zeta")))
	require.NoError(t, reg.Register(loadedFixture("alpha", "/plugins/alpha")))

	records := reg.List()
	require.Len(t, records, 2)
	assert.Equal(t, "alpha", records[0].Name())
	assert.Equal(t, "zeta", records[1].Name())
}

func TestRescanOrphansMissingPlugins(t *testing.T) {
	reg := newTestRegistry()
	require.NoError(t, reg.Register(loadedFixture("keeper", "/plugins/keeper")))
	require.NoError(t, reg.Register(loadedFixture("goner", "/plugins/goner")))

	reg.Rescan([]manifest.Loaded{loadedFixture("keeper", "/plugins/keeper")})

	keeper, err := reg.Get("keeper")
	require.NoError(t, err)
	assert.Equal(t, StateStopped, keeper.State())

	goner, err := reg.Get("goner")
	require.NoError(t, err)
	assert.Equal(t, StateOrphaned, goner.State())
}

func TestRescanDoesNotOrphanRunningPlugin(t *testing.T) {
	reg := newTestRegistry()
	require.NoError(t, reg.Register(loadedFixture("busy", "/plugins/busy")))

	record, err := reg.Get("busy")
	require.NoError(t, err)
	record.MarkStarting(77)
	record.MarkRunning()

	reg.Rescan(nil)
	assert.Equal(t, StateRunning, record.State())
}

func TestRescanRestoresOrphanWhenDirectoryReturns(t *testing.T) {
	reg := newTestRegistry()
	require.NoError(t, reg.Register(loadedFixture("flaky", "/plugins/flaky")))

	reg.Rescan(nil)
	record, err := reg.Get("flaky")
	require.NoError(t, err)
	require.Equal(t, StateOrphaned, record.State())

	reg.Rescan([]manifest.Loaded{loadedFixture("flaky", "/plugins/flaky")})
	assert.Equal(t, StateStopped, record.State())
}

func TestRemoveActivePluginConflicts(t *testing.T) {
	reg := newTestRegistry()
	require.NoError(t, reg.Register(loadedFixture("busy", "/plugins/busy")))

	record, err := reg.Get("busy")
	require.NoError(t, err)
	record.MarkStarting(88)

	err = reg.Remove("busy")
	require.Error(t, err)
	assert.Equal(t, plugerrors.KindConflict, plugerrors.KindOf(err))

	record.MarkExited(StateStopped, 0, "")
	require.NoError(t, reg.Remove("busy"))
	_, err = reg.Get("busy")
	assert.Error(t, err)
}

func TestEffectiveConfigOverlay(t *testing.T) {
	reg := newTestRegistry()
	require.NoError(t, reg.Register(loadedFixture("echo", "/plugins/echo")))

	record, err := reg.Get("echo")
	require.NoError(t, err)

	record.MergeOverrides(map[string]any{"port": 9100, "debug": true})
	config := record.EffectiveConfig()
	assert.Equal(t, 9100, config["port"])
	assert.Equal(t, true, config["debug"])
	assert.Equal(t, []any{"--listen", ":9000"}, config["args"])

	// Last write wins per key.
	record.MergeOverrides(map[string]any{"port": 9200})
	assert.Equal(t, 9200, record.EffectiveConfig()["port"])
	assert.Equal(t, true, record.EffectiveConfig()["debug"])
}

func TestStatusRetainsExitDiagnostics(t *testing.T) {
	reg := newTestRegistry()
	require.NoError(t, reg.Register(loadedFixture("echo", "/plugins/echo")))

	record, err := reg.Get("echo")
	require.NoError(t, err)
	record.MarkStarting(4321)
	record.MarkRunning()
	record.MarkExited(StateCrashed, 137, "killed by signal")

	status := record.Status()
	assert.Equal(t, StateCrashed, status.State)
	assert.Zero(t, status.PID)
	assert.Nil(t, status.StartedAt)
	require.NotNil(t, status.LastExit)
	assert.Equal(t, 137, *status.LastExit)
	assert.Equal(t, "killed by signal", status.LastError)

	// Diagnostics clear on the next start.
	record.MarkStarting(4322)
	status = record.Status()
	assert.Nil(t, status.LastExit)
	assert.Empty(t, status.LastError)
}

func TestStatePredicates(t *testing.T) {
	assert.True(t, StateRunning.Active())
	assert.True(t, StateStopping.Active())
	assert.False(t, StateCrashed.Active())

	assert.True(t, StateStopped.Startable())
	assert.True(t, StateCrashed.Startable())
	assert.True(t, StateFailedToStart.Startable())
	assert.True(t, StateOrphaned.Startable())
	assert.False(t, StateRunning.Startable())
	assert.False(t, StateStopping.Startable())
}

func TestCounts(t *testing.T) {
	reg := newTestRegistry()
	require.NoError(t, reg.Register(loadedFixture("a", "/plugins/a")))
	require.NoError(t, reg.Register(loadedFixture("b", "/plugins/b")))

	record, err := reg.Get("a")
	require.NoError(t, err)
	record.MarkStarting(1)
	record.MarkRunning()

	total, running := reg.Counts()
	assert.Equal(t, 2, total)
	assert.Equal(t, 1, running)
}
