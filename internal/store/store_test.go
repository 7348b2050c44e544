package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenMissingFileIsEmpty(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "state", "overrides.json"))
	require.NoError(t, err)
	assert.Empty(t, s.All())
	assert.Nil(t, s.Get("anything"))
}

func TestPutGetRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overrides.json")
	s, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, s.Put("echo", map[string]any{"port": 9100, "debug": true}))

	got := s.Get("echo")
	assert.Equal(t, 9100, got["port"])
	assert.Equal(t, true, got["debug"])
}

func TestOverridesSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overrides.json")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Put("echo", map[string]any{"mode": "fast"}))

	reopened, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, "fast", reopened.Get("echo")["mode"])
}

func TestEmptyOverridesClearEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overrides.json")
	s, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, s.Put("echo", map[string]any{"mode": "fast"}))
	require.NoError(t, s.Put("echo", nil))

	assert.Nil(t, s.Get("echo"))

	reopened, err := Open(path)
	require.NoError(t, err)
	assert.Nil(t, reopened.Get("echo"))
}

func TestOpenRejectsCorruptDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overrides.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := Open(path)
	assert.Error(t, err)
}

func TestGetReturnsCopy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overrides.json")
	s, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, s.Put("echo", map[string]any{"mode": "fast"}))
	got := s.Get("echo")
	got["mode"] = "mutated"

	assert.Equal(t, "fast", s.Get("echo")["mode"])
}
