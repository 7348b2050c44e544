package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(Options{Level: "loudest"})
	require.Error(t, err)
}

func TestLoggerWritesStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Options{Level: "debug", Writer: &buf})
	require.NoError(t, err)

	log.WithComponent("supervisor").WithPlugin("echo").Info("started")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "supervisor", entry["component"])
	assert.Equal(t, "echo", entry["plugin"])
	assert.Equal(t, "started", entry["message"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Options{Level: "warn", Writer: &buf})
	require.NoError(t, err)

	log.Info("quiet")
	assert.Zero(t, buf.Len())

	log.Warn("loud")
	assert.NotZero(t, buf.Len())
}

func TestNilLoggerIsSafe(t *testing.T) {
	var log *Logger
	log.Info("no panic")
	log.Error(nil, "no panic")
	assert.Nil(t, log.WithComponent("x"))
}
