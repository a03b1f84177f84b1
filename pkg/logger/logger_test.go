package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_Channels(t *testing.T) {
	log, mem := NewMemory()

	log.Info("Percy has started!")
	log.Warn("Build not created")
	log.Error("Error: %s", "boom")

	assert.Equal(t, []string{"[percy] Percy has started!"}, mem.Stdout())
	assert.Equal(t, []string{"[percy] Build not created", "[percy] Error: boom"}, mem.Stderr())
}

func TestLogger_DebugNamespace(t *testing.T) {
	log, mem := NewMemory()
	cfgLog := log.Namespace("config")

	cfgLog.Debug("hidden")
	assert.Empty(t, mem.Stdout())

	log.SetLevel(LevelDebug)
	cfgLog.Debug("found %d files", 2)
	cfgLog.Info("not namespaced")

	assert.Equal(t, []string{
		"[percy:config] found 2 files",
		"[percy] not namespaced",
	}, mem.Stdout())
}

func TestLogger_Levels(t *testing.T) {
	tests := []struct {
		name   string
		level  Level
		stdout int
		stderr int
	}{
		{"debug", LevelDebug, 2, 2},
		{"info", LevelInfo, 1, 2},
		{"warn", LevelWarn, 0, 2},
		{"error", LevelError, 0, 1},
		{"silent", LevelSilent, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, mem := NewMemory()
			log.SetLevel(tt.level)

			log.Debug("d")
			log.Info("i")
			log.Warn("w")
			log.Error("e")

			assert.Len(t, mem.Stdout(), tt.stdout)
			assert.Len(t, mem.Stderr(), tt.stderr)
		})
	}
}

func TestLogger_Multiline(t *testing.T) {
	log, mem := NewMemory()
	log.Error("validation failed:\n  - a: bad")

	assert.Equal(t, []string{"[percy] validation failed:", "[percy]   - a: bad"}, mem.Stderr())
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, LevelDebug, level)

	level, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, LevelInfo, level)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}
