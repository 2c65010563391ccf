package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSettings(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tournamentd.hcl")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	s, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultPort, s.Port)
	assert.Equal(t, 100*time.Millisecond, s.Tick)
	assert.Equal(t, "info", s.LogLevel)
	assert.Equal(t, "tournamentd.snapshot.json", filepath.Base(s.Snapshot))

	s, err = Load(filepath.Join(t.TempDir(), "missing.hcl"))
	require.NoError(t, err)
	assert.Equal(t, DefaultPort, s.Port)
}

func TestLoadFile(t *testing.T) {
	path := writeSettings(t, `
listen {
  port     = 25700
  unix_dir = "/var/run"
  ws_addr  = ":25680"
  tick     = "250ms"
}

snapshot {
  path = "/var/lib/tournamentd/state.json"
}

log {
  level = "debug"
  color = false
}

auth "director" {
  code = 1234
}

auth "floor" {
  code = 5678
}
`)

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 25700, s.Port)
	assert.Equal(t, "/var/run", s.UnixDir)
	assert.Equal(t, ":25680", s.WSAddr)
	assert.Equal(t, 250*time.Millisecond, s.Tick)
	assert.Equal(t, "/var/lib/tournamentd/state.json", s.Snapshot)
	assert.Equal(t, "debug", s.LogLevel)
	assert.False(t, s.Color)
	assert.Equal(t, []AuthCode{{Name: "director", Code: 1234}, {Name: "floor", Code: 5678}}, s.Auth)
}

func TestLoadEnvironmentOverridesFile(t *testing.T) {
	path := writeSettings(t, `listen { port = 25700 }`)
	t.Setenv("TOURNAMENTD_PORT", "26000")
	t.Setenv("TOURNAMENTD_SNAPSHOT", "/tmp/snap.json")
	t.Setenv("TOURNAMENTD_TICK", "1s")

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 26000, s.Port)
	assert.Equal(t, "/tmp/snap.json", s.Snapshot)
	assert.Equal(t, time.Second, s.Tick)
}

func TestLoadErrors(t *testing.T) {
	t.Run("bad syntax", func(t *testing.T) {
		_, err := Load(writeSettings(t, `listen {`))
		assert.Error(t, err)
	})

	t.Run("bad tick", func(t *testing.T) {
		_, err := Load(writeSettings(t, `listen { tick = "soon" }`))
		assert.Error(t, err)
	})

	t.Run("zero auth code", func(t *testing.T) {
		_, err := Load(writeSettings(t, `auth "x" { code = 0 }`))
		assert.Error(t, err)
	})

	t.Run("port out of range", func(t *testing.T) {
		t.Setenv("TOURNAMENTD_PORT", "70000")
		_, err := Load("")
		assert.Error(t, err)
	})
}
