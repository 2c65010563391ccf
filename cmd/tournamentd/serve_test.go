package main

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/tournamentd/internal/config"
	"github.com/lox/tournamentd/internal/snapshot"
	"github.com/lox/tournamentd/internal/tournament"
)

func testLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.ErrorLevel})
}

func ptr[T any](v T) *T { return &v }

func TestServeSettingsPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tournamentd.hcl")
	require.NoError(t, os.WriteFile(path, []byte(`
listen {
  port     = 26000
  unix_dir = "/var/run/tournamentd"
}
auth "director" { code = 1234 }
`), 0o600))

	cmd := ServeCmd{Settings: path}
	s, err := cmd.settings()
	require.NoError(t, err)
	assert.Equal(t, 26000, s.Port)
	assert.Equal(t, "/var/run/tournamentd", s.UnixDir)
	assert.Equal(t, []config.AuthCode{{Name: "director", Code: 1234}}, s.Auth)

	t.Setenv("TOURNAMENTD_PORT", "26100")
	s, err = cmd.settings()
	require.NoError(t, err)
	assert.Equal(t, 26100, s.Port)

	cmd.Port = ptr(26200)
	cmd.Snapshot = ptr("")
	s, err = cmd.settings()
	require.NoError(t, err)
	assert.Equal(t, 26200, s.Port)
	assert.Empty(t, s.Snapshot)

	cmd.Port = ptr(70000)
	_, err = cmd.settings()
	assert.Error(t, err)
}

func TestApplyConf(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	tour := tournament.New(tournament.Options{Logger: testLogger()})

	good := filepath.Join(dir, "friday.json")
	require.NoError(t, os.WriteFile(good, []byte(`{
		"name": "Friday Night",
		"table_capacity": 9,
		"players": [{"player_id": "p1", "name": "Ann"}]
	}`), 0o600))
	require.NoError(t, applyConf(tour, good))
	cfg := tour.Config()
	assert.Equal(t, "Friday Night", cfg.Name)
	assert.Equal(t, 9, cfg.TableCapacity)
	assert.Len(t, cfg.Players, 1)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"table_capacity": -1}`), 0o600))
	err := applyConf(tour, bad)
	assert.ErrorIs(t, err, tournament.ErrInvalidArgument)
	assert.Equal(t, 9, tour.Config().TableCapacity, "rejected configuration is not applied")

	assert.Error(t, applyConf(tour, filepath.Join(dir, "missing.json")))
}

func TestRestoreFromSnapshot(t *testing.T) {
	t.Parallel()
	logger := testLogger()
	store := snapshot.New(filepath.Join(t.TempDir(), "snapshot.json"), logger)

	before := tournament.New(tournament.Options{Logger: logger})
	_, err := before.Configure(tournament.ConfigUpdate{Name: ptr("Recovered")})
	require.NoError(t, err)
	require.NoError(t, store.Save(before.Snapshot()))

	after := tournament.New(tournament.Options{Logger: logger})
	require.NoError(t, restore(after, store, logger))
	assert.Equal(t, "Recovered", after.Config().Name)

	t.Run("corrupt snapshots are skipped", func(t *testing.T) {
		require.NoError(t, os.WriteFile(store.Path(), []byte("{"), 0o600))
		fresh := tournament.New(tournament.Options{Logger: logger})
		require.NoError(t, restore(fresh, store, logger))
		assert.Empty(t, fresh.Config().Name)
	})
}

func TestListen(t *testing.T) {
	t.Parallel()
	s := config.Default()
	s.Port = 0
	s.UnixDir = t.TempDir()
	s.WSAddr = "127.0.0.1:0"

	ls, err := listen(s, testLogger())
	require.NoError(t, err)
	defer func() {
		for _, l := range ls.Stream {
			_ = l.Close()
		}
		_ = ls.HTTP.Close()
	}()

	require.Len(t, ls.Stream, 2)
	assert.Equal(t, "tcp", ls.Stream[0].Addr().Network())
	assert.Equal(t, "unix", ls.Stream[1].Addr().Network())
	require.NotNil(t, ls.HTTP)
}
