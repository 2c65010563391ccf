package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/lox/tournamentd/cmd/tournamentd/shared"
	"github.com/lox/tournamentd/internal/config"
	"github.com/lox/tournamentd/internal/randutil"
	"github.com/lox/tournamentd/internal/server"
	"github.com/lox/tournamentd/internal/snapshot"
	"github.com/lox/tournamentd/internal/tournament"
)

// ServeCmd runs the daemon. Flags override the environment, which overrides
// the settings file.
type ServeCmd struct {
	Conf     string  `short:"c" type:"path" help:"Tournament configuration (JSON) applied at startup"`
	Port     *int    `short:"p" help:"First TCP port to try; higher ports are tried when it is taken (default ${default_port})"`
	Auth     []int   `short:"a" help:"Administrator code, may be repeated"`
	UnixDir  *string `name:"unix-dir" help:"Directory for the unix socket"`
	WSAddr   *string `name:"ws-addr" help:"Listen address for websocket clients, empty disables"`
	Settings string  `type:"path" default:"tournamentd.hcl" help:"Daemon settings file (HCL), skipped when missing"`
	Snapshot *string `help:"Crash-recovery snapshot path, empty disables"`
	Seed     *int64  `help:"Deterministic RNG seed for seating (optional)"`
	Debug    bool    `help:"Enable debug logging"`
	NoColor  bool    `name:"no-color" help:"Disable colored log output"`
}

func (c *ServeCmd) Run() error {
	settings, err := c.settings()
	if err != nil {
		return err
	}

	level := settings.LogLevel
	if c.Debug {
		level = "debug"
	}
	logger, err := shared.SetupLogger(level, settings.Color && !c.NoColor)
	if err != nil {
		return err
	}

	seed := randutil.SeedFrom(time.Now())
	if c.Seed != nil {
		seed = *c.Seed
		logger.Info("Using deterministic seed", "seed", seed)
	} else {
		logger.Debug("Using random seed", "seed", seed)
	}

	clock := quartz.NewReal()
	tour := tournament.New(tournament.Options{Clock: clock, Rand: randutil.New(seed), Logger: logger})

	store := snapshot.New(settings.Snapshot, logger)
	if err := restore(tour, store, logger); err != nil {
		return err
	}
	if c.Conf != "" {
		if err := applyConf(tour, c.Conf); err != nil {
			return err
		}
		logger.Info("Applied tournament configuration", "path", c.Conf)
	}

	for _, a := range settings.Auth {
		tour.Authorize(a.Code, a.Name)
	}
	for _, code := range c.Auth {
		tour.Authorize(code, "command line")
	}
	if len(tour.Config().AuthorizedClients) == 0 {
		logger.Warn("No administrator codes configured, clients can only read state")
	}

	listeners, err := listen(settings, logger)
	if err != nil {
		return err
	}

	srv := server.New(server.Options{
		Tournament: tour,
		Clock:      clock,
		Logger:     logger,
		Snapshot:   store,
		Tick:       settings.Tick,
		Version:    version,
	})

	ctx := shared.SetupSignalHandler(logger)
	logger.Info("Starting tournamentd", "version", version, "tick", settings.Tick, "snapshot", store.Path())
	if err := srv.Run(ctx, listeners); err != nil {
		return err
	}

	// a clean exit leaves nothing to recover
	if err := store.Remove(); err != nil {
		logger.Warn("Failed to remove snapshot", "error", err)
	}
	logger.Info("Shutdown complete")
	return nil
}

func (c *ServeCmd) settings() (config.Settings, error) {
	s, err := config.Load(c.Settings)
	if err != nil {
		return config.Settings{}, fmt.Errorf("error loading settings: %w", err)
	}
	if c.Port != nil {
		s.Port = *c.Port
	}
	if c.UnixDir != nil {
		s.UnixDir = *c.UnixDir
	}
	if c.WSAddr != nil {
		s.WSAddr = *c.WSAddr
	}
	if c.Snapshot != nil {
		s.Snapshot = *c.Snapshot
	}
	return s, s.Validate()
}

func restore(tour *tournament.Tournament, store *snapshot.Store, logger *log.Logger) error {
	snap, found, err := store.Load()
	if err != nil {
		logger.Warn("Ignoring unreadable snapshot", "path", store.Path(), "error", err)
		return nil
	}
	if !found {
		return nil
	}
	if err := tour.Restore(snap); err != nil {
		return fmt.Errorf("failed to restore snapshot %s: %w", store.Path(), err)
	}
	logger.Info("Recovered tournament from snapshot", "path", store.Path())
	return nil
}

func applyConf(tour *tournament.Tournament, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read configuration: %w", err)
	}
	var update tournament.ConfigUpdate
	if err := json.Unmarshal(data, &update); err != nil {
		return fmt.Errorf("failed to parse configuration %s: %w", path, err)
	}
	if _, err := tour.Configure(update); err != nil {
		return fmt.Errorf("invalid configuration %s: %w", path, err)
	}
	return nil
}

// listen opens the tcp listener, then the unix socket for the port actually
// bound and the websocket listener when configured. Only tcp is required.
func listen(s config.Settings, logger *log.Logger) (server.Listeners, error) {
	var ls server.Listeners

	tcp, port, err := server.ListenTCP("", s.Port)
	if err != nil {
		return ls, fmt.Errorf("failed to listen: %w", err)
	}
	if port != s.Port {
		logger.Info("Requested port in use", "requested", s.Port, "port", port)
	}
	ls.Stream = append(ls.Stream, tcp)

	if s.UnixDir != "" {
		unix, path, err := server.ListenUnix(s.UnixDir, port)
		switch {
		case errors.Is(err, os.ErrPermission):
			logger.Warn("No permission for unix socket, serving tcp only", "dir", s.UnixDir)
		case err != nil:
			logger.Warn("Failed to listen on unix socket, serving tcp only", "error", err)
		default:
			logger.Info("Unix socket ready", "path", path)
			ls.Stream = append(ls.Stream, unix)
		}
	}

	if s.WSAddr != "" {
		ln, err := (&net.ListenConfig{}).Listen(context.Background(), "tcp", s.WSAddr)
		if err != nil {
			for _, l := range ls.Stream {
				_ = l.Close()
			}
			return ls, fmt.Errorf("failed to listen for websocket clients: %w", err)
		}
		ls.HTTP = ln
	}
	return ls, nil
}
