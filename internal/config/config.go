// Package config loads daemon settings: where to listen, where to keep the
// snapshot and how to log. Tournament configuration itself arrives over the
// wire as JSON and lives in the tournament package.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TOURNAMENTD_"

// DefaultPort is the first TCP port tried.
const DefaultPort = 25600

// Settings is the resolved daemon configuration.
type Settings struct {
	Port     int
	UnixDir  string
	WSAddr   string
	Tick     time.Duration
	Snapshot string
	LogLevel string
	Color    bool
	Auth     []AuthCode
}

// overrides are the settings that can come from the environment. Unset
// variables leave the current value alone.
type overrides struct {
	Port     int           `env:"PORT"`
	UnixDir  string        `env:"UNIX_DIR"`
	WSAddr   string        `env:"WS_ADDR"`
	Tick     time.Duration `env:"TICK"`
	Snapshot string        `env:"SNAPSHOT"`
	LogLevel string        `env:"LOG_LEVEL"`
	Color    bool          `env:"COLOR"`
}

// AuthCode is a pre-registered administrator code.
type AuthCode struct {
	Name string `hcl:"name,label"`
	Code int    `hcl:"code"`
}

// settingsFile mirrors the HCL layout; every block is optional.
type settingsFile struct {
	Listen   *listenBlock   `hcl:"listen,block"`
	Snapshot *snapshotBlock `hcl:"snapshot,block"`
	Log      *logBlock      `hcl:"log,block"`
	Auth     []AuthCode     `hcl:"auth,block"`
}

type listenBlock struct {
	Port    *int    `hcl:"port,optional"`
	UnixDir *string `hcl:"unix_dir,optional"`
	WSAddr  *string `hcl:"ws_addr,optional"`
	Tick    *string `hcl:"tick,optional"`
}

type snapshotBlock struct {
	Path string `hcl:"path"`
}

type logBlock struct {
	Level *string `hcl:"level,optional"`
	Color *bool   `hcl:"color,optional"`
}

// Default returns the settings used when nothing is configured.
func Default() Settings {
	return Settings{
		Port:     DefaultPort,
		UnixDir:  os.TempDir(),
		Tick:     100 * time.Millisecond,
		Snapshot: filepath.Join(os.TempDir(), "tournamentd.snapshot.json"),
		LogLevel: "info",
		Color:    true,
	}
}

// Load resolves settings from defaults, then the HCL file at path (skipped
// when empty or missing), then TOURNAMENTD_* environment variables.
func Load(path string) (Settings, error) {
	s := Default()
	if path != "" {
		if err := s.loadFile(path); err != nil {
			return Settings{}, err
		}
	}
	if err := s.loadEnv(); err != nil {
		return Settings{}, err
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func (s *Settings) loadFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var f settingsFile
	if diags := gohcl.DecodeBody(file.Body, nil, &f); diags.HasErrors() {
		return fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}

	if l := f.Listen; l != nil {
		if l.Port != nil {
			s.Port = *l.Port
		}
		if l.UnixDir != nil {
			s.UnixDir = *l.UnixDir
		}
		if l.WSAddr != nil {
			s.WSAddr = *l.WSAddr
		}
		if l.Tick != nil {
			tick, err := time.ParseDuration(*l.Tick)
			if err != nil {
				return fmt.Errorf("listen.tick: %w", err)
			}
			s.Tick = tick
		}
	}
	if f.Snapshot != nil {
		s.Snapshot = f.Snapshot.Path
	}
	if l := f.Log; l != nil {
		if l.Level != nil {
			s.LogLevel = *l.Level
		}
		if l.Color != nil {
			s.Color = *l.Color
		}
	}
	s.Auth = append(s.Auth, f.Auth...)
	return nil
}

func (s *Settings) loadEnv() error {
	o := overrides{
		Port:     s.Port,
		UnixDir:  s.UnixDir,
		WSAddr:   s.WSAddr,
		Tick:     s.Tick,
		Snapshot: s.Snapshot,
		LogLevel: s.LogLevel,
		Color:    s.Color,
	}
	if err := env.ParseWithOptions(&o, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("failed to read environment: %w", err)
	}
	s.Port, s.UnixDir, s.WSAddr, s.Tick = o.Port, o.UnixDir, o.WSAddr, o.Tick
	s.Snapshot, s.LogLevel, s.Color = o.Snapshot, o.LogLevel, o.Color
	return nil
}

// Validate checks the resolved settings.
func (s Settings) Validate() error {
	if s.Port < 0 || s.Port > 65535 {
		return fmt.Errorf("invalid port: %d", s.Port)
	}
	if s.Tick <= 0 {
		return fmt.Errorf("tick must be positive, got %s", s.Tick)
	}
	for _, a := range s.Auth {
		if a.Code == 0 {
			return fmt.Errorf("auth %q: code must be non-zero", a.Name)
		}
	}
	return nil
}
