package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

// Env holds the environment that locates the external tools and the
// working area root.
type Env struct {
	StarlinkDir string `env:"STARLINK_DIR" envDefault:"/star"`
	SmurfDir    string `env:"SMURF_DIR"`
	KappaDir    string `env:"KAPPA_DIR"`

	// StarTemp is the root for working areas. Empty means os.TempDir.
	StarTemp string `env:"STAR_TEMP"`

	LogLevel string `env:"SKYLOOP_LOG_LEVEL" envDefault:"info"`
	Journal  string `env:"SKYLOOP_JOURNAL"`
}

// LoadEnv reads Env from the process environment, deriving the tool
// directories from STARLINK_DIR when they are unset.
func LoadEnv() (Env, error) {
	var e Env
	if err := env.Parse(&e); err != nil {
		return Env{}, fmt.Errorf("parse env: %w", err)
	}
	if e.SmurfDir == "" {
		e.SmurfDir = filepath.Join(e.StarlinkDir, "bin", "smurf")
	}
	if e.KappaDir == "" {
		e.KappaDir = filepath.Join(e.StarlinkDir, "bin", "kappa")
	}
	// Base configs refer to $STARLINK_DIR; make sure it expands even when
	// only the default was used.
	if os.Getenv("STARLINK_DIR") == "" {
		_ = os.Setenv("STARLINK_DIR", e.StarlinkDir)
	}
	return e, nil
}

// MakeMap is the path of the map-maker executable.
func (e Env) MakeMap() string { return filepath.Join(e.SmurfDir, "makemap") }

// MakeMapDefaults is the map-maker defaults file read by the introspector.
func (e Env) MakeMapDefaults() string { return filepath.Join(e.SmurfDir, "smurf_makemap.def") }

// ConfigEcho is the path of the parameter introspector.
func (e Env) ConfigEcho() string { return filepath.Join(e.KappaDir, "configecho") }

// Paste is the path of the file stacker.
func (e Env) Paste() string { return filepath.Join(e.KappaDir, "paste") }
