// SPDX-License-Identifier: MIT

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// Loader resolves the effective configuration from defaults, an optional
// YAML file, and the environment.
type Loader struct {
	path    string
	version string
	getenv  func(string) string
}

// NewLoader creates a loader. path may be empty (no config file).
func NewLoader(path, version string) *Loader {
	return &Loader{path: path, version: version, getenv: os.Getenv}
}

// WithGetenv overrides the environment source; used by tests.
func (l *Loader) WithGetenv(getenv func(string) string) *Loader {
	l.getenv = getenv
	return l
}

// Load produces a validated Config with precedence ENV > file > defaults.
func (l *Loader) Load() (Config, error) {
	cfg := Default()

	if l.path != "" {
		fileCfg, err := readFile(l.path, cfg)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			// Missing file is fine; env + defaults carry.
		case err != nil:
			return Config{}, fmt.Errorf("config file %s: %w", l.path, err)
		default:
			cfg = fileCfg
		}
	}

	cfg = ApplyEnv(cfg, l.getenv)
	cfg.Version = l.version

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func readFile(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied config path
	if err != nil {
		return Config{}, err
	}
	cfg := base
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse yaml: %w", err)
	}
	return cfg, nil
}
