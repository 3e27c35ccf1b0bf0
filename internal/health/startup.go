// SPDX-License-Identifier: MIT

package health

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/moodpulse/moodpulse/internal/config"
	"github.com/moodpulse/moodpulse/internal/log"
)

// PerformStartupChecks validates the environment before the engine binds
// its listener. Failures here map to the EX_UNAVAILABLE / EX_IOERR exit
// paths in main.
func PerformStartupChecks(cfg config.Config) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Msg("running pre-flight startup checks")

	if err := checkListenAddr(cfg.ListenAddr); err != nil {
		return fmt.Errorf("listen address check failed: %w", err)
	}
	if cfg.OutcomeSnapshotDir != "" {
		if err := checkWritableDir(logger, cfg.OutcomeSnapshotDir); err != nil {
			return fmt.Errorf("snapshot directory check failed: %w", err)
		}
	}
	if err := checkWritableDir(logger, filepath.Dir(cfg.OutcomeLogPath)); err != nil {
		return fmt.Errorf("outcome log directory check failed: %w", err)
	}
	for name, raw := range map[string]string{
		"bus":            cfg.BusURL,
		"identity store": cfg.IdentityStoreURL,
	} {
		if raw == "" {
			continue
		}
		if err := checkRedisURL(raw); err != nil {
			return fmt.Errorf("%s URL check failed: %w", name, err)
		}
	}

	logger.Info().Msg("all startup checks passed")
	return nil
}

func checkListenAddr(addr string) error {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	if port == "" {
		return fmt.Errorf("listen address %q has no port", addr)
	}
	return nil
}

func checkWritableDir(logger zerolog.Logger, path string) error {
	if path == "" || path == "." {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Info().Str("path", path).Msg("creating data directory")
			return os.MkdirAll(path, 0o750)
		}
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	probe := filepath.Join(path, ".write_test")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return fmt.Errorf("directory is not writable: %s: %w", path, err)
	}
	return os.Remove(probe)
}

func checkRedisURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host in %q", raw)
	}
	return nil
}
