// Package config loads the server configuration from the environment and
// resolves the writable data directory.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sakif/ourworld/internal/apperror"
)

// PlatformDataDir is the persistent disk mount used on the hosting
// platform when RENDER is set.
const PlatformDataDir = "/var/data/ourworld"

// DefaultPassword is used when OURWORLD_PASSWORD is unset.
const DefaultPassword = "starlight"

type Config struct {
	Port int

	// DataDirCandidates is the ordered list handed to ResolveDataDir.
	DataDirCandidates []string
	UploadDir         string
	StaticDir         string

	Password   string
	Production bool

	LogLevel slog.Level

	Login struct {
		Rate  float64 // attempts per second per client IP
		Burst int
	}

	MetricsEnabled bool

	// TrustedProxies are the peers whose X-Forwarded-For and X-Real-IP
	// headers are believed. Empty means the app is reached directly.
	TrustedProxies []netip.Prefix
}

// Load reads the configuration from the environment. Paths default to
// directories under the working directory.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: resolving working directory: %w", err)
	}

	cfg := &Config{}

	cfg.Port, err = strconv.Atoi(getenvDefault("PORT", "3000"))
	if err != nil || cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("config: invalid PORT %q", os.Getenv("PORT"))
	}

	cfg.DataDirCandidates = DataDirCandidates(cwd)
	cfg.UploadDir = getenvDefault("UPLOAD_DIR", filepath.Join(cwd, "uploads"))
	cfg.StaticDir = getenvDefault("STATIC_DIR", filepath.Join(cwd, "public"))

	cfg.Password = getenvDefault("OURWORLD_PASSWORD", DefaultPassword)
	cfg.Production = os.Getenv("NODE_ENV") == "production" ||
		os.Getenv("APP_ENV") == "production" ||
		os.Getenv("RENDER") == "true"

	if err := cfg.LogLevel.UnmarshalText([]byte(getenvDefault("LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("config: invalid LOG_LEVEL: %w", err)
	}

	cfg.Login.Rate, err = strconv.ParseFloat(getenvDefault("LOGIN_RATE", "0.2"), 64)
	if err != nil || cfg.Login.Rate <= 0 {
		return nil, fmt.Errorf("config: invalid LOGIN_RATE %q", os.Getenv("LOGIN_RATE"))
	}
	cfg.Login.Burst, err = strconv.Atoi(getenvDefault("LOGIN_BURST", "5"))
	if err != nil || cfg.Login.Burst < 1 {
		return nil, fmt.Errorf("config: invalid LOGIN_BURST %q", os.Getenv("LOGIN_BURST"))
	}

	cfg.MetricsEnabled = getenvBool("METRICS_ENABLED", !cfg.Production)

	cfg.TrustedProxies, err = ParseTrustedProxies(os.Getenv("TRUSTED_PROXIES"))
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// DataDirCandidates returns the data directories to try, most specific
// first: DATA_DIR, DATA_PATH, the platform disk when RENDER is set, and
// finally <base>/data.
func DataDirCandidates(base string) []string {
	var candidates []string
	if v := os.Getenv("DATA_DIR"); v != "" {
		candidates = append(candidates, v)
	}
	if v := os.Getenv("DATA_PATH"); v != "" {
		candidates = append(candidates, v)
	}
	if os.Getenv("RENDER") != "" {
		candidates = append(candidates, PlatformDataDir)
	}
	return append(candidates, filepath.Join(base, "data"))
}

// ResolveDataDir returns the first candidate that can be created and
// written to. Candidates that fail are logged and skipped; if none works
// the error wraps apperror.ErrStartup and the process should exit.
func ResolveDataDir(candidates []string, logger *slog.Logger) (string, error) {
	var errs []error
	for _, dir := range candidates {
		if err := probeWritable(dir); err != nil {
			logger.Warn("could not use data dir",
				slog.String("dir", dir),
				slog.String("error", err.Error()),
			)
			errs = append(errs, err)
			continue
		}
		logger.Info("using data directory", slog.String("dir", dir))
		return dir, nil
	}
	return "", apperror.Startup("no writable data directory available", errors.Join(errs...))
}

// probeWritable creates dir if needed and proves it is writable by creating
// and removing a file in it.
func probeWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

// ParseTrustedProxies parses a comma-separated list of CIDR ranges or
// single addresses ("10.0.0.0/8, 127.0.0.1").
func ParseTrustedProxies(list string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, entry := range strings.Split(list, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			p, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("config: invalid TRUSTED_PROXIES entry %q: %w", entry, err)
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("config: invalid TRUSTED_PROXIES entry %q: %w", entry, err)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return def
}
