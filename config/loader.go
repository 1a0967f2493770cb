package config

// loader.go - configuration loading from the environment and .env files.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/root.go)
//   2. Environment variables  (this file)
//   3. .env file  (this file, never overrides a variable already set)
//   4. Defaults   (defaults.go)

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoadDotEnv copies the variables defined in path into the process
// environment.  Variables that are already set keep their value, so the
// real environment always beats the file.  A missing file is not an
// error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// ── Environment variable mapping ─────────────────────────────────────
//
// Every supported env var uses the TCA_ prefix.  Boolean values accept
// "1", "true", "yes" (case-insensitive).  Durations accept Go syntax
// ("90s", "5m") or a bare number of seconds.

// LoadFromEnv overlays environment variables onto cfg.  Only non-empty
// env vars override the existing value.  This should be called BEFORE
// CLI flag parsing so that flags take precedence.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("TCA_HOST"); v != "" {
		cfg.Host = v
	}
	if v := envInt("TCA_PORT"); v > 0 {
		cfg.Port = v
	}
	if envBool("TCA_LISTEN") {
		cfg.Listen = true
	}

	// Relay
	if v, ok := envIntOK("TCA_HISTORY_LIMIT"); ok {
		cfg.HistoryLimit = v
	}
	if v, ok := envIntOK("TCA_MAX_SESSIONS"); ok {
		cfg.MaxSessions = v
	}
	if v, ok := envDuration("TCA_IDLE_TIMEOUT"); ok {
		cfg.IdleTimeout = v
	}
	if v := os.Getenv("TCA_ACCEPT_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.AcceptRate = f
		}
	}
	if v := os.Getenv("TCA_WS_LISTEN"); v != "" {
		cfg.WSListen = v
	}

	// Client
	if v := os.Getenv("TCA_NAME"); v != "" {
		cfg.Name = v
	}
	if envBool("TCA_WS") {
		cfg.WS = true
	}
	if v := os.Getenv("TCA_NOTIFY_CMD"); v != "" {
		cfg.NotifyCmd = v
	}
	if envBool("TCA_NO_NOTIFY") {
		cfg.NoNotify = true
	}
	if v, ok := envIntOK("TCA_RETRIES"); ok {
		cfg.Retries = v
	}

	// SSH gateway
	if v := os.Getenv("TCA_TUNNEL"); v != "" {
		cfg.TunnelSpec = v
	}
	if v := os.Getenv("TCA_SSH_KEY"); v != "" {
		cfg.SSHKeyPath = v
	}
	if envBool("TCA_SSH_PASSWORD") {
		cfg.SSHPassword = true
	}
	if envBool("TCA_SSH_AGENT") {
		cfg.UseSSHAgent = true
	}
	if envBool("TCA_STRICT_HOSTKEY") {
		cfg.StrictHostKey = true
	}
	if v := os.Getenv("TCA_KNOWN_HOSTS"); v != "" {
		cfg.KnownHostsPath = v
	}

	// Output
	if v := envInt("TCA_VERBOSE"); v > 0 {
		cfg.Verbose = v
	}
}

// ── helpers ──────────────────────────────────────────────────────────

func envInt(key string) int {
	n, _ := envIntOK(key)
	return n
}

// envIntOK distinguishes an explicit 0 from an unset or malformed value.
func envIntOK(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envBool(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "1" || v == "true" || v == "yes"
}

func envDuration(key string) (time.Duration, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d, true
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, true
	}
	return 0, false
}
