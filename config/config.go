// Package config defines the runtime configuration for the relay server
// and the chat client, and provides helpers for parsing SSH gateway
// specifications.
package config

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	chaterr "github.com/mitnichiter/TCA-terminal-chat-app/internal/errors"
	"github.com/mitnichiter/TCA-terminal-chat-app/util"
)

// Config holds every tuneable for one run of tca, in either role.
type Config struct {
	// ── Connection ───────────────────────────────────────────────────
	Host    string // bind host (server) or relay host (client)
	Port    int
	Listen  bool
	Timeout time.Duration // client dial timeout

	// ── Relay ────────────────────────────────────────────────────────
	HistoryLimit int           // 0 keeps every message
	MaxSessions  int           // 0 is unbounded
	IdleTimeout  time.Duration // 0 disables
	AcceptRate   float64       // accepts per second, 0 is unlimited
	ReadBufSize  int
	OutboxSize   int
	WriteTimeout time.Duration
	GracePeriod  time.Duration
	WSListen     string // optional host:port for the WebSocket listener
	WSPath       string

	// ── Client ───────────────────────────────────────────────────────
	Name      string
	WS        bool // reach the relay over WebSocket instead of raw TCP
	NotifyCmd string
	NoNotify  bool
	Retries   int

	// ── SSH gateway ──────────────────────────────────────────────────
	TunnelSpec     string // raw [user@]host[:port] from -T
	TunnelEnabled  bool
	TunnelUser     string
	TunnelHost     string
	TunnelPort     int
	SSHKeyPath     string
	SSHPassword    bool // true → prompt interactively
	UseSSHAgent    bool
	StrictHostKey  bool
	KnownHostsPath string

	// ── Output ───────────────────────────────────────────────────────
	Verbose int
	DryRun  bool
	EnvFile string
}

// Default returns a Config populated from defaults.go.
func Default() *Config {
	return &Config{
		Port:         DefaultPort,
		Timeout:      DefaultConnTimeout,
		ReadBufSize:  DefaultReadBufSize,
		OutboxSize:   DefaultOutboxSize,
		WriteTimeout: DefaultWriteTimeout,
		GracePeriod:  DefaultGracePeriod,
		WSPath:       DefaultWSPath,
		NotifyCmd:    DefaultNotifyCmd,
		EnvFile:      DefaultEnvFile,
		Verbose:      1,
	}
}

// Addr returns host:port, substituting [DefaultBindHost] for an empty
// host in listen mode.
func (c *Config) Addr() string {
	host := c.Host
	if host == "" && c.Listen {
		host = DefaultBindHost
	}
	return util.FormatAddr(host, c.Port)
}

// ── Tunnel-spec parser ───────────────────────────────────────────────

// tunnelRe matches [user@]host[:port].
var tunnelRe = regexp.MustCompile(`^(?:([^@]+)@)?([^:]+)(?::(\d+))?$`)

// ParseTunnelSpec extracts user, host, and port from a string such as
// "admin@bastion.example.com:2222".  Port defaults to 22.
func ParseTunnelSpec(spec string) (user, host string, port int, err error) {
	m := tunnelRe.FindStringSubmatch(spec)
	if m == nil {
		return "", "", 0, fmt.Errorf("invalid tunnel spec %q: expected [user@]host[:port]", spec)
	}
	user = m[1]
	host = m[2]
	port = DefaultSSHPort
	if m[3] != "" {
		port, err = strconv.Atoi(m[3])
		if err != nil || port < 1 || port > 65535 {
			return "", "", 0, fmt.Errorf("invalid tunnel port %q", m[3])
		}
	}
	return user, host, port, nil
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration is internally consistent.  The
// returned error is a *chaterr.ConfigError naming the offending flag.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return &chaterr.ConfigError{
			Field: "port", Value: c.Port,
			Message: "out of range 1-65535",
			Hint:    fmt.Sprintf("the relay listens on %d unless told otherwise", DefaultPort),
		}
	}

	if c.Listen {
		if c.TunnelEnabled {
			return &chaterr.ConfigError{
				Field: "tunnel", Value: c.TunnelSpec,
				Message: "the relay cannot listen through an SSH gateway",
				Hint:    "use -T on the client side to reach a relay behind a bastion",
			}
		}
		if c.WS {
			return &chaterr.ConfigError{
				Field: "ws", Message: "is a client option",
				Hint: "use --ws-listen to accept WebSocket sessions on the relay",
			}
		}
	} else {
		if c.Host == "" {
			return &chaterr.ConfigError{
				Field: "host", Message: "relay host is required",
				Hint: "tca HOST [PORT], or tca -l to run the relay",
			}
		}
		if c.WSListen != "" {
			return &chaterr.ConfigError{
				Field: "ws-listen", Value: c.WSListen,
				Message: "requires -l",
			}
		}
		if c.TunnelEnabled && c.WS {
			return &chaterr.ConfigError{
				Field: "ws", Message: "cannot be combined with -T",
			}
		}
	}

	if c.TunnelEnabled && c.TunnelHost == "" {
		return &chaterr.ConfigError{
			Field: "tunnel", Value: c.TunnelSpec, Message: "gateway host is required",
		}
	}

	for _, f := range []struct {
		name string
		v    int
		hint string
	}{
		{"history-limit", c.HistoryLimit, "use 0 to keep every message"},
		{"max-sessions", c.MaxSessions, "use 0 for no limit"},
		{"retries", c.Retries, "use 0 to connect once"},
	} {
		if f.v < 0 {
			return &chaterr.ConfigError{
				Field: f.name, Value: f.v, Message: "must not be negative", Hint: f.hint,
			}
		}
	}

	if c.AcceptRate < 0 {
		return &chaterr.ConfigError{
			Field: "accept-rate", Value: c.AcceptRate,
			Message: "must not be negative", Hint: "use 0 for no limit",
		}
	}
	if c.IdleTimeout < 0 {
		return &chaterr.ConfigError{
			Field: "idle-timeout", Value: c.IdleTimeout,
			Message: "must not be negative", Hint: "use 0 to disable",
		}
	}
	if c.ReadBufSize < 1 {
		return &chaterr.ConfigError{Field: "read-buffer", Value: c.ReadBufSize, Message: "must be positive"}
	}
	if c.OutboxSize < 1 {
		return &chaterr.ConfigError{Field: "outbox", Value: c.OutboxSize, Message: "must be positive"}
	}

	return nil
}
