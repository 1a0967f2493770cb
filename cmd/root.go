// Package cmd wires up the CLI flags and dispatches to the core modes.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/mitnichiter/TCA-terminal-chat-app/config"
	"github.com/mitnichiter/TCA-terminal-chat-app/internal/core"
	"github.com/mitnichiter/TCA-terminal-chat-app/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X github.com/mitnichiter/TCA-terminal-chat-app/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// stdout receives --version and --dry-run output; swapped in tests.
var stdout io.Writer = os.Stdout //nolint:gochecknoglobals

// cliFlags are the flags that do not map onto a Config field.
type cliFlags struct {
	timeoutSec  int
	verbose     int // added to the configured level
	showVersion bool
	showHelp    bool
}

// newFlagSet binds every flag to cfg, using cfg's current values as the
// defaults, so that flags only override what the user actually passes.
func newFlagSet(cfg *config.Config, cli *cliFlags) *flag.FlagSet {
	fs := flag.NewFlagSet("tca", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	// ── connection ───────────────────────────────────────────────
	fs.BoolVarP(&cfg.Listen, "listen", "l", cfg.Listen, "Run the relay server")
	fs.IntVarP(&cfg.Port, "port", "p", cfg.Port, "Relay port")
	fs.IntVarP(&cli.timeoutSec, "timeout", "w", int(cfg.Timeout/time.Second), "Dial timeout in seconds")

	// ── relay ────────────────────────────────────────────────────
	fs.IntVar(&cfg.HistoryLimit, "history-limit", cfg.HistoryLimit, "Messages kept for replay (0 keeps all)")
	fs.IntVar(&cfg.MaxSessions, "max-sessions", cfg.MaxSessions, "Concurrent sessions allowed (0 is unlimited)")
	fs.DurationVar(&cfg.IdleTimeout, "idle-timeout", cfg.IdleTimeout, "Disconnect silent sessions after this long (0 disables)")
	fs.Float64Var(&cfg.AcceptRate, "accept-rate", cfg.AcceptRate, "Connections accepted per second (0 is unlimited)")
	fs.StringVar(&cfg.WSListen, "ws-listen", cfg.WSListen, "Also accept WebSocket sessions on host:port")

	// ── client ───────────────────────────────────────────────────
	fs.StringVarP(&cfg.Name, "name", "n", cfg.Name, "Display name (prompted for when omitted)")
	fs.BoolVar(&cfg.WS, "ws", cfg.WS, "Reach the relay over WebSocket")
	fs.StringVar(&cfg.NotifyCmd, "notify-cmd", cfg.NotifyCmd, "Notification command; {title} and {body} are substituted")
	fs.BoolVar(&cfg.NoNotify, "no-notify", cfg.NoNotify, "Disable desktop notifications")
	fs.IntVar(&cfg.Retries, "retries", cfg.Retries, "Extra connection attempts")

	// ── SSH gateway ──────────────────────────────────────────────
	fs.StringVarP(&cfg.TunnelSpec, "tunnel", "T", cfg.TunnelSpec, "Reach the relay through SSH gateway [user@]host[:port]")
	fs.StringVar(&cfg.SSHKeyPath, "ssh-key", cfg.SSHKeyPath, "SSH private key file")
	fs.BoolVar(&cfg.SSHPassword, "ssh-password", cfg.SSHPassword, "Prompt for SSH password")
	fs.BoolVar(&cfg.UseSSHAgent, "ssh-agent", cfg.UseSSHAgent, "Use SSH agent")
	fs.BoolVar(&cfg.StrictHostKey, "strict-hostkey", cfg.StrictHostKey, "Verify SSH host keys")
	fs.StringVar(&cfg.KnownHostsPath, "known-hosts", cfg.KnownHostsPath, "Custom known_hosts path")

	// ── output ───────────────────────────────────────────────────
	fs.CountVarP(&cli.verbose, "verbose", "v", "Increase verbosity (repeatable)")
	fs.StringVar(&cfg.EnvFile, "env-file", cfg.EnvFile, "Load TCA_* variables from this file")
	fs.BoolVar(&cfg.DryRun, "dry-run", cfg.DryRun, "Validate and print the configuration, then exit")
	fs.BoolVar(&cli.showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&cli.showHelp, "help", "h", false, "Show this help")

	return fs
}

// Execute parses args and runs the relay or the client.
func Execute(ctx context.Context, args []string) error {
	// First pass: only to learn --env-file, --help and --version.
	probe := config.Default()
	var probeCLI cliFlags
	if err := newFlagSet(probe, &probeCLI).Parse(args); err != nil {
		return err
	}
	if probeCLI.showHelp {
		printUsage(newFlagSet(config.Default(), &cliFlags{}))
		return nil
	}
	if probeCLI.showVersion {
		fmt.Fprintf(stdout, "tca %s\n", version)
		return nil
	}

	// ── layered configuration ────────────────────────────────────
	if err := config.LoadDotEnv(probe.EnvFile); err != nil {
		return fmt.Errorf("env file %s: %w", probe.EnvFile, err)
	}
	cfg := config.Default()
	config.LoadFromEnv(cfg)

	var cli cliFlags
	fs := newFlagSet(cfg, &cli)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if len(args) == 0 && cfg.Host == "" && !cfg.Listen {
		printUsage(fs)
		return nil
	}
	cfg.Timeout = time.Duration(cli.timeoutSec) * time.Second
	cfg.Verbose += cli.verbose

	// ── positional arguments ─────────────────────────────────────
	if err := parsePositional(cfg, fs.Args()); err != nil {
		return err
	}

	// ── tunnel spec ──────────────────────────────────────────────
	if cfg.TunnelSpec != "" {
		user, host, port, err := config.ParseTunnelSpec(cfg.TunnelSpec)
		if err != nil {
			return fmt.Errorf("tunnel: %w", err)
		}
		cfg.TunnelEnabled = true
		cfg.TunnelUser = user
		cfg.TunnelHost = host
		cfg.TunnelPort = port
	}

	// ── validate ─────────────────────────────────────────────────
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.DryRun {
		describe(stdout, cfg)
		return nil
	}

	// ── build and run ────────────────────────────────────────────
	logger := util.NewLogger(cfg.Verbose)
	mode, err := core.Build(cfg, logger)
	if err != nil {
		return err
	}
	return mode.Run(ctx)
}

// ── helpers ──────────────────────────────────────────────────────────

// parsePositional handles "tca -l [BIND-HOST [PORT]]" and
// "tca HOST [PORT]".
func parsePositional(cfg *config.Config, remaining []string) error {
	if len(remaining) > 2 {
		return fmt.Errorf("too many arguments (use --help for usage)")
	}
	if len(remaining) >= 1 {
		cfg.Host = remaining[0]
	}
	if len(remaining) == 2 {
		port, err := util.ParsePort(remaining[1])
		if err != nil {
			return err
		}
		cfg.Port = port
	}
	return nil
}

// describe prints the effective configuration for --dry-run.
func describe(w io.Writer, cfg *config.Config) {
	if cfg.Listen {
		fmt.Fprintf(w, "role:          relay\n")
		fmt.Fprintf(w, "listen:        %s\n", cfg.Addr())
		if cfg.WSListen != "" {
			fmt.Fprintf(w, "websocket:     %s%s\n", cfg.WSListen, cfg.WSPath)
		}
		fmt.Fprintf(w, "history-limit: %d\n", cfg.HistoryLimit)
		fmt.Fprintf(w, "max-sessions:  %d\n", cfg.MaxSessions)
		fmt.Fprintf(w, "idle-timeout:  %s\n", cfg.IdleTimeout)
		fmt.Fprintf(w, "accept-rate:   %g\n", cfg.AcceptRate)
		return
	}

	fmt.Fprintf(w, "role:          client\n")
	fmt.Fprintf(w, "relay:         %s\n", cfg.Addr())
	transport := "tcp"
	switch {
	case cfg.TunnelEnabled:
		transport = fmt.Sprintf("ssh via %s:%d", cfg.TunnelHost, cfg.TunnelPort)
		if cfg.TunnelUser != "" {
			transport = fmt.Sprintf("ssh via %s@%s:%d", cfg.TunnelUser, cfg.TunnelHost, cfg.TunnelPort)
		}
	case cfg.WS:
		transport = "websocket " + cfg.WSPath
	}
	fmt.Fprintf(w, "transport:     %s\n", transport)
	name := cfg.Name
	if name == "" {
		name = "(prompt)"
	}
	fmt.Fprintf(w, "name:          %s\n", name)
	notifier := cfg.NotifyCmd
	if cfg.NoNotify {
		notifier = "off"
	}
	fmt.Fprintf(w, "notify:        %s\n", notifier)
	fmt.Fprintf(w, "retries:       %d\n", cfg.Retries)
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(os.Stderr, `TCA – terminal chat relay v%s

A multi-client TCP chat relay and its line client.

Usage:
  tca -l [options] [BIND-HOST [PORT]]         Run the relay
  tca [options] HOST [PORT]                   Join a relay
  tca -T user@gateway HOST [PORT]             Join through an SSH gateway

Options:
`, version)
	fs.SetOutput(os.Stderr)
	fs.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
Examples:
  tca -l                                      Relay on 0.0.0.0:%d
  tca -l --history-limit 500 --ws-listen :8080
  tca -n alice chat.example.com               Join as alice
  tca -T ops@bastion -n bob 10.0.0.5 %d
  echo "deploy done" | tca -n ci chat.example.com
`, config.DefaultPort, config.DefaultPort)
}
