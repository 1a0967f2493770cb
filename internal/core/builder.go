package core

import (
	"os"
	"time"

	"github.com/mitnichiter/TCA-terminal-chat-app/config"
	"github.com/mitnichiter/TCA-terminal-chat-app/internal/metrics"
	"github.com/mitnichiter/TCA-terminal-chat-app/internal/notify"
	"github.com/mitnichiter/TCA-terminal-chat-app/internal/room"
	"github.com/mitnichiter/TCA-terminal-chat-app/internal/session"
	"github.com/mitnichiter/TCA-terminal-chat-app/internal/transport"
	"github.com/mitnichiter/TCA-terminal-chat-app/tunnel"
	"github.com/mitnichiter/TCA-terminal-chat-app/util"
)

// gatewayKeepAlive is how often an idle SSH gateway session is probed.
const gatewayKeepAlive = 30 * time.Second

// Build constructs the Mode described by cfg.  cfg must already be
// validated.
func Build(cfg *config.Config, logger *util.Logger) (Mode, error) {
	if cfg.Listen {
		return buildServe(cfg, logger), nil
	}
	return buildConnect(cfg, logger)
}

// ── mode builders ────────────────────────────────────────────────────

func buildServe(cfg *config.Config, logger *util.Logger) Mode {
	m := metrics.New()
	r := room.New(room.Options{
		HistoryLimit: cfg.HistoryLimit,
		Logger:       logger,
		Metrics:      m,
	})

	return &ServeMode{
		Address:  cfg.Addr(),
		WSListen: cfg.WSListen,
		WSPath:   cfg.WSPath,
		Handler: &session.Handler{
			Room:         r,
			Logger:       logger,
			Metrics:      m,
			ReadBufSize:  cfg.ReadBufSize,
			OutboxSize:   cfg.OutboxSize,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		MaxSessions: cfg.MaxSessions,
		AcceptRate:  cfg.AcceptRate,
		GracePeriod: cfg.GracePeriod,
		Logger:      logger,
		Metrics:     m,
	}
}

func buildConnect(cfg *config.Config, logger *util.Logger) (Mode, error) {
	sink, err := buildNotifier(cfg, logger)
	if err != nil {
		return nil, err
	}

	return &ConnectMode{
		Dialer:      buildDialer(cfg, logger),
		Address:     cfg.Addr(),
		Name:        cfg.Name,
		Retries:     cfg.Retries,
		ReadBufSize: cfg.ReadBufSize,
		Notifier:    sink,
		Logger:      logger,
	}, nil
}

// ── shared helpers ───────────────────────────────────────────────────

// buildDialer creates the right transport.Dialer for the given config.
func buildDialer(cfg *config.Config, logger *util.Logger) transport.Dialer {
	if cfg.TunnelEnabled {
		return transport.NewSSHDialer(&tunnel.SSHConfig{
			User:          cfg.TunnelUser,
			Host:          cfg.TunnelHost,
			Port:          cfg.TunnelPort,
			KeyPath:       cfg.SSHKeyPath,
			PromptPass:    cfg.SSHPassword,
			UseAgent:      cfg.UseSSHAgent,
			StrictHostKey: cfg.StrictHostKey,
			KnownHosts:    cfg.KnownHostsPath,
			ConnTimeout:   cfg.Timeout,
			KeepAlive:     gatewayKeepAlive,
		}, logger)
	}
	if cfg.WS {
		return &transport.WebSocketDialer{Timeout: cfg.Timeout, Path: cfg.WSPath}
	}
	return &transport.TCPDialer{Timeout: cfg.Timeout}
}

// buildNotifier picks the desktop notification sink.  Termux gets its
// own command when the user kept the default.
func buildNotifier(cfg *config.Config, logger *util.Logger) (notify.Sink, error) {
	if cfg.NoNotify || cfg.NotifyCmd == "" {
		return notify.Discard, nil
	}
	cmd := cfg.NotifyCmd
	if cmd == config.DefaultNotifyCmd && os.Getenv("TERMUX_VERSION") != "" {
		cmd = notify.TermuxCmd
	}
	return notify.NewExec(cmd, logger)
}
