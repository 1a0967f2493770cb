package core

import (
	"testing"

	"github.com/mitnichiter/TCA-terminal-chat-app/config"
	"github.com/mitnichiter/TCA-terminal-chat-app/internal/notify"
	"github.com/mitnichiter/TCA-terminal-chat-app/internal/transport"
	"github.com/mitnichiter/TCA-terminal-chat-app/util"
)

func TestBuild_Serve(t *testing.T) {
	cfg := config.Default()
	cfg.Listen = true
	cfg.HistoryLimit = 50
	cfg.MaxSessions = 10
	cfg.WSListen = ":8080"

	mode, err := Build(cfg, util.NewLogger(0))
	if err != nil {
		t.Fatal(err)
	}
	m, ok := mode.(*ServeMode)
	if !ok {
		t.Fatalf("Build returned %T, want *ServeMode", mode)
	}
	if m.Address != "0.0.0.0:12345" {
		t.Errorf("Address = %q", m.Address)
	}
	if m.MaxSessions != 10 || m.WSListen != ":8080" || m.WSPath != config.DefaultWSPath {
		t.Errorf("unexpected mode %+v", m)
	}
	if m.Handler.Room == nil || m.Handler.Metrics != m.Metrics {
		t.Error("handler not wired to the relay's room and metrics")
	}
	if m.Handler.ReadBufSize != config.DefaultReadBufSize || m.Handler.OutboxSize != config.DefaultOutboxSize {
		t.Errorf("handler sizes = %d/%d", m.Handler.ReadBufSize, m.Handler.OutboxSize)
	}
}

func TestBuild_ConnectDialers(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*config.Config)
		check func(t *testing.T, d transport.Dialer)
	}{
		{
			name:  "tcp",
			setup: func(*config.Config) {},
			check: func(t *testing.T, d transport.Dialer) {
				if _, ok := d.(*transport.TCPDialer); !ok {
					t.Errorf("dialer = %T", d)
				}
			},
		},
		{
			name:  "websocket",
			setup: func(c *config.Config) { c.WS = true },
			check: func(t *testing.T, d transport.Dialer) {
				ws, ok := d.(*transport.WebSocketDialer)
				if !ok || ws.Path != config.DefaultWSPath {
					t.Errorf("dialer = %#v", d)
				}
			},
		},
		{
			name: "ssh gateway",
			setup: func(c *config.Config) {
				c.TunnelEnabled = true
				c.TunnelUser, c.TunnelHost, c.TunnelPort = "ops", "bastion", 2222
			},
			check: func(t *testing.T, d transport.Dialer) {
				if _, ok := d.(*transport.SSHDialer); !ok {
					t.Errorf("dialer = %T", d)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Host = "chat.example.com"
			tt.setup(cfg)

			mode, err := Build(cfg, util.NewLogger(0))
			if err != nil {
				t.Fatal(err)
			}
			m, ok := mode.(*ConnectMode)
			if !ok {
				t.Fatalf("Build returned %T, want *ConnectMode", mode)
			}
			if m.Address != "chat.example.com:12345" {
				t.Errorf("Address = %q", m.Address)
			}
			tt.check(t, m.Dialer)
		})
	}
}

func TestBuild_Notifier(t *testing.T) {
	t.Setenv("TERMUX_VERSION", "")

	cfg := config.Default()
	cfg.Host = "127.0.0.1"
	cfg.NoNotify = true
	mode, err := Build(cfg, util.NewLogger(0))
	if err != nil {
		t.Fatal(err)
	}
	if n := mode.(*ConnectMode).Notifier; n != notify.Discard {
		t.Errorf("--no-notify gave %T, want Discard", n)
	}

	cfg.NoNotify = false
	mode, err = Build(cfg, util.NewLogger(0))
	if err != nil {
		t.Fatal(err)
	}
	e, ok := mode.(*ConnectMode).Notifier.(*notify.Exec)
	if !ok {
		t.Fatalf("notifier = %T, want *notify.Exec", mode.(*ConnectMode).Notifier)
	}
	if got := e.Args("t", "b")[0]; got != "notify-send" {
		t.Errorf("command = %q", got)
	}

	t.Setenv("TERMUX_VERSION", "0.118")
	mode, err = Build(cfg, util.NewLogger(0))
	if err != nil {
		t.Fatal(err)
	}
	if got := mode.(*ConnectMode).Notifier.(*notify.Exec).Args("t", "b")[0]; got != "termux-notification" {
		t.Errorf("termux command = %q", got)
	}
}
