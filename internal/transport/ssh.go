package transport

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/mitnichiter/TCA-terminal-chat-app/tunnel"
	"github.com/mitnichiter/TCA-terminal-chat-app/util"
)

// SSHDialer reaches a relay that is only visible from an SSH gateway.
// The gateway session is opened on the first Dial and reused by later
// dials (reconnect attempts after a drop) until Close.
type SSHDialer struct {
	tunnel tunnel.Tunnel
	config *tunnel.SSHConfig
	logger *util.Logger

	mu        sync.Mutex
	connected bool
}

// NewSSHDialer creates a dialer that forwards through the gateway in cfg.
func NewSSHDialer(cfg *tunnel.SSHConfig, logger *util.Logger) *SSHDialer {
	return &SSHDialer{
		tunnel: tunnel.NewSSHTunnel(cfg, logger),
		config: cfg,
		logger: logger,
	}
}

func (d *SSHDialer) connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected && d.tunnel.IsAlive() {
		return nil
	}
	if d.connected {
		d.logger.Warn("gateway session lost, reconnecting")
		d.tunnel.Close() //nolint:errcheck
		d.connected = false
	}

	d.logger.Verbose("opening gateway session %s@%s:%d",
		d.config.User, d.config.Host, d.config.Port)
	if err := d.tunnel.Connect(ctx); err != nil {
		return fmt.Errorf("gateway: %w", err)
	}
	d.connected = true
	return nil
}

// Dial opens a forwarded connection to address as seen from the gateway.
func (d *SSHDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	if err := d.connect(ctx); err != nil {
		return nil, err
	}
	return d.tunnel.Dial(ctx, network, address)
}

// Close tears down the gateway session.
func (d *SSHDialer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return nil
	}
	d.connected = false
	return d.tunnel.Close()
}
