// Package tunnel lets the chat client reach a relay that is only
// reachable from an SSH gateway, forwarding the chat connection with
// golang.org/x/crypto/ssh.
package tunnel

import (
	"context"
	"net"
)

// Tunnel is an encrypted channel through which TCP connections can be
// forwarded.
type Tunnel interface {
	Connect(ctx context.Context) error
	Dial(ctx context.Context, network, address string) (net.Conn, error)
	Close() error
	// IsAlive reports whether the gateway session is still up.
	IsAlive() bool
}

var _ Tunnel = (*SSHTunnel)(nil)
