// Package transport decides how bytes reach the relay: plain TCP, TCP
// forwarded through an SSH gateway, or WebSocket.  Every transport
// yields a net.Conn, so the session layer never knows which one it got.
package transport

import (
	"context"
	"net"
)

// Dialer opens the client's connection to the relay.
type Dialer interface {
	Dial(ctx context.Context, network, address string) (net.Conn, error)

	// Close releases long-lived resources such as an SSH session.
	Close() error
}
