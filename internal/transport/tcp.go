package transport

import (
	"context"
	"net"
	"time"

	chaterr "github.com/mitnichiter/TCA-terminal-chat-app/internal/errors"
)

// TCPDialer establishes plain TCP connections.
type TCPDialer struct {
	Timeout   time.Duration
	KeepAlive time.Duration // 0 uses the net package default
}

// Dial connects to address over TCP.  Failures are *chaterr.NetworkError
// so the caller's backoff can tell a refused port from a bad address.
func (d *TCPDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	dialer := net.Dialer{Timeout: d.Timeout, KeepAlive: d.KeepAlive}
	conn, err := dialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, chaterr.Wrap("dial", address, err)
	}
	return conn, nil
}

// Close is a no-op for stateless TCP dialers.
func (d *TCPDialer) Close() error { return nil }

// ListenTCP binds the relay's stream listener.  A failure here is fatal
// to the server, so it is returned wrapped with the address.
func ListenTCP(ctx context.Context, address string) (net.Listener, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		return nil, chaterr.Wrap("listen", address, err)
	}
	return ln, nil
}
