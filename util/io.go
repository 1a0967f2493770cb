package util

import (
	"io"
	"net"
	"time"
)

// WriteString writes s to conn in full, bounding the write by timeout
// when it is positive.  Partial writes are reported as errors by the
// underlying connection.
func WriteString(conn net.Conn, s string, timeout time.Duration) error {
	if timeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(timeout)) //nolint:errcheck
	}
	_, err := io.WriteString(conn, s)
	return err
}

// ReadPayload performs one read from conn into buf and returns what
// arrived as a string.  The stream carries no framing, so one read is
// one payload: the peer's writes may be split or coalesced.  A positive
// idle bounds how long the read may block.
func ReadPayload(conn net.Conn, buf []byte, idle time.Duration) (string, error) {
	if idle > 0 {
		conn.SetReadDeadline(time.Now().Add(idle)) //nolint:errcheck
	}
	n, err := conn.Read(buf)
	if n > 0 {
		// Deliver data that arrived together with an error; the caller
		// sees the error on its next read.
		return string(buf[:n]), nil
	}
	if err == nil {
		err = io.ErrNoProgress
	}
	return "", err
}
