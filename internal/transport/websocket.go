package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	chaterr "github.com/mitnichiter/TCA-terminal-chat-app/internal/errors"
	"github.com/mitnichiter/TCA-terminal-chat-app/util"
)

// maxMessageSize caps one inbound WebSocket message.  The session layer
// reads at most its buffer size per payload anyway; anything beyond
// this is a misbehaving peer.
const maxMessageSize = 64 << 10

// ── Server side ──────────────────────────────────────────────────────

// WebSocketListener accepts WebSocket sessions on an HTTP path and hands
// them out as net.Conn, so the relay's accept loop serves them exactly
// like TCP connections.  Each text or binary message is one payload.
type WebSocketListener struct {
	path     string
	ln       net.Listener
	srv      *http.Server
	upgrader websocket.Upgrader
	logger   *util.Logger

	conns     chan net.Conn
	done      chan struct{}
	closeOnce sync.Once
}

// ListenWebSocket binds address and starts serving upgrades on path.
func ListenWebSocket(ctx context.Context, address, path string, logger *util.Logger) (*WebSocketListener, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		return nil, chaterr.Wrap("listen", address, err)
	}
	if path == "" {
		path = "/"
	}
	if logger == nil {
		logger = util.NewLogger(0)
	}

	l := &WebSocketListener{
		path:   path,
		ln:     ln,
		logger: logger,
		conns:  make(chan net.Conn),
		done:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  util.DefaultReadSize,
			WriteBufferSize: util.DefaultReadSize,
			// Terminal clients send no Origin header; there is no
			// browser session or cookie to protect.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.Handle(path, l)
	l.srv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := l.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("websocket listener: %v", err)
		}
	}()
	return l, nil
}

// ServeHTTP upgrades the request and queues the connection for Accept.
func (l *WebSocketListener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		l.logger.Verbose("websocket upgrade from %s: %v", r.RemoteAddr, err)
		return
	}
	ws.SetReadLimit(maxMessageSize)

	c := newWSConn(ws)
	select {
	case l.conns <- c:
	case <-l.done:
		c.Close()
	}
}

// Accept waits for the next upgraded connection.
func (l *WebSocketListener) Accept() (net.Conn, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.done:
		return nil, net.ErrClosed
	}
}

// Close stops accepting.  Connections already handed out stay open.
func (l *WebSocketListener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.done)
		err = l.srv.Close()
	})
	return err
}

// Addr returns the bound TCP address.
func (l *WebSocketListener) Addr() net.Addr { return l.ln.Addr() }

// URL returns the ws:// URL clients should dial.
func (l *WebSocketListener) URL() string {
	return "ws://" + l.ln.Addr().String() + l.path
}

// ── Client side ──────────────────────────────────────────────────────

// WebSocketDialer reaches a relay's WebSocket listener.  The address
// given to Dial is host:port; Path is appended.
type WebSocketDialer struct {
	Timeout time.Duration
	Path    string
}

// Dial performs the WebSocket handshake and returns the session as a
// net.Conn.  The network argument is ignored.
func (d *WebSocketDialer) Dial(ctx context.Context, _, address string) (net.Conn, error) {
	path := d.Path
	if path == "" {
		path = "/"
	}
	url := "ws://" + address + path

	dialer := websocket.Dialer{
		HandshakeTimeout: d.Timeout,
		ReadBufferSize:   util.DefaultReadSize,
		WriteBufferSize:  util.DefaultReadSize,
	}
	ws, resp, err := dialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, chaterr.Wrap("dial", url, err)
	}
	ws.SetReadLimit(maxMessageSize)
	return newWSConn(ws), nil
}

// Close is a no-op; each Dial owns its own socket.
func (d *WebSocketDialer) Close() error { return nil }

// ── net.Conn adapter ─────────────────────────────────────────────────

// wsConn presents a WebSocket as a byte stream.  Each Write sends one
// text message.  Read returns bytes of the current message and moves to
// the next message only once the current one is drained, so a reader
// with a large enough buffer sees exactly one message per Read.
type wsConn struct {
	ws *websocket.Conn

	readMu sync.Mutex
	cur    io.Reader

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func newWSConn(ws *websocket.Conn) *wsConn { return &wsConn{ws: ws} }

func (c *wsConn) Read(p []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	for {
		if c.cur == nil {
			_, r, err := c.ws.NextReader()
			if err != nil {
				return 0, mapCloseErr(err)
			}
			c.cur = r
		}
		n, err := c.cur.Read(p)
		if errors.Is(err, io.EOF) {
			c.cur = nil
			if n == 0 {
				continue
			}
			return n, nil
		}
		if err != nil {
			return n, mapCloseErr(err)
		}
		return n, nil
	}
}

func (c *wsConn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteMessage(websocket.TextMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close sends a close frame when it can and always closes the socket.
func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)) //nolint:errcheck
		err = c.ws.Close()
	})
	return err
}

func (c *wsConn) LocalAddr() net.Addr  { return c.ws.LocalAddr() }
func (c *wsConn) RemoteAddr() net.Addr { return c.ws.RemoteAddr() }

func (c *wsConn) SetDeadline(t time.Time) error {
	if err := c.ws.SetReadDeadline(t); err != nil {
		return err
	}
	return c.ws.SetWriteDeadline(t)
}

func (c *wsConn) SetReadDeadline(t time.Time) error  { return c.ws.SetReadDeadline(t) }
func (c *wsConn) SetWriteDeadline(t time.Time) error { return c.ws.SetWriteDeadline(t) }

// mapCloseErr turns an orderly close handshake into io.EOF, matching
// what a TCP reader sees when the peer hangs up.
func mapCloseErr(err error) error {
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived) {
		return io.EOF
	}
	return err
}
