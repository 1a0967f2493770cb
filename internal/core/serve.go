package core

import (
	"context"
	"io"
	"math"
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"

	chaterr "github.com/mitnichiter/TCA-terminal-chat-app/internal/errors"
	"github.com/mitnichiter/TCA-terminal-chat-app/internal/metrics"
	"github.com/mitnichiter/TCA-terminal-chat-app/internal/retry"
	"github.com/mitnichiter/TCA-terminal-chat-app/internal/room"
	"github.com/mitnichiter/TCA-terminal-chat-app/internal/session"
	"github.com/mitnichiter/TCA-terminal-chat-app/internal/transport"
	"github.com/mitnichiter/TCA-terminal-chat-app/util"
)

// rejectTimeout bounds the write of the "server is full" notice.
const rejectTimeout = time.Second

// ServeMode runs the relay: it accepts connections on a TCP listener
// (and optionally a WebSocket endpoint) and hands each one to the
// session handler on its own goroutine.
type ServeMode struct {
	Address  string // host:port for the stream listener
	WSListen string // optional host:port for WebSocket sessions
	WSPath   string

	Handler     *session.Handler
	MaxSessions int           // 0 is unbounded
	AcceptRate  float64       // accepts per second, 0 is unlimited
	GracePeriod time.Duration // how long shutdown waits for sessions

	Logger  *util.Logger
	Metrics *metrics.Collector

	// Ready, when set, is called with every bound address once all
	// listeners are up.
	Ready func(addrs []net.Addr)
}

func (m *ServeMode) logger() *util.Logger {
	if m.Logger == nil {
		return util.NewLogger(0)
	}
	return m.Logger
}

// Run binds the listeners and serves until ctx is cancelled or a
// listener fails.  A bind failure is returned immediately.  On the way
// out every session is evicted and Run waits up to GracePeriod for them
// to finish their Closing step.
func (m *ServeMode) Run(ctx context.Context) error {
	log := m.logger()

	ln, err := transport.ListenTCP(ctx, m.Address)
	if err != nil {
		return err
	}
	listeners := []net.Listener{ln}
	log.Info("relay listening on %s", ln.Addr())

	if m.WSListen != "" {
		wl, err := transport.ListenWebSocket(ctx, m.WSListen, m.WSPath, log)
		if err != nil {
			ln.Close()
			return err
		}
		listeners = append(listeners, wl)
		log.Info("accepting WebSocket sessions at %s", wl.URL())
	}

	if m.Ready != nil {
		addrs := make([]net.Addr, len(listeners))
		for i, l := range listeners {
			addrs[i] = l.Addr()
		}
		m.Ready(addrs)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var limiter *rate.Limiter
	if m.AcceptRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(m.AcceptRate), int(math.Ceil(m.AcceptRate)))
	}
	var slots chan struct{}
	if m.MaxSessions > 0 {
		slots = make(chan struct{}, m.MaxSessions)
	}

	var (
		loops    sync.WaitGroup
		sessions sync.WaitGroup
	)
	errc := make(chan error, len(listeners))
	for _, l := range listeners {
		loops.Add(1)
		go func(l net.Listener) {
			defer loops.Done()
			errc <- m.acceptLoop(ctx, l, limiter, slots, &sessions)
		}(l)
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errc:
		if runErr != nil {
			log.Error("%v", runErr)
		}
	}

	// ── Shutdown ─────────────────────────────────────────────────────
	log.Info("shutting down")
	cancel()
	for _, l := range listeners {
		l.Close()
	}
	loops.Wait()
	m.Handler.Room.EvictAll(chaterr.ErrServerClosed)

	m.drain(&sessions, log)
	log.Verbose("final metrics: %s", m.Metrics.JSON())
	return runErr
}

// drain waits for in-flight sessions, giving up after GracePeriod.
func (m *ServeMode) drain(sessions *sync.WaitGroup, log *util.Logger) {
	done := make(chan struct{})
	go func() {
		sessions.Wait()
		close(done)
	}()

	if m.GracePeriod <= 0 {
		<-done
		return
	}
	t := time.NewTimer(m.GracePeriod)
	defer t.Stop()
	select {
	case <-done:
	case <-t.C:
		log.Warn("%d sessions still closing after %s", m.Metrics.ActiveSessions(), m.GracePeriod)
	}
}

// ── Accept loop ──────────────────────────────────────────────────────

// acceptLoop accepts from one listener until it is closed.  Temporary
// accept errors (descriptor exhaustion) are retried with backoff; any
// other error ends the loop and is returned.
func (m *ServeMode) acceptLoop(ctx context.Context, ln net.Listener, limiter *rate.Limiter, slots chan struct{}, sessions *sync.WaitGroup) error {
	log := m.logger()
	backoff := retry.AcceptBackoff()
	backoff.OnRetry = func(_ int, err error, wait time.Duration) {
		log.Warn("accept on %s: %v; retrying in %s", ln.Addr(), err, wait)
	}

	for {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return nil
			}
		}

		var conn net.Conn
		err := backoff.Do(ctx, func(int) error {
			c, err := ln.Accept()
			if err != nil {
				if ctx.Err() == nil && chaterr.IsTemporary(err) {
					return err
				}
				return retry.Permanent(err)
			}
			conn = c
			return nil
		})
		if err != nil {
			if ctx.Err() != nil || chaterr.Is(err, net.ErrClosed) {
				return nil
			}
			m.Metrics.RecordError(err.Error())
			return chaterr.Wrap("accept", ln.Addr().String(), err)
		}

		log.Verbose("connection from %s", conn.RemoteAddr())

		if slots != nil {
			select {
			case slots <- struct{}{}:
			default:
				sessions.Add(1)
				go func() {
					defer sessions.Done()
					m.reject(conn)
				}()
				continue
			}
		}

		sessions.Add(1)
		go func() {
			defer sessions.Done()
			if slots != nil {
				defer func() { <-slots }()
			}
			m.serve(ctx, conn)
		}()
	}
}

// reject turns away a connection that arrived while the relay was at
// MaxSessions.
func (m *ServeMode) reject(conn net.Conn) {
	defer conn.Close()
	m.Metrics.SessionRejected()
	m.logger().Info("rejected %s: %v", conn.RemoteAddr(), chaterr.ErrServerFull)
	if err := util.WriteString(conn, room.ServerFull, rejectTimeout); err != nil {
		return
	}
	lingerClose(conn)
}

// lingerClose half-closes conn and discards whatever the peer still
// sends (typically its display name).  Closing with unread input would
// reset the connection and could destroy the notice in flight.
func lingerClose(conn net.Conn) {
	if cw, ok := conn.(interface{ CloseWrite() error }); ok {
		cw.CloseWrite() //nolint:errcheck
	}
	conn.SetReadDeadline(time.Now().Add(rejectTimeout)) //nolint:errcheck
	io.Copy(io.Discard, conn)                            //nolint:errcheck
}

func (m *ServeMode) serve(ctx context.Context, conn net.Conn) {
	err := m.Handler.Serve(ctx, conn)
	switch {
	case err == nil, chaterr.IsHarmless(err):
	case chaterr.Is(err, chaterr.ErrInvalidName),
		chaterr.Is(err, chaterr.ErrNameTaken),
		chaterr.Is(err, chaterr.ErrServerClosed),
		chaterr.Is(err, chaterr.ErrIdleTimeout),
		chaterr.Is(err, chaterr.ErrOutboxFull):
		// Reported by the session itself.
	default:
		m.logger().Warn("connection %s lost: %v", conn.RemoteAddr(), err)
	}
}
