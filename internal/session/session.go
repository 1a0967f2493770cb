// Package session runs one client connection from accept to close:
// read a display name, register in the room, relay every inbound
// payload, and always deregister and announce the departure on the way
// out.
package session

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	chaterr "github.com/mitnichiter/TCA-terminal-chat-app/internal/errors"
	"github.com/mitnichiter/TCA-terminal-chat-app/internal/metrics"
	"github.com/mitnichiter/TCA-terminal-chat-app/internal/room"
	"github.com/mitnichiter/TCA-terminal-chat-app/util"
)

// flushTimeout bounds how long Closing waits for queued output (a
// rejection notice, say) when no write timeout is configured.
const flushTimeout = time.Second

// Session is one accepted connection.  It implements [room.Member].
type Session struct {
	ID         string
	RemoteAddr string

	conn   net.Conn
	outbox chan string
	state  atomic.Int32
	name   string

	evictOnce sync.Once
	causeMu   sync.Mutex
	cause     error
}

// Name returns the registered display name, or "" before registration.
func (s *Session) Name() string { return s.name }

// State returns the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// Enqueue queues msg for the writer without blocking.
func (s *Session) Enqueue(msg string) bool {
	select {
	case s.outbox <- msg:
		return true
	default:
		return false
	}
}

// Evict closes the transport, which ends the read loop and moves the
// session to Closing.  Only the first cause is kept.
func (s *Session) Evict(err error) {
	s.evictOnce.Do(func() {
		s.causeMu.Lock()
		s.cause = err
		s.causeMu.Unlock()
		s.conn.Close()
	})
}

func (s *Session) evictedBy() error {
	s.causeMu.Lock()
	defer s.causeMu.Unlock()
	return s.cause
}

// ── Handler ──────────────────────────────────────────────────────────

// Handler serves sessions against a shared room.  Zero-valued sizes and
// timeouts fall back to the defaults noted on each field.
type Handler struct {
	Room         *room.Room
	Logger       *util.Logger
	Metrics      *metrics.Collector
	ReadBufSize  int           // default 1024
	OutboxSize   int           // default 256
	WriteTimeout time.Duration // 0 never times out a write
	IdleTimeout  time.Duration // 0 lets a silent session live forever

	poolOnce sync.Once
	pool     *util.BufPool
}

func (h *Handler) bufPool() *util.BufPool {
	h.poolOnce.Do(func() { h.pool = util.NewBufPool(h.ReadBufSize) })
	return h.pool
}

func (h *Handler) logger() *util.Logger {
	if h.Logger == nil {
		return util.NewLogger(0)
	}
	return h.Logger
}

// Serve runs conn through the whole session lifecycle and returns once
// the session is Closed.  Cancelling ctx evicts the session.
//
// A nil error means the peer simply went away.  Rejections return the
// matching sentinel (ErrInvalidName, ErrNameTaken, ErrServerClosed);
// evictions return their cause.
func (h *Handler) Serve(ctx context.Context, conn net.Conn) (err error) {
	outboxSize := h.OutboxSize
	if outboxSize <= 0 {
		outboxSize = 256
	}
	s := &Session{
		ID:         uuid.NewString(),
		RemoteAddr: conn.RemoteAddr().String(),
		conn:       conn,
		outbox:     make(chan string, outboxSize),
	}
	log := h.logger().With("%s %s", s.ID[:8], s.RemoteAddr)

	h.Metrics.SessionOpened()
	defer h.Metrics.SessionClosed()

	stop := context.AfterFunc(ctx, func() { s.Evict(chaterr.ErrServerClosed) })
	defer stop()

	writerDone := make(chan struct{})
	go h.writer(s, log, writerDone)

	registered := false
	defer func() {
		h.close(s, log, registered, writerDone)
		if err == nil {
			err = s.evictedBy()
		}
		if err != nil && !chaterr.IsHarmless(err) {
			log.Verbose("closed: %v", err)
		} else {
			log.Verbose("closed")
		}
	}()

	buf := h.bufPool().Get()
	defer h.bufPool().Put(buf)

	// ── AwaitingName ─────────────────────────────────────────────────
	s.setState(StateAwaitingName, log)
	raw, rerr := util.ReadPayload(conn, *buf, h.IdleTimeout)
	if rerr != nil {
		h.Metrics.SessionRejected()
		return h.readErr(rerr)
	}
	h.Metrics.BytesReceived(int64(len(raw)))

	name := room.NormalizeName(raw)
	if name == "" {
		h.Metrics.SessionRejected()
		log.Info("rejected: empty display name")
		return chaterr.ErrInvalidName
	}

	// ── Registered ───────────────────────────────────────────────────
	if jerr := h.Room.Join(name, s, room.Welcome(name)); jerr != nil {
		h.Metrics.SessionRejected()
		if chaterr.Is(jerr, chaterr.ErrNameTaken) {
			s.Enqueue(room.NameTaken(name))
		}
		log.Info("rejected %q: %v", name, jerr)
		return jerr
	}
	registered = true
	s.name = name
	log = log.With("%s", name)
	s.setState(StateRegistered, log)
	log.Info("registered")

	h.Room.Broadcast(room.Joined(name), name)

	// ── Relaying ─────────────────────────────────────────────────────
	s.setState(StateRelaying, log)
	for {
		payload, rerr := util.ReadPayload(conn, *buf, h.IdleTimeout)
		if rerr != nil {
			return h.readErr(rerr)
		}
		h.Metrics.BytesReceived(int64(len(payload)))
		log.Debug("relaying %d bytes", len(payload))
		h.Room.Broadcast(room.Chat(name, payload), name)
	}
}

// readErr maps the read that ended a session onto the error Serve
// reports: nil for an ordinary disconnect.
func (h *Handler) readErr(err error) error {
	var ne net.Error
	if h.IdleTimeout > 0 && chaterr.As(err, &ne) && ne.Timeout() {
		return chaterr.ErrIdleTimeout
	}
	if chaterr.IsHarmless(err) {
		return nil
	}
	h.Metrics.RecordError(err.Error())
	return err
}

// close is the Closing step.  It runs for every session, however the
// session ended.
func (h *Handler) close(s *Session, log *util.Logger, registered bool, writerDone <-chan struct{}) {
	s.setState(StateClosing, log)

	if registered && h.Room.Leave(s.name, s) {
		h.Room.Broadcast(room.Left(s.name), "")
		log.Info("left")
	}

	// The room no longer holds s, so nothing else sends on the outbox.
	close(s.outbox)

	wait := h.WriteTimeout
	if wait <= 0 {
		wait = flushTimeout
	}
	t := time.NewTimer(wait)
	select {
	case <-writerDone:
	case <-t.C:
		log.Debug("flush timed out")
	}
	t.Stop()

	s.conn.Close()
	<-writerDone
	s.setState(StateClosed, log)
}

// writer drains the outbox to the transport.  On a write failure it
// evicts the session and stops; later enqueues fill the outbox and fail.
func (h *Handler) writer(s *Session, log *util.Logger, done chan<- struct{}) {
	defer close(done)
	for msg := range s.outbox {
		if err := util.WriteString(s.conn, msg, h.WriteTimeout); err != nil {
			if !chaterr.IsHarmless(err) {
				log.Warn("write failed: %v", err)
			}
			s.Evict(err)
			return
		}
		h.Metrics.BytesSent(int64(len(msg)))
	}
}

func (s *Session) setState(st State, log *util.Logger) {
	s.state.Store(int32(st))
	log.Debug("state %s", st)
}
