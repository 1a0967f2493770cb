package core

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"

	chaterr "github.com/mitnichiter/TCA-terminal-chat-app/internal/errors"
	"github.com/mitnichiter/TCA-terminal-chat-app/internal/notify"
	"github.com/mitnichiter/TCA-terminal-chat-app/internal/retry"
	"github.com/mitnichiter/TCA-terminal-chat-app/internal/room"
	"github.com/mitnichiter/TCA-terminal-chat-app/internal/transport"
	"github.com/mitnichiter/TCA-terminal-chat-app/util"
)

const (
	sendTimeout = 10 * time.Second
	notifyQueue = 16
	namePrompt  = "Enter your username: "
)

// ConnectMode joins a relay as a line-oriented client: the first line
// sent is the display name, every later non-empty stdin line is a chat
// message, and everything the relay sends is copied to stdout.
type ConnectMode struct {
	Dialer      transport.Dialer
	Address     string
	Name        string // prompted for (or read from stdin) when empty
	Retries     int    // extra dial attempts after the first
	ReadBufSize int
	Notifier    notify.Sink
	Logger      *util.Logger

	// Stdin/Stdout default to os.Stdin/os.Stdout when nil.
	// Override in tests for deterministic I/O.
	Stdin  io.Reader
	Stdout io.Writer
}

func (m *ConnectMode) stdin() io.Reader {
	if m.Stdin != nil {
		return m.Stdin
	}
	return os.Stdin
}

func (m *ConnectMode) stdout() io.Writer {
	if m.Stdout != nil {
		return m.Stdout
	}
	return os.Stdout
}

func (m *ConnectMode) logger() *util.Logger {
	if m.Logger == nil {
		return util.NewLogger(0)
	}
	return m.Logger
}

// interactive reports whether the name prompt should be shown.
func (m *ConnectMode) interactive() bool {
	if m.Stdin != nil {
		return false
	}
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// Run resolves the display name, dials the relay, and chats until the
// relay closes the connection, stdin reaches EOF, or ctx is cancelled.
// A refused name or a full relay is reported as ErrNameTaken or
// ErrServerFull.
func (m *ConnectMode) Run(ctx context.Context) error {
	defer m.Dialer.Close()
	log := m.logger()
	out := &lockedWriter{w: m.stdout()}
	in := bufio.NewScanner(m.stdin())

	name, err := m.displayName(in, out)
	if err != nil {
		return err
	}

	conn, err := m.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	log.Verbose("connected to %s as %q", conn.RemoteAddr(), name)

	if err := util.WriteString(conn, name, sendTimeout); err != nil {
		return fmt.Errorf("send name: %w", err)
	}

	notes := make(chan [2]string, notifyQueue)
	var notifier sync.WaitGroup
	notifier.Add(1)
	go func() {
		defer notifier.Done()
		m.deliverNotifications(notes)
	}()
	defer func() {
		close(notes)
		notifier.Wait()
	}()

	answered := make(chan struct{})
	recvDone := make(chan error, 1)
	go func() {
		recvDone <- m.receive(conn, name, out, answered, notes)
	}()

	sendDone := make(chan error, 1)
	go func() {
		select {
		case <-answered:
		case <-ctx.Done():
			sendDone <- nil
			return
		}
		sendDone <- m.send(conn, name, in, out)
	}()

	select {
	case <-ctx.Done():
		conn.Close()
		<-recvDone
		return nil
	case err := <-recvDone:
		if err == nil {
			log.Info("disconnected from %s", m.Address)
		}
		return err
	case err := <-sendDone:
		conn.Close()
		<-recvDone
		return err
	}
}

// displayName returns the configured name, or reads one line from
// stdin, prompting first when stdin is a terminal.
func (m *ConnectMode) displayName(in *bufio.Scanner, out io.Writer) (string, error) {
	if name := room.NormalizeName(m.Name); name != "" {
		return name, nil
	}
	if m.interactive() {
		io.WriteString(out, namePrompt) //nolint:errcheck
	}
	if in.Scan() {
		if name := room.NormalizeName(in.Text()); name != "" {
			return name, nil
		}
	}
	return "", &chaterr.ConfigError{
		Field: "name", Message: "a display name is required",
		Hint: "pass -n NAME or type one at the prompt",
	}
}

// dial connects with backoff.  Only refused or timed-out dials are
// retried; an SSH authentication failure, say, is final.
func (m *ConnectMode) dial(ctx context.Context) (net.Conn, error) {
	log := m.logger()
	backoff := retry.DialBackoff(m.Retries)
	backoff.OnRetry = func(attempt int, err error, wait time.Duration) {
		log.Warn("attempt %d: %v; retrying in %s", attempt, err, wait.Truncate(time.Millisecond))
	}

	log.Verbose("connecting to %s", m.Address)
	var conn net.Conn
	err := backoff.Do(ctx, func(int) error {
		c, err := m.Dialer.Dial(ctx, "tcp", m.Address)
		if err != nil {
			if chaterr.IsRetryable(err) {
				return err
			}
			return retry.Permanent(err)
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", m.Address, err)
	}
	return conn, nil
}

// receive copies the relay's output to out and queues a notification
// for every complete line another user wrote.  answered is closed on
// the first chunk, which is the welcome or a rejection.
func (m *ConnectMode) receive(conn net.Conn, self string, out io.Writer, answered chan<- struct{}, notes chan<- [2]string) error {
	first := true
	defer func() {
		if first {
			close(answered)
		}
	}()

	size := m.ReadBufSize
	if size <= 0 {
		size = util.DefaultReadSize
	}
	buf := make([]byte, size)
	var partial string
	for {
		chunk, err := util.ReadPayload(conn, buf, 0)
		if err != nil {
			if chaterr.IsHarmless(err) {
				return nil
			}
			return err
		}
		io.WriteString(out, chunk) //nolint:errcheck

		if first {
			first = false
			close(answered)
			switch chunk {
			case room.NameTaken(self):
				return chaterr.ErrNameTaken
			case room.ServerFull:
				return chaterr.ErrServerFull
			}
		}

		lines := strings.Split(partial+chunk, "\n")
		partial = lines[len(lines)-1]
		for _, line := range lines[:len(lines)-1] {
			sender, body, ok := notify.Attribute(line, self)
			if !ok {
				continue
			}
			select {
			case notes <- [2]string{notify.Title(sender), body}:
			default:
				m.logger().Debug("notification queue full, dropping")
			}
		}
	}
}

// send relays stdin lines until EOF.  Empty lines are skipped; sent
// lines are echoed locally because the relay does not send a
// message back to its author.
func (m *ConnectMode) send(conn net.Conn, self string, in *bufio.Scanner, out io.Writer) error {
	for in.Scan() {
		line := in.Text()
		if line == "" {
			continue
		}
		if err := util.WriteString(conn, line, sendTimeout); err != nil {
			if chaterr.IsHarmless(err) {
				return nil
			}
			return fmt.Errorf("send: %w", err)
		}
		io.WriteString(out, room.Chat(self, line)) //nolint:errcheck
	}
	return in.Err()
}

func (m *ConnectMode) deliverNotifications(notes <-chan [2]string) {
	sink := m.Notifier
	if sink == nil {
		sink = notify.Discard
	}
	for n := range notes {
		sink.Notify(n[0], n[1]) //nolint:errcheck
	}
}

// lockedWriter serialises the receive and echo paths onto stdout.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
