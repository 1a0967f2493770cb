package core

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mitnichiter/TCA-terminal-chat-app/config"
	chaterr "github.com/mitnichiter/TCA-terminal-chat-app/internal/errors"
	"github.com/mitnichiter/TCA-terminal-chat-app/internal/room"
	"github.com/mitnichiter/TCA-terminal-chat-app/internal/transport"
	"github.com/mitnichiter/TCA-terminal-chat-app/util"
)

// syncBuffer is a bytes.Buffer safe for one writer and a polling reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type recordingSink struct {
	mu    sync.Mutex
	notes [][2]string
}

func (s *recordingSink) Notify(title, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes = append(s.notes, [2]string{title, body})
	return nil
}

func (s *recordingSink) all() [][2]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][2]string(nil), s.notes...)
}

type runningClient struct {
	out   *syncBuffer
	stdin *io.PipeWriter
	sink  *recordingSink
	done  chan error
}

func runClient(t *testing.T, ctx context.Context, addr, name string) *runningClient {
	t.Helper()
	stdinR, stdinW := io.Pipe()
	t.Cleanup(func() { stdinW.Close() })

	rc := &runningClient{
		out:   &syncBuffer{},
		stdin: stdinW,
		sink:  &recordingSink{},
		done:  make(chan error, 1),
	}
	mode := &ConnectMode{
		Dialer:   &transport.TCPDialer{Timeout: 2 * time.Second},
		Address:  addr,
		Name:     name,
		Notifier: rc.sink,
		Logger:   util.NewLogger(0),
		Stdin:    stdinR,
		Stdout:   rc.out,
	}
	go func() { rc.done <- mode.Run(ctx) }()
	return rc
}

func (rc *runningClient) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-rc.done:
		return err
	case <-time.After(3 * time.Second):
		t.Fatal("client did not return")
		return nil
	}
}

func (rc *runningClient) expectOutput(t *testing.T, want string) {
	t.Helper()
	waitFor(t, "client output "+want, func() bool {
		return strings.Contains(rc.out.String(), want)
	})
}

// ── tests ────────────────────────────────────────────────────────────

func TestConnectMode_Chat(t *testing.T) {
	r := startRelay(t, nil)
	bob := joinAs(t, r.addr, "bob")

	alice := runClient(t, context.Background(), r.addr, "alice")
	bob.expect(room.Joined("alice"))
	alice.expectOutput(t, room.Welcome("alice"))

	// Empty lines are not sent.
	if _, err := io.WriteString(alice.stdin, "\nhello\n"); err != nil {
		t.Fatal(err)
	}
	bob.expect("alice: hello\n")
	alice.expectOutput(t, "alice: hello\n")

	bob.send("hi alice")
	alice.expectOutput(t, "bob: hi alice\n")
	waitFor(t, "notification", func() bool { return len(alice.sink.all()) == 1 })

	alice.stdin.Close()
	if err := alice.wait(t); err != nil {
		t.Fatalf("Run = %v", err)
	}
	bob.expect(room.Left("alice"))

	notes := alice.sink.all()
	if len(notes) != 1 || notes[0] != [2]string{"New message from bob", "hi alice"} {
		t.Errorf("notifications = %q", notes)
	}
	if strings.Contains(bob.got.String(), "alice: \n") {
		t.Errorf("empty line was relayed: %q", bob.got.String())
	}
}

func TestConnectMode_NameTaken(t *testing.T) {
	r := startRelay(t, nil)
	joinAs(t, r.addr, "alice")

	dup := runClient(t, context.Background(), r.addr, "alice")
	if err := dup.wait(t); !chaterr.Is(err, chaterr.ErrNameTaken) {
		t.Fatalf("Run = %v, want ErrNameTaken", err)
	}
	if got := dup.out.String(); got != room.NameTaken("alice") {
		t.Errorf("output = %q", got)
	}
}

func TestConnectMode_ServerFull(t *testing.T) {
	r := startRelay(t, func(cfg *config.Config) { cfg.MaxSessions = 1 })
	joinAs(t, r.addr, "bob")

	alice := runClient(t, context.Background(), r.addr, "alice")
	if err := alice.wait(t); !chaterr.Is(err, chaterr.ErrServerFull) {
		t.Fatalf("Run = %v, want ErrServerFull", err)
	}
}

func TestConnectMode_NameFromStdin(t *testing.T) {
	r := startRelay(t, nil)
	bob := joinAs(t, r.addr, "bob")

	carol := runClient(t, context.Background(), r.addr, "")
	go io.WriteString(carol.stdin, "  carol \n") //nolint:errcheck
	bob.expect(room.Joined("carol"))
	carol.expectOutput(t, room.Welcome("carol"))
}

func TestConnectMode_NoName(t *testing.T) {
	mode := &ConnectMode{
		Dialer:  &transport.TCPDialer{Timeout: time.Second},
		Address: "127.0.0.1:1",
		Logger:  util.NewLogger(0),
		Stdin:   strings.NewReader("\n"),
		Stdout:  io.Discard,
	}
	err := mode.Run(context.Background())
	var ce *chaterr.ConfigError
	if !chaterr.As(err, &ce) || ce.Field != "name" {
		t.Fatalf("Run = %v, want name ConfigError", err)
	}
}

func TestConnectMode_DialRefused(t *testing.T) {
	port, err := util.FindFreePort()
	if err != nil {
		t.Fatal(err)
	}
	mode := &ConnectMode{
		Dialer:  &transport.TCPDialer{Timeout: time.Second},
		Address: util.FormatAddr("127.0.0.1", port),
		Name:    "alice",
		Logger:  util.NewLogger(0),
		Stdin:   strings.NewReader(""),
		Stdout:  io.Discard,
	}
	err = mode.Run(context.Background())
	var ne *chaterr.NetworkError
	if !chaterr.As(err, &ne) || !ne.Retryable {
		t.Fatalf("Run = %v, want retryable NetworkError", err)
	}
}

func TestConnectMode_ContextCancel(t *testing.T) {
	r := startRelay(t, nil)
	bob := joinAs(t, r.addr, "bob")

	ctx, cancel := context.WithCancel(context.Background())
	alice := runClient(t, ctx, r.addr, "alice")
	bob.expect(room.Joined("alice"))

	cancel()
	if err := alice.wait(t); err != nil {
		t.Fatalf("Run = %v", err)
	}
	bob.expect(room.Left("alice"))
}
