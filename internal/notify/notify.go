// Package notify raises desktop notifications for chat lines that came
// from someone else.  Notifications are best-effort: a broken notifier
// is logged and eventually left alone, never surfaced to the chat loop.
package notify

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	chaterr "github.com/mitnichiter/TCA-terminal-chat-app/internal/errors"
	"github.com/mitnichiter/TCA-terminal-chat-app/internal/retry"
	"github.com/mitnichiter/TCA-terminal-chat-app/util"
)

// TermuxCmd is the command template used on Android under Termux.
const TermuxCmd = "termux-notification -t {title} -c {body}"

// runTimeout bounds a single notifier invocation.
const runTimeout = 5 * time.Second

// Sink receives one notification per attributable chat line.
type Sink interface {
	Notify(title, body string) error
}

type discard struct{}

func (discard) Notify(string, string) error { return nil }

// Discard drops every notification.
var Discard Sink = discard{}

// Title is the heading shown for a message from sender.
func Title(sender string) string {
	return "New message from " + sender
}

// Attribute decides whether a received line deserves a notification.
// A line is attributable when it has the form "sender: body", sender is
// not self, and sender is not a system notice.  body is trimmed.
func Attribute(line, self string) (sender, body string, ok bool) {
	i := strings.IndexByte(line, ':')
	if i < 0 {
		return "", "", false
	}
	sender = line[:i]
	if sender == self || strings.Contains(sender, "[SYSTEM]") {
		return "", "", false
	}
	return sender, strings.TrimSpace(line[i+1:]), true
}

// ── Exec ─────────────────────────────────────────────────────────────

// Exec runs an external command per notification.  The template is
// split on whitespace; "{title}" and "{body}" are substituted inside
// each argument, so a multi-word title stays a single argument.
type Exec struct {
	argv    []string
	breaker *retry.CircuitBreaker
	logger  *util.Logger

	// run executes argv; replaced in tests.
	run func(ctx context.Context, argv []string) error
}

// NewExec parses template into a notifier.
func NewExec(template string, logger *util.Logger) (*Exec, error) {
	argv := strings.Fields(template)
	if len(argv) == 0 {
		return nil, &chaterr.ConfigError{
			Field: "notify-cmd", Value: template,
			Message: "is empty", Hint: "use --no-notify to disable notifications",
		}
	}
	if logger == nil {
		logger = util.NewLogger(0)
	}

	e := &Exec{argv: argv, logger: logger, run: runCommand}
	e.breaker = retry.NewCircuitBreaker(&retry.CircuitBreakerConfig{
		OnStateChange: func(from, to retry.State) {
			if to == retry.StateOpen {
				logger.Warn("notifier %q keeps failing; pausing notifications", argv[0])
			} else {
				logger.Debug("notifier circuit %s → %s", from, to)
			}
		},
	})
	return e, nil
}

// Args returns the argv that would be run for title and body.
func (e *Exec) Args(title, body string) []string {
	r := strings.NewReplacer("{title}", title, "{body}", body)
	out := make([]string, len(e.argv))
	for i, a := range e.argv {
		out[i] = r.Replace(a)
	}
	return out
}

// Notify runs the command unless it has failed repeatedly of late.
func (e *Exec) Notify(title, body string) error {
	argv := e.Args(title, body)
	err := e.breaker.Execute(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()
		return e.run(ctx, argv)
	})
	if err != nil && !chaterr.Is(err, chaterr.ErrCircuitOpen) {
		e.logger.Verbose("notify: %v", err)
	}
	return err
}

func runCommand(ctx context.Context, argv []string) error {
	out, err := exec.CommandContext(ctx, argv[0], argv[1:]...).CombinedOutput()
	if err != nil {
		if msg := strings.TrimSpace(string(out)); msg != "" {
			return fmt.Errorf("%s: %w: %s", argv[0], err, msg)
		}
		return fmt.Errorf("%s: %w", argv[0], err)
	}
	return nil
}
