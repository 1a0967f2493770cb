package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags, the .env file, and environment variable loading.

const (
	// DefaultPort is the relay's well-known TCP port.
	DefaultPort = 12345

	// DefaultBindHost listens on every interface.
	DefaultBindHost = "0.0.0.0"

	// DefaultReadBufSize is the size of one inbound read.  One read is
	// one chat payload.
	DefaultReadBufSize = 1024

	// DefaultOutboxSize bounds the messages queued for one recipient
	// before it is considered stuck and evicted.
	DefaultOutboxSize = 256

	// DefaultWriteTimeout bounds a single write to one recipient.
	DefaultWriteTimeout = 10 * time.Second

	// DefaultGracePeriod is how long shutdown waits for sessions to
	// finish their Closing step.
	DefaultGracePeriod = 5 * time.Second

	// DefaultWSPath is the HTTP path upgraded to a WebSocket session.
	DefaultWSPath = "/chat"

	// DefaultConnTimeout is the client's TCP/SSH/WebSocket dial timeout.
	DefaultConnTimeout = 30 * time.Second

	// DefaultSSHPort is the standard SSH port.
	DefaultSSHPort = 22

	// DefaultNotifyCmd is the desktop notifier.  {title} and {body} are
	// substituted per argument.
	DefaultNotifyCmd = "notify-send {title} {body}"

	// DefaultEnvFile is read at startup when present.
	DefaultEnvFile = ".env"
)
