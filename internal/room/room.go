// Package room holds the relay's shared state: who is online and what
// has been said.  Registry and history sit behind one mutex so that a
// newcomer's replay and its registration happen atomically with respect
// to every broadcast.
//
// Delivery never touches the network under the lock.  Each [Member]
// owns a bounded outbox; the room only performs non-blocking enqueues,
// and the member's own writer drains the outbox to the transport.  A
// member whose outbox is full is evicted after the lock is released.
package room

import (
	"sort"
	"strings"
	"sync"

	chaterr "github.com/mitnichiter/TCA-terminal-chat-app/internal/errors"
	"github.com/mitnichiter/TCA-terminal-chat-app/internal/metrics"
	"github.com/mitnichiter/TCA-terminal-chat-app/util"
)

// Member is a registered session as seen by the room.
type Member interface {
	// Enqueue queues msg for delivery without blocking and reports
	// whether it was accepted.
	Enqueue(msg string) bool
	// Evict tears the member's transport down.  It must be safe to call
	// more than once and from any goroutine.
	Evict(err error)
}

// Entry is one registry row.
type Entry struct {
	Name   string
	Member Member
}

// Options configures a [Room].
type Options struct {
	HistoryLimit int // 0 keeps every message
	Logger       *util.Logger
	Metrics      *metrics.Collector
}

// Room is the registry plus history log.  The zero value is not usable;
// construct with [New].
type Room struct {
	mu      sync.Mutex
	members map[string]Member
	history *History
	closed  bool

	logger  *util.Logger
	metrics *metrics.Collector
}

// New returns an empty room.
func New(opts Options) *Room {
	logger := opts.Logger
	if logger == nil {
		logger = util.NewLogger(0)
	}
	return &Room{
		members: make(map[string]Member),
		history: NewHistory(opts.HistoryLimit),
		logger:  logger,
		metrics: opts.Metrics,
	}
}

// ── Notices ──────────────────────────────────────────────────────────

// Welcome is the first line a newly registered session receives.
func Welcome(name string) string {
	return "--- Welcome to the Chat, " + name + "! ---\n"
}

// Joined is broadcast to everyone else when name registers.
func Joined(name string) string {
	return "[SYSTEM] " + name + " has joined the chat.\n"
}

// Left is broadcast to everyone when name's session ends.
func Left(name string) string {
	return "[SYSTEM] " + name + " has left the chat.\n"
}

// NameTaken is sent to a connection that asked for a name already in
// use, just before it is closed.
func NameTaken(name string) string {
	return "[SYSTEM] The name " + name + " is already taken.\n"
}

// ServerFull is sent to a connection refused by the session cap.
const ServerFull = "[SYSTEM] Server is full.\n"

// Chat formats one relayed payload.  The payload is kept verbatim, so a
// client-supplied trailing newline survives next to the added one.
func Chat(name, payload string) string {
	return name + ": " + payload + "\n"
}

// NormalizeName trims surrounding whitespace from a requested name.
func NormalizeName(raw string) string {
	return strings.TrimSpace(raw)
}

// ── Registry ─────────────────────────────────────────────────────────

// Join registers m under name and enqueues welcome followed by the full
// history as one outbox item, all under the room lock.  Every message
// broadcast afterwards reaches m live; none broadcast before is sent
// twice.
//
// Join fails with ErrInvalidName for an empty name, ErrNameTaken when
// another session holds it, ErrServerClosed after [Room.EvictAll], and
// ErrOutboxFull if m refuses the replay.
func (r *Room) Join(name string, m Member, welcome string) error {
	if name == "" {
		return chaterr.ErrInvalidName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return chaterr.ErrServerClosed
	}
	if _, taken := r.members[name]; taken {
		return chaterr.ErrNameTaken
	}
	if !m.Enqueue(welcome + r.history.Replay()) {
		return chaterr.ErrOutboxFull
	}
	r.members[name] = m
	r.logger.Debug("registered %q, replayed %d messages, %d online",
		name, r.history.Len(), len(r.members))
	return nil
}

// Leave removes name from the registry if, and only if, it is still
// held by m.  It reports whether a removal happened, so callers can
// announce a departure exactly once.
func (r *Room) Leave(name string, m Member) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.members[name]
	if !ok || cur != m {
		return false
	}
	delete(r.members, name)
	return true
}

// Snapshot returns a point-in-time copy of the registry sorted by name.
func (r *Room) Snapshot() []Entry {
	r.mu.Lock()
	out := make([]Entry, 0, len(r.members))
	for name, m := range r.members {
		out = append(out, Entry{Name: name, Member: m})
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of registered sessions.
func (r *Room) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// History returns a copy of the retained messages, oldest first.
func (r *Room) History() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.history.Snapshot()
}

// ── Broadcast ────────────────────────────────────────────────────────

// Broadcast appends msg to the history and queues it for every
// registered session except exclude ("" excludes nobody).  Recipients
// that cannot accept it are evicted once the lock is released; the rest
// are unaffected.  It returns the number of recipients that accepted.
func (r *Room) Broadcast(msg, exclude string) int {
	var failed []Entry
	delivered := 0

	r.mu.Lock()
	r.history.Append(msg)
	for name, m := range r.members {
		if name == exclude {
			continue
		}
		if m.Enqueue(msg) {
			delivered++
		} else {
			failed = append(failed, Entry{Name: name, Member: m})
		}
	}
	r.mu.Unlock()

	r.metrics.MessageBroadcast(delivered, len(failed))
	r.logger.Verbose("broadcast %d bytes to %d sessions", len(msg), delivered)

	for _, e := range failed {
		r.logger.Warn("dropping %q: outbox full", e.Name)
		e.Member.Evict(chaterr.ErrOutboxFull)
	}
	return delivered
}

// EvictAll closes the room to new joins and evicts every member with
// err.  Members still run their own Closing step.
func (r *Room) EvictAll(err error) {
	r.mu.Lock()
	r.closed = true
	all := make([]Member, 0, len(r.members))
	for _, m := range r.members {
		all = append(all, m)
	}
	r.mu.Unlock()

	for _, m := range all {
		m.Evict(err)
	}
}
