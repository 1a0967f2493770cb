package room

import "strings"

// History is the ordered log of broadcast messages replayed to every
// newcomer.  With a positive limit it keeps only the newest messages in
// a ring; otherwise it grows without bound.
//
// History is not safe for concurrent use; [Room] guards it with the same
// lock as the registry.
type History struct {
	limit int
	buf   []string
	start int // index of the oldest entry when the ring is full
}

// NewHistory returns an empty log.  limit <= 0 means unbounded.
func NewHistory(limit int) *History {
	if limit < 0 {
		limit = 0
	}
	return &History{limit: limit}
}

// Append adds msg at the tail, dropping the oldest entry when full.
func (h *History) Append(msg string) {
	if h.limit == 0 || len(h.buf) < h.limit {
		h.buf = append(h.buf, msg)
		return
	}
	h.buf[h.start] = msg
	h.start = (h.start + 1) % h.limit
}

// Len returns the number of retained messages.
func (h *History) Len() int { return len(h.buf) }

// Snapshot returns the retained messages oldest first.
func (h *History) Snapshot() []string {
	out := make([]string, 0, len(h.buf))
	out = append(out, h.buf[h.start:]...)
	out = append(out, h.buf[:h.start]...)
	return out
}

// Replay returns the retained messages concatenated oldest first, the
// exact bytes a newcomer receives after the welcome line.
func (h *History) Replay() string {
	var b strings.Builder
	for _, m := range h.buf[h.start:] {
		b.WriteString(m)
	}
	for _, m := range h.buf[:h.start] {
		b.WriteString(m)
	}
	return b.String()
}
