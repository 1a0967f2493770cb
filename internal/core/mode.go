// Package core is the orchestration layer.  It composes the room, the
// session handler, and the transports into the two things tca can do:
// run the relay, or join one as a line client.
//
// Architecture layers (bottom → top):
//
//	transport  →  room  →  session  →  core  →  cmd (CLI)
//
// [Build] is the single dispatch point from a Config to a Mode.
package core

import "context"

// Mode is one complete role of tca (serve or connect).  Each mode owns
// its full lifecycle from the first socket to teardown.
type Mode interface {
	Run(ctx context.Context) error
}
