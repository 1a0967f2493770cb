package retry

import (
	"errors"
	"testing"
	"time"

	chaterr "github.com/mitnichiter/TCA-terminal-chat-app/internal/errors"
)

var errNotifier = errors.New("notify-send: not found")

// manualClock lets tests move the breaker past its reset timeout
// without sleeping.
type manualClock struct{ t time.Time }

func (c *manualClock) now() time.Time          { return c.t }
func (c *manualClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(cfg *CircuitBreakerConfig) (*CircuitBreaker, *manualClock) {
	clk := &manualClock{t: time.Unix(1_700_000_000, 0)}
	cb := NewCircuitBreaker(cfg)
	cb.now = clk.now
	return cb, clk
}

func fail() error    { return errNotifier }
func succeed() error { return nil }

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb, _ := newTestBreaker(&CircuitBreakerConfig{MaxFailures: 3})

	for i := 0; i < 2; i++ {
		cb.Execute(fail) //nolint:errcheck
		if cb.CurrentState() != StateClosed {
			t.Fatalf("opened early after %d failures", i+1)
		}
	}
	cb.Execute(fail) //nolint:errcheck
	if cb.CurrentState() != StateOpen {
		t.Fatalf("state = %v, want open", cb.CurrentState())
	}
}

func TestCircuitBreaker_RejectsWhenOpen(t *testing.T) {
	cb, _ := newTestBreaker(&CircuitBreakerConfig{MaxFailures: 1})
	cb.Execute(fail) //nolint:errcheck

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	if called {
		t.Error("fn must not run while open")
	}
	if !errors.Is(err, chaterr.ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen", err)
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb, clk := newTestBreaker(&CircuitBreakerConfig{
		MaxFailures: 1, ResetTimeout: time.Minute, HalfOpenMax: 2,
	})
	cb.Execute(fail) //nolint:errcheck

	clk.advance(time.Minute)
	if err := cb.Execute(succeed); err != nil {
		t.Fatalf("probe should run: %v", err)
	}
	if cb.CurrentState() != StateHalfOpen {
		t.Fatalf("state = %v, want half-open after one probe", cb.CurrentState())
	}
	cb.Execute(succeed) //nolint:errcheck
	if cb.CurrentState() != StateClosed {
		t.Errorf("state = %v, want closed", cb.CurrentState())
	}
	if cb.Failures() != 0 {
		t.Errorf("failures = %d, want 0", cb.Failures())
	}
}

func TestCircuitBreaker_HalfOpenFailure(t *testing.T) {
	cb, clk := newTestBreaker(&CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Minute})
	cb.Execute(fail) //nolint:errcheck

	clk.advance(2 * time.Minute)
	cb.Execute(fail) //nolint:errcheck
	if cb.CurrentState() != StateOpen {
		t.Fatalf("state = %v, want open again", cb.CurrentState())
	}

	// The reset timer restarts from the failed probe.
	clk.advance(30 * time.Second)
	if err := cb.Execute(succeed); !errors.Is(err, chaterr.ErrCircuitOpen) {
		t.Errorf("err = %v, want still open", err)
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb, _ := newTestBreaker(&CircuitBreakerConfig{MaxFailures: 1})
	cb.Execute(fail) //nolint:errcheck
	cb.Reset()
	if cb.CurrentState() != StateClosed || cb.Failures() != 0 {
		t.Errorf("after reset: state=%v failures=%d", cb.CurrentState(), cb.Failures())
	}
}

func TestCircuitBreaker_StateChange(t *testing.T) {
	var got []string
	cb, clk := newTestBreaker(&CircuitBreakerConfig{
		MaxFailures:  1,
		ResetTimeout: time.Second,
		OnStateChange: func(from, to State) {
			got = append(got, from.String()+"->"+to.String())
		},
	})
	cb.Execute(fail) //nolint:errcheck
	clk.advance(time.Second)
	cb.Execute(succeed) //nolint:errcheck

	want := []string{"closed->open", "open->half-open", "half-open->closed"}
	if len(got) != len(want) {
		t.Fatalf("transitions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("transition %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb, _ := newTestBreaker(&CircuitBreakerConfig{MaxFailures: 3})
	cb.Execute(fail)    //nolint:errcheck
	cb.Execute(fail)    //nolint:errcheck
	cb.Execute(succeed) //nolint:errcheck
	cb.Execute(fail)    //nolint:errcheck
	if cb.CurrentState() != StateClosed {
		t.Errorf("state = %v, non-consecutive failures should not open", cb.CurrentState())
	}
}

func TestCircuitBreaker_NilConfig(t *testing.T) {
	cb := NewCircuitBreaker(nil)
	if cb.maxFailures != 3 || cb.resetTimeout != time.Minute || cb.halfOpenMax != 1 {
		t.Errorf("defaults not applied: %d %v %d", cb.maxFailures, cb.resetTimeout, cb.halfOpenMax)
	}
}

func TestState_String(t *testing.T) {
	tests := map[State]string{
		StateClosed:   "closed",
		StateOpen:     "open",
		StateHalfOpen: "half-open",
		State(42):     "unknown",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}
