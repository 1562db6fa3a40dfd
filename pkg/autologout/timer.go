package autologout

import (
	"sync"
	"time"
)

// StateStore persists session state across client restarts.
type StateStore interface {
	Load() (State, bool, error)
	Save(State) error
	Clear() error
}

// Timer mirrors the server-side session expiry on the client. It holds at
// most one scheduled logout at a time: starting a new session replaces the
// previous schedule, and the persisted state always describes the session
// the timer is tracking.
//
// The timer is advisory. The server remains the authority on session
// validity; the callback only lets the client log itself out locally instead
// of discovering the expiry on its next request.
type Timer struct {
	store    StateStore
	sched    Scheduler
	onExpire func()
	now      func() time.Time

	mu     sync.Mutex
	cancel func()
	active bool
}

type Option func(*Timer)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Timer) { t.now = now }
}

// New creates a Timer. onExpire runs when the tracked session's lifetime
// elapses, after the persisted state has been cleared.
func New(store StateStore, sched Scheduler, onExpire func(), opts ...Option) *Timer {
	t := &Timer{
		store:    store,
		sched:    sched,
		onExpire: onExpire,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// StartSession begins tracking a freshly issued session. Any previously
// scheduled logout is canceled first. The state is persisted before the
// callback is scheduled so a crash between the two still restores correctly.
func (t *Timer) StartSession(token string, issuedAt time.Time, ttl time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cancelLocked()

	state := State{
		Token:      token,
		IssuedAt:   issuedAt,
		TTLSeconds: int64(ttl / time.Second),
	}
	if err := t.store.Save(state); err != nil {
		return err
	}

	t.scheduleLocked(state)
	return nil
}

// Restore resumes tracking after a client restart. If the persisted session
// has already expired the expiry fires immediately and nothing is scheduled.
// No persisted state is a no-op.
func (t *Timer) Restore() error {
	t.mu.Lock()

	state, ok, err := t.store.Load()
	if err != nil {
		t.mu.Unlock()
		return err
	}
	if !ok {
		t.mu.Unlock()
		return nil
	}

	if !t.now().Before(state.ExpiresAt()) {
		t.cancelLocked()
		t.mu.Unlock()

		_ = t.store.Clear()
		if t.onExpire != nil {
			t.onExpire()
		}
		return nil
	}

	t.cancelLocked()
	t.scheduleLocked(state)
	t.mu.Unlock()
	return nil
}

// Cancel stops tracking without firing the expiry callback and clears the
// persisted state. Used on explicit logout. Idempotent.
func (t *Timer) Cancel() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cancelLocked()
	return t.store.Clear()
}

// ForceLogout handles the server declaring the session invalid ahead of the
// local schedule: the pending callback is dropped, state is cleared and the
// expiry callback fires once. Idempotent.
func (t *Timer) ForceLogout() {
	t.mu.Lock()
	wasActive := t.active
	t.cancelLocked()
	t.mu.Unlock()

	_ = t.store.Clear()
	if wasActive && t.onExpire != nil {
		t.onExpire()
	}
}

// Active reports whether a logout is currently scheduled.
func (t *Timer) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// Remaining returns the time left until the tracked session expires, or
// zero when nothing is tracked.
func (t *Timer) Remaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.active {
		return 0
	}
	state, ok, err := t.store.Load()
	if err != nil || !ok {
		return 0
	}
	remaining := state.ExpiresAt().Sub(t.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (t *Timer) scheduleLocked(state State) {
	remaining := state.ExpiresAt().Sub(t.now())
	if remaining < 0 {
		remaining = 0
	}
	t.active = true
	t.cancel = t.sched.Schedule(remaining, t.expire)
}

func (t *Timer) cancelLocked() {
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	t.active = false
}

// expire runs when the session lifetime elapses.
func (t *Timer) expire() {
	t.mu.Lock()
	if !t.active {
		t.mu.Unlock()
		return
	}
	t.cancel = nil
	t.active = false
	t.mu.Unlock()

	_ = t.store.Clear()
	if t.onExpire != nil {
		t.onExpire()
	}
}
