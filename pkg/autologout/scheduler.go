package autologout

import (
	"time"
)

// Scheduler schedules a single callback to run once after a delay. The
// returned cancel function must be idempotent: canceling an already-fired or
// already-canceled callback is a no-op.
type Scheduler interface {
	Schedule(d time.Duration, fn func()) (cancel func())
}

// TimerScheduler is the production Scheduler, backed by time.AfterFunc.
type TimerScheduler struct{}

func (TimerScheduler) Schedule(d time.Duration, fn func()) func() {
	timer := time.AfterFunc(d, fn)
	return func() { timer.Stop() }
}
