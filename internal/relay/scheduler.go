package relay

import "time"

// Timer is a pending scheduled call.
type Timer interface {
	// Stop prevents the call from running if it has not started yet.
	Stop() bool
}

// Scheduler runs delayed calls on its own goroutine.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// realScheduler schedules with time.AfterFunc.
type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
