package app

import "time"

// Clock abstracts time so the timer and answer windows can be driven in tests.
type Clock interface {
	Now() time.Time
	// AfterFunc runs f in its own goroutine after d. The returned func stops
	// the timer and reports whether it was still pending.
	AfterFunc(d time.Duration, f func()) (stop func() bool)
}

type systemClock struct{}

// SystemClock is the wall clock.
func SystemClock() Clock { return systemClock{} }

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}
