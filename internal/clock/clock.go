// Package clock abstracts wall-clock time and timers so scheduling can be tested.
package clock

import "time"

// Clock reports the current time and schedules callbacks.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a cancellable scheduled callback.
type Timer interface {
	// Stop prevents the callback from firing. It reports whether the call
	// stopped the timer before it fired.
	Stop() bool
}

// Real is a Clock backed by the time package. Now is reported in Location,
// which decides what "today" means for daily dedup.
type Real struct {
	Location *time.Location
}

// New returns a real clock in loc; a nil loc means time.Local.
func New(loc *time.Location) *Real {
	if loc == nil {
		loc = time.Local
	}
	return &Real{Location: loc}
}

// Now returns the current time in the clock's location.
func (c *Real) Now() time.Time {
	return time.Now().In(c.Location)
}

// AfterFunc wraps time.AfterFunc.
func (c *Real) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
