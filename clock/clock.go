// Package clock gives the scoring pipeline an explicit seam for "now"
// instead of letting callers reach for time.Now() directly. Signal
// scoring must judge age and dormancy relative to a trade's own
// timestamp, never the process clock, so every component that needs
// "now" takes a Clock.
package clock

import "time"

// Clock returns the current time. The zero value is not usable; use
// Real() or At().
type Clock interface {
	Now() time.Time
}

type realClock struct{}

// Now returns time.Now().
func (realClock) Now() time.Time { return time.Now() }

// Real returns a Clock backed by the process wall clock.
func Real() Clock { return realClock{} }

// Fixed is a Clock that always returns the same instant, for callers
// that need a deterministic "now".
type Fixed time.Time

// Now returns the fixed instant.
func (f Fixed) Now() time.Time { return time.Time(f) }

// At builds a Fixed clock from a unix-seconds timestamp.
func At(unixSeconds int64) Fixed {
	return Fixed(time.Unix(unixSeconds, 0).UTC())
}
