package timectx

import "time"

// Clock supplies the current time. The pipeline injects a fixed clock in
// tests so hour checks and prompt timestamps stay deterministic.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns the current system time.
func (SystemClock) Now() time.Time { return time.Now() }

// Fixed is a Clock pinned to a single instant.
type Fixed time.Time

// Now returns the pinned instant.
func (f Fixed) Now() time.Time { return time.Time(f) }

// TimeContext carries one resolved "now" in the restaurant's timezone. The
// gatekeeper and the prompt assembler must share the same context so hour
// checks and the prompt's printed clock never disagree.
type TimeContext struct {
	Now      time.Time
	Location *time.Location
}

// For resolves the clock against a location.
func For(clock Clock, loc *time.Location) TimeContext {
	if loc == nil {
		loc = time.UTC
	}
	return TimeContext{Now: clock.Now().In(loc), Location: loc}
}

// Weekday returns the local weekday.
func (tc TimeContext) Weekday() time.Weekday { return tc.Now.Weekday() }

// MinuteOfDay returns the local wall-clock minute, 0..1439.
func (tc TimeContext) MinuteOfDay() int {
	return tc.Now.Hour()*60 + tc.Now.Minute()
}
