// Package clock implements TAO's time utilities: a nanosecond-resolution
// timestamp type shared with the wire layout of output frames, and the
// absolute-deadline / relative-timeout arithmetic every blocking call in
// ipc and remote is built on.
package clock

import "time"

// Timestamp mirrors the wire layout of the {seconds, nanoseconds} pair
// carried in every output frame header and in the shared array's
// fixed 5-entry timestamp table (spec §3.1).
type Timestamp struct {
	Seconds     int64
	Nanoseconds int64
}

// Now returns the current CLOCK_REALTIME-equivalent timestamp.
func Now() Timestamp {
	return FromTime(time.Now())
}

// FromTime converts a time.Time to a Timestamp.
func FromTime(t time.Time) Timestamp {
	return Timestamp{Seconds: t.Unix(), Nanoseconds: int64(t.Nanosecond())}
}

// Time converts back to a time.Time.
func (ts Timestamp) Time() time.Time {
	return time.Unix(ts.Seconds, ts.Nanoseconds)
}

// IsZero reports whether the timestamp has never been set.
func (ts Timestamp) IsZero() bool {
	return ts.Seconds == 0 && ts.Nanoseconds == 0
}

// Deadline is an absolute point in time (CLOCK_REALTIME, nanosecond
// precision) used by every Until-style blocking call.
type Deadline time.Time

// Forever is a Deadline far enough in the future to behave as an
// unbounded wait for any realistic test or production timeout.
var Forever = Deadline(time.Now().AddDate(100, 0, 0))

// AfterSeconds returns a Deadline secs seconds from now. A negative or
// zero secs yields a Deadline that has already elapsed, i.e. an
// immediate "try" rather than a blocking wait.
func AfterSeconds(secs float64) Deadline {
	if secs <= 0 {
		return Deadline(time.Now())
	}
	return Deadline(time.Now().Add(time.Duration(secs * float64(time.Second))))
}

// Elapsed reports whether the deadline has already passed.
func (d Deadline) Elapsed() bool {
	return !time.Time(d).After(time.Now())
}

// Remaining returns the non-negative duration left until the deadline.
func (d Deadline) Remaining() time.Duration {
	left := time.Until(time.Time(d))
	if left < 0 {
		return 0
	}
	return left
}

// Time exposes the underlying time.Time.
func (d Deadline) Time() time.Time {
	return time.Time(d)
}
