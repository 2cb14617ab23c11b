// Package system is the wall clock used outside tests.
package system

import "time"

// DefaultPrecision keeps timestamps in JSON and CSV output to milliseconds.
const DefaultPrecision = time.Millisecond

// Clock stamps extraction and upload times in UTC.
type Clock struct {
	precision time.Duration
}

// New returns a Clock truncating to DefaultPrecision.
func New() *Clock {
	return &Clock{precision: DefaultPrecision}
}

// Now returns the current UTC time truncated to the clock's precision. The
// zero Clock does not truncate.
func (c Clock) Now() time.Time {
	return time.Now().UTC().Truncate(c.precision)
}
