// Package clock abstracts "now" so date-sensitive scan logic can be tested
// against fixed points in time.
package clock

import (
	"math"
	"time"
)

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

// System reads the wall clock.
type System struct{}

func (System) Now() time.Time {
	return time.Now()
}

// Fixed always returns the same instant. Test use only.
type Fixed struct {
	now time.Time
}

func NewFixed(t time.Time) *Fixed {
	return &Fixed{now: t}
}

func (c *Fixed) Now() time.Time {
	return c.now
}

// Advance moves the fixed clock forward.
func (c *Fixed) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

// DaysBetween returns the number of calendar days from a to b in loc
// (positive when b is later). Both ends are normalized to midnight and the
// difference rounded, so a DST transition inside the span cannot shift the
// count.
func DaysBetween(a, b time.Time, loc *time.Location) int {
	am := Midnight(a, loc)
	bm := Midnight(b, loc)
	return int(math.Round(bm.Sub(am).Hours() / 24))
}

// Midnight truncates t to 00:00 in loc.
func Midnight(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// MonthStart returns the first instant of t's calendar month in loc.
func MonthStart(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
}
