package utils

import (
	"time"
)

// SeoulLocation is the timezone run timestamps are reported in.
var SeoulLocation *time.Location

func init() {
	var err error
	SeoulLocation, err = time.LoadLocation("Asia/Seoul")
	if err != nil {
		// Fallback to UTC+9
		SeoulLocation = time.FixedZone("KST", 9*60*60)
	}
}

// Clock supplies the current time. Tests pin it with FixedClock.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant.
type FixedClock time.Time

// Now returns the fixed instant.
func (c FixedClock) Now() time.Time { return time.Time(c) }

// Today returns the current calendar day as UTC midnight, taken in loc.
func Today(c Clock, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	y, m, d := c.Now().In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// RunTimestamp formats t in Seoul local time, the format written to summaries.
func RunTimestamp(t time.Time) string {
	return t.In(SeoulLocation).Format(time.RFC3339)
}

// IsWeekend reports whether the day falls on Saturday or Sunday.
func IsWeekend(t time.Time) bool {
	return t.Weekday() == time.Saturday || t.Weekday() == time.Sunday
}
