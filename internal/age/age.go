// Package age turns timestamps into whole-day counts and short human strings.
package age

import (
	"math"
	"time"

	"github.com/dustin/go-humanize"
)

// Day is a 24 hour period.
const Day = 24 * time.Hour

var ageMagnitudes = []humanize.RelTimeMagnitude{
	{D: Day, Format: "today", DivBy: 1},
	{D: 2 * Day, Format: "1 day", DivBy: 1},
	{D: 3 * humanize.Week, Format: "%d days", DivBy: Day},
	{D: 2 * humanize.Month, Format: "%d weeks", DivBy: humanize.Week},
	{D: humanize.Year, Format: "%d months", DivBy: humanize.Month},
	{D: 2 * humanize.Year, Format: "1 year", DivBy: 1},
	{D: math.MaxInt64, Format: "%d years", DivBy: humanize.Year},
}

var etaMagnitudes = []humanize.RelTimeMagnitude{
	{D: 2 * Day, Format: "in about a day", DivBy: 1},
	{D: 3 * humanize.Week, Format: "in about %d days", DivBy: Day},
	{D: 2 * humanize.Month, Format: "in about %d weeks", DivBy: humanize.Week},
	{D: humanize.Year, Format: "in about %d months", DivBy: humanize.Month},
	{D: math.MaxInt64, Format: "in over a year", DivBy: 1},
}

// DaysBetween returns the number of whole days elapsed from from to to.
// The result is never negative.
func DaysBetween(from, to time.Time) int {
	d := to.Sub(from)
	if d <= 0 {
		return 0
	}
	return int(d / Day)
}

// Age describes how long ago from was, relative to to, e.g. "12 days".
func Age(from, to time.Time) string {
	days := DaysBetween(from, to)
	return humanize.CustomRelTime(time.Time{}, time.Time{}.Add(time.Duration(days)*Day), "", "", ageMagnitudes)
}

// ETA describes a wait of the given number of days. Waits of a day or less
// are "soon".
func ETA(days int) string {
	if days <= 1 {
		return "soon"
	}
	return humanize.CustomRelTime(time.Time{}, time.Time{}.Add(time.Duration(days)*Day), "", "", etaMagnitudes)
}
