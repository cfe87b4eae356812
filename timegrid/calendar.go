package timegrid

import "time"

const secondsPerDay = 24 * 60 * 60

// DaysSinceEpoch numbers the calendar day of t as observed in loc.
// Consecutive local days differ by exactly one regardless of DST.
func DaysSinceEpoch(t time.Time, loc *time.Location) int {
	y, m, d := t.In(loc).Date()
	secs := time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix()
	days := secs / secondsPerDay
	if secs%secondsPerDay < 0 {
		days--
	}
	return int(days)
}

// DayOffset returns how many local calendar days date lies after now.
func DayOffset(date, now time.Time, loc *time.Location) int {
	return DaysSinceEpoch(date, loc) - DaysSinceEpoch(now, loc)
}

// StartOfDay returns local midnight of the calendar day of t.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// AddDays moves t by n local calendar days, keeping the wall-clock time.
func AddDays(t time.Time, n int, loc *time.Location) time.Time {
	l := t.In(loc)
	return time.Date(l.Year(), l.Month(), l.Day()+n, l.Hour(), l.Minute(), l.Second(), l.Nanosecond(), loc)
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
