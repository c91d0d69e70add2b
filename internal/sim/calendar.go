package sim

import "time"

// DateLayout is the calendar-date format used in logs and state.
const DateLayout = "2006-01-02"

// civil truncates t to midnight UTC of its calendar date.
func civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// IsBusinessDay reports whether t falls on Monday through Friday.
func IsBusinessDay(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// BusinessDayOnOrAfter returns the first business day at or after t.
func BusinessDayOnOrAfter(t time.Time) time.Time {
	day := civil(t)
	for !IsBusinessDay(day) {
		day = day.AddDate(0, 0, 1)
	}
	return day
}

// NextBusinessDay returns the first business day strictly after t.
func NextBusinessDay(t time.Time) time.Time {
	return BusinessDayOnOrAfter(civil(t).AddDate(0, 0, 1))
}

// BusinessDays lists every business day in [start, end].
func BusinessDays(start, end time.Time) []time.Time {
	var days []time.Time
	last := civil(end)
	for day := BusinessDayOnOrAfter(start); !day.After(last); day = NextBusinessDay(day) {
		days = append(days, day)
	}
	return days
}
