package util

import "time"

// IsTradingDay reports whether t falls on a weekday. Exchange holidays are
// not modelled here; the series quality checks absorb holiday gaps through
// the missing-bar ratio threshold instead.
func IsTradingDay(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// CountTradingDays returns the number of weekdays in [start, end] inclusive.
// Both bounds are truncated to their calendar day.
func CountTradingDays(start, end time.Time) int {
	start = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	end = time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
	if end.Before(start) {
		return 0
	}

	// Whole weeks contribute five days each; walk the remainder.
	days := int(end.Sub(start).Hours()/24) + 1
	weeks := days / 7
	count := weeks * 5
	for d := start.AddDate(0, 0, weeks*7); !d.After(end); d = d.AddDate(0, 0, 1) {
		if IsTradingDay(d) {
			count++
		}
	}
	return count
}

// PrevTradingDay returns the last weekday strictly before t.
func PrevTradingDay(t time.Time) time.Time {
	d := t.AddDate(0, 0, -1)
	for !IsTradingDay(d) {
		d = d.AddDate(0, 0, -1)
	}
	return d
}
