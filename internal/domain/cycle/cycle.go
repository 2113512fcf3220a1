// Package cycle computes monthly billing-cycle boundaries from an anchor date.
//
// Cycle IDs start at 1 for the cycle containing the anchor. ID 0 is reserved
// for ledger entries that have never been reset. A boundary falls on the
// anchor's day of month, clamped to the last day of shorter months.
package cycle

import "time"

// ID returns the cycle containing now. Times before the anchor map to cycle 1.
func ID(anchor, now time.Time) int64 {
	anchor = day(anchor)
	now = now.UTC()

	months := (now.Year()-anchor.Year())*12 + int(now.Month()) - int(anchor.Month())
	if months < 0 {
		return 1
	}
	if now.Before(boundary(anchor, months)) {
		months--
	}
	if months < 0 {
		return 1
	}
	return int64(months) + 1
}

// Start returns the first instant of cycle id.
func Start(anchor time.Time, id int64) time.Time {
	if id < 1 {
		id = 1
	}
	return boundary(day(anchor), int(id-1))
}

// End returns the first instant after cycle id (the next boundary).
func End(anchor time.Time, id int64) time.Time {
	if id < 1 {
		id = 1
	}
	return boundary(day(anchor), int(id))
}

// boundary returns anchor shifted by n months with the day clamped.
func boundary(anchor time.Time, n int) time.Time {
	first := time.Date(anchor.Year(), anchor.Month()+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	d := anchor.Day()
	if last := daysIn(first); d > last {
		d = last
	}
	return first.AddDate(0, 0, d-1)
}

func daysIn(firstOfMonth time.Time) int {
	return firstOfMonth.AddDate(0, 1, -1).Day()
}

func day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
