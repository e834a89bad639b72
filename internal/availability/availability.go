// Package availability answers date questions about a single car: whether a
// calendar day is taken, which day is the nearest free one, and whether a
// requested rental period collides with existing bookings.
//
// All functions are pure. Times are reduced to calendar days in UTC, and
// every interval is inclusive on both ends.
package availability

import (
	"encoding/json"
	"errors"
	"time"
)

const (
	// DefaultHorizonDays bounds the nearest-available scan.
	DefaultHorizonDays = 365

	// DefaultSpanDays is the rental length preselected after a car change.
	DefaultSpanDays = 2
)

var ErrInvertedInterval = errors.New("interval start is after end")

// Interval is a closed range of calendar days.
type Interval struct {
	Start time.Time `json:"startDate"`
	End   time.Time `json:"endDate"`
}

// OccupiedSet holds the booked intervals of one car.
type OccupiedSet []Interval

// Day truncates t to midnight UTC of its calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func NewInterval(start, end time.Time) (Interval, error) {
	s, e := Day(start), Day(end)
	if s.After(e) {
		return Interval{}, ErrInvertedInterval
	}
	return Interval{Start: s, End: e}, nil
}

// Contains reports whether the calendar day of t falls inside iv.
func (iv Interval) Contains(t time.Time) bool {
	d := Day(t)
	return !d.Before(Day(iv.Start)) && !d.After(Day(iv.End))
}

// Days is the number of calendar days covered, endpoints included.
func (iv Interval) Days() int {
	return int(Day(iv.End).Sub(Day(iv.Start)).Hours()/24) + 1
}

// MarshalJSON writes both ends as plain dates, the shape date pickers consume.
func (iv Interval) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Start string `json:"startDate"`
		End   string `json:"endDate"`
	}{iv.Start.Format(time.DateOnly), iv.End.Format(time.DateOnly)})
}

func (iv *Interval) UnmarshalJSON(b []byte) error {
	var raw struct {
		Start string `json:"startDate"`
		End   string `json:"endDate"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	s, err := time.Parse(time.DateOnly, raw.Start)
	if err != nil {
		return err
	}
	e, err := time.Parse(time.DateOnly, raw.End)
	if err != nil {
		return err
	}
	out, err := NewInterval(s, e)
	if err != nil {
		return err
	}
	*iv = out
	return nil
}

func (iv Interval) IsZero() bool {
	return iv.Start.IsZero() && iv.End.IsZero()
}

// IsDateBlocked reports whether date lies in some occupied interval. A day
// inside exempt is never blocked, which lets a booking ignore its own range.
func IsDateBlocked(date time.Time, occupied OccupiedSet, exempt *Interval) bool {
	if exempt != nil && exempt.Contains(date) {
		return false
	}
	for _, iv := range occupied {
		if iv.Contains(date) {
			return true
		}
	}
	return false
}

// NearestAvailableDate scans forward one day at a time from the calendar day
// of from (inclusive) and returns the first day that is not blocked. Offsets
// 0 through horizonDays are tried. A non-positive horizon means
// DefaultHorizonDays. The bool is false when the whole horizon is taken.
func NearestAvailableDate(occupied OccupiedSet, from time.Time, horizonDays int, exempt *Interval) (time.Time, bool) {
	if horizonDays <= 0 {
		horizonDays = DefaultHorizonDays
	}
	start := Day(from)
	for i := 0; i <= horizonDays; i++ {
		d := start.AddDate(0, 0, i)
		if !IsDateBlocked(d, occupied, exempt) {
			return d, true
		}
	}
	return time.Time{}, false
}

// Conflict returns the first occupied interval that blocks any day of
// requested, honouring exempt the same way IsDateBlocked does.
func Conflict(occupied OccupiedSet, requested Interval, exempt *Interval) (Interval, bool) {
	end := Day(requested.End)
	for d := Day(requested.Start); !d.After(end); d = d.AddDate(0, 0, 1) {
		if exempt != nil && exempt.Contains(d) {
			continue
		}
		for _, iv := range occupied {
			if iv.Contains(d) {
				return iv, true
			}
		}
	}
	return Interval{}, false
}

// SuggestPeriod picks the nearest free day from from and pairs it with a
// return date DefaultSpanDays later.
func SuggestPeriod(occupied OccupiedSet, from time.Time) (Interval, bool) {
	start, ok := NearestAvailableDate(occupied, from, DefaultHorizonDays, nil)
	if !ok {
		return Interval{}, false
	}
	return Interval{Start: start, End: start.AddDate(0, 0, DefaultSpanDays)}, true
}

// CalendarDay is one cell of a month view.
type CalendarDay struct {
	Date    string `json:"date"`
	Blocked bool   `json:"blocked"`
	Past    bool   `json:"past"`
}

// Calendar lays out every day of the month containing month. Days before
// today are flagged Past so pickers can disable them as well.
func Calendar(occupied OccupiedSet, month, today time.Time, exempt *Interval) []CalendarDay {
	first := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC)
	next := first.AddDate(0, 1, 0)
	t := Day(today)

	out := make([]CalendarDay, 0, 31)
	for d := first; d.Before(next); d = d.AddDate(0, 0, 1) {
		out = append(out, CalendarDay{
			Date:    d.Format(time.DateOnly),
			Blocked: IsDateBlocked(d, occupied, exempt),
			Past:    d.Before(t),
		})
	}
	return out
}
