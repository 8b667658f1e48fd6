// Package recur computes occurrences of repeating datebook events.
package recur

import (
	"errors"
	"fmt"
	"time"

	"palm2ical/internal/model"
	"palm2ical/internal/palm"
)

var (
	// ErrNotRepeating is returned by Next for an event without a repeat
	// specification.
	ErrNotRepeating = errors.New("recur: event does not repeat")

	// ErrUnknownBrand is returned for a brand outside the six known
	// repeat patterns.
	ErrUnknownBrand = errors.New("recur: unknown repeat brand")

	// ErrMalformed is returned when a brand field is missing or out of
	// range.
	ErrMalformed = errors.New("recur: malformed repeat specification")

	// ErrStalled is returned when a step fails to move the start forward.
	ErrStalled = errors.New("recur: recurrence does not advance")
)

// Next returns a copy of ev moved to its next occurrence. End shifts by
// the same amount as Start. ev.Repeat is read, never modified.
//
// The step is computed on the start's wall clock at its current UTC
// offset. If the result falls on the other side of a DST change in the
// event's zone, it is shifted by the offset difference so the wall-clock
// time is kept.
//
// Monthly and yearly repeats by date clamp the day to the length of a
// short month: the 31st repeats on Feb 29 in 2024, not on Mar 2.
func Next(ev model.Event) (model.Event, error) {
	spec := ev.Repeat
	if spec == nil || !spec.Repeats() {
		return ev, ErrNotRepeating
	}

	loc := ev.Start.Location()
	name, offset := ev.Start.Zone()
	naive := ev.Start.In(time.FixedZone(name, offset))

	interval := int(spec.Interval)
	if interval == 0 {
		interval = 1
	}

	var next time.Time
	var err error
	switch spec.Brand {
	case palm.BrandDaily:
		next = naive.AddDate(0, 0, interval)
	case palm.BrandWeekly:
		next, err = nextWeekly(naive, spec, interval)
	case palm.BrandMonthlyByDay:
		next, err = nextMonthlyByDay(naive, spec, interval)
	case palm.BrandMonthlyByDate:
		next, err = nextMonthlyByDate(naive, spec, interval)
	case palm.BrandYearlyByDate:
		next, err = nextYearlyByDate(naive, spec, interval)
	case palm.BrandYearlyByDay:
		next = addYearsClamped(naive, interval)
	default:
		return ev, fmt.Errorf("%w: %d", ErrUnknownBrand, uint32(spec.Brand))
	}
	if err != nil {
		return ev, err
	}

	next = correctDST(next, ev.Start, loc)
	delta := next.Sub(ev.Start)

	out := ev
	out.Start = next
	out.End = ev.End.Add(delta).In(loc)
	return out, nil
}

// correctDST moves next by the offset difference when its DST flag in loc
// differs from orig's.
func correctDST(next, orig time.Time, loc *time.Location) time.Time {
	local := next.In(loc)
	if local.IsDST() == orig.IsDST() {
		return local
	}
	_, before := orig.Zone()
	_, after := local.Zone()
	return local.Add(time.Duration(before-after) * time.Second)
}

func nextWeekly(t time.Time, spec *palm.RepeatSpec, interval int) (time.Time, error) {
	if spec.DaysMask == nil {
		return t, fmt.Errorf("%w: weekly without days mask", ErrMalformed)
	}
	mask := *spec.DaysMask & 0x7F
	if mask == 0 {
		return t, fmt.Errorf("%w: empty days mask", ErrMalformed)
	}
	for {
		if t.Weekday() == time.Saturday {
			t = t.AddDate(0, 0, 1+7*(interval-1))
		} else {
			t = t.AddDate(0, 0, 1)
		}
		if mask&(1<<uint(t.Weekday())) != 0 {
			return t, nil
		}
	}
}

func nextMonthlyByDay(t time.Time, spec *palm.RepeatSpec, interval int) (time.Time, error) {
	if spec.DayIndex == nil || spec.WeekIndex == nil {
		return t, fmt.Errorf("%w: monthly by day without day or week index", ErrMalformed)
	}
	if *spec.DayIndex > 6 || *spec.WeekIndex > palm.WeekLast {
		return t, fmt.Errorf("%w: day index %d, week index %d", ErrMalformed, *spec.DayIndex, *spec.WeekIndex)
	}
	// The target month is reached in one step; Interval comes straight
	// from the file and may be up to 2^32-1.
	first := time.Date(t.Year(), t.Month()+time.Month(interval), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if *spec.WeekIndex == palm.WeekLast {
		return lastWeekdayOf(first, t.Weekday()), nil
	}
	day := time.Weekday(*spec.DayIndex)
	shift := (int(day) - int(first.Weekday()) + 7) % 7
	return first.AddDate(0, 0, shift+7*int(*spec.WeekIndex)), nil
}

// lastWeekdayOf returns the last wd in first's month, at first's time of
// day.
func lastWeekdayOf(first time.Time, wd time.Weekday) time.Time {
	last := first.AddDate(0, 0, daysIn(first.Year(), first.Month())-1)
	return last.AddDate(0, 0, -((int(last.Weekday()) - int(wd) + 7) % 7))
}

func nextMonthlyByDate(t time.Time, spec *palm.RepeatSpec, interval int) (time.Time, error) {
	if spec.DayNumber == nil {
		return t, fmt.Errorf("%w: monthly by date without day number", ErrMalformed)
	}
	y, m := t.Year(), t.Month()+time.Month(interval)
	return dateClamped(t, y, m, int(*spec.DayNumber))
}

func nextYearlyByDate(t time.Time, spec *palm.RepeatSpec, interval int) (time.Time, error) {
	if spec.DayNumber == nil || spec.MonthIndex == nil {
		return t, fmt.Errorf("%w: yearly by date without day number or month", ErrMalformed)
	}
	if *spec.MonthIndex > 11 {
		return t, fmt.Errorf("%w: month index %d", ErrMalformed, *spec.MonthIndex)
	}
	return dateClamped(t, t.Year()+interval, time.Month(*spec.MonthIndex+1), int(*spec.DayNumber))
}

func addYearsClamped(t time.Time, years int) time.Time {
	out, _ := dateClamped(t, t.Year()+years, t.Month(), t.Day())
	return out
}

// dateClamped builds year/month/day with t's time of day. The month may
// overflow into the next year; day is clamped to the month's length.
func dateClamped(t time.Time, year int, month time.Month, day int) (time.Time, error) {
	if day < 1 || day > 31 {
		return t, fmt.Errorf("%w: day number %d", ErrMalformed, day)
	}
	first := time.Date(year, month, 1, 0, 0, 0, 0, t.Location())
	if n := daysIn(first.Year(), first.Month()); day > n {
		day = n
	}
	return time.Date(first.Year(), first.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location()), nil
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
