package recur

import (
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"palm2ical/internal/model"
	"palm2ical/internal/palm"
)

func u32p(v uint32) *uint32 { return &v }
func u8p(v uint8) *uint8    { return &v }

func newYork(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return loc
}

func event(start time.Time, spec *palm.RepeatSpec) model.Event {
	if spec != nil && spec.Flag == 0 {
		spec.Flag = 1
	}
	return model.Event{RecordID: 1, Start: start, End: start.Add(time.Hour), Repeat: spec}
}

// walk calls Next n times and returns the starts.
func walk(t *testing.T, ev model.Event, n int) []time.Time {
	t.Helper()
	out := make([]time.Time, 0, n)
	for i := 0; i < n; i++ {
		var err error
		ev, err = Next(ev)
		require.NoError(t, err)
		out = append(out, ev.Start)
	}
	return out
}

func dates(ts []time.Time) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.Format("2006-01-02 15:04 MST")
	}
	return out
}

func TestNextDailyKeepsWallClockAcrossSpringForward(t *testing.T) {
	loc := newYork(t)
	start := time.Date(2024, time.March, 9, 1, 30, 0, 0, loc)
	ev := event(start, &palm.RepeatSpec{Brand: palm.BrandDaily, Interval: 1, DayIndex: u32p(6)})

	got := walk(t, ev, 3)
	assert.Equal(t, []string{
		"2024-03-10 01:30 EST",
		"2024-03-11 01:30 EDT",
		"2024-03-12 01:30 EDT",
	}, dates(got))
}

func TestNextDailyKeepsWallClockAcrossFallBack(t *testing.T) {
	loc := newYork(t)
	start := time.Date(2024, time.November, 2, 18, 0, 0, 0, loc)
	ev := event(start, &palm.RepeatSpec{Brand: palm.BrandDaily, Interval: 2, DayIndex: u32p(6)})

	got := walk(t, ev, 2)
	assert.Equal(t, []string{
		"2024-11-04 18:00 EST",
		"2024-11-06 18:00 EST",
	}, dates(got))
}

func TestNextShiftsEndBySameDelta(t *testing.T) {
	loc := newYork(t)
	start := time.Date(2024, time.March, 9, 1, 30, 0, 0, loc)
	ev := event(start, &palm.RepeatSpec{Brand: palm.BrandDaily, Interval: 1, DayIndex: u32p(6)})
	ev.End = start.Add(45 * time.Minute)

	for i := 0; i < 3; i++ {
		next, err := Next(ev)
		require.NoError(t, err)
		assert.Equal(t, next.Start.Sub(ev.Start), next.End.Sub(ev.End))
		assert.Equal(t, 45*time.Minute, next.End.Sub(next.Start))
		ev = next
	}
}

func TestNextWeeklyMondayFromSunday(t *testing.T) {
	sunday := time.Date(2024, time.March, 3, 10, 0, 0, 0, time.UTC)
	ev := event(sunday, &palm.RepeatSpec{Brand: palm.BrandWeekly, Interval: 1, DayIndex: u32p(0), DaysMask: u8p(0b0000010)})

	got := walk(t, ev, 3)
	assert.Equal(t, []string{
		"2024-03-04 10:00 UTC",
		"2024-03-11 10:00 UTC",
		"2024-03-18 10:00 UTC",
	}, dates(got))
}

func TestNextWeeklyIntervalSkipsWeeks(t *testing.T) {
	monday := time.Date(2024, time.March, 4, 8, 0, 0, 0, time.UTC)
	// Monday and Thursday, every other week.
	ev := event(monday, &palm.RepeatSpec{Brand: palm.BrandWeekly, Interval: 2, DayIndex: u32p(1), DaysMask: u8p(0b0010010)})

	got := walk(t, ev, 4)
	assert.Equal(t, []string{
		"2024-03-07 08:00 UTC",
		"2024-03-18 08:00 UTC",
		"2024-03-21 08:00 UTC",
		"2024-04-01 08:00 UTC",
	}, dates(got))
}

func TestNextMonthlyLastTuesday(t *testing.T) {
	loc := newYork(t)
	// Second Tuesday of January 2026.
	start := time.Date(2026, time.January, 13, 9, 0, 0, 0, loc)
	ev := event(start, &palm.RepeatSpec{
		Brand:     palm.BrandMonthlyByDay,
		Interval:  1,
		DayIndex:  u32p(2),
		WeekIndex: u32p(palm.WeekLast),
	})

	got := walk(t, ev, 5)
	assert.Equal(t, []string{
		"2026-02-24 09:00 EST",
		"2026-03-31 09:00 EDT",
		"2026-04-28 09:00 EDT",
		"2026-05-26 09:00 EDT",
		"2026-06-30 09:00 EDT",
	}, dates(got))
	for _, d := range got {
		assert.Equal(t, time.Tuesday, d.Weekday())
		assert.Less(t, daysIn(d.Year(), d.Month())-d.Day(), 7)
	}
}

func TestNextMonthlyLastFromEarlyInMonth(t *testing.T) {
	// 28 days after Jan 2 is still January.
	start := time.Date(2024, time.January, 2, 12, 0, 0, 0, time.UTC)
	ev := event(start, &palm.RepeatSpec{
		Brand:     palm.BrandMonthlyByDay,
		Interval:  1,
		DayIndex:  u32p(2),
		WeekIndex: u32p(palm.WeekLast),
	})

	got := walk(t, ev, 2)
	assert.Equal(t, []string{
		"2024-02-27 12:00 UTC",
		"2024-03-26 12:00 UTC",
	}, dates(got))
}

func TestNextMonthlyNthWeekday(t *testing.T) {
	start := time.Date(2026, time.January, 13, 9, 0, 0, 0, time.UTC)
	ev := event(start, &palm.RepeatSpec{
		Brand:     palm.BrandMonthlyByDay,
		Interval:  1,
		DayIndex:  u32p(2),
		WeekIndex: u32p(1),
	})
	assert.Equal(t, []string{
		"2026-02-10 09:00 UTC",
		"2026-03-10 09:00 UTC",
		"2026-04-14 09:00 UTC",
	}, dates(walk(t, ev, 3)))

	ev.Repeat = &palm.RepeatSpec{Flag: 1, Brand: palm.BrandMonthlyByDay, Interval: 3, DayIndex: u32p(2), WeekIndex: u32p(0)}
	assert.Equal(t, []string{"2026-04-07 09:00 UTC"}, dates(walk(t, ev, 1)))
}

func TestNextMonthlyIntervalMatchesSingleSteps(t *testing.T) {
	start := time.Date(2024, time.January, 9, 18, 0, 0, 0, time.UTC)
	for _, week := range []uint32{1, palm.WeekLast} {
		spec := func(interval uint32) *palm.RepeatSpec {
			return &palm.RepeatSpec{Flag: 1, Brand: palm.BrandMonthlyByDay, Interval: interval, DayIndex: u32p(2), WeekIndex: u32p(week)}
		}
		stepped := walk(t, event(start, spec(1)), 13)

		jumped, err := Next(event(start, spec(13)))
		require.NoError(t, err)
		assert.Equal(t, stepped[12], jumped.Start, "week index %d", week)
	}
}

func TestNextMonthlyHugeIntervalReturnsPromptly(t *testing.T) {
	start := time.Date(2024, time.January, 9, 18, 0, 0, 0, time.UTC)
	const interval = 4_000_000_000
	want := time.Date(2024, time.January+interval, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		week uint32
	}{
		{"second tuesday", 1},
		{"last tuesday", palm.WeekLast},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ev := event(start, &palm.RepeatSpec{
				Brand:     palm.BrandMonthlyByDay,
				Interval:  interval,
				DayIndex:  u32p(2),
				WeekIndex: u32p(tc.week),
			})

			began := time.Now()
			next, err := Next(ev)
			require.NoError(t, err)
			assert.Less(t, time.Since(began), time.Second)

			got := next.Start
			assert.Equal(t, want.Year(), got.Year())
			assert.Equal(t, want.Month(), got.Month())
			assert.Equal(t, time.Tuesday, got.Weekday())
			assert.Equal(t, 18, got.Hour())
			if tc.week == palm.WeekLast {
				assert.Less(t, daysIn(got.Year(), got.Month())-got.Day(), 7)
			} else {
				assert.True(t, got.Day() >= 8 && got.Day() <= 14, got.Day())
			}
		})
	}
}

func TestNextMonthlyByDateClamps(t *testing.T) {
	start := time.Date(2024, time.January, 31, 7, 15, 0, 0, time.UTC)
	ev := event(start, &palm.RepeatSpec{Brand: palm.BrandMonthlyByDate, Interval: 1, DayNumber: u32p(31)})

	assert.Equal(t, []string{
		"2024-02-29 07:15 UTC",
		"2024-03-31 07:15 UTC",
		"2024-04-30 07:15 UTC",
	}, dates(walk(t, ev, 3)))
}

func TestNextMonthlyByDateRollsYear(t *testing.T) {
	start := time.Date(2024, time.November, 15, 7, 0, 0, 0, time.UTC)
	ev := event(start, &palm.RepeatSpec{Brand: palm.BrandMonthlyByDate, Interval: 3, DayNumber: u32p(15)})
	assert.Equal(t, []string{"2025-02-15 07:00 UTC"}, dates(walk(t, ev, 1)))
}

func TestNextYearly(t *testing.T) {
	leap := time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC)

	byDate := event(leap, &palm.RepeatSpec{Brand: palm.BrandYearlyByDate, Interval: 1, DayNumber: u32p(29), MonthIndex: u32p(1)})
	assert.Equal(t, []string{
		"2025-02-28 00:00 UTC",
		"2026-02-28 00:00 UTC",
		"2027-02-28 00:00 UTC",
		"2028-02-29 00:00 UTC",
	}, dates(walk(t, byDate, 4)))

	byDay := event(leap, &palm.RepeatSpec{Brand: palm.BrandYearlyByDay, Interval: 4})
	assert.Equal(t, []string{"2028-02-29 00:00 UTC"}, dates(walk(t, byDay, 1)))
}

func TestNextIntervalZeroIsOne(t *testing.T) {
	start := time.Date(2024, time.May, 1, 9, 0, 0, 0, time.UTC)
	ev := event(start, &palm.RepeatSpec{Brand: palm.BrandDaily, Interval: 0, DayIndex: u32p(3)})
	assert.Equal(t, []string{"2024-05-02 09:00 UTC"}, dates(walk(t, ev, 1)))
}

func TestNextErrors(t *testing.T) {
	start := time.Date(2024, time.May, 1, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		spec *palm.RepeatSpec
		want error
	}{
		{"no repeat", nil, ErrNotRepeating},
		{"flag zero", &palm.RepeatSpec{}, ErrNotRepeating},
		{"unknown brand", &palm.RepeatSpec{Flag: 1, Brand: 42}, ErrUnknownBrand},
		{"empty mask", &palm.RepeatSpec{Flag: 1, Brand: palm.BrandWeekly, DaysMask: u8p(0)}, ErrMalformed},
		{"mask without weekday bits", &palm.RepeatSpec{Flag: 1, Brand: palm.BrandWeekly, DaysMask: u8p(0x80)}, ErrMalformed},
		{"missing mask", &palm.RepeatSpec{Flag: 1, Brand: palm.BrandWeekly}, ErrMalformed},
		{"bad day index", &palm.RepeatSpec{Flag: 1, Brand: palm.BrandMonthlyByDay, DayIndex: u32p(7), WeekIndex: u32p(0)}, ErrMalformed},
		{"bad month", &palm.RepeatSpec{Flag: 1, Brand: palm.BrandYearlyByDate, DayNumber: u32p(1), MonthIndex: u32p(12)}, ErrMalformed},
		{"day number zero", &palm.RepeatSpec{Flag: 1, Brand: palm.BrandMonthlyByDate, DayNumber: u32p(0)}, ErrMalformed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ev := model.Event{Start: start, End: start, Repeat: tc.spec}
			_, err := Next(ev)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}

func TestNextDoesNotMutateSpec(t *testing.T) {
	spec := &palm.RepeatSpec{
		Flag:       1,
		Exceptions: []uint32{1},
		Brand:      palm.BrandWeekly,
		Interval:   2,
		DayIndex:   u32p(1),
		DaysMask:   u8p(0b0100010),
	}
	before := *spec
	beforeMask := *spec.DaysMask

	ev := event(time.Date(2024, time.May, 6, 9, 0, 0, 0, time.UTC), spec)
	walk(t, ev, 5)

	assert.Equal(t, before, *spec)
	assert.Equal(t, beforeMask, *spec.DaysMask)
}
