package ics

import (
	"errors"
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"palm2ical/internal/model"
	"palm2ical/internal/palm"
)

const (
	localDateTimeLayout = "20060102T150405"
	dateLayout          = "20060102"
)

var ErrUnmappableRepeat = errors.New("ics: repeat specification has no RRULE equivalent")

var weekdays = [7]rrule.Weekday{rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA}

// RRule returns the RRULE value for a repeating event, without the
// "RRULE:" prefix. UNTIL is written in the same form as DTSTART: a
// floating date-time at the end of the end date for timed events, a
// DATE for untimed ones.
func RRule(ev model.Event) (string, error) {
	spec := ev.Repeat
	if spec == nil || !spec.Repeats() {
		return "", fmt.Errorf("%w: event does not repeat", ErrUnmappableRepeat)
	}

	opt := rrule.ROption{}
	if spec.Interval > 1 {
		opt.Interval = int(spec.Interval)
	}

	switch spec.Brand {
	case palm.BrandDaily:
		opt.Freq = rrule.DAILY

	case palm.BrandWeekly:
		opt.Freq = rrule.WEEKLY
		if spec.DaysMask == nil || *spec.DaysMask&0x7F == 0 {
			return "", fmt.Errorf("%w: weekly without weekdays", ErrUnmappableRepeat)
		}
		for i, wd := range weekdays {
			if *spec.DaysMask&(1<<uint(i)) != 0 {
				opt.Byweekday = append(opt.Byweekday, wd)
			}
		}
		// Palm weeks run Sunday to Saturday.
		if opt.Interval > 1 {
			opt.Wkst = rrule.SU
		}

	case palm.BrandMonthlyByDay:
		opt.Freq = rrule.MONTHLY
		if spec.DayIndex == nil || spec.WeekIndex == nil || *spec.DayIndex > 6 || *spec.WeekIndex > palm.WeekLast {
			return "", fmt.Errorf("%w: monthly by day needs day and week index", ErrUnmappableRepeat)
		}
		opt.Byweekday = []rrule.Weekday{weekdays[*spec.DayIndex]}
		if *spec.WeekIndex == palm.WeekLast {
			opt.Bysetpos = []int{-1}
		} else {
			opt.Bysetpos = []int{int(*spec.WeekIndex) + 1}
		}

	case palm.BrandMonthlyByDate:
		opt.Freq = rrule.MONTHLY
		if spec.DayNumber == nil {
			return "", fmt.Errorf("%w: monthly by date needs a day number", ErrUnmappableRepeat)
		}
		if err := byMonthDay(&opt, *spec.DayNumber); err != nil {
			return "", err
		}

	case palm.BrandYearlyByDate:
		opt.Freq = rrule.YEARLY
		if spec.DayNumber == nil || spec.MonthIndex == nil || *spec.MonthIndex > 11 {
			return "", fmt.Errorf("%w: yearly by date needs day number and month", ErrUnmappableRepeat)
		}
		opt.Bymonth = []int{int(*spec.MonthIndex) + 1}
		if err := byMonthDay(&opt, *spec.DayNumber); err != nil {
			return "", err
		}

	case palm.BrandYearlyByDay:
		opt.Freq = rrule.YEARLY

	default:
		return "", fmt.Errorf("%w: brand %d", ErrUnmappableRepeat, uint32(spec.Brand))
	}

	s := opt.RRuleString()
	if spec.HasEndDate() {
		s += ";UNTIL=" + until(ev)
	}
	return s, nil
}

// byMonthDay sets the day of month. Days past the 28th are written as a
// set ending at the wanted day with BYSETPOS=-1, which falls back to the
// month's last day the way the expander clamps.
func byMonthDay(opt *rrule.ROption, day uint32) error {
	if day < 1 || day > 31 {
		return fmt.Errorf("%w: day number %d", ErrUnmappableRepeat, day)
	}
	if day <= 28 {
		opt.Bymonthday = []int{int(day)}
		return nil
	}
	for d := 28; d <= int(day); d++ {
		opt.Bymonthday = append(opt.Bymonthday, d)
	}
	opt.Bysetpos = []int{-1}
	return nil
}

func until(ev model.Event) string {
	end := time.Unix(int64(ev.Repeat.EndDate), 0).In(ev.Start.Location())
	if ev.Untimed {
		return end.Format(dateLayout)
	}
	return time.Date(end.Year(), end.Month(), end.Day(), 23, 59, 59, 0, end.Location()).Format(localDateTimeLayout)
}
