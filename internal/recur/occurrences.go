package recur

import (
	"errors"
	"time"

	"palm2ical/internal/model"
)

// Occurrences returns ev and its repetitions whose start lies in
// [from, to], in order. Starts falling on an exception date are skipped.
// Enumeration stops after the end date of the repeat specification, or
// once maxCount occurrences have been collected; truncated reports the latter.
// maxCount <= 0 means no cap.
func Occurrences(ev model.Event, from, to time.Time, maxCount int) (out []model.Event, truncated bool, err error) {
	if to.Before(from) {
		return nil, false, errors.New("recur: window end is before its start")
	}

	limit := to
	if ev.Repeats() && ev.Repeat.HasEndDate() {
		// The end date names a day; occurrences on that day still count.
		end := time.Unix(int64(ev.Repeat.EndDate), 0).In(ev.Start.Location())
		last := time.Date(end.Year(), end.Month(), end.Day()+1, 0, 0, 0, 0, end.Location()).Add(-time.Nanosecond)
		if last.Before(limit) {
			limit = last
		}
	}
	skip := exceptionDays(ev)

	cur := ev
	for !cur.Start.After(limit) {
		if !cur.Start.Before(from) && !skip[dayKey(cur.Start)] {
			if maxCount > 0 && len(out) >= maxCount {
				return out, true, nil
			}
			out = append(out, cur)
		}
		if !ev.Repeats() {
			break
		}
		next, err := Next(cur)
		if err != nil {
			return out, false, err
		}
		if !next.Start.After(cur.Start) {
			return out, false, ErrStalled
		}
		cur = next
	}
	return out, false, nil
}

func exceptionDays(ev model.Event) map[string]bool {
	if !ev.Repeats() || len(ev.Repeat.Exceptions) == 0 {
		return nil
	}
	loc := ev.Start.Location()
	out := make(map[string]bool, len(ev.Repeat.Exceptions))
	for _, ex := range ev.Repeat.Exceptions {
		out[dayKey(time.Unix(int64(ex), 0).In(loc))] = true
	}
	return out
}

func dayKey(t time.Time) string {
	return t.Format("2006-01-02")
}
