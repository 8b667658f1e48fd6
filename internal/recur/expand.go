package recur

import (
	"errors"
	"fmt"
	"sort"
	"time"

	appLog "palm2ical/internal/log"
	"palm2ical/internal/model"
)

const (
	defaultMaxOccurrencesPerEvent = 5000
)

// ExpandConfig controls how recurrence expansion is performed.
type ExpandConfig struct {
	// DisplayLocation is the timezone to which all occurrences will be converted.
	// If nil, time.Local is used.
	DisplayLocation *time.Location

	// RangeStart / RangeEnd define the inclusive time window for occurrences.
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxOccurrencesPerEvent is a safety cap to avoid infinite or extremely
	// large expansions. If zero, defaultMaxOccurrencesPerEvent is used.
	MaxOccurrencesPerEvent int

	// Logger receives truncation and expansion errors. If nil, the
	// package-level logger is used.
	Logger *appLog.Logger
}

// ExpandResult wraps the list of expanded occurrences and information
// about events that were cut short.
type ExpandResult struct {
	Occurrences []model.Occurrence
	// TruncatedEvents records IDs that hit the MaxOccurrencesPerEvent cap.
	TruncatedEvents []uint32
	// FailedEvents records IDs whose repeat specification could not be
	// expanded. Occurrences found before the failure are kept.
	FailedEvents []uint32
}

// Expand turns events into concrete occurrences within the configured
// window, sorted by start time.
func Expand(events []model.Event, cfg ExpandConfig) (ExpandResult, error) {
	var result ExpandResult

	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return result, errors.New("expand: RangeEnd is before RangeStart")
	}
	if cfg.DisplayLocation == nil {
		cfg.DisplayLocation = time.Local
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}
	logger := cfg.Logger
	if logger == nil {
		logger = appLog.Default()
	}

	all := make([]model.Occurrence, 0, len(events))
	for _, ev := range events {
		occs, truncated, err := Occurrences(ev, cfg.RangeStart, cfg.RangeEnd, cfg.MaxOccurrencesPerEvent)
		if err != nil {
			result.FailedEvents = append(result.FailedEvents, ev.RecordID)
			logger.Error("expand: failed to expand event", err,
				"record", ev.RecordID,
				"summary", ev.Summary,
			)
		}
		if truncated {
			result.TruncatedEvents = append(result.TruncatedEvents, ev.RecordID)
			logger.Error("expand: truncated occurrences for record due to cap",
				errors.New("max occurrences reached"),
				"record", ev.RecordID,
				"cap", cfg.MaxOccurrencesPerEvent,
			)
		}
		for _, occ := range occs {
			all = append(all, makeOccurrence(occ, cfg.DisplayLocation))
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		if !all[i].Start.Equal(all[j].Start) {
			return all[i].Start.Before(all[j].Start)
		}
		return all[i].RecordID < all[j].RecordID
	})
	result.Occurrences = all
	return result, nil
}

// makeOccurrence converts one instance of an event into a
// model.Occurrence normalized into displayLoc. Untimed instances span
// the whole local day.
func makeOccurrence(ev model.Event, displayLoc *time.Location) model.Occurrence {
	start := ev.Start.In(displayLoc)
	end := ev.End.In(displayLoc)
	if ev.Untimed {
		start = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, displayLoc)
		end = start.AddDate(0, 0, 1)
	}

	return model.Occurrence{
		RecordID:     ev.RecordID,
		InstanceKey:  fmt.Sprintf("%d@%s", ev.RecordID, start.Format(time.RFC3339)),
		Summary:      ev.Summary,
		Note:         ev.Note,
		CategoryName: ev.CategoryName,
		Untimed:      ev.Untimed,
		Private:      ev.Private,
		Start:        start,
		End:          end,
	}
}
