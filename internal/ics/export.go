// Package ics writes datebook events as an iCalendar (RFC 5545) document.
package ics

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	appLog "palm2ical/internal/log"
	"palm2ical/internal/model"
)

const DefaultProductID = "-//palm2ical//Palm Desktop datebook//EN"

// uidNamespace seeds the deterministic per-record UIDs.
var uidNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://palm2ical/datebook"))

// ExportConfig controls iCalendar output.
type ExportConfig struct {
	// ProductID is written as PRODID. If empty, DefaultProductID is used.
	ProductID string

	// Name, if set, is written as the calendar display name.
	Name string

	// Now stamps DTSTAMP. If nil, time.Now is used.
	Now func() time.Time

	// Logger receives events skipped or degraded during export. If nil,
	// the package-level logger is used.
	Logger *appLog.Logger
}

// ExportStats summarizes an export.
type ExportStats struct {
	Events int
	// Unmapped lists record IDs whose repeat specification could not be
	// expressed as an RRULE; they were written as one-off events.
	Unmapped []uint32
}

// UID returns the stable iCalendar UID of a datebook record.
func UID(recordID uint32) string {
	return uuid.NewSHA1(uidNamespace, []byte(strconv.FormatUint(uint64(recordID), 10))).String() + "@palm2ical"
}

// Build maps cal to a golang-ical calendar.
func Build(cal *model.Calendar, cfg ExportConfig) (*ical.Calendar, ExportStats) {
	if cfg.ProductID == "" {
		cfg.ProductID = DefaultProductID
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = appLog.Default()
	}

	out := ical.NewCalendar()
	out.SetProductId(cfg.ProductID)
	out.SetMethod(ical.MethodPublish)
	if cfg.Name != "" {
		out.SetXWRCalName(cfg.Name)
	}

	var stats ExportStats
	stamp := cfg.Now().UTC()
	for _, ev := range cal.Events {
		if err := addEvent(out, ev, stamp); err != nil {
			stats.Unmapped = append(stats.Unmapped, ev.RecordID)
			logger.Error("ics: repeat not exported, writing a single event", err,
				"record", ev.RecordID,
				"summary", ev.Summary,
			)
		}
		stats.Events++
	}
	return out, stats
}

// Export writes cal to w as iCalendar text.
func Export(w io.Writer, cal *model.Calendar, cfg ExportConfig) (ExportStats, error) {
	out, stats := Build(cal, cfg)
	if _, err := io.WriteString(w, out.Serialize()); err != nil {
		return stats, fmt.Errorf("ics: write: %w", err)
	}
	return stats, nil
}

// addEvent writes one VEVENT. A repeat that cannot be mapped is reported
// after the event has been added without it.
func addEvent(cal *ical.Calendar, ev model.Event, stamp time.Time) error {
	ve := cal.AddEvent(UID(ev.RecordID))
	ve.SetDtStampTime(stamp)

	if ev.Untimed {
		ve.SetProperty(ical.ComponentPropertyDtStart, ev.Start.Format(dateLayout), ical.WithValue(string(ical.ValueDataTypeDate)))
		ve.SetProperty(ical.ComponentPropertyDtEnd, untimedEnd(ev).Format(dateLayout), ical.WithValue(string(ical.ValueDataTypeDate)))
	} else {
		ve.SetProperty(ical.ComponentPropertyDtStart, ev.Start.Format(localDateTimeLayout))
		ve.SetProperty(ical.ComponentPropertyDtEnd, ev.End.Format(localDateTimeLayout))
	}

	ve.SetSummary(ev.Summary)
	if ev.Note != "" {
		ve.SetDescription(ev.Note)
	}
	if ev.Category != 0 && ev.CategoryName != "" {
		ve.SetProperty(ical.ComponentPropertyCategories, ev.CategoryName)
	}
	if ev.Private {
		ve.SetProperty(ical.ComponentPropertyClass, "PRIVATE")
	}
	if ev.Alarm != nil {
		alarm := ve.AddAlarm()
		alarm.SetAction(ical.ActionDisplay)
		alarm.SetTrigger(trigger(ev.Alarm.Advance))
		alarm.SetProperty(ical.ComponentPropertyDescription, ev.Summary)
	}

	if !ev.Repeats() {
		return nil
	}
	rule, err := RRule(ev)
	if err != nil {
		return err
	}
	ve.AddRrule(rule)
	if ex := exdates(ev); ex != "" {
		if ev.Untimed {
			ve.AddExdate(ex, ical.WithValue(string(ical.ValueDataTypeDate)))
		} else {
			ve.AddExdate(ex)
		}
	}
	return nil
}

// untimedEnd is the exclusive DTEND date of an untimed event.
func untimedEnd(ev model.Event) time.Time {
	day := func(t time.Time) time.Time {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
	start, end := day(ev.Start), day(ev.End.In(ev.Start.Location()))
	if end.Before(start) {
		end = start
	}
	return end.AddDate(0, 0, 1)
}

// exdates joins the exception dates, each at the event's start time.
func exdates(ev model.Event) string {
	if len(ev.Repeat.Exceptions) == 0 {
		return ""
	}
	loc := ev.Start.Location()
	parts := make([]string, 0, len(ev.Repeat.Exceptions))
	for _, ex := range ev.Repeat.Exceptions {
		d := time.Unix(int64(ex), 0).In(loc)
		if ev.Untimed {
			parts = append(parts, d.Format(dateLayout))
			continue
		}
		at := time.Date(d.Year(), d.Month(), d.Day(), ev.Start.Hour(), ev.Start.Minute(), ev.Start.Second(), 0, loc)
		parts = append(parts, at.Format(localDateTimeLayout))
	}
	return strings.Join(parts, ",")
}

// trigger formats an alarm advance as a negative RFC 5545 duration.
func trigger(advance time.Duration) string {
	switch {
	case advance <= 0:
		return "PT0S"
	case advance%(24*time.Hour) == 0:
		return fmt.Sprintf("-P%dD", advance/(24*time.Hour))
	case advance%time.Hour == 0:
		return fmt.Sprintf("-PT%dH", advance/time.Hour)
	default:
		return fmt.Sprintf("-PT%dM", advance/time.Minute)
	}
}
