// Package datebook turns a decoded Palm Desktop record tree into a
// model.Calendar.
package datebook

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/text/encoding"

	appLog "palm2ical/internal/log"
	"palm2ical/internal/model"
	"palm2ical/internal/palm"
)

// Alarm advance units as stored in alarmAdvType.
const (
	AlarmMinutes uint32 = 0
	AlarmHours   uint32 = 1
	AlarmDays    uint32 = 2
)

var ErrBadAlarmUnit = errors.New("datebook: unknown alarm unit")

// Config controls extraction.
type Config struct {
	// Encoding decodes Palm strings. If nil, windows-1252 is used.
	Encoding encoding.Encoding

	// Location is the zone timestamps are interpreted in. If nil,
	// time.Local is used.
	Location *time.Location

	Logger *appLog.Logger
}

// Extract builds a calendar from f. Address books yield their categories
// and no events.
func Extract(f *palm.File, cfg Config) (*model.Calendar, error) {
	if cfg.Encoding == nil {
		enc, err := palm.Charset(palm.DefaultCharset)
		if err != nil {
			return nil, err
		}
		cfg.Encoding = enc
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Logger == nil {
		cfg.Logger = appLog.Nop()
	}
	x := extractor{cfg: cfg}

	cal := &model.Calendar{Kind: f.Kind}
	cats, err := f.Header.Records(palm.FieldCategories)
	if err != nil {
		return nil, fmt.Errorf("datebook: %w", err)
	}
	for i, rec := range cats {
		c, err := x.category(rec)
		if err != nil {
			return nil, fmt.Errorf("datebook: categories[%d]: %w", i, err)
		}
		cal.Categories = append(cal.Categories, c)
	}

	if f.Kind != palm.KindDatebook {
		cfg.Logger.Debug("datebook: not a datebook, categories only", "kind", f.Kind)
		return cal, nil
	}

	entries, err := f.Header.Records(palm.FieldEntries)
	if err != nil {
		return nil, fmt.Errorf("datebook: %w", err)
	}
	cal.Events = make([]model.Event, 0, len(entries))
	for i, rec := range entries {
		ev, err := x.event(rec)
		if err != nil {
			return nil, fmt.Errorf("datebook: entries[%d]: %w", i, err)
		}
		ev.CategoryName = cal.CategoryName(ev.Category)
		cal.Events = append(cal.Events, ev)
	}
	cfg.Logger.Debug("datebook: extracted",
		"categories", len(cal.Categories),
		"events", len(cal.Events),
	)
	return cal, nil
}

type extractor struct {
	cfg Config
}

func (x extractor) text(rec palm.Record, name string) (string, error) {
	raw, err := rec.Text(name)
	if err != nil {
		return "", err
	}
	return palm.DecodeText(x.cfg.Encoding, raw)
}

func (x extractor) time(rec palm.Record, name string) (time.Time, error) {
	u, err := rec.Uint(name)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(int64(u), 0).In(x.cfg.Location), nil
}

func (x extractor) category(rec palm.Record) (model.Category, error) {
	var c model.Category
	var err error
	if c.Index, err = rec.Uint(palm.FieldCategoryIndex); err != nil {
		return c, err
	}
	if c.ID, err = rec.Uint(palm.FieldCategoryID); err != nil {
		return c, err
	}
	if c.Name, err = x.text(rec, palm.FieldCategoryLongName); err != nil {
		return c, err
	}
	if c.ShortName, err = x.text(rec, palm.FieldCategoryShortName); err != nil {
		return c, err
	}
	return c, nil
}

func (x extractor) event(rec palm.Record) (model.Event, error) {
	var ev model.Event
	var err error

	if ev.RecordID, err = rec.Uint(palm.EntryRecordID); err != nil {
		return ev, err
	}
	if ev.Start, err = x.time(rec, palm.EntryStartTime); err != nil {
		return ev, err
	}
	if ev.End, err = x.time(rec, palm.EntryEndTime); err != nil {
		return ev, err
	}
	if ev.End.Before(ev.Start) {
		ev.End = ev.Start
	}
	if ev.Summary, err = x.text(rec, palm.EntryDescription); err != nil {
		return ev, err
	}
	if ev.Note, err = x.text(rec, palm.EntryNote); err != nil {
		return ev, err
	}
	if ev.Untimed, err = rec.Bool(palm.EntryUntimed); err != nil {
		return ev, err
	}
	if ev.Private, err = rec.Bool(palm.EntryPrivate); err != nil {
		return ev, err
	}
	if ev.Category, err = rec.Uint(palm.EntryCategory); err != nil {
		return ev, err
	}

	alarmSet, err := rec.Bool(palm.EntryAlarmSet)
	if err != nil {
		return ev, err
	}
	if alarmSet {
		n, err := rec.Uint(palm.EntryAlarmAdvUnits)
		if err != nil {
			return ev, err
		}
		unit, err := rec.Uint(palm.EntryAlarmAdvType)
		if err != nil {
			return ev, err
		}
		adv, err := alarmAdvance(n, unit)
		if err != nil {
			return ev, err
		}
		ev.Alarm = &model.Alarm{Advance: adv}
	}

	spec, err := rec.Repeat(palm.EntryRepeatEvent)
	if err != nil {
		return ev, err
	}
	if spec.Repeats() {
		ev.Repeat = spec
	}
	return ev, nil
}

func alarmAdvance(n, unit uint32) (time.Duration, error) {
	switch unit {
	case AlarmMinutes:
		return time.Duration(n) * time.Minute, nil
	case AlarmHours:
		return time.Duration(n) * time.Hour, nil
	case AlarmDays:
		return time.Duration(n) * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrBadAlarmUnit, unit)
	}
}
