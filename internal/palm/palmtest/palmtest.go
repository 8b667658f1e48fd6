// Package palmtest builds Palm Desktop databases in memory for tests.
package palmtest

import (
	"bytes"
	"testing"
	"time"

	"palm2ical/internal/palm"
)

// Category is a datebook category.
type Category struct {
	Index     uint32
	ID        uint32
	Name      string
	ShortName string
}

// Event is a datebook entry. Zero End means Start plus one hour.
type Event struct {
	RecordID    uint32
	Start       time.Time
	End         time.Time
	Description string
	Note        string
	Untimed     bool
	Private     bool
	Category    uint32
	Alarm       bool
	AlarmUnits  uint32
	AlarmType   uint32
	Repeat      *palm.RepeatSpec
}

// DatebookTypes are the column types Palm Desktop writes for datebook
// entries, in label order.
var DatebookTypes = []palm.FieldType{
	palm.TypeInteger, // recordID
	palm.TypeInteger, // status
	palm.TypeInteger, // position
	palm.TypeDate,    // startTime
	palm.TypeDate,    // endTime
	palm.TypeCString, // description
	palm.TypeInteger, // duration
	palm.TypeCString, // note
	palm.TypeBoolean, // untimed
	palm.TypeBoolean, // private
	palm.TypeInteger, // category
	palm.TypeBoolean, // alarmSet
	palm.TypeInteger, // alarmAdvUnits
	palm.TypeInteger, // alarmAdvType
	palm.TypeRepeat,  // repeatEvent
}

// Datebook returns a datebook file holding cats and events.
func Datebook(cats []Category, events []Event) *palm.File {
	entries := make(palm.Records, 0, len(events))
	for _, ev := range events {
		end := ev.End
		if end.IsZero() {
			end = ev.Start.Add(time.Hour)
		}
		repeat := ev.Repeat
		if repeat == nil {
			repeat = &palm.RepeatSpec{}
		}
		entries = append(entries, palm.NewRecord(
			palm.Field{Name: palm.EntryRecordID, Value: palm.Uint(ev.RecordID)},
			palm.Field{Name: palm.EntryStatus, Value: palm.Uint(0)},
			palm.Field{Name: palm.EntryPosition, Value: palm.Uint(0)},
			palm.Field{Name: palm.EntryStartTime, Value: palm.Uint(uint32(ev.Start.Unix()))},
			palm.Field{Name: palm.EntryEndTime, Value: palm.Uint(uint32(end.Unix()))},
			palm.Field{Name: palm.EntryDescription, Value: palm.Text(ev.Description)},
			palm.Field{Name: palm.EntryDuration, Value: palm.Uint(uint32(end.Sub(ev.Start) / time.Minute))},
			palm.Field{Name: palm.EntryNote, Value: palm.Text(ev.Note)},
			palm.Field{Name: palm.EntryUntimed, Value: palm.Bool(ev.Untimed)},
			palm.Field{Name: palm.EntryPrivate, Value: palm.Bool(ev.Private)},
			palm.Field{Name: palm.EntryCategory, Value: palm.Uint(ev.Category)},
			palm.Field{Name: palm.EntryAlarmSet, Value: palm.Bool(ev.Alarm)},
			palm.Field{Name: palm.EntryAlarmAdvUnits, Value: palm.Uint(ev.AlarmUnits)},
			palm.Field{Name: palm.EntryAlarmAdvType, Value: palm.Uint(ev.AlarmType)},
			palm.Field{Name: palm.EntryRepeatEvent, Value: repeat},
		))
	}
	return &palm.File{
		Kind:   palm.KindDatebook,
		Header: header("datebook.dat", cats, DatebookTypes, entries),
	}
}

// AddressBook returns an address file with categories and no entries.
func AddressBook(cats []Category) *palm.File {
	labels, _ := palm.AddressEntryLabels.Labels()
	types := make([]palm.FieldType, len(labels))
	for i := range types {
		types[i] = palm.TypeCString
	}
	return &palm.File{
		Kind:   palm.KindAddressBook,
		Header: header("address.dat", cats, types, nil),
	}
}

func header(name string, cats []Category, types []palm.FieldType, entries palm.Records) palm.Record {
	catRecs := make(palm.Records, 0, len(cats))
	for _, c := range cats {
		catRecs = append(catRecs, palm.NewRecord(
			palm.Field{Name: palm.FieldCategoryIndex, Value: palm.Uint(c.Index)},
			palm.Field{Name: palm.FieldCategoryID, Value: palm.Uint(c.ID)},
			palm.Field{Name: palm.FieldCategoryDirty, Value: palm.Uint(0)},
			palm.Field{Name: palm.FieldCategoryLongName, Value: palm.Text(c.Name)},
			palm.Field{Name: palm.FieldCategoryShortName, Value: palm.Text(c.ShortName)},
		))
	}
	schema := make(palm.Records, 0, len(types))
	for _, t := range types {
		schema = append(schema, palm.NewRecord(
			palm.Field{Name: palm.FieldSchemaType, Value: palm.Uint(uint32(t))},
		))
	}
	if entries == nil {
		entries = palm.Records{}
	}
	return palm.NewRecord(
		palm.Field{Name: palm.FieldFileName, Value: palm.Text(name)},
		palm.Field{Name: palm.FieldTableString, Value: palm.Text("")},
		palm.Field{Name: palm.FieldNextFree, Value: palm.Uint(uint32(len(entries) + 1))},
		palm.Field{Name: palm.FieldCategoryCnt, Value: palm.Uint(uint32(len(catRecs)))},
		palm.Field{Name: palm.FieldCategories, Value: catRecs},
		palm.Field{Name: palm.FieldResourceID, Value: palm.Uint(0x36)},
		palm.Field{Name: palm.FieldFieldsPerRow, Value: palm.Uint(uint32(len(types)))},
		palm.Field{Name: palm.FieldRecIDPos, Value: palm.Uint(0)},
		palm.Field{Name: palm.FieldRecStatus, Value: palm.Uint(1)},
		palm.Field{Name: palm.FieldPlacementPos, Value: palm.Uint(2)},
		palm.Field{Name: palm.FieldFieldCount, Value: palm.Uint(uint32(len(types)))},
		palm.Field{Name: palm.FieldSchemaFields, Value: schema},
		palm.Field{Name: palm.FieldNumEntries, Value: palm.Uint(uint32(len(entries) * len(types)))},
		palm.Field{Name: palm.FieldEntries, Value: entries},
	)
}

// Bytes encodes f, failing the test on error.
func Bytes(tb testing.TB, f *palm.File) []byte {
	tb.Helper()
	var buf bytes.Buffer
	if err := palm.Encode(&buf, f); err != nil {
		tb.Fatalf("palmtest: encode: %v", err)
	}
	return buf.Bytes()
}

// U32 returns a pointer to v, for RepeatSpec brand fields.
func U32(v uint32) *uint32 { return &v }

// U8 returns a pointer to v, for RepeatSpec.DaysMask.
func U8(v uint8) *uint8 { return &v }
