package palm

import (
	"fmt"
)

// FieldKind is how a layout field is stored.
type FieldKind int

const (
	KindShort     FieldKind = iota + 1 // uint16
	KindLong                           // uint32
	KindPString                        // Palm string
	KindRecords                        // nested records, count from a sibling
	KindTaggedRun                      // self-describing records
)

// FieldDef describes one field of a layout.
type FieldDef struct {
	Name string
	Kind FieldKind

	// Sub is the layout of each nested record (KindRecords).
	Sub LayoutID
	// Count names the sibling holding the nested record count
	// (KindRecords) or the total number of tagged fields (KindTaggedRun).
	Count string
	// FieldCount names the sibling holding the declared number of fields
	// per tagged record (KindTaggedRun).
	FieldCount string
	// Labels names the fields of each tagged record (KindTaggedRun).
	Labels LabelSet
	// Types names the sibling record list whose FieldSchemaType values
	// give the type of each tagged column. Only the writer uses it; the
	// reader trusts the inline tags.
	Types string
}

// Layout is an ordered list of field descriptors.
type Layout []FieldDef

// LayoutID enumerates the known layouts.
type LayoutID int

const (
	LayoutDatebookHeader LayoutID = iota + 1
	LayoutAddressHeader
	LayoutCategory
	LayoutSchemaField
)

func (id LayoutID) String() string {
	switch id {
	case LayoutDatebookHeader:
		return "datebook-header"
	case LayoutAddressHeader:
		return "address-header"
	case LayoutCategory:
		return "category"
	case LayoutSchemaField:
		return "schema-field"
	default:
		return fmt.Sprintf("LayoutID(%d)", int(id))
	}
}

// LabelSet enumerates the field label lists of tagged record runs.
type LabelSet int

const (
	DatebookEntryLabels LabelSet = iota + 1
	AddressEntryLabels
)

// Header field names shared by both file kinds.
const (
	FieldFileName     = "fileName"
	FieldTableString  = "tableString"
	FieldNextFree     = "nextFree"
	FieldCategoryCnt  = "categoryCount"
	FieldCategories   = "categories"
	FieldResourceID   = "resourceID"
	FieldFieldsPerRow = "fieldsPerRow"
	FieldRecIDPos     = "recIDPos"
	FieldRecStatus    = "recStatus"
	FieldPlacementPos = "placementPos"
	FieldFieldCount   = "fieldCount"
	FieldSchemaFields = "schemaFields"
	FieldNumEntries   = "numEntries"
	FieldEntries      = "entries"

	FieldSchemaType = "fieldEntryType"

	FieldCategoryIndex     = "index"
	FieldCategoryID        = "id"
	FieldCategoryDirty     = "dirtyFlag"
	FieldCategoryLongName  = "longName"
	FieldCategoryShortName = "shortName"
)

// Datebook entry labels.
const (
	EntryRecordID      = "recordID"
	EntryStatus        = "status"
	EntryPosition      = "position"
	EntryStartTime     = "startTime"
	EntryEndTime       = "endTime"
	EntryDescription   = "description"
	EntryDuration      = "duration"
	EntryNote          = "note"
	EntryUntimed       = "untimed"
	EntryPrivate       = "private"
	EntryCategory      = "category"
	EntryAlarmSet      = "alarmSet"
	EntryAlarmAdvUnits = "alarmAdvUnits"
	EntryAlarmAdvType  = "alarmAdvType"
	EntryRepeatEvent   = "repeatEvent"
)

var datebookLabels = []string{
	EntryRecordID,
	EntryStatus,
	EntryPosition,
	EntryStartTime,
	EntryEndTime,
	EntryDescription,
	EntryDuration,
	EntryNote,
	EntryUntimed,
	EntryPrivate,
	EntryCategory,
	EntryAlarmSet,
	EntryAlarmAdvUnits,
	EntryAlarmAdvType,
	EntryRepeatEvent,
}

var addressLabels = []string{
	"recordID",
	"status",
	"position",
	"lastName",
	"firstName",
	"title",
	"companyName",
	"phone1LabelID",
	"phone1Text",
	"phone2LabelID",
	"phone2Text",
	"phone3LabelID",
	"phone3Text",
	"phone4LabelID",
	"phone4Text",
	"phone5LabelID",
	"phone5Text",
	"address",
	"city",
	"state",
	"zip",
	"country",
	"note",
	"private",
	"category",
	"custom1Text",
	"custom2Text",
	"custom3Text",
	"custom4Text",
	"displayPhone",
}

// Labels returns a copy of the label list.
func (s LabelSet) Labels() ([]string, error) {
	var src []string
	switch s {
	case DatebookEntryLabels:
		src = datebookLabels
	case AddressEntryLabels:
		src = addressLabels
	default:
		return nil, fmt.Errorf("%w: unknown label set %d", ErrSchemaMismatch, int(s))
	}
	out := make([]string, len(src))
	copy(out, src)
	return out, nil
}

// headerLayout is shared by datebook and address files; only the labels of
// the tagged entry run differ.
func headerLayout(labels LabelSet) Layout {
	return Layout{
		{Name: FieldFileName, Kind: KindPString},
		{Name: FieldTableString, Kind: KindPString},
		{Name: FieldNextFree, Kind: KindLong},
		{Name: FieldCategoryCnt, Kind: KindLong},
		{Name: FieldCategories, Kind: KindRecords, Sub: LayoutCategory, Count: FieldCategoryCnt},
		{Name: FieldResourceID, Kind: KindLong},
		{Name: FieldFieldsPerRow, Kind: KindLong},
		{Name: FieldRecIDPos, Kind: KindLong},
		{Name: FieldRecStatus, Kind: KindLong},
		{Name: FieldPlacementPos, Kind: KindLong},
		{Name: FieldFieldCount, Kind: KindShort},
		{Name: FieldSchemaFields, Kind: KindRecords, Sub: LayoutSchemaField, Count: FieldFieldCount},
		{Name: FieldNumEntries, Kind: KindLong},
		{Name: FieldEntries, Kind: KindTaggedRun, Count: FieldNumEntries, FieldCount: FieldFieldCount, Labels: labels, Types: FieldSchemaFields},
	}
}

// LayoutFor returns the layout identified by id.
func LayoutFor(id LayoutID) (Layout, error) {
	switch id {
	case LayoutDatebookHeader:
		return headerLayout(DatebookEntryLabels), nil
	case LayoutAddressHeader:
		return headerLayout(AddressEntryLabels), nil
	case LayoutCategory:
		return Layout{
			{Name: FieldCategoryIndex, Kind: KindLong},
			{Name: FieldCategoryID, Kind: KindLong},
			{Name: FieldCategoryDirty, Kind: KindLong},
			{Name: FieldCategoryLongName, Kind: KindPString},
			{Name: FieldCategoryShortName, Kind: KindPString},
		}, nil
	case LayoutSchemaField:
		return Layout{
			{Name: FieldSchemaType, Kind: KindShort},
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown layout %s", ErrSchemaMismatch, id)
	}
}
