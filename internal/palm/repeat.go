package palm

import (
	"fmt"
)

// Brand selects the repeat pattern of a repeat block.
type Brand uint32

const (
	BrandDaily         Brand = 1
	BrandWeekly        Brand = 2
	BrandMonthlyByDay  Brand = 3
	BrandMonthlyByDate Brand = 4
	BrandYearlyByDate  Brand = 5
	BrandYearlyByDay   Brand = 6
)

func (b Brand) String() string {
	switch b {
	case BrandDaily:
		return "daily"
	case BrandWeekly:
		return "weekly"
	case BrandMonthlyByDay:
		return "monthly-by-day"
	case BrandMonthlyByDate:
		return "monthly-by-date"
	case BrandYearlyByDate:
		return "yearly-by-date"
	case BrandYearlyByDay:
		return "yearly-by-day"
	default:
		return fmt.Sprintf("Brand(%d)", uint32(b))
	}
}

// Known reports whether b is one of the six repeat patterns.
func (b Brand) Known() bool {
	return b >= BrandDaily && b <= BrandYearlyByDay
}

const (
	// FlagNone marks a repeat block without a repeat pattern.
	FlagNone uint16 = 0
	// FlagClassTag marks a repeat block that introduces a named class
	// before the pattern fields.
	FlagClassTag uint16 = 0xFFFF

	// WeekLast is the WeekIndex value meaning "last week of the month".
	WeekLast uint32 = 4

	noEndDate uint32 = 0xFFFFFFFF
)

// ClassTag is the class header carried by repeat blocks flagged
// FlagClassTag.
type ClassTag struct {
	Constant uint16
	Name     []byte
}

// RepeatSpec is a decoded repeat block. Brand-specific fields are nil when
// they were not present on the wire.
//
// Weekday numbering follows the file: DaysMask bit 0 (value 1) is Sunday
// through bit 6 (value 64) Saturday, and DayIndex 0 is Sunday.
// WeekIndex is 0-3 or WeekLast; MonthIndex is 0-based.
type RepeatSpec struct {
	// Exceptions are dates (seconds since the Unix epoch) excluded from
	// the recurrence.
	Exceptions []uint32
	Flag       uint16
	Class      *ClassTag

	Brand          Brand
	Interval       uint32
	EndDate        uint32
	FirstDayOfWeek uint32

	DayIndex   *uint32
	DaysMask   *uint8
	WeekIndex  *uint32
	DayNumber  *uint32
	MonthIndex *uint32
}

// Repeats reports whether the block carries a repeat pattern.
func (s *RepeatSpec) Repeats() bool {
	return s != nil && s.Flag != FlagNone
}

// HasEndDate reports whether EndDate bounds the recurrence. Zero and
// 0xFFFFFFFF both mean "repeat forever".
func (s *RepeatSpec) HasEndDate() bool {
	return s.EndDate != 0 && s.EndDate != noEndDate
}

// ReadRepeatBlock reads a repeat block: exception dates, the repeat flag,
// an optional class tag, and the pattern fields selected by the brand.
func (r *Reader) ReadRepeatBlock() (*RepeatSpec, error) {
	spec := &RepeatSpec{}

	count, err := r.ReadUint16()
	if err != nil {
		return nil, err
	}
	if count > 0 {
		spec.Exceptions = make([]uint32, count)
		for i := range spec.Exceptions {
			if spec.Exceptions[i], err = r.ReadUint32(); err != nil {
				return nil, err
			}
		}
	}

	if spec.Flag, err = r.ReadUint16(); err != nil {
		return nil, err
	}
	if spec.Flag == FlagNone {
		r.trace("palm repeat block", "flag", spec.Flag, "exceptions", count)
		return spec, nil
	}

	if spec.Flag == FlagClassTag {
		var tag ClassTag
		if tag.Constant, err = r.ReadUint16(); err != nil {
			return nil, err
		}
		n, err := r.ReadUint16()
		if err != nil {
			return nil, err
		}
		if tag.Name, err = r.ReadBytes(int(n)); err != nil {
			return nil, err
		}
		spec.Class = &tag
	}

	brand, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	spec.Brand = Brand(brand)
	for _, dst := range []*uint32{&spec.Interval, &spec.EndDate, &spec.FirstDayOfWeek} {
		if *dst, err = r.ReadUint32(); err != nil {
			return nil, err
		}
	}

	switch spec.Brand {
	case BrandDaily, BrandWeekly, BrandMonthlyByDay:
		if spec.DayIndex, err = r.readOptUint32(); err != nil {
			return nil, err
		}
	}
	switch spec.Brand {
	case BrandWeekly:
		mask, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		spec.DaysMask = &mask
	case BrandMonthlyByDay:
		if spec.WeekIndex, err = r.readOptUint32(); err != nil {
			return nil, err
		}
	case BrandMonthlyByDate, BrandYearlyByDate:
		if spec.DayNumber, err = r.readOptUint32(); err != nil {
			return nil, err
		}
	}
	if spec.Brand == BrandYearlyByDate {
		if spec.MonthIndex, err = r.readOptUint32(); err != nil {
			return nil, err
		}
	}

	r.trace("palm repeat block", "flag", spec.Flag, "brand", spec.Brand,
		"interval", spec.Interval, "exceptions", count)
	return spec, nil
}

func (r *Reader) readOptUint32() (*uint32, error) {
	u, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	return &u, nil
}
