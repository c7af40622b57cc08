package model

import "time"

// ProgrammingStructure groups the dayparts that share a schedule tag.
type ProgrammingStructure struct {
	Tag      string // weekday | saturday | sunday
	Dayparts []*DaypartSpecification
}

// LockDescriptor records who holds the exclusive advisory lock on a
// ProgrammingDocument's file, for the duration of one batch.
type LockDescriptor struct {
	LockID        string
	LockTimestamp time.Time
	LockedBy      string // "pid:<n> session:<uuid>"
}

// ProgrammingDocument is the immutable result of parsing a station markdown
// file. Version is the SHA-256 hex digest of the raw file bytes.
type ProgrammingDocument struct {
	DocumentPath             string
	Version                  string
	LoadedAt                 time.Time
	Lock                     *LockDescriptor
	Structures               []ProgrammingStructure
	AustralianContentMinimum float64
}

// DaypartsForWeekday returns the dayparts whose structure tag matches the
// schedule tag corresponding to generationDate's weekday (Saturday/Sunday get
// their own structures, every other day uses "weekday").
func (d *ProgrammingDocument) DaypartsForWeekday(generationDate time.Time) []*DaypartSpecification {
	tag := ScheduleTagForWeekday(generationDate.Weekday())
	for _, s := range d.Structures {
		if s.Tag == tag {
			return s.Dayparts
		}
	}
	return nil
}

// ScheduleTagForWeekday maps a time.Weekday to the programming document's
// schedule tags.
func ScheduleTagForWeekday(w time.Weekday) string {
	switch w {
	case time.Saturday:
		return "saturday"
	case time.Sunday:
		return "sunday"
	default:
		return "weekday"
	}
}
