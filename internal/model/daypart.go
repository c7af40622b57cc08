package model

import (
	"fmt"
)

// ClockTime is a time-of-day in minutes since midnight, 0..1439. Dayparts
// never cross midnight (spec.md §8 boundary behaviour); a schedule spanning
// midnight must be expressed as two dayparts.
type ClockTime int

func NewClockTime(hour, minute int) (ClockTime, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("model: invalid clock time %02d:%02d", hour, minute)
	}
	return ClockTime(hour*60 + minute), nil
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// BPMRange is one sub-window of a daypart's BPM progression: a time interval
// and the inclusive tempo band in effect during it.
type BPMRange struct {
	SubWindowStart ClockTime
	SubWindowEnd   ClockTime
	BPMMin         int
	BPMMax         int
}

// NewBPMRange validates bpm_min < bpm_max, both within 60..200, and that the
// sub-window does not cross midnight.
func NewBPMRange(start, end ClockTime, bpmMin, bpmMax int) (BPMRange, error) {
	if end <= start {
		return BPMRange{}, fmt.Errorf("model: BPM sub-window end %s must be after start %s", end, start)
	}
	if bpmMin < 60 || bpmMax > 200 {
		return BPMRange{}, fmt.Errorf("model: BPM range %d-%d must be within 60-200", bpmMin, bpmMax)
	}
	if bpmMin >= bpmMax {
		return BPMRange{}, fmt.Errorf("model: bpm_min %d must be < bpm_max %d", bpmMin, bpmMax)
	}
	return BPMRange{SubWindowStart: start, SubWindowEnd: end, BPMMin: bpmMin, BPMMax: bpmMax}, nil
}

// Contains reports whether bpm falls within the range, inclusive of both
// boundaries (spec.md §8: a track on a sub-window boundary is inside both
// adjacent ranges).
func (r BPMRange) Contains(bpm int) bool {
	return bpm >= r.BPMMin && bpm <= r.BPMMax
}

// CoversInstant reports whether t falls within [SubWindowStart, SubWindowEnd).
func (r BPMRange) CoversInstant(t ClockTime) bool {
	return t >= r.SubWindowStart && t < r.SubWindowEnd
}

// SpecialtyConstraint is an optional station-specific rule such as
// "australian_only" or "100% Electronic".
type SpecialtyConstraint struct {
	Tag        string
	Parameters map[string]string
}

// DaypartSpecification is immutable once constructed by the parser.
type DaypartSpecification struct {
	ID                string
	DisplayName       string
	ScheduleTag       string // weekday | saturday | sunday
	TimeStart         ClockTime
	TimeEnd           ClockTime
	DurationHours     float64
	TargetDemographic string
	BPMRanges         []BPMRange
	GenreMix          map[string]float64
	EraDistribution   map[string]float64
	MoodIncludes      []string
	MoodExcludes      []string
	RotationMix       map[string]float64
	TracksPerHourMin  int
	TracksPerHourMax  int
	Specialty         *SpecialtyConstraint
	// AustralianMinimum overrides the station-wide floor for this daypart
	// only; nil means "use the station-wide value" per spec.md §4.1.
	AustralianMinimum *float64
}

// DaypartParams carries the raw fields the parser extracts, before invariant
// checking and ID assignment.
type DaypartParams struct {
	DisplayName       string
	ScheduleTag       string
	TimeStart         ClockTime
	TimeEnd           ClockTime
	TargetDemographic string
	BPMRanges         []BPMRange
	GenreMix          map[string]float64
	EraDistribution   map[string]float64
	MoodIncludes      []string
	MoodExcludes      []string
	RotationMix       map[string]float64
	TracksPerHourMin  int
	TracksPerHourMax  int
	Specialty         *SpecialtyConstraint
	AustralianMinimum *float64
}

// NewDaypartSpecification validates the invariants spec.md §3 fixes for a
// daypart and returns an immutable value, or a descriptive error the parser
// wraps as errs.ParseError.
func NewDaypartSpecification(id string, p DaypartParams) (*DaypartSpecification, error) {
	if p.TimeEnd <= p.TimeStart {
		return nil, fmt.Errorf("daypart %q: time_end %s must be after time_start %s", p.DisplayName, p.TimeEnd, p.TimeStart)
	}
	if p.TracksPerHourMin <= 0 || p.TracksPerHourMin > p.TracksPerHourMax {
		return nil, fmt.Errorf("daypart %q: tracks_per_hour %d-%d invalid", p.DisplayName, p.TracksPerHourMin, p.TracksPerHourMax)
	}
	if len(p.BPMRanges) == 0 {
		return nil, fmt.Errorf("daypart %q: no BPM progression", p.DisplayName)
	}
	if err := validateFractionSum(p.GenreMix); err != nil {
		return nil, fmt.Errorf("daypart %q: genre mix %w", p.DisplayName, err)
	}
	if err := validateFractionSum(p.EraDistribution); err != nil {
		return nil, fmt.Errorf("daypart %q: era distribution %w", p.DisplayName, err)
	}
	if err := validateBPMCoverage(p.TimeStart, p.TimeEnd, p.BPMRanges); err != nil {
		return nil, fmt.Errorf("daypart %q: %w", p.DisplayName, err)
	}

	durationHours := float64(p.TimeEnd-p.TimeStart) / 60.0

	return &DaypartSpecification{
		ID:                id,
		DisplayName:       p.DisplayName,
		ScheduleTag:       p.ScheduleTag,
		TimeStart:         p.TimeStart,
		TimeEnd:           p.TimeEnd,
		DurationHours:     durationHours,
		TargetDemographic: p.TargetDemographic,
		BPMRanges:         p.BPMRanges,
		GenreMix:          p.GenreMix,
		EraDistribution:   p.EraDistribution,
		MoodIncludes:      p.MoodIncludes,
		MoodExcludes:      p.MoodExcludes,
		RotationMix:       p.RotationMix,
		TracksPerHourMin:  p.TracksPerHourMin,
		TracksPerHourMax:  p.TracksPerHourMax,
		Specialty:         p.Specialty,
		AustralianMinimum: p.AustralianMinimum,
	}, nil
}

// validateFractionSum accepts sums in [0.99, 1.01], the tolerance spec.md
// §4.1's edge-case note grants for an "Unknown"/fallback row.
func validateFractionSum(m map[string]float64) error {
	sum := 0.0
	for _, v := range m {
		sum += v
	}
	if sum < 0.99 || sum > 1.01 {
		return fmt.Errorf("sums to %.4f, want 0.99-1.01", sum)
	}
	return nil
}

// validateBPMCoverage requires the sub-windows to tile [start, end) exactly,
// in order, with no gaps or overlaps.
func validateBPMCoverage(start, end ClockTime, ranges []BPMRange) error {
	cursor := start
	for i, r := range ranges {
		if r.SubWindowStart != cursor {
			return fmt.Errorf("BPM sub-window %d starts at %s, expected %s", i, r.SubWindowStart, cursor)
		}
		cursor = r.SubWindowEnd
	}
	if cursor != end {
		return fmt.Errorf("BPM progression ends at %s, daypart ends at %s", cursor, end)
	}
	return nil
}
