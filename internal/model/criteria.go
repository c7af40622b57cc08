package model

// GenreCriterion is a target fraction plus tolerance for one genre.
type GenreCriterion struct {
	Target    float64
	Tolerance float64
}

// EraCriterion is a named release-year window plus target fraction.
type EraCriterion struct {
	Label     string
	YearMin   int
	YearMax   int
	Target    float64
	Tolerance float64
}

// Contains reports whether year falls within the era's inclusive bounds.
func (e EraCriterion) Contains(year int) bool {
	return year >= e.YearMin && year <= e.YearMax
}

// Default tolerance knobs per spec.md §3.
const (
	DefaultGenreTolerance = 0.10
	DefaultEraTolerance   = 0.10
	DefaultBPMTolerance   = 10
	AustralianMinimumHard = 0.30
)

// TrackSelectionCriteria is derived from a DaypartSpecification for one
// generation run; the relaxer widens copies of it without mutating the
// original.
type TrackSelectionCriteria struct {
	BPMRanges           []BPMRange
	GenreCriteria       map[string]GenreCriterion
	EraCriteria         map[string]EraCriterion
	AustralianMinimum   float64
	MoodIncludes        []string
	MoodExcludes        []string
	RotationMix         map[string]float64
	NoRepeatWindowHours float64
	BPMTolerance        int
	GenreTolerance      float64
	EraTolerance        float64
	Specialty           *SpecialtyConstraint
}

// Clone returns a deep-enough copy safe for the relaxer to widen without
// mutating the original criteria derived from the daypart.
func (c TrackSelectionCriteria) Clone() TrackSelectionCriteria {
	out := c
	out.BPMRanges = append([]BPMRange(nil), c.BPMRanges...)

	out.GenreCriteria = make(map[string]GenreCriterion, len(c.GenreCriteria))
	for k, v := range c.GenreCriteria {
		out.GenreCriteria[k] = v
	}
	out.EraCriteria = make(map[string]EraCriterion, len(c.EraCriteria))
	for k, v := range c.EraCriteria {
		out.EraCriteria[k] = v
	}
	out.MoodIncludes = append([]string(nil), c.MoodIncludes...)
	out.MoodExcludes = append([]string(nil), c.MoodExcludes...)
	out.RotationMix = make(map[string]float64, len(c.RotationMix))
	for k, v := range c.RotationMix {
		out.RotationMix[k] = v
	}
	if c.Specialty != nil {
		s := *c.Specialty
		out.Specialty = &s
	}
	return out
}

// DeriveCriteria builds Track Selection Criteria from a daypart per
// spec.md §3: same BPM ranges and mixes, default tolerances, a no-repeat
// window equal to the daypart's own duration, and the station-wide
// Australian floor (never lower than the hard minimum).
func DeriveCriteria(d *DaypartSpecification, stationAustralianMinimum float64) TrackSelectionCriteria {
	australian := stationAustralianMinimum
	if d.AustralianMinimum != nil {
		australian = *d.AustralianMinimum
	}
	if australian < AustralianMinimumHard {
		australian = AustralianMinimumHard
	}

	genreCriteria := make(map[string]GenreCriterion, len(d.GenreMix))
	for genre, target := range d.GenreMix {
		genreCriteria[genre] = GenreCriterion{Target: target, Tolerance: DefaultGenreTolerance}
	}

	eraCriteria := make(map[string]EraCriterion, len(d.EraDistribution))
	for label, target := range d.EraDistribution {
		yearMin, yearMax := EraYearBounds(label)
		eraCriteria[label] = EraCriterion{
			Label:     label,
			YearMin:   yearMin,
			YearMax:   yearMax,
			Target:    target,
			Tolerance: DefaultEraTolerance,
		}
	}

	return TrackSelectionCriteria{
		BPMRanges:           append([]BPMRange(nil), d.BPMRanges...),
		GenreCriteria:       genreCriteria,
		EraCriteria:         eraCriteria,
		AustralianMinimum:   australian,
		MoodIncludes:        append([]string(nil), d.MoodIncludes...),
		MoodExcludes:        append([]string(nil), d.MoodExcludes...),
		RotationMix:         d.RotationMix,
		NoRepeatWindowHours: d.DurationHours,
		BPMTolerance:        DefaultBPMTolerance,
		GenreTolerance:      DefaultGenreTolerance,
		EraTolerance:        DefaultEraTolerance,
		Specialty:           d.Specialty,
	}
}

// EraYearBounds resolves the glossary's named era labels to inclusive year
// windows relative to the current year. Unrecognised labels get a wide-open
// window rather than rejecting the document (spec.md §4.1 tolerates an
// "Unknown" row).
func EraYearBounds(label string) (min, max int) {
	currentYear := CurrentYearForEraBounds()
	switch label {
	case "Current":
		return currentYear - 2, currentYear
	case "Recent":
		return currentYear - 5, currentYear - 2
	case "Classics":
		return 1950, currentYear - 5
	default:
		return 0, currentYear
	}
}

// CurrentYearForEraBounds is overridable by tests so era-window math is
// deterministic without depending on wall-clock time.
var currentYearOverride int

func CurrentYearForEraBounds() int {
	if currentYearOverride != 0 {
		return currentYearOverride
	}
	return nowFunc().Year()
}

// SetCurrentYearForTest pins the "current year" used by era bound
// resolution; pass 0 to restore wall-clock behaviour.
func SetCurrentYearForTest(year int) {
	currentYearOverride = year
}
