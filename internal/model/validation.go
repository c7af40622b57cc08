package model

import "time"

// ConstraintRelaxation records one step of the relaxation ladder actually
// applied to reach a playlist's final candidate pool.
type ConstraintRelaxation struct {
	StepIndex      int
	ConstraintType string // bpm | genre | era
	Original       string
	Relaxed        string
	Reason         string
	Timestamp      time.Time
}

// ConstraintScore is the validator's per-constraint compliance record.
type ConstraintScore struct {
	Name                 string
	Target               float64
	Actual               float64
	Tolerance            float64
	IsCompliant          bool
	DeviationPercentage  float64
}

// NewConstraintScore computes IsCompliant and DeviationPercentage from
// target/actual/tolerance per spec.md §3's formula.
func NewConstraintScore(name string, target, actual, tolerance float64) ConstraintScore {
	deviation := 0.0
	if target != 0 {
		deviation = absFloat(actual-target) / target
	}
	return ConstraintScore{
		Name:                name,
		Target:              target,
		Actual:              actual,
		Tolerance:           tolerance,
		IsCompliant:         absFloat(actual-target) <= tolerance,
		DeviationPercentage: deviation,
	}
}

// NewFloorConstraintScore scores a hard lower-bound constraint (the
// Australian content minimum): compliant iff actual >= target, tolerance 0.
func NewFloorConstraintScore(name string, target, actual float64) ConstraintScore {
	deviation := 0.0
	if target != 0 {
		deviation = absFloat(actual-target) / target
	}
	return ConstraintScore{
		Name:                name,
		Target:              target,
		Actual:              actual,
		Tolerance:           0,
		IsCompliant:         actual >= target,
		DeviationPercentage: deviation,
	}
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// FlowQualityMetrics captures how well the playlist reads as a continuous
// listening experience, independent of individual constraint compliance.
type FlowQualityMetrics struct {
	BPMStdDev                float64
	BPMProgressionCoherence  float64
	EnergyConsistency        float64
	GenreDiversityIndex      float64
}

// OverallQuality is the equal-weighted mean of the four sub-scores, with BPM
// variance normalised as max(0, 1 - sigma/30) per spec.md §3.
func (f FlowQualityMetrics) OverallQuality() float64 {
	bpmScore := 1.0 - f.BPMStdDev/30.0
	if bpmScore < 0 {
		bpmScore = 0
	}
	return (bpmScore + f.BPMProgressionCoherence + f.EnergyConsistency + f.GenreDiversityIndex) / 4.0
}

// ValidationResult is the validator's scored assessment of one playlist.
type ValidationResult struct {
	PlaylistID            string
	OverallStatus          string
	ConstraintScores       map[string]ConstraintScore
	FlowQuality            FlowQualityMetrics
	CompliancePercentage   float64
	ValidatedAt            time.Time
	GapAnalysis            []string
}
