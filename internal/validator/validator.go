// Package validator scores a finished playlist against its criteria per
// spec.md §4.7: per-constraint compliance, the Australian-content floor, and
// flow-quality metrics, rolled up into an overall PASS/WARNING/FAIL status
// plus human-readable gap analysis.
package validator

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/troykelly/playlistgen/internal/model"
)

const (
	passThreshold       = 0.95
	warningThreshold    = 0.80
	bpmCoherenceMaxDiff = 15
	// energyVarianceCap bounds the heuristic energy-consistency score; there
	// is no energy-analysis library in the corpus, so energy is approximated
	// from BPM alone (see energyScore) and its variance capped empirically.
	energyVarianceCap  = 0.05
	rotationTolerance  = 0.10
)

// Validate computes a ValidationResult for tracks against criteria.
func Validate(playlistID string, tracks []model.SelectedTrack, criteria model.TrackSelectionCriteria) model.ValidationResult {
	scores := make(map[string]model.ConstraintScore)

	for genre, c := range criteria.GenreCriteria {
		actual := fractionMatching(tracks, func(t model.SelectedTrack) bool {
			return t.Genre != nil && *t.Genre == genre
		})
		scores["genre:"+genre] = model.NewConstraintScore("genre:"+genre, c.Target, actual, c.Tolerance)
	}

	for label, c := range criteria.EraCriteria {
		actual := fractionMatching(tracks, func(t model.SelectedTrack) bool {
			return t.Year != nil && *t.Year >= c.YearMin && *t.Year <= c.YearMax
		})
		scores["era:"+label] = model.NewConstraintScore("era:"+label, c.Target, actual, criteria.EraTolerance)
	}

	for category, target := range criteria.RotationMix {
		actual := fractionMatching(tracks, func(t model.SelectedTrack) bool {
			return t.RotationCategory == category
		})
		scores["rotation:"+category] = model.NewConstraintScore("rotation:"+category, target, actual, rotationTolerance)
	}

	australianActual := fractionMatching(tracks, func(t model.SelectedTrack) bool { return t.IsAustralian })
	scores["australian_content"] = model.NewFloorConstraintScore("australian_content", criteria.AustralianMinimum, australianActual)

	if criteria.Specialty != nil {
		scores["specialty"] = specialtyScore(tracks, criteria.Specialty)
	}

	flow := computeFlowQuality(tracks, criteria.BPMRanges)

	compliant := 0
	for _, s := range scores {
		if s.IsCompliant {
			compliant++
		}
	}
	p := 1.0
	if len(scores) > 0 {
		p = float64(compliant) / float64(len(scores))
	}

	return model.ValidationResult{
		PlaylistID:           playlistID,
		OverallStatus:        overallStatus(p, scores),
		ConstraintScores:     scores,
		FlowQuality:          flow,
		CompliancePercentage: p,
		ValidatedAt:          time.Now().UTC(),
		GapAnalysis:          gapAnalysis(scores),
	}
}

// overallStatus applies spec.md §4.7's thresholds: PASS requires both a high
// compliance fraction and the Australian floor being met; the WARNING band
// is reached either by a merely-good compliance fraction or by exactly one
// soft constraint missing while the floor still holds.
func overallStatus(p float64, scores map[string]model.ConstraintScore) string {
	australianCompliant := scores["australian_content"].IsCompliant

	if australianCompliant && p >= passThreshold {
		return model.StatusPass
	}

	softNonCompliant := 0
	for name, s := range scores {
		if name == "australian_content" || s.IsCompliant {
			continue
		}
		softNonCompliant++
	}

	if (p >= warningThreshold && p < passThreshold) || (australianCompliant && softNonCompliant == 1) {
		return model.StatusWarning
	}

	return model.StatusFail
}

// defaultSpecialtyFloor is the primary-genre minimum specialtyScore falls
// back to if Parameters["primary_genre_minimum"] is missing or
// unparseable; kept in sync with the "0.80" relaxer.relaxSpecialty writes
// there.
const defaultSpecialtyFloor = 0.80

// specialtyScore scores a daypart's specialty constraint, per spec.md §4.2.
// Before relaxation it is exclusive (every track's genre must equal the
// specialty tag); once the relaxation ladder's specialty step has run,
// criteria.Specialty.Parameters carries mode=primary_genre_minimum and only
// a floor on the tag's share of the playlist is enforced.
func specialtyScore(tracks []model.SelectedTrack, specialty *model.SpecialtyConstraint) model.ConstraintScore {
	actual := fractionMatching(tracks, func(t model.SelectedTrack) bool {
		return t.Genre != nil && *t.Genre == specialty.Tag
	})

	if specialty.Parameters["mode"] == "primary_genre_minimum" {
		minimum, err := strconv.ParseFloat(specialty.Parameters["primary_genre_minimum"], 64)
		if err != nil {
			minimum = defaultSpecialtyFloor
		}
		return model.NewFloorConstraintScore("specialty", minimum, actual)
	}

	return model.NewConstraintScore("specialty", 1.0, actual, 0)
}

func fractionMatching(tracks []model.SelectedTrack, pred func(model.SelectedTrack) bool) float64 {
	if len(tracks) == 0 {
		return 0
	}
	count := 0
	for _, t := range tracks {
		if pred(t) {
			count++
		}
	}
	return float64(count) / float64(len(tracks))
}

func computeFlowQuality(tracks []model.SelectedTrack, ranges []model.BPMRange) model.FlowQualityMetrics {
	bpms := make([]float64, 0, len(tracks))
	energies := make([]float64, 0, len(tracks))
	for _, t := range tracks {
		if t.BPM == nil {
			continue
		}
		bpms = append(bpms, float64(*t.BPM))
		energies = append(energies, energyScore(*t.BPM))
	}

	return model.FlowQualityMetrics{
		BPMStdDev:               stdDev(bpms),
		BPMProgressionCoherence: bpmCoherence(tracks, ranges),
		EnergyConsistency:       energyConsistency(energies),
		GenreDiversityIndex:     genreDiversity(tracks),
	}
}

// bpmCoherence is the fraction of consecutive track pairs whose BPM
// difference is within 15 and whose pair midpoint falls inside the BPM
// range scheduled for that position (spec.md §4.7).
func bpmCoherence(tracks []model.SelectedTrack, ranges []model.BPMRange) float64 {
	if len(tracks) < 2 {
		return 1.0
	}
	coherent, pairs := 0, 0
	for i := 1; i < len(tracks); i++ {
		prev, cur := tracks[i-1], tracks[i]
		if prev.BPM == nil || cur.BPM == nil {
			continue
		}
		pairs++
		diff := absInt(*cur.BPM - *prev.BPM)
		midpoint := (*prev.BPM + *cur.BPM) / 2
		scheduled := rangeForPosition(i, len(tracks), ranges)
		if diff <= bpmCoherenceMaxDiff && scheduled.Contains(midpoint) {
			coherent++
		}
	}
	if pairs == 0 {
		return 1.0
	}
	return float64(coherent) / float64(pairs)
}

// rangeForPosition maps a playlist position to the BPM sub-window scheduled
// for it, by the same proportional-duration split the selector uses to
// order tracks in the first place.
func rangeForPosition(position, total int, ranges []model.BPMRange) model.BPMRange {
	if len(ranges) == 0 {
		return model.BPMRange{}
	}
	if total <= 0 {
		return ranges[0]
	}
	span := ranges[len(ranges)-1].SubWindowEnd - ranges[0].SubWindowStart
	if span <= 0 {
		return ranges[0]
	}
	fraction := float64(position) / float64(total)
	offset := model.ClockTime(float64(span)*fraction) + ranges[0].SubWindowStart
	for _, r := range ranges {
		if r.CoversInstant(offset) {
			return r
		}
	}
	return ranges[len(ranges)-1]
}

// energyScore approximates a track's energy from its BPM alone, normalised
// against the 60-200 BPM range NewBPMRange enforces; no audio-energy
// analysis library exists in the corpus.
func energyScore(bpm int) float64 {
	score := (float64(bpm) - 60) / 140
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func energyConsistency(energies []float64) float64 {
	if len(energies) < 2 {
		return 1.0
	}
	c := 1.0 - variance(energies)/energyVarianceCap
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// genreDiversity is normalised Shannon entropy over the playlist's genre
// distribution: 0 for a single genre (or no genre data), up to 1 for a
// maximally even spread across every distinct genre present.
func genreDiversity(tracks []model.SelectedTrack) float64 {
	counts := make(map[string]int)
	total := 0
	for _, t := range tracks {
		if t.Genre == nil || *t.Genre == "" {
			continue
		}
		counts[*t.Genre]++
		total++
	}
	if total == 0 || len(counts) <= 1 {
		return 0
	}

	entropy := 0.0
	for _, n := range counts {
		p := float64(n) / float64(total)
		entropy -= p * math.Log2(p)
	}
	maxEntropy := math.Log2(float64(len(counts)))
	if maxEntropy == 0 {
		return 0
	}
	return entropy / maxEntropy
}

func gapAnalysis(scores map[string]model.ConstraintScore) []string {
	names := make([]string, 0, len(scores))
	for name := range scores {
		names = append(names, name)
	}
	sort.Strings(names)

	gaps := make([]string, 0, len(names))
	for _, name := range names {
		s := scores[name]
		if s.IsCompliant {
			continue
		}
		direction := "increase"
		if s.Actual > s.Target {
			direction = "decrease"
		}
		gaps = append(gaps, fmt.Sprintf("%s: target %.2f, actual %.2f, %s by %.1f%%", name, s.Target, s.Actual, direction, s.DeviationPercentage*100))
	}
	return gaps
}

func stdDev(values []float64) float64 {
	return math.Sqrt(variance(values))
}

func variance(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := meanOf(values)
	sumSq := 0.0
	for _, v := range values {
		d := v - mean
		sumSq += d * d
	}
	return sumSq / float64(len(values))
}

func meanOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
