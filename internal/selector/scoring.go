package selector

import (
	"strings"

	"github.com/troykelly/playlistgen/internal/model"
)

const minReasoningLength = 50

// scoreTrack checks a selected track against the five per-track criteria
// spec.md §4.5 names, returning the number that failed. 0-0 failures is a
// clean pass; callers apply the 1-2 WARNING / ≥3 FAIL thresholds.
func scoreTrack(t model.SelectedTrack, criteria model.TrackSelectionCriteria) int {
	failures := 0

	if !bpmInScheduledRange(t, criteria.BPMRanges) {
		failures++
	}
	if !genreInTargetMap(t, criteria.GenreCriteria) {
		failures++
	}
	if !yearInAnyEra(t, criteria.EraCriteria) {
		failures++
	}
	if containsExcludedMood(t.SelectionReasoning, criteria.MoodExcludes) {
		failures++
	}
	if len(strings.TrimSpace(t.SelectionReasoning)) < minReasoningLength {
		failures++
	}

	return failures
}

// statusForFailures maps a failure count to the per-track validation
// status spec.md §4.5 defines: 0 failures passes silently (status carried
// by the caller), 1-2 is a WARNING that keeps the track, ≥3 is a FAIL that
// drops it.
func statusForFailures(failures int) string {
	switch {
	case failures == 0:
		return model.StatusPass
	case failures <= 2:
		return model.StatusWarning
	default:
		return model.StatusFail
	}
}

func bpmInScheduledRange(t model.SelectedTrack, ranges []model.BPMRange) bool {
	if t.BPM == nil {
		return false
	}
	for _, r := range ranges {
		if r.Contains(*t.BPM) {
			return true
		}
	}
	return false
}

func genreInTargetMap(t model.SelectedTrack, genreCriteria map[string]model.GenreCriterion) bool {
	if len(genreCriteria) == 0 {
		return true
	}
	if t.Genre == nil {
		return false
	}
	_, ok := genreCriteria[*t.Genre]
	return ok
}

func yearInAnyEra(t model.SelectedTrack, eraCriteria map[string]model.EraCriterion) bool {
	if len(eraCriteria) == 0 {
		return true
	}
	if t.Year == nil {
		return false
	}
	for _, era := range eraCriteria {
		if era.Contains(*t.Year) {
			return true
		}
	}
	return false
}

func containsExcludedMood(reasoning string, moodExcludes []string) bool {
	lower := strings.ToLower(reasoning)
	for _, excluded := range moodExcludes {
		if excluded == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(excluded)) {
			return true
		}
	}
	return false
}
