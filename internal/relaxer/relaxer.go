// Package relaxer implements the constraint relaxation ladder that wraps
// the selector (spec.md §4.6): when a daypart cannot reach target_min under
// its derived criteria, retry under a fixed, ordered sequence of widened
// criteria rather than an open-ended search.
package relaxer

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"

	"github.com/troykelly/playlistgen/internal/decisionlog"
	"github.com/troykelly/playlistgen/internal/logger"
	"github.com/troykelly/playlistgen/internal/model"
	"github.com/troykelly/playlistgen/internal/playlistcore/errs"
)

// Selector is the subset of *selector.Selector the relaxer drives, kept as
// an interface so tests can substitute a fake without the LLM/library
// wiring a real Selector needs.
type Selector interface {
	Select(ctx context.Context, spec model.PlaylistSpecification, daypart *model.DaypartSpecification, excluded map[string]bool) ([]model.SelectedTrack, model.Money, error)
}

const (
	bpmWidenStep1         = 10
	bpmWidenStep2         = 15
	widenedGenreTolerance = 0.20
	widenedEraTolerance   = 0.20
	minBPMFloor           = 30
)

// eraAdjacency lists, for each named era, the neighbouring eras step 4's
// substitution widens into.
var eraAdjacency = map[string][]string{
	"Current":  {"Recent"},
	"Recent":   {"Current", "Classics"},
	"Classics": {"Recent"},
}

// Relaxer wraps a Selector with spec.md §4.6's fixed five-step ladder. The
// Australian-content minimum and no-repeat window are never widened, since
// neither field is touched by any step below.
type Relaxer struct {
	selector  Selector
	decisions *decisionlog.Logger
}

func New(selector Selector, decisions *decisionlog.Logger) *Relaxer {
	return &Relaxer{selector: selector, decisions: decisions}
}

type ladderFunc func(original, running model.TrackSelectionCriteria) (widened model.TrackSelectionCriteria, from, to, reason string)

type ladderStep struct {
	constraintType string
	apply          ladderFunc
}

func ladder() []ladderStep {
	return []ladderStep{
		{constraintType: "bpm", apply: widenBPM(bpmWidenStep1)},
		{constraintType: "bpm", apply: widenBPM(bpmWidenStep2)},
		{constraintType: "genre", apply: widenGenreTolerance},
		{constraintType: "era", apply: widenEraTolerance},
		{constraintType: "specialty", apply: relaxSpecialty},
	}
}

// SelectWithRelaxation retries the wrapped selector against progressively
// widened copies of spec.Criteria, stopping as soon as an attempt yields at
// least spec.TargetMin tracks. Each later step's criteria is a superset of
// the prior step's (spec.md §8 monotonicity): every step starts from the
// previous step's running criteria, and the two BPM steps rebuild each band
// from the original with a margin that only grows (±10, then ±15). It returns the winning tracks, the total LLM
// cost summed across every attempt made, and the relaxation entries applied
// to reach it.
func (r *Relaxer) SelectWithRelaxation(ctx context.Context, spec model.PlaylistSpecification, daypart *model.DaypartSpecification, excluded map[string]bool) ([]model.SelectedTrack, model.Money, []model.ConstraintRelaxation, error) {
	totalCost := model.Zero

	tracks, cost, err := r.selector.Select(ctx, spec, daypart, excluded)
	totalCost = totalCost.Add(cost)
	if err == nil {
		return tracks, totalCost, nil, nil
	}
	if kind, _ := errs.KindOf(err); kind != errs.KindInsufficientTracks {
		// tracks may be a non-nil partial result (e.g. a CancellationTimeout
		// carrying whatever was confirmed before the deadline); it must keep
		// travelling with the error rather than being discarded here.
		return tracks, totalCost, nil, err
	}

	original := spec.Criteria
	running := original.Clone()
	applied := make([]model.ConstraintRelaxation, 0, len(ladder()))

	for i, step := range ladder() {
		widened, from, to, reason := step.apply(original, running)
		running = widened

		entry := model.ConstraintRelaxation{
			StepIndex:      i + 1,
			ConstraintType: step.constraintType,
			Original:       from,
			Relaxed:        to,
			Reason:         reason,
			Timestamp:      time.Now().UTC(),
		}
		applied = append(applied, entry)
		r.logRelaxation(spec.ID, entry)

		stepSpec := spec
		stepSpec.Criteria = running

		tracks, cost, err = r.selector.Select(ctx, stepSpec, daypart, excluded)
		totalCost = totalCost.Add(cost)
		if err == nil {
			return tracks, totalCost, applied, nil
		}
		if kind, _ := errs.KindOf(err); kind != errs.KindInsufficientTracks {
			return tracks, totalCost, applied, err
		}
	}

	fields := logger.Fields{"playlist_id": spec.ID, "steps_applied": len(applied)}
	logger.Warn("relaxer: ladder exhausted without reaching target_min", fields)
	logger.LogToSentry(sentry.LevelWarning, "relaxation ladder exhausted without reaching target_min", fields)
	return nil, totalCost, applied, errs.New(errs.KindInsufficientTracks, nil, "relaxer: ladder exhausted for playlist %s", spec.ID)
}

func widenBPM(margin int) ladderFunc {
	return func(original, running model.TrackSelectionCriteria) (model.TrackSelectionCriteria, string, string, string) {
		widened := running.Clone()
		widened.BPMRanges = make([]model.BPMRange, len(original.BPMRanges))
		for i, rng := range original.BPMRanges {
			min := rng.BPMMin - margin
			if min < minBPMFloor {
				min = minBPMFloor
			}
			widened.BPMRanges[i] = model.BPMRange{
				SubWindowStart: rng.SubWindowStart,
				SubWindowEnd:   rng.SubWindowEnd,
				BPMMin:         min,
				BPMMax:         rng.BPMMax + margin,
			}
		}
		widened.BPMTolerance = margin
		from := fmt.Sprintf("±%d BPM tolerance", original.BPMTolerance)
		to := fmt.Sprintf("±%d BPM tolerance", margin)
		reason := fmt.Sprintf("widened every BPM sub-window by ±%d BPM to admit more candidate tracks", margin)
		return widened, from, to, reason
	}
}

func widenGenreTolerance(original, running model.TrackSelectionCriteria) (model.TrackSelectionCriteria, string, string, string) {
	widened := running.Clone()
	widened.GenreCriteria = make(map[string]model.GenreCriterion, len(running.GenreCriteria))
	for genre, c := range running.GenreCriteria {
		c.Tolerance = widenedGenreTolerance
		widened.GenreCriteria[genre] = c
	}
	widened.GenreTolerance = widenedGenreTolerance
	from := fmt.Sprintf("±%.2f genre tolerance", original.GenreTolerance)
	to := fmt.Sprintf("±%.2f genre tolerance", widenedGenreTolerance)
	return widened, from, to, "widened genre tolerance, keeping the same target percentages"
}

func widenEraTolerance(original, running model.TrackSelectionCriteria) (model.TrackSelectionCriteria, string, string, string) {
	widened := running.Clone()
	widened.EraCriteria = make(map[string]model.EraCriterion, len(running.EraCriteria))
	for label, c := range running.EraCriteria {
		widened.EraCriteria[label] = c
	}
	for label, neighbors := range eraAdjacency {
		c, ok := widened.EraCriteria[label]
		if !ok {
			continue
		}
		for _, neighbor := range neighbors {
			nc, ok := widened.EraCriteria[neighbor]
			if !ok {
				continue
			}
			if nc.YearMin < c.YearMin {
				c.YearMin = nc.YearMin
			}
			if nc.YearMax > c.YearMax {
				c.YearMax = nc.YearMax
			}
		}
		c.Tolerance = widenedEraTolerance
		widened.EraCriteria[label] = c
	}
	widened.EraTolerance = widenedEraTolerance
	from := fmt.Sprintf("±%.2f era tolerance, no substitution", original.EraTolerance)
	to := fmt.Sprintf("±%.2f era tolerance, adjacent eras substitutable", widenedEraTolerance)
	return widened, from, to, "widened era tolerance and treated adjacent eras as substitutable"
}

func relaxSpecialty(_, running model.TrackSelectionCriteria) (model.TrackSelectionCriteria, string, string, string) {
	widened := running.Clone()
	if widened.Specialty == nil {
		return widened, "no specialty constraint", "no specialty constraint", "no specialty constraint to relax"
	}

	from := fmt.Sprintf("exclusive: %s", widened.Specialty.Tag)
	params := make(map[string]string, len(widened.Specialty.Parameters)+2)
	for k, v := range widened.Specialty.Parameters {
		params[k] = v
	}
	params["mode"] = "primary_genre_minimum"
	params["primary_genre_minimum"] = "0.80"
	widened.Specialty = &model.SpecialtyConstraint{Tag: widened.Specialty.Tag, Parameters: params}

	to := "primary genre >= 0.80, remainder in related genres"
	return widened, from, to, "relaxed the specialty constraint from exclusive to an 80% primary-genre floor"
}

func (r *Relaxer) logRelaxation(playlistID string, entry model.ConstraintRelaxation) {
	if r.decisions == nil {
		return
	}
	_ = r.decisions.Append(model.DecisionLogEntry{
		ID:         uuid.NewString(),
		PlaylistID: playlistID,
		Type:       model.DecisionTypeRelaxation,
		Timestamp:  entry.Timestamp,
		DecisionData: map[string]interface{}{
			"step_index":      entry.StepIndex,
			"constraint_type": entry.ConstraintType,
			"original":        entry.Original,
			"relaxed":         entry.Relaxed,
			"reason":          entry.Reason,
		},
		CostIncurred: model.Zero,
	})
}
