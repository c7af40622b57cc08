package relaxer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/troykelly/playlistgen/internal/decisionlog"
	"github.com/troykelly/playlistgen/internal/model"
	"github.com/troykelly/playlistgen/internal/playlistcore/errs"
)

// fakeSelector records every criteria it was called with and succeeds once
// a predicate over the widened criteria is satisfied.
type fakeSelector struct {
	succeedsAt func(criteria model.TrackSelectionCriteria) bool
	seen       []model.TrackSelectionCriteria
}

func (f *fakeSelector) Select(ctx context.Context, spec model.PlaylistSpecification, daypart *model.DaypartSpecification, excluded map[string]bool) ([]model.SelectedTrack, model.Money, error) {
	f.seen = append(f.seen, spec.Criteria)
	if f.succeedsAt(spec.Criteria) {
		return []model.SelectedTrack{{TrackID: "t1"}}, model.MoneyFromMicros(1000), nil
	}
	return nil, model.MoneyFromMicros(1000), errs.New(errs.KindInsufficientTracks, nil, "not enough tracks")
}

func testLogger(t *testing.T) *decisionlog.Logger {
	t.Helper()
	l := decisionlog.New(t.TempDir(), nil)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func baseSpec(t *testing.T) model.PlaylistSpecification {
	t.Helper()
	start, err := model.NewClockTime(6, 0)
	require.NoError(t, err)
	end, err := model.NewClockTime(8, 0)
	require.NoError(t, err)
	bpmRange, err := model.NewBPMRange(start, end, 90, 115)
	require.NoError(t, err)

	criteria := model.TrackSelectionCriteria{
		BPMRanges: []model.BPMRange{bpmRange},
		GenreCriteria: map[string]model.GenreCriterion{
			"Alt": {Target: 1.0, Tolerance: model.DefaultGenreTolerance},
		},
		EraCriteria: map[string]model.EraCriterion{
			"Current": {Label: "Current", YearMin: 2024, YearMax: 2026, Target: 0.6, Tolerance: model.DefaultEraTolerance},
			"Recent":  {Label: "Recent", YearMin: 2019, YearMax: 2023, Target: 0.4, Tolerance: model.DefaultEraTolerance},
		},
		AustralianMinimum: 0.30,
		BPMTolerance:      0,
		GenreTolerance:    model.DefaultGenreTolerance,
		EraTolerance:      model.DefaultEraTolerance,
	}

	return model.PlaylistSpecification{
		ID:        "pl-1",
		TargetMin: 1,
		TargetMax: 5,
		Criteria:  criteria,
		CreatedAt: time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC),
	}
}

func testDaypart(t *testing.T) *model.DaypartSpecification {
	t.Helper()
	start, err := model.NewClockTime(6, 0)
	require.NoError(t, err)
	end, err := model.NewClockTime(8, 0)
	require.NoError(t, err)
	bpmRange, err := model.NewBPMRange(start, end, 90, 115)
	require.NoError(t, err)
	d, err := model.NewDaypartSpecification("weekday-morning", model.DaypartParams{
		DisplayName:      "Morning",
		ScheduleTag:      "weekday",
		TimeStart:        start,
		TimeEnd:          end,
		BPMRanges:        []model.BPMRange{bpmRange},
		GenreMix:         map[string]float64{"Alt": 1.0},
		EraDistribution:  map[string]float64{"Current": 0.6, "Recent": 0.4},
		TracksPerHourMin: 1,
		TracksPerHourMax: 2,
	})
	require.NoError(t, err)
	return d
}

func TestSelectWithRelaxationSucceedsWithoutRelaxingWhenSelectorSucceeds(t *testing.T) {
	sel := &fakeSelector{succeedsAt: func(model.TrackSelectionCriteria) bool { return true }}
	r := New(sel, testLogger(t))

	tracks, _, applied, err := r.SelectWithRelaxation(context.Background(), baseSpec(t), testDaypart(t), nil)
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Empty(t, applied)
	assert.Len(t, sel.seen, 1)
}

func TestSelectWithRelaxationAppliesBPMStepsInOrder(t *testing.T) {
	sel := &fakeSelector{succeedsAt: func(c model.TrackSelectionCriteria) bool {
		return c.BPMTolerance == bpmWidenStep2
	}}
	r := New(sel, testLogger(t))

	tracks, _, applied, err := r.SelectWithRelaxation(context.Background(), baseSpec(t), testDaypart(t), nil)
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	require.Len(t, applied, 2)
	assert.Equal(t, "bpm", applied[0].ConstraintType)
	assert.Equal(t, "bpm", applied[1].ConstraintType)
	assert.Equal(t, 1, applied[0].StepIndex)
	assert.Equal(t, 2, applied[1].StepIndex)
}

func TestSelectWithRelaxationWidensBPMRangeByMargin(t *testing.T) {
	sel := &fakeSelector{succeedsAt: func(c model.TrackSelectionCriteria) bool {
		return c.BPMTolerance == bpmWidenStep1
	}}
	r := New(sel, testLogger(t))

	_, _, _, err := r.SelectWithRelaxation(context.Background(), baseSpec(t), testDaypart(t), nil)
	require.NoError(t, err)

	require.Len(t, sel.seen, 2)
	widened := sel.seen[1].BPMRanges[0]
	assert.Equal(t, 80, widened.BPMMin)
	assert.Equal(t, 125, widened.BPMMax)
}

func TestSelectWithRelaxationGenreStepWidensToleranceKeepingTarget(t *testing.T) {
	sel := &fakeSelector{succeedsAt: func(c model.TrackSelectionCriteria) bool {
		return c.GenreTolerance == widenedGenreTolerance
	}}
	r := New(sel, testLogger(t))

	_, _, applied, err := r.SelectWithRelaxation(context.Background(), baseSpec(t), testDaypart(t), nil)
	require.NoError(t, err)
	require.Len(t, applied, 3)

	final := sel.seen[len(sel.seen)-1]
	assert.Equal(t, 1.0, final.GenreCriteria["Alt"].Target)
	assert.Equal(t, widenedGenreTolerance, final.GenreCriteria["Alt"].Tolerance)
}

func TestSelectWithRelaxationEraStepSubstitutesAdjacentEras(t *testing.T) {
	sel := &fakeSelector{succeedsAt: func(c model.TrackSelectionCriteria) bool {
		return c.EraTolerance == widenedEraTolerance
	}}
	r := New(sel, testLogger(t))

	_, _, applied, err := r.SelectWithRelaxation(context.Background(), baseSpec(t), testDaypart(t), nil)
	require.NoError(t, err)
	require.Len(t, applied, 4)

	final := sel.seen[len(sel.seen)-1]
	current := final.EraCriteria["Current"]
	assert.Equal(t, 2019, current.YearMin) // widened to include Recent's lower bound
}

func TestSelectWithRelaxationSpecialtyStepRelaxesExclusiveConstraint(t *testing.T) {
	spec := baseSpec(t)
	spec.Criteria.Specialty = &model.SpecialtyConstraint{Tag: "100% Electronic", Parameters: map[string]string{}}

	sel := &fakeSelector{succeedsAt: func(c model.TrackSelectionCriteria) bool {
		return c.Specialty != nil && c.Specialty.Parameters["mode"] == "primary_genre_minimum"
	}}
	r := New(sel, testLogger(t))

	_, _, applied, err := r.SelectWithRelaxation(context.Background(), spec, testDaypart(t), nil)
	require.NoError(t, err)
	require.Len(t, applied, 5)
	assert.Equal(t, "specialty", applied[4].ConstraintType)
}

func TestSelectWithRelaxationNeverWidensAustralianMinimum(t *testing.T) {
	sel := &fakeSelector{succeedsAt: func(c model.TrackSelectionCriteria) bool {
		return c.EraTolerance == widenedEraTolerance
	}}
	r := New(sel, testLogger(t))

	_, _, _, err := r.SelectWithRelaxation(context.Background(), baseSpec(t), testDaypart(t), nil)
	require.NoError(t, err)

	for _, criteria := range sel.seen {
		assert.Equal(t, 0.30, criteria.AustralianMinimum)
	}
}

func TestSelectWithRelaxationPropagatesInsufficientTracksWhenLadderExhausted(t *testing.T) {
	sel := &fakeSelector{succeedsAt: func(model.TrackSelectionCriteria) bool { return false }}
	r := New(sel, testLogger(t))

	_, _, applied, err := r.SelectWithRelaxation(context.Background(), baseSpec(t), testDaypart(t), nil)
	require.Error(t, err)
	kind, _ := errs.KindOf(err)
	assert.Equal(t, errs.KindInsufficientTracks, kind)
	assert.Len(t, applied, 5)
}

func TestSelectWithRelaxationPropagatesNonInsufficientErrorsImmediately(t *testing.T) {
	budgetExceeding := &fakeSelectorWithHardFailure{}
	r := New(budgetExceeding, testLogger(t))

	_, _, applied, err := r.SelectWithRelaxation(context.Background(), baseSpec(t), testDaypart(t), nil)
	require.Error(t, err)
	kind, _ := errs.KindOf(err)
	assert.Equal(t, errs.KindBudgetExceeded, kind)
	assert.Empty(t, applied)
}

type fakeSelectorWithHardFailure struct{}

func (f *fakeSelectorWithHardFailure) Select(ctx context.Context, spec model.PlaylistSpecification, daypart *model.DaypartSpecification, excluded map[string]bool) ([]model.SelectedTrack, model.Money, error) {
	return nil, model.Zero, errs.New(errs.KindBudgetExceeded, nil, "budget exhausted")
}

func TestSelectWithRelaxationPropagatesPartialTracksOnCancellationTimeout(t *testing.T) {
	sel := &fakeSelectorWithTimeout{}
	r := New(sel, testLogger(t))

	tracks, _, applied, err := r.SelectWithRelaxation(context.Background(), baseSpec(t), testDaypart(t), nil)
	require.Error(t, err)
	kind, _ := errs.KindOf(err)
	assert.Equal(t, errs.KindCancellationTimeout, kind)
	assert.Empty(t, applied)
	require.Len(t, tracks, 1, "a partial result confirmed before the timeout must not be discarded on the way back up")
	assert.Equal(t, "t1", tracks[0].TrackID)
}

type fakeSelectorWithTimeout struct{}

func (f *fakeSelectorWithTimeout) Select(ctx context.Context, spec model.PlaylistSpecification, daypart *model.DaypartSpecification, excluded map[string]bool) ([]model.SelectedTrack, model.Money, error) {
	return []model.SelectedTrack{{TrackID: "t1"}}, model.MoneyFromMicros(500), errs.New(errs.KindCancellationTimeout, nil, "overall timeout reached")
}
