// Package batch implements the batch coordinator, per spec.md §4.8: load
// the programming document, lock it, allocate budget, run each matching
// daypart's relaxer-wrapped selection and validation in sequence, then
// write the m3u8 + sidecar-JSON output and release the lock.
package batch

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/troykelly/playlistgen/internal/budget"
	"github.com/troykelly/playlistgen/internal/decisionlog"
	"github.com/troykelly/playlistgen/internal/docparser"
	"github.com/troykelly/playlistgen/internal/filelock"
	"github.com/troykelly/playlistgen/internal/logger"
	"github.com/troykelly/playlistgen/internal/metrics"
	"github.com/troykelly/playlistgen/internal/model"
	"github.com/troykelly/playlistgen/internal/playlistcore/errs"
	"github.com/troykelly/playlistgen/internal/validator"
)

// RelaxedSelector is the subset of *relaxer.Relaxer the coordinator drives.
type RelaxedSelector interface {
	SelectWithRelaxation(ctx context.Context, spec model.PlaylistSpecification, daypart *model.DaypartSpecification, excluded map[string]bool) ([]model.SelectedTrack, model.Money, []model.ConstraintRelaxation, error)
}

// Options configures one batch run.
type Options struct {
	DocumentPath       string
	GenerationDate     time.Time
	TotalBudget        model.Money
	BudgetMode         budget.Mode
	AllocationStrategy budget.Strategy
	ExplicitWeights    map[string]float64
	OutputDir          string
}

// Coordinator runs one batch: every weekday-matching daypart in a
// programming document, in sequence, accumulating a cross-playlist
// no-repeat set as it goes.
type Coordinator struct {
	relaxer   RelaxedSelector
	decisions *decisionlog.Logger
	writer    *OutputWriter

	cloudwatch *metrics.Client
	sentry     *metrics.SentryMetrics
}

func New(relaxer RelaxedSelector, decisions *decisionlog.Logger, writer *OutputWriter) *Coordinator {
	return &Coordinator{relaxer: relaxer, decisions: decisions, writer: writer}
}

// SetMetrics attaches the optional CloudWatch and Sentry recorders; either
// may be nil.
func (c *Coordinator) SetMetrics(cloudwatch *metrics.Client, sentry *metrics.SentryMetrics) {
	c.cloudwatch = cloudwatch
	c.sentry = sentry
}

// RunBatch executes spec.md §4.8's seven steps and returns the resulting
// Playlists, one per matching daypart (some may be FAIL playlists with no
// tracks, per the partial-failure policy).
func (c *Coordinator) RunBatch(ctx context.Context, opts Options) ([]model.Playlist, error) {
	doc, err := docparser.Load(opts.DocumentPath)
	if err != nil {
		return nil, err
	}

	lock := filelock.New(opts.DocumentPath)
	if err := lock.Acquire(); err != nil {
		return nil, err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logger.Warn("batch: releasing document lock failed", logger.Fields{"path": opts.DocumentPath, "error": err.Error()})
		}
	}()

	dayparts := doc.DaypartsForWeekday(opts.GenerationDate)

	mgr := budget.New(opts.TotalBudget, opts.BudgetMode)
	allocations, err := c.allocate(mgr, opts, dayparts)
	if err != nil {
		return nil, err
	}

	excluded := make(map[string]bool)
	playlists := make([]model.Playlist, 0, len(dayparts))
	budgetExhausted := false
	totalCost := model.Zero
	failedCount := 0

	for _, daypart := range dayparts {
		if budgetExhausted {
			playlists = append(playlists, c.failedPlaylist(daypart, "skipped: hard budget mode already exhausted"))
			continue
		}

		start := time.Now()
		playlistID := uuid.NewString()
		criteria := model.DeriveCriteria(daypart, doc.AustralianContentMinimum)
		daypartBudget := allocations[daypart.ID]
		spec := model.NewPlaylistSpecification(playlistID, daypart, opts.GenerationDate, criteria, &daypartBudget)

		tracks, cost, relaxations, selectErr := c.relaxer.SelectWithRelaxation(ctx, spec, daypart, excluded)
		elapsed := time.Since(start).Seconds()

		if selectErr != nil {
			c.logError(playlistID, selectErr)
			kind, _ := errs.KindOf(selectErr)

			// A cancellation timeout that still carries confirmed tracks is a
			// partial result, not an empty failure: the selector returns whatever
			// was confirmed before the deadline, so the batch keeps it as a real
			// (if under target_min) playlist instead of discarding it via
			// failedPlaylist.
			if kind != errs.KindCancellationTimeout || len(tracks) == 0 {
				playlists = append(playlists, c.failedPlaylist(daypart, selectErr.Error()))
				failedCount++
				if c.cloudwatch != nil {
					c.cloudwatch.RecordPlaylistGenerated(daypart.ID, cost, 0, len(relaxations), 0, time.Since(start), model.StatusFail)
				}
				if c.sentry != nil {
					c.sentry.RecordDaypartGeneration(ctx, time.Since(start), false)
				}
				if kind == errs.KindBudgetExceeded && opts.BudgetMode == budget.ModeHard {
					budgetExhausted = true
				}
				continue
			}
		}

		validation := validator.Validate(playlistID, tracks, spec.Criteria)
		if selectErr != nil {
			validation.GapAnalysis = append(validation.GapAnalysis, "partial result: "+selectErr.Error())
		}

		playlist := model.Playlist{
			ID:                    playlistID,
			Name:                  spec.Name,
			SpecID:                spec.ID,
			Tracks:                tracks,
			Validation:            validation,
			CreatedAt:             opts.GenerationDate,
			CostActual:            cost,
			GenerationTimeSeconds: elapsed,
			Relaxations:           relaxations,
		}
		playlists = append(playlists, playlist)
		totalCost = totalCost.Add(cost)
		if validation.OverallStatus == model.StatusFail {
			failedCount++
		}

		for _, t := range tracks {
			excluded[t.TrackID] = true
		}

		if c.writer != nil {
			if err := c.writer.Write(opts.OutputDir, playlist); err != nil {
				logger.Warn("batch: writing playlist output failed", logger.Fields{"playlist_id": playlistID, "error": err.Error()})
			}
		}

		if c.cloudwatch != nil {
			c.cloudwatch.RecordPlaylistGenerated(daypart.ID, cost, c.toolCallCount(playlistID), len(relaxations), validation.CompliancePercentage, time.Since(start), validation.OverallStatus)
		}
		if c.sentry != nil {
			c.sentry.RecordValidation(ctx, validation.OverallStatus, validation.CompliancePercentage)
			c.sentry.RecordDaypartGeneration(ctx, time.Since(start), true)
			for _, r := range relaxations {
				c.sentry.RecordRelaxationStep(ctx, r.StepIndex, r.ConstraintType)
			}
		}
	}

	if c.cloudwatch != nil {
		c.cloudwatch.RecordBatchCompleted(totalCost, len(playlists), failedCount)
	}

	return playlists, nil
}

// toolCallCount counts the track-selection decision entries logged for
// playlistID, used as the CloudWatch ToolCalls metric.
func (c *Coordinator) toolCallCount(playlistID string) int {
	if c.decisions == nil {
		return 0
	}
	entries, err := c.decisions.Read(playlistID)
	if err != nil {
		return 0
	}
	count := 0
	for _, e := range entries {
		if e.Type == model.DecisionTypeTrackSelection {
			count++
		}
	}
	return count
}

func (c *Coordinator) allocate(mgr *budget.Manager, opts Options, dayparts []*model.DaypartSpecification) (map[string]model.Money, error) {
	inputs := make([]budget.DaypartWeightInput, 0, len(dayparts))
	for _, d := range dayparts {
		inputs = append(inputs, budget.DaypartWeightInput{
			DaypartID:         d.ID,
			DurationHours:     d.DurationHours,
			GenreCount:        len(d.GenreMix),
			BPMSubWindowCount: len(d.BPMRanges),
			HasSpecialty:      d.Specialty != nil,
		})
	}
	return mgr.Allocate(opts.AllocationStrategy, inputs, opts.ExplicitWeights)
}

func (c *Coordinator) failedPlaylist(daypart *model.DaypartSpecification, reason string) model.Playlist {
	return model.Playlist{
		ID:     uuid.NewString(),
		Name:   daypart.DisplayName,
		SpecID: daypart.ID,
		Validation: model.ValidationResult{
			OverallStatus: model.StatusFail,
			GapAnalysis:   []string{reason},
			ValidatedAt:   time.Now().UTC(),
		},
		CreatedAt: time.Now().UTC(),
	}
}

func (c *Coordinator) logError(playlistID string, err error) {
	if c.decisions == nil {
		return
	}
	_ = c.decisions.Append(model.DecisionLogEntry{
		ID:           uuid.NewString(),
		PlaylistID:   playlistID,
		Type:         model.DecisionTypeError,
		Timestamp:    time.Now().UTC(),
		DecisionData: map[string]interface{}{"message": err.Error()},
		CostIncurred: model.Zero,
	})
}
