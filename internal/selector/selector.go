// Package selector drives the tool-augmented LLM loop that discovers and
// picks tracks for one daypart, per spec.md §4.5. It never receives the
// whole library; it learns what exists by calling the tools in tools.go.
package selector

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/troykelly/playlistgen/internal/budget"
	"github.com/troykelly/playlistgen/internal/decisionlog"
	"github.com/troykelly/playlistgen/internal/enrichment"
	"github.com/troykelly/playlistgen/internal/libraryaccess"
	"github.com/troykelly/playlistgen/internal/llm"
	"github.com/troykelly/playlistgen/internal/logger"
	"github.com/troykelly/playlistgen/internal/metrics"
	"github.com/troykelly/playlistgen/internal/model"
	"github.com/troykelly/playlistgen/internal/observability"
	"github.com/troykelly/playlistgen/internal/playlistcore/errs"
	"github.com/troykelly/playlistgen/internal/prompt"
)

const (
	defaultMaxIterations  = 15
	defaultToolTimeout    = 10 * time.Second
	defaultToolRetries    = 2
	defaultOverallTimeout = 90 * time.Second
	earlyStopStreak       = 3
	warningThresholdFrac  = 0.8
	correctiveMessage     = "Return ONLY the JSON array, with no prose and no code fences."
)

// Selector is the heart of the system (spec.md §4.5): it drives the model in
// a tool-use loop, validates what it picks, and orders the result.
type Selector struct {
	provider  llm.Provider
	accessor  libraryaccess.Accessor
	enricher  *enrichment.Enricher
	budgetMgr *budget.Manager
	decisions *decisionlog.Logger
	prompts   *prompt.Builder
	model     string
	sentry    *metrics.SentryMetrics

	reasoningEffort string
	maxIterations   int
	toolTimeout     time.Duration
	toolRetries     int
	overallTimeout  time.Duration
}

func New(provider llm.Provider, accessor libraryaccess.Accessor, enricher *enrichment.Enricher, budgetMgr *budget.Manager, decisions *decisionlog.Logger, prompts *prompt.Builder, modelName string) *Selector {
	return &Selector{
		provider:        provider,
		accessor:        accessor,
		enricher:        enricher,
		budgetMgr:       budgetMgr,
		decisions:       decisions,
		prompts:         prompts,
		model:           modelName,
		reasoningEffort: "low",
		maxIterations:   defaultMaxIterations,
		toolTimeout:     defaultToolTimeout,
		toolRetries:     defaultToolRetries,
		overallTimeout:  defaultOverallTimeout,
	}
}

// SetMetrics attaches the optional Sentry recorder; may be nil.
func (s *Selector) SetMetrics(sentry *metrics.SentryMetrics) {
	s.sentry = sentry
}

type llmSelection struct {
	TrackID string `json:"track_id"`
	Title   string `json:"title"`
	Artist  string `json:"artist"`
	Reason  string `json:"reason"`
}

// Select runs one daypart's selection conversation to completion, returning
// the ordered, validated tracks and the USD cost incurred. excluded is the
// cross-playlist no-repeat set the batch coordinator accumulates.
func (s *Selector) Select(ctx context.Context, spec model.PlaylistSpecification, daypart *model.DaypartSpecification, excluded map[string]bool) ([]model.SelectedTrack, model.Money, error) {
	ctx, cancel := context.WithTimeout(ctx, s.overallTimeout)
	defer cancel()

	systemPrompt, err := s.prompts.BuildSystemPrompt(spec, daypart)
	if err != nil {
		return nil, model.Zero, errs.New(errs.KindLLMError, err, "selector: building system prompt")
	}
	userPrompt := s.prompts.BuildUserPrompt(daypart, spec.Criteria)

	deps := &toolDeps{accessor: s.accessor, enricher: s.enricher, playlistID: spec.ID, excluded: copyExcluded(excluded)}
	specs := toolSpecs()

	request := &llm.Request{
		Model:           s.model,
		SystemPrompt:    systemPrompt,
		UserPrompt:      userPrompt,
		Tools:           toLLMToolSpecs(specs),
		ReasoningEffort: s.reasoningEffort,
	}

	totalCost := model.Zero
	seenTrackIDs := make(map[string]bool)
	noNewStreak := 0

	conversation, turn, err := s.runTurn(ctx, spec.ID, func() (*llm.Conversation, *llm.Turn, error) {
		return s.provider.Start(ctx, request)
	}, &totalCost)
	if err != nil {
		return nil, totalCost, err
	}

	for iteration := 1; iteration <= s.maxIterations; iteration++ {
		// A terminal turn already in hand is finalized before the timeout
		// check: a good answer that arrived just before the deadline must
		// not be discarded purely because checking it took a few more
		// milliseconds (spec.md §4.5/§5's partial-result requirement).
		if len(turn.ToolCalls) == 0 {
			tracks, parseErr := s.finalizeSelection(ctx, spec, daypart, deps, turn.OutputText, &conversation, &totalCost)
			if parseErr != nil {
				return nil, totalCost, parseErr
			}
			return tracks, totalCost, nil
		}

		if ctx.Err() != nil {
			return s.timeoutResult(spec, daypart, deps, totalCost)
		}

		newIDs := 0
		results := make([]llm.ToolResult, 0, len(turn.ToolCalls))
		for _, call := range turn.ToolCalls {
			output, added := s.executeToolWithRetry(ctx, deps, call, seenTrackIDs)
			newIDs += added
			results = append(results, llm.ToolResult{CallID: call.ID, Output: output})
		}

		if newIDs == 0 {
			noNewStreak++
		} else {
			noNewStreak = 0
		}

		if float64(iteration) >= float64(s.maxIterations)*warningThresholdFrac {
			logger.Warn("selector: iteration budget nearly exhausted", logger.Fields{"playlist_id": spec.ID, "iteration": iteration, "max": s.maxIterations})
		}

		conversation2, nextTurn, err := s.runTurn(ctx, spec.ID, func() (*llm.Conversation, *llm.Turn, error) {
			t, err := s.provider.Continue(ctx, conversation, results)
			return conversation, t, err
		}, &totalCost)
		if err != nil {
			return nil, totalCost, err
		}
		conversation, turn = conversation2, nextTurn

		if noNewStreak >= earlyStopStreak && len(turn.ToolCalls) > 0 {
			logger.Warn("selector: early-stopping after repeated empty tool results", logger.Fields{"playlist_id": spec.ID, "iteration": iteration})
			_, finalTurn, err := s.runTurn(ctx, spec.ID, func() (*llm.Conversation, *llm.Turn, error) {
				t, err := s.provider.ContinueWithMessage(ctx, conversation, "No further tools will help; return your final selection now as the JSON array.")
				return conversation, t, err
			}, &totalCost)
			if err != nil {
				return nil, totalCost, err
			}
			turn = finalTurn
			break
		}
	}

	tracks, parseErr := s.finalizeSelection(ctx, spec, daypart, deps, turn.OutputText, &conversation, &totalCost)
	if parseErr != nil {
		return nil, totalCost, parseErr
	}
	return tracks, totalCost, nil
}

// runTurn wraps a single Start/Continue call: once the call returns, it
// converts the reported usage to cost, reserves that cost and records it
// (no estimate is reserved before the call), and logs an llm_turn decision
// entry for every turn attempted, win or lose, so
// sum(decision_log.cost_incurred) never drifts from what the budget manager
// actually recorded (spec.md §4.4/§9's cost invariant holds across relaxation
// attempts, not only the winning one).
func (s *Selector) runTurn(ctx context.Context, playlistID string, call func() (*llm.Conversation, *llm.Turn, error), totalCost *model.Money) (*llm.Conversation, *llm.Turn, error) {
	start := time.Now()
	conversation, turn, err := call()
	if err != nil {
		if ctx.Err() != nil {
			s.logError(playlistID, "overall selection timeout reached mid-turn", time.Since(start))
			return nil, nil, errs.New(errs.KindCancellationTimeout, err, "selector: overall timeout reached for playlist %s", playlistID)
		}
		s.logError(playlistID, fmt.Sprintf("llm turn failed: %v", err), time.Since(start))
		return nil, nil, errs.New(errs.KindLLMError, err, "selector: llm turn")
	}

	cost := observability.CalculateCost(s.model, turn.Usage)
	elapsed := time.Since(start)
	s.logTurnCost(playlistID, cost, turn.Usage, elapsed, len(turn.ToolCalls))

	if s.sentry != nil {
		s.sentry.RecordSelectionTurn(ctx, s.model, turn.Usage.InputTokens, turn.Usage.OutputTokens, len(turn.ToolCalls))
	}
	logger.LogGenerationRequest(ctx, s.model, elapsed, map[string]interface{}{
		"total_tokens":  turn.Usage.InputTokens + turn.Usage.OutputTokens,
		"input_tokens":  turn.Usage.InputTokens,
		"output_tokens": turn.Usage.OutputTokens,
	}, logger.Fields{"playlist_id": playlistID})

	if !s.budgetMgr.Reserve(cost) {
		s.logError(playlistID, "budget exceeded reserving LLM turn cost", elapsed)
		return nil, nil, errs.New(errs.KindBudgetExceeded, nil, "selector: reserving %s for llm turn", cost.String())
	}
	s.budgetMgr.Record(cost, "llm turn")
	*totalCost = totalCost.Add(cost)

	return conversation, turn, nil
}

// logTurnCost records one LLM turn's cost as its own decision entry,
// independent of whether Select ultimately succeeds; this is what lets the
// decision log carry the full spend of a relaxation ladder's failed attempts
// as well as its winning one.
func (s *Selector) logTurnCost(playlistID string, cost model.Money, usage llm.Usage, elapsed time.Duration, toolCallCount int) {
	if s.decisions == nil {
		return
	}
	_ = s.decisions.Append(model.DecisionLogEntry{
		ID:         uuid.NewString(),
		PlaylistID: playlistID,
		Type:       model.DecisionTypeLLMTurn,
		Timestamp:  time.Now().UTC(),
		DecisionData: map[string]interface{}{
			"model":         s.model,
			"input_tokens":  usage.InputTokens,
			"output_tokens": usage.OutputTokens,
			"tool_calls":    toolCallCount,
		},
		CostIncurred:    cost,
		ExecutionTimeMs: elapsed.Milliseconds(),
	})
}

// executeToolWithRetry runs one tool call with a per-call timeout and up to
// toolRetries retries with backoff, per spec.md §4.5. It returns the JSON
// payload to feed back to the model (a result, or a structured error object
// the model can react to) and the count of track ids in the result not
// already seen this conversation.
func (s *Selector) executeToolWithRetry(ctx context.Context, deps *toolDeps, call llm.ToolCall, seen map[string]bool) (string, int) {
	handler, ok := handlerFor(toolSpecs(), call.Name)
	if !ok {
		return toolErrorPayload(fmt.Errorf("unknown tool %q", call.Name)), 0
	}

	var lastErr error
	for attempt := 0; attempt <= s.toolRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * 500 * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return toolErrorPayload(ctx.Err()), 0
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, s.toolTimeout)
		result, err := handler(callCtx, deps, json.RawMessage(call.Arguments))
		cancel()

		if err == nil {
			payload, marshalErr := json.Marshal(result)
			if marshalErr != nil {
				return toolErrorPayload(marshalErr), 0
			}
			return string(payload), countNewTrackIDs(result, seen)
		}

		lastErr = err
		kind, _ := errs.KindOf(err)
		if kind == errs.KindAuthFailure || kind == errs.KindNotFound {
			break // fatal or per-track skip: retrying will not help
		}
	}

	return toolErrorPayload(lastErr), 0
}

func countNewTrackIDs(result any, seen map[string]bool) int {
	tracks, ok := result.([]model.LibraryTrack)
	if !ok {
		return 0
	}
	newCount := 0
	for _, t := range tracks {
		if !seen[t.TrackID] {
			seen[t.TrackID] = true
			newCount++
		}
	}
	return newCount
}

func toolErrorPayload(err error) string {
	payload, _ := json.Marshal(map[string]string{"error": err.Error()})
	return string(payload)
}

// finalizeSelection parses the model's terminal JSON array, retrying once
// with a corrective message on malformed output, then validates each track
// against the criteria and orders the survivors.
func (s *Selector) finalizeSelection(ctx context.Context, spec model.PlaylistSpecification, daypart *model.DaypartSpecification, deps *toolDeps, outputText string, conversation **llm.Conversation, totalCost *model.Money) ([]model.SelectedTrack, error) {
	selections, err := parseSelections(outputText)
	if err != nil {
		correctedTurn, corrErr := s.runTurn(ctx, spec.ID, func() (*llm.Conversation, *llm.Turn, error) {
			t, e := s.provider.ContinueWithMessage(ctx, *conversation, correctiveMessage)
			return *conversation, t, e
		}, totalCost)
		if corrErr != nil {
			return nil, corrErr
		}
		selections, err = parseSelections(correctedTurn.OutputText)
		if err != nil {
			s.logError(spec.ID, "two consecutive malformed terminal outputs", 0)
			return nil, errs.New(errs.KindLLMError, err, "selector: malformed output after corrective retry")
		}
	}

	tracks := s.validateSelections(ctx, deps, selections, spec.Criteria)
	if len(tracks) < spec.TargetMin {
		return nil, errs.New(errs.KindInsufficientTracks, nil, "selector: %d tracks validated, need %d", len(tracks), spec.TargetMin)
	}

	ordered := orderTracks(tracks, daypart.BPMRanges)
	s.logTrackSelections(spec.ID, ordered)
	return ordered, nil
}

func parseSelections(text string) ([]llmSelection, error) {
	trimmed := strings.TrimSpace(text)
	var selections []llmSelection
	if err := json.Unmarshal([]byte(trimmed), &selections); err != nil {
		return nil, fmt.Errorf("selector: parsing terminal output: %w", err)
	}
	return selections, nil
}

// validateSelections looks each selected track id up against the library
// accessor, scores it against the criteria, and drops tracks failing ≥3 of
// the five per-track checks (spec.md §4.5).
func (s *Selector) validateSelections(ctx context.Context, deps *toolDeps, selections []llmSelection, criteria model.TrackSelectionCriteria) []model.SelectedTrack {
	out := make([]model.SelectedTrack, 0, len(selections))
	for _, sel := range selections {
		libTrack, err := s.accessor.TrackInfo(ctx, sel.TrackID)
		if err != nil {
			kind, _ := errs.KindOf(err)
			if kind == errs.KindNotFound {
				continue // per-track skip
			}
			continue
		}
		libTrack = s.enricher.Enrich(ctx, libTrack, deps.playlistID)

		selected := model.FromLibraryTrack(libTrack)
		selected.SelectionReasoning = sel.Reason
		if selected.Title == "" {
			selected.Title = sel.Title
		}
		if selected.Artist == "" {
			selected.Artist = sel.Artist
		}

		failures := scoreTrack(selected, criteria)
		selected.ValidationStatus = statusForFailures(failures)
		if selected.ValidationStatus == model.StatusFail {
			continue
		}

		out = append(out, selected)
	}
	return out
}

// logTrackSelections records one audit entry per surviving track. Cost is
// not attributed here: every LLM turn's cost is already logged in full by
// logTurnCost as it is incurred, so attributing it again here against only
// the winning attempt's tracks would double-count it against
// Playlist.CostActual, which sums every attempt including failed ones.
func (s *Selector) logTrackSelections(playlistID string, tracks []model.SelectedTrack) {
	if s.decisions == nil || len(tracks) == 0 {
		return
	}
	for _, t := range tracks {
		_ = s.decisions.Append(model.DecisionLogEntry{
			ID:         uuid.NewString(),
			PlaylistID: playlistID,
			Type:       model.DecisionTypeTrackSelection,
			Timestamp:  time.Now().UTC(),
			DecisionData: map[string]interface{}{
				"track_id":          t.TrackID,
				"title":             t.Title,
				"artist":            t.Artist,
				"reason":            t.SelectionReasoning,
				"validation_status": t.ValidationStatus,
				"position":          t.PositionInPlaylist,
			},
			CostIncurred: model.Zero,
		})
	}
}

func (s *Selector) logError(playlistID, message string, elapsed time.Duration) {
	if s.decisions == nil {
		return
	}
	_ = s.decisions.Append(model.DecisionLogEntry{
		ID:         uuid.NewString(),
		PlaylistID: playlistID,
		Type:       model.DecisionTypeError,
		Timestamp:  time.Now().UTC(),
		DecisionData: map[string]interface{}{
			"message": message,
		},
		CostIncurred:    model.Zero,
		ExecutionTimeMs: elapsed.Milliseconds(),
	})
}

// timeoutResult is reached only while the model is still mid tool-call (no
// terminal answer parsed yet, so nothing has actually been confirmed); a
// terminal turn already in hand is finalized and returned by Select before
// this is ever called (spec.md §4.5/§5's partial-result requirement).
func (s *Selector) timeoutResult(spec model.PlaylistSpecification, daypart *model.DaypartSpecification, deps *toolDeps, totalCost model.Money) ([]model.SelectedTrack, model.Money, error) {
	s.logError(spec.ID, "overall selection timeout reached", 0)
	return nil, totalCost, errs.New(errs.KindCancellationTimeout, nil, "selector: overall timeout reached for playlist %s", spec.ID)
}

func copyExcluded(src map[string]bool) map[string]bool {
	out := make(map[string]bool, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
