package selector

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/troykelly/playlistgen/internal/budget"
	"github.com/troykelly/playlistgen/internal/decisionlog"
	"github.com/troykelly/playlistgen/internal/enrichment"
	"github.com/troykelly/playlistgen/internal/llm"
	"github.com/troykelly/playlistgen/internal/model"
	"github.com/troykelly/playlistgen/internal/playlistcore/errs"
	"github.com/troykelly/playlistgen/internal/prompt"
)

// fakeProvider is a selector-package-local stand-in for llm.Provider; the
// real MockProvider lives in a _test.go file in internal/llm and cannot be
// imported from here.
type fakeProvider struct {
	startFunc               func(ctx context.Context, request *llm.Request) (*llm.Conversation, *llm.Turn, error)
	continueFunc            func(ctx context.Context, conversation *llm.Conversation, results []llm.ToolResult) (*llm.Turn, error)
	continueWithMessageFunc func(ctx context.Context, conversation *llm.Conversation, message string) (*llm.Turn, error)
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Start(ctx context.Context, request *llm.Request) (*llm.Conversation, *llm.Turn, error) {
	return f.startFunc(ctx, request)
}

func (f *fakeProvider) Continue(ctx context.Context, conversation *llm.Conversation, results []llm.ToolResult) (*llm.Turn, error) {
	if f.continueFunc != nil {
		return f.continueFunc(ctx, conversation, results)
	}
	return &llm.Turn{}, nil
}

func (f *fakeProvider) ContinueWithMessage(ctx context.Context, conversation *llm.Conversation, message string) (*llm.Turn, error) {
	if f.continueWithMessageFunc != nil {
		return f.continueWithMessageFunc(ctx, conversation, message)
	}
	return &llm.Turn{}, nil
}

var _ llm.Provider = (*fakeProvider)(nil)

type fakeLibrary struct {
	tracks map[string]model.LibraryTrack
}

func newFakeLibrary(tracks ...model.LibraryTrack) *fakeLibrary {
	byID := make(map[string]model.LibraryTrack, len(tracks))
	for _, t := range tracks {
		byID[t.TrackID] = t
	}
	return &fakeLibrary{tracks: byID}
}

func (l *fakeLibrary) SearchTracks(ctx context.Context, query string, filters map[string]string) ([]model.LibraryTrack, error) {
	return l.all(), nil
}
func (l *fakeLibrary) AvailableGenres(ctx context.Context) (map[string]int, error) { return nil, nil }
func (l *fakeLibrary) TracksByGenre(ctx context.Context, genre string, limit int) ([]model.LibraryTrack, error) {
	return l.all(), nil
}
func (l *fakeLibrary) TracksByEra(ctx context.Context, minYear, maxYear int) ([]model.LibraryTrack, error) {
	return l.all(), nil
}
func (l *fakeLibrary) TrackInfo(ctx context.Context, trackID string) (model.LibraryTrack, error) {
	t, ok := l.tracks[trackID]
	if !ok {
		return model.LibraryTrack{}, errs.New(errs.KindNotFound, nil, "fakeLibrary: track %s not found", trackID)
	}
	return t, nil
}
func (l *fakeLibrary) AustralianTracks(ctx context.Context) ([]model.LibraryTrack, error) { return l.all(), nil }
func (l *fakeLibrary) AllTracks(ctx context.Context) ([]model.LibraryTrack, error)        { return l.all(), nil }

func (l *fakeLibrary) all() []model.LibraryTrack {
	out := make([]model.LibraryTrack, 0, len(l.tracks))
	for _, t := range l.tracks {
		out = append(out, t)
	}
	return out
}

func testEnricher(t *testing.T) *enrichment.Enricher {
	t.Helper()
	cache := enrichment.NewCache(filepath.Join(t.TempDir(), "enrichment.json"))
	return enrichment.New(cache, nil, nil, nil)
}

func testPrompts() *prompt.Builder {
	return prompt.NewPromptBuilder(prompt.NewPromptLoader())
}

func testDaypartAndSpec(t *testing.T) (*model.DaypartSpecification, model.PlaylistSpecification) {
	t.Helper()
	start, err := model.NewClockTime(6, 0)
	require.NoError(t, err)
	end, err := model.NewClockTime(8, 0)
	require.NoError(t, err)
	bpmRange, err := model.NewBPMRange(start, end, 90, 130)
	require.NoError(t, err)

	daypart, err := model.NewDaypartSpecification("weekday-morning", model.DaypartParams{
		DisplayName:      "Morning",
		ScheduleTag:      "weekday",
		TimeStart:        start,
		TimeEnd:          end,
		BPMRanges:        []model.BPMRange{bpmRange},
		GenreMix:         map[string]float64{"Alt": 1.0},
		EraDistribution:  map[string]float64{"Current": 1.0},
		TracksPerHourMin: 1,
		TracksPerHourMax: 2,
	})
	require.NoError(t, err)

	criteria := model.DeriveCriteria(daypart, 0.30)
	spec := model.NewPlaylistSpecification("pl-1", daypart, time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC), criteria, nil)
	spec.TargetMin = 1
	return daypart, spec
}

func newTestSelector(t *testing.T, provider llm.Provider, lib *fakeLibrary) *Selector {
	t.Helper()
	mgr := budget.New(model.MoneyFromMicros(100_000_000), budget.ModeSuggested)
	logPath := t.TempDir()
	decisions := decisionlog.New(logPath, nil)
	t.Cleanup(func() { _ = decisions.Close() })
	return New(provider, lib, testEnricher(t), mgr, decisions, testPrompts(), "gpt-4o-mini")
}

func newTestSelectorWithLog(t *testing.T, provider llm.Provider, lib *fakeLibrary) (*Selector, *decisionlog.Logger) {
	t.Helper()
	mgr := budget.New(model.MoneyFromMicros(100_000_000), budget.ModeSuggested)
	logPath := t.TempDir()
	decisions := decisionlog.New(logPath, nil)
	t.Cleanup(func() { _ = decisions.Close() })
	return New(provider, lib, testEnricher(t), mgr, decisions, testPrompts(), "gpt-4o-mini"), decisions
}

func sampleTrack(id string) model.LibraryTrack {
	bpm := 100
	year := 2024
	genre := "Alt"
	return model.LibraryTrack{
		TrackID: id, Title: "Song " + id, Artist: "Artist " + id,
		DurationSeconds: 200, BPM: &bpm, Year: &year, Genre: &genre,
	}
}

func TestSelectHappyPathParsesTerminalOutput(t *testing.T) {
	lib := newFakeLibrary(sampleTrack("t1"))
	provider := &fakeProvider{
		startFunc: func(ctx context.Context, request *llm.Request) (*llm.Conversation, *llm.Turn, error) {
			return &llm.Conversation{Model: request.Model}, &llm.Turn{
				OutputText: `[{"track_id":"t1","title":"Song t1","artist":"Artist t1","reason":"Upbeat track that fits the morning energy and tempo perfectly well"}]`,
				Usage:      llm.Usage{InputTokens: 100, OutputTokens: 20},
			}, nil
		},
	}

	daypart, spec := testDaypartAndSpec(t)
	s := newTestSelector(t, provider, lib)

	tracks, cost, err := s.Select(context.Background(), spec, daypart, nil)
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Equal(t, "t1", tracks[0].TrackID)
	assert.Equal(t, 0, tracks[0].PositionInPlaylist)
	assert.False(t, cost.IsZero())
}

func TestSelectRunsToolCallRoundTripBeforeTerminalAnswer(t *testing.T) {
	lib := newFakeLibrary(sampleTrack("t1"))
	calledContinue := false
	provider := &fakeProvider{
		startFunc: func(ctx context.Context, request *llm.Request) (*llm.Conversation, *llm.Turn, error) {
			return &llm.Conversation{Model: request.Model}, &llm.Turn{
				ToolCalls: []llm.ToolCall{{ID: "call_1", Name: "get_available_genres", Arguments: "{}"}},
				Usage:     llm.Usage{InputTokens: 50, OutputTokens: 5},
			}, nil
		},
		continueFunc: func(ctx context.Context, conversation *llm.Conversation, results []llm.ToolResult) (*llm.Turn, error) {
			calledContinue = true
			require.Len(t, results, 1)
			assert.Equal(t, "call_1", results[0].CallID)
			return &llm.Turn{
				OutputText: `[{"track_id":"t1","title":"Song t1","artist":"Artist t1","reason":"Upbeat track that fits the morning energy and tempo perfectly well"}]`,
				Usage:      llm.Usage{InputTokens: 60, OutputTokens: 10},
			}, nil
		},
	}

	daypart, spec := testDaypartAndSpec(t)
	s := newTestSelector(t, provider, lib)

	tracks, _, err := s.Select(context.Background(), spec, daypart, nil)
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.True(t, calledContinue)
}

func TestSelectCorrectiveRetrySucceeds(t *testing.T) {
	lib := newFakeLibrary(sampleTrack("t1"))
	provider := &fakeProvider{
		startFunc: func(ctx context.Context, request *llm.Request) (*llm.Conversation, *llm.Turn, error) {
			return &llm.Conversation{Model: request.Model}, &llm.Turn{
				OutputText: "here is my pick: t1 because it fits",
				Usage:      llm.Usage{InputTokens: 50, OutputTokens: 5},
			}, nil
		},
		continueWithMessageFunc: func(ctx context.Context, conversation *llm.Conversation, message string) (*llm.Turn, error) {
			assert.Equal(t, correctiveMessage, message)
			return &llm.Turn{
				OutputText: `[{"track_id":"t1","title":"Song t1","artist":"Artist t1","reason":"Upbeat track that fits the morning energy and tempo perfectly well"}]`,
				Usage:      llm.Usage{InputTokens: 40, OutputTokens: 8},
			}, nil
		},
	}

	daypart, spec := testDaypartAndSpec(t)
	s := newTestSelector(t, provider, lib)

	tracks, _, err := s.Select(context.Background(), spec, daypart, nil)
	require.NoError(t, err)
	require.Len(t, tracks, 1)
}

func TestSelectCorrectiveRetryFailsTwiceReturnsLLMError(t *testing.T) {
	lib := newFakeLibrary(sampleTrack("t1"))
	provider := &fakeProvider{
		startFunc: func(ctx context.Context, request *llm.Request) (*llm.Conversation, *llm.Turn, error) {
			return &llm.Conversation{Model: request.Model}, &llm.Turn{
				OutputText: "not json at all",
				Usage:      llm.Usage{InputTokens: 50, OutputTokens: 5},
			}, nil
		},
		continueWithMessageFunc: func(ctx context.Context, conversation *llm.Conversation, message string) (*llm.Turn, error) {
			return &llm.Turn{OutputText: "still not json", Usage: llm.Usage{InputTokens: 10, OutputTokens: 5}}, nil
		},
	}

	daypart, spec := testDaypartAndSpec(t)
	s := newTestSelector(t, provider, lib)

	_, _, err := s.Select(context.Background(), spec, daypart, nil)
	require.Error(t, err)
	kind, _ := errs.KindOf(err)
	assert.Equal(t, errs.KindLLMError, kind)
}

func TestSelectInsufficientTracksWhenTooFewSurviveScoring(t *testing.T) {
	badBPM := 200
	badTrack := sampleTrack("t1")
	badTrack.BPM = &badBPM
	badTrack.Genre = nil
	badTrack.Year = nil

	lib := newFakeLibrary(badTrack)
	provider := &fakeProvider{
		startFunc: func(ctx context.Context, request *llm.Request) (*llm.Conversation, *llm.Turn, error) {
			return &llm.Conversation{Model: request.Model}, &llm.Turn{
				OutputText: `[{"track_id":"t1","title":"Song t1","artist":"Artist t1","reason":"x"}]`,
				Usage:      llm.Usage{InputTokens: 20, OutputTokens: 5},
			}, nil
		},
	}

	daypart, spec := testDaypartAndSpec(t)
	spec.TargetMin = 1
	s := newTestSelector(t, provider, lib)

	_, _, err := s.Select(context.Background(), spec, daypart, nil)
	require.Error(t, err)
	kind, _ := errs.KindOf(err)
	assert.Equal(t, errs.KindInsufficientTracks, kind)
}

func TestSelectEarlyStopsAfterRepeatedEmptyToolResults(t *testing.T) {
	lib := newFakeLibrary(sampleTrack("t1"))
	continueCalls := 0
	finalCalled := false

	provider := &fakeProvider{
		startFunc: func(ctx context.Context, request *llm.Request) (*llm.Conversation, *llm.Turn, error) {
			return &llm.Conversation{Model: request.Model}, &llm.Turn{
				ToolCalls: []llm.ToolCall{{ID: "call_1", Name: "get_available_genres", Arguments: "{}"}},
				Usage:     llm.Usage{InputTokens: 10, OutputTokens: 5},
			}, nil
		},
		continueFunc: func(ctx context.Context, conversation *llm.Conversation, results []llm.ToolResult) (*llm.Turn, error) {
			continueCalls++
			return &llm.Turn{
				ToolCalls: []llm.ToolCall{{ID: fmt.Sprintf("call_%d", continueCalls+1), Name: "get_available_genres", Arguments: "{}"}},
				Usage:     llm.Usage{InputTokens: 10, OutputTokens: 5},
			}, nil
		},
		continueWithMessageFunc: func(ctx context.Context, conversation *llm.Conversation, message string) (*llm.Turn, error) {
			finalCalled = true
			return &llm.Turn{
				OutputText: `[{"track_id":"t1","title":"Song t1","artist":"Artist t1","reason":"Upbeat track that fits the morning energy and tempo perfectly well"}]`,
				Usage:      llm.Usage{InputTokens: 10, OutputTokens: 5},
			}, nil
		},
	}

	daypart, spec := testDaypartAndSpec(t)
	s := newTestSelector(t, provider, lib)

	tracks, _, err := s.Select(context.Background(), spec, daypart, nil)
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.True(t, finalCalled)
	assert.GreaterOrEqual(t, continueCalls, earlyStopStreak)
}

func TestSelectDecisionLogCostMatchesReturnedCostAcrossToolRoundTrip(t *testing.T) {
	lib := newFakeLibrary(sampleTrack("t1"))
	provider := &fakeProvider{
		startFunc: func(ctx context.Context, request *llm.Request) (*llm.Conversation, *llm.Turn, error) {
			return &llm.Conversation{Model: request.Model}, &llm.Turn{
				ToolCalls: []llm.ToolCall{{ID: "call_1", Name: "get_available_genres", Arguments: "{}"}},
				Usage:     llm.Usage{InputTokens: 50, OutputTokens: 5},
			}, nil
		},
		continueFunc: func(ctx context.Context, conversation *llm.Conversation, results []llm.ToolResult) (*llm.Turn, error) {
			return &llm.Turn{
				OutputText: `[{"track_id":"t1","title":"Song t1","artist":"Artist t1","reason":"Upbeat track that fits the morning energy and tempo perfectly well"}]`,
				Usage:      llm.Usage{InputTokens: 60, OutputTokens: 10},
			}, nil
		},
	}

	daypart, spec := testDaypartAndSpec(t)
	s, decisions := newTestSelectorWithLog(t, provider, lib)

	_, cost, err := s.Select(context.Background(), spec, daypart, nil)
	require.NoError(t, err)

	logged, err := decisions.CostSummary(spec.ID)
	require.NoError(t, err)
	assert.True(t, logged.Cmp(cost) == 0, "decision log cost %s must equal the cost Select returned %s", logged, cost)
}

func TestSelectReturnsTerminalAnswerDespiteExpiredOverallTimeout(t *testing.T) {
	lib := newFakeLibrary(sampleTrack("t1"))
	provider := &fakeProvider{
		startFunc: func(ctx context.Context, request *llm.Request) (*llm.Conversation, *llm.Turn, error) {
			return &llm.Conversation{Model: request.Model}, &llm.Turn{
				OutputText: `[{"track_id":"t1","title":"Song t1","artist":"Artist t1","reason":"Upbeat track that fits the morning energy and tempo perfectly well"}]`,
				Usage:      llm.Usage{InputTokens: 100, OutputTokens: 20},
			}, nil
		},
	}

	daypart, spec := testDaypartAndSpec(t)
	s := newTestSelector(t, provider, lib)
	s.overallTimeout = time.Nanosecond

	tracks, _, err := s.Select(context.Background(), spec, daypart, nil)
	require.NoError(t, err)
	require.Len(t, tracks, 1, "a terminal answer already in hand must not be discarded just because the overall deadline has since passed")
}

func TestSelectTimesOutMidToolLoopReturnsCancellationTimeout(t *testing.T) {
	lib := newFakeLibrary(sampleTrack("t1"))
	provider := &fakeProvider{
		startFunc: func(ctx context.Context, request *llm.Request) (*llm.Conversation, *llm.Turn, error) {
			return &llm.Conversation{Model: request.Model}, &llm.Turn{
				ToolCalls: []llm.ToolCall{{ID: "call_1", Name: "get_available_genres", Arguments: "{}"}},
				Usage:     llm.Usage{InputTokens: 10, OutputTokens: 5},
			}, nil
		},
		continueFunc: func(ctx context.Context, conversation *llm.Conversation, results []llm.ToolResult) (*llm.Turn, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}

	daypart, spec := testDaypartAndSpec(t)
	s := newTestSelector(t, provider, lib)
	s.overallTimeout = 20 * time.Millisecond

	tracks, _, err := s.Select(context.Background(), spec, daypart, nil)
	require.Error(t, err)
	assert.Nil(t, tracks)
	kind, _ := errs.KindOf(err)
	assert.Equal(t, errs.KindCancellationTimeout, kind)
}
