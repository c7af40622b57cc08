package prompt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/troykelly/playlistgen/internal/model"
)

func sampleDaypart(t *testing.T) *model.DaypartSpecification {
	t.Helper()
	start, err := model.NewClockTime(6, 0)
	require.NoError(t, err)
	mid, err := model.NewClockTime(8, 0)
	require.NoError(t, err)
	end, err := model.NewClockTime(10, 0)
	require.NoError(t, err)

	r1, err := model.NewBPMRange(start, mid, 90, 115)
	require.NoError(t, err)
	r2, err := model.NewBPMRange(mid, end, 110, 135)
	require.NoError(t, err)

	d, err := model.NewDaypartSpecification("weekday-morning", model.DaypartParams{
		DisplayName:      "Morning",
		ScheduleTag:      "weekday",
		TimeStart:        start,
		TimeEnd:          end,
		BPMRanges:        []model.BPMRange{r1, r2},
		GenreMix:         map[string]float64{"Alt": 0.5, "Pop": 0.5},
		EraDistribution:  map[string]float64{"Current": 0.6, "Classics": 0.4},
		MoodIncludes:     []string{"upbeat"},
		MoodExcludes:     []string{"sad"},
		TracksPerHourMin: 12,
		TracksPerHourMax: 14,
	})
	require.NoError(t, err)
	return d
}

func TestBuildSystemPromptIncludesDaypartAndTargets(t *testing.T) {
	daypart := sampleDaypart(t)
	criteria := model.DeriveCriteria(daypart, 0.30)
	spec := model.NewPlaylistSpecification("p1", daypart, time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC), criteria, nil)

	b := NewPromptBuilder(NewPromptLoader())
	prompt, err := b.BuildSystemPrompt(spec, daypart)
	require.NoError(t, err)

	assert.Contains(t, prompt, "Morning")
	assert.Contains(t, prompt, "30%")
	assert.Contains(t, prompt, "JSON")
}

func TestBuildUserPromptRendersCriteria(t *testing.T) {
	daypart := sampleDaypart(t)
	criteria := model.DeriveCriteria(daypart, 0.30)

	b := NewPromptBuilder(NewPromptLoader())
	userPrompt := b.BuildUserPrompt(daypart, criteria)

	assert.Contains(t, userPrompt, "90-115 BPM")
	assert.Contains(t, userPrompt, "110-135 BPM")
	assert.Contains(t, userPrompt, "Alt")
	assert.Contains(t, userPrompt, "upbeat")
	assert.Contains(t, userPrompt, "sad")
}
