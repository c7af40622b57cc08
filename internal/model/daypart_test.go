package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func morningBPMRanges(t *testing.T) []BPMRange {
	t.Helper()
	start, err := NewClockTime(6, 0)
	require.NoError(t, err)
	mid, err := NewClockTime(7, 0)
	require.NoError(t, err)
	end, err := NewClockTime(10, 0)
	require.NoError(t, err)

	r1, err := NewBPMRange(start, mid, 90, 115)
	require.NoError(t, err)
	r2, err := NewBPMRange(mid, end, 110, 135)
	require.NoError(t, err)
	return []BPMRange{r1, r2}
}

func TestNewDaypartSpecificationHappyPath(t *testing.T) {
	start, _ := NewClockTime(6, 0)
	end, _ := NewClockTime(10, 0)

	d, err := NewDaypartSpecification("daypart-1", DaypartParams{
		DisplayName:      "Morning",
		ScheduleTag:      "weekday",
		TimeStart:        start,
		TimeEnd:          end,
		BPMRanges:        morningBPMRanges(t),
		GenreMix:         map[string]float64{"Alt": 0.25, "Electronic": 0.25, "Pop": 0.25, "Global": 0.15, "Jazz": 0.10},
		EraDistribution:  map[string]float64{"Current": 0.40, "Recent": 0.35, "Classics": 0.25},
		TracksPerHourMin: 12,
		TracksPerHourMax: 12,
	})

	require.NoError(t, err)
	assert.Equal(t, 4.0, d.DurationHours)
	assert.Len(t, d.BPMRanges, 2)
}

func TestNewDaypartSpecificationRejectsMidnightCrossing(t *testing.T) {
	start, _ := NewClockTime(23, 0)
	end, _ := NewClockTime(1, 0) // numerically before start

	_, err := NewDaypartSpecification("daypart-2", DaypartParams{
		DisplayName:      "Overnight",
		TimeStart:        start,
		TimeEnd:          end,
		BPMRanges:        morningBPMRanges(t),
		GenreMix:         map[string]float64{"Alt": 1.0},
		EraDistribution:  map[string]float64{"Current": 1.0},
		TracksPerHourMin: 1,
		TracksPerHourMax: 1,
	})
	assert.Error(t, err)
}

func TestValidateFractionSumBoundaries(t *testing.T) {
	assert.NoError(t, validateFractionSum(map[string]float64{"a": 0.99}))
	assert.NoError(t, validateFractionSum(map[string]float64{"a": 1.01}))
	assert.Error(t, validateFractionSum(map[string]float64{"a": 0.98}))
	assert.Error(t, validateFractionSum(map[string]float64{"a": 1.02}))
}

func TestBPMRangeContainsBoundaryInclusive(t *testing.T) {
	r, err := NewBPMRange(ClockTime(0), ClockTime(60), 90, 115)
	require.NoError(t, err)
	assert.True(t, r.Contains(90))
	assert.True(t, r.Contains(115))
	assert.False(t, r.Contains(89))
	assert.False(t, r.Contains(116))
}

func TestValidateBPMCoverageRejectsGap(t *testing.T) {
	start, _ := NewClockTime(6, 0)
	mid, _ := NewClockTime(7, 0)
	gapStart, _ := NewClockTime(7, 30)
	end, _ := NewClockTime(10, 0)

	r1, _ := NewBPMRange(start, mid, 90, 115)
	r2, _ := NewBPMRange(gapStart, end, 110, 135)

	err := validateBPMCoverage(start, end, []BPMRange{r1, r2})
	assert.Error(t, err)
}
