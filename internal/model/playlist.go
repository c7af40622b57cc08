package model

import "time"

// PlaylistSpecification is derived from a daypart and a generation date.
type PlaylistSpecification struct {
	ID              string
	Name            string
	SourceDaypartID string
	TargetMin       int
	TargetMax       int
	Criteria        TrackSelectionCriteria
	CreatedAt       time.Time
	CostBudget      *Money // nil if unset
}

// NewPlaylistSpecification derives the playlist's name and track-count
// targets from the daypart per spec.md §3.
func NewPlaylistSpecification(id string, daypart *DaypartSpecification, generationDate time.Time, criteria TrackSelectionCriteria, costBudget *Money) PlaylistSpecification {
	return PlaylistSpecification{
		ID:              id,
		Name:            daypart.DisplayName + " - " + generationDate.Format("2006-01-02"),
		SourceDaypartID: daypart.ID,
		TargetMin:       int(daypart.DurationHours * float64(daypart.TracksPerHourMin)),
		TargetMax:       int(daypart.DurationHours * float64(daypart.TracksPerHourMax)),
		Criteria:        criteria,
		CreatedAt:       generationDate,
		CostBudget:      costBudget,
	}
}

// Playlist is the finished, validated output of one daypart's selection.
type Playlist struct {
	ID                    string
	Name                  string
	SpecID                string
	Tracks                []SelectedTrack
	Validation            ValidationResult
	CreatedAt             time.Time
	CostActual            Money
	GenerationTimeSeconds float64
	Relaxations           []ConstraintRelaxation
}

// FractionAustralian returns the fraction of tracks with IsAustralian set,
// or 0 for an empty playlist.
func (p *Playlist) FractionAustralian() float64 {
	if len(p.Tracks) == 0 {
		return 0
	}
	count := 0
	for _, t := range p.Tracks {
		if t.IsAustralian {
			count++
		}
	}
	return float64(count) / float64(len(p.Tracks))
}
