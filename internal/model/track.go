package model

// Metadata source tags per spec.md §3.
const (
	MetadataSourceLibrary        = "library"
	MetadataSourceWebEnrichment  = "web_enrichment"
	MetadataSourceAudioAnalysis  = "audio_analysis"
)

// Validation status per spec.md §3.
const (
	StatusPass    = "PASS"
	StatusWarning = "WARNING"
	StatusFail    = "FAIL"
)

// LibraryTrack is the canonical metadata view the library accessor and
// enricher agree on; it is the unit the selector's tools return and the
// enricher fills in.
type LibraryTrack struct {
	TrackID          string
	Title            string
	Artist           string
	Album            string
	DurationSeconds  int
	IsAustralian     bool
	RotationCategory string
	Genre            *string
	BPM              *int
	Year             *int
	Country          *string
	AudioPath        string // local path the audio analyser can read, if any
	MetadataSource   string
}

// SelectedTrack is a LibraryTrack placed into a Playlist at a given position
// with the LLM's reasoning and a per-track validation status.
type SelectedTrack struct {
	TrackID             string
	Title               string
	Artist              string
	Album               string
	DurationSeconds     int
	IsAustralian        bool
	RotationCategory    string
	PositionInPlaylist  int
	SelectionReasoning  string
	ValidationStatus    string
	BPM                 *int
	Genre               *string
	Year                *int
	Country             *string
	MetadataSource      string
}

// FromLibraryTrack copies the canonical fields of t into a SelectedTrack,
// leaving the position/reasoning/status for the selector to fill in.
func FromLibraryTrack(t LibraryTrack) SelectedTrack {
	return SelectedTrack{
		TrackID:          t.TrackID,
		Title:            t.Title,
		Artist:           t.Artist,
		Album:            t.Album,
		DurationSeconds:  t.DurationSeconds,
		IsAustralian:     t.IsAustralian,
		RotationCategory: t.RotationCategory,
		BPM:              t.BPM,
		Genre:            t.Genre,
		Year:             t.Year,
		Country:          t.Country,
		MetadataSource:   t.MetadataSource,
	}
}
