package model

import "time"

// KnownTracksCache is a TTL-gated snapshot of "what tracks already exist" in
// the library accessor, used to avoid re-querying the same listing within a
// batch. See internal/libraryaccess.KnownTracksCache for the refreshing
// wrapper; this type is the plain data the spec's data model names.
type KnownTracksCache struct {
	Tracks    []LibraryTrack
	FetchedAt time.Time
	TTL       time.Duration
}

// Expired reports whether now - FetchedAt > TTL.
func (c KnownTracksCache) Expired(now time.Time) bool {
	return now.Sub(c.FetchedAt) > c.TTL
}

// EnrichedMetadata is one cache record in the permanent on-disk metadata
// cache, keyed externally by a content hash of (artist, title).
type EnrichedMetadata struct {
	BPM       *int      `json:"bpm,omitempty"`
	Genre     *string   `json:"genre,omitempty"`
	Year      *int      `json:"year,omitempty"`
	Country   *string   `json:"country,omitempty"`
	Source    string    `json:"source"`
	FetchedAt time.Time `json:"fetched_at"`
}
