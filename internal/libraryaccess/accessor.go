// Package libraryaccess adapts an external music library (a Subsonic-
// compatible server) into the Accessor the selector's tools call, per
// spec.md §4.5/§9.
package libraryaccess

import (
	"context"

	"github.com/troykelly/playlistgen/internal/model"
)

// Accessor is the collaborator boundary spec.md §9 names: the selector's
// tools and the Known-Tracks Cache call through this interface rather than
// the Subsonic client directly, so tests can substitute an in-memory fake.
// The enricher's audio analysis fallback reads the AudioPath the accessor
// reports on each track; it does not call this interface itself.
type Accessor interface {
	SearchTracks(ctx context.Context, query string, filters map[string]string) ([]model.LibraryTrack, error)
	AvailableGenres(ctx context.Context) (map[string]int, error)
	TracksByGenre(ctx context.Context, genre string, limit int) ([]model.LibraryTrack, error)
	TracksByEra(ctx context.Context, minYear, maxYear int) ([]model.LibraryTrack, error)
	TrackInfo(ctx context.Context, trackID string) (model.LibraryTrack, error)
	AustralianTracks(ctx context.Context) ([]model.LibraryTrack, error)
	// AllTracks lists the full known catalogue; used only to refresh the
	// Known-Tracks Cache, never by the selector's tools directly.
	AllTracks(ctx context.Context) ([]model.LibraryTrack, error)
}

const (
	maxSearchResults      = 100
	maxGenreListingTracks = 100
)
