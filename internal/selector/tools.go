package selector

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/troykelly/playlistgen/internal/enrichment"
	"github.com/troykelly/playlistgen/internal/libraryaccess"
	"github.com/troykelly/playlistgen/internal/llm"
	"github.com/troykelly/playlistgen/internal/model"
)

// toolDeps is the collaborator set each tool handler dispatches against.
// excluded carries the cross-playlist no-repeat set (spec.md §4.8); tool
// handlers filter it out of every result so the model never sees a track
// already placed earlier in the batch.
type toolDeps struct {
	accessor libraryaccess.Accessor
	enricher *enrichment.Enricher
	playlistID string
	excluded map[string]bool
}

type toolHandler func(ctx context.Context, deps *toolDeps, args json.RawMessage) (any, error)

// toolSpec pairs one entry of spec.md §4.5's closed tool set with its JSON
// schema and local handler; this is the "closed enum, not reflection" shape
// the error-handling design calls for.
type toolSpec struct {
	name        string
	description string
	parameters  map[string]any
	handler     toolHandler
}

func toolSpecs() []toolSpec {
	return []toolSpec{
		{
			name:        "search_tracks",
			description: "Keyword/filter search across the library. Returns up to 100 tracks with metadata.",
			parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query":   map[string]any{"type": "string", "description": "free-text search query"},
					"filters": map[string]any{"type": "object", "description": "optional field filters (e.g. genre, year)"},
				},
				"required":             []string{"query"},
				"additionalProperties": false,
			},
			handler: handleSearchTracks,
		},
		{
			name:        "get_available_genres",
			description: "List the library's genres with track counts.",
			parameters: map[string]any{
				"type":                 "object",
				"properties":           map[string]any{},
				"additionalProperties": false,
			},
			handler: handleGetAvailableGenres,
		},
		{
			name:        "get_tracks_by_genre",
			description: "List tracks in a single genre, up to the given limit (max 100).",
			parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"genre": map[string]any{"type": "string"},
					"limit": map[string]any{"type": "integer"},
				},
				"required":             []string{"genre"},
				"additionalProperties": false,
			},
			handler: handleGetTracksByGenre,
		},
		{
			name:        "get_tracks_by_era",
			description: "List tracks released between min_year and max_year inclusive.",
			parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"min_year": map[string]any{"type": "integer"},
					"max_year": map[string]any{"type": "integer"},
				},
				"required":             []string{"min_year", "max_year"},
				"additionalProperties": false,
			},
			handler: handleGetTracksByEra,
		},
		{
			name:        "get_track_info",
			description: "Fetch full metadata for one track id, including any available enrichment (BPM, country).",
			parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"track_id": map[string]any{"type": "string"},
				},
				"required":             []string{"track_id"},
				"additionalProperties": false,
			},
			handler: handleGetTrackInfo,
		},
		{
			name:        "get_australian_tracks",
			description: "List tracks tagged as Australian content.",
			parameters: map[string]any{
				"type":                 "object",
				"properties":           map[string]any{},
				"additionalProperties": false,
			},
			handler: handleGetAustralianTracks,
		},
	}
}

func toLLMToolSpecs(specs []toolSpec) []llm.ToolSpec {
	out := make([]llm.ToolSpec, 0, len(specs))
	for _, s := range specs {
		out = append(out, llm.ToolSpec{Name: s.name, Description: s.description, Parameters: s.parameters})
	}
	return out
}

func handlerFor(specs []toolSpec, name string) (toolHandler, bool) {
	for _, s := range specs {
		if s.name == name {
			return s.handler, true
		}
	}
	return nil, false
}

func (d *toolDeps) filterExcluded(tracks []model.LibraryTrack) []model.LibraryTrack {
	if len(d.excluded) == 0 {
		return tracks
	}
	out := make([]model.LibraryTrack, 0, len(tracks))
	for _, t := range tracks {
		if !d.excluded[t.TrackID] {
			out = append(out, t)
		}
	}
	return out
}

func (d *toolDeps) enrich(ctx context.Context, tracks []model.LibraryTrack) []model.LibraryTrack {
	out := make([]model.LibraryTrack, len(tracks))
	for i, t := range tracks {
		out[i] = d.enricher.Enrich(ctx, t, d.playlistID)
	}
	return out
}

type searchTracksArgs struct {
	Query   string            `json:"query"`
	Filters map[string]string `json:"filters"`
}

func handleSearchTracks(ctx context.Context, deps *toolDeps, raw json.RawMessage) (any, error) {
	var args searchTracksArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("search_tracks: %w", err)
	}
	tracks, err := deps.accessor.SearchTracks(ctx, args.Query, args.Filters)
	if err != nil {
		return nil, err
	}
	return deps.enrich(ctx, deps.filterExcluded(tracks)), nil
}

func handleGetAvailableGenres(ctx context.Context, deps *toolDeps, _ json.RawMessage) (any, error) {
	return deps.accessor.AvailableGenres(ctx)
}

type tracksByGenreArgs struct {
	Genre string `json:"genre"`
	Limit int    `json:"limit"`
}

func handleGetTracksByGenre(ctx context.Context, deps *toolDeps, raw json.RawMessage) (any, error) {
	var args tracksByGenreArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("get_tracks_by_genre: %w", err)
	}
	tracks, err := deps.accessor.TracksByGenre(ctx, args.Genre, args.Limit)
	if err != nil {
		return nil, err
	}
	return deps.enrich(ctx, deps.filterExcluded(tracks)), nil
}

type tracksByEraArgs struct {
	MinYear int `json:"min_year"`
	MaxYear int `json:"max_year"`
}

func handleGetTracksByEra(ctx context.Context, deps *toolDeps, raw json.RawMessage) (any, error) {
	var args tracksByEraArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("get_tracks_by_era: %w", err)
	}
	tracks, err := deps.accessor.TracksByEra(ctx, args.MinYear, args.MaxYear)
	if err != nil {
		return nil, err
	}
	return deps.enrich(ctx, deps.filterExcluded(tracks)), nil
}

type trackInfoArgs struct {
	TrackID string `json:"track_id"`
}

func handleGetTrackInfo(ctx context.Context, deps *toolDeps, raw json.RawMessage) (any, error) {
	var args trackInfoArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("get_track_info: %w", err)
	}
	track, err := deps.accessor.TrackInfo(ctx, args.TrackID)
	if err != nil {
		return nil, err
	}
	return deps.enricher.Enrich(ctx, track, deps.playlistID), nil
}

func handleGetAustralianTracks(ctx context.Context, deps *toolDeps, _ json.RawMessage) (any, error) {
	tracks, err := deps.accessor.AustralianTracks(ctx)
	if err != nil {
		return nil, err
	}
	return deps.enrich(ctx, deps.filterExcluded(tracks)), nil
}
