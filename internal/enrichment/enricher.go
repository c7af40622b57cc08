// Package enrichment fills in missing BPM/genre/year/country for tracks the
// library accessor returns incomplete, per spec.md §4.2.
package enrichment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/troykelly/playlistgen/internal/model"
)

// DecisionRecorder is the subset of decisionlog.Logger the enricher needs;
// kept as an interface so tests can assert on emitted entries without a real
// file.
type DecisionRecorder interface {
	Append(entry model.DecisionLogEntry) error
}

// Enricher orchestrates cache lookup, web enrichment, and local audio
// analysis for one track at a time, per spec.md §4.2's algorithm.
type Enricher struct {
	cache    *Cache
	web      WebEnrichmentSource
	analyser AudioAnalyser
	log      DecisionRecorder
}

func New(cache *Cache, web WebEnrichmentSource, analyser AudioAnalyser, log DecisionRecorder) *Enricher {
	return &Enricher{cache: cache, web: web, analyser: analyser, log: log}
}

// Enrich fills in t.BPM/Genre/Year/Country where missing, never raising on a
// single-track failure; unreachable fields are simply left nil. playlistID
// is only used to attribute the metadata_retrieval decision entry.
func (e *Enricher) Enrich(ctx context.Context, t model.LibraryTrack, playlistID string) model.LibraryTrack {
	if t.BPM != nil && t.Genre != nil && t.Year != nil && t.Country != nil {
		return t
	}

	key := CacheKey(t.Artist, t.Title)

	if cached, ok, err := e.cache.Get(key); err == nil && ok {
		e.applyCached(&t, cached)
		return t
	}

	start := time.Now()
	source := model.MetadataSourceLibrary
	var genre, country *string
	var year, bpm *int

	if e.web != nil {
		res, err := e.web.Lookup(ctx, t.Artist, t.Title)
		if err == nil {
			genre, year, country = res.Genre, res.Year, res.Country
			if res.BPM != nil {
				bpm = res.BPM
			}
			source = model.MetadataSourceWebEnrichment
		}
	}

	if bpm == nil && t.BPM == nil && e.analyser != nil && t.AudioPath != "" {
		analysed, err := e.analyser.AnalyseBPM(ctx, t.AudioPath)
		if err == nil {
			bpm = &analysed
			source = model.MetadataSourceAudioAnalysis
		}
	}

	if t.BPM == nil {
		t.BPM = bpm
	}
	if t.Genre == nil {
		t.Genre = genre
	}
	if t.Year == nil {
		t.Year = year
	}
	if t.Country == nil {
		t.Country = country
	}

	rec := model.EnrichedMetadata{BPM: t.BPM, Genre: t.Genre, Year: t.Year, Country: t.Country, Source: source, FetchedAt: time.Now().UTC()}
	_ = e.cache.Put(key, rec) // best-effort: a cache write failure never fails enrichment

	e.logMetadataRetrieval(playlistID, source, time.Since(start))

	return t
}

func (e *Enricher) applyCached(t *model.LibraryTrack, cached model.EnrichedMetadata) {
	if t.BPM == nil {
		t.BPM = cached.BPM
	}
	if t.Genre == nil {
		t.Genre = cached.Genre
	}
	if t.Year == nil {
		t.Year = cached.Year
	}
	if t.Country == nil {
		t.Country = cached.Country
	}
}

func (e *Enricher) logMetadataRetrieval(playlistID, source string, elapsed time.Duration) {
	if e.log == nil {
		return
	}
	_ = e.log.Append(model.DecisionLogEntry{
		ID:         uuid.NewString(),
		PlaylistID: playlistID,
		Type:       model.DecisionTypeMetadataRetrieval,
		Timestamp:  time.Now().UTC(),
		DecisionData: map[string]interface{}{
			"source": source,
		},
		CostIncurred:    model.Zero,
		ExecutionTimeMs: elapsed.Milliseconds(),
	})
}
