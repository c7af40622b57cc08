package enrichment

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/dhowden/tag"
	"github.com/troykelly/playlistgen/internal/playlistcore/errs"
)

// AudioAnalyser extracts BPM from a track's audio file when web enrichment
// cannot supply it. The default implementation reads embedded tags only; it
// never estimates a tempo, per spec.md §4.2 ("if no tag is present, leave it
// null rather than guessing").
type AudioAnalyser interface {
	AnalyseBPM(ctx context.Context, audioPath string) (int, error)
}

// audioAnalysisTimeout bounds a single analysis per spec.md §4.2.
const audioAnalysisTimeout = 30 * time.Second

// TagAudioAnalyser reads BPM straight from the audio file's own tags
// (TBPM/BPM/tempo), the way stojg-playlist-sorter's GetTrackMetadata does.
type TagAudioAnalyser struct{}

func NewTagAudioAnalyser() *TagAudioAnalyser {
	return &TagAudioAnalyser{}
}

// AnalyseBPM opens audioPath and looks for a BPM-shaped tag. Returns
// errs.EnrichmentUnavailable if no tag is present or the file cannot be
// read, never a guessed value.
func (a *TagAudioAnalyser) AnalyseBPM(ctx context.Context, audioPath string) (int, error) {
	done := make(chan struct{})
	var bpm int
	var err error

	go func() {
		defer close(done)
		bpm, err = a.readBPMTag(audioPath)
	}()

	select {
	case <-done:
		return bpm, err
	case <-time.After(audioAnalysisTimeout):
		return 0, errs.New(errs.KindEnrichmentUnavailable, nil, "audio analysis of %s exceeded %s", audioPath, audioAnalysisTimeout)
	case <-ctx.Done():
		return 0, errs.New(errs.KindEnrichmentUnavailable, ctx.Err(), "audio analysis of %s cancelled", audioPath)
	}
}

func (a *TagAudioAnalyser) readBPMTag(audioPath string) (int, error) {
	file, err := os.Open(audioPath)
	if err != nil {
		return 0, errs.New(errs.KindEnrichmentUnavailable, err, "opening %s", audioPath)
	}
	defer file.Close()

	metadata, err := tag.ReadFrom(file)
	if err != nil {
		return 0, errs.New(errs.KindEnrichmentUnavailable, err, "reading tags from %s", audioPath)
	}

	raw := metadata.Raw()
	if raw == nil {
		return 0, errs.New(errs.KindEnrichmentUnavailable, nil, "%s has no BPM tag", audioPath)
	}

	for _, key := range []string{"TBPM", "BPM", "bpm", "tempo"} {
		val, exists := raw[key]
		if !exists {
			continue
		}
		if bpm, ok := coerceToBPM(val); ok && bpm > 0 {
			return bpm, nil
		}
	}
	return 0, errs.New(errs.KindEnrichmentUnavailable, nil, "%s has no usable BPM tag", audioPath)
}

func coerceToBPM(val interface{}) (int, bool) {
	switch v := val.(type) {
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		return int(f + 0.5), true
	case int:
		return v, true
	case float64:
		return int(v + 0.5), true
	default:
		return 0, false
	}
}
