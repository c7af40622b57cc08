package batch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/troykelly/playlistgen/internal/model"
)

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// OutputWriter emits one .m3u8 plus a sidecar .json per playlist, per
// spec.md §6, grounded on harmoniq-maestro's createM3UPlaylist writer style
// extended to carry duration/artist EXTINF fields and explicit position
// ordering.
type OutputWriter struct{}

func NewOutputWriter() *OutputWriter {
	return &OutputWriter{}
}

// Write creates <outputDir>/<sanitized playlist name>.m3u8 and the matching
// .json sidecar.
func (w *OutputWriter) Write(outputDir string, playlist model.Playlist) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("batch: creating output dir %s: %w", outputDir, err)
	}

	basename := sanitizeFilename(playlist.Name)
	if basename == "" {
		basename = playlist.ID
	}

	if err := w.writeM3U8(filepath.Join(outputDir, basename+".m3u8"), playlist); err != nil {
		return err
	}
	return w.writeSidecar(filepath.Join(outputDir, basename+".json"), playlist)
}

func (w *OutputWriter) writeM3U8(path string, playlist model.Playlist) error {
	var sb strings.Builder
	sb.WriteString("#EXTM3U\n")
	fmt.Fprintf(&sb, "#PLAYLIST:%s\n", playlist.Name)

	tracks := sortedByPosition(playlist.Tracks)
	for _, t := range tracks {
		fmt.Fprintf(&sb, "#EXTINF:%d,%s - %s\n", t.DurationSeconds, t.Artist, t.Title)
		sb.WriteString(t.TrackID + "\n")
	}

	return os.WriteFile(path, []byte(sb.String()), 0o644)
}

type sidecarTrack struct {
	TrackID          string `json:"track_id"`
	Position         int    `json:"position"`
	Title            string `json:"title"`
	Artist           string `json:"artist"`
	Album            string `json:"album"`
	DurationSeconds  int    `json:"duration_seconds"`
	SelectionReason  string `json:"selection_reason"`
}

type sidecarValidation struct {
	Status               string   `json:"status"`
	CompliancePercentage float64  `json:"compliance_percentage"`
	GapAnalysis          []string `json:"gap_analysis"`
}

type sidecarPlaylist struct {
	ID                    string            `json:"id"`
	Name                  string            `json:"name"`
	SpecID                string            `json:"source_spec_id"`
	Tracks                []sidecarTrack    `json:"tracks"`
	Validation            sidecarValidation `json:"validation"`
	CostActual            string            `json:"cost_actual"`
	GenerationTimeSeconds float64           `json:"generation_time_seconds"`
	CreatedAt             string            `json:"created_at"`
}

func (w *OutputWriter) writeSidecar(path string, playlist model.Playlist) error {
	tracks := sortedByPosition(playlist.Tracks)
	out := sidecarPlaylist{
		ID:     playlist.ID,
		Name:   playlist.Name,
		SpecID: playlist.SpecID,
		Tracks: make([]sidecarTrack, len(tracks)),
		Validation: sidecarValidation{
			Status:               playlist.Validation.OverallStatus,
			CompliancePercentage: playlist.Validation.CompliancePercentage,
			GapAnalysis:          playlist.Validation.GapAnalysis,
		},
		CostActual:            playlist.CostActual.String(),
		GenerationTimeSeconds: playlist.GenerationTimeSeconds,
		CreatedAt:             playlist.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
	for i, t := range tracks {
		out.Tracks[i] = sidecarTrack{
			TrackID:         t.TrackID,
			Position:        t.PositionInPlaylist,
			Title:           t.Title,
			Artist:          t.Artist,
			Album:           t.Album,
			DurationSeconds: t.DurationSeconds,
			SelectionReason: t.SelectionReasoning,
		}
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("batch: marshalling sidecar for %s: %w", playlist.ID, err)
	}
	return os.WriteFile(path, data, 0o644)
}

func sortedByPosition(tracks []model.SelectedTrack) []model.SelectedTrack {
	out := append([]model.SelectedTrack(nil), tracks...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].PositionInPlaylist < out[j-1].PositionInPlaylist; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

func sanitizeFilename(name string) string {
	return strings.Trim(unsafeFilenameChars.ReplaceAllString(name, "_"), "_")
}
