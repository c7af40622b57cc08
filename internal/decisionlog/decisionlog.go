// Package decisionlog implements the append-only JSONL audit trail per
// spec.md §4.4: one file per playlist, synchronous, fsync'ed, never rewritten.
package decisionlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/troykelly/playlistgen/internal/logger"
	"github.com/troykelly/playlistgen/internal/model"
)

// TraceExporter mirrors decision entries to an external trace system
// (internal/observability's Langfuse-backed exporter implements this). It
// must never block or fail the durable on-disk append.
type TraceExporter interface {
	Mirror(entry model.DecisionLogEntry)
}

// Logger appends decision entries for a batch's playlists under baseDir
// (conventionally "logs/decisions").
type Logger struct {
	baseDir string
	tracer  TraceExporter

	mu    sync.Mutex
	files map[string]*os.File
}

// New creates a Logger writing under baseDir/logs/decisions. tracer may be
// nil, in which case mirroring is skipped.
func New(baseDir string, tracer TraceExporter) *Logger {
	return &Logger{
		baseDir: filepath.Join(baseDir, "logs", "decisions"),
		tracer:  tracer,
		files:   make(map[string]*os.File),
	}
}

// Append writes entry as one JSON line, fsync's it, and best-effort mirrors
// it to the trace exporter. The on-disk append is the durable source of
// truth; mirroring failures are logged but never returned as an error.
func (l *Logger) Append(entry model.DecisionLogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := l.fileFor(entry.PlaylistID)
	if err != nil {
		return err
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("decisionlog: marshalling entry %s: %w", entry.ID, err)
	}
	data = append(data, '\n')

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("decisionlog: writing entry %s: %w", entry.ID, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("decisionlog: fsyncing entry %s: %w", entry.ID, err)
	}

	if l.tracer != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Warn("decision trace mirror panicked, ignoring", logger.Fields{"playlist_id": entry.PlaylistID, "recover": r})
				}
			}()
			l.tracer.Mirror(entry)
		}()
	}

	return nil
}

func (l *Logger) fileFor(playlistID string) (*os.File, error) {
	if f, ok := l.files[playlistID]; ok {
		return f, nil
	}
	if err := os.MkdirAll(l.baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("decisionlog: creating %s: %w", l.baseDir, err)
	}
	path := filepath.Join(l.baseDir, playlistID+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("decisionlog: opening %s: %w", path, err)
	}
	l.files[playlistID] = f
	return f, nil
}

// Close closes all open playlist log files. Safe to call once at batch end.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var firstErr error
	for id, f := range l.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("decisionlog: closing %s: %w", id, err)
		}
	}
	l.files = make(map[string]*os.File)
	return firstErr
}

// Read returns every entry appended for playlistID, in append order.
func (l *Logger) Read(playlistID string) ([]model.DecisionLogEntry, error) {
	path := filepath.Join(l.baseDir, playlistID+".jsonl")
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("decisionlog: opening %s: %w", path, err)
	}
	defer f.Close()

	var entries []model.DecisionLogEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry model.DecisionLogEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return nil, fmt.Errorf("decisionlog: parsing line in %s: %w", path, err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("decisionlog: scanning %s: %w", path, err)
	}
	return entries, nil
}

// CostSummary sums cost_incurred across every entry for playlistID.
func (l *Logger) CostSummary(playlistID string) (model.Money, error) {
	entries, err := l.Read(playlistID)
	if err != nil {
		return model.Zero, err
	}
	total := model.Zero
	for _, e := range entries {
		total = total.Add(e.CostIncurred)
	}
	return total, nil
}
