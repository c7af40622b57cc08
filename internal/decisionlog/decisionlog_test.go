package decisionlog

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/troykelly/playlistgen/internal/model"
)

type fakeTracer struct {
	mirrored []model.DecisionLogEntry
}

func (f *fakeTracer) Mirror(entry model.DecisionLogEntry) {
	f.mirrored = append(f.mirrored, entry)
}

func newEntry(playlistID, kind string, cost string) model.DecisionLogEntry {
	m, _ := model.NewMoneyFromString(cost)
	return model.DecisionLogEntry{
		ID:              uuid.NewString(),
		PlaylistID:      playlistID,
		Type:            kind,
		Timestamp:       time.Now().UTC(),
		DecisionData:    map[string]interface{}{"note": kind},
		CostIncurred:    m,
		ExecutionTimeMs: 12,
	}
}

func TestAppendThenReadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	tracer := &fakeTracer{}
	l := New(dir, tracer)
	defer l.Close()

	e1 := newEntry("playlist-1", model.DecisionTypeTrackSelection, "0.0100")
	e2 := newEntry("playlist-1", model.DecisionTypeValidation, "0.0000")

	require.NoError(t, l.Append(e1))
	require.NoError(t, l.Append(e2))

	entries, err := l.Read("playlist-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, e1.ID, entries[0].ID)
	assert.Equal(t, e2.ID, entries[1].ID)

	assert.Len(t, tracer.mirrored, 2)
}

func TestCostSummarySumsAllEntries(t *testing.T) {
	dir := t.TempDir()
	l := New(dir, nil)
	defer l.Close()

	require.NoError(t, l.Append(newEntry("playlist-2", model.DecisionTypeTrackSelection, "0.0050")))
	require.NoError(t, l.Append(newEntry("playlist-2", model.DecisionTypeTrackSelection, "0.0075")))

	sum, err := l.CostSummary("playlist-2")
	require.NoError(t, err)
	assert.Equal(t, "0.0125", sum.String())
}

func TestReadOfUnknownPlaylistReturnsEmpty(t *testing.T) {
	dir := t.TempDir()
	l := New(dir, nil)
	defer l.Close()

	entries, err := l.Read("does-not-exist")
	require.NoError(t, err)
	assert.Empty(t, entries)
}
