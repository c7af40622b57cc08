package libraryaccess

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/troykelly/playlistgen/internal/model"
)

type fakeAccessor struct {
	calls  int
	tracks []model.LibraryTrack
}

func (f *fakeAccessor) SearchTracks(ctx context.Context, query string, filters map[string]string) ([]model.LibraryTrack, error) {
	return nil, nil
}
func (f *fakeAccessor) AvailableGenres(ctx context.Context) (map[string]int, error) { return nil, nil }
func (f *fakeAccessor) TracksByGenre(ctx context.Context, genre string, limit int) ([]model.LibraryTrack, error) {
	return nil, nil
}
func (f *fakeAccessor) TracksByEra(ctx context.Context, minYear, maxYear int) ([]model.LibraryTrack, error) {
	return nil, nil
}
func (f *fakeAccessor) TrackInfo(ctx context.Context, trackID string) (model.LibraryTrack, error) {
	return model.LibraryTrack{}, nil
}
func (f *fakeAccessor) AustralianTracks(ctx context.Context) ([]model.LibraryTrack, error) {
	return nil, nil
}
func (f *fakeAccessor) AllTracks(ctx context.Context) ([]model.LibraryTrack, error) {
	f.calls++
	return f.tracks, nil
}

var _ Accessor = (*fakeAccessor)(nil)

func TestKnownTracksCacheFetchesOnceWithinTTL(t *testing.T) {
	accessor := &fakeAccessor{tracks: []model.LibraryTrack{{TrackID: "1"}, {TrackID: "2"}}}
	cache := NewKnownTracksCache(accessor, time.Hour)

	tracks1, err := cache.Tracks(context.Background())
	require.NoError(t, err)
	assert.Len(t, tracks1, 2)

	tracks2, err := cache.Tracks(context.Background())
	require.NoError(t, err)
	assert.Len(t, tracks2, 2)
	assert.Equal(t, 1, accessor.calls)
}

func TestKnownTracksCacheRefetchesAfterInvalidate(t *testing.T) {
	accessor := &fakeAccessor{tracks: []model.LibraryTrack{{TrackID: "1"}}}
	cache := NewKnownTracksCache(accessor, time.Hour)

	_, err := cache.Tracks(context.Background())
	require.NoError(t, err)

	cache.Invalidate()

	_, err = cache.Tracks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, accessor.calls)
}

func TestKnownTracksCacheRefetchesAfterExpiry(t *testing.T) {
	accessor := &fakeAccessor{tracks: []model.LibraryTrack{{TrackID: "1"}}}
	cache := NewKnownTracksCache(accessor, time.Millisecond)

	_, err := cache.Tracks(context.Background())
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	_, err = cache.Tracks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, accessor.calls)
}

func TestKnownTracksCacheReturnsCopyNotSharedSlice(t *testing.T) {
	accessor := &fakeAccessor{tracks: []model.LibraryTrack{{TrackID: "1"}}}
	cache := NewKnownTracksCache(accessor, time.Hour)

	tracks, err := cache.Tracks(context.Background())
	require.NoError(t, err)
	tracks[0].TrackID = "mutated"

	tracksAgain, err := cache.Tracks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1", tracksAgain[0].TrackID)
}
