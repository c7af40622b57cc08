package libraryaccess

import (
	"context"
	"sync"
	"time"

	"github.com/troykelly/playlistgen/internal/model"
)

const defaultKnownTracksTTL = 15 * time.Minute

// KnownTracksCache keeps a TTL-gated snapshot of Accessor.AllTracks so a
// batch run doesn't re-list the full catalogue for every daypart. Tracks is
// safe to call concurrently; it refreshes under the cache's mutex, so only
// one in-flight fetch runs at a time.
type KnownTracksCache struct {
	accessor Accessor
	ttl      time.Duration

	mu       sync.Mutex
	snapshot model.KnownTracksCache
}

func NewKnownTracksCache(accessor Accessor, ttl time.Duration) *KnownTracksCache {
	if ttl <= 0 {
		ttl = defaultKnownTracksTTL
	}
	return &KnownTracksCache{accessor: accessor, ttl: ttl}
}

// Tracks returns the cached track list, refreshing first if the cache is
// empty or expired.
func (c *KnownTracksCache) Tracks(ctx context.Context) ([]model.LibraryTrack, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.snapshot.Tracks == nil || c.snapshot.Expired(time.Now()) {
		tracks, err := c.accessor.AllTracks(ctx)
		if err != nil {
			return nil, err
		}
		c.snapshot = model.KnownTracksCache{
			Tracks:    tracks,
			FetchedAt: time.Now(),
			TTL:       c.ttl,
		}
	}

	result := make([]model.LibraryTrack, len(c.snapshot.Tracks))
	copy(result, c.snapshot.Tracks)
	return result, nil
}

// Invalidate forces the next Tracks call to refresh regardless of TTL.
func (c *KnownTracksCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot = model.KnownTracksCache{}
}
