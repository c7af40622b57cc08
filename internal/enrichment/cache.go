package enrichment

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode"

	"github.com/troykelly/playlistgen/internal/model"
)

// Cache is the permanent on-disk metadata cache, a single JSON file keyed by
// a content hash of case-folded, diacritic-stripped "artist\x00title", per
// spec.md §4.2/§6/§9 ("no TTL by design: BPM and country do not change").
type Cache struct {
	path string

	mu      sync.Mutex
	records map[string]model.EnrichedMetadata
	loaded  bool
}

// NewCache returns a Cache backed by path; the file is created on first
// write and is not required to exist beforehand.
func NewCache(path string) *Cache {
	return &Cache{path: path, records: make(map[string]model.EnrichedMetadata)}
}

// CacheKey computes the content-addressed key for (artist, title):
// case-folded and stripped of combining diacritics, joined by a NUL byte.
func CacheKey(artist, title string) string {
	normalized := foldAndStrip(artist) + "\x00" + foldAndStrip(title)
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

func foldAndStrip(s string) string {
	s = strings.ToLower(s)
	var b strings.Builder
	for _, r := range s {
		if unicode.Is(unicode.Mn, r) { // combining diacritical marks
			continue
		}
		b.WriteRune(stripAccent(r))
	}
	return b.String()
}

// stripAccent maps a handful of common pre-composed Latin accented runes to
// their base letter; unicode.Mn alone only strips marks already decomposed
// by NFD, and this package does not pull in a normalization dependency for
// a problem this small.
func stripAccent(r rune) rune {
	const from = "àáâãäåèéêëìíîïòóôõöùúûüýñçÀÁÂÃÄÅÈÉÊËÌÍÎÏÒÓÔÕÖÙÚÛÜÝÑÇ"
	const to = "aaaaaaeeeeiiiiooooouuuuyncAAAAAAEEEEIIIIOOOOOUUUUYNC"
	toRunes := []rune(to)
	for i, f := range []rune(from) {
		if f == r {
			return toRunes[i]
		}
	}
	return r
}

func (c *Cache) ensureLoaded() error {
	if c.loaded {
		return nil
	}
	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			c.loaded = true
			return nil
		}
		return fmt.Errorf("enrichment: reading cache %s: %w", c.path, err)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &c.records); err != nil {
			return fmt.Errorf("enrichment: parsing cache %s: %w", c.path, err)
		}
	}
	c.loaded = true
	return nil
}

// Get returns the cached record for key, if present.
func (c *Cache) Get(key string) (model.EnrichedMetadata, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureLoaded(); err != nil {
		return model.EnrichedMetadata{}, false, err
	}
	rec, ok := c.records[key]
	return rec, ok, nil
}

// Put writes rec under key and persists the whole cache atomically
// (temp file + rename), so a crash mid-write never corrupts the cache.
func (c *Cache) Put(key string, rec model.EnrichedMetadata) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureLoaded(); err != nil {
		return err
	}
	c.records[key] = rec
	return c.persistLocked()
}

func (c *Cache) persistLocked() error {
	if dir := filepath.Dir(c.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("enrichment: creating cache dir %s: %w", dir, err)
		}
	}
	data, err := json.MarshalIndent(c.records, "", "  ")
	if err != nil {
		return fmt.Errorf("enrichment: marshalling cache: %w", err)
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("enrichment: writing temp cache %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("enrichment: renaming temp cache into place: %w", err)
	}
	return nil
}
