package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/troykelly/playlistgen/internal/logger"
	"github.com/troykelly/playlistgen/internal/playlistcore/errs"
)

// WebEnrichmentSource queries an external metadata API for a track's genre,
// year, and country (and BPM when the source happens to carry it).
type WebEnrichmentSource interface {
	Lookup(ctx context.Context, artist, title string) (WebEnrichmentResult, error)
}

// WebEnrichmentResult carries whatever fields the source could supply; any
// of them may be nil.
type WebEnrichmentResult struct {
	BPM     *int
	Genre   *string
	Year    *int
	Country *string
}

const (
	backoffBase       = 1500 * time.Millisecond
	backoffCap        = 80 * time.Second
	backoffJitter     = 0.25
	maxRetryAttempts  = 6
)

// LastFMSource is a rate-limited HTTP client against a Last.fm-shaped
// scrobbling API (LASTFM_API_KEY). It honours Retry-After on 429s and
// backs off exponentially on transient failures, never retrying permanent
// 4xx errors other than 429, per spec.md §4.2.
type LastFMSource struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewLastFMSource creates a client limited to roughly 3 requests/second,
// Last.fm's own documented courtesy limit, adjustable at construction.
func NewLastFMSource(apiKey string, requestsPerSecond float64) *LastFMSource {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 3
	}
	return &LastFMSource{
		apiKey:     apiKey,
		baseURL:    "https://ws.audioscrobbler.com/2.0/",
		httpClient: &http.Client{Timeout: 15 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
	}
}

type lastFMTrackResponse struct {
	Track struct {
		Duration string `json:"duration"`
		TopTags  struct {
			Tag []struct {
				Name string `json:"name"`
			} `json:"tag"`
		} `json:"toptags"`
		Wiki struct {
			Published string `json:"published"`
		} `json:"wiki"`
		Artist struct {
			Name string `json:"name"`
		} `json:"artist"`
	} `json:"track"`
}

// Lookup queries track.getInfo for (artist, title), retrying per the
// package's backoff policy.
func (s *LastFMSource) Lookup(ctx context.Context, artist, title string) (WebEnrichmentResult, error) {
	if s.apiKey == "" {
		return WebEnrichmentResult{}, errs.New(errs.KindEnrichmentUnavailable, nil, "LASTFM_API_KEY not configured")
	}

	var result WebEnrichmentResult
	var lastErr error

	for attempt := 0; attempt < maxRetryAttempts; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return WebEnrichmentResult{}, errs.New(errs.KindEnrichmentUnavailable, err, "rate limiter wait cancelled")
		}

		res, retryAfter, err := s.doRequest(ctx, artist, title)
		if err == nil {
			return res, nil
		}
		lastErr = err

		if !isRetryable(err) {
			return WebEnrichmentResult{}, err
		}

		delay := retryAfter
		if delay <= 0 {
			delay = backoffDelay(attempt)
		}
		logger.Debug("enrichment: retrying last.fm lookup", logger.Fields{"artist": artist, "title": title, "attempt": attempt, "delay_ms": delay.Milliseconds()})

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return WebEnrichmentResult{}, errs.New(errs.KindEnrichmentUnavailable, ctx.Err(), "lookup cancelled")
		}
	}

	return WebEnrichmentResult{}, errs.New(errs.KindEnrichmentUnavailable, lastErr, "last.fm lookup exhausted %d attempts", maxRetryAttempts)
}

// retryableError wraps a non-2xx HTTP failure with whether a retry is
// appropriate and an optional Retry-After duration.
type retryableError struct {
	statusCode int
	retryable  bool
	message    string
}

func (e *retryableError) Error() string {
	return fmt.Sprintf("last.fm returned %d: %s", e.statusCode, e.message)
}

func isRetryable(err error) bool {
	re, ok := err.(*retryableError)
	if !ok {
		return true // network-level error, not an HTTP status: worth retrying
	}
	return re.retryable
}

func (s *LastFMSource) doRequest(ctx context.Context, artist, title string) (WebEnrichmentResult, time.Duration, error) {
	q := url.Values{}
	q.Set("method", "track.getInfo")
	q.Set("api_key", s.apiKey)
	q.Set("artist", artist)
	q.Set("track", title)
	q.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return WebEnrichmentResult{}, 0, &retryableError{retryable: false, message: err.Error()}
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return WebEnrichmentResult{}, 0, &retryableError{retryable: true, message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return WebEnrichmentResult{}, 0, &retryableError{statusCode: resp.StatusCode, retryable: false, message: "not found"}
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		return WebEnrichmentResult{}, retryAfter, &retryableError{statusCode: resp.StatusCode, retryable: true, message: "rate limited"}
	}
	if resp.StatusCode >= 500 {
		return WebEnrichmentResult{}, 0, &retryableError{statusCode: resp.StatusCode, retryable: true, message: "server error"}
	}
	if resp.StatusCode >= 400 {
		return WebEnrichmentResult{}, 0, &retryableError{statusCode: resp.StatusCode, retryable: false, message: "client error"}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return WebEnrichmentResult{}, 0, &retryableError{retryable: true, message: err.Error()}
	}

	var parsed lastFMTrackResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return WebEnrichmentResult{}, 0, &retryableError{retryable: false, message: "malformed response: " + err.Error()}
	}

	return resultFromLastFM(parsed), 0, nil
}

func resultFromLastFM(parsed lastFMTrackResponse) WebEnrichmentResult {
	var result WebEnrichmentResult
	if len(parsed.Track.TopTags.Tag) > 0 {
		genre := parsed.Track.TopTags.Tag[0].Name
		result.Genre = &genre
	}
	if parsed.Track.Wiki.Published != "" {
		if year, ok := parseYearFromPublished(parsed.Track.Wiki.Published); ok {
			result.Year = &year
		}
	}
	return result
}

func parseYearFromPublished(published string) (int, bool) {
	// Last.fm formats this like "12 Jun 2015, 00:00". The year is taken as
	// the first 4-digit run starting with 1 or 2, which in that format is the
	// one before the comma.
	for i := 0; i <= len(published)-4; i++ {
		if isFourDigitYear(published[i : i+4]) {
			year, err := strconv.Atoi(published[i : i+4])
			if err == nil {
				return year, true
			}
		}
	}
	return 0, false
}

func isFourDigitYear(s string) bool {
	if len(s) != 4 {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return s[0] == '1' || s[0] == '2'
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		return time.Until(t)
	}
	return 0
}

// backoffDelay computes the exponential backoff with jitter spec.md §4.2
// requires: base 1.5s, cap 80s, ±25% jitter.
func backoffDelay(attempt int) time.Duration {
	delay := backoffBase * time.Duration(1<<uint(attempt))
	if delay > backoffCap {
		delay = backoffCap
	}
	jitterRange := float64(delay) * backoffJitter
	jitter := (rand.Float64()*2 - 1) * jitterRange
	result := time.Duration(float64(delay) + jitter)
	if result < 0 {
		result = 0
	}
	return result
}
