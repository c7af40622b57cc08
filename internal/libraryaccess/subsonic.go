package libraryaccess

import (
	"context"
	"crypto/md5"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/troykelly/playlistgen/internal/logger"
	"github.com/troykelly/playlistgen/internal/model"
	"github.com/troykelly/playlistgen/internal/playlistcore/errs"
)

const (
	subsonicAPIVersion = "1.16.1"
	subsonicClientName = "playlistgen"
	requestTimeout      = 15 * time.Second
)

// SubsonicAccessor talks to a Subsonic-compatible music server
// (SUBSONIC_URL/USER/PASSWORD). Every call passes through a circuit breaker
// so a string of failures trips the breaker instead of hammering a degraded
// server, and through a Throttle so a slow server gets a cooperative
// backoff rather than a fixed RPS cap (spec.md §9).
type SubsonicAccessor struct {
	baseURL    string
	user       string
	password   string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	throttle   *Throttle
}

func NewSubsonicAccessor(baseURL, user, password string) *SubsonicAccessor {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "subsonic",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("library accessor circuit breaker state change", logger.Fields{"name": name, "from": from.String(), "to": to.String()})
		},
	})

	return &SubsonicAccessor{
		baseURL:    baseURL,
		user:       user,
		password:   password,
		httpClient: &http.Client{Timeout: requestTimeout},
		breaker:    breaker,
		throttle:   NewThrottle(),
	}
}

type subsonicSong struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Artist   string `json:"artist"`
	Genre    string `json:"genre"`
	Year     int    `json:"year"`
	Duration int    `json:"duration"`
	Path     string `json:"path"`
}

type subsonicEnvelope struct {
	SubsonicResponse struct {
		Status        string `json:"status"`
		Error         *subsonicError `json:"error,omitempty"`
		SearchResult3 *struct {
			Song []subsonicSong `json:"song"`
		} `json:"searchResult3,omitempty"`
		Song *subsonicSong `json:"song,omitempty"`
		Genres *struct {
			Genre []struct {
				Value    string `json:"value"`
				SongCount int   `json:"songCount"`
			} `json:"genre"`
		} `json:"genres,omitempty"`
		RandomSongs *struct {
			Song []subsonicSong `json:"song"`
		} `json:"randomSongs,omitempty"`
	} `json:"subsonic-response"`
}

type subsonicError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (s *SubsonicAccessor) authParams() (url.Values, error) {
	salt, err := randomSalt()
	if err != nil {
		return nil, err
	}
	token := md5Hex(s.password + salt)

	v := url.Values{}
	v.Set("u", s.user)
	v.Set("t", token)
	v.Set("s", salt)
	v.Set("v", subsonicAPIVersion)
	v.Set("c", subsonicClientName)
	v.Set("f", "json")
	return v, nil
}

func randomSalt() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func (s *SubsonicAccessor) get(ctx context.Context, endpoint string, extra url.Values) (*subsonicEnvelope, error) {
	params, err := s.authParams()
	if err != nil {
		return nil, errs.New(errs.KindUnreachable, err, "subsonic: building auth params")
	}
	for k, vs := range extra {
		for _, v := range vs {
			params.Add(k, v)
		}
	}

	reqURL := s.baseURL + "/rest/" + endpoint + "?" + params.Encode()

	result, err := s.breaker.Execute(func() (interface{}, error) {
		if err := s.throttle.WaitIfSlow(ctx); err != nil {
			return nil, err
		}

		start := time.Now()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, err
		}
		resp, err := s.httpClient.Do(req)
		s.throttle.Observe(time.Since(start))
		if err != nil {
			return nil, errs.New(errs.KindUnreachable, err, "subsonic: request to %s", endpoint)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return nil, errs.New(errs.KindAuthFailure, nil, "subsonic: %s returned %d", endpoint, resp.StatusCode)
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, errs.New(errs.KindRateLimited, nil, "subsonic: %s rate limited", endpoint)
		}
		if resp.StatusCode >= 500 {
			return nil, errs.New(errs.KindUnreachable, nil, "subsonic: %s returned %d", endpoint, resp.StatusCode)
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, errs.New(errs.KindUnreachable, err, "subsonic: reading %s response", endpoint)
		}

		var envelope subsonicEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			return nil, errs.New(errs.KindUnreachable, err, "subsonic: parsing %s response", endpoint)
		}
		if envelope.SubsonicResponse.Status != "ok" {
			if envelope.SubsonicResponse.Error != nil && envelope.SubsonicResponse.Error.Code == 70 {
				return nil, errs.New(errs.KindNotFound, nil, "subsonic: %s: %s", endpoint, envelope.SubsonicResponse.Error.Message)
			}
			return nil, errs.New(errs.KindUnreachable, nil, "subsonic: %s returned status %q", endpoint, envelope.SubsonicResponse.Status)
		}

		return &envelope, nil
	})

	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, errs.New(errs.KindUnreachable, err, "subsonic: circuit breaker open for %s", endpoint)
		}
		return nil, err
	}
	return result.(*subsonicEnvelope), nil
}

func (s *SubsonicAccessor) SearchTracks(ctx context.Context, query string, filters map[string]string) ([]model.LibraryTrack, error) {
	v := url.Values{}
	v.Set("query", query)
	v.Set("songCount", strconv.Itoa(maxSearchResults))
	for k, val := range filters {
		v.Set(k, val)
	}
	envelope, err := s.get(ctx, "search3", v)
	if err != nil {
		return nil, err
	}
	if envelope.SubsonicResponse.SearchResult3 == nil {
		return nil, nil
	}
	return songsToTracks(envelope.SubsonicResponse.SearchResult3.Song), nil
}

func (s *SubsonicAccessor) AvailableGenres(ctx context.Context) (map[string]int, error) {
	envelope, err := s.get(ctx, "getGenres", nil)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	if envelope.SubsonicResponse.Genres != nil {
		for _, g := range envelope.SubsonicResponse.Genres.Genre {
			counts[g.Value] = g.SongCount
		}
	}
	return counts, nil
}

func (s *SubsonicAccessor) TracksByGenre(ctx context.Context, genre string, limit int) ([]model.LibraryTrack, error) {
	if limit <= 0 || limit > maxGenreListingTracks {
		limit = maxGenreListingTracks
	}
	v := url.Values{}
	v.Set("genre", genre)
	v.Set("count", strconv.Itoa(limit))
	envelope, err := s.get(ctx, "getSongsByGenre", v)
	if err != nil {
		return nil, err
	}
	if envelope.SubsonicResponse.RandomSongs == nil {
		return nil, nil
	}
	return songsToTracks(envelope.SubsonicResponse.RandomSongs.Song), nil
}

func (s *SubsonicAccessor) TracksByEra(ctx context.Context, minYear, maxYear int) ([]model.LibraryTrack, error) {
	v := url.Values{}
	v.Set("fromYear", strconv.Itoa(minYear))
	v.Set("toYear", strconv.Itoa(maxYear))
	v.Set("size", strconv.Itoa(maxSearchResults))
	envelope, err := s.get(ctx, "getAlbumList2", v)
	if err != nil {
		return nil, err
	}
	if envelope.SubsonicResponse.RandomSongs == nil {
		return nil, nil
	}
	return songsToTracks(envelope.SubsonicResponse.RandomSongs.Song), nil
}

func (s *SubsonicAccessor) TrackInfo(ctx context.Context, trackID string) (model.LibraryTrack, error) {
	v := url.Values{}
	v.Set("id", trackID)
	envelope, err := s.get(ctx, "getSong", v)
	if err != nil {
		return model.LibraryTrack{}, err
	}
	if envelope.SubsonicResponse.Song == nil {
		return model.LibraryTrack{}, errs.New(errs.KindNotFound, nil, "subsonic: track %s not found", trackID)
	}
	return songToTrack(*envelope.SubsonicResponse.Song), nil
}

func (s *SubsonicAccessor) AustralianTracks(ctx context.Context) ([]model.LibraryTrack, error) {
	tracks, err := s.SearchTracks(ctx, "", map[string]string{"country": "Australia"})
	if err != nil {
		return nil, err
	}
	for i := range tracks {
		tracks[i].IsAustralian = true
		country := "Australia"
		tracks[i].Country = &country
	}
	return tracks, nil
}

func (s *SubsonicAccessor) AllTracks(ctx context.Context) ([]model.LibraryTrack, error) {
	v := url.Values{}
	v.Set("size", "500")
	envelope, err := s.get(ctx, "getRandomSongs", v)
	if err != nil {
		return nil, err
	}
	if envelope.SubsonicResponse.RandomSongs == nil {
		return nil, nil
	}
	return songsToTracks(envelope.SubsonicResponse.RandomSongs.Song), nil
}

func songsToTracks(songs []subsonicSong) []model.LibraryTrack {
	tracks := make([]model.LibraryTrack, 0, len(songs))
	for _, s := range songs {
		tracks = append(tracks, songToTrack(s))
	}
	return tracks
}

func songToTrack(s subsonicSong) model.LibraryTrack {
	t := model.LibraryTrack{
		TrackID:         s.ID,
		Title:           s.Title,
		Artist:          s.Artist,
		DurationSeconds: s.Duration,
		AudioPath:       s.Path,
		MetadataSource:  model.MetadataSourceLibrary,
	}
	if s.Genre != "" {
		genre := s.Genre
		t.Genre = &genre
	}
	if s.Year > 0 {
		year := s.Year
		t.Year = &year
	}
	return t
}

var _ Accessor = (*SubsonicAccessor)(nil)
