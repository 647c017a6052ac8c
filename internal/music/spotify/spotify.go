package spotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kiliankoe/songguesser/internal/music"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

const DefaultBaseURL = "https://api.spotify.com"

type Client struct {
	BaseURL string
	// Market is passed to catalog endpoints that filter by availability.
	Market string
	http   *http.Client
	intn   func(int) int
}

var _ music.Library = (*Client)(nil)

func New(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Market:  "GB",
		http:    &http.Client{Timeout: timeout},
		intn:    rand.Intn,
	}
}

type image struct {
	URL string `json:"url"`
}

type artist struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Images []image `json:"images"`
}

type album struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Images []image `json:"images"`
}

type track struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Artists    []artist `json:"artists"`
	Album      album    `json:"album"`
	PreviewURL *string  `json:"preview_url"`
	DurationMs int      `json:"duration_ms"`
	Popularity int      `json:"popularity"`
}

type savedTracksResponse struct {
	Items []struct {
		Track track `json:"track"`
	} `json:"items"`
	Total int `json:"total"`
}

type page[T any] struct {
	Items []T `json:"items"`
}

func (c *Client) RandomSavedTrack(ctx context.Context, token string) (music.Track, error) {
	var count savedTracksResponse
	if err := c.get(ctx, token, "/v1/me/tracks?limit=1", &count); err != nil {
		return music.Track{}, fmt.Errorf("spotify: saved track count: %w", err)
	}
	if count.Total == 0 {
		return music.Track{}, fmt.Errorf("spotify: no saved tracks: %w", music.ErrNotFound)
	}

	offset := c.intn(count.Total)
	var pick savedTracksResponse
	if err := c.get(ctx, token, fmt.Sprintf("/v1/me/tracks?limit=1&offset=%d", offset), &pick); err != nil {
		return music.Track{}, fmt.Errorf("spotify: saved track at %d: %w", offset, err)
	}
	if len(pick.Items) == 0 {
		return music.Track{}, fmt.Errorf("spotify: no track at offset %d: %w", offset, music.ErrNotFound)
	}
	return toTrack(pick.Items[0].Track, pick.Items[0].Track.Album), nil
}

func (c *Client) SearchArtists(ctx context.Context, token string, query string, limit int) ([]music.Artist, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	q := url.Values{}
	q.Set("q", query)
	q.Set("type", "artist")
	q.Set("limit", fmt.Sprint(limit))

	var out struct {
		Artists page[artist] `json:"artists"`
	}
	if err := c.get(ctx, token, "/v1/search?"+q.Encode(), &out); err != nil {
		return nil, fmt.Errorf("spotify: artist search: %w", err)
	}
	artists := make([]music.Artist, 0, len(out.Artists.Items))
	for _, a := range out.Artists.Items {
		artists = append(artists, music.Artist{ID: a.ID, Name: a.Name, ImageURL: firstImage(a.Images)})
	}
	return artists, nil
}

// ArtistTracks collects the tracks of every album and single by the artist,
// dropping duplicates that share a title and lead artist. Albums that fail to
// load are skipped.
func (c *Client) ArtistTracks(ctx context.Context, token string, artistID string) ([]music.Track, error) {
	var albums page[album]
	path := fmt.Sprintf("/v1/artists/%s/albums?include_groups=album,single&market=%s&limit=50", url.PathEscape(artistID), c.Market)
	if err := c.get(ctx, token, path, &albums); err != nil {
		return nil, fmt.Errorf("spotify: artist albums: %w", err)
	}
	if len(albums.Items) == 0 {
		return nil, fmt.Errorf("spotify: artist %s has no albums: %w", artistID, music.ErrNotFound)
	}

	seen := make(map[string]struct{})
	var tracks []music.Track
	for _, al := range albums.Items {
		var items page[track]
		path := fmt.Sprintf("/v1/albums/%s/tracks?market=%s&limit=50", url.PathEscape(al.ID), c.Market)
		if err := c.get(ctx, token, path, &items); err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("spotify: album tracks: %w", ctx.Err())
			}
			log.Warn().Err(err).Str("album", al.Name).Msg("spotify: skipping album")
			continue
		}
		for _, tr := range items.Items {
			key := strings.ToLower(tr.Name) + "-" + strings.ToLower(leadArtist(tr))
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			tracks = append(tracks, toTrack(tr, al))
		}
	}
	if len(tracks) == 0 {
		return nil, fmt.Errorf("spotify: artist %s has no tracks: %w", artistID, music.ErrNotFound)
	}
	return tracks, nil
}

func (c *Client) get(ctx context.Context, token string, path string, out any) error {
	if token == "" {
		return errors.New("missing access token")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.authorized(token).Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("spotify status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// authorized wraps the shared client so each request carries the user's
// bearer token.
func (c *Client) authorized(token string) *http.Client {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
	return &http.Client{
		Transport: &oauth2.Transport{Source: src, Base: c.http.Transport},
		Timeout:   c.http.Timeout,
	}
}

func toTrack(tr track, al album) music.Track {
	t := music.Track{
		ID:         tr.ID,
		Title:      tr.Name,
		Artist:     leadArtist(tr),
		Album:      al.Name,
		ImageURL:   firstImage(al.Images),
		DurationMs: tr.DurationMs,
		Popularity: tr.Popularity,
	}
	if t.Artist == "" {
		t.Artist = "Unknown Artist"
	}
	if tr.PreviewURL != nil {
		t.PreviewURL = *tr.PreviewURL
	}
	return t
}

func leadArtist(tr track) string {
	if len(tr.Artists) == 0 {
		return ""
	}
	return tr.Artists[0].Name
}

func firstImage(images []image) string {
	if len(images) == 0 {
		return ""
	}
	return images[0].URL
}
