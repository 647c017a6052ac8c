package deezer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kiliankoe/songguesser/internal/music"
)

const (
	DefaultBaseURL = "https://api.deezer.com"

	defaultMaxRetries = 3
	defaultBackoff    = 500 * time.Millisecond
)

// Client looks up short previews on the Deezer search API. It needs no
// credentials.
type Client struct {
	BaseURL     string
	MaxRetries  int
	BaseBackoff time.Duration
	http        *http.Client
}

var _ music.PreviewFinder = (*Client)(nil)

func New(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		MaxRetries:  defaultMaxRetries,
		BaseBackoff: defaultBackoff,
		http:        &http.Client{Timeout: timeout},
	}
}

type searchResponse struct {
	Data []struct {
		Title   string `json:"title"`
		Preview string `json:"preview"`
		Artist  struct {
			Name string `json:"name"`
		} `json:"artist"`
		Album struct {
			CoverMedium string `json:"cover_medium"`
		} `json:"album"`
	} `json:"data"`
}

// FindPreview searches for "title artist" and returns the first hit that
// carries a preview clip.
func (c *Client) FindPreview(ctx context.Context, title string, artist string) (music.Preview, error) {
	q := url.Values{}
	q.Set("q", strings.TrimSpace(title+" "+artist))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return music.Preview{}, fmt.Errorf("deezer: %w", err)
	}

	resp, err := c.doWithRetry(req)
	if err != nil {
		return music.Preview{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return music.Preview{}, fmt.Errorf("deezer status %d", resp.StatusCode)
	}

	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return music.Preview{}, fmt.Errorf("deezer: decode: %w", err)
	}
	for _, hit := range out.Data {
		if hit.Preview == "" {
			continue
		}
		return music.Preview{
			URL:      hit.Preview,
			Title:    hit.Title,
			Artist:   hit.Artist.Name,
			ImageURL: hit.Album.CoverMedium,
			Source:   "deezer",
		}, nil
	}
	return music.Preview{}, fmt.Errorf("deezer: no preview for %q by %q: %w", title, artist, music.ErrNotFound)
}
