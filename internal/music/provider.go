package music

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("not found")

type Track struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	Album      string `json:"album"`
	ImageURL   string `json:"imageUrl"`
	PreviewURL string `json:"previewUrl"`
	DurationMs int    `json:"durationMs"`
	Popularity int    `json:"popularity"`
}

type Artist struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ImageURL string `json:"imageUrl"`
}

// Preview is a short playable clip resolved for a track.
type Preview struct {
	URL      string `json:"url"`
	Title    string `json:"title"`
	Artist   string `json:"artist"`
	ImageURL string `json:"imageUrl"`
	Source   string `json:"source"`
}

// Library reads a user's music library. The token is the user's access token
// for the music service; obtaining it is the identity provider's job.
type Library interface {
	RandomSavedTrack(ctx context.Context, token string) (Track, error)
	SearchArtists(ctx context.Context, token string, query string, limit int) ([]Artist, error)
	ArtistTracks(ctx context.Context, token string, artistID string) ([]Track, error)
}

type PreviewFinder interface {
	FindPreview(ctx context.Context, title string, artist string) (Preview, error)
}
