package game

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"github.com/kiliankoe/songguesser/internal/music"
	"github.com/rs/zerolog/log"
)

var (
	ErrNoPreview    = errors.New("no playable preview found")
	ErrNoTracksLeft = errors.New("no tracks left to play")
)

const DefaultMaxCandidates = 5

// Picker chooses the next song for a session and resolves something the
// client can actually play.
type Picker struct {
	library  music.Library
	previews music.PreviewFinder
	// MaxCandidates bounds how many tracks are tried before giving up on
	// finding a preview.
	MaxCandidates int
	intn          func(int) int
}

func NewPicker(library music.Library, previews music.PreviewFinder, maxCandidates int) *Picker {
	if maxCandidates <= 0 {
		maxCandidates = DefaultMaxCandidates
	}
	return &Picker{library: library, previews: previews, MaxCandidates: maxCandidates, intn: rand.Intn}
}

// Next returns the next track for s together with its preview.
func (p *Picker) Next(ctx context.Context, s *Session) (music.Track, music.Preview, error) {
	for i := 0; i < p.MaxCandidates; i++ {
		track, err := p.candidate(ctx, s)
		if err != nil {
			return music.Track{}, music.Preview{}, err
		}
		preview, err := p.resolve(ctx, track)
		if err == nil {
			return track, preview, nil
		}
		if !errors.Is(err, music.ErrNotFound) {
			return music.Track{}, music.Preview{}, fmt.Errorf("resolve preview: %w", err)
		}
		log.Debug().Str("code", s.Code).Str("track", track.ID).Str("title", track.Title).Msg("no preview, trying another track")
	}
	return music.Track{}, music.Preview{}, fmt.Errorf("%w after %d tracks", ErrNoPreview, p.MaxCandidates)
}

// Deal picks the next song and starts it as the session's current round.
func (p *Picker) Deal(ctx context.Context, s *Session) (string, error) {
	track, preview, err := p.Next(ctx, s)
	if err != nil {
		return "", err
	}
	return s.StartRound(track, preview), nil
}

func (p *Picker) candidate(ctx context.Context, s *Session) (music.Track, error) {
	if s.Config.Mode != ModeArtist {
		track, err := p.library.RandomSavedTrack(ctx, s.MusicToken())
		if errors.Is(err, music.ErrNotFound) {
			return music.Track{}, fmt.Errorf("%w: %w", ErrNoTracksLeft, err)
		}
		if err != nil {
			return music.Track{}, fmt.Errorf("pick saved track: %w", err)
		}
		return track, nil
	}

	catalog := s.cachedCatalog()
	if catalog == nil {
		tracks, err := p.library.ArtistTracks(ctx, s.MusicToken(), s.Config.ArtistID)
		if errors.Is(err, music.ErrNotFound) {
			return music.Track{}, fmt.Errorf("%w: %w", ErrNoTracksLeft, err)
		}
		if err != nil {
			return music.Track{}, fmt.Errorf("load artist tracks: %w", err)
		}
		s.cacheCatalog(tracks)
		catalog = tracks
		log.Info().Str("code", s.Code).Str("artist", s.Config.ArtistName).Int("tracks", len(tracks)).Msg("artist catalog loaded")
	}

	track, ok := music.PickUnplayed(catalog, s.playedSet(), p.intn)
	if !ok {
		return music.Track{}, ErrNoTracksLeft
	}
	// a track without a preview must not come up again either
	s.markPlayed(track.ID)
	return track, nil
}

func (p *Picker) resolve(ctx context.Context, track music.Track) (music.Preview, error) {
	if track.PreviewURL != "" {
		return music.Preview{
			URL:      track.PreviewURL,
			Title:    track.Title,
			Artist:   track.Artist,
			ImageURL: track.ImageURL,
			Source:   "spotify",
		}, nil
	}
	if p.previews == nil {
		return music.Preview{}, music.ErrNotFound
	}
	return p.previews.FindPreview(ctx, track.Title, track.Artist)
}
