package game

import (
	"github.com/kiliankoe/songguesser/internal/music"
	"github.com/kiliankoe/songguesser/internal/round"
)

type Mode string

const (
	ModeClassic Mode = "classic"
	ModeArtist  Mode = "artist"
)

type SessionConfig struct {
	Mode       Mode             `json:"mode"`
	Difficulty round.Difficulty `json:"difficulty"`
	ArtistID   string           `json:"artistId,omitempty"`
	ArtistName string           `json:"artistName,omitempty"`
}

type Stats struct {
	QuestionsAnswered int `json:"questionsAnswered"`
	CorrectAnswers    int `json:"correctAnswers"`
	RoundNumber       int `json:"roundNumber"`
	CurrentStreak     int `json:"currentStreak"`
	BestStreak        int `json:"bestStreak"`
	SessionScore      int `json:"sessionScore"`
	TotalScore        int `json:"totalScore"`
	// LastPoints is what the most recent correct answer earned.
	LastPoints int `json:"lastPoints"`
}

// RoundView is what a client may see of the live round. The answer fields
// stay empty until the round is revealed.
type RoundView struct {
	ID                string      `json:"id"`
	Phase             round.Phase `json:"phase"`
	TimeRemaining     int         `json:"timeRemaining"`
	AttemptsRemaining int         `json:"attemptsRemaining"`
	MaxAttempts       int         `json:"maxAttempts"`
	PlaybackWindow    int         `json:"playbackWindow"`
	PreviewURL        string      `json:"previewUrl"`
	Title             string      `json:"title,omitempty"`
	Artist            string      `json:"artist,omitempty"`
	Album             string      `json:"album,omitempty"`
	ImageURL          string      `json:"imageUrl,omitempty"`
}

type Snapshot struct {
	Code   string        `json:"code"`
	Config SessionConfig `json:"config"`
	Stats  Stats         `json:"stats"`
	Round  *RoundView    `json:"round,omitempty"`
}

func newRoundView(ev *round.Evaluator, track music.Track, preview music.Preview) *RoundView {
	st := ev.State()
	v := &RoundView{
		ID:                ev.ID(),
		Phase:             st.Phase,
		TimeRemaining:     st.TimeRemaining,
		AttemptsRemaining: st.AttemptsRemaining,
		MaxAttempts:       st.Config.MaxAttempts,
		PlaybackWindow:    st.Config.PlaybackWindow,
		PreviewURL:        preview.URL,
	}
	if st.Over() {
		v.Title = st.Title
		v.Artist = st.Artist
		v.Album = track.Album
		v.ImageURL = track.ImageURL
		if v.ImageURL == "" {
			v.ImageURL = preview.ImageURL
		}
	}
	return v
}
