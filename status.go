package main

import (
	"fmt"
	"math"
)

// RepeatMode is the canonical repeat setting of a session.
type RepeatMode int

const (
	RepeatNone RepeatMode = iota
	RepeatOne
	RepeatAll
)

func (r RepeatMode) String() string {
	switch r {
	case RepeatOne:
		return "One"
	case RepeatAll:
		return "All"
	default:
		return "None"
	}
}

func (r RepeatMode) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *RepeatMode) UnmarshalText(text []byte) error {
	mode, err := parseRepeatMode(string(text))
	if err != nil {
		return err
	}
	*r = mode
	return nil
}

func parseRepeatMode(s string) (RepeatMode, error) {
	switch s {
	case "None":
		return RepeatNone, nil
	case "One":
		return RepeatOne, nil
	case "All":
		return RepeatAll, nil
	}
	return RepeatNone, fmt.Errorf("unknown repeat mode %q", s)
}

// timeTolerance is how far apart two elapsed or duration readings may be
// while still describing the same observed state.
const timeTolerance = 0.1

// PlaybackStatus is a normalized snapshot of the current media session.
// The zero value means nothing is playing.
type PlaybackStatus struct {
	PlayerName  string     `json:"player_name"`
	Title       string     `json:"title"`
	Artist      string     `json:"artist"`
	Album       string     `json:"album"`
	AlbumArtist string     `json:"album_artist"`
	Elapsed     float64    `json:"elapsed"`
	Duration    float64    `json:"duration"`
	Playing     bool       `json:"playing"`
	Repeat      RepeatMode `json:"repeat"`
	Shuffle     bool       `json:"shuffle"`
	TrackNumber int        `json:"track_number"`
	TotalTracks int        `json:"total_tracks"`
}

// IsEmpty reports whether s is the "nothing playing" sentinel.
func (s PlaybackStatus) IsEmpty() bool {
	return s == PlaybackStatus{}
}

// Equal reports whether s and o describe the same observed state. Times are
// compared with a tolerance since elapsed advances between every poll.
func (s PlaybackStatus) Equal(o PlaybackStatus) bool {
	return s.Title == o.Title &&
		s.Artist == o.Artist &&
		s.Album == o.Album &&
		s.AlbumArtist == o.AlbumArtist &&
		closeEnough(s.Elapsed, o.Elapsed) &&
		closeEnough(s.Duration, o.Duration) &&
		s.Playing == o.Playing &&
		s.Repeat == o.Repeat &&
		s.Shuffle == o.Shuffle
}

func closeEnough(a, b float64) bool {
	return math.Abs(a-b) < timeTolerance
}

// clampSeconds maps negative or NaN readings to zero.
func clampSeconds(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return v
}

// trackID identifies a track for artwork caching.
func (s PlaybackStatus) trackID() string {
	return fmt.Sprintf("%s|%s|%s", s.Title, s.Artist, s.Album)
}
