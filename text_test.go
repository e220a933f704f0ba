package main

import (
	"testing"
	"unicode/utf8"
)

func TestFormatTime(t *testing.T) {
	tests := []struct {
		name     string
		seconds  int64
		expected string
	}{
		{"start of track", 0, "00:00"},
		{"seconds only", 59, "00:59"},
		{"one minute", 60, "01:00"},
		{"typical track", 245, "04:05"},
		{"long mix", 3725, "62:05"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatTime(tt.seconds); got != tt.expected {
				t.Errorf("formatTime(%d) = %q; want %q", tt.seconds, got, tt.expected)
			}
		})
	}
}

// Widths match the monitor text column at the default max_width, with and
// without artwork.
func TestScrollText(t *testing.T) {
	const (
		withArt    = 26
		withoutArt = 35
	)
	title := "Bohemian Rhapsody (Remastered 2011)"

	tests := []struct {
		name     string
		text     string
		width    int
		offset   int
		expected string
	}{
		{"fits without artwork", title, withoutArt, 7, title},
		{"short title", "Song", withArt, 3, "Song"},
		{"clipped beside artwork", title, withArt, 0, "Bohemian Rhapsody (Remaste"},
		{"seam shows separator", title, withArt, 30, "2011)" + scrollSeparator + "Bohemian Rhapsod"},
		{"wraps after a full loop", title, withArt, 40, "Bohemian Rhapsody (Remaste"},
		{"multibyte artist", "坂本龍一 – Merry Christmas Mr. Lawrence", 10, 0, "坂本龍一 – Mer"},
		{"empty", "", withArt, 0, ""},
		{"zero width", title, 0, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := scrollText(tt.text, tt.width, tt.offset); got != tt.expected {
				t.Errorf("scrollText(%q, %d, %d) = %q; want %q", tt.text, tt.width, tt.offset, got, tt.expected)
			}
		})
	}
}

func TestScrollTextKeepsRunesWhole(t *testing.T) {
	album := "戦場のメリークリスマス"
	for offset := 0; offset < 2*utf8.RuneCountInString(album+scrollSeparator); offset++ {
		got := scrollText(album, 5, offset)
		if n := utf8.RuneCountInString(got); n != 5 {
			t.Errorf("offset %d: got %d runes, want 5", offset, n)
		}
		if !utf8.ValidString(got) {
			t.Errorf("offset %d: invalid UTF-8 %q", offset, got)
		}
	}
}

func TestRepeatLabel(t *testing.T) {
	tests := map[RepeatMode]string{
		RepeatNone:    "off",
		RepeatOne:     "one",
		RepeatAll:     "all",
		RepeatMode(9): "off",
	}
	for mode, want := range tests {
		if got := repeatLabel(mode); got != want {
			t.Errorf("repeatLabel(%d) = %q; want %q", mode, got, want)
		}
	}
}

func TestOnOff(t *testing.T) {
	if got := onOff(true); got != "on" {
		t.Errorf("onOff(true) = %q; want \"on\"", got)
	}
	if got := onOff(false); got != "off" {
		t.Errorf("onOff(false) = %q; want \"off\"", got)
	}
}

func BenchmarkScrollText(b *testing.B) {
	text := "坂本龍一 – Merry Christmas Mr. Lawrence (Live at Budokan)"
	for i := 0; i < b.N; i++ {
		scrollText(text, 26, i)
	}
}
