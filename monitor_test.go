package main

import (
	"context"
	"errors"
	"image/color"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keyMsg(key string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
}

func newTestMonitor(f Fetcher) monitorModel {
	m := newMonitorModel(context.Background(), f, defaultConfig())
	m.supportsKitty = true
	m.artworkEnabled = true
	return m
}

func TestMonitorKeyRequests(t *testing.T) {
	tests := []struct {
		name   string
		status PlaybackStatus
		key    string
		want   Request
	}{
		{"pause while playing", PlaybackStatus{Title: "x", Playing: true}, "p", Request{Type: RequestPause}},
		{"play while paused", PlaybackStatus{Title: "x"}, "p", Request{Type: RequestPlay}},
		{"next", PlaybackStatus{}, "n", Request{Type: RequestSkipForward}},
		{"previous", PlaybackStatus{}, "b", Request{Type: RequestSkipBackward}},
		{"repeat none to one", PlaybackStatus{}, "r", Request{Type: RequestSetRepeatMode, Mode: RepeatOne}},
		{"repeat all wraps", PlaybackStatus{Repeat: RepeatAll}, "r", Request{Type: RequestSetRepeatMode, Mode: RepeatNone}},
		{"shuffle on", PlaybackStatus{}, "s", Request{Type: RequestSetShuffle, Shuffle: true}},
		{"shuffle off", PlaybackStatus{Shuffle: true}, "s", Request{Type: RequestSetShuffle}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeFetcher{}
			m := newTestMonitor(f)
			m.status = tt.status

			_, cmd := m.Update(keyMsg(tt.key))
			require.NotNil(t, cmd)
			msg, ok := cmd().(commandDoneMsg)
			require.True(t, ok)
			assert.NoError(t, msg.err)
			assert.Equal(t, []Request{tt.want}, f.handled())
		})
	}
}

func TestMonitorUnboundKey(t *testing.T) {
	f := &fakeFetcher{}
	_, cmd := newTestMonitor(f).Update(keyMsg("z"))
	assert.Nil(t, cmd)
	assert.Empty(t, f.handled())
}

func TestMonitorCommandError(t *testing.T) {
	m := newTestMonitor(&fakeFetcher{})
	updated, cmd := m.Update(commandDoneMsg{req: Request{Type: RequestSkipForward}, err: ErrNoSession})
	assert.NotNil(t, cmd)

	var cmdErr *CommandError
	require.ErrorAs(t, updated.(monitorModel).lastError, &cmdErr)
	assert.Equal(t, RequestSkipForward, cmdErr.Request)
	assert.Contains(t, updated.(monitorModel).View(), "Error:")
}

func TestMonitorTrackChangeFetchesArtwork(t *testing.T) {
	png := encodePNG(t, generateTestImage(32, 32, color.RGBA{10, 200, 90, 255}))
	art, err := processAlbumArt(png, artworkOptions{MaxEdge: 1000})
	require.NoError(t, err)

	f := &fakeFetcher{handle: func(req Request, out Sender) error {
		return out.Send(art)
	}}
	m := newTestMonitor(f)

	updated, cmd := m.Update(statusMsg{status: sampleStatus()})
	require.NotNil(t, cmd)
	m = updated.(monitorModel)
	assert.Equal(t, sampleStatus().trackID(), m.lastTrackID)

	msg, ok := cmd().(artworkMsg)
	require.True(t, ok)
	require.NoError(t, msg.err)
	assert.Equal(t, []Request{{Type: RequestGetAlbumArt}}, f.handled())

	updated, _ = m.Update(msg)
	m = updated.(monitorModel)
	assert.True(t, strings.HasPrefix(m.artworkEncoded, "\x1b_G"))

	// Same track again: no second fetch
	_, cmd = m.Update(statusMsg{status: sampleStatus()})
	assert.Nil(t, cmd)
}

func TestMonitorStaleArtworkIgnored(t *testing.T) {
	m := newTestMonitor(&fakeFetcher{})
	m.lastTrackID = "current"
	updated, _ := m.Update(artworkMsg{trackID: "previous", encoded: "stale"})
	assert.Empty(t, updated.(monitorModel).artworkEncoded)
}

func TestMonitorArtworkFailureClearsImage(t *testing.T) {
	m := newTestMonitor(&fakeFetcher{})
	m.lastTrackID = "t"
	m.artworkEncoded = "old"
	updated, _ := m.Update(artworkMsg{trackID: "t", err: errors.New("decode failed")})
	assert.Empty(t, updated.(monitorModel).artworkEncoded)
}

func TestMonitorNoArtworkWithoutKitty(t *testing.T) {
	m := newTestMonitor(&fakeFetcher{})
	m.supportsKitty = false
	_, cmd := m.Update(statusMsg{status: sampleStatus()})
	assert.Nil(t, cmd)
}

func TestMonitorEmptyStatusResets(t *testing.T) {
	m := newTestMonitor(&fakeFetcher{})
	m.status = sampleStatus()
	m.lastTrackID = sampleStatus().trackID()
	m.artworkEncoded = "img"

	updated, _ := m.Update(statusMsg{})
	m = updated.(monitorModel)
	assert.Empty(t, m.lastTrackID)
	assert.Empty(t, m.artworkEncoded)
	assert.Contains(t, m.View(), "Nothing playing")
}

func TestMonitorView(t *testing.T) {
	m := newTestMonitor(&fakeFetcher{})
	m.supportsKitty = false
	m.status = sampleStatus()

	view := m.View()
	for _, want := range []string{"Spotify", "Song", "Artist", "Album", "Playing", "repeat all", "shuffle on"} {
		assert.Contains(t, view, want)
	}
}

func TestMonitorCurrentPosition(t *testing.T) {
	m := newTestMonitor(&fakeFetcher{})
	m.status = PlaybackStatus{Title: "x", Elapsed: 10, Duration: 10.5}
	assert.Equal(t, 10.0, m.currentPosition())

	m.status.Playing = true
	pos := m.currentPosition()
	assert.LessOrEqual(t, pos, 10.5)
	assert.GreaterOrEqual(t, pos, 10.0)
}
