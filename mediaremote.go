package main

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
)

// Keys of the MediaRemote now-playing dictionary, without the
// kMRMediaRemoteNowPlayingInfo prefix.
var (
	nowPlayingKeys = []string{"title", "artist", "album", "duration", "elapsedTime", "playbackRate"}
	playerModeKeys = []string{"shuffleMode", "repeatMode", "trackNumber", "totalTrackCount"}
)

// MediaRemote encodes repeat as 1, 2, 3 for None, One, All.
var mediaRemoteRepeat = map[int]RepeatMode{1: RepeatNone, 2: RepeatOne, 3: RepeatAll}

// Players activePlayer knows how to ask, in priority order.
var appleScriptPlayers = []string{"Music", "Spotify"}

// MediaRemoteFetcher implements Fetcher for macOS. It reads the system
// now-playing info through a MediaRemote helper CLI (nowplaying-cli by
// default) and names the player with AppleScript.
type MediaRemoteFetcher struct {
	log      *zap.SugaredLogger
	cfg      *SafeConfig
	lookPath func(string) (string, error)
	run      *exclusive[commandRunner]
}

func newMediaRemoteFetcher(log *zap.SugaredLogger, cfg *SafeConfig) *MediaRemoteFetcher {
	return &MediaRemoteFetcher{
		log:      log.Named("mediaremote"),
		cfg:      cfg,
		lookPath: exec.LookPath,
		run:      newExclusive[commandRunner](runCommand),
	}
}

func (m *MediaRemoteFetcher) Init(ctx context.Context) error {
	helper := m.cfg.Get().Darwin.Helper
	if _, err := m.lookPath(helper); err != nil {
		return &InitError{Backend: "mediaremote", Err: err}
	}
	return nil
}

// query asks the helper for keys and returns the values that are present.
func (m *MediaRemoteFetcher) query(ctx context.Context, keys ...string) (map[string]string, error) {
	var out string
	err := m.run.with(ctx, func(run commandRunner) error {
		var err error
		out, err = run(ctx, m.cfg.Get().Darwin.Helper, append([]string{"get"}, keys...)...)
		return err
	})
	if err != nil {
		return nil, err
	}
	return parseNowPlayingOutput(keys, out), nil
}

// parseNowPlayingOutput pairs each requested key with its output line.
// The helper prints "null" for keys it has no value for.
func parseNowPlayingOutput(keys []string, out string) map[string]string {
	values := make(map[string]string, len(keys))
	lines := strings.Split(out, "\n")
	for i, key := range keys {
		if i >= len(lines) {
			break
		}
		v := strings.TrimSpace(lines[i])
		if v == "" || v == "null" || v == "(null)" {
			continue
		}
		values[key] = norm.NFC.String(v)
	}
	return values
}

func (m *MediaRemoteFetcher) invoke(ctx context.Context, args ...string) error {
	return m.run.with(ctx, func(run commandRunner) error {
		_, err := run(ctx, m.cfg.Get().Darwin.Helper, args...)
		return err
	})
}

func (m *MediaRemoteFetcher) PollOnce(ctx context.Context) PlaybackStatus {
	status, err := m.status(ctx)
	if err != nil {
		if !errors.Is(err, ErrNoSession) {
			m.log.Debugw("poll failed", "error", &QueryError{Backend: "mediaremote", Err: err})
		}
		return PlaybackStatus{}
	}
	return status
}

func (m *MediaRemoteFetcher) status(ctx context.Context) (PlaybackStatus, error) {
	info, err := m.query(ctx, nowPlayingKeys...)
	if err != nil {
		return PlaybackStatus{}, err
	}
	if len(info) == 0 {
		return PlaybackStatus{}, ErrNoSession
	}

	status := PlaybackStatus{
		Title:    info["title"],
		Artist:   info["artist"],
		Album:    info["album"],
		Elapsed:  clampSeconds(parseFloat(info["elapsedTime"])),
		Duration: clampSeconds(parseFloat(info["duration"])),
		Playing:  parseFloat(info["playbackRate"]) > 0,
	}
	// MediaRemote does not report album artists
	status.AlbumArtist = status.Artist

	// Repeat, shuffle and track numbers are not part of the primary info
	modes, err := m.query(ctx, playerModeKeys...)
	if err != nil {
		m.log.Debugw("player mode query failed", "error", err)
	}
	applyPlayerModes(&status, modes)

	status.PlayerName = m.activePlayer(ctx)
	return status, nil
}

func applyPlayerModes(status *PlaybackStatus, modes map[string]string) {
	if v, ok := modes["shuffleMode"]; ok {
		// 1 is off, 3 is on; other values are undocumented and treated as on
		status.Shuffle = parseInt(v) != 1
	}
	if v, ok := modes["repeatMode"]; ok {
		if mode, known := mediaRemoteRepeat[parseInt(v)]; known {
			status.Repeat = mode
		}
	}
	if v, ok := modes["trackNumber"]; ok {
		status.TrackNumber = parseInt(v)
	}
	if v, ok := modes["totalTrackCount"]; ok {
		status.TotalTracks = parseInt(v)
	}
}

// activePlayer checks the AppleScript-capable players for one that is not
// stopped. It returns an empty name when none is found.
func (m *MediaRemoteFetcher) activePlayer(ctx context.Context) string {
	for _, player := range appleScriptPlayers {
		script := fmt.Sprintf(`
			tell application "System Events"
				if exists (process "%s") then
					tell application "%s"
						if player state is not stopped then
							return "true"
						end if
					end tell
				end if
				return "false"
			end tell`, player, player)

		var result string
		err := m.run.with(ctx, func(run commandRunner) error {
			var err error
			result, err = run(ctx, "osascript", "-e", script)
			return err
		})
		if err == nil && result == "true" {
			return player
		}
	}
	return ""
}

func (m *MediaRemoteFetcher) HandleCommand(ctx context.Context, req Request, out Sender) error {
	switch req.Type {
	case RequestGetAlbumArt:
		info, err := m.query(ctx, "artworkData")
		if err != nil {
			return err
		}
		data, ok := info["artworkData"]
		if !ok {
			return ErrNoArtwork
		}
		art, err := processAlbumArt([]byte(data), artworkOptionsFrom(m.cfg.Get()))
		if err != nil {
			return err
		}
		return out.Send(art)

	case RequestPlay:
		return m.invoke(ctx, "play")
	case RequestPause:
		return m.invoke(ctx, "pause")
	case RequestSkipBackward:
		return m.invoke(ctx, "previous")
	case RequestSkipForward:
		return m.invoke(ctx, "next")
	case RequestSeek:
		return m.invoke(ctx, "seek", strconv.FormatFloat(req.Position, 'f', -1, 64))

	case RequestSetRepeatMode:
		return m.setRepeatMode(ctx, req.Mode)

	case RequestSetShuffle:
		modes, err := m.query(ctx, "shuffleMode")
		if err != nil {
			return err
		}
		v, ok := modes["shuffleMode"]
		if !ok {
			return fmt.Errorf("failed to get shuffle mode")
		}
		if (parseInt(v) != 1) == req.Shuffle {
			return nil
		}
		if err := m.invoke(ctx, "toggleShuffle"); err != nil {
			return m.scriptMode(ctx, err, func(player string) (string, bool) {
				return shuffleScript(player, req.Shuffle)
			})
		}
		return nil
	}
	return fmt.Errorf("unsupported request %s", req.Type)
}

// setRepeatMode reaches target using the only primitive MediaRemote
// offers, which advances the repeat mode one step along the cycle.
func (m *MediaRemoteFetcher) setRepeatMode(ctx context.Context, target RepeatMode) error {
	cycle, err := parseRepeatCycle(m.cfg.Get().Darwin.RepeatCycle)
	if err != nil {
		return err
	}

	modes, err := m.query(ctx, "repeatMode")
	if err != nil {
		return err
	}
	current, ok := mediaRemoteRepeat[parseInt(modes["repeatMode"])]
	if !ok {
		return fmt.Errorf("failed to get repeat mode")
	}

	steps := repeatSteps(cycle, current, target)
	for i := 0; i < steps; i++ {
		if err := m.invoke(ctx, "toggleRepeat"); err != nil {
			if i > 0 {
				return err
			}
			return m.scriptMode(ctx, err, func(player string) (string, bool) {
				return repeatScript(player, target)
			})
		}
	}
	return nil
}

// scriptMode sets a player mode through AppleScript after the helper
// rejected its toggle command. Stock nowplaying-cli has no toggle verbs.
func (m *MediaRemoteFetcher) scriptMode(ctx context.Context, helperErr error, script func(player string) (string, bool)) error {
	player := m.activePlayer(ctx)
	src, ok := script(player)
	if !ok {
		return fmt.Errorf("helper: %w; no scripted fallback for player %q", helperErr, player)
	}
	m.log.Debugw("helper toggle failed, using AppleScript", "player", player, "error", helperErr)
	return m.run.with(ctx, func(run commandRunner) error {
		_, err := run(ctx, "osascript", "-e", src)
		return err
	})
}

func repeatScript(player string, mode RepeatMode) (string, bool) {
	switch player {
	case "Music":
		value := map[RepeatMode]string{RepeatNone: "off", RepeatOne: "one", RepeatAll: "all"}[mode]
		return fmt.Sprintf(`tell application "Music" to set song repeat to %s`, value), true
	case "Spotify":
		// Spotify only scripts a repeat on/off switch
		if mode == RepeatOne {
			return "", false
		}
		return fmt.Sprintf(`tell application "Spotify" to set repeating to %t`, mode == RepeatAll), true
	}
	return "", false
}

func shuffleScript(player string, on bool) (string, bool) {
	switch player {
	case "Music":
		return fmt.Sprintf(`tell application "Music" to set shuffle enabled to %t`, on), true
	case "Spotify":
		return fmt.Sprintf(`tell application "Spotify" to set shuffling to %t`, on), true
	}
	return "", false
}

// repeatSteps is how many single advances along cycle move current to
// target. It is always 0, 1 or 2.
func repeatSteps(cycle []RepeatMode, current, target RepeatMode) int {
	from, to := -1, -1
	for i, mode := range cycle {
		if mode == current {
			from = i
		}
		if mode == target {
			to = i
		}
	}
	if from < 0 || to < 0 {
		return 0
	}
	n := len(cycle)
	return ((to-from)%n + n) % n
}

// parseRepeatCycle validates the configured advance order. It must name
// each repeat mode exactly once.
func parseRepeatCycle(names []string) ([]RepeatMode, error) {
	if len(names) != 3 {
		return nil, fmt.Errorf("must list None, One and All once each (got %v)", names)
	}
	seen := make(map[RepeatMode]bool, 3)
	cycle := make([]RepeatMode, 0, 3)
	for _, name := range names {
		mode, err := parseRepeatMode(strings.TrimSpace(name))
		if err != nil {
			return nil, err
		}
		if seen[mode] {
			return nil, fmt.Errorf("repeat mode %s listed twice", mode)
		}
		seen[mode] = true
		cycle = append(cycle, mode)
	}
	return cycle, nil
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

func parseInt(s string) int {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return int(parseFloat(s))
}
