package main

import (
	"bufio"
	"bytes"
	"context"
	_ "embed"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"

	"go.uber.org/zap"
	"golang.org/x/text/encoding/unicode"
)

//go:embed gsmtc.ps1
var gsmtcScript string

// GSMTC positions and durations are in 100ns ticks.
const ticksPerSecond = 1e7

// Spotify paints a watermark onto thumbnails for free accounts.
var spotifyAppIDs = map[string]bool{
	"Spotify.exe": true,
	"SpotifyAB.SpotifyMusic_zpdnekdrzrea0!Spotify": true,
}

// gsmtcHost answers one command with one JSON reply. A reply with ok=false
// comes back as an error carrying the host's message.
type gsmtcHost interface {
	Call(ctx context.Context, command string, reply any) error
	Close() error
}

// psHost is a resident PowerShell process running gsmtc.ps1. It holds the
// session manager for the lifetime of the bridge and exits when its stdin
// closes, which also happens when this process dies.
type psHost struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
}

func startPSHost(ctx context.Context, powershell string) (gsmtcHost, error) {
	encoded, err := encodePSCommand(gsmtcScript)
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(powershell, "-NoProfile", "-NonInteractive", "-ExecutionPolicy", "Bypass", "-EncodedCommand", encoded)
	hideWindow(cmd)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", powershell, err)
	}

	h := &psHost{cmd: cmd, stdin: stdin, stdout: bufio.NewReader(stdout)}
	// The script's first line reports whether the session manager was acquired
	if err := h.read(nil); err != nil {
		h.Close()
		return nil, err
	}
	return h, nil
}

// encodePSCommand renders script for -EncodedCommand, which takes base64 of
// UTF-16LE text.
func encodePSCommand(script string) (string, error) {
	utf16, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder().String(script)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString([]byte(utf16)), nil
}

// Call does not interrupt a reply in flight; the host answers every line.
func (h *psHost) Call(ctx context.Context, command string, reply any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := io.WriteString(h.stdin, command+"\n"); err != nil {
		return fmt.Errorf("gsmtc host: %w", err)
	}
	return h.read(reply)
}

func (h *psHost) read(reply any) error {
	line, err := readHostLine(h.stdout)
	if err != nil {
		return fmt.Errorf("gsmtc host: %w", err)
	}
	return decodeHostReply(line, reply)
}

// readHostLine returns the next JSON object line. Anything else PowerShell
// prints (host warnings, progress records) is skipped so replies stay
// paired with their requests.
func readHostLine(r *bufio.Reader) ([]byte, error) {
	for {
		line, err := r.ReadBytes('\n')
		if trimmed := bytes.TrimSpace(bytes.TrimPrefix(line, utf8BOM)); bytes.HasPrefix(trimmed, []byte("{")) {
			return line, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

func (h *psHost) Close() error {
	h.stdin.Close()
	return h.cmd.Wait()
}

var utf8BOM = []byte("\xef\xbb\xbf")

func decodeHostReply(line []byte, reply any) error {
	line = bytes.TrimSpace(bytes.TrimPrefix(line, utf8BOM))

	var envelope struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(line, &envelope); err != nil {
		return fmt.Errorf("gsmtc host: bad reply: %w", err)
	}
	if !envelope.OK {
		if envelope.Error == "" {
			return errors.New("gsmtc host: request failed")
		}
		return errors.New(envelope.Error)
	}
	if reply == nil {
		return nil
	}
	return json.Unmarshal(line, reply)
}

type gsmtcStatusReply struct {
	Session     bool    `json:"session"`
	App         string  `json:"app"`
	Title       string  `json:"title"`
	Artist      string  `json:"artist"`
	Album       string  `json:"album"`
	AlbumArtist string  `json:"albumArtist"`
	TrackNumber int     `json:"trackNumber"`
	TrackCount  int     `json:"trackCount"`
	Position    int64   `json:"position"`
	EndTime     int64   `json:"endTime"`
	Playback    string  `json:"playback"`
	Repeat      *string `json:"repeat"`
	Shuffle     *bool   `json:"shuffle"`
}

type gsmtcThumbnailReply struct {
	App  string `json:"app"`
	Data string `json:"data"`
}

type gsmtcTransportReply struct {
	Result bool `json:"result"`
}

// GSMTCFetcher implements Fetcher on Windows through the
// GlobalSystemMediaTransportControls session manager.
type GSMTCFetcher struct {
	log   *zap.SugaredLogger
	cfg   *SafeConfig
	start func(ctx context.Context, powershell string) (gsmtcHost, error)
	host  *exclusive[gsmtcHost]
}

func newGSMTCFetcher(log *zap.SugaredLogger, cfg *SafeConfig) *GSMTCFetcher {
	return &GSMTCFetcher{
		log:   log.Named("gsmtc"),
		cfg:   cfg,
		start: startPSHost,
	}
}

func (g *GSMTCFetcher) Init(ctx context.Context) error {
	host, err := g.start(ctx, g.cfg.Get().Windows.PowerShell)
	if err != nil {
		return &InitError{Backend: "gsmtc", Err: err}
	}
	g.host = newExclusive(host)
	return nil
}

func (g *GSMTCFetcher) call(ctx context.Context, command string, reply any) error {
	return g.host.with(ctx, func(h gsmtcHost) error {
		return h.Call(ctx, command, reply)
	})
}

func (g *GSMTCFetcher) PollOnce(ctx context.Context) PlaybackStatus {
	var reply gsmtcStatusReply
	if err := g.call(ctx, "status", &reply); err != nil {
		g.log.Debugw("poll failed", "error", &QueryError{Backend: "gsmtc", Err: err})
		return PlaybackStatus{}
	}
	status, err := gsmtcStatus(reply)
	if err != nil {
		return PlaybackStatus{}
	}
	return status
}

// gsmtcStatus maps a host status reply onto the canonical model. A session
// with a zero end time has finished and counts as no session.
func gsmtcStatus(r gsmtcStatusReply) (PlaybackStatus, error) {
	if !r.Session || r.EndTime == 0 {
		return PlaybackStatus{}, ErrNoSession
	}

	status := PlaybackStatus{
		PlayerName:  r.App,
		Title:       r.Title,
		Artist:      r.Artist,
		Album:       r.Album,
		AlbumArtist: r.AlbumArtist,
		Elapsed:     clampSeconds(float64(r.Position) / ticksPerSecond),
		Duration:    clampSeconds(float64(r.EndTime) / ticksPerSecond),
		Playing:     r.Playback == "Playing",
		TrackNumber: r.TrackNumber,
		TotalTracks: r.TrackCount,
	}
	if r.Repeat != nil {
		switch *r.Repeat {
		case "List":
			status.Repeat = RepeatAll
		case "Track":
			status.Repeat = RepeatOne
		}
	}
	if r.Shuffle != nil {
		status.Shuffle = *r.Shuffle
	}
	return status, nil
}

func autoRepeatMode(mode RepeatMode) string {
	switch mode {
	case RepeatAll:
		return "List"
	case RepeatOne:
		return "Track"
	}
	return "None"
}

func (g *GSMTCFetcher) HandleCommand(ctx context.Context, req Request, out Sender) error {
	switch req.Type {
	case RequestGetAlbumArt:
		return g.sendAlbumArt(ctx, out)
	case RequestPlay:
		return g.transport(ctx, "play")
	case RequestPause:
		return g.transport(ctx, "pause")
	case RequestSkipBackward:
		return g.transport(ctx, "previous")
	case RequestSkipForward:
		return g.transport(ctx, "next")
	case RequestSetRepeatMode:
		return g.transport(ctx, "repeat "+autoRepeatMode(req.Mode))
	case RequestSetShuffle:
		return g.transport(ctx, "shuffle "+strconv.FormatBool(req.Shuffle))
	case RequestSeek:
		ticks := int64(req.Position * ticksPerSecond)
		return g.transport(ctx, "seek "+strconv.FormatInt(ticks, 10))
	}
	return fmt.Errorf("unsupported request %s", req.Type)
}

func (g *GSMTCFetcher) transport(ctx context.Context, command string) error {
	var reply gsmtcTransportReply
	if err := g.call(ctx, command, &reply); err != nil {
		return err
	}
	if !reply.Result {
		return fmt.Errorf("session rejected %q", command)
	}
	return nil
}

// sendAlbumArt retries the thumbnail read, which commonly fails for the
// first moments after a track change.
func (g *GSMTCFetcher) sendAlbumArt(ctx context.Context, out Sender) error {
	cfg := g.cfg.Get()

	var thumb gsmtcThumbnailReply
	attempt := 0
	err := cfg.retryPolicy().do(ctx, func() error {
		attempt++
		thumb = gsmtcThumbnailReply{}
		if err := g.call(ctx, "thumbnail", &thumb); err != nil {
			g.log.Debugw("thumbnail read failed", "attempt", attempt, "error", err)
			return err
		}
		if thumb.Data == "" {
			return ErrNoArtwork
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNoArtwork) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrNoArtwork, err)
	}

	opts := artworkOptionsFrom(cfg)
	opts.StripWatermark = spotifyAppIDs[thumb.App]
	art, err := processAlbumArt([]byte(thumb.Data), opts)
	if err != nil {
		return err
	}
	return out.Send(art)
}
