package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"
)

const (
	mprisPath         = dbus.ObjectPath("/org/mpris/MediaPlayer2")
	mprisBusPrefix    = "org.mpris.MediaPlayer2."
	mprisRootIface    = "org.mpris.MediaPlayer2"
	mprisPlayerIface  = "org.mpris.MediaPlayer2.Player"
	dbusPropertiesGet = "org.freedesktop.DBus.Properties.GetAll"
	dbusPropertiesSet = "org.freedesktop.DBus.Properties.Set"
)

// mprisBus is the part of the session bus the MPRIS backend talks to.
type mprisBus interface {
	ListNames(ctx context.Context) ([]string, error)
	GetAll(ctx context.Context, dest, iface string) (map[string]dbus.Variant, error)
	Call(ctx context.Context, dest, method string, args ...interface{}) error
	Set(ctx context.Context, dest, iface, prop string, value dbus.Variant) error
}

type dbusSession struct {
	conn *dbus.Conn
}

func (s *dbusSession) ListNames(ctx context.Context) ([]string, error) {
	var names []string
	err := s.conn.BusObject().CallWithContext(ctx, "org.freedesktop.DBus.ListNames", 0).Store(&names)
	return names, err
}

func (s *dbusSession) GetAll(ctx context.Context, dest, iface string) (map[string]dbus.Variant, error) {
	var props map[string]dbus.Variant
	err := s.conn.Object(dest, mprisPath).CallWithContext(ctx, dbusPropertiesGet, 0, iface).Store(&props)
	return props, err
}

func (s *dbusSession) Call(ctx context.Context, dest, method string, args ...interface{}) error {
	return s.conn.Object(dest, mprisPath).CallWithContext(ctx, mprisPlayerIface+"."+method, 0, args...).Err
}

func (s *dbusSession) Set(ctx context.Context, dest, iface, prop string, value dbus.Variant) error {
	return s.conn.Object(dest, mprisPath).CallWithContext(ctx, dbusPropertiesSet, 0, iface, prop, value).Err
}

// MPRISFetcher implements Fetcher over the MPRIS D-Bus interface
type MPRISFetcher struct {
	log    *zap.SugaredLogger
	cfg    *SafeConfig
	dial   func() (mprisBus, error)
	bus    *exclusive[mprisBus]
	client *http.Client
}

func newMPRISFetcher(log *zap.SugaredLogger, cfg *SafeConfig) *MPRISFetcher {
	return &MPRISFetcher{
		log: log.Named("mpris"),
		cfg: cfg,
		dial: func() (mprisBus, error) {
			conn, err := dbus.ConnectSessionBus()
			if err != nil {
				return nil, err
			}
			return &dbusSession{conn: conn}, nil
		},
		client: &http.Client{},
	}
}

func (m *MPRISFetcher) Init(ctx context.Context) error {
	bus, err := m.dial()
	if err != nil {
		return &InitError{Backend: "mpris", Err: err}
	}
	m.bus = newExclusive(bus)
	return nil
}

// mprisPlayer is a resolved player and its Player interface properties.
type mprisPlayer struct {
	name  string
	props map[string]dbus.Variant
}

// findPlayer returns the first player that is playing, or else the first
// player on the bus in name order.
func findPlayer(ctx context.Context, bus mprisBus) (mprisPlayer, error) {
	names, err := bus.ListNames(ctx)
	if err != nil {
		return mprisPlayer{}, err
	}

	var players []string
	for _, name := range names {
		if strings.HasPrefix(name, mprisBusPrefix) {
			players = append(players, name)
		}
	}
	sort.Strings(players)

	var first *mprisPlayer
	for _, name := range players {
		props, err := bus.GetAll(ctx, name, mprisPlayerIface)
		if err != nil {
			continue
		}
		p := mprisPlayer{name: name, props: props}
		if variantString(props["PlaybackStatus"]) == "Playing" {
			return p, nil
		}
		if first == nil {
			first = &p
		}
	}
	if first == nil {
		return mprisPlayer{}, ErrNoSession
	}
	return *first, nil
}

func (m *MPRISFetcher) PollOnce(ctx context.Context) PlaybackStatus {
	var status PlaybackStatus
	err := m.bus.with(ctx, func(bus mprisBus) error {
		p, err := findPlayer(ctx, bus)
		if err != nil {
			return err
		}
		identity := strings.TrimPrefix(p.name, mprisBusPrefix)
		if root, err := bus.GetAll(ctx, p.name, mprisRootIface); err == nil {
			if id := variantString(root["Identity"]); id != "" {
				identity = id
			}
		}
		status = mprisStatus(identity, p.props)
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrNoSession) {
			m.log.Debugw("poll failed", "error", &QueryError{Backend: "mpris", Err: err})
		}
		return PlaybackStatus{}
	}
	return status
}

// mprisStatus maps Player interface properties onto the canonical model.
func mprisStatus(identity string, props map[string]dbus.Variant) PlaybackStatus {
	status := PlaybackStatus{
		PlayerName: identity,
		Playing:    variantString(props["PlaybackStatus"]) == "Playing",
		Shuffle:    variantBool(props["Shuffle"]),
		Elapsed:    clampSeconds(float64(variantInt64(props["Position"])) / 1e6),
	}

	switch variantString(props["LoopStatus"]) {
	case "Playlist":
		status.Repeat = RepeatAll
	case "Track":
		status.Repeat = RepeatOne
	}

	meta := mprisMetadata(props)
	status.Title = variantString(meta["xesam:title"])
	status.Artist = strings.Join(variantStrings(meta["xesam:artist"]), ", ")
	status.Album = variantString(meta["xesam:album"])
	status.AlbumArtist = strings.Join(variantStrings(meta["xesam:albumArtist"]), ", ")
	status.TrackNumber = int(variantInt64(meta["xesam:trackNumber"]))
	// MPRIS has no total track count
	status.TotalTracks = status.TrackNumber
	status.Duration = clampSeconds(float64(variantInt64(meta["mpris:length"])) / 1e6)

	return status
}

func mprisMetadata(props map[string]dbus.Variant) map[string]dbus.Variant {
	v, ok := props["Metadata"]
	if !ok {
		return nil
	}
	meta, _ := v.Value().(map[string]dbus.Variant)
	return meta
}

func (m *MPRISFetcher) HandleCommand(ctx context.Context, req Request, out Sender) error {
	if req.Type == RequestGetAlbumArt {
		return m.sendAlbumArt(ctx, out)
	}

	return m.bus.with(ctx, func(bus mprisBus) error {
		p, err := findPlayer(ctx, bus)
		if err != nil {
			return err
		}

		switch req.Type {
		case RequestPlay:
			return bus.Call(ctx, p.name, "Play")
		case RequestPause:
			return bus.Call(ctx, p.name, "Pause")
		case RequestSkipBackward:
			return bus.Call(ctx, p.name, "Previous")
		case RequestSkipForward:
			return bus.Call(ctx, p.name, "Next")
		case RequestSetRepeatMode:
			return bus.Set(ctx, p.name, mprisPlayerIface, "LoopStatus", dbus.MakeVariant(loopStatus(req.Mode)))
		case RequestSetShuffle:
			return bus.Set(ctx, p.name, mprisPlayerIface, "Shuffle", dbus.MakeVariant(req.Shuffle))
		case RequestSeek:
			trackID := dbus.ObjectPath(variantString(mprisMetadata(p.props)["mpris:trackid"]))
			if !trackID.IsValid() {
				return ErrNoTrack
			}
			return bus.Call(ctx, p.name, "SetPosition", trackID, int64(req.Position*1e6))
		}
		return fmt.Errorf("unsupported request %s", req.Type)
	})
}

func loopStatus(mode RepeatMode) string {
	switch mode {
	case RepeatAll:
		return "Playlist"
	case RepeatOne:
		return "Track"
	}
	return "None"
}

func (m *MPRISFetcher) sendAlbumArt(ctx context.Context, out Sender) error {
	var artURL string
	err := m.bus.with(ctx, func(bus mprisBus) error {
		p, err := findPlayer(ctx, bus)
		if err != nil {
			return err
		}
		artURL = variantString(mprisMetadata(p.props)["mpris:artUrl"])
		return nil
	})
	if err != nil {
		return err
	}

	cfg := m.cfg.Get()
	data, err := loadArtURL(ctx, m.client, artURL, cfg.Artwork.HTTPTimeout)
	if err != nil {
		return err
	}
	art, err := processAlbumArt(data, artworkOptionsFrom(cfg))
	if err != nil {
		return err
	}
	return out.Send(art)
}

// Downloads beyond this size are not cover art.
var maxArtworkBytes int64 = 20 << 20

// loadArtURL fetches cover bytes from a file://, http(s):// or data: URL.
func loadArtURL(ctx context.Context, client *http.Client, artURL string, timeout time.Duration) ([]byte, error) {
	if artURL == "" {
		return nil, ErrNoArtwork
	}

	if rest, ok := strings.CutPrefix(artURL, "data:"); ok {
		_, payload, found := strings.Cut(rest, ";base64,")
		if !found {
			return nil, fmt.Errorf("unsupported artwork data URL")
		}
		return base64.StdEncoding.DecodeString(payload)
	}

	u, err := url.Parse(artURL)
	if err != nil {
		return nil, fmt.Errorf("invalid artwork URL: %w", err)
	}

	switch u.Scheme {
	case "file":
		data, err := os.ReadFile(u.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to read artwork file: %w", err)
		}
		return data, nil

	case "http", "https":
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, artURL, nil)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to download artwork: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("artwork download failed with status: %d", resp.StatusCode)
		}
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxArtworkBytes+1))
		if err != nil {
			return nil, fmt.Errorf("failed to read artwork data: %w", err)
		}
		if int64(len(data)) > maxArtworkBytes {
			return nil, fmt.Errorf("artwork larger than %d bytes", maxArtworkBytes)
		}
		return data, nil
	}

	return nil, fmt.Errorf("unsupported artwork URL scheme: %s", artURL)
}

func variantString(v dbus.Variant) string {
	switch s := v.Value().(type) {
	case string:
		return s
	case dbus.ObjectPath:
		return string(s)
	}
	return ""
}

func variantStrings(v dbus.Variant) []string {
	switch s := v.Value().(type) {
	case []string:
		return s
	case string:
		if s != "" {
			return []string{s}
		}
	}
	return nil
}

func variantBool(v dbus.Variant) bool {
	b, _ := v.Value().(bool)
	return b
}

// variantInt64 accepts any of the integer types players use for
// positions, lengths and track numbers.
func variantInt64(v dbus.Variant) int64 {
	switch n := v.Value().(type) {
	case int64:
		return n
	case uint64:
		return int64(n)
	case int32:
		return int64(n)
	case uint32:
		return int64(n)
	case int16:
		return int64(n)
	case uint16:
		return int64(n)
	case int:
		return int64(n)
	case byte:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}
