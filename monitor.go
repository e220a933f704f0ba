package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// monitorModel is the Bubble Tea model behind --monitor. It drives the
// same Fetcher the bridge uses and renders the canonical status.
type monitorModel struct {
	ctx     context.Context
	fetcher Fetcher

	status    PlaybackStatus
	color     string
	width     int
	height    int
	lastError error

	// When status was fetched, for smooth position interpolation
	lastPositionTime time.Time

	// Album artwork support
	artworkEncoded string // Kitty protocol-encoded artwork for display
	supportsKitty  bool   // Whether terminal supports Kitty graphics
	artworkEnabled bool
	lastTrackID    string // Track the artwork belongs to

	// Text scrolling state
	scrollOffset int
	scrollPause  int
	scrollTick   int

	showHelp bool
}

// UI refresh tick - fires every 100ms for smooth rendering
type tickMsg time.Time

// Data fetch tick - fires every poll interval to get fresh metadata
type fetchMsg time.Time

type statusMsg struct {
	status PlaybackStatus
}

type artworkMsg struct {
	trackID string
	encoded string
	color   string
	err     error
}

type commandDoneMsg struct {
	req Request
	err error
}

type configReloadMsg struct{}

func newMonitorModel(ctx context.Context, fetcher Fetcher, cfg Config) monitorModel {
	return monitorModel{
		ctx:            ctx,
		fetcher:        fetcher,
		color:          cfg.Monitor.Color,
		supportsKitty:  supportsKittyGraphics(),
		artworkEnabled: cfg.Monitor.Artwork,
	}
}

// runMonitor shows the interactive now-playing view until the user quits
// or ctx is cancelled.
func runMonitor(ctx context.Context, fetcher Fetcher) error {
	p := tea.NewProgram(
		newMonitorModel(ctx, fetcher, config.Get()),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// albumArtSink keeps the AlbumArt responses a command produces.
type albumArtSink struct {
	mu  sync.Mutex
	art *AlbumArt
}

func (s *albumArtSink) Send(r Response) error {
	art, ok := r.(AlbumArt)
	if !ok {
		return fmt.Errorf("unexpected response %T", r)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.art = &art
	return nil
}

func (s *albumArtSink) get() (AlbumArt, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.art == nil {
		return AlbumArt{}, false
	}
	return *s.art, true
}

func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func fetchCmd() tea.Cmd {
	return tea.Tick(config.Get().Poll.Interval, func(t time.Time) tea.Msg {
		return fetchMsg(t)
	})
}

// watchConfigCmd waits for the next config file change
func watchConfigCmd() tea.Cmd {
	return func() tea.Msg {
		<-configChangeChan
		return configReloadMsg{}
	}
}

// Fetch status in background (doesn't block UI)
func (m monitorModel) fetchStatus() tea.Cmd {
	return func() tea.Msg {
		return statusMsg{status: m.fetcher.PollOnce(m.ctx)}
	}
}

func (m monitorModel) fetchArtwork(trackID string) tea.Cmd {
	return func() tea.Msg {
		var sink albumArtSink
		if err := m.fetcher.HandleCommand(m.ctx, Request{Type: RequestGetAlbumArt}, &sink); err != nil {
			return artworkMsg{trackID: trackID, err: err}
		}
		art, ok := sink.get()
		if !ok {
			return artworkMsg{trackID: trackID, err: ErrNoArtwork}
		}
		encoded, err := encodeKittyImage(art.Data, config.Get().Monitor.ArtworkColumns)
		return artworkMsg{trackID: trackID, encoded: encoded, color: art.Color, err: err}
	}
}

func (m monitorModel) sendRequest(req Request) tea.Cmd {
	return func() tea.Msg {
		return commandDoneMsg{req: req, err: m.fetcher.HandleCommand(m.ctx, req, &albumArtSink{})}
	}
}

// Calculate current position with smooth interpolation
func (m monitorModel) currentPosition() float64 {
	if !m.status.Playing {
		return m.status.Elapsed
	}
	pos := m.status.Elapsed + time.Since(m.lastPositionTime).Seconds()
	if m.status.Duration > 0 && pos > m.status.Duration {
		pos = m.status.Duration
	}
	return pos
}

func (m monitorModel) showsArtwork() bool {
	return m.supportsKitty && m.artworkEnabled
}

// keyRequest maps a key press to the request it sends, if any.
func (m monitorModel) keyRequest(key string) (Request, bool) {
	switch key {
	case "p":
		if m.status.Playing {
			return Request{Type: RequestPause}, true
		}
		return Request{Type: RequestPlay}, true
	case "n":
		return Request{Type: RequestSkipForward}, true
	case "b":
		return Request{Type: RequestSkipBackward}, true
	case "r":
		return Request{Type: RequestSetRepeatMode, Mode: (m.status.Repeat + 1) % 3}, true
	case "s":
		return Request{Type: RequestSetShuffle, Shuffle: !m.status.Shuffle}, true
	}
	return Request{}, false
}

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		m.fetchStatus(),
		fetchCmd(),
		watchConfigCmd(),
	)
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch key := msg.String(); key {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "a":
			m.artworkEnabled = !m.artworkEnabled
			if !m.artworkEnabled {
				m.artworkEncoded = ""
			} else if m.supportsKitty && !m.status.IsEmpty() {
				m.lastTrackID = m.status.trackID()
				return m, m.fetchArtwork(m.lastTrackID)
			}
			return m, nil
		case "?":
			m.showHelp = !m.showHelp
			return m, nil
		default:
			if req, ok := m.keyRequest(key); ok {
				return m, m.sendRequest(req)
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case configReloadMsg:
		cfg := config.Get()
		m.color = cfg.Monitor.Color
		return m, watchConfigCmd()

	case tickMsg:
		m.scrollTick++
		if m.scrollPause > 0 {
			m.scrollPause--
		} else if m.scrollTick%3 == 0 { // Scroll every 3rd tick (300ms)
			m.scrollOffset++

			longest := max(len([]rune(m.status.Title)), len([]rune(m.status.Artist)), len([]rune(m.status.Album)))
			if longest > m.textWidth() && m.scrollOffset >= longest+len([]rune(scrollSeparator)) {
				m.scrollOffset = 0
				m.scrollPause = 30 // Pause for 3 seconds when looping back
			}
		}
		return m, tickCmd()

	case fetchMsg:
		return m, tea.Batch(fetchCmd(), m.fetchStatus())

	case statusMsg:
		return m.applyStatus(msg.status)

	case artworkMsg:
		if msg.trackID != m.lastTrackID {
			return m, nil
		}
		if msg.err == nil {
			m.artworkEncoded = msg.encoded
			if msg.color != "" {
				m.color = msg.color
			}
		} else {
			m.artworkEncoded = ""
		}
		return m, nil

	case commandDoneMsg:
		m.lastError = nil
		if msg.err != nil {
			m.lastError = &CommandError{Request: msg.req.Type, Err: msg.err}
		}
		// Immediately fetch fresh state after control action
		return m, m.fetchStatus()
	}

	return m, nil
}

func (m monitorModel) applyStatus(status PlaybackStatus) (tea.Model, tea.Cmd) {
	m.status = status
	m.lastPositionTime = time.Now()

	if status.IsEmpty() {
		m.artworkEncoded = ""
		m.lastTrackID = ""
		return m, nil
	}

	trackID := status.trackID()
	if trackID == m.lastTrackID {
		return m, nil
	}

	// Track changed: restart scrolling and refresh the artwork
	m.lastTrackID = trackID
	m.scrollOffset = 0
	m.scrollPause = 30
	m.scrollTick = 0
	m.artworkEncoded = ""
	if m.showsArtwork() {
		return m, m.fetchArtwork(trackID)
	}
	return m, nil
}
