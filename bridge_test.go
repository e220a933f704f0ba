package main

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFetcher plays back a fixed status sequence, repeating the final entry,
// and records every request it is asked to handle.
type fakeFetcher struct {
	mu       sync.Mutex
	statuses []PlaybackStatus
	polls    int
	requests []Request
	handle   func(Request, Sender) error
}

func (f *fakeFetcher) Init(ctx context.Context) error { return nil }

func (f *fakeFetcher) PollOnce(ctx context.Context) PlaybackStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if len(f.statuses) == 0 {
		return PlaybackStatus{}
	}
	s := f.statuses[0]
	if len(f.statuses) > 1 {
		f.statuses = f.statuses[1:]
	}
	return s
}

func (f *fakeFetcher) HandleCommand(ctx context.Context, req Request, out Sender) error {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	handle := f.handle
	f.mu.Unlock()
	if handle != nil {
		return handle(req, out)
	}
	return nil
}

func (f *fakeFetcher) pollCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls
}

func (f *fakeFetcher) handled() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Request(nil), f.requests...)
}

// pollFor runs Poll until the fetcher has been polled n times.
func pollFor(t *testing.T, b *Bridge, f *fakeFetcher, n int) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Poll(ctx) }()

	require.Eventually(t, func() bool { return f.pollCount() >= n }, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestBridgePollEmitsChangesOnly(t *testing.T) {
	playing := sampleStatus()
	drifted := playing
	drifted.Elapsed += 0.05
	advanced := playing
	advanced.Elapsed += 1
	paused := advanced
	paused.Playing = false

	f := &fakeFetcher{statuses: []PlaybackStatus{
		{}, {}, playing, playing, drifted, advanced, paused, paused, {},
	}}
	var out recordingSender
	pollFor(t, newBridge(f, &out, testLogger(), testConfig()), f, 12)

	got := out.statuses()
	require.Equal(t, []PlaybackStatus{playing, advanced, paused, {}}, got)
	for i := 1; i < len(got); i++ {
		assert.False(t, got[i].Equal(got[i-1]), "emission %d repeats the previous status", i)
	}
}

func TestBridgePollSilentWhenNothingPlays(t *testing.T) {
	f := &fakeFetcher{}
	var out recordingSender
	pollFor(t, newBridge(f, &out, testLogger(), testConfig()), f, 5)
	assert.Empty(t, out.all())
}

// stallingFetcher reports one real status, then blocks in the native call
// until cancelled and comes back empty like a failed query.
type stallingFetcher struct {
	fakeFetcher
	polled chan struct{}
	once   sync.Once
	first  bool
}

func (f *stallingFetcher) PollOnce(ctx context.Context) PlaybackStatus {
	f.mu.Lock()
	first := !f.first
	f.first = true
	f.mu.Unlock()
	if first {
		return sampleStatus()
	}
	f.once.Do(func() { close(f.polled) })
	<-ctx.Done()
	return PlaybackStatus{}
}

func TestBridgePollIgnoresInterruptedPoll(t *testing.T) {
	f := &stallingFetcher{polled: make(chan struct{})}
	var out recordingSender
	b := newBridge(f, &out, testLogger(), testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Poll(ctx) }()

	<-f.polled
	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, []PlaybackStatus{sampleStatus()}, out.statuses())
}

func TestBridgePollSendFailure(t *testing.T) {
	f := &fakeFetcher{statuses: []PlaybackStatus{sampleStatus()}}
	b := newBridge(f, newLineWriter(failingWriter{}), testLogger(), testConfig())
	assert.Error(t, b.Poll(context.Background()))
}

func TestBridgeCommands(t *testing.T) {
	art := AlbumArt{Data: pngDataURIPrefix + "AAAA"}
	f := &fakeFetcher{handle: func(req Request, out Sender) error {
		switch req.Type {
		case RequestGetAlbumArt:
			return out.Send(art)
		case RequestSkipForward:
			return ErrNoSession
		}
		return nil
	}}
	var out recordingSender
	b := newBridge(f, &out, testLogger(), testConfig())

	in := strings.Join([]string{
		`{"type":"Play"}`,
		`not json`,
		`{"type":"Rewind"}`,
		``,
		`{"type":"SkipForward"}`,
		`{"type":"GetAlbumArt"}`,
		`{"type":"Seek","position":30.5}`,
	}, "\n")
	require.NoError(t, b.Commands(context.Background(), strings.NewReader(in)))

	assert.Equal(t, []Request{
		{Type: RequestPlay},
		{Type: RequestSkipForward},
		{Type: RequestGetAlbumArt},
		{Type: RequestSeek, Position: 30.5},
	}, f.handled())
	assert.Equal(t, []Response{art}, out.all())
}

func TestBridgeCommandsMalformedOnly(t *testing.T) {
	f := &fakeFetcher{}
	var out recordingSender
	b := newBridge(f, &out, testLogger(), testConfig())

	require.NoError(t, b.Commands(context.Background(), strings.NewReader("{\"type\":\n\x00\x01\n[]\n")))
	assert.Empty(t, f.handled())
	assert.Empty(t, out.all())
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }

func TestBridgeCommandsReadError(t *testing.T) {
	b := newBridge(&fakeFetcher{}, &recordingSender{}, testLogger(), testConfig())
	readErr := errors.New("read /dev/stdin: bad file descriptor")
	assert.ErrorIs(t, b.Commands(context.Background(), errReader{readErr}), readErr)
}

func TestBridgeRunEndsOnStdinEOF(t *testing.T) {
	f := &fakeFetcher{statuses: []PlaybackStatus{sampleStatus()}}
	b := newBridge(f, &recordingSender{}, testLogger(), testConfig())

	done := make(chan error, 1)
	go func() { done <- b.Run(context.Background(), strings.NewReader(`{"type":"Pause"}`+"\n")) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after stdin closed")
	}
}

func TestBridgeRunEndsOnCancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	b := newBridge(&fakeFetcher{}, &recordingSender{}, testLogger(), testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx, pr) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestBridgeRunReportsSendFailure(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	f := &fakeFetcher{statuses: []PlaybackStatus{sampleStatus()}}
	b := newBridge(f, newLineWriter(failingWriter{}), testLogger(), testConfig())

	select {
	case err := <-runAsync(b, pr):
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after a failed write")
	}
}

func runAsync(b *Bridge, in io.Reader) <-chan error {
	done := make(chan error, 1)
	go func() { done <- b.Run(context.Background(), in) }()
	return done
}
