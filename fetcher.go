package main

import "context"

// Fetcher observes and controls the OS media session. Exactly one
// implementation is compiled in per platform (see newPlatformFetcher).
type Fetcher interface {
	// Init acquires the native handles. A failure is an *InitError.
	Init(ctx context.Context) error

	// PollOnce reads the current session. It never fails; anything that
	// goes wrong yields the empty status.
	PollOnce(ctx context.Context) PlaybackStatus

	// HandleCommand runs one request against the current session. Only
	// GetAlbumArt produces a response, which goes to out.
	HandleCommand(ctx context.Context, req Request, out Sender) error
}
