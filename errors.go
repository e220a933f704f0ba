package main

import (
	"errors"
	"fmt"
)

var (
	ErrNoSession           = errors.New("no active media session")
	ErrNoTrack             = errors.New("no track is currently playing")
	ErrNoArtwork           = errors.New("no artwork available")
	ErrUnsupportedPlatform = errors.New("unsupported platform")
)

// InitError means the native media subsystem could not be reached at
// start-up. It is fatal.
type InitError struct {
	Backend string
	Err     error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("%s: init failed: %v", e.Backend, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// QueryError is a failed native read during polling. It never leaves the
// fetcher; the poll degrades to the empty status instead.
type QueryError struct {
	Backend string
	Err     error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s: query failed: %v", e.Backend, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// CommandError is a failed control request.
type CommandError struct {
	Request RequestType
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Request, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

// ProtocolError is an inbound line that is not a valid request.
type ProtocolError struct {
	Line string
	Err  error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("malformed request %q: %v", e.Line, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }
