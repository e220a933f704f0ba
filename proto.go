package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// RequestType names an inbound command.
type RequestType string

const (
	RequestGetAlbumArt   RequestType = "GetAlbumArt"
	RequestPlay          RequestType = "Play"
	RequestPause         RequestType = "Pause"
	RequestSkipBackward  RequestType = "SkipBackward"
	RequestSkipForward   RequestType = "SkipForward"
	RequestSetRepeatMode RequestType = "SetRepeatMode"
	RequestSetShuffle    RequestType = "SetShuffle"
	RequestSeek          RequestType = "Seek"
)

// Request is one command from the parent. Only the field matching Type is
// meaningful: Mode for SetRepeatMode, Shuffle for SetShuffle and Position
// (seconds) for Seek.
type Request struct {
	Type     RequestType
	Mode     RepeatMode
	Shuffle  bool
	Position float64
}

func (r Request) String() string {
	switch r.Type {
	case RequestSetRepeatMode:
		return fmt.Sprintf("%s(%s)", r.Type, r.Mode)
	case RequestSetShuffle:
		return fmt.Sprintf("%s(%t)", r.Type, r.Shuffle)
	case RequestSeek:
		return fmt.Sprintf("%s(%.2f)", r.Type, r.Position)
	}
	return string(r.Type)
}

type wireRequest struct {
	Type     RequestType `json:"type"`
	Mode     *RepeatMode `json:"mode"`
	Shuffle  *bool       `json:"shuffle"`
	Position *float64    `json:"position"`
}

func (r Request) MarshalJSON() ([]byte, error) {
	w := wireRequest{Type: r.Type}
	switch r.Type {
	case RequestSetRepeatMode:
		w.Mode = &r.Mode
	case RequestSetShuffle:
		w.Shuffle = &r.Shuffle
	case RequestSeek:
		w.Position = &r.Position
	}
	return json.Marshal(w)
}

func (r *Request) UnmarshalJSON(data []byte) error {
	var w wireRequest
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	req := Request{Type: w.Type}
	switch w.Type {
	case RequestGetAlbumArt, RequestPlay, RequestPause, RequestSkipBackward, RequestSkipForward:
	case RequestSetRepeatMode:
		if w.Mode == nil {
			return fmt.Errorf("%s: missing mode", w.Type)
		}
		req.Mode = *w.Mode
	case RequestSetShuffle:
		if w.Shuffle == nil {
			return fmt.Errorf("%s: missing shuffle", w.Type)
		}
		req.Shuffle = *w.Shuffle
	case RequestSeek:
		if w.Position == nil {
			return fmt.Errorf("%s: missing position", w.Type)
		}
		req.Position = clampSeconds(*w.Position)
	case "":
		return fmt.Errorf("missing request type")
	default:
		return fmt.Errorf("unknown request type %q", w.Type)
	}

	*r = req
	return nil
}

// decodeRequest parses one inbound line.
func decodeRequest(line []byte) (Request, error) {
	line = bytes.TrimSpace(line)
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return Request{}, &ProtocolError{Line: string(line), Err: err}
	}
	return req, nil
}

// Response is one outbound message. PlaybackStatus and AlbumArt are the
// two variants.
type Response interface {
	responseType() string
}

// AlbumArt carries the current cover as a PNG data URI.
type AlbumArt struct {
	Data  string `json:"data"`
	Color string `json:"color,omitempty"`
}

func (AlbumArt) responseType() string       { return "AlbumArt" }
func (PlaybackStatus) responseType() string { return "PlaybackStatus" }

func encodeResponse(r Response) ([]byte, error) {
	switch v := r.(type) {
	case PlaybackStatus:
		return json.Marshal(struct {
			Type string `json:"type"`
			PlaybackStatus
		}{v.responseType(), v})
	case AlbumArt:
		return json.Marshal(struct {
			Type string `json:"type"`
			AlbumArt
		}{v.responseType(), v})
	}
	return nil, fmt.Errorf("unsupported response %T", r)
}

// Sender delivers responses to the parent.
type Sender interface {
	Send(Response) error
}

// lineWriter writes one JSON object per line. Each line goes out in a single
// Write so concurrent senders never interleave within a line.
type lineWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func newLineWriter(w io.Writer) *lineWriter {
	return &lineWriter{w: w}
}

func (l *lineWriter) Send(r Response) error {
	data, err := encodeResponse(r)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.w.Write(data); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	return nil
}
