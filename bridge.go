package main

import (
	"bufio"
	"context"
	"errors"
	"io"
	"iter"
	"time"

	"go.uber.org/zap"
)

// Bridge connects a Fetcher to the parent process: status changes go out
// through out, requests come in on a line reader.
type Bridge struct {
	fetcher Fetcher
	out     Sender
	log     *zap.SugaredLogger
	cfg     *SafeConfig
}

func newBridge(fetcher Fetcher, out Sender, log *zap.SugaredLogger, cfg *SafeConfig) *Bridge {
	return &Bridge{fetcher: fetcher, out: out, log: log, cfg: cfg}
}

// pollCycles yields one status per poll. The sequence ends only when ctx is
// cancelled or the consumer stops ranging.
func (b *Bridge) pollCycles(ctx context.Context) iter.Seq[PlaybackStatus] {
	return func(yield func(PlaybackStatus) bool) {
		for {
			if ctx.Err() != nil {
				return
			}
			status := b.fetcher.PollOnce(ctx)
			// A poll cut short by cancellation reads as empty
			if ctx.Err() != nil {
				return
			}
			if !yield(status) {
				return
			}

			t := time.NewTimer(b.cfg.Get().Poll.Interval)
			select {
			case <-ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}
		}
	}
}

// Poll emits every status that is not Equal to the previously emitted one.
// Nothing is emitted while the session stays empty from the start.
func (b *Bridge) Poll(ctx context.Context) error {
	var prev PlaybackStatus
	for status := range b.pollCycles(ctx) {
		if status.Equal(prev) {
			continue
		}
		if err := b.out.Send(status); err != nil {
			return err
		}
		prev = status
	}
	return nil
}

// Commands handles requests one line at a time until in is exhausted.
// Malformed lines are dropped and failed commands are logged; neither stops
// the loop.
func (b *Bridge) Commands(ctx context.Context, in io.Reader) error {
	r := bufio.NewReader(in)
	for {
		line, err := r.ReadBytes('\n')
		if len(line) > 0 {
			b.handleLine(ctx, line)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				b.log.Debug("stdin closed")
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (b *Bridge) handleLine(ctx context.Context, line []byte) {
	req, err := decodeRequest(line)
	if err != nil {
		b.log.Debugw("dropping request", "error", err)
		return
	}

	b.log.Debugw("handling request", "request", req)
	if err := b.fetcher.HandleCommand(ctx, req, b.out); err != nil {
		b.log.Errorw("command failed", "error", &CommandError{Request: req.Type, Err: err})
	}
}

// Run races polling, command handling and ctx. It returns as soon as the
// first of them finishes and does not wait for the other activity.
func (b *Bridge) Run(ctx context.Context, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 2)
	go func() { done <- b.Poll(ctx) }()
	go func() { done <- b.Commands(ctx, in) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return nil
	}
}
