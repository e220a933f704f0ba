package main

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// exclusive hands out a native handle to one caller at a time. The media
// APIs we wrap misbehave under concurrent access, so every native call goes
// through with.
type exclusive[T any] struct {
	sem *semaphore.Weighted
	v   T
}

func newExclusive[T any](v T) *exclusive[T] {
	return &exclusive[T]{sem: semaphore.NewWeighted(1), v: v}
}

func (e *exclusive[T]) with(ctx context.Context, fn func(T) error) error {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer e.sem.Release(1)
	return fn(e.v)
}
