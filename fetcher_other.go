//go:build !linux && !darwin && !windows
// +build !linux,!darwin,!windows

package main

import "go.uber.org/zap"

func newPlatformFetcher(log *zap.SugaredLogger) (Fetcher, error) {
	return nil, ErrUnsupportedPlatform
}
