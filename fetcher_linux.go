//go:build linux
// +build linux

package main

import "go.uber.org/zap"

// newPlatformFetcher creates the media fetcher for the current platform
func newPlatformFetcher(log *zap.SugaredLogger) (Fetcher, error) {
	return newMPRISFetcher(log, config), nil
}
