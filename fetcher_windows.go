//go:build windows
// +build windows

package main

import "go.uber.org/zap"

// newPlatformFetcher creates the media fetcher for the current platform
func newPlatformFetcher(log *zap.SugaredLogger) (Fetcher, error) {
	return newGSMTCFetcher(log, config), nil
}
