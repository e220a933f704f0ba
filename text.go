package main

import (
	"fmt"
)

// Appended to scrolling text so the loop has a visible seam
const scrollSeparator = "  •  "

// formatTime converts seconds to MM:SS format
func formatTime(seconds int64) string {
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

// scrollText returns a scrolling window of text with smooth looping
func scrollText(text string, max int, offset int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}

	fullText := append(runes, []rune(scrollSeparator)...)
	textLen := len(fullText)

	// Wrap offset around
	offset = offset % textLen

	// Build visible window
	var result []rune
	for i := 0; i < max; i++ {
		result = append(result, fullText[(offset+i)%textLen])
	}
	return string(result)
}

// repeatLabel is the short form of a repeat mode shown in the monitor.
func repeatLabel(mode RepeatMode) string {
	switch mode {
	case RepeatOne:
		return "one"
	case RepeatAll:
		return "all"
	}
	return "off"
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
