package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// textWidth is how many runes of title, artist and album fit beside the
// artwork, or on their own when no artwork is shown.
func (m monitorModel) textWidth() int {
	width := config.Get().Monitor.MaxWidth
	if m.showsArtwork() {
		return width - 19
	}
	return width - 10
}

func (m monitorModel) View() string {
	cfg := config.Get()

	// Calculate current interpolated position for smooth progress bar
	currentPos := m.currentPosition()
	var progress float64
	if m.status.Duration > 0 {
		progress = currentPos / m.status.Duration
	}

	color := lipgloss.Color(m.color)
	highlight := lipgloss.NewStyle().Foreground(color)
	white := lipgloss.NewStyle().Foreground(lipgloss.Color("15")) // ANSI white

	borderStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(color).
		Padding(1, 2)

	labelStyle := lipgloss.NewStyle().Foreground(color).Bold(true)
	mutedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("203"))

	var textContent strings.Builder
	var progressBarContent string

	header := "󰓃 Now Playing"
	if m.status.PlayerName != "" {
		header += " · " + m.status.PlayerName
	}
	textContent.WriteString(highlight.Render(header) + "\n\n")

	if m.status.IsEmpty() {
		textContent.WriteString(mutedStyle.Render("Nothing playing") + "\n\n")
		textContent.WriteString(dimStyle.Render("Start playing music to begin"))
	} else {
		addLine := func(label, value string) {
			if value != "" {
				fmt.Fprintf(&textContent, "%s %s\n", labelStyle.Render(label), value)
			}
		}

		maxLen := m.textWidth()
		addLine("󰎈 ", scrollText(m.status.Title, maxLen, m.scrollOffset))
		addLine("󰠃 ", scrollText(m.status.Artist, maxLen, m.scrollOffset))
		addLine("󰀥 ", scrollText(m.status.Album, maxLen, m.scrollOffset))

		if m.status.Playing {
			addLine("󰐊 ", "Playing")
		} else {
			addLine("󰏤 ", "Paused")
		}
		addLine("󰑖 ", fmt.Sprintf("repeat %s  shuffle %s", repeatLabel(m.status.Repeat), onOff(m.status.Shuffle)))

		if progress > 0 {
			// Bar width leaves room for the timestamps
			barWidth := cfg.Monitor.MaxWidth - 17
			filled := min(int(float64(barWidth)*progress), barWidth)
			progressBar := highlight.Render(strings.Repeat("█", filled)) +
				white.Render(strings.Repeat("─", barWidth-filled))

			progressBarContent = fmt.Sprintf(
				"\n%s %s/%s",
				progressBar,
				highlight.Render(formatTime(int64(currentPos))),
				highlight.Render(formatTime(int64(m.status.Duration))),
			)
		}
	}

	if m.lastError != nil {
		textContent.WriteString("\n" + errorStyle.Render("Error: "+m.lastError.Error()))
	}

	var topSection string
	if m.artworkEncoded != "" && m.showsArtwork() {
		paddedText := lipgloss.NewStyle().
			PaddingLeft(cfg.Monitor.ArtworkColumns + 2).
			Render(textContent.String())
		topSection = m.artworkEncoded + paddedText
	} else if m.supportsKitty {
		// Delete any image left over from the previous track
		topSection = "\033_Ga=d,d=A\033\\" + textContent.String()
	} else {
		topSection = textContent.String()
	}

	contentStr := borderStyle.
		Width(cfg.Monitor.MaxWidth).
		Render(topSection + progressBarContent)

	var helpText string
	if m.showHelp {
		helpText = lipgloss.NewStyle().
			Width(cfg.Monitor.MaxWidth).
			Align(lipgloss.Center).
			Render(lipgloss.JoinHorizontal(
				lipgloss.Center,
				"Play/Pause: "+highlight.Render("p"),
				"  Next: "+highlight.Render("n"),
				"  Previous: "+highlight.Render("b"),
				"  Repeat: "+highlight.Render("r"),
				"  Shuffle: "+highlight.Render("s"),
				"  Toggle Art: "+highlight.Render("a"),
				"  Quit: "+highlight.Render("q"),
				"  Hide: "+highlight.Render("?"),
			))
	} else {
		helpText = mutedStyle.Render("Press ? for help")
	}

	fullUI := lipgloss.JoinVertical(lipgloss.Center, contentStr, "\n"+helpText)

	return lipgloss.Place(
		m.width, m.height,
		lipgloss.Center, lipgloss.Center,
		fullUI,
	)
}
