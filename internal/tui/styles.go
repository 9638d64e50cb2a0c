package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/airscout/internal/ui"
	"github.com/muurk/airscout/internal/urls"
	"github.com/muurk/airscout/internal/version"
)

// AppName is shown in the header of every screen
const AppName = "AIRSCOUT"

var (
	TitleStyle = lipgloss.NewStyle().
			Foreground(ui.PrimaryColor).
			Bold(true)

	SubtitleStyle = lipgloss.NewStyle().
			Foreground(ui.MutedColor)

	SpinnerStyle = lipgloss.NewStyle().
			Foreground(ui.PrimaryColor)

	StatusLineStyle = lipgloss.NewStyle().
			Foreground(ui.MutedColor).
			Italic(true)

	DetailBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ui.MutedColor).
			Padding(0, 1)
)

func buildHeader() string {
	left := lipgloss.NewStyle().
		Foreground(ui.TextColor).
		Bold(true).
		Render(AppName + " v" + version.Version)
	right := SubtitleStyle.Render(strings.TrimPrefix(urls.Project, "https://"))
	return lipgloss.JoinHorizontal(lipgloss.Top, left, "  ", right)
}

// renderContainer wraps a screen in the bordered full-terminal frame with
// the application header and a help footer
func renderContainer(content, footer string, width, height int) string {
	if width <= 0 {
		width = ui.MinTerminalWidth
	}

	header := lipgloss.NewStyle().
		BorderStyle(lipgloss.Border{Bottom: "─"}).
		BorderForeground(ui.PrimaryColor).
		Width(width-4).
		Padding(0, 1).
		Render(buildHeader())

	foot := lipgloss.NewStyle().
		BorderStyle(lipgloss.Border{Top: "─"}).
		BorderForeground(ui.PrimaryColor).
		Width(width-4).
		Padding(0, 1).
		Render(SubtitleStyle.Render(footer))

	body := lipgloss.NewStyle().Width(width - 4).Render(content)
	inner := lipgloss.JoinVertical(lipgloss.Left, header, body, foot)

	frame := lipgloss.NewStyle().
		Border(lipgloss.NormalBorder()).
		BorderForeground(ui.PrimaryColor).
		Width(width - 2)
	if height > 2 {
		frame = frame.Height(height - 2).AlignVertical(lipgloss.Top)
	}
	bordered := frame.Render(inner)

	if height <= 0 {
		return bordered
	}
	return lipgloss.Place(width, height, lipgloss.Left, lipgloss.Top, bordered)
}
