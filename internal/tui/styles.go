package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/esp32ctl/internal/ui"
	"github.com/muurk/esp32ctl/internal/version"
)

// Application branding constants
const (
	AppName   = "ESP32 CONTROL PANEL"
	GitHubURL = "github.com/muurk/esp32ctl"
)

// Layout constants for responsive terminal width
const (
	MinTerminalWidth = 60
	DefaultWidth     = 80
	DefaultHeight    = 24

	// chrome is the rows taken by the container around the content:
	// outer border, header and footer with their rules, tab bar and
	// status line.
	chrome = 9
)

var (
	TitleStyle = lipgloss.NewStyle().
			Foreground(ui.PrimaryColor).
			Bold(true).
			Padding(1, 0)

	SubtitleStyle = lipgloss.NewStyle().
			Foreground(ui.MutedColor).
			Italic(true)

	SpinnerStyle = lipgloss.NewStyle().
			Foreground(ui.PrimaryColor)

	SelectedMenuItemStyle = lipgloss.NewStyle().
				Foreground(ui.SuccessColor).
				Bold(true)

	ModalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ui.PrimaryColor).
			Padding(1, 2)

	ConfirmStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ui.WarningColor).
			Foreground(ui.WarningColor).
			Bold(true).
			Padding(1, 2)
)

// BuildHeaderContent creates header content with the app name and the
// right-hand side text (device address or project URL)
func BuildHeaderContent(right string) string {
	left := lipgloss.NewStyle().
		Foreground(ui.TextColor).
		Bold(true).
		Render(AppName + " v" + version.Version)

	if right == "" {
		right = GitHubURL
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, left, "  ", ui.MutedStyle.Render(right))
}

// RenderApplicationContainer wraps a screen in the full-screen panel:
// header, content and a footer with the help text.
func RenderApplicationContainer(header, content, footer string, width, height int) string {
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}

	headerStyle := lipgloss.NewStyle().
		BorderStyle(lipgloss.Border{Bottom: "─"}).
		BorderForeground(ui.PrimaryColor).
		Width(width-4).
		Padding(0, 1)

	footerStyle := lipgloss.NewStyle().
		BorderStyle(lipgloss.Border{Top: "─"}).
		BorderForeground(ui.PrimaryColor).
		Width(width-4).
		Padding(0, 1)

	inner := lipgloss.JoinVertical(
		lipgloss.Left,
		headerStyle.Render(header),
		lipgloss.NewStyle().Width(width-4).Render(content),
		footerStyle.Render(ui.MutedStyle.Render(footer)),
	)

	bordered := lipgloss.NewStyle().
		Border(lipgloss.NormalBorder()).
		BorderForeground(ui.PrimaryColor).
		Width(width - 2).
		Height(height - 2).
		AlignVertical(lipgloss.Top).
		Render(inner)

	return lipgloss.Place(width, height, lipgloss.Left, lipgloss.Top, bordered)
}

// RenderModal centers modal content over a dimmed screen
func RenderModal(content string, width, height int) string {
	return lipgloss.Place(
		width,
		height,
		lipgloss.Center,
		lipgloss.Center,
		content,
		lipgloss.WithWhitespaceChars("░"),
		lipgloss.WithWhitespaceForeground(lipgloss.Color("240")),
	)
}

// contentHeight is the number of rows left for tab content
func contentHeight(height int) int {
	if height <= 0 {
		height = DefaultHeight
	}
	return max(3, height-chrome)
}
