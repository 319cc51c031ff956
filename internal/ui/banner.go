package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/esp32ctl/internal/connection"
	"github.com/muurk/esp32ctl/internal/modules"
)

var (
	bannerBase = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#000000")).
			Padding(0, 1)

	bannerWarningStyle  = bannerBase.Background(WarningColor)
	bannerErrorStyle    = bannerBase.Background(ErrorColor).Foreground(TextColor)
	bannerRestoredStyle = bannerBase.Background(SuccessColor)

	badgeStyle = lipgloss.NewStyle().Padding(0, 1)
)

// RenderBanner renders the connection banner across width. A hidden banner
// renders as the empty string so callers can drop the line entirely.
func RenderBanner(b connection.Banner, width int) string {
	var style lipgloss.Style
	var marker string
	switch b.Kind {
	case connection.BannerWarning:
		style, marker = bannerWarningStyle, WarningMarker
	case connection.BannerError:
		style, marker = bannerErrorStyle, FailureMarker
	case connection.BannerRestored:
		style, marker = bannerRestoredStyle, SuccessMarker
	default:
		return ""
	}
	if width < 1 {
		width = lipgloss.Width(b.Message()) + 4
	}
	return style.Width(width).Render(marker + " " + b.Message())
}

// Badge renders a small labelled status indicator, e.g. "● WiFi"
func Badge(label string, ok bool) string {
	color := ErrorColor
	if ok {
		color = SuccessColor
	}
	return badgeStyle.Foreground(color).Render(StepMarkerRunning + " " + label)
}

// RenderToast renders a transient notification
func RenderToast(level modules.NoticeLevel, message string) string {
	style := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	switch level {
	case modules.NoticeSuccess:
		return style.Foreground(SuccessColor).Render(SuccessMarker + " " + message)
	case modules.NoticeError:
		return style.Foreground(ErrorColor).Render(FailureMarker + " " + message)
	default:
		return style.Foreground(InfoColor).Render(InfoMarker + " " + message)
	}
}

// RenderTabBar renders the tab titles with the active one highlighted
func RenderTabBar(active modules.Name) string {
	tabs := make([]string, 0, len(modules.Names()))
	for i, name := range modules.Names() {
		label := string(rune('1'+i)) + " " + name.Title()
		if name == active {
			tabs = append(tabs, ActiveTabStyle.Render(label))
		} else {
			tabs = append(tabs, TabStyle.Render(label))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

// RenderPlaceholder renders the failed-module box shown in place of a
// module's view
func RenderPlaceholder(message, detail string, width int) string {
	content := FailureMarker + " " + message
	if detail != "" {
		content += "\n" + MutedStyle.Render(detail)
	}
	style := PlaceholderStyle
	if width > 4 {
		style = style.Width(width - 2)
	}
	return style.Render(content)
}

// Section renders a titled block of tab content
func Section(title, body string) string {
	var b strings.Builder
	b.WriteString(SectionTitleStyle.Render(title))
	b.WriteString("\n")
	b.WriteString(strings.TrimRight(body, "\n"))
	return b.String()
}
