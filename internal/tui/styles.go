package tui

import "github.com/charmbracelet/lipgloss"

// Colors are named by role; AdaptiveColor keeps them readable on light
// terminals too.
var (
	colorBorder  = lipgloss.AdaptiveColor{Light: "#c8c2b4", Dark: "#4b5263"}
	colorInk     = lipgloss.AdaptiveColor{Light: "#2b2b2b", Dark: "#d7dae0"}
	colorMuted   = lipgloss.AdaptiveColor{Light: "#7a7468", Dark: "#8b93a3"}
	colorAccent  = lipgloss.AdaptiveColor{Light: "#2f6f9f", Dark: "#61afef"}
	colorOK      = lipgloss.AdaptiveColor{Light: "#3c7a3c", Dark: "#98c379"}
	colorWarn    = lipgloss.AdaptiveColor{Light: "#a05a00", Dark: "#e5c07b"}
	colorFail    = lipgloss.AdaptiveColor{Light: "#b3261e", Dark: "#e06c75"}
	colorProject = lipgloss.AdaptiveColor{Light: "#7b3fa0", Dark: "#c678dd"}
	colorGlobal  = lipgloss.AdaptiveColor{Light: "#00787a", Dark: "#56b6c2"}
)

func fg(c lipgloss.TerminalColor) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(c)
}

// ─── Frame ───────────────────────────────────────────────────────────────────

var (
	appStyle = fg(colorInk).Padding(1, 2)

	bannerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 2)

	headerStyle = fg(colorAccent).
			Bold(true).
			Border(lipgloss.NormalBorder(), false, false, true, false).
			BorderForeground(colorBorder).
			MarginBottom(1)

	titleStyle   = fg(colorAccent).Bold(true).MarginBottom(1)
	helpStyle    = fg(colorMuted).MarginTop(1)
	errorStyle   = fg(colorFail).Bold(true)
	successStyle = fg(colorOK).Bold(true)
)

// ─── Dashboard ───────────────────────────────────────────────────────────────

var (
	statCardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 2).
			MarginBottom(1)
	statNumberStyle = fg(colorOK).Bold(true).Width(6).Align(lipgloss.Right)
	statLabelStyle  = fg(colorInk).PaddingLeft(1)

	menuItemStyle     = fg(colorInk).PaddingLeft(2)
	menuSelectedStyle = fg(colorAccent).Bold(true)
)

// ─── Entry lists ─────────────────────────────────────────────────────────────

var (
	listItemStyle       = fg(colorInk).PaddingLeft(2)
	listSelectedStyle   = fg(colorAccent).Bold(true)
	idStyle             = fg(colorMuted)
	timestampStyle      = fg(colorMuted)
	projectStyle        = fg(colorProject)
	categoryBadgeStyle  = fg(colorWarn)
	contentPreviewStyle = fg(colorMuted).PaddingLeft(4)
	noResultsStyle      = fg(colorMuted).Italic(true).PaddingLeft(2)
)

// scopeBadgeStyle colors the scope label the same way everywhere.
func scopeBadgeStyle(global bool) lipgloss.Style {
	if global {
		return fg(colorGlobal).Bold(true)
	}
	return fg(colorProject).Bold(true)
}

// ─── Detail and search ───────────────────────────────────────────────────────

var (
	sectionHeadingStyle = fg(colorAccent).Bold(true).MarginTop(1)
	detailLabelStyle    = fg(colorMuted).Width(10)
	detailValueStyle    = fg(colorInk)
	detailContentStyle  = fg(colorInk).PaddingLeft(2)

	searchInputStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(colorAccent).
				Padding(0, 1)
)
