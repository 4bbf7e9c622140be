package tui

import "github.com/charmbracelet/lipgloss"

// Palette shared with the desktop notifications.
var (
	ColorBlue    = lipgloss.Color("#89b4fa")
	ColorMauve   = lipgloss.Color("#cba6f7")
	ColorGreen   = lipgloss.Color("#a6e3a1")
	ColorYellow  = lipgloss.Color("#f9e2af")
	ColorRed     = lipgloss.Color("#f38ba8")
	ColorPeach   = lipgloss.Color("#fab387")
	ColorTeal    = lipgloss.Color("#94e2d5")
	ColorGray    = lipgloss.Color("#6c7086")
	ColorDimGray = lipgloss.Color("#45475a")
	ColorText    = lipgloss.Color("#cdd6f4")
)

var speakerColors = map[string]lipgloss.Color{
	"speaker-1": ColorBlue,
	"speaker-2": ColorPeach,
	"speaker-3": ColorTeal,
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBlue)

	readyDotStyle = lipgloss.NewStyle().
			Foreground(ColorGreen)

	recordingDotStyle = lipgloss.NewStyle().
				Foreground(ColorRed).
				Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	dividerStyle = lipgloss.NewStyle().
			Foreground(ColorDimGray)

	timestampStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	interimStyle = lipgloss.NewStyle().
			Foreground(ColorYellow).
			Italic(true)

	processingStyle = lipgloss.NewStyle().
			Foreground(ColorMauve)

	barActiveStyle = lipgloss.NewStyle().
			Foreground(ColorBlue)

	barIdleStyle = lipgloss.NewStyle().
			Foreground(ColorDimGray)

	footerKeyStyle = lipgloss.NewStyle().
			Foreground(ColorYellow).
			Bold(true)

	footerDescStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	promptStyle = lipgloss.NewStyle().
			Foreground(ColorYellow).
			Bold(true)

	confidenceStyles = map[string]lipgloss.Style{
		"high":   lipgloss.NewStyle().Foreground(ColorGreen),
		"medium": lipgloss.NewStyle().Foreground(ColorYellow),
		"low":    lipgloss.NewStyle().Foreground(ColorRed),
	}

	noticeStyles = map[string]lipgloss.Style{
		"info":    lipgloss.NewStyle().Foreground(ColorBlue),
		"success": lipgloss.NewStyle().Foreground(ColorGreen),
		"warning": lipgloss.NewStyle().Foreground(ColorYellow),
		"error":   lipgloss.NewStyle().Foreground(ColorRed).Bold(true),
	}
)

// badgeStyle renders speaker initials on the speaker's color.
func badgeStyle(color string) lipgloss.Style {
	bg, ok := speakerColors[color]
	if !ok {
		bg = ColorBlue
	}
	return lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#1e1e2e")).
		Background(bg).
		Padding(0, 1)
}

func speakerNameStyle(color string) lipgloss.Style {
	fg, ok := speakerColors[color]
	if !ok {
		fg = ColorText
	}
	return lipgloss.NewStyle().Foreground(fg).Bold(true)
}
