package common

import "github.com/charmbracelet/lipgloss"

const (
	COLOR_GREY      = "241"
	COLOR_MAGENTA   = "170"
	COLOR_LIGHTBLUE = "69"
	COLOR_PURPLE    = "#7D56F4"
	COLOR_RED       = "196"
	COLOR_GREEN     = "42"
)

var (
	HelpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color(COLOR_GREY)).Padding(0, 2)
	CaptionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(COLOR_MAGENTA)).Padding(1, 2)
	ErrorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color(COLOR_RED)).Padding(0, 2)
	DoneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color(COLOR_GREEN)).Padding(0, 2)
	BoxStyle     = lipgloss.NewStyle().
			Padding(1, 2).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(COLOR_LIGHTBLUE))
)

func DefaultWindowWidth(width int) int {
	return width - 10
}

// BarWidth is the width of a progress bar inside a window of width.
func BarWidth(width int) int {
	w := DefaultWindowWidth(width) / 2
	if w < 10 {
		return 10
	}
	return w
}
