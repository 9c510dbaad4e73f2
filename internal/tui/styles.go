package tui

import "github.com/charmbracelet/lipgloss"

var (
	green     = lipgloss.Color("#8BC34A")
	darkBlue  = lipgloss.Color("#101F38")
	grey      = lipgloss.Color("#e1e4e8")
	muted     = lipgloss.Color("#6a737d")
	warning   = lipgloss.Color("#FFC107")
	errorRed  = lipgloss.Color("#e53935")
	badgeBlue = lipgloss.Color("#2196F3")
)

// Styles groups every style the client renders with.
type Styles struct {
	TopBar     lipgloss.Style
	Badge      lipgloss.Style
	Email      lipgloss.Style
	Hint       lipgloss.Style
	Own        lipgloss.Style
	Other      lipgloss.Style
	Sender     lipgloss.Style
	Status     lipgloss.Style
	Error      lipgloss.Style
	Notice     lipgloss.Style
	Title      lipgloss.Style
	Button     lipgloss.Style
	InputFrame lipgloss.Style
}

// DefaultStyles returns the client's palette.
func DefaultStyles() Styles {
	return Styles{
		TopBar: lipgloss.NewStyle().
			Padding(0, 1).
			Background(darkBlue).
			Foreground(lipgloss.Color("#f2f2f2")),
		Badge: lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1).
			Background(badgeBlue).
			Foreground(lipgloss.Color("#ffffff")),
		Email: lipgloss.NewStyle().Bold(true).Background(darkBlue).Foreground(lipgloss.Color("#f2f2f2")),
		Hint:  lipgloss.NewStyle().Background(darkBlue).Foreground(muted),
		Own: lipgloss.NewStyle().
			Padding(0, 1).
			Background(green).
			Foreground(darkBlue),
		Other: lipgloss.NewStyle().
			Padding(0, 1).
			Background(grey).
			Foreground(darkBlue),
		Sender: lipgloss.NewStyle().Bold(true),
		Status: lipgloss.NewStyle().Foreground(muted).Italic(true),
		Error:  lipgloss.NewStyle().Foreground(errorRed),
		Notice: lipgloss.NewStyle().Foreground(warning),
		Title:  lipgloss.NewStyle().Bold(true).Foreground(green).MarginBottom(1),
		Button: lipgloss.NewStyle().
			Padding(0, 2).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(green),
		InputFrame: lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), true, false, false, false).
			BorderForeground(muted),
	}
}
