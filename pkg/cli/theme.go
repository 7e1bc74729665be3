package cli

import (
	"github.com/charmbracelet/lipgloss"
)

// Theme defines colors and symbols for the CLI using lipgloss
type Theme struct {
	Bold   lipgloss.Style
	Cyan   lipgloss.Style
	Green  lipgloss.Style
	Yellow lipgloss.Style
	Dim    lipgloss.Style
	Red    lipgloss.Style

	Bullet  string
	Arrow   string
	BoxTree string
	BoxLast string
	BoxItem string

	IconLoad    string
	IconCatalog string
	IconBundle  string
	IconHelp    string
}

func DefaultTheme() *Theme {
	return &Theme{
		Bold:   lipgloss.NewStyle().Bold(true),
		Cyan:   lipgloss.NewStyle().Foreground(lipgloss.Color("6")),
		Green:  lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		Yellow: lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		Dim:    lipgloss.NewStyle().Faint(true),
		Red:    lipgloss.NewStyle().Foreground(lipgloss.Color("1")),

		Bullet:  "•",
		Arrow:   "→",
		BoxTree: "├──",
		BoxLast: "└──",
		BoxItem: "│  ",

		IconLoad:    "🖼️",
		IconCatalog: "📒",
		IconBundle:  "📦",
		IconHelp:    "💡",
	}
}

func (t *Theme) Styled(style lipgloss.Style, text string) string {
	return style.Render(text)
}

// StateStyle colors a load state name.
func (t *Theme) StateStyle(state string) lipgloss.Style {
	switch state {
	case "loaded":
		return t.Green
	case "loading":
		return t.Yellow
	case "failed":
		return t.Red
	default:
		return t.Dim
	}
}
