package ui

import (
	"github.com/charmbracelet/lipgloss"
)

// Theme holds the color roles the panes render with.
type Theme struct {
	Name    string
	Accent  lipgloss.Color
	Text    lipgloss.Color
	Muted   lipgloss.Color
	Success lipgloss.Color
	Warning lipgloss.Color
	Danger  lipgloss.Color
	Border  lipgloss.Color
}

var themes = []Theme{
	{
		Name:    "Dark",
		Accent:  lipgloss.Color("81"),
		Text:    lipgloss.Color("252"),
		Muted:   lipgloss.Color("243"),
		Success: lipgloss.Color("78"),
		Warning: lipgloss.Color("214"),
		Danger:  lipgloss.Color("203"),
		Border:  lipgloss.Color("238"),
	},
	{
		Name:    "Light",
		Accent:  lipgloss.Color("26"),
		Text:    lipgloss.Color("235"),
		Muted:   lipgloss.Color("245"),
		Success: lipgloss.Color("28"),
		Warning: lipgloss.Color("130"),
		Danger:  lipgloss.Color("124"),
		Border:  lipgloss.Color("250"),
	},
}

// GetTheme returns the named theme, defaulting to the first.
func GetTheme(name string) Theme {
	for _, t := range themes {
		if t.Name == name {
			return t
		}
	}
	return themes[0]
}

// NextTheme returns the name following the given one, wrapping around.
func NextTheme(name string) string {
	for i, t := range themes {
		if t.Name == name {
			return themes[(i+1)%len(themes)].Name
		}
	}
	return themes[0].Name
}

func (t Theme) titleStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Accent).Bold(true)
}

func (t Theme) mutedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Muted)
}

func (t Theme) textStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Text)
}

func (t Theme) selectedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Accent).Bold(true).Reverse(true)
}

func (t Theme) paneStyle() lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(t.Border).
		Padding(0, 1)
}

func (t Theme) severityStyle(severity string) lipgloss.Style {
	switch severity {
	case "error", "critical":
		return lipgloss.NewStyle().Foreground(t.Danger).Bold(true)
	case "warning":
		return lipgloss.NewStyle().Foreground(t.Warning)
	default:
		return lipgloss.NewStyle().Foreground(t.Muted)
	}
}
