package main

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// theme styles CLI output; warning styles notices written to stderr. Styles
// render plain text when the writer is not a terminal.
type theme struct {
	code       lipgloss.Style
	cost       lipgloss.Style
	refinement lipgloss.Style
	warning    lipgloss.Style
}

func resolveTheme(r *lipgloss.Renderer, name string) theme {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "light":
		return newLightTheme(r)
	default:
		return newDarkTheme(r)
	}
}

func newDarkTheme(r *lipgloss.Renderer) theme {
	return theme{
		code:       r.NewStyle().Foreground(lipgloss.Color("252")),
		cost:       r.NewStyle().Foreground(lipgloss.Color("220")).Bold(true),
		refinement: r.NewStyle().Foreground(lipgloss.Color("39")),
		warning:    r.NewStyle().Foreground(lipgloss.Color("245")).Italic(true),
	}
}

func newLightTheme(r *lipgloss.Renderer) theme {
	return theme{
		code:       r.NewStyle().Foreground(lipgloss.Color("16")),
		cost:       r.NewStyle().Foreground(lipgloss.Color("94")).Bold(true),
		refinement: r.NewStyle().Foreground(lipgloss.Color("25")),
		warning:    r.NewStyle().Foreground(lipgloss.Color("240")).Italic(true),
	}
}

// renderLines styles each line on its own so lipgloss does not pad lines to
// a common width.
func renderLines(style lipgloss.Style, s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = style.Render(line)
		}
	}
	return strings.Join(lines, "\n")
}
