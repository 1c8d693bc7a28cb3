package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const barWidth = 20

var (
	tagStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	timeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	sessionStyle = lipgloss.NewStyle().Width(12).Bold(true)
	barStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
)

// formatSession renders "chrome      [#########-----------]  45%".
func formatSession(st sessionState) string {
	v := max(0, min(100, st.Volume))
	filled := v * barWidth / 100
	bar := "[" + strings.Repeat("#", filled) + strings.Repeat("-", barWidth-filled) + "]"

	line := fmt.Sprintf("%s %s %3d%%", sessionStyle.Render(st.Session), barStyle.Render(bar), v)
	if st.Muted {
		line += " " + mutedStyle.Render("MUTED")
	}
	return line
}
