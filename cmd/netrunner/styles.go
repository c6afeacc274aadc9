package main

import (
	"strings"
	"time"

	"netrunner/internal/smoketest"

	"github.com/charmbracelet/lipgloss"
	"github.com/docker/go-units"
)

// Colors used in listings.
var (
	accentColor  = lipgloss.Color("86")
	mutedColor   = lipgloss.Color("245")
	successColor = lipgloss.Color("42")
	failureColor = lipgloss.Color("196")
	pendingColor = lipgloss.Color("214")
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true)
	nameStyle    = lipgloss.NewStyle().Bold(true).Foreground(accentColor)
	mutedStyle   = lipgloss.NewStyle().Foreground(mutedColor)
	successStyle = lipgloss.NewStyle().Foreground(successColor)
	failureStyle = lipgloss.NewStyle().Foreground(failureColor)
	pendingStyle = lipgloss.NewStyle().Foreground(pendingColor)
)

// outcomeStyle colours a run outcome word.
func outcomeStyle(outcome string) lipgloss.Style {
	switch outcome {
	case "success":
		return successStyle
	case "queued", "in_progress", "pending", "waiting", "requested":
		return pendingStyle
	case "unknown":
		return mutedStyle
	}
	return failureStyle
}

// smokeTestStyle colours a smoke test result.
func smokeTestStyle(r smoketest.Result) lipgloss.Style {
	switch r {
	case smoketest.Passed:
		return successStyle
	case smoketest.Failed:
		return failureStyle
	}
	return mutedStyle
}

// age renders how long ago t was, e.g. "3 hours ago".
func age(t time.Time, now time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := now.Sub(t)
	if d < 0 {
		d = 0
	}
	return units.HumanDuration(d) + " ago"
}

// table renders rows in aligned columns. Widths are measured on the
// rendered cells so styled text lines up.
func table(header []string, rows [][]string) string {
	widths := make([]int, len(header))
	styled := make([]string, len(header))
	for i, h := range header {
		styled[i] = headerStyle.Render(h)
		widths[i] = lipgloss.Width(styled[i])
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && lipgloss.Width(cell) > widths[i] {
				widths[i] = lipgloss.Width(cell)
			}
		}
	}

	var b strings.Builder
	writeRow := func(cells []string) {
		for i, cell := range cells {
			if i > 0 {
				b.WriteString("  ")
			}
			if i == len(cells)-1 {
				b.WriteString(cell)
				continue
			}
			b.WriteString(lipgloss.NewStyle().Width(widths[i]).Render(cell))
		}
		b.WriteString("\n")
	}
	writeRow(styled)
	for _, row := range rows {
		writeRow(row)
	}
	return b.String()
}
