package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/choreo/internal/timeline"
)

var planColumns = []string{"#", "EFFECT", "SUBJECT", "LABEL", "BEGIN", "END", "DURATION"}

// RenderSchedule formats a committed schedule as an aligned table for
// `choreo plan`.
func RenderSchedule(sched timeline.Schedule) string {
	rows := [][]string{planColumns}
	for i, entry := range sched.Entries {
		rows = append(rows, entryCells(i, entry))
	}
	widths := make([]int, len(planColumns))
	for _, row := range rows {
		for col, cell := range row {
			if w := lipgloss.Width(cell); w > widths[col] {
				widths[col] = w
			}
		}
	}
	var lines []string
	for idx, row := range rows {
		cells := make([]string, len(row))
		for col, cell := range row {
			style := cellStyle.Width(widths[col] + 2)
			if idx == 0 {
				style = style.Inherit(titleStyle)
			}
			cells[col] = style.Render(cell)
		}
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}
	summary := fmt.Sprintf("%d action(s) · origin %s · end %s · span %s",
		len(sched.Entries), formatClock(sched.Origin), formatClock(sched.End()), sched.Span())
	lines = append(lines, footerStyle.Render(summary))
	for _, warning := range sched.Warnings {
		lines = append(lines, warningStyle.Render("⚠ "+warning))
	}
	return strings.Join(lines, "\n")
}

func entryCells(i int, entry timeline.Entry) []string {
	return []string{
		fmt.Sprintf("%d", i+1),
		entry.Effect.Name,
		orDash(entry.Subject),
		orDash(entry.Label),
		formatClock(entry.Begin),
		formatClock(entry.End()),
		entry.Duration.String(),
	}
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

// formatClock renders a timeline position with millisecond precision.
func formatClock(d time.Duration) string {
	return fmt.Sprintf("%.3fs", d.Seconds())
}
