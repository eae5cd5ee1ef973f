package tui

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/fentz26/warble/internal/models"
)

var (
	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255"))

	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99")).
			MarginTop(1)
)

func (a *App) renderTaskDetail(height int) string {
	if a.currentTask == nil {
		return "\n  Loading...\n"
	}

	var b strings.Builder
	t := a.currentTask

	b.WriteString(fmt.Sprintf("\n  %s\n\n", lipgloss.NewStyle().Bold(true).Render(string(t.Request.Type))))
	b.WriteString(detailField("ID", t.ID))
	b.WriteString(detailField("Status", formatTaskStatus(t.Status)))
	b.WriteString(detailField("Priority", string(t.Request.Priority)))
	if t.ScheduleID != "" {
		b.WriteString(detailField("Schedule", t.ScheduleID))
	}
	if t.Status == models.TaskStatusRunning && t.Progress > 0 {
		b.WriteString(detailField("Progress", fmt.Sprintf("%d%%", t.Progress)))
	}
	b.WriteString(detailField("Created", t.CreatedAt.Local().Format(time.RFC3339)))
	if t.StartedAt != nil {
		b.WriteString(detailField("Started", t.StartedAt.Local().Format(time.RFC3339)))
	}
	if t.CompletedAt != nil {
		b.WriteString(detailField("Finished", t.CompletedAt.Local().Format(time.RFC3339)))
	}
	if t.Error != "" {
		b.WriteString(detailField("Error", statusFailed.Render(t.Error)))
	}

	if len(t.Request.Parameters) > 0 {
		b.WriteString("  " + sectionStyle.Render("Parameters") + "\n")
		b.WriteString(renderJSON(t.Request.Parameters, 8))
	}
	if len(t.Result) > 0 {
		b.WriteString("  " + sectionStyle.Render("Result") + "\n")
		b.WriteString(renderJSON(t.Result, 16))
	}

	lines := strings.Split(b.String(), "\n")
	if len(lines) > height {
		lines = lines[:height]
	}
	return strings.Join(lines, "\n")
}

func detailField(label, value string) string {
	return fmt.Sprintf("  %s %s\n", labelStyle.Render(label+":"), valueStyle.Render(value))
}

// renderJSON pretty-prints a value indented for the detail view, capped at
// maxLines.
func renderJSON(v any, maxLines int) string {
	data, err := json.MarshalIndent(v, "    ", "  ")
	if err != nil {
		return fmt.Sprintf("    %v\n", v)
	}

	lines := strings.Split(string(data), "\n")
	if len(lines) > maxLines {
		trimmed := lines[:maxLines]
		trimmed = append(trimmed, fmt.Sprintf("    ... (%d more lines)", len(lines)-maxLines))
		lines = trimmed
	}
	return "    " + strings.Join(lines, "\n") + "\n"
}
