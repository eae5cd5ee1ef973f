package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

func (a *App) renderStatusPanel(height int) string {
	var b strings.Builder

	b.WriteString("\n  Agent\n")
	b.WriteString("  " + strings.Repeat("─", 40) + "\n")

	if a.agentStatus == nil {
		b.WriteString("  Loading...\n")
		return b.String()
	}

	state := offlineStyle.Render("○ stopped")
	if a.agentStatus.Status == "running" {
		state = onlineStyle.Render("● running")
	}
	b.WriteString(detailField("State", state))
	b.WriteString(detailField("Active tasks", fmt.Sprintf("%d", a.agentStatus.ActiveTasks)))
	b.WriteString(detailField("Completed tasks", fmt.Sprintf("%d", a.agentStatus.CompletedTasks)))
	b.WriteString(detailField("Scheduled workflows", fmt.Sprintf("%d", a.agentStatus.ScheduledWorkflows)))
	if a.agentStatus.LastActivity != nil {
		b.WriteString(detailField("Last activity", a.agentStatus.LastActivity.Local().Format("Jan 02 15:04:05")))
	}

	b.WriteString("\n  Workflows\n")
	b.WriteString("  " + strings.Repeat("─", 40) + "\n")

	if len(a.workflows) == 0 {
		b.WriteString("  No workflows registered.\n")
	}
	for _, wf := range a.workflows {
		name := lipgloss.NewStyle().Bold(true).Render(wf.Name)
		meta := lipgloss.NewStyle().Foreground(mutedColor).Render(
			fmt.Sprintf("(%s, %d steps, %d scheduled)", wf.Type, len(wf.Steps), wf.ActiveSchedules))
		b.WriteString(fmt.Sprintf("  %s %s\n", name, meta))
		if wf.Description != "" {
			desc := wf.Description
			if len(desc) > 70 {
				desc = desc[:67] + "..."
			}
			b.WriteString("    " + helpStyle.Render(desc) + "\n")
		}
	}

	lines := strings.Split(b.String(), "\n")
	if len(lines) > height {
		lines = lines[:height]
	}
	return strings.Join(lines, "\n")
}
