package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/fentz26/warble/internal/models"
)

var (
	statusPending   = lipgloss.NewStyle().Foreground(warningColor)
	statusRunning   = lipgloss.NewStyle().Foreground(cyanColor)
	statusCompleted = lipgloss.NewStyle().Foreground(successColor)
	statusFailed    = lipgloss.NewStyle().Foreground(errorColor)
	statusCancelled = lipgloss.NewStyle().Foreground(mutedColor)
)

var taskFilters = []string{"", "pending", "running", "completed", "failed", "cancelled"}
var taskFilterNames = []string{"ALL", "PENDING", "RUNNING", "DONE", "FAILED", "CANCELLED"}

func formatTaskStatus(status models.TaskStatus) string {
	switch status {
	case models.TaskStatusPending:
		return statusPending.Render("○ pending  ")
	case models.TaskStatusRunning:
		return statusRunning.Render("◐ running  ")
	case models.TaskStatusCompleted:
		return statusCompleted.Render("● completed")
	case models.TaskStatusFailed:
		return statusFailed.Render("✗ failed   ")
	case models.TaskStatusCancelled:
		return statusCancelled.Render("⊘ cancelled")
	default:
		return string(status)
	}
}

func taskStatusGlyph(status models.TaskStatus) string {
	switch status {
	case models.TaskStatusPending:
		return "○"
	case models.TaskStatusRunning:
		return "◐"
	case models.TaskStatusCompleted:
		return "●"
	case models.TaskStatusFailed:
		return "✗"
	case models.TaskStatusCancelled:
		return "⊘"
	default:
		return "?"
	}
}

func (a *App) renderTaskList(height int) string {
	if a.loading && len(a.tasks) == 0 {
		return "\n  Loading tasks...\n"
	}
	if len(a.tasks) == 0 {
		return "\n  No tasks. Type :add <type> or :ask <instruction> to create one.\n"
	}

	var lines []string
	for i, task := range a.tasks {
		meta := task.CreatedAt.Local().Format("15:04:05")
		if task.Status == models.TaskStatusRunning && task.Progress > 0 {
			meta = fmt.Sprintf("%d%%", task.Progress)
		}
		if task.ScheduleID != "" {
			meta += "  ⟳"
		}

		if i == a.selectedIdx {
			line := selectedStyle.Render(fmt.Sprintf("> %s %-24s %s  %s",
				taskStatusGlyph(task.Status), task.Request.Type, short(task.ID), meta))
			lines = append(lines, line)
		} else {
			line := taskItemStyle.Render(fmt.Sprintf("%s %-24s %s  %s",
				formatTaskStatus(task.Status), task.Request.Type, short(task.ID), meta))
			lines = append(lines, line)
		}
	}

	return strings.Join(window(lines, a.selectedIdx, height), "\n")
}

// window limits lines to the visible height, keeping the selection centered.
func window(lines []string, selected, height int) []string {
	if len(lines) <= height {
		return lines
	}
	start := selected - height/2
	if start < 0 {
		start = 0
	}
	end := start + height
	if end > len(lines) {
		end = len(lines)
		start = max(0, end-height)
	}
	return lines[start:end]
}
