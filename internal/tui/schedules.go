package tui

import (
	"fmt"
	"strings"

	"github.com/fentz26/warble/internal/models"
)

func formatScheduleStatus(status models.ScheduleStatus) string {
	switch status {
	case models.ScheduleActive:
		return statusCompleted.Render("● active  ")
	case models.ScheduleInactive:
		return statusCancelled.Render("○ inactive")
	case models.ScheduleError:
		return statusFailed.Render("✗ error   ")
	default:
		return string(status)
	}
}

func scheduleStatusGlyph(status models.ScheduleStatus) string {
	switch status {
	case models.ScheduleActive:
		return "●"
	case models.ScheduleInactive:
		return "○"
	case models.ScheduleError:
		return "✗"
	default:
		return "?"
	}
}

func (a *App) renderSchedules(height int) string {
	if len(a.schedules) == 0 {
		return "\n  No schedules. Type :schedule <workflow> [seconds] to add one.\n"
	}

	var lines []string
	for i, run := range a.schedules {
		runs := fmt.Sprintf("%d", run.RunCount)
		if run.Schedule.MaxRuns > 0 {
			runs = fmt.Sprintf("%d/%d", run.RunCount, run.Schedule.MaxRuns)
		}

		next := run.NextRunAt.Local().Format("15:04:05")
		last := "-"
		if run.LastRunAt != nil {
			last = run.LastRunAt.Local().Format("15:04:05")
		}

		if i == a.scheduleIdx {
			line := selectedStyle.Render(fmt.Sprintf("> %s %-20s %s  runs %-7s next %s  last %s",
				scheduleStatusGlyph(run.Status), run.WorkflowName, short(run.ScheduleID), runs, next, last))
			lines = append(lines, line)
		} else {
			line := taskItemStyle.Render(fmt.Sprintf("%s %-20s %s  runs %-7s next %s  last %s",
				formatScheduleStatus(run.Status), run.WorkflowName, short(run.ScheduleID), runs, next, last))
			lines = append(lines, line)
		}
	}

	return "\n" + strings.Join(window(lines, a.scheduleIdx, height-1), "\n") + "\n"
}
