// Package tui provides the interactive terminal UI for warble.
package tui

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fentz26/warble/internal/models"
)

var (
	// Colors
	primaryColor   = lipgloss.Color("#7C3AED")
	secondaryColor = lipgloss.Color("#6366F1")
	successColor   = lipgloss.Color("#10B981")
	warningColor   = lipgloss.Color("#F59E0B")
	errorColor     = lipgloss.Color("#EF4444")
	mutedColor     = lipgloss.Color("#6B7280")
	fgColor        = lipgloss.Color("#F9FAFB")
	cyanColor      = lipgloss.Color("#06B6D4")

	// Styles
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#374151")).
			Foreground(fgColor).
			Padding(0, 1)

	taskItemStyle = lipgloss.NewStyle().
			Padding(0, 2)

	selectedStyle = lipgloss.NewStyle().
			Background(primaryColor).
			Foreground(fgColor).
			Bold(true).
			Padding(0, 2)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Italic(true)

	onlineStyle = lipgloss.NewStyle().
			Foreground(successColor).
			Bold(true)

	offlineStyle = lipgloss.NewStyle().
			Foreground(errorColor)
)

// pollInterval is how often the visible view refreshes from the API.
const pollInterval = 2 * time.Second

// App is the main TUI application model.
type App struct {
	client *Client

	mode        string // "tasks", "detail", "schedules", "status"
	tasks       []models.TaskRecord
	selectedIdx int
	schedules   []models.ScheduledWorkflowRun
	scheduleIdx int
	detailID    string
	currentTask *models.TaskRecord
	agentStatus *models.AgentStatus
	workflows   []WorkflowInfo

	cmdbar      *CmdBar
	suggestions *Suggestions

	filterIdx    int
	message      string
	daemonOnline bool
	loading      bool
	width        int
	height       int
}

// New creates a new TUI application talking to the given API address.
func New(apiAddr string) *App {
	return &App{
		client:      NewClient(apiAddr),
		mode:        "tasks",
		cmdbar:      NewCmdBar(),
		suggestions: NewSuggestions(),
	}
}

// Run starts the TUI application.
func (a *App) Run() error {
	p := tea.NewProgram(a, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// Init implements tea.Model.
func (a *App) Init() tea.Cmd {
	return tea.Batch(
		a.fetchTasks(),
		a.fetchStatus(),
		a.checkDaemon(),
		a.tick(),
	)
}

// Update implements tea.Model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if a.cmdbar.Focused() {
			return a.updateCmdBar(msg)
		}
		return a.updateKeys(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.cmdbar.SetWidth(msg.Width)

	case tickMsg:
		return a, tea.Batch(a.refresh(), a.checkDaemon(), a.tick())

	case tasksLoadedMsg:
		a.loading = false
		a.tasks = msg.tasks
		if a.selectedIdx >= len(a.tasks) {
			a.selectedIdx = max(0, len(a.tasks)-1)
		}
		a.syncReferences()

	case taskLoadedMsg:
		a.currentTask = msg.task

	case schedulesLoadedMsg:
		a.schedules = msg.runs
		if a.scheduleIdx >= len(a.schedules) {
			a.scheduleIdx = max(0, len(a.schedules)-1)
		}
		a.syncReferences()

	case statusLoadedMsg:
		a.agentStatus = msg.status
		a.workflows = msg.workflows
		a.syncReferences()

	case daemonStatusMsg:
		a.daemonOnline = msg.online

	case commandResultMsg:
		a.message = msg.message
		return a, a.refresh()

	case errMsg:
		a.loading = false
		a.message = "Error: " + msg.err.Error()
	}

	return a, a.cmdbar.Update(msg)
}

// updateKeys handles keys while the command bar is blurred.
func (a *App) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return a, tea.Quit

	case ":":
		a.message = ""
		return a, a.cmdbar.Focus()

	case "esc":
		if a.mode == "detail" {
			a.mode = "tasks"
			a.detailID = ""
			a.currentTask = nil
			return a, a.fetchTasks()
		}

	case "tab":
		a.cycleMode()
		return a, a.refresh()

	case "up", "k":
		if a.mode == "tasks" && a.selectedIdx > 0 {
			a.selectedIdx--
		} else if a.mode == "schedules" && a.scheduleIdx > 0 {
			a.scheduleIdx--
		}

	case "down", "j":
		if a.mode == "tasks" && a.selectedIdx < len(a.tasks)-1 {
			a.selectedIdx++
		} else if a.mode == "schedules" && a.scheduleIdx < len(a.schedules)-1 {
			a.scheduleIdx++
		}

	case "enter":
		if a.mode == "tasks" && len(a.tasks) > 0 {
			a.mode = "detail"
			a.detailID = a.tasks[a.selectedIdx].ID
			a.currentTask = nil
			return a, a.fetchTaskDetail(a.detailID)
		}

	case "f":
		if a.mode == "tasks" {
			a.filterIdx = (a.filterIdx + 1) % len(taskFilters)
			return a, a.fetchTasks()
		}

	case "r":
		return a, a.refresh()

	case "c":
		if a.mode == "schedules" && len(a.schedules) > 0 {
			return a, a.cancelScheduleCmd(a.schedules[a.scheduleIdx].ScheduleID)
		}
		if a.mode == "tasks" && len(a.tasks) > 0 {
			return a, a.deleteTaskCmd(a.tasks[a.selectedIdx].ID)
		}
	}

	return a, nil
}

// updateCmdBar handles keys while the command bar owns input.
func (a *App) updateCmdBar(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return a, tea.Quit

	case "esc":
		a.cmdbar.Blur()
		a.suggestions.Update("")
		return a, nil

	case "up":
		if a.suggestions.IsVisible() {
			a.suggestions.Prev()
			return a, nil
		}

	case "down":
		if a.suggestions.IsVisible() {
			a.suggestions.Next()
			return a, nil
		}

	case "tab":
		if sel := a.suggestions.Selected(); sel != nil {
			a.acceptSuggestion(sel)
		}
		return a, nil

	case "enter":
		// Accept a partial completion first; a second enter submits.
		if sel := a.suggestions.Selected(); sel != nil && sel.Text != strings.TrimSpace(a.cmdbar.Value()) {
			a.acceptSuggestion(sel)
			return a, nil
		}
		line := strings.TrimSpace(a.cmdbar.Submit())
		a.suggestions.Update("")
		if line == "" {
			return a, nil
		}
		return a, a.executeCommand(line)
	}

	cmd := a.cmdbar.Update(msg)
	a.suggestions.Update(a.cmdbar.Value())
	return a, cmd
}

func (a *App) acceptSuggestion(sel *SuggestionItem) {
	val := a.cmdbar.Value()
	if a.suggestions.IsReference() {
		if idx := strings.LastIndex(val, "@"); idx >= 0 {
			a.cmdbar.SetValue(val[:idx] + sel.Text + " ")
		}
	} else {
		a.cmdbar.SetValue(sel.Text + " ")
	}
	a.suggestions.Update(a.cmdbar.Value())
}

func (a *App) cycleMode() {
	switch a.mode {
	case "tasks":
		a.mode = "schedules"
	case "schedules":
		a.mode = "status"
	default:
		a.mode = "tasks"
	}
}

// syncReferences feeds the latest IDs and names into @-completion.
func (a *App) syncReferences() {
	taskIDs := make([]string, 0, len(a.tasks))
	for _, t := range a.tasks {
		taskIDs = append(taskIDs, t.ID)
	}
	a.suggestions.SetTasks(taskIDs)

	scheduleIDs := make([]string, 0, len(a.schedules))
	for _, r := range a.schedules {
		scheduleIDs = append(scheduleIDs, r.ScheduleID)
	}
	a.suggestions.SetSchedules(scheduleIDs)

	names := make([]string, 0, len(a.workflows))
	for _, w := range a.workflows {
		names = append(names, w.Name)
	}
	a.suggestions.SetWorkflows(names)
}

// View implements tea.Model.
func (a *App) View() string {
	var b strings.Builder

	daemon := onlineStyle.Render("● daemon")
	if !a.daemonOnline {
		daemon = offlineStyle.Render("○ daemon")
	}
	agent := offlineStyle.Render("○ agent")
	if a.agentStatus != nil && a.agentStatus.Status == "running" {
		agent = onlineStyle.Render("● agent")
	}

	header := titleStyle.Render("WARBLE Control Plane")
	header += "  " + daemon
	header += "  " + agent

	b.WriteString(header + "\n")
	b.WriteString(strings.Repeat("─", max(a.width, 1)) + "\n")

	contentHeight := a.height - 9
	if contentHeight < 5 {
		contentHeight = 5
	}

	switch a.mode {
	case "tasks":
		filterLabel := fmt.Sprintf(" Filter: [%s]", taskFilterNames[a.filterIdx])
		b.WriteString(lipgloss.NewStyle().Foreground(mutedColor).Render(filterLabel) + "\n")
		b.WriteString(a.renderTaskList(contentHeight - 1))
	case "detail":
		b.WriteString(a.renderTaskDetail(contentHeight))
	case "schedules":
		b.WriteString(a.renderSchedules(contentHeight))
	case "status":
		b.WriteString(a.renderStatusPanel(contentHeight))
	}

	if a.message != "" {
		msgStyle := lipgloss.NewStyle().Foreground(successColor)
		if strings.HasPrefix(a.message, "Error") {
			msgStyle = lipgloss.NewStyle().Foreground(errorColor)
		}
		b.WriteString("\n" + msgStyle.Render(a.message))
	} else {
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(a.cmdbar.View())

	if a.suggestions.IsVisible() {
		b.WriteString("\n")
		b.WriteString(a.suggestions.Render(a.width))
	}
	b.WriteString("\n")

	var status string
	switch a.mode {
	case "tasks":
		status = fmt.Sprintf(" Tasks: %d | ↑↓:nav | Enter:detail | f:filter | c:cancel | Tab:view | q:quit", len(a.tasks))
	case "detail":
		status = " Esc:back | r:refresh"
	case "schedules":
		status = fmt.Sprintf(" Schedules: %d | ↑↓:nav | c:cancel | Tab:view | q:quit", len(a.schedules))
	case "status":
		status = " Tab:view | r:refresh | q:quit"
	}
	b.WriteString(statusBarStyle.Width(a.width).Render(status))

	return b.String()
}

// --- Commands ---

func (a *App) tick() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// refresh reloads whatever the current mode displays.
func (a *App) refresh() tea.Cmd {
	switch a.mode {
	case "tasks":
		return a.fetchTasks()
	case "detail":
		if a.detailID != "" {
			return a.fetchTaskDetail(a.detailID)
		}
	case "schedules":
		return a.fetchSchedules()
	case "status":
		return a.fetchStatus()
	}
	return nil
}

func (a *App) fetchTasks() tea.Cmd {
	a.loading = true
	status := taskFilters[a.filterIdx]
	return func() tea.Msg {
		tasks, err := a.client.ListTasks(status)
		if err != nil {
			return errMsg{err}
		}
		return tasksLoadedMsg{tasks}
	}
}

func (a *App) fetchTaskDetail(id string) tea.Cmd {
	return func() tea.Msg {
		task, err := a.client.GetTask(id)
		if err != nil {
			return errMsg{err}
		}
		return taskLoadedMsg{task}
	}
}

func (a *App) fetchSchedules() tea.Cmd {
	return func() tea.Msg {
		runs, err := a.client.ListSchedules()
		if err != nil {
			return errMsg{err}
		}
		return schedulesLoadedMsg{runs}
	}
}

func (a *App) fetchStatus() tea.Cmd {
	return func() tea.Msg {
		status, err := a.client.AgentStatus()
		if err != nil {
			return errMsg{err}
		}
		workflows, err := a.client.ListWorkflows()
		if err != nil {
			return errMsg{err}
		}
		return statusLoadedMsg{status, workflows}
	}
}

func (a *App) checkDaemon() tea.Cmd {
	return func() tea.Msg {
		ok, err := a.client.CheckHealth()
		return daemonStatusMsg{online: err == nil && ok}
	}
}

func (a *App) cancelScheduleCmd(id string) tea.Cmd {
	return func() tea.Msg {
		run, err := a.client.CancelSchedule(id)
		if err != nil {
			return commandResultMsg{"Error: " + err.Error()}
		}
		return commandResultMsg{fmt.Sprintf("Cancelled schedule %s", short(run.ScheduleID))}
	}
}

func (a *App) deleteTaskCmd(id string) tea.Cmd {
	return func() tea.Msg {
		task, err := a.client.DeleteTask(id)
		if err != nil {
			return commandResultMsg{"Error: " + err.Error()}
		}
		switch task.Status {
		case models.TaskStatusCancelled:
			return commandResultMsg{fmt.Sprintf("Cancelled task %s", short(task.ID))}
		case models.TaskStatusRunning:
			return commandResultMsg{fmt.Sprintf("Cancellation signalled for %s", short(task.ID))}
		default:
			return commandResultMsg{fmt.Sprintf("Removed task %s", short(task.ID))}
		}
	}
}

// executeCommand dispatches a command-bar line. Mode switches happen here,
// API calls run in the returned command.
func (a *App) executeCommand(input string) tea.Cmd {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return nil
	}
	cmd, args := parts[0], parts[1:]

	switch cmd {
	case "q", "quit", "exit":
		return tea.Quit
	case "status":
		a.mode = "status"
		return a.fetchStatus()
	case "schedules":
		a.mode = "schedules"
		return a.fetchSchedules()
	case "cancel":
		if len(args) == 0 {
			if a.mode == "schedules" && len(a.schedules) > 0 {
				return a.cancelScheduleCmd(a.schedules[a.scheduleIdx].ScheduleID)
			}
			return func() tea.Msg { return commandResultMsg{"Usage: cancel <schedule-id>"} }
		}
		return a.cancelScheduleCmd(strings.TrimPrefix(args[0], "@"))
	case "delete":
		if len(args) == 0 {
			if a.mode == "tasks" && len(a.tasks) > 0 {
				return a.deleteTaskCmd(a.tasks[a.selectedIdx].ID)
			}
			return func() tea.Msg { return commandResultMsg{"Usage: delete <task-id>"} }
		}
		return a.deleteTaskCmd(strings.TrimPrefix(args[0], "@"))
	}

	client := a.client
	return func() tea.Msg {
		switch cmd {
		case "add":
			if len(args) < 1 {
				return commandResultMsg{"Usage: add <type> [key=value ...]"}
			}
			task, err := client.CreateTask(args[0], parseParams(args[1:]))
			if err != nil {
				return commandResultMsg{"Error: " + err.Error()}
			}
			return commandResultMsg{fmt.Sprintf("Created task %s (%s)", short(task.ID), task.Request.Type)}

		case "run":
			if len(args) < 1 {
				return commandResultMsg{"Usage: run <workflow> [key=value ...]"}
			}
			task, err := client.ExecuteWorkflow(strings.TrimPrefix(args[0], "@"), parseParams(args[1:]))
			if err != nil {
				return commandResultMsg{"Error: " + err.Error()}
			}
			return commandResultMsg{fmt.Sprintf("Workflow finished: %s (task %s)", task.Status, short(task.ID))}

		case "schedule":
			if len(args) < 1 {
				return commandResultMsg{"Usage: schedule <workflow> [interval-seconds]"}
			}
			interval := 0
			if len(args) > 1 {
				n, err := strconv.Atoi(args[1])
				if err != nil {
					return commandResultMsg{"Interval must be a number of seconds"}
				}
				interval = n
			}
			run, err := client.ScheduleWorkflow(strings.TrimPrefix(args[0], "@"), interval)
			if err != nil {
				return commandResultMsg{"Error: " + err.Error()}
			}
			return commandResultMsg{fmt.Sprintf("Scheduled %s (%s)", run.WorkflowName, short(run.ScheduleID))}

		case "ask":
			if len(args) < 1 {
				return commandResultMsg{"Usage: ask <instruction>"}
			}
			task, err := client.ProcessText(strings.Join(args, " "))
			if err != nil {
				return commandResultMsg{"Error: " + err.Error()}
			}
			return commandResultMsg{fmt.Sprintf("Task %s (%s): %s", short(task.ID), task.Request.Type, task.Status)}

		case "start":
			if err := client.StartAgent(); err != nil {
				return commandResultMsg{"Error: " + err.Error()}
			}
			return commandResultMsg{"Agent running"}

		case "stop":
			if err := client.StopAgent(); err != nil {
				return commandResultMsg{"Error: " + err.Error()}
			}
			return commandResultMsg{"Agent stopped"}

		default:
			return commandResultMsg{fmt.Sprintf("Unknown command: %s (try add, run, schedule, cancel, delete, ask)", cmd)}
		}
	}
}

// parseParams turns key=value arguments into workflow/task parameters.
// Values that parse as JSON keep their type; everything else is a string.
func parseParams(args []string) map[string]any {
	params := map[string]any{}
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			continue
		}
		var parsed any
		if err := json.Unmarshal([]byte(value), &parsed); err == nil {
			params[key] = parsed
			continue
		}
		params[key] = value
	}
	return params
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// --- Messages ---

type tickMsg time.Time

type errMsg struct {
	err error
}

type commandResultMsg struct {
	message string
}

type tasksLoadedMsg struct {
	tasks []models.TaskRecord
}

type taskLoadedMsg struct {
	task *models.TaskRecord
}

type schedulesLoadedMsg struct {
	runs []models.ScheduledWorkflowRun
}

type statusLoadedMsg struct {
	status    *models.AgentStatus
	workflows []WorkflowInfo
}

type daemonStatusMsg struct {
	online bool
}
