package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Suggestions provides autocomplete for the command bar: command names while
// the first word is being typed, and @-references (task IDs, workflow names,
// schedule IDs) for later tokens.
type Suggestions struct {
	filtered    []SuggestionItem
	selectedIdx int
	visible     bool
	reference   bool

	workflows []string
	tasks     []string
	schedules []string
}

// SuggestionItem is a single autocomplete entry.
type SuggestionItem struct {
	Text        string
	Description string
	Type        string // "command", "workflow", "task", "schedule"
}

var commandSuggestions = []SuggestionItem{
	{Text: "add", Description: "Create a task (add <type> key=value ...)", Type: "command"},
	{Text: "run", Description: "Execute a workflow and wait", Type: "command"},
	{Text: "schedule", Description: "Schedule a workflow (schedule <name> [seconds])", Type: "command"},
	{Text: "schedules", Description: "Switch to the schedules view", Type: "command"},
	{Text: "cancel", Description: "Cancel a schedule", Type: "command"},
	{Text: "delete", Description: "Cancel or remove a task", Type: "command"},
	{Text: "ask", Description: "Run a natural-language instruction", Type: "command"},
	{Text: "start", Description: "Start the agent", Type: "command"},
	{Text: "stop", Description: "Stop the agent", Type: "command"},
	{Text: "status", Description: "Switch to the status view", Type: "command"},
	{Text: "quit", Description: "Exit the TUI", Type: "command"},
}

// NewSuggestions creates an empty suggestions handler.
func NewSuggestions() *Suggestions {
	return &Suggestions{}
}

// SetWorkflows replaces the workflow names offered for @-references.
func (s *Suggestions) SetWorkflows(names []string) {
	s.workflows = names
}

// SetTasks replaces the task IDs offered for @-references.
func (s *Suggestions) SetTasks(ids []string) {
	s.tasks = ids
}

// SetSchedules replaces the schedule IDs offered for @-references.
func (s *Suggestions) SetSchedules(ids []string) {
	s.schedules = ids
}

// Update recomputes the dropdown for the current input line.
func (s *Suggestions) Update(input string) {
	s.visible = false
	s.reference = false
	s.filtered = nil

	if input == "" || strings.HasSuffix(input, " ") {
		return
	}

	if !strings.Contains(input, " ") {
		s.filter(commandSuggestions, strings.ToLower(input))
		s.visible = len(s.filtered) > 0
		return
	}

	tokens := strings.Fields(input)
	last := tokens[len(tokens)-1]
	if !strings.HasPrefix(last, "@") {
		return
	}

	s.reference = true
	s.filter(s.referenceItems(), strings.ToLower(strings.TrimPrefix(last, "@")))
	s.visible = len(s.filtered) > 0
}

func (s *Suggestions) referenceItems() []SuggestionItem {
	var items []SuggestionItem
	for _, name := range s.workflows {
		items = append(items, SuggestionItem{Text: name, Description: "workflow", Type: "workflow"})
	}
	for _, id := range s.tasks {
		items = append(items, SuggestionItem{Text: id, Description: "task", Type: "task"})
	}
	for _, id := range s.schedules {
		items = append(items, SuggestionItem{Text: id, Description: "schedule", Type: "schedule"})
	}
	return items
}

func (s *Suggestions) filter(items []SuggestionItem, query string) {
	if query == "" {
		s.filtered = items
		s.selectedIdx = 0
		return
	}

	s.filtered = nil
	for _, item := range items {
		if strings.Contains(strings.ToLower(item.Text), query) {
			s.filtered = append(s.filtered, item)
		}
	}
	s.selectedIdx = 0
}

// Next moves the selection down.
func (s *Suggestions) Next() {
	if len(s.filtered) == 0 {
		return
	}
	s.selectedIdx = (s.selectedIdx + 1) % len(s.filtered)
}

// Prev moves the selection up.
func (s *Suggestions) Prev() {
	if len(s.filtered) == 0 {
		return
	}
	s.selectedIdx--
	if s.selectedIdx < 0 {
		s.selectedIdx = len(s.filtered) - 1
	}
}

// Selected returns the highlighted suggestion, or nil.
func (s *Suggestions) Selected() *SuggestionItem {
	if !s.visible || len(s.filtered) == 0 || s.selectedIdx >= len(s.filtered) {
		return nil
	}
	return &s.filtered[s.selectedIdx]
}

// IsVisible reports whether the dropdown should render.
func (s *Suggestions) IsVisible() bool {
	return s.visible && len(s.filtered) > 0
}

// IsReference reports whether the current suggestions complete an @-token
// rather than the command word.
func (s *Suggestions) IsReference() bool {
	return s.reference
}

// Render draws the dropdown.
func (s *Suggestions) Render(width int) string {
	if !s.IsVisible() {
		return ""
	}

	var b strings.Builder

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(secondaryColor).
		Padding(0, 1).
		Width(width - 4)

	pickedStyle := lipgloss.NewStyle().
		Background(primaryColor).
		Foreground(fgColor).
		Bold(true)

	itemStyle := lipgloss.NewStyle().Foreground(fgColor)
	descStyle := lipgloss.NewStyle().Foreground(mutedColor).Italic(true)

	header := "Commands"
	if s.reference {
		header = "References"
	}
	b.WriteString(lipgloss.NewStyle().Bold(true).Foreground(primaryColor).Render(header))
	b.WriteString("\n")

	maxVisible := 5
	for i, item := range s.filtered {
		if i >= maxVisible {
			b.WriteString(descStyle.Render(fmt.Sprintf("  ... and %d more", len(s.filtered)-maxVisible)))
			break
		}

		var line string
		if i == s.selectedIdx {
			line = pickedStyle.Render("> " + item.Text)
			if item.Description != "" {
				line += " " + pickedStyle.Render(item.Description)
			}
		} else {
			line = itemStyle.Render("  " + item.Text)
			if item.Description != "" {
				line += " " + descStyle.Render(item.Description)
			}
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	return boxStyle.Render(b.String())
}
