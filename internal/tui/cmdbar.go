package tui

import (
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	cmdBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("255")).
			Padding(0, 1)

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true)
)

// CmdBar is the ":"-prompt command input at the bottom of the screen.
type CmdBar struct {
	input   textinput.Model
	focused bool
}

// NewCmdBar creates an unfocused command bar.
func NewCmdBar() *CmdBar {
	ti := textinput.New()
	ti.Placeholder = "add | run | schedule | cancel | delete | ask | start | stop"
	ti.CharLimit = 256
	return &CmdBar{input: ti}
}

// Focus gives the bar keyboard input.
func (cb *CmdBar) Focus() tea.Cmd {
	cb.focused = true
	return cb.input.Focus()
}

// Blur releases keyboard input and clears the line.
func (cb *CmdBar) Blur() {
	cb.focused = false
	cb.input.Blur()
	cb.input.SetValue("")
}

// Focused reports whether the bar owns keyboard input.
func (cb *CmdBar) Focused() bool {
	return cb.focused
}

// Value returns the current input text.
func (cb *CmdBar) Value() string {
	return cb.input.Value()
}

// SetValue replaces the input text and moves the cursor to the end.
func (cb *CmdBar) SetValue(v string) {
	cb.input.SetValue(v)
	cb.input.CursorEnd()
}

// Submit returns the entered line and blurs the bar.
func (cb *CmdBar) Submit() string {
	val := cb.input.Value()
	cb.Blur()
	return val
}

// SetWidth resizes the input to the window.
func (cb *CmdBar) SetWidth(w int) {
	cb.input.Width = w - 6
}

// Update forwards messages to the text input while focused.
func (cb *CmdBar) Update(msg tea.Msg) tea.Cmd {
	if !cb.focused {
		return nil
	}
	var cmd tea.Cmd
	cb.input, cmd = cb.input.Update(msg)
	return cmd
}

// View renders the bar, or a hint line when unfocused.
func (cb *CmdBar) View() string {
	if cb.focused {
		return cmdBarStyle.Render(promptStyle.Render(": ") + cb.input.View())
	}
	return cmdBarStyle.Render("Press : to enter a command (add, run, schedule, cancel, delete, ask, start, stop)")
}
