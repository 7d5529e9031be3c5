package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"igreels/pkg/models"
)

// TUI is the full-screen harvest dashboard. It implements harvest.Reporter
// so it can be handed straight to a Harvester.
type TUI struct {
	program *tea.Program
	model   *Model
}

// NewTUI creates a dashboard for a run against target. onQuit runs when the
// user quits from the keyboard; callers use it to cancel the run.
func NewTUI(target string, max int, onQuit func()) *TUI {
	model := NewModel(target, max)
	model.onQuit = onQuit
	program := tea.NewProgram(model, tea.WithAltScreen())

	return &TUI{
		program: program,
		model:   model,
	}
}

// Start runs the UI loop until Stop is called or the user quits
func (t *TUI) Start() error {
	_, err := t.program.Run()
	return err
}

// Stop stops the TUI gracefully
func (t *TUI) Stop() {
	t.program.Quit()
}

// Send sends a message to the TUI
func (t *TUI) Send(msg tea.Msg) {
	if t.program != nil {
		t.program.Send(msg)
	}
}

// Report implements harvest.Reporter
func (t *TUI) Report(event models.ProgressEvent) {
	t.Send(EventMsg(event))
}

// Log sends a log line to the TUI
func (t *TUI) Log(level, format string, args ...interface{}) {
	t.Send(LogMsg{Level: level, Message: fmt.Sprintf(format, args...)})
}

// LogInfo logs an info message
func (t *TUI) LogInfo(format string, args ...interface{}) {
	t.Log("INFO", format, args...)
}

// LogWarning logs a warning message
func (t *TUI) LogWarning(format string, args ...interface{}) {
	t.Log("WARN", format, args...)
}

// LogError logs an error message
func (t *TUI) LogError(format string, args ...interface{}) {
	t.Log("ERROR", format, args...)
}
