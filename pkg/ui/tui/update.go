package tui

import (
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"igreels/pkg/models"
)

// EventMsg carries one harvest progress event into the UI loop
type EventMsg models.ProgressEvent

// LogMsg is sent to add a log message
type LogMsg struct {
	Level   string
	Message string
}

// Update handles all messages and updates the model
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.progress.Width = progressWidth(msg.Width)
		return m, nil

	case spinner.TickMsg:
		if m.Finished() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case EventMsg:
		wasFinished := m.Finished()
		m.ApplyEvent(models.ProgressEvent(msg))
		if wasFinished && !m.Finished() {
			return m, m.spinner.Tick
		}
		return m, nil

	case LogMsg:
		m.AddLogMessage(msg.Level, msg.Message)
		return m, nil
	}

	return m, nil
}

// handleKeyPress handles keyboard input
func (m *Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "Q", "ctrl+c":
		if !m.Finished() {
			m.AddLogMessage("WARN", "Stopping harvest")
			if m.onQuit != nil {
				m.onQuit()
			}
		}
		return m, tea.Quit

	case "?":
		m.showHelp = !m.showHelp
		return m, nil

	case "ctrl+l":
		m.logMessages = []LogMessage{}
		return m, nil
	}

	return m, nil
}

func progressWidth(total int) int {
	w := (total-4)/2 - 8
	if w < 10 {
		return 10
	}
	return w
}
