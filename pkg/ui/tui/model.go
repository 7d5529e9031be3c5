package tui

import (
	"path/filepath"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"igreels/pkg/models"
)

// SavedFile is one clip shown in the files panel
type SavedFile struct {
	Name string
	Time time.Time
}

// LogMessage represents a log entry
type LogMessage struct {
	Time    time.Time
	Level   string
	Message string
	Color   lipgloss.Color
}

// Model is the dashboard state. It is only touched from the bubbletea
// loop.
type Model struct {
	spinner  spinner.Model
	progress progress.Model

	target     string
	runID      string
	stage      models.Stage
	message    string
	percent    int
	scrollStep int
	downloaded int
	max        int
	files      []SavedFile
	failure    string
	startTime  time.Time
	endTime    time.Time

	width          int
	height         int
	showHelp       bool
	logMessages    []LogMessage
	maxLogMessages int

	onQuit func()
	now    func() time.Time
}

// NewModel creates a dashboard model for target
func NewModel(target string, max int) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(neonCyan)

	p := progress.New(progress.WithDefaultGradient())
	p.Width = 40

	return &Model{
		spinner:        s,
		progress:       p,
		target:         target,
		max:            max,
		stage:          models.StageStarting,
		startTime:      time.Now(),
		files:          []SavedFile{},
		logMessages:    []LogMessage{},
		maxLogMessages: 50,
		now:            time.Now,
	}
}

// Init initializes the model
func (m *Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// ApplyEvent folds a progress event into the model
func (m *Model) ApplyEvent(event models.ProgressEvent) {
	if event.RunID != "" {
		m.runID = event.RunID
	}
	if event.Max > 0 {
		m.max = event.Max
	}
	prevStage := m.stage
	m.stage = event.Stage
	m.message = event.Message
	m.percent = event.Progress
	m.scrollStep = event.ScrollStep
	m.downloaded = event.Downloaded

	switch {
	case event.File != "":
		m.files = append(m.files, SavedFile{Name: filepath.Base(event.File), Time: event.Time})
		m.AddLogMessage("SUCCESS", "Saved "+filepath.Base(event.File))
	case event.Stage == models.StageFailed:
		m.failure = event.Error
		m.endTime = m.now()
		m.AddLogMessage("ERROR", event.Error)
	case event.Stage == models.StageDone:
		m.endTime = m.now()
		m.AddLogMessage("SUCCESS", event.Message)
	case event.Stage != prevStage || event.Stage == models.StageScanning:
		m.AddLogMessage("INFO", event.Message)
	}
}

// Finished reports whether the run has reached a terminal stage
func (m *Model) Finished() bool {
	return m.stage == models.StageDone || m.stage == models.StageFailed
}

// Elapsed returns the run time so far, frozen once the run finishes
func (m *Model) Elapsed() time.Duration {
	if !m.endTime.IsZero() {
		return m.endTime.Sub(m.startTime)
	}
	return m.now().Sub(m.startTime)
}

// AddLogMessage adds a log message
func (m *Model) AddLogMessage(level, message string) {
	if message == "" {
		return
	}

	color := dimWhite
	switch level {
	case "ERROR":
		color = lipgloss.Color("#FF0000")
	case "WARN":
		color = neonOrange
	case "SUCCESS":
		color = neonGreen
	case "INFO":
		color = neonCyan
	}

	m.logMessages = append(m.logMessages, LogMessage{
		Time:    m.now(),
		Level:   level,
		Message: message,
		Color:   color,
	})

	if len(m.logMessages) > m.maxLogMessages {
		m.logMessages = m.logMessages[len(m.logMessages)-m.maxLogMessages:]
	}
}
