package tui

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igreels/pkg/models"
)

func newTestModel() *Model {
	m := NewModel("alice", 3)
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	m.startTime = start
	m.now = func() time.Time { return start.Add(75 * time.Second) }
	return m
}

func TestModel_ApplyEvents(t *testing.T) {
	m := newTestModel()

	m.ApplyEvent(models.ProgressEvent{RunID: "run-1", Stage: models.StageNavigating, Progress: 10, Message: "Opening inbox"})
	m.ApplyEvent(models.ProgressEvent{Stage: models.StageScanning, Progress: 20, ScrollStep: 1, Message: "Scanning pass 1 of 10"})
	m.ApplyEvent(models.ProgressEvent{Stage: models.StageExtracting, Progress: 20, ScrollStep: 1, Message: "Extracting thumbnail-button#0"})
	m.ApplyEvent(models.ProgressEvent{Stage: models.StageExtracting, Progress: 46, ScrollStep: 1, Downloaded: 1, Max: 3,
		File: "/tmp/reels/reel_0.mp4", Message: "Saved 1 of 3"})

	assert.Equal(t, "run-1", m.runID)
	assert.Equal(t, models.StageExtracting, m.stage)
	assert.Equal(t, 46, m.percent)
	assert.Equal(t, 1, m.downloaded)
	require.Len(t, m.files, 1)
	assert.Equal(t, "reel_0.mp4", m.files[0].Name)
	assert.False(t, m.Finished())

	var levels []string
	for _, l := range m.logMessages {
		levels = append(levels, l.Level)
	}
	assert.Equal(t, []string{"INFO", "INFO", "INFO", "SUCCESS"}, levels)
}

func TestModel_RepeatedStageLogsOnce(t *testing.T) {
	m := newTestModel()
	m.ApplyEvent(models.ProgressEvent{Stage: models.StageExtracting, Message: "Extracting a"})
	m.ApplyEvent(models.ProgressEvent{Stage: models.StageExtracting, Message: "Extracting b"})
	assert.Len(t, m.logMessages, 1)
}

func TestModel_Failure(t *testing.T) {
	m := newTestModel()
	m.ApplyEvent(models.ProgressEvent{Stage: models.StageFailed, Message: "Harvest failed", Error: "conversation not found"})

	assert.True(t, m.Finished())
	assert.Equal(t, "conversation not found", m.failure)
	assert.Equal(t, 75*time.Second, m.Elapsed())
	require.Len(t, m.logMessages, 1)
	assert.Equal(t, "ERROR", m.logMessages[0].Level)
}

func TestModel_LogLimit(t *testing.T) {
	m := newTestModel()
	for i := 0; i < m.maxLogMessages+10; i++ {
		m.AddLogMessage("INFO", "line")
	}
	assert.Len(t, m.logMessages, m.maxLogMessages)

	m.AddLogMessage("INFO", "")
	assert.Len(t, m.logMessages, m.maxLogMessages)
}

func TestUpdate_QuitCancelsRun(t *testing.T) {
	m := newTestModel()
	cancelled := false
	m.onQuit = func() { cancelled = true }

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.True(t, cancelled)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestUpdate_QuitAfterDoneDoesNotCancel(t *testing.T) {
	m := newTestModel()
	cancelled := false
	m.onQuit = func() { cancelled = true }
	m.Update(EventMsg(models.ProgressEvent{Stage: models.StageDone, Progress: 100, Message: "Harvested 3 of 3"}))

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.False(t, cancelled)
}

func TestUpdate_HelpAndClear(t *testing.T) {
	m := newTestModel()
	m.AddLogMessage("INFO", "hello")

	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("?")})
	assert.True(t, m.showHelp)

	m.Update(tea.KeyMsg{Type: tea.KeyCtrlL})
	assert.Empty(t, m.logMessages)

	m.Update(LogMsg{Level: "WARN", Message: "slow network"})
	require.Len(t, m.logMessages, 1)
	assert.Equal(t, neonOrange, m.logMessages[0].Color)
}

func TestView(t *testing.T) {
	m := newTestModel()
	assert.Equal(t, "Initializing...", m.View())

	m.Update(tea.WindowSizeMsg{Width: 140, Height: 40})
	m.ApplyEvent(models.ProgressEvent{Stage: models.StageExtracting, Progress: 46, ScrollStep: 2, Downloaded: 1, Max: 3,
		File: "reel_0.mp4", Message: "Saved 1 of 3"})

	view := m.View()
	assert.Contains(t, view, "alice")
	assert.Contains(t, view, "1/3")
	assert.Contains(t, view, "reel_0.mp4")
	assert.Contains(t, view, "01:15")
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "00:00", formatDuration(-time.Second))
	assert.Equal(t, "01:15", formatDuration(75*time.Second))
	assert.Equal(t, "01:00:01", formatDuration(time.Hour+time.Second))
}

func TestProgressWidth(t *testing.T) {
	assert.Equal(t, 10, progressWidth(20))
	assert.Equal(t, 60, progressWidth(140))
}
