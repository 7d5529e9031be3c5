package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"igreels/pkg/models"
	"igreels/pkg/ui"
)

// View renders the entire TUI
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	var sections []string
	sections = append(sections, m.renderHeader())

	mainContent := lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.renderLeftColumn(),
		"  ",
		m.renderRightColumn(),
	)
	sections = append(sections, mainContent)

	if m.showHelp {
		sections = append(sections, m.renderHelp())
	} else {
		sections = append(sections, helpStyle.Render("Press ? for help • q to quit"))
	}

	return baseStyle.Width(m.width).Height(m.height).Render(
		lipgloss.JoinVertical(lipgloss.Left, sections...),
	)
}

func (m *Model) renderHeader() string {
	return logoStyle.Width(m.width).Render(strings.Trim(ui.Logo, "\n"))
}

func (m *Model) renderLeftColumn() string {
	width := (m.width - 4) / 2
	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderStatusPanel(width),
		m.renderFilesPanel(width),
	)
}

func (m *Model) renderRightColumn() string {
	width := (m.width - 4) / 2
	return m.renderLogsPanel(width)
}

// renderStatusPanel renders the run status and overall progress
func (m *Model) renderStatusPanel(width int) string {
	title := titleStyle.Render(" HARVEST ")

	stage := stageStyle(m.stage).Render(strings.ToUpper(string(m.stage)))
	if !m.Finished() {
		stage = m.spinner.View() + " " + stage
	}

	stats := []string{
		fmt.Sprintf("%s %s", statsLabelStyle.Render("Conversation:"), statsValueStyle.Render(m.target)),
		fmt.Sprintf("%s %s", statsLabelStyle.Render("Stage:"), stage),
		fmt.Sprintf("%s %s", statsLabelStyle.Render("Elapsed:"), statsValueStyle.Render(formatDuration(m.Elapsed()))),
		fmt.Sprintf("%s %s", statsLabelStyle.Render("Scroll pass:"), statsValueStyle.Render(fmt.Sprintf("%d", m.scrollStep))),
		fmt.Sprintf("%s %s", statsLabelStyle.Render("Reels:"), statsValueStyle.Render(fmt.Sprintf("%d/%d", m.downloaded, m.max))),
		"",
		m.progress.ViewAs(float64(m.percent) / 100),
	}
	if m.message != "" {
		stats = append(stats, dimStyle.Render(m.message))
	}
	if m.failure != "" {
		stats = append(stats, errorStyle.Render("✗ "+m.failure))
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, lipgloss.JoinVertical(lipgloss.Left, stats...)),
	)
}

// renderFilesPanel lists the most recently saved clips
func (m *Model) renderFilesPanel(width int) string {
	title := titleStyle.Render(" SAVED REELS ")

	if len(m.files) == 0 {
		content := dimStyle.Render("Nothing saved yet")
		return panelStyle.Width(width).Render(lipgloss.JoinVertical(lipgloss.Left, title, content))
	}

	items := []string{successStyle.Render(fmt.Sprintf("✓ %d saved", len(m.files)))}
	start := len(m.files) - 5
	if start < 0 {
		start = 0
	}
	for _, f := range m.files[start:] {
		items = append(items, fileItemStyle.Render("• "+f.Name))
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, lipgloss.JoinVertical(lipgloss.Left, items...)),
	)
}

// renderLogsPanel renders the logs panel
func (m *Model) renderLogsPanel(width int) string {
	title := titleStyle.Render(" LOG ")

	start := len(m.logMessages) - 12
	if start < 0 {
		start = 0
	}

	var logs []string
	maxMsgLen := width - 25
	for _, entry := range m.logMessages[start:] {
		timestamp := logTimestampStyle.Render(entry.Time.Format("15:04:05"))
		level := lipgloss.NewStyle().Foreground(entry.Color).Bold(true).Render(fmt.Sprintf("[%-7s]", entry.Level))

		text := entry.Message
		if maxMsgLen > 3 && len(text) > maxMsgLen {
			text = text[:maxMsgLen-3] + "..."
		}
		logs = append(logs, fmt.Sprintf("%s %s %s", timestamp, level, logMessageStyle.Render(text)))
	}

	content := strings.Join(logs, "\n")
	if content == "" {
		content = dimStyle.Render("No events yet...")
	}

	logsHeight := m.height - 14
	if logsHeight < 5 {
		logsHeight = 5
	}

	return panelStyle.Width(width).Height(logsHeight).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, content),
	)
}

func (m *Model) renderHelp() string {
	help := `
  Keys:
    q/Q      - Stop the harvest and quit
    ctrl+l   - Clear the log
    ?        - Toggle this help

  Stages:
    ` + stageStyle(models.StageScanning).Render("scanning") + `   - Scrolling the thread for reels
    ` + stageStyle(models.StageExtracting).Render("extracting") + ` - Opening a reel and saving it
    ` + stageStyle(models.StageFailed).Render("failed") + `     - The run was aborted
`

	return panelStyle.Width(m.width).Render(help)
}

// formatDuration formats a duration as a clock
func formatDuration(d time.Duration) string {
	total := int(d.Seconds())
	if total < 0 {
		total = 0
	}

	h := total / 3600
	mins := (total / 60) % 60
	s := total % 60

	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, mins, s)
	}
	return fmt.Sprintf("%02d:%02d", mins, s)
}
