package ui

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"igreels/pkg/models"
)

// ProgressDisplay renders harvest progress events as a single updating
// line. In verbose mode every event gets its own line instead.
type ProgressDisplay struct {
	mu         sync.Mutex
	out        io.Writer
	target     string
	max        int
	downloaded int
	scrollStep int
	stage      models.Stage
	lastFile   string
	startTime  time.Time
	verbose    bool
	now        func() time.Time
}

// NewProgressDisplay creates a display for a run against target
func NewProgressDisplay(out io.Writer, target string, max int, verbose bool) *ProgressDisplay {
	return &ProgressDisplay{
		out:       out,
		target:    target,
		max:       max,
		startTime: time.Now(),
		verbose:   verbose,
		now:       time.Now,
	}
}

// Report implements harvest.Reporter
func (p *ProgressDisplay) Report(event models.ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stage = event.Stage
	p.downloaded = event.Downloaded
	p.scrollStep = event.ScrollStep
	if event.Max > 0 {
		p.max = event.Max
	}
	if event.File != "" {
		p.lastFile = filepath.Base(event.File)
	}

	if p.verbose {
		p.printEvent(event)
		return
	}

	switch event.Stage {
	case models.StageFailed:
		fmt.Fprintf(p.out, "\n%s %s\n", Red("✗"), event.Error)
	case models.StageDone:
		p.printProgress(event.Message)
		fmt.Fprintln(p.out)
	default:
		p.printProgress(event.Message)
	}
}

func (p *ProgressDisplay) printEvent(event models.ProgressEvent) {
	marker := Magenta("→")
	switch {
	case event.Stage == models.StageFailed:
		marker = Red("✗")
	case event.File != "":
		marker = Green("✓")
	}
	line := fmt.Sprintf("%s %3d%% %-10s %s", marker, event.Progress, event.Stage, event.Message)
	if event.Error != "" {
		line += " " + Red(event.Error)
	}
	fmt.Fprintln(p.out, line)
}

// printProgress prints the minimal progress line
func (p *ProgressDisplay) printProgress(msg string) {
	line := fmt.Sprintf("%s [%s] %d/%d • pass %d • %s • %s",
		Cyan(p.target),
		Bar(p.downloaded, p.max, 20),
		p.downloaded,
		p.max,
		p.scrollStep,
		FormatDuration(p.now().Sub(p.startTime)),
		msg,
	)
	if p.lastFile != "" {
		line += " • " + Dim(p.lastFile)
	}

	fmt.Fprintf(p.out, "\r%s\r%s", strings.Repeat(" ", 120), line)
}

// Complete prints the run summary
func (p *ProgressDisplay) Complete(result *models.Result) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if result.Empty() {
		fmt.Fprintf(p.out, "\n%s No reels found in the conversation with %s\n", Yellow("•"), p.target)
		return
	}

	fmt.Fprintf(p.out, "\n%s Saved %d reels from %s\n", Green("✓"), len(result.Files), p.target)
	fmt.Fprintf(p.out, "  %s %s in %s\n",
		Dim("•"),
		FormatBytes(result.TotalBytes()),
		FormatDuration(result.FinishedAt.Sub(result.StartedAt)),
	)

	skipped := 0
	for _, n := range result.Skipped {
		skipped += n
	}
	if skipped > 0 {
		fmt.Fprintf(p.out, "  %s %d candidates skipped\n", Dim("•"), skipped)
	}
}
