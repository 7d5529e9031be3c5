package harvest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igreels/pkg/browser"
	"igreels/pkg/config"
	errs "igreels/pkg/errors"
	"igreels/pkg/instagram"
	"igreels/pkg/logger"
	"igreels/pkg/metadata"
	"igreels/pkg/models"
	"igreels/pkg/navigator"
	"igreels/pkg/scanner"
)

const (
	target = "alice"

	inboxLink     = `a[href="/direct/inbox/"]`
	inboxReady    = `div[role="navigation"], div[aria-label="Direct"], a[href^="/direct/t/"]`
	messageArea   = "div[role='grid']"
	viewerOverlay = "div[role='dialog']"
	viewerVideo   = "div[role='dialog'] video"
	closeButton   = "button[aria-label='Close']"
)

var thumbnails = scanner.DefaultStrategies()[0].Query

func conversationQuery(name string) string {
	return fmt.Sprintf("//span[contains(text(), %s)]", browser.XPathLiteral(name))
}

// thread models an inbox with one conversation whose thread holds a number
// of reel thumbnails. Clicking thumbnail i (counted from the newest) opens a
// viewer playing reel-i unless it is listed in broken.
type thread struct {
	page   *browser.FakePage
	broken map[int]bool
	// grow adds thumbnails the first time the thread is scrolled on this pass
	grow map[int]int

	mu     sync.Mutex
	scroll int
}

func newThread(thumbs int) *thread {
	th := &thread{
		page:   browser.NewFakePage(),
		broken: map[int]bool{},
		grow:   map[int]int{},
	}
	p := th.page
	p.SetCount(inboxLink, 1)
	p.SetCount(conversationQuery(target), 1)
	p.SetCount(messageArea, 1)
	p.SetScroll(messageArea, 0, 800)
	p.SetCount(thumbnails, thumbs)

	p.OnClick = func(p *browser.FakePage, sel browser.Selector) {
		switch sel.Query {
		case inboxLink:
			p.SetURL(instagram.BaseURL + instagram.InboxPath)
			p.SetEvaluate("document.readyState", "complete")
			p.SetCount(inboxReady, 1)
		case thumbnails:
			fromEnd := p.CountOf(thumbnails) - 1 - sel.Index
			if th.broken[fromEnd] {
				return
			}
			p.SetCount(viewerOverlay, 1)
			p.SetCount(viewerVideo, 1)
			p.SetCount(closeButton, 1)
			p.SetAttr(browser.CSS(viewerVideo), "src", fmt.Sprintf("https://cdn.example/reel-%d.mp4", fromEnd))
		case closeButton:
			p.SetCount(viewerOverlay, 0)
			p.SetCount(viewerVideo, 0)
			p.SetCount(closeButton, 0)
		}
	}
	p.OnScroll = func(p *browser.FakePage, sel browser.Selector, offset float64) {
		th.mu.Lock()
		th.scroll++
		n := th.grow[th.scroll]
		th.mu.Unlock()
		if n > 0 {
			p.AddCount(thumbnails, n)
		}
	}
	return th
}

func (th *thread) scrolls() int {
	return th.page.CallCount("scroll:" + messageArea)
}

// fakeDownloader records sources and writes a small file per sequence
type fakeDownloader struct {
	dir     string
	mu      sync.Mutex
	sources []string
	fail    map[string]error
}

func (d *fakeDownloader) Download(ctx context.Context, source string, sequence int) (*models.DownloadedFile, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail[source]; err != nil {
		return nil, err
	}
	d.sources = append(d.sources, source)
	path := filepath.Join(d.dir, fmt.Sprintf("reel_%d.mp4", sequence))
	if err := os.WriteFile(path, []byte(source), 0644); err != nil {
		return nil, err
	}
	return &models.DownloadedFile{Path: path, Sequence: sequence, Size: int64(len(source)), Source: source, Strategy: "fake"}, nil
}

type recorder struct {
	started  string
	recorded []models.DownloadedFile
	finished *models.Result
}

func (r *recorder) Start(runID, target string) error { r.started = runID; return nil }
func (r *recorder) Record(file models.DownloadedFile) error {
	r.recorded = append(r.recorded, file)
	return nil
}
func (r *recorder) Finish(result *models.Result) error { r.finished = result; return nil }

func testConfig(t *testing.T, max int) *config.Config {
	cfg := config.DefaultConfig()
	dir := t.TempDir()
	cfg.Harvest.MaxMediaCount = max
	cfg.Harvest.ScrollAttemptBound = 4
	cfg.Harvest.ConversationAttempts = 2
	cfg.Harvest.ConversationRetryWait = 5 * time.Millisecond
	cfg.Harvest.NavigationWait = 50 * time.Millisecond
	cfg.Harvest.PopupWait = 5 * time.Millisecond
	cfg.Harvest.ViewerWait = 20 * time.Millisecond
	cfg.Harvest.ScrollSettle = 0
	cfg.Harvest.ThreadSettle = 0
	cfg.Harvest.Cooldown = 0
	cfg.Output.TempDirectory = dir
	cfg.Output.DiagnosticsDir = filepath.Join(dir, "diagnostics")
	return cfg
}

func newHarvester(t *testing.T, th *thread, cfg *config.Config) (*Harvester, *fakeDownloader, *logger.TestLogger) {
	log := logger.NewTestLogger()
	dl := &fakeDownloader{dir: cfg.Output.TempDirectory, fail: map[string]error{}}
	return New(th.page, dl, cfg, log), dl, log
}

func TestRun_StopsAtMaxAcrossPasses(t *testing.T) {
	th := newThread(2)
	// the second pass reveals three older reels above the first two
	th.grow[2] = 3
	cfg := testConfig(t, 3)
	h, dl, log := newHarvester(t, th, cfg)

	result, err := h.Run(context.Background(), target)
	require.NoError(t, err, log.String())

	require.Len(t, result.Files, 3)
	assert.Equal(t, []string{
		"https://cdn.example/reel-1.mp4",
		"https://cdn.example/reel-0.mp4",
		"https://cdn.example/reel-4.mp4",
	}, dl.sources)
	for i, f := range result.Files {
		assert.Equal(t, i, f.Sequence)
		assert.Positive(t, f.Size)
	}
	assert.Equal(t, 2, result.ScrollSteps)
	assert.Equal(t, 2, th.scrolls(), "no scrolling after the target is reached")
	assert.Equal(t, 3, result.Attempted)
	assert.True(t, log.HasMessage("Reached media target"))

	m, err := metadata.Load(cfg.Output.TempDirectory)
	require.NoError(t, err)
	assert.Len(t, m.Entries, 3)
	assert.Equal(t, "thumbnail-button#4", m.Entries[2].Selector)
}

func TestRun_NoCandidates(t *testing.T) {
	th := newThread(0)
	cfg := testConfig(t, 3)
	cfg.Harvest.ScrollAttemptBound = 3
	h, dl, log := newHarvester(t, th, cfg)

	result, err := h.Run(context.Background(), target)
	require.NoError(t, err)
	assert.True(t, result.Empty())
	assert.Empty(t, dl.sources)
	assert.Equal(t, 3, result.ScrollSteps)
	assert.Len(t, log.GetMessagesByLevel("WARN"), 3, "one warning per empty pass")
	assert.Equal(t, "WARN", log.LevelOf("No candidate elements found in this pass"))
	assert.True(t, log.HasMessage("No media found"))

	_, statErr := os.Stat(filepath.Join(cfg.Output.TempDirectory, metadata.ManifestFile))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRun_ViewerNeverMountsSkipsToNext(t *testing.T) {
	th := newThread(2)
	th.broken[1] = true
	cfg := testConfig(t, 5)
	cfg.Harvest.ScrollAttemptBound = 2
	h, dl, _ := newHarvester(t, th, cfg)

	result, err := h.Run(context.Background(), target)
	require.NoError(t, err)
	require.Len(t, result.Files, 1)
	assert.Equal(t, []string{"https://cdn.example/reel-0.mp4"}, dl.sources)
	assert.Equal(t, 0, result.Files[0].Sequence)
	assert.Equal(t, 1, result.Skipped["no_viewer"])
	assert.Equal(t, 2, result.Attempted, "visited candidates are not retried on the second pass")
}

func TestRun_DownloadFailureIsSkipped(t *testing.T) {
	th := newThread(2)
	cfg := testConfig(t, 2)
	cfg.Harvest.ScrollAttemptBound = 1
	h, dl, _ := newHarvester(t, th, cfg)
	dl.fail["https://cdn.example/reel-1.mp4"] = errs.TransferError("403 Forbidden", 403, nil)

	result, err := h.Run(context.Background(), target)
	require.NoError(t, err)
	require.Len(t, result.Files, 1)
	assert.Equal(t, 0, result.Files[0].Sequence, "failed candidates do not consume a sequence number")
	assert.Equal(t, 1, result.Skipped["transfer_error"])
}

func TestRun_ConversationNotFound(t *testing.T) {
	th := newThread(3)
	th.page.SetCount(conversationQuery(target), 0)
	cfg := testConfig(t, 3)
	h, dl, log := newHarvester(t, th, cfg)
	var events []models.ProgressEvent
	h.SetReporter(ReporterFunc(func(e models.ProgressEvent) { events = append(events, e) }))

	result, err := h.Run(context.Background(), target)
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrConversationNotFound)
	assert.True(t, errs.IsFatal(err))
	require.NotNil(t, result)
	assert.Empty(t, result.Files)
	assert.Empty(t, dl.sources)
	assert.Zero(t, th.scrolls())
	assert.Equal(t, "ERROR", log.LevelOf("Harvest aborted"))

	shots, _ := filepath.Glob(filepath.Join(cfg.Output.DiagnosticsDir, "error_*.png"))
	assert.Len(t, shots, 1)
	pages, _ := filepath.Glob(filepath.Join(cfg.Output.DiagnosticsDir, "error_*.html"))
	assert.Len(t, pages, 1)

	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, models.StageFailed, last.Stage)
	assert.NotEmpty(t, last.Error)
}

func TestRun_NavigationFailed(t *testing.T) {
	th := newThread(1)
	th.page.SetCount(inboxLink, 0)
	th.page.FailNavigate(instagram.InboxURL(instagram.BaseURL), errors.New("net::ERR_NAME_NOT_RESOLVED"))
	cfg := testConfig(t, 3)
	h, _, _ := newHarvester(t, th, cfg)

	result, err := h.Run(context.Background(), target)
	assert.ErrorIs(t, err, errs.ErrNavigationFailed)
	assert.Empty(t, result.Files)
	assert.Zero(t, th.page.CallCount("wait:"+conversationQuery(target)))
}

func TestRun_LoginWhenCredentialsSet(t *testing.T) {
	th := newThread(1)
	th.page.SetCount(`input[name="username"]`, 1)
	th.page.SetCount(`input[name="password"]`, 1)
	th.page.SetCount(`button[type="submit"]`, 1)
	onClick := th.page.OnClick
	th.page.OnClick = func(p *browser.FakePage, sel browser.Selector) {
		if sel.Query == `button[type="submit"]` {
			p.SetURL(instagram.BaseURL + "/")
			return
		}
		onClick(p, sel)
	}
	cfg := testConfig(t, 1)
	h, dl, _ := newHarvester(t, th, cfg)
	h.SetCredentials(navigator.Credentials{Username: "me", Password: "secret"})

	_, err := h.Run(context.Background(), target)
	require.NoError(t, err)
	assert.Equal(t, "me", th.page.Typed(`input[name="username"]`))
	assert.Len(t, dl.sources, 1)
}

func TestRun_RecorderAndEvents(t *testing.T) {
	th := newThread(2)
	cfg := testConfig(t, 2)
	h, _, _ := newHarvester(t, th, cfg)
	rec := &recorder{}
	h.SetRecorder(rec)

	var stages []models.Stage
	var last models.ProgressEvent
	h.SetReporter(ReporterFunc(func(e models.ProgressEvent) {
		if len(stages) == 0 || stages[len(stages)-1] != e.Stage {
			stages = append(stages, e.Stage)
		}
		last = e
	}))

	result, err := h.Run(context.Background(), target)
	require.NoError(t, err)

	assert.Equal(t, result.RunID, rec.started)
	assert.Len(t, rec.recorded, 2)
	assert.Same(t, result, rec.finished)

	assert.Equal(t, []models.Stage{
		models.StageStarting,
		models.StageNavigating,
		models.StageLocating,
		models.StageScanning,
		models.StageExtracting,
		models.StageDone,
	}, stages)
	assert.Equal(t, 100, last.Progress)
	assert.Equal(t, 2, last.Downloaded)
	assert.Equal(t, result.RunID, last.RunID)
}

func TestRun_Cancelled(t *testing.T) {
	th := newThread(3)
	cfg := testConfig(t, 3)
	h, _, _ := newHarvester(t, th, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	h.SetReporter(ReporterFunc(func(e models.ProgressEvent) {
		if e.File != "" {
			cancel()
		}
	}))

	result, err := h.Run(ctx, target)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, result.Files, 1, "files downloaded before cancellation are kept")
	assert.False(t, errs.IsFatal(err))
}

func TestProgress(t *testing.T) {
	state := scanner.NewScanState(4, 10)
	assert.Equal(t, 10, progress(models.StageNavigating, state))
	assert.Equal(t, 20, progress(models.StageScanning, state))
	state.RecordSuccess()
	state.RecordSuccess()
	assert.Equal(t, 60, progress(models.StageExtracting, state))
	assert.Equal(t, 100, progress(models.StageDone, state))
}
