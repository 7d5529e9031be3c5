// Package extractor turns one candidate element into a downloaded file: it
// opens the element's viewer, waits for the video to mount, reads its
// source, hands it to a downloader and always closes the viewer again.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"igreels/pkg/browser"
	"igreels/pkg/config"
	errs "igreels/pkg/errors"
	"igreels/pkg/logger"
	"igreels/pkg/models"
	"igreels/pkg/retry"
	"igreels/pkg/scanner"
)

var (
	viewerOverlay = browser.CSS("div[role='dialog']")
	viewerVideo   = browser.CSS("div[role='dialog'] video")
	viewerSource  = browser.CSS("div[role='dialog'] video source")
	anyVideo      = browser.CSS("video")

	closeControls = []browser.Selector{
		browser.CSS("button[aria-label='Close']"),
		browser.CSS("div[role='button']:has(svg[aria-label='Close'])"),
		browser.CSS("svg[aria-label='Close']"),
	}
)

// Outcome classifies one extraction attempt
type Outcome string

const (
	Success           Outcome = "success"
	InteractionFailed Outcome = Outcome(errs.ErrorTypeInteractionFailed)
	NoViewer          Outcome = Outcome(errs.ErrorTypeNoViewer)
	NoMedia           Outcome = Outcome(errs.ErrorTypeNoMedia)
	EmptyPayload      Outcome = Outcome(errs.ErrorTypeEmptyPayload)
	TransferError     Outcome = Outcome(errs.ErrorTypeTransferError)
)

// Result is the immutable outcome for one candidate
type Result struct {
	Candidate scanner.Candidate
	Outcome   Outcome
	Source    string
	File      *models.DownloadedFile
	Err       error
}

// OK reports whether a file was persisted
func (r Result) OK() bool {
	return r.Outcome == Success && r.File != nil
}

// Downloader persists the bytes behind a source locator as the file for
// sequence. Failures are EmptyPayload or TransferError.
type Downloader interface {
	Download(ctx context.Context, source string, sequence int) (*models.DownloadedFile, error)
}

// Extractor runs the per-candidate steps against one page
type Extractor struct {
	page          browser.Page
	downloader    Downloader
	viewerWait    time.Duration
	cooldown      time.Duration
	clickAttempts int
	clickDelay    time.Duration
	closeWait     time.Duration
	poll          time.Duration
	logger        logger.Logger
}

// New creates an Extractor using the harvest waits from cfg
func New(page browser.Page, dl Downloader, cfg *config.Config, log logger.Logger) *Extractor {
	attempts := cfg.Harvest.ClickAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &Extractor{
		page:          page,
		downloader:    dl,
		viewerWait:    cfg.Harvest.ViewerWait,
		cooldown:      cfg.Harvest.Cooldown,
		clickAttempts: attempts,
		clickDelay:    time.Second,
		closeWait:     5 * time.Second,
		poll:          250 * time.Millisecond,
		logger:        log.WithField("component", "extractor"),
	}
}

// Extract processes c as download number sequence. Every failure is
// contained in the returned Result; the viewer is closed and the cooldown
// observed on every path.
func (e *Extractor) Extract(ctx context.Context, c scanner.Candidate, sequence int) Result {
	log := e.logger.WithFields(map[string]interface{}{
		"candidate": c.Key(),
		"sequence":  sequence,
	})
	res := e.extract(ctx, c, sequence, log)

	e.closeViewer(ctx, log)
	logger.LogCandidate(log, res.Candidate.Key(), string(res.Outcome), res.Err)

	if err := retry.Wait(ctx, e.cooldown); err != nil && res.Err == nil {
		res.Err = err
	}
	return res
}

func (e *Extractor) extract(ctx context.Context, c scanner.Candidate, sequence int, log logger.Logger) Result {
	res := Result{Candidate: c}

	before, err := e.page.Count(ctx, anyVideo)
	if err != nil {
		log.WithError(err).Debug("Video count unavailable, waiting for the viewer only")
		before = -1
	}
	if err := e.open(ctx, c); err != nil {
		res.Outcome, res.Err = InteractionFailed, errs.Wrap(errs.ErrorTypeInteractionFailed, "failed to open candidate", err)
		return res
	}

	video, err := e.waitForVideo(ctx, before)
	if err != nil {
		if ctx.Err() != nil {
			res.Outcome, res.Err = NoViewer, ctx.Err()
			return res
		}
		overlay, _ := e.page.Count(ctx, viewerOverlay)
		if overlay > 0 {
			res.Outcome, res.Err = NoMedia, errs.New(errs.ErrorTypeNoMedia, "viewer mounted without a video")
		} else {
			res.Outcome, res.Err = NoViewer, errs.New(errs.ErrorTypeNoViewer, fmt.Sprintf("viewer did not load within %s", e.viewerWait))
		}
		return res
	}

	src := e.source(ctx, video)
	switch {
	case src == "":
		res.Outcome, res.Err = NoMedia, errs.New(errs.ErrorTypeNoMedia, "video has no source")
		return res
	case strings.HasPrefix(src, "blob:"):
		res.Outcome, res.Err = NoMedia, errs.New(errs.ErrorTypeNoMedia, "video source is a blob stream")
		return res
	}
	res.Source = src
	log.WithField("source", src).Debug("Found video source")

	file, err := e.downloader.Download(ctx, src, sequence)
	if err != nil {
		res.Err = err
		if errs.TypeOf(err) == errs.ErrorTypeEmptyPayload {
			res.Outcome = EmptyPayload
		} else {
			res.Outcome = TransferError
		}
		return res
	}
	if file == nil || file.Size <= 0 {
		res.Outcome, res.Err = EmptyPayload, errs.New(errs.ErrorTypeEmptyPayload, "downloader reported an empty file")
		return res
	}

	file.Selector = c.Key()
	res.Outcome, res.File = Success, file
	return res
}

// open re-locates the candidate and clicks it; the final attempt uses a
// scripted click
func (e *Extractor) open(ctx context.Context, c scanner.Candidate) error {
	return retry.Do(ctx, func(ctx context.Context, attempt int) error {
		sel, err := c.Locate(ctx, e.page)
		if err != nil {
			return err
		}
		if err := e.page.ScrollIntoView(ctx, sel); err != nil {
			return err
		}
		if attempt == e.clickAttempts {
			return e.page.ForceClick(ctx, sel)
		}
		return e.page.Click(ctx, sel)
	}, &retry.Config{
		MaxAttempts: e.clickAttempts,
		Backoff:     &retry.ConstantBackoff{Delay: e.clickDelay},
		RetryIf:     retry.Always,
		Logger:      e.logger,
		Operation:   "open_candidate",
	})
}

// waitForVideo polls until a video mounts inside the overlay or a new video
// appears anywhere on the page, bounded by the viewer wait. A negative
// before means the prior count is unknown and only the overlay counts.
func (e *Extractor) waitForVideo(ctx context.Context, before int) (browser.Selector, error) {
	waitCtx, cancel := context.WithTimeout(ctx, e.viewerWait)
	defer cancel()

	ticker := time.NewTicker(e.poll)
	defer ticker.Stop()
	for {
		if n, err := e.page.Count(waitCtx, viewerVideo); err == nil && n > 0 {
			return viewerVideo, nil
		}
		if before >= 0 {
			if n, err := e.page.Count(waitCtx, anyVideo); err == nil && n > before {
				return anyVideo.Nth(n - 1), nil
			}
		}
		select {
		case <-waitCtx.Done():
			return browser.Selector{}, waitCtx.Err()
		case <-ticker.C:
		}
	}
}

// source reads the video's src, falling back to a nested <source> and then
// to the serialized overlay markup
func (e *Extractor) source(ctx context.Context, video browser.Selector) string {
	if src, ok, err := e.page.Attribute(ctx, video, "src"); err == nil && ok && strings.TrimSpace(src) != "" {
		return strings.TrimSpace(src)
	}
	if video != viewerVideo {
		return ""
	}
	if n, _ := e.page.Count(ctx, viewerSource); n > 0 {
		if src, _, err := e.page.Attribute(ctx, viewerSource, "src"); err == nil && strings.TrimSpace(src) != "" {
			return strings.TrimSpace(src)
		}
	}
	html, err := e.page.HTML(ctx)
	if err != nil {
		return ""
	}
	return sourceFromMarkup(html)
}

// closeViewer dismisses the overlay with its close control or, failing
// that, a click on empty space while the overlay is still mounted. Errors
// are logged only.
func (e *Extractor) closeViewer(ctx context.Context, log logger.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.closeWait)
	defer cancel()

	for _, sel := range closeControls {
		n, err := e.page.Count(ctx, sel)
		if err != nil || n == 0 {
			continue
		}
		if err := e.page.Click(ctx, sel); err == nil {
			return
		}
		if err := e.page.ForceClick(ctx, sel); err == nil {
			return
		}
	}

	if n, err := e.page.Count(ctx, viewerOverlay); err != nil || n == 0 {
		return
	}
	log.Info("Close control not found, clicking outside the viewer")
	if err := e.page.MouseClick(ctx, 0, 0); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Warn("Failed to dismiss viewer")
	}
}
