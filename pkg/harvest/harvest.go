// Package harvest runs one end-to-end pass over a conversation: reach the
// inbox, open the thread, then alternate scroll-to-top and discovery passes,
// extracting each new candidate until the media target or the scroll bound
// is reached.
//
// Only NavigationFailed and ConversationNotFound abort a run. Every
// per-candidate failure is recorded in the result's skip counts and the loop
// moves on. A run that finds nothing returns an empty result and no error.
package harvest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"igreels/pkg/browser"
	"igreels/pkg/config"
	errs "igreels/pkg/errors"
	"igreels/pkg/extractor"
	"igreels/pkg/logger"
	"igreels/pkg/metadata"
	"igreels/pkg/models"
	"igreels/pkg/navigator"
	"igreels/pkg/retry"
	"igreels/pkg/scanner"
)

// Reporter receives progress events as the run advances
type Reporter interface {
	Report(event models.ProgressEvent)
}

// ReporterFunc adapts a function to Reporter
type ReporterFunc func(models.ProgressEvent)

func (f ReporterFunc) Report(event models.ProgressEvent) { f(event) }

// Recorder persists run progress so an interrupted run can still be
// compiled
type Recorder interface {
	Start(runID, target string) error
	Record(file models.DownloadedFile) error
	Finish(result *models.Result) error
}

// Harvester wires the navigator, scanner and extractor over one page
type Harvester struct {
	page      browser.Page
	navigator *navigator.Navigator
	scanner   *scanner.Scanner
	extractor *extractor.Extractor
	config    *config.Config
	logger    logger.Logger

	credentials *navigator.Credentials
	reporter    Reporter
	recorder    Recorder
	now         func() time.Time
}

// New creates a Harvester for page. dl persists each located video.
func New(page browser.Page, dl extractor.Downloader, cfg *config.Config, log logger.Logger) *Harvester {
	return &Harvester{
		page:      page,
		navigator: navigator.New(page, cfg, log),
		scanner:   scanner.New(page, cfg, log),
		extractor: extractor.New(page, dl, cfg, log),
		config:    cfg,
		logger:    log.WithField("component", "harvest"),
		now:       time.Now,
	}
}

// SetCredentials enables the login step
func (h *Harvester) SetCredentials(creds navigator.Credentials) {
	h.credentials = &creds
}

// SetReporter sets the progress sink
func (h *Harvester) SetReporter(r Reporter) {
	h.reporter = r
}

// SetRecorder sets where progress is checkpointed
func (h *Harvester) SetRecorder(r Recorder) {
	h.recorder = r
}

// run carries the per-run values through the stages
type run struct {
	id     string
	target string
	state  *scanner.ScanState
	result *models.Result
	log    logger.Logger
}

// Run harvests up to Harvest.MaxMediaCount videos from the conversation
// with target. The returned result is never nil; on a fatal error or
// cancellation it holds whatever was downloaded before.
func (h *Harvester) Run(ctx context.Context, target string) (*models.Result, error) {
	r := &run{
		id:     uuid.NewString(),
		target: target,
		state:  scanner.NewScanState(h.config.Harvest.MaxMediaCount, h.config.Harvest.ScrollAttemptBound),
	}
	r.result = &models.Result{
		RunID:     r.id,
		Target:    target,
		Files:     []models.DownloadedFile{},
		Skipped:   make(map[string]int),
		StartedAt: h.now(),
	}
	r.log = h.logger.WithFields(map[string]interface{}{
		"run_id": r.id,
		"target": target,
	})

	logger.LogComponentStart("harvest", map[string]interface{}{
		"run_id": r.id,
		"target": target,
		"max":    r.state.MaxMedia,
	})
	h.report(r, models.StageStarting, "Starting harvest")
	if h.recorder != nil {
		if err := h.recorder.Start(r.id, target); err != nil {
			r.log.WithError(err).Warn("Failed to start checkpoint")
		}
	}

	if err := h.reachThread(ctx, r); err != nil {
		return h.fail(ctx, r, err)
	}
	if err := h.scan(ctx, r); err != nil {
		return h.fail(ctx, r, err)
	}
	return h.finish(r), nil
}

func (h *Harvester) reachThread(ctx context.Context, r *run) error {
	if h.credentials != nil && !h.config.Harvest.SkipLogin {
		h.report(r, models.StageLogin, "Logging in")
		if err := h.navigator.Login(ctx, *h.credentials); err != nil {
			return err
		}
	}

	h.report(r, models.StageNavigating, "Opening inbox")
	if err := h.navigator.OpenInbox(ctx); err != nil {
		return err
	}

	h.report(r, models.StageLocating, fmt.Sprintf("Looking for conversation with %s", r.target))
	if err := h.scanner.FindConversation(ctx, r.target); err != nil {
		return err
	}

	r.log.WithField("settle", h.config.Harvest.ThreadSettle.String()).Debug("Waiting for thread to load")
	if h.config.Harvest.ThreadSettle > 0 {
		return retry.Wait(ctx, h.config.Harvest.ThreadSettle)
	}
	return ctx.Err()
}

// scan alternates scroll-to-top and discovery until the state is done
func (h *Harvester) scan(ctx context.Context, r *run) error {
	state := r.state
	for !state.Done() {
		if _, err := h.scanner.ScrollToTop(ctx); err != nil {
			return err
		}
		step := state.NextStep()
		h.report(r, models.StageScanning, fmt.Sprintf("Scanning pass %d of %d", step, state.ScrollBound))

		candidates, err := h.scanner.Discover(ctx, state)
		if err != nil {
			return err
		}

		for _, c := range candidates {
			if !state.MarkVisited(c.Key()) {
				continue
			}
			if err := h.extract(ctx, r, c); err != nil {
				return err
			}
			if state.Full() {
				r.log.WithField("downloaded", state.SuccessCount).Info("Reached media target")
				return nil
			}
		}
	}

	if state.Exhausted() && !state.Full() {
		r.log.WithFields(map[string]interface{}{
			"scroll_steps": state.ScrollStep,
			"downloaded":   state.SuccessCount,
		}).Info("Scroll bound reached")
	}
	return nil
}

func (h *Harvester) extract(ctx context.Context, r *run, c scanner.Candidate) error {
	seq := r.state.NextSequence()
	h.report(r, models.StageExtracting, fmt.Sprintf("Extracting %s", c.Key()))

	res := h.extractor.Extract(ctx, c, seq)
	r.result.Attempted++

	if !res.OK() {
		r.result.Skipped[string(res.Outcome)]++
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return nil
	}

	r.state.RecordSuccess()
	r.result.Files = append(r.result.Files, *res.File)
	if h.recorder != nil {
		if err := h.recorder.Record(*res.File); err != nil {
			r.log.WithError(err).Warn("Failed to checkpoint download")
		}
	}
	logger.LogHarvestProgress(r.log, r.target, r.state.SuccessCount, r.state.MaxMedia)
	h.reportFile(r, res.File)
	return ctx.Err()
}

// fail writes diagnostics for fatal errors and returns the partial result
func (h *Harvester) fail(ctx context.Context, r *run, err error) (*models.Result, error) {
	r.result.ScrollSteps = r.state.ScrollStep
	r.result.FinishedAt = h.now()

	if errs.IsFatal(err) {
		capture := browser.CaptureDiagnostics(context.WithoutCancel(ctx), h.page, h.config.Output.DiagnosticsDir,
			browser.DiagnosticName("error", h.now()), r.log)
		r.log.WithError(err).WithFields(map[string]interface{}{
			"error_type": string(errs.TypeOf(err)),
			"screenshot": capture.Screenshot,
			"url":        capture.URL,
		}).Error("Harvest aborted")
	} else if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		r.log.WithField("downloaded", len(r.result.Files)).Warn("Harvest interrupted")
	} else {
		r.log.WithError(err).Error("Harvest failed")
	}

	h.persist(r)
	logger.LogComponentStop("harvest", string(errs.TypeOf(err)))
	event := h.event(r, models.StageFailed, "Harvest failed")
	event.Error = err.Error()
	h.emit(event)
	return r.result, err
}

func (h *Harvester) finish(r *run) *models.Result {
	r.result.ScrollSteps = r.state.ScrollStep
	r.result.FinishedAt = h.now()
	h.persist(r)

	msg := fmt.Sprintf("Harvested %d of %d", len(r.result.Files), r.state.MaxMedia)
	if r.result.Empty() {
		msg = "No media found"
	}
	r.log.WithFields(map[string]interface{}{
		"files":        len(r.result.Files),
		"attempted":    r.result.Attempted,
		"scroll_steps": r.result.ScrollSteps,
		"skipped":      r.result.Skipped,
	}).Info(msg)
	logger.LogComponentStop("harvest", "completed")

	h.report(r, models.StageDone, msg)
	return r.result
}

// persist writes the manifest and closes the checkpoint. Failures are
// logged only.
func (h *Harvester) persist(r *run) {
	if h.config.Output.WriteManifest && len(r.result.Files) > 0 {
		if path, err := metadata.FromResult(r.result).Save(h.config.Output.TempDirectory); err != nil {
			r.log.WithError(err).Warn("Failed to write manifest")
		} else {
			r.log.WithField("path", path).Debug("Manifest written")
		}
	}
	if h.recorder != nil {
		if err := h.recorder.Finish(r.result); err != nil {
			r.log.WithError(err).Warn("Failed to finish checkpoint")
		}
	}
}

func (h *Harvester) event(r *run, stage models.Stage, msg string) models.ProgressEvent {
	return models.ProgressEvent{
		RunID:      r.id,
		Stage:      stage,
		Progress:   progress(stage, r.state),
		Message:    msg,
		ScrollStep: r.state.ScrollStep,
		Downloaded: r.state.SuccessCount,
		Max:        r.state.MaxMedia,
		Time:       h.now(),
	}
}

func (h *Harvester) report(r *run, stage models.Stage, msg string) {
	h.emit(h.event(r, stage, msg))
}

func (h *Harvester) reportFile(r *run, file *models.DownloadedFile) {
	event := h.event(r, models.StageExtracting, fmt.Sprintf("Saved %d of %d", r.state.SuccessCount, r.state.MaxMedia))
	event.File = file.Path
	h.emit(event)
}

func (h *Harvester) emit(event models.ProgressEvent) {
	if h.reporter != nil {
		h.reporter.Report(event)
	}
}

// progress maps a stage and the success count onto 0-100. Setup stages
// take the first 20%, extraction the rest.
func progress(stage models.Stage, state *scanner.ScanState) int {
	switch stage {
	case models.StageStarting:
		return 0
	case models.StageLogin:
		return 5
	case models.StageNavigating:
		return 10
	case models.StageLocating:
		return 15
	case models.StageDone:
		return 100
	}
	if state.MaxMedia <= 0 {
		return 20
	}
	return 20 + 80*state.SuccessCount/state.MaxMedia
}
