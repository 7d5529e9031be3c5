// Package downloader persists the bytes behind a media source locator. Two
// strategies exist, a direct HTTP fetch and an in-browser fetch from a fresh
// tab, and a Chain tries them in the configured order. Nothing is reported
// as downloaded unless the file on disk is non-empty.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"igreels/pkg/browser"
	"igreels/pkg/config"
	errs "igreels/pkg/errors"
	"igreels/pkg/logger"
	"igreels/pkg/models"
	"igreels/pkg/ratelimit"
	"igreels/pkg/storage"
)

// MediaSource opens the byte stream behind a locator
type MediaSource interface {
	OpenMedia(ctx context.Context, mediaURL string) (io.ReadCloser, int64, error)
}

// MediaStorage persists streams under sequence-derived names
type MediaStorage interface {
	Write(sequence int, r io.Reader, maxBytes int64) (string, int64, error)
	Discard(sequence int) error
}

// Strategy is one way of turning a locator into a file
type Strategy interface {
	Name() string
	Fetch(ctx context.Context, source string, sequence int) (string, int64, error)
}

// Verify checks that path holds a non-empty regular file. A failing file is
// removed so no empty artifact is left behind.
func Verify(path string) (int64, error) {
	size, err := storage.Verify(path)
	if err != nil {
		os.Remove(path)
		return 0, err
	}
	return size, nil
}

// Chain tries each strategy in order until one yields a verified file
type Chain struct {
	strategies []Strategy
	storage    MediaStorage
	timeout    time.Duration
	logger     logger.Logger
}

// NewChain wraps strategies; timeout bounds each attempt when positive
func NewChain(strategies []Strategy, store MediaStorage, timeout time.Duration, log logger.Logger) *Chain {
	return &Chain{
		strategies: strategies,
		storage:    store,
		timeout:    timeout,
		logger:     log.WithField("component", "downloader"),
	}
}

// Deps are the collaborators strategies are built from
type Deps struct {
	Source  MediaSource
	Cookies browser.CookieSource
	Tabs    browser.TabOpener
	Storage MediaStorage
	Limiter ratelimit.Limiter
}

// FromConfig builds the chain named by cfg.Download.Strategies
func FromConfig(cfg *config.Config, deps Deps, log logger.Logger) (*Chain, error) {
	var strategies []Strategy
	for _, name := range cfg.Download.Strategies {
		switch name {
		case "http":
			if deps.Source == nil {
				return nil, fmt.Errorf("http strategy needs a media source")
			}
			h := NewHTTPStrategy(deps.Source, deps.Storage, deps.Limiter, log)
			h.MaxBytes = cfg.Download.MaxFileSize
			h.MaxAttempts = cfg.RateLimit.MaxRetries + 1
			h.BaseDelay = cfg.RateLimit.RetryDelay
			h.Multiplier = cfg.RateLimit.BackoffMultiplier
			if cfg.Download.UseCookies {
				h.Cookies = deps.Cookies
			}
			strategies = append(strategies, h)
		case "tab":
			if deps.Tabs == nil {
				return nil, fmt.Errorf("tab strategy needs a browser session")
			}
			tab := NewTabStrategy(deps.Tabs, deps.Storage, log)
			tab.MaxBytes = cfg.Download.MaxFileSize
			strategies = append(strategies, tab)
		default:
			return nil, errs.New(errs.ErrorTypeConfig, fmt.Sprintf("unknown download strategy %q", name))
		}
	}
	if len(strategies) == 0 {
		return nil, errs.New(errs.ErrorTypeConfig, "no download strategy configured")
	}
	return NewChain(strategies, deps.Storage, cfg.Download.DownloadTimeout, log), nil
}

// Names lists the strategies in order
func (c *Chain) Names() []string {
	names := make([]string, len(c.strategies))
	for i, s := range c.strategies {
		names[i] = s.Name()
	}
	return names
}

// Download fetches source as file number sequence. The returned error is
// always EmptyPayload or TransferError unless ctx ended.
func (c *Chain) Download(ctx context.Context, source string, sequence int) (*models.DownloadedFile, error) {
	var lastErr error
	for _, strategy := range c.strategies {
		file, err := c.try(ctx, strategy, source, sequence)
		if err == nil {
			logger.LogDownload(c.logger.WithField("strategy", strategy.Name()), sequence, file.Path, file.Size, nil)
			return file, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.WithError(err).WithFields(map[string]interface{}{
			"strategy": strategy.Name(),
			"sequence": sequence,
		}).Warn("Download strategy failed")
		lastErr = err
	}

	if lastErr == nil {
		lastErr = errs.TransferError("no strategy available", 0, nil)
	}
	logger.LogDownload(c.logger, sequence, "", 0, lastErr)
	return nil, lastErr
}

func (c *Chain) try(ctx context.Context, strategy Strategy, source string, sequence int) (*models.DownloadedFile, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	path, _, err := strategy.Fetch(ctx, source, sequence)
	if err != nil {
		c.storage.Discard(sequence)
		return nil, classify(err)
	}

	size, err := Verify(path)
	if err != nil {
		c.storage.Discard(sequence)
		return nil, err
	}

	return &models.DownloadedFile{
		Path:     path,
		Sequence: sequence,
		Size:     size,
		Source:   source,
		Strategy: strategy.Name(),
		SavedAt:  time.Now(),
	}, nil
}

// classify narrows err to the two download failure kinds. Context errors
// pass through untouched.
func classify(err error) error {
	switch errs.TypeOf(err) {
	case errs.ErrorTypeEmptyPayload, errs.ErrorTypeTransferError:
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var typed *errs.Error
	if errors.As(err, &typed) {
		reason := typed.Reason
		if reason == "" {
			reason = string(typed.Type)
		}
		return errs.TransferError(reason, typed.Code, err)
	}
	return errs.TransferError("fetch failed", 0, err)
}
