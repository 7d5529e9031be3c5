package downloader

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"time"

	"igreels/pkg/browser"
	errs "igreels/pkg/errors"
	"igreels/pkg/logger"
	"igreels/pkg/ratelimit"
	"igreels/pkg/retry"
)

// cookieSetter is implemented by sources that can carry the browser's cookies
type cookieSetter interface {
	SetCookies(cookies []*http.Cookie)
}

// HTTPStrategy fetches the locator directly, outside the browser
type HTTPStrategy struct {
	source  MediaSource
	storage MediaStorage
	limiter ratelimit.Limiter
	logger  logger.Logger

	// Cookies, when set, are copied onto the source before each fetch
	Cookies     browser.CookieSource
	MaxBytes    int64
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
}

// NewHTTPStrategy creates a direct fetch strategy
func NewHTTPStrategy(source MediaSource, store MediaStorage, limiter ratelimit.Limiter, log logger.Logger) *HTTPStrategy {
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	return &HTTPStrategy{
		source:      source,
		storage:     store,
		limiter:     limiter,
		logger:      log.WithField("strategy", "http"),
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Multiplier:  2.0,
	}
}

func (h *HTTPStrategy) Name() string { return "http" }

// Fetch streams the locator to disk, retrying network, rate limit and
// server failures with per-type backoff.
func (h *HTTPStrategy) Fetch(ctx context.Context, source string, sequence int) (string, int64, error) {
	if h.Cookies != nil {
		if setter, ok := h.source.(cookieSetter); ok {
			cookies, err := h.Cookies.Cookies(ctx, source)
			if err != nil {
				h.logger.WithError(err).Debug("Could not read session cookies")
			} else {
				setter.SetCookies(cookies)
			}
		}
	}

	backoff := retry.NewErrorTypeBackoff(h.BaseDelay, h.Multiplier)
	type written struct {
		path string
		size int64
	}

	out, err := retry.DoWithResult(ctx, func(ctx context.Context, attempt int) (written, error) {
		if err := h.limiter.Wait(ctx); err != nil {
			return written{}, err
		}
		body, _, err := h.source.OpenMedia(ctx, source)
		if err != nil {
			return written{}, err
		}
		defer body.Close()

		path, n, err := h.storage.Write(sequence, body, h.MaxBytes)
		if err != nil {
			return written{}, err
		}
		return written{path, n}, nil
	}, &retry.Config{
		MaxAttempts: h.MaxAttempts,
		BackoffFor:  backoff.For,
		RetryIf:     retry.DefaultRetryIf,
		Logger:      h.logger,
		Operation:   "media fetch",
	})
	if err != nil {
		return "", 0, err
	}
	return out.path, out.size, nil
}

// tabFetchScript re-requests the page's own document from inside the tab so
// the browser's cookies and headers apply. The body comes back base64 encoded.
const tabFetchScript = `(async () => {
	const resp = await fetch(location.href, {credentials: "include"});
	const buf = new Uint8Array(await resp.arrayBuffer());
	let bin = "";
	for (let i = 0; i < buf.length; i += 0x8000) {
		bin += String.fromCharCode.apply(null, buf.subarray(i, i + 0x8000));
	}
	return {status: resp.status, type: resp.headers.get("content-type") || "", data: btoa(bin)};
})()`

type tabPayload struct {
	Status int    `json:"status"`
	Type   string `json:"type"`
	Data   string `json:"data"`
}

// TabStrategy loads the locator in a new tab of the live session and reads
// the bytes back through the page
type TabStrategy struct {
	tabs    browser.TabOpener
	storage MediaStorage
	logger  logger.Logger

	MaxBytes int64
}

// NewTabStrategy creates an in-browser fetch strategy
func NewTabStrategy(tabs browser.TabOpener, store MediaStorage, log logger.Logger) *TabStrategy {
	return &TabStrategy{
		tabs:    tabs,
		storage: store,
		logger:  log.WithField("strategy", "tab"),
	}
}

func (t *TabStrategy) Name() string { return "tab" }

// Fetch always closes the tab it opened
func (t *TabStrategy) Fetch(ctx context.Context, source string, sequence int) (string, int64, error) {
	if source == "" {
		return "", 0, errs.TransferError("empty locator", 0, nil)
	}

	tab, release, err := t.tabs.OpenTab(ctx)
	if err != nil {
		return "", 0, errs.TransferError("could not open tab", 0, err)
	}
	defer release()

	if err := tab.Navigate(ctx, source); err != nil {
		return "", 0, errs.TransferError("tab navigation failed", 0, err)
	}

	var payload tabPayload
	if err := tab.Evaluate(ctx, tabFetchScript, &payload); err != nil {
		if ctx.Err() != nil {
			return "", 0, ctx.Err()
		}
		return "", 0, errs.TransferError("in-page fetch failed", 0, err)
	}
	if payload.Status < 200 || payload.Status >= 300 {
		return "", 0, errs.TransferError(fmt.Sprintf("status %d", payload.Status), payload.Status, nil)
	}

	data, err := base64.StdEncoding.DecodeString(payload.Data)
	if err != nil {
		return "", 0, errs.TransferError("undecodable payload", payload.Status, err)
	}
	t.logger.WithFields(map[string]interface{}{
		"sequence":     sequence,
		"content_type": payload.Type,
		"bytes":        len(data),
	}).Debug("Fetched media in tab")

	return t.storage.Write(sequence, io.Reader(bytes.NewReader(data)), t.MaxBytes)
}
