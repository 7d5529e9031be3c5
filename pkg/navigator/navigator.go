// Package navigator moves a browser session from a fresh tab to the direct
// message inbox: optional login, inbox transition with its fallbacks, and
// interstitial dismissal.
package navigator

import (
	"context"
	"strings"
	"time"

	"igreels/pkg/browser"
	"igreels/pkg/config"
	errs "igreels/pkg/errors"
	"igreels/pkg/instagram"
	"igreels/pkg/logger"
)

var (
	usernameField = browser.CSS(`input[name="username"]`)
	passwordField = browser.CSS(`input[name="password"]`)
	submitButton  = browser.CSS(`button[type="submit"]`)
	inboxLink     = browser.CSS(`a[href="/direct/inbox/"]`)
	inboxReady    = browser.CSS(`div[role="navigation"], div[aria-label="Direct"], a[href^="/direct/t/"]`)

	// Popup dismiss affordances, tried in order
	dismissButtons = []browser.Selector{
		browser.XPath(`//button[contains(text(), 'Not Now')]`),
		browser.XPath(`//div[@role='button' and contains(text(), 'Not now')]`),
	}
)

// Credentials are the identity and secret typed into the login form
type Credentials struct {
	Username string
	Password string
}

// Navigator drives one Page to the inbox
type Navigator struct {
	page      browser.Page
	baseURL   string
	navWait   time.Duration
	popupWait time.Duration
	poll      time.Duration
	logger    logger.Logger
}

// New creates a Navigator using the harvest waits from cfg
func New(page browser.Page, cfg *config.Config, log logger.Logger) *Navigator {
	base := strings.TrimRight(cfg.Instagram.BaseURL, "/")
	if base == "" {
		base = instagram.BaseURL
	}
	return &Navigator{
		page:      page,
		baseURL:   base,
		navWait:   cfg.Harvest.NavigationWait,
		popupWait: cfg.Harvest.PopupWait,
		poll:      250 * time.Millisecond,
		logger:    log.WithField("component", "navigator"),
	}
}

// InboxURL is the direct-navigation fallback address
func (n *Navigator) InboxURL() string {
	return instagram.InboxURL(n.baseURL)
}

// Login submits creds on the login page and waits to leave it. A profile
// that is already signed in is redirected away from the form and the step
// is skipped.
func (n *Navigator) Login(ctx context.Context, creds Credentials) error {
	n.logger.Info("Loading login page")
	if err := n.page.Navigate(ctx, instagram.LoginURL(n.baseURL)); err != nil {
		return errs.NavigationFailed("failed to load login page", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, n.navWait)
	defer cancel()
	if err := n.page.WaitVisible(waitCtx, usernameField); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if loc, _ := n.page.Location(ctx); loc != "" && !instagram.IsLoginPage(loc) {
			n.logger.WithField("location", loc).Info("Session already authenticated, skipping login")
			return nil
		}
		return errs.NavigationFailed("login form did not appear", err)
	}

	if err := n.page.SendKeys(ctx, usernameField, creds.Username); err != nil {
		return errs.NavigationFailed("failed to type username", err)
	}
	if err := n.page.SendKeys(ctx, passwordField, creds.Password); err != nil {
		return errs.NavigationFailed("failed to type password", err)
	}
	if err := n.page.Click(ctx, submitButton); err != nil {
		return errs.NavigationFailed("failed to submit login form", err)
	}

	if err := n.waitForLocation(ctx, func(loc string) bool {
		return loc != "" && !instagram.IsLoginPage(loc)
	}); err != nil {
		return errs.NavigationFailed("login did not complete", err)
	}
	n.logger.WithField("username", creds.Username).Info("Logged in")

	n.DismissPopups(ctx, "login info prompt")
	return nil
}

// OpenInbox moves the session to the direct message inbox. The inbox link is
// clicked natively, then by script if the native click is refused; if the
// link never becomes visible the inbox address is loaded directly. Only when
// that also fails is NavigationFailed returned.
func (n *Navigator) OpenInbox(ctx context.Context) error {
	err := n.openInboxViaLink(ctx)
	if err == nil {
		n.logger.Info("Navigated to inbox")
		n.DismissPopups(ctx, "notification prompt")
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	n.logger.WithError(err).Warn("Inbox link unavailable, navigating directly")
	if err := n.page.Navigate(ctx, n.InboxURL()); err != nil {
		return errs.NavigationFailed("direct inbox navigation failed", err)
	}
	if err := n.waitForInbox(ctx); err != nil {
		return errs.NavigationFailed("inbox did not load after direct navigation", err)
	}

	n.logger.Info("Navigated to inbox using direct URL")
	n.DismissPopups(ctx, "notification prompt")
	return nil
}

func (n *Navigator) openInboxViaLink(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, n.navWait)
	defer cancel()
	if err := n.page.WaitVisible(waitCtx, inboxLink); err != nil {
		return err
	}

	clickCtx, cancelClick := context.WithTimeout(ctx, 5*time.Second)
	err := n.page.Click(clickCtx, inboxLink)
	cancelClick()
	if err != nil {
		n.logger.WithError(err).Debug("Inbox link click refused, forcing")
		if err := n.page.ForceClick(ctx, inboxLink); err != nil {
			return err
		}
	}
	return n.waitForInbox(ctx)
}

// waitForInbox verifies the document finished loading on an inbox address
func (n *Navigator) waitForInbox(ctx context.Context) error {
	if err := n.waitForLocation(ctx, func(loc string) bool {
		return instagram.IsDirectPage(loc)
	}); err != nil {
		return err
	}

	waitCtx, cancel := context.WithTimeout(ctx, n.navWait)
	defer cancel()
	ticker := time.NewTicker(n.poll)
	defer ticker.Stop()
	for {
		var state string
		if err := n.page.Evaluate(waitCtx, "document.readyState", &state); err == nil && state == "complete" {
			break
		}
		select {
		case <-waitCtx.Done():
			return waitCtx.Err()
		case <-ticker.C:
		}
	}
	return n.page.WaitVisible(waitCtx, inboxReady)
}

func (n *Navigator) waitForLocation(ctx context.Context, match func(string) bool) error {
	waitCtx, cancel := context.WithTimeout(ctx, n.navWait)
	defer cancel()
	ticker := time.NewTicker(n.poll)
	defer ticker.Stop()
	for {
		if loc, err := n.page.Location(waitCtx); err == nil && match(loc) {
			return nil
		}
		select {
		case <-waitCtx.Done():
			return waitCtx.Err()
		case <-ticker.C:
		}
	}
}

// DismissPopups clicks the first dismiss affordance that shows up within the
// popup wait. Finding none is the common case and only logged at info.
func (n *Navigator) DismissPopups(ctx context.Context, name string) bool {
	waitCtx, cancel := context.WithTimeout(ctx, n.popupWait)
	defer cancel()

	ticker := time.NewTicker(n.poll)
	defer ticker.Stop()
	for {
		for _, sel := range dismissButtons {
			count, err := n.page.Count(waitCtx, sel)
			if err != nil || count == 0 {
				continue
			}
			if err := n.page.Click(waitCtx, sel); err != nil {
				continue
			}
			n.logger.WithField("popup", name).Info("Dismissed popup")
			return true
		}
		select {
		case <-waitCtx.Done():
			n.logger.WithField("popup", name).Info("No popup found or it disappeared quickly")
			return false
		case <-ticker.C:
		}
	}
}
