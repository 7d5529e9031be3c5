// Package scanner finds the target conversation in the inbox and reveals
// older messages in its thread, surfacing candidate media elements through
// an ordered chain of selector strategies.
package scanner

import (
	"context"
	"fmt"
	"time"

	"igreels/pkg/browser"
	"igreels/pkg/config"
	errs "igreels/pkg/errors"
	"igreels/pkg/logger"
	"igreels/pkg/retry"
)

// MessageArea is the scrollable container holding the thread
var MessageArea = browser.CSS("div[role='grid']")

// inboxScrollScript scrolls the conversation list and the window to the
// bottom so older conversations load
const inboxScrollScript = `(() => {
	for (const el of document.querySelectorAll("div[role='list'], div[aria-label='Thread list']")) {
		el.scrollTop = el.scrollHeight;
	}
	window.scrollTo(0, document.body.scrollHeight);
	return true;
})()`

// Scanner runs the conversation lookup and the per-pass discovery
type Scanner struct {
	page          browser.Page
	strategies    []Strategy
	attempts      int
	retryWait     time.Duration
	scrollBound   int
	settle        time.Duration
	containerWait time.Duration
	logger        logger.Logger
}

// New creates a Scanner from the harvest section of cfg
func New(page browser.Page, cfg *config.Config, log logger.Logger) *Scanner {
	return &Scanner{
		page:          page,
		strategies:    DefaultStrategies(cfg.Harvest.ExtraSelectors...),
		attempts:      cfg.Harvest.ConversationAttempts,
		retryWait:     cfg.Harvest.ConversationRetryWait,
		scrollBound:   cfg.Harvest.ScrollAttemptBound,
		settle:        cfg.Harvest.ScrollSettle,
		containerWait: cfg.Harvest.NavigationWait,
		logger:        log.WithField("component", "scanner"),
	}
}

// Strategies returns the chain in evaluation order
func (s *Scanner) Strategies() []Strategy {
	out := make([]Strategy, len(s.strategies))
	copy(out, s.strategies)
	return out
}

// conversationEntry matches a visible label carrying the target's name
func conversationEntry(target string) browser.Selector {
	return browser.XPath(fmt.Sprintf("//span[contains(text(), %s)]", browser.XPathLiteral(target)))
}

// FindConversation opens the thread whose inbox entry shows target. Each
// miss scrolls the inbox list and waits before looking again; running out
// of attempts is ConversationNotFound.
func (s *Scanner) FindConversation(ctx context.Context, target string) error {
	entry := conversationEntry(target)
	log := s.logger.WithField("target", target)
	log.Info("Searching for conversation")

	for attempt := 1; attempt <= s.attempts; attempt++ {
		lookCtx, cancel := context.WithTimeout(ctx, s.retryWait)
		err := s.page.WaitVisible(lookCtx, entry)
		cancel()
		if err == nil {
			if err = s.page.Click(ctx, entry); err != nil {
				log.WithError(err).Debug("Conversation click refused, forcing")
				err = s.page.ForceClick(ctx, entry)
			}
			if err == nil {
				log.WithField("attempt", attempt).Info("Opened conversation")
				return nil
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		log.DebugWithFields("Conversation not visible yet", map[string]interface{}{
			"attempt":      attempt,
			"max_attempts": s.attempts,
		})
		if err := s.page.Evaluate(ctx, inboxScrollScript, nil); err != nil {
			log.WithError(err).Debug("Inbox scroll failed")
		}
		if err := retry.Wait(ctx, s.retryWait); err != nil {
			return err
		}
	}

	log.WithField("attempts", s.attempts).Warn("Could not find conversation")
	return errs.ConversationNotFound(target, s.attempts)
}

// ScrollToTop scrolls the message area up one viewport at a time until the
// offset stops decreasing or the attempt bound is hit, and returns how many
// scrolls moved the view. A missing message area counts as already at the
// top. Only cancellation is returned as an error.
func (s *Scanner) ScrollToTop(ctx context.Context) (int, error) {
	waitCtx, cancel := context.WithTimeout(ctx, s.containerWait)
	err := s.page.WaitVisible(waitCtx, MessageArea)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		s.logger.WithError(err).Warn("Message area not found, treating as top")
		return 0, nil
	}

	moved := 0
	for attempt := 1; attempt <= s.scrollBound; attempt++ {
		before, err := s.page.ScrollOffset(ctx, MessageArea)
		if err != nil {
			s.logger.WithError(err).Warn("Failed to read scroll offset")
			break
		}
		if err := s.page.ScrollByViewport(ctx, MessageArea, -1); err != nil {
			s.logger.WithError(err).Warn("Failed to scroll message area")
			break
		}
		if err := retry.Wait(ctx, s.settle); err != nil {
			return moved, err
		}
		after, err := s.page.ScrollOffset(ctx, MessageArea)
		if err != nil {
			s.logger.WithError(err).Warn("Failed to read scroll offset")
			break
		}

		if after >= before {
			s.logger.WithField("attempts", attempt).Info("Reached the top of the message thread")
			return moved, ctx.Err()
		}
		moved++
		s.logger.DebugWithFields("Scrolled message area", map[string]interface{}{
			"attempt": attempt,
			"bound":   s.scrollBound,
			"offset":  after,
		})
	}
	return moved, ctx.Err()
}

// Discover evaluates the strategy chain against the current DOM. The first
// strategy with any match is used for the whole pass; its matches that are
// not yet in state.Visited are returned in document order. A pass with no
// match at all is logged as a warning.
func (s *Scanner) Discover(ctx context.Context, state *ScanState) ([]Candidate, error) {
	for _, strategy := range s.strategies {
		count, err := s.page.Count(ctx, strategy.Selector())
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.WithError(err).WithField("strategy", strategy.Name).Debug("Strategy query failed")
			continue
		}
		if count == 0 {
			s.logger.WithField("strategy", strategy.Name).Debug("No matches for strategy")
			continue
		}

		var fresh []Candidate
		for i := 0; i < count; i++ {
			c := Candidate{Strategy: strategy, Index: i, FromEnd: count - 1 - i, Step: state.ScrollStep}
			if state.Seen(c.Key()) {
				continue
			}
			fresh = append(fresh, c)
		}
		logger.LogScanPass(s.logger, state.ScrollStep, strategy.Name, count, len(fresh))
		return fresh, nil
	}

	logger.LogScanPass(s.logger, state.ScrollStep, "", 0, 0)
	return nil, nil
}
