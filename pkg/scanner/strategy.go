package scanner

import (
	"context"
	"fmt"

	"igreels/pkg/browser"
)

// Strategy is one structural hypothesis of what a media attachment looks
// like in the thread markup
type Strategy struct {
	Name  string
	Query string
	By    browser.By
}

// Selector addresses the first match of the strategy
func (s Strategy) Selector() browser.Selector {
	return browser.Selector{Query: s.Query, By: s.By}
}

// defaultStrategies is ordered from the current markup to older layouts.
// New layouts are appended; existing entries are left alone.
var defaultStrategies = []Strategy{
	{Name: "thumbnail-button", Query: "div[role='button']:has(div.xsgs5s9)"},
	{Name: "video-button", Query: "div[role='button']:has(video)"},
	{Name: "legacy-tile", Query: "div._ab8w:has(div._aacl)"},
	{Name: "media-message", Query: "div[data-visualcompletion='media-message']"},
}

// DefaultStrategies returns the built-in chain followed by extra CSS
// queries, which are named custom-1, custom-2, ...
func DefaultStrategies(extra ...string) []Strategy {
	chain := make([]Strategy, 0, len(defaultStrategies)+len(extra))
	chain = append(chain, defaultStrategies...)
	for i, q := range extra {
		if q == "" {
			continue
		}
		chain = append(chain, Strategy{Name: fmt.Sprintf("custom-%d", i+1), Query: q})
	}
	return chain
}

// Candidate is a suspected media element found during one scan pass. It is
// a value, not a node handle: Locate finds the element again by counting
// from the newest match, which is stable while older messages are
// prepended above it.
type Candidate struct {
	Strategy Strategy
	Index    int
	FromEnd  int
	Step     int
}

// Key identifies the candidate across passes
func (c Candidate) Key() string {
	return fmt.Sprintf("%s#%d", c.Strategy.Name, c.FromEnd)
}

// Selector is the position the candidate had when it was discovered
func (c Candidate) Selector() browser.Selector {
	return c.Strategy.Selector().Nth(c.Index)
}

// Locate re-resolves the candidate against the current DOM
func (c Candidate) Locate(ctx context.Context, page browser.Page) (browser.Selector, error) {
	count, err := page.Count(ctx, c.Strategy.Selector())
	if err != nil {
		return browser.Selector{}, err
	}
	idx := count - 1 - c.FromEnd
	if idx < 0 {
		return browser.Selector{}, fmt.Errorf("%w: %s vanished (%d matches)", browser.ErrNoMatch, c.Key(), count)
	}
	return c.Strategy.Selector().Nth(idx), nil
}
