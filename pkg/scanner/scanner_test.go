package scanner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igreels/pkg/browser"
	"igreels/pkg/config"
	errs "igreels/pkg/errors"
	"igreels/pkg/logger"
)

func newTestScanner(page browser.Page, mutate ...func(*config.Config)) (*Scanner, *logger.TestLogger) {
	cfg := config.DefaultConfig()
	cfg.Harvest.ConversationRetryWait = 5 * time.Millisecond
	cfg.Harvest.ScrollSettle = 0
	cfg.Harvest.NavigationWait = 20 * time.Millisecond
	for _, m := range mutate {
		m(cfg)
	}
	log := logger.NewTestLogger()
	return New(page, cfg, log), log
}

func TestFindConversation_AppearsAfterScrolling(t *testing.T) {
	page := browser.NewFakePage()
	entry := conversationEntry("alice")
	scrolls := 0
	page.OnEvaluate = func(p *browser.FakePage, expression string) (interface{}, error) {
		scrolls++
		if scrolls == 2 {
			p.SetCount(entry.Query, 1)
		}
		return true, nil
	}
	s, log := newTestScanner(page)

	require.NoError(t, s.FindConversation(context.Background(), "alice"))
	assert.Equal(t, 2, scrolls)
	assert.Equal(t, 1, page.CallCount("click:"+entry.Query))
	assert.True(t, log.HasMessage("Opened conversation"))
}

func TestFindConversation_ForcedClick(t *testing.T) {
	page := browser.NewFakePage()
	entry := conversationEntry("alice")
	page.SetCount(entry.Query, 1)
	page.FailClick(entry.Query, assert.AnError)
	s, _ := newTestScanner(page)

	require.NoError(t, s.FindConversation(context.Background(), "alice"))
	assert.Equal(t, 1, page.CallCount("force-click:"+entry.Query))
}

func TestFindConversation_NotFound(t *testing.T) {
	page := browser.NewFakePage()
	s, _ := newTestScanner(page)

	err := s.FindConversation(context.Background(), "nobody")
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrConversationNotFound)
	assert.True(t, errs.IsFatal(err))
	assert.Equal(t, 5, page.CallCount("wait:"), "default of five attempts")
}

func TestFindConversation_Cancelled(t *testing.T) {
	page := browser.NewFakePage()
	s, _ := newTestScanner(page)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.FindConversation(ctx, "alice")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConversationEntryQuotes(t *testing.T) {
	assert.Equal(t, `//span[contains(text(), "o'neil")]`, conversationEntry("o'neil").Query)
}

func TestScrollToTop_StopsWhenOffsetStopsDecreasing(t *testing.T) {
	page := browser.NewFakePage()
	page.SetCount(MessageArea.Query, 1)
	page.SetScroll(MessageArea.Query, 2500, 1000)
	s, log := newTestScanner(page)

	moved, err := s.ScrollToTop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, moved)
	assert.Equal(t, 4, page.CallCount("scroll:"))
	assert.True(t, log.HasMessage("Reached the top of the message thread"))
}

func TestScrollToTop_Bounded(t *testing.T) {
	page := browser.NewFakePage()
	page.SetCount(MessageArea.Query, 1)
	page.SetScroll(MessageArea.Query, 1e6, 1000)
	s, _ := newTestScanner(page)

	moved, err := s.ScrollToTop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, moved)
	assert.Equal(t, 10, page.CallCount("scroll:"))
}

func TestScrollToTop_LazyLoadGrowsOffset(t *testing.T) {
	page := browser.NewFakePage()
	page.SetCount(MessageArea.Query, 1)
	page.SetScroll(MessageArea.Query, 1000, 1000)
	page.OnScroll = func(p *browser.FakePage, sel browser.Selector, offset float64) {
		if offset == 0 {
			p.SetScroll(sel.Query, 1800, 1000)
		}
	}
	s, _ := newTestScanner(page)

	moved, err := s.ScrollToTop(context.Background())
	require.NoError(t, err)
	assert.Zero(t, moved, "older content pushed the offset up, the view did not get closer to the top")
	assert.Equal(t, 1, page.CallCount("scroll:"))
}

func TestScrollToTop_MissingContainer(t *testing.T) {
	page := browser.NewFakePage()
	s, log := newTestScanner(page)

	moved, err := s.ScrollToTop(context.Background())
	require.NoError(t, err)
	assert.Zero(t, moved)
	assert.Equal(t, "WARN", log.LevelOf("Message area not found"))
}

func TestDiscover_FirstMatchingStrategyWins(t *testing.T) {
	page := browser.NewFakePage()
	chain := DefaultStrategies()
	page.SetCount(chain[1].Query, 2)
	page.SetCount(chain[3].Query, 5)
	s, _ := newTestScanner(page)
	state := NewScanState(10, 10)
	state.NextStep()

	found, err := s.Discover(context.Background(), state)
	require.NoError(t, err)
	require.Len(t, found, 2, "matches are not merged across strategies")
	for i, c := range found {
		assert.Equal(t, "video-button", c.Strategy.Name)
		assert.Equal(t, i, c.Index)
		assert.Equal(t, 1-i, c.FromEnd)
		assert.Equal(t, 1, c.Step)
	}
}

func TestDiscover_SkipsVisited(t *testing.T) {
	page := browser.NewFakePage()
	chain := DefaultStrategies()
	page.SetCount(chain[0].Query, 3)
	s, log := newTestScanner(page)
	state := NewScanState(10, 10)

	first, err := s.Discover(context.Background(), state)
	require.NoError(t, err)
	require.Len(t, first, 3)
	state.MarkVisited(first[1].Key())
	state.MarkVisited(first[2].Key())

	// two older messages load above the existing ones
	page.SetCount(chain[0].Query, 5)
	second, err := s.Discover(context.Background(), state)
	require.NoError(t, err)

	keys := make([]string, len(second))
	for i, c := range second {
		keys[i] = c.Key()
	}
	assert.Equal(t, []string{"thumbnail-button#4", "thumbnail-button#3", "thumbnail-button#2"}, keys)
	assert.Equal(t, "INFO", log.LevelOf("Candidate elements found"))
}

func TestDiscover_NoMatchesWarns(t *testing.T) {
	page := browser.NewFakePage()
	s, log := newTestScanner(page)

	found, err := s.Discover(context.Background(), NewScanState(10, 10))
	require.NoError(t, err)
	assert.Empty(t, found)
	assert.Equal(t, "WARN", log.LevelOf("No candidate elements found"))
}

func TestDiscover_ExtraSelectors(t *testing.T) {
	page := browser.NewFakePage()
	page.SetCount("div.custom-reel", 1)
	s, _ := newTestScanner(page, func(c *config.Config) {
		c.Harvest.ExtraSelectors = []string{"div.custom-reel"}
	})

	chain := s.Strategies()
	require.Len(t, chain, 5)
	assert.Equal(t, "custom-1", chain[4].Name)

	found, err := s.Discover(context.Background(), NewScanState(10, 10))
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "custom-1#0", found[0].Key())
}

func TestCandidateLocate(t *testing.T) {
	ctx := context.Background()
	page := browser.NewFakePage()
	strategy := DefaultStrategies()[0]
	page.SetCount(strategy.Query, 3)

	c := Candidate{Strategy: strategy, Index: 1, FromEnd: 1}
	sel, err := c.Locate(ctx, page)
	require.NoError(t, err)
	assert.Equal(t, 1, sel.Index)

	page.SetCount(strategy.Query, 6)
	sel, err = c.Locate(ctx, page)
	require.NoError(t, err)
	assert.Equal(t, 4, sel.Index, "prepended messages shift the index, not the key")

	page.SetCount(strategy.Query, 1)
	_, err = c.Locate(ctx, page)
	assert.ErrorIs(t, err, browser.ErrNoMatch)
}

func TestScanState(t *testing.T) {
	state := NewScanState(2, 3)
	assert.False(t, state.Done())

	assert.True(t, state.MarkVisited("a#0"))
	assert.False(t, state.MarkVisited("a#0"))
	assert.True(t, state.Seen("a#0"))

	assert.Equal(t, 0, state.NextSequence())
	state.RecordSuccess()
	assert.Equal(t, 1, state.NextSequence())
	state.RecordSuccess()
	state.RecordSuccess()
	assert.Equal(t, 2, state.SuccessCount, "success count never exceeds the maximum")
	assert.True(t, state.Full())
	assert.True(t, state.Done())

	bounded := NewScanState(10, 3)
	prev := 0
	for !bounded.Done() {
		step := bounded.NextStep()
		assert.Greater(t, step, prev)
		prev = step
	}
	assert.Equal(t, 3, bounded.ScrollStep)
	assert.True(t, bounded.Exhausted())
}
