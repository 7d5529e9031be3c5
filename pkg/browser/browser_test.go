package browser

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igreels/pkg/config"
	"igreels/pkg/logger"
)

func TestSelector(t *testing.T) {
	sel := CSS("div[role='button']")
	assert.Equal(t, ByCSS, sel.By)
	assert.Equal(t, "div[role='button']", sel.String())

	third := sel.Nth(2)
	assert.Equal(t, 2, third.Index)
	assert.Equal(t, 0, sel.Index, "Nth returns a copy")
	assert.Equal(t, "div[role='button'][2]", third.String())

	assert.Equal(t, ByXPath, XPath("//span").By)
}

func TestXPathLiteral(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"alice", `"alice"`},
		{`say "hi"`, `'say "hi"'`},
		{`it's "x"`, `concat("it's ", '"', "x", '"', "")`},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, XPathLiteral(tt.in))
		})
	}
}

func TestFakePage_ClickAndHooks(t *testing.T) {
	ctx := context.Background()
	page := NewFakePage()
	btn := CSS("button")

	err := page.Click(ctx, btn)
	assert.ErrorIs(t, err, ErrNoMatch)

	page.SetCount("button", 2)
	clicked := 0
	page.OnClick = func(p *FakePage, sel Selector) {
		clicked++
		p.SetCount("video", 1)
	}
	require.NoError(t, page.Click(ctx, btn.Nth(1)))
	assert.Equal(t, 1, clicked)
	assert.Equal(t, 1, page.CountOf("video"))

	page.FailClick("button", errors.New("obscured"))
	assert.EqualError(t, page.Click(ctx, btn), "obscured")
	require.NoError(t, page.ForceClick(ctx, btn))

	assert.Equal(t, 3, page.CallCount("click:"))
	assert.Equal(t, 1, page.CallCount("force-click:"))
}

func TestFakePage_WaitVisible(t *testing.T) {
	page := NewFakePage()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := page.WaitVisible(ctx, CSS("video"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	go func() {
		time.Sleep(5 * time.Millisecond)
		page.SetCount("video", 1)
	}()
	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	require.NoError(t, page.WaitVisible(ctx2, CSS("video")))
}

func TestFakePage_Scroll(t *testing.T) {
	ctx := context.Background()
	page := NewFakePage()
	grid := CSS("div[role='grid']")
	page.SetCount(grid.Query, 1)
	page.SetScroll(grid.Query, 1500, 1000)

	require.NoError(t, page.ScrollByViewport(ctx, grid, -1))
	off, err := page.ScrollOffset(ctx, grid)
	require.NoError(t, err)
	assert.Equal(t, 500.0, off)

	require.NoError(t, page.ScrollByViewport(ctx, grid, -1))
	off, _ = page.ScrollOffset(ctx, grid)
	assert.Equal(t, 0.0, off, "offset is clamped at the top")
}

func TestFakePage_Evaluate(t *testing.T) {
	ctx := context.Background()
	page := NewFakePage()
	page.SetEvaluate("document.readyState", "complete")

	var state string
	require.NoError(t, page.Evaluate(ctx, "document.readyState", &state))
	assert.Equal(t, "complete", state)

	assert.Error(t, page.Evaluate(ctx, "unknown()", &state))
}

func TestCaptureDiagnostics(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "diag")
	page := NewFakePage()
	page.SetURL("https://www.instagram.com/direct/inbox/")
	page.Document = "<html>inbox</html>"
	log := logger.NewTestLogger()

	capture := CaptureDiagnostics(context.Background(), page, dir, "error_test", log)

	assert.Equal(t, "https://www.instagram.com/direct/inbox/", capture.URL)
	require.NotEmpty(t, capture.Screenshot)
	require.NotEmpty(t, capture.HTML)

	png, err := os.ReadFile(capture.Screenshot)
	require.NoError(t, err)
	assert.Equal(t, page.ScreenshotData, png)

	html, err := os.ReadFile(capture.HTML)
	require.NoError(t, err)
	assert.Equal(t, "<html>inbox</html>", string(html))
	assert.True(t, log.HasMessage("Diagnostics captured"))
}

func TestSummarize(t *testing.T) {
	t.Run("login wall", func(t *testing.T) {
		summary, err := Summarize(`<html><head><title> Login • Instagram </title></head><body>
			<form><input name="username"><input name="password" type="password"></form></body></html>`)
		require.NoError(t, err)
		assert.Equal(t, "Login • Instagram", summary.Title)
		assert.True(t, summary.LoginForm)
		assert.Zero(t, summary.Dialogs)
	})

	t.Run("open viewer", func(t *testing.T) {
		summary, err := Summarize(`<div role="dialog"><video src="x.mp4"></video></div><video></video>`)
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Dialogs)
		assert.Equal(t, 2, summary.Videos)
		assert.False(t, summary.LoginForm)
	})
}

func TestRunBounded(t *testing.T) {
	t.Run("deadline cancels a stuck call", func(t *testing.T) {
		session, cancelSession := context.WithCancel(context.Background())
		defer cancelSession()
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		start := time.Now()
		err := runBounded(ctx, cancelSession, func() error {
			<-session.Done()
			return session.Err()
		})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Less(t, time.Since(start), time.Second)
		assert.Error(t, session.Err())
	})

	t.Run("completed call keeps its context", func(t *testing.T) {
		session, cancelSession := context.WithCancel(context.Background())
		defer cancelSession()

		err := runBounded(context.Background(), cancelSession, func() error { return nil })
		require.NoError(t, err)
		assert.NoError(t, session.Err())
	})

	t.Run("call error is returned", func(t *testing.T) {
		boom := errors.New("target crashed")
		err := runBounded(context.Background(), func() {}, func() error { return boom })
		assert.ErrorIs(t, err, boom)
	})
}

func TestDiagnosticName(t *testing.T) {
	at := time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)
	assert.Equal(t, "error_20260102_150405", DiagnosticName("error", at))
}

func TestAllocatorOptions(t *testing.T) {
	cfg := config.DefaultConfig().Browser
	cfg.ExecPath = "/usr/bin/chromium"
	cfg.UserDataDir = t.TempDir()
	cfg.ExtraArgs = []string{"--lang=en-US", "--incognito", "--"}

	base := len(allocatorOptions(&config.DefaultConfig().Browser))
	assert.Equal(t, base+4, len(allocatorOptions(&cfg)))
}
