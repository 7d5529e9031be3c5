package browser

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"igreels/pkg/config"
	"igreels/pkg/logger"
)

// Session is a launched browser with one primary tab. Release must be
// called exactly once the run ends, whatever the outcome; further calls are
// no-ops.
type Session struct {
	*ChromeSession

	allocCancel context.CancelFunc
	once        sync.Once
}

// Launch starts Chrome with the configured flags and opens the primary tab.
// The process is verified by loading about:blank within LaunchTimeout.
func Launch(ctx context.Context, cfg *config.BrowserConfig, log logger.Logger) (*Session, error) {
	log = log.WithField("component", "browser")
	log.InfoWithFields("Launching browser", map[string]interface{}{
		"headless":      cfg.Headless,
		"user_data_dir": cfg.UserDataDir,
	})

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(cfg)...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(logger.Printf(log, "debug")),
		chromedp.WithDebugf(logger.Printf(log, "trace")),
		chromedp.WithErrorf(logger.Printf(log, "warn")),
	)

	timeout := cfg.LaunchTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	verifyCtx, cancelVerify := context.WithTimeout(ctx, timeout)
	defer cancelVerify()

	sess := &Session{
		ChromeSession: newChromeSession(tabCtx, tabCancel, log),
		allocCancel:   allocCancel,
	}
	if err := sess.Navigate(verifyCtx, "about:blank"); err != nil {
		sess.Release()
		return nil, fmt.Errorf("browser failed to start or respond: %w", err)
	}

	log.Info("Browser launched")
	return sess, nil
}

// Release closes the tab and shuts the browser process down
func (s *Session) Release() {
	s.once.Do(func() {
		s.Close()
		if s.allocCancel != nil {
			s.allocCancel()
		}
		s.logger.Debug("Browser released")
	})
}

// allocatorOptions assembles the Chrome flags for a session. The automation
// banner and navigator.webdriver hint are suppressed.
func allocatorOptions(cfg *config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-gpu", cfg.Headless),
		chromedp.Flag("mute-audio", true),
	)

	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.WindowWidth > 0 && cfg.WindowHeight > 0 {
		opts = append(opts, chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(cfg.UserDataDir))
	}

	for _, arg := range cfg.ExtraArgs {
		name, value, hasValue := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		if name == "" {
			continue
		}
		if hasValue {
			opts = append(opts, chromedp.Flag(name, value))
		} else {
			opts = append(opts, chromedp.Flag(name, true))
		}
	}

	if runtime.GOOS == "linux" {
		opts = append(opts,
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-setuid-sandbox", true),
		)
	}

	return opts
}
