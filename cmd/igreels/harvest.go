package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"igreels/internal/downloader"
	"igreels/pkg/auth"
	"igreels/pkg/browser"
	"igreels/pkg/checkpoint"
	"igreels/pkg/config"
	"igreels/pkg/harvest"
	"igreels/pkg/instagram"
	"igreels/pkg/logger"
	"igreels/pkg/models"
	"igreels/pkg/navigator"
	"igreels/pkg/ratelimit"
	"igreels/pkg/storage"
	"igreels/pkg/ui"
	"igreels/pkg/ui/tui"
)

var (
	// Harvest command flags
	targetName     string
	maxReels       int
	scrollAttempts int
	headless       bool
	userDataDir    string
	skipLogin      bool
	accountName    string
	outputPath     string
	tempDir        string
	keepTemp       bool
	noCompile      bool
	strategies     []string
	eventsPath     string
	useTUI         bool
	notifications  bool
)

// harvestCmd represents the harvest command
var harvestCmd = &cobra.Command{
	Use:   "harvest [target]",
	Short: "Download the reels shared in a direct message conversation",
	Long: `Log in, open the direct message thread with the target contact, and save
the reels shared there as reel_N.mp4 files in the temporary directory.

Scanning stops once --max reels are saved or the thread has been scrolled
--scroll-attempts times. The saved clips are then joined into a single
compilation with ffmpeg unless --no-compile is given.

Credentials are resolved in this order:
  - the stored account named by --account
  - INSTAGRAM_USERNAME and INSTAGRAM_PASSWORD, or the configuration file
  - the most recently stored account (see 'igreels auth login')`,
	Example: `  # Harvest up to 10 reels shared with alice and compile them
  igreels harvest alice

  # Harvest 25 reels, keep the clips, skip compilation
  igreels harvest alice --max 25 --keep-temp --no-compile

  # Reuse a logged-in browser profile without typing credentials
  igreels harvest alice --user-data-dir ~/.igreels-profile --skip-login

  # Stream progress events as JSON lines to stdout
  igreels harvest alice --events - --log-level error`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHarvest,
}

func init() {
	rootCmd.AddCommand(harvestCmd)

	harvestCmd.Flags().StringVarP(&targetName, "target", "t", "", "username of the conversation partner")
	harvestCmd.Flags().IntVarP(&maxReels, "max", "m", 10, "maximum number of reels to save")
	harvestCmd.Flags().IntVar(&scrollAttempts, "scroll-attempts", 10, "maximum number of scroll passes through the thread")
	harvestCmd.Flags().BoolVar(&headless, "headless", false, "run the browser without a window")
	harvestCmd.Flags().StringVar(&userDataDir, "user-data-dir", "", "persistent Chrome profile directory")
	harvestCmd.Flags().BoolVar(&skipLogin, "skip-login", false, "assume the browser profile is already logged in")
	harvestCmd.Flags().StringVarP(&accountName, "account", "a", "", "use a specific stored account")
	harvestCmd.Flags().StringVarP(&outputPath, "output", "o", "", "compilation file (default: compilation.mp4)")
	harvestCmd.Flags().StringVar(&tempDir, "temp-dir", "", "directory for the individual clips (default: ./reels)")
	harvestCmd.Flags().BoolVar(&keepTemp, "keep-temp", false, "keep the individual clips after compiling")
	harvestCmd.Flags().BoolVar(&noCompile, "no-compile", false, "save the clips without compiling them")
	harvestCmd.Flags().StringSliceVar(&strategies, "strategies", nil, "download strategies in order (http, tab)")
	harvestCmd.Flags().StringVar(&eventsPath, "events", "", "write progress events as JSON lines to this file (- for stdout)")
	harvestCmd.Flags().BoolVar(&useTUI, "tui", false, "use interactive terminal UI with real-time progress")
	harvestCmd.Flags().BoolVar(&notifications, "notifications", true, "announce completion and failure")
}

// harvestFlags collects the flags the user actually set, keyed the way
// config.MergeCommandLineFlags expects
func harvestFlags(cmd *cobra.Command, args []string) map[string]interface{} {
	flags := make(map[string]interface{})
	set := cmd.Flags().Changed

	if len(args) > 0 {
		flags["target"] = strings.TrimSpace(args[0])
	} else if set("target") {
		flags["target"] = strings.TrimSpace(targetName)
	}
	if set("max") {
		flags["max"] = maxReels
	}
	if set("scroll-attempts") {
		flags["scroll-attempts"] = scrollAttempts
	}
	if set("headless") {
		flags["headless"] = headless
	}
	if set("user-data-dir") {
		flags["user-data-dir"] = userDataDir
	}
	if set("skip-login") {
		flags["skip-login"] = skipLogin
	}
	if set("output") {
		flags["output"] = outputPath
	}
	if set("temp-dir") {
		flags["temp-dir"] = tempDir
	}
	if set("keep-temp") {
		flags["keep-temp"] = keepTemp
	}
	if set("no-compile") {
		flags["no-compile"] = noCompile
	}
	if set("strategies") {
		flags["strategies"] = strategies
	}
	if set("notifications") {
		flags["notifications"] = notifications
	}
	return flags
}

func runHarvest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(harvestFlags(cmd, args))
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		return err
	}
	if useTUI && logLevel == "" && cfg.Logging.Level != "error" {
		// The alternate screen owns the terminal
		cfg.Logging.Level = "error"
		if err := logger.Initialize(&cfg.Logging); err != nil {
			return err
		}
	}
	log := logger.GetLogger()
	log.WithField("version", version).Info("igreels starting")

	if err := resolveCredentials(cfg); err != nil {
		return err
	}
	if err := cfg.ValidateForHarvest(); err != nil {
		ui.PrintError("Cannot start harvest", err.Error())
		return err
	}

	target := instagram.SanitizeUsername(cfg.Instagram.Target)
	notifier := ui.NewNotifier(cfg.Notifications, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var reporters ui.Tee
	if eventsPath != "" {
		w, closeEvents, err := openEvents(eventsPath)
		if err != nil {
			ui.PrintError("Failed to open event stream", err.Error())
			return err
		}
		defer closeEvents()
		stream := ui.NewEventStream(w)
		defer func() {
			if err := stream.Err(); err != nil {
				log.WithError(err).Warn("Event stream failed")
			}
		}()
		reporters = append(reporters, stream)
	}

	var terminal *tui.TUI
	var display *ui.ProgressDisplay
	if useTUI {
		terminal = tui.NewTUI(target, cfg.Harvest.MaxMediaCount, cancel)
		reporters = append(reporters, terminal)
	} else {
		ui.PrintLogo()
		ui.PrintInfo("Target", target)
		ui.PrintInfo("Max reels", fmt.Sprintf("%d", cfg.Harvest.MaxMediaCount))
		ui.PrintInfo("Clips", cfg.Output.TempDirectory)
		display = ui.NewProgressDisplay(os.Stdout, target, cfg.Harvest.MaxMediaCount, verbose)
		reporters = append(reporters, display)
	}

	var result *models.Result
	if terminal != nil {
		result, err = runWithTUI(ctx, terminal, func() (*models.Result, error) {
			return harvestConversation(ctx, cfg, target, reporters, log)
		})
	} else {
		result, err = harvestConversation(ctx, cfg, target, reporters, log)
	}

	if err != nil {
		log.WithError(err).WithField("target", target).Error("Harvest failed")
		notifier.NotifyError(target, err)
		if display != nil {
			ui.PrintError("HARVEST FAILED", err.Error())
		}
		if errors.Is(err, context.Canceled) && result != nil && len(result.Files) > 0 {
			ui.PrintWarning(fmt.Sprintf("Interrupted after %d reels; compile them with 'igreels compile %s --from-checkpoint'", len(result.Files), target))
		}
		return err
	}

	if display != nil {
		display.Complete(result)
	}

	compiled := ""
	if cfg.Output.Compile && !result.Empty() {
		reporters.Report(models.ProgressEvent{
			RunID:      result.RunID,
			Stage:      models.StageCompiling,
			Progress:   95,
			Message:    "Compiling " + cfg.Output.OutputPath,
			Downloaded: len(result.Files),
			Max:        cfg.Harvest.MaxMediaCount,
		})
		if err := compileAndClean(ctx, cfg, result.Files, log); err != nil {
			notifier.NotifyError(target, err)
			ui.PrintError("Compilation failed", err.Error())
			ui.PrintInfo("Clips kept in", cfg.Output.TempDirectory)
			return err
		}
		compiled = cfg.Output.OutputPath
		ui.PrintSuccess("Compilation written to " + compiled)
	} else if cfg.Output.Compile {
		ui.PrintInfo("Compilation", "nothing to compile")
	}

	notifier.NotifyComplete(target, result, compiled)
	log.WithField("target", target).Info("Harvest completed successfully")
	return nil
}

// resolveCredentials fills in the Instagram login from the credential
// store when the configuration does not carry one
func resolveCredentials(cfg *config.Config) error {
	if accountName == "" && cfg.Instagram.Username != "" && cfg.Instagram.Password != "" {
		logger.Info("Using credentials from configuration")
		return nil
	}
	if accountName == "" && cfg.Harvest.SkipLogin {
		return nil
	}

	credManager, err := auth.NewManager()
	if err != nil {
		ui.PrintError("Failed to initialize credential manager", err.Error())
		return err
	}

	var account *auth.Account
	if accountName != "" {
		account, err = credManager.Retrieve(accountName)
		if err != nil {
			ui.PrintError("Account not found", accountName)
			ui.PrintInfo("Available accounts", "Use 'igreels auth list' to see stored accounts")
			return err
		}
	} else {
		account, err = credManager.RetrieveDefault()
		if err != nil {
			logger.Error("No credentials found")
			ui.PrintError("No Instagram credentials found")
			fmt.Fprintln(os.Stderr, "\nTo store credentials securely, run:")
			fmt.Fprintln(os.Stderr, "  igreels auth login")
			fmt.Fprintln(os.Stderr, "\nOr set environment variables:")
			fmt.Fprintln(os.Stderr, "  export INSTAGRAM_USERNAME=your_username")
			fmt.Fprintln(os.Stderr, "  export INSTAGRAM_PASSWORD=your_password")
			fmt.Fprintln(os.Stderr, "\nOr reuse a logged-in profile with --user-data-dir and --skip-login")
			return err
		}
	}

	cfg.Instagram.Username = account.Username
	cfg.Instagram.Password = account.Password
	logger.WithField("account", account.Username).Info("Using stored credentials")
	return nil
}

// harvestConversation launches the browser, wires the download chain and
// runs one harvest against target
func harvestConversation(ctx context.Context, cfg *config.Config, target string, reporter harvest.Reporter, log logger.Logger) (*models.Result, error) {
	sess, err := browser.Launch(ctx, &cfg.Browser, log)
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	defer sess.Release()

	client := instagram.NewClient(cfg.Download.DownloadTimeout, log)
	if cfg.Browser.UserAgent != "" {
		client.SetUserAgent(cfg.Browser.UserAgent)
	}

	store, err := storage.NewManager(cfg.Output.TempDirectory)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare temp directory: %w", err)
	}

	var limiter ratelimit.Limiter = ratelimit.Unlimited{}
	if cfg.RateLimit.RequestsPerMinute > 0 {
		limiter = ratelimit.NewTokenBucket(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.BurstSize)
	}

	chain, err := downloader.FromConfig(cfg, downloader.Deps{
		Source:  client,
		Cookies: sess,
		Tabs:    sess,
		Storage: store,
		Limiter: limiter,
	}, log)
	if err != nil {
		return nil, err
	}

	h := harvest.New(sess, chain, cfg, log)
	h.SetReporter(reporter)
	if cfg.Instagram.Username != "" {
		h.SetCredentials(navigator.Credentials{
			Username: cfg.Instagram.Username,
			Password: cfg.Instagram.Password,
		})
	}
	if cfg.Output.SaveCheckpoints {
		recorder, err := checkpoint.NewManager(target)
		if err != nil {
			log.WithError(err).Warn("Checkpoints disabled")
		} else {
			h.SetRecorder(recorder)
		}
	}

	return h.Run(ctx, target)
}

// runWithTUI runs work while the terminal UI owns the screen. Quitting the
// UI cancels the run through the TUI's quit hook; the work result is still
// awaited so the browser is released before returning.
func runWithTUI(ctx context.Context, terminal *tui.TUI, work func() (*models.Result, error)) (*models.Result, error) {
	type outcome struct {
		result *models.Result
		err    error
	}

	workDone := make(chan outcome, 1)
	go func() {
		result, err := work()
		workDone <- outcome{result, err}
	}()

	tuiDone := make(chan error, 1)
	go func() {
		tuiDone <- terminal.Start()
	}()

	select {
	case out := <-workDone:
		if out.err != nil {
			terminal.LogError("%v", out.err)
		}
		terminal.Stop()
		if err := <-tuiDone; err != nil {
			logger.WithError(err).Warn("TUI failed")
		}
		return out.result, out.err
	case err := <-tuiDone:
		if err != nil {
			logger.WithError(err).Error("TUI failed")
		}
		out := <-workDone
		if out.err == nil && ctx.Err() != nil {
			out.err = ctx.Err()
		}
		return out.result, out.err
	}
}

// openEvents opens the NDJSON event destination; "-" means stdout
func openEvents(path string) (io.Writer, func(), error) {
	if path == "-" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}
