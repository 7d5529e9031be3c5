package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"igreels/pkg/compiler"
	"igreels/pkg/config"
	"igreels/pkg/logger"
	"igreels/pkg/ui"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage igreels configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables
  - .env files
  - Configuration file
  - Default values (lowest priority)`,
}

// initCmd represents the config init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an example configuration file",
	Long: `Create an example configuration file with all available options.

The file will be created in the current directory as 'igreels.yaml'
unless a different path is specified with the --config flag.`,
	RunE: runConfigInit,
}

// showCmd represents the config show command
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long: `Show the effective configuration after merging every source.

The password is masked.`,
	RunE: runConfigShow,
}

// validateCmd represents the config validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Long: `Validate the configuration for syntax errors and invalid values.

This command checks:
  - YAML syntax and value ranges
  - Whether a harvest could start (target and credentials)
  - Whether ffmpeg can be found
  - Whether the temp and log directories can be created`,
	RunE: runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(initCmd)
	configCmd.AddCommand(showCmd)
	configCmd.AddCommand(validateCmd)
}

const exampleConfig = `# igreels configuration file
#
# Environment variables override this file:
#   INSTAGRAM_USERNAME, INSTAGRAM_PASSWORD, TARGET_USERNAME
#   IGREELS_MAX_MEDIA, IGREELS_TEMP_DIR, IGREELS_OUTPUT, IGREELS_LOG_LEVEL, ...

instagram:
  # Account used to log in. Prefer 'igreels auth login' over a password here.
  username: ""
  # Contact whose direct message thread is harvested
  target: ""
  base_url: "https://www.instagram.com"

browser:
  headless: false
  # Chrome binary; empty uses the one on PATH
  exec_path: ""
  # Persistent profile; with harvest.skip_login no credentials are needed
  user_data_dir: ""
  window_width: 1920
  window_height: 1080
  launch_timeout: 30s

harvest:
  # Stop after this many saved reels
  max_media_count: 10
  # Stop after this many scroll passes through the thread
  scroll_attempt_bound: 10
  conversation_attempts: 5
  conversation_retry_wait: 2s
  navigation_wait: 20s
  popup_wait: 5s
  # How long to wait for an opened reel to expose its video
  viewer_wait: 30s
  scroll_settle: 2s
  thread_settle: 10s
  # Pause after each candidate
  cooldown: 3s
  click_attempts: 3
  skip_login: false
  # Additional CSS selectors for reel cards
  extra_selectors: []

rate_limit:
  requests_per_minute: 30
  burst_size: 5
  backoff_multiplier: 2.0
  max_retries: 3
  retry_delay: 2s

download:
  # Tried in order for each reel: http fetches the CDN URL, tab fetches it
  # inside a browser tab
  strategies: ["http", "tab"]
  download_timeout: 2m
  use_cookies: true
  # Bytes; 0 means unlimited
  max_file_size: 0

output:
  temp_directory: "./reels"
  output_path: "compilation.mp4"
  diagnostics_dir: "."
  keep_temp: false
  compile: true
  ffmpeg_path: "ffmpeg"
  # Re-encode instead of stream copy when clips have mismatched codecs
  reencode: false
  write_manifest: true
  save_checkpoints: true

notifications:
  enabled: true
  on_complete: true
  on_error: true
  # terminal, desktop or none
  notification_type: "terminal"

logging:
  # trace, debug, info, warn, error
  level: "info"
  # console or json
  format: "console"
  # Optional log file, rotated by size
  file: ""
  max_size: 100
  max_backups: 3
  max_age: 7
  compress: false
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	configPath := configFile
	if configPath == "" {
		configPath = "igreels.yaml"
	}

	if _, err := os.Stat(configPath); err == nil {
		ui.PrintError("Configuration file already exists", configPath)
		fmt.Println("\nTo overwrite, first remove the existing file:")
		fmt.Printf("  rm %s\n", configPath)
		return fmt.Errorf("%s already exists", configPath)
	}

	if err := os.WriteFile(configPath, []byte(exampleConfig), 0600); err != nil {
		ui.PrintError("Failed to create configuration file", err.Error())
		return err
	}

	ui.PrintSuccess("Configuration file created: " + configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("1. Set instagram.target and run 'igreels auth login'")
	fmt.Println("2. Run 'igreels config validate' to check the configuration")
	fmt.Println("3. Start harvesting with 'igreels harvest'")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		return err
	}

	data, err := maskedYAML(cfg)
	if err != nil {
		ui.PrintError("Failed to format configuration", err.Error())
		return err
	}

	ui.PrintHighlight("Current Configuration")
	fmt.Println()
	fmt.Print(string(data))

	fmt.Println("\nConfiguration sources (in order of priority):")
	fmt.Println("1. Command line flags")
	fmt.Println("2. Environment variables (INSTAGRAM_*, IGREELS_*)")
	fmt.Println("3. .env and ~/.igreels.env")
	if configFile != "" {
		fmt.Printf("4. Configuration file: %s\n", configFile)
	} else {
		fmt.Println("4. Configuration file: (searched in ./igreels.yaml and ~/.config/igreels)")
	}
	fmt.Println("5. Default values")
	return nil
}

// maskedYAML renders cfg with the password masked
func maskedYAML(cfg *config.Config) ([]byte, error) {
	display := *cfg
	if display.Instagram.Password != "" {
		display.Instagram.Password = "********"
	}
	return yaml.Marshal(&display)
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	if configFile != "" {
		ui.PrintInfo("Validating configuration", configFile)
	}

	cfg, err := config.Load(configFile, nil)
	if err != nil {
		ui.PrintError("Configuration validation failed", err.Error())
		return err
	}

	warnings, problems := checkEnvironment(cfg)

	if len(problems) > 0 {
		ui.PrintError("Configuration has errors:")
		for _, p := range problems {
			fmt.Printf("  - %s\n", p)
		}
		return errors.New("configuration has errors")
	}

	if len(warnings) > 0 {
		ui.PrintWarning("Configuration warnings:")
		for _, w := range warnings {
			fmt.Printf("  - %s\n", w)
		}
		fmt.Println()
	}

	ui.PrintSuccess("Configuration is valid")

	fmt.Println("\nConfiguration summary:")
	fmt.Printf("  Target: %s\n", cfg.Instagram.Target)
	fmt.Printf("  Max reels: %d\n", cfg.Harvest.MaxMediaCount)
	fmt.Printf("  Scroll passes: %d\n", cfg.Harvest.ScrollAttemptBound)
	fmt.Printf("  Strategies: %v\n", cfg.Download.Strategies)
	fmt.Printf("  Clips: %s\n", cfg.Output.TempDirectory)
	fmt.Printf("  Compilation: %s\n", cfg.Output.OutputPath)
	fmt.Printf("  Log level: %s\n", cfg.Logging.Level)
	return nil
}

// checkEnvironment reports what would stop or degrade a harvest with cfg.
// Warnings leave the run possible; problems do not.
func checkEnvironment(cfg *config.Config) (warnings, problems []string) {
	if err := cfg.ValidateForHarvest(); err != nil {
		warnings = append(warnings, err.Error())
	}

	if cfg.Output.Compile {
		if err := compiler.NewFFmpeg(cfg.Output.FFmpegPath, cfg.Output.Reencode, logger.NewNopLogger()).Available(); err != nil {
			warnings = append(warnings, fmt.Sprintf("%v; clips will be kept but not compiled", err))
		}
	}

	if err := os.MkdirAll(cfg.Output.TempDirectory, 0755); err != nil {
		problems = append(problems, fmt.Sprintf("Cannot create temp directory: %v", err))
	}
	if dir := filepath.Dir(cfg.Output.OutputPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			problems = append(problems, fmt.Sprintf("Cannot create output directory: %v", err))
		}
	}
	if cfg.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0755); err != nil {
			problems = append(problems, fmt.Sprintf("Cannot create log directory: %v", err))
		}
	}
	return warnings, problems
}
