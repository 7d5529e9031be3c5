package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for a harvest run
type Config struct {
	Instagram     InstagramConfig    `yaml:"instagram" json:"instagram"`
	Browser       BrowserConfig      `yaml:"browser" json:"browser"`
	Harvest       HarvestConfig      `yaml:"harvest" json:"harvest"`
	RateLimit     RateLimitConfig    `yaml:"rate_limit" json:"rate_limit"`
	Download      DownloadConfig     `yaml:"download" json:"download"`
	Output        OutputConfig       `yaml:"output" json:"output"`
	Notifications NotificationConfig `yaml:"notifications" json:"notifications"`
	Logging       LoggingConfig      `yaml:"logging" json:"logging"`
}

// InstagramConfig identifies the account and the conversation to harvest
type InstagramConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password,omitempty" json:"-"`
	Target   string `yaml:"target" json:"target"`
	BaseURL  string `yaml:"base_url" json:"base_url"`
}

// BrowserConfig controls how the Chrome session is launched
type BrowserConfig struct {
	Headless      bool          `yaml:"headless" json:"headless"`
	ExecPath      string        `yaml:"exec_path" json:"exec_path"`
	UserDataDir   string        `yaml:"user_data_dir" json:"user_data_dir"`
	UserAgent     string        `yaml:"user_agent" json:"user_agent"`
	WindowWidth   int           `yaml:"window_width" json:"window_width"`
	WindowHeight  int           `yaml:"window_height" json:"window_height"`
	ExtraArgs     []string      `yaml:"extra_args" json:"extra_args"`
	LaunchTimeout time.Duration `yaml:"launch_timeout" json:"launch_timeout"`
}

// HarvestConfig holds the bounds and waits of the scan and extraction loop
type HarvestConfig struct {
	MaxMediaCount         int           `yaml:"max_media_count" json:"max_media_count"`
	ScrollAttemptBound    int           `yaml:"scroll_attempt_bound" json:"scroll_attempt_bound"`
	ConversationAttempts  int           `yaml:"conversation_attempts" json:"conversation_attempts"`
	ConversationRetryWait time.Duration `yaml:"conversation_retry_wait" json:"conversation_retry_wait"`
	NavigationWait        time.Duration `yaml:"navigation_wait" json:"navigation_wait"`
	PopupWait             time.Duration `yaml:"popup_wait" json:"popup_wait"`
	ViewerWait            time.Duration `yaml:"viewer_wait" json:"viewer_wait"`
	ScrollSettle          time.Duration `yaml:"scroll_settle" json:"scroll_settle"`
	ThreadSettle          time.Duration `yaml:"thread_settle" json:"thread_settle"`
	Cooldown              time.Duration `yaml:"cooldown" json:"cooldown"`
	ClickAttempts         int           `yaml:"click_attempts" json:"click_attempts"`
	SkipLogin             bool          `yaml:"skip_login" json:"skip_login"`
	ExtraSelectors        []string      `yaml:"extra_selectors" json:"extra_selectors"`
}

// RateLimitConfig paces direct media fetches
type RateLimitConfig struct {
	RequestsPerMinute int           `yaml:"requests_per_minute" json:"requests_per_minute"`
	BurstSize         int           `yaml:"burst_size" json:"burst_size"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier" json:"backoff_multiplier"`
	MaxRetries        int           `yaml:"max_retries" json:"max_retries"`
	RetryDelay        time.Duration `yaml:"retry_delay" json:"retry_delay"`
}

// DownloadConfig selects and bounds the download strategies
type DownloadConfig struct {
	Strategies      []string      `yaml:"strategies" json:"strategies"`
	DownloadTimeout time.Duration `yaml:"download_timeout" json:"download_timeout"`
	UseCookies      bool          `yaml:"use_cookies" json:"use_cookies"`
	MaxFileSize     int64         `yaml:"max_file_size" json:"max_file_size"`
}

// OutputConfig holds where temporary files, the compilation and diagnostics go
type OutputConfig struct {
	TempDirectory   string `yaml:"temp_directory" json:"temp_directory"`
	OutputPath      string `yaml:"output_path" json:"output_path"`
	DiagnosticsDir  string `yaml:"diagnostics_dir" json:"diagnostics_dir"`
	KeepTemp        bool   `yaml:"keep_temp" json:"keep_temp"`
	Compile         bool   `yaml:"compile" json:"compile"`
	FFmpegPath      string `yaml:"ffmpeg_path" json:"ffmpeg_path"`
	Reencode        bool   `yaml:"reencode" json:"reencode"`
	WriteManifest   bool   `yaml:"write_manifest" json:"write_manifest"`
	SaveCheckpoints bool   `yaml:"save_checkpoints" json:"save_checkpoints"`
}

// NotificationConfig holds notification preferences
type NotificationConfig struct {
	Enabled          bool   `yaml:"enabled" json:"enabled"`
	OnComplete       bool   `yaml:"on_complete" json:"on_complete"`
	OnError          bool   `yaml:"on_error" json:"on_error"`
	NotificationType string `yaml:"notification_type" json:"notification_type"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `yaml:"level" json:"level"`
	Format     string `yaml:"format" json:"format"`
	File       string `yaml:"file" json:"file"`
	MaxSize    int    `yaml:"max_size" json:"max_size"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAge     int    `yaml:"max_age" json:"max_age"`
	Compress   bool   `yaml:"compress" json:"compress"`
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Instagram: InstagramConfig{
			BaseURL: "https://www.instagram.com",
		},
		Browser: BrowserConfig{
			Headless:      false,
			UserAgent:     defaultUserAgent,
			WindowWidth:   1920,
			WindowHeight:  1080,
			LaunchTimeout: 30 * time.Second,
		},
		Harvest: HarvestConfig{
			MaxMediaCount:         10,
			ScrollAttemptBound:    10,
			ConversationAttempts:  5,
			ConversationRetryWait: 2 * time.Second,
			NavigationWait:        20 * time.Second,
			PopupWait:             5 * time.Second,
			ViewerWait:            30 * time.Second,
			ScrollSettle:          2 * time.Second,
			ThreadSettle:          10 * time.Second,
			Cooldown:              3 * time.Second,
			ClickAttempts:         3,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 30,
			BurstSize:         5,
			BackoffMultiplier: 2.0,
			MaxRetries:        3,
			RetryDelay:        2 * time.Second,
		},
		Download: DownloadConfig{
			Strategies:      []string{"http", "tab"},
			DownloadTimeout: 2 * time.Minute,
			UseCookies:      true,
		},
		Output: OutputConfig{
			TempDirectory:   "./reels",
			OutputPath:      "compilation.mp4",
			DiagnosticsDir:  ".",
			Compile:         true,
			FFmpegPath:      "ffmpeg",
			WriteManifest:   true,
			SaveCheckpoints: true,
		},
		Notifications: NotificationConfig{
			Enabled:          true,
			OnComplete:       true,
			OnError:          true,
			NotificationType: "terminal",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     7,
		},
	}
}

// LoadFromEnv loads configuration from environment variables. The plain
// INSTAGRAM_USERNAME / INSTAGRAM_PASSWORD / TARGET_USERNAME names are
// honoured so existing .env files keep working.
func (c *Config) LoadFromEnv() error {
	setString(&c.Instagram.Username, "INSTAGRAM_USERNAME", "IGREELS_USERNAME")
	setString(&c.Instagram.Password, "INSTAGRAM_PASSWORD", "IGREELS_PASSWORD")
	setString(&c.Instagram.Target, "TARGET_USERNAME", "IGREELS_TARGET")

	setString(&c.Browser.ExecPath, "IGREELS_CHROME_PATH")
	setString(&c.Browser.UserDataDir, "IGREELS_USER_DATA_DIR")
	setString(&c.Browser.UserAgent, "IGREELS_USER_AGENT")
	if v := os.Getenv("IGREELS_HEADLESS"); v != "" {
		c.Browser.Headless = parseBool(v)
	}

	var errs []error
	if err := setInt(&c.Harvest.MaxMediaCount, "IGREELS_MAX_MEDIA"); err != nil {
		errs = append(errs, err)
	}
	if err := setInt(&c.Harvest.ScrollAttemptBound, "IGREELS_SCROLL_ATTEMPTS"); err != nil {
		errs = append(errs, err)
	}
	if err := setDuration(&c.Harvest.ViewerWait, "IGREELS_VIEWER_WAIT"); err != nil {
		errs = append(errs, err)
	}
	if err := setDuration(&c.Harvest.PopupWait, "IGREELS_POPUP_WAIT"); err != nil {
		errs = append(errs, err)
	}
	if err := setInt(&c.RateLimit.RequestsPerMinute, "IGREELS_REQUESTS_PER_MINUTE"); err != nil {
		errs = append(errs, err)
	}

	setString(&c.Output.TempDirectory, "IGREELS_TEMP_DIR")
	setString(&c.Output.OutputPath, "IGREELS_OUTPUT")
	setString(&c.Output.FFmpegPath, "IGREELS_FFMPEG")

	if v := os.Getenv("IGREELS_NOTIFICATIONS_ENABLED"); v != "" {
		c.Notifications.Enabled = parseBool(v)
	}
	setString(&c.Logging.Level, "IGREELS_LOG_LEVEL")
	setString(&c.Logging.File, "IGREELS_LOG_FILE")

	return errors.Join(errs...)
}

func setString(dst *string, keys ...string) {
	for _, key := range keys {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var val int
	if _, err := fmt.Sscanf(v, "%d", &val); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if val > 0 {
		*dst = val
	}
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		"igreels.yaml",
		".igreels.yaml",
		".igreels.yml",
		filepath.Join(home, ".config", "igreels", "config.yaml"),
		filepath.Join(home, ".config", "igreels", "config.yml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks the bounds and formats of the configuration. It does not
// require a target or credentials; see ValidateForHarvest.
func (c *Config) Validate() error {
	var errs []error

	h := c.Harvest
	if h.MaxMediaCount <= 0 {
		errs = append(errs, errors.New("max media count must be positive"))
	}
	if h.ScrollAttemptBound <= 0 {
		errs = append(errs, errors.New("scroll attempt bound must be positive"))
	}
	if h.ConversationAttempts <= 0 {
		errs = append(errs, errors.New("conversation attempts must be positive"))
	}
	if h.ClickAttempts <= 0 {
		errs = append(errs, errors.New("click attempts must be positive"))
	}
	for name, d := range map[string]time.Duration{
		"navigation wait": h.NavigationWait,
		"popup wait":      h.PopupWait,
		"viewer wait":     h.ViewerWait,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if h.Cooldown < 0 || h.ScrollSettle < 0 || h.ThreadSettle < 0 || h.ConversationRetryWait < 0 {
		errs = append(errs, errors.New("settle and cooldown waits cannot be negative"))
	}

	if c.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("requests per minute must be positive"))
	}
	if c.RateLimit.BurstSize <= 0 {
		errs = append(errs, errors.New("burst size must be positive"))
	}
	if c.RateLimit.MaxRetries < 0 {
		errs = append(errs, errors.New("max retries cannot be negative"))
	}

	if len(c.Download.Strategies) == 0 {
		errs = append(errs, errors.New("at least one download strategy is required"))
	}
	for _, s := range c.Download.Strategies {
		if s != "http" && s != "tab" {
			errs = append(errs, fmt.Errorf("unknown download strategy %q", s))
		}
	}
	if c.Download.DownloadTimeout <= 0 {
		errs = append(errs, errors.New("download timeout must be positive"))
	}

	if c.Output.TempDirectory == "" {
		errs = append(errs, errors.New("temp directory is required"))
	}
	if c.Output.OutputPath == "" {
		errs = append(errs, errors.New("output path is required"))
	}

	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	validNotifTypes := map[string]bool{
		"terminal": true, "desktop": true, "none": true,
	}
	if !validNotifTypes[strings.ToLower(c.Notifications.NotificationType)] {
		errs = append(errs, errors.New("invalid notification type"))
	}

	return errors.Join(errs...)
}

// ValidateForHarvest checks what a harvest run needs before any browser is
// launched: a target conversation and either credentials or a persistent
// browser profile that is already logged in.
func (c *Config) ValidateForHarvest() error {
	var errs []error
	if strings.TrimSpace(c.Instagram.Target) == "" {
		errs = append(errs, errors.New("target conversation is required"))
	}
	hasCreds := c.Instagram.Username != "" && c.Instagram.Password != ""
	if !hasCreds && !(c.Harvest.SkipLogin && c.Browser.UserDataDir != "") {
		errs = append(errs, errors.New("instagram credentials are required unless skip_login is set with a user_data_dir"))
	}
	return errors.Join(errs...)
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration.
// Only flags the user actually set should be present in the map.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["username"].(string); ok && v != "" {
		c.Instagram.Username = v
	}
	if v, ok := flags["target"].(string); ok && v != "" {
		c.Instagram.Target = v
	}
	if v, ok := flags["max"].(int); ok && v > 0 {
		c.Harvest.MaxMediaCount = v
	}
	if v, ok := flags["scroll-attempts"].(int); ok && v > 0 {
		c.Harvest.ScrollAttemptBound = v
	}
	if v, ok := flags["viewer-wait"].(time.Duration); ok && v > 0 {
		c.Harvest.ViewerWait = v
	}
	if v, ok := flags["headless"].(bool); ok {
		c.Browser.Headless = v
	}
	if v, ok := flags["user-data-dir"].(string); ok && v != "" {
		c.Browser.UserDataDir = v
	}
	if v, ok := flags["skip-login"].(bool); ok {
		c.Harvest.SkipLogin = v
	}
	if v, ok := flags["output"].(string); ok && v != "" {
		c.Output.OutputPath = v
	}
	if v, ok := flags["temp-dir"].(string); ok && v != "" {
		c.Output.TempDirectory = v
	}
	if v, ok := flags["keep-temp"].(bool); ok {
		c.Output.KeepTemp = v
	}
	if v, ok := flags["no-compile"].(bool); ok && v {
		c.Output.Compile = false
	}
	if v, ok := flags["strategies"].([]string); ok && len(v) > 0 {
		c.Download.Strategies = v
	}
	if v, ok := flags["notifications"].(bool); ok {
		c.Notifications.Enabled = v
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := flags["log-file"].(string); ok && v != "" {
		c.Logging.File = v
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".igreels.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
