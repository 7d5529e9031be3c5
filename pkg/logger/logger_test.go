package logger

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igreels/pkg/config"
)

func TestNew(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		cfg     *config.LoggingConfig
		wantErr bool
	}{
		{name: "info level", cfg: &config.LoggingConfig{Level: "info"}},
		{name: "debug level json", cfg: &config.LoggingConfig{Level: "debug", Format: "json"}},
		{name: "invalid level", cfg: &config.LoggingConfig{Level: "loud"}, wantErr: true},
		{
			name: "rotating file output",
			cfg: &config.LoggingConfig{
				Level:      "info",
				File:       filepath.Join(dir, "logs", "igreels.log"),
				MaxSize:    1,
				MaxBackups: 2,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, l)
		})
	}
}

func TestNew_FileOutputWritesEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	l, err := New(&config.LoggingConfig{Level: "info", File: path, MaxSize: 1})
	require.NoError(t, err)

	l.WithField("target", "friend").Info("harvest started")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "harvest started")
	assert.Contains(t, string(data), `"target":"friend"`)
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected zerolog.Level
		wantErr  bool
	}{
		{"trace", zerolog.TraceLevel, false},
		{"DEBUG", zerolog.DebugLevel, false},
		{"info", zerolog.InfoLevel, false},
		{"", zerolog.InfoLevel, false},
		{"warning", zerolog.WarnLevel, false},
		{"error", zerolog.ErrorLevel, false},
		{"disabled", zerolog.Disabled, false},
		{"invalid", zerolog.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			level, err := parseLogLevel(tt.level)
			assert.Equal(t, tt.wantErr, err != nil)
			assert.Equal(t, tt.expected, level)
		})
	}
}

func newBufferLogger(buf *bytes.Buffer) *zerologLogger {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	zlog := zerolog.New(buf).Level(zerolog.DebugLevel)
	return &zerologLogger{logger: &zlog, fields: map[string]interface{}{}}
}

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf)

	l.Debug("debug message")
	l.Info("info message")
	l.Warn("warn message")
	l.Error("error message")

	out := buf.String()
	for _, want := range []string{`"level":"debug"`, `"level":"info"`, `"level":"warn"`, `"level":"error"`, "error message"} {
		assert.Contains(t, out, want)
	}
}

func TestWithFieldsDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	parent := newBufferLogger(&buf)

	child := parent.WithField("component", "scanner").WithFields(map[string]interface{}{"step": 3})
	child.Info("child entry")
	parent.Info("parent entry")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"component":"scanner"`)
	assert.Contains(t, lines[0], `"step":3`)
	assert.NotContains(t, lines[1], "component")
}

func TestWithError(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf)

	l.WithError(errors.New("viewer never mounted")).Warn("candidate skipped")
	assert.Contains(t, buf.String(), "viewer never mounted")

	assert.Same(t, l, l.WithError(nil))
}

func TestFieldTypes(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf)

	l.InfoWithFields("types", map[string]interface{}{
		"s":   "x",
		"i":   7,
		"i64": int64(9),
		"f":   1.5,
		"b":   true,
		"d":   2 * time.Second,
		"ss":  []string{"a", "b"},
	})

	out := buf.String()
	assert.Contains(t, out, `"s":"x"`)
	assert.Contains(t, out, `"i":7`)
	assert.Contains(t, out, `"i64":9`)
	assert.Contains(t, out, `"b":true`)
	assert.Contains(t, out, `"ss":["a","b"]`)
}

func TestTestLoggerCapture(t *testing.T) {
	tl := NewTestLogger()
	tl.WithField("strategy", "video-button").WithError(errors.New("stale")).Warn("interaction failed")
	tl.Info("popup not present")

	msgs := tl.GetMessages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "WARN", msgs[0].Level)
	assert.Equal(t, "video-button", msgs[0].Fields["strategy"])
	assert.EqualError(t, msgs[0].Error, "stale")
	assert.Equal(t, "INFO", tl.LevelOf("popup"))
	assert.False(t, tl.HasError())

	tl.Clear()
	assert.Empty(t, tl.GetMessages())
}

func TestLogScanPassLevels(t *testing.T) {
	tl := NewTestLogger()
	LogScanPass(tl, 1, "", 0, 0)
	LogScanPass(tl, 2, "video-button", 3, 2)

	msgs := tl.GetMessages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "WARN", msgs[0].Level)
	assert.Equal(t, "INFO", msgs[1].Level)
	assert.Equal(t, 2, msgs[1].Fields["unvisited"])
}

func TestGlobalLogger(t *testing.T) {
	prev := globalLogger
	defer func() { globalLogger = prev }()

	tl := NewTestLogger()
	SetLogger(tl)
	Info("through global")
	assert.True(t, tl.HasMessage("through global"))
}
