package logger

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// LogRequest logs a media HTTP request
func LogRequest(method, url string, statusCode int, durationMs float64) {
	fields := map[string]interface{}{
		"method":      method,
		"url":         url,
		"status_code": statusCode,
		"duration_ms": durationMs,
	}

	switch {
	case statusCode >= 500:
		GetLogger().ErrorWithFields("HTTP request server error", fields)
	case statusCode >= 400:
		GetLogger().WarnWithFields("HTTP request client error", fields)
	default:
		GetLogger().DebugWithFields("HTTP request completed", fields)
	}
}

// LogDownload logs the outcome of one media download
func LogDownload(log Logger, sequence int, path string, size int64, err error) {
	l := log.WithFields(map[string]interface{}{
		"sequence": sequence,
		"path":     path,
		"bytes":    size,
	})
	if err != nil {
		l.WithError(err).Warn("Download failed")
		return
	}
	l.Info("Download completed")
}

// LogScanPass logs the result of one discovery pass
func LogScanPass(log Logger, step int, strategy string, found, fresh int) {
	fields := map[string]interface{}{
		"scroll_step": step,
		"strategy":    strategy,
		"matched":     found,
		"unvisited":   fresh,
	}
	if found == 0 {
		log.WarnWithFields("No candidate elements found in this pass", fields)
		return
	}
	log.InfoWithFields("Candidate elements found", fields)
}

// LogCandidate logs the outcome of one candidate attempt. Anything but a
// success is a warning.
func LogCandidate(log Logger, key, outcome string, err error) {
	l := log.WithFields(map[string]interface{}{
		"candidate": key,
		"outcome":   outcome,
	})
	if outcome == "success" {
		l.Info("Candidate extracted")
		return
	}
	if err != nil {
		l = l.WithError(err)
	}
	l.Warn("Candidate skipped")
}

// LogHarvestProgress logs the running success count against the target
func LogHarvestProgress(log Logger, target string, done, max int) {
	percentage := 0.0
	if max > 0 {
		percentage = float64(done) / float64(max) * 100
	}
	log.WithFields(map[string]interface{}{
		"target":     target,
		"downloaded": done,
		"max":        max,
		"percentage": fmt.Sprintf("%.1f%%", percentage),
	}).Info("Harvest progress")
}

// LogComponentStart logs when a component starts
func LogComponentStart(component string, config map[string]interface{}) {
	l := GetLogger().WithField("component", component)
	if len(config) > 0 {
		l = l.WithFields(config)
	}
	l.Info("Component started")
}

// LogComponentStop logs when a component stops
func LogComponentStop(component string, reason string) {
	GetLogger().WithFields(map[string]interface{}{
		"component": component,
		"reason":    reason,
	}).Info("Component stopped")
}

// Printf adapts a Logger to the printf-style hooks browser libraries expect.
func Printf(log Logger, level string) func(string, ...interface{}) {
	return func(format string, args ...interface{}) {
		msg := fmt.Sprintf(format, args...)
		switch level {
		case "error":
			log.Error(msg)
		case "warn":
			log.Warn(msg)
		case "debug", "trace":
			log.Debug(msg)
		default:
			log.Info(msg)
		}
	}
}

// NewNopLogger creates a no-operation logger for testing
func NewNopLogger() Logger {
	return &nopLogger{}
}

type nopLogger struct{}

func (n *nopLogger) Debug(msg string)                                          {}
func (n *nopLogger) Info(msg string)                                           {}
func (n *nopLogger) Warn(msg string)                                           {}
func (n *nopLogger) Error(msg string)                                          {}
func (n *nopLogger) Fatal(msg string)                                          {}
func (n *nopLogger) WithField(key string, value interface{}) Logger            { return n }
func (n *nopLogger) WithFields(fields map[string]interface{}) Logger           { return n }
func (n *nopLogger) WithError(err error) Logger                                { return n }
func (n *nopLogger) WithContext(ctx context.Context) Logger                    { return n }
func (n *nopLogger) DebugWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) InfoWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) WarnWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) ErrorWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) FatalWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) GetZerolog() *zerolog.Logger {
	nop := zerolog.Nop()
	return &nop
}
