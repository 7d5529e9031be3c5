// Package logger provides the structured logging interface used across igreels.
//
// It wraps zerolog behind a small Logger interface:
//
//	cfg := &config.LoggingConfig{Level: "info", File: "igreels.log", MaxSize: 10}
//	if err := logger.Initialize(cfg); err != nil { ... }
//
//	log := logger.GetLogger().WithField("component", "scanner")
//	log.InfoWithFields("Candidate elements found", map[string]interface{}{
//	    "strategy": "video-button",
//	    "matched":  4,
//	})
//
// Console output is colorized unless Format is "json". When File is set the
// same entries go to a lumberjack-rotated file governed by MaxSize (MB),
// MaxBackups, MaxAge (days) and Compress.
//
// Tests install a TestLogger to assert on captured levels and fields.
package logger
