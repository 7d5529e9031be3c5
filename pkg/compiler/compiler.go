// Package compiler turns the harvested clips into one video and removes the
// intermediates afterwards. The harvest core only hands files over; callers
// decide whether to compile.
package compiler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"igreels/pkg/logger"
	"igreels/pkg/models"
)

// ErrNothingToCompile is returned for an empty file list. Callers report it
// as a notice rather than a failure.
var ErrNothingToCompile = errors.New("nothing to compile")

// Compiler merges clips, in the given order, into output
type Compiler interface {
	Compile(ctx context.Context, files []models.DownloadedFile, output string) error
}

// Cleaner disposes of intermediate files
type Cleaner interface {
	Cleanup(files []models.DownloadedFile) error
}

// FFmpeg compiles with the ffmpeg concat demuxer
type FFmpeg struct {
	Binary   string
	Reencode bool
	logger   logger.Logger
}

// NewFFmpeg creates a compiler; an empty binary means "ffmpeg" on PATH
func NewFFmpeg(binary string, reencode bool, log logger.Logger) *FFmpeg {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &FFmpeg{
		Binary:   binary,
		Reencode: reencode,
		logger:   log.WithField("component", "compiler"),
	}
}

// Available reports whether the binary can be found
func (f *FFmpeg) Available() error {
	if _, err := exec.LookPath(f.Binary); err != nil {
		return fmt.Errorf("ffmpeg not found (%s): %w", f.Binary, err)
	}
	return nil
}

// Compile writes a concat list next to output and runs ffmpeg over it
func (f *FFmpeg) Compile(ctx context.Context, files []models.DownloadedFile, output string) error {
	if len(files) == 0 {
		return ErrNothingToCompile
	}
	if dir := filepath.Dir(output); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	list, err := os.CreateTemp(filepath.Dir(output), ".concat-*.txt")
	if err != nil {
		return fmt.Errorf("failed to create concat list: %w", err)
	}
	listPath := list.Name()
	defer os.Remove(listPath)

	_, writeErr := list.WriteString(ConcatList(files))
	if err := list.Close(); err != nil && writeErr == nil {
		writeErr = err
	}
	if writeErr != nil {
		return fmt.Errorf("failed to write concat list: %w", writeErr)
	}

	args := f.Args(listPath, output)
	f.logger.WithFields(map[string]interface{}{
		"clips":  len(files),
		"output": output,
	}).Info("Compiling clips")

	start := time.Now()
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, f.Binary, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("ffmpeg failed: %w\n%s", err, tail(stderr.String(), 2000))
	}

	info, err := os.Stat(output)
	if err != nil || info.Size() == 0 {
		return fmt.Errorf("ffmpeg produced no output at %s", output)
	}

	f.logger.WithFields(map[string]interface{}{
		"output":      output,
		"bytes":       info.Size(),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Compilation complete")
	return nil
}

// Args builds the ffmpeg argument list
func (f *FFmpeg) Args(listPath, output string) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-y", "-f", "concat", "-safe", "0", "-i", listPath}
	if f.Reencode {
		args = append(args, "-c:v", "libx264", "-preset", "veryfast", "-c:a", "aac", "-movflags", "+faststart")
	} else {
		args = append(args, "-c", "copy")
	}
	return append(args, output)
}

// ConcatList renders files in the concat demuxer's list format
func ConcatList(files []models.DownloadedFile) string {
	var b strings.Builder
	for _, file := range files {
		path := file.Path
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		b.WriteString("file '")
		b.WriteString(strings.ReplaceAll(path, "'", `'\''`))
		b.WriteString("'\n")
	}
	return b.String()
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// FileCleaner deletes the clips and, when Dir is set and left empty, the
// directory itself
type FileCleaner struct {
	Dir    string
	logger logger.Logger
}

// NewFileCleaner creates a cleaner for clips under dir
func NewFileCleaner(dir string, log logger.Logger) *FileCleaner {
	return &FileCleaner{Dir: dir, logger: log.WithField("component", "cleanup")}
}

// Cleanup removes every file, continuing past failures
func (c *FileCleaner) Cleanup(files []models.DownloadedFile) error {
	var errs []error
	removed := 0
	for _, file := range files {
		if err := os.Remove(file.Path); err != nil && !os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("remove %s: %w", file.Path, err))
			continue
		}
		removed++
	}

	if c.Dir != "" {
		if entries, err := os.ReadDir(c.Dir); err == nil && len(entries) == 0 {
			os.Remove(c.Dir)
		}
	}

	c.logger.WithField("removed", removed).Info("Temporary clips removed")
	return errors.Join(errs...)
}
