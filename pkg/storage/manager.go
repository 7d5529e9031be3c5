// Package storage owns the temporary directory that harvested clips are
// written to before compilation.
package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"sync"

	errs "igreels/pkg/errors"
)

var reelName = regexp.MustCompile(`^reel_(\d+)\.mp4$`)

// Manager writes clips under a directory using sequence-derived names
type Manager struct {
	dir     string
	written map[int]int64
	mu      sync.RWMutex
}

// NewManager creates dir if needed
func NewManager(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	return &Manager{dir: dir, written: make(map[int]int64)}, nil
}

// Dir returns the managed directory
func (m *Manager) Dir() string {
	return m.dir
}

// PathFor returns the deterministic file path for a sequence index
func (m *Manager) PathFor(sequence int) string {
	return filepath.Join(m.dir, fmt.Sprintf("reel_%d.mp4", sequence))
}

// Write streams r into the file for sequence through a temporary file and an
// atomic rename. A stream that yields no bytes is an EmptyPayload error and
// leaves nothing behind. maxBytes <= 0 means no limit.
func (m *Manager) Write(sequence int, r io.Reader, maxBytes int64) (string, int64, error) {
	path := m.PathFor(sequence)
	tmp, err := os.CreateTemp(m.dir, fmt.Sprintf(".reel_%d-*.part", sequence))
	if err != nil {
		return "", 0, fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpName := tmp.Name()

	src := r
	if maxBytes > 0 {
		src = io.LimitReader(r, maxBytes+1)
	}
	n, copyErr := io.Copy(tmp, src)
	closeErr := tmp.Close()

	switch {
	case copyErr != nil:
		os.Remove(tmpName)
		return "", n, errs.TransferError("stream interrupted", 0, copyErr)
	case closeErr != nil:
		os.Remove(tmpName)
		return "", n, fmt.Errorf("failed to close file: %w", closeErr)
	case n == 0:
		os.Remove(tmpName)
		return "", 0, errs.EmptyPayload(path)
	case maxBytes > 0 && n > maxBytes:
		os.Remove(tmpName)
		return "", n, errs.TransferError(fmt.Sprintf("payload exceeds %d bytes", maxBytes), 0, nil)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return "", n, fmt.Errorf("failed to rename temporary file: %w", err)
	}

	m.mu.Lock()
	m.written[sequence] = n
	m.mu.Unlock()
	return path, n, nil
}

// Verify confirms path exists as a regular non-empty file and returns its size
func Verify(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, errs.Wrap(errs.ErrorTypeEmptyPayload, "output missing", err)
	}
	if !info.Mode().IsRegular() || info.Size() == 0 {
		return 0, errs.EmptyPayload(path)
	}
	return info.Size(), nil
}

// Discard removes the file for sequence, ignoring a missing file
func (m *Manager) Discard(sequence int) error {
	m.mu.Lock()
	delete(m.written, sequence)
	m.mu.Unlock()

	if err := os.Remove(m.PathFor(sequence)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// WrittenCount returns how many clips this manager has written
func (m *Manager) WrittenCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.written)
}

// Existing lists reel files already in the directory, ordered by sequence
func (m *Manager) Existing() ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	type seqPath struct {
		seq  int
		path string
	}
	var found []seqPath
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := reelName.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		seq, _ := strconv.Atoi(match[1])
		found = append(found, seqPath{seq, filepath.Join(m.dir, entry.Name())})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].seq < found[j].seq })

	paths := make([]string, len(found))
	for i, f := range found {
		paths[i] = f.path
	}
	return paths, nil
}
