// Package metadata writes a JSON manifest next to the harvested clips so a
// run can be audited or compiled later without the browser.
package metadata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"igreels/pkg/models"
)

// ManifestFile is the manifest's file name inside the temp directory
const ManifestFile = "manifest.json"

// Entry describes one harvested clip
type Entry struct {
	Sequence int       `json:"sequence"`
	File     string    `json:"file"`
	Size     int64     `json:"size"`
	Source   string    `json:"source"`
	Strategy string    `json:"strategy"`
	Selector string    `json:"selector"`
	SavedAt  time.Time `json:"saved_at"`
}

// Manifest describes a whole run
type Manifest struct {
	RunID       string         `json:"run_id"`
	Target      string         `json:"target"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  time.Time      `json:"finished_at"`
	ScrollSteps int            `json:"scroll_steps"`
	Attempted   int            `json:"attempted"`
	Skipped     map[string]int `json:"skipped,omitempty"`
	TotalBytes  int64          `json:"total_bytes"`
	Entries     []Entry        `json:"entries"`
}

// FromResult builds a manifest from a finished run
func FromResult(r *models.Result) *Manifest {
	m := &Manifest{
		RunID:       r.RunID,
		Target:      r.Target,
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
		ScrollSteps: r.ScrollSteps,
		Attempted:   r.Attempted,
		Skipped:     r.Skipped,
		TotalBytes:  r.TotalBytes(),
		Entries:     make([]Entry, 0, len(r.Files)),
	}
	for _, f := range r.Files {
		m.Entries = append(m.Entries, Entry{
			Sequence: f.Sequence,
			File:     filepath.Base(f.Path),
			Size:     f.Size,
			Source:   f.Source,
			Strategy: f.Strategy,
			Selector: f.Selector,
			SavedAt:  f.SavedAt,
		})
	}
	return m
}

// Save writes the manifest into dir, replacing any previous one atomically
func (m *Manifest) Save(dir string) (string, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal manifest: %w", err)
	}

	path := filepath.Join(dir, ManifestFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to finalize manifest: %w", err)
	}
	return path, nil
}

// Load reads the manifest from dir
func Load(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal manifest: %w", err)
	}
	return &m, nil
}

// Files resolves the manifest entries against dir, dropping entries whose
// file is missing or empty.
func (m *Manifest) Files(dir string) []models.DownloadedFile {
	files := make([]models.DownloadedFile, 0, len(m.Entries))
	for _, e := range m.Entries {
		path := filepath.Join(dir, e.File)
		info, err := os.Stat(path)
		if err != nil || info.Size() == 0 {
			continue
		}
		files = append(files, models.DownloadedFile{
			Path:     path,
			Sequence: e.Sequence,
			Size:     info.Size(),
			Source:   e.Source,
			Strategy: e.Strategy,
			Selector: e.Selector,
			SavedAt:  e.SavedAt,
		})
	}
	return files
}
