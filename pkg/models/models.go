// Package models holds the value types passed between the harvest stages.
package models

import "time"

// DownloadedFile is one persisted media stream. Size is always > 0 for a
// file handed out of the pipeline.
type DownloadedFile struct {
	Path     string    `json:"path"`
	Sequence int       `json:"sequence"`
	Size     int64     `json:"size"`
	Source   string    `json:"source"`
	Strategy string    `json:"strategy"`
	Selector string    `json:"selector"`
	SavedAt  time.Time `json:"saved_at"`
}

// Result is what a harvest run hands to compilation, in sequence order
type Result struct {
	RunID       string           `json:"run_id"`
	Target      string           `json:"target"`
	Files       []DownloadedFile `json:"files"`
	ScrollSteps int              `json:"scroll_steps"`
	Attempted   int              `json:"attempted"`
	Skipped     map[string]int   `json:"skipped,omitempty"`
	StartedAt   time.Time        `json:"started_at"`
	FinishedAt  time.Time        `json:"finished_at"`
}

// Paths returns the file paths in sequence order
func (r *Result) Paths() []string {
	paths := make([]string, len(r.Files))
	for i, f := range r.Files {
		paths[i] = f.Path
	}
	return paths
}

// Empty reports whether there is nothing to compile
func (r *Result) Empty() bool {
	return r == nil || len(r.Files) == 0
}

// TotalBytes sums the sizes of all files
func (r *Result) TotalBytes() int64 {
	var total int64
	for _, f := range r.Files {
		total += f.Size
	}
	return total
}

// Stage names a phase of the run for progress reporting
type Stage string

const (
	StageStarting   Stage = "starting"
	StageLogin      Stage = "login"
	StageNavigating Stage = "navigating"
	StageLocating   Stage = "locating"
	StageScanning   Stage = "scanning"
	StageExtracting Stage = "extracting"
	StageCompiling  Stage = "compiling"
	StageDone       Stage = "done"
	StageFailed     Stage = "failed"
)

// ProgressEvent is one progress update emitted while a run advances
type ProgressEvent struct {
	RunID      string    `json:"run_id"`
	Stage      Stage     `json:"stage"`
	Progress   int       `json:"progress"`
	Message    string    `json:"message"`
	ScrollStep int       `json:"scroll_step,omitempty"`
	Downloaded int       `json:"downloaded"`
	Max        int       `json:"max,omitempty"`
	File       string    `json:"file,omitempty"`
	Error      string    `json:"error,omitempty"`
	Time       time.Time `json:"time"`
}
