package checkpoint

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"igreels/pkg/instagram"
	"igreels/pkg/logger"
	"igreels/pkg/models"
)

const currentVersion = 2

// Checkpoint is the saved state of one harvest run
type Checkpoint struct {
	Target          string                  `json:"target"`
	RunID           string                  `json:"run_id"`
	Files           []models.DownloadedFile `json:"files"`
	TotalDownloaded int                     `json:"total_downloaded"`
	ScrollSteps     int                     `json:"scroll_steps"`
	Completed       bool                    `json:"completed"`
	CreatedAt       time.Time               `json:"created_at"`
	UpdatedAt       time.Time               `json:"updated_at"`
	Version         int                     `json:"version"`
}

// Manager handles checkpoint operations for one target
type Manager struct {
	checkpointPath string
	current        *Checkpoint
	mu             sync.Mutex
	logger         logger.Logger
}

// NewManager creates a manager storing under the user data directory
func NewManager(target string) (*Manager, error) {
	dataDir, err := getDataDirectory()
	if err != nil {
		return nil, fmt.Errorf("failed to get data directory: %w", err)
	}
	return NewManagerInDir(filepath.Join(dataDir, "checkpoints"), target)
}

// NewManagerInDir creates a manager storing under dir
func NewManagerInDir(dir, target string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoints directory: %w", err)
	}

	return &Manager{
		checkpointPath: filepath.Join(dir, fileName(target)),
		logger:         logger.GetLogger().WithField("component", "checkpoint"),
	}, nil
}

func fileName(target string) string {
	name := instagram.SanitizeUsername(target)
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			return '_'
		}
		return r
	}, name)
	if name == "" {
		name = "default"
	}
	return name + ".checkpoint.json"
}

// Path returns the checkpoint file location
func (m *Manager) Path() string {
	return m.checkpointPath
}

// Start begins a fresh record for runID, backing up any previous one
func (m *Manager) Start(runID, target string) error {
	if err := m.BackupCheckpoint(); err != nil {
		m.logger.WithError(err).Warn("Failed to back up previous checkpoint")
	}

	now := time.Now()
	cp := &Checkpoint{
		Target:    target,
		RunID:     runID,
		Files:     []models.DownloadedFile{},
		CreatedAt: now,
		Version:   currentVersion,
	}

	m.mu.Lock()
	m.current = cp
	m.mu.Unlock()

	if err := m.Save(cp); err != nil {
		return fmt.Errorf("failed to save initial checkpoint: %w", err)
	}

	m.logger.InfoWithFields("Checkpoint created", map[string]interface{}{
		"target": target,
		"run_id": runID,
		"path":   m.checkpointPath,
	})
	return nil
}

// Record appends a saved file to the current run
func (m *Manager) Record(file models.DownloadedFile) error {
	m.mu.Lock()
	cp := m.current
	if cp == nil {
		m.mu.Unlock()
		return fmt.Errorf("no checkpoint started")
	}
	cp.Files = append(cp.Files, file)
	cp.TotalDownloaded = len(cp.Files)
	m.mu.Unlock()

	return m.Save(cp)
}

// Finish marks the run complete with its final counters
func (m *Manager) Finish(result *models.Result) error {
	m.mu.Lock()
	cp := m.current
	if cp == nil {
		m.mu.Unlock()
		return fmt.Errorf("no checkpoint started")
	}
	cp.Files = append([]models.DownloadedFile(nil), result.Files...)
	cp.TotalDownloaded = len(cp.Files)
	cp.ScrollSteps = result.ScrollSteps
	cp.Completed = true
	m.mu.Unlock()

	return m.Save(cp)
}

// Load loads an existing checkpoint; a missing file yields nil, nil
func (m *Manager) Load() (*Checkpoint, error) {
	file, err := os.Open(m.checkpointPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open checkpoint file: %w", err)
	}
	defer file.Close()

	var checkpoint Checkpoint
	if err := json.NewDecoder(file).Decode(&checkpoint); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	if checkpoint.Version != currentVersion {
		return nil, fmt.Errorf("unsupported checkpoint version %d", checkpoint.Version)
	}

	m.logger.InfoWithFields("Checkpoint loaded", map[string]interface{}{
		"target":           checkpoint.Target,
		"total_downloaded": checkpoint.TotalDownloaded,
		"completed":        checkpoint.Completed,
		"updated_at":       checkpoint.UpdatedAt,
	})

	return &checkpoint, nil
}

// Save saves the checkpoint to disk atomically
func (m *Manager) Save(checkpoint *Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	checkpoint.UpdatedAt = time.Now()

	tempPath := m.checkpointPath + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary checkpoint file: %w", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(checkpoint); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync checkpoint file: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close checkpoint file: %w", err)
	}

	if err := os.Rename(tempPath, m.checkpointPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace checkpoint file: %w", err)
	}

	m.logger.DebugWithFields("Checkpoint saved", map[string]interface{}{
		"target":           checkpoint.Target,
		"total_downloaded": checkpoint.TotalDownloaded,
	})
	return nil
}

// Delete removes the checkpoint file
func (m *Manager) Delete() error {
	if err := os.Remove(m.checkpointPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}

	m.logger.Info("Checkpoint deleted")
	return nil
}

// Exists checks if a checkpoint file exists
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.checkpointPath)
	return err == nil
}

// ExistingFiles returns the recorded clips that are still on disk and
// non-empty, in sequence order
func (checkpoint *Checkpoint) ExistingFiles() []models.DownloadedFile {
	files := make([]models.DownloadedFile, 0, len(checkpoint.Files))
	for _, f := range checkpoint.Files {
		info, err := os.Stat(f.Path)
		if err != nil || info.Size() == 0 {
			continue
		}
		files = append(files, f)
	}
	return files
}

// GetCheckpointInfo returns a summary of the checkpoint
func (m *Manager) GetCheckpointInfo() (map[string]interface{}, error) {
	checkpoint, err := m.Load()
	if err != nil {
		return nil, err
	}
	if checkpoint == nil {
		return nil, nil
	}

	return map[string]interface{}{
		"target":           checkpoint.Target,
		"run_id":           checkpoint.RunID,
		"total_downloaded": checkpoint.TotalDownloaded,
		"completed":        checkpoint.Completed,
		"created_at":       checkpoint.CreatedAt,
		"updated_at":       checkpoint.UpdatedAt,
		"age":              time.Since(checkpoint.UpdatedAt),
	}, nil
}

// BackupCheckpoint copies the current checkpoint file aside
func (m *Manager) BackupCheckpoint() error {
	if !m.Exists() {
		return nil
	}

	backupPath := m.checkpointPath + ".backup"

	src, err := os.Open(m.checkpointPath)
	if err != nil {
		return fmt.Errorf("failed to open checkpoint for backup: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(backupPath)
	if err != nil {
		return fmt.Errorf("failed to create backup file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("failed to copy checkpoint to backup: %w", err)
	}

	m.logger.Debug("Checkpoint backed up")
	return nil
}

// getDataDirectory returns the appropriate data directory for the current OS
func getDataDirectory() (string, error) {
	var dataDir string

	switch runtime.GOOS {
	case "linux":
		if xdgDataHome := os.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
			dataDir = filepath.Join(xdgDataHome, "igreels")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			dataDir = filepath.Join(home, ".local", "share", "igreels")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataDir = filepath.Join(home, "Library", "Application Support", "igreels")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		dataDir = filepath.Join(appData, "igreels")
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}

	return dataDir, nil
}
