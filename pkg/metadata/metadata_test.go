package metadata

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igreels/pkg/models"
)

func TestManifestRoundTripAndFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"reel_0.mp4", "reel_1.mp4"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("data"), 0644))
	}

	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	result := &models.Result{
		RunID:       "run-1",
		Target:      "friend",
		StartedAt:   started,
		FinishedAt:  started.Add(time.Minute),
		ScrollSteps: 2,
		Attempted:   4,
		Skipped:     map[string]int{"no_viewer": 1},
		Files: []models.DownloadedFile{
			{Path: filepath.Join(dir, "reel_0.mp4"), Sequence: 0, Size: 4, Source: "https://cdn/a.mp4", Strategy: "http"},
			{Path: filepath.Join(dir, "reel_1.mp4"), Sequence: 1, Size: 4, Source: "https://cdn/b.mp4", Strategy: "tab"},
			{Path: filepath.Join(dir, "reel_2.mp4"), Sequence: 2, Size: 9, Source: "https://cdn/c.mp4", Strategy: "http"},
		},
	}

	path, err := FromResult(result).Save(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, ManifestFile), path)

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "friend", loaded.Target)
	assert.Equal(t, int64(17), loaded.TotalBytes)
	assert.Equal(t, 1, loaded.Skipped["no_viewer"])
	require.Len(t, loaded.Entries, 3)
	assert.Equal(t, "reel_1.mp4", loaded.Entries[1].File)

	files := loaded.Files(dir)
	require.Len(t, files, 2, "missing reel_2.mp4 is dropped")
	assert.Equal(t, 0, files[0].Sequence)
	assert.Equal(t, "tab", files[1].Strategy)
}

func TestLoadMissingManifest(t *testing.T) {
	_, err := Load(t.TempDir())
	assert.ErrorContains(t, err, "failed to read manifest")
}
