package storage

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "igreels/pkg/errors"
)

func TestPathFor(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "reel_0.mp4", filepath.Base(m.PathFor(0)))
	assert.Equal(t, "reel_12.mp4", filepath.Base(m.PathFor(12)))
}

func TestWrite(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(filepath.Join(dir, "nested"))
	require.NoError(t, err)

	data := []byte("fake mp4 payload")
	path, n, err := m.Write(3, bytes.NewReader(data), 0)
	require.NoError(t, err)
	assert.Equal(t, m.PathFor(3), path)
	assert.Equal(t, int64(len(data)), n)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, data, content)
	assert.Equal(t, 1, m.WrittenCount())

	size, err := Verify(path)
	require.NoError(t, err)
	assert.Equal(t, n, size)
}

func TestWrite_EmptyPayload(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	_, n, err := m.Write(0, strings.NewReader(""), 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrEmptyPayload)
	assert.Zero(t, n)

	_, statErr := os.Stat(m.PathFor(0))
	assert.True(t, os.IsNotExist(statErr))
	assertNoPartials(t, m.Dir())
}

type failingReader struct{ sent bool }

func (f *failingReader) Read(p []byte) (int, error) {
	if !f.sent {
		f.sent = true
		return copy(p, "partial"), nil
	}
	return 0, errors.New("connection reset")
}

func TestWrite_InterruptedStream(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	_, _, err = m.Write(1, &failingReader{}, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrTransferError)
	assertNoPartials(t, m.Dir())
}

func TestWrite_MaxBytes(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	_, _, err = m.Write(0, strings.NewReader("0123456789"), 4)
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrTransferError)
	assertNoPartials(t, m.Dir())
}

func TestVerify(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.mp4")
	require.NoError(t, os.WriteFile(empty, nil, 0644))

	_, err := Verify(empty)
	assert.ErrorIs(t, err, errs.ErrEmptyPayload)

	_, err = Verify(filepath.Join(dir, "missing.mp4"))
	assert.ErrorIs(t, err, errs.ErrEmptyPayload)

	_, err = Verify(dir)
	assert.ErrorIs(t, err, errs.ErrEmptyPayload)
}

func TestExistingAndDiscard(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	for _, seq := range []int{10, 2, 0} {
		_, _, err := m.Write(seq, strings.NewReader("x"), 0)
		require.NoError(t, err)
	}
	require.NoError(t, os.WriteFile(filepath.Join(m.Dir(), "notes.txt"), []byte("x"), 0644))

	paths, err := m.Existing()
	require.NoError(t, err)
	require.Len(t, paths, 3)
	assert.Equal(t, "reel_0.mp4", filepath.Base(paths[0]))
	assert.Equal(t, "reel_2.mp4", filepath.Base(paths[1]))
	assert.Equal(t, "reel_10.mp4", filepath.Base(paths[2]))

	require.NoError(t, m.Discard(2))
	require.NoError(t, m.Discard(2))
	assert.Equal(t, 2, m.WrittenCount())
}

func assertNoPartials(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".part"), "leftover %s", e.Name())
	}
}
