package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func markerDir(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Saved", "Logs"), 0o755))
	return root
}

func fastWatcher() *Watcher {
	return &Watcher{PollInterval: 20 * time.Millisecond}
}

func TestWatchTimeout(t *testing.T) {
	root := markerDir(t)

	start := time.Now()
	_, err := fastWatcher().Watch(context.Background(), root, "task-1", 300*time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWatchTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestWatchFindsExistingMarker(t *testing.T) {
	root := markerDir(t)
	path := MarkerPath(root, "task-1")
	require.NoError(t, os.WriteFile(path, []byte(`{"success": true, "frames": 12}`), 0o644))

	m, err := fastWatcher().Watch(context.Background(), root, "task-1", 2*time.Second)
	require.NoError(t, err)
	assert.True(t, m.Success)
	assert.Contains(t, m.Extra, "frames")

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "marker should be deleted after a successful read")
}

func TestWatchFindsMarkerWrittenLater(t *testing.T) {
	root := markerDir(t)

	go func() {
		time.Sleep(150 * time.Millisecond)
		os.WriteFile(MarkerPath(root, "task-2"), []byte(`{"success": true}`), 0o644)
	}()

	m, err := fastWatcher().Watch(context.Background(), root, "task-2", 5*time.Second)
	require.NoError(t, err)
	assert.True(t, m.Success)
}

func TestWatchSurvivesPartialWrite(t *testing.T) {
	root := markerDir(t)
	path := MarkerPath(root, "task-3")

	// A half-written marker must not terminate the watch.
	require.NoError(t, os.WriteFile(path, []byte(`{"success": tr`), 0o644))

	go func() {
		time.Sleep(200 * time.Millisecond)
		os.WriteFile(path, []byte(`{"success": true}`), 0o644)
	}()

	m, err := fastWatcher().Watch(context.Background(), root, "task-3", 5*time.Second)
	require.NoError(t, err)
	assert.True(t, m.Success)
}

func TestWatchFailureMarkerIsAResult(t *testing.T) {
	root := markerDir(t)
	require.NoError(t, os.WriteFile(MarkerPath(root, "task-4"),
		[]byte(`{"success": false, "error": "capture target not found"}`), 0o644))

	m, err := fastWatcher().Watch(context.Background(), root, "task-4", 2*time.Second)
	require.NoError(t, err)
	assert.False(t, m.Success)
	assert.Equal(t, "capture target not found", m.Error)
}

func TestWatchContextCancellation(t *testing.T) {
	root := markerDir(t)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	_, err := fastWatcher().Watch(ctx, root, "task-5", time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMarkerPath(t *testing.T) {
	got := MarkerPath(filepath.Join("proj", "root"), "abc123")
	assert.Equal(t, filepath.Join("proj", "root", "Saved", "Logs", "abc123_completed"), got)
}
