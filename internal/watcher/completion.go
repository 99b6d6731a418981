// Package watcher waits for completion markers written by long-running
// editor tasks. A marker is a small JSON file the task drops under the
// project's Saved/Logs directory when it finishes.
package watcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ErrWatchTimeout is returned when no readable marker appears within the
// watch window. Distinct from a marker that reports failure: a failed task
// still produced a marker, a timeout means nothing was heard at all.
var ErrWatchTimeout = errors.New("watcher: timed out waiting for completion marker")

// DefaultPollInterval balances latency against filesystem churn.
const DefaultPollInterval = 500 * time.Millisecond

// Marker is the parsed contents of a completion marker file. Fields beyond
// Success are task-specific and preserved as-is.
type Marker struct {
	Success bool                       `json:"success"`
	Error   string                     `json:"error,omitempty"`
	Extra   map[string]json.RawMessage `json:"-"`
}

// MarkerPath returns the marker location for a task under a project root.
func MarkerPath(projectRoot, taskID string) string {
	return filepath.Join(projectRoot, "Saved", "Logs", taskID+"_completed")
}

// Watcher polls for completion markers. An fsnotify watch on the marker
// directory wakes the poll loop early; polling remains the correctness
// mechanism so a missed event cannot strand the wait.
type Watcher struct {
	PollInterval time.Duration
}

func New() *Watcher {
	return &Watcher{PollInterval: DefaultPollInterval}
}

// Watch blocks until the task's marker can be read, the timeout elapses, or
// ctx is cancelled. The marker file is removed after a successful read so a
// later watch for the same task ID starts clean. A marker that exists but
// does not yet parse is treated as still being written and polled again.
func (w *Watcher) Watch(ctx context.Context, projectRoot, taskID string, timeout time.Duration) (*Marker, error) {
	interval := w.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	path := MarkerPath(projectRoot, taskID)
	dir := filepath.Dir(path)

	var wake <-chan fsnotify.Event
	fsw, err := fsnotify.NewWatcher()
	if err == nil {
		defer fsw.Close()
		go func() {
			for range fsw.Errors {
			}
		}()
		if err := fsw.Add(dir); err != nil {
			log.Printf("watcher: fsnotify add %s: %v", dir, err)
		} else {
			wake = fsw.Events
		}
	} else {
		log.Printf("watcher: fsnotify unavailable, polling only: %v", err)
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if m, ok := tryReadMarker(path); ok {
			return m, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, fmt.Errorf("%w: task %s after %s", ErrWatchTimeout, taskID, timeout)
		case <-ticker.C:
		case <-wake:
			// Directory activity; re-check immediately.
		}
	}
}

// tryReadMarker reads and deletes the marker. A file that exists but fails
// to parse is a partial write in progress and is left untouched for the
// next poll.
func tryReadMarker(path string) (*Marker, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, false
	}

	m := &Marker{Extra: make(map[string]json.RawMessage)}
	for k, v := range raw {
		switch k {
		case "success":
			if err := json.Unmarshal(v, &m.Success); err != nil {
				return nil, false
			}
		case "error":
			var s string
			if err := json.Unmarshal(v, &s); err == nil {
				m.Error = s
			}
		default:
			m.Extra[k] = v
		}
	}

	if err := os.Remove(path); err != nil {
		log.Printf("watcher: remove marker %s: %v", path, err)
	}
	return m, true
}
