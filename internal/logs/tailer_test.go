package logs

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chengdagong/ue-mcp-sub001/pkg/events"
)

func TestTailerPublishesNewLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "editor.log")
	bus := events.NewEventBus()
	defer bus.Shutdown()

	var mu sync.Mutex
	var got []string
	bus.Subscribe(events.LogLine, func(e events.Event) {
		mu.Lock()
		got = append(got, e.Data["line"].(string))
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tailer := NewTailer(path, bus)
	tailer.interval = 20 * time.Millisecond
	go tailer.Run(ctx)

	// The file appears after the tailer starts, like a real launch.
	time.Sleep(50 * time.Millisecond)
	f, err := os.Create(path)
	require.NoError(t, err)
	_, err = f.WriteString("LogInit: starting\nLogTemp: second\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	deadline := time.Now().Add(3 * time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n >= 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected 2 log lines, saw %d", n)
		}
		time.Sleep(20 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, "LogInit: starting", got[0])
	require.Equal(t, "LogTemp: second", got[1])
}

func TestTailerHoldsPartialLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "editor.log")
	bus := events.NewEventBus()
	defer bus.Shutdown()

	var mu sync.Mutex
	var got []string
	bus.Subscribe(events.LogLine, func(e events.Event) {
		mu.Lock()
		got = append(got, e.Data["line"].(string))
		mu.Unlock()
	})

	require.NoError(t, os.WriteFile(path, []byte("incomplete"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tailer := NewTailer(path, bus)
	tailer.interval = 20 * time.Millisecond
	go tailer.Run(ctx)

	time.Sleep(150 * time.Millisecond)
	mu.Lock()
	require.Empty(t, got, "half-written line must not be published")
	mu.Unlock()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(" line done\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	deadline := time.Now().Add(3 * time.Second)
	for {
		mu.Lock()
		n := len(got)
		var line string
		if n > 0 {
			line = got[0]
		}
		mu.Unlock()
		if n > 0 {
			require.Equal(t, "incomplete line done", line)
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("completed line never published")
		}
		time.Sleep(20 * time.Millisecond)
	}
}
