package events

import (
	"sync"
	"testing"
	"time"
)

func TestPublishReachesSubscriber(t *testing.T) {
	bus := NewEventBus()
	defer bus.Shutdown()

	var mu sync.Mutex
	var got []Event
	done := make(chan struct{})

	bus.Subscribe(LogLine, func(e Event) {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
		close(done)
	})

	bus.Publish(Event{
		ID:        "1",
		Type:      LogLine,
		Timestamp: time.Now(),
		Data:      map[string]interface{}{"line": "LogTemp: hello"},
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber never invoked")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}
	if got[0].Data["line"] != "LogTemp: hello" {
		t.Errorf("unexpected payload: %v", got[0].Data)
	}
}

func TestPublishIgnoresOtherTypes(t *testing.T) {
	bus := NewEventBus()
	defer bus.Shutdown()

	called := make(chan struct{}, 1)
	bus.Subscribe(CrashDetected, func(e Event) {
		called <- struct{}{}
	})

	bus.Publish(Event{ID: "1", Type: LogLine, Timestamp: time.Now()})

	select {
	case <-called:
		t.Fatal("handler fired for wrong event type")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestHandlerPanicDoesNotKillWorkers(t *testing.T) {
	bus := NewEventBus()
	defer bus.Shutdown()

	done := make(chan struct{})
	bus.Subscribe(EditorLaunched, func(e Event) {
		if e.ID == "boom" {
			panic("handler bug")
		}
		close(done)
	})

	bus.Publish(Event{ID: "boom", Type: EditorLaunched, Timestamp: time.Now()})
	bus.Publish(Event{ID: "ok", Type: EditorLaunched, Timestamp: time.Now()})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker pool stopped processing after a panic")
	}
}
