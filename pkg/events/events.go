package events

import (
	"context"
	"fmt"
	"log"
	"runtime"
	"sync"
	"time"
)

type EventType string

const (
	EditorLaunched  EventType = "editor.launched"
	EditorConnected EventType = "editor.connected"
	EditorExited    EventType = "editor.exited"
	EditorStopped   EventType = "editor.stopped"
	CrashDetected   EventType = "editor.crash"
	LogLine         EventType = "log.line"
	CommandExecuted EventType = "command.executed"
	TaskCompleted   EventType = "task.completed"
)

type Event struct {
	ID        string
	Type      EventType
	Timestamp time.Time
	Data      map[string]interface{}
}

type Handler func(event Event)

type eventTask struct {
	event   Event
	handler Handler
}

// EventBus fans events out to subscribed handlers on a fixed worker pool so
// a slow handler cannot stall a publisher.
type EventBus struct {
	handlers   map[EventType][]Handler
	mu         sync.RWMutex
	workerPool chan eventTask
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

func NewEventBus() *EventBus {
	ctx, cancel := context.WithCancel(context.Background())

	eb := &EventBus{
		handlers:   make(map[EventType][]Handler),
		workerPool: make(chan eventTask, 1000),
		ctx:        ctx,
		cancel:     cancel,
	}

	workers := runtime.NumCPU() * 2
	for i := 0; i < workers; i++ {
		eb.wg.Add(1)
		go eb.worker()
	}

	return eb
}

func (eb *EventBus) worker() {
	defer eb.wg.Done()

	for {
		select {
		case task := <-eb.workerPool:
			func() {
				defer func() {
					if r := recover(); r != nil {
						log.Printf("EventBus handler panic: %v\n", r)
					}
				}()
				task.handler(task.event)
			}()
		case <-eb.ctx.Done():
			return
		}
	}
}

func (eb *EventBus) Subscribe(eventType EventType, handler Handler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.handlers[eventType] = append(eb.handlers[eventType], handler)
}

func (eb *EventBus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.ID == "" {
		event.ID = fmt.Sprintf("%d", time.Now().UnixNano())
	}

	eb.mu.RLock()
	handlers := eb.handlers[event.Type]
	eb.mu.RUnlock()

	for _, handler := range handlers {
		task := eventTask{event: event, handler: handler}

		select {
		case eb.workerPool <- task:
		default:
			// Pool full, run the handler on its own goroutine instead of
			// dropping the event.
			go func(h Handler, e Event) {
				defer func() {
					if r := recover(); r != nil {
						log.Printf("EventBus fallback handler panic: %v\n", r)
					}
				}()
				h(e)
			}(handler, event)
		}
	}
}

// Shutdown stops the worker pool. Queued events may be discarded.
func (eb *EventBus) Shutdown() {
	eb.cancel()
	eb.wg.Wait()
}
