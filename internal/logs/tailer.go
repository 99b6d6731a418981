package logs

import (
	"bufio"
	"context"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/chengdagong/ue-mcp-sub001/pkg/events"
)

// Tailer follows a log file as the editor appends to it and publishes each
// new line on the event bus. The editor creates the file some time after
// launch, so a missing file is waited out rather than treated as an error.
type Tailer struct {
	path     string
	bus      *events.EventBus
	interval time.Duration
}

func NewTailer(path string, bus *events.EventBus) *Tailer {
	return &Tailer{
		path:     path,
		bus:      bus,
		interval: 250 * time.Millisecond,
	}
}

// Run follows the file until ctx is cancelled. Truncation resets the read
// offset to the new end of file.
func (t *Tailer) Run(ctx context.Context) {
	var (
		f      *os.File
		reader *bufio.Reader
		offset int64
	)
	defer func() {
		if f != nil {
			f.Close()
		}
	}()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if f == nil {
			var err error
			f, err = os.Open(t.path)
			if err != nil {
				continue
			}
			reader = bufio.NewReader(f)
			offset = 0
		}

		if info, err := f.Stat(); err == nil && info.Size() < offset {
			if _, err := f.Seek(0, io.SeekStart); err == nil {
				reader.Reset(f)
				offset = 0
			}
		}

		for {
			line, err := reader.ReadString('\n')
			offset += int64(len(line))
			if len(line) > 0 && line[len(line)-1] == '\n' {
				t.publish(line[:len(line)-1])
			}
			if err != nil {
				// Partial final line stays buffered until the
				// editor finishes writing it.
				if len(line) > 0 {
					offset -= int64(len(line))
					if _, serr := f.Seek(offset, io.SeekStart); serr == nil {
						reader.Reset(f)
					}
				}
				break
			}
		}
	}
}

func (t *Tailer) publish(line string) {
	t.bus.Publish(events.Event{
		ID:        uuid.NewString(),
		Type:      events.LogLine,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"path": t.path,
			"line": line,
		},
	})
}
