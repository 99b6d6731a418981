// Package logs reads and follows Unreal editor log files.
package logs

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// ErrNotFound is returned when the requested log file does not exist yet.
// Launch writes the log path before the editor creates the file, so a read
// racing a fresh launch can legitimately hit this.
var ErrNotFound = errors.New("logs: log file not found")

const logTimeLayout = "20060102_150405"

// FileName builds the per-launch log file name for a project. Each launch
// gets its own file so crashes can be attributed to the right session.
func FileName(projectName string, t time.Time) string {
	return fmt.Sprintf("ue-mcp-%s-%s.log", projectName, t.Format(logTimeLayout))
}

// ReadTail returns the last n lines of the file at path. n <= 0 returns the
// whole file. Lines are returned without trailing newlines.
func ReadTail(path string, n int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

// ReadTailBytes returns up to max bytes from the end of the file. Used for
// crash scanning where only the final portion of a large log matters.
func ReadTailBytes(path string, max int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := info.Size()
	if max > 0 && size > max {
		if _, err := f.Seek(size-max, io.SeekStart); err != nil {
			return nil, err
		}
	}
	return io.ReadAll(f)
}

// ContainsAny reports whether any of the needles appears in the text, and
// which one matched first by position in the needle list.
func ContainsAny(text string, needles []string) (string, bool) {
	for _, n := range needles {
		if strings.Contains(text, n) {
			return n, true
		}
	}
	return "", false
}
