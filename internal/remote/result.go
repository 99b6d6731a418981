package remote

import (
	"encoding/json"
	"strings"
)

// ExtractSentinelJSON finds the last occurrence of sentinel in output and
// returns the JSON object immediately following it. Python tracebacks and
// log noise after the object are ignored; nested braces and braces inside
// string literals are handled. Returns "" when no well-formed object
// follows the sentinel.
func ExtractSentinelJSON(output, sentinel string) string {
	idx := strings.LastIndex(output, sentinel)
	if idx < 0 {
		return ""
	}
	rest := output[idx+len(sentinel):]

	start := strings.IndexByte(rest, '{')
	if start < 0 {
		return ""
	}
	rest = rest[start:]

	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(rest); i++ {
		ch := rest[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				candidate := rest[:i+1]
				if json.Valid([]byte(candidate)) {
					return candidate
				}
				return ""
			}
		}
	}
	return ""
}

// LastJSONValue scans output lines from the end and returns the last line
// that parses as a JSON value. Remote scripts print their result as the
// final line; anything the editor logs afterwards is skipped over.
func LastJSONValue(output string) (json.RawMessage, bool) {
	lines := strings.Split(output, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		if json.Valid([]byte(line)) {
			return json.RawMessage(line), true
		}
	}
	return nil, false
}
