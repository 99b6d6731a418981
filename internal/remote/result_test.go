package remote

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractSentinelJSON(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   string
	}{
		{
			name:   "simple",
			output: `RESULT:{"ok":true}`,
			want:   `{"ok":true}`,
		},
		{
			name:   "noise before and after",
			output: "LogPython: starting\nRESULT:{\"count\": 3}\nLogPython: shutting down\n",
			want:   `{"count": 3}`,
		},
		{
			name:   "nested objects",
			output: `RESULT:{"outer":{"inner":{"deep":1}},"list":[{"a":2}]}`,
			want:   `{"outer":{"inner":{"deep":1}},"list":[{"a":2}]}`,
		},
		{
			name:   "braces inside strings",
			output: `RESULT:{"path":"C:\\maps\\{weird}","note":"has } brace"}`,
			want:   `{"path":"C:\\maps\\{weird}","note":"has } brace"}`,
		},
		{
			name:   "last occurrence wins",
			output: "RESULT:{\"attempt\":1}\nretrying\nRESULT:{\"attempt\":2}\n",
			want:   `{"attempt":2}`,
		},
		{
			name:   "whitespace between sentinel and object",
			output: "RESULT: {\"ok\":true}",
			want:   `{"ok":true}`,
		},
		{
			name:   "no sentinel",
			output: `{"ok":true}`,
			want:   "",
		},
		{
			name:   "sentinel without object",
			output: "RESULT: something went wrong",
			want:   "",
		},
		{
			name:   "unterminated object",
			output: `RESULT:{"ok":true`,
			want:   "",
		},
		{
			name:   "empty",
			output: "",
			want:   "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractSentinelJSON(tt.output, "RESULT:"))
		})
	}
}

func TestLastJSONValue(t *testing.T) {
	raw, ok := LastJSONValue("LogTemp: warming up\n{\"done\": true}\n")
	require.True(t, ok)
	assert.JSONEq(t, `{"done": true}`, string(raw))

	raw, ok = LastJSONValue("{\"first\": 1}\nnot json trailing line")
	require.True(t, ok)
	assert.JSONEq(t, `{"first": 1}`, string(raw))

	_, ok = LastJSONValue("no structured output here")
	assert.False(t, ok)

	_, ok = LastJSONValue("")
	assert.False(t, ok)
}
