package remote

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessageEnvelope(t *testing.T) {
	msg, err := NewMessage("node-a", "node-b", TypeCommand, CommandData{
		Command:    "print('hi')",
		Unattended: true,
		ExecMode:   ExecuteStatement,
	})
	require.NoError(t, err)

	assert.Equal(t, ProtocolMagic, msg.Magic)
	assert.Equal(t, ProtocolVersion, msg.Version)
	assert.Equal(t, "node-a", msg.Source)
	assert.Equal(t, "node-b", msg.Dest)
	assert.True(t, msg.Valid())

	var data CommandData
	require.NoError(t, json.Unmarshal(msg.Data, &data))
	assert.Equal(t, "print('hi')", data.Command)
	assert.True(t, data.Unattended)
	assert.Equal(t, ExecuteStatement, data.ExecMode)
}

func TestMessageValidRejectsWrongMagic(t *testing.T) {
	tests := []struct {
		name    string
		magic   string
		version int
		want    bool
	}{
		{"correct", ProtocolMagic, ProtocolVersion, true},
		{"wrong magic", "not_ue", ProtocolVersion, false},
		{"wrong version", ProtocolMagic, 2, false},
		{"empty", "", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Message{Magic: tt.magic, Version: tt.version}
			assert.Equal(t, tt.want, m.Valid())
		})
	}
}

func TestResponseFromResultCollectsErrors(t *testing.T) {
	resp := responseFromResult(&CommandResultData{
		Success: false,
		Output: []OutputFragment{
			{Type: "Info", Output: "starting\n"},
			{Type: "Error", Output: "Traceback (most recent call last):\n"},
			{Type: "Error", Output: "NameError: name 'x' is not defined\n"},
		},
	})

	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "NameError")
	assert.Contains(t, resp.Error, "Traceback")
	assert.NotContains(t, resp.Error, "starting")
	assert.Equal(t, "starting\nTraceback (most recent call last):\nNameError: name 'x' is not defined\n", resp.CombinedOutput())
}

func TestResponseFromResultSuccess(t *testing.T) {
	resp := responseFromResult(&CommandResultData{
		Success: true,
		Result:  "'2'",
		Output:  []OutputFragment{{Type: "Info", Output: "2\n"}},
	})
	assert.True(t, resp.Success)
	assert.Equal(t, "'2'", resp.Result)
	assert.Empty(t, resp.Error)
}

func TestResponseFromResultFallsBackToResultText(t *testing.T) {
	resp := responseFromResult(&CommandResultData{
		Success: false,
		Result:  "SyntaxError: invalid syntax",
	})
	assert.Equal(t, "SyntaxError: invalid syntax", resp.Error)
}
