// Package remote implements the client side of Unreal Engine's Python
// remote execution protocol: multicast discovery of running editor
// instances, a TCP command channel for pushing code into the editor's
// embedded interpreter, and reassembly of the structured results.
package remote

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	// ProtocolMagic identifies remote execution datagrams. Anything else
	// on the multicast group is ignored.
	ProtocolMagic = "ue_py"

	// ProtocolVersion is the only protocol revision the editor speaks.
	ProtocolVersion = 1

	// BufferSize matches the editor's per-recv buffer. A single command
	// result never exceeds this, but it may arrive split across many
	// smaller TCP segments.
	BufferSize = 2 * 1024 * 1024
)

// Message types exchanged over multicast and the command channel.
const (
	TypePing            = "ping"
	TypePong            = "pong"
	TypeOpenConnection  = "open_connection"
	TypeCloseConnection = "close_connection"
	TypeCommand         = "command"
	TypeCommandResult   = "command_result"
)

// ExecType selects how the editor runs a submitted code string.
type ExecType string

const (
	ExecuteFile       ExecType = "ExecuteFile"
	ExecuteStatement  ExecType = "ExecuteStatement"
	EvaluateStatement ExecType = "EvaluateStatement"
)

// Message is the JSON envelope for every protocol exchange.
type Message struct {
	Version int             `json:"version"`
	Magic   string          `json:"magic"`
	Source  string          `json:"source"`
	Dest    string          `json:"dest,omitempty"`
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// NewMessage builds an envelope with the protocol magic and version filled
// in. data may be nil.
func NewMessage(source, dest, msgType string, data interface{}) (*Message, error) {
	m := &Message{
		Version: ProtocolVersion,
		Magic:   ProtocolMagic,
		Source:  source,
		Dest:    dest,
		Type:    msgType,
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("remote: marshal %s data: %w", msgType, err)
		}
		m.Data = raw
	}
	return m, nil
}

// Valid reports whether the envelope carries the expected magic and version.
func (m *Message) Valid() bool {
	return m.Magic == ProtocolMagic && m.Version == ProtocolVersion
}

// PongData is the payload of a discovery response from the editor.
type PongData struct {
	User          string `json:"user,omitempty"`
	ProjectName   string `json:"project_name,omitempty"`
	ProjectRoot   string `json:"project_root,omitempty"`
	EngineVersion string `json:"engine_version,omitempty"`
	ProcessID     int    `json:"process_id,omitempty"`
}

// OpenConnectionData tells the editor where to dial the command channel.
type OpenConnectionData struct {
	CommandIP   string `json:"command_ip"`
	CommandPort int    `json:"command_port"`
}

// CommandData is the payload of an execution request.
type CommandData struct {
	Command    string   `json:"command"`
	Unattended bool     `json:"unattended"`
	ExecMode   ExecType `json:"exec_mode"`
}

// OutputFragment is one chunk of captured interpreter output. Type is the
// editor's severity label ("Info", "Warning", "Error").
type OutputFragment struct {
	Type   string `json:"type"`
	Output string `json:"output"`
}

// CommandResultData is the payload of a command_result message.
type CommandResultData struct {
	Success bool             `json:"success"`
	Result  string           `json:"result"`
	Output  []OutputFragment `json:"output"`
}

// NodeIdentity identifies one running editor instance as observed during
// discovery. Immutable once captured.
type NodeIdentity struct {
	NodeID        string
	ProcessID     int
	ProjectName   string
	EngineVersion string
}

// CommandResponse is the assembled outcome of one Execute call. A remote
// exception is reported here with Success=false, not as a Go error.
type CommandResponse struct {
	Success bool             `json:"success"`
	Result  string           `json:"result,omitempty"`
	Output  []OutputFragment `json:"output,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// CombinedOutput concatenates all output fragments in arrival order.
func (r *CommandResponse) CombinedOutput() string {
	var b strings.Builder
	for _, frag := range r.Output {
		b.WriteString(frag.Output)
	}
	return b.String()
}

func responseFromResult(data *CommandResultData) *CommandResponse {
	resp := &CommandResponse{
		Success: data.Success,
		Result:  data.Result,
		Output:  data.Output,
	}
	if !data.Success {
		var errText strings.Builder
		for _, frag := range data.Output {
			if frag.Type == "Error" {
				errText.WriteString(frag.Output)
			}
		}
		resp.Error = errText.String()
		if resp.Error == "" {
			resp.Error = data.Result
		}
	}
	return resp
}
